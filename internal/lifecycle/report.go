package lifecycle

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"appctl/internal/registry"
)

// ComponentResult records how a single component came out of a startup run.
type ComponentResult struct {
	ID           string        `json:"id"`
	Tier         registry.Tier `json:"tier"`
	State        State         `json:"state"`
	Reason       string        `json:"reason,omitempty"`
	Error        string        `json:"error,omitempty"`
	UsedFallback bool          `json:"usedFallback,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Report is the complete record of a startup run. It is always fully
// populated, whether the run finished or aborted.
type Report struct {
	RunID       string                     `json:"runId"`
	StartedAt   time.Time                  `json:"startedAt"`
	Elapsed     time.Duration              `json:"elapsed"`
	Phases      [][]string                 `json:"phases"`
	FinalStates map[string]State           `json:"finalStates"`
	Components  map[string]ComponentResult `json:"components"`
	// AbortedAt names the critical component that stopped the run, empty
	// when the run completed.
	AbortedAt string `json:"abortedAt,omitempty"`
}

// Aborted reports whether the run was stopped by a critical failure.
func (r *Report) Aborted() bool {
	return r.AbortedAt != ""
}

// CountByState tallies components per final state.
func (r *Report) CountByState() map[State]int {
	counts := make(map[State]int)
	for _, state := range r.FinalStates {
		counts[state]++
	}
	return counts
}

// ComponentIDs returns all component ids in the report, sorted.
func (r *Report) ComponentIDs() []string {
	ids := make([]string, 0, len(r.Components))
	for id := range r.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render formats the report as a human-readable summary.
func (r *Report) Render() string {
	var b strings.Builder

	if r.Aborted() {
		fmt.Fprintf(&b, "Startup aborted by %s after %s\n", r.AbortedAt, r.Elapsed.Round(time.Millisecond))
	} else {
		fmt.Fprintf(&b, "Startup completed in %s\n", r.Elapsed.Round(time.Millisecond))
	}

	counts := r.CountByState()
	fmt.Fprintf(&b, "  %d components: %d ready, %d degraded, %d failed, %d pending\n",
		len(r.Components),
		counts[StateReady],
		counts[StateDegraded],
		counts[StateFailed],
		counts[StatePending])

	for i, phase := range r.Phases {
		fmt.Fprintf(&b, "  phase %d: %s\n", i, strings.Join(phase, ", "))
	}

	for _, id := range r.ComponentIDs() {
		result := r.Components[id]
		line := fmt.Sprintf("  %-20s %-12s %-8s %s", result.ID, result.State, result.Tier, result.Duration.Round(time.Millisecond))
		if result.UsedFallback {
			line += " (fallback)"
		}
		if result.Reason != "" {
			line += " - " + result.Reason
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}
