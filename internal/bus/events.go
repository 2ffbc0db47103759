package bus

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event. Types are namespaced with a dotted
// prefix ("component.ready", "legacy.cache.warmed") so subscribers can match
// whole families of events.
type EventType string

const (
	// Component lifecycle events
	EventTypeComponentInitializing EventType = "component.initializing"
	EventTypeComponentReady        EventType = "component.ready"
	EventTypeComponentDegraded     EventType = "component.degraded"
	EventTypeComponentFailed       EventType = "component.failed"

	// Startup run events
	EventTypeStartupStarted   EventType = "startup.started"
	EventTypePhaseStarted     EventType = "startup.phase.started"
	EventTypePhaseCompleted   EventType = "startup.phase.completed"
	EventTypeStartupCompleted EventType = "startup.completed"
	EventTypeStartupAborted   EventType = "startup.aborted"

	// Shutdown events
	EventTypeShutdownStarted   EventType = "shutdown.started"
	EventTypeShutdownCompleted EventType = "shutdown.completed"
)

// Namespaces for adapter-facing traffic. Components publish domain events
// under these prefixes and the event bridge translates between them.
const (
	NamespaceLegacy = "legacy"
	NamespaceModern = "modern"
)

// Namespace returns the dotted prefix of the event type ("component" for
// "component.ready"). Types without a dot are their own namespace.
func (t EventType) Namespace() string {
	if i := strings.Index(string(t), "."); i >= 0 {
		return string(t)[:i]
	}
	return string(t)
}

// In reports whether the event type belongs to the given namespace.
func (t EventType) In(namespace string) bool {
	return t.Namespace() == namespace
}

// Event is the value delivered to subscribers. Sequence is assigned by the
// bus at publish time unless the publisher already set one; republished
// translations keep the sequence of the event that caused them.
type Event struct {
	Type        EventType `json:"type"`
	Source      string    `json:"source"`
	Sequence    uint64    `json:"sequence"`
	Correlation string    `json:"correlation_id"`
	Timestamp   time.Time `json:"timestamp"`
	Payload     any       `json:"payload,omitempty"`
}

// String returns a human-readable description of the event.
func (e Event) String() string {
	return fmt.Sprintf("%s from %s (seq %d)", e.Type, e.Source, e.Sequence)
}

// NewEvent creates an event with a fresh correlation ID and timestamp.
// Sequence is left zero so the bus assigns it on publish.
func NewEvent(eventType EventType, source string, payload any) Event {
	return Event{
		Type:        eventType,
		Source:      source,
		Correlation: GenerateCorrelationID(),
		Timestamp:   time.Now(),
		Payload:     payload,
	}
}

// WithCorrelation returns a copy of the event carrying the given correlation
// ID, used to chain an event to the one that caused it.
func (e Event) WithCorrelation(correlationID string) Event {
	e.Correlation = correlationID
	return e
}

// GenerateCorrelationID returns a unique ID for tracing related events.
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// ComponentTransition is the payload carried on component.* events.
type ComponentTransition struct {
	ComponentID string `json:"component_id"`
	OldState    string `json:"old_state"`
	NewState    string `json:"new_state"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PhaseTransition is the payload carried on startup.phase.* events.
type PhaseTransition struct {
	RunID   string   `json:"run_id"`
	Index   int      `json:"index"`
	Members []string `json:"members"`
}

// StartupResult is the payload carried on startup.completed and
// startup.aborted events.
type StartupResult struct {
	RunID     string        `json:"run_id"`
	Aborted   bool          `json:"aborted"`
	AbortedAt string        `json:"aborted_at,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}
