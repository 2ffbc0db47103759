package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingAdapter struct {
	id         string
	proposeErr error
	applyErr   error

	mu        sync.Mutex
	proposed  int
	applied   int
	discarded int
}

func newRecordingAdapter(id string) *recordingAdapter {
	return &recordingAdapter{id: id}
}

func (a *recordingAdapter) ID() string {
	return a.id
}

func (a *recordingAdapter) Propose(ctx context.Context, tx Transition) error {
	a.mu.Lock()
	a.proposed++
	a.mu.Unlock()
	return a.proposeErr
}

func (a *recordingAdapter) Apply(ctx context.Context, tx Transition) error {
	a.mu.Lock()
	a.applied++
	a.mu.Unlock()
	return a.applyErr
}

func (a *recordingAdapter) Discard(ctx context.Context, tx Transition) {
	a.mu.Lock()
	a.discarded++
	a.mu.Unlock()
}

func (a *recordingAdapter) counts() (proposed, applied, discarded int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.proposed, a.applied, a.discarded
}

func TestCoordinator_Register(t *testing.T) {
	coordinator := NewCoordinator()

	assert.NoError(t, coordinator.Register(newRecordingAdapter("legacy-ui")))
	assert.NoError(t, coordinator.Register(newRecordingAdapter("modern-ui")))
	assert.ErrorContains(t, coordinator.Register(newRecordingAdapter("legacy-ui")), "already registered")
	assert.ErrorContains(t, coordinator.Register(newRecordingAdapter("")), "no id")

	assert.Equal(t, []string{"legacy-ui", "modern-ui"}, coordinator.Adapters())
}

func TestCoordinator_CommitAppliesAll(t *testing.T) {
	coordinator := NewCoordinator()
	alpha := newRecordingAdapter("alpha")
	beta := newRecordingAdapter("beta")
	gamma := newRecordingAdapter("gamma")
	for _, adapter := range []*recordingAdapter{alpha, beta, gamma} {
		assert.NoError(t, coordinator.Register(adapter))
	}

	err := coordinator.Commit(context.Background(), Transition{Name: "theme-change", Payload: "dark"})
	assert.NoError(t, err)

	for _, adapter := range []*recordingAdapter{alpha, beta, gamma} {
		proposed, applied, discarded := adapter.counts()
		assert.Equal(t, 1, proposed, "adapter %s", adapter.id)
		assert.Equal(t, 1, applied, "adapter %s", adapter.id)
		assert.Equal(t, 0, discarded, "adapter %s", adapter.id)
	}
}

// One veto means nothing applies anywhere.
func TestCoordinator_VetoAppliesNothing(t *testing.T) {
	coordinator := NewCoordinator()
	alpha := newRecordingAdapter("alpha")
	beta := newRecordingAdapter("beta")
	gamma := newRecordingAdapter("gamma")

	vetoErr := errors.New("stale snapshot")
	beta.proposeErr = vetoErr

	for _, adapter := range []*recordingAdapter{alpha, beta, gamma} {
		assert.NoError(t, coordinator.Register(adapter))
	}

	err := coordinator.Commit(context.Background(), Transition{Name: "navigate", Payload: "settings"})

	var desync *DesyncError
	assert.ErrorAs(t, err, &desync)
	assert.Equal(t, "navigate", desync.Transition)
	assert.Equal(t, "beta", desync.AdapterID)
	assert.Equal(t, "propose", desync.Stage)
	assert.ErrorIs(t, err, vetoErr)

	for _, adapter := range []*recordingAdapter{alpha, beta, gamma} {
		_, applied, _ := adapter.counts()
		assert.Equal(t, 0, applied, "adapter %s must not apply", adapter.id)
	}

	// alpha staged before the veto and is told to discard; gamma was
	// never reached.
	_, _, discarded := alpha.counts()
	assert.Equal(t, 1, discarded)
	proposed, _, discarded := gamma.counts()
	assert.Equal(t, 0, proposed)
	assert.Equal(t, 0, discarded)
}

func TestCoordinator_ApplyFailureReportsDesync(t *testing.T) {
	coordinator := NewCoordinator()
	alpha := newRecordingAdapter("alpha")
	beta := newRecordingAdapter("beta")
	beta.applyErr = errors.New("widget tree torn down")

	assert.NoError(t, coordinator.Register(alpha))
	assert.NoError(t, coordinator.Register(beta))

	err := coordinator.Commit(context.Background(), Transition{Name: "resize"})

	var desync *DesyncError
	assert.ErrorAs(t, err, &desync)
	assert.Equal(t, "apply", desync.Stage)
	assert.Empty(t, desync.AdapterID)
	assert.ErrorContains(t, err, "beta")

	// Apply was still attempted everywhere: the divergence is real and
	// reported, not silently rolled back.
	_, applied, _ := alpha.counts()
	assert.Equal(t, 1, applied)
}

func TestCoordinator_CommitNamedSubset(t *testing.T) {
	coordinator := NewCoordinator()
	alpha := newRecordingAdapter("alpha")
	beta := newRecordingAdapter("beta")
	gamma := newRecordingAdapter("gamma")
	for _, adapter := range []*recordingAdapter{alpha, beta, gamma} {
		assert.NoError(t, coordinator.Register(adapter))
	}

	err := coordinator.Commit(context.Background(), Transition{Name: "sync"}, "alpha", "gamma")
	assert.NoError(t, err)

	proposed, applied, _ := beta.counts()
	assert.Equal(t, 0, proposed)
	assert.Equal(t, 0, applied)
	_, applied, _ = gamma.counts()
	assert.Equal(t, 1, applied)
}

func TestCoordinator_UnknownAdapter(t *testing.T) {
	coordinator := NewCoordinator()
	alpha := newRecordingAdapter("alpha")
	assert.NoError(t, coordinator.Register(alpha))

	err := coordinator.Commit(context.Background(), Transition{Name: "sync"}, "alpha", "ghost")
	assert.ErrorContains(t, err, `unknown adapter "ghost"`)

	proposed, _, _ := alpha.counts()
	assert.Equal(t, 0, proposed, "nothing runs when the participant list is invalid")
}

func TestCoordinator_NoParticipants(t *testing.T) {
	coordinator := NewCoordinator()
	assert.ErrorContains(t, coordinator.Commit(context.Background(), Transition{Name: "sync"}), "no participating adapters")
}

func TestCoordinator_Deregister(t *testing.T) {
	coordinator := NewCoordinator()
	assert.NoError(t, coordinator.Register(newRecordingAdapter("alpha")))

	coordinator.Deregister("alpha")
	assert.Empty(t, coordinator.Adapters())
	assert.NoError(t, coordinator.Register(newRecordingAdapter("alpha")))
}
