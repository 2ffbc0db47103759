package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"appctl/internal/bus"
	"appctl/internal/registry"
)

// stubRuntime satisfies registry.Runtime for driving simulated inits
// directly.
type stubRuntime struct {
	events bus.EventBus
}

func (r stubRuntime) GetInstance(id string) (any, bool) { return nil, false }
func (r stubRuntime) GetEventBus() bus.EventBus         { return r.events }

func TestDescriptors_ConvertsDefinitions(t *testing.T) {
	manifest := Manifest{
		Components: []ComponentDefinition{
			{ID: "database", Criticality: "critical", Timeout: Duration(2 * time.Second), Init: BehaviorSpec{}},
			{
				ID:          "api",
				Criticality: "high",
				DependsOn:   []string{"database"},
				Init:        BehaviorSpec{},
				Fallback:    &BehaviorSpec{},
			},
		},
	}

	descriptors, err := Descriptors(manifest)
	assert.NoError(t, err)
	assert.Len(t, descriptors, 2)

	database := descriptors[0]
	assert.Equal(t, "database", database.ID)
	assert.Equal(t, registry.TierCritical, database.Tier)
	assert.Equal(t, 2*time.Second, database.Timeout)
	assert.NotNil(t, database.Init)
	assert.False(t, database.HasFallback())

	api := descriptors[1]
	assert.Equal(t, registry.TierHigh, api.Tier)
	assert.Equal(t, []string{"database"}, api.DependsOn)
	assert.True(t, api.HasFallback())
}

func TestDescriptors_UnknownCriticality(t *testing.T) {
	manifest := Manifest{
		Components: []ComponentDefinition{
			{ID: "api", Criticality: "optional", Init: BehaviorSpec{}},
		},
	}

	_, err := Descriptors(manifest)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `component "api"`)
}

func TestSimulatedInit_Succeeds(t *testing.T) {
	init := simulate("database", BehaviorSpec{}, "primary")

	instance, err := init(context.Background(), stubRuntime{})
	assert.NoError(t, err)
	assert.Equal(t, "database (primary)", instance)
}

func TestSimulatedInit_Delay(t *testing.T) {
	init := simulate("database", BehaviorSpec{Delay: Duration(50 * time.Millisecond)}, "primary")

	start := time.Now()
	_, err := init(context.Background(), stubRuntime{})
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSimulatedInit_DelayHonorsCancellation(t *testing.T) {
	init := simulate("database", BehaviorSpec{Delay: Duration(5 * time.Second)}, "primary")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := init(ctx, stubRuntime{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSimulatedInit_Fail(t *testing.T) {
	init := simulate("database", BehaviorSpec{Fail: true, FailWith: "connection refused"}, "primary")

	_, err := init(context.Background(), stubRuntime{})
	assert.EqualError(t, err, "connection refused")
}

func TestSimulatedInit_FailDefaultMessage(t *testing.T) {
	init := simulate("database", BehaviorSpec{Fail: true}, "primary")

	_, err := init(context.Background(), stubRuntime{})
	assert.EqualError(t, err, "simulated failure")
}

func TestSimulatedInit_Announce(t *testing.T) {
	events := bus.NewEventBus()
	defer events.Close()

	sub := events.SubscribeChannel(bus.FilterByType("modern.api.listening"), 4)
	defer events.Unsubscribe(sub)

	init := simulate("api", BehaviorSpec{Announce: "modern.api.listening"}, "primary")
	_, err := init(context.Background(), stubRuntime{events: events})
	assert.NoError(t, err)

	select {
	case event := <-sub.Events():
		assert.Equal(t, bus.EventType("modern.api.listening"), event.Type)
		assert.Equal(t, "api", event.Source)
	case <-time.After(time.Second):
		t.Fatal("announce event never arrived")
	}
}

func TestSimulatedFallback_DistinguishableInstance(t *testing.T) {
	manifest := Manifest{
		Components: []ComponentDefinition{
			{ID: "api", Criticality: "high", Init: BehaviorSpec{Fail: true}, Fallback: &BehaviorSpec{}},
		},
	}

	descriptors, err := Descriptors(manifest)
	assert.NoError(t, err)

	instance, err := descriptors[0].Fallback(context.Background(), stubRuntime{}, assert.AnError)
	assert.NoError(t, err)
	assert.Equal(t, "api (fallback)", instance)
}

func TestBindings_Passthrough(t *testing.T) {
	manifest := Manifest{
		Bridges: []BridgeDefinition{
			{Legacy: "legacy.cache.warmed", Modern: "modern.cache.warmed", Owner: "cache"},
			{Legacy: "legacy.files.synced", Modern: "modern.files.synced"},
		},
	}

	bindings := Bindings(manifest)
	assert.Len(t, bindings, 2)

	assert.Equal(t, bus.EventType("legacy.cache.warmed"), bindings[0].Legacy)
	assert.Equal(t, "cache", bindings[0].Owner)
	assert.NoError(t, bindings[0].Validate())

	// Missing owner falls back to a manifest attribution
	assert.Equal(t, "manifest", bindings[1].Owner)
	assert.NoError(t, bindings[1].Validate())

	// Passthrough translators hand the payload through unchanged
	payload := map[string]int{"files": 3}
	out, err := bindings[1].ToModern(payload)
	assert.NoError(t, err)
	assert.Equal(t, payload, out)
}
