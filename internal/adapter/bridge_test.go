package adapter

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"appctl/internal/bus"
)

const (
	legacyDownloadType = bus.EventType("legacy.download.completed")
	modernTransferType = bus.EventType("modern.transfer.completed")
)

type legacyDownloadDone struct {
	File  string
	Bytes int
}

type modernTransferComplete struct {
	Path string
	Size int
}

func downloadBinding() Binding {
	return Binding{
		Legacy: legacyDownloadType,
		Modern: modernTransferType,
		ToModern: func(payload any) (any, error) {
			legacy, ok := payload.(legacyDownloadDone)
			if !ok {
				return nil, fmt.Errorf("unexpected legacy payload %T", payload)
			}
			return modernTransferComplete{Path: legacy.File, Size: legacy.Bytes}, nil
		},
		ToLegacy: func(payload any) (any, error) {
			modern, ok := payload.(modernTransferComplete)
			if !ok {
				return nil, fmt.Errorf("unexpected modern payload %T", payload)
			}
			return legacyDownloadDone{File: modern.Path, Bytes: modern.Size}, nil
		},
		Owner: "downloads",
	}
}

func TestBinding_Validate(t *testing.T) {
	assert.NoError(t, downloadBinding().Validate())

	missing := downloadBinding()
	missing.Legacy = ""
	assert.ErrorContains(t, missing.Validate(), "must name both")

	wrongNamespace := downloadBinding()
	wrongNamespace.Legacy = "component.ready"
	assert.ErrorContains(t, wrongNamespace.Validate(), "not in the legacy namespace")

	oneWay := downloadBinding()
	oneWay.ToLegacy = nil
	assert.ErrorContains(t, oneWay.Validate(), "both directions")

	unowned := downloadBinding()
	unowned.Owner = ""
	assert.ErrorContains(t, unowned.Validate(), "no owner")
}

// Translating legacy -> modern -> legacy with a well-formed binding pair
// reproduces the original payload.
func TestBinding_RoundTripSafe(t *testing.T) {
	binding := downloadBinding()
	original := legacyDownloadDone{File: "roadmap.pdf", Bytes: 731}

	modern, err := binding.ToModern(original)
	assert.NoError(t, err)

	back, err := binding.ToLegacy(modern)
	assert.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestPassthrough(t *testing.T) {
	binding := Passthrough("legacy.ui.refresh", "modern.ui.refresh", "ui")
	assert.NoError(t, binding.Validate())

	payload, err := binding.ToModern("as-is")
	assert.NoError(t, err)
	assert.Equal(t, "as-is", payload)
}

func TestBridge_RegisterRejectsCollisions(t *testing.T) {
	events := bus.NewEventBus()
	defer events.Close()
	bridge := NewBridge(events)

	assert.NoError(t, bridge.Register(downloadBinding()))

	sameLegacy := downloadBinding()
	sameLegacy.Modern = "modern.download.done"
	sameLegacy.Owner = "other"
	err := bridge.Register(sameLegacy)

	var collision *BindingCollisionError
	assert.ErrorAs(t, err, &collision)
	assert.Equal(t, legacyDownloadType, collision.EventType)
	assert.Equal(t, "downloads", collision.Existing)
	assert.Equal(t, "other", collision.Rejected)

	sameModern := downloadBinding()
	sameModern.Legacy = "legacy.transfer.done"
	sameModern.Owner = "other"
	err = bridge.Register(sameModern)
	assert.ErrorAs(t, err, &collision)
	assert.Equal(t, modernTransferType, collision.EventType)

	assert.Len(t, bridge.Bindings(), 1)
	assert.Equal(t, 1, bridge.GetMetrics().Bindings)
}

func TestBridge_TranslatesLegacyToModern(t *testing.T) {
	events := bus.NewEventBus()
	defer events.Close()
	bridge := NewBridge(events)
	assert.NoError(t, bridge.Register(downloadBinding()))

	sub := events.SubscribeChannel(bus.FilterByType(modernTransferType), 8)
	defer sub.Close()

	published := events.Publish(bus.NewEvent(legacyDownloadType, "downloader", legacyDownloadDone{File: "map.tiles", Bytes: 2048}))

	select {
	case translated := <-sub.Events():
		assert.Equal(t, modernTransferType, translated.Type)
		assert.Equal(t, modernTransferComplete{Path: "map.tiles", Size: 2048}, translated.Payload)
		assert.Equal(t, published.Sequence, translated.Sequence, "translation keeps the original sequence")
		assert.Equal(t, published.Correlation, translated.Correlation)
		assert.Equal(t, "downloader", translated.Source)
	case <-time.After(time.Second):
		t.Fatal("translated event never arrived")
	}

	assert.Equal(t, int64(1), bridge.GetMetrics().EventsTranslated)
}

func TestBridge_TranslatesModernToLegacy(t *testing.T) {
	events := bus.NewEventBus()
	defer events.Close()
	bridge := NewBridge(events)
	assert.NoError(t, bridge.Register(downloadBinding()))

	sub := events.SubscribeChannel(bus.FilterByType(legacyDownloadType), 8)
	defer sub.Close()

	events.Publish(bus.NewEvent(modernTransferType, "transfers", modernTransferComplete{Path: "map.tiles", Size: 512}))

	select {
	case translated := <-sub.Events():
		assert.Equal(t, legacyDownloadType, translated.Type)
		assert.Equal(t, legacyDownloadDone{File: "map.tiles", Bytes: 512}, translated.Payload)
	case <-time.After(time.Second):
		t.Fatal("translated event never arrived")
	}
}

// A republished translation must not be translated back: each original
// event crosses the bridge exactly once.
func TestBridge_SuppressesEcho(t *testing.T) {
	events := bus.NewEventBus()
	defer events.Close()
	bridge := NewBridge(events)
	assert.NoError(t, bridge.Register(downloadBinding()))

	var mu sync.Mutex
	legacySeen, modernSeen := 0, 0
	events.Subscribe(bus.FilterByType(legacyDownloadType), func(bus.Event) {
		mu.Lock()
		legacySeen++
		mu.Unlock()
	})
	events.Subscribe(bus.FilterByType(modernTransferType), func(bus.Event) {
		mu.Lock()
		modernSeen++
		mu.Unlock()
	})

	events.Publish(bus.NewEvent(legacyDownloadType, "downloader", legacyDownloadDone{File: "atlas.bin", Bytes: 64}))

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, legacySeen, "the legacy event must not echo back")
	assert.Equal(t, 1, modernSeen)

	metrics := bridge.GetMetrics()
	assert.Equal(t, int64(1), metrics.EventsTranslated)
	assert.Equal(t, int64(1), metrics.EventsSuppressed)
}

func TestBridge_UnboundTypesIgnored(t *testing.T) {
	events := bus.NewEventBus()
	defer events.Close()
	bridge := NewBridge(events)
	assert.NoError(t, bridge.Register(downloadBinding()))

	events.Publish(bus.NewEvent("legacy.session.expired", "session", nil))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(0), bridge.GetMetrics().EventsTranslated)
}

func TestBridge_TranslationErrorCounted(t *testing.T) {
	events := bus.NewEventBus()
	defer events.Close()
	bridge := NewBridge(events)
	assert.NoError(t, bridge.Register(downloadBinding()))

	sub := events.SubscribeChannel(bus.FilterByType(modernTransferType), 8)
	defer sub.Close()

	// Payload the binding cannot interpret.
	events.Publish(bus.NewEvent(legacyDownloadType, "downloader", "garbled"))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), bridge.GetMetrics().TranslationErrors)
	assert.Equal(t, int64(0), bridge.GetMetrics().EventsTranslated)

	select {
	case unexpected := <-sub.Events():
		t.Fatalf("no translation should be published, got %s", unexpected.Type)
	default:
	}
}

func TestBridge_DetachStopsTranslation(t *testing.T) {
	events := bus.NewEventBus()
	defer events.Close()
	bridge := NewBridge(events)
	assert.NoError(t, bridge.Register(downloadBinding()))

	bridge.Detach()
	events.Publish(bus.NewEvent(legacyDownloadType, "downloader", legacyDownloadDone{File: "late.bin", Bytes: 1}))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(0), bridge.GetMetrics().EventsTranslated)
	// Bindings stay readable after detach.
	assert.Len(t, bridge.Bindings(), 1)
}

func TestSeenWindow_BoundedEviction(t *testing.T) {
	window := newSeenWindow(2)

	window.add(1)
	window.add(2)
	window.add(3)

	assert.False(t, window.has(1), "oldest entry is evicted at capacity")
	assert.True(t, window.has(2))
	assert.True(t, window.has(3))

	window.add(3)
	assert.True(t, window.has(2), "re-adding a present entry must not evict")
}
