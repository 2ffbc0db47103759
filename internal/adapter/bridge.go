package adapter

import (
	"sort"
	"sync"

	"appctl/internal/bus"
	"appctl/pkg/logging"
)

// DefaultDedupWindow is how many recently bridged sequences each direction
// remembers for echo suppression.
const DefaultDedupWindow = 1024

// BridgeMetrics tracks bridge activity.
type BridgeMetrics struct {
	Bindings          int
	EventsTranslated  int64
	EventsSuppressed  int64
	TranslationErrors int64
}

// Bridge keeps the legacy and modern event namespaces in sync. It
// subscribes to both sides of the bus; an event whose type has a binding is
// synchronously translated and republished on the other side, keeping the
// original sequence so downstream consumers can de-duplicate. The bridge
// remembers the sequences it republishes and drops them when they echo
// back, so a translation never re-translates.
type Bridge struct {
	events bus.EventBus

	mu               sync.Mutex
	byLegacy         map[bus.EventType]Binding
	byModern         map[bus.EventType]Binding
	suppressOnLegacy *seenWindow
	suppressOnModern *seenWindow
	metrics          BridgeMetrics

	legacySub *bus.EventSubscription
	modernSub *bus.EventSubscription
}

// NewBridge attaches a bridge to the bus. It starts translating as soon as
// bindings are registered.
func NewBridge(events bus.EventBus) *Bridge {
	b := &Bridge{
		events:           events,
		byLegacy:         make(map[bus.EventType]Binding),
		byModern:         make(map[bus.EventType]Binding),
		suppressOnLegacy: newSeenWindow(DefaultDedupWindow),
		suppressOnModern: newSeenWindow(DefaultDedupWindow),
	}
	b.legacySub = events.Subscribe(bus.FilterByNamespace(bus.NamespaceLegacy), b.handleLegacy)
	b.modernSub = events.Subscribe(bus.FilterByNamespace(bus.NamespaceModern), b.handleModern)
	return b
}

// Register adds a binding after validating it and checking neither of its
// event types is already bound. Translation must stay unambiguous: one
// legacy type maps to exactly one modern type and vice versa.
func (b *Bridge) Register(binding Binding) error {
	if err := binding.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.byLegacy[binding.Legacy]; ok {
		return &BindingCollisionError{EventType: binding.Legacy, Existing: existing.Owner, Rejected: binding.Owner}
	}
	if existing, ok := b.byModern[binding.Modern]; ok {
		return &BindingCollisionError{EventType: binding.Modern, Existing: existing.Owner, Rejected: binding.Owner}
	}

	b.byLegacy[binding.Legacy] = binding
	b.byModern[binding.Modern] = binding
	b.metrics.Bindings = len(b.byLegacy)

	logging.Debug("Bridge", "Registered binding %s <-> %s (owner %s)", binding.Legacy, binding.Modern, binding.Owner)
	return nil
}

// Bindings returns the registered bindings sorted by legacy type.
func (b *Bridge) Bindings() []Binding {
	b.mu.Lock()
	defer b.mu.Unlock()

	bindings := make([]Binding, 0, len(b.byLegacy))
	for _, binding := range b.byLegacy {
		bindings = append(bindings, binding)
	}
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].Legacy < bindings[j].Legacy
	})
	return bindings
}

// GetMetrics returns a copy of the bridge metrics.
func (b *Bridge) GetMetrics() BridgeMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// Detach releases the bridge's bus subscriptions. Registered bindings
// remain readable but no further events are translated.
func (b *Bridge) Detach() {
	b.mu.Lock()
	legacySub, modernSub := b.legacySub, b.modernSub
	b.legacySub, b.modernSub = nil, nil
	b.mu.Unlock()

	if legacySub != nil {
		b.events.Unsubscribe(legacySub)
	}
	if modernSub != nil {
		b.events.Unsubscribe(modernSub)
	}
	logging.Debug("Bridge", "Detached from event bus")
}

func (b *Bridge) handleLegacy(event bus.Event) {
	b.mu.Lock()
	if b.suppressOnLegacy.has(event.Sequence) {
		b.metrics.EventsSuppressed++
		b.mu.Unlock()
		return
	}
	binding, ok := b.byLegacy[event.Type]
	if !ok {
		b.mu.Unlock()
		return
	}
	// The republication will arrive on the modern side with this sequence.
	b.suppressOnModern.add(event.Sequence)
	b.mu.Unlock()

	payload, err := binding.ToModern(event.Payload)
	if err != nil {
		b.recordTranslationError(event, err)
		return
	}
	b.republish(event, binding.Modern, payload)
}

func (b *Bridge) handleModern(event bus.Event) {
	b.mu.Lock()
	if b.suppressOnModern.has(event.Sequence) {
		b.metrics.EventsSuppressed++
		b.mu.Unlock()
		return
	}
	binding, ok := b.byModern[event.Type]
	if !ok {
		b.mu.Unlock()
		return
	}
	b.suppressOnLegacy.add(event.Sequence)
	b.mu.Unlock()

	payload, err := binding.ToLegacy(event.Payload)
	if err != nil {
		b.recordTranslationError(event, err)
		return
	}
	b.republish(event, binding.Legacy, payload)
}

// republish emits the translated counterpart, keeping the original
// sequence, source, correlation, and timestamp.
func (b *Bridge) republish(original bus.Event, translatedType bus.EventType, payload any) {
	b.events.Publish(bus.Event{
		Type:        translatedType,
		Source:      original.Source,
		Sequence:    original.Sequence,
		Correlation: original.Correlation,
		Timestamp:   original.Timestamp,
		Payload:     payload,
	})

	b.mu.Lock()
	b.metrics.EventsTranslated++
	b.mu.Unlock()
}

func (b *Bridge) recordTranslationError(event bus.Event, err error) {
	b.mu.Lock()
	b.metrics.TranslationErrors++
	b.mu.Unlock()
	logging.Error("Bridge", err, "Translation of %s (seq %d) failed", event.Type, event.Sequence)
}

// seenWindow remembers a bounded set of recently seen sequences, evicting
// the oldest entry once full. Not goroutine-safe; callers hold the bridge
// lock.
type seenWindow struct {
	capacity int
	order    []uint64
	next     int
	present  map[uint64]bool
}

func newSeenWindow(capacity int) *seenWindow {
	return &seenWindow{
		capacity: capacity,
		order:    make([]uint64, 0, capacity),
		present:  make(map[uint64]bool, capacity),
	}
}

func (w *seenWindow) add(seq uint64) {
	if w.present[seq] {
		return
	}
	if len(w.order) < w.capacity {
		w.order = append(w.order, seq)
	} else {
		delete(w.present, w.order[w.next])
		w.order[w.next] = seq
		w.next = (w.next + 1) % w.capacity
	}
	w.present[seq] = true
}

func (w *seenWindow) has(seq uint64) bool {
	return w.present[seq]
}
