package bus

import (
	"sync"
	"time"

	"appctl/pkg/logging"
)

// EventHandler is a function that processes events
type EventHandler func(Event)

// EventFilter is a function that determines if an event should be processed
type EventFilter func(Event) bool

// defaultQueueSize bounds the per-subscription delivery queue. Publishers
// never block; events beyond this backlog are dropped and counted.
const defaultQueueSize = 256

// EventSubscription represents a subscription to events. Each subscription
// owns a bounded queue; a dedicated pump goroutine drains it into the
// handler, so every subscriber observes events in publish order.
type EventSubscription struct {
	ID      string
	Filter  EventFilter
	Handler EventHandler

	queue  chan Event
	closed bool
	mu     sync.RWMutex
}

// Events returns the subscription's delivery channel. Only subscriptions
// created with SubscribeChannel should be consumed this way; handler
// subscriptions are drained by their pump goroutine.
func (s *EventSubscription) Events() <-chan Event {
	return s.queue
}

// Close closes the subscription. Queued events already accepted are still
// delivered before the pump goroutine exits.
func (s *EventSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

// IsClosed returns whether the subscription is closed
func (s *EventSubscription) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// offer enqueues the event without blocking. It returns false when the
// queue is full or the subscription is closed.
func (s *EventSubscription) offer(event Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- event:
		return true
	default:
		return false
	}
}

// pump drains the queue into the handler. A panicking handler is isolated
// here: it loses its own delivery but never affects the publisher or other
// subscribers.
func (s *EventSubscription) pump(onPanic func(subID string, event Event, r any)) {
	for event := range s.queue {
		s.invoke(event, onPanic)
	}
}

func (s *EventSubscription) invoke(event Event, onPanic func(subID string, event Event, r any)) {
	defer func() {
		if r := recover(); r != nil {
			onPanic(s.ID, event, r)
		}
	}()
	s.Handler(event)
}

// EventBus provides publish/subscribe functionality for events
type EventBus interface {
	// Publish delivers an event to all matching subscribers. It never
	// blocks: slow subscribers drop events once their queue is full.
	Publish(event Event) Event

	// Subscribe creates a subscription with a handler function. A nil
	// filter matches every event.
	Subscribe(filter EventFilter, handler EventHandler) *EventSubscription

	// SubscribeAll creates a handler subscription that receives every event.
	SubscribeAll(handler EventHandler) *EventSubscription

	// SubscribeChannel creates a subscription with a channel
	SubscribeChannel(filter EventFilter, bufferSize int) *EventSubscription

	// Unsubscribe removes a subscription
	Unsubscribe(subscription *EventSubscription)

	// GetMetrics returns event bus metrics
	GetMetrics() Metrics

	// Close closes the event bus and all subscriptions
	Close()
}

// Metrics tracks event bus performance
type Metrics struct {
	TotalSubscriptions  int
	ActiveSubscriptions int
	EventsPublished     int64
	EventsDelivered     int64
	EventsDropped       int64
	HandlerPanics       int64
	LastEventTime       time.Time
	EventsByType        map[EventType]int64
}

// DefaultEventBus is the default implementation of EventBus
type DefaultEventBus struct {
	subscriptions map[string]*EventSubscription
	metrics       Metrics
	sequence      uint64
	closed        bool
	mu            sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() EventBus {
	return &DefaultEventBus{
		subscriptions: make(map[string]*EventSubscription),
		metrics: Metrics{
			EventsByType: make(map[EventType]int64),
		},
	}
}

// Publish delivers an event to all matching subscribers and returns the
// event as delivered (with sequence, correlation and timestamp filled in).
func (eb *DefaultEventBus) Publish(event Event) Event {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return event
	}

	// Sequence numbers are bus-assigned and monotonic. A publisher that
	// already tagged a sequence (the bridge republishing a translation)
	// keeps it.
	if event.Sequence == 0 {
		eb.sequence++
		event.Sequence = eb.sequence
	}
	if event.Correlation == "" {
		event.Correlation = GenerateCorrelationID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Copy subscriptions so the lock is not held during delivery.
	subscriptionsCopy := make(map[string]*EventSubscription, len(eb.subscriptions))
	for k, v := range eb.subscriptions {
		subscriptionsCopy[k] = v
	}
	eb.mu.Unlock()

	delivered := 0
	dropped := 0

	for subID, subscription := range subscriptionsCopy {
		if subscription.IsClosed() {
			// Clean up closed subscriptions
			eb.mu.Lock()
			if _, exists := eb.subscriptions[subID]; exists {
				delete(eb.subscriptions, subID)
				eb.metrics.ActiveSubscriptions--
			}
			eb.mu.Unlock()
			continue
		}

		if subscription.Filter != nil && !subscription.Filter(event) {
			continue
		}

		if subscription.offer(event) {
			delivered++
		} else {
			dropped++
		}
	}

	eb.mu.Lock()
	eb.metrics.EventsPublished++
	eb.metrics.EventsByType[event.Type]++
	eb.metrics.LastEventTime = event.Timestamp
	eb.metrics.EventsDelivered += int64(delivered)
	eb.metrics.EventsDropped += int64(dropped)
	eb.mu.Unlock()

	if dropped > 0 {
		logging.Warn("EventBus", "Dropped event %s for %d slow subscriber(s)", event.Type, dropped)
	}

	return event
}

// Subscribe creates a subscription with a handler function
func (eb *DefaultEventBus) Subscribe(filter EventFilter, handler EventHandler) *EventSubscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil
	}

	subscription := &EventSubscription{
		ID:      GenerateCorrelationID() + "_sub",
		Filter:  filter,
		Handler: handler,
		queue:   make(chan Event, defaultQueueSize),
	}
	go subscription.pump(eb.handlerPanicked)

	eb.subscriptions[subscription.ID] = subscription
	eb.metrics.TotalSubscriptions++
	eb.metrics.ActiveSubscriptions++

	return subscription
}

// SubscribeAll creates a handler subscription that receives every event.
func (eb *DefaultEventBus) SubscribeAll(handler EventHandler) *EventSubscription {
	return eb.Subscribe(nil, handler)
}

// SubscribeChannel creates a subscription with a channel
func (eb *DefaultEventBus) SubscribeChannel(filter EventFilter, bufferSize int) *EventSubscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil
	}

	if bufferSize <= 0 {
		bufferSize = defaultQueueSize
	}

	subscription := &EventSubscription{
		ID:     GenerateCorrelationID() + "_sub",
		Filter: filter,
		queue:  make(chan Event, bufferSize),
	}

	eb.subscriptions[subscription.ID] = subscription
	eb.metrics.TotalSubscriptions++
	eb.metrics.ActiveSubscriptions++

	return subscription
}

// Unsubscribe removes a subscription
func (eb *DefaultEventBus) Unsubscribe(subscription *EventSubscription) {
	if subscription == nil {
		return
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.subscriptions[subscription.ID]; exists {
		subscription.Close()
		delete(eb.subscriptions, subscription.ID)
		eb.metrics.ActiveSubscriptions--
	}
}

// GetMetrics returns event bus metrics
func (eb *DefaultEventBus) GetMetrics() Metrics {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Return a copy to prevent external modification
	metrics := eb.metrics
	metrics.EventsByType = make(map[EventType]int64, len(eb.metrics.EventsByType))
	for k, v := range eb.metrics.EventsByType {
		metrics.EventsByType[k] = v
	}

	return metrics
}

// Close closes the event bus and all subscriptions
func (eb *DefaultEventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, subscription := range eb.subscriptions {
		subscription.Close()
	}

	eb.subscriptions = make(map[string]*EventSubscription)
	eb.metrics.ActiveSubscriptions = 0
}

func (eb *DefaultEventBus) handlerPanicked(subID string, event Event, r any) {
	eb.mu.Lock()
	eb.metrics.HandlerPanics++
	eb.mu.Unlock()
	logging.Error("EventBus", nil, "Subscriber %s panicked handling %s: %v", subID, event.Type, r)
}

// Common event filters

// FilterByType creates a filter that matches events of specific types
func FilterByType(eventTypes ...EventType) EventFilter {
	typeMap := make(map[EventType]bool)
	for _, t := range eventTypes {
		typeMap[t] = true
	}

	return func(event Event) bool {
		return typeMap[event.Type]
	}
}

// FilterByNamespace creates a filter that matches events whose type lives
// under one of the given namespaces
func FilterByNamespace(namespaces ...string) EventFilter {
	nsMap := make(map[string]bool)
	for _, ns := range namespaces {
		nsMap[ns] = true
	}

	return func(event Event) bool {
		return nsMap[event.Type.Namespace()]
	}
}

// FilterBySource creates a filter that matches events from specific sources
func FilterBySource(sources ...string) EventFilter {
	sourceMap := make(map[string]bool)
	for _, s := range sources {
		sourceMap[s] = true
	}

	return func(event Event) bool {
		return sourceMap[event.Source]
	}
}

// FilterByCorrelation creates a filter that matches events with a specific correlation ID
func FilterByCorrelation(correlationID string) EventFilter {
	return func(event Event) bool {
		return event.Correlation == correlationID
	}
}

// CombineFilters combines multiple filters with AND logic
func CombineFilters(filters ...EventFilter) EventFilter {
	return func(event Event) bool {
		for _, filter := range filters {
			if !filter(event) {
				return false
			}
		}
		return true
	}
}

// AnyFilter combines multiple filters with OR logic
func AnyFilter(filters ...EventFilter) EventFilter {
	return func(event Event) bool {
		for _, filter := range filters {
			if filter(event) {
				return true
			}
		}
		return false
	}
}
