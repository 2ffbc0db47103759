// Package bus provides the in-process event bus shared by every appctl
// component.
//
// # Overview
//
// The bus carries startup lifecycle events (run started, phase started,
// component transitions) and arbitrary domain events that components
// publish during initialization. Publishing never blocks: each
// subscription owns a bounded queue, and a subscriber that falls behind
// drops events rather than stalling the publisher.
//
// # Ordering
//
// Every published event is stamped with a bus-wide monotonically
// increasing sequence number. A single subscriber observes events in
// publish order; ordering across different subscribers is not defined.
// Events that already carry a sequence (republications by the bridge)
// keep it, so consumers can deduplicate by sequence number.
//
// # Subscriptions
//
// Subscribers choose between a handler function, invoked on a pump
// goroutine owned by the subscription, and a channel:
//
//	sub := eventBus.Subscribe(bus.FilterByNamespace(bus.NamespaceModern), func(event bus.Event) {
//	    fmt.Println(event.Type)
//	})
//	defer eventBus.Unsubscribe(sub)
//
//	chSub := eventBus.SubscribeChannel(bus.FilterByType(bus.EventTypeStartupCompleted), 16)
//	defer eventBus.Unsubscribe(chSub)
//	event := <-chSub.Events()
//
// A panicking handler loses its own delivery only; the publisher and the
// other subscribers are unaffected.
//
// # Lifecycle
//
// The bus is owned by the orchestrator that created it. Closing the bus
// closes every subscription, so holders of channel subscriptions see
// their channels drain and close.
package bus
