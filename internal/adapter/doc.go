// Package adapter keeps the legacy and modern halves of a migrating
// application in step: the Bridge translates events between their
// namespaces, and the Coordinator commits state transitions to both
// sides atomically.
//
// # Bridge
//
// The Bridge subscribes to both event namespaces and republishes each
// event it has a binding for, translated to the other side's type and
// payload shape. Republished events keep their original sequence number,
// and the bridge remembers recently forwarded sequences so its own
// republications are not translated back, which would loop forever.
//
//	bridge.Register(adapter.Binding{
//	    Legacy:   "legacy.download.completed",
//	    Modern:   "modern.transfer.completed",
//	    ToModern: toTransferEvent,
//	    ToLegacy: toDownloadEvent,
//	    Owner:    "downloads",
//	})
//
// Each event type belongs to at most one binding; a second registration
// for the same type is rejected with a BindingCollisionError naming the
// owner that got there first.
//
// # Coordinator
//
// The Coordinator runs a propose/apply protocol over the registered
// adapters. Every participant first vets the transition; any veto
// discards the attempt and nothing is applied. Only when all participants
// have accepted does the apply pass run. An apply failure after that
// point is reported as a DesyncError, because the sides may now disagree
// and the caller has to reconcile them.
package adapter
