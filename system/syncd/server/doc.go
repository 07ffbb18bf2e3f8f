// Package server broadcasts document patches to subscribers.
//
// A [Registry] holds open streams, each bound to a live model by a
// [Binding]. While a stream has subscribers, a change tracker listens to the
// model and a worker goroutine runs diff-and-push cycles: each cycle builds
// the model's representation once, commits it to the snapshot store, and
// offers every subscriber the patch from its anchor to the new head.
//
// Notifications are coalesced. A notification arriving while a cycle runs
// requests exactly one further cycle, however many arrive.
//
// Subscribers deliver independently through a [Sink], one push at a time
// and each bounded by the push timeout. A subscriber's anchor advances only
// after its sink accepted the patch. A failed push drops the subscriber.
//
// The [Server] exposes a Registry over a JSON-RPC session protocol on TCP
// and over HTTP (snapshots, server-sent events, WebSocket and metrics).
package server
