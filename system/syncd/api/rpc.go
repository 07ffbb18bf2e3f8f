package api

import "errors"

// JSON-RPC methods of the session protocol.
const (
	MethodSubscribe   = "syncd/subscribe"
	MethodUnsubscribe = "syncd/unsubscribe"
	MethodSnapshot    = "syncd/snapshot"
	MethodChanges     = "syncd/changes"
	MethodStreams     = "syncd/streams"

	// NotifyPatch is sent by the server for each pushed patch.
	NotifyPatch = "syncd/patch"
	// NotifyClosed is sent by the server when it ends a subscription.
	NotifyClosed = "syncd/closed"
)

type SubscribeParams struct {
	StreamKey
	// Anchor is the snapshot the client holds; empty if none.
	Anchor SnapshotID `json:"anchor,omitempty"`
}

type SubscribeResult struct {
	Subscription string `json:"subscription"`
}

type UnsubscribeParams struct {
	StreamKey
	Subscription string `json:"subscription"`
}

type SnapshotParams struct {
	StreamKey
}

type ChangesParams struct {
	StreamKey
	From SnapshotID `json:"from,omitempty"`
}

type StreamsResult struct {
	Streams []StreamKey `json:"streams"`
}

// PatchEvent carries a pushed patch.
type PatchEvent struct {
	Subscription string    `json:"subscription"`
	Stream       StreamKey `json:"stream"`
	Patch        *Patch    `json:"patch"`
}

// ClosedEvent reports why the server ended a subscription.
type ClosedEvent struct {
	Subscription string    `json:"subscription"`
	Stream       StreamKey `json:"stream"`
	Error        *Error    `json:"error,omitempty"`
}

// AsError converts err to an *Error, wrapping errors of other types with an
// empty code.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Message: err.Error()}
}
