// Package api defines the values exchanged between the synchronization
// engine and its clients: stream keys, snapshots, patches and errors.
//
// # Patches
//
// A [Patch] moves a client from one snapshot of a stream to another. Its
// wire form is
//
//	{"fromSnapshotId": "<id>|null", "toSnapshotId": "<id>", "targetTypeId": "<type>",
//	 "ops": [{"op": "replace", "path": "/nodes/0/state", "value": "EXECUTED"}]}
//
// A patch without toSnapshotId (and without targetTypeId) and with an empty
// op list is the no-op patch: nothing changed since the client's anchor.
//
// # Errors
//
// Errors carry a code; use errors.Is with the sentinels in this package:
//
//	if errors.Is(err, api.ErrUnknownAnchor) {
//		// refetch a full snapshot
//	}
package api
