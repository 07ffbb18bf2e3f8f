// Package ir contains the immutable representation of a synchronized document.
//
// A representation is a JSON shaped tree of [Node] values. Trees are built
// once, for example by [FromAny] from a live model, and are never mutated
// afterwards, so they can be shared freely between snapshots, diffs and
// subscribers.
//
// Object fields are always kept sorted by key. Two trees built from the same
// content compare equal with [Equal] regardless of how they were constructed.
//
// # Documents
//
// A [Doc] pairs a root node with a type identifier. The type identifier
// names the shape of the representation (for example "workflow") and guards
// patches from being applied to a document of a different shape.
//
// # Paths
//
// [Path] addresses a node inside a tree using JSON pointer syntax (RFC 6901),
// e.g. "/nodes/3/state".
package ir
