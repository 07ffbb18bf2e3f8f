// Package libdiff computes and applies structural diffs between
// representations.
//
// # Usage
//
//	// Compute the edit script from one tree to another
//	ops := libdiff.Diff(from, to)
//
//	// Apply it
//	patched, err := libdiff.Apply(from, ops)
//
// An edit script is an ordered list of [Op] values in JSON patch form
// (RFC 6902). The order is significant: replacements come first, in
// document order, then removals deepest first, then additions shallowest
// first. With that order removal paths are expressed in the coordinates of
// the source tree and addition paths in those of the target tree, and the
// script can be applied op by op.
//
// # Related Packages
//
//   - github.com/signadot/docsync/ir - representation trees and paths
//   - github.com/signadot/docsync/system/syncd/api - patches carrying op lists
package libdiff
