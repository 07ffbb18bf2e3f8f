// Package workflow is a live workflow model: nodes with ports and an
// execution state, connections between ports, annotations and metadata.
//
// A [Workflow] is mutable and safe for concurrent use. Each mutation reports
// the [track.Category] it touches to the listeners registered with
// AddListener, which is how a syncd stream learns that its representation
// may have changed. [Workflow.Representation] builds the immutable
// [ir.Doc] published to observers.
//
// Metanodes carry a nested workflow. A nested workflow is a separate
// model with its own listeners, addressed by the path of metanode ids
// leading to it (see [Workflow.Walk]).
//
// Workflows are loaded from YAML or JSON files:
//
//	name: etl
//	nodes:
//	- id: read
//	  kind: csv-reader
//	  outputs: [{name: table}]
//	- id: clean
//	  kind: metanode
//	  inputs: [{name: in}]
//	  workflow:
//	    nodes: ...
//	connections:
//	- {source: read, sourcePort: table, dest: clean, destPort: in}
package workflow
