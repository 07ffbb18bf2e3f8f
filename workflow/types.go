package workflow

import (
	"fmt"
	"strings"
)

// State is the execution state of a node.
type State string

const (
	Idle       State = "idle"
	Configured State = "configured"
	Queued     State = "queued"
	Running    State = "running"
	Executed   State = "executed"
	Failed     State = "failed"
)

var states = []State{Idle, Configured, Queued, Running, Executed, Failed}

func ParseState(s string) (State, error) {
	for _, st := range states {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown node state %q", s)
}

// Next returns the state following s in an execution. Executed and Failed
// nodes go back to Configured.
func (s State) Next() State {
	switch s {
	case Idle:
		return Configured
	case Configured:
		return Queued
	case Queued:
		return Running
	case Running:
		return Executed
	default:
		return Configured
	}
}

type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

type Port struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Node is a workflow node. A node with a non nil Workflow is a metanode.
type Node struct {
	ID       string      `json:"id" yaml:"id"`
	Kind     string      `json:"kind" yaml:"kind"`
	Name     string      `json:"name,omitempty" yaml:"name,omitempty"`
	State    State       `json:"state,omitempty" yaml:"state,omitempty"`
	Position Position    `json:"position" yaml:"position"`
	Inputs   []Port      `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs  []Port      `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Workflow *Definition `json:"workflow,omitempty" yaml:"workflow,omitempty"`
}

func hasPort(ports []Port, name string) bool {
	for i := range ports {
		if ports[i].Name == name {
			return true
		}
	}
	return false
}

// Connection links an output port of Source to an input port of Dest.
type Connection struct {
	Source     string `json:"source" yaml:"source"`
	SourcePort string `json:"sourcePort" yaml:"sourcePort"`
	Dest       string `json:"dest" yaml:"dest"`
	DestPort   string `json:"destPort" yaml:"destPort"`
}

func (c Connection) String() string {
	return fmt.Sprintf("%s.%s->%s.%s", c.Source, c.SourcePort, c.Dest, c.DestPort)
}

func (c Connection) compare(o Connection) int {
	return strings.Compare(c.String(), o.String())
}

type Annotation struct {
	ID       string   `json:"id" yaml:"id"`
	Text     string   `json:"text" yaml:"text"`
	Position Position `json:"position" yaml:"position"`
}

// Definition is the serialized form of a workflow.
type Definition struct {
	Name        string       `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes       []Node       `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Connections []Connection `json:"connections,omitempty" yaml:"connections,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}
