// Package models defines the core domain models for the automation queue engine.
package models

import "strings"

// Reserved node markers. Nodes matching these are kept in stored graphs but
// excluded from submission payloads.
const (
	// PrivateNodePrefix marks node identifiers that carry editor-local state.
	PrivateNodePrefix = "_"

	// GroupMarkerClass is the class type of the marker node that holds group
	// layout metadata inside a stored graph.
	GroupMarkerClass = "MiniGroup"
)

// Node is one typed processing node in a workflow graph.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Graph maps node identifiers to nodes. A graph is submitted to the
// generation backend as a single unit.
type Graph map[string]*Node

// Clone returns a deep copy of the graph. Queued steps own their copy so
// later mutation never aliases a cached load of the same workflow.
func (g Graph) Clone() Graph {
	if g == nil {
		return nil
	}

	out := make(Graph, len(g))
	for id, node := range g {
		out[id] = node.Clone()
	}

	return out
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	return &Node{
		ClassType: n.ClassType,
		Inputs:    cloneMap(n.Inputs),
		Meta:      cloneMap(n.Meta),
	}
}

// IsSaveNode reports whether the node writes a final image to disk.
func (n *Node) IsSaveNode() bool {
	if n == nil {
		return false
	}

	return strings.Contains(n.ClassType, "Save") || n.ClassType == "Save Image"
}

// IsSampler reports whether the node is a sampler whose seed should be
// randomized on submission.
func (n *Node) IsSampler() bool {
	if n == nil {
		return false
	}

	return strings.HasPrefix(n.ClassType, "KSampler")
}

// HasSaveNode reports whether any node in the graph produces a final image.
// Only such graphs may expose the generated-image output selector.
func (g Graph) HasSaveNode() bool {
	for _, node := range g {
		if node.IsSaveNode() {
			return true
		}
	}

	return false
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return val
	}
}
