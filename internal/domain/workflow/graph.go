package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Node is one state in a workflow graph.
type Node struct {
	ID          string `json:"id"`
	StateKey    string `json:"stateKey"`
	Label       string `json:"label"`
	IsInitial   bool   `json:"isInitial"`
	IsFinal     bool   `json:"isFinal"`
	SLAHours    *int   `json:"slaHours,omitempty"`
	Description string `json:"description,omitempty"`
}

// HasSLA reports whether the node carries a positive SLA target.
func (n Node) HasSLA() bool {
	return n.SLAHours != nil && *n.SLAHours > 0
}

// Edge is a directed, guarded transition between two nodes, invoked by an
// action key. GuardExpression is the condition grammar as JSON text; empty
// means the transition is always eligible.
type Edge struct {
	ID              string `json:"id"`
	Source          string `json:"source"`
	Target          string `json:"target"`
	ActionKey       string `json:"actionKey"`
	ActionLabel     string `json:"actionLabel"`
	GuardExpression string `json:"guardExpression,omitempty"`
	RequiresComment bool   `json:"requiresComment"`
	AutoAdvance     bool   `json:"autoAdvance"`
}

// HasGuard reports whether the edge carries a guard expression.
func (e Edge) HasGuard() bool {
	return e.GuardExpression != ""
}

// Graph is a workflow definition's directed graph of states and transitions.
// This struct is the persisted wire format: marshalling a parsed graph
// reproduces the input byte for byte up to JSON formatting.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ParseGraph decodes the persisted graph representation.
func ParseGraph(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse workflow graph: %w", err)
	}
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	return &g, nil
}

// Marshal encodes the graph to its persisted representation.
func (g *Graph) Marshal() ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow graph: %w", err)
	}
	return data, nil
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// InitialNode returns the entry node. When several nodes are flagged
// initial, the one with the lowest id wins; the tie-break is deterministic
// on purpose so reachability analysis and instance creation agree.
func (g *Graph) InitialNode() *Node {
	var candidates []*Node
	for i := range g.Nodes {
		if g.Nodes[i].IsInitial {
			candidates = append(candidates, &g.Nodes[i])
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0]
}

// OutgoingEdges returns all edges leaving the given node.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// ActionEdges returns the edges leaving nodeID that carry the given action
// key. A validated graph has at most one; callers must treat more than one
// as a configuration defect.
func (g *Graph) ActionEdges(nodeID, actionKey string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID && e.ActionKey == actionKey {
			out = append(out, e)
		}
	}
	return out
}

// AutoAdvanceEdges returns the auto-advance edges leaving the given node.
func (g *Graph) AutoAdvanceEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID && e.AutoAdvance {
			out = append(out, e)
		}
	}
	return out
}
