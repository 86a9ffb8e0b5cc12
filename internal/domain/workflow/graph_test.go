package workflow

import (
	"reflect"
	"testing"
)

func TestParseGraph(t *testing.T) {
	raw := `{
		"nodes": [
			{"id": "n1", "stateKey": "draft", "label": "Draft", "isInitial": true, "isFinal": false},
			{"id": "n2", "stateKey": "done", "label": "Done", "isInitial": false, "isFinal": true, "slaHours": 48}
		],
		"edges": [
			{"id": "e1", "source": "n1", "target": "n2", "actionKey": "finish", "actionLabel": "Finish",
			 "guardExpression": "{\"var\": \"ready\"}", "requiresComment": true, "autoAdvance": false}
		]
	}`

	g, err := ParseGraph([]byte(raw))
	if err != nil {
		t.Fatalf("ParseGraph failed: %v", err)
	}
	if len(g.Nodes) != 2 || len(g.Edges) != 1 {
		t.Fatalf("got %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}
	if !g.Nodes[1].HasSLA() || *g.Nodes[1].SLAHours != 48 {
		t.Errorf("SLA not decoded: %+v", g.Nodes[1])
	}
	if !g.Edges[0].HasGuard() || !g.Edges[0].RequiresComment {
		t.Errorf("edge fields not decoded: %+v", g.Edges[0])
	}
}

func TestGraphRoundTrip(t *testing.T) {
	sla := 24
	original := &Graph{
		Nodes: []Node{
			{ID: "n1", StateKey: "draft", Label: "Draft", IsInitial: true},
			{ID: "n2", StateKey: "done", Label: "Done", IsFinal: true, SLAHours: &sla, Description: "terminal"},
		},
		Edges: []Edge{
			{ID: "e1", Source: "n1", Target: "n2", ActionKey: "finish", ActionLabel: "Finish",
				GuardExpression: `{">": [{"var": "amount"}, 100]}`, RequiresComment: true, AutoAdvance: true},
		},
	}

	data, err := original.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	decoded, err := ParseGraph(data)
	if err != nil {
		t.Fatalf("ParseGraph failed: %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Errorf("round trip changed the graph:\n got %+v\nwant %+v", decoded, original)
	}

	// Empty collections survive the round trip as empty, not nil.
	data, err = (&Graph{Nodes: []Node{}, Edges: []Edge{}}).Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	decoded, err = ParseGraph(data)
	if err != nil {
		t.Fatalf("ParseGraph failed: %v", err)
	}
	if decoded.Nodes == nil || decoded.Edges == nil || len(decoded.Nodes) != 0 || len(decoded.Edges) != 0 {
		t.Errorf("empty graph round trip = %+v, want empty collections", decoded)
	}
}

func TestParseGraphDefaults(t *testing.T) {
	g, err := ParseGraph([]byte(`{}`))
	if err != nil {
		t.Fatalf("ParseGraph failed: %v", err)
	}
	if g.Nodes == nil || g.Edges == nil {
		t.Error("missing collections must decode as empty, not nil")
	}

	if _, err := ParseGraph([]byte(`not json`)); err == nil {
		t.Error("invalid JSON should fail")
	}
}

func TestInitialNodeTieBreak(t *testing.T) {
	g := &Graph{Nodes: []Node{
		{ID: "z9", IsInitial: true},
		{ID: "a1", IsInitial: true},
		{ID: "m5", IsInitial: false},
	}}

	initial := g.InitialNode()
	if initial == nil || initial.ID != "a1" {
		t.Errorf("InitialNode = %+v, want the lowest id a1", initial)
	}

	empty := &Graph{}
	if empty.InitialNode() != nil {
		t.Error("graph without initial nodes should return nil")
	}
}

func TestEdgeQueries(t *testing.T) {
	g := &Graph{
		Nodes: []Node{{ID: "n1"}, {ID: "n2"}, {ID: "n3"}},
		Edges: []Edge{
			{ID: "e1", Source: "n1", Target: "n2", ActionKey: "approve"},
			{ID: "e2", Source: "n1", Target: "n3", ActionKey: "reject"},
			{ID: "e3", Source: "n2", Target: "n3", ActionKey: "approve", AutoAdvance: true},
		},
	}

	if got := g.OutgoingEdges("n1"); len(got) != 2 {
		t.Errorf("OutgoingEdges(n1) = %d, want 2", len(got))
	}
	if got := g.ActionEdges("n1", "approve"); len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("ActionEdges(n1, approve) = %+v, want e1", got)
	}
	if got := g.ActionEdges("n3", "approve"); len(got) != 0 {
		t.Errorf("ActionEdges(n3, approve) = %+v, want none", got)
	}
	if got := g.AutoAdvanceEdges("n2"); len(got) != 1 || got[0].ID != "e3" {
		t.Errorf("AutoAdvanceEdges(n2) = %+v, want e3", got)
	}
	if n := g.NodeByID("n2"); n == nil || n.ID != "n2" {
		t.Errorf("NodeByID(n2) = %+v", n)
	}
	if g.NodeByID("nope") != nil {
		t.Error("NodeByID(nope) should be nil")
	}
}
