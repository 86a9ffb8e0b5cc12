package workflow

import (
	"strings"
	"testing"
)

func node(id, stateKey, label string, initial, final bool) Node {
	return Node{ID: id, StateKey: stateKey, Label: label, IsInitial: initial, IsFinal: final}
}

func edge(id, source, target, actionKey string) Edge {
	return Edge{ID: id, Source: source, Target: target, ActionKey: actionKey, ActionLabel: actionKey}
}

func linearGraph() ([]Node, []Edge) {
	nodes := []Node{
		node("n1", "draft", "Draft", true, false),
		node("n2", "review", "Review", false, false),
		node("n3", "done", "Done", false, true),
	}
	edges := []Edge{
		edge("e1", "n1", "n2", "submit"),
		edge("e2", "n2", "n3", "approve"),
	}
	return nodes, edges
}

func countMessages(issues []Issue, substr string) int {
	count := 0
	for _, issue := range issues {
		if strings.Contains(issue.Message, substr) {
			count++
		}
	}
	return count
}

func TestValidateHappyPath(t *testing.T) {
	nodes, edges := linearGraph()
	result := Validate(nodes, edges)

	if !result.IsValid {
		t.Fatalf("valid graph rejected: %+v", result.Errors)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", result.Warnings)
	}
}

func TestValidateEmptyGraph(t *testing.T) {
	result := Validate(nil, nil)
	if result.IsValid {
		t.Fatal("empty graph should be invalid")
	}
	if countMessages(result.Errors, "at least one node") != 1 {
		t.Errorf("missing empty-graph error: %+v", result.Errors)
	}
	// The start-node check must not also fire on an empty graph.
	if countMessages(result.Errors, "no start node") != 0 {
		t.Errorf("start-node error should not fire on an empty graph: %+v", result.Errors)
	}
}

func TestValidateStartAndEndNodes(t *testing.T) {
	nodes, edges := linearGraph()

	t.Run("missing start is an error", func(t *testing.T) {
		ns := append([]Node{}, nodes...)
		ns[0].IsInitial = false
		result := Validate(ns, edges)
		if result.IsValid || countMessages(result.Errors, "no start node") != 1 {
			t.Errorf("missing start node not reported: %+v", result.Errors)
		}
	})

	t.Run("multiple starts is a warning", func(t *testing.T) {
		ns := append([]Node{}, nodes...)
		ns[1].IsInitial = true
		result := Validate(ns, edges)
		if !result.IsValid {
			t.Errorf("multiple starts must not invalidate: %+v", result.Errors)
		}
		if countMessages(result.Warnings, "multiple start nodes") != 1 {
			t.Errorf("multiple-start warning missing: %+v", result.Warnings)
		}
	})

	t.Run("missing end is a warning", func(t *testing.T) {
		ns := append([]Node{}, nodes...)
		ns[2].IsFinal = false
		result := Validate(ns, edges)
		if !result.IsValid {
			t.Errorf("missing end must not invalidate: %+v", result.Errors)
		}
		if countMessages(result.Warnings, "no end node") != 1 {
			t.Errorf("no-end warning missing: %+v", result.Warnings)
		}
	})
}

func TestValidateIsolationAndReachability(t *testing.T) {
	nodes, edges := linearGraph()
	nodes = append(nodes, node("n4", "orphan", "Orphan", false, false))

	result := Validate(nodes, edges)
	if !result.IsValid {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if countMessages(result.Warnings, "not connected") != 1 {
		t.Errorf("isolation warning missing: %+v", result.Warnings)
	}
	if countMessages(result.Warnings, "not reachable") != 1 {
		t.Errorf("reachability warning missing: %+v", result.Warnings)
	}
}

func TestValidateReachabilityRootedAtLowestInitial(t *testing.T) {
	// Two initial nodes; traversal must start at the lexically lowest id,
	// matching the runtime entry choice.
	nodes := []Node{
		node("a1", "start_a", "Start A", true, false),
		node("b1", "start_b", "Start B", true, false),
		node("c1", "end", "End", false, true),
	}
	edges := []Edge{
		edge("e1", "a1", "c1", "go"),
		edge("e2", "b1", "a1", "go"),
	}

	result := Validate(nodes, edges)
	// b1 is not reachable from a1.
	if countMessages(result.Warnings, "not reachable") != 1 {
		t.Errorf("want exactly one reachability warning rooted at a1: %+v", result.Warnings)
	}
	for _, w := range result.Warnings {
		if strings.Contains(w.Message, "not reachable") && w.NodeID != "b1" {
			t.Errorf("reachability warning on %q, want b1", w.NodeID)
		}
	}
}

func TestValidateDuplicateStateKeys(t *testing.T) {
	nodes, edges := linearGraph()
	nodes = append(nodes,
		node("n4", "draft", "Draft Again", false, false),
		node("n5", "draft", "Draft Thrice", false, false),
	)
	edges = append(edges, edge("e3", "n3", "n4", "reopen"), edge("e4", "n4", "n5", "again"))

	result := Validate(nodes, edges)
	if result.IsValid {
		t.Fatal("duplicate state keys should be invalid")
	}
	// One error per offending key, not per offending node.
	if got := countMessages(result.Errors, "duplicate state key"); got != 1 {
		t.Errorf("duplicate state key errors = %d, want 1", got)
	}
}

func TestValidateDuplicateActions(t *testing.T) {
	nodes, edges := linearGraph()
	edges = append(edges,
		edge("e3", "n1", "n3", "submit"),
		edge("e4", "n1", "n2", "submit"),
	)

	result := Validate(nodes, edges)
	if result.IsValid {
		t.Fatal("duplicate (source, action) pairs should be invalid")
	}
	if got := countMessages(result.Errors, "duplicate action"); got != 1 {
		t.Errorf("duplicate action errors = %d, want 1", got)
	}
}

func TestValidateCycleIsWarning(t *testing.T) {
	nodes, edges := linearGraph()
	edges = append(edges, edge("e3", "n2", "n1", "return"))

	result := Validate(nodes, edges)
	if !result.IsValid {
		t.Errorf("cycle must not invalidate the graph: %+v", result.Errors)
	}
	if countMessages(result.Warnings, "cycle") != 1 {
		t.Errorf("cycle warning missing: %+v", result.Warnings)
	}
}

func TestValidateCycleInUnreachablePart(t *testing.T) {
	nodes, edges := linearGraph()
	nodes = append(nodes,
		node("x1", "island_a", "Island A", false, false),
		node("x2", "island_b", "Island B", false, false),
	)
	edges = append(edges,
		edge("e3", "x1", "x2", "swap"),
		edge("e4", "x2", "x1", "swap"),
	)

	result := Validate(nodes, edges)
	if countMessages(result.Warnings, "cycle") != 1 {
		t.Errorf("cycle in unreachable subgraph not detected: %+v", result.Warnings)
	}
}

func TestValidateNodeFields(t *testing.T) {
	sla := -2
	nodes := []Node{
		{ID: "n1", StateKey: "", Label: "", IsInitial: true},
		{ID: "n2", StateKey: "ok", Label: "OK", IsFinal: true, SLAHours: &sla},
	}
	edges := []Edge{edge("e1", "n1", "n2", "go")}

	result := Validate(nodes, edges)
	if result.IsValid {
		t.Fatal("missing node fields should be invalid")
	}
	if countMessages(result.Errors, "no state key") != 1 {
		t.Errorf("state key error missing: %+v", result.Errors)
	}
	if countMessages(result.Errors, "no label") != 1 {
		t.Errorf("label error missing: %+v", result.Errors)
	}
	if countMessages(result.Warnings, "non-positive SLA") != 1 {
		t.Errorf("SLA warning missing: %+v", result.Warnings)
	}
}

func TestValidateEdgeFields(t *testing.T) {
	nodes, _ := linearGraph()

	t.Run("missing action key and label", func(t *testing.T) {
		edges := []Edge{
			{ID: "e1", Source: "n1", Target: "n2"},
			edge("e2", "n2", "n3", "approve"),
		}
		result := Validate(nodes, edges)
		if result.IsValid {
			t.Fatal("edge without action key should be invalid")
		}
		if countMessages(result.Errors, "no action key") != 1 ||
			countMessages(result.Errors, "no action label") != 1 {
			t.Errorf("edge field errors missing: %+v", result.Errors)
		}
	})

	t.Run("guard not valid JSON is an error", func(t *testing.T) {
		edges := []Edge{
			{ID: "e1", Source: "n1", Target: "n2", ActionKey: "go", ActionLabel: "Go", GuardExpression: "{{"},
			edge("e2", "n2", "n3", "approve"),
		}
		result := Validate(nodes, edges)
		if result.IsValid || countMessages(result.Errors, "not valid JSON") != 1 {
			t.Errorf("invalid JSON guard not reported: %+v", result.Errors)
		}
	})

	t.Run("guard valid JSON but ill-formed is a warning", func(t *testing.T) {
		edges := []Edge{
			{ID: "e1", Source: "n1", Target: "n2", ActionKey: "go", ActionLabel: "Go", GuardExpression: `{"between": [1, 2]}`},
			edge("e2", "n2", "n3", "approve"),
		}
		result := Validate(nodes, edges)
		if !result.IsValid {
			t.Errorf("ill-formed guard must not invalidate: %+v", result.Errors)
		}
		if countMessages(result.Warnings, "well-formed condition") != 1 {
			t.Errorf("ill-formed guard warning missing: %+v", result.Warnings)
		}
	})

	t.Run("well-formed guard passes", func(t *testing.T) {
		edges := []Edge{
			{ID: "e1", Source: "n1", Target: "n2", ActionKey: "go", ActionLabel: "Go", GuardExpression: `{">": [{"var": "amount"}, 100]}`},
			edge("e2", "n2", "n3", "approve"),
		}
		result := Validate(nodes, edges)
		if !result.IsValid || len(result.Warnings) != 0 {
			t.Errorf("well-formed guard should produce no diagnostics: errors=%+v warnings=%+v", result.Errors, result.Warnings)
		}
	})
}
