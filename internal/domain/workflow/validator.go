package workflow

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/docuflow/docuflow/internal/domain/condition"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one diagnostic produced by Validate. NodeID/EdgeID localize the
// offending graph element when the check applies to one.
type Issue struct {
	Severity Severity `json:"type"`
	Message  string   `json:"message"`
	NodeID   string   `json:"nodeId,omitempty"`
	EdgeID   string   `json:"edgeId,omitempty"`
}

// ValidationResult aggregates all diagnostics of one validation pass.
// Warnings never affect IsValid.
type ValidationResult struct {
	IsValid  bool    `json:"isValid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Validate runs the full static analysis over a workflow graph. Every check
// runs regardless of earlier failures so the caller sees the complete
// diagnostic set in one pass.
//
// Checks, in order: non-empty graph, single entry point, terminal presence,
// isolated nodes, reachability from the entry node, unique state keys,
// unique (source, actionKey) pairs, cycle detection, per-node fields,
// per-edge fields.
func Validate(nodes []Node, edges []Edge) ValidationResult {
	var errs, warns []Issue

	errorf := func(nodeID, edgeID, format string, args ...interface{}) {
		errs = append(errs, Issue{Severity: SeverityError, Message: fmt.Sprintf(format, args...), NodeID: nodeID, EdgeID: edgeID})
	}
	warnf := func(nodeID, edgeID, format string, args ...interface{}) {
		warns = append(warns, Issue{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), NodeID: nodeID, EdgeID: edgeID})
	}

	// 1. Non-empty graph.
	if len(nodes) == 0 {
		errorf("", "", "workflow must contain at least one node")
	}

	// 2. Entry point: exactly one initial node expected. Zero is fatal,
	// several is only ambiguous (the lowest id wins at runtime).
	var initials []Node
	for _, n := range nodes {
		if n.IsInitial {
			initials = append(initials, n)
		}
	}
	if len(nodes) > 0 && len(initials) == 0 {
		errorf("", "", "no start node found")
	} else if len(initials) > 1 {
		warnf("", "", "multiple start nodes found")
	}

	// 3. Terminal presence. An open-ended workflow is unusual but legal.
	finals := 0
	for _, n := range nodes {
		if n.IsFinal {
			finals++
		}
	}
	if len(nodes) > 0 && finals == 0 {
		warnf("", "", "no end node found")
	}

	// 4. Isolated nodes.
	connected := make(map[string]bool, len(nodes))
	for _, e := range edges {
		connected[e.Source] = true
		connected[e.Target] = true
	}
	for _, n := range nodes {
		if len(nodes) > 1 && !connected[n.ID] {
			warnf(n.ID, "", "node %q is not connected to any other node", labelOf(n))
		}
	}

	// 5. Reachability from the entry node. With several initial nodes the
	// traversal is rooted at the lowest node id, matching InitialNode.
	if len(initials) > 0 {
		sort.Slice(initials, func(i, j int) bool { return initials[i].ID < initials[j].ID })
		start := initials[0]
		reachable := reachableFrom(start.ID, edges)
		for _, n := range nodes {
			if n.ID != start.ID && !reachable[n.ID] {
				warnf(n.ID, "", "node %q is not reachable from the start node", labelOf(n))
			}
		}
	}

	// 6. Unique state keys: one error per offending key.
	byStateKey := make(map[string][]string)
	for _, n := range nodes {
		if n.StateKey != "" {
			byStateKey[n.StateKey] = append(byStateKey[n.StateKey], n.ID)
		}
	}
	for _, key := range sortedKeys(byStateKey) {
		if len(byStateKey[key]) > 1 {
			errorf("", "", "duplicate state key %q", key)
		}
	}

	// 7. Unique action key per source node: one error per offending pair.
	type sourceAction struct {
		source, action string
	}
	byAction := make(map[sourceAction]int)
	var actionOrder []sourceAction
	for _, e := range edges {
		if e.ActionKey == "" {
			continue
		}
		k := sourceAction{e.Source, e.ActionKey}
		if byAction[k] == 0 {
			actionOrder = append(actionOrder, k)
		}
		byAction[k]++
	}
	for _, k := range actionOrder {
		if byAction[k] > 1 {
			errorf("", "", "duplicate action %q from node %q", k.action, sourceLabel(nodes, k.source))
		}
	}

	// 8. Cycle detection over the whole graph, not just the reachable part.
	if hasCycle(nodes, edges) {
		warnf("", "", "workflow contains a cycle (possible infinite loop)")
	}

	// 9. Per-node fields.
	for _, n := range nodes {
		if n.StateKey == "" {
			errorf(n.ID, "", "node %q has no state key", labelOf(n))
		}
		if n.Label == "" {
			errorf(n.ID, "", "node %q has no label", n.ID)
		}
		if n.SLAHours != nil && *n.SLAHours <= 0 {
			warnf(n.ID, "", "node %q has a non-positive SLA", labelOf(n))
		}
	}

	// 10. Per-edge fields.
	for _, e := range edges {
		if e.ActionKey == "" {
			errorf("", e.ID, "edge has no action key")
		}
		if e.ActionLabel == "" {
			errorf("", e.ID, "edge has no action label")
		}
		if e.GuardExpression != "" {
			if !json.Valid([]byte(e.GuardExpression)) {
				errorf("", e.ID, "edge guard expression is not valid JSON")
			} else if _, err := condition.ParseStrict([]byte(e.GuardExpression)); err != nil {
				// Valid JSON but not a well-formed condition. The lenient
				// evaluator tolerates it at runtime, so authoring only gets
				// a warning.
				warnf("", e.ID, "edge guard expression is not a well-formed condition: %v", err)
			}
		}
	}

	return ValidationResult{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
	}
}

func labelOf(n Node) string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

func sourceLabel(nodes []Node, id string) string {
	for _, n := range nodes {
		if n.ID == id {
			return labelOf(n)
		}
	}
	return id
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// reachableFrom walks outgoing edges breadth first.
func reachableFrom(startID string, edges []Edge) map[string]bool {
	reachable := make(map[string]bool)
	queue := []string{startID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if reachable[current] {
			continue
		}
		reachable[current] = true
		for _, e := range edges {
			if e.Source == current && !reachable[e.Target] {
				queue = append(queue, e.Target)
			}
		}
	}
	return reachable
}

// hasCycle runs a DFS with recursion-stack marking from every unvisited
// node, so cycles are found even in parts unreachable from the entry node.
func hasCycle(nodes []Node, edges []Edge) bool {
	visited := make(map[string]bool, len(nodes))
	inStack := make(map[string]bool, len(nodes))

	var dfs func(id string) bool
	dfs = func(id string) bool {
		if inStack[id] {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		inStack[id] = true
		for _, e := range edges {
			if e.Source == id && dfs(e.Target) {
				return true
			}
		}
		inStack[id] = false
		return false
	}

	for _, n := range nodes {
		if !visited[n.ID] && dfs(n.ID) {
			return true
		}
	}
	return false
}
