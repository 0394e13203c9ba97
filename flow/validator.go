package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mohitkumar/autoflow/model"
)

type Rule string

const RULE_STRUCTURE Rule = "STRUCTURE"
const RULE_EDGE_REFERENCE Rule = "EDGE_REFERENCE"
const RULE_EDGE_KIND Rule = "EDGE_KIND"
const RULE_CYCLE Rule = "CYCLE"
const RULE_REACHABILITY Rule = "REACHABILITY"
const RULE_CONFIG Rule = "CONFIG"

type Violation struct {
	Rule    Rule     `json:"rule"`
	NodeIds []string `json:"nodeIds,omitempty"`
	Message string   `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

type ValidationError struct {
	FlowId     string      `json:"flowId"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("flow %s is invalid: %s", e.FlowId, strings.Join(msgs, "; "))
}

// Has reports whether a violation of the given rule was found.
func (e *ValidationError) Has(rule Rule) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

type validation struct {
	fl         *model.AutomationFlow
	nodes      map[string]*model.Node
	edges      []model.Edge
	violations []Violation
}

func (v *validation) add(rule Rule, ids []string, format string, args ...any) {
	v.violations = append(v.violations, Violation{Rule: rule, NodeIds: ids, Message: fmt.Sprintf(format, args...)})
}

// Validate runs every structural and configuration check and returns nil or
// a *ValidationError listing all violations.
func Validate(fl *model.AutomationFlow) error {
	v := &validation{fl: fl, nodes: make(map[string]*model.Node)}
	v.checkNodes()
	v.checkEdgeReferences()
	v.checkEdgeKinds()
	v.checkCycles()
	v.checkReachability()
	v.checkConfig()
	if len(v.violations) == 0 {
		return nil
	}
	return &ValidationError{FlowId: fl.Id, Violations: v.violations}
}

func (v *validation) checkNodes() {
	if len(v.fl.Nodes) == 0 {
		v.add(RULE_STRUCTURE, nil, "flow has no nodes")
	}
	for i := range v.fl.Nodes {
		n := &v.fl.Nodes[i]
		if n.Id == "" {
			v.add(RULE_STRUCTURE, nil, "node at index %d has no id", i)
			continue
		}
		if _, ok := v.nodes[n.Id]; ok {
			v.add(RULE_STRUCTURE, []string{n.Id}, "duplicate node id %s", n.Id)
			continue
		}
		if !n.Kind.Valid() {
			v.add(RULE_STRUCTURE, []string{n.Id}, "node %s has unknown kind %q", n.Id, n.Kind)
		} else if !n.Kind.Allows(n.Subtype) {
			v.add(RULE_STRUCTURE, []string{n.Id}, "node %s: subtype %q is not a valid %s subtype", n.Id, n.Subtype, n.Kind)
		}
		v.nodes[n.Id] = n
	}
}

func (v *validation) checkEdgeReferences() {
	for _, e := range v.fl.Edges {
		_, srcOk := v.nodes[e.Source]
		_, dstOk := v.nodes[e.Target]
		if !srcOk || !dstOk {
			var missing []string
			if !srcOk {
				missing = append(missing, e.Source)
			}
			if !dstOk {
				missing = append(missing, e.Target)
			}
			v.add(RULE_EDGE_REFERENCE, missing, "edge %s -> %s references unknown node(s) %s", e.Source, e.Target, strings.Join(missing, ", "))
			continue
		}
		v.edges = append(v.edges, e)
	}
}

func (v *validation) checkEdgeKinds() {
	for _, e := range v.edges {
		src, dst := v.nodes[e.Source], v.nodes[e.Target]
		if src.Kind == model.OUTCOME {
			v.add(RULE_EDGE_KIND, []string{src.Id, dst.Id}, "edge %s -> %s leaves outcome node %s", e.Source, e.Target, src.Id)
		}
		if dst.Kind == model.TRIGGER {
			v.add(RULE_EDGE_KIND, []string{src.Id, dst.Id}, "edge %s -> %s enters trigger node %s", e.Source, e.Target, dst.Id)
		}
	}
}

func (v *validation) adjacency() map[string][]string {
	adj := make(map[string][]string)
	for _, e := range v.edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	return adj
}

const (
	white = iota
	grey
	black
)

// checkCycles is a three colour DFS. Each back edge yields one violation
// carrying the node ids on the cycle in traversal order.
func (v *validation) checkCycles() {
	adj := v.adjacency()
	color := make(map[string]int, len(v.nodes))
	var stack []string
	reported := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		stack = append(stack, id)
		for _, next := range adj[id] {
			switch color[next] {
			case white:
				visit(next)
			case grey:
				start := 0
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				key := cycleKey(cycle)
				if !reported[key] {
					reported[key] = true
					v.add(RULE_CYCLE, cycle, "cycle detected: %s -> %s", strings.Join(cycle, " -> "), next)
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range v.nodeOrder() {
		if color[id] == white {
			visit(id)
		}
	}
}

func cycleKey(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func (v *validation) nodeOrder() []string {
	ids := make([]string, 0, len(v.nodes))
	for i := range v.fl.Nodes {
		n := &v.fl.Nodes[i]
		if v.nodes[n.Id] == n {
			ids = append(ids, n.Id)
		}
	}
	return ids
}

func (v *validation) checkReachability() {
	adj := v.adjacency()
	fromTriggers := make(map[string]bool)
	for _, id := range v.nodeOrder() {
		n := v.nodes[id]
		if n.Kind != model.TRIGGER {
			continue
		}
		reach := reachable(adj, id)
		hasOutcome := false
		for r := range reach {
			fromTriggers[r] = true
			if v.nodes[r].Kind == model.OUTCOME {
				hasOutcome = true
			}
		}
		if len(adj[id]) == 0 {
			v.add(RULE_REACHABILITY, []string{id}, "trigger %s has no outgoing edge", id)
		} else if !hasOutcome {
			v.add(RULE_REACHABILITY, []string{id}, "trigger %s reaches no outcome", id)
		}
	}
	for _, id := range v.nodeOrder() {
		n := v.nodes[id]
		if n.Kind == model.TRIGGER || fromTriggers[id] {
			continue
		}
		v.add(RULE_REACHABILITY, []string{id}, "%s node %s is not reachable from any trigger", n.Kind, id)
	}
}

func reachable(adj map[string][]string, from string) map[string]bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

func (v *validation) checkConfig() {
	for _, id := range v.nodeOrder() {
		n := v.nodes[id]
		if !n.Kind.Allows(n.Subtype) {
			continue
		}
		for _, problem := range CheckConfig(n.Kind, n.Subtype, n.Config) {
			v.add(RULE_CONFIG, []string{id}, "node %s: %s", id, problem)
		}
	}
}
