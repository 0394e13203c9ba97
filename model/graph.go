package model

import (
	"errors"
	"fmt"
	"sort"
)

var ErrNodeNotFound = errors.New("node not found")

// Graph is a read-only index over one flow version. Edges that reference
// unknown nodes are kept out of the adjacency lists; the validator reports them.
type Graph struct {
	flow  *AutomationFlow
	nodes map[string]*Node
	order []string
	out   map[string][]Edge
	in    map[string][]Edge
}

func NewGraph(fl *AutomationFlow) *Graph {
	g := &Graph{
		flow:  fl,
		nodes: make(map[string]*Node, len(fl.Nodes)),
		out:   make(map[string][]Edge),
		in:    make(map[string][]Edge),
	}
	for i := range fl.Nodes {
		n := &fl.Nodes[i]
		if _, ok := g.nodes[n.Id]; ok {
			continue
		}
		g.nodes[n.Id] = n
		g.order = append(g.order, n.Id)
	}
	for _, e := range fl.Edges {
		if _, ok := g.nodes[e.Source]; !ok {
			continue
		}
		if _, ok := g.nodes[e.Target]; !ok {
			continue
		}
		g.out[e.Source] = append(g.out[e.Source], e)
		g.in[e.Target] = append(g.in[e.Target], e)
	}
	return g
}

func (g *Graph) Flow() *AutomationFlow {
	return g.flow
}

func (g *Graph) Node(id string) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

func (g *Graph) OutEdges(id string) ([]Edge, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return g.out[id], nil
}

func (g *Graph) InEdges(id string) ([]Edge, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return g.in[id], nil
}

// Roots returns the trigger nodes.
func (g *Graph) Roots() []*Node {
	return g.byKind(TRIGGER)
}

// Sinks returns the outcome nodes.
func (g *Graph) Sinks() []*Node {
	return g.byKind(OUTCOME)
}

func (g *Graph) byKind(kind NodeKind) []*Node {
	var res []*Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.Kind == kind {
			res = append(res, n)
		}
	}
	return res
}

// Reachable returns the ids reachable from the given node, including itself, sorted.
func (g *Graph) Reachable(from string) ([]string, error) {
	if _, ok := g.nodes[from]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.out[cur] {
			if !seen[e.Target] {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	res := make([]string, 0, len(seen))
	for id := range seen {
		res = append(res, id)
	}
	sort.Strings(res)
	return res, nil
}
