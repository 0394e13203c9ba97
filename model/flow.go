package model

import "time"

type AutomationFlow struct {
	Id                 string        `json:"id"`
	Name               string        `json:"name"`
	Description        string        `json:"description,omitempty"`
	Nodes              []Node        `json:"nodes"`
	Edges              []Edge        `json:"edges"`
	Enabled            bool          `json:"enabled"`
	Version            int           `json:"version"`
	EscalationDeadline time.Duration `json:"escalationDeadline,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy. Flows are shared by reference with running
// executions, so every mutation path works on a clone.
func (f *AutomationFlow) Clone() *AutomationFlow {
	if f == nil {
		return nil
	}
	c := *f
	c.Nodes = make([]Node, len(f.Nodes))
	for i := range f.Nodes {
		c.Nodes[i] = f.Nodes[i].clone()
	}
	c.Edges = make([]Edge, len(f.Edges))
	for i := range f.Edges {
		c.Edges[i] = f.Edges[i].clone()
	}
	return &c
}

// Triggers returns the trigger nodes in declaration order.
func (f *AutomationFlow) Triggers() []Node {
	var res []Node
	for _, n := range f.Nodes {
		if n.Kind == TRIGGER {
			res = append(res, n)
		}
	}
	return res
}
