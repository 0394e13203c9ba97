package model

import "time"

type ExecutionStatus string

const PENDING ExecutionStatus = "PENDING"
const RUNNING ExecutionStatus = "RUNNING"
const COMPLETED ExecutionStatus = "COMPLETED"
const FAILED ExecutionStatus = "FAILED"
const ESCALATED ExecutionStatus = "ESCALATED"

// Terminal reports whether the status ends an execution. ESCALATED is an
// in-flight status, branches keep running after it.
func (s ExecutionStatus) Terminal() bool {
	return s == COMPLETED || s == FAILED
}

type NodeStatus string

const NODE_PENDING NodeStatus = "PENDING"
const NODE_RUNNING NodeStatus = "RUNNING"
const NODE_SUCCEEDED NodeStatus = "SUCCEEDED"
const NODE_FAILED NodeStatus = "FAILED"
const NODE_SKIPPED NodeStatus = "SKIPPED"

func (s NodeStatus) Terminal() bool {
	return s == NODE_SUCCEEDED || s == NODE_FAILED || s == NODE_SKIPPED
}

type NodeOutcome struct {
	NodeId    string     `json:"nodeId"`
	Kind      NodeKind   `json:"kind"`
	Subtype   Subtype    `json:"subtype"`
	Status    NodeStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	StartedAt time.Time  `json:"startedAt,omitempty"`
	EndedAt   time.Time  `json:"endedAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type Execution struct {
	Id            string                  `json:"id"`
	FlowId        string                  `json:"flowId"`
	FlowVersion   int                     `json:"flowVersion"`
	TriggerNodeId string                  `json:"triggerNodeId"`
	Subject       string                  `json:"subject"`
	EventRef      string                  `json:"eventRef"`
	StartedAt     time.Time               `json:"startedAt"`
	EndedAt       time.Time               `json:"endedAt,omitempty"`
	Status        ExecutionStatus         `json:"status"`
	Escalated     bool                    `json:"escalated"`
	EscalatedAt   time.Time               `json:"escalatedAt,omitempty"`
	Nodes         map[string]*NodeOutcome `json:"nodes"`
}

// Copy returns a deep copy safe to hand to stores and callers.
func (e *Execution) Copy() *Execution {
	c := *e
	c.Nodes = make(map[string]*NodeOutcome, len(e.Nodes))
	for k, v := range e.Nodes {
		n := *v
		c.Nodes[k] = &n
	}
	return &c
}

// ExecutionContext is handed to action backends and outcome channels.
type ExecutionContext struct {
	ExecutionId   string
	FlowId        string
	FlowName      string
	FlowVersion   int
	TriggerNodeId string
	NodeId        string
	Subject       string
	Attempt       int
	Event         Event
}

// Data is the document config templates are resolved against.
func (c ExecutionContext) Data() map[string]any {
	return map[string]any{
		"event": c.Event.AsMap(),
		"flow": map[string]any{
			"id":      c.FlowId,
			"name":    c.FlowName,
			"version": c.FlowVersion,
		},
		"execution": map[string]any{
			"id":      c.ExecutionId,
			"trigger": c.TriggerNodeId,
			"subject": c.Subject,
		},
		"node": map[string]any{
			"id":      c.NodeId,
			"attempt": c.Attempt,
		},
	}
}

type ExecutionFilter struct {
	Status        ExecutionStatus
	Subject       string
	TriggerNodeId string
	Since         time.Time
	Until         time.Time
	Limit         int
}

// Accept applies every non-zero filter field.
func (f ExecutionFilter) Accept(e *Execution) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.TriggerNodeId != "" && e.TriggerNodeId != f.TriggerNodeId {
		return false
	}
	if !f.Since.IsZero() && e.StartedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.StartedAt.After(f.Until) {
		return false
	}
	return true
}
