package model

type NodeKind string

const TRIGGER NodeKind = "trigger"
const ACTION NodeKind = "action"
const OUTCOME NodeKind = "outcome"

type Subtype string

// trigger subtypes
const TRIGGER_LOG_ENTRY Subtype = "log_entry"
const TRIGGER_CONNECTIVITY_ISSUE Subtype = "connectivity_issue"
const TRIGGER_PACKET_LOSS Subtype = "packet_loss"
const TRIGGER_STORAGE_ISSUE Subtype = "storage_issue"
const TRIGGER_CPU_THRESHOLD Subtype = "cpu_threshold"
const TRIGGER_MEMORY_THRESHOLD Subtype = "memory_threshold"
const TRIGGER_SERVICE_DOWN Subtype = "service_down"
const TRIGGER_SCHEDULED Subtype = "scheduled"

// action subtypes
const ACTION_ALERT Subtype = "alert"
const ACTION_RESTART_SERVICE Subtype = "restart_service"
const ACTION_RUN_SCRIPT Subtype = "run_script"
const ACTION_SCALE_RESOURCES Subtype = "scale_resources"
const ACTION_SWITCH_REGION Subtype = "switch_region"
const ACTION_ENABLE_FAILOVER Subtype = "enable_failover"
const ACTION_UPDATE_POLICY Subtype = "update_policy"

// outcome subtypes
const OUTCOME_EMAIL Subtype = "email"
const OUTCOME_SMS Subtype = "sms"
const OUTCOME_PUSH_NOTIFICATION Subtype = "push_notification"
const OUTCOME_WEBHOOK Subtype = "webhook"
const OUTCOME_TICKET Subtype = "ticket"
const OUTCOME_LOG_EVENT Subtype = "log_event"

var subtypesByKind = map[NodeKind][]Subtype{
	TRIGGER: {
		TRIGGER_LOG_ENTRY, TRIGGER_CONNECTIVITY_ISSUE, TRIGGER_PACKET_LOSS, TRIGGER_STORAGE_ISSUE,
		TRIGGER_CPU_THRESHOLD, TRIGGER_MEMORY_THRESHOLD, TRIGGER_SERVICE_DOWN, TRIGGER_SCHEDULED,
	},
	ACTION: {
		ACTION_ALERT, ACTION_RESTART_SERVICE, ACTION_RUN_SCRIPT, ACTION_SCALE_RESOURCES,
		ACTION_SWITCH_REGION, ACTION_ENABLE_FAILOVER, ACTION_UPDATE_POLICY,
	},
	OUTCOME: {
		OUTCOME_EMAIL, OUTCOME_SMS, OUTCOME_PUSH_NOTIFICATION, OUTCOME_WEBHOOK, OUTCOME_TICKET, OUTCOME_LOG_EVENT,
	},
}

func (k NodeKind) Valid() bool {
	_, ok := subtypesByKind[k]
	return ok
}

// Subtypes returns the closed set of subtypes allowed for the kind.
func (k NodeKind) Subtypes() []Subtype {
	return append([]Subtype(nil), subtypesByKind[k]...)
}

// Allows reports whether st belongs to the kind's subtype enumeration.
func (k NodeKind) Allows(st Subtype) bool {
	for _, s := range subtypesByKind[k] {
		if s == st {
			return true
		}
	}
	return false
}

// IsTriggerSubtype is used by the matcher to reject events of unknown subtype.
func IsTriggerSubtype(st Subtype) bool {
	return TRIGGER.Allows(st)
}

type Node struct {
	Id       string         `json:"id"`
	Kind     NodeKind       `json:"kind"`
	Subtype  Subtype        `json:"subtype"`
	Config   map[string]any `json:"config,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Edge struct {
	Source   string         `json:"source"`
	Target   string         `json:"target"`
	Label    string         `json:"label,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (n Node) clone() Node {
	n.Config = cloneMap(n.Config)
	n.Metadata = cloneMap(n.Metadata)
	return n
}

func (e Edge) clone() Edge {
	e.Metadata = cloneMap(e.Metadata)
	return e
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
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return v
	}
}
