package model

import "time"

type AuditType string

const AUDIT_EVALUATION AuditType = "EVALUATION"
const AUDIT_MATCH_ERROR AuditType = "MATCH_ERROR"
const AUDIT_FIRED AuditType = "FIRED"
const AUDIT_QUEUED AuditType = "QUEUED"
const AUDIT_SUPPRESSED AuditType = "SUPPRESSED"
const AUDIT_OVERFLOW AuditType = "OVERFLOW"
const AUDIT_ACTION_ATTEMPT AuditType = "ACTION_ATTEMPT"
const AUDIT_ACTION_RESULT AuditType = "ACTION_RESULT"
const AUDIT_NODE_SKIPPED AuditType = "NODE_SKIPPED"
const AUDIT_OUTCOME_DISPATCH AuditType = "OUTCOME_DISPATCH"
const AUDIT_ESCALATION AuditType = "ESCALATION"
const AUDIT_EXECUTION_END AuditType = "EXECUTION_END"

type AuditEntry struct {
	Id          string         `json:"id"`
	Time        time.Time      `json:"time"`
	Type        AuditType      `json:"type"`
	FlowId      string         `json:"flowId,omitempty"`
	ExecutionId string         `json:"executionId,omitempty"`
	NodeId      string         `json:"nodeId,omitempty"`
	Subject     string         `json:"subject,omitempty"`
	EventRef    string         `json:"eventRef,omitempty"`
	Attempt     int            `json:"attempt,omitempty"`
	Status      string         `json:"status,omitempty"`
	Error       string         `json:"error,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}
