package model

import (
	"fmt"
	"strings"
	"time"
)

type Severity string

const SEVERITY_LOW Severity = "low"
const SEVERITY_MEDIUM Severity = "medium"
const SEVERITY_HIGH Severity = "high"
const SEVERITY_CRITICAL Severity = "critical"

var severityRank = map[Severity]int{
	SEVERITY_LOW:      1,
	SEVERITY_MEDIUM:   2,
	SEVERITY_HIGH:     3,
	SEVERITY_CRITICAL: 4,
}

func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := severityRank[sev]; !ok {
		return "", fmt.Errorf("invalid severity %q", s)
	}
	return sev, nil
}

// Rank orders severities; the empty severity ranks below low.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Event is the inbound contract from the event source.
type Event struct {
	Id        string         `json:"id,omitempty"`
	Subtype   Subtype        `json:"subtype"`
	Subject   string         `json:"subject"`
	Timestamp time.Time      `json:"timestamp"`
	Value     *float64       `json:"value,omitempty"`
	Severity  Severity       `json:"severity,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// AsMap is the representation used by expressions and config templates.
func (e *Event) AsMap() map[string]any {
	m := map[string]any{
		"id":        e.Id,
		"subtype":   string(e.Subtype),
		"subject":   e.Subject,
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
		"severity":  string(e.Severity),
		"payload":   cloneMap(e.Payload),
	}
	if m["payload"] == nil {
		m["payload"] = map[string]any{}
	}
	if e.Value != nil {
		m["value"] = *e.Value
	}
	return m
}

func Float(v float64) *float64 {
	return &v
}
