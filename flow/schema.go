package flow

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/dop251/goja"
	"github.com/mohitkumar/autoflow/model"
	"github.com/robfig/cron/v3"
)

type ParamType string

const PARAM_NUMBER ParamType = "number"
const PARAM_INTEGER ParamType = "integer"
const PARAM_DURATION ParamType = "duration"
const PARAM_STRING ParamType = "string"
const PARAM_SEVERITY ParamType = "severity"
const PARAM_REGEX ParamType = "regex"
const PARAM_CRON ParamType = "cron"
const PARAM_URL ParamType = "url"
const PARAM_BOOL ParamType = "bool"
const PARAM_EXPRESSION ParamType = "expression"

type ParamSpec struct {
	Name     string
	Type     ParamType
	Required bool
	Min      *float64
	Max      *float64
	// Positive rejects zero as well as negative values.
	Positive bool
}

func bound(v float64) *float64 {
	return &v
}

var triggerCommon = []ParamSpec{
	{Name: "subject", Type: PARAM_STRING},
	{Name: "filter", Type: PARAM_EXPRESSION},
}

var actionCommon = []ParamSpec{
	{Name: "timeout", Type: PARAM_DURATION, Positive: true},
	{Name: "retries", Type: PARAM_INTEGER, Min: bound(0), Max: bound(10)},
	{Name: "required", Type: PARAM_BOOL},
}

var outcomeCommon = []ParamSpec{
	{Name: "timeout", Type: PARAM_DURATION, Positive: true},
}

var thresholdParams = []ParamSpec{
	{Name: "threshold", Type: PARAM_NUMBER, Required: true, Min: bound(0), Max: bound(100)},
	{Name: "duration", Type: PARAM_DURATION, Required: true, Positive: true},
}

var severityParams = []ParamSpec{
	{Name: "severity", Type: PARAM_SEVERITY},
}

var schemas = map[model.Subtype][]ParamSpec{
	model.TRIGGER_LOG_ENTRY: {
		{Name: "pattern", Type: PARAM_REGEX, Required: true},
		{Name: "field", Type: PARAM_STRING},
		{Name: "level", Type: PARAM_SEVERITY},
	},
	model.TRIGGER_CONNECTIVITY_ISSUE: severityParams,
	model.TRIGGER_SERVICE_DOWN:       severityParams,
	model.TRIGGER_STORAGE_ISSUE:      severityParams,
	model.TRIGGER_CPU_THRESHOLD:      thresholdParams,
	model.TRIGGER_MEMORY_THRESHOLD:   thresholdParams,
	model.TRIGGER_PACKET_LOSS: {
		{Name: "threshold", Type: PARAM_NUMBER, Required: true, Min: bound(0), Max: bound(100)},
		{Name: "duration", Type: PARAM_DURATION, Positive: true},
	},
	model.TRIGGER_SCHEDULED: {
		{Name: "cron", Type: PARAM_CRON, Required: true},
	},

	model.ACTION_ALERT: {
		{Name: "message", Type: PARAM_STRING},
		{Name: "severity", Type: PARAM_SEVERITY},
	},
	model.ACTION_RESTART_SERVICE: {
		{Name: "service", Type: PARAM_STRING},
	},
	model.ACTION_RUN_SCRIPT: {
		{Name: "script", Type: PARAM_STRING, Required: true},
	},
	model.ACTION_SCALE_RESOURCES: {
		{Name: "target", Type: PARAM_STRING, Required: true},
		{Name: "replicas", Type: PARAM_INTEGER, Min: bound(0), Max: bound(1000)},
	},
	model.ACTION_SWITCH_REGION: {
		{Name: "targetRegion", Type: PARAM_STRING, Required: true},
	},
	model.ACTION_ENABLE_FAILOVER: {
		{Name: "target", Type: PARAM_STRING},
	},
	model.ACTION_UPDATE_POLICY: {
		{Name: "policy", Type: PARAM_STRING, Required: true},
	},

	model.OUTCOME_EMAIL: {
		{Name: "to", Type: PARAM_STRING, Required: true},
		{Name: "subject", Type: PARAM_STRING},
	},
	model.OUTCOME_SMS: {
		{Name: "to", Type: PARAM_STRING, Required: true},
	},
	model.OUTCOME_PUSH_NOTIFICATION: {
		{Name: "topic", Type: PARAM_STRING},
	},
	model.OUTCOME_WEBHOOK: {
		{Name: "url", Type: PARAM_URL, Required: true},
	},
	model.OUTCOME_TICKET: {
		{Name: "queue", Type: PARAM_STRING},
		{Name: "priority", Type: PARAM_SEVERITY},
	},
	model.OUTCOME_LOG_EVENT: {
		{Name: "level", Type: PARAM_SEVERITY},
	},
}

// Schema returns the parameter specs for a node of the given kind and subtype.
func Schema(kind model.NodeKind, subtype model.Subtype) []ParamSpec {
	var common []ParamSpec
	switch kind {
	case model.TRIGGER:
		common = triggerCommon
	case model.ACTION:
		common = actionCommon
	case model.OUTCOME:
		common = outcomeCommon
	}
	res := make([]ParamSpec, 0, len(common)+len(schemas[subtype]))
	res = append(res, schemas[subtype]...)
	return append(res, common...)
}

// CheckConfig validates cfg against the subtype schema and returns one
// message per offending parameter.
func CheckConfig(kind model.NodeKind, subtype model.Subtype, cfg map[string]any) []string {
	var problems []string
	for _, spec := range Schema(kind, subtype) {
		if err := spec.check(cfg); err != nil {
			problems = append(problems, err.Error())
		}
	}
	return problems
}

func (p ParamSpec) check(cfg map[string]any) error {
	v, ok := cfg[p.Name]
	if !ok || v == nil {
		if p.Required {
			return fmt.Errorf("missing required parameter %s", p.Name)
		}
		return nil
	}
	switch p.Type {
	case PARAM_NUMBER:
		f, _, err := Number(cfg, p.Name)
		if err != nil {
			return err
		}
		return p.checkRange(f)
	case PARAM_INTEGER:
		i, _, err := Int(cfg, p.Name)
		if err != nil {
			return err
		}
		return p.checkRange(float64(i))
	case PARAM_DURATION:
		d, _, err := Duration(cfg, p.Name)
		if err != nil {
			return err
		}
		return p.checkRange(d.Seconds())
	case PARAM_STRING:
		_, _, err := String(cfg, p.Name)
		return err
	case PARAM_BOOL:
		_, _, err := Bool(cfg, p.Name)
		return err
	case PARAM_SEVERITY:
		_, _, err := Severity(cfg, p.Name)
		return err
	case PARAM_REGEX:
		s, _, err := String(cfg, p.Name)
		if err != nil {
			return err
		}
		if _, err := regexp.Compile(s); err != nil {
			return fmt.Errorf("parameter %s: invalid pattern: %w", p.Name, err)
		}
	case PARAM_CRON:
		s, _, err := String(cfg, p.Name)
		if err != nil {
			return err
		}
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("parameter %s: invalid schedule: %w", p.Name, err)
		}
	case PARAM_URL:
		s, _, err := String(cfg, p.Name)
		if err != nil {
			return err
		}
		u, err := url.ParseRequestURI(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("parameter %s: %q is not an http(s) url", p.Name, s)
		}
	case PARAM_EXPRESSION:
		s, _, err := String(cfg, p.Name)
		if err != nil {
			return err
		}
		if _, err := goja.Compile(p.Name, s, false); err != nil {
			return fmt.Errorf("parameter %s: invalid expression: %w", p.Name, err)
		}
	}
	return nil
}

func (p ParamSpec) checkRange(f float64) error {
	if p.Positive && f <= 0 {
		return fmt.Errorf("parameter %s must be greater than 0, got %v", p.Name, f)
	}
	if p.Min != nil && f < *p.Min {
		return fmt.Errorf("parameter %s must be >= %v, got %v", p.Name, *p.Min, f)
	}
	if p.Max != nil && f > *p.Max {
		return fmt.Errorf("parameter %s must be <= %v, got %v", p.Name, *p.Max, f)
	}
	return nil
}
