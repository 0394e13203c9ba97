package matcher

import (
	"fmt"
	"path"
	"regexp"
	"sync"
	"time"

	"github.com/mohitkumar/autoflow/flow"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/util"
)

// MatchError reports a malformed event. The event is dropped and no flow is
// affected.
type MatchError struct {
	EventId string
	Subtype model.Subtype
	Reason  string
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("invalid event %s (%s): %s", e.EventId, e.Subtype, e.Reason)
}

const PAYLOAD_FLOW_ID = "flowId"
const PAYLOAD_NODE_ID = "nodeId"

const defaultLogField = "$.message"

func ValidateEvent(ev *model.Event) error {
	fail := func(format string, args ...any) error {
		return &MatchError{EventId: ev.Id, Subtype: ev.Subtype, Reason: fmt.Sprintf(format, args...)}
	}
	if !model.IsTriggerSubtype(ev.Subtype) {
		return fail("unknown subtype %q", ev.Subtype)
	}
	if ev.Subject == "" {
		return fail("subject is required")
	}
	if ev.Severity != "" {
		if _, err := model.ParseSeverity(string(ev.Severity)); err != nil {
			return fail("%v", err)
		}
	}
	switch ev.Subtype {
	case model.TRIGGER_CPU_THRESHOLD, model.TRIGGER_MEMORY_THRESHOLD, model.TRIGGER_PACKET_LOSS:
		if ev.Value == nil {
			return fail("value is required for %s", ev.Subtype)
		}
	case model.TRIGGER_SCHEDULED:
		if _, ok := ev.Payload[PAYLOAD_FLOW_ID].(string); !ok {
			return fail("scheduled tick without %s", PAYLOAD_FLOW_ID)
		}
		if _, ok := ev.Payload[PAYLOAD_NODE_ID].(string); !ok {
			return fail("scheduled tick without %s", PAYLOAD_NODE_ID)
		}
	}
	return nil
}

// Matcher decides whether an event satisfies a trigger node. Only threshold
// triggers keep state between events.
type Matcher struct {
	windows  sync.Map // windowKey -> *window
	regexps  sync.Map // pattern -> *regexp.Regexp
	programs sync.Map // filter source -> *goja.Program
	now      func() time.Time
}

func NewMatcher() *Matcher {
	return &Matcher{now: time.Now}
}

// Match evaluates ev against the trigger node of flowId. Events must have
// passed ValidateEvent. An error means the trigger config or filter could
// not be evaluated.
func (m *Matcher) Match(flowId string, node *model.Node, ev *model.Event) (bool, error) {
	if node.Kind != model.TRIGGER || node.Subtype != ev.Subtype {
		return false, nil
	}
	ok, err := m.subjectMatches(node, ev)
	if err != nil || !ok {
		return false, err
	}
	switch ev.Subtype {
	case model.TRIGGER_CPU_THRESHOLD, model.TRIGGER_MEMORY_THRESHOLD, model.TRIGGER_PACKET_LOSS:
		ok, err = m.matchThreshold(flowId, node, ev)
	case model.TRIGGER_CONNECTIVITY_ISSUE, model.TRIGGER_SERVICE_DOWN, model.TRIGGER_STORAGE_ISSUE:
		ok, err = matchSeverity(node.Config, "severity", ev)
	case model.TRIGGER_LOG_ENTRY:
		ok, err = m.matchLogEntry(node, ev)
	case model.TRIGGER_SCHEDULED:
		ok = ev.Payload[PAYLOAD_FLOW_ID] == flowId && ev.Payload[PAYLOAD_NODE_ID] == node.Id
	default:
		ok = false
	}
	if err != nil || !ok {
		return false, err
	}
	return m.evalFilter(node, ev)
}

func (m *Matcher) subjectMatches(node *model.Node, ev *model.Event) (bool, error) {
	pattern, found, err := flow.String(node.Config, "subject")
	if err != nil {
		return false, err
	}
	if !found || pattern == "" || pattern == "*" {
		return true, nil
	}
	ok, err := path.Match(pattern, ev.Subject)
	if err != nil {
		return false, fmt.Errorf("node %s: bad subject pattern %q: %w", node.Id, pattern, err)
	}
	return ok, nil
}

// events without a severity rank as low
func matchSeverity(cfg map[string]any, key string, ev *model.Event) (bool, error) {
	min, found, err := flow.Severity(cfg, key)
	if err != nil {
		return false, err
	}
	if !found {
		min = model.SEVERITY_LOW
	}
	rank := ev.Severity.Rank()
	if rank == 0 {
		rank = model.SEVERITY_LOW.Rank()
	}
	return rank >= min.Rank(), nil
}

func (m *Matcher) matchLogEntry(node *model.Node, ev *model.Event) (bool, error) {
	pattern, _, err := flow.String(node.Config, "pattern")
	if err != nil {
		return false, err
	}
	re, err := m.regexp(pattern)
	if err != nil {
		return false, err
	}
	field, found, err := flow.String(node.Config, "field")
	if err != nil {
		return false, err
	}
	if !found || field == "" {
		field = defaultLogField
	}
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	value, err := util.Lookup(payload, field)
	if err != nil || value == nil {
		return false, nil
	}
	if !re.MatchString(fmt.Sprintf("%v", value)) {
		return false, nil
	}
	if _, found := node.Config["level"]; !found {
		return true, nil
	}
	return matchSeverity(node.Config, "level", ev)
}

func (m *Matcher) regexp(pattern string) (*regexp.Regexp, error) {
	if re, ok := m.regexps.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	m.regexps.Store(pattern, re)
	return re, nil
}
