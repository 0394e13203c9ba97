package flow

import (
	"errors"
	"testing"

	"github.com/mohitkumar/autoflow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trigger(id string, st model.Subtype, cfg map[string]any) model.Node {
	return model.Node{Id: id, Kind: model.TRIGGER, Subtype: st, Config: cfg}
}

func actionNode(id string, st model.Subtype, cfg map[string]any) model.Node {
	return model.Node{Id: id, Kind: model.ACTION, Subtype: st, Config: cfg}
}

func outcomeNode(id string, st model.Subtype, cfg map[string]any) model.Node {
	return model.Node{Id: id, Kind: model.OUTCOME, Subtype: st, Config: cfg}
}

func edge(src, dst string) model.Edge {
	return model.Edge{Source: src, Target: dst}
}

func validFlow() *model.AutomationFlow {
	return &model.AutomationFlow{
		Id:   "f1",
		Name: "restart on connectivity loss",
		Nodes: []model.Node{
			trigger("t1", model.TRIGGER_CONNECTIVITY_ISSUE, map[string]any{"severity": "high"}),
			actionNode("a1", model.ACTION_RESTART_SERVICE, map[string]any{"service": "api"}),
			actionNode("a2", model.ACTION_SWITCH_REGION, map[string]any{"targetRegion": "eu-west-1"}),
			outcomeNode("o1", model.OUTCOME_EMAIL, map[string]any{"to": "ops@example.com"}),
		},
		Edges: []model.Edge{edge("t1", "a1"), edge("t1", "a2"), edge("a1", "o1"), edge("a2", "o1")},
	}
}

func validationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	return verr
}

func TestValidate(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, fl *model.AutomationFlow){
		"valid fan out and fan in":         testValidFlow,
		"edge to unknown node":             testUnknownEdgeReference,
		"edge leaving outcome":             testOutcomeAsSource,
		"edge entering trigger":            testTriggerAsTarget,
		"trigger outcome cycle":            testTriggerOutcomeCycle,
		"action cycle":                     testActionCycle,
		"self loop":                        testSelfLoop,
		"orphan action":                    testOrphanAction,
		"trigger without outcome":          testTriggerWithoutOutcome,
		"trigger without edges":            testTriggerWithoutEdges,
		"threshold out of range":           testThresholdOutOfRange,
		"missing required parameter":       testMissingRequiredParameter,
		"non positive duration":            testNonPositiveDuration,
		"unknown subtype":                  testUnknownSubtype,
		"duplicate node id":                testDuplicateNodeId,
		"invalid filter expression":        testInvalidFilter,
		"multiple violations are reported": testMultipleViolations,
		"layout metadata is ignored":       testLayoutMetadataIgnored,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, validFlow())
		})
	}
}

func testValidFlow(t *testing.T, fl *model.AutomationFlow) {
	require.NoError(t, Validate(fl))
}

func testUnknownEdgeReference(t *testing.T, fl *model.AutomationFlow) {
	fl.Edges = append(fl.Edges, edge("a1", "ghost"))
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_EDGE_REFERENCE))
	assert.Equal(t, []string{"ghost"}, verr.Violations[0].NodeIds)
}

func testOutcomeAsSource(t *testing.T, fl *model.AutomationFlow) {
	fl.Nodes = append(fl.Nodes, actionNode("a3", model.ACTION_ALERT, nil))
	fl.Edges = append(fl.Edges, edge("o1", "a3"))
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_EDGE_KIND))
}

func testTriggerAsTarget(t *testing.T, fl *model.AutomationFlow) {
	fl.Nodes = append(fl.Nodes, trigger("t2", model.TRIGGER_SERVICE_DOWN, nil))
	fl.Edges = append(fl.Edges, edge("a1", "t2"))
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_EDGE_KIND))
}

func testTriggerOutcomeCycle(t *testing.T, _ *model.AutomationFlow) {
	fl := &model.AutomationFlow{
		Id: "cyclic",
		Nodes: []model.Node{
			trigger("t", model.TRIGGER_SERVICE_DOWN, nil),
			outcomeNode("o", model.OUTCOME_LOG_EVENT, nil),
		},
		Edges: []model.Edge{edge("t", "o"), edge("o", "t")},
	}
	verr := validationError(t, Validate(fl))
	assert.True(t, verr.Has(RULE_CYCLE))
	assert.True(t, verr.Has(RULE_EDGE_KIND))
}

func testActionCycle(t *testing.T, fl *model.AutomationFlow) {
	fl.Edges = append(fl.Edges, edge("a1", "a2"), edge("a2", "a1"))
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_CYCLE))
	for _, v := range verr.Violations {
		if v.Rule == RULE_CYCLE {
			assert.ElementsMatch(t, []string{"a1", "a2"}, v.NodeIds)
		}
	}
}

func testSelfLoop(t *testing.T, fl *model.AutomationFlow) {
	fl.Edges = append(fl.Edges, edge("a1", "a1"))
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_CYCLE))
}

func testOrphanAction(t *testing.T, fl *model.AutomationFlow) {
	fl.Nodes = append(fl.Nodes, actionNode("lonely", model.ACTION_ALERT, nil))
	fl.Edges = append(fl.Edges, edge("lonely", "o1"))
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_REACHABILITY))
	assert.Equal(t, []string{"lonely"}, verr.Violations[0].NodeIds)
}

func testTriggerWithoutOutcome(t *testing.T, _ *model.AutomationFlow) {
	fl := &model.AutomationFlow{
		Id: "no-outcome",
		Nodes: []model.Node{
			trigger("t", model.TRIGGER_SERVICE_DOWN, nil),
			actionNode("a", model.ACTION_RESTART_SERVICE, nil),
		},
		Edges: []model.Edge{edge("t", "a")},
	}
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_REACHABILITY))
}

func testTriggerWithoutEdges(t *testing.T, fl *model.AutomationFlow) {
	fl.Nodes = append(fl.Nodes, trigger("t2", model.TRIGGER_SERVICE_DOWN, nil))
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_REACHABILITY))
	assert.Equal(t, []string{"t2"}, verr.Violations[0].NodeIds)
}

func testThresholdOutOfRange(t *testing.T, fl *model.AutomationFlow) {
	fl.Nodes[0] = trigger("t1", model.TRIGGER_CPU_THRESHOLD, map[string]any{"threshold": 120.0, "duration": "5m"})
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_CONFIG))
	assert.Contains(t, verr.Error(), "threshold")
}

func testMissingRequiredParameter(t *testing.T, fl *model.AutomationFlow) {
	fl.Nodes[3] = outcomeNode("o1", model.OUTCOME_WEBHOOK, nil)
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_CONFIG))
	assert.Contains(t, verr.Error(), "url")
}

func testNonPositiveDuration(t *testing.T, fl *model.AutomationFlow) {
	fl.Nodes[0] = trigger("t1", model.TRIGGER_MEMORY_THRESHOLD, map[string]any{"threshold": 80, "duration": "0s"})
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_CONFIG))
}

func testUnknownSubtype(t *testing.T, fl *model.AutomationFlow) {
	fl.Nodes[1].Subtype = "reboot_datacenter"
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_STRUCTURE))
}

func testDuplicateNodeId(t *testing.T, fl *model.AutomationFlow) {
	fl.Nodes = append(fl.Nodes, outcomeNode("o1", model.OUTCOME_SMS, map[string]any{"to": "+100"}))
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_STRUCTURE))
}

func testInvalidFilter(t *testing.T, fl *model.AutomationFlow) {
	fl.Nodes[0].Config["filter"] = "$.payload.region ==="
	verr := validationError(t, Validate(fl))
	require.True(t, verr.Has(RULE_CONFIG))
}

func testMultipleViolations(t *testing.T, fl *model.AutomationFlow) {
	fl.Edges = append(fl.Edges, edge("a1", "nowhere"), edge("a2", "a2"))
	fl.Nodes[3].Config = nil
	verr := validationError(t, Validate(fl))
	assert.True(t, verr.Has(RULE_EDGE_REFERENCE))
	assert.True(t, verr.Has(RULE_CYCLE))
	assert.True(t, verr.Has(RULE_CONFIG))
	assert.Equal(t, RULE_EDGE_REFERENCE, verr.Violations[0].Rule)
}

func testLayoutMetadataIgnored(t *testing.T, fl *model.AutomationFlow) {
	fl.Nodes[0].Metadata = map[string]any{"position": map[string]any{"x": 10, "y": 20}}
	fl.Edges[0].Metadata = map[string]any{"animated": true}
	require.NoError(t, Validate(fl))
}

func TestDurationParameter(t *testing.T) {
	d, found, err := Duration(map[string]any{"duration": "5m"}, "duration")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 300.0, d.Seconds())

	d, _, err = Duration(map[string]any{"duration": 90}, "duration")
	require.NoError(t, err)
	assert.Equal(t, 90.0, d.Seconds())

	_, found, err = Duration(map[string]any{}, "duration")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = Duration(map[string]any{"duration": "soon"}, "duration")
	require.Error(t, err)
}
