package agent

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohitkumar/autoflow/config"
	"github.com/mohitkumar/autoflow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentLifecycle(t *testing.T) {
	conf := config.Default()
	conf.HttpPort = 0
	conf.EngineConfig.EscalationTick = 10 * time.Millisecond
	conf.AuditConfig.FileName = filepath.Join(t.TempDir(), "audit.log")

	a, err := New(conf)
	require.NoError(t, err)
	require.NoError(t, a.Start())

	ctx := context.Background()
	_, err = a.metadataService.CreateFlow(ctx, &model.AutomationFlow{
		Id:      "f1",
		Enabled: true,
		Nodes: []model.Node{
			{Id: "t1", Kind: model.TRIGGER, Subtype: model.TRIGGER_STORAGE_ISSUE},
			{Id: "o1", Kind: model.OUTCOME, Subtype: model.OUTCOME_TICKET},
		},
		Edges: []model.Edge{{Source: "t1", Target: "o1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, a.engine.Registry().ActiveFlows())

	require.True(t, a.engine.Publish(model.Event{Subtype: model.TRIGGER_STORAGE_ISSUE, Subject: "disk-1", Severity: model.SEVERITY_CRITICAL}))
	require.Eventually(t, func() bool {
		execs, err := a.auditLog.ListExecutions(ctx, "f1", model.ExecutionFilter{Status: model.COMPLETED})
		return err == nil && len(execs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())
}

func TestAgentUnknownStorage(t *testing.T) {
	conf := config.Default()
	conf.StorageType = "cassandra"
	_, err := New(conf)
	require.Error(t, err)
}
