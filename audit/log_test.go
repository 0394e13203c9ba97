package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (c *collector) Collect(entry model.AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func TestRecordStampsAndFansOut(t *testing.T) {
	storage := memory.NewStorage(time.Minute)
	col := &collector{}
	log := NewLog(storage, storage, col)
	ctx := context.Background()

	log.Record(ctx, model.AuditEntry{Type: model.AUDIT_FIRED, FlowId: "f1", ExecutionId: "e1"})
	log.Record(ctx, model.AuditEntry{Type: model.AUDIT_EXECUTION_END, FlowId: "f1", ExecutionId: "e1", Status: string(model.COMPLETED)})

	entries, err := log.Entries(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].Id)
	assert.False(t, entries[0].Time.IsZero())
	assert.NotEqual(t, entries[0].Id, entries[1].Id)
	assert.Len(t, col.entries, 2)
	assert.Equal(t, entries[1].Id, col.entries[1].Id)
}

func TestExecutionQueries(t *testing.T) {
	storage := memory.NewStorage(time.Minute)
	log := NewLog(storage, storage)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, log.SaveExecution(ctx, &model.Execution{Id: "e1", FlowId: "f1", Status: model.COMPLETED, StartedAt: now.Add(-time.Minute)}))
	require.NoError(t, log.SaveExecution(ctx, &model.Execution{Id: "e2", FlowId: "f1", Status: model.RUNNING, StartedAt: now}))

	execs, err := log.ListExecutions(ctx, "f1", model.ExecutionFilter{Since: now.Add(-time.Second)})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "e2", execs[0].Id)

	exec, err := log.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, model.COMPLETED, exec.Status)
}
