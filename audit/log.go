package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/persistence"
	"go.uber.org/zap"
)

// Recorder is what engine components need to write to the audit log.
type Recorder interface {
	Record(ctx context.Context, entry model.AuditEntry)
}

// Collector receives a copy of every entry after it is stored.
type Collector interface {
	Collect(entry model.AuditEntry)
}

var _ Recorder = new(Log)

// Log is the append-only record of evaluations, firings, action results and
// dispatches. It also answers execution queries.
type Log struct {
	entries    persistence.AuditStore
	executions persistence.ExecutionStore
	collectors []Collector
	now        func() time.Time
}

func NewLog(entries persistence.AuditStore, executions persistence.ExecutionStore, collectors ...Collector) *Log {
	return &Log{
		entries:    entries,
		executions: executions,
		collectors: collectors,
		now:        time.Now,
	}
}

// Record stamps the entry and appends it. Storage errors are logged, an
// audit failure never aborts the work being audited.
func (l *Log) Record(ctx context.Context, entry model.AuditEntry) {
	if entry.Id == "" {
		entry.Id = uuid.NewString()
	}
	if entry.Time.IsZero() {
		entry.Time = l.now()
	}
	if err := l.entries.Append(ctx, entry); err != nil {
		logger.Error("error in appending audit entry", zap.String("type", string(entry.Type)),
			zap.String("flowId", entry.FlowId), zap.String("executionId", entry.ExecutionId), zap.Error(err))
	}
	for _, c := range l.collectors {
		c.Collect(entry)
	}
}

func (l *Log) SaveExecution(ctx context.Context, exec *model.Execution) error {
	return l.executions.SaveExecution(ctx, exec)
}

func (l *Log) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	return l.executions.GetExecution(ctx, id)
}

// ListExecutions returns the executions of a flow, newest first.
func (l *Log) ListExecutions(ctx context.Context, flowId string, filter model.ExecutionFilter) ([]*model.Execution, error) {
	return l.executions.ListExecutions(ctx, flowId, filter)
}

func (l *Log) Entries(ctx context.Context, executionId string) ([]model.AuditEntry, error) {
	return l.entries.Entries(ctx, executionId)
}

// FlowEntries returns the most recent entries of a flow that are not tied to
// an execution.
func (l *Log) FlowEntries(ctx context.Context, flowId string) ([]model.AuditEntry, error) {
	return l.entries.FlowEntries(ctx, flowId)
}
