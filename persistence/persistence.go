package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohitkumar/autoflow/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

var ErrNotFound = errors.New("not found")

type FlowStore interface {
	SaveFlow(ctx context.Context, fl *model.AutomationFlow) error
	GetFlow(ctx context.Context, id string) (*model.AutomationFlow, error)
	DeleteFlow(ctx context.Context, id string) error
	ListFlows(ctx context.Context) ([]*model.AutomationFlow, error)
}

type ExecutionStore interface {
	SaveExecution(ctx context.Context, exec *model.Execution) error
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	// ListExecutions returns the flow's executions newest first.
	ListExecutions(ctx context.Context, flowId string, filter model.ExecutionFilter) ([]*model.Execution, error)
}

// MAX_FLOW_AUDIT_ENTRIES bounds the entries kept per flow for events that
// never became an execution. Older ones are trimmed first.
const MAX_FLOW_AUDIT_ENTRIES = 1000

type AuditStore interface {
	Append(ctx context.Context, entry model.AuditEntry) error
	Entries(ctx context.Context, executionId string) ([]model.AuditEntry, error)
	// FlowEntries returns the entries recorded without an execution, such as
	// evaluations, suppressions and overflows, oldest first.
	FlowEntries(ctx context.Context, flowId string) ([]model.AuditEntry, error)
}

// Storage groups the stores the engine needs from one backend.
type Storage interface {
	FlowStore
	ExecutionStore
	AuditStore
}
