package action

import (
	"context"

	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/model"
	"go.uber.org/zap"
)

var _ ActionBackend = new(LogBackend)

// LogBackend only records that the action would have run.
type LogBackend struct{}

func NewLogBackend() *LogBackend {
	return &LogBackend{}
}

func (b *LogBackend) Execute(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) (bool, error) {
	logger.Info("running action", zap.String("subtype", string(subtype)), zap.String("flowId", ectx.FlowId),
		zap.String("executionId", ectx.ExecutionId), zap.String("nodeId", ectx.NodeId), zap.Any("config", config))
	return false, nil
}
