package outcome

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/model"
	"go.uber.org/zap"
)

// OutcomeChannel delivers a notification for an outcome subtype. Idempotent
// delivery is the channel's concern.
type OutcomeChannel interface {
	Dispatch(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) error
}

type ChannelFunc func(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) error

func (f ChannelFunc) Dispatch(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) error {
	return f(ctx, subtype, config, ectx)
}

// TransportError marks a delivery failure worth one more attempt.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

type Registry struct {
	mu       sync.RWMutex
	channels map[model.Subtype]OutcomeChannel
	fallback OutcomeChannel
}

func NewRegistry(fallback OutcomeChannel) *Registry {
	return &Registry{
		channels: make(map[model.Subtype]OutcomeChannel),
		fallback: fallback,
	}
}

func (r *Registry) Register(subtype model.Subtype, ch OutcomeChannel) error {
	if !model.OUTCOME.Allows(subtype) {
		return fmt.Errorf("%q is not an outcome subtype", subtype)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[subtype] = ch
	return nil
}

func (r *Registry) Get(subtype model.Subtype) OutcomeChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ch, ok := r.channels[subtype]; ok {
		return ch
	}
	return r.fallback
}

var _ OutcomeChannel = new(LogChannel)

type LogChannel struct{}

func NewLogChannel() *LogChannel {
	return &LogChannel{}
}

func (c *LogChannel) Dispatch(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) error {
	logger.Info("dispatching outcome", zap.String("subtype", string(subtype)), zap.String("flowId", ectx.FlowId),
		zap.String("executionId", ectx.ExecutionId), zap.String("nodeId", ectx.NodeId), zap.String("subject", ectx.Subject), zap.Any("config", config))
	return nil
}
