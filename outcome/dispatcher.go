package outcome

import (
	"context"
	"fmt"
	"time"

	"github.com/mohitkumar/autoflow/audit"
	"github.com/mohitkumar/autoflow/flow"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/metrics"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/util"
	"go.uber.org/zap"
)

type Dispatcher struct {
	registry *Registry
	recorder audit.Recorder
	timeout  time.Duration
}

func NewDispatcher(registry *Registry, recorder audit.Recorder, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		registry: registry,
		recorder: recorder,
		timeout:  timeout,
	}
}

// Dispatch delivers the outcome node once, retrying a single time on a
// transport error. Failures are recorded in the returned outcome and the
// audit log only.
func (d *Dispatcher) Dispatch(ctx context.Context, node *model.Node, ectx model.ExecutionContext) model.NodeOutcome {
	outcome := model.NodeOutcome{
		NodeId:    node.Id,
		Kind:      node.Kind,
		Subtype:   node.Subtype,
		Status:    model.NODE_RUNNING,
		StartedAt: time.Now(),
	}
	ectx.NodeId = node.Id
	timeout, found, err := flow.Duration(node.Config, "timeout")
	if err != nil || !found {
		timeout = d.timeout
	}
	ch := d.registry.Get(node.Subtype)
	if ch == nil {
		err = fmt.Errorf("no channel for %s", node.Subtype)
	} else {
		err = d.deliver(ctx, ch, node, ectx, timeout, &outcome)
	}
	outcome.EndedAt = time.Now()
	entry := model.AuditEntry{
		Type:        model.AUDIT_OUTCOME_DISPATCH,
		FlowId:      ectx.FlowId,
		ExecutionId: ectx.ExecutionId,
		NodeId:      node.Id,
		Subject:     ectx.Subject,
		Attempt:     outcome.Attempts,
		Data:        map[string]any{"subtype": string(node.Subtype)},
	}
	if err != nil {
		outcome.Status = model.NODE_FAILED
		outcome.Error = err.Error()
		entry.Error = err.Error()
		metrics.OutcomeDispatchesTotal.WithLabelValues(string(node.Subtype), "failure").Inc()
		logger.Warn("outcome dispatch failed", zap.String("flowId", ectx.FlowId), zap.String("executionId", ectx.ExecutionId),
			zap.String("nodeId", node.Id), zap.String("subject", ectx.Subject), zap.Error(err))
	} else {
		outcome.Status = model.NODE_SUCCEEDED
		metrics.OutcomeDispatchesTotal.WithLabelValues(string(node.Subtype), "success").Inc()
	}
	entry.Status = string(outcome.Status)
	d.recorder.Record(ctx, entry)
	return outcome
}

func (d *Dispatcher) deliver(ctx context.Context, ch OutcomeChannel, node *model.Node, ectx model.ExecutionContext, timeout time.Duration, outcome *model.NodeOutcome) error {
	var err error
	for outcome.Attempts < 2 {
		outcome.Attempts++
		ectx.Attempt = outcome.Attempts
		cfg := util.ResolveParams(ectx.Data(), node.Config)
		err = d.attempt(ctx, ch, node.Subtype, cfg, ectx, timeout)
		if err == nil || !IsTransportError(err) {
			return err
		}
		logger.Info("retrying outcome after transport error", zap.String("executionId", ectx.ExecutionId), zap.String("nodeId", node.Id), zap.Error(err))
	}
	return err
}

func (d *Dispatcher) attempt(ctx context.Context, ch OutcomeChannel, subtype model.Subtype, cfg map[string]any, ectx model.ExecutionContext, timeout time.Duration) error {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("channel panic: %v", r)
			}
		}()
		done <- ch.Dispatch(dctx, subtype, cfg, ectx)
	}()
	select {
	case err := <-done:
		return err
	case <-dctx.Done():
		return fmt.Errorf("dispatch timed out after %s", timeout)
	}
}
