package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/mohitkumar/autoflow/audit"
	"github.com/mohitkumar/autoflow/flow"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/metrics"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/util"
	"go.uber.org/zap"
)

type Config struct {
	Timeout       time.Duration
	Retries       int
	BackoffBase   time.Duration
	BackoffFactor float64
	BackoffMax    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		Retries:       2,
		BackoffBase:   time.Second,
		BackoffFactor: 2,
		BackoffMax:    30 * time.Second,
	}
}

// Executor runs action nodes against their backends with a per attempt
// timeout and exponential backoff between transient failures.
type Executor struct {
	registry *Registry
	recorder audit.Recorder
	conf     Config
}

func NewExecutor(registry *Registry, recorder audit.Recorder, conf Config) *Executor {
	return &Executor{
		registry: registry,
		recorder: recorder,
		conf:     conf,
	}
}

func (e *Executor) newBackOff(retries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.conf.BackoffBase
	b.Multiplier = e.conf.BackoffFactor
	b.MaxInterval = e.conf.BackoffMax
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(retries))
}

// Execute runs the node to a terminal state and returns its outcome. Every
// attempt and the final result are written to the audit log before returning.
func (e *Executor) Execute(ctx context.Context, node *model.Node, ectx model.ExecutionContext) model.NodeOutcome {
	outcome := model.NodeOutcome{
		NodeId:    node.Id,
		Kind:      node.Kind,
		Subtype:   node.Subtype,
		Status:    model.NODE_RUNNING,
		StartedAt: time.Now(),
	}
	timeout, retries, err := e.policy(node)
	if err != nil {
		return e.finish(ctx, ectx, outcome, &Error{NodeId: node.Id, Permanent: true, Err: err})
	}
	backend := e.registry.Get(node.Subtype)
	if backend == nil {
		return e.finish(ctx, ectx, outcome, &Error{NodeId: node.Id, Permanent: true, Err: fmt.Errorf("no backend for %s", node.Subtype)})
	}

	permanent := false
	op := func() error {
		outcome.Attempts++
		actx := ectx
		actx.NodeId = node.Id
		actx.Attempt = outcome.Attempts
		e.recorder.Record(ctx, model.AuditEntry{
			Type:        model.AUDIT_ACTION_ATTEMPT,
			FlowId:      ectx.FlowId,
			ExecutionId: ectx.ExecutionId,
			NodeId:      node.Id,
			Subject:     ectx.Subject,
			Attempt:     outcome.Attempts,
		})
		cfg := util.ResolveParams(actx.Data(), node.Config)
		retryable, err := e.attempt(ctx, backend, node.Subtype, cfg, actx, timeout)
		if err == nil {
			metrics.ActionAttemptsTotal.WithLabelValues(string(node.Subtype), "success").Inc()
			return nil
		}
		metrics.ActionAttemptsTotal.WithLabelValues(string(node.Subtype), "failure").Inc()
		logger.Warn("action attempt failed", zap.String("flowId", ectx.FlowId), zap.String("executionId", ectx.ExecutionId),
			zap.String("nodeId", node.Id), zap.Int("attempt", outcome.Attempts), zap.Bool("retryable", retryable), zap.Error(err))
		if !retryable || ctx.Err() != nil {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}
	err = backoff.Retry(op, backoff.WithContext(e.newBackOff(retries), ctx))
	if err != nil {
		return e.finish(ctx, ectx, outcome, &Error{NodeId: node.Id, Attempts: outcome.Attempts, Permanent: permanent, Err: err})
	}
	return e.finish(ctx, ectx, outcome, nil)
}

func (e *Executor) policy(node *model.Node) (time.Duration, int, error) {
	timeout, found, err := flow.Duration(node.Config, "timeout")
	if err != nil {
		return 0, 0, err
	}
	if !found {
		timeout = e.conf.Timeout
	}
	retries, found, err := flow.Int(node.Config, "retries")
	if err != nil {
		return 0, 0, err
	}
	if !found {
		retries = e.conf.Retries
	}
	if retries < 0 {
		retries = 0
	}
	return timeout, retries, nil
}

type attemptResult struct {
	retryable bool
	err       error
}

// attempt bounds one backend invocation by timeout, also when the backend
// ignores its context.
func (e *Executor) attempt(ctx context.Context, backend ActionBackend, subtype model.Subtype, cfg map[string]any, ectx model.ExecutionContext, timeout time.Duration) (bool, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{retryable: false, err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		retryable, err := backend.Execute(actx, subtype, cfg, ectx)
		done <- attemptResult{retryable: retryable, err: err}
	}()
	select {
	case res := <-done:
		if res.err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return true, fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, res.err)
		}
		return res.retryable, res.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

func (e *Executor) finish(ctx context.Context, ectx model.ExecutionContext, outcome model.NodeOutcome, err *Error) model.NodeOutcome {
	outcome.EndedAt = time.Now()
	entry := model.AuditEntry{
		Type:        model.AUDIT_ACTION_RESULT,
		FlowId:      ectx.FlowId,
		ExecutionId: ectx.ExecutionId,
		NodeId:      outcome.NodeId,
		Subject:     ectx.Subject,
		Attempt:     outcome.Attempts,
	}
	if err != nil {
		outcome.Status = model.NODE_FAILED
		outcome.Error = err.Error()
		entry.Error = err.Error()
		entry.Data = map[string]any{"permanent": err.Permanent}
		logger.Error("action failed", zap.String("flowId", ectx.FlowId), zap.String("executionId", ectx.ExecutionId),
			zap.String("nodeId", outcome.NodeId), zap.String("subject", ectx.Subject), zap.Int("attempts", outcome.Attempts), zap.Error(err))
	} else {
		outcome.Status = model.NODE_SUCCEEDED
	}
	entry.Status = string(outcome.Status)
	e.recorder.Record(ctx, entry)
	return outcome
}
