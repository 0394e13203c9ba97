package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/autoflow/action"
	"github.com/mohitkumar/autoflow/audit"
	"github.com/mohitkumar/autoflow/config"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/matcher"
	"github.com/mohitkumar/autoflow/metadata"
	"github.com/mohitkumar/autoflow/metrics"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/outcome"
	"github.com/mohitkumar/autoflow/util"
	"go.uber.org/zap"
)

// Engine evaluates events against active flows, admits executions and walks
// them to completion.
type Engine struct {
	conf      config.EngineConfig
	registry  *Registry
	matcher   *matcher.Matcher
	ticker    *matcher.Ticker
	scheduler *scheduler
	actions   *action.Executor
	outcomes  *outcome.Dispatcher
	audit     *audit.Log

	partitioner *util.Partitioner
	workers     []*util.Worker[model.Event]
	workerWg    sync.WaitGroup

	runs     sync.Map // executionId -> *run
	waiters  sync.Map // executionId -> chan struct{}
	runWg    sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewEngine(conf config.EngineConfig, m *matcher.Matcher, actions *action.Executor, outcomes *outcome.Dispatcher, log *audit.Log) *Engine {
	if conf.MaxConcurrentPerFlow < 1 {
		conf.MaxConcurrentPerFlow = 1
	}
	if conf.EventPartitions < 1 {
		conf.EventPartitions = 1
	}
	if conf.EventQueueSize < 1 {
		conf.EventQueueSize = 1
	}
	if conf.EscalationDeadline <= 0 {
		conf.EscalationDeadline = 15 * time.Minute
	}
	if conf.EscalationChannel == "" {
		conf.EscalationChannel = string(model.OUTCOME_SMS)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		conf:        conf,
		registry:    NewRegistry(),
		matcher:     m,
		actions:     actions,
		outcomes:    outcomes,
		audit:       log,
		partitioner: util.NewPartitioner(conf.EventPartitions),
		ctx:         ctx,
		cancel:      cancel,
	}
	e.scheduler = &scheduler{
		conf:     conf,
		registry: e.registry,
		start:    e.startRun,
		drop:     e.dropPending,
		now:      time.Now,
	}
	e.ticker = matcher.NewTicker(func(ev model.Event) {
		e.Publish(ev)
	})
	e.registry.onSwap(e.onSwap)
	for i := 0; i < e.partitioner.Count(); i++ {
		e.workers = append(e.workers, util.NewWorker(fmt.Sprintf("event-partition-%d", i), &e.workerWg, e.handleEvent, conf.EventQueueSize))
	}
	return e
}

func (e *Engine) Name() string {
	return "engine"
}

func (e *Engine) Start() error {
	for _, w := range e.workers {
		w.Start()
	}
	if err := e.ticker.Start(); err != nil {
		return err
	}
	logger.Info("engine started", zap.Int("partitions", len(e.workers)))
	return nil
}

// Stop stops event intake and waits for running executions to finish.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		_ = e.ticker.Stop()
		for _, w := range e.workers {
			w.Stop()
		}
		e.workerWg.Wait()
		e.runWg.Wait()
		e.cancel()
		logger.Info("engine stopped")
	})
	return nil
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) Matcher() *matcher.Matcher {
	return e.matcher
}

// HandleChange is subscribed to flow authoring changes.
func (e *Engine) HandleChange(change metadata.FlowChange) {
	e.registry.HandleChange(change)
}

// LoadFlows activates every enabled flow, used at startup.
func (e *Engine) LoadFlows(flows []*model.AutomationFlow) {
	for _, fl := range flows {
		if !fl.Enabled {
			continue
		}
		if err := e.registry.Activate(fl); err != nil {
			logger.Error("skipping invalid stored flow", zap.String("flowId", fl.Id), zap.Error(err))
		}
	}
}

func (e *Engine) onSwap(flowId string, snap *snapshot) {
	e.matcher.DropFlow(flowId)
	e.ticker.Unschedule(flowId)
	e.scheduler.dropFlow(flowId)
	if snap == nil {
		return
	}
	for _, t := range snap.triggers {
		if t.Subtype != model.TRIGGER_SCHEDULED {
			continue
		}
		if err := e.ticker.Schedule(flowId, t); err != nil {
			logger.Error("error in scheduling trigger", zap.String("flowId", flowId), zap.String("nodeId", t.Id), zap.Error(err))
		}
	}
}

// Publish hands ev to the partition owning its subject so samples of one
// subject are matched in order. It reports false when the partition queue is
// full and the event was dropped.
func (e *Engine) Publish(ev model.Event) bool {
	w := e.workers[e.partitioner.Partition(ev.Subject)]
	if !w.TrySend(ev) {
		metrics.EventsDroppedTotal.WithLabelValues("queue_full").Inc()
		logger.Warn("event queue full, dropping event", zap.String("subtype", string(ev.Subtype)), zap.String("subject", ev.Subject))
		return false
	}
	return true
}

// malformed events are already audited by Process
func (e *Engine) handleEvent(ev model.Event) error {
	_, err := e.Process(e.ctx, ev)
	var merr *matcher.MatchError
	if errors.As(err, &merr) {
		return nil
	}
	return err
}

// Process matches ev against every active flow and returns the admission
// decision for each trigger that matched. A malformed event is audited and
// returned as a *matcher.MatchError.
func (e *Engine) Process(ctx context.Context, ev model.Event) ([]Admission, error) {
	metrics.EventsReceivedTotal.WithLabelValues(string(ev.Subtype)).Inc()
	if ev.Id == "" {
		ev.Id = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := matcher.ValidateEvent(&ev); err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("invalid").Inc()
		logger.Warn("dropping invalid event", zap.String("eventId", ev.Id), zap.Error(err))
		e.audit.Record(ctx, model.AuditEntry{
			Type:     model.AUDIT_MATCH_ERROR,
			Subject:  ev.Subject,
			EventRef: ev.Id,
			Error:    err.Error(),
		})
		return nil, err
	}
	var admissions []Admission
	for _, snap := range e.registry.active() {
		for _, trigger := range snap.triggers {
			if trigger.Subtype != ev.Subtype {
				continue
			}
			matched, err := e.matcher.Match(snap.flow.Id, trigger, &ev)
			entry := model.AuditEntry{
				Type:     model.AUDIT_EVALUATION,
				FlowId:   snap.flow.Id,
				NodeId:   trigger.Id,
				Subject:  ev.Subject,
				EventRef: ev.Id,
				Status:   fmt.Sprintf("matched=%t", matched),
			}
			if err != nil {
				entry.Type = model.AUDIT_MATCH_ERROR
				entry.Error = err.Error()
				logger.Warn("error evaluating trigger", zap.String("flowId", snap.flow.Id), zap.String("nodeId", trigger.Id),
					zap.String("subject", ev.Subject), zap.Error(err))
			}
			e.audit.Record(ctx, entry)
			if !matched {
				continue
			}
			metrics.TriggerMatchesTotal.WithLabelValues(string(trigger.Subtype)).Inc()
			admissions = append(admissions, e.admit(ctx, snap, trigger, ev))
		}
	}
	return admissions, nil
}

func (e *Engine) admit(ctx context.Context, snap *snapshot, trigger *model.Node, ev model.Event) Admission {
	p := &pending{
		id:      uuid.NewString(),
		snap:    snap,
		trigger: trigger,
		event:   ev,
	}
	done := make(chan struct{})
	e.waiters.Store(p.id, done)
	result := e.scheduler.admit(p)
	adm := Admission{
		FlowId:        snap.flow.Id,
		TriggerNodeId: trigger.Id,
		Subject:       ev.Subject,
		Result:        result,
	}
	entry := model.AuditEntry{
		FlowId:   snap.flow.Id,
		NodeId:   trigger.Id,
		Subject:  ev.Subject,
		EventRef: ev.Id,
		Status:   string(result),
	}
	switch result {
	case ADMITTED:
		// the run records FIRED itself
		adm.ExecutionId = p.id
		return adm
	case QUEUED:
		adm.ExecutionId = p.id
		entry.Type = model.AUDIT_QUEUED
		entry.Data = map[string]any{"executionId": p.id}
	case SUPPRESSED:
		entry.Type = model.AUDIT_SUPPRESSED
		entry.Error = ErrDuplicate.Error()
		logger.Info("suppressing duplicate trigger match", zap.String("flowId", snap.flow.Id), zap.String("nodeId", trigger.Id), zap.String("subject", ev.Subject))
	case OVERFLOW:
		entry.Type = model.AUDIT_OVERFLOW
		entry.Error = ErrOverflow.Error()
		logger.Warn("flow at capacity, dropping trigger match", zap.String("flowId", snap.flow.Id), zap.String("nodeId", trigger.Id), zap.String("subject", ev.Subject))
	case INACTIVE:
		entry.Type = model.AUDIT_SUPPRESSED
		entry.Error = ErrFlowInactive.Error()
	}
	if result != QUEUED {
		e.closeWaiter(p.id)
	}
	e.audit.Record(ctx, entry)
	return adm
}

func (e *Engine) startRun(p *pending) {
	r := newRun(e, p)
	e.runs.Store(p.id, r)
	e.runWg.Add(1)
	metrics.RunningExecutions.Inc()
	e.audit.Record(e.ctx, model.AuditEntry{
		Type:        model.AUDIT_FIRED,
		FlowId:      p.snap.flow.Id,
		ExecutionId: p.id,
		NodeId:      p.trigger.Id,
		Subject:     p.event.Subject,
		EventRef:    p.event.Id,
		Data:        map[string]any{"flowVersion": p.snap.flow.Version},
	})
	go func() {
		defer e.runWg.Done()
		r.execute(e.ctx)
		e.runs.Delete(p.id)
		metrics.RunningExecutions.Dec()
		close(r.done)
		e.closeWaiter(p.id)
		e.scheduler.release(p)
	}()
}

func (e *Engine) dropPending(p *pending, err error) {
	e.audit.Record(e.ctx, model.AuditEntry{
		Type:     model.AUDIT_OVERFLOW,
		FlowId:   p.snap.flow.Id,
		NodeId:   p.trigger.Id,
		Subject:  p.event.Subject,
		EventRef: p.event.Id,
		Error:    err.Error(),
		Data:     map[string]any{"executionId": p.id},
	})
	e.closeWaiter(p.id)
}

func (e *Engine) closeWaiter(id string) {
	if v, ok := e.waiters.LoadAndDelete(id); ok {
		close(v.(chan struct{}))
	}
}

// Await blocks until the execution id returned in an Admission is finished
// or dropped, and returns its stored record.
func (e *Engine) Await(ctx context.Context, executionId string) (*model.Execution, error) {
	if v, ok := e.waiters.Load(executionId); ok {
		select {
		case <-v.(chan struct{}):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.audit.GetExecution(ctx, executionId)
}

// Stats returns the number of running and queued executions of a flow.
func (e *Engine) Stats(flowId string) (running int, queued int) {
	return e.scheduler.stats(flowId)
}

// Sweep drops expired queued matches and starts waiting ones when capacity
// is free.
func (e *Engine) Sweep() {
	e.scheduler.sweep()
}

// Overdue returns the ids of running executions past their escalation
// deadline that were not escalated yet.
func (e *Engine) Overdue(now time.Time) []string {
	var ids []string
	e.runs.Range(func(k, v any) bool {
		r := v.(*run)
		r.mu.Lock()
		overdue := !r.exec.Escalated && !r.exec.Status.Terminal() && now.After(r.deadline)
		r.mu.Unlock()
		if overdue {
			ids = append(ids, k.(string))
		}
		return true
	})
	sort.Strings(ids)
	return ids
}

// Escalate marks a running execution escalated and dispatches the escalation
// outcome. It happens at most once per execution and never cancels branches.
func (e *Engine) Escalate(ctx context.Context, executionId string) bool {
	v, ok := e.runs.Load(executionId)
	if !ok {
		return false
	}
	r := v.(*run)
	now := time.Now()
	if !r.escalate(ctx, now) {
		return false
	}
	metrics.EscalationsTotal.Inc()
	logger.Warn("execution missed its escalation deadline", r.logFields("")...)
	e.audit.Record(ctx, model.AuditEntry{
		Type:        model.AUDIT_ESCALATION,
		FlowId:      r.ectx.FlowId,
		ExecutionId: executionId,
		Subject:     r.ectx.Subject,
		Status:      string(model.ESCALATED),
		Data:        map[string]any{"deadline": r.deadline.Format(time.RFC3339Nano)},
	})
	target := e.conf.EscalationTarget
	if target == "" {
		target = "on-call"
	}
	node := &model.Node{
		Id:      "escalation",
		Kind:    model.OUTCOME,
		Subtype: model.Subtype(e.conf.EscalationChannel),
		Config: map[string]any{
			"to":      target,
			"message": "execution {$.execution.id} of flow {$.flow.name} for {$.execution.subject} missed its deadline",
		},
	}
	e.outcomes.Dispatch(ctx, node, r.ectx)
	return true
}

// GetExecution returns the live state of a running execution or the stored
// record of a finished one.
func (e *Engine) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	if v, ok := e.runs.Load(id); ok {
		r := v.(*run)
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.exec.Copy(), nil
	}
	return e.audit.GetExecution(ctx, id)
}
