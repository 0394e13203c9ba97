package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohitkumar/autoflow/flow"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/metrics"
	"github.com/mohitkumar/autoflow/model"
	"go.uber.org/zap"
)

// joinState counts, for one node, the upstream nodes still outstanding and
// how many of the finished ones succeeded.
type joinState struct {
	remaining atomic.Int32
	succeeded atomic.Int32
}

// run walks one execution. Every node reachable from the trigger runs at most
// once, after all of its upstream nodes in that subgraph are terminal, and
// only if at least one of them succeeded; otherwise it is skipped.
type run struct {
	eng      *Engine
	p        *pending
	deadline time.Time
	ectx     model.ExecutionContext
	joins    map[string]*joinState
	wg       sync.WaitGroup
	done     chan struct{}

	mu   sync.Mutex
	exec *model.Execution
}

func newRun(eng *Engine, p *pending) *run {
	fl := p.snap.flow
	now := time.Now()
	deadline := fl.EscalationDeadline
	if deadline <= 0 {
		deadline = eng.conf.EscalationDeadline
	}
	r := &run{
		eng:      eng,
		p:        p,
		deadline: now.Add(deadline),
		done:     make(chan struct{}),
		joins:    make(map[string]*joinState),
		ectx: model.ExecutionContext{
			ExecutionId:   p.id,
			FlowId:        fl.Id,
			FlowName:      fl.Name,
			FlowVersion:   fl.Version,
			TriggerNodeId: p.trigger.Id,
			Subject:       p.event.Subject,
			Event:         p.event,
		},
		exec: &model.Execution{
			Id:            p.id,
			FlowId:        fl.Id,
			FlowVersion:   fl.Version,
			TriggerNodeId: p.trigger.Id,
			Subject:       p.event.Subject,
			EventRef:      p.event.Id,
			StartedAt:     now,
			Status:        model.PENDING,
			Nodes:         make(map[string]*model.NodeOutcome),
		},
	}
	g := p.snap.graph
	reach, _ := g.Reachable(p.trigger.Id)
	inReach := make(map[string]bool, len(reach))
	for _, id := range reach {
		inReach[id] = true
	}
	for _, id := range reach {
		if id == p.trigger.Id {
			continue
		}
		in, _ := g.InEdges(id)
		js := &joinState{}
		for _, e := range in {
			if inReach[e.Source] {
				js.remaining.Add(1)
			}
		}
		r.joins[id] = js
	}
	return r
}

func (r *run) logFields(nodeId string) []zap.Field {
	return []zap.Field{
		zap.String("flowId", r.ectx.FlowId),
		zap.String("executionId", r.ectx.ExecutionId),
		zap.String("nodeId", nodeId),
		zap.String("subject", r.ectx.Subject),
	}
}

func (r *run) execute(ctx context.Context) {
	r.mu.Lock()
	r.exec.Status = model.RUNNING
	now := time.Now()
	r.exec.Nodes[r.p.trigger.Id] = &model.NodeOutcome{
		NodeId:    r.p.trigger.Id,
		Kind:      model.TRIGGER,
		Subtype:   r.p.trigger.Subtype,
		Status:    model.NODE_SUCCEEDED,
		Attempts:  1,
		StartedAt: now,
		EndedAt:   now,
	}
	r.saveLocked(ctx)
	r.mu.Unlock()
	logger.Info("execution started", r.logFields(r.p.trigger.Id)...)

	r.wg.Add(1)
	r.complete(ctx, r.p.trigger.Id, true)
	r.wg.Wait()
	r.finish(ctx)
}

// complete propagates the terminal state of nodeId to its downstream nodes.
// The caller holds one wg slot which complete releases.
func (r *run) complete(ctx context.Context, nodeId string, ok bool) {
	defer r.wg.Done()
	out, _ := r.p.snap.graph.OutEdges(nodeId)
	for _, e := range out {
		js, tracked := r.joins[e.Target]
		if !tracked {
			continue
		}
		if ok {
			js.succeeded.Add(1)
		}
		if js.remaining.Add(-1) != 0 {
			continue
		}
		node, err := r.p.snap.graph.Node(e.Target)
		if err != nil {
			continue
		}
		r.wg.Add(1)
		if js.succeeded.Load() == 0 {
			r.skip(ctx, node)
			continue
		}
		go r.runNode(ctx, node)
	}
}

func (r *run) skip(ctx context.Context, node *model.Node) {
	now := time.Now()
	r.record(ctx, &model.NodeOutcome{
		NodeId:    node.Id,
		Kind:      node.Kind,
		Subtype:   node.Subtype,
		Status:    model.NODE_SKIPPED,
		StartedAt: now,
		EndedAt:   now,
	})
	r.eng.audit.Record(ctx, model.AuditEntry{
		Type:        model.AUDIT_NODE_SKIPPED,
		FlowId:      r.ectx.FlowId,
		ExecutionId: r.ectx.ExecutionId,
		NodeId:      node.Id,
		Subject:     r.ectx.Subject,
		Status:      string(model.NODE_SKIPPED),
	})
	logger.Info("node skipped, no upstream branch succeeded", r.logFields(node.Id)...)
	r.complete(ctx, node.Id, false)
}

func (r *run) runNode(ctx context.Context, node *model.Node) {
	r.record(ctx, &model.NodeOutcome{
		NodeId:    node.Id,
		Kind:      node.Kind,
		Subtype:   node.Subtype,
		Status:    model.NODE_RUNNING,
		StartedAt: time.Now(),
	})
	var outcome model.NodeOutcome
	switch node.Kind {
	case model.ACTION:
		outcome = r.eng.actions.Execute(ctx, node, r.ectx)
	case model.OUTCOME:
		outcome = r.eng.outcomes.Dispatch(ctx, node, r.ectx)
	default:
		outcome = model.NodeOutcome{NodeId: node.Id, Kind: node.Kind, Subtype: node.Subtype, Status: model.NODE_SKIPPED}
	}
	r.record(ctx, &outcome)
	r.complete(ctx, node.Id, outcome.Status == model.NODE_SUCCEEDED)
}

func (r *run) record(ctx context.Context, outcome *model.NodeOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exec.Nodes[outcome.NodeId] = outcome
	r.saveLocked(ctx)
}

// saveLocked persists a copy of the execution; r.mu must be held so saves of
// one execution reach the store in order.
func (r *run) saveLocked(ctx context.Context) {
	if err := r.eng.audit.SaveExecution(ctx, r.exec.Copy()); err != nil {
		logger.Error("error in saving execution", append(r.logFields(""), zap.Error(err))...)
	}
}

// finalStatus is FAILED when a required action failed, COMPLETED otherwise.
func (r *run) finalStatus() (model.ExecutionStatus, []string) {
	var failed []string
	for id, n := range r.exec.Nodes {
		if n.Kind != model.ACTION || n.Status != model.NODE_FAILED {
			continue
		}
		node, err := r.p.snap.graph.Node(id)
		if err != nil {
			continue
		}
		required, found, err := flow.Bool(node.Config, "required")
		if err != nil || !found {
			required = true
		}
		if required {
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		return model.FAILED, failed
	}
	return model.COMPLETED, nil
}

func (r *run) finish(ctx context.Context) {
	r.mu.Lock()
	status, failed := r.finalStatus()
	r.mu.Unlock()

	entry := model.AuditEntry{
		Type:        model.AUDIT_EXECUTION_END,
		FlowId:      r.ectx.FlowId,
		ExecutionId: r.ectx.ExecutionId,
		Subject:     r.ectx.Subject,
		EventRef:    r.p.event.Id,
		Status:      string(status),
	}
	if len(failed) > 0 {
		entry.Data = map[string]any{"failedActions": failed}
	}
	r.eng.audit.Record(ctx, entry)

	r.mu.Lock()
	r.exec.Status = status
	r.exec.EndedAt = time.Now()
	escalated := r.exec.Escalated
	r.saveLocked(ctx)
	elapsed := r.exec.EndedAt.Sub(r.exec.StartedAt)
	r.mu.Unlock()

	metrics.ExecutionsTotal.WithLabelValues(string(status)).Inc()
	metrics.ExecutionDuration.Observe(elapsed.Seconds())
	logger.Info("execution finished", append(r.logFields(""), zap.String("status", string(status)), zap.Bool("escalated", escalated), zap.Duration("elapsed", elapsed))...)
}

// escalate marks the execution escalated once. It reports false when the
// execution already finished or was escalated before.
func (r *run) escalate(ctx context.Context, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exec.Escalated || r.exec.Status.Terminal() {
		return false
	}
	r.exec.Escalated = true
	r.exec.EscalatedAt = now
	r.exec.Status = model.ESCALATED
	r.saveLocked(ctx)
	return true
}
