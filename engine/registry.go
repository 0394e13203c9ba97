package engine

import (
	"sort"
	"sync"

	"github.com/mohitkumar/autoflow/flow"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/metadata"
	"github.com/mohitkumar/autoflow/model"
	"go.uber.org/zap"
)

// snapshot is an immutable, validated flow version that executions capture
// by reference.
type snapshot struct {
	flow     *model.AutomationFlow
	graph    *model.Graph
	triggers []*model.Node
}

func newSnapshot(fl *model.AutomationFlow) *snapshot {
	fl = fl.Clone()
	g := model.NewGraph(fl)
	return &snapshot{
		flow:     fl,
		graph:    g,
		triggers: g.Roots(),
	}
}

// Registry holds the active (enabled and valid) version of every flow.
type Registry struct {
	flows     sync.Map // flowId -> *snapshot
	listeners []func(flowId string, snap *snapshot)
}

func NewRegistry() *Registry {
	return &Registry{}
}

// onSwap is called after a flow is activated (snap != nil) or deactivated.
func (r *Registry) onSwap(fn func(flowId string, snap *snapshot)) {
	r.listeners = append(r.listeners, fn)
}

// Activate installs fl as the active version after validating it again.
// Activating the version that is already active keeps the current snapshot.
func (r *Registry) Activate(fl *model.AutomationFlow) error {
	if cur, ok := r.get(fl.Id); ok && cur.flow.Version == fl.Version {
		return nil
	}
	if err := flow.Validate(fl); err != nil {
		logger.Error("refusing to activate invalid flow", zap.String("flowId", fl.Id), zap.Error(err))
		r.Deactivate(fl.Id)
		return err
	}
	snap := newSnapshot(fl)
	r.flows.Store(fl.Id, snap)
	logger.Info("flow activated", zap.String("flowId", fl.Id), zap.Int("version", fl.Version))
	for _, fn := range r.listeners {
		fn(fl.Id, snap)
	}
	return nil
}

func (r *Registry) Deactivate(flowId string) {
	if _, loaded := r.flows.LoadAndDelete(flowId); !loaded {
		return
	}
	logger.Info("flow deactivated", zap.String("flowId", flowId))
	for _, fn := range r.listeners {
		fn(flowId, nil)
	}
}

func (r *Registry) get(flowId string) (*snapshot, bool) {
	v, ok := r.flows.Load(flowId)
	if !ok {
		return nil, false
	}
	return v.(*snapshot), true
}

// isCurrent reports whether snap is still the active version of its flow.
func (r *Registry) isCurrent(snap *snapshot) bool {
	cur, ok := r.get(snap.flow.Id)
	return ok && cur == snap
}

func (r *Registry) active() []*snapshot {
	var res []*snapshot
	r.flows.Range(func(_, v any) bool {
		res = append(res, v.(*snapshot))
		return true
	})
	sort.Slice(res, func(i, j int) bool {
		return res[i].flow.Id < res[j].flow.Id
	})
	return res
}

// ActiveFlows returns the ids of the flows currently admitting executions.
func (r *Registry) ActiveFlows() []string {
	snaps := r.active()
	ids := make([]string, len(snaps))
	for i, s := range snaps {
		ids[i] = s.flow.Id
	}
	return ids
}

// HandleChange keeps the registry in step with committed flow changes.
func (r *Registry) HandleChange(change metadata.FlowChange) {
	if change.Flow == nil || !change.Flow.Enabled {
		r.Deactivate(change.FlowId)
		return
	}
	_ = r.Activate(change.Flow)
}
