package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/mohitkumar/autoflow/config"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/metrics"
	"github.com/mohitkumar/autoflow/model"
	"go.uber.org/zap"
)

type AdmissionResult string

const ADMITTED AdmissionResult = "ADMITTED"
const QUEUED AdmissionResult = "QUEUED"
const SUPPRESSED AdmissionResult = "SUPPRESSED"
const OVERFLOW AdmissionResult = "OVERFLOW"
const INACTIVE AdmissionResult = "INACTIVE"

var ErrDuplicate = errors.New("execution already running for trigger and subject")
var ErrOverflow = errors.New("flow admission queue is full")
var ErrAdmissionWait = errors.New("admission wait exceeded")
var ErrFlowInactive = errors.New("flow version is no longer active")

// Admission is the scheduling decision for one trigger match.
type Admission struct {
	FlowId        string          `json:"flowId"`
	TriggerNodeId string          `json:"triggerNodeId"`
	Subject       string          `json:"subject"`
	ExecutionId   string          `json:"executionId,omitempty"`
	Result        AdmissionResult `json:"result"`
}

type dedupKey struct {
	triggerNodeId string
	subject       string
}

// pending is a trigger match waiting for, or holding, an execution slot.
type pending struct {
	id         string
	snap       *snapshot
	trigger    *model.Node
	event      model.Event
	enqueuedAt time.Time
}

func (p *pending) key() dedupKey {
	return dedupKey{triggerNodeId: p.trigger.Id, subject: p.event.Subject}
}

// flowSlot is the admission state of one flow. Each flow has its own lock.
type flowSlot struct {
	mu      sync.Mutex
	running int
	active  map[dedupKey]string
	queued  map[dedupKey]bool
	queue   []*pending
}

type dropped struct {
	p   *pending
	err error
}

type scheduler struct {
	conf     config.EngineConfig
	registry *Registry
	slots    sync.Map // flowId -> *flowSlot
	start    func(p *pending)
	drop     func(p *pending, err error)
	now      func() time.Time
}

func (s *scheduler) slot(flowId string) *flowSlot {
	v, _ := s.slots.LoadOrStore(flowId, &flowSlot{
		active: make(map[dedupKey]string),
		queued: make(map[dedupKey]bool),
	})
	return v.(*flowSlot)
}

// admit decides whether p starts now, waits in the flow's queue, or is
// suppressed. It never blocks on anything but the flow's own lock.
func (s *scheduler) admit(p *pending) AdmissionResult {
	sl := s.slot(p.snap.flow.Id)
	sl.mu.Lock()
	if !s.registry.isCurrent(p.snap) {
		sl.mu.Unlock()
		return INACTIVE
	}
	key := p.key()
	if _, ok := sl.active[key]; ok || sl.queued[key] {
		sl.mu.Unlock()
		metrics.AdmissionsTotal.WithLabelValues(string(SUPPRESSED)).Inc()
		return SUPPRESSED
	}
	if sl.running < s.conf.MaxConcurrentPerFlow {
		sl.running++
		sl.active[key] = p.id
		sl.mu.Unlock()
		metrics.AdmissionsTotal.WithLabelValues(string(ADMITTED)).Inc()
		s.start(p)
		return ADMITTED
	}
	if len(sl.queue) >= s.conf.AdmissionQueueSize {
		sl.mu.Unlock()
		metrics.AdmissionsTotal.WithLabelValues(string(OVERFLOW)).Inc()
		return OVERFLOW
	}
	p.enqueuedAt = s.now()
	sl.queue = append(sl.queue, p)
	sl.queued[key] = true
	sl.mu.Unlock()
	metrics.AdmissionsTotal.WithLabelValues(string(QUEUED)).Inc()
	return QUEUED
}

// release frees the slot held by a finished execution and starts queued
// matches in FIFO order while capacity allows.
func (s *scheduler) release(p *pending) {
	sl := s.slot(p.snap.flow.Id)
	sl.mu.Lock()
	sl.running--
	delete(sl.active, p.key())
	starts, drops := s.drain(sl)
	sl.mu.Unlock()
	s.finishDrain(starts, drops)
}

// sweep drops queued matches that waited too long or whose flow version is
// no longer active, then fills free capacity.
func (s *scheduler) sweep() {
	s.slots.Range(func(_, v any) bool {
		sl := v.(*flowSlot)
		sl.mu.Lock()
		starts, drops := s.drain(sl)
		sl.mu.Unlock()
		s.finishDrain(starts, drops)
		return true
	})
}

// drain must be called with sl.mu held.
func (s *scheduler) drain(sl *flowSlot) ([]*pending, []dropped) {
	var starts []*pending
	var drops []dropped
	now := s.now()
	kept := sl.queue[:0]
	for _, p := range sl.queue {
		switch {
		case !s.registry.isCurrent(p.snap):
			delete(sl.queued, p.key())
			drops = append(drops, dropped{p: p, err: ErrFlowInactive})
		case s.conf.AdmissionWait > 0 && now.Sub(p.enqueuedAt) > s.conf.AdmissionWait:
			delete(sl.queued, p.key())
			drops = append(drops, dropped{p: p, err: ErrAdmissionWait})
		case sl.running < s.conf.MaxConcurrentPerFlow:
			delete(sl.queued, p.key())
			sl.running++
			sl.active[p.key()] = p.id
			starts = append(starts, p)
		default:
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(sl.queue); i++ {
		sl.queue[i] = nil
	}
	sl.queue = kept
	return starts, drops
}

func (s *scheduler) finishDrain(starts []*pending, drops []dropped) {
	for _, d := range drops {
		metrics.AdmissionsTotal.WithLabelValues(string(OVERFLOW)).Inc()
		logger.Warn("dropping queued trigger match", zap.String("flowId", d.p.snap.flow.Id),
			zap.String("nodeId", d.p.trigger.Id), zap.String("subject", d.p.event.Subject), zap.Error(d.err))
		s.drop(d.p, d.err)
	}
	for _, p := range starts {
		metrics.AdmissionsTotal.WithLabelValues(string(ADMITTED)).Inc()
		s.start(p)
	}
}

// dropFlow discards the queue of a flow right away, used on deactivation.
func (s *scheduler) dropFlow(flowId string) {
	v, ok := s.slots.Load(flowId)
	if !ok {
		return
	}
	sl := v.(*flowSlot)
	sl.mu.Lock()
	starts, drops := s.drain(sl)
	sl.mu.Unlock()
	s.finishDrain(starts, drops)
}

// stats returns running and queued counts of a flow.
func (s *scheduler) stats(flowId string) (int, int) {
	v, ok := s.slots.Load(flowId)
	if !ok {
		return 0, 0
	}
	sl := v.(*flowSlot)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.running, len(sl.queue)
}
