package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/persistence"
	"github.com/mohitkumar/autoflow/util"
	c "github.com/patrickmn/go-cache"
)

var _ persistence.Storage = new(Storage)

// Storage keeps flows for the process lifetime and executions plus their
// audit trail for a retention window after they finish.
type Storage struct {
	mu        sync.RWMutex
	flows     map[string]*model.AutomationFlow
	auditLock *util.StripedLock
	execs     *c.Cache
	audit     *c.Cache
	retention time.Duration
	flowCap   int
}

func NewStorage(retention time.Duration) *Storage {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Storage{
		flows:     make(map[string]*model.AutomationFlow),
		execs:     c.New(retention, 10*time.Minute),
		audit:     c.New(retention, 10*time.Minute),
		auditLock: util.NewStripedLock(64),
		retention: retention,
		flowCap:   persistence.MAX_FLOW_AUDIT_ENTRIES,
	}
}

func (s *Storage) SaveFlow(ctx context.Context, fl *model.AutomationFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[fl.Id] = fl.Clone()
	return nil
}

func (s *Storage) GetFlow(ctx context.Context, id string) (*model.AutomationFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fl, ok := s.flows[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return fl.Clone(), nil
}

func (s *Storage) DeleteFlow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flows[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.flows, id)
	return nil
}

func (s *Storage) ListFlows(ctx context.Context) ([]*model.AutomationFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]*model.AutomationFlow, 0, len(s.flows))
	for _, fl := range s.flows {
		res = append(res, fl.Clone())
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt) ||
			(res[i].CreatedAt.Equal(res[j].CreatedAt) && res[i].Id < res[j].Id)
	})
	return res, nil
}

func (s *Storage) SaveExecution(ctx context.Context, exec *model.Execution) error {
	ttl := c.NoExpiration
	if exec.Status.Terminal() {
		ttl = s.retention
	}
	s.execs.Set(exec.Id, exec.Copy(), ttl)
	return nil
}

func (s *Storage) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	v, found := s.execs.Get(id)
	if !found {
		return nil, persistence.ErrNotFound
	}
	return v.(*model.Execution).Copy(), nil
}

func (s *Storage) ListExecutions(ctx context.Context, flowId string, filter model.ExecutionFilter) ([]*model.Execution, error) {
	var res []*model.Execution
	for _, item := range s.execs.Items() {
		exec := item.Object.(*model.Execution)
		if exec.FlowId != flowId || !filter.Accept(exec) {
			continue
		}
		res = append(res, exec.Copy())
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].StartedAt.After(res[j].StartedAt)
	})
	if filter.Limit > 0 && len(res) > filter.Limit {
		res = res[:filter.Limit]
	}
	return res, nil
}

func (s *Storage) Append(ctx context.Context, entry model.AuditEntry) error {
	key := auditKey(entry)
	lock := s.auditLock.For(key)
	lock.Lock()
	defer lock.Unlock()
	var entries []model.AuditEntry
	if v, found := s.audit.Get(key); found {
		entries = v.([]model.AuditEntry)
	}
	entries = append(entries, entry)
	if entry.ExecutionId == "" && len(entries) > s.flowCap {
		n := copy(entries, entries[len(entries)-s.flowCap:])
		entries = entries[:n]
	}
	s.audit.Set(key, entries, c.DefaultExpiration)
	return nil
}

func (s *Storage) Entries(ctx context.Context, executionId string) ([]model.AuditEntry, error) {
	return s.entries(executionId), nil
}

func (s *Storage) FlowEntries(ctx context.Context, flowId string) ([]model.AuditEntry, error) {
	return s.entries(auditKey(model.AuditEntry{FlowId: flowId})), nil
}

func (s *Storage) entries(key string) []model.AuditEntry {
	lock := s.auditLock.For(key)
	lock.Lock()
	defer lock.Unlock()
	v, found := s.audit.Get(key)
	if !found {
		return []model.AuditEntry{}
	}
	entries := v.([]model.AuditEntry)
	return append([]model.AuditEntry(nil), entries...)
}

// entries that happen before an execution exists are grouped per flow
func auditKey(entry model.AuditEntry) string {
	if entry.ExecutionId != "" {
		return entry.ExecutionId
	}
	return "flow:" + entry.FlowId
}
