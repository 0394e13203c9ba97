package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/autoflow/flow"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/persistence"
	"github.com/mohitkumar/autoflow/util"
	"go.uber.org/zap"
)

var ErrFlowExists = errors.New("flow already exists")

type ChangeType string

const FLOW_CREATED ChangeType = "CREATED"
const FLOW_UPDATED ChangeType = "UPDATED"
const FLOW_ENABLED ChangeType = "ENABLED"
const FLOW_DISABLED ChangeType = "DISABLED"
const FLOW_DELETED ChangeType = "DELETED"

// FlowChange is delivered to subscribers after a change is committed. Flow is
// nil for deletions.
type FlowChange struct {
	Type   ChangeType
	FlowId string
	Flow   *model.AutomationFlow
}

type MetadataService interface {
	CreateFlow(ctx context.Context, fl *model.AutomationFlow) (*model.AutomationFlow, error)
	UpdateFlow(ctx context.Context, fl *model.AutomationFlow) (*model.AutomationFlow, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (*model.AutomationFlow, error)
	GetFlow(ctx context.Context, id string) (*model.AutomationFlow, error)
	ListFlows(ctx context.Context) ([]*model.AutomationFlow, error)
	DeleteFlow(ctx context.Context, id string) error
	Subscribe(fn func(FlowChange))
}

var _ MetadataService = new(MetadataServiceImpl)

type MetadataServiceImpl struct {
	store       persistence.FlowStore
	locks       *util.StripedLock
	subMu       sync.RWMutex
	subscribers []func(FlowChange)
	now         func() time.Time
}

func NewMetadataService(store persistence.FlowStore) *MetadataServiceImpl {
	return &MetadataServiceImpl{
		store: store,
		locks: util.NewStripedLock(64),
		now:   time.Now,
	}
}

// Subscribe registers fn for every later change. Changes to one flow are
// delivered in commit order.
func (s *MetadataServiceImpl) Subscribe(fn func(FlowChange)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *MetadataServiceImpl) notify(change FlowChange) {
	s.subMu.RLock()
	subs := make([]func(FlowChange), len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()
	for _, fn := range subs {
		var fl *model.AutomationFlow
		if change.Flow != nil {
			fl = change.Flow.Clone()
		}
		fn(FlowChange{Type: change.Type, FlowId: change.FlowId, Flow: fl})
	}
}

func (s *MetadataServiceImpl) CreateFlow(ctx context.Context, in *model.AutomationFlow) (*model.AutomationFlow, error) {
	fl := in.Clone()
	if fl.Id == "" {
		fl.Id = uuid.NewString()
	}
	lock := s.locks.For(fl.Id)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.store.GetFlow(ctx, fl.Id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrFlowExists, fl.Id)
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}
	if err := flow.Validate(fl); err != nil {
		logger.Info("rejecting invalid flow", zap.String("flowId", fl.Id), zap.Error(err))
		return nil, err
	}
	now := s.now()
	fl.Version = 1
	fl.CreatedAt = now
	fl.UpdatedAt = now
	if err := s.store.SaveFlow(ctx, fl); err != nil {
		return nil, err
	}
	logger.Info("flow created", zap.String("flowId", fl.Id), zap.Bool("enabled", fl.Enabled))
	s.notify(FlowChange{Type: FLOW_CREATED, FlowId: fl.Id, Flow: fl})
	return fl.Clone(), nil
}

// UpdateFlow replaces the definition of an existing flow. The new definition
// is validated in full and gets the next version number; running executions
// keep the version they started with.
func (s *MetadataServiceImpl) UpdateFlow(ctx context.Context, in *model.AutomationFlow) (*model.AutomationFlow, error) {
	fl := in.Clone()
	lock := s.locks.For(fl.Id)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.store.GetFlow(ctx, fl.Id)
	if err != nil {
		return nil, err
	}
	if err := flow.Validate(fl); err != nil {
		logger.Info("rejecting invalid flow update", zap.String("flowId", fl.Id), zap.Error(err))
		return nil, err
	}
	fl.Version = existing.Version + 1
	fl.CreatedAt = existing.CreatedAt
	fl.UpdatedAt = s.now()
	if err := s.store.SaveFlow(ctx, fl); err != nil {
		return nil, err
	}
	logger.Info("flow updated", zap.String("flowId", fl.Id), zap.Int("version", fl.Version))
	s.notify(FlowChange{Type: FLOW_UPDATED, FlowId: fl.Id, Flow: fl})
	return fl.Clone(), nil
}

func (s *MetadataServiceImpl) SetEnabled(ctx context.Context, id string, enabled bool) (*model.AutomationFlow, error) {
	lock := s.locks.For(id)
	lock.Lock()
	defer lock.Unlock()

	fl, err := s.store.GetFlow(ctx, id)
	if err != nil {
		return nil, err
	}
	if fl.Enabled == enabled {
		return fl, nil
	}
	if enabled {
		if err := flow.Validate(fl); err != nil {
			return nil, err
		}
	}
	fl.Enabled = enabled
	fl.UpdatedAt = s.now()
	if err := s.store.SaveFlow(ctx, fl); err != nil {
		return nil, err
	}
	change := FLOW_DISABLED
	if enabled {
		change = FLOW_ENABLED
	}
	logger.Info("flow state changed", zap.String("flowId", id), zap.Bool("enabled", enabled))
	s.notify(FlowChange{Type: change, FlowId: id, Flow: fl})
	return fl.Clone(), nil
}

func (s *MetadataServiceImpl) GetFlow(ctx context.Context, id string) (*model.AutomationFlow, error) {
	return s.store.GetFlow(ctx, id)
}

func (s *MetadataServiceImpl) ListFlows(ctx context.Context) ([]*model.AutomationFlow, error) {
	return s.store.ListFlows(ctx)
}

func (s *MetadataServiceImpl) DeleteFlow(ctx context.Context, id string) error {
	lock := s.locks.For(id)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.DeleteFlow(ctx, id); err != nil {
		return err
	}
	logger.Info("flow deleted", zap.String("flowId", id))
	s.notify(FlowChange{Type: FLOW_DELETED, FlowId: id})
	return nil
}
