package matcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/autoflow/flow"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/model"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type scheduleKey struct {
	flowId string
	nodeId string
}

// Ticker emits scheduled events for scheduled trigger nodes on their cron
// recurrence, independent of the external event source.
type Ticker struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[scheduleKey]cron.EntryID
	emit    func(model.Event)
}

func NewTicker(emit func(model.Event)) *Ticker {
	return &Ticker{
		cron:    cron.New(),
		entries: make(map[scheduleKey]cron.EntryID),
		emit:    emit,
	}
}

func (t *Ticker) Name() string {
	return "schedule-ticker"
}

func (t *Ticker) Start() error {
	t.cron.Start()
	logger.Info("schedule ticker started")
	return nil
}

func (t *Ticker) Stop() error {
	<-t.cron.Stop().Done()
	return nil
}

// Schedule replaces the schedule of a scheduled trigger node.
func (t *Ticker) Schedule(flowId string, node *model.Node) error {
	spec, _, err := flow.String(node.Config, "cron")
	if err != nil {
		return err
	}
	subject, _, _ := flow.String(node.Config, "subject")
	if subject == "" || subject == "*" {
		subject = flowId
	}
	key := scheduleKey{flowId: flowId, nodeId: node.Id}
	nodeId := node.Id
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.entries[key]; ok {
		t.cron.Remove(id)
		delete(t.entries, key)
	}
	id, err := t.cron.AddFunc(spec, func() {
		t.Tick(flowId, nodeId, subject)
	})
	if err != nil {
		return fmt.Errorf("node %s: %w", nodeId, err)
	}
	t.entries[key] = id
	logger.Debug("scheduled trigger registered", zap.String("flowId", flowId), zap.String("nodeId", nodeId), zap.String("cron", spec))
	return nil
}

// Unschedule removes every schedule belonging to the flow.
func (t *Ticker) Unschedule(flowId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, id := range t.entries {
		if key.flowId == flowId {
			t.cron.Remove(id)
			delete(t.entries, key)
		}
	}
}

// Scheduled returns the number of registered schedules.
func (t *Ticker) Scheduled() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Tick emits one scheduled event for the node, as the cron entry would.
func (t *Ticker) Tick(flowId, nodeId, subject string) {
	t.emit(model.Event{
		Id:        uuid.NewString(),
		Subtype:   model.TRIGGER_SCHEDULED,
		Subject:   subject,
		Timestamp: time.Now(),
		Payload: map[string]any{
			PAYLOAD_FLOW_ID: flowId,
			PAYLOAD_NODE_ID: nodeId,
		},
	})
}
