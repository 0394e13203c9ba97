package executor

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/util"
	"go.uber.org/zap"
)

var _ Executor = new(EscalationExecutor)

// Escalator is the part of the engine the escalation monitor drives.
type Escalator interface {
	Overdue(now time.Time) []string
	Escalate(ctx context.Context, executionId string) bool
}

// EscalationExecutor periodically escalates executions that are still
// running past their deadline.
type EscalationExecutor struct {
	escalator Escalator
	interval  time.Duration
	wg        *sync.WaitGroup
	stop      chan struct{}
	now       func() time.Time
}

func NewEscalationExecutor(escalator Escalator, interval time.Duration, wg *sync.WaitGroup) *EscalationExecutor {
	if interval <= 0 {
		interval = time.Second
	}
	return &EscalationExecutor{
		escalator: escalator,
		interval:  interval,
		wg:        wg,
		stop:      make(chan struct{}),
		now:       time.Now,
	}
}

func (ex *EscalationExecutor) Name() string {
	return "escalation-executor"
}

// scan escalates every overdue execution and returns how many were escalated.
func (ex *EscalationExecutor) scan() int {
	n := 0
	for _, id := range ex.escalator.Overdue(ex.now()) {
		if ex.escalator.Escalate(context.Background(), id) {
			n++
		}
	}
	if n > 0 {
		logger.Info("escalated overdue executions", zap.Int("count", n))
	}
	return n
}

func (ex *EscalationExecutor) Start() error {
	fn := func() {
		ex.scan()
	}
	tw := util.NewTickWorker("escalation-worker", ex.interval, ex.stop, fn, ex.wg)
	tw.Start()
	logger.Info("escalation executor started")
	return nil
}

func (ex *EscalationExecutor) Stop() error {
	ex.stop <- struct{}{}
	return nil
}
