package executor

import (
	"sync"
	"time"

	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/util"
	"go.uber.org/zap"
)

var _ Executor = new(WindowJanitorExecutor)

type WindowEvictor interface {
	EvictIdle(now time.Time) int
}

// WindowJanitorExecutor drops threshold windows of subjects that stopped
// breaching, so the window map does not grow with every subject ever seen.
type WindowJanitorExecutor struct {
	evictor  WindowEvictor
	interval time.Duration
	wg       *sync.WaitGroup
	stop     chan struct{}
}

func NewWindowJanitorExecutor(evictor WindowEvictor, interval time.Duration, wg *sync.WaitGroup) *WindowJanitorExecutor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &WindowJanitorExecutor{
		evictor:  evictor,
		interval: interval,
		wg:       wg,
		stop:     make(chan struct{}),
	}
}

func (ex *WindowJanitorExecutor) Name() string {
	return "window-janitor-executor"
}

func (ex *WindowJanitorExecutor) Start() error {
	fn := func() {
		if n := ex.evictor.EvictIdle(time.Now()); n > 0 {
			logger.Debug("evicted idle threshold windows", zap.Int("count", n))
		}
	}
	tw := util.NewTickWorker("window-janitor-worker", ex.interval, ex.stop, fn, ex.wg)
	tw.Start()
	logger.Info("window janitor executor started")
	return nil
}

func (ex *WindowJanitorExecutor) Stop() error {
	ex.stop <- struct{}{}
	return nil
}
