package executor

import (
	"sync"
	"time"

	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/util"
)

var _ Executor = new(AdmissionSweepExecutor)

type Sweeper interface {
	Sweep()
}

// AdmissionSweepExecutor expires queued trigger matches that waited longer
// than the admission wait, even when no execution of their flow finishes.
type AdmissionSweepExecutor struct {
	sweeper  Sweeper
	interval time.Duration
	wg       *sync.WaitGroup
	stop     chan struct{}
}

func NewAdmissionSweepExecutor(sweeper Sweeper, interval time.Duration, wg *sync.WaitGroup) *AdmissionSweepExecutor {
	if interval <= 0 {
		interval = time.Second
	}
	return &AdmissionSweepExecutor{
		sweeper:  sweeper,
		interval: interval,
		wg:       wg,
		stop:     make(chan struct{}),
	}
}

func (ex *AdmissionSweepExecutor) Name() string {
	return "admission-sweep-executor"
}

func (ex *AdmissionSweepExecutor) Start() error {
	tw := util.NewTickWorker("admission-sweep-worker", ex.interval, ex.stop, ex.sweeper.Sweep, ex.wg)
	tw.Start()
	logger.Info("admission sweep executor started")
	return nil
}

func (ex *AdmissionSweepExecutor) Stop() error {
	ex.stop <- struct{}{}
	return nil
}
