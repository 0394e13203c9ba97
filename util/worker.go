package util

import (
	"sync"

	"github.com/mohitkumar/autoflow/logger"
	"go.uber.org/zap"
)

// Worker drains a bounded channel on a single goroutine until stopped.
type Worker[T any] struct {
	name     string
	stop     chan struct{}
	wg       *sync.WaitGroup
	handler  func(T) error
	itemChan chan T
}

func (w *Worker[T]) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		for {
			select {
			case item := <-w.itemChan:
				err := w.handler(item)
				if err != nil {
					logger.Error("error in handling item in worker", zap.String("worker", w.name), zap.Error(err))
				}
			case <-w.stop:
				logger.Info("stopping worker", zap.String("worker", w.name))
				return
			}
		}
	}()
}

// TrySend enqueues without blocking and reports whether the item was accepted.
func (w *Worker[T]) TrySend(item T) bool {
	select {
	case w.itemChan <- item:
		return true
	default:
		return false
	}
}

func (w *Worker[T]) Stop() {
	close(w.stop)
}

func NewWorker[T any](name string, wg *sync.WaitGroup, handler func(T) error, capacity int) *Worker[T] {
	return &Worker[T]{
		itemChan: make(chan T, capacity),
		name:     name,
		wg:       wg,
		stop:     make(chan struct{}),
		handler:  handler,
	}
}
