package action

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mohitkumar/autoflow/model"
)

// ActionBackend performs the side effect of an action subtype. retryable
// tells the executor whether a failed invocation may be attempted again.
type ActionBackend interface {
	Execute(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) (retryable bool, err error)
}

type BackendFunc func(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) (bool, error)

func (f BackendFunc) Execute(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) (bool, error) {
	return f(ctx, subtype, config, ectx)
}

var ErrTimeout = errors.New("action timed out")

// Error is the terminal error of an action node after all attempts.
type Error struct {
	NodeId    string
	Attempts  int
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("action %s failed after %d attempt(s) (%s): %v", e.NodeId, e.Attempts, kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Registry maps action subtypes to backends. Subtypes without a backend use
// the fallback.
type Registry struct {
	mu       sync.RWMutex
	backends map[model.Subtype]ActionBackend
	fallback ActionBackend
}

func NewRegistry(fallback ActionBackend) *Registry {
	return &Registry{
		backends: make(map[model.Subtype]ActionBackend),
		fallback: fallback,
	}
}

func (r *Registry) Register(subtype model.Subtype, backend ActionBackend) error {
	if !model.ACTION.Allows(subtype) {
		return fmt.Errorf("%q is not an action subtype", subtype)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[subtype] = backend
	return nil
}

func (r *Registry) Get(subtype model.Subtype) ActionBackend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.backends[subtype]; ok {
		return b
	}
	return r.fallback
}
