package outcome

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mohitkumar/autoflow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (r *recorder) Record(ctx context.Context, entry model.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func emailNode() *model.Node {
	return &model.Node{Id: "o1", Kind: model.OUTCOME, Subtype: model.OUTCOME_EMAIL, Config: map[string]any{"to": "ops@example.com", "subject": "incident on {$.execution.subject}"}}
}

func ectx() model.ExecutionContext {
	return model.ExecutionContext{ExecutionId: "e1", FlowId: "f1", Subject: "r1"}
}

func TestDispatcher(t *testing.T) {
	for scenario, tc := range map[string]struct {
		failures []error
		status   model.NodeStatus
		attempts int
	}{
		"delivered first time":               {nil, model.NODE_SUCCEEDED, 1},
		"transport error is retried once":    {[]error{&TransportError{Err: errors.New("smtp reset")}}, model.NODE_SUCCEEDED, 2},
		"second transport error gives up":    {[]error{&TransportError{Err: errors.New("a")}, &TransportError{Err: errors.New("b")}}, model.NODE_FAILED, 2},
		"other errors are not retried":       {[]error{errors.New("mailbox unknown")}, model.NODE_FAILED, 1},
		"wrapped transport error is retried": {[]error{errors.Join(errors.New("ctx"), &TransportError{Err: errors.New("x")})}, model.NODE_SUCCEEDED, 2},
	} {
		t.Run(scenario, func(t *testing.T) {
			var calls atomic.Int32
			var subjects []any
			registry := NewRegistry(NewLogChannel())
			require.NoError(t, registry.Register(model.OUTCOME_EMAIL, ChannelFunc(func(_ context.Context, _ model.Subtype, cfg map[string]any, _ model.ExecutionContext) error {
				n := int(calls.Add(1))
				subjects = append(subjects, cfg["subject"])
				if n <= len(tc.failures) {
					return tc.failures[n-1]
				}
				return nil
			})))
			rec := &recorder{}
			d := NewDispatcher(registry, rec, 0)
			out := d.Dispatch(context.Background(), emailNode(), ectx())
			assert.Equal(t, tc.status, out.Status)
			assert.Equal(t, tc.attempts, out.Attempts)
			assert.Equal(t, tc.attempts, int(calls.Load()))
			assert.Equal(t, "incident on r1", subjects[0])
			require.Len(t, rec.entries, 1)
			assert.Equal(t, model.AUDIT_OUTCOME_DISPATCH, rec.entries[0].Type)
			assert.Equal(t, string(tc.status), rec.entries[0].Status)
		})
	}
}

func TestFallbackChannel(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(NewRegistry(NewLogChannel()), rec, 0)
	out := d.Dispatch(context.Background(), &model.Node{Id: "o2", Kind: model.OUTCOME, Subtype: model.OUTCOME_TICKET}, ectx())
	assert.Equal(t, model.NODE_SUCCEEDED, out.Status)
}
