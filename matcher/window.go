package matcher

import (
	"sync"
	"time"

	"github.com/mohitkumar/autoflow/flow"
	"github.com/mohitkumar/autoflow/model"
)

type windowKey struct {
	flowId  string
	nodeId  string
	subject string
}

// window tracks one uninterrupted run of breaching samples.
type window struct {
	mu       sync.Mutex
	start    time.Time
	last     time.Time
	duration time.Duration
	active   bool
	evicted  bool
}

func (m *Matcher) matchThreshold(flowId string, node *model.Node, ev *model.Event) (bool, error) {
	threshold, _, err := flow.Number(node.Config, "threshold")
	if err != nil {
		return false, err
	}
	duration, _, err := flow.Duration(node.Config, "duration")
	if err != nil {
		return false, err
	}
	breach := *ev.Value >= threshold
	key := windowKey{flowId: flowId, nodeId: node.Id, subject: ev.Subject}
	if duration <= 0 {
		return breach, nil
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = m.now()
	}
	if !breach {
		if v, ok := m.windows.Load(key); ok {
			w := v.(*window)
			w.mu.Lock()
			w.active = false
			w.mu.Unlock()
		}
		return false, nil
	}
	for {
		v, _ := m.windows.LoadOrStore(key, &window{})
		w := v.(*window)
		w.mu.Lock()
		if w.evicted {
			w.mu.Unlock()
			continue
		}
		fired := w.observe(ts, duration)
		w.mu.Unlock()
		return fired, nil
	}
}

// observe records a breaching sample and reports whether the breach has now
// been sustained for the full duration. Firing re-arms the window.
func (w *window) observe(ts time.Time, duration time.Duration) bool {
	w.duration = duration
	if !w.active || ts.Sub(w.last) > duration {
		w.active = true
		w.start = ts
		w.last = ts
		return false
	}
	if ts.After(w.last) {
		w.last = ts
	}
	if w.last.Sub(w.start) >= duration {
		w.active = false
		return true
	}
	return false
}

// EvictIdle drops windows that are not tracking a breach or that have seen no
// breaching sample for longer than their duration.
func (m *Matcher) EvictIdle(now time.Time) int {
	evicted := 0
	m.windows.Range(func(k, v any) bool {
		w := v.(*window)
		w.mu.Lock()
		if !w.active || now.Sub(w.last) > w.duration {
			w.evicted = true
			m.windows.Delete(k)
			evicted++
		}
		w.mu.Unlock()
		return true
	})
	return evicted
}

// DropFlow forgets every window of a flow, used when its definition changes
// or it is deactivated.
func (m *Matcher) DropFlow(flowId string) {
	m.windows.Range(func(k, v any) bool {
		if k.(windowKey).flowId != flowId {
			return true
		}
		w := v.(*window)
		w.mu.Lock()
		w.evicted = true
		m.windows.Delete(k)
		w.mu.Unlock()
		return true
	})
}

// Windows returns the number of live windows.
func (m *Matcher) Windows() int {
	n := 0
	m.windows.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

