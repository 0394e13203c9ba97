package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohitkumar/autoflow/action"
	"github.com/mohitkumar/autoflow/audit"
	"github.com/mohitkumar/autoflow/config"
	"github.com/mohitkumar/autoflow/matcher"
	"github.com/mohitkumar/autoflow/metadata"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/outcome"
	"github.com/mohitkumar/autoflow/persistence"
	"github.com/mohitkumar/autoflow/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine   *Engine
	store    *memory.Storage
	log      *audit.Log
	actions  *action.Registry
	channels *outcome.Registry
	attempts sync.Map // subtype -> *atomic.Int32
	sent     sync.Map // subtype -> *atomic.Int32
}

func (f *fixture) counter(m *sync.Map, st model.Subtype) *atomic.Int32 {
	v, _ := m.LoadOrStore(st, new(atomic.Int32))
	return v.(*atomic.Int32)
}

func (f *fixture) backend(st model.Subtype, fn func(ctx context.Context) (bool, error)) {
	_ = f.actions.Register(st, action.BackendFunc(func(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) (bool, error) {
		f.counter(&f.attempts, subtype).Add(1)
		return fn(ctx)
	}))
}

func newFixture(t *testing.T, conf config.EngineConfig) *fixture {
	f := &fixture{store: memory.NewStorage(time.Hour)}
	f.log = audit.NewLog(f.store, f.store)
	f.actions = action.NewRegistry(action.BackendFunc(func(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) (bool, error) {
		f.counter(&f.attempts, subtype).Add(1)
		return false, nil
	}))
	f.channels = outcome.NewRegistry(outcome.ChannelFunc(func(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) error {
		f.counter(&f.sent, subtype).Add(1)
		return nil
	}))
	actConf := action.DefaultConfig()
	actConf.BackoffBase = time.Millisecond
	actConf.BackoffMax = 5 * time.Millisecond
	f.engine = NewEngine(conf,
		matcher.NewMatcher(),
		action.NewExecutor(f.actions, f.log, actConf),
		outcome.NewDispatcher(f.channels, f.log, time.Second),
		f.log)
	t.Cleanup(func() {
		_ = f.engine.Stop()
	})
	return f
}

func engineConfig() config.EngineConfig {
	return config.Default().EngineConfig
}

func connectivityFlow(id string) *model.AutomationFlow {
	return &model.AutomationFlow{
		Id:      id,
		Name:    "restart on connectivity loss",
		Enabled: true,
		Version: 1,
		Nodes: []model.Node{
			{Id: "t1", Kind: model.TRIGGER, Subtype: model.TRIGGER_CONNECTIVITY_ISSUE, Config: map[string]any{"severity": "high"}},
			{Id: "a1", Kind: model.ACTION, Subtype: model.ACTION_RESTART_SERVICE, Config: map[string]any{"service": "{$.event.subject}", "retries": 0}},
			{Id: "o1", Kind: model.OUTCOME, Subtype: model.OUTCOME_EMAIL, Config: map[string]any{"to": "ops@example.com"}},
		},
		Edges: []model.Edge{{Source: "t1", Target: "a1"}, {Source: "a1", Target: "o1"}},
	}
}

func fanInFlow(id string) *model.AutomationFlow {
	fl := connectivityFlow(id)
	fl.Nodes = append(fl.Nodes, model.Node{Id: "a2", Kind: model.ACTION, Subtype: model.ACTION_SWITCH_REGION, Config: map[string]any{"targetRegion": "eu-west-1", "retries": 0}})
	fl.Edges = append(fl.Edges, model.Edge{Source: "t1", Target: "a2"}, model.Edge{Source: "a2", Target: "o1"})
	return fl
}

func connectivityEvent(subject string) model.Event {
	return model.Event{Subtype: model.TRIGGER_CONNECTIVITY_ISSUE, Subject: subject, Severity: model.SEVERITY_HIGH}
}

func (f *fixture) fire(t *testing.T, ev model.Event) Admission {
	t.Helper()
	adms, err := f.engine.Process(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, adms, 1)
	return adms[0]
}

func (f *fixture) await(t *testing.T, id string) *model.Execution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exec, err := f.engine.Await(ctx, id)
	require.NoError(t, err)
	return exec
}

func auditTypes(t *testing.T, log *audit.Log, executionId string) []model.AuditType {
	t.Helper()
	entries, err := log.Entries(context.Background(), executionId)
	require.NoError(t, err)
	res := make([]model.AuditType, len(entries))
	for i, e := range entries {
		res[i] = e.Type
	}
	return res
}

func TestEngine(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"single action completes":                  testSingleActionCompletes,
		"permanent failure skips outcome":          testPermanentFailureSkipsOutcome,
		"fan in fires on any successful branch":    testFanInAnySuccess,
		"fan in runs once when both succeed":       testFanInRunsOnce,
		"non required action does not fail":        testNonRequiredAction,
		"duplicate match is suppressed":            testDuplicateSuppressed,
		"per flow bound queues then overflows":     testBoundQueueOverflow,
		"disable stops admission not executions":   testDisableKeepsRunning,
		"replacing a flow drops its queue":         testReplaceDropsQueue,
		"escalation happens once":                  testEscalationOnce,
		"invalid event is rejected":                testInvalidEvent,
		"non matching event admits nothing":        testNoMatch,
		"flow changes reach the active registry":   testHandleChange,
		"published events are processed in worker": testPublish,
		"queued match is dropped after wait":       testAdmissionWaitDrops,
		"same version reactivation keeps queue":    testReactivateSameVersion,
	} {
		t.Run(scenario, fn)
	}
}

func testSingleActionCompletes(t *testing.T) {
	f := newFixture(t, engineConfig())
	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))

	adm := f.fire(t, connectivityEvent("r1"))
	require.Equal(t, ADMITTED, adm.Result)
	exec := f.await(t, adm.ExecutionId)

	assert.Equal(t, model.COMPLETED, exec.Status)
	assert.Equal(t, int32(1), f.counter(&f.attempts, model.ACTION_RESTART_SERVICE).Load())
	assert.Equal(t, int32(1), f.counter(&f.sent, model.OUTCOME_EMAIL).Load())
	assert.Equal(t, model.NODE_SUCCEEDED, exec.Nodes["t1"].Status)
	assert.Equal(t, model.NODE_SUCCEEDED, exec.Nodes["a1"].Status)
	assert.Equal(t, model.NODE_SUCCEEDED, exec.Nodes["o1"].Status)
	assert.False(t, exec.EndedAt.IsZero())

	types := auditTypes(t, f.log, adm.ExecutionId)
	assert.Equal(t, model.AUDIT_FIRED, types[0])
	assert.Contains(t, types, model.AUDIT_ACTION_ATTEMPT)
	assert.Contains(t, types, model.AUDIT_ACTION_RESULT)
	assert.Contains(t, types, model.AUDIT_OUTCOME_DISPATCH)
	assert.Equal(t, model.AUDIT_EXECUTION_END, types[len(types)-1])

	running, queued := f.engine.Stats("f1")
	assert.Equal(t, 0, running)
	assert.Equal(t, 0, queued)
}

func testPermanentFailureSkipsOutcome(t *testing.T) {
	f := newFixture(t, engineConfig())
	f.backend(model.ACTION_RESTART_SERVICE, func(ctx context.Context) (bool, error) {
		return false, errors.New("service not found")
	})
	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))

	exec := f.await(t, f.fire(t, connectivityEvent("r1")).ExecutionId)

	assert.Equal(t, model.FAILED, exec.Status)
	assert.Equal(t, model.NODE_FAILED, exec.Nodes["a1"].Status)
	assert.Equal(t, model.NODE_SKIPPED, exec.Nodes["o1"].Status)
	assert.Equal(t, int32(0), f.counter(&f.sent, model.OUTCOME_EMAIL).Load())
	assert.Contains(t, auditTypes(t, f.log, exec.Id), model.AUDIT_NODE_SKIPPED)
}

func testFanInAnySuccess(t *testing.T) {
	f := newFixture(t, engineConfig())
	f.backend(model.ACTION_RESTART_SERVICE, func(ctx context.Context) (bool, error) {
		return false, errors.New("permission denied")
	})
	require.NoError(t, f.engine.Registry().Activate(fanInFlow("f1")))

	exec := f.await(t, f.fire(t, connectivityEvent("r1")).ExecutionId)

	assert.Equal(t, model.FAILED, exec.Status)
	assert.Equal(t, model.NODE_FAILED, exec.Nodes["a1"].Status)
	assert.Equal(t, model.NODE_SUCCEEDED, exec.Nodes["a2"].Status)
	assert.Equal(t, model.NODE_SUCCEEDED, exec.Nodes["o1"].Status)
	assert.Equal(t, int32(1), f.counter(&f.sent, model.OUTCOME_EMAIL).Load())
}

func testFanInRunsOnce(t *testing.T) {
	f := newFixture(t, engineConfig())
	var barrier atomic.Pointer[sync.WaitGroup]
	together := func(ctx context.Context) (bool, error) {
		wg := barrier.Load()
		wg.Done()
		wg.Wait()
		return false, nil
	}
	f.backend(model.ACTION_RESTART_SERVICE, together)
	f.backend(model.ACTION_SWITCH_REGION, together)
	require.NoError(t, f.engine.Registry().Activate(fanInFlow("f1")))

	const runs = 50
	for i := 0; i < runs; i++ {
		wg := new(sync.WaitGroup)
		wg.Add(2)
		barrier.Store(wg)

		exec := f.await(t, f.fire(t, connectivityEvent(fmt.Sprintf("r%d", i))).ExecutionId)

		require.Equal(t, model.COMPLETED, exec.Status)
		require.Equal(t, model.NODE_SUCCEEDED, exec.Nodes["o1"].Status)
		require.Equal(t, int32(i+1), f.counter(&f.sent, model.OUTCOME_EMAIL).Load())
	}
	assert.Equal(t, int32(runs), f.counter(&f.attempts, model.ACTION_SWITCH_REGION).Load())
	assert.Equal(t, int32(runs), f.counter(&f.sent, model.OUTCOME_EMAIL).Load())
}

func testNonRequiredAction(t *testing.T) {
	f := newFixture(t, engineConfig())
	f.backend(model.ACTION_RESTART_SERVICE, func(ctx context.Context) (bool, error) {
		return false, errors.New("service not found")
	})
	fl := fanInFlow("f1")
	fl.Nodes[1].Config["required"] = false
	require.NoError(t, f.engine.Registry().Activate(fl))

	exec := f.await(t, f.fire(t, connectivityEvent("r1")).ExecutionId)

	assert.Equal(t, model.COMPLETED, exec.Status)
	assert.Equal(t, model.NODE_FAILED, exec.Nodes["a1"].Status)
}

// blocker holds an action until released.
type blocker struct {
	started chan struct{}
	release chan struct{}
}

func newBlocker() *blocker {
	return &blocker{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (b *blocker) run(ctx context.Context) (bool, error) {
	b.started <- struct{}{}
	<-b.release
	return false, nil
}

func (b *blocker) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-b.started:
	case <-time.After(5 * time.Second):
		t.Fatal("action did not start")
	}
}

func testDuplicateSuppressed(t *testing.T) {
	f := newFixture(t, engineConfig())
	b := newBlocker()
	f.backend(model.ACTION_RESTART_SERVICE, b.run)
	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))

	first := f.fire(t, connectivityEvent("r1"))
	require.Equal(t, ADMITTED, first.Result)
	b.waitStarted(t)

	dup := f.fire(t, connectivityEvent("r1"))
	assert.Equal(t, SUPPRESSED, dup.Result)
	assert.Empty(t, dup.ExecutionId)

	other := f.fire(t, connectivityEvent("r2"))
	assert.Equal(t, ADMITTED, other.Result)
	b.waitStarted(t)

	close(b.release)
	assert.Equal(t, model.COMPLETED, f.await(t, first.ExecutionId).Status)
	assert.Equal(t, model.COMPLETED, f.await(t, other.ExecutionId).Status)

	// the slot is free again once the first execution finished
	again := f.fire(t, connectivityEvent("r1"))
	assert.Equal(t, ADMITTED, again.Result)
	f.await(t, again.ExecutionId)
}

func testBoundQueueOverflow(t *testing.T) {
	conf := engineConfig()
	conf.MaxConcurrentPerFlow = 1
	conf.AdmissionQueueSize = 1
	f := newFixture(t, conf)
	b := newBlocker()
	f.backend(model.ACTION_RESTART_SERVICE, b.run)
	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))

	first := f.fire(t, connectivityEvent("r1"))
	require.Equal(t, ADMITTED, first.Result)
	b.waitStarted(t)

	second := f.fire(t, connectivityEvent("r2"))
	assert.Equal(t, QUEUED, second.Result)
	assert.NotEmpty(t, second.ExecutionId)

	queuedDup := f.fire(t, connectivityEvent("r2"))
	assert.Equal(t, SUPPRESSED, queuedDup.Result)

	third := f.fire(t, connectivityEvent("r3"))
	assert.Equal(t, OVERFLOW, third.Result)

	running, queued := f.engine.Stats("f1")
	assert.Equal(t, 1, running)
	assert.Equal(t, 1, queued)

	close(b.release)
	assert.Equal(t, model.COMPLETED, f.await(t, first.ExecutionId).Status)
	exec := f.await(t, second.ExecutionId)
	assert.Equal(t, model.COMPLETED, exec.Status)
	assert.Equal(t, "r2", exec.Subject)
}

func testDisableKeepsRunning(t *testing.T) {
	f := newFixture(t, engineConfig())
	b := newBlocker()
	f.backend(model.ACTION_RESTART_SERVICE, b.run)
	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))

	first := f.fire(t, connectivityEvent("r1"))
	b.waitStarted(t)

	f.engine.Registry().Deactivate("f1")
	adms, err := f.engine.Process(context.Background(), connectivityEvent("r2"))
	require.NoError(t, err)
	assert.Empty(t, adms)

	close(b.release)
	exec := f.await(t, first.ExecutionId)
	assert.Equal(t, model.COMPLETED, exec.Status)
	assert.Equal(t, model.NODE_SUCCEEDED, exec.Nodes["o1"].Status)
}

func testReplaceDropsQueue(t *testing.T) {
	conf := engineConfig()
	conf.MaxConcurrentPerFlow = 1
	f := newFixture(t, conf)
	b := newBlocker()
	f.backend(model.ACTION_RESTART_SERVICE, b.run)
	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))

	first := f.fire(t, connectivityEvent("r1"))
	b.waitStarted(t)
	queued := f.fire(t, connectivityEvent("r2"))
	require.Equal(t, QUEUED, queued.Result)

	next := connectivityFlow("f1")
	next.Version = 2
	require.NoError(t, f.engine.Registry().Activate(next))

	_, err := f.engine.Await(context.Background(), queued.ExecutionId)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	close(b.release)
	exec := f.await(t, first.ExecutionId)
	assert.Equal(t, 1, exec.FlowVersion)
	assert.Equal(t, model.COMPLETED, exec.Status)
}

func testAdmissionWaitDrops(t *testing.T) {
	conf := engineConfig()
	conf.MaxConcurrentPerFlow = 1
	conf.AdmissionWait = 10 * time.Millisecond
	f := newFixture(t, conf)
	b := newBlocker()
	f.backend(model.ACTION_RESTART_SERVICE, b.run)
	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))

	first := f.fire(t, connectivityEvent("r1"))
	b.waitStarted(t)
	queued := f.fire(t, connectivityEvent("r2"))
	require.Equal(t, QUEUED, queued.Result)

	time.Sleep(30 * time.Millisecond)
	f.engine.Sweep()

	running, waiting := f.engine.Stats("f1")
	assert.Equal(t, 1, running)
	assert.Equal(t, 0, waiting)

	ctx := context.Background()
	_, err := f.engine.Await(ctx, queued.ExecutionId)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	entries, err := f.log.FlowEntries(ctx, "f1")
	require.NoError(t, err)
	var dropped []model.AuditEntry
	for _, e := range entries {
		if e.Type == model.AUDIT_OVERFLOW {
			dropped = append(dropped, e)
		}
	}
	require.Len(t, dropped, 1)
	assert.Equal(t, ErrAdmissionWait.Error(), dropped[0].Error)
	assert.Equal(t, "r2", dropped[0].Subject)
	assert.Equal(t, queued.ExecutionId, dropped[0].Data["executionId"])

	close(b.release)
	assert.Equal(t, model.COMPLETED, f.await(t, first.ExecutionId).Status)
	execs, err := f.log.ListExecutions(ctx, "f1", model.ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, first.ExecutionId, execs[0].Id)
}

func testReactivateSameVersion(t *testing.T) {
	conf := engineConfig()
	conf.MaxConcurrentPerFlow = 1
	f := newFixture(t, conf)
	b := newBlocker()
	f.backend(model.ACTION_RESTART_SERVICE, b.run)
	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))

	first := f.fire(t, connectivityEvent("r1"))
	b.waitStarted(t)
	queued := f.fire(t, connectivityEvent("r2"))
	require.Equal(t, QUEUED, queued.Result)

	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))
	_, waiting := f.engine.Stats("f1")
	assert.Equal(t, 1, waiting)

	close(b.release)
	assert.Equal(t, model.COMPLETED, f.await(t, first.ExecutionId).Status)
	exec := f.await(t, queued.ExecutionId)
	assert.Equal(t, model.COMPLETED, exec.Status)
	assert.Equal(t, "r2", exec.Subject)
}

func testEscalationOnce(t *testing.T) {
	conf := engineConfig()
	conf.EscalationTarget = "+15550100"
	f := newFixture(t, conf)
	var to atomic.Value
	require.NoError(t, f.channels.Register(model.OUTCOME_SMS, outcome.ChannelFunc(func(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) error {
		f.counter(&f.sent, subtype).Add(1)
		to.Store(config["to"])
		return nil
	})))
	b := newBlocker()
	f.backend(model.ACTION_RESTART_SERVICE, b.run)
	fl := connectivityFlow("f1")
	fl.EscalationDeadline = time.Minute
	require.NoError(t, f.engine.Registry().Activate(fl))

	adm := f.fire(t, connectivityEvent("r1"))
	b.waitStarted(t)

	assert.Empty(t, f.engine.Overdue(time.Now()))
	overdue := f.engine.Overdue(time.Now().Add(2 * time.Minute))
	require.Equal(t, []string{adm.ExecutionId}, overdue)

	ctx := context.Background()
	require.True(t, f.engine.Escalate(ctx, adm.ExecutionId))
	assert.False(t, f.engine.Escalate(ctx, adm.ExecutionId))
	assert.Empty(t, f.engine.Overdue(time.Now().Add(2*time.Minute)))

	live, err := f.engine.GetExecution(ctx, adm.ExecutionId)
	require.NoError(t, err)
	assert.Equal(t, model.ESCALATED, live.Status)
	assert.Equal(t, int32(1), f.counter(&f.sent, model.OUTCOME_SMS).Load())
	assert.Equal(t, "+15550100", to.Load())

	close(b.release)
	exec := f.await(t, adm.ExecutionId)
	assert.Equal(t, model.COMPLETED, exec.Status)
	assert.True(t, exec.Escalated)
	assert.False(t, exec.EscalatedAt.IsZero())
	assert.Equal(t, int32(1), f.counter(&f.sent, model.OUTCOME_EMAIL).Load())

	types := auditTypes(t, f.log, adm.ExecutionId)
	n := 0
	for _, typ := range types {
		if typ == model.AUDIT_ESCALATION {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.False(t, f.engine.Escalate(ctx, adm.ExecutionId))
}

func testInvalidEvent(t *testing.T) {
	f := newFixture(t, engineConfig())
	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))

	_, err := f.engine.Process(context.Background(), model.Event{Subtype: "earthquake", Subject: "r1"})
	var merr *matcher.MatchError
	require.True(t, errors.As(err, &merr))

	_, err = f.engine.Process(context.Background(), model.Event{Subtype: model.TRIGGER_CPU_THRESHOLD, Subject: "r1"})
	require.True(t, errors.As(err, &merr))
}

func testNoMatch(t *testing.T) {
	f := newFixture(t, engineConfig())
	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))

	ev := connectivityEvent("r1")
	ev.Severity = model.SEVERITY_MEDIUM
	adms, err := f.engine.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, adms)

	adms, err = f.engine.Process(context.Background(), model.Event{Subtype: model.TRIGGER_SERVICE_DOWN, Subject: "r1"})
	require.NoError(t, err)
	assert.Empty(t, adms)
}

func testHandleChange(t *testing.T) {
	f := newFixture(t, engineConfig())
	svc := metadata.NewMetadataService(f.store)
	svc.Subscribe(f.engine.HandleChange)
	ctx := context.Background()

	fl := connectivityFlow("")
	fl.Enabled = false
	created, err := svc.CreateFlow(ctx, fl)
	require.NoError(t, err)
	assert.Empty(t, f.engine.Registry().ActiveFlows())

	_, err = svc.SetEnabled(ctx, created.Id, true)
	require.NoError(t, err)
	assert.Equal(t, []string{created.Id}, f.engine.Registry().ActiveFlows())

	adm := f.fire(t, connectivityEvent("r1"))
	assert.Equal(t, created.Id, adm.FlowId)
	f.await(t, adm.ExecutionId)

	require.NoError(t, svc.DeleteFlow(ctx, created.Id))
	assert.Empty(t, f.engine.Registry().ActiveFlows())
}

func testPublish(t *testing.T) {
	f := newFixture(t, engineConfig())
	require.NoError(t, f.engine.Registry().Activate(connectivityFlow("f1")))
	require.NoError(t, f.engine.Start())

	require.True(t, f.engine.Publish(connectivityEvent("r1")))
	require.Eventually(t, func() bool {
		return f.counter(&f.sent, model.OUTCOME_EMAIL).Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	execs, err := f.log.ListExecutions(context.Background(), "f1", model.ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "r1", execs[0].Subject)
}

func TestCpuThresholdSustainedWindow(t *testing.T) {
	f := newFixture(t, engineConfig())
	fl := &model.AutomationFlow{
		Id:      "cpu",
		Enabled: true,
		Nodes: []model.Node{
			{Id: "t1", Kind: model.TRIGGER, Subtype: model.TRIGGER_CPU_THRESHOLD, Config: map[string]any{"threshold": 85, "duration": "5m"}},
			{Id: "a1", Kind: model.ACTION, Subtype: model.ACTION_SCALE_RESOURCES, Config: map[string]any{"target": "{$.event.subject}"}},
			{Id: "o1", Kind: model.OUTCOME, Subtype: model.OUTCOME_LOG_EVENT},
		},
		Edges: []model.Edge{{Source: "t1", Target: "a1"}, {Source: "a1", Target: "o1"}},
	}
	require.NoError(t, f.engine.Registry().Activate(fl))

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	sample := func(offset time.Duration) []Admission {
		adms, err := f.engine.Process(context.Background(), model.Event{
			Subtype:   model.TRIGGER_CPU_THRESHOLD,
			Subject:   "web-1",
			Timestamp: start.Add(offset),
			Value:     model.Float(90),
		})
		require.NoError(t, err)
		return adms
	}
	for i := 0; i < 3; i++ {
		assert.Empty(t, sample(time.Duration(i)*time.Minute))
	}
	assert.Empty(t, sample(4*time.Minute))
	// same version again, the window is kept
	require.NoError(t, f.engine.Registry().Activate(fl))
	adms := sample(5 * time.Minute)
	require.Len(t, adms, 1)
	assert.Equal(t, ADMITTED, adms[0].Result)
	f.await(t, adms[0].ExecutionId)
}
