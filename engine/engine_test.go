package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/recurhq/recur/adapter"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/parameterizer"
	"github.com/recurhq/recur/persistence/inmem"
	"github.com/recurhq/recur/safety"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

type scriptedAdapter struct {
	dispatched int
	failAt     int
	delay      time.Duration
	onDispatch func()
}

func (s *scriptedAdapter) Initialize(ctx context.Context) error { return nil }

func (s *scriptedAdapter) Dispatch(ctx context.Context, a model.Action) (*model.ActionResult, error) {
	s.dispatched++
	if s.onDispatch != nil {
		s.onDispatch()
	}
	if s.delay > 0 {
		// Honors the dispatch context the way a real adapter would.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.failAt > 0 && s.dispatched == s.failAt {
		return nil, fmt.Errorf("element not found")
	}
	return &model.ActionResult{Success: true, Output: "ok"}, nil
}

func (s *scriptedAdapter) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("img"), nil
}

func (s *scriptedAdapter) Close() error { return nil }

type fixture struct {
	engine   *Engine
	storage  *inmem.Storage
	stop     *safety.StopSignal
	adapter  *scriptedAdapter
	terminal chan *model.Execution
	fs       afero.Fs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		storage:  inmem.NewStorage(),
		stop:     safety.NewStopSignal(),
		adapter:  &scriptedAdapter{},
		terminal: make(chan *model.Execution, 4),
		fs:       afero.NewMemMapFs(),
	}
	registry := adapter.NewRegistry()
	registry.Register(model.SURFACE_DESKTOP, func() (adapter.PlatformAdapter, error) {
		return f.adapter, nil
	})
	params := parameterizer.New()
	validator := safety.NewValidator(registry, params, 0)
	f.engine = New(f.storage, registry, validator, params, f.stop,
		NewArtifactStore(f.fs, "/artifacts"), Options{Workers: 1})
	f.engine.OnTerminal(func(e *model.Execution) { f.terminal <- e })
	return f
}

func (f *fixture) waitTerminal(t *testing.T) *model.Execution {
	t.Helper()
	select {
	case e := <-f.terminal:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("execution did not reach a terminal state")
		return nil
	}
}

func clickWorkflow(steps int) *model.Workflow {
	wf := &model.Workflow{Id: "wf-click", Name: "click sequence"}
	for i := 0; i < steps; i++ {
		wf.Actions = append(wf.Actions, model.ActionTemplate{
			Kind:    model.KIND_CLICK,
			Surface: model.SURFACE_DESKTOP,
			Target:  model.Target{X: 10 * (i + 1), Y: 20},
		})
	}
	return wf
}

func TestRunToCompletion(t *testing.T) {
	f := newFixture(t)
	f.engine.Start()
	defer f.engine.Shutdown()

	queued, err := f.engine.Queue(clickWorkflow(2), nil)
	assert.NoError(t, err)
	assert.Equal(t, model.EXECUTION_QUEUED, queued.State)

	final := f.waitTerminal(t)
	assert.Equal(t, model.EXECUTION_COMPLETED, final.State)
	assert.Len(t, final.Log, 2)
	assert.Equal(t, 2, f.adapter.dispatched)
	for _, entry := range final.Log {
		assert.True(t, entry.Result.Success)
		assert.NotEmpty(t, entry.BeforeArtifact)
		assert.NotEmpty(t, entry.AfterArtifact)
	}

	stored, err := f.storage.Executions().Get(queued.Id)
	assert.NoError(t, err)
	assert.Equal(t, model.EXECUTION_COMPLETED, stored.State)

	exists, err := afero.Exists(f.fs, final.Log[0].BeforeArtifact)
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestRunFailsAndKeepsErrorArtifact(t *testing.T) {
	f := newFixture(t)
	f.adapter.failAt = 2
	f.engine.Start()
	defer f.engine.Shutdown()

	_, err := f.engine.Queue(clickWorkflow(3), nil)
	assert.NoError(t, err)

	final := f.waitTerminal(t)
	assert.Equal(t, model.EXECUTION_FAILED, final.State)
	assert.Contains(t, final.Error, "element not found")
	assert.Len(t, final.Log, 2)

	last := final.Log[len(final.Log)-1]
	assert.Equal(t, "element not found", last.Error)
	assert.NotEmpty(t, last.ErrorArtifact)
	// The failing action never completed, so no third dispatch happened.
	assert.Equal(t, 2, f.adapter.dispatched)
}

func TestQueueRejectsInvalidWorkflow(t *testing.T) {
	f := newFixture(t)

	wf := &model.Workflow{Id: "wf-bad", Actions: []model.ActionTemplate{
		{Kind: "teleport", Surface: model.SURFACE_DESKTOP},
	}}
	_, err := f.engine.Queue(wf, nil)
	assert.Error(t, err)

	open, err := f.storage.Executions().NonTerminal()
	assert.NoError(t, err)
	assert.Empty(t, open)
}

func TestQueueRejectedWhileStopRaised(t *testing.T) {
	f := newFixture(t)
	f.stop.Raise()

	_, err := f.engine.Queue(clickWorkflow(1), nil)
	assert.Error(t, err)

	f.stop.Clear()
	f.engine.Start()
	defer f.engine.Shutdown()
	_, err = f.engine.Queue(clickWorkflow(1), nil)
	assert.NoError(t, err)
	assert.Equal(t, model.EXECUTION_COMPLETED, f.waitTerminal(t).State)
}

func TestEmergencyStopHaltsRun(t *testing.T) {
	f := newFixture(t)
	f.adapter.onDispatch = func() { f.stop.Raise() }
	f.engine.Start()
	defer f.engine.Shutdown()

	_, err := f.engine.Queue(clickWorkflow(3), nil)
	assert.NoError(t, err)

	final := f.waitTerminal(t)
	assert.Equal(t, model.EXECUTION_STOPPED, final.State)
	// The stop was raised during the first dispatch; the boundary before
	// the second action observed it.
	assert.Equal(t, 1, f.adapter.dispatched)
}

func TestStopDuringDispatchFinishesActionThenStops(t *testing.T) {
	f := newFixture(t)
	f.adapter.delay = 300 * time.Millisecond
	f.adapter.onDispatch = func() {
		if f.adapter.dispatched == 1 {
			f.stop.Raise()
		}
	}
	f.engine.Start()
	defer f.engine.Shutdown()

	_, err := f.engine.Queue(clickWorkflow(3), nil)
	assert.NoError(t, err)

	final := f.waitTerminal(t)
	// The in-flight action runs to completion; the stop is honored at
	// the boundary before the next one.
	assert.Equal(t, model.EXECUTION_STOPPED, final.State)
	assert.Equal(t, 1, f.adapter.dispatched)
	assert.Len(t, final.Log, 1)
	assert.True(t, final.Log[0].Result.Success)
	assert.Empty(t, final.Log[0].Error)
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	queued, err := f.engine.Queue(clickWorkflow(2), nil)
	assert.NoError(t, err)
	f.adapter.onDispatch = func() {
		if f.adapter.dispatched == 1 {
			assert.NoError(t, f.engine.Pause(queued.Id))
		}
	}
	f.engine.Start()
	defer f.engine.Shutdown()

	assert.Eventually(t, func() bool {
		e, err := f.storage.Executions().Get(queued.Id)
		return err == nil && e.State == model.EXECUTION_PAUSED
	}, 5*time.Second, 10*time.Millisecond)

	assert.NoError(t, f.engine.Resume(queued.Id))
	final := f.waitTerminal(t)
	assert.Equal(t, model.EXECUTION_COMPLETED, final.State)
	assert.Len(t, final.Log, 2)
	assert.Equal(t, 2, f.adapter.dispatched)
}

func TestStopWhilePaused(t *testing.T) {
	f := newFixture(t)
	queued, err := f.engine.Queue(clickWorkflow(3), nil)
	assert.NoError(t, err)
	f.adapter.onDispatch = func() {
		if f.adapter.dispatched == 1 {
			assert.NoError(t, f.engine.Pause(queued.Id))
		}
	}
	f.engine.Start()
	defer f.engine.Shutdown()

	assert.Eventually(t, func() bool {
		e, err := f.storage.Executions().Get(queued.Id)
		return err == nil && e.State == model.EXECUTION_PAUSED
	}, 5*time.Second, 10*time.Millisecond)

	f.stop.Raise()
	final := f.waitTerminal(t)
	assert.Equal(t, model.EXECUTION_STOPPED, final.State)
	assert.Equal(t, 1, f.adapter.dispatched)
}

func TestCancelQueuedExecution(t *testing.T) {
	f := newFixture(t)
	// Workers intentionally not started so the execution stays queued.
	queued, err := f.engine.Queue(clickWorkflow(1), nil)
	assert.NoError(t, err)

	assert.NoError(t, f.engine.Cancel(queued.Id))
	final := f.waitTerminal(t)
	assert.Equal(t, model.EXECUTION_STOPPED, final.State)
	assert.Empty(t, final.Log)
}

func TestRecoverInterrupted(t *testing.T) {
	f := newFixture(t)
	stale := &model.Execution{
		Id:         "exec-stale",
		WorkflowId: "wf-click",
		State:      model.EXECUTION_RUNNING,
		Log:        []model.ActionLogEntry{{ActionIndex: 0, Kind: model.KIND_CLICK}},
		CreatedAt:  time.Now().Add(-time.Hour),
	}
	assert.NoError(t, f.storage.Executions().Save(stale))

	n, err := f.engine.RecoverInterrupted()
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	recovered, err := f.storage.Executions().Get("exec-stale")
	assert.NoError(t, err)
	assert.Equal(t, model.EXECUTION_INTERRUPTED, recovered.State)
	assert.Len(t, recovered.Log, 1)

	open, err := f.storage.Executions().NonTerminal()
	assert.NoError(t, err)
	assert.Empty(t, open)
}
