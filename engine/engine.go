// Package engine runs workflow executions. Work enters through Queue,
// flows over a channel to a fixed pool of workers and is persisted after
// every action, so a crash can never lose more than the in-flight step.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/recurhq/recur/adapter"
	"github.com/recurhq/recur/logger"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/parameterizer"
	"github.com/recurhq/recur/persistence"
	"github.com/recurhq/recur/safety"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Options struct {
	Workers          int
	QueueCapacity    int
	SettleDelay      time.Duration
	ActionsPerMinute int
}

type Engine struct {
	storage   persistence.Storage
	registry  *adapter.Registry
	validator *safety.Validator
	params    *parameterizer.Parameterizer
	stop      *safety.StopSignal
	artifacts *ArtifactStore
	limiter   *rate.Limiter
	options   Options

	queue chan string
	wg    sync.WaitGroup

	mu       sync.Mutex
	controls map[string]*control

	// onTerminal is invoked for every execution reaching a terminal
	// state; the feedback model hangs off this hook.
	onTerminal func(*model.Execution)
}

func New(storage persistence.Storage, registry *adapter.Registry, validator *safety.Validator,
	params *parameterizer.Parameterizer, stop *safety.StopSignal, artifacts *ArtifactStore,
	options Options) *Engine {
	if options.Workers <= 0 {
		options.Workers = 1
	}
	if options.QueueCapacity <= 0 {
		options.QueueCapacity = 64
	}
	return &Engine{
		storage:   storage,
		registry:  registry,
		validator: validator,
		params:    params,
		stop:      stop,
		artifacts: artifacts,
		limiter:   safety.NewRateLimiter(options.ActionsPerMinute),
		options:   options,
		queue:     make(chan string, options.QueueCapacity),
		controls:  make(map[string]*control),
	}
}

func (e *Engine) OnTerminal(fn func(*model.Execution)) {
	e.onTerminal = fn
}

func (e *Engine) Start() {
	for i := 0; i < e.options.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	logger.Info("execution engine started", zap.Int("workers", e.options.Workers))
}

func (e *Engine) Shutdown() {
	close(e.queue)
	e.wg.Wait()
	logger.Info("execution engine stopped")
}

// Queue validates, substitutes and persists a new execution, then hands
// it to the worker pool. Validation failures are returned synchronously
// and leave no trace in storage.
func (e *Engine) Queue(wf *model.Workflow, values map[string]any) (*model.Execution, error) {
	if e.stop.Raised() {
		return nil, fmt.Errorf("emergency stop is active")
	}
	if errs := e.validator.PreCheck(wf, values); len(errs) > 0 {
		return nil, admissionError(errs)
	}
	actions, err := e.params.Substitute(wf, values)
	if err != nil {
		return nil, err
	}
	execution := &model.Execution{
		Id:              uuid.NewString(),
		WorkflowId:      wf.Id,
		State:           model.EXECUTION_QUEUED,
		ParameterValues: values,
		Actions:         actions,
		CreatedAt:       time.Now(),
	}
	if err := e.storage.Executions().Save(execution); err != nil {
		return nil, err
	}
	select {
	case e.queue <- execution.Id:
	default:
		execution.State = model.EXECUTION_FAILED
		execution.Error = "execution queue full"
		e.storage.Executions().Save(execution)
		return nil, fmt.Errorf("execution queue full")
	}
	logger.Info("execution queued",
		zap.String("executionId", execution.Id),
		zap.String("workflowId", wf.Id))
	return execution, nil
}

// Pause asks a running execution to hold at its next action boundary.
func (e *Engine) Pause(executionId string) error {
	ctl, ok := e.control(executionId)
	if !ok {
		return fmt.Errorf("execution %s is not running", executionId)
	}
	ctl.pause()
	return nil
}

func (e *Engine) Resume(executionId string) error {
	ctl, ok := e.control(executionId)
	if !ok {
		return fmt.Errorf("execution %s is not running", executionId)
	}
	ctl.resume()
	return nil
}

// Cancel stops one execution. A queued execution is finalized in place;
// a running one is signalled and stops at its next boundary.
func (e *Engine) Cancel(executionId string) error {
	if ctl, ok := e.control(executionId); ok {
		ctl.cancel()
		return nil
	}
	execution, err := e.storage.Executions().Get(executionId)
	if err != nil {
		return err
	}
	if execution.State != model.EXECUTION_QUEUED {
		return fmt.Errorf("execution %s is not cancellable in state %s", executionId, execution.State)
	}
	e.finalize(execution, model.EXECUTION_STOPPED, "cancelled before start")
	return nil
}

// RecoverInterrupted marks every non-terminal execution left over from a
// previous process as interrupted. Nothing is resumed automatically; an
// operator has to requeue.
func (e *Engine) RecoverInterrupted() (int, error) {
	open, err := e.storage.Executions().NonTerminal()
	if err != nil {
		return 0, err
	}
	for _, execution := range open {
		execution.State = model.EXECUTION_INTERRUPTED
		execution.Error = "interrupted by engine restart"
		execution.CompletedAt = time.Now()
		if err := e.storage.Executions().Save(execution); err != nil {
			return 0, err
		}
		logger.Warn("execution interrupted by restart", zap.String("executionId", execution.Id))
	}
	return len(open), nil
}

func (e *Engine) worker(id int) {
	defer e.wg.Done()
	for executionId := range e.queue {
		e.run(executionId)
	}
	logger.Debug("engine worker exiting", zap.Int("worker", id))
}

func (e *Engine) run(executionId string) {
	execution, err := e.storage.Executions().Get(executionId)
	if err != nil {
		logger.Error("dequeued unknown execution", zap.String("executionId", executionId), zap.Error(err))
		return
	}
	if execution.State.Terminal() {
		return
	}
	if e.stop.Raised() {
		e.finalize(execution, model.EXECUTION_STOPPED, "emergency stop")
		return
	}

	ctl := newControl()
	e.mu.Lock()
	e.controls[executionId] = ctl
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.controls, executionId)
		e.mu.Unlock()
	}()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-e.stop.Done():
			cancel()
		case <-ctl.stopCh:
			cancel()
		case <-watchDone:
		}
	}()

	execution.State = model.EXECUTION_RUNNING
	execution.StartedAt = time.Now()
	if err := e.storage.Executions().Save(execution); err != nil {
		logger.Error("persisting running state failed", zap.String("executionId", executionId), zap.Error(err))
		return
	}

	set := e.registry.NewSet()
	defer set.CloseAll()

	for i, action := range execution.Actions {
		if stopped := e.boundary(runCtx, execution, ctl); stopped {
			e.finalize(execution, model.EXECUTION_STOPPED, "stopped at action boundary")
			return
		}
		if err := e.limiter.Wait(runCtx); err != nil {
			e.finalize(execution, model.EXECUTION_STOPPED, "stopped while rate limited")
			return
		}

		entry := model.ActionLogEntry{ActionIndex: i, Kind: action.Kind, StartedAt: time.Now()}

		if action.Kind == model.KIND_WAIT {
			if err := e.waitAction(runCtx, action); err != nil {
				e.fail(execution, entry, err)
				return
			}
			entry.Result = model.ActionResult{Success: true}
			entry.FinishedAt = time.Now()
			if err := e.appendLog(execution, entry); err != nil {
				return
			}
			continue
		}

		platform, err := set.Get(runCtx, action.Surface)
		if err != nil {
			e.fail(execution, entry, err)
			return
		}

		entry.BeforeArtifact = e.capture(runCtx, platform, execution.Id, i, "before", action.Surface)

		// The stop signal takes effect at the next action boundary; an
		// in-flight dispatch is bounded only by its per-kind timeout so
		// the adapter is never cut off mid-action.
		dispatchCtx, cancelDispatch := context.WithTimeout(context.Background(), safety.TimeoutFor(action.Kind))
		result, err := platform.Dispatch(dispatchCtx, action)
		cancelDispatch()
		if err != nil {
			entry.ErrorArtifact = e.capture(runCtx, platform, execution.Id, i, "error", action.Surface)
			e.fail(execution, entry, err)
			return
		}

		if e.options.SettleDelay > 0 {
			select {
			case <-time.After(e.options.SettleDelay):
			case <-runCtx.Done():
			}
		}
		entry.AfterArtifact = e.capture(runCtx, platform, execution.Id, i, "after", action.Surface)
		entry.Result = *result
		entry.FinishedAt = time.Now()
		if err := e.appendLog(execution, entry); err != nil {
			return
		}
	}

	e.finalize(execution, model.EXECUTION_COMPLETED, "")
}

// boundary enforces pause and stop between actions. It returns true when
// the execution must stop.
func (e *Engine) boundary(ctx context.Context, execution *model.Execution, ctl *control) bool {
	if ctx.Err() != nil || e.stop.Raised() {
		return true
	}
	resumeCh, paused := ctl.pauseState()
	if !paused {
		return false
	}
	execution.State = model.EXECUTION_PAUSED
	if err := e.storage.Executions().Save(execution); err != nil {
		logger.Error("persisting paused state failed", zap.String("executionId", execution.Id), zap.Error(err))
	}
	logger.Info("execution paused", zap.String("executionId", execution.Id))
	select {
	case <-resumeCh:
	case <-ctx.Done():
		return true
	}
	execution.State = model.EXECUTION_RUNNING
	if err := e.storage.Executions().Save(execution); err != nil {
		logger.Error("persisting resumed state failed", zap.String("executionId", execution.Id), zap.Error(err))
	}
	logger.Info("execution resumed", zap.String("executionId", execution.Id))
	return false
}

func (e *Engine) waitAction(ctx context.Context, action model.Action) error {
	seconds, err := strconv.ParseFloat(action.Payload, 64)
	if err != nil {
		return fmt.Errorf("wait duration %q: %w", action.Payload, err)
	}
	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) capture(ctx context.Context, platform adapter.PlatformAdapter, executionId string, index int, phase string, surface model.Surface) string {
	data, err := platform.Screenshot(ctx)
	if err != nil {
		logger.Warn("artifact capture failed",
			zap.String("executionId", executionId),
			zap.String("phase", phase),
			zap.Error(err))
		return ""
	}
	path, err := e.artifacts.Save(executionId, artifactName(index, phase, surface), data)
	if err != nil {
		logger.Warn("artifact save failed", zap.String("executionId", executionId), zap.Error(err))
		return ""
	}
	return path
}

func (e *Engine) appendLog(execution *model.Execution, entry model.ActionLogEntry) error {
	execution.Log = append(execution.Log, entry)
	if err := e.storage.Executions().Save(execution); err != nil {
		logger.Error("persisting action log failed", zap.String("executionId", execution.Id), zap.Error(err))
		return err
	}
	return nil
}

func (e *Engine) fail(execution *model.Execution, entry model.ActionLogEntry, cause error) {
	entry.Error = cause.Error()
	entry.FinishedAt = time.Now()
	execution.Log = append(execution.Log, entry)
	e.finalize(execution, model.EXECUTION_FAILED, cause.Error())
}

func (e *Engine) finalize(execution *model.Execution, state model.ExecutionState, message string) {
	execution.State = state
	execution.Error = message
	execution.CompletedAt = time.Now()
	if err := e.storage.Executions().Save(execution); err != nil {
		logger.Error("persisting terminal state failed", zap.String("executionId", execution.Id), zap.Error(err))
	}
	logger.Info("execution finished",
		zap.String("executionId", execution.Id),
		zap.String("state", string(state)))
	if e.onTerminal != nil {
		e.onTerminal(execution)
	}
}

func (e *Engine) control(executionId string) (*control, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctl, ok := e.controls[executionId]
	return ctl, ok
}

// control carries the per-execution pause and cancel flags the run loop
// consults at each action boundary.
type control struct {
	mu       sync.Mutex
	paused   bool
	stopped  bool
	stopCh   chan struct{}
	resumeCh chan struct{}
}

func newControl() *control {
	return &control{stopCh: make(chan struct{}), resumeCh: make(chan struct{})}
}

func (c *control) pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		c.paused = true
		c.resumeCh = make(chan struct{})
	}
}

func (c *control) resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.paused = false
		close(c.resumeCh)
	}
}

func (c *control) cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.stopCh)
	}
}

func (c *control) pauseState() (<-chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeCh, c.paused
}

func admissionError(errs []error) error {
	verrs := make(parameterizer.ValidationErrors, 0, len(errs))
	for _, err := range errs {
		if v, ok := err.(parameterizer.ValidationError); ok {
			verrs = append(verrs, v)
			continue
		}
		verrs = append(verrs, parameterizer.ValidationError{Field: "workflow", Message: err.Error()})
	}
	return verrs
}
