// Package scheduler fires workflow executions on time triggers. One tick
// worker scans the schedule table; each firing is monitored and retried
// with backoff when the resulting execution fails. Schedules are never
// disabled automatically, no matter how often they fail.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/recurhq/recur/engine"
	"github.com/recurhq/recur/logger"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence"
	"github.com/recurhq/recur/util"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const monitorPollInterval = 2 * time.Second

type Scheduler struct {
	storage persistence.Storage
	engine  *engine.Engine
	ticker  *util.TickWorker
	wg      *sync.WaitGroup
	now     func() time.Time
}

func New(storage persistence.Storage, eng *engine.Engine, interval time.Duration, wg *sync.WaitGroup) *Scheduler {
	s := &Scheduler{
		storage: storage,
		engine:  eng,
		wg:      wg,
		now:     time.Now,
	}
	s.ticker = util.NewTickWorker("scheduler", interval, s.tick, wg)
	return s
}

func (s *Scheduler) Start() {
	s.ticker.Start()
}

func (s *Scheduler) Stop() {
	s.ticker.Stop()
}

// Create validates the schedule, assigns its identity and computes the
// first trigger time.
func (s *Scheduler) Create(sched *model.Schedule) error {
	if _, err := s.storage.Workflows().Get(sched.WorkflowId); err != nil {
		return err
	}
	next, err := NextRun(sched, s.now())
	if err != nil {
		return err
	}
	sched.Id = uuid.NewString()
	sched.NextRun = next
	sched.Enabled = true
	if sched.Retry.MaxAttempts == 0 {
		sched.Retry = model.DefaultRetryPolicy()
	}
	sched.CreatedAt = s.now()
	sched.UpdatedAt = sched.CreatedAt
	return s.storage.Schedules().Save(sched)
}

// Update recomputes the trigger time after a definition change.
func (s *Scheduler) Update(sched *model.Schedule) error {
	next, err := NextRun(sched, s.now())
	if err != nil {
		return err
	}
	sched.NextRun = next
	sched.UpdatedAt = s.now()
	return s.storage.Schedules().Save(sched)
}

func (s *Scheduler) tick() {
	schedules, err := s.storage.Schedules().List()
	if err != nil {
		logger.Error("schedule scan failed", zap.Error(err))
		return
	}
	now := s.now()
	for _, sched := range schedules {
		if !sched.Enabled || sched.NextRun.IsZero() || sched.NextRun.After(now) {
			continue
		}
		s.fire(sched, now)
	}
}

func (s *Scheduler) fire(sched *model.Schedule, now time.Time) {
	sched.LastRun = now
	if sched.Type == model.SCHEDULE_ONE_TIME {
		sched.Enabled = false
		sched.NextRun = time.Time{}
	} else {
		next, err := NextRun(sched, now)
		if err != nil {
			logger.Error("next run computation failed",
				zap.String("scheduleId", sched.Id), zap.Error(err))
			return
		}
		sched.NextRun = next
	}
	sched.UpdatedAt = now
	if err := s.storage.Schedules().Save(sched); err != nil {
		logger.Error("schedule save failed", zap.String("scheduleId", sched.Id), zap.Error(err))
		return
	}

	logger.Info("schedule fired",
		zap.String("scheduleId", sched.Id),
		zap.String("workflowId", sched.WorkflowId))
	s.trigger(sched, 1)
}

// trigger queues one attempt and watches it to a terminal state. A failed
// attempt is retried after the policy delay, multiplied per attempt.
func (s *Scheduler) trigger(sched *model.Schedule, attempt int) {
	wf, err := s.storage.Workflows().Get(sched.WorkflowId)
	if err != nil {
		logger.Error("scheduled workflow missing",
			zap.String("scheduleId", sched.Id),
			zap.String("workflowId", sched.WorkflowId),
			zap.Error(err))
		return
	}
	execution, err := s.engine.Queue(wf, sched.ParameterValues)
	if err != nil {
		logger.Error("scheduled execution rejected",
			zap.String("scheduleId", sched.Id), zap.Error(err))
		s.retry(sched, attempt)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		state := s.awaitTerminal(execution.Id)
		if state == model.EXECUTION_FAILED {
			s.retry(sched, attempt)
		}
	}()
}

func (s *Scheduler) retry(sched *model.Schedule, attempt int) {
	if attempt >= sched.Retry.MaxAttempts {
		logger.Warn("schedule exhausted its retries",
			zap.String("scheduleId", sched.Id),
			zap.Int("attempts", attempt))
		return
	}
	delay := RetryDelay(sched.Retry, attempt)
	logger.Info("retrying scheduled execution",
		zap.String("scheduleId", sched.Id),
		zap.Int("attempt", attempt+1),
		zap.Duration("delay", delay))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		time.Sleep(delay)
		s.trigger(sched, attempt+1)
	}()
}

func (s *Scheduler) awaitTerminal(executionId string) model.ExecutionState {
	for {
		execution, err := s.storage.Executions().Get(executionId)
		if err != nil {
			logger.Error("monitored execution vanished", zap.String("executionId", executionId), zap.Error(err))
			return model.EXECUTION_FAILED
		}
		if execution.State.Terminal() {
			return execution.State
		}
		time.Sleep(monitorPollInterval)
	}
}

// RetryDelay is the wait before retry attempt+1: the base delay grown by
// the backoff multiplier once per attempt already made.
func RetryDelay(policy model.RetryPolicy, attempt int) time.Duration {
	delay := float64(policy.DelaySeconds)
	for i := 1; i < attempt; i++ {
		delay *= policy.BackoffMultiplier
	}
	return time.Duration(delay * float64(time.Second))
}

// NextRun computes the first trigger strictly after the reference time.
func NextRun(sched *model.Schedule, after time.Time) (time.Time, error) {
	switch sched.Type {
	case model.SCHEDULE_ONE_TIME:
		if sched.Config.RunAt.IsZero() {
			return time.Time{}, fmt.Errorf("one_time schedule needs runAt")
		}
		return sched.Config.RunAt, nil
	case model.SCHEDULE_DAILY:
		next := time.Date(after.Year(), after.Month(), after.Day(),
			sched.Config.Hour, sched.Config.Minute, 0, 0, after.Location())
		if !next.After(after) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil
	case model.SCHEDULE_WEEKLY:
		if len(sched.Config.Days) == 0 {
			return time.Time{}, fmt.Errorf("weekly schedule needs days")
		}
		days := map[int]bool{}
		for _, d := range sched.Config.Days {
			if d < 0 || d > 6 {
				return time.Time{}, fmt.Errorf("weekly schedule day %d out of range", d)
			}
			days[d] = true
		}
		next := time.Date(after.Year(), after.Month(), after.Day(),
			sched.Config.Hour, sched.Config.Minute, 0, 0, after.Location())
		for i := 0; i < 8; i++ {
			candidate := next.AddDate(0, 0, i)
			if candidate.After(after) && days[int(candidate.Weekday())] {
				return candidate, nil
			}
		}
		return time.Time{}, fmt.Errorf("weekly schedule has no runnable day")
	case model.SCHEDULE_INTERVAL:
		if sched.Config.IntervalMinutes <= 0 {
			return time.Time{}, fmt.Errorf("interval schedule needs a positive interval")
		}
		return after.Add(time.Duration(sched.Config.IntervalMinutes) * time.Minute), nil
	case model.SCHEDULE_CRON:
		expr, err := cron.ParseStandard(sched.Config.Cron)
		if err != nil {
			return time.Time{}, fmt.Errorf("cron expression %q: %w", sched.Config.Cron, err)
		}
		return expr.Next(after), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule type %q", sched.Type)
	}
}
