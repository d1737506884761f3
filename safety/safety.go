// Package safety holds the governance checks every execution passes
// through: admission validation, per-kind timeouts, the global action
// rate limit and the emergency stop signal.
package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/recurhq/recur/adapter"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/parameterizer"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/time/rate"
)

// StopSignal is the process-wide emergency stop. Raising it halts every
// running execution at its next action boundary; queued work is rejected
// until the signal is cleared.
type StopSignal struct {
	mu     sync.Mutex
	raised bool
	ch     chan struct{}
}

func NewStopSignal() *StopSignal {
	return &StopSignal{ch: make(chan struct{})}
}

func (s *StopSignal) Raise() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.raised {
		s.raised = true
		close(s.ch)
	}
}

func (s *StopSignal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raised {
		s.raised = false
		s.ch = make(chan struct{})
	}
}

func (s *StopSignal) Raised() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raised
}

// Done returns a channel closed while the signal is raised.
func (s *StopSignal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Validator runs the admission checks before an execution is queued. All
// failures are collected so the caller sees every problem at once.
type Validator struct {
	registry        *adapter.Registry
	params          *parameterizer.Parameterizer
	minFreeMemoryMB uint64
	availableMemory func() (uint64, error)
}

func NewValidator(registry *adapter.Registry, params *parameterizer.Parameterizer, minFreeMemoryMB uint64) *Validator {
	return &Validator{
		registry:        registry,
		params:          params,
		minFreeMemoryMB: minFreeMemoryMB,
		availableMemory: systemAvailableMemory,
	}
}

func systemAvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

func (v *Validator) PreCheck(wf *model.Workflow, values map[string]any) []error {
	var errs []error
	if len(wf.Actions) == 0 {
		return []error{fmt.Errorf("workflow %s has no actions", wf.Id)}
	}

	surfaces := map[model.Surface]bool{}
	for i, t := range wf.Actions {
		if !t.Kind.Valid() {
			errs = append(errs, fmt.Errorf("action %d: unknown kind %q", i, t.Kind))
			continue
		}
		if !t.Surface.Valid() {
			errs = append(errs, fmt.Errorf("action %d: unknown surface %q", i, t.Surface))
			continue
		}
		if t.Surface != t.Kind.DefaultSurface() {
			errs = append(errs, fmt.Errorf("action %d: kind %s does not belong to surface %s", i, t.Kind, t.Surface))
			continue
		}
		if t.Kind != model.KIND_WAIT {
			surfaces[t.Surface] = true
		}
	}
	for surface := range surfaces {
		if !v.registry.Available(surface) {
			errs = append(errs, adapter.UnavailableError{Surface: surface})
		}
	}

	if err := v.params.Validate(wf.Schema, values); err != nil {
		if verrs, ok := err.(parameterizer.ValidationErrors); ok {
			for _, e := range verrs {
				errs = append(errs, e)
			}
		} else {
			errs = append(errs, err)
		}
	}

	if v.minFreeMemoryMB > 0 {
		available, err := v.availableMemory()
		if err != nil {
			errs = append(errs, fmt.Errorf("memory check failed: %w", err))
		} else if available/(1<<20) < v.minFreeMemoryMB {
			errs = append(errs, fmt.Errorf("insufficient memory: %dMB available, %dMB required",
				available/(1<<20), v.minFreeMemoryMB))
		}
	}
	return errs
}

const defaultActionTimeout = 10 * time.Second

// actionTimeouts widens the budget for kinds that wait on external
// progress (page loads, workbook IO); everything else gets the default.
var actionTimeouts = map[model.ActionKind]time.Duration{
	model.KIND_NAVIGATE:     30 * time.Second,
	model.KIND_BROWSER_WAIT: 30 * time.Second,
	model.KIND_SHEET_OPEN:   20 * time.Second,
	model.KIND_SHEET_SAVE:   20 * time.Second,
	model.KIND_RANGE_WRITE:  15 * time.Second,
	model.KIND_FILE_COPY:    15 * time.Second,
	model.KIND_FILE_MOVE:    15 * time.Second,
	model.KIND_DRAG:         15 * time.Second,
	model.KIND_TYPE:         15 * time.Second,
}

func TimeoutFor(kind model.ActionKind) time.Duration {
	if d, ok := actionTimeouts[kind]; ok {
		return d
	}
	return defaultActionTimeout
}

// NewRateLimiter caps dispatch throughput across all concurrent
// executions. Burst of one keeps actions evenly spaced.
func NewRateLimiter(actionsPerMinute int) *rate.Limiter {
	if actionsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(actionsPerMinute)), 1)
}
