// Package inmem is the map-backed storage implementation. Writes are
// serialized per collection behind a RWMutex; reads take shared locks.
package inmem

import (
	"sync"

	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence"
)

var _ persistence.Storage = new(Storage)

type Storage struct {
	actions    *actionLogDao
	workflows  *workflowDao
	executions *executionDao
	schedules  *scheduleDao
}

func NewStorage() *Storage {
	return &Storage{
		actions:    &actionLogDao{},
		workflows:  &workflowDao{items: make(map[string]model.Workflow)},
		executions: &executionDao{items: make(map[string]model.Execution)},
		schedules:  &scheduleDao{items: make(map[string]model.Schedule)},
	}
}

func (s *Storage) Actions() persistence.ActionLogDao { return s.actions }

func (s *Storage) Workflows() persistence.WorkflowDao { return s.workflows }

func (s *Storage) Executions() persistence.ExecutionDao { return s.executions }

func (s *Storage) Schedules() persistence.ScheduleDao { return s.schedules }

type actionLogDao struct {
	mu      sync.RWMutex
	actions []model.Action
}

func (d *actionLogDao) Append(action model.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, action)
	return nil
}

func (d *actionLogDao) Recent(n int) ([]model.Action, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	start := len(d.actions) - n
	if start < 0 {
		start = 0
	}
	out := make([]model.Action, len(d.actions)-start)
	copy(out, d.actions[start:])
	return out, nil
}

type workflowDao struct {
	mu    sync.RWMutex
	items map[string]model.Workflow
}

func (d *workflowDao) Save(wf *model.Workflow) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[wf.Id] = *wf
	return nil
}

func (d *workflowDao) Get(id string) (*model.Workflow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	wf, ok := d.items[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "workflow", Id: id}
	}
	return &wf, nil
}

func (d *workflowDao) Delete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, id)
	return nil
}

func (d *workflowDao) List() ([]*model.Workflow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*model.Workflow, 0, len(d.items))
	for id := range d.items {
		wf := d.items[id]
		out = append(out, &wf)
	}
	return out, nil
}

type executionDao struct {
	mu    sync.RWMutex
	items map[string]model.Execution
	order []string
}

func (d *executionDao) Save(e *model.Execution) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.items[e.Id]; !ok {
		d.order = append(d.order, e.Id)
	}
	d.items[e.Id] = *e
	return nil
}

func (d *executionDao) Get(id string) (*model.Execution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.items[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "execution", Id: id}
	}
	return &e, nil
}

func (d *executionDao) NonTerminal() ([]*model.Execution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*model.Execution
	for _, id := range d.order {
		e := d.items[id]
		if !e.State.Terminal() {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (d *executionDao) ByWorkflow(workflowId string, limit int) ([]*model.Execution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*model.Execution
	for _, id := range d.order {
		e := d.items[id]
		if e.WorkflowId == workflowId {
			out = append(out, &e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type scheduleDao struct {
	mu    sync.RWMutex
	items map[string]model.Schedule
}

func (d *scheduleDao) Save(s *model.Schedule) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[s.Id] = *s
	return nil
}

func (d *scheduleDao) Get(id string) (*model.Schedule, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.items[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "schedule", Id: id}
	}
	return &s, nil
}

func (d *scheduleDao) Delete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, id)
	return nil
}

func (d *scheduleDao) List() ([]*model.Schedule, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*model.Schedule, 0, len(d.items))
	for id := range d.items {
		s := d.items[id]
		out = append(out, &s)
	}
	return out, nil
}
