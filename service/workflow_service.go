// Package service ties the domain packages together behind the API the
// REST layer exposes.
package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/recurhq/recur/cache"
	"github.com/recurhq/recur/detector"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/parameterizer"
	"github.com/recurhq/recur/persistence"
)

// reliableConfidence is the bar a workflow has to clear before the stats
// surface counts it as dependable.
const reliableConfidence = 0.80

type WorkflowService struct {
	storage  persistence.Storage
	detector *detector.Detector
	params   *parameterizer.Parameterizer
	cache    *cache.WorkflowCache
}

func NewWorkflowService(storage persistence.Storage, det *detector.Detector,
	params *parameterizer.Parameterizer, wfCache *cache.WorkflowCache) *WorkflowService {
	return &WorkflowService{storage: storage, detector: det, params: params, cache: wfCache}
}

// RecordAction appends one observed action to the log, filling in the
// fields an observer may omit.
func (ws *WorkflowService) RecordAction(action *model.Action) error {
	if !action.Kind.Valid() {
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
	if action.Surface == "" {
		action.Surface = action.Kind.DefaultSurface()
	}
	if !action.Surface.Valid() {
		return fmt.Errorf("unknown surface %q", action.Surface)
	}
	if action.Surface != action.Kind.DefaultSurface() {
		return fmt.Errorf("kind %s does not belong to surface %s", action.Kind, action.Surface)
	}
	if action.Id == "" {
		action.Id = uuid.NewString()
	}
	if action.ObservedAt.IsZero() {
		action.ObservedAt = time.Now()
	}
	if action.Confidence == 0 {
		action.Confidence = 1.0
	}
	return ws.storage.Actions().Append(*action)
}

// DetectNow runs one detection pass and parameterizes any workflow that
// gained variable slots but has no schema yet.
func (ws *WorkflowService) DetectNow() ([]*model.Workflow, error) {
	workflows, err := ws.detector.Detect()
	if err != nil {
		return nil, err
	}
	for _, wf := range workflows {
		if wf.Schema == nil && hasVariableSlots(wf) {
			ws.params.CreateSchema(wf)
			if err := ws.storage.Workflows().Save(wf); err != nil {
				return nil, err
			}
		}
		ws.cache.Invalidate(wf.Id)
	}
	return workflows, nil
}

func (ws *WorkflowService) List() ([]*model.Workflow, error) {
	return ws.storage.Workflows().List()
}

func (ws *WorkflowService) Get(id string) (*model.Workflow, error) {
	if wf, ok := ws.cache.Get(id); ok {
		return wf, nil
	}
	wf, err := ws.storage.Workflows().Get(id)
	if err != nil {
		return nil, err
	}
	ws.cache.Put(wf)
	return wf, nil
}

func (ws *WorkflowService) Delete(id string) error {
	if _, err := ws.storage.Workflows().Get(id); err != nil {
		return err
	}
	ws.cache.Invalidate(id)
	return ws.storage.Workflows().Delete(id)
}

// Parameterize recomputes a workflow's parameter schema on demand.
func (ws *WorkflowService) Parameterize(id string) (*model.ParameterSchema, error) {
	wf, err := ws.storage.Workflows().Get(id)
	if err != nil {
		return nil, err
	}
	schema := ws.params.CreateSchema(wf)
	if err := ws.storage.Workflows().Save(wf); err != nil {
		return nil, err
	}
	ws.cache.Invalidate(id)
	return schema, nil
}

type Stats struct {
	Workflows         int            `json:"workflows"`
	ReliableWorkflows int            `json:"reliableWorkflows"`
	Schedules         int            `json:"schedules"`
	ExecutionsByState map[string]int `json:"executionsByState"`
}

func (ws *WorkflowService) Stats() (*Stats, error) {
	workflows, err := ws.storage.Workflows().List()
	if err != nil {
		return nil, err
	}
	schedules, err := ws.storage.Schedules().List()
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Workflows:         len(workflows),
		Schedules:         len(schedules),
		ExecutionsByState: map[string]int{},
	}
	for _, wf := range workflows {
		if wf.Confidence >= reliableConfidence {
			stats.ReliableWorkflows++
		}
		executions, err := ws.storage.Executions().ByWorkflow(wf.Id, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range executions {
			stats.ExecutionsByState[string(e.State)]++
		}
	}
	return stats, nil
}

func hasVariableSlots(wf *model.Workflow) bool {
	for _, t := range wf.Actions {
		if t.Variable {
			return true
		}
	}
	return false
}
