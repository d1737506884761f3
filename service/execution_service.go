package service

import (
	"github.com/recurhq/recur/engine"
	"github.com/recurhq/recur/logger"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence"
	"github.com/recurhq/recur/safety"
)

type ExecutionService struct {
	storage persistence.Storage
	engine  *engine.Engine
	stop    *safety.StopSignal
}

func NewExecutionService(storage persistence.Storage, eng *engine.Engine, stop *safety.StopSignal) *ExecutionService {
	return &ExecutionService{storage: storage, engine: eng, stop: stop}
}

// Queue admits one run of a workflow. Validation problems surface as
// parameterizer.ValidationErrors so the REST layer can render them field
// by field.
func (es *ExecutionService) Queue(workflowId string, values map[string]any) (*model.Execution, error) {
	wf, err := es.storage.Workflows().Get(workflowId)
	if err != nil {
		return nil, err
	}
	return es.engine.Queue(wf, values)
}

func (es *ExecutionService) Get(id string) (*model.Execution, error) {
	return es.storage.Executions().Get(id)
}

func (es *ExecutionService) ByWorkflow(workflowId string, limit int) ([]*model.Execution, error) {
	return es.storage.Executions().ByWorkflow(workflowId, limit)
}

func (es *ExecutionService) Pause(id string) error {
	return es.engine.Pause(id)
}

func (es *ExecutionService) Resume(id string) error {
	return es.engine.Resume(id)
}

func (es *ExecutionService) Cancel(id string) error {
	return es.engine.Cancel(id)
}

// EmergencyStop halts every running execution at its next boundary and
// keeps new work out until cleared.
func (es *ExecutionService) EmergencyStop() {
	logger.Warn("emergency stop raised")
	es.stop.Raise()
}

func (es *ExecutionService) ClearEmergencyStop() {
	logger.Info("emergency stop cleared")
	es.stop.Clear()
}

func (es *ExecutionService) EmergencyStopActive() bool {
	return es.stop.Raised()
}
