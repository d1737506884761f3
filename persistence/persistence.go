package persistence

import (
	"fmt"

	"github.com/recurhq/recur/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

type NotFoundError struct {
	Kind string
	Id   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Id)
}

// ActionLogDao is the append-only record of classified user actions.
type ActionLogDao interface {
	Append(action model.Action) error

	// Recent returns up to n most recent actions in observation order.
	Recent(n int) ([]model.Action, error)
}

type WorkflowDao interface {
	Save(wf *model.Workflow) error

	Get(id string) (*model.Workflow, error)

	Delete(id string) error

	List() ([]*model.Workflow, error)
}

type ExecutionDao interface {
	Save(e *model.Execution) error

	Get(id string) (*model.Execution, error)

	// NonTerminal returns executions left in queued/running/paused state,
	// used at startup to surface interrupted runs.
	NonTerminal() ([]*model.Execution, error)

	ByWorkflow(workflowId string, limit int) ([]*model.Execution, error)
}

type ScheduleDao interface {
	Save(s *model.Schedule) error

	Get(id string) (*model.Schedule, error)

	Delete(id string) error

	List() ([]*model.Schedule, error)
}

type Storage interface {
	Actions() ActionLogDao
	Workflows() WorkflowDao
	Executions() ExecutionDao
	Schedules() ScheduleDao
}
