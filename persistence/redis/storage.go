package redis

import "github.com/recurhq/recur/persistence"

var _ persistence.Storage = new(Storage)

type Storage struct {
	actions    *redisActionLogDao
	workflows  *redisWorkflowDao
	executions *redisExecutionDao
	schedules  *redisScheduleDao
}

func NewStorage(conf Config) *Storage {
	return &Storage{
		actions:    NewRedisActionLogDao(conf),
		workflows:  NewRedisWorkflowDao(conf),
		executions: NewRedisExecutionDao(conf),
		schedules:  NewRedisScheduleDao(conf),
	}
}

func (s *Storage) Actions() persistence.ActionLogDao { return s.actions }

func (s *Storage) Workflows() persistence.WorkflowDao { return s.workflows }

func (s *Storage) Executions() persistence.ExecutionDao { return s.executions }

func (s *Storage) Schedules() persistence.ScheduleDao { return s.schedules }
