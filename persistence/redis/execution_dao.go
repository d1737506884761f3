package redis

import (
	"context"

	rd "github.com/go-redis/redis/v9"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence"
	"github.com/recurhq/recur/util"
)

var _ persistence.ExecutionDao = new(redisExecutionDao)

const EXECUTION string = "EXEC"
const EXECUTION_OPEN string = "EXEC_OPEN"
const EXECUTION_BY_WF string = "EXEC_WF"

type redisExecutionDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Execution]
}

func NewRedisExecutionDao(conf Config) *redisExecutionDao {
	return &redisExecutionDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Execution](),
	}
}

func (red *redisExecutionDao) Save(e *model.Execution) error {
	key := red.baseDao.getNamespaceKey(EXECUTION, e.Id)
	open := red.baseDao.getNamespaceKey(EXECUTION_OPEN)
	byWf := red.baseDao.getNamespaceKey(EXECUTION_BY_WF, e.WorkflowId)
	ctx := context.Background()
	data, err := red.encoderDecoder.Encode(*e)
	if err != nil {
		return err
	}
	// The engine saves after every action; index the id only once.
	exists, err := red.redisClient.Exists(ctx, key).Result()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	pipe := red.redisClient.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	if exists == 0 {
		pipe.RPush(ctx, byWf, e.Id)
	}
	if e.State.Terminal() {
		pipe.SRem(ctx, open, e.Id)
	} else {
		pipe.SAdd(ctx, open, e.Id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (red *redisExecutionDao) Get(id string) (*model.Execution, error) {
	key := red.baseDao.getNamespaceKey(EXECUTION, id)
	ctx := context.Background()
	val, err := red.redisClient.Get(ctx, key).Result()
	if err == rd.Nil {
		return nil, persistence.NotFoundError{Kind: "execution", Id: id}
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return red.encoderDecoder.Decode([]byte(val))
}

func (red *redisExecutionDao) NonTerminal() ([]*model.Execution, error) {
	open := red.baseDao.getNamespaceKey(EXECUTION_OPEN)
	ctx := context.Background()
	ids, err := red.redisClient.SMembers(ctx, open).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	executions := make([]*model.Execution, 0, len(ids))
	for _, id := range ids {
		e, err := red.Get(id)
		if err != nil {
			if _, ok := err.(persistence.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, nil
}

func (red *redisExecutionDao) ByWorkflow(workflowId string, limit int) ([]*model.Execution, error) {
	byWf := red.baseDao.getNamespaceKey(EXECUTION_BY_WF, workflowId)
	ctx := context.Background()
	ids, err := red.redisClient.LRange(ctx, byWf, int64(-limit), -1).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	executions := make([]*model.Execution, 0, len(ids))
	for _, id := range ids {
		e, err := red.Get(id)
		if err != nil {
			if _, ok := err.(persistence.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, nil
}
