package redis

import (
	"context"

	rd "github.com/go-redis/redis/v9"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence"
	"github.com/recurhq/recur/util"
)

var _ persistence.WorkflowDao = new(redisWorkflowDao)

const WORKFLOW_DEF string = "WF_DEF"
const WORKFLOW_IDS string = "WF_IDS"

type redisWorkflowDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Workflow]
}

func NewRedisWorkflowDao(conf Config) *redisWorkflowDao {
	return &redisWorkflowDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Workflow](),
	}
}

func (rwd *redisWorkflowDao) Save(wf *model.Workflow) error {
	key := rwd.baseDao.getNamespaceKey(WORKFLOW_DEF, wf.Id)
	idx := rwd.baseDao.getNamespaceKey(WORKFLOW_IDS)
	ctx := context.Background()
	data, err := rwd.encoderDecoder.Encode(*wf)
	if err != nil {
		return err
	}
	pipe := rwd.redisClient.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, idx, wf.Id)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rwd *redisWorkflowDao) Get(id string) (*model.Workflow, error) {
	key := rwd.baseDao.getNamespaceKey(WORKFLOW_DEF, id)
	ctx := context.Background()
	val, err := rwd.redisClient.Get(ctx, key).Result()
	if err == rd.Nil {
		return nil, persistence.NotFoundError{Kind: "workflow", Id: id}
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rwd.encoderDecoder.Decode([]byte(val))
}

func (rwd *redisWorkflowDao) Delete(id string) error {
	key := rwd.baseDao.getNamespaceKey(WORKFLOW_DEF, id)
	idx := rwd.baseDao.getNamespaceKey(WORKFLOW_IDS)
	ctx := context.Background()
	pipe := rwd.redisClient.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, idx, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rwd *redisWorkflowDao) List() ([]*model.Workflow, error) {
	idx := rwd.baseDao.getNamespaceKey(WORKFLOW_IDS)
	ctx := context.Background()
	ids, err := rwd.redisClient.SMembers(ctx, idx).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	workflows := make([]*model.Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := rwd.Get(id)
		if err != nil {
			if _, ok := err.(persistence.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}
