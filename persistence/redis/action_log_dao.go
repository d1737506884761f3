package redis

import (
	"context"

	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence"
	"github.com/recurhq/recur/util"
)

var _ persistence.ActionLogDao = new(redisActionLogDao)

const ACTION_LOG string = "ACTIONS"

// maxRetained bounds the action log; detection only ever reads a sliding
// window so older entries have no consumer.
const maxRetained = 1000

type redisActionLogDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Action]
}

func NewRedisActionLogDao(conf Config) *redisActionLogDao {
	return &redisActionLogDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Action](),
	}
}

func (rad *redisActionLogDao) Append(action model.Action) error {
	key := rad.baseDao.getNamespaceKey(ACTION_LOG)
	ctx := context.Background()
	data, err := rad.encoderDecoder.Encode(action)
	if err != nil {
		return err
	}
	pipe := rad.redisClient.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -maxRetained, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rad *redisActionLogDao) Recent(n int) ([]model.Action, error) {
	key := rad.baseDao.getNamespaceKey(ACTION_LOG)
	ctx := context.Background()
	vals, err := rad.redisClient.LRange(ctx, key, int64(-n), -1).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	actions := make([]model.Action, 0, len(vals))
	for _, val := range vals {
		action, err := rad.encoderDecoder.Decode([]byte(val))
		if err != nil {
			return nil, err
		}
		actions = append(actions, *action)
	}
	return actions, nil
}
