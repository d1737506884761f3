package redis

import (
	"context"

	rd "github.com/go-redis/redis/v9"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence"
	"github.com/recurhq/recur/util"
)

var _ persistence.ScheduleDao = new(redisScheduleDao)

const SCHEDULE string = "SCHEDULE"
const SCHEDULE_IDS string = "SCHEDULE_IDS"

type redisScheduleDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Schedule]
}

func NewRedisScheduleDao(conf Config) *redisScheduleDao {
	return &redisScheduleDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Schedule](),
	}
}

func (rsd *redisScheduleDao) Save(s *model.Schedule) error {
	key := rsd.baseDao.getNamespaceKey(SCHEDULE, s.Id)
	idx := rsd.baseDao.getNamespaceKey(SCHEDULE_IDS)
	ctx := context.Background()
	data, err := rsd.encoderDecoder.Encode(*s)
	if err != nil {
		return err
	}
	pipe := rsd.redisClient.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, idx, s.Id)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rsd *redisScheduleDao) Get(id string) (*model.Schedule, error) {
	key := rsd.baseDao.getNamespaceKey(SCHEDULE, id)
	ctx := context.Background()
	val, err := rsd.redisClient.Get(ctx, key).Result()
	if err == rd.Nil {
		return nil, persistence.NotFoundError{Kind: "schedule", Id: id}
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rsd.encoderDecoder.Decode([]byte(val))
}

func (rsd *redisScheduleDao) Delete(id string) error {
	key := rsd.baseDao.getNamespaceKey(SCHEDULE, id)
	idx := rsd.baseDao.getNamespaceKey(SCHEDULE_IDS)
	ctx := context.Background()
	pipe := rsd.redisClient.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, idx, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rsd *redisScheduleDao) List() ([]*model.Schedule, error) {
	idx := rsd.baseDao.getNamespaceKey(SCHEDULE_IDS)
	ctx := context.Background()
	ids, err := rsd.redisClient.SMembers(ctx, idx).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	schedules := make([]*model.Schedule, 0, len(ids))
	for _, id := range ids {
		s, err := rsd.Get(id)
		if err != nil {
			if _, ok := err.(persistence.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}
