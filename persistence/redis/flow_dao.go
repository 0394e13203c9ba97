package redis

import (
	"context"
	"errors"
	"sort"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/persistence"
	"github.com/mohitkumar/autoflow/util"
	"go.uber.org/zap"
)

const FLOW_KEY string = "FLOW"

var _ persistence.FlowStore = new(redisFlowDao)

type redisFlowDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.AutomationFlow]
}

func newRedisFlowDao(base *baseDao) *redisFlowDao {
	return &redisFlowDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.AutomationFlow](),
	}
}

func (rf *redisFlowDao) SaveFlow(ctx context.Context, fl *model.AutomationFlow) error {
	key := rf.getNamespaceKey(FLOW_KEY)
	data, err := rf.encoderDecoder.Encode(*fl)
	if err != nil {
		return err
	}
	if err := rf.redisClient.HSet(ctx, key, fl.Id, string(data)).Err(); err != nil {
		logger.Error("error in saving flow", zap.String("flowId", fl.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rf *redisFlowDao) GetFlow(ctx context.Context, id string) (*model.AutomationFlow, error) {
	key := rf.getNamespaceKey(FLOW_KEY)
	flowStr, err := rf.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.ErrNotFound
		}
		logger.Error("error in getting flow", zap.String("flowId", id), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rf.encoderDecoder.Decode([]byte(flowStr))
}

func (rf *redisFlowDao) DeleteFlow(ctx context.Context, id string) error {
	key := rf.getNamespaceKey(FLOW_KEY)
	n, err := rf.redisClient.HDel(ctx, key, id).Result()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (rf *redisFlowDao) ListFlows(ctx context.Context) ([]*model.AutomationFlow, error) {
	key := rf.getNamespaceKey(FLOW_KEY)
	values, err := rf.redisClient.HVals(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	res := make([]*model.AutomationFlow, 0, len(values))
	for _, v := range values {
		fl, err := rf.encoderDecoder.Decode([]byte(v))
		if err != nil {
			logger.Error("skipping undecodable flow", zap.Error(err))
			continue
		}
		res = append(res, fl)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt) ||
			(res[i].CreatedAt.Equal(res[j].CreatedAt) && res[i].Id < res[j].Id)
	})
	return res, nil
}
