package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/persistence"
	"github.com/mohitkumar/autoflow/util"
	"go.uber.org/zap"
)

const EXECUTION_KEY string = "EXECUTION"
const EXECUTION_INDEX_KEY string = "EXECUTION_INDEX"

var _ persistence.ExecutionStore = new(redisExecutionDao)

// executions are stored one key each so finished ones can expire on their own;
// a sorted set per flow, scored by start time, indexes them.
type redisExecutionDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.Execution]
	retention      time.Duration
}

func newRedisExecutionDao(base *baseDao, retention time.Duration) *redisExecutionDao {
	return &redisExecutionDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.Execution](),
		retention:      retention,
	}
}

func (re *redisExecutionDao) SaveExecution(ctx context.Context, exec *model.Execution) error {
	data, err := re.encoderDecoder.Encode(*exec)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if exec.Status.Terminal() {
		ttl = re.retention
	}
	indexKey := re.getNamespaceKey(EXECUTION_INDEX_KEY, exec.FlowId)
	_, err = re.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.Set(ctx, re.getNamespaceKey(EXECUTION_KEY, exec.Id), string(data), ttl)
		pipe.ZAdd(ctx, indexKey, rd.Z{Score: float64(exec.StartedAt.UnixNano()), Member: exec.Id})
		return nil
	})
	if err != nil {
		logger.Error("error in saving execution", zap.String("executionId", exec.Id), zap.String("flowId", exec.FlowId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (re *redisExecutionDao) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	execStr, err := re.redisClient.Get(ctx, re.getNamespaceKey(EXECUTION_KEY, id)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.ErrNotFound
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return re.encoderDecoder.Decode([]byte(execStr))
}

func (re *redisExecutionDao) ListExecutions(ctx context.Context, flowId string, filter model.ExecutionFilter) ([]*model.Execution, error) {
	indexKey := re.getNamespaceKey(EXECUTION_INDEX_KEY, flowId)
	ids, err := re.redisClient.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if len(ids) == 0 {
		return []*model.Execution{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = re.getNamespaceKey(EXECUTION_KEY, id)
	}
	values, err := re.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	res := make([]*model.Execution, 0, len(values))
	var expired []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		exec, err := re.encoderDecoder.Decode([]byte(s))
		if err != nil {
			logger.Error("skipping undecodable execution", zap.String("executionId", ids[i]), zap.Error(err))
			continue
		}
		if !filter.Accept(exec) {
			continue
		}
		res = append(res, exec)
		if filter.Limit > 0 && len(res) == filter.Limit {
			break
		}
	}
	if len(expired) > 0 {
		if err := re.redisClient.ZRem(ctx, indexKey, expired...).Err(); err != nil {
			logger.Warn("error in pruning execution index", zap.String("flowId", flowId), zap.Error(err))
		}
	}
	return res, nil
}
