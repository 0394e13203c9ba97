package redis

import (
	"context"
	"time"

	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/persistence"
	"github.com/mohitkumar/autoflow/util"
	"go.uber.org/zap"
)

const AUDIT_KEY string = "AUDIT"

var _ persistence.AuditStore = new(redisAuditDao)

type redisAuditDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.AuditEntry]
	retention      time.Duration
	flowCap        int
}

func newRedisAuditDao(base *baseDao, retention time.Duration) *redisAuditDao {
	return &redisAuditDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.AuditEntry](),
		retention:      retention,
		flowCap:        persistence.MAX_FLOW_AUDIT_ENTRIES,
	}
}

func (ra *redisAuditDao) key(entry model.AuditEntry) string {
	if entry.ExecutionId != "" {
		return ra.getNamespaceKey(AUDIT_KEY, entry.ExecutionId)
	}
	return ra.flowKey(entry.FlowId)
}

func (ra *redisAuditDao) flowKey(flowId string) string {
	return ra.getNamespaceKey(AUDIT_KEY, "flow", flowId)
}

func (ra *redisAuditDao) Append(ctx context.Context, entry model.AuditEntry) error {
	data, err := ra.encoderDecoder.Encode(entry)
	if err != nil {
		return err
	}
	key := ra.key(entry)
	pipe := ra.redisClient.Pipeline()
	pipe.RPush(ctx, key, string(data))
	if entry.ExecutionId == "" {
		pipe.LTrim(ctx, key, int64(-ra.flowCap), -1)
	}
	pipe.Expire(ctx, key, ra.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error in appending audit entry", zap.String("key", key), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (ra *redisAuditDao) Entries(ctx context.Context, executionId string) ([]model.AuditEntry, error) {
	return ra.entries(ctx, ra.getNamespaceKey(AUDIT_KEY, executionId))
}

func (ra *redisAuditDao) FlowEntries(ctx context.Context, flowId string) ([]model.AuditEntry, error) {
	return ra.entries(ctx, ra.flowKey(flowId))
}

func (ra *redisAuditDao) entries(ctx context.Context, key string) ([]model.AuditEntry, error) {
	values, err := ra.redisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	res := make([]model.AuditEntry, 0, len(values))
	for _, v := range values {
		entry, err := ra.encoderDecoder.Decode([]byte(v))
		if err != nil {
			return nil, err
		}
		res = append(res, *entry)
	}
	return res, nil
}
