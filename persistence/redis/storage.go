package redis

import (
	"time"

	"github.com/mohitkumar/autoflow/persistence"
)

var _ persistence.Storage = new(Storage)

type Storage struct {
	*redisFlowDao
	*redisExecutionDao
	*redisAuditDao
	base *baseDao
}

func NewStorage(conf Config) *Storage {
	if conf.Retention <= 0 {
		conf.Retention = time.Hour
	}
	base := newBaseDao(conf)
	return &Storage{
		redisFlowDao:      newRedisFlowDao(base),
		redisExecutionDao: newRedisExecutionDao(base, conf.Retention),
		redisAuditDao:     newRedisAuditDao(base, conf.Retention),
		base:              base,
	}
}

func (s *Storage) Close() error {
	return s.base.Close()
}
