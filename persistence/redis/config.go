package redis

import "time"

type Config struct {
	Addrs     []string
	Namespace string
	PoolSize  int
	Password  string
	// Retention is how long finished executions and their audit trail are kept.
	Retention time.Duration
}
