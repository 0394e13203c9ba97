package config

import "time"

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	HttpPort     int
	StorageType  StorageType
	RedisConfig  RedisStorageConfig
	EngineConfig EngineConfig
	ActionConfig ActionConfig
	AuditConfig  AuditConfig
	LogLevel     string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
	PoolSize  int
	Password  string
}

type EngineConfig struct {
	MaxConcurrentPerFlow int
	AdmissionQueueSize   int
	AdmissionWait        time.Duration
	EscalationDeadline   time.Duration
	EscalationChannel    string
	EscalationTarget     string
	EscalationTick       time.Duration
	EventPartitions      int
	EventQueueSize       int
}

type ActionConfig struct {
	Timeout       time.Duration
	Retries       int
	BackoffBase   time.Duration
	BackoffFactor float64
	BackoffMax    time.Duration
}

type AuditConfig struct {
	FileName           string
	ExecutionRetention time.Duration
}

func Default() Config {
	return Config{
		HttpPort:    8080,
		StorageType: STORAGE_TYPE_INMEM,
		RedisConfig: RedisStorageConfig{
			Addrs:     []string{"localhost:6379"},
			Namespace: "autoflow",
		},
		EngineConfig: EngineConfig{
			MaxConcurrentPerFlow: 5,
			AdmissionQueueSize:   32,
			AdmissionWait:        30 * time.Second,
			EscalationDeadline:   15 * time.Minute,
			EscalationChannel:    "sms",
			EscalationTick:       time.Second,
			EventPartitions:      8,
			EventQueueSize:       512,
		},
		ActionConfig: ActionConfig{
			Timeout:       30 * time.Second,
			Retries:       2,
			BackoffBase:   time.Second,
			BackoffFactor: 2,
			BackoffMax:    30 * time.Second,
		},
		AuditConfig: AuditConfig{
			ExecutionRetention: time.Hour,
		},
		LogLevel: "info",
	}
}
