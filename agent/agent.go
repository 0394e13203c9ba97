package agent

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mohitkumar/autoflow/action"
	"github.com/mohitkumar/autoflow/analytics"
	"github.com/mohitkumar/autoflow/audit"
	"github.com/mohitkumar/autoflow/config"
	"github.com/mohitkumar/autoflow/engine"
	"github.com/mohitkumar/autoflow/executor"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/matcher"
	"github.com/mohitkumar/autoflow/metadata"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/outcome"
	"github.com/mohitkumar/autoflow/persistence"
	"github.com/mohitkumar/autoflow/persistence/memory"
	"github.com/mohitkumar/autoflow/persistence/redis"
	"github.com/mohitkumar/autoflow/rest"
	"go.uber.org/zap"
)

type Agent struct {
	Config          config.Config
	storage         persistence.Storage
	closers         []io.Closer
	auditLog        *audit.Log
	metadataService *metadata.MetadataServiceImpl
	engine          *engine.Engine
	executors       []executor.Executor
	httpServer      *rest.Server
	shutdown        bool
	shutdownLock    sync.Mutex
	wg              sync.WaitGroup
}

func New(config config.Config) (*Agent, error) {
	a := &Agent{
		Config: config,
	}
	setup := []func() error{
		a.setupStorage,
		a.setupAuditLog,
		a.setupMetadataService,
		a.setupEngine,
		a.setupExecutors,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	retention := a.Config.AuditConfig.ExecutionRetention
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_REDIS:
		rs := redis.NewStorage(redis.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
			PoolSize:  a.Config.RedisConfig.PoolSize,
			Password:  a.Config.RedisConfig.Password,
			Retention: retention,
		})
		a.storage = rs
		a.closers = append(a.closers, rs)
	case config.STORAGE_TYPE_INMEM, "":
		a.storage = memory.NewStorage(retention)
	default:
		return fmt.Errorf("unknown storage implementation %s", a.Config.StorageType)
	}
	logger.Info("storage configured", zap.String("impl", string(a.Config.StorageType)))
	return nil
}

func (a *Agent) setupAuditLog() error {
	var collectors []audit.Collector
	if a.Config.AuditConfig.FileName != "" {
		c, err := analytics.NewDataCollector(analytics.DataCollectorConfig{
			FileName:      a.Config.AuditConfig.FileName,
			CollectorType: analytics.LOG_FILE_DATA_COLLECTOR,
		})
		if err != nil {
			return err
		}
		collectors = append(collectors, c)
		if closer, ok := c.(io.Closer); ok {
			a.closers = append(a.closers, closer)
		}
	}
	a.auditLog = audit.NewLog(a.storage, a.storage, collectors...)
	return nil
}

func (a *Agent) setupMetadataService() error {
	a.metadataService = metadata.NewMetadataService(a.storage)
	return nil
}

func (a *Agent) setupEngine() error {
	actions := action.NewRegistry(action.NewLogBackend())
	if err := actions.Register(model.ACTION_RUN_SCRIPT, action.NewScriptBackend()); err != nil {
		return err
	}
	ac := a.Config.ActionConfig
	actionExecutor := action.NewExecutor(actions, a.auditLog, action.Config{
		Timeout:       ac.Timeout,
		Retries:       ac.Retries,
		BackoffBase:   ac.BackoffBase,
		BackoffFactor: ac.BackoffFactor,
		BackoffMax:    ac.BackoffMax,
	})
	dispatcher := outcome.NewDispatcher(outcome.NewRegistry(outcome.NewLogChannel()), a.auditLog, ac.Timeout)
	a.engine = engine.NewEngine(a.Config.EngineConfig, matcher.NewMatcher(), actionExecutor, dispatcher, a.auditLog)
	a.metadataService.Subscribe(a.engine.HandleChange)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	flows, err := a.storage.ListFlows(ctx)
	if err != nil {
		return err
	}
	a.engine.LoadFlows(flows)
	logger.Info("flows loaded", zap.Int("stored", len(flows)), zap.Int("active", len(a.engine.Registry().ActiveFlows())))
	return nil
}

func (a *Agent) setupExecutors() error {
	tick := a.Config.EngineConfig.EscalationTick
	a.executors = []executor.Executor{
		a.engine,
		executor.NewEscalationExecutor(a.engine, tick, &a.wg),
		executor.NewAdmissionSweepExecutor(a.engine, tick, &a.wg),
		executor.NewWindowJanitorExecutor(a.engine.Matcher(), time.Minute, &a.wg),
	}
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.metadataService, a.engine, a.auditLog)
	if err != nil {
		return err
	}
	return nil
}

func (a *Agent) Start() error {
	for _, ex := range a.executors {
		if err := ex.Start(); err != nil {
			return fmt.Errorf("starting %s: %w", ex.Name(), err)
		}
	}
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server failed", zap.Error(err))
			_ = a.Shutdown()
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	if err := a.httpServer.Stop(); err != nil {
		return err
	}
	// background executors first, the engine last so running executions finish
	for i := len(a.executors) - 1; i >= 0; i-- {
		ex := a.executors[i]
		if err := ex.Stop(); err != nil {
			logger.Error("error stopping executor", zap.String("executor", ex.Name()), zap.Error(err))
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.Error("error closing resource", zap.Error(err))
		}
	}
	return nil
}
