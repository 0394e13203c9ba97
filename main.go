package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohitkumar/autoflow/agent"
	"github.com/mohitkumar/autoflow/config"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	def := config.Default()
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().Int("http-port", def.HttpPort, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", string(def.StorageType), "implementation of underline storage (memory or redis)")
	cmd.Flags().String("redis-addr", strings.Join(def.RedisConfig.Addrs, ","), "comma separated list of redis host:port")
	cmd.Flags().String("redis-password", "", "redis password")
	cmd.Flags().Int("redis-pool-size", 0, "redis connection pool size, 0 uses the client default")
	cmd.Flags().String("namespace", def.RedisConfig.Namespace, "namespace used in storage")

	cmd.Flags().Int("max-concurrent-per-flow", def.EngineConfig.MaxConcurrentPerFlow, "max running executions per flow")
	cmd.Flags().Int("admission-queue-size", def.EngineConfig.AdmissionQueueSize, "max trigger matches waiting per flow")
	cmd.Flags().Duration("admission-wait", def.EngineConfig.AdmissionWait, "max time a trigger match waits for a slot")
	cmd.Flags().Duration("escalation-deadline", def.EngineConfig.EscalationDeadline, "default time after which a running execution is escalated")
	cmd.Flags().String("escalation-channel", def.EngineConfig.EscalationChannel, "outcome subtype used for escalations")
	cmd.Flags().String("escalation-target", def.EngineConfig.EscalationTarget, "recipient of escalations")
	cmd.Flags().Duration("escalation-tick", def.EngineConfig.EscalationTick, "interval of the escalation and admission sweeps")
	cmd.Flags().Int("event-partitions", def.EngineConfig.EventPartitions, "number of event partition workers")
	cmd.Flags().Int("event-queue-size", def.EngineConfig.EventQueueSize, "capacity of each event partition queue")

	cmd.Flags().Duration("action-timeout", def.ActionConfig.Timeout, "default timeout of an action attempt")
	cmd.Flags().Int("action-retries", def.ActionConfig.Retries, "default retries of an action")
	cmd.Flags().Duration("backoff-base", def.ActionConfig.BackoffBase, "first retry delay")
	cmd.Flags().Float64("backoff-factor", def.ActionConfig.BackoffFactor, "retry delay multiplier")
	cmd.Flags().Duration("backoff-max", def.ActionConfig.BackoffMax, "retry delay cap")

	cmd.Flags().Duration("execution-retention", def.AuditConfig.ExecutionRetention, "how long finished executions are kept")
	cmd.Flags().String("audit-file", "", "file the audit trail is also written to")
	cmd.Flags().String("log-level", def.LogLevel, "log level (debug, info, warn, error)")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err = viper.ReadInConfig(); err != nil {
			// it's ok if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return err
			}
		}
	}
	viper.SetEnvPrefix("AUTOFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	c.cfg.Config = config.Default()
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Password = viper.GetString("redis-password")
	c.cfg.RedisConfig.PoolSize = viper.GetInt("redis-pool-size")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")

	c.cfg.EngineConfig.MaxConcurrentPerFlow = viper.GetInt("max-concurrent-per-flow")
	c.cfg.EngineConfig.AdmissionQueueSize = viper.GetInt("admission-queue-size")
	c.cfg.EngineConfig.AdmissionWait = viper.GetDuration("admission-wait")
	c.cfg.EngineConfig.EscalationDeadline = viper.GetDuration("escalation-deadline")
	c.cfg.EngineConfig.EscalationChannel = viper.GetString("escalation-channel")
	c.cfg.EngineConfig.EscalationTarget = viper.GetString("escalation-target")
	c.cfg.EngineConfig.EscalationTick = viper.GetDuration("escalation-tick")
	c.cfg.EngineConfig.EventPartitions = viper.GetInt("event-partitions")
	c.cfg.EngineConfig.EventQueueSize = viper.GetInt("event-queue-size")

	c.cfg.ActionConfig.Timeout = viper.GetDuration("action-timeout")
	c.cfg.ActionConfig.Retries = viper.GetInt("action-retries")
	c.cfg.ActionConfig.BackoffBase = viper.GetDuration("backoff-base")
	c.cfg.ActionConfig.BackoffFactor = viper.GetFloat64("backoff-factor")
	c.cfg.ActionConfig.BackoffMax = viper.GetDuration("backoff-max")

	c.cfg.AuditConfig.ExecutionRetention = viper.GetDuration("execution-retention")
	c.cfg.AuditConfig.FileName = viper.GetString("audit-file")
	c.cfg.LogLevel = viper.GetString("log-level")
	return logger.SetLevel(c.cfg.LogLevel)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	var err error
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		return err
	}
	err = agent.Start()
	if err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "autoflow",
		Short:   "event driven automation flow engine",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
