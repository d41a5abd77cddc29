package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Subcommand names. Each maps to its own validation profile.
const (
	SubcommandKafka    = "kafka"
	SubcommandRabbitMQ = "rabbitmq"
	SubcommandURL      = "url"
	SubcommandStdin    = "stdin"
	SubcommandTest     = "test"
	SubcommandSleep    = "sleep"
	SubcommandVersion  = "version"
)

// Engine backends selectable via ENGINE_BACKEND.
const (
	BackendScylla = "scylla"
	BackendMySQL  = "mysql"
)

// Viper keys. Resolution order is CLI flag > environment > ini file > default.
const (
	KeyDataSource       = "LOADER_DATA_SOURCE"
	KeyEntityType       = "LOADER_ENTITY_TYPE"
	KeyInputURL         = "LOADER_INPUT_URL"
	KeyInputWorkers     = "LOADER_INPUT_WORKERS"
	KeyOutputWorkers    = "LOADER_OUTPUT_WORKERS"
	KeyQueueMax         = "LOADER_QUEUE_MAX"
	KeyMonitoringPeriod = "LOADER_MONITORING_PERIOD_SECONDS"
	KeySleepTime        = "LOADER_SLEEP_TIME_SECONDS"
	KeyDebug            = "LOADER_DEBUG"
	KeyEngineBackend    = "ENGINE_BACKEND"

	KeyKafkaBootstrapServers = "KAFKA_CONSUMER_BOOTSTRAP_SERVERS"
	KeyKafkaTopic            = "KAFKA_CONSUMER_TOPIC"
	KeyKafkaGroupID          = "KAFKA_CONSUMER_GROUP_ID"

	KeyRabbitMQURL   = "RABBITMQ_URL"
	KeyRabbitMQQueue = "RABBITMQ_QUEUE"

	KeyEtcdServers       = "ETCD_SERVERS"
	KeyFailureTopic      = "KAFKA_FAILURE_TOPIC"
	KeyDedupeRedisAddr   = "DEDUPE_REDIS_ADDR"
	KeyAutoRegister      = "LOADER_AUTO_REGISTER_DATA_SOURCES"
	KeyRegistryKeyPrefix = "ETCD_DATA_SOURCE_PREFIX"
)

const (
	DefaultInputWorkers     = 3
	DefaultOutputWorkers    = 3
	DefaultQueueMax         = 10
	DefaultMonitoringPeriod = 300
	DefaultSleepTime        = 600
)

// AppConfig is the aggregate loader configuration for one subcommand run.
type AppConfig struct {
	Subcommand string

	DataSource string
	EntityType string
	InputURL   string

	InputWorkers            int
	OutputWorkers           int
	QueueMax                int
	MonitoringPeriodSeconds int
	SleepTimeSeconds        int
	Debug                   bool

	EngineBackend string

	DedupeEnabled   bool
	FailureEnabled  bool
	RegistryEnabled bool
	AutoRegister    bool
}

func setDefaults() {
	viper.SetDefault(KeyInputWorkers, DefaultInputWorkers)
	viper.SetDefault(KeyOutputWorkers, DefaultOutputWorkers)
	viper.SetDefault(KeyQueueMax, DefaultQueueMax)
	viper.SetDefault(KeyMonitoringPeriod, DefaultMonitoringPeriod)
	viper.SetDefault(KeySleepTime, DefaultSleepTime)
	viper.SetDefault(KeyEngineBackend, BackendScylla)
}

// Build assembles the AppConfig for a subcommand from viper.
func Build(subcommand string) *AppConfig {
	setDefaults()
	return &AppConfig{
		Subcommand:              subcommand,
		DataSource:              viper.GetString(KeyDataSource),
		EntityType:              viper.GetString(KeyEntityType),
		InputURL:                viper.GetString(KeyInputURL),
		InputWorkers:            viper.GetInt(KeyInputWorkers),
		OutputWorkers:           viper.GetInt(KeyOutputWorkers),
		QueueMax:                viper.GetInt(KeyQueueMax),
		MonitoringPeriodSeconds: viper.GetInt(KeyMonitoringPeriod),
		SleepTimeSeconds:        viper.GetInt(KeySleepTime),
		Debug:                   viper.GetBool(KeyDebug),
		EngineBackend:           viper.GetString(KeyEngineBackend),
		DedupeEnabled:           viper.IsSet(KeyDedupeRedisAddr),
		FailureEnabled:          viper.IsSet(KeyFailureTopic),
		RegistryEnabled:         viper.IsSet(KeyEtcdServers),
		AutoRegister:            viper.GetBool(KeyAutoRegister),
	}
}

// loadingSubcommands are the subcommands that write to the record store.
var loadingSubcommands = map[string]bool{
	SubcommandKafka:    true,
	SubcommandRabbitMQ: true,
	SubcommandURL:      true,
	SubcommandStdin:    true,
}

// Validate checks the aggregate configuration for the given subcommand.
// Soft issues are logged as warnings; hard issues abort the run.
func (c *AppConfig) Validate() error {
	var errs []error

	if loadingSubcommands[c.Subcommand] {
		if c.EngineBackend != BackendScylla && c.EngineBackend != BackendMySQL {
			errs = append(errs, fmt.Errorf("unknown engine backend %q", c.EngineBackend))
		}
		if c.InputWorkers < 1 {
			errs = append(errs, fmt.Errorf("input workers must be >= 1, got %d", c.InputWorkers))
		}
		if c.OutputWorkers < 1 {
			errs = append(errs, fmt.Errorf("output workers must be >= 1, got %d", c.OutputWorkers))
		}
	}

	switch c.Subcommand {
	case SubcommandKafka:
		if !viper.IsSet(KeyKafkaBootstrapServers) {
			errs = append(errs, errors.New(KeyKafkaBootstrapServers+" not set"))
		}
		if !viper.IsSet(KeyKafkaTopic) {
			errs = append(errs, errors.New(KeyKafkaTopic+" not set"))
		}
		if !viper.IsSet(KeyKafkaGroupID) {
			errs = append(errs, errors.New(KeyKafkaGroupID+" not set"))
		}
	case SubcommandRabbitMQ:
		if !viper.IsSet(KeyRabbitMQURL) {
			errs = append(errs, errors.New(KeyRabbitMQURL+" not set"))
		}
		if !viper.IsSet(KeyRabbitMQQueue) {
			errs = append(errs, errors.New(KeyRabbitMQQueue+" not set"))
		}
	case SubcommandURL:
		if c.InputURL == "" {
			errs = append(errs, errors.New(KeyInputURL+" not set"))
		}
	case SubcommandStdin:
		if c.DataSource == "" {
			log.Warn().Msgf("%s not set; records without DATA_SOURCE will be rejected", KeyDataSource)
		}
		if c.EntityType == "" {
			log.Warn().Msgf("%s not set; records without ENTITY_TYPE are loaded as-is", KeyEntityType)
		}
	}

	return errors.Join(errs...)
}
