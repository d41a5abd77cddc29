package config

import (
	"errors"

	"github.com/spf13/viper"
)

const (
	topic                = "_TOPIC"
	bootstrapURLs        = "_BOOTSTRAP_SERVERS"
	saslUsername         = "_SASL_USERNAME"
	saslPassword         = "_SASL_PASSWORD"
	saslMechanism        = "_SASL_MECHANISM"
	securityProtocol     = "_SECURITY_PROTOCOL"
	groupID              = "_GROUP_ID"
	autoOffsetReset      = "_AUTO_OFFSET_RESET"
	autoCommitEnable     = "_ENABLE_AUTO_COMMIT"
	reBalanceEnable      = "_RE_BALANCE_ENABLE"
	autoCommitIntervalMs = "_AUTO_COMMIT_INTERVAL_MS"
	concurrency          = "_LISTENER_CONCURRENCY"
	clientID             = "_CLIENT_ID"
	batchSize            = "_BATCH_SIZE"
	pollTimeout          = "_POLL_TIMEOUT"
	flushIntervalSeconds = "_FLUSH_INTERVAL_SECONDS"
)

const (
	defaultAutoOffsetReset      = "earliest"
	defaultAutoCommitIntervalMs = 5000
	defaultConcurrency          = 3
	defaultClientID             = "stream-loader"
	defaultBatchSize            = 100
	defaultPollTimeoutMs        = 100
	defaultFlushSeconds         = 30
)

type KafkaConfig struct {
	BootstrapURLs          string
	SaslUsername           string
	SaslPassword           string
	SaslMechanism          string
	SecurityProtocol       string
	GroupID                string
	ClientID               string
	Topic                  string
	AutoOffsetReset        string
	AutoCommitIntervalInMs int
	AutoCommitEnable       bool
	ReBalanceEnable        bool
	Concurrency            int
	BatchSize              int
	PollTimeout            int
	FlushIntervalSeconds   int
}

type KafkaConfigGeneratorV1 struct{}

type KafkaConfigGenerator interface {
	BuildConfigFromEnv(envPrefix string) (*KafkaConfig, error)
}

func NewKafkaConfig() KafkaConfigGenerator {
	return &KafkaConfigGeneratorV1{}
}

// BuildConfigFromEnv builds the consumer config from <envPrefix>_* keys.
// Topic, bootstrap servers and group id are mandatory; everything else has a
// sensible default.
func (k *KafkaConfigGeneratorV1) BuildConfigFromEnv(envPrefix string) (*KafkaConfig, error) {

	if !viper.IsSet(envPrefix + topic) {
		return nil, errors.New(envPrefix + topic + " not set")
	}
	if !viper.IsSet(envPrefix + bootstrapURLs) {
		return nil, errors.New(envPrefix + bootstrapURLs + " not set")
	}
	if !viper.IsSet(envPrefix + groupID) {
		return nil, errors.New(envPrefix + groupID + " not set")
	}

	viper.SetDefault(envPrefix+autoOffsetReset, defaultAutoOffsetReset)
	viper.SetDefault(envPrefix+autoCommitIntervalMs, defaultAutoCommitIntervalMs)
	viper.SetDefault(envPrefix+concurrency, defaultConcurrency)
	viper.SetDefault(envPrefix+clientID, defaultClientID)
	viper.SetDefault(envPrefix+batchSize, defaultBatchSize)
	viper.SetDefault(envPrefix+pollTimeout, defaultPollTimeoutMs)
	viper.SetDefault(envPrefix+flushIntervalSeconds, defaultFlushSeconds)

	return &KafkaConfig{
		Topic:                  viper.GetString(envPrefix + topic),
		BootstrapURLs:          viper.GetString(envPrefix + bootstrapURLs),
		SaslUsername:           viper.GetString(envPrefix + saslUsername),
		SaslPassword:           viper.GetString(envPrefix + saslPassword),
		SaslMechanism:          viper.GetString(envPrefix + saslMechanism),
		SecurityProtocol:       viper.GetString(envPrefix + securityProtocol),
		GroupID:                viper.GetString(envPrefix + groupID),
		AutoOffsetReset:        viper.GetString(envPrefix + autoOffsetReset),
		AutoCommitIntervalInMs: viper.GetInt(envPrefix + autoCommitIntervalMs),
		AutoCommitEnable:       viper.GetBool(envPrefix + autoCommitEnable),
		ReBalanceEnable:        viper.GetBool(envPrefix + reBalanceEnable),
		Concurrency:            viper.GetInt(envPrefix + concurrency),
		ClientID:               viper.GetString(envPrefix + clientID),
		BatchSize:              viper.GetInt(envPrefix + batchSize),
		PollTimeout:            viper.GetInt(envPrefix + pollTimeout),
		FlushIntervalSeconds:   viper.GetInt(envPrefix + flushIntervalSeconds),
	}, nil
}

// ProducerConfig configures the failure-topic producer.
type ProducerConfig struct {
	BootstrapURLs    string
	ClientID         string
	Topic            string
	SaslUsername     string
	SaslPassword     string
	SaslMechanism    string
	SecurityProtocol string
}

// BuildProducerConfigFromEnv builds the producer config from <envPrefix>_*
// keys. Topic and bootstrap servers are mandatory.
func BuildProducerConfigFromEnv(envPrefix string) (*ProducerConfig, error) {
	if !viper.IsSet(envPrefix + topic) {
		return nil, errors.New(envPrefix + topic + " not set")
	}
	if !viper.IsSet(envPrefix + bootstrapURLs) {
		return nil, errors.New(envPrefix + bootstrapURLs + " not set")
	}
	viper.SetDefault(envPrefix+clientID, defaultClientID)
	return &ProducerConfig{
		Topic:            viper.GetString(envPrefix + topic),
		BootstrapURLs:    viper.GetString(envPrefix + bootstrapURLs),
		ClientID:         viper.GetString(envPrefix + clientID),
		SaslUsername:     viper.GetString(envPrefix + saslUsername),
		SaslPassword:     viper.GetString(envPrefix + saslPassword),
		SaslMechanism:    viper.GetString(envPrefix + saslMechanism),
		SecurityProtocol: viper.GetString(envPrefix + securityProtocol),
	}, nil
}
