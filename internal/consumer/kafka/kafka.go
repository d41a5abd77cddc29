package kafka

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog/log"

	consumerConf "github.com/terrorizer1980/stream-loader/internal/consumer/config"
	"github.com/terrorizer1980/stream-loader/internal/loader"
	"github.com/terrorizer1980/stream-loader/pkg/metric"
)

const (
	bootstrapServers     = "bootstrap.servers"
	groupID              = "group.id"
	autoOffsetReset      = "auto.offset.reset"
	reBalanceEnable      = "go.application.rebalance.enable"
	enableAutoCommit     = "enable.auto.commit"
	autoCommitIntervalMs = "auto.commit.interval.ms"
	saslUsername         = "sasl.username"
	saslPassword         = "sasl.password"
	saslMechanism        = "sasl.mechanisms"
	securityProtocol     = "security.protocol"
	clientID             = "client.id"
)

// BatchHandler processes a batch of raw Kafka messages.
// Return nil on success (processBatch will commit); return error to trigger seek-back.
type BatchHandler func(msgs []*kafka.Message, c *kafka.Consumer) error

// Listener runs a pool of consumers against the record topic and hands
// message batches to a BatchHandler.
type Listener struct {
	consumers    []*kafka.Consumer
	config       *consumerConf.KafkaConfig
	sigChan      chan os.Signal
	batchHandler BatchHandler
	wg           sync.WaitGroup
}

// LoaderHandler routes every message in a batch through the loader. Poison
// messages are rejected inside the loader and do not fail the batch; an
// engine or registry failure does, so the offsets are replayed.
func LoaderHandler(ldr *loader.Loader) BatchHandler {
	return func(msgs []*kafka.Message, _ *kafka.Consumer) error {
		ctx := context.Background()
		for _, msg := range msgs {
			ldr.Counters().IncrQueued()
			if err := ldr.LoadLine(ctx, string(msg.Value)); err != nil {
				return err
			}
		}
		return nil
	}
}

func NewListener(cfg *consumerConf.KafkaConfig, batchHandler BatchHandler) *Listener {
	return &Listener{
		config:       cfg,
		batchHandler: batchHandler,
	}
}

func (k *Listener) Init() {
	for i := 0; i < k.config.Concurrency; i++ {
		indexString := strconv.Itoa(i)
		configMap := &kafka.ConfigMap{
			bootstrapServers:     k.config.BootstrapURLs,
			groupID:              k.config.GroupID,
			autoOffsetReset:      k.config.AutoOffsetReset,
			reBalanceEnable:      k.config.ReBalanceEnable,
			enableAutoCommit:     k.config.AutoCommitEnable,
			autoCommitIntervalMs: k.config.AutoCommitIntervalInMs,
			clientID:             k.config.ClientID + "-" + indexString,
		}
		if k.config.SecurityProtocol != "" {
			(*configMap)[securityProtocol] = k.config.SecurityProtocol
		}
		if k.config.SaslMechanism != "" {
			(*configMap)[saslMechanism] = k.config.SaslMechanism
		}
		if k.config.SaslUsername != "" {
			(*configMap)[saslUsername] = k.config.SaslUsername
		}
		if k.config.SaslPassword != "" {
			(*configMap)[saslPassword] = k.config.SaslPassword
		}
		consumer, err := kafka.NewConsumer(configMap)
		if err != nil {
			log.Panic().Err(err).Msg("Failed to create Kafka consumer.")
		}
		err = consumer.SubscribeTopics([]string{k.config.Topic}, nil)
		if err != nil {
			log.Panic().Err(err).Msgf("Failed to subscribe to topic %s", k.config.Topic)
		}
		k.consumers = append(k.consumers, consumer)
	}
	k.sigChan = make(chan os.Signal, 1)
	signal.Notify(k.sigChan, syscall.SIGINT, syscall.SIGTERM)
}

func (k *Listener) Consume() {
	for i, c := range k.consumers {
		consumer := c
		log.Info().Msgf("Starting consumption of %s, instance %v", k.config.Topic, i)
		k.wg.Add(1)
		go func() {
			defer k.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Msgf("%v : Recovered from panic: %v", consumer, r)
					partitions, _ := consumer.Assignment()
					_, err := consumer.SeekPartitions(partitions)
					if err != nil {
						log.Error().Msgf("%v : Failed to seek partitions", consumer)
					}
					metric.Incr("consumer_panic", []string{
						metric.TagAsString(metric.TagGroup, k.config.GroupID),
						metric.TagAsString(metric.TagClient, k.config.ClientID),
					})
				}
			}()
			run := true

			messages := make([]*kafka.Message, 0, k.config.BatchSize)
			msgCount := 0
			flushTimer := time.NewTicker(time.Duration(k.config.FlushIntervalSeconds) * time.Second)
			defer flushTimer.Stop()

			for run {
				select {
				case <-k.sigChan:
					log.Info().Msgf("Terminating instance %v", consumer)

					if msgCount > 0 {
						log.Debug().Msgf("Processing remaining %d messages before shutdown", msgCount)
						k.processBatch(consumer, messages)
					}

					if err := consumer.Unsubscribe(); err != nil {
						log.Error().Msg("Error while unsubscribing topic")
					}
					if err := consumer.Close(); err != nil {
						log.Error().Msg("Error while closing consumer")
					}
					run = false

				case <-flushTimer.C:
					if msgCount > 0 {
						log.Info().Int("msgCount", msgCount).Msg("Flushing batch due to timeout")
						k.processBatch(consumer, messages)
						msgCount = 0
						messages = messages[:0]
					}

				default:
					ev := consumer.Poll(k.config.PollTimeout)
					if ev == nil {
						continue
					}
					switch e := ev.(type) {
					case *kafka.Message:
						metric.Incr("events_consumed", []string{
							metric.TagAsString(metric.TagTopic, *e.TopicPartition.Topic),
							metric.TagAsString(metric.TagGroup, k.config.GroupID),
							metric.TagAsString(metric.TagClient, k.config.ClientID),
						})

						messages = append(messages, e)
						msgCount++

						if msgCount == k.config.BatchSize {
							log.Debug().Int("msgCount", msgCount).Msg("Processing batch (batch full)")
							k.processBatch(consumer, messages)
							msgCount = 0
							messages = messages[:0]
						}

					case kafka.Error:
						if e.IsFatal() {
							log.Error().Err(e).Msg("Fatal Kafka error. Shutting down consumer.")

							if msgCount > 0 {
								log.Info().Msgf("Processing remaining %d messages before fatal error", msgCount)
								k.processBatch(consumer, messages)
							}

							run = false
						} else {
							log.Error().Err(e).Msg("Non-fatal Kafka error encountered.")
						}

					default:
						log.Debug().Msgf("Ignored event: %#v", e)
					}
				}
			}
		}()
	}
}

// Wait blocks until every consumer goroutine has exited.
func (k *Listener) Wait() {
	k.wg.Wait()
}

// seekTargets returns the earliest consumed offset per topic partition, so a
// failed batch is replayed from its first message rather than an arbitrary
// one.
func seekTargets(messages []*kafka.Message) []kafka.TopicPartition {
	type partition struct {
		topic string
		index int32
	}
	earliest := make(map[partition]kafka.TopicPartition)
	for _, m := range messages {
		key := partition{topic: *m.TopicPartition.Topic, index: m.TopicPartition.Partition}
		if tp, ok := earliest[key]; !ok || m.TopicPartition.Offset < tp.Offset {
			earliest[key] = m.TopicPartition
		}
	}
	targets := make([]kafka.TopicPartition, 0, len(earliest))
	for _, tp := range earliest {
		targets = append(targets, tp)
	}
	return targets
}

func (k *Listener) processBatch(consumer *kafka.Consumer, messages []*kafka.Message) {
	if len(messages) == 0 {
		return
	}
	err := k.batchHandler(messages, consumer)
	if err != nil {
		log.Error().Err(err).Msg("Batch processing failed, seeking back")
		if _, seekErr := consumer.SeekPartitions(seekTargets(messages)); seekErr != nil {
			log.Error().Err(seekErr).Msg("Failed to seek partitions")
		}
		return
	}
	if !k.config.AutoCommitEnable {
		if _, err := consumer.Commit(); err != nil {
			log.Error().Err(err).Msg("Failed to commit")
		}
	}
}
