package failure

import (
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog/log"

	consumerConf "github.com/terrorizer1980/stream-loader/internal/consumer/config"
	"github.com/terrorizer1980/stream-loader/pkg/metric"
)

const flushTimeoutMs = 5000

// Producer publishes poison lines to a dead-letter topic so they can be
// inspected and replayed. The original line is the message value and the
// rejection reason travels in a header.
type Producer struct {
	producer *kafka.Producer
	topic    string
}

func NewProducer(cfg *consumerConf.ProducerConfig) (*Producer, error) {
	configMap := kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapURLs,
		"client.id":         cfg.ClientID,
	}
	if cfg.SecurityProtocol != "" {
		configMap["security.protocol"] = cfg.SecurityProtocol
	}
	if cfg.SaslMechanism != "" {
		configMap["sasl.mechanism"] = cfg.SaslMechanism
	}
	if cfg.SaslUsername != "" {
		configMap["sasl.username"] = cfg.SaslUsername
	}
	if cfg.SaslPassword != "" {
		configMap["sasl.password"] = cfg.SaslPassword
	}

	p, err := kafka.NewProducer(&configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create dead-letter producer: %w", err)
	}

	// Drain delivery reports in background so the producer doesn't block.
	go func() {
		for e := range p.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					log.Error().Err(ev.TopicPartition.Error).
						Str("topic", *ev.TopicPartition.Topic).
						Msg("dead-letter delivery failed")
				}
			}
		}
	}()

	log.Info().Str("topic", cfg.Topic).Msg("dead-letter producer registered")
	return &Producer{producer: p, topic: cfg.Topic}, nil
}

// Publish sends one rejected line to the dead-letter topic.
func (p *Producer) Publish(line string, reason string) error {
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: kafka.PartitionAny,
		},
		Value: []byte(line),
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(reason)},
		},
	}
	if err := p.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("dead-letter produce error: %w", err)
	}
	metric.Incr("dead_letter_published", []string{metric.TagAsString(metric.TagTopic, p.topic)})
	return nil
}

// Close flushes outstanding messages and releases the producer.
func (p *Producer) Close() {
	remaining := p.producer.Flush(flushTimeoutMs)
	if remaining > 0 {
		log.Warn().Msgf("%d dead-letter messages not delivered before shutdown", remaining)
	}
	p.producer.Close()
}
