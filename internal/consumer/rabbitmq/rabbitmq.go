package rabbitmq

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/terrorizer1980/stream-loader/internal/loader"
	"github.com/terrorizer1980/stream-loader/pkg/metric"
)

// DeliveryHandler processes one delivery body. A nil return acknowledges the
// delivery; a non-nil return requeues it.
type DeliveryHandler func(ctx context.Context, body string) error

// Listener consumes a queue with manual acknowledgements.
type Listener struct {
	config  *Config
	conn    *amqp.Connection
	channel *amqp.Channel
	sigChan chan os.Signal
	handler DeliveryHandler
}

// LoaderHandler routes every delivery through the loader. Poison deliveries
// are rejected inside the loader and acknowledged; an engine or registry
// failure requeues the delivery.
func LoaderHandler(ldr *loader.Loader) DeliveryHandler {
	return func(ctx context.Context, body string) error {
		ldr.Counters().IncrQueued()
		return ldr.LoadLine(ctx, body)
	}
}

func NewListener(cfg *Config, handler DeliveryHandler) *Listener {
	return &Listener{
		config:  cfg,
		handler: handler,
	}
}

func (l *Listener) Init() {
	conn, err := amqp.Dial(l.config.URL)
	if err != nil {
		log.Panic().Err(err).Msg("Failed to connect to RabbitMQ.")
	}
	channel, err := conn.Channel()
	if err != nil {
		log.Panic().Err(err).Msg("Failed to open RabbitMQ channel.")
	}
	if err := channel.Qos(l.config.PrefetchCount, 0, false); err != nil {
		log.Panic().Err(err).Msg("Failed to set RabbitMQ prefetch.")
	}
	l.conn = conn
	l.channel = channel
	l.sigChan = make(chan os.Signal, 1)
	signal.Notify(l.sigChan, syscall.SIGINT, syscall.SIGTERM)
}

// Consume blocks until the process is signalled or the broker closes the
// channel. Every delivery is acknowledged exactly once: Ack when the handler
// finished with it, Nack with requeue when the handler failed.
func (l *Listener) Consume(ctx context.Context) {
	deliveries, err := l.channel.ConsumeWithContext(ctx, l.config.Queue,
		"",    // consumer tag, broker-assigned
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil)
	if err != nil {
		log.Panic().Err(err).Msgf("Failed to consume queue %s", l.config.Queue)
	}
	log.Info().Msgf("Starting consumption of queue %s", l.config.Queue)

	run := true
	for run {
		select {
		case <-l.sigChan:
			log.Info().Msg("Terminating queue consumer")
			run = false

		case <-ctx.Done():
			run = false

		case delivery, ok := <-deliveries:
			if !ok {
				log.Warn().Msg("Delivery channel closed by broker")
				run = false
				break
			}
			metric.Incr("events_consumed", []string{
				metric.TagAsString(metric.TagQueue, l.config.Queue),
			})
			if err := l.handler(ctx, string(delivery.Body)); err != nil {
				log.Error().Err(err).Msg("Delivery processing failed, requeueing")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					log.Error().Err(nackErr).Msg("Failed to nack delivery")
				}
				continue
			}
			if ackErr := delivery.Ack(false); ackErr != nil {
				log.Error().Err(ackErr).Msg("Failed to ack delivery")
			}
		}
	}

	if err := l.channel.Close(); err != nil {
		log.Error().Msg("Error while closing channel")
	}
	if err := l.conn.Close(); err != nil {
		log.Error().Msg("Error while closing connection")
	}
}
