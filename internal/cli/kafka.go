package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/terrorizer1980/stream-loader/internal/config"
	consumerConf "github.com/terrorizer1980/stream-loader/internal/consumer/config"
	"github.com/terrorizer1980/stream-loader/internal/consumer/kafka"
)

var kafkaCmd = &cobra.Command{
	Use:   "kafka",
	Short: "Load records consumed from a Kafka topic",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		p, err := newPipeline(ctx, config.SubcommandKafka)
		if err != nil {
			return err
		}
		defer p.close()

		// Input workers set the consumer pool size unless overridden.
		concurrencySet := viper.IsSet("KAFKA_CONSUMER_LISTENER_CONCURRENCY")
		kafkaCfg, err := consumerConf.NewKafkaConfig().BuildConfigFromEnv("KAFKA_CONSUMER")
		if err != nil {
			return err
		}
		if !concurrencySet {
			kafkaCfg.Concurrency = p.cfg.InputWorkers
		}

		listener := kafka.NewListener(kafkaCfg, kafka.LoaderHandler(p.ldr))
		listener.Init()
		p.startMonitor(ctx, nil, false)
		listener.Consume()
		listener.Wait()

		p.logFinalStats()
		return nil
	},
}

func init() {
	f := kafkaCmd.Flags()
	f.String("kafka-bootstrap-server", "", "Kafka bootstrap server list")
	f.String("kafka-topic", "", "Kafka topic to consume")
	f.String("kafka-group", "", "Kafka consumer group id")
	f.SortFlags = false

	_ = viper.BindPFlag(config.KeyKafkaBootstrapServers, f.Lookup("kafka-bootstrap-server"))
	_ = viper.BindPFlag(config.KeyKafkaTopic, f.Lookup("kafka-topic"))
	_ = viper.BindPFlag(config.KeyKafkaGroupID, f.Lookup("kafka-group"))
}
