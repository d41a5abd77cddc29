package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/terrorizer1980/stream-loader/internal/config"
	"github.com/terrorizer1980/stream-loader/internal/consumer/rabbitmq"
)

var rabbitmqCmd = &cobra.Command{
	Use:   "rabbitmq",
	Short: "Load records consumed from a RabbitMQ queue",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		p, err := newPipeline(ctx, config.SubcommandRabbitMQ)
		if err != nil {
			return err
		}
		defer p.close()

		queueCfg, err := rabbitmq.BuildConfigFromEnv("RABBITMQ", p.cfg.InputWorkers)
		if err != nil {
			return err
		}

		listener := rabbitmq.NewListener(queueCfg, rabbitmq.LoaderHandler(p.ldr))
		listener.Init()
		p.startMonitor(ctx, nil, false)
		listener.Consume(ctx)

		p.logFinalStats()
		return nil
	},
}

func init() {
	f := rabbitmqCmd.Flags()
	f.String("rabbitmq-url", "", "RabbitMQ connection URL")
	f.String("rabbitmq-queue", "", "RabbitMQ queue to consume")
	f.SortFlags = false

	_ = viper.BindPFlag(config.KeyRabbitMQURL, f.Lookup("rabbitmq-url"))
	_ = viper.BindPFlag(config.KeyRabbitMQQueue, f.Lookup("rabbitmq-queue"))
}
