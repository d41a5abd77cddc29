package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/terrorizer1980/stream-loader/internal/config"
)

// sleepCmd keeps the container alive so an operator can exec into it.
var sleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Do nothing for a configured number of seconds",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		cfg := config.Build(config.SubcommandSleep)
		if cfg.SleepTimeSeconds <= 0 {
			log.Info().Msg("Sleeping until interrupted")
			<-ctx.Done()
			return nil
		}

		log.Info().Msgf("Sleeping %d seconds", cfg.SleepTimeSeconds)
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(cfg.SleepTimeSeconds) * time.Second):
		}
		return nil
	},
}

func init() {
	f := sleepCmd.Flags()
	f.Int("sleep-time", config.DefaultSleepTime, "Seconds to sleep; 0 or less sleeps until interrupted")

	_ = viper.BindPFlag(config.KeySleepTime, f.Lookup("sleep-time"))
}
