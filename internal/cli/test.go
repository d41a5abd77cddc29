package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/terrorizer1980/stream-loader/internal/config"
	"github.com/terrorizer1980/stream-loader/internal/engine"
	"github.com/terrorizer1980/stream-loader/internal/input"
	"github.com/terrorizer1980/stream-loader/internal/loader"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Dry run: parse and validate records, echoing them to the log",
	Long: "test exercises the full record path without a record store. Records " +
		"are parsed, augmented and validated exactly as in a real run, then " +
		"written to the log instead of the engine.",
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		cfg := config.Build(config.SubcommandTest)
		if err := cfg.Validate(); err != nil {
			return err
		}
		loader.LogMemory()

		eng := engine.NewLogEngine()
		ldr := loader.New(cfg, eng, nil, nil)
		log.Info().Msgf("Reading records from %s", input.SchemeOf(cfg.InputURL))

		reader := input.NewReader(cfg.QueueMax, ldr.Counters())
		lines, err := reader.Lines(ctx, cfg.InputURL)
		if err != nil {
			return err
		}

		mon := loader.NewMonitor(ldr.Counters(), eng, cfg.MonitoringPeriodSeconds, func() int { return len(lines) })
		mon.WatchWorkers(ldr.ActiveWorkers, cfg.OutputWorkers)
		mon.Start(ctx)
		ldr.Run(ctx, lines)
		return eng.Close()
	},
}
