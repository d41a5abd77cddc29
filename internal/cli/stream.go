package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/terrorizer1980/stream-loader/internal/config"
	"github.com/terrorizer1980/stream-loader/internal/input"
)

var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Load records read from a URL or file",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runStream(config.SubcommandURL)
	},
}

var stdinCmd = &cobra.Command{
	Use:   "stdin",
	Short: "Load records read from stdin",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runStream(config.SubcommandStdin)
	},
}

// runStream is the batch path: one reader goroutine feeds a bounded queue,
// output workers drain it into the engine.
func runStream(subcommand string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := newPipeline(ctx, subcommand)
	if err != nil {
		return err
	}
	defer p.close()

	inputURL := ""
	if subcommand == config.SubcommandURL {
		inputURL = p.cfg.InputURL
	}
	log.Info().Msgf("Reading records from %s", input.SchemeOf(inputURL))

	reader := input.NewReader(p.cfg.QueueMax, p.ldr.Counters())
	lines, err := reader.Lines(ctx, inputURL)
	if err != nil {
		return err
	}

	p.startMonitor(ctx, func() int { return len(lines) }, true)
	p.ldr.Run(ctx, lines)

	p.logFinalStats()
	return nil
}
