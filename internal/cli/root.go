package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/terrorizer1980/stream-loader/internal/config"
	pkgconfig "github.com/terrorizer1980/stream-loader/pkg/config"
	"github.com/terrorizer1980/stream-loader/pkg/logger"
	"github.com/terrorizer1980/stream-loader/pkg/metric"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "stream-loader",
	Short: "Load JSON entity records from streaming and batch inputs into a record store",
	Long: "stream-loader reads JSON-lines entity records from Kafka, RabbitMQ, a URL, " +
		"a file or stdin and inserts them into the configured record store. " +
		"Configuration resolves in the order: CLI flag, environment variable, ini file, default.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		pkgconfig.InitEnv()
		if err := pkgconfig.LoadFile(configFile); err != nil {
			return err
		}
		if viper.GetBool(config.KeyDebug) {
			viper.Set("APP_LOG_LEVEL", "DEBUG")
		}
		logger.Init()
		metric.Init()
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to an ini configuration file")
	pf.Bool("debug", false, "Enable debug logging")
	pf.String("data-source", "", "Default DATA_SOURCE for records missing one")
	pf.String("entity-type", "", "Default ENTITY_TYPE for records missing one")
	pf.String("input-url", "", "Input location (file path, file://, http:// or https://)")
	pf.Int("input-workers", config.DefaultInputWorkers, "Number of input worker goroutines")
	pf.Int("output-workers", config.DefaultOutputWorkers, "Number of record store worker goroutines")
	pf.Int("queue-max", config.DefaultQueueMax, "Maximum size of the internal record queue")
	pf.Int("monitoring-period-in-seconds", config.DefaultMonitoringPeriod, "Seconds between monitor log lines")
	pf.String("engine-backend", config.BackendScylla, "Record store backend (scylla or mysql)")

	// Don't sort alphabetically, keep insertion order
	pf.SortFlags = false

	_ = viper.BindPFlag(config.KeyDebug, pf.Lookup("debug"))
	_ = viper.BindPFlag(config.KeyDataSource, pf.Lookup("data-source"))
	_ = viper.BindPFlag(config.KeyEntityType, pf.Lookup("entity-type"))
	_ = viper.BindPFlag(config.KeyInputURL, pf.Lookup("input-url"))
	_ = viper.BindPFlag(config.KeyInputWorkers, pf.Lookup("input-workers"))
	_ = viper.BindPFlag(config.KeyOutputWorkers, pf.Lookup("output-workers"))
	_ = viper.BindPFlag(config.KeyQueueMax, pf.Lookup("queue-max"))
	_ = viper.BindPFlag(config.KeyMonitoringPeriod, pf.Lookup("monitoring-period-in-seconds"))
	_ = viper.BindPFlag(config.KeyEngineBackend, pf.Lookup("engine-backend"))

	rootCmd.AddCommand(kafkaCmd)
	rootCmd.AddCommand(rabbitmqCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(stdinCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(sleepCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("stream-loader terminated")
	}
}
