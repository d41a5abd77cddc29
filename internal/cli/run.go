package cli

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/terrorizer1980/stream-loader/internal/config"
	consumerConf "github.com/terrorizer1980/stream-loader/internal/consumer/config"
	"github.com/terrorizer1980/stream-loader/internal/engine"
	"github.com/terrorizer1980/stream-loader/internal/failure"
	"github.com/terrorizer1980/stream-loader/internal/loader"
	"github.com/terrorizer1980/stream-loader/internal/registry"
)

// pipeline holds the assembled record path for one subcommand run. Close
// order matters: the engine last, so in-flight inserts can finish.
type pipeline struct {
	cfg      *config.AppConfig
	eng      engine.Engine
	ldr      *loader.Loader
	registry *registry.Registry
	failure  *failure.Producer
}

// newPipeline builds and validates the shared record path: engine, optional
// data source registry, optional dead-letter producer, loader.
func newPipeline(ctx context.Context, subcommand string) (*pipeline, error) {
	cfg := config.Build(subcommand)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loader.LogMemory()

	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	return assemble(ctx, cfg, eng)
}

func assemble(ctx context.Context, cfg *config.AppConfig, eng engine.Engine) (*pipeline, error) {
	p := &pipeline{cfg: cfg, eng: eng}

	var reg loader.DataSourceRegistry
	if cfg.RegistryEnabled {
		r, err := registry.New(ctx, cfg.AutoRegister)
		if err != nil {
			_ = eng.Close()
			return nil, err
		}
		p.registry = r
		reg = r
	}

	var publisher loader.FailurePublisher
	if cfg.FailureEnabled {
		producerCfg, err := consumerConf.BuildProducerConfigFromEnv("KAFKA_FAILURE")
		if err != nil {
			p.close()
			return nil, err
		}
		producer, err := failure.NewProducer(producerCfg)
		if err != nil {
			p.close()
			return nil, err
		}
		p.failure = producer
		publisher = producer
	}

	p.ldr = loader.New(cfg, eng, reg, publisher)
	return p, nil
}

// startMonitor begins periodic statistics logging. queueDepth may be nil when
// the input has no internal queue to measure; watchWorkers only makes sense
// for the queue-based subcommands that run the output worker pool.
func (p *pipeline) startMonitor(ctx context.Context, queueDepth func() int, watchWorkers bool) {
	if queueDepth == nil {
		queueDepth = func() int { return 0 }
	}
	mon := loader.NewMonitor(p.ldr.Counters(), p.eng, p.cfg.MonitoringPeriodSeconds, queueDepth)
	if watchWorkers {
		mon.WatchWorkers(p.ldr.ActiveWorkers, p.cfg.OutputWorkers)
	}
	mon.Start(ctx)
}

func (p *pipeline) close() {
	if p.failure != nil {
		p.failure.Close()
	}
	if p.registry != nil {
		if err := p.registry.Close(); err != nil {
			log.Error().Msgf("error closing registry: %v", err)
		}
	}
	if err := p.eng.Close(); err != nil {
		log.Error().Msgf("error closing engine: %v", err)
	}
}

// logFinalStats reports the engine counters once more at shutdown.
func (p *pipeline) logFinalStats() {
	stats, err := json.Marshal(p.eng.Stats())
	if err != nil {
		log.Error().Msgf("error marshalling engine stats: %v", err)
		return
	}
	log.Info().Msgf("Engine statistics: %s", stats)
}
