package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/terrorizer1980/stream-loader/internal/config"
	"github.com/terrorizer1980/stream-loader/internal/engine"
	"github.com/terrorizer1980/stream-loader/internal/record"
	"github.com/terrorizer1980/stream-loader/pkg/metric"
)

// DataSourceRegistry answers whether a data source may be loaded, registering
// it first when auto-registration is on. A nil registry admits everything.
type DataSourceRegistry interface {
	Ensure(ctx context.Context, dataSource string) (bool, error)
}

// FailurePublisher receives poison lines that will never load (bad JSON,
// missing keys, unregistered data source). A nil publisher drops them after
// logging.
type FailurePublisher interface {
	Publish(line string, reason string) error
}

// Loader is the record path shared by every input: parse, augment, validate,
// registry check, engine insert.
type Loader struct {
	cfg      *config.AppConfig
	engine   engine.Engine
	registry DataSourceRegistry
	failure  FailurePublisher
	counters *Counters
	active   atomic.Int64
}

func New(cfg *config.AppConfig, eng engine.Engine, registry DataSourceRegistry, failure FailurePublisher) *Loader {
	return &Loader{
		cfg:      cfg,
		engine:   eng,
		registry: registry,
		failure:  failure,
		counters: NewCounters(),
	}
}

func (l *Loader) Counters() *Counters {
	return l.counters
}

func (l *Loader) Engine() engine.Engine {
	return l.engine
}

// ActiveWorkers reports how many output workers are currently running.
func (l *Loader) ActiveWorkers() int {
	return int(l.active.Load())
}

// rejectLine counts a poison line and hands it to the failure publisher.
func (l *Loader) rejectLine(line string, reason error) {
	l.counters.IncrBad()
	metric.Incr("record_rejected", []string{metric.TagAsString("reason", reason.Error())})
	log.Warn().Msgf("rejecting record: %v", reason)
	if l.failure != nil {
		if err := l.failure.Publish(line, reason.Error()); err != nil {
			log.Error().Msgf("failed to publish rejected record: %v", err)
		}
	}
}

// LoadLine processes one raw input line. A nil return means the line is
// finished with: loaded, empty, or rejected as poison. A non-nil return means
// the engine failed and the caller should arrange redelivery.
func (l *Loader) LoadLine(ctx context.Context, line string) error {
	rec, err := record.Parse(line)
	if err != nil {
		if errors.Is(err, record.ErrEmptyLine) {
			return nil
		}
		l.rejectLine(line, err)
		return nil
	}

	rec.EnsureDataSource(l.cfg.DataSource)
	rec.EnsureEntityType(l.cfg.EntityType)

	if err := rec.Validate(); err != nil {
		l.rejectLine(line, err)
		return nil
	}

	if l.registry != nil {
		admitted, err := l.registry.Ensure(ctx, rec.DataSource())
		if err != nil {
			return err
		}
		if !admitted {
			l.rejectLine(line, errors.New("data source "+rec.DataSource()+" not registered"))
			return nil
		}
	}

	if err := l.engine.AddRecord(ctx, rec); err != nil {
		return err
	}
	l.counters.IncrProcessed()
	return nil
}

// Run drains the line channel with the configured number of output workers
// and returns once the channel is closed and all workers finished. Engine
// failures in queue mode are logged and the pipeline keeps going, matching
// the behaviour of the file/stdin loading paths.
func (l *Loader) Run(ctx context.Context, lines <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < l.cfg.OutputWorkers; i++ {
		wg.Add(1)
		l.active.Add(1)
		go func() {
			defer wg.Done()
			defer l.active.Add(-1)
			for line := range lines {
				if err := l.LoadLine(ctx, line); err != nil {
					log.Error().Msgf("error loading record: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	log.Info().Msg("Quitting time!")
}
