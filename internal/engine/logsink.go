package engine

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/terrorizer1980/stream-loader/internal/record"
)

// LogEngine echoes canonical records to the log instead of a store. Used by
// the test subcommand for dry runs.
type LogEngine struct {
	added atomic.Int64
}

func NewLogEngine() *LogEngine {
	return &LogEngine{}
}

func (l *LogEngine) AddRecord(_ context.Context, rec *record.Record) error {
	payload, err := rec.Canonical()
	if err != nil {
		return err
	}
	l.added.Add(1)
	log.Info().Msg(payload)
	return nil
}

func (l *LogEngine) Stats() Stats {
	return Stats{
		AddedRecords: l.added.Load(),
		Backend:      "log",
	}
}

func (l *LogEngine) Close() error {
	return nil
}
