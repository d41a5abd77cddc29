package engine

import (
	"context"
	"errors"

	"github.com/terrorizer1980/stream-loader/internal/config"
	"github.com/terrorizer1980/stream-loader/internal/record"
)

// Stats is a point-in-time snapshot of what an engine has done. It is logged
// periodically by the monitor, so keep fields JSON-friendly.
type Stats struct {
	AddedRecords     int64  `json:"added_records"`
	FailedRecords    int64  `json:"failed_records"`
	DuplicateRecords int64  `json:"duplicate_records,omitempty"`
	Backend          string `json:"backend"`
}

// Engine is the downstream sink for loaded records.
type Engine interface {
	// AddRecord inserts one validated record into the store. The record must
	// already carry DATA_SOURCE and RECORD_ID.
	AddRecord(ctx context.Context, rec *record.Record) error
	Stats() Stats
	Close() error
}

// New builds the engine for the configured backend, wrapping it with the
// Redis dedupe guard when one is configured.
func New(cfg *config.AppConfig) (Engine, error) {
	var (
		eng Engine
		err error
	)
	switch cfg.EngineBackend {
	case config.BackendScylla:
		eng, err = NewScyllaEngine()
	case config.BackendMySQL:
		eng, err = NewMySQLEngine()
	default:
		return nil, errors.New("unknown engine backend " + cfg.EngineBackend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.DedupeEnabled {
		eng, err = NewDedupeEngine(eng)
		if err != nil {
			return nil, err
		}
	}
	return eng, nil
}
