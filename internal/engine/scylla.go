package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/terrorizer1980/stream-loader/internal/config"
	"github.com/terrorizer1980/stream-loader/internal/record"
	"github.com/terrorizer1980/stream-loader/pkg/metric"
	"github.com/terrorizer1980/stream-loader/pkg/scylla"
)

const (
	scyllaEnvPrefix    = "STORAGE_SCYLLA"
	scyllaTableKey     = "STORAGE_SCYLLA_TABLE"
	scyllaDefaultTable = "entity_records"

	insertQueryTemplate = "INSERT INTO %s.%s (data_source, record_id, entity_type, payload, loaded_at) VALUES (?, ?, ?, ?, ?)"
)

// ScyllaEngine loads records into a scylla table keyed by
// (data_source, record_id). Re-loading a record overwrites the row.
type ScyllaEngine struct {
	session     *gocql.Session
	insertQuery string
	added       atomic.Int64
	failed      atomic.Int64
}

func NewScyllaEngine() (*ScyllaEngine, error) {
	clusterConfig, err := scylla.BuildClusterConfigFromEnv(scyllaEnvPrefix)
	if err != nil {
		return nil, err
	}
	session, err := clusterConfig.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("error connecting scylla db - %w", err)
	}
	table := viper.GetString(scyllaTableKey)
	if table == "" {
		table = scyllaDefaultTable
	}
	log.Info().Msgf("scylla engine ready, keyspace %s table %s", clusterConfig.Keyspace, table)
	return &ScyllaEngine{
		session:     session,
		insertQuery: fmt.Sprintf(insertQueryTemplate, clusterConfig.Keyspace, table),
	}, nil
}

func (s *ScyllaEngine) AddRecord(ctx context.Context, rec *record.Record) error {
	t1 := time.Now()
	payload, err := rec.Canonical()
	if err != nil {
		return err
	}
	query := s.session.Query(s.insertQuery,
		rec.DataSource(), rec.RecordID(), rec.EntityType(), payload, time.Now().UTC()).
		WithContext(ctx).
		Consistency(gocql.Quorum)
	if err := query.Exec(); err != nil {
		s.failed.Add(1)
		metric.Incr("record_store_persist_error", []string{
			metric.TagAsString(metric.TagBackend, config.BackendScylla),
			metric.TagAsString(metric.TagDataSource, rec.DataSource()),
		})
		log.Error().Msgf("error persisting record %s/%s: %v", rec.DataSource(), rec.RecordID(), err)
		return err
	}
	s.added.Add(1)
	metric.Incr("record_store_persist_count", []string{
		metric.TagAsString(metric.TagBackend, config.BackendScylla),
		metric.TagAsString(metric.TagDataSource, rec.DataSource()),
	})
	metric.Timing("record_store_persist_latency", time.Since(t1), []string{
		metric.TagAsString(metric.TagBackend, config.BackendScylla),
	})
	return nil
}

func (s *ScyllaEngine) Stats() Stats {
	return Stats{
		AddedRecords:  s.added.Load(),
		FailedRecords: s.failed.Load(),
		Backend:       config.BackendScylla,
	}
}

func (s *ScyllaEngine) Close() error {
	s.session.Close()
	return nil
}
