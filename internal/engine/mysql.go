package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/terrorizer1980/stream-loader/internal/config"
	"github.com/terrorizer1980/stream-loader/internal/record"
	"github.com/terrorizer1980/stream-loader/pkg/metric"
)

const (
	mysqlHostKey     = "STORAGE_MYSQL_HOST"
	mysqlPortKey     = "STORAGE_MYSQL_PORT"
	mysqlUsernameKey = "STORAGE_MYSQL_USERNAME"
	mysqlPasswordKey = "STORAGE_MYSQL_PASSWORD"
	mysqlDBNameKey   = "STORAGE_MYSQL_DB_NAME"
)

// EntityRecord is the relational shape of a loaded record.
type EntityRecord struct {
	DataSource string    `gorm:"primaryKey;column:data_source;size:64"`
	RecordID   string    `gorm:"primaryKey;column:record_id;size:128"`
	EntityType string    `gorm:"column:entity_type;size:64"`
	Payload    string    `gorm:"column:payload;type:json"`
	LoadedAt   time.Time `gorm:"column:loaded_at"`
}

func (EntityRecord) TableName() string {
	return "entity_records"
}

// MySQLEngine loads records into MySQL. Records are upserted on the
// (data_source, record_id) primary key.
type MySQLEngine struct {
	db     *gorm.DB
	added  atomic.Int64
	failed atomic.Int64
}

func buildMySQLDSNFromEnv() (string, error) {
	for _, key := range []string{mysqlHostKey, mysqlPortKey, mysqlUsernameKey, mysqlPasswordKey, mysqlDBNameKey} {
		if !viper.IsSet(key) {
			return "", errors.New(key + " not set")
		}
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		viper.GetString(mysqlUsernameKey),
		viper.GetString(mysqlPasswordKey),
		viper.GetString(mysqlHostKey),
		viper.GetInt(mysqlPortKey),
		viper.GetString(mysqlDBNameKey)), nil
}

func NewMySQLEngine() (*MySQLEngine, error) {
	dsn, err := buildMySQLDSNFromEnv()
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("error connecting mysql db - %w", err)
	}
	log.Info().Msgf("mysql engine ready, database %s", viper.GetString(mysqlDBNameKey))
	return &MySQLEngine{db: db}, nil
}

func (m *MySQLEngine) AddRecord(ctx context.Context, rec *record.Record) error {
	t1 := time.Now()
	row, err := toEntityRecord(rec)
	if err != nil {
		return err
	}
	result := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "data_source"}, {Name: "record_id"}},
		UpdateAll: true,
	}).Create(row)
	if result.Error != nil {
		m.failed.Add(1)
		metric.Incr("record_store_persist_error", []string{
			metric.TagAsString(metric.TagBackend, config.BackendMySQL),
			metric.TagAsString(metric.TagDataSource, rec.DataSource()),
		})
		log.Error().Msgf("error persisting record %s/%s: %v", rec.DataSource(), rec.RecordID(), result.Error)
		return result.Error
	}
	m.added.Add(1)
	metric.Incr("record_store_persist_count", []string{
		metric.TagAsString(metric.TagBackend, config.BackendMySQL),
		metric.TagAsString(metric.TagDataSource, rec.DataSource()),
	})
	metric.Timing("record_store_persist_latency", time.Since(t1), []string{
		metric.TagAsString(metric.TagBackend, config.BackendMySQL),
	})
	return nil
}

func toEntityRecord(rec *record.Record) (*EntityRecord, error) {
	payload, err := rec.Canonical()
	if err != nil {
		return nil, err
	}
	return &EntityRecord{
		DataSource: rec.DataSource(),
		RecordID:   rec.RecordID(),
		EntityType: rec.EntityType(),
		Payload:    payload,
		LoadedAt:   time.Now().UTC(),
	}, nil
}

func (m *MySQLEngine) Stats() Stats {
	return Stats{
		AddedRecords:  m.added.Load(),
		FailedRecords: m.failed.Load(),
		Backend:       config.BackendMySQL,
	}
}

func (m *MySQLEngine) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
