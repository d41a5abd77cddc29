package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/terrorizer1980/stream-loader/internal/record"
	"github.com/terrorizer1980/stream-loader/pkg/metric"
)

const (
	dedupeRedisAddrKey     = "DEDUPE_REDIS_ADDR"
	dedupeRedisPasswordKey = "DEDUPE_REDIS_PASSWORD"
	dedupeRedisDBKey       = "DEDUPE_REDIS_DB"
	dedupeTTLSecondsKey    = "DEDUPE_TTL_SECONDS"

	dedupeDefaultTTLSeconds = 86400
	dedupeKeyPrefix         = "stream-loader:seen:"
)

// claimStore marks (data source, record id) pairs as seen. Claim returns
// false when the pair was already claimed inside the TTL window.
type claimStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Close() error
}

type redisClaimStore struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisClaimStore() (*redisClaimStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     viper.GetString(dedupeRedisAddrKey),
		Password: viper.GetString(dedupeRedisPasswordKey),
		DB:       viper.GetInt(dedupeRedisDBKey),
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	ttlSeconds := viper.GetInt(dedupeTTLSecondsKey)
	if ttlSeconds <= 0 {
		ttlSeconds = dedupeDefaultTTLSeconds
	}
	return &redisClaimStore{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func (r *redisClaimStore) Claim(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, dedupeKeyPrefix+key, 1, r.ttl).Result()
}

func (r *redisClaimStore) Close() error {
	return r.client.Close()
}

// DedupeEngine short-circuits records already loaded inside the TTL window.
// A redelivered message (at-least-once sources) hits the claim store and
// never reaches the backing engine twice. Claim-store failures fail open:
// the record is loaded anyway, since the backing stores upsert.
type DedupeEngine struct {
	delegate   Engine
	claims     claimStore
	duplicates atomic.Int64
}

func NewDedupeEngine(delegate Engine) (*DedupeEngine, error) {
	claims, err := newRedisClaimStore()
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("record dedupe enabled, redis %s", viper.GetString(dedupeRedisAddrKey))
	return &DedupeEngine{delegate: delegate, claims: claims}, nil
}

func (d *DedupeEngine) AddRecord(ctx context.Context, rec *record.Record) error {
	claimed, err := d.claims.Claim(ctx, rec.DataSource()+"/"+rec.RecordID())
	if err != nil {
		log.Warn().Msgf("dedupe claim failed for %s/%s, loading anyway: %v", rec.DataSource(), rec.RecordID(), err)
		return d.delegate.AddRecord(ctx, rec)
	}
	if !claimed {
		d.duplicates.Add(1)
		metric.Incr("record_store_duplicate_count", []string{
			metric.TagAsString(metric.TagDataSource, rec.DataSource()),
		})
		log.Debug().Msgf("skipping duplicate record %s/%s", rec.DataSource(), rec.RecordID())
		return nil
	}
	return d.delegate.AddRecord(ctx, rec)
}

func (d *DedupeEngine) Stats() Stats {
	stats := d.delegate.Stats()
	stats.DuplicateRecords = d.duplicates.Load()
	return stats
}

func (d *DedupeEngine) Close() error {
	if err := d.claims.Close(); err != nil {
		log.Error().Msgf("error closing dedupe claim store: %v", err)
	}
	return d.delegate.Close()
}
