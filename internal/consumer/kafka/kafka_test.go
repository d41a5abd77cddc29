package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/terrorizer1980/stream-loader/internal/config"
	"github.com/terrorizer1980/stream-loader/internal/engine"
	"github.com/terrorizer1980/stream-loader/internal/loader"
	"github.com/terrorizer1980/stream-loader/internal/record"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	m.Run()
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) AddRecord(ctx context.Context, rec *record.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockEngine) Stats() engine.Stats {
	args := m.Called()
	return args.Get(0).(engine.Stats)
}

func (m *MockEngine) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newTestHandler(eng engine.Engine) (BatchHandler, *loader.Loader) {
	cfg := &config.AppConfig{
		Subcommand:    config.SubcommandKafka,
		DataSource:    "CUSTOMERS",
		EntityType:    "GENERIC",
		OutputWorkers: 1,
	}
	ldr := loader.New(cfg, eng, nil, nil)
	return LoaderHandler(ldr), ldr
}

func batchOf(lines ...string) []*kafka.Message {
	topic := "entity-records"
	msgs := make([]*kafka.Message, 0, len(lines))
	for _, line := range lines {
		msgs = append(msgs, &kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &topic},
			Value:          []byte(line),
		})
	}
	return msgs
}

func messageAt(topic string, partition int32, offset kafka.Offset) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: partition,
			Offset:    offset,
		},
	}
}

func TestSeekTargets_EarliestOffsetPerPartition(t *testing.T) {
	msgs := []*kafka.Message{
		messageAt("entity-records", 0, 7),
		messageAt("entity-records", 0, 5),
		messageAt("entity-records", 0, 6),
		messageAt("entity-records", 1, 9),
		messageAt("entity-records", 1, 3),
	}

	targets := seekTargets(msgs)

	assert.Len(t, targets, 2)
	byPartition := make(map[int32]kafka.Offset, len(targets))
	for _, tp := range targets {
		assert.Equal(t, "entity-records", *tp.Topic)
		byPartition[tp.Partition] = tp.Offset
	}
	assert.Equal(t, kafka.Offset(5), byPartition[0])
	assert.Equal(t, kafka.Offset(3), byPartition[1])
}

func TestSeekTargets_MultipleTopics(t *testing.T) {
	msgs := []*kafka.Message{
		messageAt("entity-records", 0, 4),
		messageAt("entity-records-replay", 0, 2),
		messageAt("entity-records", 0, 1),
	}

	targets := seekTargets(msgs)

	assert.Len(t, targets, 2)
	byTopic := make(map[string]kafka.Offset, len(targets))
	for _, tp := range targets {
		byTopic[*tp.Topic] = tp.Offset
	}
	assert.Equal(t, kafka.Offset(1), byTopic["entity-records"])
	assert.Equal(t, kafka.Offset(2), byTopic["entity-records-replay"])
}

func TestLoaderHandler_LoadsEveryMessage(t *testing.T) {
	eng := new(MockEngine)
	handler, ldr := newTestHandler(eng)

	eng.On("AddRecord", mock.Anything, mock.Anything).Return(nil).Times(3)

	err := handler(batchOf(
		`{"RECORD_ID":"1"}`,
		`{"RECORD_ID":"2"}`,
		`{"RECORD_ID":"3"}`,
	), nil)

	assert.NoError(t, err)
	assert.Equal(t, int64(3), ldr.Counters().Snapshot().Queued)
	assert.Equal(t, int64(3), ldr.Counters().Snapshot().Processed)
	eng.AssertExpectations(t)
}

func TestLoaderHandler_PoisonMessageDoesNotFailBatch(t *testing.T) {
	eng := new(MockEngine)
	handler, ldr := newTestHandler(eng)

	eng.On("AddRecord", mock.Anything, mock.Anything).Return(nil).Once()

	err := handler(batchOf("not json", `{"RECORD_ID":"1"}`), nil)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), ldr.Counters().Snapshot().Bad)
	assert.Equal(t, int64(1), ldr.Counters().Snapshot().Processed)
}

func TestLoaderHandler_EngineFailureFailsBatch(t *testing.T) {
	eng := new(MockEngine)
	handler, _ := newTestHandler(eng)
	expectedErr := errors.New("store unavailable")

	eng.On("AddRecord", mock.Anything, mock.Anything).Return(expectedErr)

	err := handler(batchOf(`{"RECORD_ID":"1"}`, `{"RECORD_ID":"2"}`), nil)

	assert.ErrorIs(t, err, expectedErr)
}
