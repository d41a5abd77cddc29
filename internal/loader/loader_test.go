package loader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/terrorizer1980/stream-loader/internal/config"
	"github.com/terrorizer1980/stream-loader/internal/engine"
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

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Ensure(ctx context.Context, dataSource string) (bool, error) {
	args := m.Called(ctx, dataSource)
	return args.Bool(0), args.Error(1)
}

type MockFailurePublisher struct {
	mock.Mock
}

func (m *MockFailurePublisher) Publish(line string, reason string) error {
	args := m.Called(line, reason)
	return args.Error(0)
}

func newTestLoader(eng engine.Engine, registry DataSourceRegistry, failure FailurePublisher) *Loader {
	cfg := &config.AppConfig{
		Subcommand:    config.SubcommandStdin,
		DataSource:    "CUSTOMERS",
		EntityType:    "GENERIC",
		OutputWorkers: 2,
	}
	return New(cfg, eng, registry, failure)
}

func TestLoadLine_ValidRecord(t *testing.T) {
	eng := new(MockEngine)
	ldr := newTestLoader(eng, nil, nil)

	eng.On("AddRecord", mock.Anything, mock.MatchedBy(func(rec *record.Record) bool {
		return rec.RecordID() == "1" && rec.DataSource() == "WATCHLIST"
	})).Return(nil)

	err := ldr.LoadLine(context.Background(), `{"DATA_SOURCE":"WATCHLIST","RECORD_ID":"1"}`)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), ldr.Counters().Snapshot().Processed)
	eng.AssertExpectations(t)
}

func TestLoadLine_AugmentsDefaults(t *testing.T) {
	eng := new(MockEngine)
	ldr := newTestLoader(eng, nil, nil)

	eng.On("AddRecord", mock.Anything, mock.MatchedBy(func(rec *record.Record) bool {
		return rec.DataSource() == "CUSTOMERS" && rec.EntityType() == "GENERIC"
	})).Return(nil)

	err := ldr.LoadLine(context.Background(), `{"RECORD_ID":"1"}`)

	assert.NoError(t, err)
	eng.AssertExpectations(t)
}

func TestLoadLine_EmptyLineIgnored(t *testing.T) {
	eng := new(MockEngine)
	ldr := newTestLoader(eng, nil, nil)

	err := ldr.LoadLine(context.Background(), "   \n")

	assert.NoError(t, err)
	assert.Equal(t, int64(0), ldr.Counters().Snapshot().Bad)
	eng.AssertNotCalled(t, "AddRecord")
}

func TestLoadLine_InvalidJSONRejected(t *testing.T) {
	eng := new(MockEngine)
	failure := new(MockFailurePublisher)
	ldr := newTestLoader(eng, nil, failure)

	failure.On("Publish", "not json", mock.Anything).Return(nil)

	err := ldr.LoadLine(context.Background(), "not json")

	assert.NoError(t, err)
	assert.Equal(t, int64(1), ldr.Counters().Snapshot().Bad)
	eng.AssertNotCalled(t, "AddRecord")
	failure.AssertExpectations(t)
}

func TestLoadLine_MissingRecordIDRejected(t *testing.T) {
	eng := new(MockEngine)
	ldr := newTestLoader(eng, nil, nil)

	err := ldr.LoadLine(context.Background(), `{"DATA_SOURCE":"WATCHLIST"}`)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), ldr.Counters().Snapshot().Bad)
	eng.AssertNotCalled(t, "AddRecord")
}

func TestLoadLine_EngineFailurePropagates(t *testing.T) {
	eng := new(MockEngine)
	ldr := newTestLoader(eng, nil, nil)
	expectedErr := errors.New("store unavailable")

	eng.On("AddRecord", mock.Anything, mock.Anything).Return(expectedErr)

	err := ldr.LoadLine(context.Background(), `{"RECORD_ID":"1"}`)

	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, int64(0), ldr.Counters().Snapshot().Processed)
}

func TestLoadLine_UnregisteredDataSourceRejected(t *testing.T) {
	eng := new(MockEngine)
	registry := new(MockRegistry)
	ldr := newTestLoader(eng, registry, nil)

	registry.On("Ensure", mock.Anything, "WATCHLIST").Return(false, nil)

	err := ldr.LoadLine(context.Background(), `{"DATA_SOURCE":"WATCHLIST","RECORD_ID":"1"}`)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), ldr.Counters().Snapshot().Bad)
	eng.AssertNotCalled(t, "AddRecord")
}

func TestLoadLine_RegistryErrorPropagates(t *testing.T) {
	eng := new(MockEngine)
	registry := new(MockRegistry)
	ldr := newTestLoader(eng, registry, nil)
	expectedErr := errors.New("etcd unavailable")

	registry.On("Ensure", mock.Anything, "CUSTOMERS").Return(false, expectedErr)

	err := ldr.LoadLine(context.Background(), `{"RECORD_ID":"1"}`)

	assert.ErrorIs(t, err, expectedErr)
	eng.AssertNotCalled(t, "AddRecord")
}

func TestRun_DrainsChannel(t *testing.T) {
	eng := new(MockEngine)
	ldr := newTestLoader(eng, nil, nil)
	var added atomic.Int64

	eng.On("AddRecord", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		added.Add(1)
	}).Return(nil)

	lines := make(chan string, 10)
	for i := 0; i < 10; i++ {
		lines <- `{"RECORD_ID":"1"}`
	}
	close(lines)

	done := make(chan struct{})
	go func() {
		ldr.Run(context.Background(), lines)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not drain the channel")
	}
	assert.Equal(t, int64(10), added.Load())
	assert.Equal(t, int64(10), ldr.Counters().Snapshot().Processed)
}

func TestRun_ContinuesPastEngineFailures(t *testing.T) {
	eng := new(MockEngine)
	ldr := newTestLoader(eng, nil, nil)

	eng.On("AddRecord", mock.Anything, mock.Anything).Return(errors.New("store unavailable")).Once()
	eng.On("AddRecord", mock.Anything, mock.Anything).Return(nil)

	lines := make(chan string, 3)
	lines <- `{"RECORD_ID":"1"}`
	lines <- `{"RECORD_ID":"2"}`
	lines <- `{"RECORD_ID":"3"}`
	close(lines)

	ldr.Run(context.Background(), lines)

	assert.Equal(t, int64(2), ldr.Counters().Snapshot().Processed)
}

func TestCounters_Snapshot(t *testing.T) {
	counters := NewCounters()

	counters.IncrQueued()
	counters.IncrQueued()
	counters.IncrProcessed()
	counters.IncrBad()

	snap := counters.Snapshot()
	assert.Equal(t, int64(2), snap.Queued)
	assert.Equal(t, int64(1), snap.Processed)
	assert.Equal(t, int64(1), snap.Bad)
}
