package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

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

func (m *MockEngine) Stats() Stats {
	args := m.Called()
	return args.Get(0).(Stats)
}

func (m *MockEngine) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockClaimStore struct {
	mock.Mock
}

func (m *MockClaimStore) Claim(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockClaimStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testRecord(t *testing.T, line string) *record.Record {
	t.Helper()
	rec, err := record.Parse(line)
	assert.NoError(t, err)
	return rec
}

func TestDedupeEngine_FirstClaimLoads(t *testing.T) {
	delegate := new(MockEngine)
	claims := new(MockClaimStore)
	eng := &DedupeEngine{delegate: delegate, claims: claims}
	rec := testRecord(t, `{"DATA_SOURCE":"CUSTOMERS","RECORD_ID":"1"}`)

	claims.On("Claim", mock.Anything, "CUSTOMERS/1").Return(true, nil)
	delegate.On("AddRecord", mock.Anything, rec).Return(nil)

	err := eng.AddRecord(context.Background(), rec)

	assert.NoError(t, err)
	delegate.AssertExpectations(t)
}

func TestDedupeEngine_DuplicateSkipsDelegate(t *testing.T) {
	delegate := new(MockEngine)
	claims := new(MockClaimStore)
	eng := &DedupeEngine{delegate: delegate, claims: claims}
	rec := testRecord(t, `{"DATA_SOURCE":"CUSTOMERS","RECORD_ID":"1"}`)

	claims.On("Claim", mock.Anything, "CUSTOMERS/1").Return(false, nil)

	err := eng.AddRecord(context.Background(), rec)

	assert.NoError(t, err)
	delegate.AssertNotCalled(t, "AddRecord")
}

func TestDedupeEngine_ClaimErrorFailsOpen(t *testing.T) {
	delegate := new(MockEngine)
	claims := new(MockClaimStore)
	eng := &DedupeEngine{delegate: delegate, claims: claims}
	rec := testRecord(t, `{"DATA_SOURCE":"CUSTOMERS","RECORD_ID":"1"}`)

	claims.On("Claim", mock.Anything, "CUSTOMERS/1").Return(false, errors.New("redis down"))
	delegate.On("AddRecord", mock.Anything, rec).Return(nil)

	err := eng.AddRecord(context.Background(), rec)

	assert.NoError(t, err)
	delegate.AssertExpectations(t)
}

func TestDedupeEngine_DelegateErrorPropagates(t *testing.T) {
	delegate := new(MockEngine)
	claims := new(MockClaimStore)
	eng := &DedupeEngine{delegate: delegate, claims: claims}
	rec := testRecord(t, `{"DATA_SOURCE":"CUSTOMERS","RECORD_ID":"1"}`)
	expectedErr := errors.New("store unavailable")

	claims.On("Claim", mock.Anything, "CUSTOMERS/1").Return(true, nil)
	delegate.On("AddRecord", mock.Anything, rec).Return(expectedErr)

	err := eng.AddRecord(context.Background(), rec)

	assert.ErrorIs(t, err, expectedErr)
}

func TestDedupeEngine_StatsMergesDuplicates(t *testing.T) {
	delegate := new(MockEngine)
	claims := new(MockClaimStore)
	eng := &DedupeEngine{delegate: delegate, claims: claims}
	rec := testRecord(t, `{"DATA_SOURCE":"CUSTOMERS","RECORD_ID":"1"}`)

	claims.On("Claim", mock.Anything, "CUSTOMERS/1").Return(false, nil)
	delegate.On("Stats").Return(Stats{AddedRecords: 5, Backend: "scylla"})

	_ = eng.AddRecord(context.Background(), rec)
	stats := eng.Stats()

	assert.Equal(t, int64(5), stats.AddedRecords)
	assert.Equal(t, int64(1), stats.DuplicateRecords)
	assert.Equal(t, "scylla", stats.Backend)
}

func TestLogEngine_CountsRecords(t *testing.T) {
	eng := NewLogEngine()
	rec := testRecord(t, `{"DATA_SOURCE":"CUSTOMERS","RECORD_ID":"1"}`)

	assert.NoError(t, eng.AddRecord(context.Background(), rec))
	assert.NoError(t, eng.AddRecord(context.Background(), rec))

	assert.Equal(t, int64(2), eng.Stats().AddedRecords)
}
