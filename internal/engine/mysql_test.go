package engine

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/terrorizer1980/stream-loader/internal/record"
)

func TestToEntityRecord(t *testing.T) {
	rec, err := record.Parse(`{"RECORD_ID":"42","DATA_SOURCE":"CUSTOMERS","ENTITY_TYPE":"GENERIC","NAME_FULL":"Jane Smith"}`)
	assert.NoError(t, err)

	row, err := toEntityRecord(rec)

	assert.NoError(t, err)
	assert.Equal(t, "CUSTOMERS", row.DataSource)
	assert.Equal(t, "42", row.RecordID)
	assert.Equal(t, "GENERIC", row.EntityType)
	assert.JSONEq(t, `{"RECORD_ID":"42","DATA_SOURCE":"CUSTOMERS","ENTITY_TYPE":"GENERIC","NAME_FULL":"Jane Smith"}`, row.Payload)
	assert.False(t, row.LoadedAt.IsZero())
}

func TestBuildMySQLDSNFromEnv_MissingConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := buildMySQLDSNFromEnv()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), mysqlHostKey)
}

func TestBuildMySQLDSNFromEnv_Complete(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set(mysqlHostKey, "db.internal")
	viper.Set(mysqlPortKey, 3306)
	viper.Set(mysqlUsernameKey, "loader")
	viper.Set(mysqlPasswordKey, "secret")
	viper.Set(mysqlDBNameKey, "entitydb")

	dsn, err := buildMySQLDSNFromEnv()

	assert.NoError(t, err)
	assert.Equal(t, "loader:secret@tcp(db.internal:3306)/entitydb?charset=utf8mb4&parseTime=True&loc=UTC", dsn)
}

func TestEntityRecord_TableName(t *testing.T) {
	assert.Equal(t, "entity_records", EntityRecord{}.TableName())
}
