package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	m.Run()
}

func writeIniFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream-loader.ini")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_ReadsIniSections(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	path := writeIniFile(t, "[loader]\nLOADER_QUEUE_MAX = 50\n\n[store]\nENGINE_BACKEND = mysql\n")

	err := LoadFile(path)

	assert.NoError(t, err)
	assert.Equal(t, 50, viper.GetInt("LOADER_QUEUE_MAX"))
	assert.Equal(t, "mysql", viper.GetString("ENGINE_BACKEND"))
}

func TestLoadFile_EmptyPathIsNoop(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	assert.NoError(t, LoadFile(""))
}

func TestLoadFile_MissingFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	err := LoadFile(filepath.Join(t.TempDir(), "missing.ini"))

	assert.Error(t, err)
}

func TestLoadFile_EnvironmentBeatsFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("LOADER_QUEUE_MAX", "7")
	viper.AutomaticEnv()
	path := writeIniFile(t, "[loader]\nLOADER_QUEUE_MAX = 50\n")

	err := LoadFile(path)

	assert.NoError(t, err)
	assert.Equal(t, 7, viper.GetInt("LOADER_QUEUE_MAX"))
}

func TestLoadFile_FileBeatsDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	path := writeIniFile(t, "[loader]\nLOADER_QUEUE_MAX = 50\n")

	err := LoadFile(path)
	assert.NoError(t, err)

	// Defaults registered after the file load must not clobber file values.
	viper.SetDefault("LOADER_QUEUE_MAX", 10)
	assert.Equal(t, 50, viper.GetInt("LOADER_QUEUE_MAX"))
}
