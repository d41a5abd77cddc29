package config

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

var (
	initialized = false
	once        sync.Once
)

// InitEnv wires viper to the process environment. Call once from main before
// reading any configuration value.
func InitEnv() {
	if initialized {
		log.Debug().Msg("Env already initialized!")
		return
	}
	once.Do(func() {
		viper.AutomaticEnv()
		initialized = true
		log.Info().Msg("Env initialized!")
	})
}

// LoadFile merges an ini configuration file into viper. Keys from every
// section are flattened into viper's config layer, so flags and environment
// variables keep precedence over file values and file values beat defaults.
func LoadFile(path string) error {
	if path == "" {
		return nil
	}
	file, err := ini.Load(path)
	if err != nil {
		return err
	}
	values := make(map[string]interface{})
	for _, section := range file.Sections() {
		for _, key := range section.Keys() {
			values[key.Name()] = key.Value()
		}
	}
	if err := viper.MergeConfigMap(values); err != nil {
		return err
	}
	log.Info().Msgf("Loaded configuration file %s", path)
	return nil
}
