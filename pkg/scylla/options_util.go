package scylla

import (
	"errors"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	contactPointsSuffix     = "_CONTACT_POINTS"
	portSuffix              = "_PORT"
	keyspaceSuffix          = "_KEYSPACE"
	timeoutSuffix           = "_TIMEOUT_IN_MS"
	connectTimeoutSuffix    = "_CONNECT_TIMEOUT_IN_MS"
	numConnsSuffix          = "_NUM_CONNS"
	maxPreparedStmtsSuffix  = "_MAX_PREPARED_STATEMENTS"
	reconnectIntervalSuffix = "_RECONNECT_INTERVAL"
	usernameSuffix          = "_USERNAME"
	passwordSuffix          = "_PASSWORD"
)

// BuildClusterConfigFromEnv builds a scylla cluster config from environment
// variables read through viper. Env names are the prefix plus a config-name
// suffix; durations carry an "_IN_MS" suffix to avoid unit confusion.
//
// Mandatory environment variables:
//   - <envPrefix>_CONTACT_POINTS
//   - <envPrefix>_PORT
//   - <envPrefix>_KEYSPACE
//
// Optional environment variables:
//   - <envPrefix>_TIMEOUT_IN_MS
//   - <envPrefix>_CONNECT_TIMEOUT_IN_MS
//   - <envPrefix>_NUM_CONNS
//   - <envPrefix>_MAX_PREPARED_STATEMENTS
//   - <envPrefix>_RECONNECT_INTERVAL
//   - <envPrefix>_USERNAME / <envPrefix>_PASSWORD
func BuildClusterConfigFromEnv(envPrefix string) (*gocql.ClusterConfig, error) {
	log.Debug().Msgf("building scylla cluster config from env, env prefix - %s", envPrefix)
	if !viper.IsSet(envPrefix + contactPointsSuffix) {
		return nil, errors.New(envPrefix + contactPointsSuffix + " not set")
	}
	contactPoints := viper.GetString(envPrefix + contactPointsSuffix)
	hosts := strings.Split(contactPoints, ",")

	cfg := gocql.NewCluster(hosts...)

	if !viper.IsSet(envPrefix + portSuffix) {
		return nil, errors.New(envPrefix + portSuffix + " not set")
	}
	cfg.Port = viper.GetInt(envPrefix + portSuffix)

	if !viper.IsSet(envPrefix + keyspaceSuffix) {
		return nil, errors.New(envPrefix + keyspaceSuffix + " not set")
	}
	cfg.Keyspace = viper.GetString(envPrefix + keyspaceSuffix)

	if viper.IsSet(envPrefix + timeoutSuffix) {
		cfg.Timeout = time.Duration(viper.GetInt(envPrefix+timeoutSuffix)) * time.Millisecond
	}
	if viper.IsSet(envPrefix + connectTimeoutSuffix) {
		cfg.ConnectTimeout = time.Duration(viper.GetInt(envPrefix+connectTimeoutSuffix)) * time.Millisecond
	}
	if viper.IsSet(envPrefix + numConnsSuffix) {
		cfg.NumConns = viper.GetInt(envPrefix + numConnsSuffix)
	}
	if viper.IsSet(envPrefix + maxPreparedStmtsSuffix) {
		cfg.MaxPreparedStmts = viper.GetInt(envPrefix + maxPreparedStmtsSuffix)
	}
	if viper.IsSet(envPrefix + reconnectIntervalSuffix) {
		cfg.ReconnectInterval = time.Duration(viper.GetInt(envPrefix+reconnectIntervalSuffix)) * time.Second
	}
	if viper.IsSet(envPrefix+usernameSuffix) && viper.IsSet(envPrefix+passwordSuffix) {
		cfg.Authenticator = gocql.PasswordAuthenticator{
			Username: viper.GetString(envPrefix + usernameSuffix),
			Password: viper.GetString(envPrefix + passwordSuffix),
		}
	}
	return cfg, nil
}
