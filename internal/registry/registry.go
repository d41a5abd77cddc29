package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/terrorizer1980/stream-loader/pkg/metric"
)

const (
	envEtcdServer       = "ETCD_SERVERS"
	envEtcdUsername     = "ETCD_USERNAME"
	envEtcdPassword     = "ETCD_PASSWORD"
	envDataSourcePrefix = "ETCD_DATA_SOURCE_PREFIX"

	defaultPrefix = "/stream-loader/data-sources/"
	dialTimeout   = 5 * time.Second
)

// Registry tracks which data sources may be loaded. Registered sources live
// under a key prefix in etcd; the local cache follows the prefix with a watch
// so lookups stay in memory.
type Registry struct {
	conn         *clientv3.Client
	prefix       string
	autoRegister bool
	mu           sync.RWMutex
	known        map[string]struct{}
}

// New connects to etcd, loads the registered data sources under the prefix
// and starts the watch. Connection parameters come from ETCD_* keys.
func New(ctx context.Context, autoRegister bool) (*Registry, error) {
	if !viper.IsSet(envEtcdServer) {
		return nil, fmt.Errorf("%s not set", envEtcdServer)
	}
	servers := strings.Split(viper.GetString(envEtcdServer), ",")
	var username, password string
	if viper.IsSet(envEtcdUsername) && viper.IsSet(envEtcdPassword) {
		username = viper.GetString(envEtcdUsername)
		password = viper.GetString(envEtcdPassword)
	}
	viper.SetDefault(envDataSourcePrefix, defaultPrefix)
	prefix := viper.GetString(envDataSourcePrefix)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	conn, err := clientv3.New(clientv3.Config{
		Endpoints:           servers,
		Username:            username,
		Password:            password,
		DialTimeout:         dialTimeout,
		DialKeepAliveTime:   dialTimeout,
		PermitWithoutStream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	r := &Registry{
		conn:         conn,
		prefix:       prefix,
		autoRegister: autoRegister,
		known:        make(map[string]struct{}),
	}
	if err := r.load(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	r.watch(ctx)
	return r, nil
}

func (r *Registry) load(ctx context.Context) error {
	resp, err := r.conn.Get(ctx, r.prefix, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("failed to load data sources from %s: %w", r.prefix, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kv := range resp.Kvs {
		r.known[strings.TrimPrefix(string(kv.Key), r.prefix)] = struct{}{}
	}
	log.Info().Msgf("Loaded %d registered data sources from %s", len(r.known), r.prefix)
	return nil
}

// watch keeps the cache in step with registrations made by other processes.
func (r *Registry) watch(ctx context.Context) {
	watchChan := r.conn.Watch(ctx, r.prefix, clientv3.WithPrefix())
	go func() {
		for watchResp := range watchChan {
			for _, event := range watchResp.Events {
				name := strings.TrimPrefix(string(event.Kv.Key), r.prefix)
				r.mu.Lock()
				switch event.Type {
				case clientv3.EventTypePut:
					r.known[name] = struct{}{}
					log.Info().Msgf("Data source registered: %s", name)
				case clientv3.EventTypeDelete:
					delete(r.known, name)
					log.Info().Msgf("Data source deregistered: %s", name)
				}
				r.mu.Unlock()
			}
		}
	}()
}

func (r *Registry) contains(dataSource string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[dataSource]
	return ok
}

// Ensure reports whether the data source may be loaded, registering it first
// when auto-registration is on.
func (r *Registry) Ensure(ctx context.Context, dataSource string) (bool, error) {
	if r.contains(dataSource) {
		return true, nil
	}
	if !r.autoRegister {
		return false, nil
	}
	if err := r.Register(ctx, dataSource); err != nil {
		return false, err
	}
	return true, nil
}

// Register writes the data source under the prefix and adds it to the cache.
func (r *Registry) Register(ctx context.Context, dataSource string) error {
	_, err := r.conn.Put(ctx, r.prefix+dataSource, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to register data source %s: %w", dataSource, err)
	}
	r.mu.Lock()
	r.known[dataSource] = struct{}{}
	r.mu.Unlock()
	metric.Incr("data_source_registered", []string{metric.TagAsString(metric.TagDataSource, dataSource)})
	log.Info().Msgf("Auto-registered data source: %s", dataSource)
	return nil
}

func (r *Registry) Close() error {
	return r.conn.Close()
}
