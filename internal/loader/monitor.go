package loader

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/terrorizer1980/stream-loader/internal/engine"
	"github.com/terrorizer1980/stream-loader/pkg/metric"
)

// Working with bytes.
const (
	kilobytes = 1024
	megabytes = 1024 * kilobytes
	gigabytes = 1024 * megabytes

	minimumTotalMemoryGiB     = 8
	minimumAvailableMemoryGiB = 6
)

// Monitor periodically logs pipeline statistics and engine statistics.
type Monitor struct {
	counters     *Counters
	eng          engine.Engine
	period       time.Duration
	queueDepth   func() int
	startTime    time.Time
	aliveWorkers func() int
	totalWorkers int
}

func NewMonitor(counters *Counters, eng engine.Engine, periodSeconds int, queueDepth func() int) *Monitor {
	return &Monitor{
		counters:   counters,
		eng:        eng,
		period:     time.Duration(periodSeconds) * time.Second,
		queueDepth: queueDepth,
		startTime:  time.Now(),
	}
}

// WatchWorkers makes the monitor warn when fewer than half of the configured
// output workers are still running.
func (m *Monitor) WatchWorkers(alive func() int, total int) {
	m.aliveWorkers = alive
	m.totalWorkers = total
}

// Start runs the monitor loop until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.period)
		defer ticker.Stop()
		last := m.counters.Snapshot()
		lastTime := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				current := m.counters.Snapshot()
				m.report(buildStats(last, current, now.Sub(lastTime), now.Sub(m.startTime), m.queueDepth()))
				last = current
				lastTime = now
			}
		}
	}()
}

func (m *Monitor) report(stats map[string]int64) {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		log.Error().Msgf("error marshalling monitor stats: %v", err)
		return
	}
	log.Info().Msgf("Monitor: %s", statsJSON)
	metric.Gauge("loader_queue_depth", float64(stats["queue_size"]), nil)

	if m.aliveWorkers != nil && m.totalWorkers > 0 {
		alive := m.aliveWorkers()
		if alive*2 < m.totalWorkers {
			log.Warn().Msgf("Only %d of %d output workers are running.", alive, m.totalWorkers)
		}
	}

	engineStats := m.eng.Stats()
	engineJSON, err := json.Marshal(engineStats)
	if err != nil {
		log.Error().Msgf("error marshalling engine stats: %v", err)
		return
	}
	log.Info().Msgf("Engine statistics: %s", engineJSON)
}

// buildStats computes interval and lifetime rates between two counter
// snapshots. Rates are records per second, truncated.
func buildStats(prev, cur Snapshot, elapsed, uptime time.Duration, queueDepth int) map[string]int64 {
	elapsedSeconds := int64(elapsed.Seconds())
	if elapsedSeconds < 1 {
		elapsedSeconds = 1
	}
	uptimeSeconds := int64(uptime.Seconds())
	if uptimeSeconds < 1 {
		uptimeSeconds = 1
	}
	return map[string]int64{
		"processed_records":       cur.Processed,
		"queued_records":          cur.Queued,
		"bad_records":             cur.Bad,
		"queue_size":              int64(queueDepth),
		"rate_processed_interval": (cur.Processed - prev.Processed) / elapsedSeconds,
		"rate_processed_total":    cur.Processed / uptimeSeconds,
		"rate_queued_interval":    (cur.Queued - prev.Queued) / elapsedSeconds,
		"rate_queued_total":       cur.Queued / uptimeSeconds,
		"uptime":                  uptimeSeconds,
	}
}

// LogMemory writes total and available memory to the log and warns when the
// host is below the recommended minimums.
func LogMemory() {
	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Warn().Msgf("could not report memory: %v", err)
		return
	}

	log.Info().Msgf("Total     memory: %15d bytes", vm.Total)
	log.Info().Msgf("Available memory: %15d bytes", vm.Available)

	if vm.Total < minimumTotalMemoryGiB*gigabytes {
		log.Warn().Msgf("Running with less than the recommended total memory of %d GiB.", minimumTotalMemoryGiB)
	}
	if vm.Available < minimumAvailableMemoryGiB*gigabytes {
		log.Warn().Msgf("Running with less than the recommended available memory of %d GiB.", minimumAvailableMemoryGiB)
	}
}
