package server

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/common"
)

const spikeWarningMB = 100

// MemoryStatsCollector periodically publishes runtime memory statistics and
// warns when allocation crosses the configured thresholds.
type MemoryStatsCollector struct {
	log    logrus.FieldLogger
	config MemoryMonitorConfig

	lastAllocMB int64
	maxAllocMB  uint64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMemoryStatsCollector(log logrus.FieldLogger, config MemoryMonitorConfig) *MemoryStatsCollector {
	return &MemoryStatsCollector{
		log:    log.WithField("component", "memory_stats_collector"),
		config: config,
		stop:   make(chan struct{}),
	}
}

func (m *MemoryStatsCollector) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.log.Debug("Memory stats collector is disabled")

		return nil
	}

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()

		for {
			m.collect()

			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
			}
		}
	}()

	return nil
}

func (m *MemoryStatsCollector) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})

	m.wg.Wait()
}

// collect samples the runtime and returns the level it reported at.
func (m *MemoryStatsCollector) collect() string {
	var stats runtime.MemStats

	runtime.ReadMemStats(&stats)

	common.MemoryUsage.WithLabelValues("alloc").Set(float64(stats.Alloc))
	common.MemoryUsage.WithLabelValues("sys").Set(float64(stats.Sys))
	common.MemoryUsage.WithLabelValues("heap_alloc").Set(float64(stats.HeapAlloc))
	common.MemoryUsage.WithLabelValues("heap_sys").Set(float64(stats.HeapSys))
	common.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	return m.report(stats.Alloc/1024/1024, stats.Sys/1024/1024, stats.NumGC)
}

func (m *MemoryStatsCollector) report(allocMB, sysMB uint64, numGC uint32) string {
	// #nosec G115 -- megabytes fit in int64
	spikeMB := int64(allocMB) - m.lastAllocMB
	if m.lastAllocMB == 0 {
		spikeMB = 0
	}

	m.lastAllocMB = int64(allocMB) // #nosec G115

	if allocMB > m.maxAllocMB {
		m.maxAllocMB = allocMB
	}

	fields := logrus.Fields{
		"alloc_mb":     allocMB,
		"sys_mb":       sysMB,
		"max_alloc_mb": m.maxAllocMB,
		"num_gc":       numGC,
		"goroutines":   runtime.NumGoroutine(),
	}

	if spikeMB != 0 {
		fields["spike_mb"] = spikeMB
	}

	switch {
	case allocMB > m.config.CriticalThresholdMB:
		common.MemoryPressureEvents.WithLabelValues("critical").Inc()
		m.log.WithFields(fields).Error("Critical memory usage detected")

		return "critical"
	case allocMB > m.config.WarningThresholdMB:
		common.MemoryPressureEvents.WithLabelValues("warning").Inc()
		m.log.WithFields(fields).Warn("High memory usage detected")

		return "warning"
	case spikeMB > spikeWarningMB:
		m.log.WithFields(fields).Warnf("Large memory spike detected: +%d MB", spikeMB)

		return "spike"
	default:
		m.log.WithFields(fields).Debug("Memory usage summary")

		return "ok"
	}
}
