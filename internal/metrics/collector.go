package metrics

import (
	"time"

	"media-streamer/internal/logging"
)

// StatsProvider supplies point-in-time counts for the collector.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current queue and store counts.
type Stats struct {
	PendingJobs    int
	ProcessingJobs int
	CompletedJobs  int
	FailedJobs     int
	StoreUnits     int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	QueueJobsByStatus.WithLabelValues("pending").Set(float64(stats.PendingJobs))
	QueueJobsByStatus.WithLabelValues("processing").Set(float64(stats.ProcessingJobs))
	QueueJobsByStatus.WithLabelValues("completed").Set(float64(stats.CompletedJobs))
	QueueJobsByStatus.WithLabelValues("failed").Set(float64(stats.FailedJobs))
	QueueDepth.Set(float64(stats.PendingJobs))
	StoreUnitsTotal.Set(float64(stats.StoreUnits))

	logging.Debug("Metrics collected: pending=%d, processing=%d, completed=%d, failed=%d, store=%d",
		stats.PendingJobs, stats.ProcessingJobs, stats.CompletedJobs, stats.FailedJobs, stats.StoreUnits)
}
