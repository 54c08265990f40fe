package player

import (
	"sync"
	"time"

	"media-streamer/internal/logging"
)

const (
	// maxSamples bounds the estimator window.
	maxSamples = 10
	// headroom is the fraction of the estimate a variant may consume.
	// Picking at full estimate leaves no margin for throughput dips.
	headroom = 0.8
)

// Variant is one rung of a quality ladder, ordered ascending by
// bandwidth.
type Variant struct {
	Name      string
	Bandwidth float64 // bits per second
}

// BandwidthEstimator tracks recent download throughput and picks the
// quality tier playback should request next.
type BandwidthEstimator struct {
	mu      sync.Mutex
	samples []float64 // bits per second, oldest first
	tier    int       // last picked ladder index
}

// NewBandwidthEstimator returns an estimator with no samples; until the
// first sample arrives PickVariant selects the lowest tier.
func NewBandwidthEstimator() *BandwidthEstimator {
	return &BandwidthEstimator{}
}

// AddSample records one segment download.
func (e *BandwidthEstimator) AddSample(bytes int64, elapsed time.Duration) {
	if bytes <= 0 || elapsed <= 0 {
		return
	}
	bps := float64(bytes*8) / elapsed.Seconds()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.samples = append(e.samples, bps)
	if len(e.samples) > maxSamples {
		e.samples = e.samples[len(e.samples)-maxSamples:]
	}
}

// Estimate returns the recency-weighted average throughput in bits per
// second, or 0 when no samples exist. Newer samples carry linearly more
// weight so the estimate follows throughput changes quickly without
// whipsawing on a single outlier.
func (e *BandwidthEstimator) Estimate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.estimateLocked()
}

func (e *BandwidthEstimator) estimateLocked() float64 {
	if len(e.samples) == 0 {
		return 0
	}

	var sum, weight float64
	for i, s := range e.samples {
		w := float64(i + 1)
		sum += s * w
		weight += w
	}
	return sum / weight
}

// PickVariant selects the highest ladder tier whose bandwidth fits
// within the headroom fraction of the current estimate. With no samples
// yet, or when nothing fits, it returns the lowest tier. The ladder must
// be ordered ascending by bandwidth and non-empty.
func (e *BandwidthEstimator) PickVariant(ladder []Variant) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	budget := e.estimateLocked() * headroom

	pick := 0
	for i, v := range ladder {
		if v.Bandwidth <= budget {
			pick = i
		}
	}

	e.tier = pick
	return pick
}

// OnRebuffer reacts to a playback stall by stepping down one tier
// immediately, without waiting for the moving average to catch up.
// Returns the new tier index.
func (e *BandwidthEstimator) OnRebuffer() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tier > 0 {
		e.tier--
		logging.Debug("Rebuffer: stepping quality down to tier %d", e.tier)
	}
	return e.tier
}

// Tier returns the most recently selected ladder index.
func (e *BandwidthEstimator) Tier() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tier
}
