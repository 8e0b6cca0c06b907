package indexer

import (
	"sync"
	"time"

	"github.com/chainpipe/chainpipe/metrics"
)

// blockStat is one observation in the adaptive limiter's sliding window.
type blockStat struct {
	duration time.Duration
	matched  int
	total    int
}

// AdaptiveLimiter implements the §4.4 concurrency detail floor: the
// in-flight receipt-fetch limit adapts every adjustmentInterval over the
// last windowSize blocks — +5 (capped at max) when blocks are fast and
// rarely match, -3 (floored at min) when blocks are slow, -1 when blocks are
// moderately slow.
type AdaptiveLimiter struct {
	mu         sync.Mutex
	limit      int
	min, max   int
	window     []blockStat
	windowSize int
	interval   time.Duration
	lastAdjust time.Time
	gauge      string
}

// NewAdaptiveLimiter constructs a limiter seeded at initial, bounded to
// [min, max], evaluating every interval over the last windowSize blocks.
func NewAdaptiveLimiter(initial, min, max, windowSize int, interval time.Duration, metricName string) *AdaptiveLimiter {
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	return &AdaptiveLimiter{
		limit:      initial,
		min:        min,
		max:        max,
		windowSize: windowSize,
		interval:   interval,
		lastAdjust: time.Time{},
		gauge:      metricName,
	}
}

// Limit returns the current concurrency cap.
func (a *AdaptiveLimiter) Limit() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limit
}

// RecordBlock feeds one block's outcome into the sliding window and
// re-evaluates the limit if the adjustment interval has elapsed and the
// window is full.
func (a *AdaptiveLimiter) RecordBlock(duration time.Duration, matched, total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = append(a.window, blockStat{duration: duration, matched: matched, total: total})
	if len(a.window) > a.windowSize {
		a.window = a.window[len(a.window)-a.windowSize:]
	}
	if a.lastAdjust.IsZero() {
		a.lastAdjust = time.Now()
		return
	}
	if time.Since(a.lastAdjust) < a.interval || len(a.window) < a.windowSize {
		return
	}
	a.adjustLocked()
	a.lastAdjust = time.Now()
}

func (a *AdaptiveLimiter) adjustLocked() {
	var totalDuration time.Duration
	var rateSum float64
	for _, s := range a.window {
		totalDuration += s.duration
		if s.total > 0 {
			rateSum += float64(s.matched) / float64(s.total)
		}
	}
	n := float64(len(a.window))
	meanDuration := time.Duration(float64(totalDuration) / n)
	meanRate := rateSum / n

	switch {
	case meanDuration < 1*time.Second && meanRate < 0.1:
		a.limit += 5
		if a.limit > a.max {
			a.limit = a.max
		}
	case meanDuration > 5*time.Second:
		a.limit -= 3
		if a.limit < a.min {
			a.limit = a.min
		}
	case meanDuration > 2*time.Second:
		a.limit--
		if a.limit < a.min {
			a.limit = a.min
		}
	}
	if a.gauge != "" {
		metrics.Gauge(a.gauge).Update(int64(a.limit))
	}
}
