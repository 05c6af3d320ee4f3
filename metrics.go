package shelfauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricSignInSuccess MetricID = iota
	MetricSignInFailure
	MetricRateLimited
	MetricRateLimiterDegraded
	MetricSignUpSuccess
	MetricSignUpDuplicate
	MetricSignUpIncomplete
	MetricSessionCreated
	MetricSessionInvalidated
	MetricSessionRenewed
	MetricVerificationIssued
	MetricVerificationRedeemed
	MetricVerificationFailed
	MetricOAuthStarted
	MetricOAuthCompleted
	MetricOAuthStateMismatch
	MetricOAuthFailed
	MetricMailSent
	MetricMailFailed
	MetricPasswordRehashed
	MetricStoreError
	// MetricSignInLatency is the only histogram-backed id.
	MetricSignInLatency
	metricIDCount
)

// LatencyBounds are the inclusive upper bounds of the first seven sign-in latency
// buckets. The eighth bucket holds everything slower. Argon2id dominates sign-in,
// so the bounds sit higher than a cache path would need.
var LatencyBounds = [histBucketCount - 1]time.Duration{
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2500 * time.Millisecond,
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// paddedCounter keeps hot counters on separate cache lines.
type paddedCounter struct {
	atomic.Uint64
	_ [cacheLineSize - 8]byte
}

type latencyHistogram struct {
	buckets [histBucketCount]atomic.Uint64
	sum     atomic.Int64 // nanoseconds
}

// Metrics is a fixed set of lock-free counters plus the sign-in latency histogram.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	signIn        latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter. Histograms holds
// per-bucket (not cumulative) counts; LatencySums holds the total observed time
// for the same ids.
type MetricsSnapshot struct {
	Counters    map[MetricID]uint64
	Histograms  map[MetricID][]uint64
	LatencySums map[MetricID]time.Duration
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:    map[MetricID]uint64{},
		Histograms:  map[MetricID][]uint64{},
		LatencySums: map[MetricID]time.Duration{},
	}
}

// NewMetrics creates counters per cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters record.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the histogram records.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= MetricSignInLatency {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d for a histogram-backed id. Counter ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricSignInLatency {
		return
	}
	m.signIn.buckets[bucketIndex(d)].Add(1)
	m.signIn.sum.Add(int64(d))
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricSignInLatency {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
		return emptySnapshot()
	}

	s := emptySnapshot()
	for id := MetricID(0); id < MetricSignInLatency; id++ {
		s.Counters[id] = m.counters[id].Load()
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.signIn.buckets[i].Load()
		}
		s.Histograms[MetricSignInLatency] = buckets
		s.LatencySums[MetricSignInLatency] = time.Duration(m.signIn.sum.Load())
	}
	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range LatencyBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
