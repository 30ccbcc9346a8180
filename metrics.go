package shopauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or latency histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLoginLocked
	MetricAccountLocked
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricRegisterRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricRefreshRateLimited
	MetricSessionCreated
	MetricSessionRevoked
	MetricLogout
	MetricLogoutAll
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld
	MetricPasswordRehashed
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricPasswordResetRateLimited
	MetricNewDevice
	MetricDeviceCheckSkipped
	MetricCSRFRejected
	MetricStoreUnavailable
	// histograms, fed through Observe only
	MetricValidateLatency
	MetricLoginLatency
	metricIDCount
)

const histBucketCount = 8

// latencyIDs lists the histogram metrics in export order.
var latencyIDs = [...]MetricID{MetricValidateLatency, MetricLoginLatency}

// HistogramBounds are the upper bounds of the latency buckets. The last
// bucket is unbounded.
var HistogramBounds = []time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// counterSlot sits alone on a 64-byte cache line so concurrent logins and
// refreshes do not contend on neighbouring counters.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

type latencyHistogram struct {
	buckets  [histBucketCount]atomic.Uint64
	sumNanos atomic.Uint64
}

func (h *latencyHistogram) observe(d time.Duration) {
	if d < 0 {
		d = 0
	}
	h.buckets[bucketFor(d)].Add(1)
	h.sumNanos.Add(uint64(d))
}

// Metrics is a fixed set of lock-free counters and latency histograms. A nil
// or disabled Metrics accepts every call and records nothing.
type Metrics struct {
	enabled bool
	latency bool
	slots   [metricIDCount]counterSlot
	hists   [len(latencyIDs)]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every metric. Histogram buckets
// hold non-cumulative counts in [HistogramBounds] order; HistogramSums holds
// the total observed latency per histogram.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount || histogramIndex(id) >= 0 {
		return
	}
	m.slots[id].n.Add(1)
}

// Observe records d for a latency metric. Counter IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	if i := histogramIndex(id); i >= 0 {
		m.hists[i].observe(d)
	}
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.slots[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if histogramIndex(id) < 0 {
			s.Counters[id] = m.slots[id].n.Load()
		}
	}
	if !m.latency {
		return s
	}
	for i, id := range latencyIDs {
		h := &m.hists[i]
		buckets := make([]uint64, histBucketCount)
		for b := range buckets {
			buckets[b] = h.buckets[b].Load()
		}
		s.Histograms[id] = buckets
		s.HistogramSums[id] = time.Duration(h.sumNanos.Load())
	}
	return s
}

// histogramIndex returns the position of id in latencyIDs, or -1.
func histogramIndex(id MetricID) int {
	for i, h := range latencyIDs {
		if h == id {
			return i
		}
	}
	return -1
}

func bucketFor(d time.Duration) int {
	for i, bound := range HistogramBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
