package shopauth

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsCounting(t *testing.T) {
	tests := []struct {
		name    string
		cfg     MetricsConfig
		incs    int
		want    uint64
		latency bool
	}{
		{name: "disabled", cfg: MetricsConfig{}, incs: 3, want: 0},
		{name: "enabled", cfg: MetricsConfig{Enabled: true}, incs: 3, want: 3},
		{name: "latency needs enabled", cfg: MetricsConfig{EnableLatencyHistograms: true}, incs: 1, want: 0},
		{name: "enabled with latency", cfg: MetricsConfig{Enabled: true, EnableLatencyHistograms: true}, incs: 2, want: 2, latency: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMetrics(tc.cfg)
			for i := 0; i < tc.incs; i++ {
				m.Inc(MetricLoginSuccess)
			}
			if got := m.Value(MetricLoginSuccess); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
			if m.LatencyEnabled() != tc.latency {
				t.Fatalf("expected LatencyEnabled=%v", tc.latency)
			}
		})
	}
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2500; j++ {
				m.Inc(MetricRefreshSuccess)
				m.Inc(MetricSessionCreated)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.Counters[MetricRefreshSuccess] != 40000 || snap.Counters[MetricSessionCreated] != 40000 {
		t.Fatalf("lost increments: %d / %d", snap.Counters[MetricRefreshSuccess], snap.Counters[MetricSessionCreated])
	}
}

func TestMetricsHistogramBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	// one observation on every bound plus one past the last
	var total time.Duration
	for _, d := range append(append([]time.Duration{}, HistogramBounds...), 2*time.Second) {
		m.Observe(MetricLoginLatency, d)
		total += d
	}
	m.Observe(MetricValidateLatency, -time.Millisecond)

	snap := m.Snapshot()
	login := snap.Histograms[MetricLoginLatency]
	if len(login) != len(HistogramBounds)+1 {
		t.Fatalf("expected %d buckets, got %d", len(HistogramBounds)+1, len(login))
	}
	for i, n := range login {
		if n != 1 {
			t.Fatalf("bucket %d: expected 1, got %d (%v)", i, n, login)
		}
	}
	if snap.HistogramSums[MetricLoginLatency] != total {
		t.Fatalf("expected sum %s, got %s", total, snap.HistogramSums[MetricLoginLatency])
	}

	validate := snap.Histograms[MetricValidateLatency]
	if validate[0] != 1 || snap.HistogramSums[MetricValidateLatency] != 0 {
		t.Fatalf("negative durations must land in the first bucket with zero sum, got %v", validate)
	}
}

func TestMetricsKeepCountersAndHistogramsApart(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricLoginSuccess, time.Millisecond)
	m.Inc(MetricLoginLatency)
	m.Inc(metricIDCount)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("counter metric must not produce a histogram")
	}
	if _, ok := snap.Counters[MetricLoginLatency]; ok {
		t.Fatal("histogram metric must not appear as a counter")
	}
	if snap.Counters[MetricLoginSuccess] != 0 {
		t.Fatal("Observe must not touch counters")
	}
}

func TestMetricsSnapshotWithoutLatency(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricValidateLatency, time.Millisecond)
	m.Inc(MetricLogout)

	snap := m.Snapshot()
	if len(snap.Histograms) != 0 || len(snap.HistogramSums) != 0 {
		t.Fatalf("expected no histograms, got %v", snap.Histograms)
	}
	if snap.Counters[MetricLogout] != 1 {
		t.Fatalf("expected logout=1, got %d", snap.Counters[MetricLogout])
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogout)
	m.Observe(MetricValidateLatency, time.Millisecond)
	if m.Value(MetricLogout) != 0 || m.Enabled() {
		t.Fatal("nil metrics must record nothing")
	}
	snap := m.Snapshot()
	if snap.Counters == nil || snap.Histograms == nil || snap.HistogramSums == nil {
		t.Fatal("snapshot maps must be non-nil")
	}
}
