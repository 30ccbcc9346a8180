package otel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// mutableSource lets tests change counters between collections.
type mutableSource struct {
	mu      sync.Mutex
	logins  uint64
	buckets []uint64
	sum     time.Duration
	dropped uint64
}

func (s *mutableSource) MetricsSnapshot() shopauth.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := shopauth.MetricsSnapshot{
		Counters:      map[shopauth.MetricID]uint64{shopauth.MetricLoginSuccess: s.logins},
		Histograms:    map[shopauth.MetricID][]uint64{},
		HistogramSums: map[shopauth.MetricID]time.Duration{},
	}
	if s.buckets != nil {
		snap.Histograms[shopauth.MetricValidateLatency] = append([]uint64(nil), s.buckets...)
		snap.HistogramSums[shopauth.MetricValidateLatency] = s.sum
	}
	return snap
}

func (s *mutableSource) AuditDropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func newReader(t *testing.T, src metricsSource) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("shopauth-test")

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource error: %v", err)
	}
	t.Cleanup(func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close error: %v", err)
		}
	})
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) (map[string]int64, map[string]float64) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	ints := map[string]int64{}
	floats := map[string]float64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					ints[m.Name] = data.DataPoints[0].Value
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					ints[m.Name] = data.DataPoints[0].Value
				}
			case metricdata.Gauge[float64]:
				if len(data.DataPoints) > 0 {
					floats[m.Name] = data.DataPoints[0].Value
				}
			}
		}
	}
	return ints, floats
}

func TestExporterCollectsSnapshot(t *testing.T) {
	src := &mutableSource{
		logins:  3,
		buckets: []uint64{1, 1, 1, 1, 1, 1, 1, 1},
		sum:     250 * time.Millisecond,
		dropped: 1,
	}
	reader := newReader(t, src)

	ints, floats := collect(t, reader)
	if got := ints["shopauth_login_success_total"]; got != 3 {
		t.Fatalf("expected login_success 3, got %d", got)
	}
	if got := ints["shopauth_validate_latency_seconds_bucket_le_0_01"]; got != 2 {
		t.Fatalf("expected cumulative 10ms bucket 2, got %d", got)
	}
	if got := ints["shopauth_validate_latency_seconds_count"]; got != 8 {
		t.Fatalf("expected histogram count 8, got %d", got)
	}
	if got := floats["shopauth_validate_latency_seconds_sum"]; got != 0.25 {
		t.Fatalf("expected sum 0.25s, got %v", got)
	}
	if got := ints["shopauth_audit_dropped_total"]; got != 1 {
		t.Fatalf("expected audit dropped 1, got %d", got)
	}

	src.mu.Lock()
	src.logins = 5
	src.mu.Unlock()
	ints, _ = collect(t, reader)
	if got := ints["shopauth_login_success_total"]; got != 5 {
		t.Fatalf("expected updated login_success 5, got %d", got)
	}
}

func TestExporterSkipsMissingHistograms(t *testing.T) {
	reader := newReader(t, &mutableSource{logins: 1})

	ints, _ := collect(t, reader)
	if _, ok := ints["shopauth_validate_latency_seconds_count"]; ok {
		t.Fatal("histogram absent from the snapshot must not be observed")
	}
	if ints["shopauth_login_success_total"] != 1 {
		t.Fatal("counters must still be observed")
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	meter := sdkmetric.NewMeterProvider().Meter("shopauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &mutableSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporter(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
}

func TestExporterConcurrentCollect(t *testing.T) {
	src := &mutableSource{buckets: make([]uint64, 8)}
	reader := newReader(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.logins = v
			src.mu.Unlock()
			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
