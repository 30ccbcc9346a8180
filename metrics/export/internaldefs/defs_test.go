package internaldefs

import (
	"strconv"
	"strings"
	"testing"

	"github.com/MrEthical07/shopauth"
)

func TestBoundsMatchEngineHistogram(t *testing.T) {
	if len(shopauth.HistogramBounds)+1 != BucketCount {
		t.Fatalf("engine has %d bounds, exporters expect %d buckets", len(shopauth.HistogramBounds), BucketCount)
	}
	for i, d := range shopauth.HistogramBounds {
		got, err := strconv.ParseFloat(HistogramBounds[i], 64)
		if err != nil {
			t.Fatalf("bound %q: %v", HistogramBounds[i], err)
		}
		if got != d.Seconds() {
			t.Fatalf("bucket %d: expected %v, got %v", i, d.Seconds(), got)
		}
	}
	if HistogramBounds[BucketCount-1] != "+Inf" {
		t.Fatalf("last bucket must be +Inf, got %q", HistogramBounds[BucketCount-1])
	}
}

func TestDefinitionsAreUnique(t *testing.T) {
	names := map[string]bool{}
	ids := map[shopauth.MetricID]bool{}
	for _, def := range CounterDefs {
		if names[def.Name] || ids[def.ID] {
			t.Fatalf("duplicate counter definition %s", def.Name)
		}
		if !strings.HasPrefix(def.Name, "shopauth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %s does not follow naming", def.Name)
		}
		names[def.Name] = true
		ids[def.ID] = true
	}
	for _, def := range HistogramDefs {
		if ids[def.ID] {
			t.Fatalf("histogram %s reuses a counter id", def.Name)
		}
		ids[def.ID] = true
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [BucketCount]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
