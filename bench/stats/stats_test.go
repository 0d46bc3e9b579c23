package stats

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPercentile(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	if got := Percentile(data, 50); got != 3 {
		t.Fatalf("p50 = %v, want 3", got)
	}
	if got := Percentile(data, 100); got != 5 {
		t.Fatalf("p100 = %v, want 5", got)
	}
	if got := Percentile(data, 25); math.Abs(got-2) > 1e-9 {
		t.Fatalf("p25 = %v, want 2", got)
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Fatalf("empty percentile = %v", got)
	}
}

func TestSummarize_TrimsOutliers(t *testing.T) {
	data := make([]float64, 0, 100)
	for i := 0; i < 99; i++ {
		data = append(data, 10)
	}
	data = append(data, 10000)

	s := Summarize(data, 1)
	if s.Count != 100 || s.TrimmedMean != 10 {
		t.Fatalf("unexpected summary %s", s)
	}
}

func TestSummarize_SingleSample(t *testing.T) {
	if s := Summarize([]float64{7}, 50); s.TrimmedMean != 7 || s.P99 != 7 {
		t.Fatalf("unexpected summary %s", s)
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lat.csv")
	if err := WriteCSV(path, []float64{1.5, 2}); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	b, _ := os.ReadFile(path)
	if got := strings.TrimSpace(string(b)); got != "latency_ms\n1.500\n2.000" {
		t.Fatalf("unexpected csv %q", got)
	}
}
