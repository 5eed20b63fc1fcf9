package tradelog

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSummaryRowWritten(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSummaryLogger(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new summary logger: %v", err)
	}
	defer s.Close()

	for i := 0; i < 10; i++ {
		mid := 0.40 + float64(i)*0.001
		s.UpdateMarket("Team A", "mkt-1", "cond-1", "tok-yes",
			mid, 200, mid-0.01, mid+0.01, 1000, 900)
	}
	s.SetEventEndTime("cond-1", time.Now().Add(2*time.Hour))
	s.LogSummaries()

	lines := readLines(t, filepath.Join(dir, "market_summary.csv"))
	if len(lines) != 2 {
		t.Fatalf("market_summary.csv has %d lines, want header + 1 row", len(lines))
	}
	header := strings.Split(lines[0], ",")
	row := strings.Split(lines[1], ",")
	if len(row) != len(header) {
		t.Errorf("row has %d fields, header has %d", len(row), len(header))
	}
	if row[1] != "Team A" || row[3] != "tok-yes" {
		t.Errorf("row identity fields = %q/%q", row[1], row[3])
	}
}

func TestShouldLogRespectsInterval(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSummaryLogger(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new summary logger: %v", err)
	}
	defer s.Close()

	if !s.ShouldLog() {
		t.Error("fresh logger should be due immediately")
	}
	s.LogSummaries()
	if s.ShouldLog() {
		t.Error("logger due again right after a summary pass")
	}
}

func TestWindowTrend(t *testing.T) {
	var up rollingWindow
	now := time.Now()
	for i := 0; i < 5; i++ {
		up.add(0.40+float64(i)*0.01, now)
	}
	if got := windowTrend(&up); got <= 0 {
		t.Errorf("uptrend slope = %g, want > 0", got)
	}

	var flat rollingWindow
	flat.add(0.40, now)
	if got := windowTrend(&flat); got != 0 {
		t.Errorf("single-point trend = %g, want 0", got)
	}
}

func TestQualityScoreBounds(t *testing.T) {
	best := Summary{
		LiquidityScore:    10000,
		AvgSpreadBps:      50,
		BidStabilityScore: 1,
		AskStabilityScore: 1,
		UpdateFrequency:   5,
	}
	if got := qualityScore(best); got != 100 {
		t.Errorf("best-case score = %d, want 100", got)
	}
	if got := qualityScore(Summary{}); got < 0 || got > 100 {
		t.Errorf("empty score = %d, outside [0, 100]", got)
	}
}

func TestRollingWindowEvictsOldSamples(t *testing.T) {
	var w rollingWindow
	now := time.Now()
	w.add(1, now.Add(-10*time.Minute))
	w.add(2, now)

	if w.size() != 1 {
		t.Errorf("window size = %d, want 1 after eviction", w.size())
	}
	if w.mean() != 2 {
		t.Errorf("mean = %g, want 2", w.mean())
	}
}
