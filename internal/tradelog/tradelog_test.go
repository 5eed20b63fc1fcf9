package tradelog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/polymarket-mm/internal/ledger"
	"github.com/rickgao/polymarket-mm/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startSession(t *testing.T) *Logger {
	t.Helper()
	l := NewLogger(t.TempDir(), testLogger())
	if err := l.StartSession("Test Event"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	t.Cleanup(l.EndSession)
	return l
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestStartSessionCreatesFiles(t *testing.T) {
	l := startSession(t)

	if l.SessionID() == "" || !strings.HasPrefix(l.SessionID(), "session_") {
		t.Errorf("session id = %q", l.SessionID())
	}

	for _, name := range []string{"orders.csv", "fills.csv", "positions.csv", "price_updates.csv", "market_summary.csv"} {
		path := filepath.Join(l.SessionDir(), name)
		lines := readLines(t, path)
		if len(lines) != 1 {
			t.Errorf("%s has %d lines, want header only", name, len(lines))
		}
		if !strings.HasPrefix(lines[0], "timestamp,") {
			t.Errorf("%s header = %q", name, lines[0])
		}
	}

	if err := l.StartSession("Another"); err == nil {
		t.Error("second StartSession should fail while a session is open")
	}
}

func TestOrderRows(t *testing.T) {
	l := startSession(t)

	order := model.Order{OrderID: "ord-1", TokenID: "tok-yes", Side: model.Buy, Price: 0.41, Size: 100}
	l.LogOrderPlaced(order, "mkt-1")
	l.LogOrderCancelled(order, "mkt-1", "ttl_expired")

	lines := readLines(t, filepath.Join(l.SessionDir(), "orders.csv"))
	if len(lines) != 3 {
		t.Fatalf("orders.csv has %d lines, want header + 2 rows", len(lines))
	}
	if !strings.Contains(lines[1], "ord-1,tok-yes,BUY,0.41,100,OPEN,") {
		t.Errorf("placed row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "CANCELLED,ttl_expired") {
		t.Errorf("cancelled row = %q", lines[2])
	}
}

func TestFillAndPositionRows(t *testing.T) {
	l := startSession(t)

	l.LogFill("mkt-1", "ord-1", "tok-yes", model.Sell, 0.55, 60, 3.0)
	l.LogPosition("mkt-1", "tok-yes", ledger.Position{
		Quantity:    40,
		AvgCost:     0.50,
		OpenedAt:    time.Now(),
		LastUpdated: time.Now(),
		EntrySide:   model.Buy,
		NumFills:    2,
		TotalCost:   83,
	})

	fills := readLines(t, filepath.Join(l.SessionDir(), "fills.csv"))
	if len(fills) != 2 || !strings.Contains(fills[1], "ord-1,tok-yes,SELL,0.55,60,3") {
		t.Errorf("fills.csv = %q", fills)
	}

	positions := readLines(t, filepath.Join(l.SessionDir(), "positions.csv"))
	if len(positions) != 2 || !strings.Contains(positions[1], "tok-yes,40,0.5,") {
		t.Errorf("positions.csv = %q", positions)
	}
}

func TestPriceUpdateRowStripsCommas(t *testing.T) {
	l := startSession(t)

	l.LogPriceUpdate(PriceUpdate{
		MarketName: "Team A vs Team B, Finals",
		MarketID:   "mkt-1",
		TokenID:    "tok-yes",
		MidPrice:   0.415,
		BestBid:    0.41,
		BestAsk:    0.42,
	})

	lines := readLines(t, filepath.Join(l.SessionDir(), "price_updates.csv"))
	if len(lines) != 2 {
		t.Fatalf("price_updates.csv has %d lines", len(lines))
	}
	header := strings.Split(lines[0], ",")
	row := strings.Split(lines[1], ",")
	if len(row) != len(header) {
		t.Errorf("row has %d fields, header has %d", len(row), len(header))
	}
	if !strings.Contains(lines[1], "Team A vs Team B  Finals") {
		t.Errorf("market name not sanitized: %q", lines[1])
	}
}

func TestLoggingAfterEndSessionIsNoop(t *testing.T) {
	l := NewLogger(t.TempDir(), testLogger())
	if err := l.StartSession("Test Event"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	dir := l.SessionDir()
	l.EndSession()

	l.LogFill("mkt-1", "ord-1", "tok-yes", model.Buy, 0.5, 10, 0)
	l.LogOrderPlaced(model.Order{OrderID: "ord-2"}, "mkt-1")

	fills := readLines(t, filepath.Join(dir, "fills.csv"))
	if len(fills) != 1 {
		t.Errorf("fills.csv grew after EndSession: %d lines", len(fills))
	}
	if l.Summary() != nil {
		t.Error("Summary should be nil after EndSession")
	}
}
