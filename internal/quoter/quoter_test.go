package quoter

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/rickgao/polymarket-mm/internal/book"
	"github.com/rickgao/polymarket-mm/internal/model"
)

const tok = model.TokenID("tok-yes")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultConfig() Config {
	return Config{Gamma: 0.1, SpreadPct: 0.02, MaxPosition: 1000, InitialVolatility: 0.05}
}

func bookWith(bids, asks []model.PriceLevel) *book.Book {
	b := book.New(tok)
	b.ApplySnapshot(bids, asks)
	return b
}

func wideBook() *book.Book {
	return bookWith(
		[]model.PriceLevel{{Price: 0.30, Size: 1000}},
		[]model.PriceLevel{{Price: 0.70, Size: 1000}},
	)
}

func TestGenerateQuoteTwoSided(t *testing.T) {
	q := New(defaultConfig(), testLogger())
	bk := bookWith(
		[]model.PriceLevel{{Price: 0.41, Size: 7000}, {Price: 0.40, Size: 6000}},
		[]model.PriceLevel{{Price: 0.42, Size: 1700}, {Price: 0.43, Size: 3700}},
	)

	quote, ok := q.GenerateQuote(tok, bk, 1.0, time.Now())
	if !ok {
		t.Fatal("expected a quote from a healthy book")
	}
	if quote.BidPrice != 0.41 || quote.AskPrice != 0.42 {
		t.Errorf("quote = %g/%g, want 0.41/0.42", quote.BidPrice, quote.AskPrice)
	}
	if quote.BidSize != 100 || quote.AskSize != 100 {
		t.Errorf("size = %g/%g, want 100/100", quote.BidSize, quote.AskSize)
	}
	if quote.TTL != 90*time.Second {
		t.Errorf("TTL = %v, want 90s without close time", quote.TTL)
	}
	if quote.BidPrice < 0.01 || quote.AskPrice > 0.99 {
		t.Errorf("quote outside price bounds: %g/%g", quote.BidPrice, quote.AskPrice)
	}
}

func TestNoQuoteOnEmptyBook(t *testing.T) {
	q := New(defaultConfig(), testLogger())
	if _, ok := q.GenerateQuote(tok, book.New(tok), 1.0, time.Now()); ok {
		t.Error("quoted on an empty book")
	}
}

func TestNoQuoteOnTightSpread(t *testing.T) {
	q := New(defaultConfig(), testLogger())
	bk := bookWith(
		[]model.PriceLevel{{Price: 0.495, Size: 100}},
		[]model.PriceLevel{{Price: 0.500, Size: 100}},
	)
	if _, ok := q.GenerateQuote(tok, bk, 1.0, time.Now()); ok {
		t.Error("quoted into a spread below the minimum")
	}
}

func TestNoQuoteAtMaxPosition(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxPosition = 100
	q := New(cfg, testLogger())
	q.RestoreState(tok, 100, 0, 0)

	if _, ok := q.GenerateQuote(tok, wideBook(), 1.0, time.Now()); ok {
		t.Error("quoted with no remaining capacity")
	}
}

func TestSizeShrinksNearCapacity(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxPosition = 100
	q := New(cfg, testLogger())
	q.RestoreState(tok, 60, 0, 0)

	quote, ok := q.GenerateQuote(tok, wideBook(), 1.0, time.Now())
	if !ok {
		t.Fatal("expected a quote")
	}
	// 40 remaining at mid 0.5 caps the order at 80 tokens.
	if quote.BidSize != 80 {
		t.Errorf("size = %g, want 80", quote.BidSize)
	}
}

func TestLongInventorySkewsBidDown(t *testing.T) {
	cfg := Config{Gamma: 4, SpreadPct: 0.04, MaxPosition: 1000, InitialVolatility: 0.05}

	flat := New(cfg, testLogger())
	flatQuote, ok := flat.GenerateQuote(tok, wideBook(), 1.0, time.Now())
	if !ok {
		t.Fatal("flat quote failed")
	}

	long := New(cfg, testLogger())
	long.RestoreState(tok, 100, 0, 0)
	longQuote, ok := long.GenerateQuote(tok, wideBook(), 1.0, time.Now())
	if !ok {
		t.Fatal("long quote failed")
	}

	if longQuote.BidPrice >= flatQuote.BidPrice {
		t.Errorf("long bid %g not below flat bid %g", longQuote.BidPrice, flatQuote.BidPrice)
	}
}

func TestAskRespectsCostFloor(t *testing.T) {
	q := New(defaultConfig(), testLogger())
	q.RestoreState(tok, 50, 0.55, 0)

	quote, ok := q.GenerateQuote(tok, wideBook(), 1.0, time.Now())
	if !ok {
		t.Fatal("expected a quote")
	}
	if quote.AskPrice <= 0.55 {
		t.Errorf("ask %g does not cover the 0.55 average cost", quote.AskPrice)
	}
}

func TestSpreadMultiplierWidens(t *testing.T) {
	base := New(defaultConfig(), testLogger())
	wide := New(defaultConfig(), testLogger())

	bq, ok1 := base.GenerateQuote(tok, wideBook(), 1.0, time.Now())
	wq, ok2 := wide.GenerateQuote(tok, wideBook(), 3.0, time.Now())
	if !ok1 || !ok2 {
		t.Fatal("expected quotes at both multipliers")
	}
	if wq.AskPrice-wq.BidPrice <= bq.AskPrice-bq.BidPrice {
		t.Errorf("3x spread %g not wider than 1x spread %g",
			wq.AskPrice-wq.BidPrice, bq.AskPrice-bq.BidPrice)
	}
}

func TestVolatilityClipsOnJump(t *testing.T) {
	q := New(defaultConfig(), testLogger())
	now := time.Now()

	q.GenerateQuote(tok, wideBook(), 1.0, now)

	jumped := bookWith(
		[]model.PriceLevel{{Price: 0.55, Size: 1000}},
		[]model.PriceLevel{{Price: 0.65, Size: 1000}},
	)
	q.GenerateQuote(tok, jumped, 1.0, now.Add(time.Second))

	if got := q.Volatility(tok); got != 0.50 {
		t.Errorf("sigma = %g, want clipped at 0.50 after a 20%% jump", got)
	}
}

func TestApplyFillAccounting(t *testing.T) {
	q := New(defaultConfig(), testLogger())

	q.ApplyFill(tok, model.Buy, 0.50, 100)
	if got := q.Inventory(tok); got != 100 {
		t.Errorf("inventory = %g, want 100", got)
	}
	if got := q.AvgCost(tok); math.Abs(got-0.50) > 1e-9 {
		t.Errorf("avg cost = %g, want 0.50", got)
	}

	q.ApplyFill(tok, model.Sell, 0.55, 60)
	if got := q.RealizedPnL(tok); math.Abs(got-3.00) > 1e-9 {
		t.Errorf("realized = %g, want 3.00", got)
	}
	if got := q.Inventory(tok); got != 40 {
		t.Errorf("inventory = %g, want 40", got)
	}

	// Selling through flat flips short at the fill price.
	q.ApplyFill(tok, model.Sell, 0.55, 60)
	if got := q.Inventory(tok); got != -20 {
		t.Errorf("inventory = %g, want -20", got)
	}
	if got := q.RealizedPnL(tok); math.Abs(got-5.00) > 1e-9 {
		t.Errorf("realized = %g, want 5.00", got)
	}
	if got := q.AvgCost(tok); math.Abs(got-0.55) > 1e-9 {
		t.Errorf("avg cost = %g, want 0.55 after flip", got)
	}
}

func TestBuyFlipResetsCostBasis(t *testing.T) {
	q := New(defaultConfig(), testLogger())

	q.ApplyFill(tok, model.Sell, 0.50, 50)
	if got := q.Inventory(tok); got != -50 {
		t.Fatalf("inventory = %g, want -50", got)
	}

	// Covering part of the short realizes against the short's average.
	q.ApplyFill(tok, model.Buy, 0.45, 20)
	if got := q.RealizedPnL(tok); math.Abs(got-1.00) > 1e-9 {
		t.Errorf("realized = %g, want 1.00", got)
	}
	if got := q.AvgCost(tok); math.Abs(got-0.50) > 1e-9 {
		t.Errorf("avg cost = %g, want 0.50 while still short", got)
	}

	// Buying through flat flips long at the fill price.
	q.ApplyFill(tok, model.Buy, 0.60, 60)
	if got := q.Inventory(tok); got != 30 {
		t.Errorf("inventory = %g, want 30", got)
	}
	if got := q.AvgCost(tok); math.Abs(got-0.60) > 1e-9 {
		t.Errorf("avg cost = %g, want 0.60 after flip", got)
	}
	if got := q.RealizedPnL(tok); math.Abs(got-(-2.00)) > 1e-9 {
		t.Errorf("realized = %g, want -2.00", got)
	}
}

func TestRestoreStateOnce(t *testing.T) {
	q := New(defaultConfig(), testLogger())
	q.RestoreState(tok, 40, 0.50, 3.0)
	q.RestoreState(tok, 999, 0.99, 99)

	if got := q.Inventory(tok); got != 40 {
		t.Errorf("inventory = %g, second restore should be ignored", got)
	}
	if !q.Restored(tok) {
		t.Error("Restored = false after RestoreState")
	}
}

func TestTimeUrgency(t *testing.T) {
	q := New(defaultConfig(), testLogger())
	now := time.Now()

	if got := q.TimeUrgency(tok, now); got != 0 {
		t.Errorf("urgency without metadata = %g, want 0", got)
	}

	q.SetMetadata(tok, model.MarketMetadata{CloseTime: now.Add(12 * time.Hour)})
	if got := q.TimeUrgency(tok, now); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("urgency 12h out = %g, want 0.5", got)
	}

	q.SetMetadata(tok, model.MarketMetadata{CloseTime: now.Add(-time.Minute)})
	if got := q.TimeUrgency(tok, now); got != 1 {
		t.Errorf("urgency past close = %g, want 1", got)
	}
}

func TestPhaseFor(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		closeTime time.Time
		want      Phase
		wantTTL   time.Duration
	}{
		{"zero close time", time.Time{}, PreMatchEarly, 90 * time.Second},
		{"hours out", now.Add(3 * time.Hour), PreMatchEarly, 90 * time.Second},
		{"30 minutes out", now.Add(30 * time.Minute), PreMatchLate, 45 * time.Second},
		{"5 minutes out", now.Add(5 * time.Minute), PreMatchCritical, 20 * time.Second},
		{"past close", now.Add(-time.Minute), InPlay, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PhaseFor(tt.closeTime, now)
			if got != tt.want {
				t.Errorf("PhaseFor = %v, want %v", got, tt.want)
			}
			if got.TTL() != tt.wantTTL {
				t.Errorf("TTL = %v, want %v", got.TTL(), tt.wantTTL)
			}
		})
	}
}

func TestRequoteIntervalTightens(t *testing.T) {
	prev := PreMatchEarly.RequoteInterval()
	for _, p := range []Phase{PreMatchLate, PreMatchCritical, InPlay} {
		if p.RequoteInterval() >= prev {
			t.Errorf("%v interval %v not tighter than previous %v", p, p.RequoteInterval(), prev)
		}
		prev = p.RequoteInterval()
	}
}
