package ledger

import (
	"math"
	"testing"

	"github.com/rickgao/polymarket-mm/internal/model"
)

const tok = model.TokenID("tok-yes")

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestOpenExtendReduce(t *testing.T) {
	l := New()

	pos := l.ApplyFill(tok, model.Buy, 0.50, 100)
	if !approx(pos.Quantity, 100) || !approx(pos.AvgCost, 0.50) {
		t.Fatalf("after open: qty=%g avg=%g", pos.Quantity, pos.AvgCost)
	}
	if pos.EntrySide != model.Buy || pos.NumFills != 1 {
		t.Errorf("entry side %v fills %d, want Buy/1", pos.EntrySide, pos.NumFills)
	}

	pos = l.ApplyFill(tok, model.Sell, 0.55, 60)
	if !approx(pos.Quantity, 40) {
		t.Errorf("after partial sell: qty=%g, want 40", pos.Quantity)
	}
	if !approx(pos.AvgCost, 0.50) {
		t.Errorf("avg cost changed on reduction: %g, want 0.50", pos.AvgCost)
	}
	if !approx(pos.RealizedPnL, 3.00) {
		t.Errorf("realized = %g, want 3.00", pos.RealizedPnL)
	}
}

func TestExtendReaverages(t *testing.T) {
	l := New()
	l.ApplyFill(tok, model.Buy, 0.40, 100)
	pos := l.ApplyFill(tok, model.Buy, 0.60, 100)

	if !approx(pos.AvgCost, 0.50) {
		t.Errorf("avg = %g, want 0.50", pos.AvgCost)
	}
	if !approx(pos.Quantity, 200) {
		t.Errorf("qty = %g, want 200", pos.Quantity)
	}
	if !approx(pos.RealizedPnL, 0) {
		t.Errorf("realized = %g, want 0 while extending", pos.RealizedPnL)
	}
}

func TestFullCloseResetsBasis(t *testing.T) {
	l := New()
	l.ApplyFill(tok, model.Buy, 0.50, 100)
	pos := l.ApplyFill(tok, model.Sell, 0.45, 100)

	if !approx(pos.Quantity, 0) || !approx(pos.AvgCost, 0) {
		t.Errorf("after close: qty=%g avg=%g, want 0/0", pos.Quantity, pos.AvgCost)
	}
	if !approx(pos.RealizedPnL, -5.00) {
		t.Errorf("realized = %g, want -5.00", pos.RealizedPnL)
	}
	if l.PositionCount() != 0 {
		t.Errorf("PositionCount = %d, want 0 after flat", l.PositionCount())
	}
}

func TestFlipRealizesAndResets(t *testing.T) {
	l := New()
	l.ApplyFill(tok, model.Buy, 0.50, 100)
	pos := l.ApplyFill(tok, model.Sell, 0.55, 150)

	if !approx(pos.Quantity, -50) {
		t.Errorf("qty = %g, want -50", pos.Quantity)
	}
	if !approx(pos.AvgCost, 0.55) {
		t.Errorf("avg = %g, want fill price 0.55 after flip", pos.AvgCost)
	}
	if !approx(pos.RealizedPnL, 5.00) {
		t.Errorf("realized = %g, want 5.00", pos.RealizedPnL)
	}
	if pos.EntrySide != model.Sell {
		t.Errorf("entry side = %v, want Sell", pos.EntrySide)
	}
}

func TestShortSideSymmetry(t *testing.T) {
	l := New()
	l.ApplyFill(tok, model.Sell, 0.60, 100)
	pos := l.ApplyFill(tok, model.Buy, 0.55, 100)

	if !approx(pos.RealizedPnL, 5.00) {
		t.Errorf("short close realized = %g, want 5.00", pos.RealizedPnL)
	}
	if !approx(pos.Quantity, 0) {
		t.Errorf("qty = %g, want 0", pos.Quantity)
	}
}

func TestAggregates(t *testing.T) {
	l := New()
	other := model.TokenID("tok-no")

	l.ApplyFill(tok, model.Buy, 0.50, 100)
	l.ApplyFill(other, model.Sell, 0.30, 50)

	if l.TradeCount() != 2 {
		t.Errorf("TradeCount = %d, want 2", l.TradeCount())
	}
	wantVol := 0.50*100 + 0.30*50
	if !approx(l.TotalVolume(), wantVol) {
		t.Errorf("TotalVolume = %g, want %g", l.TotalVolume(), wantVol)
	}
	if !approx(l.TotalInventory(), 150) {
		t.Errorf("TotalInventory = %g, want 150", l.TotalInventory())
	}
	if l.PositionCount() != 2 {
		t.Errorf("PositionCount = %d, want 2", l.PositionCount())
	}
}

func TestUnrealizedPnL(t *testing.T) {
	l := New()
	l.ApplyFill(tok, model.Buy, 0.50, 100)

	got := l.UnrealizedPnL(map[model.TokenID]float64{tok: 0.53})
	if !approx(got, 3.00) {
		t.Errorf("UnrealizedPnL = %g, want 3.00", got)
	}

	// Tokens without a mid are skipped.
	if got := l.UnrealizedPnL(map[model.TokenID]float64{}); !approx(got, 0) {
		t.Errorf("UnrealizedPnL without mids = %g, want 0", got)
	}
}

func TestRestore(t *testing.T) {
	l := New()
	l.Restore(tok, -25, 0.62, 1.50)
	l.RestoreStats(7, 321.5)

	pos, ok := l.Position(tok)
	if !ok {
		t.Fatal("restored position missing")
	}
	if !approx(pos.Quantity, -25) || !approx(pos.AvgCost, 0.62) || !approx(pos.RealizedPnL, 1.50) {
		t.Errorf("restored pos = %+v", pos)
	}
	if l.TradeCount() != 7 || !approx(l.TotalVolume(), 321.5) {
		t.Errorf("restored stats = %d/%g", l.TradeCount(), l.TotalVolume())
	}

	// Restored basis participates in normal fill accounting.
	pos = l.ApplyFill(tok, model.Buy, 0.60, 25)
	if !approx(pos.RealizedPnL, 1.50+0.50) {
		t.Errorf("realized after restore close = %g, want 2.00", pos.RealizedPnL)
	}
}

func TestPositionsReturnsCopy(t *testing.T) {
	l := New()
	l.ApplyFill(tok, model.Buy, 0.50, 100)

	snap := l.Positions()
	p := snap[tok]
	p.Quantity = 999
	snap[tok] = p

	pos, _ := l.Position(tok)
	if !approx(pos.Quantity, 100) {
		t.Errorf("ledger mutated through snapshot: qty=%g", pos.Quantity)
	}
}
