package adverse

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/rickgao/polymarket-mm/internal/model"
)

const tok = model.TokenID("tok-yes")

func testManager() *Manager {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// backdate shifts every recorded fill for token into the past so the
// 5s/30s windows complete without sleeping.
func backdate(m *Manager, token model.TokenID, by time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.history[token] {
		rec.FillTime = rec.FillTime.Add(-by)
	}
}

func rawMultiplier(m *Manager, token model.TokenID) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.multiplier(token)
}

func TestToxicBuyFillRaisesMultiplier(t *testing.T) {
	m := testManager()
	m.RecordFill(tok, "ord-1", model.Buy, 0.50, 0.50, 0)
	backdate(m, tok, 31*time.Second)

	// Mid dropped 2% after we bought: adverse beyond the threshold.
	m.UpdateMetrics(tok, 0.49)

	if got := rawMultiplier(m, tok); math.Abs(got-1.30) > 1e-9 {
		t.Errorf("multiplier = %g, want 1.30 after one toxic fill", got)
	}
}

func TestToxicSellFillUsesSignedMove(t *testing.T) {
	m := testManager()
	m.RecordFill(tok, "ord-1", model.Sell, 0.50, 0.50, 0)
	backdate(m, tok, 31*time.Second)

	// Mid rose after we sold: adverse for the seller.
	m.UpdateMetrics(tok, 0.51)

	if got := rawMultiplier(m, tok); math.Abs(got-1.30) > 1e-9 {
		t.Errorf("multiplier = %g, want 1.30 for an adverse sell", got)
	}
}

func TestFavorableFillEasesMultiplier(t *testing.T) {
	m := testManager()
	m.mu.Lock()
	m.multipliers[tok] = 2.0
	m.mu.Unlock()

	m.RecordFill(tok, "ord-1", model.Buy, 0.50, 0.50, 0)
	backdate(m, tok, 31*time.Second)
	m.UpdateMetrics(tok, 0.52)

	if got := rawMultiplier(m, tok); math.Abs(got-1.9) > 1e-9 {
		t.Errorf("multiplier = %g, want 1.9 after favorable fill", got)
	}
}

func TestMultiplierCappedAtMax(t *testing.T) {
	m := testManager()
	m.mu.Lock()
	m.multipliers[tok] = 2.9
	m.mu.Unlock()

	m.RecordFill(tok, "ord-1", model.Buy, 0.50, 0.50, 0)
	backdate(m, tok, 31*time.Second)
	m.UpdateMetrics(tok, 0.45)

	if got := rawMultiplier(m, tok); got != maxMultiplier {
		t.Errorf("multiplier = %g, want capped at %g", got, maxMultiplier)
	}
	if got := m.QuoteMultiplier(tok, 0); got < minMultiplier || got > maxMultiplier {
		t.Errorf("QuoteMultiplier = %g, outside [%g, %g]", got, minMultiplier, maxMultiplier)
	}
}

func TestFiveSecondMoveCapturedOnce(t *testing.T) {
	m := testManager()
	m.RecordFill(tok, "ord-1", model.Buy, 0.50, 0.50, 0)
	backdate(m, tok, 6*time.Second)
	m.UpdateMetrics(tok, 0.51)

	m.mu.Lock()
	rec := m.history[tok][0]
	move5 := rec.PriceMove5s
	captured := rec.Captured
	m.mu.Unlock()

	if math.Abs(move5-0.02) > 1e-9 {
		t.Errorf("PriceMove5s = %g, want 0.02", move5)
	}
	if captured {
		t.Error("fill captured before the 30s window completed")
	}

	// A later mid must not overwrite the 5s reading.
	backdate(m, tok, 25*time.Second)
	m.UpdateMetrics(tok, 0.40)

	m.mu.Lock()
	rec = m.history[tok][0]
	m.mu.Unlock()
	if math.Abs(rec.PriceMove5s-0.02) > 1e-9 {
		t.Errorf("PriceMove5s overwritten to %g", rec.PriceMove5s)
	}
	if !rec.Captured {
		t.Error("fill not captured after 30s window")
	}
}

func TestDecayMonotone(t *testing.T) {
	m := testManager()
	m.mu.Lock()
	m.multipliers[tok] = 2.0
	m.mu.Unlock()

	prev := 2.0
	for i := 0; i < 100; i++ {
		m.Decay()
		got := rawMultiplier(m, tok)
		if got > prev {
			t.Fatalf("decay increased multiplier: %g -> %g", prev, got)
		}
		if got < minMultiplier {
			t.Fatalf("decay went below floor: %g", got)
		}
		prev = got
	}
	if prev > 1.01 {
		t.Errorf("multiplier = %g after 100 decays, want near 1.0", prev)
	}
}

func TestQuietMarketFloorsAtOne(t *testing.T) {
	m := testManager()
	if got := m.SpreadMultiplier(tok, model.Buy, 0); got != minMultiplier {
		t.Errorf("SpreadMultiplier = %g with no history, want %g", got, minMultiplier)
	}
}

func TestInventoryRiskScore(t *testing.T) {
	tests := []struct {
		name      string
		side      model.Side
		inventory float64
		want      float64
	}{
		{"flat buy", model.Buy, 0, 1.0},
		{"long sell raises", model.Sell, 400, 1.2},
		{"long buy eases", model.Buy, 400, 0.92},
		{"short buy raises", model.Buy, -400, 1.2},
		{"short sell eases", model.Sell, -400, 0.92},
		{"full long sell clamps high", model.Sell, 1000, 1.5},
		{"full long buy clamps low", model.Buy, 1000, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inventoryRiskScore(tt.side, tt.inventory, 1000)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("inventoryRiskScore = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestFillRateAndHistoryCap(t *testing.T) {
	m := testManager()
	for i := 0; i < 60; i++ {
		m.RecordFill(tok, "ord", model.Buy, 0.50, 0.50, 0)
	}

	if got := m.FillRate(tok); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("FillRate = %g, want 1.0 for 60 fills in the window", got)
	}

	m.mu.Lock()
	n := len(m.history[tok])
	m.mu.Unlock()
	if n != maxFillHistory {
		t.Errorf("history length = %d, want %d", n, maxFillHistory)
	}
}

func TestGetScoresComponents(t *testing.T) {
	m := testManager()
	s := m.GetScores(tok, model.Buy, 0)
	if s.ToxicFlow != 1.0 || s.InventoryRisk != 1.0 {
		t.Errorf("fresh scores = %+v, want neutral toxic/inventory", s)
	}
	if s.VolumeClock != 0.8 {
		t.Errorf("quiet volume clock = %g, want 0.8", s.VolumeClock)
	}
	if s.TotalMultiplier != minMultiplier {
		t.Errorf("total = %g, want %g", s.TotalMultiplier, minMultiplier)
	}
}
