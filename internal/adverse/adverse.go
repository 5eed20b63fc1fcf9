package adverse

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rickgao/polymarket-mm/internal/model"
)

const (
	maxFillHistory  = 50
	toxicThreshold  = -0.005 // 30s move against us beyond 0.5%
	favorableThresh = 0.005
	decayRate       = 0.95
	minMultiplier   = 1.0
	maxMultiplier   = 3.0

	defaultMaxPosition = 1000.0
)

// FillQuality tracks how the market moved after one of our fills.
type FillQuality struct {
	OrderID         string
	Side            model.Side
	FillPrice       float64
	MidAtFill       float64
	FillTime        time.Time
	InventoryBefore float64

	PriceMove5s  float64
	PriceMove30s float64
	Captured     bool
	Toxic        bool
}

// Scores breaks the spread multiplier into its components for monitoring.
type Scores struct {
	ToxicFlow       float64
	InventoryRisk   float64
	VolumeClock     float64
	TotalMultiplier float64
}

// Manager widens quoted spreads on tokens whose fills are systematically
// followed by adverse price moves.
type Manager struct {
	mu          sync.Mutex
	logger      *slog.Logger
	history     map[model.TokenID][]*FillQuality
	multipliers map[model.TokenID]float64
	clocks      map[model.TokenID]*volumeClock
	maxPosition float64
}

// New creates a manager. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:      logger,
		history:     make(map[model.TokenID][]*FillQuality),
		multipliers: make(map[model.TokenID]float64),
		clocks:      make(map[model.TokenID]*volumeClock),
		maxPosition: defaultMaxPosition,
	}
}

// RecordFill registers a fill for quality tracking.
func (m *Manager) RecordFill(token model.TokenID, orderID string, side model.Side, fillPrice, midAtFill, inventoryBefore float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := &FillQuality{
		OrderID:         orderID,
		Side:            side,
		FillPrice:       fillPrice,
		MidAtFill:       midAtFill,
		FillTime:        time.Now(),
		InventoryBefore: inventoryBefore,
	}
	hist := append(m.history[token], rec)
	if len(hist) > maxFillHistory {
		hist = hist[len(hist)-maxFillHistory:]
	}
	m.history[token] = hist

	m.clock(token).recordFill(rec.FillTime)

	m.logger.Debug("recorded fill for quality tracking",
		"token", token, "side", side.String(), "price", fillPrice)
}

// UpdateMetrics captures 5s and 30s post-fill price moves against the
// current mid, adjusting the token's multiplier when a 30s window completes.
func (m *Manager) UpdateMetrics(token model.TokenID, currentMid float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hist, ok := m.history[token]
	if !ok || currentMid <= 0 {
		return
	}
	now := time.Now()

	for _, rec := range hist {
		if rec.Captured || rec.MidAtFill <= 0 {
			continue
		}
		elapsed := now.Sub(rec.FillTime)

		change := (currentMid - rec.MidAtFill) / rec.MidAtFill
		if rec.Side == model.Sell {
			change = -change
		}

		if elapsed >= 5*time.Second && rec.PriceMove5s == 0 {
			rec.PriceMove5s = change
		}

		if elapsed >= 30*time.Second {
			rec.PriceMove30s = change
			rec.Toxic = change < toxicThreshold
			rec.Captured = true

			if rec.Toxic {
				mult := m.multiplier(token)
				mult = math.Min(maxMultiplier, mult*1.2+0.1)
				m.multipliers[token] = mult
				m.logger.Warn("toxic fill detected",
					"token", token,
					"side", rec.Side.String(),
					"fill_price", rec.FillPrice,
					"move_30s_pct", rec.PriceMove30s*100,
					"multiplier", mult,
				)
			} else if change > favorableThresh {
				mult := m.multiplier(token)
				m.multipliers[token] = math.Max(minMultiplier, mult*0.95)
				m.logger.Debug("favorable fill", "token", token, "move_30s_pct", change*100)
			}
		}
	}
}

// SpreadMultiplier returns the spread widening factor for quoting the given
// side with the given inventory, clamped to [1.0, 3.0].
func (m *Manager) SpreadMultiplier(token model.TokenID, side model.Side, inventory float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spreadMultiplierLocked(token, side, inventory)
}

// QuoteMultiplier applies the symmetric-max policy: both quoted sides use
// the worse of the buy and sell multipliers.
func (m *Manager) QuoteMultiplier(token model.TokenID, inventory float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return math.Max(
		m.spreadMultiplierLocked(token, model.Buy, inventory),
		m.spreadMultiplierLocked(token, model.Sell, inventory),
	)
}

// GetScores exposes the individual multiplier components.
func (m *Manager) GetScores(token model.TokenID, side model.Side, inventory float64) Scores {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Scores{
		ToxicFlow:       m.toxicFlowScoreLocked(token),
		InventoryRisk:   inventoryRiskScore(side, inventory, m.maxPosition),
		VolumeClock:     m.clock(token).multiplier(time.Now()),
		TotalMultiplier: m.spreadMultiplierLocked(token, side, inventory),
	}
}

// Decay pulls all multipliers back toward 1.0. Called once per minute.
func (m *Manager) Decay() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for token, mult := range m.multipliers {
		if mult > minMultiplier {
			m.multipliers[token] = math.Max(minMultiplier,
				minMultiplier+(mult-minMultiplier)*decayRate)
		}
	}
}

// FillRate returns fills per second over the 60s volume clock window.
func (m *Manager) FillRate(token model.TokenID) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock(token).fillRate(time.Now())
}

func (m *Manager) spreadMultiplierLocked(token model.TokenID, side model.Side, inventory float64) float64 {
	base := m.multiplier(token)
	toxic := m.toxicFlowScoreLocked(token)
	invRisk := inventoryRiskScore(side, inventory, m.maxPosition)
	volClock := m.clock(token).multiplier(time.Now())

	total := base * toxic * invRisk * volClock
	return math.Max(minMultiplier, math.Min(maxMultiplier, total))
}

func (m *Manager) multiplier(token model.TokenID) float64 {
	mult, ok := m.multipliers[token]
	if !ok {
		return minMultiplier
	}
	return mult
}

// toxicFlowScoreLocked scores the token from its completed fill history:
// 0% toxic fills = 1.0x, 100% toxic = 2.0x, raised further when the average
// adverse move is large.
func (m *Manager) toxicFlowScoreLocked(token model.TokenID) float64 {
	hist, ok := m.history[token]
	if !ok || len(hist) == 0 {
		return 1.0
	}

	toxicCount := 0
	totalCount := 0
	avgAdverse := 0.0
	for _, rec := range hist {
		if !rec.Captured {
			continue
		}
		totalCount++
		if rec.Toxic {
			toxicCount++
		}
		avgAdverse += math.Min(0, rec.PriceMove30s)
	}
	if totalCount == 0 {
		return 1.0
	}

	toxicScore := 1.0 + float64(toxicCount)/float64(totalCount)

	magnitudeScore := 1.0 - (avgAdverse/float64(totalCount))*10.0
	magnitudeScore = math.Max(1.0, math.Min(2.0, magnitudeScore))

	return math.Max(toxicScore, magnitudeScore)
}

// inventoryRiskScore raises the multiplier on the side that would grow the
// position and lowers it on the side that unwinds, clamped to [0.8, 1.5].
func inventoryRiskScore(side model.Side, inventory, maxPosition float64) float64 {
	norm := inventory / maxPosition
	risk := 1.0

	switch {
	case inventory > 0 && side == model.Sell:
		risk = 1.0 + math.Abs(norm)*0.5
	case inventory < 0 && side == model.Buy:
		risk = 1.0 + math.Abs(norm)*0.5
	case inventory > 0 && side == model.Buy:
		risk = 1.0 - math.Abs(norm)*0.2
	case inventory < 0 && side == model.Sell:
		risk = 1.0 - math.Abs(norm)*0.2
	}

	return math.Max(0.8, math.Min(1.5, risk))
}

func (m *Manager) clock(token model.TokenID) *volumeClock {
	c, ok := m.clocks[token]
	if !ok {
		c = &volumeClock{}
		m.clocks[token] = c
	}
	return c
}

// volumeClock tracks fill arrival times over a sliding 60s window. Fast
// fill arrival carries information; spreads widen with sqrt of the rate.
type volumeClock struct {
	fills []time.Time
}

const (
	clockWindow  = 60 * time.Second
	baselineRate = 0.05 // expected fills per second in normal conditions
)

func (c *volumeClock) recordFill(now time.Time) {
	c.fills = append(c.fills, now)
	c.trim(now)
}

func (c *volumeClock) trim(now time.Time) {
	cutoff := now.Add(-clockWindow)
	i := 0
	for i < len(c.fills) && c.fills[i].Before(cutoff) {
		i++
	}
	c.fills = c.fills[i:]
}

func (c *volumeClock) fillRate(now time.Time) float64 {
	c.trim(now)
	if len(c.fills) == 0 {
		return 0
	}
	return float64(len(c.fills)) / clockWindow.Seconds()
}

func (c *volumeClock) multiplier(now time.Time) float64 {
	rate := c.fillRate(now)
	if rate < baselineRate*0.1 {
		// Very quiet market, lower risk
		return 0.8
	}
	return math.Sqrt(rate / baselineRate)
}
