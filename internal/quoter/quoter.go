package quoter

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rickgao/polymarket-mm/internal/book"
	"github.com/rickgao/polymarket-mm/internal/model"
)

const (
	// EWMA volatility parameters
	ewmaLambda       = 0.94
	annualizeSeconds = 252 * 24 * 3600
	minVolatility    = 0.01
	maxVolatility    = 0.50
	minVolInterval   = 100 * time.Millisecond

	// Quote construction
	inventoryUnit   = 100.0 // tokens per unit of normalized inventory
	imbalanceNudge  = 0.005 // max adjustment from book imbalance
	minBookSpread   = 0.01
	minQuotePrice   = 0.01
	maxQuotePrice   = 0.99
	maxOrderSize    = 100.0
	minOrderSize    = 10.0
	baseProfitPct   = 0.015
	urgentThreshold = 0.9
	urgentDiscount  = -0.01
)

// Config holds the strategy parameters of the quoter.
type Config struct {
	Gamma             float64 // risk aversion in the reservation price terms
	SpreadPct         float64 // base quoted spread as a fraction of mid
	MaxPosition       float64 // per-token position capacity
	InitialVolatility float64 // EWMA seed before enough observations
}

// tokenState carries the quoting state of one token.
type tokenState struct {
	inventory        float64 // signed token quantity
	inventoryDollars float64 // notional of the open position
	avgCost          float64
	realizedPnL      float64

	sigma      float64
	lastMid    float64
	lastUpdate time.Time

	meta     model.MarketMetadata
	hasMeta  bool
	restored bool
}

// Quoter generates two-sided quotes per token using inventory-skewed
// reservation prices around the book mid.
type Quoter struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	tokens map[model.TokenID]*tokenState
}

// New creates a quoter with the given parameters. A nil logger falls back to
// slog.Default().
func New(cfg Config, logger *slog.Logger) *Quoter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Gamma <= 0 {
		cfg.Gamma = 0.1
	}
	if cfg.SpreadPct <= 0 {
		cfg.SpreadPct = 0.02
	}
	if cfg.MaxPosition <= 0 {
		cfg.MaxPosition = 1000
	}
	if cfg.InitialVolatility <= 0 {
		cfg.InitialVolatility = 0.05
	}
	q := &Quoter{
		cfg:    cfg,
		logger: logger,
		tokens: make(map[model.TokenID]*tokenState),
	}
	q.logger.Info("quoter initialized",
		"spread_pct", cfg.SpreadPct,
		"max_position", cfg.MaxPosition,
		"gamma", cfg.Gamma,
		"sigma", cfg.InitialVolatility,
	)
	return q
}

// SetMetadata attaches market metadata (close time drives phase and urgency).
func (q *Quoter) SetMetadata(token model.TokenID, meta model.MarketMetadata) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := q.state(token)
	st.meta = meta
	st.hasMeta = true
}

// RestoreState seeds a token's inventory from persisted positions. Applied
// once; later calls for the same token are ignored.
func (q *Quoter) RestoreState(token model.TokenID, inventory, avgCost, realized float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := q.state(token)
	if st.restored {
		return
	}
	st.inventory = inventory
	st.avgCost = avgCost
	st.inventoryDollars = inventory * avgCost
	st.realizedPnL = realized
	st.restored = true
}

// Restored reports whether the token's state was already seeded.
func (q *Quoter) Restored(token model.TokenID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state(token).restored
}

// ApplyFill updates the quoting copy of inventory and average cost.
func (q *Quoter) ApplyFill(token model.TokenID, side model.Side, price, size float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := q.state(token)
	if side == model.Buy {
		// Buy: realize against the average cost of the short
		if st.inventory < 0 {
			closed := math.Min(size, -st.inventory)
			st.realizedPnL += closed * (st.avgCost - price)
		}
		fromShort := st.inventory < 0
		st.inventory += size

		switch {
		case st.inventory > 0 && fromShort:
			// Flip: the remainder opens at the fill price
			st.inventoryDollars = st.inventory * price
			st.avgCost = price
		case st.inventory > 0:
			st.inventoryDollars += size * price
			st.avgCost = st.inventoryDollars / st.inventory
		case st.inventory < 0:
			st.inventoryDollars = st.inventory * st.avgCost
		default:
			st.inventoryDollars = 0
			st.avgCost = 0
		}
		return
	}

	// Sell: realize against the average cost of the long
	if st.inventory > 0 {
		closed := math.Min(size, st.inventory)
		st.realizedPnL += closed * (price - st.avgCost)
	}
	st.inventory -= size

	switch {
	case st.inventory > 0:
		st.inventoryDollars = st.inventory * st.avgCost
	case st.inventory < 0:
		st.inventoryDollars = st.inventory * price
		st.avgCost = price
	default:
		st.inventoryDollars = 0
		st.avgCost = 0
	}
}

// Inventory returns the quoter's view of a token's signed inventory.
func (q *Quoter) Inventory(token model.TokenID) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state(token).inventory
}

// AvgCost returns the average entry price of the token's open position.
func (q *Quoter) AvgCost(token model.TokenID) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state(token).avgCost
}

// RealizedPnL returns the quoter's realized PnL for a token.
func (q *Quoter) RealizedPnL(token model.TokenID) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state(token).realizedPnL
}

// Volatility returns the current EWMA volatility estimate for a token.
func (q *Quoter) Volatility(token model.TokenID) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state(token).sigma
}

// PhaseFor returns the token's current market phase.
func (q *Quoter) PhaseFor(token model.TokenID, now time.Time) Phase {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := q.state(token)
	if !st.hasMeta {
		return PreMatchEarly
	}
	return PhaseFor(st.meta.CloseTime, now)
}

// GenerateQuote builds a two-sided quote for the token from its book.
// spreadMult widens the base spread (adverse selection). Returns false when
// no quote should rest: empty or crossed book, too-tight spread, quotes that
// would cross the market, or size below the minimum.
func (q *Quoter) GenerateQuote(token model.TokenID, bk *book.Book, spreadMult float64, now time.Time) (model.Quote, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := q.state(token)

	mid := bk.Mid()
	if mid <= 0 {
		return model.Quote{}, false
	}

	if st.lastMid > 0 {
		elapsed := now.Sub(st.lastUpdate)
		if elapsed > minVolInterval {
			q.updateVolatility(st, mid, elapsed)
		}
	}
	st.lastMid = mid
	st.lastUpdate = now

	if bk.Spread() < minBookSpread {
		q.logger.Debug("market spread too tight, not quoting", "token", token, "spread", bk.Spread())
		return model.Quote{}, false
	}
	if spreadMult < 1 {
		spreadMult = 1
	}

	targetSpread := mid * q.cfg.SpreadPct * spreadMult

	qNorm := st.inventory / inventoryUnit
	sigmaSq := st.sigma * st.sigma
	reservationBid := mid - (qNorm+1)*q.cfg.Gamma*sigmaSq
	reservationAsk := mid + (qNorm-1)*q.cfg.Gamma*sigmaSq

	bid := reservationBid - targetSpread/2
	ask := reservationAsk + targetSpread/2

	adjustment := bk.Imbalance() * imbalanceNudge
	bid += adjustment
	ask += adjustment

	bid = roundToCent(bid)
	ask = roundToCent(ask)

	// Long inventory must not be offered below cost plus an urgency-scaled
	// minimum profit. Near close, accept a small loss to exit.
	if st.inventory > 0 && st.avgCost > 0 {
		inventoryRisk := math.Abs(st.inventoryDollars) / q.cfg.MaxPosition
		urgency := math.Max(timeUrgency(st, now), inventoryRisk)
		minProfit := baseProfitPct * (1 - urgency)
		if urgency > urgentThreshold {
			minProfit = urgentDiscount
		}
		minAsk := st.avgCost * (1 + minProfit)
		if ask < minAsk {
			ask = minAsk
		}
	}

	bid = clip(bid, minQuotePrice, maxQuotePrice)
	ask = clip(ask, minQuotePrice, maxQuotePrice)

	if ask <= bid {
		q.logger.Debug("quotes collapsed after clipping, not quoting", "token", token, "bid", bid, "ask", ask)
		return model.Quote{}, false
	}
	if bid >= bk.BestAsk() || ask <= bk.BestBid() {
		q.logger.Debug("quotes would cross the market, not quoting", "token", token)
		return model.Quote{}, false
	}

	remaining := q.cfg.MaxPosition - math.Abs(st.inventory)
	size := math.Min(maxOrderSize, remaining/mid)
	if size < minOrderSize {
		q.logger.Debug("near max position, not quoting", "token", token, "remaining", remaining)
		return model.Quote{}, false
	}

	phase := PreMatchEarly
	if st.hasMeta {
		phase = PhaseFor(st.meta.CloseTime, now)
	}

	return model.Quote{
		BidPrice:  bid,
		BidSize:   size,
		AskPrice:  ask,
		AskSize:   size,
		TTL:       phase.TTL(),
		CreatedAt: now,
	}, true
}

// TimeUrgency returns how close the token's market is to closing, in [0,1].
func (q *Quoter) TimeUrgency(token model.TokenID, now time.Time) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return timeUrgency(q.state(token), now)
}

func timeUrgency(st *tokenState, now time.Time) float64 {
	if !st.hasMeta || st.meta.CloseTime.IsZero() {
		return 0
	}
	hours := st.meta.CloseTime.Sub(now).Hours()
	if hours < 0 {
		return 1
	}
	if hours > 24 {
		return 0
	}
	// Linear ramp: 24h out = 0, at close = 1
	return 1 - hours/24
}

// updateVolatility folds a new mid observation into the EWMA estimate.
func (q *Quoter) updateVolatility(st *tokenState, mid float64, elapsed time.Duration) {
	ret := math.Abs(mid-st.lastMid) / st.lastMid
	annualFactor := math.Sqrt(annualizeSeconds / elapsed.Seconds())
	observed := ret * annualFactor

	st.sigma = ewmaLambda*st.sigma + (1-ewmaLambda)*observed
	st.sigma = clip(st.sigma, minVolatility, maxVolatility)
}

func (q *Quoter) state(token model.TokenID) *tokenState {
	st, ok := q.tokens[token]
	if !ok {
		st = &tokenState{sigma: q.cfg.InitialVolatility}
		q.tokens[token] = st
	}
	return st
}

func roundToCent(px float64) float64 {
	return math.Round(px*100) / 100
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
