package engine

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/polymarket-mm/internal/adverse"
	"github.com/rickgao/polymarket-mm/internal/book"
	"github.com/rickgao/polymarket-mm/internal/bus"
	"github.com/rickgao/polymarket-mm/internal/ledger"
	"github.com/rickgao/polymarket-mm/internal/metrics"
	"github.com/rickgao/polymarket-mm/internal/model"
	"github.com/rickgao/polymarket-mm/internal/orders"
	"github.com/rickgao/polymarket-mm/internal/quoter"
	"github.com/rickgao/polymarket-mm/internal/state"
	"github.com/rickgao/polymarket-mm/internal/tradelog"
)

const (
	tickInterval     = 1 * time.Second
	snapshotInterval = 60 * time.Second
	quoteEpsilon     = 0.001
)

// Recorder receives fills and position snapshots for external storage. The
// database writer implements it; a nil Recorder disables the sink.
type Recorder interface {
	RecordFill(token model.TokenID, orderID string, side model.Side, price, size, realizedPnL float64)
	RecordPosition(token model.TokenID, pos ledger.Position)
}

// Deps are the collaborators the engine drives. Queue, Ledger, Store, Quoter,
// Adverse, and Orders are required; TradeLog, DB, and Counters are optional.
type Deps struct {
	Queue    *bus.Queue
	Ledger   *ledger.Ledger
	Store    *state.Store
	Quoter   *quoter.Quoter
	Adverse  *adverse.Manager
	Orders   *orders.Manager
	TradeLog *tradelog.Logger
	DB       Recorder
	Counters *metrics.Counters
}

// activeQuote tracks the pair of resting orders for one token.
type activeQuote struct {
	quote    model.Quote
	placedAt time.Time
}

// tokenTrace carries the per-token context for price update rows.
type tokenTrace struct {
	lastMid    float64
	lastUpdate time.Time
}

// Engine is the single-consumer strategy dispatcher. It exclusively owns the
// book mirrors, metadata table, and active quote records; reads from other
// goroutines go through the status accessors.
type Engine struct {
	d      Deps
	logger *slog.Logger

	mu           sync.RWMutex
	books        map[model.TokenID]*book.Book
	meta         map[model.TokenID]model.MarketMetadata
	activeQuotes map[model.TokenID]*activeQuote
	traces       map[model.TokenID]*tokenTrace
	pendingFills []*fillMetrics
	totalFills   int

	cancel context.CancelFunc
	done   chan struct{}
}

// New wires an engine from its collaborators. A nil logger falls back to
// slog.Default().
func New(d Deps, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		d:            d,
		logger:       logger,
		books:        make(map[model.TokenID]*book.Book),
		meta:         make(map[model.TokenID]model.MarketMetadata),
		activeQuotes: make(map[model.TokenID]*activeQuote),
		traces:       make(map[model.TokenID]*tokenTrace),
	}
}

// RegisterMarket makes a token tradable: the engine keeps metadata for it and
// the quoter starts producing quotes on its book updates. Unregistered tokens
// are observation-only.
func (e *Engine) RegisterMarket(token model.TokenID, question, outcome, marketID, conditionID string) {
	meta := model.MarketMetadata{
		Question:    question,
		Outcome:     outcome,
		MarketID:    marketID,
		ConditionID: conditionID,
	}

	e.mu.Lock()
	e.meta[token] = meta
	e.mu.Unlock()

	e.d.Quoter.SetMetadata(token, meta)
	e.logger.Info("market registered", "token", token, "market", meta.Name())
}

// SetEventEndTime stamps the close time on every registered token sharing the
// condition ID. The close time drives phase-based quote TTLs and urgency.
func (e *Engine) SetEventEndTime(conditionID string, closeTime time.Time) {
	e.mu.Lock()
	var updated []model.TokenID
	for token, meta := range e.meta {
		if meta.ConditionID != conditionID {
			continue
		}
		meta.CloseTime = closeTime
		e.meta[token] = meta
		updated = append(updated, token)
	}
	metaCopy := make(map[model.TokenID]model.MarketMetadata, len(updated))
	for _, token := range updated {
		metaCopy[token] = e.meta[token]
	}
	e.mu.Unlock()

	for token, meta := range metaCopy {
		e.d.Quoter.SetMetadata(token, meta)
	}
	if e.d.TradeLog != nil {
		if sl := e.d.TradeLog.Summary(); sl != nil {
			sl.SetEventEndTime(conditionID, closeTime)
		}
	}
	e.logger.Info("event end time set",
		"condition_id", conditionID,
		"close_time", closeTime.UTC().Format(time.RFC3339),
		"tokens", len(updated),
	)
}

// Start restores persisted positions and launches the event loop and the
// 1 Hz timer.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	e.restore()

	go e.timerLoop(runCtx)
	go func() {
		defer close(e.done)
		e.run(runCtx)
	}()

	e.logger.Info("strategy engine started")
	return nil
}

// Stop pushes a shutdown event and waits for the loop to drain, bounded by
// ctx.
func (e *Engine) Stop(ctx context.Context) error {
	if err := e.d.Queue.Push(model.NewShutdown()); err != nil {
		// Queue already closed; the loop is exiting on its own.
		e.logger.Debug("shutdown push skipped", "error", err)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		e.cancel()
		<-e.done
	}
	e.cancel()
	e.logger.Info("strategy engine stopped")
	return nil
}

// restore seeds the ledger from the persisted state file. The quoter copies
// are seeded lazily at each token's first quote attempt, because markets
// register after this load.
func (e *Engine) restore() {
	st := e.d.Store.Load()
	for token, ps := range st.Positions {
		if math.Abs(ps.Quantity) < quoteEpsilon && ps.RealizedPnL == 0 {
			continue
		}
		e.d.Ledger.Restore(token, ps.Quantity, ps.AvgCost, ps.RealizedPnL)
	}
	e.d.Ledger.RestoreStats(st.TotalTrades, st.TotalVolume)

	if len(st.Positions) > 0 {
		e.logger.Info("restored positions from previous session",
			"session", st.LastSessionID,
			"positions", len(st.Positions),
		)
	}
}

// timerLoop injects TimerTick events at 1 Hz for TTL scans and periodic
// maintenance.
func (e *Engine) timerLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.d.Queue.Push(model.NewTimerTick()); err != nil {
				return
			}
		}
	}
}

// run is the event loop. It is the only goroutine that mutates books,
// metadata, active quotes, and the order registry.
func (e *Engine) run(ctx context.Context) {
	e.logger.Debug("engine event loop started")
	lastSnapshot := time.Now()

	for {
		ev, ok := e.d.Queue.Pop(ctx)
		if !ok {
			break
		}
		if ev.Kind == model.KindShutdown {
			if e.d.Counters != nil {
				e.d.Counters.IncEvent(ev.Kind)
			}
			e.logger.Info("shutdown event received", "reason", ev.Reason)
			e.shutdown()
			break
		}
		e.dispatch(ev)

		if now := time.Now(); now.Sub(lastSnapshot) >= snapshotInterval {
			e.maintain(now)
			lastSnapshot = now
		}
	}
	e.logger.Debug("engine event loop exited")
}

func (e *Engine) dispatch(ev model.Event) {
	if e.d.Counters != nil {
		e.d.Counters.IncEvent(ev.Kind)
	}
	switch ev.Kind {
	case model.KindBookSnapshot:
		e.handleBookSnapshot(ev)
	case model.KindPriceLevelUpdate:
		e.handlePriceLevelUpdate(ev)
	case model.KindOrderFill:
		e.handleOrderFill(ev)
	case model.KindOrderRejected:
		e.logger.Warn("order rejected", "order_id", ev.OrderID, "reason", ev.Reason)
	case model.KindTimerTick:
		e.scanQuoteTTLs(time.Now())
	default:
		e.logger.Warn("unknown event kind dropped", "kind", int(ev.Kind))
	}
}

func (e *Engine) handleBookSnapshot(ev model.Event) {
	bk := e.bookFor(ev.TokenID)

	e.mu.Lock()
	bk.ApplySnapshot(ev.Bids, ev.Asks)
	e.mu.Unlock()

	e.logger.Debug("book snapshot applied",
		"token", ev.TokenID,
		"bid_levels", len(ev.Bids),
		"ask_levels", len(ev.Asks),
		"best_bid", bk.BestBid(),
		"best_ask", bk.BestAsk(),
	)

	e.afterBookChange(ev.TokenID, bk)
}

func (e *Engine) handlePriceLevelUpdate(ev model.Event) {
	if ev.Size < 0 {
		e.logger.Warn("negative size level update rejected", "token", ev.TokenID, "price", ev.Price)
		return
	}
	bk := e.bookFor(ev.TokenID)

	e.mu.Lock()
	bk.ApplyLevel(ev.Side, ev.Price, ev.Size)
	e.mu.Unlock()

	e.afterBookChange(ev.TokenID, bk)
}

// afterBookChange runs the shared post-update path: paper fill checks,
// adverse-selection mid sampling, the price trace, and a requote.
func (e *Engine) afterBookChange(token model.TokenID, bk *book.Book) {
	e.d.Orders.OnBook(token, bk)

	if mid := bk.Mid(); mid > 0 {
		e.d.Adverse.UpdateMetrics(token, mid)
	}

	e.tracePriceUpdate(token, bk)
	e.requote(token, model.CancelQuoteUpdate, false)
}

func (e *Engine) handleOrderFill(ev model.Event) {
	bk := e.bookFor(ev.TokenID)
	mid := bk.Mid()
	inventoryBefore := e.d.Quoter.Inventory(ev.TokenID)

	pos := e.d.Ledger.ApplyFill(ev.TokenID, ev.FillSide, ev.FillPrice, ev.FillSize)
	e.d.Quoter.ApplyFill(ev.TokenID, ev.FillSide, ev.FillPrice, ev.FillSize)
	e.d.Adverse.RecordFill(ev.TokenID, ev.OrderID, ev.FillSide, ev.FillPrice, mid, inventoryBefore)

	meta := e.metaFor(ev.TokenID)

	e.mu.Lock()
	e.totalFills++
	e.pendingFills = append(e.pendingFills, &fillMetrics{
		token:     ev.TokenID,
		orderID:   ev.OrderID,
		side:      ev.FillSide,
		fillPrice: ev.FillPrice,
		fillSize:  ev.FillSize,
		midAtFill: mid,
		spreadBps: spreadBps(bk),
		imbalance: bk.Imbalance(),
		fillTime:  time.Now(),
	})
	e.mu.Unlock()

	if e.d.Counters != nil {
		e.d.Counters.IncFill()
	}

	e.logger.Info("fill applied",
		"order_id", ev.OrderID,
		"market", marketLabel(meta, ev.TokenID),
		"side", ev.FillSide.String(),
		"price", ev.FillPrice,
		"size", ev.FillSize,
		"position", pos.Quantity,
		"avg_cost", pos.AvgCost,
		"realized_pnl", pos.RealizedPnL,
	)

	if e.d.TradeLog != nil {
		e.d.TradeLog.LogFill(meta.MarketID, ev.OrderID, ev.TokenID, ev.FillSide, ev.FillPrice, ev.FillSize, pos.RealizedPnL)
		e.d.TradeLog.LogPosition(meta.MarketID, ev.TokenID, pos)
	}
	if e.d.DB != nil {
		e.d.DB.RecordFill(ev.TokenID, ev.OrderID, ev.FillSide, ev.FillPrice, ev.FillSize, pos.RealizedPnL)
	}

	e.d.Store.UpdatePosition(ev.TokenID, state.PositionState{
		Quantity:    pos.Quantity,
		AvgCost:     pos.AvgCost,
		RealizedPnL: pos.RealizedPnL,
	})
	e.d.Store.UpdateGlobalStats(e.d.Ledger.TradeCount(), e.d.Ledger.TotalVolume(), e.d.Ledger.TotalRealizedPnL())

	e.requote(ev.TokenID, model.CancelQuoteUpdate, false)
}

// scanQuoteTTLs requotes tokens whose resting quotes have outlived their TTL.
func (e *Engine) scanQuoteTTLs(now time.Time) {
	e.mu.RLock()
	var expired []model.TokenID
	for token, aq := range e.activeQuotes {
		if aq.quote.TTL > 0 && now.Sub(aq.placedAt) > aq.quote.TTL {
			expired = append(expired, token)
		}
	}
	e.mu.RUnlock()

	for _, token := range expired {
		e.logger.Debug("quote TTL expired, refreshing", "token", token)
		e.requote(token, model.CancelTTLExpired, true)
	}
}

// maintain runs the 60s housekeeping: state snapshot, post-fill mid capture,
// quote summary, and adverse multiplier decay.
func (e *Engine) maintain(now time.Time) {
	e.snapshotPositions()
	e.sweepFillMetrics(now)
	e.logQuoteSummary()
	e.d.Adverse.Decay()
}

// snapshotPositions writes every ledger position and the aggregate stats to
// the state file. Save failures are logged and retried on the next cycle.
func (e *Engine) snapshotPositions() {
	positions := e.d.Ledger.Positions()
	for token, pos := range positions {
		e.d.Store.UpdatePosition(token, state.PositionState{
			Quantity:    pos.Quantity,
			AvgCost:     pos.AvgCost,
			RealizedPnL: pos.RealizedPnL,
		})
		if e.d.TradeLog != nil {
			e.d.TradeLog.LogPosition(e.metaFor(token).MarketID, token, pos)
		}
		if e.d.DB != nil {
			e.d.DB.RecordPosition(token, pos)
		}
	}
	e.d.Store.UpdateGlobalStats(e.d.Ledger.TradeCount(), e.d.Ledger.TotalVolume(), e.d.Ledger.TotalRealizedPnL())

	if err := e.d.Store.Flush(); err != nil {
		e.logger.Error("state snapshot failed", "error", err)
	}
}

// logQuoteSummary logs the five largest positions with their current quotes.
func (e *Engine) logQuoteSummary() {
	positions := e.d.Ledger.Positions()
	type entry struct {
		token model.TokenID
		pos   ledger.Position
	}
	ranked := make([]entry, 0, len(positions))
	for token, pos := range positions {
		if math.Abs(pos.Quantity) < quoteEpsilon {
			continue
		}
		ranked = append(ranked, entry{token, pos})
	}
	sort.Slice(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].pos.Quantity) > math.Abs(ranked[j].pos.Quantity)
	})
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}

	for _, en := range ranked {
		e.mu.RLock()
		aq := e.activeQuotes[en.token]
		e.mu.RUnlock()

		args := []any{
			"market", marketLabel(e.metaFor(en.token), en.token),
			"position", en.pos.Quantity,
			"avg_cost", en.pos.AvgCost,
			"realized_pnl", en.pos.RealizedPnL,
		}
		if aq != nil {
			args = append(args, "bid", aq.quote.BidPrice, "ask", aq.quote.AskPrice)
		}
		e.logger.Info("position summary", args...)
	}
}

// shutdown cancels all resting orders and takes a final snapshot before the
// loop exits.
func (e *Engine) shutdown() {
	cancelled := e.d.Orders.CancelAll()
	for _, order := range cancelled {
		e.logCancel(order, model.CancelShutdown)
	}
	e.mu.Lock()
	e.activeQuotes = make(map[model.TokenID]*activeQuote)
	e.mu.Unlock()

	e.snapshotPositions()
	e.logger.Info("final snapshot written", "orders_cancelled", len(cancelled))
}

// bookFor returns the token's book mirror, creating it on first sight.
func (e *Engine) bookFor(token model.TokenID) *book.Book {
	e.mu.Lock()
	defer e.mu.Unlock()

	bk, ok := e.books[token]
	if !ok {
		bk = book.New(token)
		e.books[token] = bk
	}
	return bk
}

func (e *Engine) metaFor(token model.TokenID) model.MarketMetadata {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.meta[token]
}

func (e *Engine) registered(token model.TokenID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.meta[token]
	return ok
}

func marketLabel(meta model.MarketMetadata, token model.TokenID) string {
	if name := meta.Name(); name != "" {
		return name
	}
	return string(token)
}

func spreadBps(bk *book.Book) float64 {
	mid := bk.Mid()
	if mid <= 0 {
		return 0
	}
	return bk.Spread() / mid * 10000
}

// -----------------------------------------------------------------------------
// Status accessors (read-only, callable from the status goroutine)
// -----------------------------------------------------------------------------

// PositionCount returns the number of non-flat positions.
func (e *Engine) PositionCount() int { return e.d.Ledger.PositionCount() }

// ActiveOrderCount returns the number of resting orders.
func (e *Engine) ActiveOrderCount() int { return e.d.Orders.ActiveOrderCount() }

// TotalPnL returns the realized PnL summed across tokens.
func (e *Engine) TotalPnL() float64 { return e.d.Ledger.TotalRealizedPnL() }

// UnrealizedPnL marks open positions against the current book mids.
func (e *Engine) UnrealizedPnL() float64 {
	e.mu.RLock()
	mids := make(map[model.TokenID]float64, len(e.books))
	for token, bk := range e.books {
		if mid := bk.Mid(); mid > 0 {
			mids[token] = mid
		}
	}
	e.mu.RUnlock()
	return e.d.Ledger.UnrealizedPnL(mids)
}

// QueueLen returns the number of undispatched events.
func (e *Engine) QueueLen() int { return e.d.Queue.Len() }

// ActiveMarketCount returns the number of registered tokens.
func (e *Engine) ActiveMarketCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.meta)
}

// TotalInventory sums absolute open quantity across tokens.
func (e *Engine) TotalInventory() float64 { return e.d.Ledger.TotalInventory() }

// TotalFills returns the number of fills dispatched this session.
func (e *Engine) TotalFills() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalFills
}
