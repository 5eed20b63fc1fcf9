package engine

import (
	"time"

	"github.com/rickgao/polymarket-mm/internal/book"
	"github.com/rickgao/polymarket-mm/internal/model"
	"github.com/rickgao/polymarket-mm/internal/tradelog"
)

const (
	fillMarkShort = 30 * time.Second
	fillMarkLong  = 60 * time.Second
	fillMarkStale = 5 * time.Minute
	adverseMark   = 0.01
)

// fillMetrics tracks one fill until its post-fill marks are captured. Records
// live in pendingFills and are swept on the maintenance cycle.
type fillMetrics struct {
	token     model.TokenID
	orderID   string
	side      model.Side
	fillPrice float64
	fillSize  float64
	midAtFill float64
	spreadBps float64
	imbalance float64
	fillTime  time.Time

	mid30    float64
	mid30Set bool
}

// sweepFillMetrics captures the book mid 30s and 60s after each fill and logs
// fills whose price drifted against us by more than a cent. Completed and
// stale records are dropped.
func (e *Engine) sweepFillMetrics(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.pendingFills[:0]
	for _, fm := range e.pendingFills {
		age := now.Sub(fm.fillTime)
		bk := e.books[fm.token]

		var mid float64
		if bk != nil {
			mid = bk.Mid()
		}

		if !fm.mid30Set && age >= fillMarkShort && mid > 0 {
			fm.mid30 = mid
			fm.mid30Set = true
		}

		switch {
		case age >= fillMarkLong && mid > 0:
			e.reportFillQuality(fm, mid)
		case age >= fillMarkStale:
			// Book went quiet before the marks could be taken.
		default:
			kept = append(kept, fm)
		}
	}
	e.pendingFills = kept
}

// reportFillQuality logs the 60s outcome of a fill. A move against the fill
// direction beyond a cent is flagged as adverse.
func (e *Engine) reportFillQuality(fm *fillMetrics, mid60 float64) {
	dir := 1.0
	if fm.side == model.Sell {
		dir = -1.0
	}
	move := (mid60 - fm.midAtFill) * dir

	args := []any{
		"order_id", fm.orderID,
		"token", fm.token,
		"side", fm.side.String(),
		"fill_price", fm.fillPrice,
		"mid_at_fill", fm.midAtFill,
		"mid_30s", fm.mid30,
		"mid_60s", mid60,
		"move", move,
		"spread_bps_at_fill", fm.spreadBps,
		"imbalance_at_fill", fm.imbalance,
	}
	if move < -adverseMark {
		e.logger.Warn("adverse move after fill", args...)
		return
	}
	e.logger.Debug("fill quality", args...)
}

// tracePriceUpdate writes one price_updates.csv row for the book change and
// feeds the session's market summary state. No-op without a trade logger.
func (e *Engine) tracePriceUpdate(token model.TokenID, bk *book.Book) {
	if e.d.TradeLog == nil {
		return
	}
	mid := bk.Mid()
	if mid <= 0 {
		return
	}

	meta := e.metaFor(token)
	now := time.Now()

	e.mu.Lock()
	tr, ok := e.traces[token]
	if !ok {
		tr = &tokenTrace{}
		e.traces[token] = tr
	}
	lastMid, lastUpdate := tr.lastMid, tr.lastUpdate
	tr.lastMid = mid
	tr.lastUpdate = now
	e.mu.Unlock()

	var changePct, changeAbs, sinceLast float64
	if lastMid > 0 {
		changeAbs = mid - lastMid
		changePct = changeAbs / lastMid * 100
	}
	if !lastUpdate.IsZero() {
		sinceLast = now.Sub(lastUpdate).Seconds()
	}

	hoursToEvent := -1.0
	if !meta.CloseTime.IsZero() {
		hoursToEvent = meta.CloseTime.Sub(now).Hours()
	}

	bidVol := bk.BidVolume(book.DefaultDepth)
	askVol := bk.AskVolume(book.DefaultDepth)

	e.d.TradeLog.LogPriceUpdate(tradelog.PriceUpdate{
		MarketName:  marketLabel(meta, token),
		MarketID:    meta.MarketID,
		ConditionID: meta.ConditionID,
		TokenID:     token,

		MidPrice:       mid,
		PriceChangePct: changePct,
		PriceChangeAbs: changeAbs,
		BestBid:        bk.BestBid(),
		BestAsk:        bk.BestAsk(),
		Spread:         bk.Spread(),
		SpreadBps:      spreadBps(bk),

		BidVolume5:      bidVol,
		AskVolume5:      askVol,
		TotalVolume:     bidVol + askVol,
		VolumeImbalance: bk.Imbalance(),
		BidLevels:       bk.BidLevels(),
		AskLevels:       bk.AskLevels(),

		OurInventory:     e.d.Quoter.Inventory(token),
		TimeToEventHours: hoursToEvent,
		SecsSinceUpdate:  sinceLast,
	})

	if sl := e.d.TradeLog.Summary(); sl != nil {
		sl.UpdateMarket(marketLabel(meta, token), meta.MarketID, meta.ConditionID, token,
			mid, spreadBps(bk), bk.BestBid(), bk.BestAsk(), bidVol, askVol)
		if sl.ShouldLog() {
			sl.LogSummaries()
		}
	}
}
