package engine

import (
	"math"
	"time"

	"github.com/rickgao/polymarket-mm/internal/model"
)

// requote regenerates the token's quote and reconciles resting orders with
// it. Unregistered tokens are observation-only and never quoted. When force
// is false, orders already within quoteEpsilon of the new quote are left
// resting.
func (e *Engine) requote(token model.TokenID, reason model.CancelReason, force bool) {
	if !e.registered(token) {
		return
	}
	bk := e.bookFor(token)
	if bk.Mid() <= 0 {
		return
	}

	// First quote after a restart seeds the quoter from the restored ledger.
	// Registration happens after the state load, so this cannot run eagerly.
	if !e.d.Quoter.Restored(token) {
		if pos, ok := e.d.Ledger.Position(token); ok {
			e.d.Quoter.RestoreState(token, pos.Quantity, pos.AvgCost, pos.RealizedPnL)
			e.logger.Info("quoter state restored from ledger",
				"token", token,
				"inventory", pos.Quantity,
				"avg_cost", pos.AvgCost,
			)
		} else {
			e.d.Quoter.RestoreState(token, 0, 0, 0)
		}
	}

	mult := e.d.Adverse.QuoteMultiplier(token, e.d.Quoter.Inventory(token))
	quote, ok := e.d.Quoter.GenerateQuote(token, bk, mult, time.Now())
	if !ok {
		return
	}

	if !force && e.matchesResting(token, quote) {
		e.mu.Lock()
		if aq := e.activeQuotes[token]; aq != nil {
			aq.quote = quote
		}
		e.mu.Unlock()
		return
	}

	cancelled := e.d.Orders.CancelToken(token)
	for _, order := range cancelled {
		e.logCancel(order, reason)
	}

	e.placeSide(token, model.Buy, quote.BidPrice, quote.BidSize)
	e.placeSide(token, model.Sell, quote.AskPrice, quote.AskSize)

	e.mu.Lock()
	e.activeQuotes[token] = &activeQuote{quote: quote, placedAt: time.Now()}
	e.mu.Unlock()

	e.logger.Debug("quotes revised",
		"token", token,
		"bid", quote.BidPrice,
		"ask", quote.AskPrice,
		"size", quote.BidSize,
		"ttl_s", quote.TTL.Seconds(),
		"spread_mult", mult,
		"reason", string(reason),
	)
}

// matchesResting reports whether the resting bid and ask already sit at the
// quote's prices and sizes within quoteEpsilon.
func (e *Engine) matchesResting(token model.TokenID, quote model.Quote) bool {
	var bidOK, askOK bool
	for _, order := range e.d.Orders.ActiveOrders(token) {
		switch order.Side {
		case model.Buy:
			if math.Abs(order.Price-quote.BidPrice) < quoteEpsilon &&
				math.Abs(order.Size-quote.BidSize) < quoteEpsilon {
				bidOK = true
			}
		case model.Sell:
			if math.Abs(order.Price-quote.AskPrice) < quoteEpsilon &&
				math.Abs(order.Size-quote.AskSize) < quoteEpsilon {
				askOK = true
			}
		}
	}
	return bidOK && askOK
}

func (e *Engine) placeSide(token model.TokenID, side model.Side, price, size float64) {
	orderID, err := e.d.Orders.PlaceOrder(token, side, price, size)
	if err != nil {
		e.logger.Error("order placement failed",
			"token", token,
			"side", side.String(),
			"price", price,
			"error", err,
		)
		return
	}
	if e.d.Counters != nil {
		e.d.Counters.IncOrderPlaced()
	}
	if e.d.TradeLog != nil {
		e.d.TradeLog.LogOrderPlaced(model.Order{
			OrderID: orderID,
			TokenID: token,
			Side:    side,
			Price:   price,
			Size:    size,
		}, e.metaFor(token).MarketID)
	}
}

func (e *Engine) logCancel(order model.Order, reason model.CancelReason) {
	if e.d.Counters != nil {
		e.d.Counters.IncOrderCancelled()
	}
	if e.d.TradeLog != nil {
		e.d.TradeLog.LogOrderCancelled(order, e.metaFor(order.TokenID).MarketID, string(reason))
	}
}
