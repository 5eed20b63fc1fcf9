package book

import (
	"sort"

	"github.com/rickgao/polymarket-mm/internal/model"
)

// DefaultDepth is the number of levels summed by the volume accessors.
const DefaultDepth = 5

// Book is an L2 mirror of one token's order book. It is not safe for
// concurrent use; the engine goroutine owns each book.
type Book struct {
	token model.TokenID
	bids  map[float64]float64 // price -> size
	asks  map[float64]float64
}

// New returns an empty book for the given token.
func New(token model.TokenID) *Book {
	return &Book{
		token: token,
		bids:  make(map[float64]float64),
		asks:  make(map[float64]float64),
	}
}

// Token returns the token this book mirrors.
func (b *Book) Token() model.TokenID { return b.token }

// ApplySnapshot replaces both sides with the given levels. Levels with
// non-positive size are dropped.
func (b *Book) ApplySnapshot(bids, asks []model.PriceLevel) {
	b.bids = make(map[float64]float64, len(bids))
	b.asks = make(map[float64]float64, len(asks))
	for _, lvl := range bids {
		if lvl.Size > 0 {
			b.bids[lvl.Price] = lvl.Size
		}
	}
	for _, lvl := range asks {
		if lvl.Size > 0 {
			b.asks[lvl.Price] = lvl.Size
		}
	}
}

// ApplyLevel sets a single price level. Size 0 removes the level.
func (b *Book) ApplyLevel(side model.Side, price, size float64) {
	m := b.bids
	if side == model.Sell {
		m = b.asks
	}
	if size <= 0 {
		delete(m, price)
		return
	}
	m[price] = size
}

// BestBid returns the highest bid price, or 0 when the bid side is empty.
func (b *Book) BestBid() float64 {
	best := 0.0
	for px := range b.bids {
		if px > best {
			best = px
		}
	}
	return best
}

// BestAsk returns the lowest ask price, or 0 when the ask side is empty.
func (b *Book) BestAsk() float64 {
	best := 0.0
	for px := range b.asks {
		if best == 0 || px < best {
			best = px
		}
	}
	return best
}

// Mid returns the midpoint of the best bid and ask, or 0 without a valid BBO.
func (b *Book) Mid() float64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread returns ask minus bid, or 0 without a valid BBO.
func (b *Book) Spread() float64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return ask - bid
}

// BidVolume sums resting size across the top levels of the bid side.
func (b *Book) BidVolume(levels int) float64 {
	return sideVolume(b.bids, levels, true)
}

// AskVolume sums resting size across the top levels of the ask side.
func (b *Book) AskVolume(levels int) float64 {
	return sideVolume(b.asks, levels, false)
}

// Imbalance returns (bidVol-askVol)/(bidVol+askVol) over the default depth,
// or 0 when both sides are empty.
func (b *Book) Imbalance() float64 {
	bv := b.BidVolume(DefaultDepth)
	av := b.AskVolume(DefaultDepth)
	total := bv + av
	if total <= 0 {
		return 0
	}
	return (bv - av) / total
}

// BidLevels returns the number of populated bid levels.
func (b *Book) BidLevels() int { return len(b.bids) }

// AskLevels returns the number of populated ask levels.
func (b *Book) AskLevels() int { return len(b.asks) }

// Bids returns the bid side sorted best-first.
func (b *Book) Bids() []model.PriceLevel {
	return sortedLevels(b.bids, true)
}

// Asks returns the ask side sorted best-first.
func (b *Book) Asks() []model.PriceLevel {
	return sortedLevels(b.asks, false)
}

func sideVolume(m map[float64]float64, levels int, descending bool) float64 {
	if levels <= 0 {
		levels = DefaultDepth
	}
	sorted := sortedLevels(m, descending)
	if len(sorted) > levels {
		sorted = sorted[:levels]
	}
	total := 0.0
	for _, lvl := range sorted {
		total += lvl.Size
	}
	return total
}

func sortedLevels(m map[float64]float64, descending bool) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(m))
	for px, sz := range m {
		out = append(out, model.PriceLevel{Price: px, Size: sz})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}
