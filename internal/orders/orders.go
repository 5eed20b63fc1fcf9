package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/polymarket-mm/internal/book"
	"github.com/rickgao/polymarket-mm/internal/bus"
	"github.com/rickgao/polymarket-mm/internal/model"
)

// ErrUnknownOrder is returned when cancelling an order that is not resting.
var ErrUnknownOrder = errors.New("orders: unknown order")

// Venue routes live orders to the exchange. Implementations handle signing
// and transport; the paper engine never touches one.
type Venue interface {
	PlaceOrder(order model.Order) error
	CancelOrder(orderID string) error
}

// Manager tracks resting orders and, in paper mode, simulates fills against
// the live book: a resting buy fills when the best ask trades through its
// limit, a resting sell when the best bid does.
type Manager struct {
	mu     sync.Mutex
	mode   model.TradingMode
	queue  *bus.Queue
	venue  Venue
	logger *slog.Logger

	active map[string]*model.Order
	books  map[model.TokenID]*book.Book

	totalPlaced    int64
	totalFilled    int64
	totalCancelled int64
}

// New creates a manager in the given mode. venue may be nil in paper mode.
// A nil logger falls back to slog.Default().
func New(mode model.TradingMode, queue *bus.Queue, venue Venue, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		mode:   mode,
		queue:  queue,
		venue:  venue,
		logger: logger,
		active: make(map[string]*model.Order),
		books:  make(map[model.TokenID]*book.Book),
	}
}

// PlaceOrder registers a new resting order and returns its ID. In live mode
// the order is also forwarded to the venue.
func (m *Manager) PlaceOrder(token model.TokenID, side model.Side, price, size float64) (string, error) {
	m.mu.Lock()

	order := &model.Order{
		OrderID:   "ord-" + uuid.NewString(),
		TokenID:   token,
		Side:      side,
		Price:     price,
		Size:      size,
		Status:    model.OrderOpen,
		CreatedAt: time.Now(),
	}
	m.active[order.OrderID] = order
	m.totalPlaced++

	m.logger.Info("order placed",
		"order_id", order.OrderID,
		"token", token,
		"side", side.String(),
		"price", price,
		"size", size,
		"mode", modeLabel(m.mode),
	)
	m.mu.Unlock()

	if m.mode == model.Live && m.venue != nil {
		if err := m.venue.PlaceOrder(*order); err != nil {
			m.mu.Lock()
			delete(m.active, order.OrderID)
			m.mu.Unlock()
			return "", fmt.Errorf("place order on venue: %w", err)
		}
	}
	return order.OrderID, nil
}

// CancelOrder marks an order cancelled and removes it from the resting set.
// The cancelled order is returned so callers can log it.
func (m *Manager) CancelOrder(orderID string) (model.Order, error) {
	m.mu.Lock()
	order, ok := m.active[orderID]
	if !ok {
		m.mu.Unlock()
		return model.Order{}, ErrUnknownOrder
	}
	order.Status = model.OrderCancelled
	delete(m.active, orderID)
	m.totalCancelled++
	snapshot := *order
	m.mu.Unlock()

	if m.mode == model.Live && m.venue != nil {
		if err := m.venue.CancelOrder(orderID); err != nil {
			return snapshot, fmt.Errorf("cancel order on venue: %w", err)
		}
	}
	return snapshot, nil
}

// CancelToken cancels all resting orders on a token, returning the cancelled
// orders.
func (m *Manager) CancelToken(token model.TokenID) []model.Order {
	m.mu.Lock()
	var ids []string
	for id, order := range m.active {
		if order.TokenID == token {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	out := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		if order, err := m.CancelOrder(id); err == nil {
			out = append(out, order)
		}
	}
	return out
}

// CancelAll cancels every resting order, returning the cancelled orders.
func (m *Manager) CancelAll() []model.Order {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	out := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		if order, err := m.CancelOrder(id); err == nil {
			out = append(out, order)
		}
	}
	return out
}

// OnBook stores the latest book for a token and, in paper mode, checks
// resting orders against it for simulated fills.
func (m *Manager) OnBook(token model.TokenID, bk *book.Book) {
	m.mu.Lock()
	m.books[token] = bk
	m.mu.Unlock()

	if m.mode == model.Paper {
		m.checkForFills(token, bk)
	}
}

// checkForFills simulates executions: fills happen at the order's limit
// price for the full remaining size.
func (m *Manager) checkForFills(token model.TokenID, bk *book.Book) {
	bestBid := bk.BestBid()
	bestAsk := bk.BestAsk()

	m.mu.Lock()
	var filled []*model.Order
	for _, order := range m.active {
		if order.TokenID != token || order.Status != model.OrderOpen {
			continue
		}
		switch order.Side {
		case model.Buy:
			if bestAsk > 0 && bestAsk <= order.Price {
				filled = append(filled, order)
			}
		case model.Sell:
			if bestBid > 0 && bestBid >= order.Price {
				filled = append(filled, order)
			}
		}
	}
	for _, order := range filled {
		order.FilledSize = order.Size
		order.Status = model.OrderFilled
		delete(m.active, order.OrderID)
		m.totalFilled++
	}
	m.mu.Unlock()

	for _, order := range filled {
		m.logger.Info("paper fill",
			"order_id", order.OrderID,
			"token", order.TokenID,
			"side", order.Side.String(),
			"price", order.Price,
			"size", order.Size,
		)
		if err := m.queue.Push(model.NewOrderFill(order.TokenID, order.OrderID, order.Side, order.Price, order.Size)); err != nil {
			m.logger.Error("failed to enqueue fill", "order_id", order.OrderID, "error", err)
		}
	}
}

// ApplyVenueFill records a fill reported by the live venue and forwards it
// onto the queue.
func (m *Manager) ApplyVenueFill(orderID string, price, size float64) error {
	m.mu.Lock()
	order, ok := m.active[orderID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownOrder
	}
	order.FilledSize += size
	if order.FilledSize >= order.Size {
		order.Status = model.OrderFilled
		delete(m.active, orderID)
		m.totalFilled++
	}
	snapshot := *order
	m.mu.Unlock()

	return m.queue.Push(model.NewOrderFill(snapshot.TokenID, orderID, snapshot.Side, price, size))
}

// ActiveOrders returns a copy of the resting orders for a token. An empty
// token returns all resting orders.
func (m *Manager) ActiveOrders(token model.TokenID) []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Order, 0, len(m.active))
	for _, order := range m.active {
		if token == "" || order.TokenID == token {
			out = append(out, *order)
		}
	}
	return out
}

// ActiveOrderCount returns the number of resting orders.
func (m *Manager) ActiveOrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Stats returns order lifecycle counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Active:         len(m.active),
		TotalPlaced:    m.totalPlaced,
		TotalFilled:    m.totalFilled,
		TotalCancelled: m.totalCancelled,
	}
}

// Stats contains order manager counters.
type Stats struct {
	Active         int
	TotalPlaced    int64
	TotalFilled    int64
	TotalCancelled int64
}

func modeLabel(mode model.TradingMode) string {
	if mode == model.Live {
		return "live"
	}
	return "paper"
}
