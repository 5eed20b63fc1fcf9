package orders

import (
	"log/slog"

	"github.com/rickgao/polymarket-mm/internal/model"
)

// LoggingVenue is a stand-in venue that records intent without routing
// anywhere. Useful for wiring live mode before real connectivity exists.
type LoggingVenue struct {
	logger *slog.Logger
}

// NewLoggingVenue returns a venue that only logs.
func NewLoggingVenue(logger *slog.Logger) *LoggingVenue {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingVenue{logger: logger}
}

// PlaceOrder logs the order and reports success.
func (v *LoggingVenue) PlaceOrder(order model.Order) error {
	v.logger.Info("live order placement requested",
		"order_id", order.OrderID,
		"token", order.TokenID,
		"side", order.Side.String(),
		"price", order.Price,
		"size", order.Size,
	)
	return nil
}

// CancelOrder logs the cancellation and reports success.
func (v *LoggingVenue) CancelOrder(orderID string) error {
	v.logger.Info("live order cancellation requested", "order_id", orderID)
	return nil
}
