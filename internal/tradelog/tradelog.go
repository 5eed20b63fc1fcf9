package tradelog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rickgao/polymarket-mm/internal/ledger"
	"github.com/rickgao/polymarket-mm/internal/model"
)

const timeFormat = "2006-01-02T15:04:05Z"

// Logger writes append-only CSV streams into a per-session directory. All
// writes are mutex-serialized and flushed per call.
type Logger struct {
	mu     sync.Mutex
	logDir string
	logger *slog.Logger

	sessionID    string
	sessionDir   string
	eventName    string
	sessionStart time.Time

	orders       *os.File
	fills        *os.File
	positions    *os.File
	priceUpdates *os.File

	summary *SummaryLogger
}

// NewLogger creates a trading logger rooted at logDir. Sessions live in
// subdirectories named session_<YYYYMMDD_HHMMSS>.
func NewLogger(logDir string, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logDir: logDir, logger: logger}
}

// StartSession creates the session directory and opens the CSV files.
func (l *Logger) StartSession(eventName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.orders != nil {
		return fmt.Errorf("tradelog: session %s already open", l.sessionID)
	}

	l.eventName = eventName
	l.sessionStart = time.Now()
	l.sessionID = "session_" + l.sessionStart.Format("20060102_150405")
	l.sessionDir = filepath.Join(l.logDir, l.sessionID)

	if err := os.MkdirAll(l.sessionDir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	var err error
	l.orders, err = openCSV(l.sessionDir, "orders.csv",
		"timestamp,market_id,order_id,token_id,side,price,size,status,cancel_reason")
	if err != nil {
		return err
	}
	l.fills, err = openCSV(l.sessionDir, "fills.csv",
		"timestamp,market_id,order_id,token_id,side,fill_price,fill_size,pnl")
	if err != nil {
		return err
	}
	l.positions, err = openCSV(l.sessionDir, "positions.csv",
		"timestamp,market_id,token_id,position,avg_cost,opened_at,last_updated,entry_side,num_fills,total_cost")
	if err != nil {
		return err
	}
	l.priceUpdates, err = openCSV(l.sessionDir, "price_updates.csv",
		"timestamp,market_name,market_id,condition_id,token_id,mid_price,price_change_pct,price_change_abs,"+
			"best_bid,best_ask,spread,spread_bps,bid_volume_5levels,ask_volume_5levels,"+
			"total_volume,volume_imbalance,bid_levels_count,ask_levels_count,"+
			"our_inventory,time_to_event_hours,seconds_since_last_update")
	if err != nil {
		return err
	}

	l.summary, err = NewSummaryLogger(l.sessionDir, l.logger)
	if err != nil {
		return err
	}

	l.logger.Info("trading session started", "session_id", l.sessionID, "event", eventName)
	return nil
}

// EndSession flushes and closes the session files. Reopening is not
// supported; start a new session instead.
func (l *Logger) EndSession() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.orders == nil {
		return
	}

	for _, f := range []*os.File{l.orders, l.fills, l.positions, l.priceUpdates} {
		f.Close()
	}
	l.orders, l.fills, l.positions, l.priceUpdates = nil, nil, nil, nil

	if l.summary != nil {
		l.summary.Close()
		l.summary = nil
	}

	duration := time.Since(l.sessionStart)
	l.logger.Info("trading session ended",
		"session_id", l.sessionID,
		"duration_s", int(duration.Seconds()),
		"dir", l.sessionDir,
	)
}

// SessionID returns the active session identifier, empty when closed.
func (l *Logger) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// SessionDir returns the active session directory.
func (l *Logger) SessionDir() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionDir
}

// Summary returns the session's market summary logger, nil when closed.
func (l *Logger) Summary() *SummaryLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summary
}

// LogOrderPlaced appends an OPEN row to orders.csv.
func (l *Logger) LogOrderPlaced(order model.Order, marketID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.orders == nil {
		return
	}
	writeRow(l.orders, "%s,%s,%s,%s,%s,%g,%g,OPEN,\n",
		timestamp(), marketID, order.OrderID, order.TokenID, order.Side.String(), order.Price, order.Size)
}

// LogOrderCancelled appends a CANCELLED row to orders.csv.
func (l *Logger) LogOrderCancelled(order model.Order, marketID, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.orders == nil {
		return
	}
	writeRow(l.orders, "%s,%s,%s,%s,%s,%g,%g,CANCELLED,%s\n",
		timestamp(), marketID, order.OrderID, order.TokenID, order.Side.String(), order.Price, order.Size, reason)
}

// LogFill appends a row to fills.csv.
func (l *Logger) LogFill(marketID, orderID string, token model.TokenID, side model.Side, fillPrice, fillSize, pnl float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fills == nil {
		return
	}
	writeRow(l.fills, "%s,%s,%s,%s,%s,%g,%g,%g\n",
		timestamp(), marketID, orderID, token, side.String(), fillPrice, fillSize, pnl)
}

// LogPosition appends a row to positions.csv.
func (l *Logger) LogPosition(marketID string, token model.TokenID, pos ledger.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.positions == nil {
		return
	}
	writeRow(l.positions, "%s,%s,%s,%g,%g,%s,%s,%s,%d,%g\n",
		timestamp(), marketID, token,
		pos.Quantity, pos.AvgCost,
		formatTime(pos.OpenedAt), formatTime(pos.LastUpdated),
		pos.EntrySide.String(), pos.NumFills, pos.TotalCost)
}

// PriceUpdate is one row of price_updates.csv.
type PriceUpdate struct {
	MarketName  string
	MarketID    string
	ConditionID string
	TokenID     model.TokenID

	MidPrice       float64
	PriceChangePct float64
	PriceChangeAbs float64
	BestBid        float64
	BestAsk        float64
	Spread         float64
	SpreadBps      float64

	BidVolume5      float64
	AskVolume5      float64
	TotalVolume     float64
	VolumeImbalance float64
	BidLevels       int
	AskLevels       int

	OurInventory     float64
	TimeToEventHours float64
	SecsSinceUpdate  float64
}

// LogPriceUpdate appends a row to price_updates.csv.
func (l *Logger) LogPriceUpdate(u PriceUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.priceUpdates == nil {
		return
	}
	writeRow(l.priceUpdates, "%s,%s,%s,%s,%s,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g,%d,%d,%g,%g,%g\n",
		timestamp(), csvField(u.MarketName), u.MarketID, u.ConditionID, u.TokenID,
		u.MidPrice, u.PriceChangePct, u.PriceChangeAbs,
		u.BestBid, u.BestAsk, u.Spread, u.SpreadBps,
		u.BidVolume5, u.AskVolume5, u.TotalVolume, u.VolumeImbalance,
		u.BidLevels, u.AskLevels,
		u.OurInventory, u.TimeToEventHours, u.SecsSinceUpdate)
}

func openCSV(dir, name, header string) (*os.File, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := fmt.Fprintln(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write %s header: %w", name, err)
	}
	return f, nil
}

func writeRow(f *os.File, format string, args ...any) {
	fmt.Fprintf(f, format, args...)
	f.Sync()
}

func timestamp() string {
	return time.Now().UTC().Format(timeFormat)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

// csvField strips commas that would break the fixed-column row format.
func csvField(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == ',' || r == '\n' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}
