package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/polymarket-mm/internal/bus"
	"github.com/rickgao/polymarket-mm/internal/model"
)

// Client maintains the market-channel connection and feeds the event queue.
// It reconnects with exponential backoff and resubscribes the current asset
// set after every reconnect.
type Client struct {
	cfg    Config
	queue  *bus.Queue
	logger *slog.Logger

	writeMu sync.Mutex

	mu         sync.RWMutex
	conn       *websocket.Conn
	assets     []string
	connected  bool
	closed     bool
	lastPongAt time.Time

	reconnects     int
	messagesTotal  int
	decodeFailures int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a market data client that pushes decoded events onto queue.
func New(cfg Config, queue *bus.Queue, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		queue:  queue,
		logger: logger,
	}
}

// Subscribe sets the asset IDs to stream. When connected, the subscription
// is sent immediately; it is also replayed after every reconnect.
func (c *Client) Subscribe(assetIDs []string) error {
	c.mu.Lock()
	c.assets = append([]string(nil), assetIDs...)
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.sendSubscribe(assetIDs)
}

// Start connects and launches the supervisor loop. The initial connection
// failure is returned; later disconnects reconnect with backoff.
func (c *Client) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if err := c.connect(runCtx); err != nil {
		cancel()
		return err
	}

	c.wg.Add(1)
	go c.supervise(runCtx)

	c.logger.Info("market data feed started", "url", c.cfg.URL)
	return nil
}

// Stop closes the connection and waits for the loops to exit, bounded by ctx.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.logger.Info("market data feed stopped")
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Stats returns feed counters.
func (c *Client) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Connected:      c.connected,
		Reconnects:     c.reconnects,
		MessagesTotal:  c.messagesTotal,
		DecodeFailures: c.decodeFailures,
	}
}

// connect dials the endpoint, replays the subscription, and starts the read
// and heartbeat loops for this connection.
func (c *Client) connect(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrAlreadyClosed
	}
	c.mu.RUnlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPongAt = time.Now()
	assets := append([]string(nil), c.assets...)
	c.mu.Unlock()

	if len(assets) > 0 {
		if err := c.sendSubscribe(assets); err != nil {
			conn.Close()
			return err
		}
	}

	connDone := make(chan struct{})
	c.wg.Add(2)
	go c.readLoop(conn, connDone)
	go c.heartbeatLoop(ctx, conn, connDone)

	c.logger.Debug("websocket connected", "url", c.cfg.URL, "assets", len(assets))
	return nil
}

// supervise reconnects with exponential backoff whenever the connection
// drops.
func (c *Client) supervise(ctx context.Context) {
	defer c.wg.Done()

	backoff := c.cfg.ReconnectBaseWait
	for {
		// Wait until the current connection dies.
		for c.IsConnected() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if err := c.connect(ctx); err != nil {
			c.logger.Warn("reconnect failed", "error", err, "next_wait", backoff)
			backoff *= 2
			if backoff > c.cfg.ReconnectMaxWait {
				backoff = c.cfg.ReconnectMaxWait
			}
			continue
		}

		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		backoff = c.cfg.ReconnectBaseWait
		c.logger.Info("feed reconnected", "reconnects", c.reconnects)
	}
}

func (c *Client) readLoop(conn *websocket.Conn, connDone chan struct{}) {
	defer c.wg.Done()
	defer close(connDone)
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if !closed {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		c.mu.Lock()
		c.messagesTotal++
		c.mu.Unlock()

		c.handleMessage(data)
	}
}

// heartbeatLoop sends keepalive pings and kills connections that go silent.
func (c *Client) heartbeatLoop(ctx context.Context, conn *websocket.Conn, connDone chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-connDone:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("ping failed", "error", err)
			}

			c.mu.RLock()
			lastPong := c.lastPongAt
			c.mu.RUnlock()
			if time.Since(lastPong) > c.cfg.PingTimeout {
				c.logger.Warn("connection stale, forcing reconnect", "last_pong", lastPong)
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) sendSubscribe(assetIDs []string) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(subscribeCommand{AssetIDs: assetIDs, Type: "market"})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// handleMessage decodes one frame. Frames carry either a single object or an
// array of objects.
func (c *Client) handleMessage(data []byte) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "PONG" {
		return
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			c.noteDecodeFailure(err, data)
			return
		}
		for _, item := range items {
			c.handleObject(item)
		}
		return
	}
	c.handleObject(data)
}

func (c *Client) handleObject(data []byte) {
	var head struct {
		EventType string `json:"event_type"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		c.noteDecodeFailure(err, data)
		return
	}
	kind := head.EventType
	if kind == "" {
		kind = head.Type
	}

	switch kind {
	case "book", "orderbook":
		c.handleBook(data)
	case "price_change", "price":
		c.handlePriceChange(data)
	case "tick_size_change", "last_trade_price", "subscribed":
		// Not used by the strategy.
	default:
		c.logger.Debug("unhandled feed message", "kind", kind)
	}
}

func (c *Client) handleBook(data []byte) {
	var wire wireBook
	if err := json.Unmarshal(data, &wire); err != nil {
		c.noteDecodeFailure(err, data)
		return
	}
	if wire.AssetID == "" {
		return
	}

	bids := wire.Bids
	if len(bids) == 0 && len(wire.Buys) > 0 {
		bids = wire.Buys
	}
	asks := wire.Asks
	if len(asks) == 0 && len(wire.Sells) > 0 {
		asks = wire.Sells
	}

	ev := model.NewBookSnapshot(wire.AssetID, toLevels(bids), toLevels(asks))
	if err := c.queue.Push(ev); err != nil {
		c.logger.Warn("book snapshot dropped", "token", wire.AssetID, "error", err)
	}
}

func (c *Client) handlePriceChange(data []byte) {
	var wire wirePriceChangeEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		c.noteDecodeFailure(err, data)
		return
	}

	changes := wire.PriceChanges
	if len(changes) == 0 && wire.Price != "" {
		changes = []wirePriceChange{{
			AssetID: wire.AssetID,
			Price:   wire.Price,
			Size:    wire.Size,
			Side:    wire.Side,
		}}
	}

	for _, ch := range changes {
		token := ch.AssetID
		if token == "" {
			token = wire.AssetID
		}
		if token == "" {
			continue
		}
		price, ok1 := parseFloat(ch.Price)
		size, ok2 := parseFloat(ch.Size)
		if !ok1 || !ok2 {
			c.mu.Lock()
			c.decodeFailures++
			c.mu.Unlock()
			continue
		}
		side := model.Buy
		if strings.EqualFold(ch.Side, "SELL") {
			side = model.Sell
		}
		if err := c.queue.Push(model.NewPriceLevelUpdate(token, side, price, size)); err != nil {
			c.logger.Warn("level update dropped", "token", token, "error", err)
			return
		}
	}
}

func (c *Client) noteDecodeFailure(err error, data []byte) {
	c.mu.Lock()
	c.decodeFailures++
	c.mu.Unlock()

	sample := string(data)
	if len(sample) > 200 {
		sample = sample[:200]
	}
	c.logger.Warn("feed message decode failed", "error", err, "sample", sample)
}

func toLevels(in []wireLevel) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(in))
	for _, lv := range in {
		price, ok1 := parseFloat(lv.Price)
		size, ok2 := parseFloat(lv.Size)
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, model.PriceLevel{Price: price, Size: size})
	}
	return out
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
