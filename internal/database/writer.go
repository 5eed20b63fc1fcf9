package database

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/polymarket-mm/internal/ledger"
	"github.com/rickgao/polymarket-mm/internal/model"
)

// WriterConfig sizes the batching behavior.
type WriterConfig struct {
	SessionID     string
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultWriterConfig returns the standard batching parameters.
func DefaultWriterConfig(sessionID string) WriterConfig {
	return WriterConfig{
		SessionID:     sessionID,
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

type fillRow struct {
	OrderID     string
	TokenID     string
	Side        string
	Price       float64
	Size        float64
	RealizedPnL float64
	RecordedAt  time.Time
}

type positionRow struct {
	TokenID     string
	Quantity    float64
	AvgCost     float64
	RealizedPnL float64
	NumFills    int
	SnapshotAt  time.Time
}

// Writer batch-inserts fills and position snapshots. It satisfies the
// engine's recorder dependency. Record calls only append to the batch,
// except the call that brings a batch to BatchSize, which flushes it
// synchronously.
type Writer struct {
	cfg    WriterConfig
	db     *pgxpool.Pool
	logger *slog.Logger

	batchMu     sync.Mutex
	fills       []fillRow
	positions   []positionRow
	metrics     WriterMetrics
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a writer on an established pool.
func NewWriter(cfg WriterConfig, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Writer{
		cfg:       cfg,
		db:        db,
		logger:    logger,
		fills:     make([]fillRow, 0, cfg.BatchSize),
		positions: make([]positionRow, 0, cfg.BatchSize),
	}
}

// Start launches the flush loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("database writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the writer and flushes whatever is still batched.
func (w *Writer) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("database writer stop timed out")
	}

	w.flush()
	w.logger.Info("database writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// RecordFill queues one fill row.
func (w *Writer) RecordFill(token model.TokenID, orderID string, side model.Side, price, size, realizedPnL float64) {
	row := fillRow{
		OrderID:     orderID,
		TokenID:     string(token),
		Side:        side.String(),
		Price:       price,
		Size:        size,
		RealizedPnL: realizedPnL,
		RecordedAt:  time.Now().UTC(),
	}

	w.batchMu.Lock()
	w.fills = append(w.fills, row)
	shouldFlush := len(w.fills) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// RecordPosition queues one position snapshot row.
func (w *Writer) RecordPosition(token model.TokenID, pos ledger.Position) {
	row := positionRow{
		TokenID:     string(token),
		Quantity:    pos.Quantity,
		AvgCost:     pos.AvgCost,
		RealizedPnL: pos.RealizedPnL,
		NumFills:    pos.NumFills,
		SnapshotAt:  time.Now().UTC(),
	}

	w.batchMu.Lock()
	w.positions = append(w.positions, row)
	shouldFlush := len(w.positions) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// flush writes both batches. Each batch is taken under the lock and sent
// outside it so record calls keep queueing during the insert.
func (w *Writer) flush() {
	w.batchMu.Lock()
	fills := w.fills
	positions := w.positions
	if len(fills) == 0 && len(positions) == 0 {
		w.batchMu.Unlock()
		return
	}
	w.fills = make([]fillRow, 0, w.cfg.BatchSize)
	w.positions = make([]positionRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	conflicts, err := w.batchInsert(fills, positions)

	w.batchMu.Lock()
	if err != nil {
		w.metrics.Errors++
	} else {
		w.metrics.Inserts += int64(len(fills)+len(positions)) - int64(conflicts)
		w.metrics.Conflicts += int64(conflicts)
		w.metrics.Flushes++
	}
	w.batchMu.Unlock()

	if err != nil {
		w.logger.Error("batch insert failed",
			"error", err,
			"fills", len(fills),
			"positions", len(positions),
		)
		return
	}
	w.logger.Debug("flushed trading rows",
		"fills", len(fills),
		"positions", len(positions),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert sends both row sets in one pgx.Batch round trip.
func (w *Writer) batchInsert(fills []fillRow, positions []positionRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range fills {
		batch.Queue(`
			INSERT INTO fills (session_id, order_id, token_id, side, price, size, realized_pnl, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (order_id) DO NOTHING
		`, w.cfg.SessionID, r.OrderID, r.TokenID, r.Side, r.Price, r.Size, r.RealizedPnL, r.RecordedAt)
	}
	for _, r := range positions {
		batch.Queue(`
			INSERT INTO position_snapshots (session_id, token_id, quantity, avg_cost, realized_pnl, num_fills, snapshot_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (session_id, token_id, snapshot_at) DO NOTHING
		`, w.cfg.SessionID, r.TokenID, r.Quantity, r.AvgCost, r.RealizedPnL, r.NumFills, r.SnapshotAt)
	}

	ctx := w.ctx
	if ctx == nil || ctx.Err() != nil {
		// Stop cancels w.ctx before its final flush.
		ctx = context.Background()
	}
	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(fills)+len(positions); i++ {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
