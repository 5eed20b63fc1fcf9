// Command trader runs an automated market maker for one Polymarket event.
//
// It selects an event through the Gamma catalog, mirrors its order books
// over the CLOB WebSocket feed, and quotes two-sided markets on every
// outcome token. Paper mode simulates fills against the book; live mode
// routes orders through the venue adapter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/polymarket-mm/internal/adverse"
	"github.com/rickgao/polymarket-mm/internal/bus"
	"github.com/rickgao/polymarket-mm/internal/config"
	"github.com/rickgao/polymarket-mm/internal/database"
	"github.com/rickgao/polymarket-mm/internal/engine"
	"github.com/rickgao/polymarket-mm/internal/feed"
	"github.com/rickgao/polymarket-mm/internal/gamma"
	"github.com/rickgao/polymarket-mm/internal/ledger"
	"github.com/rickgao/polymarket-mm/internal/metrics"
	"github.com/rickgao/polymarket-mm/internal/model"
	"github.com/rickgao/polymarket-mm/internal/orders"
	"github.com/rickgao/polymarket-mm/internal/quoter"
	"github.com/rickgao/polymarket-mm/internal/state"
	"github.com/rickgao/polymarket-mm/internal/tradelog"
	"github.com/rickgao/polymarket-mm/internal/version"
)

const (
	statusInterval  = 5 * time.Second
	stopTimeout     = 10 * time.Second
	catalogTimeout  = 60 * time.Second
	queueInitialCap = 1024
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting trader",
		"version", version.String(),
		"mode", cfg.Mode,
		"config", *configPath)

	if err := run(cfg, logger); err != nil {
		logger.Error("trader exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("trader stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Catalog: pick the event to trade before any component starts.
	catalog := gamma.NewClient(
		gamma.WithBaseURL(cfg.Catalog.BaseURL),
		gamma.WithTimeout(cfg.Catalog.Timeout),
		gamma.WithRetries(cfg.Catalog.MaxRetries, time.Second),
		gamma.WithLogger(logger),
	)

	selectCtx, selectCancel := context.WithTimeout(ctx, catalogTimeout)
	event, err := selectEvent(selectCtx, catalog, cfg.Session, logger)
	selectCancel()
	if err != nil {
		return fmt.Errorf("select event: %w", err)
	}
	logger.Info("selected event",
		"event_id", event.EventID,
		"title", event.Title,
		"markets", len(event.Markets),
		"volume", event.Volume,
		"end_date", event.EndDate)

	// Core state.
	queue := bus.New(queueInitialCap)
	book := ledger.New()
	store := state.NewStore(cfg.Session.StateFile, logger)

	quotes := quoter.New(quoter.Config{
		Gamma:             cfg.Strategy.Gamma,
		SpreadPct:         cfg.Strategy.SpreadPct,
		MaxPosition:       cfg.Strategy.MaxPosition,
		InitialVolatility: cfg.Strategy.InitialVolatility,
	}, logger)
	guard := adverse.New(logger)

	mode := model.Paper
	if cfg.Mode == "live" {
		mode = model.Live
	}
	orderMgr := orders.New(mode, queue, orders.NewLoggingVenue(logger), logger)

	// Session artifacts.
	tradeLog := tradelog.NewLogger(cfg.Session.LogDir, logger)
	if err := tradeLog.StartSession(event.Title); err != nil {
		return fmt.Errorf("start trade log session: %w", err)
	}
	defer tradeLog.EndSession()
	store.SetSessionID(tradeLog.SessionID())

	// Optional Postgres sink.
	var recorder engine.Recorder
	var dbWriter *database.Writer
	if cfg.Database.Enabled {
		pool, err := database.Connect(ctx, database.ConnConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Name:     cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MinConns: cfg.Database.MinConns,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		wcfg := database.WriterConfig{
			SessionID:     tradeLog.SessionID(),
			BatchSize:     cfg.Database.BatchSize,
			FlushInterval: cfg.Database.FlushInterval,
		}
		dbWriter = database.NewWriter(wcfg, pool, logger)
		if err := dbWriter.Start(ctx); err != nil {
			return fmt.Errorf("start database writer: %w", err)
		}
		recorder = dbWriter
	}

	counters := metrics.NewCounters()

	eng := engine.New(engine.Deps{
		Queue:    queue,
		Ledger:   book,
		Store:    store,
		Quoter:   quotes,
		Adverse:  guard,
		Orders:   orderMgr,
		TradeLog: tradeLog,
		DB:       recorder,
		Counters: counters,
	}, logger)

	tokens := registerMarkets(eng, event, logger)
	if len(tokens) == 0 {
		return errors.New("selected event has no tradable tokens")
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	// Market data feed.
	feedClient := feed.New(feed.Config{
		URL:               cfg.Feed.URL,
		WriteTimeout:      cfg.Feed.WriteTimeout,
		PingInterval:      cfg.Feed.PingInterval,
		PingTimeout:       cfg.Feed.PingTimeout,
		ReconnectBaseWait: cfg.Feed.ReconnectBaseWait,
		ReconnectMaxWait:  cfg.Feed.ReconnectMaxWait,
	}, queue, logger)
	if err := feedClient.Subscribe(tokens); err != nil {
		return fmt.Errorf("subscribe feed: %w", err)
	}
	if err := feedClient.Start(ctx); err != nil {
		stopEngine(eng, queue, logger)
		return fmt.Errorf("start feed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return statusLoop(gctx, eng, feedClient, counters, logger)
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	<-gctx.Done()

	// Bounded shutdown: feed first so no new events arrive, then the
	// engine drains and cancels resting orders, then the sinks flush.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()

	if err := feedClient.Stop(stopCtx); err != nil {
		logger.Warn("feed stop", "error", err)
	}
	stopEngine(eng, queue, logger)
	if dbWriter != nil {
		if err := dbWriter.Stop(stopCtx); err != nil {
			logger.Warn("database writer stop", "error", err)
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// selectEvent resolves the session config to a single catalog event:
// a pinned event ID wins, then a search query, then a top-volume browse.
func selectEvent(ctx context.Context, catalog *gamma.Client, sess config.SessionConfig, logger *slog.Logger) (*model.EventInfo, error) {
	if sess.EventID != "" {
		return catalog.Event(ctx, sess.EventID)
	}

	var (
		events []model.EventInfo
		err    error
	)
	if sess.SearchQuery != "" {
		logger.Info("searching catalog", "query", sess.SearchQuery)
		events, err = catalog.SearchEvents(ctx, sess.SearchQuery)
	} else {
		logger.Info("browsing top events", "limit", sess.TopEvents)
		events, err = catalog.ActiveEvents(ctx, sess.TopEvents)
	}
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, errors.New("no events matched session config")
	}
	if sess.EventIndex >= len(events) {
		return nil, fmt.Errorf("event_index %d out of range, only %d events found", sess.EventIndex, len(events))
	}
	return &events[sess.EventIndex], nil
}

// registerMarkets registers every outcome token of the event's active
// markets with the engine and returns the token IDs to subscribe.
func registerMarkets(eng *engine.Engine, event *model.EventInfo, logger *slog.Logger) []string {
	var tokens []string
	for _, mkt := range event.Markets {
		if !mkt.Active {
			continue
		}
		for i, tok := range mkt.Tokens {
			outcome := ""
			if i < len(mkt.Outcomes) {
				outcome = mkt.Outcomes[i]
			}
			eng.RegisterMarket(model.TokenID(tok), mkt.Question, outcome, mkt.MarketID, mkt.ConditionID)
			tokens = append(tokens, tok)
		}
		if mkt.EndDate != "" {
			closeTime, err := time.Parse(time.RFC3339, mkt.EndDate)
			if err != nil {
				logger.Warn("unparseable market end date", "market_id", mkt.MarketID, "end_date", mkt.EndDate)
			} else {
				eng.SetEventEndTime(mkt.ConditionID, closeTime)
			}
		}
	}
	return tokens
}

// stopEngine pushes a shutdown event so the dispatcher cancels resting
// orders and persists state, then stops the run loop.
func stopEngine(eng *engine.Engine, queue *bus.Queue, logger *slog.Logger) {
	queue.Push(model.NewShutdown())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := eng.Stop(stopCtx); err != nil {
		logger.Warn("engine stop", "error", err)
	}
}

func statusLoop(ctx context.Context, eng *engine.Engine, feedClient *feed.Client, counters *metrics.Counters, logger *slog.Logger) error {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fs := feedClient.Stats()
			cs := counters.Snapshot()
			logger.Info("status",
				"connected", fs.Connected,
				"reconnects", fs.Reconnects,
				"messages", fs.MessagesTotal,
				"queue_len", eng.QueueLen(),
				"markets", eng.ActiveMarketCount(),
				"positions", eng.PositionCount(),
				"active_orders", eng.ActiveOrderCount(),
				"fills", eng.TotalFills(),
				"orders_placed", cs.OrdersPlaced,
				"orders_cancelled", cs.OrdersCancelled,
				"total_pnl", eng.TotalPnL(),
				"unrealized_pnl", eng.UnrealizedPnL(),
				"inventory", eng.TotalInventory())
		}
	}
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
