package tradelog

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rickgao/polymarket-mm/internal/model"
)

const summaryWindow = 5 * time.Minute

// rollingWindow keeps timestamped samples inside a fixed lookback.
type rollingWindow struct {
	values     []float64
	timestamps []time.Time
}

func (w *rollingWindow) add(v float64, ts time.Time) {
	w.values = append(w.values, v)
	w.timestamps = append(w.timestamps, ts)
	w.cleanup(ts)
}

func (w *rollingWindow) cleanup(now time.Time) {
	cutoff := now.Add(-summaryWindow)
	i := 0
	for i < len(w.timestamps) && w.timestamps[i].Before(cutoff) {
		i++
	}
	w.values = w.values[i:]
	w.timestamps = w.timestamps[i:]
}

func (w *rollingWindow) size() int { return len(w.values) }

func (w *rollingWindow) mean() float64 {
	if len(w.values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values))
}

func (w *rollingWindow) stddev() float64 {
	if len(w.values) < 2 {
		return 0
	}
	m := w.mean()
	sq := 0.0
	for _, v := range w.values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(w.values)))
}

func (w *rollingWindow) max() float64 {
	if len(w.values) == 0 {
		return 0
	}
	out := w.values[0]
	for _, v := range w.values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}

func (w *rollingWindow) min() float64 {
	if len(w.values) == 0 {
		return 0
	}
	out := w.values[0]
	for _, v := range w.values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}

// marketState accumulates per-token observations between summary rows.
type marketState struct {
	tokenID     model.TokenID
	marketName  string
	marketID    string
	conditionID string

	firstUpdate time.Time
	lastUpdate  time.Time
	updateCount int

	lastBestBid float64
	lastBestAsk float64
	bidChanges  int
	askChanges  int

	currentMid       float64
	currentSpreadBps float64
	currentBestBid   float64
	currentBestAsk   float64
	currentBidVolume float64
	currentAskVolume float64

	midPrices  rollingWindow
	spreadsBps rollingWindow
	bidVolumes rollingWindow
	askVolumes rollingWindow

	eventEndTime time.Time
}

// Summary is one computed market_summary.csv row.
type Summary struct {
	MarketName string
	MarketID   string
	TokenID    model.TokenID

	MidPrice  float64
	SpreadBps float64
	BestBid   float64
	BestAsk   float64

	MidPriceVolatility float64
	PriceTrend         float64
	MaxPriceMove       float64

	QuoteChangeRate   float64
	BidStabilityScore float64
	AskStabilityScore float64

	AvgSpreadBps   float64
	LiquidityScore float64
	DepthScore     float64

	UpdateFrequency float64
	VolumeTrend     float64

	HoursToEvent        float64
	IsTradeable         bool
	TradingQualityScore int
}

// SummaryLogger writes periodic per-market quality rows to
// market_summary.csv. The cadence adapts to time-to-event.
type SummaryLogger struct {
	mu     sync.Mutex
	logger *slog.Logger
	file   *os.File

	states      map[model.TokenID]*marketState
	endTimes    map[string]time.Time // condition ID -> close time
	lastSummary time.Time
}

// NewSummaryLogger opens market_summary.csv inside the session directory.
func NewSummaryLogger(sessionDir string, logger *slog.Logger) (*SummaryLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Create(filepath.Join(sessionDir, "market_summary.csv"))
	if err != nil {
		return nil, fmt.Errorf("create market_summary.csv: %w", err)
	}
	header := "timestamp,market_name,market_id,token_id," +
		"mid_price,spread_bps,best_bid,best_ask," +
		"mid_price_volatility,price_trend,max_price_move," +
		"quote_change_rate,bid_stability_score,ask_stability_score," +
		"avg_spread_bps,liquidity_score,depth_score," +
		"update_frequency,volume_trend," +
		"hours_to_event,is_tradeable,trading_quality_score"
	if _, err := fmt.Fprintln(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write market_summary.csv header: %w", err)
	}
	return &SummaryLogger{
		logger:   logger,
		file:     f,
		states:   make(map[model.TokenID]*marketState),
		endTimes: make(map[string]time.Time),
	}, nil
}

// Close closes the CSV file.
func (s *SummaryLogger) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
}

// UpdateMarket folds a book observation into the token's rolling state.
func (s *SummaryLogger) UpdateMarket(marketName, marketID, conditionID string, token model.TokenID,
	midPrice, spreadBps, bestBid, bestAsk, bidVolume, askVolume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	st, ok := s.states[token]
	if !ok {
		st = &marketState{
			tokenID:     token,
			marketName:  marketName,
			marketID:    marketID,
			conditionID: conditionID,
			firstUpdate: now,
			lastBestBid: bestBid,
			lastBestAsk: bestAsk,
		}
		if end, found := s.endTimes[conditionID]; found {
			st.eventEndTime = end
		}
		s.states[token] = st
	}

	if bestBid != st.lastBestBid {
		st.bidChanges++
		st.lastBestBid = bestBid
	}
	if bestAsk != st.lastBestAsk {
		st.askChanges++
		st.lastBestAsk = bestAsk
	}

	st.currentMid = midPrice
	st.currentSpreadBps = spreadBps
	st.currentBestBid = bestBid
	st.currentBestAsk = bestAsk
	st.currentBidVolume = bidVolume
	st.currentAskVolume = askVolume

	if midPrice > 0 {
		st.midPrices.add(midPrice, now)
	}
	if spreadBps > 0 {
		st.spreadsBps.add(spreadBps, now)
	}
	st.bidVolumes.add(bidVolume, now)
	st.askVolumes.add(askVolume, now)

	st.updateCount++
	st.lastUpdate = now
}

// SetEventEndTime records the close time for all tokens under a condition.
func (s *SummaryLogger) SetEventEndTime(conditionID string, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endTimes[conditionID] = end
	for _, st := range s.states {
		if st.conditionID == conditionID {
			st.eventEndTime = end
		}
	}
}

// ShouldLog reports whether the adaptive interval has elapsed since the last
// summary pass.
func (s *SummaryLogger) ShouldLog() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSummary) >= s.intervalLocked()
}

// LogSummaries writes one row per tracked market.
func (s *SummaryLogger) LogSummaries() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return
	}
	now := time.Now()

	for _, st := range s.states {
		if st.updateCount == 0 {
			continue
		}
		st.midPrices.cleanup(now)
		st.spreadsBps.cleanup(now)
		st.bidVolumes.cleanup(now)
		st.askVolumes.cleanup(now)

		sum := computeSummary(st, now)
		tradeable := "0"
		if sum.IsTradeable {
			tradeable = "1"
		}
		fmt.Fprintf(s.file, "%s,%s,%s,%s,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g,%g,%s,%d\n",
			now.UTC().Format(timeFormat),
			csvField(sum.MarketName), sum.MarketID, sum.TokenID,
			sum.MidPrice, sum.SpreadBps, sum.BestBid, sum.BestAsk,
			sum.MidPriceVolatility, sum.PriceTrend, sum.MaxPriceMove,
			sum.QuoteChangeRate, sum.BidStabilityScore, sum.AskStabilityScore,
			sum.AvgSpreadBps, sum.LiquidityScore, sum.DepthScore,
			sum.UpdateFrequency, sum.VolumeTrend,
			sum.HoursToEvent, tradeable, sum.TradingQualityScore)
	}
	s.file.Sync()
	s.lastSummary = now

	s.logger.Debug("logged market summaries", "markets", len(s.states))
}

// intervalLocked tightens the summary cadence as the nearest event
// approaches.
func (s *SummaryLogger) intervalLocked() time.Duration {
	hours := s.minHoursToEventLocked()
	switch {
	case hours < 0:
		return 300 * time.Second
	case hours < 3:
		return 30 * time.Second
	case hours < 6:
		return 60 * time.Second
	case hours < 24:
		return 300 * time.Second
	case hours < 48:
		return 600 * time.Second
	default:
		return 1800 * time.Second
	}
}

func (s *SummaryLogger) minHoursToEventLocked() float64 {
	now := time.Now()
	min := -1.0
	for _, st := range s.states {
		if st.eventEndTime.IsZero() {
			continue
		}
		hours := st.eventEndTime.Sub(now).Hours()
		if min < 0 || hours < min {
			min = hours
		}
	}
	return min
}

func computeSummary(st *marketState, now time.Time) Summary {
	sum := Summary{
		MarketName: st.marketName,
		MarketID:   st.marketID,
		TokenID:    st.tokenID,
		MidPrice:   st.currentMid,
		SpreadBps:  st.currentSpreadBps,
		BestBid:    st.currentBestBid,
		BestAsk:    st.currentBestAsk,
	}

	sum.MidPriceVolatility = windowVolatility(&st.midPrices)
	sum.PriceTrend = windowTrend(&st.midPrices)

	priceRange := st.midPrices.max() - st.midPrices.min()
	if mid := st.midPrices.mean(); mid > 0 {
		sum.MaxPriceMove = priceRange / mid
	}

	minutes := math.Max(1, now.Sub(st.firstUpdate).Minutes())
	sum.QuoteChangeRate = float64(st.bidChanges+st.askChanges) / minutes

	// Stability: 1.0 = stable BBO, decaying exponentially with change ratio
	bidRatio := float64(st.bidChanges) / float64(st.updateCount)
	askRatio := float64(st.askChanges) / float64(st.updateCount)
	sum.BidStabilityScore = math.Exp(-5 * bidRatio)
	sum.AskStabilityScore = math.Exp(-5 * askRatio)

	sum.AvgSpreadBps = st.spreadsBps.mean()

	totalVolume := st.currentBidVolume + st.currentAskVolume
	if sum.AvgSpreadBps > 0 {
		sum.LiquidityScore = totalVolume / sum.AvgSpreadBps
	}
	sum.DepthScore = st.bidVolumes.mean() + st.askVolumes.mean()

	sum.UpdateFrequency = float64(st.updateCount) / minutes

	recentVol := 0.0
	if st.bidVolumes.size() > 0 {
		recentVol = st.bidVolumes.values[st.bidVolumes.size()-1] + st.askVolumes.values[st.askVolumes.size()-1]
	}
	earlyVol := recentVol
	if st.bidVolumes.size() > 5 {
		earlyVol = st.bidVolumes.values[0] + st.askVolumes.values[0]
	}
	if earlyVol > 0 {
		sum.VolumeTrend = (recentVol - earlyVol) / earlyVol
	}

	if !st.eventEndTime.IsZero() {
		sum.HoursToEvent = st.eventEndTime.Sub(now).Hours()
	} else {
		sum.HoursToEvent = -1
	}

	sum.TradingQualityScore = qualityScore(sum)
	sum.IsTradeable = sum.TradingQualityScore >= 50

	return sum
}

func windowVolatility(w *rollingWindow) float64 {
	if w.size() < 2 {
		return 0
	}
	m := w.mean()
	if m <= 0 {
		return 0
	}
	return w.stddev() / m
}

// windowTrend fits a least-squares line through the window and normalizes
// the slope by the mean price.
func windowTrend(w *rollingWindow) float64 {
	n := w.size()
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range w.values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := float64(n)*sumX2 - sumX*sumX
	if math.Abs(denom) < 1e-10 {
		return 0
	}
	slope := (float64(n)*sumXY - sumX*sumY) / denom
	meanPrice := sumY / float64(n)
	if meanPrice <= 0 {
		return 0
	}
	return slope / meanPrice
}

// qualityScore combines liquidity, spread, stability, and activity into a
// 0-100 tradeability score.
func qualityScore(sum Summary) int {
	score := 0

	// Liquidity (0-40)
	switch {
	case sum.LiquidityScore > 5000:
		score += 40
	case sum.LiquidityScore > 1000:
		score += int(20 + (sum.LiquidityScore-1000)/4000*20)
	case sum.LiquidityScore > 100:
		score += int(sum.LiquidityScore / 1000 * 20)
	}

	// Spread (0-25)
	switch {
	case sum.AvgSpreadBps < 100:
		score += 25
	case sum.AvgSpreadBps < 300:
		score += int(25 - (sum.AvgSpreadBps-100)/200*10)
	case sum.AvgSpreadBps < 500:
		score += int(15 - (sum.AvgSpreadBps-300)/200*10)
	}

	// Stability (0-20)
	avgStability := (sum.BidStabilityScore + sum.AskStabilityScore) / 2
	score += int(avgStability * 20)

	// Activity (0-15)
	if sum.UpdateFrequency > 1 {
		score += 15
	} else {
		score += int(sum.UpdateFrequency * 15)
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
