package gamma

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/polymarket-mm/internal/model"
)

const (
	pageSize          = 100
	lookaheadWindow   = 7 * 24 * time.Hour
	minSearchVolume   = 500
	minSearchLiquidty = 1000
)

// seasonLongPhrases mark futures-style markets that run for a whole season.
// Those books are too slow for short-horizon quoting and are filtered out of
// search results unless the title looks like a single match.
var seasonLongPhrases = []string{
	"top 4",
	"top goal scorer",
	"finish in",
	"last place",
	"2nd place",
	"3rd place",
	"be promoted",
}

var matchPhrases = []string{
	" vs ",
	" vs. ",
	"end in a draw",
}

// ActiveEvents pages /events ordered by volume until limit events are
// collected or a short page signals the end of the catalog.
func (c *Client) ActiveEvents(ctx context.Context, limit int) ([]model.EventInfo, error) {
	now := time.Now().UTC()
	var all []model.EventInfo

	for offset := 0; limit <= 0 || len(all) < limit; offset += pageSize {
		query := url.Values{}
		query.Set("active", "true")
		query.Set("closed", "false")
		query.Set("archived", "false")
		query.Set("end_date_min", now.Format(time.RFC3339))
		query.Set("start_date_max", now.Add(lookaheadWindow).Format(time.RFC3339))
		query.Set("order", "volume")
		query.Set("ascending", "false")
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("offset", strconv.Itoa(offset))

		var page []apiEvent
		if err := c.get(ctx, "/events", query, &page); err != nil {
			return nil, fmt.Errorf("get events page %d: %w", offset/pageSize, err)
		}

		for _, ev := range page {
			all = append(all, ev.toModel())
		}
		if len(page) < pageSize {
			break
		}
	}

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	c.logger.Debug("fetched active events", "count", len(all))
	return all, nil
}

// SearchEvents fetches the active catalog and filters it to liquid,
// match-style events whose slug or description contains the query.
func (c *Client) SearchEvents(ctx context.Context, queryStr string) ([]model.EventInfo, error) {
	events, err := c.ActiveEvents(ctx, 0)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(queryStr))
	var matched []model.EventInfo
	for _, ev := range events {
		if ev.Volume < minSearchVolume || ev.Liquidity < minSearchLiquidty {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(ev.Slug), needle) &&
			!strings.Contains(strings.ToLower(ev.Description), needle) {
			continue
		}
		if isSeasonLong(ev.Title) {
			continue
		}
		matched = append(matched, ev)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Volume != matched[j].Volume {
			return matched[i].Volume > matched[j].Volume
		}
		return matched[i].Liquidity > matched[j].Liquidity
	})

	c.logger.Info("event search complete",
		"query", queryStr,
		"candidates", len(events),
		"matches", len(matched),
	)
	return matched, nil
}

// Event fetches a single event by its catalog ID.
func (c *Client) Event(ctx context.Context, eventID string) (*model.EventInfo, error) {
	var ev apiEvent
	if err := c.get(ctx, "/events/"+url.PathEscape(eventID), nil, &ev); err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	out := ev.toModel()
	return &out, nil
}

// MarketsByCondition fetches the markets registered under a condition ID.
func (c *Client) MarketsByCondition(ctx context.Context, conditionID string) ([]model.MarketInfo, error) {
	query := url.Values{}
	query.Set("condition_ids", conditionID)

	var page []apiMarket
	if err := c.get(ctx, "/markets", query, &page); err != nil {
		return nil, fmt.Errorf("get markets for condition %s: %w", conditionID, err)
	}

	out := make([]model.MarketInfo, 0, len(page))
	for _, m := range page {
		out = append(out, m.toModel())
	}
	return out, nil
}

// isSeasonLong reports whether the title names a season-long futures market.
// Titles that read like a single fixture are always kept.
func isSeasonLong(title string) bool {
	t := strings.ToLower(title)
	for _, phrase := range matchPhrases {
		if strings.Contains(t, phrase) {
			return false
		}
	}
	for _, phrase := range seasonLongPhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}
