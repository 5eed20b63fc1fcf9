package gamma

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rickgao/polymarket-mm/internal/model"
)

// flexFloat decodes a JSON number that the API serves either as a number or
// as a quoted string. Empty and null decode to zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// stringArray decodes a field the API serves as a JSON-encoded array inside a
// string (`"[\"a\",\"b\"]"`) or, occasionally, as a plain array.
type stringArray []string

func (a *stringArray) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*a = nil
		return nil
	}
	if len(s) >= 1 && s[0] == '[' {
		var out []string
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
		*a = out
		return nil
	}
	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return err
	}
	if strings.TrimSpace(inner) == "" {
		*a = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(inner), &out); err != nil {
		return err
	}
	*a = out
	return nil
}

// apiMarket is the wire form of a market inside an event.
type apiMarket struct {
	ID           string      `json:"id"`
	ConditionID  string      `json:"conditionId"`
	Question     string      `json:"question"`
	Description  string      `json:"description"`
	Slug         string      `json:"slug"`
	Active       bool        `json:"active"`
	Volume       flexFloat   `json:"volume"`
	Liquidity    flexFloat   `json:"liquidity"`
	ClobTokenIDs stringArray `json:"clobTokenIds"`
	Outcomes     stringArray `json:"outcomes"`
	EndDate      string      `json:"endDate"`
}

// apiEvent is the wire form of a catalog event.
type apiEvent struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Slug        string      `json:"slug"`
	Description string      `json:"description"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate"`
	Category    string      `json:"category"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
	Volume      flexFloat   `json:"volume"`
	Liquidity   flexFloat   `json:"liquidity"`
	Markets     []apiMarket `json:"markets"`
}

func (m apiMarket) toModel() model.MarketInfo {
	return model.MarketInfo{
		MarketID:    m.ID,
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Description: m.Description,
		Slug:        m.Slug,
		Active:      m.Active,
		Volume:      float64(m.Volume),
		Liquidity:   float64(m.Liquidity),
		Tokens:      m.ClobTokenIDs,
		Outcomes:    m.Outcomes,
		EndDate:     m.EndDate,
	}
}

func (e apiEvent) toModel() model.EventInfo {
	out := model.EventInfo{
		EventID:     e.ID,
		Title:       e.Title,
		Slug:        e.Slug,
		Description: e.Description,
		StartDate:   e.StartDate,
		EndDate:     e.EndDate,
		Category:    e.Category,
		Active:      e.Active,
		Closed:      e.Closed,
		Volume:      float64(e.Volume),
		Liquidity:   float64(e.Liquidity),
	}
	out.Markets = make([]model.MarketInfo, 0, len(e.Markets))
	for _, m := range e.Markets {
		out.Markets = append(out.Markets, m.toModel())
	}
	return out
}
