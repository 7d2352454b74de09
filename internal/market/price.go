package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hdd-momentum-service/internal/adapter/upstream"
	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

// DefaultPriceURL is the Yahoo Finance chart endpoint; the symbol is appended.
const DefaultPriceURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// DefaultPriceSymbol is the front-month Henry Hub natural gas future.
const DefaultPriceSymbol = "NG=F"

// priceStaleAfter covers a weekend without trading.
const priceStaleAfter = 96 * time.Hour

// Quote is the latest futures price and its change from the previous close.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	ChangePct     float64   `json:"change_pct"`
	AsOf          time.Time `json:"as_of,omitzero"`
	Stale         bool      `json:"stale"`
}

// PriceSource supplies the latest quote.
type PriceSource interface {
	Quote(ctx context.Context) (Quote, error)
}

// ChartSource reads a quote from a Yahoo Finance style chart document.
type ChartSource struct {
	url      string
	symbol   string
	upstream *upstream.Client
	clock    clockwork.Clock
}

// NewChartSource creates a quote source for symbol. An empty baseURL selects
// DefaultPriceURL.
func NewChartSource(baseURL, symbol string, timeout time.Duration, clock clockwork.Clock) *ChartSource {
	if baseURL == "" {
		baseURL = DefaultPriceURL
	}
	if symbol == "" {
		symbol = DefaultPriceSymbol
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ChartSource{
		url:      strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(symbol),
		symbol:   symbol,
		upstream: upstream.NewClient("price-chart", timeout),
		clock:    clock,
	}
}

// Quote fetches the latest quote and flags it stale after four days.
func (s *ChartSource) Quote(ctx context.Context) (Quote, error) {
	body, err := s.upstream.Get(ctx, s.url)
	if err != nil {
		return Quote{}, fmt.Errorf("price %s: %w", s.symbol, err)
	}
	q, err := parseChart(body)
	if err != nil {
		return Quote{}, fmt.Errorf("price %s: %w", s.symbol, err)
	}
	if q.Symbol == "" {
		q.Symbol = s.symbol
	}
	q.Stale = q.AsOf.IsZero() || s.clock.Now().Sub(q.AsOf) > priceStaleAfter
	return q, nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta chartMeta `json:"meta"`
		} `json:"result"`
	} `json:"chart"`
}

type chartMeta struct {
	Symbol             string   `json:"symbol"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	PreviousClose      *float64 `json:"previousClose"`
	ChartPreviousClose *float64 `json:"chartPreviousClose"`
	RegularMarketTime  int64    `json:"regularMarketTime"`
}

func parseChart(body []byte) (Quote, error) {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Quote{}, fmt.Errorf("%w: decode chart: %v", domain.ErrProviderUnavailable, err)
	}
	if len(resp.Chart.Result) == 0 {
		return Quote{}, fmt.Errorf("%w: chart has no result", domain.ErrProviderUnavailable)
	}
	meta := resp.Chart.Result[0].Meta
	if meta.RegularMarketPrice == nil {
		return Quote{}, fmt.Errorf("%w: chart has no market price", domain.ErrProviderUnavailable)
	}

	q := Quote{Symbol: meta.Symbol, Price: *meta.RegularMarketPrice}
	prev := meta.PreviousClose
	if prev == nil {
		prev = meta.ChartPreviousClose
	}
	if prev != nil && *prev > 0 {
		q.PreviousClose = *prev
		q.ChangePct = (q.Price - *prev) / *prev * 100
	}
	if meta.RegularMarketTime > 0 {
		q.AsOf = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	return q, nil
}
