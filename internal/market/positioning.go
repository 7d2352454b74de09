package market

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hdd-momentum-service/internal/adapter/upstream"
	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

// cotStaleAfter allows for one missed weekly release before flagging.
const cotStaleAfter = 8 * 24 * time.Hour

// Positioning is a snapshot of futures positions in contracts.
type Positioning struct {
	ManagedMoneyLong  int64     `json:"managed_money_long"`
	ManagedMoneyShort int64     `json:"managed_money_short"`
	RetailLong        int64     `json:"retail_long"`
	RetailShort       int64     `json:"retail_short"`
	AsOf              time.Time `json:"as_of,omitzero"`
	Source            string    `json:"source"`
	Stale             bool      `json:"stale"`
}

// ManagedMoneyNet is long minus short for the managed-money category.
func (p Positioning) ManagedMoneyNet() int64 { return p.ManagedMoneyLong - p.ManagedMoneyShort }

// RetailNet is long minus short for non-reportable positions.
func (p Positioning) RetailNet() int64 { return p.RetailLong - p.RetailShort }

// PositioningSource supplies the latest positioning snapshot.
type PositioningSource interface {
	Positioning(ctx context.Context) (Positioning, error)
}

// ManualSource returns configured numbers. They are always stale.
type ManualSource struct {
	p Positioning
}

// NewManualSource creates a source that always returns p.
func NewManualSource(p Positioning) *ManualSource {
	p.Source = "manual"
	p.Stale = true
	return &ManualSource{p: p}
}

func (s *ManualSource) Positioning(context.Context) (Positioning, error) {
	return s.p, nil
}

// COTSource reads positioning from the CFTC disaggregated futures report
// published as fixed-width text.
type COTSource struct {
	url      string
	market   string
	upstream *upstream.Client
	clock    clockwork.Clock
}

// NewCOTSource creates a source reading the report at url and extracting the
// block whose header contains market, e.g. "NAT GAS NYME".
func NewCOTSource(url, market string, timeout time.Duration, clock clockwork.Clock) *COTSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &COTSource{
		url:      url,
		market:   market,
		upstream: upstream.NewClient("cftc-cot", timeout),
		clock:    clock,
	}
}

func (s *COTSource) Positioning(ctx context.Context) (Positioning, error) {
	body, err := s.upstream.Get(ctx, s.url)
	if err != nil {
		return Positioning{}, fmt.Errorf("cot report: %w", err)
	}
	p, err := ParseCOTReport(body, s.market)
	if err != nil {
		return Positioning{}, err
	}
	p.Source = "cftc"
	p.Stale = p.AsOf.IsZero() || s.clock.Now().Sub(p.AsOf) > cotStaleAfter
	return p, nil
}

var (
	numberPattern = regexp.MustCompile(`-?[\d,]+`)
	datePattern   = regexp.MustCompile(`([A-Z][a-z]+ \d{1,2}, \d{4})`)
)

// Column positions on the "All" row of the disaggregated report:
// open interest, producer L/S, swap L/S/spread, managed money L/S/spread,
// other L/S/spread, non-reportable L/S.
const (
	colManagedMoneyLong  = 6
	colManagedMoneyShort = 7
	colNonReportLong     = 12
	colNonReportShort    = 13
	minColumns           = 14
)

// ParseCOTReport finds the market block and reads managed-money and
// non-reportable positions from its first "All" row.
func ParseCOTReport(text []byte, market string) (Positioning, error) {
	sc := bufio.NewScanner(bytes.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		inMarket bool
		asOf     time.Time
	)
	for sc.Scan() {
		line := sc.Text()
		if !inMarket {
			if strings.Contains(strings.ToUpper(line), strings.ToUpper(market)) {
				inMarket = true
			}
			continue
		}

		if asOf.IsZero() {
			if m := datePattern.FindString(line); m != "" {
				if t, err := time.Parse("January 2, 2006", m); err == nil {
					asOf = t
				}
			}
		}

		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "All") {
			continue
		}
		values := parseNumbers(strings.TrimPrefix(trimmed, "All"))
		if len(values) < minColumns {
			continue
		}
		return Positioning{
			ManagedMoneyLong:  values[colManagedMoneyLong],
			ManagedMoneyShort: values[colManagedMoneyShort],
			RetailLong:        values[colNonReportLong],
			RetailShort:       values[colNonReportShort],
			AsOf:              asOf,
		}, nil
	}
	if err := sc.Err(); err != nil {
		return Positioning{}, fmt.Errorf("%w: %v", domain.ErrPositioningParse, err)
	}
	if !inMarket {
		return Positioning{}, fmt.Errorf("%w: market %q not found", domain.ErrPositioningParse, market)
	}
	return Positioning{}, fmt.Errorf("%w: no \"All\" row with %d columns for %q", domain.ErrPositioningParse, minColumns, market)
}

func parseNumbers(s string) []int64 {
	var out []int64
	for _, tok := range numberPattern.FindAllString(s, -1) {
		n, err := strconv.ParseInt(strings.ReplaceAll(tok, ",", ""), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// FallbackSource serves the primary source and falls back to a secondary one
// (typically manual numbers) when the primary fails.
type FallbackSource struct {
	primary  PositioningSource
	fallback PositioningSource
	logger   *slog.Logger
}

// NewFallbackSource chains primary and fallback.
func NewFallbackSource(primary, fallback PositioningSource, logger *slog.Logger) *FallbackSource {
	return &FallbackSource{primary: primary, fallback: fallback, logger: logger}
}

func (s *FallbackSource) Positioning(ctx context.Context) (Positioning, error) {
	p, err := s.primary.Positioning(ctx)
	if err == nil {
		return p, nil
	}
	s.logger.Warn("positioning source failed, using fallback", "error", err)
	p, ferr := s.fallback.Positioning(ctx)
	if ferr != nil {
		return Positioning{}, fmt.Errorf("positioning: %w (fallback: %v)", err, ferr)
	}
	p.Stale = true
	return p, nil
}
