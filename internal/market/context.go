package market

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
)

// Convergence summarises how storage and weather momentum line up.
type Convergence string

const (
	// ConvergenceBullish means storage is in deficit while degree days are rising.
	ConvergenceBullish Convergence = "bullish"
	// ConvergenceFragmented is every other combination.
	ConvergenceFragmented Convergence = "fragmented"
)

// Context is the market backdrop for one refresh.
type Context struct {
	Storage         StorageContext `json:"storage"`
	Positioning     *Positioning   `json:"positioning,omitempty"`
	PositioningErr  string         `json:"positioning_error,omitempty"`
	ManagedMoneyNet int64          `json:"managed_money_net"`
	Quote           *Quote         `json:"quote,omitempty"`
	QuoteErr        string         `json:"quote_error,omitempty"`
	Price           float64        `json:"price"`
	PriceChangePct  float64        `json:"price_change_pct"`
	RetailNet       int64          `json:"retail_net"`
	NextEIA         Countdown      `json:"next_eia"`
	NextCOT         Countdown      `json:"next_cot"`
	Convergence     Convergence    `json:"convergence"`
}

// Service builds market contexts.
type Service struct {
	storage     StorageContext
	positioning PositioningSource
	price       PriceSource
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewService creates a market context service. positioning and price may be
// nil.
func NewService(storage StorageContext, positioning PositioningSource, price PriceSource, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{storage: storage, positioning: positioning, price: price, clock: clock, logger: logger}
}

// Build assembles the context. hddDelta is the composite total change of the
// current refresh. Positioning and price failures are recorded, never
// returned.
func (s *Service) Build(ctx context.Context, hddDelta float64) Context {
	now := s.clock.Now()
	mc := Context{
		Storage:     s.storage,
		NextEIA:     CountdownTo(now, EIAStorageReport),
		NextCOT:     CountdownTo(now, COTReport),
		Convergence: ConvergenceFragmented,
	}
	if s.storage.Deficit() && hddDelta > 0 {
		mc.Convergence = ConvergenceBullish
	}

	s.addPrice(ctx, &mc)
	s.addPositioning(ctx, &mc)
	return mc
}

func (s *Service) addPrice(ctx context.Context, mc *Context) {
	if s.price == nil {
		return
	}
	q, err := s.price.Quote(ctx)
	if err != nil {
		s.logger.Warn("price unavailable", "error", err)
		mc.QuoteErr = err.Error()
		return
	}
	mc.Quote = &q
	mc.Price = q.Price
	mc.PriceChangePct = q.ChangePct
}

func (s *Service) addPositioning(ctx context.Context, mc *Context) {
	if s.positioning == nil {
		return
	}
	p, err := s.positioning.Positioning(ctx)
	if err != nil {
		s.logger.Warn("positioning unavailable", "error", err)
		mc.PositioningErr = err.Error()
		return
	}
	mc.Positioning = &p
	mc.ManagedMoneyNet = p.ManagedMoneyNet()
	mc.RetailNet = p.RetailNet()
}
