// Package strategy generates ranked, constraint-compliant price recommendations.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"PriceSentinel/internal/forecast"
	"PriceSentinel/internal/model"
)

const (
	DefaultHorizonDays     = 7
	DefaultClearanceRatio  = 1.5
	DefaultPremiumRatio    = 0.3
	DefaultPremiumPct      = 10
	DefaultMaterialDropPct = 1
	DefaultGridSteps       = 100
	DefaultParallelism     = 8
	DefaultLowConfidence   = 30
	// maxAlternatives runners-up are surfaced next to the primary.
	maxAlternatives = 2
	historyLimit    = 100
)

// Options tunes the engine.
type Options struct {
	HorizonDays     int
	ClearanceRatio  float64
	PremiumRatio    float64
	PremiumPct      float64
	MaterialDropPct float64 // stockout override drops candidates further than this below current
	GridSteps       int
	Parallelism     int
	LowConfidence   float64
}

func (o *Options) applyDefaults() {
	if o.HorizonDays <= 0 {
		o.HorizonDays = DefaultHorizonDays
	}
	if o.ClearanceRatio <= 0 {
		o.ClearanceRatio = DefaultClearanceRatio
	}
	if o.PremiumRatio <= 0 {
		o.PremiumRatio = DefaultPremiumRatio
	}
	if o.PremiumPct <= 0 {
		o.PremiumPct = DefaultPremiumPct
	}
	if o.MaterialDropPct <= 0 {
		o.MaterialDropPct = DefaultMaterialDropPct
	}
	if o.GridSteps <= 0 {
		o.GridSteps = DefaultGridSteps
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	if o.LowConfidence <= 0 {
		o.LowConfidence = DefaultLowConfidence
	}
}

// StateReader returns the current state of a product.
type StateReader interface {
	State(ctx context.Context, productID string) (model.ProductState, error)
}

// CurveBuilder builds the demand curve a recommendation is forecast with.
type CurveBuilder interface {
	CurveFor(ctx context.Context, product model.Product, currentPrice float64, horizonDays int) (forecast.Curve, error)
}

// Sink persists recommendations.
type Sink interface {
	RecordRecommendation(ctx context.Context, rec *model.PricingRecommendation) error
}

// Alerter raises alerts.
type Alerter interface {
	Raise(a model.Alert)
}

// Engine runs the recommendation stages. It never changes a price.
type Engine struct {
	states     StateReader
	curves     CurveBuilder
	sink       Sink
	alerts     Alerter
	strategies []Strategy
	opts       Options
	now        func() time.Time

	mu      sync.RWMutex
	history map[string][]model.PricingRecommendation
}

// NewEngine creates an Engine over the default strategy table. sink and alerts may be nil.
func NewEngine(states StateReader, curves CurveBuilder, sink Sink, alerts Alerter, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		states:     states,
		curves:     curves,
		sink:       sink,
		alerts:     alerts,
		strategies: Strategies,
		opts:       opts,
		now:        time.Now,
		history:    make(map[string][]model.PricingRecommendation),
	}
}

// candidate is a priced, forecast strategy output.
type candidate struct {
	price      float64
	tag        model.StrategyTag
	forecast   model.RevenueForecast
	confidence float64
}

// Generate reads the current state of productID and recommends a price for it.
func (e *Engine) Generate(ctx context.Context, productID string) (*model.PricingRecommendation, error) {
	state, err := e.states.State(ctx, productID)
	if err != nil {
		return nil, err
	}
	rec, err := e.GenerateFrom(ctx, state)
	if err != nil {
		return nil, err
	}
	e.keep(ctx, rec)
	return rec, nil
}

// GenerateFrom recommends a price from an already captured state, using the product's constraints.
// The result is not stored; the same state always yields the same ranking.
func (e *Engine) GenerateFrom(ctx context.Context, state model.ProductState) (*model.PricingRecommendation, error) {
	product := state.Product
	constraints := product.Constraints

	rec := &model.PricingRecommendation{
		ID:           uuid.NewString(),
		ProductID:    product.ID,
		CurrentPrice: state.CurrentPrice,
		GeneratedAt:  e.now(),
	}
	trace := func(format string, args ...any) {
		rec.Reasoning = append(rec.Reasoning, fmt.Sprintf(format, args...))
	}

	// Stage 1: gather
	curve, err := e.curves.CurveFor(ctx, product, state.CurrentPrice, e.opts.HorizonDays)
	if err != nil {
		return nil, fmt.Errorf("demand curve of %s: %w", product.ID, err)
	}
	el := curve.Elasticity
	trace("current price %.2f, cost %.2f, elasticity %.2f (confidence %.0f%s)",
		state.CurrentPrice, product.Cost, el.Coefficient, el.ConfidenceScore, fallbackNote(el))
	if state.InventoryKnown {
		trace("inventory %.0f, ratio %.2f to target", state.Inventory, state.InventoryRatio())
	}
	if pos := state.Position; pos != nil {
		trace("rank %d of %d, competitor median %.2f, gap %+.1f%%", pos.Rank, pos.Count, pos.Median, pos.GapPct*100)
	}
	stockoutActive := state.Stockout != nil && state.Stockout.AtRisk()
	if stockoutActive {
		trace("stockout in %.1fh at %s, inside %.0fh threshold", state.Stockout.HoursToStockout, state.Stockout.LocationID, state.Stockout.ThresholdHours)
	}

	floor, ceiling, ok := constraints.Band(product.Cost, state.ReferencePrice(), state.CurrentPrice)
	if !ok {
		trace("constraints admit no price: %s", describe(constraints))
		return e.noCompliant(rec, trace), nil
	}
	in := &Input{
		State:       state,
		Constraints: constraints,
		Curve:       curve,
		Floor:       model.CeilPrice(floor),
		Ceiling:     ceiling,
		HorizonDays: e.opts.HorizonDays,
		Options:     e.opts,
	}
	if !math.IsInf(ceiling, 1) {
		in.Ceiling = model.FloorPrice(ceiling)
	}

	// Stage 2: candidates, one per distinct cent price
	var cands []candidate
	seen := make(map[int64]model.StrategyTag)
	for _, s := range e.strategies {
		price, ok, note := s.Price(in)
		if !ok {
			trace("%s skipped: %s", s.Tag, note)
			continue
		}
		cents := int64(math.Round(price * 100))
		if first, dup := seen[cents]; dup {
			trace("%s at %.2f merged into %s", s.Tag, price, first)
			continue
		}
		seen[cents] = s.Tag
		trace("%s proposes %.2f: %s", s.Tag, price, note)
		cands = append(cands, candidate{price: price, tag: s.Tag})
	}

	// Stage 3: forecast and constraint filter
	survivors := cands[:0]
	for _, c := range cands {
		if v := state.Check(constraints, c.price); len(v) > 0 {
			trace("discarded %s at %.2f: %s", c.tag, c.price, v)
			continue
		}
		c.forecast = curve.Forecast(product, c.price, e.opts.HorizonDays)
		c.confidence = (el.ConfidenceScore + c.forecast.Confidence) / 2
		survivors = append(survivors, c)
	}

	// Stage 4: stockout override
	if stockoutActive {
		limit := state.CurrentPrice * (1 - e.opts.MaterialDropPct/100)
		kept := survivors[:0]
		for _, c := range survivors {
			if c.price < limit {
				trace("discarded %s at %.2f: price cut while stockout is imminent", c.tag, c.price)
				continue
			}
			kept = append(kept, c)
		}
		survivors = kept
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(survivors) == 0 {
		return e.noCompliant(rec, trace), nil
	}

	rank(survivors, state.CurrentPrice)

	top := survivors[0]
	rec.Status = model.StatusRecommended
	rec.RecommendedPrice = top.price
	rec.Strategy = top.tag
	rec.ConfidenceScore = top.confidence
	rec.ExpectedRevenue = top.forecast.ExpectedRevenue
	rec.Impact = impactOf(top.forecast)
	for _, c := range survivors[1:] {
		if len(rec.Alternatives) == maxAlternatives {
			break
		}
		rec.Alternatives = append(rec.Alternatives, model.Alternative{
			Price:           c.price,
			Strategy:        c.tag,
			ConfidenceScore: c.confidence,
			ExpectedRevenue: c.forecast.ExpectedRevenue,
			Impact:          impactOf(c.forecast),
		})
	}
	trace("selected %s at %.2f: forecast revenue %.2f, confidence %.0f", top.tag, top.price, top.forecast.ExpectedRevenue, top.confidence)
	return rec, nil
}

// rank orders by forecast revenue (to the cent) descending, then confidence descending,
// then smaller absolute price change.
func rank(cands []candidate, current float64) {
	sort.SliceStable(cands, func(i, j int) bool {
		ri, rj := math.Round(cands[i].forecast.ExpectedRevenue*100), math.Round(cands[j].forecast.ExpectedRevenue*100)
		if ri != rj {
			return ri > rj
		}
		if cands[i].confidence != cands[j].confidence {
			return cands[i].confidence > cands[j].confidence
		}
		return math.Abs(cands[i].price-current) < math.Abs(cands[j].price-current)
	})
}

func (e *Engine) noCompliant(rec *model.PricingRecommendation, trace func(string, ...any)) *model.PricingRecommendation {
	rec.Status = model.StatusNoCompliant
	rec.RecommendedPrice = 0
	rec.Alternatives = nil
	trace("no candidate satisfies the constraints, keeping %.2f", rec.CurrentPrice)
	return rec
}

func impactOf(f model.RevenueForecast) model.Impact {
	return model.Impact{RevenuePct: f.RevenueDeltaPct, MarginPct: f.MarginDeltaPct, VolumePct: f.VolumeDeltaPct}
}

func fallbackNote(el model.ElasticityResult) string {
	if !el.FallbackUsed {
		return ""
	}
	return ", " + el.FallbackSource + " fallback"
}

func describe(c model.PricingConstraints) string {
	return fmt.Sprintf("min margin %.1f%%, max discount %.1f%%, max change %.1f%%", c.MinMarginPct, c.MaxDiscountPct, c.MaxPriceChangePct)
}

// keep stores rec in history, persists it and flags low confidence.
func (e *Engine) keep(ctx context.Context, rec *model.PricingRecommendation) {
	e.mu.Lock()
	h := append(e.history[rec.ProductID], *rec)
	if len(h) > historyLimit {
		h = h[len(h)-historyLimit:]
	}
	e.history[rec.ProductID] = h
	e.mu.Unlock()

	if e.sink != nil {
		if err := e.sink.RecordRecommendation(ctx, rec); err != nil {
			log.Error().Err(err).Str("product", rec.ProductID).Msg("failed to record recommendation")
		}
	}
	if e.alerts != nil && rec.Compliant() && rec.ConfidenceScore < e.opts.LowConfidence {
		e.alerts.Raise(model.Alert{
			Type:               model.AlertLowConfidence,
			Severity:           model.SeverityLow,
			ProductIDs:         []string{rec.ProductID},
			Message:            fmt.Sprintf("recommendation %.2f (%s) has confidence %.0f", rec.RecommendedPrice, rec.Strategy, rec.ConfidenceScore),
			RecommendedActions: []string{"collect more sales history", "seed a category elasticity"},
		})
	}
}

// History returns recent recommendations for productID, oldest first.
func (e *Engine) History(productID string) []model.PricingRecommendation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.PricingRecommendation(nil), e.history[productID]...)
}

// GenerateAll recommends for every product in parallel. Failed products are left nil in the result
// and reported together; cancellation stops the batch.
func (e *Engine) GenerateAll(ctx context.Context, productIDs []string) ([]*model.PricingRecommendation, error) {
	out := make([]*model.PricingRecommendation, len(productIDs))
	errs := make([]error, len(productIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i, id := range productIDs {
		g.Go(func() error {
			rec, err := e.Generate(gctx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return err
				}
				errs[i] = fmt.Errorf("%s: %w", id, err)
				return nil
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, errors.Join(errs...)
}
