// Package pipeline connects inbound market events to the pricing components and fans their outputs
// out to the recorder, the publisher and the alert dispatcher.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"PriceSentinel/internal/ingest"
	"PriceSentinel/internal/market"
	"PriceSentinel/internal/model"
	"PriceSentinel/internal/rules"
	"PriceSentinel/internal/stockout"
)

const (
	DefaultStaleAfter      = 6 * time.Hour
	DefaultPublishTimeout  = 10 * time.Second
	DefaultForecastHorizon = 30
)

// Options tunes the pipeline.
type Options struct {
	StaleAfter      time.Duration
	PublishTimeout  time.Duration
	ForecastHorizon int // days an executed price change is forecast over
}

// Market is the event-applying store.
type Market interface {
	ApplyPricePoint(pp model.PricePoint) (bool, error)
	ApplySales(rec model.SalesRecord) error
	ApplyInventory(obs model.InventoryObservation) (bool, error)
	Products() []model.Product
	Stale(now time.Time, maxAge time.Duration) []market.StaleObservation
}

// StateReader returns the current state of a product.
type StateReader interface {
	State(ctx context.Context, productID string) (model.ProductState, error)
}

// RuleRunner evaluates rules and applies manual prices.
type RuleRunner interface {
	RunCycle(ctx context.Context, productID string, trigger rules.Trigger) (*rules.CycleReport, error)
	ManualChange(ctx context.Context, productID string, price float64, actor string) (*model.PriceChange, error)
}

// Recommender generates recommendations.
type Recommender interface {
	GenerateAll(ctx context.Context, productIDs []string) ([]*model.PricingRecommendation, error)
}

// ForecastTracker forecasts executed price changes and keeps them for variance reconciliation.
type ForecastTracker interface {
	Track(ctx context.Context, change *model.PriceChange, horizonDays int) (model.RevenueForecast, error)
}

// StockoutPredictor predicts stockouts per location.
type StockoutPredictor interface {
	Predict(ctx context.Context, productID, locationID string) (stockout.Result, error)
	PredictAll(ctx context.Context) ([]stockout.Result, error)
}

// History reads persisted recommendations and writes audit entries.
type History interface {
	Recommendations(ctx context.Context, productID string, limit int) ([]model.PricingRecommendation, error)
	RecordAudit(ctx context.Context, entry *model.AuditLogEntry) error
}

// Alerter raises alerts.
type Alerter interface {
	Raise(a model.Alert)
}

// Pipeline implements ingest.Handler and the batch operations the scheduler runs.
type Pipeline struct {
	market    Market
	states    StateReader
	rules     RuleRunner
	recs      Recommender
	forecasts ForecastTracker
	stockout  StockoutPredictor
	history   History
	publisher ingest.Publisher
	alerts    Alerter
	opts      Options
	now       func() time.Time

	inflight sync.WaitGroup
}

// New creates a Pipeline. publisher defaults to ingest.NoopPublisher; forecasts and alerts may be nil.
func New(m Market, states StateReader, rr RuleRunner, recs Recommender, forecasts ForecastTracker, sp StockoutPredictor, history History, publisher ingest.Publisher, alerts Alerter, opts Options) *Pipeline {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.ForecastHorizon <= 0 {
		opts.ForecastHorizon = DefaultForecastHorizon
	}
	if publisher == nil {
		publisher = ingest.NoopPublisher{}
	}
	return &Pipeline{
		market:    m,
		states:    states,
		rules:     rr,
		recs:      recs,
		forecasts: forecasts,
		stockout:  sp,
		history:   history,
		publisher: publisher,
		alerts:    alerts,
		opts:      opts,
		now:       time.Now,
	}
}

// HandlePricePoint applies a competitor price, flags a large gap and runs the product's rules.
func (p *Pipeline) HandlePricePoint(ctx context.Context, pp model.PricePoint) error {
	applied, err := p.market.ApplyPricePoint(pp)
	if err != nil {
		return err
	}
	if !applied {
		log.Debug().Str("product", pp.ProductID).Str("competitor", pp.CompetitorID).Msg("out-of-order price point dropped")
		return nil
	}

	state, err := p.states.State(ctx, pp.ProductID)
	if err != nil {
		return err
	}
	if pos := state.Position; pos != nil && pos.GapFlagged {
		p.raise(model.Alert{
			Type:          model.AlertPriceGap,
			Severity:      model.SeverityMedium,
			ProductIDs:    []string{pp.ProductID},
			CompetitorIDs: []string{pp.CompetitorID},
			Message: fmt.Sprintf("%s at %.2f is %+.1f%% from the competitor median %.2f (rank %d of %d)",
				pp.ProductID, pos.UserPrice, pos.GapPct*100, pos.Median, pos.Rank, pos.Count),
			RecommendedActions: []string{"review the recommendation for this product"},
		})
	}
	return p.runRules(ctx, pp.ProductID, rules.Trigger{Source: ingest.TypePricePoint, At: pp.ObservedAt})
}

// HandleSales records a sale.
func (p *Pipeline) HandleSales(_ context.Context, rec model.SalesRecord) error {
	return p.market.ApplySales(rec)
}

// HandleInventory applies an inventory observation, re-predicts the location and runs the product's rules.
// A rejected low-confidence observation keeps the last known level and changes nothing downstream.
func (p *Pipeline) HandleInventory(ctx context.Context, obs model.InventoryObservation) error {
	applied, err := p.market.ApplyInventory(obs)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	res, err := p.stockout.Predict(ctx, obs.ProductID, obs.LocationID)
	switch {
	case errors.Is(err, stockout.ErrNoInventory):
	case err != nil:
		log.Error().Err(err).Str("product", obs.ProductID).Str("location", obs.LocationID).Msg("stockout prediction failed")
	case res.Reorder != nil:
		p.publishReorder(ctx, res.Reorder)
	}
	return p.runRules(ctx, obs.ProductID, rules.Trigger{Source: ingest.TypeInventory, At: obs.ObservedAt})
}

func (p *Pipeline) runRules(ctx context.Context, productID string, trigger rules.Trigger) error {
	report, err := p.rules.RunCycle(ctx, productID, trigger)
	if err != nil {
		return err
	}
	if report.Change != nil {
		p.changed(ctx, report.Change)
	}
	return nil
}

// RunRuleCycles evaluates rules for every product at the current time.
func (p *Pipeline) RunRuleCycles(ctx context.Context) error {
	var errs []error
	now := p.now()
	for _, product := range p.market.Products() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.runRules(ctx, product.ID, rules.Trigger{Source: "schedule", At: now}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", product.ID, err))
		}
	}
	return errors.Join(errs...)
}

// RecommendAll generates a recommendation for every product.
func (p *Pipeline) RecommendAll(ctx context.Context) ([]*model.PricingRecommendation, error) {
	products := p.market.Products()
	ids := make([]string, len(products))
	for i, product := range products {
		ids[i] = product.ID
	}
	return p.recs.GenerateAll(ctx, ids)
}

// PredictStockouts refreshes every location's prediction and publishes the reorders.
func (p *Pipeline) PredictStockouts(ctx context.Context) error {
	results, err := p.stockout.PredictAll(ctx)
	for _, res := range results {
		if res.Reorder != nil {
			p.publishReorder(ctx, res.Reorder)
		}
	}
	return err
}

// SweepStale raises an alert for every inventory slot not observed within the stale bound.
func (p *Pipeline) SweepStale(ctx context.Context) int {
	stale := p.market.Stale(p.now(), p.opts.StaleAfter)
	for _, s := range stale {
		p.raise(model.Alert{
			Type:       model.AlertStaleObservation,
			Severity:   model.SeverityMedium,
			ProductIDs: []string{s.ProductID},
			LocationID: s.LocationID,
			Message: fmt.Sprintf("no inventory observation for %s at %s for %s; using the level from %s",
				s.ProductID, s.LocationID, s.Age.Round(time.Minute), s.LastObservedAt.Format(time.RFC3339)),
			RecommendedActions: []string{"check the location's sensors", "run a manual count"},
		})
	}
	if len(stale) > 0 {
		log.Warn().Int("slots", len(stale)).Msg("stale inventory observations")
	}
	return len(stale)
}

// RecommendationHistory returns persisted recommendations for productID. Every read is audited.
func (p *Pipeline) RecommendationHistory(ctx context.Context, productID, actor string, limit int) ([]model.PricingRecommendation, error) {
	entry := &model.AuditLogEntry{
		ID:           uuid.NewString(),
		Actor:        actor,
		Action:       model.AuditSensitiveRead,
		ResourceType: "recommendation_history",
		ResourceID:   productID,
		Detail:       fmt.Sprintf("limit %d", limit),
		Timestamp:    p.now(),
	}
	if err := p.history.RecordAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("audit history read: %w", err)
	}
	return p.history.Recommendations(ctx, productID, limit)
}

// ManualPriceChange applies a user-requested price and publishes it.
func (p *Pipeline) ManualPriceChange(ctx context.Context, productID string, price float64, actor string) (*model.PriceChange, error) {
	change, err := p.rules.ManualChange(ctx, productID, price, actor)
	if err != nil {
		return nil, err
	}
	p.changed(ctx, change)
	return change, nil
}

// Wait blocks until in-flight publishes and forecast tracking finish.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// changed publishes an executed price change and tracks its forecast.
func (p *Pipeline) changed(ctx context.Context, c *model.PriceChange) {
	p.publishChange(ctx, c)
	if p.forecasts != nil {
		p.async(ctx, func(ctx context.Context) error {
			_, err := p.forecasts.Track(ctx, c, p.opts.ForecastHorizon)
			return err
		}, "product", c.ProductID, "failed to track forecast of price change")
	}
}

func (p *Pipeline) publishChange(ctx context.Context, c *model.PriceChange) {
	p.async(ctx, func(ctx context.Context) error { return p.publisher.PublishPriceChange(ctx, c) },
		"product", c.ProductID, "failed to publish price change")
}

func (p *Pipeline) publishReorder(ctx context.Context, r *model.ReorderRecommendation) {
	p.async(ctx, func(ctx context.Context) error { return p.publisher.PublishReorder(ctx, r) },
		"product", r.ProductID, "failed to publish reorder")
}

func (p *Pipeline) async(ctx context.Context, fn func(context.Context) error, key, value, msg string) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.PublishTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Str(key, value).Msg(msg)
		}
	}()
}

func (p *Pipeline) raise(a model.Alert) {
	if p.alerts != nil {
		p.alerts.Raise(a)
	}
}
