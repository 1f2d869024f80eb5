// Package stockout predicts time-to-stockout per product and location and suggests reorders.
package stockout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"PriceSentinel/internal/calculator"
	"PriceSentinel/internal/forecast"
	"PriceSentinel/internal/model"
)

const (
	DefaultThresholdHours  = 48
	DefaultHistoryDays     = 28
	DefaultAlpha           = 0.3
	DefaultBeta            = 0.1
	DefaultAlertConfidence = 80
	// DefaultServiceZ is the one-sided 95% service level used for safety stock.
	DefaultServiceZ = 1.65

	trendBand = 0.05
	// fullHistoryDays of sales give the history component full weight.
	fullHistoryDays = 14
)

var ErrNoInventory = errors.New("stockout: no inventory level known")

// SalesSource reads sales history.
type SalesSource interface {
	Sales(ctx context.Context, productID string, since time.Time) ([]model.SalesRecord, error)
}

// InventorySource reads last known inventory.
type InventorySource interface {
	Product(id string) (model.Product, bool)
	Products() []model.Product
	Inventory(productID, locationID string) (model.InventoryObservation, bool)
	Locations(productID string) []string
	TotalInventory(productID string) (float64, bool)
}

// Seasonality returns the demand multiplier for a product at a time.
type Seasonality interface {
	Factor(productID string, t time.Time) float64
}

// Sink persists predictions and reorders.
type Sink interface {
	RecordStockout(ctx context.Context, p *model.StockoutPrediction) error
	RecordReorder(ctx context.Context, r *model.ReorderRecommendation) error
}

// Alerter raises alerts.
type Alerter interface {
	Raise(a model.Alert)
}

// Options tunes the predictor.
type Options struct {
	ThresholdHours  float64
	HistoryDays     int
	Alpha           float64
	Beta            float64
	AlertConfidence float64
	ServiceZ        float64
}

// Result is the outcome of one prediction.
type Result struct {
	Prediction model.StockoutPrediction
	Reorder    *model.ReorderRecommendation
	Alert      *model.Alert
}

// Predictor computes predictions and remembers the latest one per product and location.
type Predictor struct {
	sales     SalesSource
	inventory InventorySource
	season    Seasonality
	sink      Sink
	alerts    Alerter
	opts      Options
	now       func() time.Time

	mu     sync.RWMutex
	latest map[string]map[string]model.StockoutPrediction
}

// New creates a Predictor. season, sink and alerts may be nil.
func New(sales SalesSource, inventory InventorySource, season Seasonality, sink Sink, alerts Alerter, opts Options) *Predictor {
	if opts.ThresholdHours <= 0 {
		opts.ThresholdHours = DefaultThresholdHours
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = DefaultHistoryDays
	}
	if opts.Alpha <= 0 {
		opts.Alpha = DefaultAlpha
	}
	if opts.Beta <= 0 {
		opts.Beta = DefaultBeta
	}
	if opts.AlertConfidence <= 0 {
		opts.AlertConfidence = DefaultAlertConfidence
	}
	if opts.ServiceZ <= 0 {
		opts.ServiceZ = DefaultServiceZ
	}
	return &Predictor{
		sales:     sales,
		inventory: inventory,
		season:    season,
		sink:      sink,
		alerts:    alerts,
		opts:      opts,
		now:       time.Now,
		latest:    make(map[string]map[string]model.StockoutPrediction),
	}
}

// Predict estimates when locationID runs out of productID.
// Sales are recorded per product, so a location carries velocity in proportion to its share of known stock.
// A location that is already empty is at risk immediately and reorders against the full product velocity.
func (p *Predictor) Predict(ctx context.Context, productID, locationID string) (Result, error) {
	product, ok := p.inventory.Product(productID)
	if !ok {
		return Result{}, fmt.Errorf("stockout: unknown product %s", productID)
	}
	obs, ok := p.inventory.Inventory(productID, locationID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s at %s", ErrNoInventory, productID, locationID)
	}
	share := 1.0
	if total, ok := p.inventory.TotalInventory(productID); ok && total > 0 {
		share = obs.Quantity / total
	}

	now := p.now()
	since := now.Add(-time.Duration(p.opts.HistoryDays) * 24 * time.Hour)
	records, err := p.sales.Sales(ctx, productID, since)
	if err != nil {
		return Result{}, fmt.Errorf("read sales of %s: %w", productID, err)
	}
	base := forecast.DailyBaseline(records, since, p.opts.HistoryDays)

	level, trend, err := calculator.Holt(base.Daily, p.opts.Alpha, p.opts.Beta)
	if err != nil {
		return Result{}, err
	}
	seasonal := 1.0
	if p.season != nil {
		seasonal = p.season.Factor(productID, now)
	}
	productVelocity := math.Max(0, level+trend) * seasonal
	empty := obs.Quantity <= 0 && productVelocity > 0
	if empty {
		// an empty location holds no share, but its demand has not gone away
		share = 1
	}
	velocity := productVelocity * share

	pred := model.StockoutPrediction{
		ProductID:        productID,
		LocationID:       locationID,
		CurrentInventory: obs.Quantity,
		DailyVelocity:    velocity,
		Confidence:       p.confidence(base, obs.Confidence),
		Trend:            classify(level, trend),
		PredictedAt:      now,
		ThresholdHours:   p.opts.ThresholdHours,
	}
	switch {
	case empty:
		pred.StockoutAt = now
	case velocity <= 0:
		pred.Unbounded = true
	default:
		pred.HoursToStockout = obs.Quantity / velocity * 24
		pred.StockoutAt = now.Add(time.Duration(pred.HoursToStockout * float64(time.Hour)))
	}

	res := Result{Prediction: pred}
	if pred.AtRisk() {
		res.Reorder = p.reorder(product, pred, base.StdDev*seasonal*share)
		if pred.Confidence > p.opts.AlertConfidence {
			res.Alert = stockoutAlert(pred, res.Reorder)
		}
	}

	p.mu.Lock()
	if p.latest[productID] == nil {
		p.latest[productID] = make(map[string]model.StockoutPrediction)
	}
	p.latest[productID][locationID] = pred
	p.mu.Unlock()

	p.emit(ctx, res)
	return res, nil
}

// confidence blends how steady daily sales are, how much sales history exists and how much the
// inventory observation is trusted.
func (p *Predictor) confidence(base forecast.Baseline, observation float64) float64 {
	varianceScore := 0.0
	if base.Mean > 0 {
		varianceScore = 100 / (1 + base.StdDev/base.Mean)
	}
	covered := 0
	for i, q := range base.Daily {
		if q > 0 {
			covered = len(base.Daily) - i
			break
		}
	}
	history := math.Min(1, float64(covered)/fullHistoryDays)
	return math.Min(100, 0.5*varianceScore*history+0.5*observation)
}

func classify(level, trend float64) model.Trend {
	if level <= 0 {
		return model.TrendStable
	}
	switch r := trend / level; {
	case r > trendBand:
		return model.TrendIncreasing
	case r < -trendBand:
		return model.TrendDecreasing
	default:
		return model.TrendStable
	}
}

// Urgency maps time-to-stockout to an urgency level; shorter is more urgent.
func Urgency(hours, threshold float64) model.Urgency {
	switch r := hours / threshold; {
	case r < 0.25:
		return model.UrgencyCritical
	case r < 0.5:
		return model.UrgencyHigh
	case r < 0.75:
		return model.UrgencyMedium
	default:
		return model.UrgencyLow
	}
}

// reorder covers lead-time demand plus safety stock at the configured service level.
func (p *Predictor) reorder(product model.Product, pred model.StockoutPrediction, dailySD float64) *model.ReorderRecommendation {
	lead := product.LeadTimeDays
	if lead <= 0 {
		lead = 1
	}
	safety := p.opts.ServiceZ * dailySD * math.Sqrt(lead)
	// float noise from smoothing must not round a whole unit up
	qty := math.Max(1, math.Ceil(pred.DailyVelocity*lead+safety-1e-9))
	return &model.ReorderRecommendation{
		ID:           uuid.NewString(),
		ProductID:    pred.ProductID,
		LocationID:   pred.LocationID,
		Quantity:     qty,
		Urgency:      Urgency(pred.HoursToStockout, pred.ThresholdHours),
		LeadTimeDays: lead,
		SafetyStock:  safety,
		CreatedAt:    pred.PredictedAt,
	}
}

var urgencySeverity = map[model.Urgency]model.Severity{
	model.UrgencyCritical: model.SeverityCritical,
	model.UrgencyHigh:     model.SeverityHigh,
	model.UrgencyMedium:   model.SeverityMedium,
	model.UrgencyLow:      model.SeverityLow,
}

func stockoutAlert(pred model.StockoutPrediction, ro *model.ReorderRecommendation) *model.Alert {
	return &model.Alert{
		Type:       model.AlertStockoutRisk,
		Severity:   urgencySeverity[ro.Urgency],
		ProductIDs: []string{pred.ProductID},
		LocationID: pred.LocationID,
		Message: fmt.Sprintf("%s at %s runs out in %.1fh (%.1f units/day, confidence %.0f)",
			pred.ProductID, pred.LocationID, pred.HoursToStockout, pred.DailyVelocity, pred.Confidence),
		RecommendedActions: []string{
			fmt.Sprintf("reorder %.0f units (%s)", ro.Quantity, ro.Urgency),
			"hold price reductions",
		},
	}
}

func (p *Predictor) emit(ctx context.Context, res Result) {
	if p.sink != nil {
		if err := p.sink.RecordStockout(ctx, &res.Prediction); err != nil {
			log.Error().Err(err).Str("product", res.Prediction.ProductID).Msg("failed to record stockout prediction")
		}
		if res.Reorder != nil {
			if err := p.sink.RecordReorder(ctx, res.Reorder); err != nil {
				log.Error().Err(err).Str("product", res.Reorder.ProductID).Msg("failed to record reorder")
			}
		}
	}
	if res.Alert != nil && p.alerts != nil {
		p.alerts.Raise(*res.Alert)
	}
}

// Latest returns the most urgent live prediction for productID: the at-risk one closest to stockout,
// else the nearest bounded one, else any.
func (p *Predictor) Latest(productID string) (model.StockoutPrediction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var best model.StockoutPrediction
	found := false
	for _, pred := range p.latest[productID] {
		if !found || moreUrgent(pred, best) {
			best, found = pred, true
		}
	}
	return best, found
}

func moreUrgent(a, b model.StockoutPrediction) bool {
	if a.Unbounded != b.Unbounded {
		return !a.Unbounded
	}
	if a.HoursToStockout != b.HoursToStockout {
		return a.HoursToStockout < b.HoursToStockout
	}
	return a.LocationID < b.LocationID
}

// PredictAll refreshes predictions for every product location with known inventory.
func (p *Predictor) PredictAll(ctx context.Context) ([]Result, error) {
	var out []Result
	var errs []error
	for _, product := range p.inventory.Products() {
		for _, loc := range p.inventory.Locations(product.ID) {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			res, err := p.Predict(ctx, product.ID, loc)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, res)
		}
	}
	return out, errors.Join(errs...)
}
