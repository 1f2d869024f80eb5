// Package forecast projects revenue, margin and volume at a proposed price under a constant-elasticity demand curve.
package forecast

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
	"PriceSentinel/internal/elasticity"
	"PriceSentinel/internal/model"
)

const (
	DefaultBaselineDays      = 28
	DefaultTimeout           = 5 * time.Second
	DefaultVarianceThreshold = 0.20
	z95                      = 1.96
)

var ErrInvalidPrice = errors.New("forecast: prices must be positive")

// ElasticitySource supplies elasticity estimates.
type ElasticitySource interface {
	Get(productID string) (model.ElasticityResult, error)
	Refresh(ctx context.Context, productID string) (model.ElasticityResult, error)
}

// SalesSource reads sales history.
type SalesSource interface {
	Sales(ctx context.Context, productID string, since time.Time) ([]model.SalesRecord, error)
}

// Catalog resolves products.
type Catalog interface {
	Product(id string) (model.Product, bool)
}

// CurrentPricer returns the price in effect.
type CurrentPricer interface {
	CurrentPrice(productID string) (float64, error)
}

// Seasonality returns the demand multiplier for a product at a time.
type Seasonality interface {
	Factor(productID string, t time.Time) float64
}

// Sink persists issued forecasts and variance records.
type Sink interface {
	RecordForecast(ctx context.Context, f *model.RevenueForecast) error
	RecordVariance(ctx context.Context, v *model.VarianceRecord) error
}

// Alerter raises alerts.
type Alerter interface {
	Raise(a model.Alert)
}

// Options tunes the forecaster.
type Options struct {
	BaselineDays      int
	Timeout           time.Duration
	VarianceThreshold float64
}

// Forecaster computes forecasts and tracks issued ones against realized revenue.
type Forecaster struct {
	elasticity ElasticitySource
	sales      SalesSource
	catalog    Catalog
	prices     CurrentPricer
	season     Seasonality
	sink       Sink
	alerts     Alerter
	opts       Options
	now        func() time.Time

	mu      sync.Mutex
	tracked map[string]model.RevenueForecast
}

// New creates a Forecaster. season, sink and alerts may be nil.
func New(el ElasticitySource, sales SalesSource, catalog Catalog, prices CurrentPricer, season Seasonality, sink Sink, alerts Alerter, opts Options) *Forecaster {
	if opts.BaselineDays <= 0 {
		opts.BaselineDays = DefaultBaselineDays
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.VarianceThreshold <= 0 {
		opts.VarianceThreshold = DefaultVarianceThreshold
	}
	return &Forecaster{
		elasticity: el,
		sales:      sales,
		catalog:    catalog,
		prices:     prices,
		season:     season,
		sink:       sink,
		alerts:     alerts,
		opts:       opts,
		now:        time.Now,
		tracked:    make(map[string]model.RevenueForecast),
	}
}

// Forecast projects the effect of moving productID from its current price to proposedPrice.
func (f *Forecaster) Forecast(ctx context.Context, productID string, proposedPrice float64, horizonDays int) (model.RevenueForecast, error) {
	product, ok := f.catalog.Product(productID)
	if !ok {
		return model.RevenueForecast{}, fmt.Errorf("forecast: unknown product %s", productID)
	}
	current, err := f.prices.CurrentPrice(productID)
	if err != nil {
		return model.RevenueForecast{}, err
	}
	return f.ForecastFrom(ctx, product, current, proposedPrice, horizonDays)
}

// ForecastFrom is Forecast with the current price supplied by the caller, so every candidate
// of one recommendation is measured against the same baseline.
func (f *Forecaster) ForecastFrom(ctx context.Context, product model.Product, currentPrice, proposedPrice float64, horizonDays int) (model.RevenueForecast, error) {
	if currentPrice <= 0 || proposedPrice <= 0 {
		return model.RevenueForecast{}, ErrInvalidPrice
	}
	if horizonDays <= 0 {
		horizonDays = 1
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	c, err := f.CurveFor(ctx, product, currentPrice, horizonDays)
	if err != nil {
		return model.RevenueForecast{}, err
	}
	out := c.Forecast(product, proposedPrice, horizonDays)
	out.ID = uuid.NewString()
	out.IssuedAt = f.now()
	if err := ctx.Err(); err != nil {
		return model.RevenueForecast{}, err
	}
	return out, nil
}

// CurveFor builds the demand curve of product anchored at currentPrice from its latest elasticity,
// its recent sales and the seasonal factor at the middle of the horizon.
func (f *Forecaster) CurveFor(ctx context.Context, product model.Product, currentPrice float64, horizonDays int) (Curve, error) {
	if currentPrice <= 0 {
		return Curve{}, ErrInvalidPrice
	}
	el, err := f.elasticityOf(ctx, product.ID)
	if err != nil {
		return Curve{}, err
	}
	base, err := f.Baseline(ctx, product.ID)
	if err != nil {
		return Curve{}, err
	}
	seasonal := 1.0
	if f.season != nil {
		mid := f.now().Add(time.Duration(horizonDays) * 12 * time.Hour)
		seasonal = f.season.Factor(product.ID, mid)
	}
	return Curve{
		BaseDaily:  base.Mean,
		DailySD:    base.StdDev,
		RefPrice:   currentPrice,
		Elasticity: el,
		Seasonal:   seasonal,
	}, nil
}

func (f *Forecaster) elasticityOf(ctx context.Context, productID string) (model.ElasticityResult, error) {
	el, err := f.elasticity.Get(productID)
	if errors.Is(err, elasticity.ErrNotFound) {
		return f.elasticity.Refresh(ctx, productID)
	}
	return el, err
}

// Baseline summarizes daily unit sales over the baseline window.
type Baseline struct {
	Mean   float64
	StdDev float64
	Daily  []float64
}

// Baseline bins the last BaselineDays of sales into days, oldest first. Days without sales count as zero.
func (f *Forecaster) Baseline(ctx context.Context, productID string) (Baseline, error) {
	days := f.opts.BaselineDays
	now := f.now()
	since := now.Add(-time.Duration(days) * 24 * time.Hour)
	records, err := f.sales.Sales(ctx, productID, since)
	if err != nil {
		return Baseline{}, fmt.Errorf("read sales of %s: %w", productID, err)
	}
	return DailyBaseline(records, since, days), nil
}

// DailyBaseline bins records into days daily buckets starting at since.
func DailyBaseline(records []model.SalesRecord, since time.Time, days int) Baseline {
	daily := make([]float64, days)
	for _, r := range records {
		i := int(r.SoldAt.Sub(since) / (24 * time.Hour))
		if i >= 0 && i < days {
			daily[i] += r.Quantity
		}
	}
	mean, err := calculator.CalculateSMA(daily, days)
	if err != nil {
		mean = 0
	}
	return Baseline{Mean: mean, StdDev: calculator.StdDev(daily), Daily: daily}
}

// Curve is a constant-elasticity demand curve anchored at a reference price.
type Curve struct {
	BaseDaily  float64
	DailySD    float64
	RefPrice   float64
	Elasticity model.ElasticityResult
	Seasonal   float64
}

// Volume is the expected units sold at price over h days.
func (c Curve) Volume(price, h float64) float64 {
	return c.volumeAt(price, c.Elasticity.Coefficient, h)
}

func (c Curve) volumeAt(price, coef, h float64) float64 {
	return c.BaseDaily * math.Pow(price/c.RefPrice, coef) * c.Seasonal * h
}

// VolumeInterval spans the elasticity interval bounds, widened by sales noise over the horizon.
func (c Curve) VolumeInterval(price, h float64) model.Interval {
	a := c.volumeAt(price, c.Elasticity.Interval.Lower, h)
	b := c.volumeAt(price, c.Elasticity.Interval.Upper, h)
	lo, hi := math.Min(a, b), math.Max(a, b)
	noise := z95 * c.DailySD * math.Sqrt(h) * c.Seasonal
	return model.Interval{Lower: math.Max(0, lo-noise), Upper: hi + noise}
}

// Revenue at price over h days.
func (c Curve) Revenue(price, h float64) float64 {
	return price * c.Volume(price, h)
}

// Margin at price over h days for unit cost.
func (c Curve) Margin(price, cost, h float64) float64 {
	return (price - cost) * c.Volume(price, h)
}

// Forecast evaluates the curve at proposedPrice. It does no I/O; ID and IssuedAt are left to the caller.
func (c Curve) Forecast(product model.Product, proposedPrice float64, horizonDays int) model.RevenueForecast {
	h := float64(horizonDays)
	current := c.RefPrice

	baseVol := c.Volume(current, h)
	expVol := c.Volume(proposedPrice, h)
	volInt := c.VolumeInterval(proposedPrice, h)

	out := model.RevenueForecast{
		ProductID:          product.ID,
		CurrentPrice:       current,
		ProposedPrice:      proposedPrice,
		HorizonDays:        horizonDays,
		BaselineRevenue:    current * baseVol,
		ExpectedRevenue:    proposedPrice * expVol,
		ExpectedVolume:     expVol,
		ExpectedMargin:     (proposedPrice - product.Cost) * expVol,
		VolumeInterval:     volInt,
		RevenueInterval:    model.Interval{Lower: proposedPrice * volInt.Lower, Upper: proposedPrice * volInt.Upper},
		SeasonalFactor:     c.Seasonal,
		ElasticityUsed:     c.Elasticity.Coefficient,
		ElasticityFallback: c.Elasticity.FallbackUsed,
	}
	baseMargin := (current - product.Cost) * baseVol
	out.RevenueDelta = out.ExpectedRevenue - out.BaselineRevenue
	out.MarginDelta = out.ExpectedMargin - baseMargin
	out.VolumeDelta = expVol - baseVol
	out.RevenueDeltaPct = pct(out.RevenueDelta, out.BaselineRevenue)
	out.MarginDeltaPct = pct(out.MarginDelta, baseMargin)
	out.VolumeDeltaPct = pct(out.VolumeDelta, baseVol)

	if out.ExpectedRevenue > 0 {
		half := (out.RevenueInterval.Upper - out.RevenueInterval.Lower) / 2
		out.Confidence = clamp(100*(1-half/out.ExpectedRevenue), 0, 100)
	}
	return out
}

// Issue forecasts and keeps the result for reconciliation once its horizon has passed.
func (f *Forecaster) Issue(ctx context.Context, productID string, proposedPrice float64, horizonDays int) (model.RevenueForecast, error) {
	fc, err := f.Forecast(ctx, productID, proposedPrice, horizonDays)
	if err != nil {
		return model.RevenueForecast{}, err
	}
	f.track(ctx, fc)
	return fc, nil
}

// Track forecasts an executed price change from its old to its new price and keeps the result
// for reconciliation.
func (f *Forecaster) Track(ctx context.Context, change *model.PriceChange, horizonDays int) (model.RevenueForecast, error) {
	product, ok := f.catalog.Product(change.ProductID)
	if !ok {
		return model.RevenueForecast{}, fmt.Errorf("forecast: unknown product %s", change.ProductID)
	}
	fc, err := f.ForecastFrom(ctx, product, change.OldPrice, change.NewPrice, horizonDays)
	if err != nil {
		return model.RevenueForecast{}, err
	}
	f.track(ctx, fc)
	return fc, nil
}

// Tracked returns the number of forecasts waiting for reconciliation.
func (f *Forecaster) Tracked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tracked)
}

func (f *Forecaster) track(ctx context.Context, fc model.RevenueForecast) {
	f.mu.Lock()
	f.tracked[fc.ID] = fc
	f.mu.Unlock()

	if f.sink != nil {
		if err := f.sink.RecordForecast(ctx, &fc); err != nil {
			log.Error().Err(err).Str("forecast", fc.ID).Msg("failed to record forecast")
		}
	}
}

// Reconcile compares every matured tracked forecast with realized revenue. Misses beyond the variance
// threshold append a VarianceRecord and raise a forecast_variance alert. Reconciled forecasts are forgotten;
// a forecast whose sales cannot be read stays tracked for the next run.
func (f *Forecaster) Reconcile(ctx context.Context) ([]model.VarianceRecord, error) {
	now := f.now()

	f.mu.Lock()
	var due []model.RevenueForecast
	for _, fc := range f.tracked {
		if !fc.IssuedAt.AddDate(0, 0, fc.HorizonDays).After(now) {
			due = append(due, fc)
		}
	}
	f.mu.Unlock()

	var out []model.VarianceRecord
	var errs []error
	for _, fc := range due {
		end := fc.IssuedAt.AddDate(0, 0, fc.HorizonDays)
		records, err := f.sales.Sales(ctx, fc.ProductID, fc.IssuedAt)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", fc.ID, err))
			continue
		}
		realized := 0.0
		for _, r := range records {
			if !r.SoldAt.Before(end) {
				break
			}
			rev := r.Revenue
			if rev == 0 {
				rev = r.Quantity * r.Price
			}
			realized += rev
		}

		f.mu.Lock()
		delete(f.tracked, fc.ID)
		f.mu.Unlock()

		variance := 1.0
		if realized > 0 {
			variance = (fc.ExpectedRevenue - realized) / realized
		} else if fc.ExpectedRevenue == 0 {
			variance = 0
		}
		if math.Abs(variance) <= f.opts.VarianceThreshold {
			continue
		}

		rec := model.VarianceRecord{
			ForecastID:       fc.ID,
			ProductID:        fc.ProductID,
			PredictedRevenue: fc.ExpectedRevenue,
			RealizedRevenue:  realized,
			VariancePct:      variance * 100,
			RecordedAt:       now,
		}
		out = append(out, rec)
		if f.sink != nil {
			if err := f.sink.RecordVariance(ctx, &rec); err != nil {
				log.Error().Err(err).Str("forecast", fc.ID).Msg("failed to record forecast variance")
			}
		}
		if f.alerts != nil {
			f.alerts.Raise(model.Alert{
				Type:       model.AlertForecastVariance,
				Severity:   model.SeverityMedium,
				ProductIDs: []string{fc.ProductID},
				Message: fmt.Sprintf("forecast %s predicted %.2f revenue, realized %.2f (%+.1f%%)",
					fc.ID, fc.ExpectedRevenue, realized, variance*100),
				RecommendedActions: []string{"refresh elasticity", "review seasonal factors"},
			})
		}
	}
	return out, errors.Join(errs...)
}

func pct(delta, base float64) float64 {
	if base == 0 {
		return 0
	}
	return delta / math.Abs(base) * 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
