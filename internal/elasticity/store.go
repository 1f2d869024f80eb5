// Package elasticity estimates and keeps the price elasticity of demand per product.
package elasticity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"PriceSentinel/internal/calculator"
	"PriceSentinel/internal/model"
)

const (
	// MinDataPoints is the smallest sample a product estimate is fitted from.
	MinDataPoints = 30
	// MinLookbackDays is the shortest history window ever used.
	MinLookbackDays = 90
	// fullConfidencePoints is the sample size at which confidence is no longer scaled down.
	fullConfidencePoints = 90
	// fallbackWidening widens fallback intervals by half.
	fallbackWidening = 1.5
	// maxFallbackConfidence keeps every fallback below 50.
	maxFallbackConfidence = 49
)

const (
	SourceCategory      = "category"
	SourceCategorySeed  = "category_seed"
	SourceGlobalDefault = "global_default"
)

var ErrNotFound = errors.New("elasticity: no result")

// Seed is an explicitly configured elasticity used when no product in a category has enough data.
type Seed struct {
	Coefficient float64 `yaml:"coefficient"`
	Lower       float64 `yaml:"lower"`
	Upper       float64 `yaml:"upper"`
	Confidence  float64 `yaml:"confidence"`
}

func (s Seed) interval() model.Interval {
	if s.Lower == 0 && s.Upper == 0 {
		return model.Interval{Lower: s.Coefficient - 0.5, Upper: s.Coefficient + 0.5}
	}
	return model.Interval{Lower: s.Lower, Upper: s.Upper}
}

// SalesSource reads sales history.
type SalesSource interface {
	Sales(ctx context.Context, productID string, since time.Time) ([]model.SalesRecord, error)
}

// Catalog resolves products.
type Catalog interface {
	Product(id string) (model.Product, bool)
	Products() []model.Product
}

// Sink persists results.
type Sink interface {
	RecordElasticity(ctx context.Context, res *model.ElasticityResult) error
}

// Options tunes the store.
type Options struct {
	LookbackDays   int
	HistoryTimeout time.Duration
	GlobalDefault  Seed
	CategorySeeds  map[string]Seed
}

// Store keeps every computed result; the latest per product is what readers get.
type Store struct {
	mu      sync.RWMutex
	history map[string][]model.ElasticityResult

	sales   SalesSource
	catalog Catalog
	sink    Sink
	opts    Options
	now     func() time.Time
}

// NewStore creates a Store. sink may be nil.
func NewStore(sales SalesSource, catalog Catalog, sink Sink, opts Options) *Store {
	if opts.LookbackDays < MinLookbackDays {
		opts.LookbackDays = MinLookbackDays
	}
	if opts.HistoryTimeout <= 0 {
		opts.HistoryTimeout = 10 * time.Second
	}
	if opts.GlobalDefault.Coefficient == 0 {
		opts.GlobalDefault = Seed{Coefficient: -1.5, Lower: -2.5, Upper: -0.5, Confidence: 40}
	}
	return &Store{
		history: make(map[string][]model.ElasticityResult),
		sales:   sales,
		catalog: catalog,
		sink:    sink,
		opts:    opts,
		now:     time.Now,
	}
}

// SeedCategory sets or replaces the configured default of a category.
func (s *Store) SeedCategory(categoryID string, seed Seed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.CategorySeeds == nil {
		s.opts.CategorySeeds = make(map[string]Seed)
	}
	s.opts.CategorySeeds[categoryID] = seed
}

// Get returns the most recent result for productID.
func (s *Store) Get(productID string) (model.ElasticityResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[productID]
	if len(h) == 0 {
		return model.ElasticityResult{}, fmt.Errorf("%w: %s", ErrNotFound, productID)
	}
	return h[len(h)-1], nil
}

// History returns every result computed for productID, oldest first.
func (s *Store) History(productID string) []model.ElasticityResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ElasticityResult(nil), s.history[productID]...)
}

// Refresh recomputes the elasticity of productID from its sales history.
func (s *Store) Refresh(ctx context.Context, productID string) (model.ElasticityResult, error) {
	product, ok := s.catalog.Product(productID)
	if !ok {
		return model.ElasticityResult{}, fmt.Errorf("elasticity: unknown product %s", productID)
	}

	now := s.now()
	since := now.AddDate(0, 0, -s.opts.LookbackDays)

	readCtx, cancel := context.WithTimeout(ctx, s.opts.HistoryTimeout)
	defer cancel()
	records, err := s.sales.Sales(readCtx, productID, since)
	if err != nil {
		return model.ElasticityResult{}, fmt.Errorf("read sales of %s: %w", productID, err)
	}

	var prices, qtys []float64
	var earliest time.Time
	for _, r := range records {
		if r.Price <= 0 || r.Quantity <= 0 {
			continue
		}
		if earliest.IsZero() || r.SoldAt.Before(earliest) {
			earliest = r.SoldAt
		}
		prices = append(prices, r.Price)
		qtys = append(qtys, r.Quantity)
	}

	res := model.ElasticityResult{
		ProductID:  productID,
		CategoryID: product.CategoryID,
		DataPoints: len(prices),
		ComputedAt: now,
	}
	if !earliest.IsZero() {
		res.HistoryDays = math.Floor(now.Sub(earliest).Hours() / 24)
	}

	fitted := false
	if len(prices) >= MinDataPoints {
		fit, err := calculator.FitLogLog(prices, qtys)
		switch {
		case err == nil:
			res.Coefficient = fit.Slope
			res.Interval = model.Interval{Lower: fit.Lower, Upper: fit.Upper}
			res.RSquared = fit.RSquared
			res.ConfidenceScore = 100 * fit.RSquared * math.Min(1, float64(fit.N)/fullConfidencePoints)
			if fit.Slope > 0 {
				// demand rising with price is implausible
				res.ConfidenceScore /= 2
			}
			fitted = true
		case errors.Is(err, calculator.ErrNoVariation):
			log.Info().Str("product", productID).Int("points", len(prices)).Msg("no price variation, using fallback elasticity")
		default:
			return model.ElasticityResult{}, fmt.Errorf("fit elasticity of %s: %w", productID, err)
		}
	}
	if !fitted {
		s.applyFallback(&res, product)
	}

	s.mu.Lock()
	s.history[productID] = append(s.history[productID], res)
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.RecordElasticity(ctx, &res); err != nil {
			log.Error().Err(err).Str("product", productID).Msg("failed to record elasticity")
		}
	}
	return res, nil
}

// applyFallback fills res from the category estimate, the category seed or the global default.
func (s *Store) applyFallback(res *model.ElasticityResult, product model.Product) {
	coef, interval, conf, source := s.fallbackSource(product)

	half := (interval.Upper - interval.Lower) / 2 * fallbackWidening
	res.FallbackUsed = true
	res.FallbackSource = source
	res.Coefficient = coef
	res.Interval = model.Interval{Lower: coef - half, Upper: coef + half}
	res.ConfidenceScore = math.Min(maxFallbackConfidence, 0.5*conf)
}

func (s *Store) fallbackSource(product model.Product) (float64, model.Interval, float64, string) {
	if product.CategoryID != "" {
		if est, ok := s.categoryEstimate(product); ok {
			return est.Coefficient, est.Interval, est.ConfidenceScore, SourceCategory
		}
		s.mu.RLock()
		seed, ok := s.opts.CategorySeeds[product.CategoryID]
		s.mu.RUnlock()
		if ok {
			return seed.Coefficient, seed.interval(), seed.Confidence, SourceCategorySeed
		}
	}
	g := s.opts.GlobalDefault
	return g.Coefficient, g.interval(), g.Confidence, SourceGlobalDefault
}

// categoryEstimate returns the newest fitted result of another product in the same category.
func (s *Store) categoryEstimate(product model.Product) (model.ElasticityResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best model.ElasticityResult
	found := false
	for id, h := range s.history {
		if id == product.ID || len(h) == 0 {
			continue
		}
		last := h[len(h)-1]
		if last.FallbackUsed || last.CategoryID != product.CategoryID || last.DataPoints < MinDataPoints {
			continue
		}
		if !found || last.ComputedAt.After(best.ComputedAt) {
			best, found = last, true
		}
	}
	return best, found
}

// RefreshAll refreshes every catalog product. Products with enough data are fitted first so
// their estimates can back category fallbacks in the same pass. A failed product is logged and skipped.
func (s *Store) RefreshAll(ctx context.Context) error {
	products := s.catalog.Products()
	var failed int

	pending := make([]model.Product, 0, len(products))
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.Refresh(ctx, p.ID)
		if err != nil {
			failed++
			log.Error().Err(err).Str("product", p.ID).Msg("elasticity refresh failed")
			continue
		}
		if res.FallbackSource != SourceCategory && res.FallbackUsed && p.CategoryID != "" {
			pending = append(pending, p)
		}
	}

	// second pass picks up category estimates produced later in the first pass
	for _, p := range pending {
		if _, ok := s.categoryEstimate(p); !ok {
			continue
		}
		if _, err := s.Refresh(ctx, p.ID); err != nil {
			failed++
			log.Error().Err(err).Str("product", p.ID).Msg("elasticity refresh failed")
		}
	}

	if failed > 0 {
		return fmt.Errorf("elasticity refresh: %d products failed", failed)
	}
	return nil
}
