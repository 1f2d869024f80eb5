// Package competitive places a product's price among its competitors.
package competitive

import (
	"errors"
	"fmt"
	"math"

	"PriceSentinel/internal/calculator"
	"PriceSentinel/internal/model"
)

// DefaultGapThreshold flags a price more than 20% away from the competitor median.
const DefaultGapThreshold = 0.20

// ErrNoCompetitors is returned when no competitor prices are available.
var ErrNoCompetitors = errors.New("competitive: no competitor prices")

// Analyze computes the rank, percentile and distribution of competitorPrices around userPrice.
// A non-positive threshold uses DefaultGapThreshold.
func Analyze(userPrice float64, competitorPrices []float64, threshold float64) (model.CompetitivePosition, error) {
	if len(competitorPrices) == 0 {
		return model.CompetitivePosition{}, ErrNoCompetitors
	}
	if userPrice <= 0 {
		return model.CompetitivePosition{}, fmt.Errorf("competitive: invalid user price %.2f", userPrice)
	}
	if threshold <= 0 {
		threshold = DefaultGapThreshold
	}

	sorted := calculator.Sorted(competitorPrices)
	q1, median, q3, err := calculator.Quartiles(sorted)
	if err != nil {
		return model.CompetitivePosition{}, err
	}

	// user price sorts ahead of equal competitor prices
	rank := calculator.RankOf(userPrice, sorted)
	count := len(sorted) + 1

	pos := model.CompetitivePosition{
		UserPrice:       userPrice,
		Rank:            rank,
		Count:           count,
		Percentile:      float64(rank) / float64(count),
		Min:             sorted[0],
		Max:             sorted[len(sorted)-1],
		Median:          median,
		Q1:              q1,
		Q3:              q3,
		Mean:            calculator.Mean(sorted),
		CompetitorCount: len(sorted),
	}
	if median > 0 {
		pos.GapPct = (userPrice - median) / median
		pos.GapFlagged = math.Abs(pos.GapPct) > threshold
	}
	return pos, nil
}

// PriceSource returns the current competitor observations for a product.
type PriceSource interface {
	CompetitorPrices(productID string) []model.PricePoint
}

// CurrentPricer returns the product's own current price.
type CurrentPricer interface {
	CurrentPrice(productID string) (float64, error)
}

// Analyzer answers position queries from live state.
type Analyzer struct {
	prices    PriceSource
	own       CurrentPricer
	threshold float64
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(prices PriceSource, own CurrentPricer, threshold float64) *Analyzer {
	return &Analyzer{prices: prices, own: own, threshold: threshold}
}

// Position returns the competitive position of productID at its current price.
func (a *Analyzer) Position(productID string) (model.CompetitivePosition, error) {
	price, err := a.own.CurrentPrice(productID)
	if err != nil {
		return model.CompetitivePosition{}, err
	}
	return a.PositionAt(productID, price)
}

// PositionAt returns the competitive position productID would have at price.
func (a *Analyzer) PositionAt(productID string, price float64) (model.CompetitivePosition, error) {
	pos, err := Analyze(price, Prices(a.prices.CompetitorPrices(productID)), a.threshold)
	if err != nil {
		return model.CompetitivePosition{}, err
	}
	pos.ProductID = productID
	return pos, nil
}

// Prices extracts the prices of available observations.
func Prices(points []model.PricePoint) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Available && p.Price > 0 {
			out = append(out, p.Price)
		}
	}
	return out
}

// WeightedAverage averages available competitor prices by importance weight.
// ok is false when every weight is zero.
func WeightedAverage(points []model.PricePoint, weight func(competitorID string) float64) (float64, bool) {
	var sum, wsum float64
	for _, p := range points {
		if !p.Available || p.Price <= 0 {
			continue
		}
		w := weight(p.CompetitorID)
		sum += p.Price * w
		wsum += w
	}
	if wsum <= 0 {
		return 0, false
	}
	return sum / wsum, true
}
