package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceSentinel/internal/competitive"
	"PriceSentinel/internal/model"
	"PriceSentinel/internal/pricebook"
)

// PriceBook is the read side of the price book.
type PriceBook interface {
	Get(productID string) (pricebook.Entry, error)
}

// StockoutSource returns the most urgent live stockout prediction for a product.
type StockoutSource interface {
	Latest(productID string) (model.StockoutPrediction, bool)
}

// Snapshotter assembles ProductState values from the store, the price book and the latest predictions.
type Snapshotter struct {
	store    *Store
	book     PriceBook
	stockout StockoutSource
	analyzer *competitive.Analyzer
	now      func() time.Time
}

// NewSnapshotter creates a Snapshotter. stockout may be nil.
func NewSnapshotter(store *Store, book PriceBook, stockout StockoutSource, gapThreshold float64) *Snapshotter {
	return &Snapshotter{
		store:    store,
		book:     book,
		stockout: stockout,
		analyzer: competitive.NewAnalyzer(store, bookPricer{book}, gapThreshold),
		now:      time.Now,
	}
}

type bookPricer struct{ book PriceBook }

func (b bookPricer) CurrentPrice(productID string) (float64, error) {
	e, err := b.book.Get(productID)
	if err != nil {
		return 0, err
	}
	return e.PriceFloat(), nil
}

// Position returns the competitive position of productID at its current price.
func (s *Snapshotter) Position(productID string) (model.CompetitivePosition, error) {
	if _, ok := s.store.Product(productID); !ok {
		return model.CompetitivePosition{}, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	return s.analyzer.Position(productID)
}

// State returns the current state of productID.
func (s *Snapshotter) State(ctx context.Context, productID string) (model.ProductState, error) {
	if err := ctx.Err(); err != nil {
		return model.ProductState{}, err
	}
	product, ok := s.store.Product(productID)
	if !ok {
		return model.ProductState{}, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	entry, err := s.book.Get(productID)
	if err != nil {
		return model.ProductState{}, fmt.Errorf("price of %s: %w", productID, err)
	}

	state := model.ProductState{
		Product:          product,
		CurrentPrice:     entry.PriceFloat(),
		PriceVersion:     entry.Version,
		CompetitorPrices: s.store.CompetitorPrices(productID),
		EventAt:          s.store.LastEvent(productID),
		TakenAt:          s.now(),
	}
	state.Inventory, state.InventoryKnown = s.store.TotalInventory(productID)

	// measured at the snapshot's price so position and version agree
	pos, err := s.analyzer.PositionAt(productID, state.CurrentPrice)
	switch {
	case err == nil:
		state.Position = &pos
	case !errors.Is(err, competitive.ErrNoCompetitors):
		return model.ProductState{}, err
	}

	if s.stockout != nil {
		if pred, ok := s.stockout.Latest(productID); ok {
			state.Stockout = &pred
		}
	}
	return state, nil
}
