// Package pricebook owns the current price of every product.
// Writers must present the version they read; a stale version is refused instead of overwritten.
package pricebook

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"PriceSentinel/internal/model"
)

var (
	ErrNotFound        = errors.New("pricebook: product not found")
	ErrVersionConflict = errors.New("pricebook: version conflict")
	ErrInvalidPrice    = errors.New("pricebook: price must be positive")
)

// Book holds versioned prices with optimistic concurrency.
// An empty filePath keeps the book in memory only.
type Book struct {
	mu       sync.RWMutex
	state    *State
	filePath string
	now      func() time.Time
}

// New creates a Book, loading state from disk and seeding any product without a stored price
// from its configured initial price (falling back to the base price).
func New(filePath string, products []model.Product) (*Book, error) {
	state := &State{Entries: map[string]Entry{}}
	if filePath != "" {
		var err error
		if state, err = LoadState(filePath); err != nil {
			return nil, err
		}
	}

	b := &Book{state: state, filePath: filePath, now: time.Now}
	for _, p := range products {
		if _, ok := state.Entries[p.ID]; ok {
			continue
		}
		initial := p.InitialPrice
		if initial <= 0 {
			initial = p.BasePrice
		}
		if initial <= 0 {
			return nil, fmt.Errorf("product %s: no initial or base price", p.ID)
		}
		state.Entries[p.ID] = Entry{
			ProductID: p.ID,
			Price:     decimal.NewFromFloat(initial).Round(2),
			Version:   1,
			UpdatedBy: "seed",
			UpdatedAt: b.now(),
		}
	}
	if err := b.save(); err != nil {
		return nil, err
	}
	return b, nil
}

// Get returns a copy of the product's entry.
func (b *Book) Get(productID string) (Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.state.Entries[productID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// CurrentPrice returns the product's price as a float.
func (b *Book) CurrentPrice(productID string) (float64, error) {
	e, err := b.Get(productID)
	if err != nil {
		return 0, err
	}
	return e.PriceFloat(), nil
}

// CompareAndSet replaces the price when the stored version equals expected.
// The returned entry carries the new version.
func (b *Book) CompareAndSet(productID string, expected int64, price float64, actor string) (Entry, error) {
	if price <= 0 {
		return Entry{}, ErrInvalidPrice
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.state.Entries[productID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if cur.Version != expected {
		return cur, fmt.Errorf("%w: have %d, expected %d", ErrVersionConflict, cur.Version, expected)
	}

	next := Entry{
		ProductID: productID,
		Price:     decimal.NewFromFloat(price).Round(2),
		Version:   cur.Version + 1,
		UpdatedBy: actor,
		UpdatedAt: b.now(),
	}
	b.state.Entries[productID] = next

	if err := b.save(); err != nil {
		// in-memory state stays authoritative; the next successful save catches the file up
		log.Error().Err(err).Str("product", productID).Msg("failed to save price book")
	}
	return next, nil
}

func (b *Book) save() error {
	if b.filePath == "" {
		return nil
	}
	return SaveState(b.filePath, b.state)
}
