// Package market holds the observed market, demand and inventory state the pricing core reads from.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"PriceSentinel/internal/model"
)

// DefaultMinConfidence is the lowest inventory observation confidence that replaces the last known level.
const DefaultMinConfidence = 40

var (
	ErrUnknownProduct = errors.New("market: unknown product")
	ErrInvalidEvent   = errors.New("market: invalid event")
)

// StaleObservation is an inventory slot that has not been refreshed within the allowed age.
type StaleObservation struct {
	ProductID      string
	LocationID     string
	LastObservedAt time.Time
	Age            time.Duration
}

// Store keeps the latest competitor prices, the sales history and the last known inventory per location.
// Observations older than the last applied one from the same source are dropped.
type Store struct {
	mu            sync.RWMutex
	products      map[string]model.Product
	prices        map[string]map[string]model.PricePoint           // product -> competitor/channel
	sales         map[string][]model.SalesRecord                   // product -> sold_at ascending
	inventory     map[string]map[string]model.InventoryObservation // product -> location
	watermarks    map[string]time.Time                             // product/source -> last applied
	observed      map[string]time.Time                             // product/location -> last accepted
	lastEvent     map[string]time.Time
	minConfidence float64
}

// NewStore creates a Store for the given catalog.
func NewStore(products []model.Product, minConfidence float64) *Store {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	s := &Store{
		products:      make(map[string]model.Product, len(products)),
		prices:        make(map[string]map[string]model.PricePoint),
		sales:         make(map[string][]model.SalesRecord),
		inventory:     make(map[string]map[string]model.InventoryObservation),
		watermarks:    make(map[string]time.Time),
		observed:      make(map[string]time.Time),
		lastEvent:     make(map[string]time.Time),
		minConfidence: minConfidence,
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

// Product returns a catalog entry.
func (s *Store) Product(id string) (model.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

// Products returns the catalog ordered by id.
func (s *Store) Products() []model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyPricePoint records a competitor observation. applied is false when it was older than the
// last observation from the same competitor channel.
func (s *Store) ApplyPricePoint(pp model.PricePoint) (applied bool, err error) {
	if pp.Price <= 0 || pp.CompetitorID == "" {
		return false, fmt.Errorf("%w: price point %+v", ErrInvalidEvent, pp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[pp.ProductID]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownProduct, pp.ProductID)
	}
	source := pp.CompetitorID + "/" + pp.ChannelID
	if !s.advance(pp.ProductID+"|price|"+source, pp.ObservedAt) {
		return false, nil
	}
	if s.prices[pp.ProductID] == nil {
		s.prices[pp.ProductID] = make(map[string]model.PricePoint)
	}
	s.prices[pp.ProductID][source] = pp
	s.touch(pp.ProductID, pp.ObservedAt)
	return true, nil
}

// ApplySales inserts a sale in timestamp order.
func (s *Store) ApplySales(rec model.SalesRecord) error {
	if rec.Quantity < 0 || rec.Price < 0 {
		return fmt.Errorf("%w: sales record %+v", ErrInvalidEvent, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[rec.ProductID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, rec.ProductID)
	}
	hist := s.sales[rec.ProductID]
	i := sort.Search(len(hist), func(i int) bool { return hist[i].SoldAt.After(rec.SoldAt) })
	hist = append(hist, model.SalesRecord{})
	copy(hist[i+1:], hist[i:])
	hist[i] = rec
	s.sales[rec.ProductID] = hist
	s.touch(rec.ProductID, rec.SoldAt)
	return nil
}

// ApplyInventory records an inventory observation. A low-confidence observation keeps the last known
// level; applied reports whether the level changed hands.
func (s *Store) ApplyInventory(obs model.InventoryObservation) (applied bool, err error) {
	if obs.LocationID == "" || obs.Quantity < 0 || obs.Confidence < 0 || obs.Confidence > 100 {
		return false, fmt.Errorf("%w: inventory observation %+v", ErrInvalidEvent, obs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[obs.ProductID]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownProduct, obs.ProductID)
	}
	if !s.advance(obs.ProductID+"|inv|"+obs.LocationID+"|"+string(obs.Source), obs.ObservedAt) {
		return false, nil
	}

	slot := obs.ProductID + "|" + obs.LocationID
	if obs.Confidence < s.minConfidence {
		last, known := s.inventory[obs.ProductID][obs.LocationID]
		ev := log.Warn().
			Str("product", obs.ProductID).
			Str("location", obs.LocationID).
			Str("source", string(obs.Source)).
			Float64("confidence", obs.Confidence)
		if known {
			ev = ev.Float64("retained_quantity", last.Quantity).Time("retained_from", last.ObservedAt)
		}
		ev.Msg("low-confidence inventory observation, keeping last known level")
		// first sight of a slot still starts its staleness clock
		if _, seen := s.observed[slot]; !seen {
			s.observed[slot] = obs.ObservedAt
		}
		return false, nil
	}

	if s.inventory[obs.ProductID] == nil {
		s.inventory[obs.ProductID] = make(map[string]model.InventoryObservation)
	}
	s.inventory[obs.ProductID][obs.LocationID] = obs
	s.observed[slot] = obs.ObservedAt
	s.touch(obs.ProductID, obs.ObservedAt)
	return true, nil
}

// advance moves the watermark for key and reports whether t is not older than it. Caller holds mu.
func (s *Store) advance(key string, t time.Time) bool {
	if last, ok := s.watermarks[key]; ok && t.Before(last) {
		log.Debug().Str("key", key).Time("observed_at", t).Time("watermark", last).Msg("dropping out-of-order observation")
		return false
	}
	s.watermarks[key] = t
	return true
}

func (s *Store) touch(productID string, t time.Time) {
	if t.After(s.lastEvent[productID]) {
		s.lastEvent[productID] = t
	}
}

// LastEvent returns the timestamp of the newest event applied for a product.
func (s *Store) LastEvent(productID string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEvent[productID]
}

// Sales returns the sales of productID at or after since, oldest first.
func (s *Store) Sales(ctx context.Context, productID string, since time.Time) ([]model.SalesRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.sales[productID]
	i := sort.Search(len(hist), func(i int) bool { return !hist[i].SoldAt.Before(since) })
	return append([]model.SalesRecord(nil), hist[i:]...), nil
}

// CompetitorPrices returns the latest observation per competitor channel, ordered by competitor then channel.
func (s *Store) CompetitorPrices(productID string) []model.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PricePoint, 0, len(s.prices[productID]))
	for _, pp := range s.prices[productID] {
		out = append(out, pp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompetitorID != out[j].CompetitorID {
			return out[i].CompetitorID < out[j].CompetitorID
		}
		return out[i].ChannelID < out[j].ChannelID
	})
	return out
}

// Inventory returns the last known observation at a location.
func (s *Store) Inventory(productID, locationID string) (model.InventoryObservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.inventory[productID][locationID]
	return obs, ok
}

// Locations returns the locations with a known inventory level for productID.
func (s *Store) Locations(productID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.inventory[productID]))
	for loc := range s.inventory[productID] {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// TotalInventory sums the last known levels across locations.
func (s *Store) TotalInventory(productID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	locs := s.inventory[productID]
	if len(locs) == 0 {
		return 0, false
	}
	total := 0.0
	for _, obs := range locs {
		total += obs.Quantity
	}
	return total, true
}

// Stale lists inventory slots whose last accepted observation is older than maxAge.
func (s *Store) Stale(now time.Time, maxAge time.Duration) []StaleObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StaleObservation
	for slot, at := range s.observed {
		if age := now.Sub(at); age > maxAge {
			productID, locationID, _ := strings.Cut(slot, "|")
			out = append(out, StaleObservation{ProductID: productID, LocationID: locationID, LastObservedAt: at, Age: age})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].LocationID < out[j].LocationID
	})
	return out
}
