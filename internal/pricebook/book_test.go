package pricebook

import (
	"errors"
	"path/filepath"
	"testing"

	"PriceSentinel/internal/model"
)

func TestBook_CompareAndSet(t *testing.T) {
	b, err := New("", []model.Product{{ID: "sku-1", BasePrice: 100}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, err := b.Get("sku-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.PriceFloat() != 100 || e.Version != 1 {
		t.Fatalf("unexpected seed entry: %+v", e)
	}

	next, err := b.CompareAndSet("sku-1", 1, 94.999, "rule-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Version != 2 || next.PriceFloat() != 95 {
		t.Errorf("expected version 2 at 95.00, got %+v", next)
	}

	if _, err := b.CompareAndSet("sku-1", 1, 90, "rule-2"); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected version conflict, got %v", err)
	}
	if _, err := b.CompareAndSet("sku-1", 2, 0, "rule-2"); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("expected invalid price, got %v", err)
	}
	if _, err := b.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestBook_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	products := []model.Product{{ID: "sku-1", BasePrice: 100, InitialPrice: 98}}

	b, err := New(path, products)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.CompareAndSet("sku-1", 1, 91.5, "user-7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reopened, err := New(path, products)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, _ := reopened.Get("sku-1")
	if e.PriceFloat() != 91.5 || e.Version != 2 || e.UpdatedBy != "user-7" {
		t.Errorf("state not restored: %+v", e)
	}
}
