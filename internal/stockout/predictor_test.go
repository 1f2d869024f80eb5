package stockout

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"PriceSentinel/internal/market"
	"PriceSentinel/internal/model"
)

var now = time.Date(2026, 7, 10, 8, 0, 0, 0, time.UTC)

type alertLog []model.Alert

func (a *alertLog) Raise(al model.Alert) { *a = append(*a, al) }

// steadyStore sells perDay units every day for 28 days and holds inventory at one location.
func steadyStore(t *testing.T, perDay, inventory, confidence float64) *market.Store {
	t.Helper()
	s := market.NewStore([]model.Product{{ID: "sku-1", Cost: 5, BasePrice: 10, LeadTimeDays: 2}}, 40)
	for d := 1; d <= 28; d++ {
		rec := model.SalesRecord{ProductID: "sku-1", Quantity: perDay, Price: 10, SoldAt: now.AddDate(0, 0, -d).Add(time.Hour)}
		if err := s.ApplySales(rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	obs := model.InventoryObservation{ProductID: "sku-1", LocationID: "store-1", Quantity: inventory, Confidence: confidence, Source: model.SourceVision, ObservedAt: now}
	if _, err := s.ApplyInventory(obs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func newTestPredictor(s *market.Store, alerts *alertLog) *Predictor {
	p := New(s, s, nil, nil, alerts, Options{})
	p.now = func() time.Time { return now }
	return p
}

func TestPredict_ReorderAndAlertInsideThreshold(t *testing.T) {
	var alerts alertLog
	p := newTestPredictor(steadyStore(t, 12, 10, 70), &alerts)

	res, err := p.Predict(context.Background(), "sku-1", "store-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pred := res.Prediction
	if math.Abs(pred.HoursToStockout-20) > 1e-6 {
		t.Errorf("expected 20h to stockout, got %.3f", pred.HoursToStockout)
	}
	if math.Abs(pred.Confidence-85) > 1e-6 {
		t.Errorf("expected confidence 85, got %.2f", pred.Confidence)
	}
	if pred.Trend != model.TrendStable {
		t.Errorf("expected stable trend, got %s", pred.Trend)
	}
	if res.Reorder == nil {
		t.Fatal("expected a reorder recommendation")
	}
	// 12/day over a 2 day lead time with no variance
	if res.Reorder.Quantity != 24 || res.Reorder.Urgency != model.UrgencyHigh {
		t.Errorf("unexpected reorder %+v", res.Reorder)
	}
	if len(alerts) != 1 || alerts[0].Type != model.AlertStockoutRisk || alerts[0].LocationID != "store-1" {
		t.Errorf("expected one stockout alert, got %+v", alerts)
	}

	latest, ok := p.Latest("sku-1")
	if !ok || !latest.AtRisk() {
		t.Errorf("expected at-risk latest prediction, got %+v", latest)
	}
}

func TestPredict_LowConfidenceSkipsAlert(t *testing.T) {
	var alerts alertLog
	p := newTestPredictor(steadyStore(t, 12, 10, 50), &alerts)

	res, err := p.Predict(context.Background(), "sku-1", "store-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reorder == nil {
		t.Error("reorder does not depend on confidence")
	}
	if res.Alert != nil || len(alerts) != 0 {
		t.Errorf("confidence %.0f must not alert", res.Prediction.Confidence)
	}
}

func TestPredict_NoSalesIsUnbounded(t *testing.T) {
	p := newTestPredictor(steadyStore(t, 0, 10, 90), nil)

	res, err := p.Predict(context.Background(), "sku-1", "store-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Prediction.Unbounded || res.Prediction.HoursToStockout != 0 || res.Reorder != nil {
		t.Errorf("expected unbounded prediction without reorder, got %+v", res)
	}
}

func TestPredict_EmptyLocationWhileOthersHoldStock(t *testing.T) {
	var alerts alertLog
	s := steadyStore(t, 12, 0, 90)
	other := model.InventoryObservation{ProductID: "sku-1", LocationID: "store-2", Quantity: 100, Confidence: 90, Source: model.SourceVision, ObservedAt: now}
	if _, err := s.ApplyInventory(other); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := newTestPredictor(s, &alerts)

	res, err := p.Predict(context.Background(), "sku-1", "store-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pred := res.Prediction
	if pred.Unbounded || pred.HoursToStockout != 0 || !pred.StockoutAt.Equal(now) {
		t.Fatalf("expected an empty location to be out of stock now, got %+v", pred)
	}
	if math.Abs(pred.DailyVelocity-12) > 1e-6 {
		t.Errorf("expected product velocity 12/day, got %.3f", pred.DailyVelocity)
	}
	if !pred.AtRisk() {
		t.Error("expected empty location to be at risk")
	}
	if res.Reorder == nil || res.Reorder.Quantity != 24 || res.Reorder.Urgency != model.UrgencyCritical {
		t.Errorf("expected a critical reorder of 24, got %+v", res.Reorder)
	}
	if len(alerts) != 1 || alerts[0].LocationID != "store-1" {
		t.Errorf("expected one stockout alert for store-1, got %+v", alerts)
	}

	// the stocked location still carries velocity by its share
	res, err = p.Predict(context.Background(), "sku-1", "store-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Prediction.Unbounded || res.Prediction.HoursToStockout <= 0 {
		t.Errorf("expected a bounded estimate for store-2, got %+v", res.Prediction)
	}
}

func TestPredict_UnknownLocation(t *testing.T) {
	p := newTestPredictor(steadyStore(t, 1, 10, 90), nil)
	if _, err := p.Predict(context.Background(), "sku-1", "nowhere"); !errors.Is(err, ErrNoInventory) {
		t.Errorf("expected ErrNoInventory, got %v", err)
	}
}

func TestUrgency_Monotone(t *testing.T) {
	rank := map[model.Urgency]int{model.UrgencyLow: 0, model.UrgencyMedium: 1, model.UrgencyHigh: 2, model.UrgencyCritical: 3}
	prev := -1
	for h := 47.0; h >= 0; h -= 1 {
		r := rank[Urgency(h, 48)]
		if r < prev {
			t.Fatalf("urgency dropped at %.0fh", h)
		}
		prev = r
	}
	if Urgency(5, 48) != model.UrgencyCritical || Urgency(40, 48) != model.UrgencyLow {
		t.Error("unexpected urgency boundaries")
	}
}
