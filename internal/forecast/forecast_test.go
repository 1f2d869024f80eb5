package forecast

import (
	"context"
	"math"
	"testing"
	"time"

	"PriceSentinel/internal/elasticity"
	"PriceSentinel/internal/model"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fixedElasticity struct {
	res       model.ElasticityResult
	refreshed int
}

func (f *fixedElasticity) Get(string) (model.ElasticityResult, error) {
	if f.refreshed == 0 {
		return model.ElasticityResult{}, elasticity.ErrNotFound
	}
	return f.res, nil
}

func (f *fixedElasticity) Refresh(context.Context, string) (model.ElasticityResult, error) {
	f.refreshed++
	return f.res, nil
}

type memSales struct{ recs []model.SalesRecord }

func (m *memSales) Sales(_ context.Context, _ string, since time.Time) ([]model.SalesRecord, error) {
	var out []model.SalesRecord
	for _, r := range m.recs {
		if !r.SoldAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

type catalog map[string]model.Product

func (c catalog) Product(id string) (model.Product, bool) {
	p, ok := c[id]
	return p, ok
}

type price float64

func (p price) CurrentPrice(string) (float64, error) { return float64(p), nil }

type alertLog []model.Alert

func (a *alertLog) Raise(al model.Alert) { *a = append(*a, al) }

func newTestForecaster(sales *memSales, alerts *alertLog) (*Forecaster, *fixedElasticity) {
	el := &fixedElasticity{res: model.ElasticityResult{
		Coefficient:     -1.5,
		Interval:        model.Interval{Lower: -2, Upper: -1},
		ConfidenceScore: 80,
	}}
	for d := 1; d <= 28; d++ {
		sales.recs = append(sales.recs, model.SalesRecord{
			ProductID: "sku-1", Quantity: 10, Price: 100, Revenue: 1000,
			SoldAt: t0.AddDate(0, 0, -d).Add(time.Hour),
		})
	}
	f := New(el, sales, catalog{"sku-1": {ID: "sku-1", Cost: 70}}, price(100), nil, nil, alerts, Options{})
	f.now = func() time.Time { return t0 }
	return f, el
}

func TestForecast_ConstantElasticity(t *testing.T) {
	f, el := newTestForecaster(&memSales{}, nil)

	hold, err := f.Forecast(context.Background(), "sku-1", 100, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if el.refreshed != 1 {
		t.Errorf("expected a refresh when no elasticity exists, got %d", el.refreshed)
	}
	if math.Abs(hold.ExpectedVolume-70) > 1e-9 || math.Abs(hold.ExpectedRevenue-7000) > 1e-6 {
		t.Errorf("unexpected baseline forecast: %+v", hold)
	}
	if hold.Confidence != 100 {
		t.Errorf("constant sales at the current price should be certain, got %.1f", hold.Confidence)
	}

	cut, err := f.Forecast(context.Background(), "sku-1", 90, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantVol := 70 * math.Pow(0.9, -1.5)
	if math.Abs(cut.ExpectedVolume-wantVol) > 1e-9 {
		t.Errorf("expected volume %.3f, got %.3f", wantVol, cut.ExpectedVolume)
	}
	if cut.RevenueDelta <= 0 {
		t.Errorf("elastic demand should gain revenue on a cut, got %.2f", cut.RevenueDelta)
	}
	if cut.MarginDelta >= 0 {
		t.Errorf("margin should shrink on a cut, got %.2f", cut.MarginDelta)
	}
	if !cut.VolumeInterval.Contains(cut.ExpectedVolume) || !cut.RevenueInterval.Contains(cut.ExpectedRevenue) {
		t.Errorf("intervals must contain the point estimate: %+v", cut)
	}
	if cut.VolumeInterval.Upper == cut.VolumeInterval.Lower {
		t.Error("a price move must carry a non-degenerate interval")
	}
}

func TestForecast_InvalidPrice(t *testing.T) {
	f, _ := newTestForecaster(&memSales{}, nil)
	if _, err := f.Forecast(context.Background(), "sku-1", 0, 7); err != ErrInvalidPrice {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestReconcile_RecordsVariance(t *testing.T) {
	sales := &memSales{}
	var alerts alertLog
	f, _ := newTestForecaster(sales, &alerts)

	fc, err := f.Issue(context.Background(), "sku-1", 100, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// realized demand halves
	for d := 0; d < 7; d++ {
		sales.recs = append(sales.recs, model.SalesRecord{
			ProductID: "sku-1", Quantity: 5, Price: 100, Revenue: 500,
			SoldAt: t0.AddDate(0, 0, d).Add(time.Hour),
		})
	}

	f.now = func() time.Time { return t0.AddDate(0, 0, 3) }
	recs, err := f.Reconcile(context.Background())
	if err != nil || len(recs) != 0 {
		t.Fatalf("forecast not yet matured: %v %v", recs, err)
	}

	f.now = func() time.Time { return t0.AddDate(0, 0, 8) }
	recs, err = f.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 || recs[0].ForecastID != fc.ID {
		t.Fatalf("expected one variance record, got %+v", recs)
	}
	if math.Abs(recs[0].VariancePct-100) > 1e-6 {
		t.Errorf("expected +100%% variance, got %.2f", recs[0].VariancePct)
	}
	if len(alerts) != 1 || alerts[0].Type != model.AlertForecastVariance {
		t.Errorf("expected a forecast_variance alert, got %+v", alerts)
	}

	recs, _ = f.Reconcile(context.Background())
	if len(recs) != 0 {
		t.Error("reconciled forecasts must not be reported twice")
	}
}

func TestTrack_PriceChangeReconciled(t *testing.T) {
	sales := &memSales{}
	var alerts alertLog
	f, _ := newTestForecaster(sales, &alerts)

	change := &model.PriceChange{ID: "chg-1", ProductID: "sku-1", OldPrice: 100, NewPrice: 90}
	fc, err := f.Track(context.Background(), change, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.CurrentPrice != 100 || fc.ProposedPrice != 90 || fc.HorizonDays != 7 {
		t.Errorf("forecast must span the change, got %+v", fc)
	}
	if f.Tracked() != 1 {
		t.Fatalf("expected one tracked forecast, got %d", f.Tracked())
	}

	// demand fell despite the cut
	for d := 0; d < 7; d++ {
		sales.recs = append(sales.recs, model.SalesRecord{
			ProductID: "sku-1", Quantity: 8, Price: 90, Revenue: 720,
			SoldAt: t0.AddDate(0, 0, d).Add(time.Hour),
		})
	}
	f.now = func() time.Time { return t0.AddDate(0, 0, 8) }
	recs, err := f.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 || recs[0].ForecastID != fc.ID || recs[0].RealizedRevenue != 5040 {
		t.Fatalf("expected one variance record against 5040 realized, got %+v", recs)
	}
	if f.Tracked() != 0 {
		t.Errorf("reconciled forecast must be dropped, %d left", f.Tracked())
	}
}

func TestTrack_UnknownProduct(t *testing.T) {
	f, _ := newTestForecaster(&memSales{}, nil)
	if _, err := f.Track(context.Background(), &model.PriceChange{ProductID: "nope", OldPrice: 10, NewPrice: 9}, 7); err == nil {
		t.Error("expected an error for an unknown product")
	}
}
