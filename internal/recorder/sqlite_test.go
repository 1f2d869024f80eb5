package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"PriceSentinel/internal/model"
)

func openTest(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "sentinel.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func count(t *testing.T, r *SQLiteRecorder, table string) int {
	t.Helper()
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestRecordPriceChange(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 9, 14, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		apply       func() error
		wantErr     bool
		wantChanges int
	}{
		{"applied", func() error { return nil }, false, 1},
		{"apply failed", func() error { return errors.New("version conflict") }, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := openTest(t)
			change := &model.PriceChange{ID: "c-1", ProductID: "sku-1", Actor: "rule:r", OldPrice: 100, NewPrice: 92, OldVersion: 1, NewVersion: 2, ExecutedAt: at}
			entry := &model.AuditLogEntry{ID: "a-1", Actor: "rule:r", Action: model.AuditPriceChange, ResourceID: "sku-1", Timestamp: at}

			err := r.RecordPriceChange(ctx, change, entry, tt.apply)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := count(t, r, "price_changes"); got != tt.wantChanges {
				t.Errorf("price_changes = %d, want %d", got, tt.wantChanges)
			}
			if got := count(t, r, "audit_log"); got != tt.wantChanges {
				t.Errorf("audit_log = %d, want %d", got, tt.wantChanges)
			}
		})
	}
}

func TestRecommendations_NewestFirst(t *testing.T) {
	ctx := context.Background()
	r := openTest(t)
	base := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

	for i, price := range []float64{91, 93, 95} {
		rec := &model.PricingRecommendation{
			ID:               "rec-" + string(rune('a'+i)),
			ProductID:        "sku-1",
			Status:           model.StatusRecommended,
			RecommendedPrice: price,
			Strategy:         model.StrategyRevenueMax,
			Reasoning:        []string{"step"},
			GeneratedAt:      base.Add(time.Duration(i) * time.Hour),
		}
		if err := r.RecordRecommendation(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := r.RecordRecommendation(ctx, &model.PricingRecommendation{ID: "other", ProductID: "sku-2", GeneratedAt: base}); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := r.Recommendations(ctx, "sku-1", 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].RecommendedPrice != 95 || got[1].RecommendedPrice != 93 {
		t.Errorf("unexpected history %+v", got)
	}
	if got[0].Reasoning[0] != "step" {
		t.Error("reasoning must survive the round trip")
	}
}

func TestRecordAll(t *testing.T) {
	ctx := context.Background()
	r := openTest(t)
	now := time.Now()

	steps := []struct {
		table string
		write func() error
	}{
		{"elasticity_results", func() error {
			return r.RecordElasticity(ctx, &model.ElasticityResult{ProductID: "sku-1", Coefficient: -1.4, ComputedAt: now})
		}},
		{"revenue_forecasts", func() error {
			return r.RecordForecast(ctx, &model.RevenueForecast{ID: "f-1", ProductID: "sku-1", IssuedAt: now})
		}},
		{"forecast_variance", func() error {
			return r.RecordVariance(ctx, &model.VarianceRecord{ForecastID: "f-1", ProductID: "sku-1", RecordedAt: now})
		}},
		{"stockout_predictions", func() error {
			return r.RecordStockout(ctx, &model.StockoutPrediction{ProductID: "sku-1", LocationID: "dc", Unbounded: true, PredictedAt: now})
		}},
		{"reorders", func() error {
			return r.RecordReorder(ctx, &model.ReorderRecommendation{ID: "ro-1", ProductID: "sku-1", LocationID: "dc", Urgency: model.UrgencyHigh, CreatedAt: now})
		}},
		{"pricing_rules", func() error {
			return r.RecordRule(ctx, &model.PricingRule{ID: "r-1", Enabled: true, CreatedAt: now})
		}},
		{"alerts", func() error {
			return r.RecordAlert(ctx, &model.Alert{ID: "al-1", Type: model.AlertPriceGap, Occurrences: 3, CreatedAt: now})
		}},
		{"audit_log", func() error {
			return r.RecordAudit(ctx, &model.AuditLogEntry{ID: "au-1", Action: model.AuditSensitiveRead, Timestamp: now})
		}},
	}
	for _, s := range steps {
		if err := s.write(); err != nil {
			t.Fatalf("%s: %v", s.table, err)
		}
		if got := count(t, r, s.table); got != 1 {
			t.Errorf("%s rows = %d, want 1", s.table, got)
		}
	}
}
