package recorder

import (
	"context"

	"PriceSentinel/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
// Price changes still run apply so the price book moves.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordElasticity(context.Context, *model.ElasticityResult) error          { return nil }
func (n *NoopRecorder) RecordForecast(context.Context, *model.RevenueForecast) error             { return nil }
func (n *NoopRecorder) RecordVariance(context.Context, *model.VarianceRecord) error              { return nil }
func (n *NoopRecorder) RecordStockout(context.Context, *model.StockoutPrediction) error          { return nil }
func (n *NoopRecorder) RecordReorder(context.Context, *model.ReorderRecommendation) error        { return nil }
func (n *NoopRecorder) RecordRecommendation(context.Context, *model.PricingRecommendation) error { return nil }
func (n *NoopRecorder) RecordRule(context.Context, *model.PricingRule) error                     { return nil }
func (n *NoopRecorder) RecordAudit(context.Context, *model.AuditLogEntry) error                  { return nil }
func (n *NoopRecorder) RecordAlert(context.Context, *model.Alert) error                          { return nil }

func (n *NoopRecorder) RecordPriceChange(_ context.Context, _ *model.PriceChange, _ *model.AuditLogEntry, apply func() error) error {
	return apply()
}

func (n *NoopRecorder) Recommendations(context.Context, string, int) ([]model.PricingRecommendation, error) {
	return nil, nil
}

func (n *NoopRecorder) Close() error { return nil }
