package recorder

import (
	"context"

	"PriceSentinel/internal/model"
)

// Recorder persists every outbound record for audit and analysis. Records are append-only.
type Recorder interface {
	RecordElasticity(ctx context.Context, res *model.ElasticityResult) error
	RecordForecast(ctx context.Context, f *model.RevenueForecast) error
	RecordVariance(ctx context.Context, v *model.VarianceRecord) error
	RecordStockout(ctx context.Context, p *model.StockoutPrediction) error
	RecordReorder(ctx context.Context, r *model.ReorderRecommendation) error
	RecordRecommendation(ctx context.Context, rec *model.PricingRecommendation) error
	RecordRule(ctx context.Context, rule *model.PricingRule) error
	RecordAudit(ctx context.Context, entry *model.AuditLogEntry) error
	RecordAlert(ctx context.Context, a *model.Alert) error

	// RecordPriceChange writes change and entry in one transaction. apply runs inside it;
	// when apply or the commit fails nothing is written.
	RecordPriceChange(ctx context.Context, change *model.PriceChange, entry *model.AuditLogEntry, apply func() error) error

	// Recommendations returns up to limit recommendations for productID, newest first.
	Recommendations(ctx context.Context, productID string, limit int) ([]model.PricingRecommendation, error)

	Close() error
}
