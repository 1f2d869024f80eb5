package model

import "time"

// RevenueForecast is the expected effect of moving from CurrentPrice to ProposedPrice over HorizonDays.
// Intervals are always populated, never a bare point estimate.
type RevenueForecast struct {
	ID                 string    `json:"id"`
	ProductID          string    `json:"product_id"`
	CurrentPrice       float64   `json:"current_price"`
	ProposedPrice      float64   `json:"proposed_price"`
	HorizonDays        int       `json:"horizon_days"`
	BaselineRevenue    float64   `json:"baseline_revenue"`
	ExpectedRevenue    float64   `json:"expected_revenue"`
	ExpectedVolume     float64   `json:"expected_volume"`
	ExpectedMargin     float64   `json:"expected_margin"`
	RevenueDelta       float64   `json:"revenue_delta"`
	MarginDelta        float64   `json:"margin_delta"`
	VolumeDelta        float64   `json:"volume_delta"`
	RevenueDeltaPct    float64   `json:"revenue_delta_pct"`
	MarginDeltaPct     float64   `json:"margin_delta_pct"`
	VolumeDeltaPct     float64   `json:"volume_delta_pct"`
	RevenueInterval    Interval  `json:"revenue_interval"`
	VolumeInterval     Interval  `json:"volume_interval"`
	SeasonalFactor     float64   `json:"seasonal_factor"`
	Confidence         float64   `json:"confidence"`
	ElasticityUsed     float64   `json:"elasticity_used"`
	ElasticityFallback bool      `json:"elasticity_fallback"`
	IssuedAt           time.Time `json:"issued_at"`
}

// VarianceRecord is appended when a forecast misses realized revenue by more than the tolerated share.
type VarianceRecord struct {
	ForecastID       string    `json:"forecast_id"`
	ProductID        string    `json:"product_id"`
	PredictedRevenue float64   `json:"predicted_revenue"`
	RealizedRevenue  float64   `json:"realized_revenue"`
	VariancePct      float64   `json:"variance_pct"`
	RecordedAt       time.Time `json:"recorded_at"`
}
