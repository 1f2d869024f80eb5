package model

import "time"

// Trend classifies the direction of sales velocity.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// StockoutPrediction estimates when a location runs out of a product.
// HoursToStockout is never negative; Unbounded is set when velocity <= 0.
type StockoutPrediction struct {
	ProductID        string    `json:"product_id"`
	LocationID       string    `json:"location_id"`
	CurrentInventory float64   `json:"current_inventory"`
	DailyVelocity    float64   `json:"daily_velocity"`
	HoursToStockout  float64   `json:"hours_to_stockout"`
	Unbounded        bool      `json:"unbounded"`
	StockoutAt       time.Time `json:"stockout_at,omitempty"`
	Confidence       float64   `json:"confidence"`
	Trend            Trend     `json:"trend"`
	PredictedAt      time.Time `json:"predicted_at"`
	// ThresholdHours is the alert threshold in force when the prediction was made.
	ThresholdHours float64 `json:"threshold_hours"`
}

// AtRisk reports whether the prediction is inside its alert threshold.
func (p StockoutPrediction) AtRisk() bool {
	return !p.Unbounded && p.HoursToStockout < p.ThresholdHours
}

// Urgency of a reorder.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// ReorderRecommendation is produced only for predictions inside the alert threshold.
type ReorderRecommendation struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	LocationID   string    `json:"location_id"`
	Quantity     float64   `json:"quantity"`
	Urgency      Urgency   `json:"urgency"`
	LeadTimeDays float64   `json:"lead_time_days"`
	SafetyStock  float64   `json:"safety_stock"`
	CreatedAt    time.Time `json:"created_at"`
}
