package model

import "time"

// Interval is a closed confidence interval.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contains reports whether v lies within the interval.
func (i Interval) Contains(v float64) bool {
	return v >= i.Lower && v <= i.Upper
}

// ElasticityResult is the price elasticity estimate for a product.
// ConfidenceScore is below 50 whenever FallbackUsed is set.
type ElasticityResult struct {
	ProductID       string    `json:"product_id"`
	CategoryID      string    `json:"category_id,omitempty"`
	Coefficient     float64   `json:"coefficient"`
	Interval        Interval  `json:"confidence_interval"`
	ConfidenceScore float64   `json:"confidence_score"`
	DataPoints      int       `json:"data_points"`
	HistoryDays     float64   `json:"history_days"`
	RSquared        float64   `json:"r_squared"`
	FallbackUsed    bool      `json:"fallback_used"`
	FallbackSource  string    `json:"fallback_source,omitempty"`
	ComputedAt      time.Time `json:"computed_at"`
}
