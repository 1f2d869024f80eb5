package model

import "time"

// StrategyTag names the strategy that produced a candidate price.
type StrategyTag string

const (
	StrategyClearance        StrategyTag = "clearance"
	StrategyPremium          StrategyTag = "premium"
	StrategyCompetitorLowest StrategyTag = "competitor_match_lowest"
	StrategyCompetitorAvg    StrategyTag = "competitor_match_average"
	StrategyMarginMax        StrategyTag = "margin_maximization"
	StrategyRevenueMax       StrategyTag = "revenue_maximization"
)

// RecommendationStatus distinguishes a usable recommendation from the explicit "nothing compliant" outcome.
type RecommendationStatus string

const (
	StatusRecommended RecommendationStatus = "recommended"
	StatusNoCompliant RecommendationStatus = "no_compliant_recommendation"
)

// Impact is the forecast percentage change versus holding the current price.
type Impact struct {
	RevenuePct float64 `json:"revenue_pct"`
	MarginPct  float64 `json:"margin_pct"`
	VolumePct  float64 `json:"volume_pct"`
}

// Alternative is a ranked runner-up candidate.
type Alternative struct {
	Price           float64     `json:"price"`
	Strategy        StrategyTag `json:"strategy"`
	ConfidenceScore float64     `json:"confidence_score"`
	ExpectedRevenue float64     `json:"expected_revenue"`
	Impact          Impact      `json:"impact"`
}

// PricingRecommendation is the engine output for one product.
// When Status is StatusNoCompliant, RecommendedPrice is zero and Alternatives is empty.
type PricingRecommendation struct {
	ID               string               `json:"id"`
	ProductID        string               `json:"product_id"`
	Status           RecommendationStatus `json:"status"`
	RecommendedPrice float64              `json:"recommended_price"`
	CurrentPrice     float64              `json:"current_price"`
	Strategy         StrategyTag          `json:"strategy,omitempty"`
	ConfidenceScore  float64              `json:"confidence_score"`
	ExpectedRevenue  float64              `json:"expected_revenue"`
	Impact           Impact               `json:"impact"`
	Reasoning        []string             `json:"reasoning"`
	Alternatives     []Alternative        `json:"alternatives,omitempty"`
	GeneratedAt      time.Time            `json:"generated_at"`
}

// Compliant reports whether the recommendation carries a usable price.
func (r *PricingRecommendation) Compliant() bool {
	return r != nil && r.Status == StatusRecommended
}
