package model

import (
	"sort"
	"strings"
	"time"
)

// AlertType classifies an alert.
type AlertType string

const (
	AlertRuleConflict     AlertType = "rule_conflict"
	AlertStockoutRisk     AlertType = "stockout_risk"
	AlertPriceGap         AlertType = "price_gap"
	AlertForecastVariance AlertType = "forecast_variance"
	AlertStaleObservation AlertType = "stale_observation"
	AlertLowConfidence    AlertType = "low_confidence"
)

// Severity of an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Alert is consumed by the notification collaborator.
type Alert struct {
	ID                 string    `json:"id"`
	Type               AlertType `json:"type"`
	Severity           Severity  `json:"severity"`
	ProductIDs         []string  `json:"product_ids,omitempty"`
	CompetitorIDs      []string  `json:"competitor_ids,omitempty"`
	LocationID         string    `json:"location_id,omitempty"`
	Recipient          string    `json:"recipient,omitempty"`
	Message            string    `json:"message"`
	RecommendedActions []string  `json:"recommended_actions,omitempty"`
	Occurrences        int       `json:"occurrences"`
	CreatedAt          time.Time `json:"created_at"`
}

// CoalesceKey groups alerts that describe the same condition for the same recipient.
func (a *Alert) CoalesceKey() string {
	ids := append([]string(nil), a.ProductIDs...)
	sort.Strings(ids)
	return string(a.Type) + "|" + strings.Join(ids, ",") + "|" + a.LocationID + "|" + a.Recipient
}
