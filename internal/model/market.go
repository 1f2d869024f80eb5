package model

import "time"

// PricePoint is a single competitor price observation. Immutable once stored.
type PricePoint struct {
	ProductID    string    `json:"product_id"`
	CompetitorID string    `json:"competitor_id"`
	ChannelID    string    `json:"channel_id"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency"`
	Available    bool      `json:"available"`
	ObservedAt   time.Time `json:"observed_at"`
}

// SalesRecord is one sale line reported by an order/POS system.
type SalesRecord struct {
	ProductID string    `json:"product_id"`
	ChannelID string    `json:"channel_id"`
	Quantity  float64   `json:"quantity"`
	Revenue   float64   `json:"revenue"`
	Price     float64   `json:"price"`
	SoldAt    time.Time `json:"sold_at"`
}

// SourceKind identifies the system that produced an inventory observation.
type SourceKind string

const (
	SourceVision       SourceKind = "vision"
	SourceWeightSensor SourceKind = "weight-sensor"
	SourceRFID         SourceKind = "rfid"
	SourceManual       SourceKind = "manual"
)

// InventoryObservation is an estimated stock level at a location.
type InventoryObservation struct {
	ProductID  string     `json:"product_id"`
	LocationID string     `json:"location_id"`
	Quantity   float64    `json:"quantity"`
	Confidence float64    `json:"confidence"` // 0 ~ 100
	Source     SourceKind `json:"source"`
	ObservedAt time.Time  `json:"observed_at"`
}

// Product is the catalog entry the core prices against.
type Product struct {
	ID              string             `yaml:"id" json:"id"`
	CategoryID      string             `yaml:"category_id" json:"category_id"`
	Cost            float64            `yaml:"cost" json:"cost"`
	BasePrice       float64            `yaml:"base_price" json:"base_price"`
	InitialPrice    float64            `yaml:"initial_price" json:"initial_price"`
	TargetInventory float64            `yaml:"target_inventory" json:"target_inventory"`
	LeadTimeDays    float64            `yaml:"lead_time_days" json:"lead_time_days"`
	Currency        string             `yaml:"currency" json:"currency"`
	Constraints     PricingConstraints `yaml:"constraints" json:"constraints"`
}

// ReferencePrice is the price discounts are measured against.
func (p Product) ReferencePrice(current float64) float64 {
	if p.BasePrice > 0 {
		return p.BasePrice
	}
	return current
}
