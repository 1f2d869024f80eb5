package model

import "time"

// ProductState is a point-in-time view of everything the pricing core knows about a product.
// Recommendation and rule evaluation read only from a ProductState, so the same state yields the same result.
type ProductState struct {
	Product          Product
	CurrentPrice     float64
	PriceVersion     int64
	CompetitorPrices []PricePoint
	Position         *CompetitivePosition
	Inventory        float64
	InventoryKnown   bool
	Stockout         *StockoutPrediction
	EventAt          time.Time
	TakenAt          time.Time
}

// InventoryRatio is current inventory over target, 0 when either is unknown.
func (s ProductState) InventoryRatio() float64 {
	if !s.InventoryKnown || s.Product.TargetInventory <= 0 {
		return 0
	}
	return s.Inventory / s.Product.TargetInventory
}

// ReferencePrice is the price discounts are measured from.
func (s ProductState) ReferencePrice() float64 {
	return s.Product.ReferencePrice(s.CurrentPrice)
}

// Check validates price against c using this state's cost and prices.
func (s ProductState) Check(c PricingConstraints, price float64) Violations {
	return c.Check(s.Product.Cost, s.ReferencePrice(), s.CurrentPrice, price)
}
