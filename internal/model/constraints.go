package model

import (
	"fmt"
	"math"
	"strings"
)

// tolerance absorbs float noise when a price sits exactly on a limit.
const tolerance = 1e-9

// PricingConstraints are the hard limits every surfaced or executed price must satisfy.
// A zero MaxDiscountPct or MaxPriceChangePct means no limit. MinMarginPct 0 still forbids pricing below cost.
type PricingConstraints struct {
	MinMarginPct      float64            `yaml:"min_margin_pct" json:"min_margin_pct"`
	MaxDiscountPct    float64            `yaml:"max_discount_pct" json:"max_discount_pct"`
	MaxPriceChangePct float64            `yaml:"max_price_change_pct" json:"max_price_change_pct"`
	CompetitorWeights map[string]float64 `yaml:"competitor_weights" json:"competitor_weights,omitempty"`
}

// ViolationKind names the limit a price broke.
type ViolationKind string

const (
	ViolationPrice    ViolationKind = "non_positive_price"
	ViolationMargin   ViolationKind = "min_margin"
	ViolationDiscount ViolationKind = "max_discount"
	ViolationChange   ViolationKind = "max_price_change"
)

// Violation describes one failed constraint.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Actual float64       `json:"actual"`
	Limit  float64       `json:"limit"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %.2f%% vs limit %.2f%%", v.Kind, v.Actual, v.Limit)
}

// Violations is the result of a constraint check. Empty means compliant.
type Violations []Violation

func (vs Violations) String() string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}

// MarginPct returns (price-cost)/price in percent.
func MarginPct(price, cost float64) float64 {
	if price <= 0 {
		return math.Inf(-1)
	}
	return (price - cost) / price * 100
}

// Check validates price against the constraint set.
// reference is the price discounts are measured from, current the price in effect.
func (c PricingConstraints) Check(cost, reference, current, price float64) Violations {
	if price <= 0 {
		return Violations{{Kind: ViolationPrice, Actual: price}}
	}
	var out Violations
	if m := MarginPct(price, cost); m < c.MinMarginPct-tolerance {
		out = append(out, Violation{Kind: ViolationMargin, Actual: m, Limit: c.MinMarginPct})
	}
	if c.MaxDiscountPct > 0 && reference > 0 {
		if d := (reference - price) / reference * 100; d > c.MaxDiscountPct+tolerance {
			out = append(out, Violation{Kind: ViolationDiscount, Actual: d, Limit: c.MaxDiscountPct})
		}
	}
	if c.MaxPriceChangePct > 0 && current > 0 {
		if ch := math.Abs(price-current) / current * 100; ch > c.MaxPriceChangePct+tolerance {
			out = append(out, Violation{Kind: ViolationChange, Actual: ch, Limit: c.MaxPriceChangePct})
		}
	}
	return out
}

// Band returns the lowest and highest prices that can satisfy the constraints.
// ok is false when the band is empty. With no change limit the ceiling is open (math.Inf(1)).
func (c PricingConstraints) Band(cost, reference, current float64) (floor, ceiling float64, ok bool) {
	floor = cost
	if c.MinMarginPct > 0 {
		if c.MinMarginPct >= 100 {
			return 0, 0, false
		}
		floor = cost / (1 - c.MinMarginPct/100)
	}
	if c.MaxDiscountPct > 0 && reference > 0 {
		floor = math.Max(floor, reference*(1-c.MaxDiscountPct/100))
	}
	ceiling = math.Inf(1)
	if c.MaxPriceChangePct > 0 && current > 0 {
		floor = math.Max(floor, current*(1-c.MaxPriceChangePct/100))
		ceiling = current * (1 + c.MaxPriceChangePct/100)
	}
	if floor <= 0 {
		floor = 0.01
	}
	return floor, ceiling, floor <= ceiling+tolerance
}

// WeightFor returns the importance weight of a competitor, defaulting to 1.
func (c PricingConstraints) WeightFor(competitorID string) float64 {
	if w, ok := c.CompetitorWeights[competitorID]; ok && w >= 0 {
		return w
	}
	return 1
}
