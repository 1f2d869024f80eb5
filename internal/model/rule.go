package model

import "time"

// Combinator joins a rule's conditions.
type Combinator string

const (
	CombinatorAnd Combinator = "AND"
	CombinatorOr  Combinator = "OR"
)

// Metric is the market/inventory quantity a condition reads.
type Metric string

const (
	MetricOwnPrice          Metric = "own_price"
	MetricCompetitorLowest  Metric = "competitor_lowest"
	MetricCompetitorAverage Metric = "competitor_average"
	MetricCompetitorPrice   Metric = "competitor_price" // requires Condition.CompetitorID
	MetricPriceGapPct       Metric = "price_gap_pct"    // (own - median) / median * 100
	MetricPercentile        Metric = "rank_percentile"  // 0-100
	MetricInventoryLevel    Metric = "inventory_level"
	MetricInventoryRatio    Metric = "inventory_ratio"
	MetricHoursToStockout   Metric = "hours_to_stockout"
)

// Operator compares a metric against a value.
type Operator string

const (
	OpLT  Operator = "lt"
	OpLTE Operator = "lte"
	OpGT  Operator = "gt"
	OpGTE Operator = "gte"
	OpEQ  Operator = "eq"
)

// Condition is one comparison in a rule.
type Condition struct {
	Metric       Metric   `yaml:"metric" json:"metric"`
	Operator     Operator `yaml:"operator" json:"operator"`
	Value        float64  `yaml:"value" json:"value"`
	CompetitorID string   `yaml:"competitor_id,omitempty" json:"competitor_id,omitempty"`
}

// ActionKind selects how a triggered rule computes its candidate price.
type ActionKind string

const (
	ActionSetPrice        ActionKind = "set_price"
	ActionMatchCompetitor ActionKind = "match_competitor"
	ActionApplyDiscount   ActionKind = "apply_discount"
	ActionUseRecommended  ActionKind = "use_recommendation"
)

// MatchTarget selects which competitor price a match action follows.
type MatchTarget string

const (
	MatchLowest  MatchTarget = "lowest"
	MatchAverage MatchTarget = "average"
)

// Action is the single effect of a rule. Only the fields for Kind are read.
type Action struct {
	Kind        ActionKind  `yaml:"kind" json:"kind"`
	Price       float64     `yaml:"price,omitempty" json:"price,omitempty"`
	Match       MatchTarget `yaml:"match,omitempty" json:"match,omitempty"`
	Offset      float64     `yaml:"offset,omitempty" json:"offset,omitempty"`
	DiscountPct float64     `yaml:"discount_pct,omitempty" json:"discount_pct,omitempty"`
}

// PricingRule is a user-defined automation rule. Retired rules are disabled, never deleted.
type PricingRule struct {
	ID          string             `yaml:"id" json:"id"`
	Owner       string             `yaml:"owner" json:"owner"`
	ProductIDs  []string           `yaml:"product_ids" json:"product_ids"`
	Conditions  []Condition        `yaml:"conditions" json:"conditions"`
	Combinator  Combinator         `yaml:"combinator" json:"combinator"`
	Action      Action             `yaml:"action" json:"action"`
	Constraints PricingConstraints `yaml:"constraints" json:"constraints"`
	Enabled     bool               `yaml:"enabled" json:"enabled"`
	Priority    int                `yaml:"priority" json:"priority"`
	CreatedAt   time.Time          `yaml:"-" json:"created_at"`
	DisabledAt  time.Time          `yaml:"-" json:"disabled_at,omitempty"`
}

// Targets reports whether the rule applies to productID.
func (r *PricingRule) Targets(productID string) bool {
	for _, id := range r.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}
