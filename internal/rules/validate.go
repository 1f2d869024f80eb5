package rules

import (
	"errors"
	"fmt"
	"math"

	"PriceSentinel/internal/model"
)

// ErrInvalidRule wraps every validation failure.
var ErrInvalidRule = errors.New("invalid rule")

// Catalog resolves products.
type Catalog interface {
	Product(id string) (model.Product, bool)
}

// Validate checks a rule definition against the catalog. Returned errors wrap ErrInvalidRule.
func Validate(rule model.PricingRule, catalog Catalog) error {
	var problems []error
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if len(rule.ProductIDs) == 0 {
		fail("no target products")
	}
	products := make([]model.Product, 0, len(rule.ProductIDs))
	for _, id := range rule.ProductIDs {
		p, ok := catalog.Product(id)
		if !ok {
			fail("unknown product %s", id)
			continue
		}
		products = append(products, p)
	}

	switch rule.Combinator {
	case model.CombinatorAnd, model.CombinatorOr, "":
	default:
		fail("unknown combinator %q", rule.Combinator)
	}

	if len(rule.Conditions) == 0 {
		fail("no conditions")
	}
	for i, c := range rule.Conditions {
		if err := validateCondition(c); err != nil {
			fail("condition %d: %v", i, err)
		}
	}
	if len(problems) == 0 {
		if err := satisfiable(rule); err != nil {
			problems = append(problems, err)
		}
	}

	c := rule.Constraints
	switch {
	case c.MinMarginPct >= 100:
		fail("minimum margin %.1f%% can never be reached", c.MinMarginPct)
	case c.MinMarginPct < 0 || c.MaxDiscountPct < 0 || c.MaxPriceChangePct < 0:
		fail("constraint limits must not be negative")
	}

	if err := validateAction(rule.Action, c, products); err != nil {
		problems = append(problems, err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w %s: %w", ErrInvalidRule, rule.ID, errors.Join(problems...))
	}
	return nil
}

func validateCondition(c model.Condition) error {
	if _, ok := metricFloor[c.Metric]; !ok {
		return fmt.Errorf("unknown metric %q", c.Metric)
	}
	switch c.Operator {
	case model.OpLT, model.OpLTE, model.OpGT, model.OpGTE, model.OpEQ:
	default:
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	if c.Metric == model.MetricCompetitorPrice && c.CompetitorID == "" {
		return errors.New("competitor_price needs a competitor_id")
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return errors.New("value must be finite")
	}
	return nil
}

// metricFloor is the smallest value each metric can take.
var metricFloor = map[model.Metric]float64{
	model.MetricOwnPrice:          0,
	model.MetricCompetitorLowest:  0,
	model.MetricCompetitorAverage: 0,
	model.MetricCompetitorPrice:   0,
	model.MetricPriceGapPct:       -100,
	model.MetricPercentile:        0,
	model.MetricInventoryLevel:    0,
	model.MetricInventoryRatio:    0,
	model.MetricHoursToStockout:   0,
}

// bound is a possibly half-open interval of metric values.
type bound struct {
	lo, hi         float64
	loIncl, hiIncl bool
}

func (b *bound) apply(op model.Operator, v float64) {
	switch op {
	case model.OpLT:
		if v < b.hi || (v == b.hi && b.hiIncl) {
			b.hi, b.hiIncl = v, false
		}
	case model.OpLTE:
		if v < b.hi {
			b.hi, b.hiIncl = v, true
		}
	case model.OpGT:
		if v > b.lo || (v == b.lo && b.loIncl) {
			b.lo, b.loIncl = v, false
		}
	case model.OpGTE:
		if v > b.lo {
			b.lo, b.loIncl = v, true
		}
	case model.OpEQ:
		b.apply(model.OpLTE, v)
		b.apply(model.OpGTE, v)
	}
}

func (b bound) empty() bool {
	return b.lo > b.hi || (b.lo == b.hi && !(b.loIncl && b.hiIncl))
}

func domain(m model.Metric) bound {
	return bound{lo: metricFloor[m], hi: math.Inf(1), loIncl: true}
}

// satisfiable rejects AND rules whose conditions on one metric cannot hold together,
// and rules where no condition can ever hold.
func satisfiable(rule model.PricingRule) error {
	if rule.Combinator == model.CombinatorOr {
		for _, c := range rule.Conditions {
			b := domain(c.Metric)
			b.apply(c.Operator, c.Value)
			if !b.empty() {
				return nil
			}
		}
		return errors.New("no condition can ever be true")
	}

	bounds := make(map[string]*bound)
	var order []string
	for _, c := range rule.Conditions {
		key := string(c.Metric) + "/" + c.CompetitorID
		b, ok := bounds[key]
		if !ok {
			d := domain(c.Metric)
			b = &d
			bounds[key] = b
			order = append(order, key)
		}
		b.apply(c.Operator, c.Value)
	}
	for _, key := range order {
		if bounds[key].empty() {
			return fmt.Errorf("conditions on %s contradict each other", key)
		}
	}
	return nil
}

// validateAction checks the action's parameters and that its price can meet the minimum margin.
// Discounts are measured from each product's list price, the most favorable starting point.
func validateAction(a model.Action, c model.PricingConstraints, products []model.Product) error {
	switch a.Kind {
	case model.ActionSetPrice:
		if a.Price <= 0 {
			return errors.New("set_price needs a positive price")
		}
		for _, p := range products {
			if m := model.MarginPct(a.Price, p.Cost); m < c.MinMarginPct {
				return fmt.Errorf("price %.2f gives %s a %.1f%% margin, below the %.1f%% minimum", a.Price, p.ID, m, c.MinMarginPct)
			}
		}
	case model.ActionApplyDiscount:
		if a.DiscountPct <= 0 || a.DiscountPct >= 100 {
			return fmt.Errorf("discount %.1f%% out of range", a.DiscountPct)
		}
		if c.MaxDiscountPct > 0 && a.DiscountPct > c.MaxDiscountPct {
			return fmt.Errorf("discount %.1f%% exceeds the %.1f%% maximum", a.DiscountPct, c.MaxDiscountPct)
		}
		for _, p := range products {
			price := p.ReferencePrice(p.InitialPrice) * (1 - a.DiscountPct/100)
			if m := model.MarginPct(price, p.Cost); m < c.MinMarginPct {
				return fmt.Errorf("discount of %.1f%% leaves %s a %.1f%% margin, below the %.1f%% minimum", a.DiscountPct, p.ID, m, c.MinMarginPct)
			}
		}
	case model.ActionMatchCompetitor:
		if a.Match != model.MatchLowest && a.Match != model.MatchAverage {
			return fmt.Errorf("unknown match target %q", a.Match)
		}
	case model.ActionUseRecommended:
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
	return nil
}
