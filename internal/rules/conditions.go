package rules

import (
	"context"
	"errors"
	"fmt"
	"math"

	"PriceSentinel/internal/competitive"
	"PriceSentinel/internal/model"
)

const eqTolerance = 1e-9

// metricValue reads a metric from the snapshot. ok is false when the snapshot has no value for it.
func metricValue(st model.ProductState, c model.Condition, weight func(string) float64) (float64, bool) {
	pos := st.Position
	switch c.Metric {
	case model.MetricOwnPrice:
		return st.CurrentPrice, true
	case model.MetricCompetitorLowest:
		if pos == nil {
			return 0, false
		}
		return pos.Min, true
	case model.MetricCompetitorAverage:
		return competitive.WeightedAverage(st.CompetitorPrices, weight)
	case model.MetricCompetitorPrice:
		best, found := 0.0, false
		for _, pp := range st.CompetitorPrices {
			if pp.CompetitorID == c.CompetitorID && pp.Available && (!found || pp.Price < best) {
				best, found = pp.Price, true
			}
		}
		return best, found
	case model.MetricPriceGapPct:
		if pos == nil {
			return 0, false
		}
		return pos.GapPct * 100, true
	case model.MetricPercentile:
		if pos == nil {
			return 0, false
		}
		return pos.Percentile * 100, true
	case model.MetricInventoryLevel:
		return st.Inventory, st.InventoryKnown
	case model.MetricInventoryRatio:
		if !st.InventoryKnown || st.Product.TargetInventory <= 0 {
			return 0, false
		}
		return st.InventoryRatio(), true
	case model.MetricHoursToStockout:
		if st.Stockout == nil {
			return 0, false
		}
		if st.Stockout.Unbounded {
			return math.Inf(1), true
		}
		return st.Stockout.HoursToStockout, true
	}
	return 0, false
}

func compare(op model.Operator, v, target float64) bool {
	switch op {
	case model.OpLT:
		return v < target
	case model.OpLTE:
		return v <= target
	case model.OpGT:
		return v > target
	case model.OpGTE:
		return v >= target
	case model.OpEQ:
		return math.Abs(v-target) <= eqTolerance
	}
	return false
}

// conditionsHold evaluates the rule's conditions with its combinator. A condition whose metric
// is unavailable is false.
func conditionsHold(rule model.PricingRule, st model.ProductState) (bool, string) {
	weight := rule.Constraints.WeightFor
	anyOf := rule.Combinator == model.CombinatorOr
	for _, c := range rule.Conditions {
		v, ok := metricValue(st, c, weight)
		held := ok && compare(c.Operator, v, c.Value)
		if anyOf && held {
			return true, fmt.Sprintf("%s %s %.2f (%.2f)", c.Metric, c.Operator, c.Value, v)
		}
		if !anyOf && !held {
			if !ok {
				return false, fmt.Sprintf("%s unavailable", c.Metric)
			}
			return false, fmt.Sprintf("%s %.2f not %s %.2f", c.Metric, v, c.Operator, c.Value)
		}
	}
	if anyOf {
		return false, "no condition held"
	}
	return true, "all conditions held"
}

// Recommender supplies the recommendation a use_recommendation action defers to.
type Recommender interface {
	GenerateFrom(ctx context.Context, state model.ProductState) (*model.PricingRecommendation, error)
}

var errNoCandidate = errors.New("action produced no price")

// candidatePrice computes the action's price from the snapshot, rounded to cents.
func candidatePrice(ctx context.Context, rule model.PricingRule, st model.ProductState, rec Recommender) (float64, error) {
	a := rule.Action
	var price float64
	switch a.Kind {
	case model.ActionSetPrice:
		price = a.Price
	case model.ActionApplyDiscount:
		price = st.CurrentPrice * (1 - a.DiscountPct/100)
	case model.ActionMatchCompetitor:
		var target float64
		var ok bool
		switch a.Match {
		case model.MatchLowest:
			if st.Position != nil {
				target, ok = st.Position.Min, true
			}
		case model.MatchAverage:
			target, ok = competitive.WeightedAverage(st.CompetitorPrices, rule.Constraints.WeightFor)
		}
		if !ok {
			return 0, fmt.Errorf("%w: no competitor %s price", errNoCandidate, a.Match)
		}
		price = target + a.Offset
	case model.ActionUseRecommended:
		if rec == nil {
			return 0, fmt.Errorf("%w: no recommender", errNoCandidate)
		}
		r, err := rec.GenerateFrom(ctx, st)
		if err != nil {
			return 0, err
		}
		if !r.Compliant() {
			return 0, fmt.Errorf("%w: no compliant recommendation", errNoCandidate)
		}
		price = r.RecommendedPrice
	default:
		return 0, fmt.Errorf("%w: unknown action %q", errNoCandidate, a.Kind)
	}
	return model.RoundPrice(price), nil
}
