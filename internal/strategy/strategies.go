package strategy

import (
	"fmt"
	"math"

	"PriceSentinel/internal/competitive"
	"PriceSentinel/internal/forecast"
	"PriceSentinel/internal/model"
)

// Input is what every strategy sees: the product state, the constraint band and the demand curve.
type Input struct {
	State       model.ProductState
	Constraints model.PricingConstraints
	Curve       forecast.Curve
	Floor       float64 // lowest compliant price, rounded up to cents
	Ceiling     float64 // highest compliant price, rounded down to cents; +Inf when unlimited
	HorizonDays int
	Options     Options
}

// searchCeiling bounds grid searches when no price-change limit caps the band.
func (in *Input) searchCeiling() float64 {
	if math.IsInf(in.Ceiling, 1) {
		return math.Max(in.Floor, 2*in.State.CurrentPrice)
	}
	return in.Ceiling
}

// Strategy proposes one candidate price. ok is false when the strategy does not apply;
// note explains the outcome either way and lands in the reasoning trace.
type Strategy struct {
	Tag   model.StrategyTag
	Price func(in *Input) (price float64, ok bool, note string)
}

// Strategies is the ordered strategy table. Order decides which tag a shared price carries.
var Strategies = []Strategy{
	{model.StrategyClearance, clearance},
	{model.StrategyPremium, premium},
	{model.StrategyCompetitorLowest, competitorLowest},
	{model.StrategyCompetitorAvg, competitorAverage},
	{model.StrategyMarginMax, marginMax},
	{model.StrategyRevenueMax, revenueMax},
}

// clearance marks down to the deepest compliant price when stock is well above target.
func clearance(in *Input) (float64, bool, string) {
	ratio := in.State.InventoryRatio()
	if ratio <= in.Options.ClearanceRatio {
		return 0, false, fmt.Sprintf("inventory ratio %.2f not above %.2f", ratio, in.Options.ClearanceRatio)
	}
	if in.Floor >= in.State.CurrentPrice {
		return 0, false, fmt.Sprintf("no markdown room below %.2f", in.State.CurrentPrice)
	}
	return in.Floor, true, fmt.Sprintf("inventory ratio %.2f, deepest compliant markdown", ratio)
}

// premium raises price when stock is scarce, bounded by the change ceiling.
func premium(in *Input) (float64, bool, string) {
	if !in.State.InventoryKnown || in.State.Product.TargetInventory <= 0 {
		return 0, false, "inventory unknown"
	}
	ratio := in.State.InventoryRatio()
	if ratio >= in.Options.PremiumRatio {
		return 0, false, fmt.Sprintf("inventory ratio %.2f not below %.2f", ratio, in.Options.PremiumRatio)
	}
	target := in.State.CurrentPrice * (1 + in.Options.PremiumPct/100)
	price := model.FloorPrice(math.Min(target, in.Ceiling))
	if price <= in.State.CurrentPrice {
		return 0, false, "no room above current price"
	}
	return price, true, fmt.Sprintf("inventory ratio %.2f, raising toward +%.0f%%", ratio, in.Options.PremiumPct)
}

func competitorLowest(in *Input) (float64, bool, string) {
	if in.State.Position == nil {
		return 0, false, "no competitor prices"
	}
	return model.RoundPrice(in.State.Position.Min), true, fmt.Sprintf("lowest of %d competitors", in.State.Position.CompetitorCount)
}

func competitorAverage(in *Input) (float64, bool, string) {
	avg, ok := competitive.WeightedAverage(in.State.CompetitorPrices, in.Constraints.WeightFor)
	if !ok {
		return 0, false, "no weighted competitor prices"
	}
	return model.RoundPrice(avg), true, "importance-weighted competitor average"
}

func marginMax(in *Input) (float64, bool, string) {
	cost := in.State.Product.Cost
	return in.gridSearch("margin", func(p float64) float64 {
		return in.Curve.Margin(p, cost, float64(in.HorizonDays))
	})
}

func revenueMax(in *Input) (float64, bool, string) {
	return in.gridSearch("revenue", func(p float64) float64 {
		return in.Curve.Revenue(p, float64(in.HorizonDays))
	})
}

// gridSearch maximizes objective over the compliant band. The first maximum wins ties.
func (in *Input) gridSearch(name string, objective func(float64) float64) (float64, bool, string) {
	if in.Curve.BaseDaily <= 0 {
		return 0, false, "no recent sales to forecast " + name
	}
	lo, hi := in.Floor, in.searchCeiling()
	steps := in.Options.GridSteps
	best, bestVal := lo, math.Inf(-1)
	for i := 0; i <= steps; i++ {
		p := lo + (hi-lo)*float64(i)/float64(steps)
		if v := objective(p); v > bestVal {
			best, bestVal = p, v
		}
	}
	price := model.RoundPrice(best)
	price = math.Max(price, in.Floor)
	price = math.Min(price, model.FloorPrice(hi))
	return price, true, fmt.Sprintf("maximizes forecast %s over %.2f-%.2f", name, lo, hi)
}
