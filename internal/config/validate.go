package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
// Rule definitions are checked against the catalog when they are registered.
func (c *Config) Validate() error {
	if len(c.Products) == 0 {
		return errors.New("products: at least one product is required")
	}
	seen := make(map[string]bool, len(c.Products))
	for i, p := range c.Products {
		prefix := fmt.Sprintf("products[%d]", i)
		if p.ID == "" {
			return fmt.Errorf("%s.id is required", prefix)
		}
		if seen[p.ID] {
			return fmt.Errorf("%s.id %q is duplicated", prefix, p.ID)
		}
		seen[p.ID] = true
		if p.Cost < 0 {
			return fmt.Errorf("%s.cost must be >= 0", prefix)
		}
		if p.BasePrice <= 0 && p.InitialPrice <= 0 {
			return fmt.Errorf("%s needs a base_price or initial_price", prefix)
		}
		if p.Constraints.MinMarginPct >= 100 {
			return fmt.Errorf("%s.constraints.min_margin_pct must be < 100", prefix)
		}
		if p.TargetInventory < 0 || p.LeadTimeDays < 0 {
			return fmt.Errorf("%s: target_inventory and lead_time_days must be >= 0", prefix)
		}
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.EventsTopic == "" {
		return errors.New("kafka.events_topic is required when brokers are set")
	}
	if c.Kafka.Workers < 1 {
		return errors.New("kafka.workers must be >= 1")
	}

	if c.Pricing.MinInventoryConfidence < 0 || c.Pricing.MinInventoryConfidence > 100 {
		return fmt.Errorf("pricing.min_inventory_confidence must be between 0 and 100, got %.0f", c.Pricing.MinInventoryConfidence)
	}
	if c.Pricing.GapThreshold <= 0 || c.Pricing.GapThreshold >= 1 {
		return fmt.Errorf("pricing.gap_threshold must be a fraction between 0 and 1, got %.2f", c.Pricing.GapThreshold)
	}
	if c.Pricing.StaleAfter <= 0 || c.Pricing.MaxTriggerAge <= 0 {
		return errors.New("pricing.stale_after and pricing.max_trigger_age must be positive")
	}

	for month := range c.Seasonality.Monthly {
		if month < 1 || month > 12 {
			return fmt.Errorf("seasonality.monthly: invalid month %d", month)
		}
	}
	for i, p := range c.Seasonality.Promotions {
		if !p.End.After(p.Start) {
			return fmt.Errorf("seasonality.promotions[%d] %q ends before it starts", i, p.Name)
		}
		if p.Lift <= 0 {
			return fmt.Errorf("seasonality.promotions[%d] %q needs a positive lift", i, p.Name)
		}
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
