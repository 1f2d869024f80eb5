// Package season supplies the demand multipliers used by forecasting and stockout prediction.
package season

import (
	"strings"
	"time"
)

// Promotion lifts demand for a product (or every product when ProductIDs is empty) inside a date window.
type Promotion struct {
	Name       string    `yaml:"name"`
	ProductIDs []string  `yaml:"product_ids"`
	Start      time.Time `yaml:"start"`
	End        time.Time `yaml:"end"`
	Lift       float64   `yaml:"lift"` // multiplier, 1.3 = +30%
}

func (p Promotion) covers(productID string, t time.Time) bool {
	if t.Before(p.Start) || !t.Before(p.End) {
		return false
	}
	if len(p.ProductIDs) == 0 {
		return true
	}
	for _, id := range p.ProductIDs {
		if strings.EqualFold(id, productID) {
			return true
		}
	}
	return false
}

// Calendar combines monthly seasonal factors with active promotions.
type Calendar struct {
	monthly    [12]float64
	promotions []Promotion
}

// NewCalendar builds a Calendar. monthly is keyed by month number (1-12); missing or non-positive months default to 1.
func NewCalendar(monthly map[int]float64, promotions []Promotion) *Calendar {
	c := &Calendar{promotions: promotions}
	for i := range c.monthly {
		c.monthly[i] = 1
		if f, ok := monthly[i+1]; ok && f > 0 {
			c.monthly[i] = f
		}
	}
	return c
}

// Factor returns the combined demand multiplier for productID at t.
func (c *Calendar) Factor(productID string, t time.Time) float64 {
	if c == nil {
		return 1
	}
	f := c.monthly[t.Month()-1]
	for _, p := range c.promotions {
		if p.Lift > 0 && p.covers(productID, t) {
			f *= p.Lift
		}
	}
	return f
}
