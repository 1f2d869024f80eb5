package model

import "github.com/shopspring/decimal"

// RoundPrice rounds to cents, half away from zero.
func RoundPrice(p float64) float64 {
	return decimal.NewFromFloat(p).Round(2).InexactFloat64()
}

// CeilPrice rounds up to cents, used for floors so rounding never breaks a lower limit.
// Float noise below a micro-cent is dropped first so 80.0000000001 stays 80.
func CeilPrice(p float64) float64 {
	return decimal.NewFromFloat(p).Round(6).RoundCeil(2).InexactFloat64()
}

// FloorPrice rounds down to cents, used for ceilings.
func FloorPrice(p float64) float64 {
	return decimal.NewFromFloat(p).Round(6).RoundFloor(2).InexactFloat64()
}
