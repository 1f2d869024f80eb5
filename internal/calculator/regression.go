package calculator

import (
	"errors"
	"math"
)

// ErrNoVariation is returned when the regressor has no spread.
var ErrNoVariation = errors.New("regressor has no variation")

// z95 is the two-sided 95% normal quantile.
const z95 = 1.96

// LogLogFit is the result of fitting ln(y) = a + b*ln(x).
type LogLogFit struct {
	Intercept float64
	Slope     float64
	SlopeSE   float64
	Lower     float64
	Upper     float64
	RSquared  float64
	N         int
}

// FitLogLog runs ordinary least squares on log-transformed pairs.
// Pairs with a non-positive x or y are skipped.
func FitLogLog(xs, ys []float64) (LogLogFit, error) {
	if len(xs) != len(ys) {
		return LogLogFit{}, errors.New("mismatched input lengths")
	}
	lx := make([]float64, 0, len(xs))
	ly := make([]float64, 0, len(ys))
	for i := range xs {
		if xs[i] <= 0 || ys[i] <= 0 {
			continue
		}
		lx = append(lx, math.Log(xs[i]))
		ly = append(ly, math.Log(ys[i]))
	}
	n := len(lx)
	if n < 3 {
		return LogLogFit{N: n}, errors.New("not enough data for regression")
	}

	mx, my := Mean(lx), Mean(ly)
	var sxx, sxy, syy float64
	for i := 0; i < n; i++ {
		dx, dy := lx[i]-mx, ly[i]-my
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx < 1e-12 {
		return LogLogFit{N: n}, ErrNoVariation
	}

	slope := sxy / sxx
	intercept := my - slope*mx

	var ssr float64
	for i := 0; i < n; i++ {
		r := ly[i] - (intercept + slope*lx[i])
		ssr += r * r
	}
	r2 := 1.0
	if syy > 0 {
		r2 = 1 - ssr/syy
	}
	if r2 < 0 {
		r2 = 0
	}
	se := sqrt(ssr / float64(n-2) / sxx)

	return LogLogFit{
		Intercept: intercept,
		Slope:     slope,
		SlopeSE:   se,
		Lower:     slope - z95*se,
		Upper:     slope + z95*se,
		RSquared:  r2,
		N:         n,
	}, nil
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
