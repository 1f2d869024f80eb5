package calculator

import (
	"errors"
	"math"
	"sort"
)

// ErrEmpty is returned by order statistics on an empty set.
var ErrEmpty = errors.New("no values provided")

// Range returns the low and high of values.
func Range(values []float64) (low, high float64, err error) {
	if len(values) == 0 {
		return 0, 0, ErrEmpty
	}
	low = math.Inf(1)
	high = math.Inf(-1)
	for _, v := range values {
		if v > high {
			high = v
		}
		if v < low {
			low = v
		}
	}
	return low, high, nil
}

// Sorted returns an ascending copy of values.
func Sorted(values []float64) []float64 {
	out := append([]float64(nil), values...)
	sort.Float64s(out)
	return out
}

// Median of an ascending slice. Even counts average the middle pair.
func Median(sorted []float64) (float64, error) {
	n := len(sorted)
	if n == 0 {
		return 0, ErrEmpty
	}
	if n%2 == 1 {
		return sorted[n/2], nil
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, nil
}

// Quartiles returns Q1, median and Q3 of an ascending slice.
// Q1 and Q3 are the medians of the lower and upper halves; for odd counts the median itself
// belongs to neither half. A single value is its own Q1, median and Q3.
func Quartiles(sorted []float64) (q1, median, q3 float64, err error) {
	n := len(sorted)
	if n == 0 {
		return 0, 0, 0, ErrEmpty
	}
	median, _ = Median(sorted)
	if n == 1 {
		return median, median, median, nil
	}
	half := n / 2
	q1, _ = Median(sorted[:half])
	if n%2 == 1 {
		q3, _ = Median(sorted[half+1:])
	} else {
		q3, _ = Median(sorted[half:])
	}
	return q1, median, q3, nil
}

// RankOf returns the 1-based position of v when inserted into values sorted ascending.
// v sorts before values equal to it.
func RankOf(v float64, values []float64) int {
	rank := 1
	for _, x := range values {
		if x < v {
			rank++
		}
	}
	return rank
}
