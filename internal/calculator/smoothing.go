package calculator

import "errors"

// Holt runs double exponential smoothing and returns the final level and trend.
// alpha smooths the level, beta the trend; both must lie in (0, 1].
func Holt(series []float64, alpha, beta float64) (level, trend float64, err error) {
	if alpha <= 0 || alpha > 1 || beta <= 0 || beta > 1 {
		return 0, 0, errors.New("smoothing factors must be in (0, 1]")
	}
	switch len(series) {
	case 0:
		return 0, 0, ErrEmpty
	case 1:
		return series[0], 0, nil
	}

	level = series[0]
	trend = series[1] - series[0]
	for i := 1; i < len(series); i++ {
		prevLevel := level
		level = alpha*series[i] + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}
	return level, trend, nil
}
