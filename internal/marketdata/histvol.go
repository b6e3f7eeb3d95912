package marketdata

import "math"

const tradingDaysPerYear = 252

// AnnualizedVol estimates historical volatility as the standard deviation of
// daily log returns over the trailing span, annualized on trading days.
// Returns zero when the series is too short to form returns.
func AnnualizedVol(closes []float64, span int) float64 {
	if span > 0 && len(closes) > span+1 {
		closes = closes[len(closes)-span-1:]
	}
	if len(closes) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance * tradingDaysPerYear)
}
