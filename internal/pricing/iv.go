package pricing

import "math"

const (
	ivFloor   = 0.01 // reported vols are floored, matching the quote model
	ivLow     = 1e-4
	ivHigh    = 4.0
	ivMaxIter = 100
	ivTol     = 1e-7
)

// solveImpliedVol inverts the lattice price for volatility by bisection.
// Returns false when the observed price cannot be supported by any vol in
// range; callers must treat that as "cannot price this side", not as zero.
func (e *Engine) solveImpliedVol(in latticeInputs, observed float64) (float64, bool) {
	if observed <= 0 || math.IsNaN(observed) {
		return 0, false
	}

	lo, hi := ivLow, ivHigh
	vLo, err := e.eval(withVol(in, lo))
	if err != nil {
		return 0, false
	}
	vHi, err := e.eval(withVol(in, hi))
	if err != nil {
		return 0, false
	}
	// value is monotone increasing in vol; observed outside the attainable
	// band means the quote is too extreme to carry a volatility
	if observed < vLo.Value || observed > vHi.Value {
		return 0, false
	}

	for i := 0; i < ivMaxIter; i++ {
		mid := (lo + hi) / 2
		v, err := e.eval(withVol(in, mid))
		if err != nil {
			return 0, false
		}
		diff := v.Value - observed
		if math.Abs(diff) < ivTol || hi-lo < ivTol {
			return math.Max(mid, ivFloor), true
		}
		if diff > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return math.Max((lo+hi)/2, ivFloor), true
}

func withVol(in latticeInputs, vol float64) latticeInputs {
	in.Vol = vol
	return in
}
