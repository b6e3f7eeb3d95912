package model

// Greeks is the full sensitivity grid of one contract evaluation: first-order
// terms, their decay toward maturity and the spot/vol cross derivatives.
// Values are a pure function of (contract, date, spot, vol); cached copies
// must be treated as immutable.
type Greeks struct {
	Delta      float64 // dV/dP
	Gamma      float64 // d2V/dP2
	DeltaDecay float64 // dDelta/dT (charm)
	DPdIV      float64 // dDelta/dIV
	DGdP       float64 // dGamma/dP (speed)
	GammaDecay float64 // dGamma/dT (color)
	DGdIV      float64 // dGamma/dIV
	Theta      float64 // dV/dT
	DTdP       float64 // dTheta/dP
	ThetaDecay float64 // dTheta/dT
	DTdIV      float64 // dTheta/dIV
	Vega       float64 // dV/dIV
	DIVdP      float64 // dVega/dP (vanna)
	VegaDecay  float64 // dVega/dT (veta)
	DIV2       float64 // dVega/dIV (volga)
	Rho        float64 // dV/dR
}

// PLExplain attributes a price change to each sensitivity given the observed
// input moves. Derived, never stored.
type PLExplain struct {
	Delta      float64
	Gamma      float64
	DeltaDecay float64
	DPdIV      float64
	DGdP       float64
	GammaDecay float64
	DGdIV      float64
	Theta      float64
	DTdP       float64
	ThetaDecay float64
	DTdIV      float64
	Vega       float64
	DIVdP      float64
	VegaDecay  float64
	DIV2       float64
	Rho        float64
	Total      float64
}

// Explain decomposes a value change into per-greek contributions for the
// observed spot, time, vol and rate moves. Second-order terms carry the usual
// 1/2 Taylor weight.
func (g Greeks) Explain(dP, dT, dIV, dR float64) PLExplain {
	e := PLExplain{
		Delta:      g.Delta * dP,
		Gamma:      0.5 * g.Gamma * dP * dP,
		DeltaDecay: g.DeltaDecay * dT * dP,
		DPdIV:      g.DPdIV * dP * dIV,
		DGdP:       0.5 * g.DGdP * dP * dP * dP,
		GammaDecay: 0.5 * g.GammaDecay * dP * dP * dT,
		DGdIV:      0.5 * g.DGdIV * dP * dP * dIV,
		Theta:      g.Theta * dT,
		DTdP:       g.DTdP * dT * dP,
		ThetaDecay: 0.5 * g.ThetaDecay * dT * dT,
		DTdIV:      g.DTdIV * dT * dIV,
		Vega:       g.Vega * dIV,
		DIVdP:      g.DIVdP * dIV * dP,
		VegaDecay:  g.VegaDecay * dIV * dT,
		DIV2:       0.5 * g.DIV2 * dIV * dIV,
		Rho:        g.Rho * dR,
	}
	e.Total = e.Delta + e.Gamma + e.DeltaDecay + e.DPdIV + e.DGdP +
		e.GammaDecay + e.DGdIV + e.Theta + e.DTdP + e.ThetaDecay +
		e.DTdIV + e.Vega + e.DIVdP + e.VegaDecay + e.DIV2 + e.Rho
	return e
}
