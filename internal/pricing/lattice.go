package pricing

import (
	"math"

	"github.com/yanun0323/errors"

	"main/internal/model/enum"
)

var (
	ErrInvalidRight = errors.New("invalid option right")
	ErrInvalidStyle = errors.New("invalid option style")
)

// DefaultSteps is the lattice discretization used unless configured.
const DefaultSteps = 200

// latticeInputs are the market and contract terms for one tree build. The
// rate and dividend yield are flat across the remaining lifetime.
type latticeInputs struct {
	Right    enum.OptionRight
	Style    enum.OptionStyle
	Strike   float64
	Spot     float64
	Vol      float64
	Rate     float64
	Dividend float64
	Years    float64
	Steps    int
}

// latticeResult carries the tree value and the sensitivities that fall out of
// the first two backward-induction layers.
type latticeResult struct {
	Value float64
	Delta float64
	Gamma float64
	Theta float64 // per year, from the 2dt re-centered node
}

// validate rejects malformed contract terms. Callers that memoize check this
// up front so a bad enum never reaches the cache.
func (in latticeInputs) validate() error {
	if in.Right != enum.RightCall && in.Right != enum.RightPut {
		return errors.Wrap(ErrInvalidRight, "eval lattice").With("right", in.Right)
	}
	if in.Style != enum.StyleAmerican && in.Style != enum.StyleEuropean {
		return errors.Wrap(ErrInvalidStyle, "eval lattice").With("style", in.Style)
	}
	return nil
}

// evalLattice prices an option on a Cox-Ross-Rubinstein binomial tree.
// American exercise is checked at every node; delta and gamma come from the
// first and second layers, matching the analytic output of a tree engine.
func evalLattice(in latticeInputs) (latticeResult, error) {
	if err := in.validate(); err != nil {
		return latticeResult{}, err
	}

	steps := in.Steps
	if steps < 2 {
		steps = DefaultSteps
	}
	if in.Years <= 0 {
		return expiredResult(in), nil
	}
	vol := in.Vol
	if vol < 1e-4 {
		vol = 1e-4
	}

	dt := in.Years / float64(steps)
	u := math.Exp(vol * math.Sqrt(dt))
	d := 1 / u
	growth := math.Exp((in.Rate - in.Dividend) * dt)
	disc := math.Exp(-in.Rate * dt)
	p := (growth - d) / (u - d)
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	q := 1 - p

	// terminal layer
	values := make([]float64, steps+1)
	for i := 0; i <= steps; i++ {
		spot := in.Spot * math.Pow(u, float64(2*i-steps))
		values[i] = intrinsic(in.Right, spot, in.Strike)
	}

	var v00, v10, v11, v20, v21, v22 float64
	for step := steps - 1; step >= 0; step-- {
		for i := 0; i <= step; i++ {
			cont := disc * (q*values[i] + p*values[i+1])
			if in.Style == enum.StyleAmerican {
				spot := in.Spot * math.Pow(u, float64(2*i-step))
				if ex := intrinsic(in.Right, spot, in.Strike); ex > cont {
					cont = ex
				}
			}
			values[i] = cont
		}
		switch step {
		case 2:
			v20, v21, v22 = values[0], values[1], values[2]
		case 1:
			v10, v11 = values[0], values[1]
		case 0:
			v00 = values[0]
		}
	}

	su := in.Spot * u
	sd := in.Spot * d
	delta := (v11 - v10) / (su - sd)
	su2 := in.Spot * u * u
	sd2 := in.Spot * d * d
	deltaUp := (v22 - v21) / (su2 - in.Spot)
	deltaDown := (v21 - v20) / (in.Spot - sd2)
	gamma := (deltaUp - deltaDown) / (0.5 * (su2 - sd2))
	theta := (v21 - v00) / (2 * dt)

	return latticeResult{Value: v00, Delta: delta, Gamma: gamma, Theta: theta}, nil
}

func expiredResult(in latticeInputs) latticeResult {
	value := intrinsic(in.Right, in.Spot, in.Strike)
	var delta float64
	switch {
	case in.Right == enum.RightCall && in.Spot > in.Strike:
		delta = 1
	case in.Right == enum.RightPut && in.Spot < in.Strike:
		delta = -1
	}
	return latticeResult{Value: value, Delta: delta}
}

func intrinsic(right enum.OptionRight, spot, strike float64) float64 {
	var payoff float64
	if right == enum.RightCall {
		payoff = spot - strike
	} else {
		payoff = strike - spot
	}
	if payoff < 0 {
		return 0
	}
	return payoff
}
