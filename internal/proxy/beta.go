package proxy

import (
	"context"
	"math"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/model"
)

// Beta returns the underlying's sensitivity to the proxy index, measured as
// the latest rolling Pearson correlation of daily returns over the window.
// An empty or all-zero index (flat book) carries no information, so beta
// falls back to one and every underlying hedges itself.
func (x *Index) Beta(ctx context.Context, symbol model.Symbol, constituents []Constituent, end model.Date) (float64, error) {
	key := betaKey{Symbol: symbol, Window: x.window, Date: end}
	if v, ok := x.betas.Get(key); ok {
		return v, nil
	}

	index, err := x.History(ctx, constituents, end)
	if err != nil {
		return 0, err
	}
	if allZero(index) {
		logs.Debugf("beta %s: flat index history, defaulting to 1", symbol)
		x.betas.Put(key, 1)
		return 1, nil
	}

	closes, err := x.feed.DailyCloses(ctx, symbol, end, x.window+1)
	if err != nil {
		return 0, errors.Wrap(err, "beta history").With("symbol", symbol)
	}
	if len(closes) != len(index) {
		return 0, errors.Wrap(ErrSeriesMisaligned, "beta").
			With("symbol", symbol).
			With("index_len", len(index)).
			With("symbol_len", len(closes))
	}

	beta := lastRollingCorrelation(returns(closes), returns(index), x.window)
	x.betas.Put(key, beta)
	return beta, nil
}

// lastRollingCorrelation evaluates the Pearson correlation over the trailing
// window of the two return series. Degenerate windows (no variance on either
// side) report zero correlation.
func lastRollingCorrelation(xs, ys []float64, window int) float64 {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	if n == 0 {
		return 0
	}
	if window > n {
		window = n
	}
	xs = xs[n-window:]
	ys = ys[n-window:]
	return pearson(xs, ys)
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var meanX, meanY float64
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= n
	meanY /= n

	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

func returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

func allZero(series []float64) bool {
	for _, v := range series {
		if v != 0 {
			return false
		}
	}
	return true
}
