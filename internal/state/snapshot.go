package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/model"
)

// AccountSummary carries the monetary end-of-day figures. Decimal keeps the
// report exact; these values land in accounting, not in pricing math.
type AccountSummary struct {
	Cash                    decimal.Decimal `json:"cash"`
	TotalNetProfit          decimal.Decimal `json:"totalNetProfit"`
	TotalUnrealizedProfit   decimal.Decimal `json:"totalUnrealizedProfit"`
	TotalPortfolioValue     decimal.Decimal `json:"totalPortfolioValue"`
	SimulatedMissedGain     decimal.Decimal `json:"simulatedMissedGain"`
	EstimatedValuationGain  decimal.Decimal `json:"estimatedValuationGain"`
	EstimatedPortfolioValue decimal.Decimal `json:"estimatedPortfolioValue"`
}

// DaySnapshot is the full end-of-day record written to disk.
type DaySnapshot struct {
	Date      model.Date     `json:"date"`
	Account   AccountSummary `json:"account"`
	Positions []Position     `json:"positions"`
}

// SnapshotWriter persists one DaySnapshot per trading day. Writing twice on
// the same day is a no-op so repeated end-of-day triggers stay idempotent.
type SnapshotWriter struct {
	dir     string
	lastDay model.Date
}

// NewSnapshotWriter creates a writer rooted at dir.
func NewSnapshotWriter(dir string) *SnapshotWriter {
	return &SnapshotWriter{dir: dir}
}

// Write persists the snapshot for its date. Positions are ordered by symbol
// so successive files diff cleanly.
func (w *SnapshotWriter) Write(snap DaySnapshot) error {
	if snap.Date == w.lastDay {
		return nil
	}

	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].Symbol < snap.Positions[j].Symbol
	})

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal day snapshot")
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errors.Wrap(err, "create snapshot dir").With("dir", w.dir)
	}
	path := w.path(snap.Date)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write day snapshot").With("path", path)
	}

	w.lastDay = snap.Date
	return nil
}

// Read loads the snapshot for a day, typically on restart.
func (w *SnapshotWriter) Read(day model.Date) (DaySnapshot, error) {
	data, err := os.ReadFile(w.path(day))
	if err != nil {
		return DaySnapshot{}, errors.Wrap(err, "read day snapshot")
	}
	var snap DaySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return DaySnapshot{}, errors.Wrap(err, "unmarshal day snapshot")
	}
	return snap, nil
}

// EstimatedValuationGain sums each position's half-spread at size: the gain
// realized if every position unwound at mid instead of the touch.
func EstimatedValuationGain(positions []Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		gain := p.Multiplier * (p.Spread / 2) * p.Quantity
		if gain < 0 {
			gain = -gain
		}
		total = total.Add(decimal.NewFromFloat(gain))
	}
	return total
}

func (w *SnapshotWriter) path(day model.Date) string {
	return filepath.Join(w.dir, "positions_"+day.String()+".json")
}
