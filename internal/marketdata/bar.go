// Package marketdata supplies the quotes and daily history the strategy
// evaluates against: live tops of book, persisted daily bars and the
// historical volatility estimate derived from them.
package marketdata

import (
	"context"

	"github.com/yanun0323/errors"
	"gorm.io/gorm/clause"

	"main/internal/model"
	"main/pkg/conn"
)

var ErrNoHistory = errors.New("no daily history")

// DailyBar is one end-of-day record for a symbol.
type DailyBar struct {
	Symbol string  `gorm:"primaryKey;size:64"`
	Date   string  `gorm:"primaryKey;size:10"` // YYYY-MM-DD
	Open   float64 `gorm:"not null"`
	High   float64 `gorm:"not null"`
	Low    float64 `gorm:"not null"`
	Close  float64 `gorm:"not null"`
	Volume float64 `gorm:"not null"`
}

// TableName pins the table so renaming the struct never migrates data away.
func (DailyBar) TableName() string { return "daily_bars" }

// BarStore persists daily bars behind the shared postgres client.
type BarStore struct {
	client *conn.Client
}

// NewBarStore wires the store and migrates the bar table.
func NewBarStore(client *conn.Client) (*BarStore, error) {
	if err := client.DB().AutoMigrate(&DailyBar{}); err != nil {
		return nil, errors.Wrap(err, "migrate daily bars")
	}
	return &BarStore{client: client}, nil
}

// Upsert writes bars, replacing same (symbol, date) rows so re-ingesting a
// day is idempotent.
func (s *BarStore) Upsert(ctx context.Context, bars []DailyBar) error {
	if len(bars) == 0 {
		return nil
	}
	err := s.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
			UpdateAll: true,
		}).
		Create(&bars).Error
	if err != nil {
		return errors.Wrap(err, "upsert daily bars").With("count", len(bars))
	}
	return nil
}

// Tail returns the most recent n bars for symbol at or before end, oldest
// first.
func (s *BarStore) Tail(ctx context.Context, symbol model.Symbol, end model.Date, n int) ([]DailyBar, error) {
	var bars []DailyBar
	err := s.client.DB().WithContext(ctx).
		Where("symbol = ? AND date <= ?", string(symbol), end.String()).
		Order("date DESC").
		Limit(n).
		Find(&bars).Error
	if err != nil {
		return nil, errors.Wrap(err, "load daily bars").With("symbol", symbol)
	}
	if len(bars) == 0 {
		return nil, errors.Wrap(ErrNoHistory, "load daily bars").With("symbol", symbol)
	}
	// reverse to chronological order
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}
