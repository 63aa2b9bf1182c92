package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bruno-portfolio/basismind/internal/market"
)

func newMarketRowModel(r market.DailyRecord, source string, now time.Time) marketRowModel {
	return marketRowModel{
		Date:               r.DateString(),
		PremiumParanagua:   r.PremiumParanagua,
		ChicagoFront:       r.ChicagoFront,
		USDBRL:             r.USDBRL,
		FOBParanagua:       r.FOBParanagua,
		FOBUSGulf:          r.FOBUSGulf,
		LineupGross:        r.LineupGross,
		LineupNet:          r.LineupNet,
		Cancellations7d:    r.Cancellations7d,
		ExportsWeeklyTons:  r.ExportsWeeklyTons,
		ShipWaitDays:       r.ShipWaitDays,
		WaitWeeksAbove:     r.WaitWeeksAbove,
		LoadingRate:        r.LoadingRate,
		ManualEvent:        r.ManualEvent,
		NarrativeConfirmed: r.NarrativeConfirmed,
		Source:             source,
		UpdatedAtUnix:      now.Unix(),
	}
}

func (m marketRowModel) record() (market.DailyRecord, error) {
	d, err := market.ParseDate(m.Date)
	if err != nil {
		return market.DailyRecord{}, fmt.Errorf("store: bad market_data date %q: %w", m.Date, err)
	}
	return market.DailyRecord{
		Date:               d,
		PremiumParanagua:   m.PremiumParanagua,
		ChicagoFront:       m.ChicagoFront,
		USDBRL:             m.USDBRL,
		FOBParanagua:       m.FOBParanagua,
		FOBUSGulf:          m.FOBUSGulf,
		LineupGross:        m.LineupGross,
		LineupNet:          m.LineupNet,
		Cancellations7d:    m.Cancellations7d,
		ExportsWeeklyTons:  m.ExportsWeeklyTons,
		ShipWaitDays:       m.ShipWaitDays,
		WaitWeeksAbove:     m.WaitWeeksAbove,
		LoadingRate:        m.LoadingRate,
		ManualEvent:        m.ManualEvent,
		NarrativeConfirmed: m.NarrativeConfirmed,
	}, nil
}

// UpsertMarket inserts records, replacing any row with the same date.
func (s *Store) UpsertMarket(ctx context.Context, source string, recs ...market.DailyRecord) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now()
	models := make([]marketRowModel, 0, len(recs))
	for _, r := range recs {
		if r.Date.IsZero() {
			return fmt.Errorf("store: market record without date")
		}
		models = append(models, newMarketRowModel(r, source, now))
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}},
			UpdateAll: true,
		}).
		CreateInBatches(&models, 200).Error
}

// MarketRecord returns the row stored for a date.
func (s *Store) MarketRecord(ctx context.Context, date time.Time) (market.DailyRecord, error) {
	var m marketRowModel
	err := s.db.WithContext(ctx).Where("date = ?", market.Day(date).Format(market.DateLayout)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.DailyRecord{}, ErrNotFound
	}
	if err != nil {
		return market.DailyRecord{}, err
	}
	return m.record()
}

// MarketHistory returns the rows from days calendar days before `before` up to, but excluding,
// `before`, oldest first.
func (s *Store) MarketHistory(ctx context.Context, before time.Time, days int) ([]market.DailyRecord, error) {
	end := market.Day(before)
	start := end.AddDate(0, 0, -days)
	var models []marketRowModel
	err := s.db.WithContext(ctx).
		Where("date >= ? AND date < ?", start.Format(market.DateLayout), end.Format(market.DateLayout)).
		Order("date ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]market.DailyRecord, 0, len(models))
	for _, m := range models {
		r, err := m.record()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// CountMarket returns the number of stored market rows.
func (s *Store) CountMarket(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&marketRowModel{}).Count(&n).Error
	return n, err
}
