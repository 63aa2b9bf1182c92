// Package market holds the raw daily market record, the derivation of the engine's indicators
// from a record history, row validation and a synthetic data generator.
package market

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// DailyRecord is one day of raw desk data. Prices stay decimal until derivation.
// Nullable columns use NullDecimal or pointers so that a missing value is not a zero.
type DailyRecord struct {
	Date time.Time `json:"-"`

	PremiumParanagua  decimal.NullDecimal `json:"premium_paranagua"`   // USc/bu over CBOT
	ChicagoFront      decimal.NullDecimal `json:"chicago_front"`       // USc/bu
	USDBRL            decimal.NullDecimal `json:"usd_brl"`             // BRL per USD
	FOBParanagua      decimal.NullDecimal `json:"fob_paranagua"`       // USD/t
	FOBUSGulf         decimal.NullDecimal `json:"fob_us_gulf"`         // USD/t
	LineupGross       *int                `json:"lineup_bruto"`        // ships
	LineupNet         *int                `json:"lineup_liquido"`      // ships
	Cancellations7d   *int                `json:"cancelamentos_7d"`    // ships
	ExportsWeeklyTons decimal.NullDecimal `json:"exports_weekly_tons"` // t

	// Desk-entered logistics and narrative signals.
	ShipWaitDays       *float64 `json:"ship_wait_days,omitempty"`
	WaitWeeksAbove     int      `json:"wait_weeks_above,omitempty"`
	LoadingRate        *float64 `json:"loading_rate,omitempty"` // 0..1
	ManualEvent        string   `json:"manual_event,omitempty"`
	NarrativeConfirmed bool     `json:"narrative_confirmed,omitempty"`
}

// DateString is the record date in YYYY-MM-DD.
func (r DailyRecord) DateString() string { return r.Date.Format(DateLayout) }

// Float returns the value of a nullable decimal column.
func Float(d decimal.NullDecimal) (float64, bool) {
	if !d.Valid {
		return 0, false
	}
	return d.Decimal.InexactFloat64(), true
}

// Dec builds a present decimal column value rounded to places.
func Dec(v float64, places int32) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(v).Round(places))
}

// IntPtr is a helper for building records by hand.
func IntPtr(v int) *int { return &v }

func Float64Ptr(v float64) *float64 { return &v }

// Day truncates t to a UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD as a UTC day.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

type recordAlias DailyRecord

type recordJSON struct {
	Date string `json:"date"`
	*recordAlias
}

func (r DailyRecord) MarshalJSON() ([]byte, error) {
	a := recordAlias(r)
	return json.Marshal(recordJSON{Date: r.DateString(), recordAlias: &a})
}

func (r *DailyRecord) UnmarshalJSON(b []byte) error {
	aux := recordJSON{recordAlias: (*recordAlias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.Date == "" {
		return fmt.Errorf("record without date")
	}
	d, err := ParseDate(aux.Date)
	if err != nil {
		return fmt.Errorf("invalid record date %q: %w", aux.Date, err)
	}
	r.Date = d
	return nil
}
