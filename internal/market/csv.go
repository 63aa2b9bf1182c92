package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CSVHeader is the column order written by WriteCSV. ReadCSV accepts any order and ignores
// unknown columns.
var CSVHeader = []string{
	"date",
	"premium_paranagua", "chicago_front", "usd_brl", "fob_paranagua", "fob_us_gulf",
	"lineup_bruto", "lineup_liquido", "cancelamentos_7d", "exports_weekly_tons",
	"ship_wait_days", "wait_weeks_above", "loading_rate", "manual_event", "narrative_confirmed",
}

// ReadCSV decodes records from a CSV with a header row. Empty cells are missing values.
func ReadCSV(r io.Reader) ([]DailyRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx["date"]; !ok {
		return nil, fmt.Errorf("csv header has no date column")
	}

	var out []DailyRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		rec, err := parseRow(row, idx)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, rec)
	}
}

func parseRow(row []string, idx map[string]int) (DailyRecord, error) {
	cell := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	var r DailyRecord
	var err error
	if r.Date, err = ParseDate(cell("date")); err != nil {
		return r, fmt.Errorf("date: %w", err)
	}
	decimals := []struct {
		name string
		dst  *decimal.NullDecimal
	}{
		{"premium_paranagua", &r.PremiumParanagua},
		{"chicago_front", &r.ChicagoFront},
		{"usd_brl", &r.USDBRL},
		{"fob_paranagua", &r.FOBParanagua},
		{"fob_us_gulf", &r.FOBUSGulf},
		{"exports_weekly_tons", &r.ExportsWeeklyTons},
	}
	for _, c := range decimals {
		v := cell(c.name)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return r, fmt.Errorf("%s: %w", c.name, err)
		}
		*c.dst = decimal.NewNullDecimal(d)
	}
	ints := []struct {
		name string
		dst  **int
	}{
		{"lineup_bruto", &r.LineupGross},
		{"lineup_liquido", &r.LineupNet},
		{"cancelamentos_7d", &r.Cancellations7d},
	}
	for _, c := range ints {
		v := cell(c.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return r, fmt.Errorf("%s: %w", c.name, err)
		}
		*c.dst = IntPtr(n)
	}
	if v := cell("ship_wait_days"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return r, fmt.Errorf("ship_wait_days: %w", err)
		}
		r.ShipWaitDays = &f
	}
	if v := cell("wait_weeks_above"); v != "" {
		if r.WaitWeeksAbove, err = strconv.Atoi(v); err != nil {
			return r, fmt.Errorf("wait_weeks_above: %w", err)
		}
	}
	if v := cell("loading_rate"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return r, fmt.Errorf("loading_rate: %w", err)
		}
		r.LoadingRate = &f
	}
	r.ManualEvent = cell("manual_event")
	if v := cell("narrative_confirmed"); v != "" {
		if r.NarrativeConfirmed, err = strconv.ParseBool(v); err != nil {
			return r, fmt.Errorf("narrative_confirmed: %w", err)
		}
	}
	return r, nil
}

// WriteCSV encodes records with CSVHeader.
func WriteCSV(w io.Writer, recs []DailyRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.DateString(),
			decString(r.PremiumParanagua), decString(r.ChicagoFront), decString(r.USDBRL),
			decString(r.FOBParanagua), decString(r.FOBUSGulf),
			intString(r.LineupGross), intString(r.LineupNet), intString(r.Cancellations7d),
			decString(r.ExportsWeeklyTons),
			floatString(r.ShipWaitDays), "", floatString(r.LoadingRate), r.ManualEvent, "",
		}
		if r.WaitWeeksAbove != 0 {
			row[11] = strconv.Itoa(r.WaitWeeksAbove)
		}
		if r.NarrativeConfirmed {
			row[14] = "true"
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func decString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func intString(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func floatString(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
