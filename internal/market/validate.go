package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type IssueType string

const (
	IssueMissing    IssueType = "missing"
	IssueRange      IssueType = "out_of_range"
	IssueValidation IssueType = "validation_error"
	IssueAnomaly    IssueType = "anomaly"
)

// Issue is one data quality finding on a record.
type Issue struct {
	Column   string    `json:"column"`
	Type     IssueType `json:"type"`
	Value    string    `json:"value"`
	Expected string    `json:"expected"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// ColumnRange is the valid range of one raw column.
type ColumnRange struct {
	Name     string
	Min, Max float64
	Nullable bool
}

// Columns lists every raw column checked by ValidateRecord, in storage order.
var Columns = []ColumnRange{
	{Name: "premium_paranagua", Min: -200, Max: 500},
	{Name: "chicago_front", Min: 500, Max: 2500},
	{Name: "usd_brl", Min: 3, Max: 10},
	{Name: "fob_paranagua", Min: 200, Max: 800},
	{Name: "fob_us_gulf", Min: 200, Max: 800},
	{Name: "lineup_bruto", Min: 0, Max: 500},
	{Name: "lineup_liquido", Min: 0, Max: 500},
	{Name: "cancelamentos_7d", Min: 0, Max: 100, Nullable: true},
	{Name: "exports_weekly_tons", Min: 0, Max: 10_000_000, Nullable: true},
}

// AnomalyColumns are screened against their own history.
var AnomalyColumns = []string{"premium_paranagua", "chicago_front", "usd_brl", "fob_us_gulf"}

const (
	anomalyLookback   = 180
	anomalyMinSamples = 30
)

// Value returns a column of r by name.
func (r DailyRecord) Value(column string) (float64, bool) {
	switch column {
	case "premium_paranagua":
		return Float(r.PremiumParanagua)
	case "chicago_front":
		return Float(r.ChicagoFront)
	case "usd_brl":
		return Float(r.USDBRL)
	case "fob_paranagua":
		return Float(r.FOBParanagua)
	case "fob_us_gulf":
		return Float(r.FOBUSGulf)
	case "lineup_bruto":
		return intValue(r.LineupGross)
	case "lineup_liquido":
		return intValue(r.LineupNet)
	case "cancelamentos_7d":
		return intValue(r.Cancellations7d)
	case "exports_weekly_tons":
		return Float(r.ExportsWeeklyTons)
	}
	return 0, false
}

func intValue(p *int) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return float64(*p), true
}

// ValidateRecord checks ranges, lineup consistency and the cancellation rate, and screens the
// price columns for anomalies beyond sigma standard deviations of history. The record is
// storable when no issue has error severity.
func ValidateRecord(r DailyRecord, history []DailyRecord, sigma float64) (bool, []Issue) {
	var issues []Issue
	for _, col := range Columns {
		if is, bad := checkRange(r, col); bad {
			issues = append(issues, is)
		}
	}
	if r.LineupGross != nil && r.LineupNet != nil && *r.LineupNet > *r.LineupGross {
		issues = append(issues, Issue{
			Column:   "lineup",
			Type:     IssueValidation,
			Value:    fmt.Sprintf("gross=%d, net=%d", *r.LineupGross, *r.LineupNet),
			Expected: "net <= gross",
			Severity: SeverityError,
			Message:  fmt.Sprintf("lineup_liquido (%d) > lineup_bruto (%d)", *r.LineupNet, *r.LineupGross),
		})
	}
	if is, bad := checkCancellations(r); bad {
		issues = append(issues, is)
	}
	for _, col := range AnomalyColumns {
		if is, bad := checkAnomaly(r, history, col, sigma); bad {
			issues = append(issues, is)
		}
	}

	for _, is := range issues {
		if is.Severity == SeverityError {
			return false, issues
		}
	}
	return true, issues
}

func checkRange(r DailyRecord, col ColumnRange) (Issue, bool) {
	v, ok := r.Value(col.Name)
	if !ok {
		if col.Nullable {
			return Issue{}, false
		}
		return Issue{
			Column:   col.Name,
			Type:     IssueMissing,
			Value:    "null",
			Expected: "present",
			Severity: SeverityError,
			Message:  col.Name + " is required",
		}, true
	}
	expected := fmt.Sprintf("[%v, %v]", col.Min, col.Max)
	switch {
	case v < col.Min:
		return Issue{col.Name, IssueRange, fmtValue(v), expected, SeverityWarning,
			fmt.Sprintf("%s=%v < min=%v", col.Name, v, col.Min)}, true
	case v > col.Max:
		return Issue{col.Name, IssueRange, fmtValue(v), expected, SeverityWarning,
			fmt.Sprintf("%s=%v > max=%v", col.Name, v, col.Max)}, true
	}
	return Issue{}, false
}

func checkCancellations(r DailyRecord) (Issue, bool) {
	if r.Cancellations7d == nil || r.LineupGross == nil {
		return Issue{}, false
	}
	c, g := *r.Cancellations7d, *r.LineupGross
	if g == 0 {
		if c > 0 {
			return Issue{"cancelamentos_7d", IssueValidation, fmt.Sprint(c), "0-100%", SeverityError,
				"positive cancellations with lineup_bruto=0"}, true
		}
		return Issue{}, false
	}
	if rate := float64(c) / float64(g); rate > 1 {
		return Issue{"cancelamentos_7d", IssueRange, fmt.Sprint(c), "0-100%", SeverityError,
			fmt.Sprintf("cancellation rate %.1f%% > 100%%", rate*100)}, true
	}
	return Issue{}, false
}

func checkAnomaly(r DailyRecord, history []DailyRecord, col string, sigma float64) (Issue, bool) {
	v, ok := r.Value(col)
	if !ok {
		return Issue{}, false
	}
	var hist []float64
	for i := len(history) - 1; i >= 0 && len(hist) < anomalyLookback; i-- {
		if !history[i].Date.Before(r.Date) {
			continue
		}
		if h, ok := history[i].Value(col); ok {
			hist = append(hist, h)
		}
	}
	if len(hist) < anomalyMinSamples {
		return Issue{}, false
	}
	mean, std := meanStd(hist)
	if std == 0 {
		return Issue{}, false
	}
	z := (v - mean) / std
	if z < 0 {
		z = -z
	}
	if z <= sigma {
		return Issue{}, false
	}
	return Issue{
		Column:   col,
		Type:     IssueAnomaly,
		Value:    fmtValue(v),
		Expected: fmt.Sprintf("%.0fσ", sigma),
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("%s=%.2f (z=%.1f, mean=%.2f, std=%.2f)", col, v, z, mean, std),
	}, true
}

// MissingRate is the share of absent cells across records.
func MissingRate(records []DailyRecord) float64 {
	if len(records) == 0 {
		return 1
	}
	var total, missing int
	for _, r := range records {
		for _, col := range Columns {
			total++
			if _, ok := r.Value(col.Name); !ok {
				missing++
			}
		}
	}
	return float64(missing) / float64(total)
}

func fmtValue(v float64) string {
	return decimal.NewFromFloat(v).String()
}
