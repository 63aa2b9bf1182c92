package alerts

import (
	"fmt"
	"math"
	"strings"

	"github.com/bruno-portfolio/basismind/internal/config"
	"github.com/bruno-portfolio/basismind/internal/decision"
	"github.com/bruno-portfolio/basismind/internal/market"
)

// TriggerCheck flags market moves large enough to warrant attention regardless of the decision.
type TriggerCheck struct {
	LineupSwing   bool `json:"lineup_swing"`
	PremiumMove   bool `json:"premium_move"`
	Logistics     bool `json:"logistics"`
	ChicagoWeekly bool `json:"chicago_weekly"`
}

func (t TriggerCheck) Any() bool {
	return t.LineupSwing || t.PremiumMove || t.Logistics || t.ChicagoWeekly
}

// CheckTriggers compares the derivation against the configured trigger thresholds.
// The lineup swing needs the previous week's variation.
func CheckTriggers(d market.Derivation, th config.Triggers) TriggerCheck {
	return TriggerCheck{
		LineupSwing:   d.HasPrevLineupVar && math.Abs(d.Inputs.LineupWeeklyVarPct-d.PrevLineupVarPct) > th.LineupSwingPct,
		PremiumMove:   math.Abs(d.PremiumMoveZ) > th.PremiumSigma,
		Logistics:     d.Inputs.LogisticsFlagActive,
		ChicagoWeekly: math.Abs(d.ChicagoVar5dPct) > th.ChicagoWeeklyPct,
	}
}

// TriggerAlerts turns a trigger check into alerts keyed by trigger and date.
func TriggerAlerts(d market.Derivation, tc TriggerCheck) []Alert {
	date := d.Inputs.Date.Format(market.DateLayout)
	var out []Alert
	if tc.LineupSwing {
		out = append(out, Alert{
			Level:   LevelWarning,
			Source:  "triggers",
			Title:   "Lineup swing",
			Message: fmt.Sprintf("weekly lineup variation moved from %+.1f%% to %+.1f%%", d.PrevLineupVarPct, d.Inputs.LineupWeeklyVarPct),
			Key:     "lineup_swing:" + date,
		})
	}
	if tc.PremiumMove {
		out = append(out, Alert{
			Level:   LevelWarning,
			Source:  "triggers",
			Title:   "Premium move",
			Message: fmt.Sprintf("Paranagua premium moved %.1fσ in 3 sessions", d.PremiumMoveZ),
			Key:     "premium_move:" + date,
		})
	}
	if tc.Logistics {
		out = append(out, Alert{
			Level:   LevelCritical,
			Source:  "triggers",
			Title:   "Logistics flag",
			Message: d.Inputs.LogisticsReason,
			Key:     "logistics:" + date,
		})
	}
	if tc.ChicagoWeekly {
		out = append(out, Alert{
			Level:   LevelWarning,
			Source:  "triggers",
			Title:   "Chicago weekly move",
			Message: fmt.Sprintf("CBOT front month moved %+.1f%% in 5 sessions", d.ChicagoVar5dPct),
			Key:     "chicago_weekly:" + date,
		})
	}
	return out
}

// DecisionAlerts reports fired overrides, urgent sales and book limit breaches.
func DecisionAlerts(r decision.DecisionReport) []Alert {
	date := r.ReferenceDate.Format(market.DateLayout)
	var out []Alert
	for _, o := range r.Fired {
		level := LevelWarning
		if r.DominantOverride != nil && r.DominantOverride.ID == o.ID && r.Physical.Urgent {
			level = LevelCritical
		}
		out = append(out, Alert{
			Level:   level,
			Source:  "decision",
			Title:   "Override " + string(o.ID),
			Message: o.Condition,
			Key:     "override_" + string(o.ID) + ":" + date,
			Details: map[string]any{"priority": o.Priority},
		})
	}
	if len(r.BookViolations) > 0 {
		out = append(out, Alert{
			Level:   LevelCritical,
			Source:  "book",
			Title:   "Book limits breached",
			Message: strings.Join(r.BookViolations, "; "),
			Key:     "book_violation:" + date,
		})
	}
	out = append(out, Alert{
		Level:   LevelInfo,
		Source:  "decision",
		Title:   fmt.Sprintf("Decision %s: %s", date, r.Classification),
		Message: r.Justification,
		Key:     "decision:" + date,
		Details: map[string]any{
			"physical": fmt.Sprintf("%s %s %+.1fpp", r.Physical.Action, r.Physical.Intensity, r.Physical.DeltaPct),
			"hedge":    fmt.Sprintf("%s %s %+.1fpp", r.Hedge.Action, r.Hedge.Intensity, r.Hedge.DeltaPct),
		},
	})
	return out
}
