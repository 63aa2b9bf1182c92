package decision

import (
	"encoding/json"
	"math"
)

const dateLayout = "2006-01-02"

// ReportView is the serialized shape of a DecisionReport.
type ReportView struct {
	ReferenceDate    string                   `json:"reference_date"`
	AggregateScore   float64                  `json:"aggregate_score"`
	Classification   string                   `json:"classification"`
	HedgeIndex       float64                  `json:"hedge_index"`
	Physical         PhysicalView             `json:"physical"`
	Hedge            HedgeView                `json:"hedge"`
	Components       map[string]ComponentView `json:"components"`
	OverridesFired   []string                 `json:"overrides_fired"`
	DominantOverride *string                  `json:"dominant_override"`
	BookViolations   []string                 `json:"book_violations"`
	Justification    string                   `json:"justification"`
}

type PhysicalView struct {
	Action    string    `json:"action"`
	Intensity string    `json:"intensity"`
	SizingPct float64   `json:"sizing_pct"`
	Urgent    bool      `json:"urgent"`
	Rationale Rationale `json:"rationale"`
}

type HedgeView struct {
	Action    string    `json:"action"`
	Intensity string    `json:"intensity"`
	DeltaPP   float64   `json:"delta_pp"`
	Rationale Rationale `json:"rationale"`
}

type ComponentView struct {
	Score        float64 `json:"score"`
	Raw          float64 `json:"raw"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// View flattens the report into its wire shape with numbers rounded to two decimals.
func (r DecisionReport) View() ReportView {
	v := ReportView{
		ReferenceDate:  r.ReferenceDate.Format(dateLayout),
		AggregateScore: round2(r.AggregateScore),
		Classification: r.Classification.String(),
		HedgeIndex:     round2(r.HedgeIndex),
		Physical: PhysicalView{
			Action:    r.Physical.Action.String(),
			Intensity: r.Physical.Intensity.String(),
			SizingPct: round2(r.Physical.DeltaPct),
			Urgent:    r.Physical.Urgent,
			Rationale: r.Physical.Rationale,
		},
		Hedge: HedgeView{
			Action:    r.Hedge.Action.String(),
			Intensity: r.Hedge.Intensity.String(),
			DeltaPP:   round2(r.Hedge.DeltaPct),
			Rationale: r.Hedge.Rationale,
		},
		Components:     make(map[string]ComponentView, len(r.Components)),
		OverridesFired: r.FiredIDs(),
		BookViolations: append([]string{}, r.BookViolations...),
		Justification:  r.Justification,
	}
	for _, c := range r.Components {
		v.Components[c.Indicator.String()] = ComponentView{
			Score:        round2(c.Score),
			Raw:          round2(c.Raw),
			Weight:       round2(c.Weight),
			Contribution: round2(c.Contribution),
		}
	}
	if r.DominantOverride != nil {
		id := string(r.DominantOverride.ID)
		v.DominantOverride = &id
	}
	return v
}

// MarshalJSON encodes the report view. Map keys are sorted by encoding/json, so equal reports
// encode to identical bytes.
func (r DecisionReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.View())
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
