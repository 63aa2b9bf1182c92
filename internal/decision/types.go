package decision

import (
	"encoding/json"
	"time"
)

// Indicator identifies one of the five scored market indicators.
// The declaration order is also the tie-break priority used when ranking drivers.
type Indicator int

const (
	IndicatorLineup Indicator = iota
	IndicatorPremium
	IndicatorCompetitiveness
	IndicatorDemand
	IndicatorFX
)

// Indicators lists every indicator in priority order.
var Indicators = [...]Indicator{
	IndicatorLineup,
	IndicatorPremium,
	IndicatorCompetitiveness,
	IndicatorDemand,
	IndicatorFX,
}

func (i Indicator) String() string {
	switch i {
	case IndicatorLineup:
		return "lineup"
	case IndicatorPremium:
		return "premium"
	case IndicatorCompetitiveness:
		return "competitiveness"
	case IndicatorDemand:
		return "demand"
	case IndicatorFX:
		return "fx"
	default:
		return "unknown"
	}
}

// Classification is the qualitative band of an aggregate score, ordered weakest first.
type Classification int

const (
	ClassVeryWeak Classification = iota
	ClassWeak
	ClassNeutral
	ClassStrong
	ClassVeryStrong
)

var classificationNames = map[Classification]string{
	ClassVeryWeak:   "very_weak",
	ClassWeak:       "weak",
	ClassNeutral:    "neutral",
	ClassStrong:     "strong",
	ClassVeryStrong: "very_strong",
}

func (c Classification) String() string {
	if s, ok := classificationNames[c]; ok {
		return s
	}
	return "unknown"
}

// ParseClassification maps a band label back to its Classification.
func ParseClassification(s string) (Classification, bool) {
	for c, name := range classificationNames {
		if name == s {
			return c, true
		}
	}
	return 0, false
}

func (c Classification) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Classification) UnmarshalText(b []byte) error {
	v, ok := ParseClassification(string(b))
	if !ok {
		return newError(ErrConfiguration, "classification", "unknown band label %q", string(b))
	}
	*c = v
	return nil
}

// Action is the closed set of recommendation actions. Physical recommendations use
// Accelerate/Hold/Reduce, hedge recommendations use Increase/Hold/Reduce.
type Action int

const (
	ActionHold Action = iota
	ActionAccelerate
	ActionReduce
	ActionIncrease
)

func (a Action) String() string {
	switch a {
	case ActionHold:
		return "hold"
	case ActionAccelerate:
		return "accelerate"
	case ActionReduce:
		return "reduce"
	case ActionIncrease:
		return "increase"
	default:
		return "unknown"
	}
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	for _, v := range []Action{ActionHold, ActionAccelerate, ActionReduce, ActionIncrease} {
		if v.String() == string(b) {
			*a = v
			return nil
		}
	}
	return newError(ErrConfiguration, "action", "unknown action %q", string(b))
}

// direction returns +1 for actions that add exposure, -1 for reducing ones and 0 for hold.
func (a Action) direction() int {
	switch a {
	case ActionAccelerate, ActionIncrease:
		return 1
	case ActionReduce:
		return -1
	default:
		return 0
	}
}

// Intensity grades how forcefully an action is recommended.
type Intensity int

const (
	IntensityWeak Intensity = iota
	IntensityModerate
	IntensityStrong
)

func (i Intensity) String() string {
	switch i {
	case IntensityWeak:
		return "weak"
	case IntensityModerate:
		return "moderate"
	case IntensityStrong:
		return "strong"
	default:
		return "unknown"
	}
}

func (i Intensity) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Intensity) UnmarshalText(b []byte) error {
	for _, v := range []Intensity{IntensityWeak, IntensityModerate, IntensityStrong} {
		if v.String() == string(b) {
			*i = v
			return nil
		}
	}
	return newError(ErrConfiguration, "intensity", "unknown intensity %q", string(b))
}

// OverrideID names one of the five crisis override rules.
type OverrideID string

const (
	OverrideLogistics       OverrideID = "logistics"
	OverrideJointDrop       OverrideID = "joint_drop"
	OverridePremiumTrap     OverrideID = "premium_trap"
	OverrideCompetitiveness OverrideID = "competitiveness"
	OverrideChicagoSpike    OverrideID = "chicago_spike"
)

// MarketInputs is one immutable snapshot of the daily indicators.
type MarketInputs struct {
	Date                time.Time `json:"date"`
	LineupWeeklyVarPct  float64   `json:"lineup_weekly_var_pct"`  // signed %
	PremiumPercentile   float64   `json:"premium_percentile"`     // 0..100
	FOBSpreadUSDPerTon  float64   `json:"fob_spread_usd_per_ton"` // Brazil - Gulf, freight adjusted
	ExportPaceZ         float64   `json:"export_pace_z"`          // std devs vs 5y seasonal mean
	FXVar5dPct          float64   `json:"fx_var_5d_pct"`          // signed %, positive = BRL weaker
	ChicagoPercentile   float64   `json:"chicago_percentile"`     // 0..100
	ChicagoIsSpike      bool      `json:"chicago_is_spike"`
	NarrativeConfirmed  bool      `json:"narrative_confirmed"`
	LogisticsFlagActive bool      `json:"logistics_flag_active"`
	LogisticsReason     string    `json:"logistics_reason,omitempty"`
}

type inputsAlias MarketInputs

type inputsJSON struct {
	Date string `json:"date"`
	*inputsAlias
}

// MarshalJSON writes the date as YYYY-MM-DD.
func (in MarketInputs) MarshalJSON() ([]byte, error) {
	a := inputsAlias(in)
	return json.Marshal(inputsJSON{Date: in.Date.Format(dateLayout), inputsAlias: &a})
}

// UnmarshalJSON accepts the date as YYYY-MM-DD or RFC 3339.
func (in *MarketInputs) UnmarshalJSON(b []byte) error {
	aux := inputsJSON{inputsAlias: (*inputsAlias)(in)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	in.Date = time.Time{}
	if aux.Date == "" {
		return nil
	}
	d, err := time.Parse(dateLayout, aux.Date)
	if err != nil {
		if d, err = time.Parse(time.RFC3339, aux.Date); err != nil {
			return newError(ErrValidation, "date", "invalid date %q", aux.Date)
		}
	}
	in.Date = d
	return nil
}

// BookState is the desk's exposure snapshot, supplied fresh on every call.
type BookState struct {
	PhysicalExposurePct float64 `json:"exposicao_fisica_pct" yaml:"exposicao_fisica_pct"`
	LongLimitPct        float64 `json:"limite_long_pct" yaml:"limite_long_pct"`
	ShortLimitPct       float64 `json:"limite_short_pct" yaml:"limite_short_pct"` // negative bound
	HedgeCurrentPct     float64 `json:"hedge_atual_pct" yaml:"hedge_atual_pct"`
	HedgeTargetPct      float64 `json:"hedge_meta_pct" yaml:"hedge_meta_pct"`
}

// LongHeadroom is the room left before the long limit. Negative when already beyond it.
func (b BookState) LongHeadroom() float64 { return b.LongLimitPct - b.PhysicalExposurePct }

// ShortHeadroom is the room left before the short limit. Negative when already beyond it.
func (b BookState) ShortHeadroom() float64 { return b.PhysicalExposurePct - b.ShortLimitPct }

// HedgeGap is the signed distance from the current hedge ratio to the target.
func (b BookState) HedgeGap() float64 { return b.HedgeTargetPct - b.HedgeCurrentPct }

// ComponentScore is one normalized indicator and its weighted share of the aggregate.
type ComponentScore struct {
	Indicator    Indicator
	Raw          float64
	Score        float64 // [0..100]
	Weight       float64
	Contribution float64 // Weight * Score
}

// Source says what drove a recommendation.
type Source string

const (
	SourceScore    Source = "score"
	SourceOverride Source = "override"
)

// Rationale tags a recommendation with its origin and any modulation notes.
type Rationale struct {
	Source     Source     `json:"source"`
	OverrideID OverrideID `json:"override_id,omitempty"`
	Notes      []string   `json:"notes,omitempty"`
}

// Recommendation is a physical or hedge instruction.
type Recommendation struct {
	Action      Action
	Intensity   Intensity
	DeltaPct    float64 // signed percentage points
	Urgent      bool    // only the logistics mandate sets this; cleared when the book blocks the sale
	Capped      bool    // delta was cut to the available headroom
	Constrained bool    // headroom was exhausted or the direction conflicted with the book
	Rationale   Rationale
}

// OverrideResult is the outcome of one override rule. All five are always evaluated.
type OverrideResult struct {
	ID        OverrideID
	Priority  int // 1 is highest
	Fired     bool
	Condition string
	Physical  *Recommendation // mandated physical action, set when fired
	Hedge     *Recommendation // optional mandated hedge action
}

// ScoreResult is the scoring engine output.
type ScoreResult struct {
	Aggregate      float64
	Classification Classification
	Components     [5]ComponentScore
	HedgeIndex     float64
	HedgeClass     Classification
}

// DecisionReport is the complete, immutable output of one Run.
type DecisionReport struct {
	ReferenceDate    time.Time
	AggregateScore   float64
	Classification   Classification
	Components       [5]ComponentScore
	HedgeIndex       float64
	Overrides        []OverrideResult // all five, in priority order
	Fired            []OverrideResult // fired subset, in priority order
	DominantOverride *OverrideResult
	Physical         Recommendation
	Hedge            Recommendation
	BookViolations   []string
	Justification    string
}

// FiredIDs returns the ids of the fired overrides in priority order.
func (r DecisionReport) FiredIDs() []string {
	ids := make([]string, 0, len(r.Fired))
	for _, o := range r.Fired {
		ids = append(ids, string(o.ID))
	}
	return ids
}

// Component returns the score for one indicator.
func (r DecisionReport) Component(ind Indicator) ComponentScore {
	return r.Components[ind]
}
