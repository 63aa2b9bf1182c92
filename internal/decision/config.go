package decision

import (
	"fmt"
	"math"
)

const weightTolerance = 1e-9

// Curve is a piecewise-linear normalization: Low scores 0, Neutral scores 50, High scores 100.
// Inverted mirrors the result so that values above Neutral score below 50.
type Curve struct {
	Low      float64 `yaml:"low"`
	Neutral  float64 `yaml:"neutral"`
	High     float64 `yaml:"high"`
	Inverted bool    `yaml:"inverted"`
}

// Curves holds the normalization curve of every non-identity indicator.
// Premium is a percentile and is used as its own sub-score.
type Curves struct {
	Lineup          Curve `yaml:"lineup"`
	Competitiveness Curve `yaml:"competitiveness"`
	Demand          Curve `yaml:"demand"`
	FX              Curve `yaml:"fx"`
}

// Weights are the per-indicator weights of an index. They must sum to 1.
type Weights struct {
	Lineup          float64 `yaml:"lineup"`
	Premium         float64 `yaml:"premium"`
	Competitiveness float64 `yaml:"competitiveness"`
	Demand          float64 `yaml:"demand"`
	FX              float64 `yaml:"fx"`
}

func (w Weights) of(ind Indicator) float64 {
	switch ind {
	case IndicatorLineup:
		return w.Lineup
	case IndicatorPremium:
		return w.Premium
	case IndicatorCompetitiveness:
		return w.Competitiveness
	case IndicatorDemand:
		return w.Demand
	case IndicatorFX:
		return w.FX
	}
	return 0
}

func (w Weights) sum() float64 {
	return w.Lineup + w.Premium + w.Competitiveness + w.Demand + w.FX
}

// HedgeWeights reweights the same five sub-scores for the hedge index and adds the
// Chicago futures percentile.
type HedgeWeights struct {
	Weights `yaml:",inline"`
	Chicago float64 `yaml:"chicago"`
}

// Band is one classification interval. Lower is inclusive, Upper is exclusive except for the
// band ending at 100.
type Band struct {
	Class Classification `yaml:"class"`
	Lower float64        `yaml:"lower"`
	Upper float64        `yaml:"upper"`
}

// SizingTable gives the raw signed delta (pp) for each classification band.
type SizingTable struct {
	VeryWeak   float64 `yaml:"very_weak"`
	Weak       float64 `yaml:"weak"`
	Neutral    float64 `yaml:"neutral"`
	Strong     float64 `yaml:"strong"`
	VeryStrong float64 `yaml:"very_strong"`
}

// For returns the delta configured for a band.
func (t SizingTable) For(c Classification) float64 {
	switch c {
	case ClassVeryWeak:
		return t.VeryWeak
	case ClassWeak:
		return t.Weak
	case ClassStrong:
		return t.Strong
	case ClassVeryStrong:
		return t.VeryStrong
	default:
		return t.Neutral
	}
}

// IntensityThresholds grade the distance from the neutral band midpoint.
type IntensityThresholds struct {
	Moderate float64 `yaml:"moderate"`
	Strong   float64 `yaml:"strong"`
}

// Mandate is the fixed recommendation an override imposes when it fires.
type Mandate struct {
	Action    Action    `yaml:"action"`
	Intensity Intensity `yaml:"intensity"`
	DeltaPct  float64   `yaml:"delta_pct"`
}

type LogisticsRule struct {
	Physical Mandate `yaml:"physical"`
}

type JointDropRule struct {
	LineupAtOrBelowPct float64 `yaml:"lineup_at_or_below_pct"`
	PremiumBelow       float64 `yaml:"premium_below"`
	Physical           Mandate `yaml:"physical"`
}

type PremiumTrapRule struct {
	LineupAtOrBelowPct float64 `yaml:"lineup_at_or_below_pct"`
	PremiumAbove       float64 `yaml:"premium_above"`
	Physical           Mandate `yaml:"physical"`
}

type CompetitivenessRule struct {
	SpreadAboveUSD float64 `yaml:"spread_above_usd"`
	Physical       Mandate `yaml:"physical"`
}

// ChicagoSpikeRule fires on a speculative spike. Lineup or premium at or above the support
// levels count as a fundamental explanation and keep it quiet.
type ChicagoSpikeRule struct {
	MinPercentile     float64 `yaml:"min_percentile"`
	SupportLineupPct  float64 `yaml:"support_lineup_pct"`
	SupportPremiumPct float64 `yaml:"support_premium_pct"`
	Physical          Mandate `yaml:"physical"`
	Hedge             Mandate `yaml:"hedge"`
}

type OverrideRules struct {
	Logistics       LogisticsRule       `yaml:"logistics"`
	JointDrop       JointDropRule       `yaml:"joint_drop"`
	PremiumTrap     PremiumTrapRule     `yaml:"premium_trap"`
	Competitiveness CompetitivenessRule `yaml:"competitiveness"`
	ChicagoSpike    ChicagoSpikeRule    `yaml:"chicago_spike"`
}

type HedgeConfig struct {
	Weights HedgeWeights `yaml:"weights"`
	Bands   []Band       `yaml:"bands"`
	Sizing  SizingTable  `yaml:"sizing"`
}

// Config is every threshold, weight and table the engine reads. Nothing is hard-coded in the
// component logic; build one at startup and pass it to NewEngine.
type Config struct {
	Curves         Curves              `yaml:"curves"`
	Weights        Weights             `yaml:"weights"`
	Bands          []Band              `yaml:"bands"`
	Intensity      IntensityThresholds `yaml:"intensity"`
	PhysicalSizing SizingTable         `yaml:"physical_sizing"`
	Hedge          HedgeConfig         `yaml:"hedge"`
	Overrides      OverrideRules       `yaml:"overrides"`
}

// DefaultBands are the physical classification bands.
func DefaultBands() []Band {
	return []Band{
		{Class: ClassVeryWeak, Lower: 0, Upper: 20},
		{Class: ClassWeak, Lower: 20, Upper: 35},
		{Class: ClassNeutral, Lower: 35, Upper: 65},
		{Class: ClassStrong, Lower: 65, Upper: 80},
		{Class: ClassVeryStrong, Lower: 80, Upper: 100},
	}
}

// DefaultConfig returns the production calibration.
func DefaultConfig() Config {
	return Config{
		Curves: Curves{
			Lineup:          Curve{Low: -10, Neutral: 0, High: 10},
			Competitiveness: Curve{Low: -20, Neutral: 0, High: 20, Inverted: true},
			Demand:          Curve{Low: -1.5, Neutral: 0, High: 1.5},
			FX:              Curve{Low: -3, Neutral: 0, High: 3, Inverted: true},
		},
		Weights: Weights{
			Lineup:          0.30,
			Premium:         0.25,
			Competitiveness: 0.20,
			Demand:          0.15,
			FX:              0.10,
		},
		Bands:          DefaultBands(),
		Intensity:      IntensityThresholds{Moderate: 15, Strong: 30},
		PhysicalSizing: SizingTable{VeryWeak: -25, Weak: -15, Neutral: 0, Strong: 15, VeryStrong: 25},
		Hedge: HedgeConfig{
			Weights: HedgeWeights{
				Weights: Weights{
					Lineup:          0.05,
					Premium:         0.05,
					Competitiveness: 0.15,
					Demand:          0.10,
					FX:              0.25,
				},
				Chicago: 0.40,
			},
			Bands:  DefaultBands(),
			Sizing: SizingTable{VeryWeak: -20, Weak: -10, Neutral: 0, Strong: 10, VeryStrong: 20},
		},
		Overrides: OverrideRules{
			Logistics: LogisticsRule{
				Physical: Mandate{Action: ActionReduce, Intensity: IntensityStrong, DeltaPct: -30},
			},
			JointDrop: JointDropRule{
				LineupAtOrBelowPct: -10,
				PremiumBelow:       40,
				Physical:           Mandate{Action: ActionReduce, Intensity: IntensityStrong, DeltaPct: -20},
			},
			PremiumTrap: PremiumTrapRule{
				LineupAtOrBelowPct: -10,
				PremiumAbove:       80,
				Physical:           Mandate{Action: ActionReduce, Intensity: IntensityStrong, DeltaPct: -25},
			},
			Competitiveness: CompetitivenessRule{
				SpreadAboveUSD: 15,
				Physical:       Mandate{Action: ActionReduce, Intensity: IntensityModerate, DeltaPct: -15},
			},
			ChicagoSpike: ChicagoSpikeRule{
				MinPercentile:     50,
				SupportLineupPct:  5,
				SupportPremiumPct: 60,
				Physical:          Mandate{Action: ActionHold, Intensity: IntensityModerate, DeltaPct: 0},
				Hedge:             Mandate{Action: ActionIncrease, Intensity: IntensityStrong, DeltaPct: 20},
			},
		},
	}
}

// Validate checks every configuration invariant. It is called once by NewEngine.
func (c Config) Validate() error {
	curves := []struct {
		name string
		c    Curve
	}{
		{"curves.lineup", c.Curves.Lineup},
		{"curves.competitiveness", c.Curves.Competitiveness},
		{"curves.demand", c.Curves.Demand},
		{"curves.fx", c.Curves.FX},
	}
	for _, cv := range curves {
		if err := validateCurve(cv.name, cv.c); err != nil {
			return err
		}
	}

	if err := validateWeights("weights", c.Weights, 0); err != nil {
		return err
	}
	if err := validateWeights("hedge.weights", c.Hedge.Weights.Weights, c.Hedge.Weights.Chicago); err != nil {
		return err
	}
	if err := validateBands("bands", c.Bands); err != nil {
		return err
	}
	if err := validateBands("hedge.bands", c.Hedge.Bands); err != nil {
		return err
	}

	if !finite(c.Intensity.Moderate, c.Intensity.Strong) || c.Intensity.Moderate <= 0 || c.Intensity.Strong <= c.Intensity.Moderate {
		return newError(ErrConfiguration, "intensity", "need 0 < moderate < strong, got %v/%v", c.Intensity.Moderate, c.Intensity.Strong)
	}

	if err := validateSizing("physical_sizing", c.PhysicalSizing); err != nil {
		return err
	}
	if err := validateSizing("hedge.sizing", c.Hedge.Sizing); err != nil {
		return err
	}
	return c.Overrides.validate()
}

func validateCurve(name string, cv Curve) error {
	if !finite(cv.Low, cv.Neutral, cv.High) {
		return newError(ErrConfiguration, name, "bounds must be finite")
	}
	if !(cv.Low < cv.Neutral && cv.Neutral < cv.High) {
		return newError(ErrConfiguration, name, "need low < neutral < high, got %v/%v/%v", cv.Low, cv.Neutral, cv.High)
	}
	return nil
}

func validateWeights(name string, w Weights, extra float64) error {
	all := []float64{w.Lineup, w.Premium, w.Competitiveness, w.Demand, w.FX, extra}
	for _, v := range all {
		if !finite(v) || v < 0 {
			return newError(ErrConfiguration, name, "weights must be finite and non-negative")
		}
	}
	sum := w.sum() + extra
	if math.Abs(sum-1) > weightTolerance {
		return newError(ErrConfiguration, name, "weights sum to %.12f, want 1", sum)
	}
	return nil
}

func validateBands(name string, bands []Band) error {
	if len(bands) != len(classificationNames) {
		return newError(ErrConfiguration, name, "need %d bands, got %d", len(classificationNames), len(bands))
	}
	for i, b := range bands {
		field := fmt.Sprintf("%s[%d]", name, i)
		if b.Class != Classification(i) {
			return newError(ErrConfiguration, field, "band %d must be %s, got %s", i, Classification(i), b.Class)
		}
		if !finite(b.Lower, b.Upper) || b.Lower >= b.Upper {
			return newError(ErrConfiguration, field, "need lower < upper, got [%v, %v)", b.Lower, b.Upper)
		}
		if i == 0 && b.Lower != 0 {
			return newError(ErrConfiguration, field, "first band must start at 0, got %v", b.Lower)
		}
		if i > 0 && b.Lower != bands[i-1].Upper {
			return newError(ErrConfiguration, field, "gap or overlap at %v (previous band ends at %v)", b.Lower, bands[i-1].Upper)
		}
	}
	if last := bands[len(bands)-1]; last.Upper != 100 {
		return newError(ErrConfiguration, name, "last band must end at 100, got %v", last.Upper)
	}
	return nil
}

func validateSizing(name string, t SizingTable) error {
	if !finite(t.VeryWeak, t.Weak, t.Neutral, t.Strong, t.VeryStrong) {
		return newError(ErrConfiguration, name, "deltas must be finite")
	}
	if t.Neutral != 0 {
		return newError(ErrConfiguration, name+".neutral", "neutral band must size 0, got %v", t.Neutral)
	}
	if t.Strong <= 0 || t.VeryStrong < t.Strong {
		return newError(ErrConfiguration, name, "need 0 < strong <= very_strong, got %v/%v", t.Strong, t.VeryStrong)
	}
	if t.Weak >= 0 || t.VeryWeak > t.Weak {
		return newError(ErrConfiguration, name, "need very_weak <= weak < 0, got %v/%v", t.VeryWeak, t.Weak)
	}
	return nil
}

func (r OverrideRules) validate() error {
	if !finite(r.JointDrop.LineupAtOrBelowPct, r.JointDrop.PremiumBelow,
		r.PremiumTrap.LineupAtOrBelowPct, r.PremiumTrap.PremiumAbove,
		r.Competitiveness.SpreadAboveUSD,
		r.ChicagoSpike.MinPercentile, r.ChicagoSpike.SupportLineupPct, r.ChicagoSpike.SupportPremiumPct) {
		return newError(ErrConfiguration, "overrides", "thresholds must be finite")
	}
	if r.JointDrop.LineupAtOrBelowPct >= 0 {
		return newError(ErrConfiguration, "overrides.joint_drop.lineup_at_or_below_pct", "must be negative, got %v", r.JointDrop.LineupAtOrBelowPct)
	}
	if r.PremiumTrap.LineupAtOrBelowPct >= 0 {
		return newError(ErrConfiguration, "overrides.premium_trap.lineup_at_or_below_pct", "must be negative, got %v", r.PremiumTrap.LineupAtOrBelowPct)
	}
	if !inPercentRange(r.JointDrop.PremiumBelow) || !inPercentRange(r.PremiumTrap.PremiumAbove) {
		return newError(ErrConfiguration, "overrides", "premium thresholds must be within [0, 100]")
	}
	// Keeps joint_drop and premium_trap mutually exclusive on any snapshot.
	if r.JointDrop.PremiumBelow >= r.PremiumTrap.PremiumAbove {
		return newError(ErrConfiguration, "overrides.joint_drop.premium_below",
			"must be below premium_trap.premium_above (%v >= %v)", r.JointDrop.PremiumBelow, r.PremiumTrap.PremiumAbove)
	}
	if r.Competitiveness.SpreadAboveUSD <= 0 {
		return newError(ErrConfiguration, "overrides.competitiveness.spread_above_usd", "must be positive, got %v", r.Competitiveness.SpreadAboveUSD)
	}
	if !inPercentRange(r.ChicagoSpike.MinPercentile) || !inPercentRange(r.ChicagoSpike.SupportPremiumPct) {
		return newError(ErrConfiguration, "overrides.chicago_spike", "percentile thresholds must be within [0, 100]")
	}

	mandates := []struct {
		field    string
		m        Mandate
		physical bool
	}{
		{"overrides.logistics.physical", r.Logistics.Physical, true},
		{"overrides.joint_drop.physical", r.JointDrop.Physical, true},
		{"overrides.premium_trap.physical", r.PremiumTrap.Physical, true},
		{"overrides.competitiveness.physical", r.Competitiveness.Physical, true},
		{"overrides.chicago_spike.physical", r.ChicagoSpike.Physical, true},
		{"overrides.chicago_spike.hedge", r.ChicagoSpike.Hedge, false},
	}
	for _, md := range mandates {
		if err := md.m.validate(md.field, md.physical); err != nil {
			return err
		}
	}
	if r.Logistics.Physical.Action != ActionReduce {
		return newError(ErrConfiguration, "overrides.logistics.physical.action", "logistics must mandate a sale, got %s", r.Logistics.Physical.Action)
	}
	if r.ChicagoSpike.Physical.Action == ActionAccelerate {
		return newError(ErrConfiguration, "overrides.chicago_spike.physical.action", "a speculative spike must not mandate buying")
	}
	return nil
}

func (m Mandate) validate(field string, physical bool) error {
	if !finite(m.DeltaPct) {
		return newError(ErrConfiguration, field, "delta must be finite")
	}
	switch {
	case physical && m.Action == ActionIncrease:
		return newError(ErrConfiguration, field, "physical mandate cannot use %s", m.Action)
	case !physical && m.Action == ActionAccelerate:
		return newError(ErrConfiguration, field, "hedge mandate cannot use %s", m.Action)
	}
	dir := m.Action.direction()
	if (dir > 0 && m.DeltaPct <= 0) || (dir < 0 && m.DeltaPct >= 0) || (dir == 0 && m.DeltaPct != 0) {
		return newError(ErrConfiguration, field, "delta %v does not match action %s", m.DeltaPct, m.Action)
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func inPercentRange(v float64) bool { return v >= 0 && v <= 100 }

// DefaultBook is the desk book used when no snapshot is supplied.
func DefaultBook() BookState {
	return BookState{
		PhysicalExposurePct: 0,
		LongLimitPct:        80,
		ShortLimitPct:       -50,
		HedgeCurrentPct:     0,
		HedgeTargetPct:      60,
	}
}
