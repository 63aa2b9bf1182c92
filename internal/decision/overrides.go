package decision

import "fmt"

func (m Mandate) recommendation(id OverrideID, urgent bool) *Recommendation {
	return &Recommendation{
		Action:    m.Action,
		Intensity: m.Intensity,
		DeltaPct:  m.DeltaPct,
		Urgent:    urgent,
		Rationale: Rationale{Source: SourceOverride, OverrideID: id},
	}
}

// EvaluateOverrides runs all five rules in priority order and returns every result, fired or not.
func (c Config) EvaluateOverrides(in MarketInputs) []OverrideResult {
	r := c.Overrides
	out := make([]OverrideResult, 0, 5)

	logistics := OverrideResult{ID: OverrideLogistics, Priority: 1, Fired: in.LogisticsFlagActive}
	if in.LogisticsReason != "" {
		logistics.Condition = "logistics flag active: " + in.LogisticsReason
	} else {
		logistics.Condition = "logistics flag active"
	}
	if logistics.Fired {
		logistics.Physical = r.Logistics.Physical.recommendation(OverrideLogistics, true)
	}
	out = append(out, logistics)

	joint := OverrideResult{
		ID:       OverrideJointDrop,
		Priority: 2,
		Fired:    in.LineupWeeklyVarPct <= r.JointDrop.LineupAtOrBelowPct && in.PremiumPercentile < r.JointDrop.PremiumBelow,
		Condition: fmt.Sprintf("lineup %.1f%% <= %.1f%% and premium P%.0f < P%.0f",
			in.LineupWeeklyVarPct, r.JointDrop.LineupAtOrBelowPct, in.PremiumPercentile, r.JointDrop.PremiumBelow),
	}
	if joint.Fired {
		joint.Physical = r.JointDrop.Physical.recommendation(OverrideJointDrop, false)
	}
	out = append(out, joint)

	trap := OverrideResult{
		ID:       OverridePremiumTrap,
		Priority: 3,
		Fired:    in.PremiumPercentile > r.PremiumTrap.PremiumAbove && in.LineupWeeklyVarPct <= r.PremiumTrap.LineupAtOrBelowPct,
		Condition: fmt.Sprintf("premium P%.0f > P%.0f and lineup %.1f%% <= %.1f%%",
			in.PremiumPercentile, r.PremiumTrap.PremiumAbove, in.LineupWeeklyVarPct, r.PremiumTrap.LineupAtOrBelowPct),
	}
	if trap.Fired {
		trap.Physical = r.PremiumTrap.Physical.recommendation(OverridePremiumTrap, false)
	}
	out = append(out, trap)

	comp := OverrideResult{
		ID:        OverrideCompetitiveness,
		Priority:  4,
		Fired:     in.FOBSpreadUSDPerTon > r.Competitiveness.SpreadAboveUSD,
		Condition: fmt.Sprintf("FOB spread %.1f USD/t > %.1f USD/t", in.FOBSpreadUSDPerTon, r.Competitiveness.SpreadAboveUSD),
	}
	if comp.Fired {
		comp.Physical = r.Competitiveness.Physical.recommendation(OverrideCompetitiveness, false)
	}
	out = append(out, comp)

	supported := in.LineupWeeklyVarPct >= r.ChicagoSpike.SupportLineupPct ||
		in.PremiumPercentile >= r.ChicagoSpike.SupportPremiumPct ||
		in.NarrativeConfirmed
	spike := OverrideResult{
		ID:       OverrideChicagoSpike,
		Priority: 5,
		Fired:    in.ChicagoIsSpike && in.ChicagoPercentile >= r.ChicagoSpike.MinPercentile && !supported,
		Condition: fmt.Sprintf("Chicago spike at P%.0f (>= P%.0f) without fundamental support",
			in.ChicagoPercentile, r.ChicagoSpike.MinPercentile),
	}
	if spike.Fired {
		spike.Physical = r.ChicagoSpike.Physical.recommendation(OverrideChicagoSpike, false)
		spike.Hedge = r.ChicagoSpike.Hedge.recommendation(OverrideChicagoSpike, false)
	}
	out = append(out, spike)

	return out
}

// Dominant returns the highest-priority fired result, or nil when nothing fired.
func Dominant(results []OverrideResult) *OverrideResult {
	var best *OverrideResult
	for i := range results {
		o := &results[i]
		if !o.Fired {
			continue
		}
		if best == nil || o.Priority < best.Priority {
			best = o
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func firedOnly(results []OverrideResult) []OverrideResult {
	fired := make([]OverrideResult, 0, len(results))
	for _, o := range results {
		if o.Fired {
			fired = append(fired, o)
		}
	}
	return fired
}
