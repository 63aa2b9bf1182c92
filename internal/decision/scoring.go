package decision

// ValidateInputs rejects non-finite values, out-of-range percentiles and a missing date.
func ValidateInputs(in MarketInputs) error {
	if in.Date.IsZero() {
		return newError(ErrValidation, "date", "reference date is required")
	}
	fields := []struct {
		name string
		v    float64
	}{
		{"lineup_weekly_var_pct", in.LineupWeeklyVarPct},
		{"premium_percentile", in.PremiumPercentile},
		{"fob_spread_usd_per_ton", in.FOBSpreadUSDPerTon},
		{"export_pace_z", in.ExportPaceZ},
		{"fx_var_5d_pct", in.FXVar5dPct},
		{"chicago_percentile", in.ChicagoPercentile},
	}
	for _, f := range fields {
		if !finite(f.v) {
			return newError(ErrValidation, f.name, "value must be finite, got %v", f.v)
		}
	}
	if !inPercentRange(in.PremiumPercentile) {
		return newError(ErrValidation, "premium_percentile", "must be within [0, 100], got %v", in.PremiumPercentile)
	}
	if !inPercentRange(in.ChicagoPercentile) {
		return newError(ErrValidation, "chicago_percentile", "must be within [0, 100], got %v", in.ChicagoPercentile)
	}
	return nil
}

func (c Config) rawValue(in MarketInputs, ind Indicator) float64 {
	switch ind {
	case IndicatorLineup:
		return in.LineupWeeklyVarPct
	case IndicatorPremium:
		return in.PremiumPercentile
	case IndicatorCompetitiveness:
		return in.FOBSpreadUSDPerTon
	case IndicatorDemand:
		return in.ExportPaceZ
	case IndicatorFX:
		return in.FXVar5dPct
	}
	return 0
}

func (c Config) subScore(ind Indicator, raw float64) float64 {
	switch ind {
	case IndicatorLineup:
		return c.Curves.Lineup.Apply(raw)
	case IndicatorPremium:
		return clamp(raw, 0, 100)
	case IndicatorCompetitiveness:
		return c.Curves.Competitiveness.Apply(raw)
	case IndicatorDemand:
		return c.Curves.Demand.Apply(raw)
	case IndicatorFX:
		return c.Curves.FX.Apply(raw)
	}
	return 0
}

// Score normalizes the five indicators, aggregates them and classifies both the physical
// score and the hedge index. The config is assumed valid.
func (c Config) Score(in MarketInputs) (ScoreResult, error) {
	if err := ValidateInputs(in); err != nil {
		return ScoreResult{}, err
	}

	var res ScoreResult
	var agg, hedge float64
	for _, ind := range Indicators {
		raw := c.rawValue(in, ind)
		s := c.subScore(ind, raw)
		w := c.Weights.of(ind)
		res.Components[ind] = ComponentScore{
			Indicator:    ind,
			Raw:          raw,
			Score:        s,
			Weight:       w,
			Contribution: w * s,
		}
		agg += w * s
		hedge += c.Hedge.Weights.of(ind) * s
	}
	hedge += c.Hedge.Weights.Chicago * in.ChicagoPercentile

	res.Aggregate = clamp(agg, 0, 100)
	res.HedgeIndex = clamp(hedge, 0, 100)

	var err error
	if res.Classification, err = classify(c.Bands, res.Aggregate); err != nil {
		return ScoreResult{}, err
	}
	if res.HedgeClass, err = classify(c.Hedge.Bands, res.HedgeIndex); err != nil {
		return ScoreResult{}, err
	}
	return res, nil
}

func classify(bands []Band, v float64) (Classification, error) {
	last := len(bands) - 1
	for i, b := range bands {
		if v >= b.Lower && (v < b.Upper || (i == last && v <= b.Upper)) {
			return b.Class, nil
		}
	}
	return 0, newError(ErrLogic, "classification", "score %v falls in no band", v)
}

// neutralMidpoint is the centre of the neutral band, the reference for intensity.
func neutralMidpoint(bands []Band) float64 {
	for _, b := range bands {
		if b.Class == ClassNeutral {
			return (b.Lower + b.Upper) / 2
		}
	}
	return 50
}
