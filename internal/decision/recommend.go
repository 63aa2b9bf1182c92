package decision

func (c Config) intensityFor(score, midpoint float64) Intensity {
	d := score - midpoint
	if d < 0 {
		d = -d
	}
	switch {
	case d < c.Intensity.Moderate:
		return IntensityWeak
	case d < c.Intensity.Strong:
		return IntensityModerate
	default:
		return IntensityStrong
	}
}

// PhysicalFromScore maps the aggregate classification to an unmodulated physical recommendation.
func (c Config) PhysicalFromScore(res ScoreResult) Recommendation {
	return c.fromBand(res.Classification, res.Aggregate, c.Bands, c.PhysicalSizing, ActionAccelerate)
}

// HedgeFromScore maps the hedge index classification to an unmodulated hedge recommendation.
func (c Config) HedgeFromScore(res ScoreResult) Recommendation {
	return c.fromBand(res.HedgeClass, res.HedgeIndex, c.Hedge.Bands, c.Hedge.Sizing, ActionIncrease)
}

func (c Config) fromBand(class Classification, score float64, bands []Band, sizing SizingTable, up Action) Recommendation {
	rec := Recommendation{Rationale: Rationale{Source: SourceScore}}
	switch {
	case class > ClassNeutral:
		rec.Action = up
	case class < ClassNeutral:
		rec.Action = ActionReduce
	default:
		rec.Action = ActionHold
		rec.Intensity = IntensityWeak
		return rec
	}
	rec.Intensity = c.intensityFor(score, neutralMidpoint(bands))
	rec.DeltaPct = sizing.For(class)
	return rec
}
