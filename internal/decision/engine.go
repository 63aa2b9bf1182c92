package decision

// Engine scores market snapshots against a validated, immutable Config.
// It is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg once. The copy it keeps is never mutated.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Bands = append([]Band(nil), cfg.Bands...)
	cfg.Hedge.Bands = append([]Band(nil), cfg.Hedge.Bands...)
	return &Engine{cfg: cfg}, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.Bands = append([]Band(nil), e.cfg.Bands...)
	cfg.Hedge.Bands = append([]Band(nil), e.cfg.Hedge.Bands...)
	return cfg
}

// Run executes the full pass: score, overrides, dominant selection, book modulation and
// justification. It fails fast and never returns a partial report.
func (e *Engine) Run(in MarketInputs, book BookState) (DecisionReport, error) {
	if err := ValidateBook(book); err != nil {
		return DecisionReport{}, err
	}
	score, err := e.cfg.Score(in)
	if err != nil {
		return DecisionReport{}, err
	}

	overrides := e.cfg.EvaluateOverrides(in)
	dominant := Dominant(overrides)

	physical := e.cfg.PhysicalFromScore(score)
	hedge := e.cfg.HedgeFromScore(score)
	if dominant != nil {
		physical = *dominant.Physical
		if dominant.Hedge != nil {
			hedge = *dominant.Hedge
		}
	}

	report := DecisionReport{
		ReferenceDate:    in.Date,
		AggregateScore:   score.Aggregate,
		Classification:   score.Classification,
		Components:       score.Components,
		HedgeIndex:       score.HedgeIndex,
		Overrides:        overrides,
		Fired:            firedOnly(overrides),
		DominantOverride: dominant,
		Physical:         ModulatePhysical(physical, book),
		Hedge:            ModulateHedge(hedge, book),
		BookViolations:   Violations(book),
	}
	report.Justification = Justify(report)
	return report, nil
}
