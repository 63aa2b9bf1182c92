package decision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurve_Apply(t *testing.T) {
	c := Curve{Low: -10, Neutral: 0, High: 10}
	inv := Curve{Low: -20, Neutral: 0, High: 20, Inverted: true}

	tests := []struct {
		name  string
		curve Curve
		in    float64
		want  float64
	}{
		{"low bound", c, -10, 0},
		{"saturates below", c, -40, 0},
		{"neutral", c, 0, 50},
		{"half up", c, 5, 75},
		{"high bound", c, 10, 100},
		{"saturates above", c, 25, 100},
		{"inverted neutral", inv, 0, 50},
		{"inverted expensive", inv, 5, 37.5},
		{"inverted cheap", inv, -20, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.curve.Apply(tt.in), 1e-9)
		})
	}
}

func TestScore_ScenarioAComponents(t *testing.T) {
	cfg := DefaultConfig()
	res, err := cfg.Score(scenarioA())
	require.NoError(t, err)

	want := map[Indicator]float64{
		IndicatorLineup:          90,
		IndicatorPremium:         72,
		IndicatorCompetitiveness: 37.5,
		IndicatorDemand:          200.0 / 3,
		IndicatorFX:              190.0 / 3,
	}
	for ind, score := range want {
		c := res.Components[ind]
		assert.Equal(t, ind, c.Indicator)
		assert.InDelta(t, score, c.Score, 1e-9, ind.String())
		assert.InDelta(t, c.Weight*c.Score, c.Contribution, 1e-12)
	}
	assert.InDelta(t, 68.8333, res.Aggregate, 1e-3)
	assert.Equal(t, ClassStrong, res.Classification)
	assert.Equal(t, ClassNeutral, res.HedgeClass)
}

func TestClassify_BandEdges(t *testing.T) {
	bands := DefaultBands()
	tests := []struct {
		score float64
		want  Classification
	}{
		{0, ClassVeryWeak},
		{19.99, ClassVeryWeak},
		{20, ClassWeak},
		{35, ClassNeutral},
		{64.99, ClassNeutral},
		{65, ClassStrong},
		{80, ClassVeryStrong},
		{100, ClassVeryStrong},
	}
	for _, tt := range tests {
		got, err := classify(bands, tt.score)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "score %v", tt.score)
	}

	_, err := classify(bands, 100.5)
	assert.True(t, errors.Is(err, ErrLogic))
}

func TestScore_Monotonic(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name   string
		set    func(*MarketInputs, float64)
		from   float64
		to     float64
		rising bool
	}{
		{"lineup raises score", func(in *MarketInputs, v float64) { in.LineupWeeklyVarPct = v }, -20, 20, true},
		{"premium raises score", func(in *MarketInputs, v float64) { in.PremiumPercentile = v }, 0, 100, true},
		{"spread lowers score", func(in *MarketInputs, v float64) { in.FOBSpreadUSDPerTon = v }, -30, 30, false},
		{"demand raises score", func(in *MarketInputs, v float64) { in.ExportPaceZ = v }, -3, 3, true},
		{"fx lowers score", func(in *MarketInputs, v float64) { in.FXVar5dPct = v }, -5, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := -1.0
			if !tt.rising {
				prev = 101
			}
			step := (tt.to - tt.from) / 40
			for v := tt.from; v <= tt.to; v += step {
				in := scenarioA()
				tt.set(&in, v)
				res, err := cfg.Score(in)
				require.NoError(t, err)
				if tt.rising {
					assert.GreaterOrEqual(t, res.Aggregate, prev)
				} else {
					assert.LessOrEqual(t, res.Aggregate, prev)
				}
				prev = res.Aggregate
			}
		})
	}
}

func TestPhysicalFromScore(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name      string
		aggregate float64
		class     Classification
		action    Action
		intensity Intensity
		delta     float64
	}{
		{"very strong", 92, ClassVeryStrong, ActionAccelerate, IntensityStrong, 25},
		{"strong near band", 66, ClassStrong, ActionAccelerate, IntensityModerate, 15},
		{"neutral", 50, ClassNeutral, ActionHold, IntensityWeak, 0},
		{"weak", 30, ClassWeak, ActionReduce, IntensityModerate, -15},
		{"very weak", 5, ClassVeryWeak, ActionReduce, IntensityStrong, -25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := cfg.PhysicalFromScore(ScoreResult{Aggregate: tt.aggregate, Classification: tt.class})
			assert.Equal(t, tt.action, rec.Action)
			assert.Equal(t, tt.intensity, rec.Intensity)
			assert.Equal(t, tt.delta, rec.DeltaPct)
			assert.Equal(t, SourceScore, rec.Rationale.Source)
		})
	}
}

func TestHedgeFromScore(t *testing.T) {
	cfg := DefaultConfig()
	up := cfg.HedgeFromScore(ScoreResult{HedgeIndex: 70, HedgeClass: ClassStrong})
	assert.Equal(t, ActionIncrease, up.Action)
	assert.Equal(t, 10.0, up.DeltaPct)

	down := cfg.HedgeFromScore(ScoreResult{HedgeIndex: 10, HedgeClass: ClassVeryWeak})
	assert.Equal(t, ActionReduce, down.Action)
	assert.Equal(t, -20.0, down.DeltaPct)
	assert.Equal(t, IntensityStrong, down.Intensity)
}

func TestTopDrivers_TieBreak(t *testing.T) {
	var comps [5]ComponentScore
	for _, ind := range Indicators {
		comps[ind] = ComponentScore{Indicator: ind, Contribution: 10}
	}
	d := TopDrivers(comps)
	require.Len(t, d, 2)
	assert.Equal(t, IndicatorLineup, d[0].Indicator)
	assert.Equal(t, IndicatorPremium, d[1].Indicator)

	comps = [5]ComponentScore{}
	for _, ind := range Indicators {
		comps[ind].Indicator = ind
	}
	comps[IndicatorFX].Contribution = 4
	d = TopDrivers(comps)
	require.Len(t, d, 1)
	assert.Equal(t, IndicatorFX, d[0].Indicator)
}
