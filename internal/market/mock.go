package market

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"
)

const (
	basePremium      = 80.0
	baseChicago      = 1200.0
	baseUSDBRL       = 5.20
	baseFOBParanagua = 480.0
	baseLineup       = 80
	baseExports      = 2_500_000.0
	usdPerTonFactor  = 36.74 // USc/bu to USD/t
)

// Generator produces synthetic weekday market data with seasonality, a two-year cycle,
// mean-reverting random walks and occasional shocks. The same seed yields the same series.
type Generator struct {
	rng   *rand.Rand
	state map[string]float64
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed)), state: map[string]float64{}}
}

// Nudge seeds the random walk of one series, pushing the first days away from the base.
func (g *Generator) Nudge(key string, v float64) { g.state[key] = v }

func seasonal(t time.Time) float64 {
	m := float64(t.Month())
	if SafraMonths[t.Month()] {
		return 1.0 + 0.15*math.Sin((m-3)*math.Pi/4)
	}
	return 0.85 + 0.1*math.Sin((m-8)*math.Pi/6)
}

func cycle(dayIndex int) float64 {
	return 1.0 + 0.1*math.Sin(2*math.Pi*float64(dayIndex)/(365*2))
}

func (g *Generator) walk(key string, vol float64) float64 {
	cur := g.state[key]
	next := cur + g.rng.NormFloat64()*vol - 0.1*cur
	g.state[key] = next
	return next
}

func (g *Generator) shock(prob float64) float64 {
	if g.rng.Float64() >= prob {
		return 0
	}
	dir := 1.0
	if g.rng.Intn(2) == 0 {
		dir = -1
	}
	return dir * g.uniform(0.1, 0.25)
}

func (g *Generator) uniform(lo, hi float64) float64 { return lo + (hi-lo)*g.rng.Float64() }

func clampF(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }

func clampI(v, lo, hi int) int { return max(lo, min(hi, v)) }

// Day generates one record.
func (g *Generator) Day(t time.Time, dayIndex int) DailyRecord {
	s := seasonal(t)
	c := cycle(dayIndex)
	safra := SafraMonths[t.Month()]

	premWalk := g.walk("premium", 0.03)
	premium := clampF(basePremium*s*c*(1+premWalk+g.shock(0.03)), 20, 200)

	chicago := clampF(baseChicago*c*(1+g.walk("chicago", 0.015)+premWalk*0.3), 900, 1600)

	usdbrl := clampF(baseUSDBRL*(1+g.walk("usd_brl", 0.008)+g.shock(0.02)), 4.5, 6.5)

	fobPnq := (chicago/100*usdPerTonFactor + premium/100*usdPerTonFactor) * (1 + g.walk("fob_pnq", 0.01))
	fobPnq = clampF(fobPnq, 350, 650)

	spreadBase := 10.0
	if safra {
		spreadBase = -15
	}
	fobGulf := clampF(fobPnq+spreadBase+g.rng.NormFloat64()*5, 350, 650)

	lineupWalk := g.walk("lineup", 0.05)
	lineupSeason := 0.7
	if t.Month() >= time.March && t.Month() <= time.June {
		lineupSeason = s * 1.2
	}
	gross := clampI(int(baseLineup*lineupSeason*(1+lineupWalk)), 30, 150)

	cancelRate := 0.05 + g.uniform(0, 0.1)
	cancels := clampI(int(float64(gross)*cancelRate*g.uniform(0.5, 1.5)), 0, 20)
	net := max(20, gross-cancels-g.rng.Intn(6))

	exports := clampF(baseExports*s*(1+g.walk("exports", 0.08)), 500_000, 5_000_000)

	return DailyRecord{
		Date:              Day(t),
		PremiumParanagua:  Dec(premium, 2),
		ChicagoFront:      Dec(chicago, 2),
		USDBRL:            Dec(usdbrl, 4),
		FOBParanagua:      Dec(fobPnq, 2),
		FOBUSGulf:         Dec(fobGulf, 2),
		LineupGross:       IntPtr(gross),
		LineupNet:         IntPtr(net),
		Cancellations7d:   IntPtr(cancels),
		ExportsWeeklyTons: Dec(exports, 2),
	}
}

// Series generates weekday records from start to end inclusive.
func (g *Generator) Series(start, end time.Time) []DailyRecord {
	start, end = Day(start), Day(end)
	var out []DailyRecord
	for d, i := start, 0; !d.After(end); d, i = d.AddDate(0, 0, 1), i+1 {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, g.Day(d, i))
	}
	return out
}

// Scenario is a named, seeded market situation used by the replay tool and tests.
type Scenario struct {
	Name        string
	Description string
	Seed        int64
	End         time.Time
	nudges      map[string]float64
	logistics   bool
}

var scenarios = map[string]Scenario{
	"normal": {
		Name: "normal", Description: "calm mid-harvest market",
		Seed: 42, End: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
	},
	"crisis": {
		Name: "crisis", Description: "lineup and premium falling together",
		Seed: 123, End: time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC),
		nudges: map[string]float64{"lineup": -0.3, "premium": -0.2},
	},
	"opportunity": {
		Name: "opportunity", Description: "strong lineup with rich premium",
		Seed: 456, End: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		nudges: map[string]float64{"lineup": 0.25, "premium": 0.3},
	},
	"logistics": {
		Name: "logistics", Description: "port congestion with ships waiting",
		Seed: 789, End: time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC),
		nudges:    map[string]float64{"lineup": 0.4, "exports": -0.4},
		logistics: true,
	},
}

// ScenarioNames returns the known scenario names sorted.
func ScenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for n := range scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func LookupScenario(name string) (Scenario, error) {
	s, ok := scenarios[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q (known: %v)", name, ScenarioNames())
	}
	return s, nil
}

// Generate returns the scenario's records over the given number of calendar days ending at End.
func (s Scenario) Generate(days int) []DailyRecord {
	g := NewGenerator(s.Seed)
	for k, v := range s.nudges {
		g.Nudge(k, v)
	}
	recs := g.Series(s.End.AddDate(0, 0, -days), s.End)
	if s.logistics {
		// ships have been waiting for the last two weeks
		cutoff := s.End.AddDate(0, 0, -14)
		for i := range recs {
			if recs[i].Date.Before(cutoff) {
				continue
			}
			recs[i].ShipWaitDays = Float64Ptr(18)
			recs[i].WaitWeeksAbove = 2
		}
	}
	return recs
}

// History generates three years of records ending 2024-12-31.
func History(seed int64) []DailyRecord {
	return NewGenerator(seed).Series(
		time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	)
}

// HistoryUntil generates weekday records for the given number of years before end (exclusive).
func HistoryUntil(seed int64, end time.Time, years int) []DailyRecord {
	end = Day(end)
	return NewGenerator(seed).Series(end.AddDate(-years, 0, 0), end.AddDate(0, 0, -1))
}
