package market

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bruno-portfolio/basismind/internal/decision"
)

// Derivation constants. They describe how raw desk data becomes an indicator and are not
// part of the engine calibration.
const (
	MinPremiumSamples     = 30
	PremiumLookbackYears  = 3
	DemandLookbackYears   = 5
	ChicagoLookbackDays   = 180
	ChicagoSpikePct       = 5.0
	WaitThresholdDays     = 15.0
	WaitConsecutiveWeeks  = 2
	LoadingRateThreshold  = 0.70
	premiumMoveObs        = 3
	shortVarObs           = 5
	longVarObs            = 20
	lineupLookbackDays    = 7
	lookbackSlackDays     = 3
)

// SafraMonths is the Brazilian harvest window. Premium percentiles compare within a regime.
var SafraMonths = map[time.Month]bool{
	time.March: true, time.April: true, time.May: true, time.June: true, time.July: true,
}

// freightDifferential is the monthly Paranagua vs Gulf ocean freight adjustment (USD/t).
var freightDifferential = map[time.Month]float64{
	time.January: -8, time.February: -10, time.March: -12, time.April: -10,
	time.May: -6, time.June: -2, time.July: 2, time.August: 5,
	time.September: 8, time.October: 10, time.November: 6, time.December: 0,
}

func Regime(t time.Time) string {
	if SafraMonths[t.Month()] {
		return "safra"
	}
	return "entressafra"
}

func FreightAdjustment(m time.Month) float64 { return freightDifferential[m] }

// AdjustedSpread is FOB Paranagua minus FOB Gulf plus the monthly freight differential.
func AdjustedSpread(paranagua, gulf float64, m time.Month) float64 {
	return round2(paranagua - gulf + FreightAdjustment(m))
}

// NetLineup removes cancelled and postponed ships from the gross lineup.
func NetLineup(gross, cancelled, postponed int) int {
	return max(0, gross-cancelled-postponed)
}

// CancellationRate is the share (%) of last week's gross lineup that was cancelled or postponed.
func CancellationRate(cancelled, postponed, grossWeekAgo int) float64 {
	if grossWeekAgo <= 0 {
		return 0
	}
	return round2(math.Min(100, math.Max(0, float64(cancelled+postponed)/float64(grossWeekAgo)*100)))
}

// PctChange is the signed percentage change from prev to curr.
func PctChange(curr, prev float64) (float64, bool) {
	if prev == 0 {
		return 0, false
	}
	return round2((curr - prev) / prev * 100), true
}

// Percentile ranks v within hist using the mid-rank rule: values below count fully, ties
// count half.
func Percentile(v float64, hist []float64) (float64, bool) {
	if len(hist) == 0 {
		return 50, false
	}
	var below, equal int
	for _, h := range hist {
		switch {
		case h < v:
			below++
		case h == v:
			equal++
		}
	}
	return round2((float64(below) + 0.5*float64(equal)) / float64(len(hist)) * 100), true
}

// ZScore measures v against the sample mean and standard deviation of hist.
// At least three samples are needed; a flat history scores 0.
func ZScore(v float64, hist []float64) (float64, bool) {
	if len(hist) < 3 {
		return 0, false
	}
	mean, std := meanStd(hist)
	if std == 0 {
		return 0, true
	}
	return round2((v - mean) / std), true
}

func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// LogisticsFlag combines ship waiting time, loading rate and a manual desk event.
func LogisticsFlag(waitDays *float64, weeksAbove int, loadingRate *float64, manual string) (bool, string) {
	var reasons []string
	if waitDays != nil && *waitDays > WaitThresholdDays && weeksAbove >= WaitConsecutiveWeeks {
		reasons = append(reasons, fmt.Sprintf("ship wait %.0fd > %.0fd for %d weeks", *waitDays, WaitThresholdDays, weeksAbove))
	}
	if loadingRate != nil && *loadingRate < LoadingRateThreshold {
		reasons = append(reasons, fmt.Sprintf("loading rate %.0f%% < %.0f%%", *loadingRate*100, LoadingRateThreshold*100))
	}
	if manual != "" {
		reasons = append(reasons, "manual event: "+manual)
	}
	return len(reasons) > 0, strings.Join(reasons, "; ")
}

// Derivation is the engine input plus the intermediate values the dashboard and triggers use.
type Derivation struct {
	Inputs decision.MarketInputs `json:"inputs"`

	LineupNet           int     `json:"lineup_net"`
	CancellationRatePct float64 `json:"cancellation_rate_pct"`
	PrevLineupVarPct    float64 `json:"prev_lineup_var_pct"`
	HasPrevLineupVar    bool    `json:"has_prev_lineup_var"`
	Regime              string  `json:"regime"`
	PremiumSamples      int     `json:"premium_samples"`
	PremiumMoveZ        float64 `json:"premium_move_z"`
	SpreadRawUSD        float64 `json:"spread_raw_usd"`
	FreightAdjUSD       float64 `json:"freight_adj_usd"`
	FXVar20dPct         float64 `json:"fx_var_20d_pct"`
	ChicagoVar5dPct     float64 `json:"chicago_var_5d_pct"`

	Warnings []string `json:"warnings,omitempty"`
}

// Derive computes the engine inputs for today from the preceding history. History may be in
// any order and must not contain today. Indicators without enough history fall back to their
// neutral value and add a warning.
func Derive(history []DailyRecord, today DailyRecord) (Derivation, error) {
	day := Day(today.Date)
	if day.IsZero() {
		return Derivation{}, fmt.Errorf("record without date")
	}
	past := make([]DailyRecord, 0, len(history))
	for _, r := range history {
		if Day(r.Date).Before(day) {
			past = append(past, r)
		}
	}
	sort.Slice(past, func(i, j int) bool { return past[i].Date.Before(past[j].Date) })

	d := Derivation{Regime: Regime(day)}
	in := decision.MarketInputs{Date: day, NarrativeConfirmed: today.NarrativeConfirmed}

	d.deriveLineup(past, today, &in)
	if err := d.derivePremium(past, today, &in); err != nil {
		return Derivation{}, err
	}
	if err := d.deriveSpread(today, &in); err != nil {
		return Derivation{}, err
	}
	d.deriveDemand(past, today, &in)
	d.deriveFX(past, today, &in)
	if err := d.deriveChicago(past, today, &in); err != nil {
		return Derivation{}, err
	}
	in.LogisticsFlagActive, in.LogisticsReason = LogisticsFlag(today.ShipWaitDays, today.WaitWeeksAbove, today.LoadingRate, today.ManualEvent)

	d.Inputs = in
	return d, nil
}

func (d *Derivation) warn(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

// lookback returns the last record on or before day-days, searching a few days back for
// weekends and holidays.
func lookback(past []DailyRecord, day time.Time, days int) (DailyRecord, bool) {
	target := day.AddDate(0, 0, -days)
	floor := target.AddDate(0, 0, -lookbackSlackDays)
	for i := len(past) - 1; i >= 0; i-- {
		rd := Day(past[i].Date)
		if rd.After(target) {
			continue
		}
		if rd.Before(floor) {
			break
		}
		return past[i], true
	}
	return DailyRecord{}, false
}

func netOf(r DailyRecord) (int, bool) {
	switch {
	case r.LineupNet != nil:
		return *r.LineupNet, true
	case r.LineupGross != nil:
		c := 0
		if r.Cancellations7d != nil {
			c = *r.Cancellations7d
		}
		return NetLineup(*r.LineupGross, c, 0), true
	}
	return 0, false
}

func (d *Derivation) deriveLineup(past []DailyRecord, today DailyRecord, in *decision.MarketInputs) {
	net, ok := netOf(today)
	if !ok {
		d.warn("lineup missing: weekly variation set to neutral")
		return
	}
	d.LineupNet = net

	day := Day(today.Date)
	prev, found := lookback(past, day, lineupLookbackDays)
	if !found {
		d.warn("no lineup a week back: weekly variation set to neutral")
		return
	}
	if prev.LineupGross != nil && today.Cancellations7d != nil {
		d.CancellationRatePct = CancellationRate(*today.Cancellations7d, 0, *prev.LineupGross)
	}
	prevNet, ok := netOf(prev)
	if !ok || prevNet <= 0 {
		d.warn("lineup a week back unusable: weekly variation set to neutral")
		return
	}
	in.LineupWeeklyVarPct = round2(float64(net-prevNet) / float64(prevNet) * 100)

	// previous week's variation feeds the swing trigger
	if older, ok := lookback(past, Day(prev.Date), lineupLookbackDays); ok {
		if olderNet, ok := netOf(older); ok && olderNet > 0 {
			d.PrevLineupVarPct = round2(float64(prevNet-olderNet) / float64(olderNet) * 100)
			d.HasPrevLineupVar = true
		}
	}
}

func (d *Derivation) derivePremium(past []DailyRecord, today DailyRecord, in *decision.MarketInputs) error {
	p, ok := Float(today.PremiumParanagua)
	if !ok {
		return fmt.Errorf("premium_paranagua is required")
	}
	day := Day(today.Date)
	since := day.AddDate(-PremiumLookbackYears, 0, 0)
	regime := Regime(day)

	var hist, all []float64
	for _, r := range past {
		v, ok := Float(r.PremiumParanagua)
		if !ok {
			continue
		}
		all = append(all, v)
		if !r.Date.Before(since) && Regime(r.Date) == regime {
			hist = append(hist, v)
		}
	}
	d.PremiumSamples = len(hist)
	if len(hist) < MinPremiumSamples {
		d.warn("premium history for %s has %d samples (minimum %d)", regime, len(hist), MinPremiumSamples)
	}
	in.PremiumPercentile, _ = Percentile(p, hist)

	// 3-observation move against the distribution of past 3-observation moves
	recent := tail(all, ChicagoLookbackDays)
	if len(recent) > premiumMoveObs+2 {
		moves := make([]float64, 0, len(recent))
		for i := premiumMoveObs; i < len(recent); i++ {
			moves = append(moves, recent[i]-recent[i-premiumMoveObs])
		}
		d.PremiumMoveZ, _ = ZScore(p-recent[len(recent)-premiumMoveObs], moves)
	}
	return nil
}

func (d *Derivation) deriveSpread(today DailyRecord, in *decision.MarketInputs) error {
	pnq, ok1 := Float(today.FOBParanagua)
	gulf, ok2 := Float(today.FOBUSGulf)
	if !ok1 || !ok2 {
		return fmt.Errorf("fob_paranagua and fob_us_gulf are required")
	}
	m := Day(today.Date).Month()
	d.SpreadRawUSD = round2(pnq - gulf)
	d.FreightAdjUSD = FreightAdjustment(m)
	in.FOBSpreadUSDPerTon = AdjustedSpread(pnq, gulf, m)
	return nil
}

func (d *Derivation) deriveDemand(past []DailyRecord, today DailyRecord, in *decision.MarketInputs) {
	exp, ok := Float(today.ExportsWeeklyTons)
	if !ok {
		d.warn("exports missing: pace set to neutral")
		return
	}
	day := Day(today.Date)
	_, week := day.ISOWeek()
	since := day.AddDate(-DemandLookbackYears, 0, 0)
	var hist []float64
	for _, r := range past {
		if r.Date.Before(since) {
			continue
		}
		if _, w := r.Date.ISOWeek(); w != week || r.Date.Year() == day.Year() {
			continue
		}
		if v, ok := Float(r.ExportsWeeklyTons); ok {
			hist = append(hist, v)
		}
	}
	z, ok := ZScore(exp, hist)
	if !ok {
		d.warn("export pace history has %d samples: pace set to neutral", len(hist))
		return
	}
	in.ExportPaceZ = z
}

func (d *Derivation) deriveFX(past []DailyRecord, today DailyRecord, in *decision.MarketInputs) {
	fx, ok := Float(today.USDBRL)
	if !ok {
		d.warn("usd_brl missing: fx variation set to neutral")
		return
	}
	series := columnSeries(past, func(r DailyRecord) decimal.NullDecimal { return r.USDBRL })
	if v, ok := obsBack(series, shortVarObs); ok {
		in.FXVar5dPct, _ = PctChange(fx, v)
	} else {
		d.warn("fewer than %d usd_brl observations: fx variation set to neutral", shortVarObs)
	}
	if v, ok := obsBack(series, longVarObs); ok {
		d.FXVar20dPct, _ = PctChange(fx, v)
	}
}

func (d *Derivation) deriveChicago(past []DailyRecord, today DailyRecord, in *decision.MarketInputs) error {
	c, ok := Float(today.ChicagoFront)
	if !ok {
		return fmt.Errorf("chicago_front is required")
	}
	since := Day(today.Date).AddDate(0, 0, -ChicagoLookbackDays)
	var recent []DailyRecord
	for _, r := range past {
		if !r.Date.Before(since) {
			recent = append(recent, r)
		}
	}
	hist := columnSeries(recent, func(r DailyRecord) decimal.NullDecimal { return r.ChicagoFront })
	var hasHist bool
	in.ChicagoPercentile, hasHist = Percentile(c, hist)
	if !hasHist {
		d.warn("no chicago history: percentile set to neutral")
	}
	if v, ok := obsBack(hist, shortVarObs); ok {
		d.ChicagoVar5dPct, _ = PctChange(c, v)
		in.ChicagoIsSpike = d.ChicagoVar5dPct > ChicagoSpikePct
	}
	return nil
}

func columnSeries(rs []DailyRecord, col func(DailyRecord) decimal.NullDecimal) []float64 {
	out := make([]float64, 0, len(rs))
	for _, r := range rs {
		if f, ok := Float(col(r)); ok {
			out = append(out, f)
		}
	}
	return out
}

// obsBack returns the value n observations before the end of series.
func obsBack(series []float64, n int) (float64, bool) {
	if len(series) < n {
		return 0, false
	}
	return series[len(series)-n], true
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
