package decision

import (
	"fmt"
	"math"
)

// ValidateBook rejects inconsistent limits. Exposure beyond the limits is not an error; it is
// reported by Violations.
func ValidateBook(b BookState) error {
	fields := []struct {
		name string
		v    float64
	}{
		{"exposicao_fisica_pct", b.PhysicalExposurePct},
		{"limite_long_pct", b.LongLimitPct},
		{"limite_short_pct", b.ShortLimitPct},
		{"hedge_atual_pct", b.HedgeCurrentPct},
		{"hedge_meta_pct", b.HedgeTargetPct},
	}
	for _, f := range fields {
		if !finite(f.v) {
			return newError(ErrValidation, f.name, "value must be finite, got %v", f.v)
		}
	}
	switch {
	case b.LongLimitPct < 0:
		return newError(ErrValidation, "limite_long_pct", "long limit must be >= 0, got %v", b.LongLimitPct)
	case b.ShortLimitPct > 0:
		return newError(ErrValidation, "limite_short_pct", "short limit must be <= 0, got %v", b.ShortLimitPct)
	case b.ShortLimitPct >= b.LongLimitPct:
		return newError(ErrValidation, "limite_short_pct", "short limit %v must be below long limit %v", b.ShortLimitPct, b.LongLimitPct)
	case !inPercentRange(b.HedgeTargetPct):
		return newError(ErrValidation, "hedge_meta_pct", "hedge target must be within [0, 100], got %v", b.HedgeTargetPct)
	}
	return nil
}

// Violations lists every way the book currently sits outside its limits.
func Violations(b BookState) []string {
	var out []string
	if b.PhysicalExposurePct > b.LongLimitPct {
		out = append(out, fmt.Sprintf("exposure %.1f%% above long limit %.1f%%", b.PhysicalExposurePct, b.LongLimitPct))
	}
	if b.PhysicalExposurePct < b.ShortLimitPct {
		out = append(out, fmt.Sprintf("exposure %.1f%% below short limit %.1f%%", b.PhysicalExposurePct, b.ShortLimitPct))
	}
	if !inPercentRange(b.HedgeCurrentPct) {
		out = append(out, fmt.Sprintf("hedge ratio %.1f%% outside [0%%, 100%%]", b.HedgeCurrentPct))
	}
	return out
}

// ModulatePhysical caps the physical delta at the headroom left before the relevant limit.
func ModulatePhysical(rec Recommendation, b BookState) Recommendation {
	out := rec
	out.Rationale.Notes = append([]string(nil), rec.Rationale.Notes...)

	var headroom float64
	var limit string
	switch rec.Action.direction() {
	case 1:
		headroom, limit = b.LongHeadroom(), fmt.Sprintf("long limit %.1f%%", b.LongLimitPct)
	case -1:
		headroom, limit = b.ShortHeadroom(), fmt.Sprintf("short limit %.1f%%", b.ShortLimitPct)
	default:
		return out
	}

	if headroom <= 0 {
		out.Action = ActionHold
		out.Intensity = IntensityWeak
		out.DeltaPct = 0
		out.Urgent = false
		out.Constrained = true
		out.Rationale.Notes = append(out.Rationale.Notes,
			fmt.Sprintf("%s %s blocked: exposure %.1f%% at %s", rec.Action, rec.Intensity, b.PhysicalExposurePct, limit))
		return out
	}

	if math.Abs(rec.DeltaPct) > headroom {
		out.DeltaPct = math.Copysign(headroom, rec.DeltaPct)
		out.Capped = true
		out.Rationale.Notes = append(out.Rationale.Notes,
			fmt.Sprintf("sizing capped from %+.1fpp to %+.1fpp by %s", rec.DeltaPct, out.DeltaPct, limit))
	}
	return out
}

// ModulateHedge moves the hedge only toward the target ratio and never past it.
func ModulateHedge(rec Recommendation, b BookState) Recommendation {
	out := rec
	out.Rationale.Notes = append([]string(nil), rec.Rationale.Notes...)

	dir := rec.Action.direction()
	if dir == 0 {
		return out
	}

	gap := b.HedgeGap()
	conflict := ""
	switch {
	case gap == 0:
		conflict = fmt.Sprintf("hedge %s blocked: hedge %.1f%% already at target", rec.Action, b.HedgeCurrentPct)
	case (gap > 0) != (dir > 0):
		conflict = fmt.Sprintf("hedge %s conflicts with target: hedge %.1f%% vs target %.1f%%",
			rec.Action, b.HedgeCurrentPct, b.HedgeTargetPct)
	}
	if conflict != "" {
		out.Action = ActionHold
		out.Intensity = IntensityWeak
		out.DeltaPct = 0
		out.Constrained = true
		out.Rationale.Notes = append(out.Rationale.Notes, conflict)
		return out
	}

	if math.Abs(rec.DeltaPct) > math.Abs(gap) {
		out.DeltaPct = gap
		out.Capped = true
		out.Rationale.Notes = append(out.Rationale.Notes,
			fmt.Sprintf("hedge delta capped from %+.1fpp to %+.1fpp by target %.1f%%", rec.DeltaPct, gap, b.HedgeTargetPct))
	}
	return out
}
