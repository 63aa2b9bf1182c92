package decision

// Apply maps v onto [0,100]. Values beyond the bounds saturate.
func (c Curve) Apply(v float64) float64 {
	var s float64
	switch {
	case v <= c.Low:
		s = 0
	case v >= c.High:
		s = 100
	case v < c.Neutral:
		s = 50 * (v - c.Low) / (c.Neutral - c.Low)
	default:
		s = 50 + 50*(v-c.Neutral)/(c.High-c.Neutral)
	}
	if c.Inverted {
		s = 100 - s
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
