package decision

import (
	"fmt"
	"sort"
	"strings"
)

// TopDrivers returns the components with the largest weighted contribution, ties broken by
// indicator priority. The second driver is dropped when it contributes nothing.
func TopDrivers(components [5]ComponentScore) []ComponentScore {
	ranked := components
	sort.SliceStable(ranked[:], func(i, j int) bool {
		return ranked[i].Contribution > ranked[j].Contribution
	})
	drivers := []ComponentScore{ranked[0]}
	if ranked[1].Contribution > 0 {
		drivers = append(drivers, ranked[1])
	}
	return drivers
}

// Justify renders the reasoning chain of a report into a single line of pipe-separated parts.
func Justify(r DecisionReport) string {
	parts := make([]string, 0, 8)
	parts = append(parts, fmt.Sprintf("Physical %s (score %.1f, hedge index %.1f)",
		r.Classification, r.AggregateScore, r.HedgeIndex))

	drivers := TopDrivers(r.Components)
	names := make([]string, 0, len(drivers))
	for _, d := range drivers {
		names = append(names, fmt.Sprintf("%s (%.1f)", d.Indicator, d.Contribution))
	}
	parts = append(parts, "Drivers: "+strings.Join(names, ", "))

	if r.DominantOverride != nil {
		parts = append(parts, fmt.Sprintf("Override %s (priority %d): %s",
			r.DominantOverride.ID, r.DominantOverride.Priority, r.DominantOverride.Condition))
		var also []string
		for _, o := range r.Fired {
			if o.ID == r.DominantOverride.ID {
				continue
			}
			also = append(also, fmt.Sprintf("%s (priority %d)", o.ID, o.Priority))
		}
		if len(also) > 0 {
			parts = append(parts, "Also fired: "+strings.Join(also, ", "))
		}
	}

	var book []string
	book = append(book, r.Physical.Rationale.Notes...)
	book = append(book, r.Hedge.Rationale.Notes...)
	book = append(book, r.BookViolations...)
	if len(book) > 0 {
		parts = append(parts, "Book: "+strings.Join(book, "; "))
	}

	parts = append(parts, "Physical: "+describe(r.Physical))
	parts = append(parts, "Hedge: "+describe(r.Hedge))
	return strings.Join(parts, " | ")
}

func describe(rec Recommendation) string {
	s := fmt.Sprintf("%s %s %+.1fpp", rec.Action, rec.Intensity, rec.DeltaPct)
	if rec.Urgent {
		s += " (urgent)"
	}
	return s
}
