package planner

import (
	"math"

	"github.com/suda-labs/suda/internal/telemetry"
)

// DefaultDecay is the FSRS-5 default forgetting-curve decay.
const DefaultDecay = 0.5

// Band buckets an item by current recall probability.
type Band int

const (
	BandCold Band = iota
	BandFragile
	BandStretch
	BandSupport
	BandNew
)

func (b Band) String() string {
	switch b {
	case BandCold:
		return "cold"
	case BandFragile:
		return "fragile"
	case BandStretch:
		return "stretch"
	case BandSupport:
		return "support"
	case BandNew:
		return "new"
	}
	return "unknown"
}

// Retrievability computes the current recall probability from FSRS stability
// and elapsed days:
//
//	R = ((elapsed/stability) * factor + 1)^(-decay)
//	factor = (0.9 ^ (1 / -decay)) - 1
func Retrievability(stability, elapsedDays, decay float64) float64 {
	if stability <= 0 || decay <= 0 {
		return 0
	}
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	factor := math.Pow(0.9, 1.0/-decay) - 1.0
	r := math.Pow((elapsedDays/stability)*factor+1.0, -decay)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// classifyBand derives the base band from retrievability, then lets telemetry
// nudge it: repeated dont_know/lookups downgrade one band, repeated
// conversational success upgrades one.
func classifyBand(r float64, agg telemetry.Aggregate, cold, fragile, stretch float64) Band {
	var base Band
	switch {
	case r < cold:
		base = BandCold
	case r < fragile:
		base = BandFragile
	case r < stretch:
		base = BandStretch
	default:
		base = BandSupport
	}

	if (agg.DontKnow >= 2 || agg.LookupCount >= 3) && base > BandCold {
		return base - 1
	}
	if agg.ConvSuccess >= 3 && base < BandSupport {
		return base + 1
	}
	return base
}
