// Package angle implements arithmetic on compass headings, a circular domain
// of period 360°.
package angle

import "math"

const (
	FullTurn = 360.0
	HalfTurn = 180.0
)

// Normalize maps any finite angle into [0, 360).
func Normalize(deg float64) float64 {
	n := math.Mod(deg, FullTurn)
	if n < 0 {
		n += FullTurn
	}
	// math.Mod of a tiny negative value can round back up to 360.
	if n >= FullTurn {
		n = 0
	}
	return n
}

// ShortestError returns the signed rotation from current to target taking
// the short way round, in (-180, 180]. Positive means clockwise. An exact
// half turn resolves to +180.
func ShortestError(current, target float64) float64 {
	e := Normalize(target - current)
	if e > HalfTurn {
		e -= FullTurn
	}
	return e
}

// ApplyOffset corrects a raw heading by a home offset and renormalizes the
// result into [0, 360).
func ApplyOffset(raw, offset float64) float64 {
	return Normalize(raw - offset)
}
