// Package physics holds the few derived quantities the workflow computes itself.
package physics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// TargetBox returns the cubic box that holds nBeads at the given number density (nm^-3).
// Edge lengths are in nm.
func TargetBox(density float64, nBeads int) (r3.Vec, error) {
	if density <= 0 {
		return r3.Vec{}, fmt.Errorf("density must be positive, got %g", density)
	}
	if nBeads <= 0 {
		return r3.Vec{}, fmt.Errorf("bead count must be positive, got %d", nBeads)
	}
	l := math.Cbrt(float64(nBeads) / density)
	return r3.Vec{X: l, Y: l, Z: l}, nil
}

// TauKT converts a thermostat coupling constant in units of time steps into simulation time
func TauKT(dt, tauSteps float64) float64 {
	return dt * tauSteps
}

// BoxSlice flattens a box vector for storage in a job document
func BoxSlice(box r3.Vec) []float64 {
	return []float64{box.X, box.Y, box.Z}
}

// BoxFromSlice is the inverse of BoxSlice
func BoxFromSlice(s []float64) (r3.Vec, error) {
	if len(s) != 3 {
		return r3.Vec{}, fmt.Errorf("box needs 3 edge lengths, got %d", len(s))
	}
	return r3.Vec{X: s[0], Y: s[1], Z: s[2]}, nil
}

// Volume of an orthorhombic box
func Volume(box r3.Vec) float64 {
	return box.X * box.Y * box.Z
}
