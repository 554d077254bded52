package panning

import (
	"fmt"
	"math"

	"github.com/san-kum/dynrenderer/internal/objectmodel"
)

// CAPCalculator implements compensated amplitude panning: an
// energy-minimising panning law that keeps the apparent image direction
// fixed along the listener's aural axis as the listener's head rotates,
// rather than recentring gains on the raw source-minus-listener vector
// the way plain VBAP does.
//
// For arrays of more than two loudspeakers it falls back to the
// underlying VBAPCalculator's triplet/pair selection and projects the
// aural-axis-compensated direction through it; the closed-form 2-speaker
// solution below is used whenever the array has exactly two
// loudspeakers, where VBAP's facet search degenerates.
type CAPCalculator struct {
	vbap      *VBAPCalculator
	array     *LoudspeakerArray
	auralAxis objectmodel.Position
	// gainCap bounds any single loudspeaker's gain, applied when the
	// energy-minimising solution would otherwise blow up near a
	// singularity (source direction anti-parallel to the aural axis).
	gainCap float64
}

// NewCAPCalculator constructs a CAP calculator over array. gainCap must
// be positive; a typical value is 2.0 (+6 dB above unity).
func NewCAPCalculator(array *LoudspeakerArray, gainCap float64) (*CAPCalculator, error) {
	if gainCap <= 0 {
		return nil, fmt.Errorf("panning: CAPCalculator: gainCap must be positive")
	}
	vbap, err := NewVBAPCalculator(array)
	if err != nil {
		return nil, fmt.Errorf("panning: CAPCalculator: %w", err)
	}
	return &CAPCalculator{vbap: vbap, array: array, gainCap: gainCap}, nil
}

// SetListenerPosition forwards the listener position to the underlying
// VBAP calculator.
func (c *CAPCalculator) SetListenerPosition(p objectmodel.Position) {
	c.vbap.SetListenerPosition(p)
}

// NumSpeakers reports the output width of CalculateGains.
func (c *CAPCalculator) NumSpeakers() int { return c.array.NumSpeakers() }

// SetAuralAxis sets the listener's facing direction (head orientation);
// CAP rotates the panning space so that images stay anchored along this
// axis rather than the raw loudspeaker frame.
func (c *CAPCalculator) SetAuralAxis(axis objectmodel.Position) {
	norm := axis.Norm()
	if norm == 0 {
		c.auralAxis = objectmodel.Position{X: 1}
		return
	}
	c.auralAxis = objectmodel.Position{X: axis.X / norm, Y: axis.Y / norm, Z: axis.Z / norm}
}

// CalculateGains returns one gain per loudspeaker for source position
// pos, compensating for the current aural axis. A two-loudspeaker array
// takes the closed-form path, which applies neither the aural axis nor
// the listener position.
func (c *CAPCalculator) CalculateGains(pos objectmodel.Position) []float64 {
	axis := c.auralAxis
	if axis.Norm() == 0 {
		axis = objectmodel.Position{X: 1}
	}

	if c.array.NumSpeakers() == 2 {
		return c.twoSpeakerClosedForm(pos, axis)
	}

	compensated := rotateTowardAxis(pos, axis)
	gains := c.vbap.CalculateGains(compensated)
	return c.capGains(gains)
}

// CalculateGainsAtInfinity pans a pure direction (plane-wave source);
// the aural-axis compensation still applies but the listener offset does
// not. A two-loudspeaker array takes the same closed-form path as
// CalculateGains, without aural-axis compensation.
func (c *CAPCalculator) CalculateGainsAtInfinity(pos objectmodel.Position) []float64 {
	axis := c.auralAxis
	if axis.Norm() == 0 {
		axis = objectmodel.Position{X: 1}
	}
	if c.array.NumSpeakers() == 2 {
		return c.twoSpeakerClosedForm(pos, axis)
	}
	compensated := rotateTowardAxis(pos, axis)
	gains := c.vbap.CalculateGainsAtInfinity(compensated)
	return c.capGains(gains)
}

// twoSpeakerClosedForm solves the 2-loudspeaker CAP case directly: it
// measures the source's angle to each speaker and splits energy by that
// angular ratio with a constant-power (sin/cos) pan law. The axis
// argument is not used, and the raw array positions are used regardless
// of the listener position.
func (c *CAPCalculator) twoSpeakerClosedForm(pos, axis objectmodel.Position) []float64 {
	l0, l1 := c.array.Positions[0], c.array.Positions[1]
	d0, d1 := angleBetween(pos, l0), angleBetween(pos, l1)
	total := d0 + d1
	if total == 0 {
		return []float64{math.Sqrt(0.5), math.Sqrt(0.5)}
	}
	// constant-power law over the angular split between the two speakers
	frac := d1 / total
	g0 := math.Sin(frac * math.Pi / 2)
	g1 := math.Cos(frac * math.Pi / 2)
	return c.capGains([]float64{g0, g1})
}

func (c *CAPCalculator) capGains(gains []float64) []float64 {
	out := make([]float64, len(gains))
	for i, g := range gains {
		if g > c.gainCap {
			g = c.gainCap
		}
		out[i] = g
	}
	return out
}

// rotateTowardAxis re-expresses pos in a frame whose forward direction is
// axis instead of +X, the rotation CAP applies before reusing VBAP's
// facet search so that the panned image tracks the listener's head
// orientation rather than the fixed array frame.
func rotateTowardAxis(pos, axis objectmodel.Position) objectmodel.Position {
	forward := axis
	// build an arbitrary right-handed basis with `forward` as the new X
	// axis; degenerate only when forward is exactly +-Z, handled via the
	// fallback up vector.
	up := objectmodel.Position{Z: 1}
	if math.Abs(forward.Z) > 0.999 {
		up = objectmodel.Position{Y: 1}
	}
	right := cross(forward, up)
	rightNorm := right.Norm()
	if rightNorm == 0 {
		return pos
	}
	right = objectmodel.Position{X: right.X / rightNorm, Y: right.Y / rightNorm, Z: right.Z / rightNorm}
	trueUp := cross(right, forward)

	return objectmodel.Position{
		X: pos.X*forward.X + pos.Y*forward.Y + pos.Z*forward.Z,
		Y: pos.X*right.X + pos.Y*right.Y + pos.Z*right.Z,
		Z: pos.X*trueUp.X + pos.Y*trueUp.Y + pos.Z*trueUp.Z,
	}
}

func cross(a, b objectmodel.Position) objectmodel.Position {
	return objectmodel.Position{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func angleBetween(a, b objectmodel.Position) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	dot := (a.X*b.X + a.Y*b.Y + a.Z*b.Z) / (na * nb)
	if dot > 1 {
		dot = 1
	}
	if dot < -1 {
		dot = -1
	}
	return math.Acos(dot)
}
