package panning

import (
	"fmt"
	"math"

	"github.com/san-kum/dynrenderer/internal/objectmodel"
)

// boundaryTolerance absorbs the slightly negative projection
// coefficients that appear when the listener sits close to a facet
// boundary; values above -boundaryTolerance are clamped to zero rather
// than rejecting the facet.
const boundaryTolerance = 1e-9

// VBAPCalculator computes vector-base amplitude panning gains against a
// fixed loudspeaker array: one 3x3 (or, for a 2D array, 2x2) inverse
// matrix per triplet/pair, precomputed at construction and again
// whenever the listener moves, then projected against each source
// position per call to CalculateGains.
type VBAPCalculator struct {
	array *LoudspeakerArray

	// invMatrices3D[i] holds the inverse of the 3x3 matrix whose rows
	// are the listener-relative Cartesian positions of triplet i's three
	// loudspeakers (3D arrays only), stored column by column: entries
	// 3k..3k+2 are column k, the weights that yield loudspeaker k's gain.
	invMatrices3D [][9]float64
	// invMatrices2D[i] holds the inverse of the 2x2 matrix whose rows
	// are the listener-relative (x,y) positions of pair i's two
	// loudspeakers (2D arrays only). A facet that degenerates for the
	// current listener position carries valid == false and is skipped.
	invMatrices2D [][4]float64
	facetValid    []bool

	listener objectmodel.Position
}

// NewVBAPCalculator precomputes the per-facet inverse matrices for
// array. The array's triangulation must already be degeneracy-free
// (no zero-area facet for a centred listener); a singular facet yields
// an error at construction, while facets that only degenerate for a
// later listener position are skipped for that position.
func NewVBAPCalculator(array *LoudspeakerArray) (*VBAPCalculator, error) {
	if err := array.Validate(); err != nil {
		return nil, fmt.Errorf("panning: VBAPCalculator: %w", err)
	}
	c := &VBAPCalculator{array: array}
	if err := c.rebuildMatrices(); err != nil {
		return nil, err
	}
	for i, ok := range c.facetValid {
		if !ok {
			if array.Is2D {
				return nil, fmt.Errorf("panning: VBAPCalculator: pair %d is singular", i)
			}
			return nil, fmt.Errorf("panning: VBAPCalculator: triplet %d is singular", i)
		}
	}
	return c, nil
}

// speakerPosition returns loudspeaker i's position in the panning
// frame: listener-relative, unless the array is declared infinite.
func (c *VBAPCalculator) speakerPosition(i int) objectmodel.Position {
	p := c.array.Positions[i]
	if c.array.IsInfinite {
		return p
	}
	return objectmodel.Position{X: p.X - c.listener.X, Y: p.Y - c.listener.Y, Z: p.Z - c.listener.Z}
}

func (c *VBAPCalculator) rebuildMatrices() error {
	if c.array.Is2D {
		if c.invMatrices2D == nil {
			c.invMatrices2D = make([][4]float64, len(c.array.Pairs))
			c.facetValid = make([]bool, len(c.array.Pairs))
		}
		for i, p := range c.array.Pairs {
			l1, l2 := c.speakerPosition(p[0]), c.speakerPosition(p[1])
			det := l1.X*l2.Y - l1.Y*l2.X
			if det == 0 {
				c.facetValid[i] = false
				continue
			}
			invDet := 1.0 / det
			c.invMatrices2D[i] = [4]float64{
				l2.Y * invDet, -l2.X * invDet,
				-l1.Y * invDet, l1.X * invDet,
			}
			c.facetValid[i] = true
		}
		return nil
	}

	if c.invMatrices3D == nil {
		c.invMatrices3D = make([][9]float64, len(c.array.Triplets))
		c.facetValid = make([]bool, len(c.array.Triplets))
	}
	for i, tr := range c.array.Triplets {
		l1, l2, l3 := c.speakerPosition(tr[0]), c.speakerPosition(tr[1]), c.speakerPosition(tr[2])
		det := l1.X*(l2.Y*l3.Z-l2.Z*l3.Y) -
			l1.Y*(l2.X*l3.Z-l2.Z*l3.X) +
			l1.Z*(l2.X*l3.Y-l2.Y*l3.X)
		if det == 0 {
			c.facetValid[i] = false
			continue
		}
		invDet := 1.0 / det
		c.invMatrices3D[i] = [9]float64{
			(l2.Y*l3.Z - l2.Z*l3.Y) * invDet,
			(l2.X*l3.Z - l2.Z*l3.X) * -invDet,
			(l2.X*l3.Y - l2.Y*l3.X) * invDet,
			(l1.Y*l3.Z - l1.Z*l3.Y) * -invDet,
			(l1.X*l3.Z - l1.Z*l3.X) * invDet,
			(l1.X*l3.Y - l1.Y*l3.X) * -invDet,
			(l1.Y*l2.Z - l1.Z*l2.Y) * invDet,
			(l1.X*l2.Z - l1.Z*l2.X) * -invDet,
			(l1.X*l2.Y - l1.Y*l2.X) * invDet,
		}
		c.facetValid[i] = true
	}
	return nil
}

// SetListenerPosition re-centres the panning space on the listener and
// recomputes every facet's inverse matrix. A no-op for arrays declared
// infinite.
func (c *VBAPCalculator) SetListenerPosition(p objectmodel.Position) {
	if c.array.IsInfinite {
		return
	}
	if p == c.listener {
		return
	}
	c.listener = p
	c.rebuildMatrices()
}

// CalculateGains returns one gain per loudspeaker in the array for
// source position pos. It selects the first facet, in declaration
// order, whose projected coefficients are all non-negative (within the
// boundary tolerance), and returns only that facet's L2-normalised
// gains — a source on a shared edge or vertex resolves to the single
// facet that comes first in declaration order, not a split across every
// bordering facet. A source outside every facet yields all-zero gains.
func (c *VBAPCalculator) CalculateGains(pos objectmodel.Position) []float64 {
	return c.gains(pos, false)
}

// CalculateGainsAtInfinity pans a pure direction (a plane-wave source):
// the listener offset is not applied to the source vector.
func (c *VBAPCalculator) CalculateGainsAtInfinity(pos objectmodel.Position) []float64 {
	return c.gains(pos, true)
}

func (c *VBAPCalculator) gains(pos objectmodel.Position, atInfinity bool) []float64 {
	gains := make([]float64, len(c.array.Positions))
	x, y, z := pos.X, pos.Y, pos.Z
	if !atInfinity && !c.array.IsInfinite {
		x -= c.listener.X
		y -= c.listener.Y
		z -= c.listener.Z
	}

	if c.array.Is2D {
		for i, inv := range c.invMatrices2D {
			if !c.facetValid[i] {
				continue
			}
			g1 := x*inv[0] + y*inv[1]
			g2 := x*inv[2] + y*inv[3]
			if g1 < -boundaryTolerance || g2 < -boundaryTolerance {
				continue
			}
			g1, g2 = math.Max(g1, 0), math.Max(g2, 0)
			norm := math.Hypot(g1, g2)
			if norm == 0 {
				continue
			}
			p := c.array.Pairs[i]
			gains[p[0]] = g1 / norm
			gains[p[1]] = g2 / norm
			return gains
		}
		return gains
	}

	for i, inv := range c.invMatrices3D {
		if !c.facetValid[i] {
			continue
		}
		g1 := x*inv[0] + y*inv[1] + z*inv[2]
		g2 := x*inv[3] + y*inv[4] + z*inv[5]
		g3 := x*inv[6] + y*inv[7] + z*inv[8]
		if g1 < -boundaryTolerance || g2 < -boundaryTolerance || g3 < -boundaryTolerance {
			continue
		}
		g1, g2, g3 = math.Max(g1, 0), math.Max(g2, 0), math.Max(g3, 0)
		norm := math.Sqrt(g1*g1 + g2*g2 + g3*g3)
		if norm == 0 {
			continue
		}
		tr := c.array.Triplets[i]
		gains[tr[0]] = g1 / norm
		gains[tr[1]] = g2 / norm
		gains[tr[2]] = g3 / norm
		return gains
	}
	return gains
}

// NumSpeakers reports the output width of CalculateGains.
func (c *VBAPCalculator) NumSpeakers() int { return c.array.NumSpeakers() }
