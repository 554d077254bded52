package panning

import (
	"fmt"
	"math"

	"github.com/san-kum/dynrenderer/internal/objectmodel"
)

// AllRADDecoder computes a static HOA-to-loudspeaker decode matrix by
// feeding an analytic regular decode (real spherical harmonics sampled
// on a virtual, densely and uniformly covered sphere) through a VBAP
// panner built on the physical array: each virtual loudspeaker is
// treated as a VBAP source and its regular-decode contribution is
// redistributed onto the real loudspeakers that VBAP would drive it
// through.
type AllRADDecoder struct {
	order     int
	numSpeakers int
	decode    [][]float64 // [harmonic][speaker]
}

// NewAllRADDecoder builds the decoder for the given ambisonic order
// against realArray. numVirtualSpeakers controls the virtual array's
// density (and hence the decode's accuracy); values in the low hundreds
// are typical.
func NewAllRADDecoder(realArray *LoudspeakerArray, order, numVirtualSpeakers int) (*AllRADDecoder, error) {
	if order < 0 {
		return nil, fmt.Errorf("panning: AllRADDecoder: order must be >= 0")
	}
	if numVirtualSpeakers < NumHarmonics(order) {
		return nil, fmt.Errorf("panning: AllRADDecoder: numVirtualSpeakers must be >= number of harmonics")
	}
	vbap, err := NewVBAPCalculator(realArray)
	if err != nil {
		return nil, fmt.Errorf("panning: AllRADDecoder: %w", err)
	}

	virtual := fibonacciSpherePositions(numVirtualSpeakers)
	nHarms := NumHarmonics(order)
	weight := 4 * math.Pi / float64(numVirtualSpeakers)

	decode := make([][]float64, nHarms)
	for h := range decode {
		decode[h] = make([]float64, realArray.NumSpeakers())
	}

	for _, pos := range virtual {
		az, el := azimuthElevation(pos)
		gains := vbap.CalculateGains(pos)
		for h := 0; h < nHarms; h++ {
			n, m := ACNToDegreeOrder(h)
			regGain := weight * RealSphericalHarmonic(n, m, az, el)
			row := decode[h]
			for s, g := range gains {
				row[s] += regGain * g
			}
		}
	}

	return &AllRADDecoder{order: order, numSpeakers: realArray.NumSpeakers(), decode: decode}, nil
}

// DecodeMatrix returns the [harmonic][speaker] decode matrix: output
// speaker feeds are the matrix product of this and the HOA channel
// signals.
func (d *AllRADDecoder) DecodeMatrix() [][]float64 { return d.decode }

// Order and NumSpeakers report the decoder's dimensions.
func (d *AllRADDecoder) Order() int       { return d.order }
func (d *AllRADDecoder) NumSpeakers() int { return d.numSpeakers }

// fibonacciSpherePositions returns n points approximately uniformly
// distributed over the unit sphere via the Fibonacci lattice
// construction, used to build AllRAD's virtual regular array.
func fibonacciSpherePositions(n int) []objectmodel.Position {
	points := make([]objectmodel.Position, n)
	goldenAngle := math.Pi * (3 - math.Sqrt(5))
	for i := 0; i < n; i++ {
		z := 1 - 2*(float64(i)+0.5)/float64(n)
		radius := math.Sqrt(1 - z*z)
		theta := goldenAngle * float64(i)
		points[i] = objectmodel.Position{X: radius * math.Cos(theta), Y: radius * math.Sin(theta), Z: z}
	}
	return points
}

func azimuthElevation(p objectmodel.Position) (azimuth, elevation float64) {
	azimuth = math.Atan2(p.Y, p.X)
	horiz := math.Hypot(p.X, p.Y)
	elevation = math.Atan2(p.Z, horiz)
	return azimuth, elevation
}
