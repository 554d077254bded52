// Package objectmodel defines the scene object model: a closed set of
// object variants carried as one tagged struct (dispatch by Kind, not by
// interface virtual calls, so calculators can ignore unknown kinds
// without reflection or type assertions), plus the reverb-object
// attachments (DiscreteReflection, LateReverb) the reverb atoms consume.
package objectmodel

import "math"

// Kind tags which variant of Object is populated. Only the fields
// documented for a Kind are meaningful; calculators that do not
// recognise a Kind must skip the object rather than error.
type Kind int

const (
	PointSource Kind = iota
	PointSourceWithDiffuseness
	PlaneWave
	ChannelObject
	HoaSource
	DiffuseSource
	PointSourceWithReverb
)

func (k Kind) String() string {
	switch k {
	case PointSource:
		return "PointSource"
	case PointSourceWithDiffuseness:
		return "PointSourceWithDiffuseness"
	case PlaneWave:
		return "PlaneWave"
	case ChannelObject:
		return "ChannelObject"
	case HoaSource:
		return "HoaSource"
	case DiffuseSource:
		return "DiffuseSource"
	case PointSourceWithReverb:
		return "PointSourceWithReverb"
	default:
		return "Unknown"
	}
}

// Position is a Cartesian point (or, for at-infinity sources such as
// PlaneWave, a unit direction vector).
type Position struct {
	X, Y, Z float64
}

// Sub returns p - q.
func (p Position) Sub(q Position) Position {
	return Position{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Norm returns the Euclidean length.
func (p Position) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// FromSpherical converts an azimuth/elevation pair (radians, right-handed,
// azimuth measured counter-clockwise from the positive X axis) into a
// unit Cartesian direction, used by PlaneWave objects and discrete
// reflection panning.
func FromSpherical(azimuth, elevation float64) Position {
	cosEl := math.Cos(elevation)
	return Position{
		X: cosEl * math.Cos(azimuth),
		Y: cosEl * math.Sin(azimuth),
		Z: math.Sin(elevation),
	}
}

// DiscreteReflection is a single deterministic early reflection belonging
// to a PointSourceWithReverb object: its own apparent position, onset
// delay, level, and a fixed-size bank of wall-filter biquad coefficient
// sets (length is the cNumDiscreteReflectionBiquads construction
// parameter, checked for agreement across dependent atoms).
type DiscreteReflection struct {
	Position Position
	Delay    float64
	Level    float64
	Biquads  []BiquadCoefficients
}

// BiquadCoefficients mirrors rbbl/biquad.Coefficients without importing
// that package here, keeping objectmodel free of a dependency on the DSP
// atom layer; reverbobject converts between the two at its boundary.
type BiquadCoefficients struct {
	B0, B1, B2, A1, A2 float64
}

// LateReverb is the per-object subband envelope descriptor consumed by
// the late-reverb filter synthesiser. K (len of the three slices)
// is the subband count construction parameter.
type LateReverb struct {
	OnsetDelay         float64
	SubbandLevels      []float64
	SubbandDecayCoeffs []float64
	SubbandAttackTimes []float64
}

// CloseTo reports whether every corresponding component of l and other
// differs by no more than tolerance, the comparison used to decide
// whether a new LateReverb descriptor should trigger a synthesis message.
func (l LateReverb) CloseTo(other LateReverb, tolerance float64) bool {
	if math.Abs(l.OnsetDelay-other.OnsetDelay) > tolerance {
		return false
	}
	if len(l.SubbandLevels) != len(other.SubbandLevels) ||
		len(l.SubbandDecayCoeffs) != len(other.SubbandDecayCoeffs) ||
		len(l.SubbandAttackTimes) != len(other.SubbandAttackTimes) {
		return false
	}
	for i := range l.SubbandLevels {
		if math.Abs(l.SubbandLevels[i]-other.SubbandLevels[i]) > tolerance {
			return false
		}
	}
	for i := range l.SubbandDecayCoeffs {
		if math.Abs(l.SubbandDecayCoeffs[i]-other.SubbandDecayCoeffs[i]) > tolerance {
			return false
		}
	}
	for i := range l.SubbandAttackTimes {
		if math.Abs(l.SubbandAttackTimes[i]-other.SubbandAttackTimes[i]) > tolerance {
			return false
		}
	}
	return true
}

// IsFinite reports whether every component of the descriptor is a finite
// number. Descriptors carrying NaN or infinity are dropped by the reverb
// parameter calculator with a diagnostic instead of reaching the filter
// synthesiser.
func (l LateReverb) IsFinite() bool {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	if !finite(l.OnsetDelay) {
		return false
	}
	for _, s := range [][]float64{l.SubbandLevels, l.SubbandDecayCoeffs, l.SubbandAttackTimes} {
		for _, v := range s {
			if !finite(v) {
				return false
			}
		}
	}
	return true
}

// Silent returns a LateReverb descriptor of the given subband count with
// every level/coefficient zeroed, the "silent" message emitted once when
// a reverb slot is cleared.
func Silent(numSubbands int) LateReverb {
	return LateReverb{
		SubbandLevels:      make([]float64, numSubbands),
		SubbandDecayCoeffs: make([]float64, numSubbands),
		SubbandAttackTimes: make([]float64, numSubbands),
	}
}

// Object is the tagged-union scene entity: one struct covering every
// variant, with Kind selecting which fields apply.
type Object struct {
	ID           string
	Kind         Kind
	ChannelIndex int
	Level        float64
	GroupID      string
	Priority     int

	// PointSource, PointSourceWithDiffuseness, PointSourceWithReverb
	Position Position

	// PointSourceWithDiffuseness
	Diffuseness float64

	// PlaneWave
	Azimuth, Elevation float64

	// ChannelObject: the physical output channel this object is routed
	// to directly, bypassing panning.
	OutputChannelIndex int

	// HoaSource
	HoaOrder              int
	HarmonicSignalIndices []int

	// PointSourceWithReverb
	DiscreteReflections []DiscreteReflection
	LateReverbParams    LateReverb
}

// Direction returns the object's position as a panning direction: for
// PlaneWave it derives the unit vector from azimuth/elevation (treated as
// at infinity, i.e. listener position must not be subtracted from it by
// the caller); for the point-source variants it returns Position as-is.
func (o Object) Direction() Position {
	if o.Kind == PlaneWave {
		return FromSpherical(o.Azimuth, o.Elevation)
	}
	return o.Position
}

// IsAtInfinity reports whether the object's direction should skip
// listener-position subtraction during panning (plane waves only).
func (o Object) IsAtInfinity() bool {
	return o.Kind == PlaneWave
}

// Vector is a per-block scene-object stream: the set of objects live in
// this block, identified by ID across blocks.
type Vector []Object

// ByID returns a lookup map keyed by object ID, a convenience for
// calculators that need random access rather than a linear scan.
func (v Vector) ByID() map[string]Object {
	m := make(map[string]Object, len(v))
	for _, o := range v {
		m[o.ID] = o
	}
	return m
}
