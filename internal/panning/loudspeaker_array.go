// Package panning implements the gain-calculation algorithms that turn a
// source position into a loudspeaker gain vector: vector-base amplitude
// panning over an arbitrary triangulated array, its ambisonic-decode
// cousin AllRAD, and a compensated-amplitude variant for head-tracked
// listening.
package panning

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/objectmodel"
)

// Triplet names three loudspeaker indices spanning one facet of a 3D
// array's triangulation.
type Triplet [3]int

// Pair names two loudspeaker indices spanning one segment of a 2D
// (horizontal-only) array's circular layout.
type Pair [2]int

// Subwoofer describes one subwoofer output: the physical channel it
// drives and the mixing weight applied to each regular loudspeaker
// signal when deriving its feed.
type Subwoofer struct {
	ChannelIndex int
	Weights      []float64
}

// LoudspeakerArray holds the physical (or virtual) positions and the
// triangulation (3D) or segmentation (2D) used by VBAP and AllRAD,
// plus the output-stage description: physical channel assignment,
// per-output gain/delay trim, and subwoofer mixing.
// Indices into Positions are the renderer-internal loudspeaker indices;
// ChannelIndices (when set) maps them onto physical output channels.
// Exactly one of Triplets or Pairs is populated, selected by Is2D.
type LoudspeakerArray struct {
	Positions []objectmodel.Position
	Triplets  []Triplet
	Pairs     []Pair
	Is2D      bool

	// IsInfinite declares the loudspeakers to be at infinity (a
	// plane-wave array): listener motion then never re-centres the
	// panning matrices.
	IsInfinite bool

	// ChannelIndices maps loudspeaker index to physical output channel.
	// Nil means the identity mapping.
	ChannelIndices []int

	// GainAdjust (linear) and DelayAdjust (seconds) are per-loudspeaker
	// output trims. Nil means unity gain / zero delay.
	GainAdjust  []float64
	DelayAdjust []float64

	Subwoofers []Subwoofer
}

// NumSpeakers reports the array's regular loudspeaker count.
func (a *LoudspeakerArray) NumSpeakers() int { return len(a.Positions) }

// NumSubwoofers reports the subwoofer count.
func (a *LoudspeakerArray) NumSubwoofers() int { return len(a.Subwoofers) }

// OutputChannel returns the physical output channel of loudspeaker i.
func (a *LoudspeakerArray) OutputChannel(i int) int {
	if a.ChannelIndices == nil {
		return i
	}
	return a.ChannelIndices[i]
}

// NumOutputChannels reports the size of the physical output bus: one
// past the highest channel index referenced by any loudspeaker or
// subwoofer. Unreferenced channels inside that range are filled with
// silence by the renderer.
func (a *LoudspeakerArray) NumOutputChannels() int {
	max := -1
	for i := range a.Positions {
		if ch := a.OutputChannel(i); ch > max {
			max = ch
		}
	}
	for _, sub := range a.Subwoofers {
		if sub.ChannelIndex > max {
			max = sub.ChannelIndex
		}
	}
	return max + 1
}

// Gain returns the linear output trim gain of loudspeaker i.
func (a *LoudspeakerArray) Gain(i int) float64 {
	if a.GainAdjust == nil {
		return 1
	}
	return a.GainAdjust[i]
}

// Delay returns the output trim delay of loudspeaker i in seconds.
func (a *LoudspeakerArray) Delay(i int) float64 {
	if a.DelayAdjust == nil {
		return 0
	}
	return a.DelayAdjust[i]
}

// Validate checks that every triplet/pair references valid speaker
// indices and that the output-stage description is internally
// consistent.
func (a *LoudspeakerArray) Validate() error {
	n := len(a.Positions)
	if a.Is2D {
		for i, p := range a.Pairs {
			for _, idx := range p {
				if idx < 0 || idx >= n {
					return fmt.Errorf("panning: pair %d references out-of-range speaker %d", i, idx)
				}
			}
		}
	} else {
		for i, tr := range a.Triplets {
			for _, idx := range tr {
				if idx < 0 || idx >= n {
					return fmt.Errorf("panning: triplet %d references out-of-range speaker %d", i, idx)
				}
			}
		}
	}
	if a.ChannelIndices != nil && len(a.ChannelIndices) != n {
		return fmt.Errorf("panning: ChannelIndices has %d entries for %d loudspeakers", len(a.ChannelIndices), n)
	}
	if a.GainAdjust != nil && len(a.GainAdjust) != n {
		return fmt.Errorf("panning: GainAdjust has %d entries for %d loudspeakers", len(a.GainAdjust), n)
	}
	if a.DelayAdjust != nil && len(a.DelayAdjust) != n {
		return fmt.Errorf("panning: DelayAdjust has %d entries for %d loudspeakers", len(a.DelayAdjust), n)
	}
	seen := map[int]bool{}
	for i := range a.Positions {
		ch := a.OutputChannel(i)
		if ch < 0 {
			return fmt.Errorf("panning: loudspeaker %d has negative output channel %d", i, ch)
		}
		if seen[ch] {
			return fmt.Errorf("panning: output channel %d assigned to more than one loudspeaker", ch)
		}
		seen[ch] = true
	}
	for i, sub := range a.Subwoofers {
		if sub.ChannelIndex < 0 {
			return fmt.Errorf("panning: subwoofer %d has negative output channel %d", i, sub.ChannelIndex)
		}
		if seen[sub.ChannelIndex] {
			return fmt.Errorf("panning: output channel %d assigned to more than one output", sub.ChannelIndex)
		}
		seen[sub.ChannelIndex] = true
		if len(sub.Weights) != n {
			return fmt.Errorf("panning: subwoofer %d has %d weights for %d loudspeakers", i, len(sub.Weights), n)
		}
	}
	return nil
}

// RegularPolygonArray builds a 2D loudspeaker ring from the given
// azimuths (radians, 0 = front, increasing counter-clockwise), with one
// segment between each pair of azimuthally adjacent speakers.
func RegularPolygonArray(azimuths []float64) *LoudspeakerArray {
	n := len(azimuths)
	positions := make([]objectmodel.Position, n)
	for i, az := range azimuths {
		positions[i] = objectmodel.FromSpherical(az, 0)
	}
	order := sortedByAzimuth(azimuths)
	// A 2-speaker array has only one physical segment between the pair;
	// closing the wrap would re-add the same two speakers reversed and
	// double-count every source panned between them.
	numSegments := n
	if n == 2 {
		numSegments = 1
	}
	pairs := make([]Pair, 0, numSegments)
	for k := 0; k < numSegments; k++ {
		i := order[k]
		j := order[(k+1)%n]
		pairs = append(pairs, Pair{i, j})
	}
	return &LoudspeakerArray{Positions: positions, Pairs: pairs, Is2D: true}
}

func sortedByAzimuth(azimuths []float64) []int {
	order := make([]int, len(azimuths))
	for i := range order {
		order[i] = i
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && azimuths[order[j-1]] > azimuths[order[j]]; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
	return order
}
