package pml

import (
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/rbbl/biquad"
	"github.com/san-kum/dynrenderer/internal/rbbl/convolver"
)

// VectorParameter is a flat parameter value such as per-channel gains or
// delays, carried across Shared or DoubleBuffered ports.
type VectorParameter struct {
	Values []float64
}

// NewVectorParameter allocates a vector parameter of the given size,
// zero-initialised.
func NewVectorParameter(size int) VectorParameter {
	return VectorParameter{Values: make([]float64, size)}
}

// Clone returns an independent copy, so double-buffered back cells can be
// mutated without aliasing the front cell.
func (v VectorParameter) Clone() VectorParameter {
	out := make([]float64, len(v.Values))
	copy(out, v.Values)
	return VectorParameter{Values: out}
}

// MatrixParameter is a dense row-major (outputs x inputs) gain matrix
// parameter, the payload carried by GainMatrix's shared port.
type MatrixParameter struct {
	Rows, Cols int
	Values     []float64
}

// NewMatrixParameter allocates a zero-initialised matrix parameter.
func NewMatrixParameter(rows, cols int) MatrixParameter {
	return MatrixParameter{Rows: rows, Cols: cols, Values: make([]float64, rows*cols)}
}

func (m MatrixParameter) At(row, col int) float64 { return m.Values[row*m.Cols+col] }
func (m MatrixParameter) Set(row, col int, v float64) {
	m.Values[row*m.Cols+col] = v
}

// Clone returns an independent copy.
func (m MatrixParameter) Clone() MatrixParameter {
	out := make([]float64, len(m.Values))
	copy(out, m.Values)
	return MatrixParameter{Rows: m.Rows, Cols: m.Cols, Values: out}
}

// BiquadParameterList is an ordered list of biquad coefficient sets, the
// payload of a double-buffered biquad coefficient update port.
type BiquadParameterList struct {
	Sections []biquad.Coefficients
}

// Clone returns an independent copy.
func (b BiquadParameterList) Clone() BiquadParameterList {
	out := make([]biquad.Coefficients, len(b.Sections))
	copy(out, b.Sections)
	return BiquadParameterList{Sections: out}
}

// SignalRoutingParameter is the payload of a routing-table update: the
// full replacement set of (input, output, filter, gain) tuples applied at
// the next block boundary.
type SignalRoutingParameter struct {
	Entries []convolver.RoutingEntry
}

// ObjectVectorParameter carries the per-block scene-object vector, the
// payload of the top composite's scene-object parameter port: it enters
// the graph once per block and fans out, via further parameter
// connections, to every calculator atom that consumes it.
type ObjectVectorParameter struct {
	Objects objectmodel.Vector
}

// Clone returns an independent copy, so a double-buffered back cell can
// be overwritten without aliasing the previously-published front value.
func (o ObjectVectorParameter) Clone() ObjectVectorParameter {
	out := make(objectmodel.Vector, len(o.Objects))
	copy(out, o.Objects)
	return ObjectVectorParameter{Objects: out}
}

// ListenerParameter carries the listener's tracked position and aural
// axis (facing direction), the payload of the top composite's listener
// parameter port consumed by the panning calculator and by
// ListenerCompensation.
type ListenerParameter struct {
	Position  objectmodel.Position
	AuralAxis objectmodel.Position
}

// ChannelRouteEntry maps one input audio channel to one output audio
// channel, the payload element of a plain channel-routing update (as
// opposed to SignalRoutingParameter's FIR-matrix routing, which also
// carries a filter index and gain).
type ChannelRouteEntry struct {
	Input, Output int
}

// ChannelRoutingParameter is the payload of a channel-routing table
// update: the full replacement set of (input, output) pairs applied at
// the next block boundary, used by SignalRouting's optional parameter
// input.
type ChannelRoutingParameter struct {
	Entries []ChannelRouteEntry
}

// BiquadBankParameter carries one BiquadParameterList per channel of a
// biquad.Bank, the payload of a bulk coefficient-update port feeding a
// bank wider than one channel (e.g. the discrete-reflection wall-filter
// bank, one cascade per (slot, reflection) pair).
type BiquadBankParameter struct {
	Channels []BiquadParameterList
}

// Clone returns an independent copy.
func (b BiquadBankParameter) Clone() BiquadBankParameter {
	out := make([]BiquadParameterList, len(b.Channels))
	for i, c := range b.Channels {
		out[i] = c.Clone()
	}
	return BiquadBankParameter{Channels: out}
}

// IndexedValue pairs an integer slot/index with an arbitrary payload,
// used for filter-update and late-reverb messages that name which slot
// or filter index they target.
type IndexedValue struct {
	Index int
	Value any
}
