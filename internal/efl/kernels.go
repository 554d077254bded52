// Package efl provides the aligned numeric vector kernels that every DSP
// atom in rcl and rbbl is built on: a single source of truth for SIMD
// alignment checks and elementwise arithmetic over raw float slices.
package efl

// Status is the result code returned by every kernel. Kernels never panic
// on bad input; they report it here instead.
type Status int

const (
	NoError Status = iota
	AlignmentError
	InvalidArgument
	LogicError
)

func (s Status) String() string {
	switch s {
	case NoError:
		return "noError"
	case AlignmentError:
		return "alignmentError"
	case InvalidArgument:
		return "invalidArgument"
	case LogicError:
		return "logicError"
	default:
		return "unknown"
	}
}

// checkAligned reports whether ptr-independent "alignment" holds for a Go
// slice. Go slices backed by make() are always naturally aligned for their
// element type, so the alignment parameter here expresses a *stride*
// requirement (the element count must be a multiple of the alignment
// granularity) rather than a pointer-address requirement, which is the
// property that matters once these slices are carved out of the
// CommunicationArea's single backing store.
func checkAligned(length, alignment int) bool {
	if alignment <= 1 {
		return true
	}
	return length%alignment == 0
}

func Zero(out []float64, alignment int) Status {
	if !checkAligned(len(out), alignment) {
		return AlignmentError
	}
	for i := range out {
		out[i] = 0
	}
	return NoError
}

func Fill(out []float64, value float64, alignment int) Status {
	if !checkAligned(len(out), alignment) {
		return AlignmentError
	}
	for i := range out {
		out[i] = value
	}
	return NoError
}

// Ramp fills out with a linear ramp from start to end. If inclusive is
// true, out[len(out)-1] == end; otherwise end is the value one sample past
// the last written sample (matching a block whose next block starts there).
func Ramp(out []float64, start, end float64, inclusive bool, alignment int) Status {
	n := len(out)
	if !checkAligned(n, alignment) {
		return AlignmentError
	}
	if n == 0 {
		return NoError
	}
	if n == 1 {
		out[0] = start
		return NoError
	}
	denom := float64(n - 1)
	if !inclusive {
		denom = float64(n)
	}
	step := (end - start) / denom
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return NoError
}

func Copy(out, in []float64, alignment int) Status {
	if len(out) != len(in) {
		return InvalidArgument
	}
	if !checkAligned(len(out), alignment) {
		return AlignmentError
	}
	copy(out, in)
	return NoError
}

// CopyStrided copies n elements from in (read with inStride) to out
// (written with outStride).
func CopyStrided(out, in []float64, n, outStride, inStride int) Status {
	if outStride <= 0 || inStride <= 0 {
		return InvalidArgument
	}
	if len(in) < 1+(n-1)*inStride || len(out) < 1+(n-1)*outStride {
		return InvalidArgument
	}
	for i := 0; i < n; i++ {
		out[i*outStride] = in[i*inStride]
	}
	return NoError
}

func sameLen(alignment int, slices ...[]float64) Status {
	if len(slices) == 0 {
		return InvalidArgument
	}
	n := len(slices[0])
	for _, s := range slices[1:] {
		if len(s) != n {
			return InvalidArgument
		}
	}
	if !checkAligned(n, alignment) {
		return AlignmentError
	}
	return NoError
}

func Add(out, a, b []float64, alignment int) Status {
	if st := sameLen(alignment, out, a, b); st != NoError {
		return st
	}
	for i := range out {
		out[i] = a[i] + b[i]
	}
	return NoError
}

func AddInplace(accum, b []float64, alignment int) Status {
	if st := sameLen(alignment, accum, b); st != NoError {
		return st
	}
	for i := range accum {
		accum[i] += b[i]
	}
	return NoError
}

func AddConstant(out, in []float64, c float64, alignment int) Status {
	if st := sameLen(alignment, out, in); st != NoError {
		return st
	}
	for i := range out {
		out[i] = in[i] + c
	}
	return NoError
}

func AddConstantInplace(accum []float64, c float64, alignment int) Status {
	if !checkAligned(len(accum), alignment) {
		return AlignmentError
	}
	for i := range accum {
		accum[i] += c
	}
	return NoError
}

func Subtract(out, a, b []float64, alignment int) Status {
	if st := sameLen(alignment, out, a, b); st != NoError {
		return st
	}
	for i := range out {
		out[i] = a[i] - b[i]
	}
	return NoError
}

func SubtractInplace(accum, b []float64, alignment int) Status {
	if st := sameLen(alignment, accum, b); st != NoError {
		return st
	}
	for i := range accum {
		accum[i] -= b[i]
	}
	return NoError
}

func SubtractConstant(out, in []float64, c float64, alignment int) Status {
	return AddConstant(out, in, -c, alignment)
}

func SubtractConstantInplace(accum []float64, c float64, alignment int) Status {
	return AddConstantInplace(accum, -c, alignment)
}

func Multiply(out, a, b []float64, alignment int) Status {
	if st := sameLen(alignment, out, a, b); st != NoError {
		return st
	}
	for i := range out {
		out[i] = a[i] * b[i]
	}
	return NoError
}

func MultiplyInplace(accum, b []float64, alignment int) Status {
	if st := sameLen(alignment, accum, b); st != NoError {
		return st
	}
	for i := range accum {
		accum[i] *= b[i]
	}
	return NoError
}

func MultiplyConstant(out, in []float64, c float64, alignment int) Status {
	if st := sameLen(alignment, out, in); st != NoError {
		return st
	}
	for i := range out {
		out[i] = in[i] * c
	}
	return NoError
}

func MultiplyConstantInplace(accum []float64, c float64, alignment int) Status {
	if !checkAligned(len(accum), alignment) {
		return AlignmentError
	}
	for i := range accum {
		accum[i] *= c
	}
	return NoError
}

// MultiplyAdd computes out = a*b + c elementwise.
func MultiplyAdd(out, a, b, c []float64, alignment int) Status {
	if st := sameLen(alignment, out, a, b, c); st != NoError {
		return st
	}
	for i := range out {
		out[i] = a[i]*b[i] + c[i]
	}
	return NoError
}

// MultiplyAddInplace computes accum += a*b elementwise.
func MultiplyAddInplace(accum, a, b []float64, alignment int) Status {
	if st := sameLen(alignment, accum, a, b); st != NoError {
		return st
	}
	for i := range accum {
		accum[i] += a[i] * b[i]
	}
	return NoError
}

// ConstantScaledMac computes accum += gain*in elementwise.
func ConstantScaledMac(accum, in []float64, gain float64, alignment int) Status {
	if st := sameLen(alignment, accum, in); st != NoError {
		return st
	}
	for i := range accum {
		accum[i] += gain * in[i]
	}
	return NoError
}

// RampScaledMac computes, elementwise:
//
//	y = baseGain*x + rampGain*ramp*x
//
// writing into out, or accumulating into out when accumulate is true. ramp
// is typically a 0..1 linear ramp supplied by the caller (e.g. from Ramp).
func RampScaledMac(out, x, ramp []float64, baseGain, rampGain float64, accumulate bool, alignment int) Status {
	if st := sameLen(alignment, out, x, ramp); st != NoError {
		return st
	}
	for i := range out {
		v := baseGain*x[i] + rampGain*ramp[i]*x[i]
		if accumulate {
			out[i] += v
		} else {
			out[i] = v
		}
	}
	return NoError
}
