// Package gainmatrix implements a dense, time-varying N-input by M-output
// gain matrix with click-free ramped transitions between gain sets spread
// over a configurable number of audio blocks.
package gainmatrix

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/efl"
)

// Matrix is a dense numberOfOutputs x numberOfInputs gain set, stored in
// the same row-major (output, input) order as the audio processing loop
// indexes it.
type Matrix struct {
	numInputs, numOutputs int
	data                  []float64
}

// NewMatrix allocates a matrix with every gain set to initialValue.
func NewMatrix(numberOfOutputs, numberOfInputs int, initialValue float64) Matrix {
	data := make([]float64, numberOfOutputs*numberOfInputs)
	for i := range data {
		data[i] = initialValue
	}
	return Matrix{numInputs: numberOfInputs, numOutputs: numberOfOutputs, data: data}
}

func (m Matrix) at(output, input int) float64    { return m.data[output*m.numInputs+input] }
func (m Matrix) set(output, input int, v float64) { m.data[output*m.numInputs+input] = v }

// NumOutputs and NumInputs report the matrix dimensions.
func (m Matrix) NumOutputs() int { return m.numOutputs }
func (m Matrix) NumInputs() int  { return m.numInputs }

// Set assigns a single gain, the (output, input) entry.
func (m Matrix) Set(output, input int, gain float64) error {
	if output < 0 || output >= m.numOutputs || input < 0 || input >= m.numInputs {
		return fmt.Errorf("gainmatrix: index (%d,%d) out of range", output, input)
	}
	m.set(output, input, gain)
	return nil
}

func (m Matrix) sameDimensions(o Matrix) bool {
	return m.numInputs == o.numInputs && m.numOutputs == o.numOutputs
}

func (m Matrix) clone() Matrix {
	data := make([]float64, len(m.data))
	copy(data, m.data)
	return Matrix{numInputs: m.numInputs, numOutputs: m.numOutputs, data: data}
}

// GainMatrix applies a potentially time-varying gain matrix to a block of
// input signals, producing a block of output signals. When a new gain set
// is installed mid-transition, the current interpolated gains become the
// new starting point rather than snapping, so successive gain changes
// never click.
type GainMatrix struct {
	previous, next Matrix
	blockSize       int
	interpPeriods   int // interpolation length in blocks
	interpCounter   int
	ramp            []float64 // length (interpPeriods+1)*blockSize
}

// New constructs a gain matrix. interpolationSteps must be an integral
// multiple of blockLength; it is the number of audio samples over which a
// gain change is ramped in.
func New(numberOfInputs, numberOfOutputs, blockLength, interpolationSteps int, initialValue float64) (*GainMatrix, error) {
	if numberOfInputs <= 0 || numberOfOutputs <= 0 || blockLength <= 0 {
		return nil, fmt.Errorf("gainmatrix: dimensions and blockLength must be positive")
	}
	if interpolationSteps%blockLength != 0 {
		return nil, fmt.Errorf("gainmatrix: interpolationSteps must be an integral multiple of blockLength")
	}
	periods := interpolationSteps / blockLength
	g := &GainMatrix{
		previous:      NewMatrix(numberOfOutputs, numberOfInputs, initialValue),
		next:          NewMatrix(numberOfOutputs, numberOfInputs, initialValue),
		blockSize:     blockLength,
		interpPeriods: periods,
		ramp:          make([]float64, (periods+1)*blockLength),
	}
	g.buildRamp()
	return g, nil
}

// NewWithInitialGains behaves like New but seeds both gain sets from an
// explicit matrix instead of a uniform value.
func NewWithInitialGains(numberOfInputs, numberOfOutputs, blockLength, interpolationSteps int, initial Matrix) (*GainMatrix, error) {
	g, err := New(numberOfInputs, numberOfOutputs, blockLength, interpolationSteps, 0)
	if err != nil {
		return nil, err
	}
	if initial.numOutputs != numberOfOutputs || initial.numInputs != numberOfInputs {
		return nil, fmt.Errorf("gainmatrix: initial matrix dimensions do not match")
	}
	g.previous = initial.clone()
	g.next = initial.clone()
	return g, nil
}

func (g *GainMatrix) buildRamp() {
	n := g.interpPeriods * g.blockSize
	if n > 0 {
		for i := 0; i < n; i++ {
			g.ramp[i] = float64(i+1) / float64(n)
		}
	}
	for i := n; i < len(g.ramp); i++ {
		g.ramp[i] = 1
	}
}

// SetNewGains installs a new target gain matrix; existing transitions in
// flight are captured at their current interpolation point so the change
// is click-free.
func (g *GainMatrix) SetNewGains(newGains Matrix) error {
	if !g.previous.sameDimensions(newGains) {
		return fmt.Errorf("gainmatrix: new gain matrix dimensions do not match")
	}
	if g.interpCounter >= g.interpPeriods {
		g.previous, g.next = g.next, g.previous
	} else {
		ratio := 0.0
		if g.interpPeriods > 0 {
			ratio = float64(g.interpCounter) / float64(g.interpPeriods)
		}
		for out := 0; out < g.previous.numOutputs; out++ {
			for in := 0; in < g.previous.numInputs; in++ {
				prev := g.previous.at(out, in)
				prev += ratio * (g.next.at(out, in) - prev)
				g.previous.set(out, in, prev)
			}
		}
	}
	g.next = newGains.clone()
	g.interpCounter = 0
	return nil
}

// Process filters one block through the current (possibly still ramping)
// gain matrix. input and output must have numberOfInputs and
// numberOfOutputs rows respectively, each of length matching the
// configured blockLength.
func (g *GainMatrix) Process(input, output [][]float64) error {
	if len(input) != g.previous.numInputs || len(output) != g.previous.numOutputs {
		return fmt.Errorf("gainmatrix: channel count mismatch")
	}
	for _, row := range input {
		if len(row) != g.blockSize {
			return fmt.Errorf("gainmatrix: input block length mismatch")
		}
	}
	rampPartition := g.ramp[g.blockSize*g.interpCounter : g.blockSize*(g.interpCounter+1)]

	for outIdx := 0; outIdx < g.previous.numOutputs; outIdx++ {
		outRow := output[outIdx]
		if len(outRow) != g.blockSize {
			return fmt.Errorf("gainmatrix: output block length mismatch")
		}
		efl.Zero(outRow, 1)
		for inIdx := 0; inIdx < g.previous.numInputs; inIdx++ {
			oldGain := g.previous.at(outIdx, inIdx)
			gainDiff := g.next.at(outIdx, inIdx) - oldGain
			if st := efl.RampScaledMac(outRow, input[inIdx], rampPartition, oldGain, gainDiff, true, 1); st != efl.NoError {
				return fmt.Errorf("gainmatrix: ramp-scaled MAC kernel: %v", st)
			}
		}
	}

	if g.interpCounter < g.interpPeriods {
		g.interpCounter++
	}
	return nil
}

// ProcessWithNewGains installs newGains via SetNewGains then processes one
// block, the common case when a scheduler applies a fresh set of panning
// gains every update cycle.
func (g *GainMatrix) ProcessWithNewGains(input, output [][]float64, newGains Matrix) error {
	if err := g.SetNewGains(newGains); err != nil {
		return err
	}
	return g.Process(input, output)
}
