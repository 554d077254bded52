package rcl

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/pml"
	"github.com/san-kum/dynrenderer/internal/rbbl/gainmatrix"
)

// GainMatrix is the audio atom wrapping rbbl/gainmatrix.GainMatrix: a
// dense, time-varying numberOfInputs x numberOfOutputs gain operation
// whose target matrix arrives through a Shared parameter input.
type GainMatrix struct {
	graph.Base
	in, out  *graph.AudioPort
	gains    *graph.ParameterPort // *pml.Shared[pml.MatrixParameter]
	engine   *gainmatrix.GainMatrix
	lastSeen pml.MatrixParameter

	inScratch, outScratch [][]float64
}

// NewGainMatrix constructs the atom. interpolationSteps must be an
// integral multiple of blockLength.
func NewGainMatrix(name string, numberOfInputs, numberOfOutputs, blockLength, interpolationSteps int, initialValue float64) (*GainMatrix, error) {
	engine, err := gainmatrix.New(numberOfInputs, numberOfOutputs, blockLength, interpolationSteps, initialValue)
	if err != nil {
		return nil, fmt.Errorf("rcl: GainMatrix: %w", err)
	}
	g := &GainMatrix{Base: graph.NewBase(name), engine: engine}
	g.inScratch = make([][]float64, numberOfInputs)
	g.outScratch = make([][]float64, numberOfOutputs)
	g.in = g.AddAudioPort(graph.NewAudioPort(g, "in", graph.Input, numberOfInputs))
	g.out = g.AddAudioPort(graph.NewAudioPort(g, "out", graph.Output, numberOfOutputs))

	initial := pml.NewMatrixParameter(numberOfOutputs, numberOfInputs)
	for i := range initial.Values {
		initial.Values[i] = initialValue
	}
	cell := pml.NewShared(initial)
	g.gains = g.AddParameterPort(graph.NewParameterPort(g, "gains", graph.Input, "matrix", graph.Shared, cell))
	g.lastSeen = initial
	return g, nil
}

// Input and Output expose the audio ports for wiring.
func (g *GainMatrix) Input() *graph.AudioPort  { return g.in }
func (g *GainMatrix) Output() *graph.AudioPort { return g.out }

// GainsPort exposes the gains parameter port itself, for composites that
// wire it to a calculator's output via a graph.ParameterConnection.
func (g *GainMatrix) GainsPort() *graph.ParameterPort { return g.gains }

// SetGains overwrites the shared gain-matrix parameter cell directly,
// for callers that drive the atom without going through a producer
// component (e.g. tests, or a composite's own constant configuration).
func (g *GainMatrix) SetGains(m pml.MatrixParameter) {
	g.gains.Cell.(*pml.Shared[pml.MatrixParameter]).Set(m)
}

func toMatrix(p pml.MatrixParameter) gainmatrix.Matrix {
	m := gainmatrix.NewMatrix(p.Rows, p.Cols, 0)
	for r := 0; r < p.Rows; r++ {
		for c := 0; c < p.Cols; c++ {
			m.Set(r, c, p.At(r, c))
		}
	}
	return m
}

func (g *GainMatrix) Process(ctx *graph.SignalFlowContext) error {
	current := g.gains.Cell.(*pml.Shared[pml.MatrixParameter]).Get()
	if !sameMatrixShape(current, g.lastSeen) || !matrixEqual(current, g.lastSeen) {
		if err := g.engine.SetNewGains(toMatrix(current)); err != nil {
			return fmt.Errorf("GainMatrix: %w", err)
		}
		g.lastSeen = current
	}

	for ch := 0; ch < g.in.Width; ch++ {
		g.inScratch[ch] = g.in.Channel(ch)
	}
	for ch := 0; ch < g.out.Width; ch++ {
		g.outScratch[ch] = g.out.Channel(ch)
	}
	return g.engine.Process(g.inScratch, g.outScratch)
}

func sameMatrixShape(a, b pml.MatrixParameter) bool {
	return a.Rows == b.Rows && a.Cols == b.Cols
}

func matrixEqual(a, b pml.MatrixParameter) bool {
	if len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			return false
		}
	}
	return true
}
