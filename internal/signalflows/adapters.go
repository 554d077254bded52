// Package signalflows composes the graph atoms from rcl, objectrender,
// and reverbobject into the top-level renderer signal flows: the full
// object-to-loudspeaker path, the baseline wrapper coupling it to scene
// ingestion, and the outer renderer with listener tracking.
package signalflows

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/pml"
)

// matrixVectorFlattener bridges a Shared row-major MatrixParameter output
// (as ReverbParameterCalculator emits for per-(slot,reflection) gains and
// delays) into a DoubleBuffered VectorParameter input of the same total
// size (as DelayVector's optional gain/delay ports expect). The two
// atoms it connects disagree on both parameter type and protocol, so
// they cannot be joined by a plain graph.ParameterConnection.
type matrixVectorFlattener struct {
	graph.Base
	in  *graph.ParameterPort // *pml.Shared[pml.MatrixParameter]
	out *graph.ParameterPort // *pml.DoubleBuffered[pml.VectorParameter]
	size int
}

func newMatrixVectorFlattener(name string, size int) *matrixVectorFlattener {
	f := &matrixVectorFlattener{Base: graph.NewBase(name), size: size}
	inCell := pml.NewShared(pml.NewMatrixParameter(1, size))
	f.in = f.AddParameterPort(graph.NewParameterPort(f, "in", graph.Input, "matrix", graph.Shared, inCell))
	outCell := pml.NewDoubleBuffered(pml.NewVectorParameter(size))
	f.out = f.AddParameterPort(graph.NewParameterPort(f, "out", graph.Output, "vector", graph.DoubleBuffered, outCell))
	return f
}

func (f *matrixVectorFlattener) Input() *graph.ParameterPort  { return f.in }
func (f *matrixVectorFlattener) Output() *graph.ParameterPort { return f.out }

func (f *matrixVectorFlattener) Process(ctx *graph.SignalFlowContext) error {
	m := f.in.Cell.(*pml.Shared[pml.MatrixParameter]).Get()
	if len(m.Values) != f.size {
		return fmt.Errorf("signalflows: matrixVectorFlattener %s: expected %d values, got %d", f.Name(), f.size, len(m.Values))
	}
	v := pml.NewVectorParameter(f.size)
	copy(v.Values, m.Values)
	out := f.out.Cell.(*pml.DoubleBuffered[pml.VectorParameter])
	out.SetBack(v)
	out.Publish()
	return nil
}

// biquadBankSplitter bridges a DoubleBuffered BiquadBankParameter output
// (one BiquadParameterList per channel, as ReverbParameterCalculator
// emits for the discrete-reflection wall filters) into numChannels
// separate DoubleBuffered BiquadParameterList ports, one per
// rcl.BiquadIirFilter.CoefficientPort.
type biquadBankSplitter struct {
	graph.Base
	in      *graph.ParameterPort // *pml.DoubleBuffered[pml.BiquadBankParameter]
	outputs []*graph.ParameterPort // *pml.DoubleBuffered[pml.BiquadParameterList], one per channel
}

func newBiquadBankSplitter(name string, numChannels, numSections int) *biquadBankSplitter {
	s := &biquadBankSplitter{Base: graph.NewBase(name)}
	_ = numSections
	inCell := pml.NewDoubleBuffered(pml.BiquadBankParameter{Channels: make([]pml.BiquadParameterList, numChannels)})
	s.in = s.AddParameterPort(graph.NewParameterPort(s, "in", graph.Input, "biquadBank", graph.DoubleBuffered, inCell))
	s.outputs = make([]*graph.ParameterPort, numChannels)
	for ch := 0; ch < numChannels; ch++ {
		cell := pml.NewDoubleBuffered(pml.BiquadParameterList{})
		s.outputs[ch] = s.AddParameterPort(graph.NewParameterPort(s, fmt.Sprintf("out%d", ch), graph.Output, "biquadList", graph.DoubleBuffered, cell))
	}
	return s
}

func (s *biquadBankSplitter) Input() *graph.ParameterPort          { return s.in }
func (s *biquadBankSplitter) ChannelOutput(ch int) *graph.ParameterPort { return s.outputs[ch] }

func (s *biquadBankSplitter) Process(ctx *graph.SignalFlowContext) error {
	bank := s.in.Cell.(*pml.DoubleBuffered[pml.BiquadBankParameter])
	if !bank.Changed() {
		return nil
	}
	front := bank.Front()
	if len(front.Channels) != len(s.outputs) {
		return fmt.Errorf("signalflows: biquadBankSplitter %s: expected %d channels, got %d", s.Name(), len(s.outputs), len(front.Channels))
	}
	for ch, port := range s.outputs {
		out := port.Cell.(*pml.DoubleBuffered[pml.BiquadParameterList])
		out.SetBack(front.Channels[ch].Clone())
		out.Publish()
	}
	return nil
}
