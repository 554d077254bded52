package rcl

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/pml"
	"github.com/san-kum/dynrenderer/internal/rbbl/biquad"
)

// BiquadIirFilter is the audio atom wrapping rbbl/biquad.Bank: N channels
// x B cascaded sections, with new coefficients delivered through a
// double-buffered parameter input, one BiquadParameterList per channel.
type BiquadIirFilter struct {
	graph.Base
	in, out *graph.AudioPort
	coeffs  []*graph.ParameterPort // one per channel, *pml.DoubleBuffered[pml.BiquadParameterList]
	bank    *biquad.Bank

	inScratch, outScratch [][]float64
}

// NewBiquadIirFilter constructs the atom with every section initialised
// to the identity filter.
func NewBiquadIirFilter(name string, numChannels, numSections int) (*BiquadIirFilter, error) {
	bank, err := biquad.NewBank(numChannels, numSections)
	if err != nil {
		return nil, fmt.Errorf("rcl: BiquadIirFilter: %w", err)
	}
	f := &BiquadIirFilter{Base: graph.NewBase(name), bank: bank}
	f.inScratch = make([][]float64, numChannels)
	f.outScratch = make([][]float64, numChannels)
	f.in = f.AddAudioPort(graph.NewAudioPort(f, "in", graph.Input, numChannels))
	f.out = f.AddAudioPort(graph.NewAudioPort(f, "out", graph.Output, numChannels))

	f.coeffs = make([]*graph.ParameterPort, numChannels)
	for ch := 0; ch < numChannels; ch++ {
		sections := make([]biquad.Coefficients, numSections)
		for s := range sections {
			sections[s] = biquad.Identity()
		}
		cell := pml.NewDoubleBuffered(pml.BiquadParameterList{Sections: sections})
		f.coeffs[ch] = f.AddParameterPort(graph.NewParameterPort(f, portName("coeffs", ch), graph.Input, "biquadList", graph.DoubleBuffered, cell))
	}
	return f, nil
}

// Input and Output expose the audio ports for wiring.
func (f *BiquadIirFilter) Input() *graph.AudioPort  { return f.in }
func (f *BiquadIirFilter) Output() *graph.AudioPort { return f.out }

// CoefficientPort returns the double-buffered coefficient input port for
// one channel, for wiring from a calculator or for direct test use.
func (f *BiquadIirFilter) CoefficientPort(channel int) *graph.ParameterPort {
	return f.coeffs[channel]
}

func (f *BiquadIirFilter) Process(ctx *graph.SignalFlowContext) error {
	for ch, port := range f.coeffs {
		cell := port.Cell.(*pml.DoubleBuffered[pml.BiquadParameterList])
		if cell.Changed() {
			list := cell.Front()
			for section, c := range list.Sections {
				if err := f.bank.SetCoefficients(ch, section, c); err != nil {
					return fmt.Errorf("BiquadIirFilter: %w", err)
				}
			}
		}
	}

	for ch := 0; ch < f.in.Width; ch++ {
		f.inScratch[ch] = f.in.Channel(ch)
	}
	for ch := 0; ch < f.out.Width; ch++ {
		f.outScratch[ch] = f.out.Channel(ch)
	}
	return f.bank.Process(f.inScratch, f.outScratch)
}
