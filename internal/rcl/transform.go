package rcl

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/fft"
	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/pml"
)

// SpectrumParameter carries one complex spectrum per channel between a
// TimeFrequencyTransform and its matching InverseTransform.
type SpectrumParameter struct {
	Channels [][]complex128
}

// TimeFrequencyTransform converts numberOfChannels time-domain inputs,
// zero-padded to dftLength, into their complex spectra, published on a
// Shared parameter output for frequency-domain atoms (e.g. a subband
// analysis stage) to consume within the same block.
type TimeFrequencyTransform struct {
	graph.Base
	in       *graph.AudioPort
	spectrum *graph.ParameterPort // *pml.Shared[SpectrumParameter]
	provider fft.Provider
}

// NewTimeFrequencyTransform constructs the atom. dftLength must be >=
// blockLength.
func NewTimeFrequencyTransform(name string, numberOfChannels, blockLength, dftLength int, fftProviderName string) (*TimeFrequencyTransform, error) {
	if dftLength < blockLength {
		return nil, fmt.Errorf("rcl: TimeFrequencyTransform: dftLength must be >= blockLength")
	}
	provider, err := fft.Select(providerOrDefault(fftProviderName), dftLength)
	if err != nil {
		return nil, fmt.Errorf("rcl: TimeFrequencyTransform: %w", err)
	}
	t := &TimeFrequencyTransform{Base: graph.NewBase(name), provider: provider}
	t.in = t.AddAudioPort(graph.NewAudioPort(t, "in", graph.Input, numberOfChannels))

	channels := make([][]complex128, numberOfChannels)
	for i := range channels {
		channels[i] = make([]complex128, dftLength)
	}
	cell := pml.NewShared(SpectrumParameter{Channels: channels})
	t.spectrum = t.AddParameterPort(graph.NewParameterPort(t, "spectrum", graph.Output, "spectrum", graph.Shared, cell))
	return t, nil
}

// Input exposes the audio input port for wiring.
func (t *TimeFrequencyTransform) Input() *graph.AudioPort { return t.in }

// SpectrumOutput exposes the spectrum parameter port for wiring.
func (t *TimeFrequencyTransform) SpectrumOutput() *graph.ParameterPort { return t.spectrum }

func (t *TimeFrequencyTransform) Process(ctx *graph.SignalFlowContext) error {
	cell := t.spectrum.Cell.(*pml.Shared[SpectrumParameter])
	param := cell.Get()
	dftLength := t.provider.Size()
	for ch := 0; ch < t.in.Width; ch++ {
		row := t.in.Channel(ch)
		windowed := make([]complex128, dftLength)
		for i, v := range row {
			windowed[i] = complex(v, 0)
		}
		param.Channels[ch] = t.provider.Forward(windowed)
	}
	cell.Set(param)
	return nil
}

// InverseTransform converts a complex spectrum parameter input back to
// numberOfChannels time-domain outputs of blockLength samples (the first
// blockLength samples of the inverse DFT).
type InverseTransform struct {
	graph.Base
	out      *graph.AudioPort
	spectrum *graph.ParameterPort // *pml.Shared[SpectrumParameter]
	provider fft.Provider
	blockLen int
}

// NewInverseTransform constructs the atom.
func NewInverseTransform(name string, numberOfChannels, blockLength, dftLength int, fftProviderName string) (*InverseTransform, error) {
	if dftLength < blockLength {
		return nil, fmt.Errorf("rcl: InverseTransform: dftLength must be >= blockLength")
	}
	provider, err := fft.Select(providerOrDefault(fftProviderName), dftLength)
	if err != nil {
		return nil, fmt.Errorf("rcl: InverseTransform: %w", err)
	}
	t := &InverseTransform{Base: graph.NewBase(name), provider: provider, blockLen: blockLength}
	t.out = t.AddAudioPort(graph.NewAudioPort(t, "out", graph.Output, numberOfChannels))

	channels := make([][]complex128, numberOfChannels)
	for i := range channels {
		channels[i] = make([]complex128, dftLength)
	}
	cell := pml.NewShared(SpectrumParameter{Channels: channels})
	t.spectrum = t.AddParameterPort(graph.NewParameterPort(t, "spectrum", graph.Input, "spectrum", graph.Shared, cell))
	return t, nil
}

// Output exposes the audio output port for wiring.
func (t *InverseTransform) Output() *graph.AudioPort { return t.out }

// SpectrumInput exposes the spectrum parameter port for wiring.
func (t *InverseTransform) SpectrumInput() *graph.ParameterPort { return t.spectrum }

func (t *InverseTransform) Process(ctx *graph.SignalFlowContext) error {
	cell := t.spectrum.Cell.(*pml.Shared[SpectrumParameter])
	param := cell.Get()
	for ch := 0; ch < t.out.Width; ch++ {
		timeDomain := t.provider.Inverse(param.Channels[ch])
		out := t.out.Channel(ch)
		for i := 0; i < t.blockLen; i++ {
			out[i] = real(timeDomain[i])
		}
	}
	return nil
}
