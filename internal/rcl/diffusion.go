package rcl

import (
	"fmt"
	"math"

	"github.com/san-kum/dynrenderer/internal/graph"
)

// SingleToMultichannelDiffusion takes one input and produces
// numberOfOutputs decorrelated outputs, each the input convolved with a
// fixed short FIR drawn from a supplied decorrelation filter matrix
// (one row per output), scaled by a single normalising gain (default
// 1/sqrt(numberOfOutputs) so the summed output approximates the input
// energy).
type SingleToMultichannelDiffusion struct {
	graph.Base
	in, out *graph.AudioPort
	filters [][]float64 // [output][taps]
	history [][]float64 // [output][taps-1] tail carried across blocks
	scratch [][]float64 // [output] history+block work buffer, sized on first block
	gain    float64
}

// NewSingleToMultichannelDiffusion constructs the atom. filters must have
// exactly numberOfOutputs rows. If gain is <= 0, it defaults to
// 1/sqrt(numberOfOutputs).
func NewSingleToMultichannelDiffusion(name string, numberOfOutputs int, filters [][]float64, gain float64) (*SingleToMultichannelDiffusion, error) {
	if len(filters) != numberOfOutputs {
		return nil, fmt.Errorf("rcl: SingleToMultichannelDiffusion: expected %d filter rows, got %d", numberOfOutputs, len(filters))
	}
	if gain <= 0 {
		gain = 1 / math.Sqrt(float64(numberOfOutputs))
	}
	d := &SingleToMultichannelDiffusion{Base: graph.NewBase(name), gain: gain}
	d.in = d.AddAudioPort(graph.NewAudioPort(d, "in", graph.Input, 1))
	d.out = d.AddAudioPort(graph.NewAudioPort(d, "out", graph.Output, numberOfOutputs))

	d.filters = make([][]float64, numberOfOutputs)
	d.history = make([][]float64, numberOfOutputs)
	d.scratch = make([][]float64, numberOfOutputs)
	for i, row := range filters {
		d.filters[i] = append([]float64(nil), row...)
		tail := 0
		if len(row) > 1 {
			tail = len(row) - 1
		}
		d.history[i] = make([]float64, tail)
	}
	return d, nil
}

// Input and Output expose the audio ports for wiring.
func (d *SingleToMultichannelDiffusion) Input() *graph.AudioPort  { return d.in }
func (d *SingleToMultichannelDiffusion) Output() *graph.AudioPort { return d.out }

func (d *SingleToMultichannelDiffusion) Process(ctx *graph.SignalFlowContext) error {
	in := d.in.Channel(0)
	n := ctx.BlockSize

	for ch := 0; ch < d.out.Width; ch++ {
		filter := d.filters[ch]
		history := d.history[ch]
		tapCount := len(filter)
		if len(d.scratch[ch]) != len(history)+n {
			d.scratch[ch] = make([]float64, len(history)+n)
		}
		extended := d.scratch[ch]
		copy(extended, history)
		copy(extended[len(history):], in)

		out := d.out.Channel(ch)
		for i := 0; i < n; i++ {
			var acc float64
			base := len(history) + i
			for t := 0; t < tapCount; t++ {
				acc += filter[t] * extended[base-t]
			}
			out[i] = acc * d.gain
		}
		if len(history) > 0 {
			copy(history, extended[n:])
		}
	}
	return nil
}
