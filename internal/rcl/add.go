// Package rcl ("render component library") implements the atomic DSP
// components the top-level renderer composes: signal combination and
// routing, the interpolated delay/gain/filter atoms, and the
// frequency-domain transform pair, all as graph.AtomicComponent values
// wrapping the numeric engines in rbbl.
package rcl

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/efl"
	"github.com/san-kum/dynrenderer/internal/graph"
)

// Add sums numInputs equal-width audio inputs into one output, the
// explicit fan-in atom every audio input port with more than one
// logical contributor must be routed through.
type Add struct {
	graph.Base
	inputs []*graph.AudioPort
	out    *graph.AudioPort
}

// NewAdd constructs an Add with numInputs input ports ("in0".."inN-1"),
// each of the given width, summing into one output port of the same
// width.
func NewAdd(name string, width, numInputs int) *Add {
	a := &Add{Base: graph.NewBase(name)}
	a.inputs = make([]*graph.AudioPort, numInputs)
	for i := 0; i < numInputs; i++ {
		a.inputs[i] = a.AddAudioPort(graph.NewAudioPort(a, portName("in", i), graph.Input, width))
	}
	a.out = a.AddAudioPort(graph.NewAudioPort(a, "out", graph.Output, width))
	return a
}

// Input returns the i-th input port, for wiring connections.
func (a *Add) Input(i int) *graph.AudioPort { return a.inputs[i] }

// Output returns the sum output port.
func (a *Add) Output() *graph.AudioPort { return a.out }

func (a *Add) Process(ctx *graph.SignalFlowContext) error {
	align := ctx.KernelAlignment()
	for ch := 0; ch < a.out.Width; ch++ {
		out := a.out.Channel(ch)
		if st := efl.Zero(out, align); st != efl.NoError {
			return fmt.Errorf("Add: zero kernel: %v", st)
		}
		for _, in := range a.inputs {
			if st := efl.AddInplace(out, in.Channel(ch), align); st != efl.NoError {
				return fmt.Errorf("Add: add kernel: %v", st)
			}
		}
	}
	return nil
}

func portName(prefix string, i int) string {
	const digits = "0123456789"
	if i < 10 {
		return prefix + string(digits[i])
	}
	// fall back to a simple manual itoa for indices >= 10
	var buf []byte
	n := i
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return prefix + string(buf)
}
