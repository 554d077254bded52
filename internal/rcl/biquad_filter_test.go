package rcl

import (
	"testing"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/pml"
	"github.com/san-kum/dynrenderer/internal/rbbl/biquad"
)

func TestBiquadIirFilterIdentityIsPassThrough(t *testing.T) {
	const blockSize = 4
	f, err := NewBiquadIirFilter("bq", 1, 2)
	if err != nil {
		t.Fatalf("NewBiquadIirFilter: %v", err)
	}
	in := bindFlat(f.Input(), 1, blockSize)
	out := bindFlat(f.Output(), 1, blockSize)
	for i := range in[0] {
		in[0][i] = float64(i + 1)
	}

	ctx := &graph.SignalFlowContext{BlockSize: blockSize, SamplingFrequency: 48000, Alignment: 1}
	if err := f.Process(ctx); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, v := range out[0] {
		if v != in[0][i] {
			t.Fatalf("out[%d] = %v, want %v (identity)", i, v, in[0][i])
		}
	}
}

func TestBiquadIirFilterAppliesNewCoefficientsOnChange(t *testing.T) {
	const blockSize = 4
	f, err := NewBiquadIirFilter("bq", 1, 1)
	if err != nil {
		t.Fatalf("NewBiquadIirFilter: %v", err)
	}
	in := bindFlat(f.Input(), 1, blockSize)
	out := bindFlat(f.Output(), 1, blockSize)
	for i := range in[0] {
		in[0][i] = 1
	}

	// A pure-gain section (b0=2, everything else 0) should double the input.
	cell := f.CoefficientPort(0).Cell.(*pml.DoubleBuffered[pml.BiquadParameterList])
	cell.SetBack(pml.BiquadParameterList{Sections: []biquad.Coefficients{{B0: 2}}})
	cell.Publish()

	ctx := &graph.SignalFlowContext{BlockSize: blockSize, SamplingFrequency: 48000, Alignment: 1}
	if err := f.Process(ctx); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, v := range out[0] {
		if v != 2 {
			t.Fatalf("out[%d] = %v, want 2", i, v)
		}
	}
}
