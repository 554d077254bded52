package rcl

import (
	"testing"

	"github.com/san-kum/dynrenderer/internal/graph"
)

func TestNullSourceIsSilent(t *testing.T) {
	n := NewNullSource("null", 3)
	out := bindFlat(n.Output(), 3, 8)
	for ch := range out {
		for i := range out[ch] {
			out[ch][i] = 1 // pollute so we can tell Process actually zeroed it
		}
	}
	ctx := &graph.SignalFlowContext{BlockSize: 8, SamplingFrequency: 48000, Alignment: 1}
	if err := n.Process(ctx); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for ch := range out {
		for i, v := range out[ch] {
			if v != 0 {
				t.Fatalf("out[%d][%d] = %v, want 0", ch, i, v)
			}
		}
	}
}

func TestSignalRoutingMapsAndSilencesUnmapped(t *testing.T) {
	s := NewSignalRouting("route", 2, 3, []ChannelRoute{{Input: 0, Output: 2}})
	in := bindFlat(s.Input(), 2, 4)
	out := bindFlat(s.Output(), 3, 4)
	for i := range in[0] {
		in[0][i] = 5
		in[1][i] = 9
	}

	ctx := &graph.SignalFlowContext{BlockSize: 4, SamplingFrequency: 48000, Alignment: 1}
	if err := s.Process(ctx); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i := 0; i < 4; i++ {
		if out[0][i] != 0 || out[1][i] != 0 {
			t.Fatalf("unmapped outputs should be silent, got %v %v", out[0][i], out[1][i])
		}
		if out[2][i] != 5 {
			t.Fatalf("out[2][%d] = %v, want 5", i, out[2][i])
		}
	}
}

func TestSignalRoutingOutOfRangeEntryIgnored(t *testing.T) {
	s := NewSignalRouting("route", 1, 1, []ChannelRoute{{Input: 5, Output: 0}})
	_ = bindFlat(s.Input(), 1, 2)
	out := bindFlat(s.Output(), 1, 2)
	ctx := &graph.SignalFlowContext{BlockSize: 2, SamplingFrequency: 48000, Alignment: 1}
	if err := s.Process(ctx); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for _, v := range out[0] {
		if v != 0 {
			t.Fatalf("expected silence for out-of-range route, got %v", v)
		}
	}
}

func TestSignalRoutingSetRoutingTakesEffectNextBlock(t *testing.T) {
	s := NewSignalRouting("route", 1, 1, nil)
	in := bindFlat(s.Input(), 1, 2)
	out := bindFlat(s.Output(), 1, 2)
	in[0][0], in[0][1] = 7, 8

	ctx := &graph.SignalFlowContext{BlockSize: 2, SamplingFrequency: 48000, Alignment: 1}
	if err := s.Process(ctx); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out[0][0] != 0 {
		t.Fatalf("expected silence before routing set")
	}
	s.SetRouting([]ChannelRoute{{Input: 0, Output: 0}})
	if err := s.Process(ctx); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out[0][0] != 7 || out[0][1] != 8 {
		t.Fatalf("routing not applied: got %v %v", out[0][0], out[0][1])
	}
}
