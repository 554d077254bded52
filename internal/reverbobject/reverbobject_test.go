package reverbobject

import (
	"math"
	"reflect"
	"testing"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/panning"
	"github.com/san-kum/dynrenderer/internal/pml"
	"github.com/san-kum/dynrenderer/internal/rbbl/biquad"
	"github.com/san-kum/dynrenderer/internal/rcl"
)

func ctx() *graph.SignalFlowContext {
	return &graph.SignalFlowContext{BlockSize: 4, SamplingFrequency: 48000, Alignment: 1}
}

func stereoArray() *panning.LoudspeakerArray {
	return panning.RegularPolygonArray([]float64{-math.Pi / 6, math.Pi / 6})
}

// After (add A, add B, remove A, add C), B keeps its slot and C takes
// A's old slot.
func TestSlotAllocatorKeepsExistingAndReassignsFreed(t *testing.T) {
	a, err := NewSlotAllocator(2)
	if err != nil {
		t.Fatalf("NewSlotAllocator: %v", err)
	}

	assigned, _, overflow := a.Update([]string{"A", "B"})
	if len(overflow) != 0 {
		t.Fatalf("unexpected overflow: %v", overflow)
	}
	slotA, slotB := assigned["A"], assigned["B"]

	assigned, cleared, overflow := a.Update([]string{"B", "C"})
	if len(overflow) != 0 {
		t.Fatalf("unexpected overflow: %v", overflow)
	}
	if assigned["B"] != slotB {
		t.Fatalf("B's slot changed: was %d, now %d", slotB, assigned["B"])
	}
	if assigned["C"] != slotA {
		t.Fatalf("C did not take A's freed slot: want %d, got %d", slotA, assigned["C"])
	}
	if len(cleared) != 1 || cleared[0] != slotA {
		t.Fatalf("expected slot %d cleared, got %v", slotA, cleared)
	}
}

func TestSlotAllocatorRejectsOverflow(t *testing.T) {
	a, err := NewSlotAllocator(1)
	if err != nil {
		t.Fatalf("NewSlotAllocator: %v", err)
	}
	_, _, overflow := a.Update([]string{"A", "B"})
	if len(overflow) != 1 || overflow[0] != "B" {
		t.Fatalf("expected B to overflow, got %v", overflow)
	}
}

func newReverbParameterCalculator(t *testing.T) *ReverbParameterCalculator {
	t.Helper()
	vbap, err := panning.NewVBAPCalculator(stereoArray())
	if err != nil {
		t.Fatalf("NewVBAPCalculator: %v", err)
	}
	c, err := NewReverbParameterCalculator("reverb", ReverbParameterCalculatorConfig{
		MaxReverbObjects:             2,
		MaxReflectionsPerSlot:        2,
		NumDiscreteReflectionBiquads: 2,
		NumSubbands:                  3,
		NumInputChannels:              4,
		Panner:                        vbap,
	})
	if err != nil {
		t.Fatalf("NewReverbParameterCalculator: %v", err)
	}
	return c
}

func reverbObject(id string, channel int) objectmodel.Object {
	return objectmodel.Object{
		ID:           id,
		Kind:         objectmodel.PointSourceWithReverb,
		ChannelIndex: channel,
		Level:        0.8,
		DiscreteReflections: []objectmodel.DiscreteReflection{
			{Position: objectmodel.FromSpherical(0, 0), Delay: 0.01, Level: 0.5},
		},
		LateReverbParams: objectmodel.LateReverb{
			OnsetDelay:         0.02,
			SubbandLevels:      []float64{0.5, 0.3, 0.1},
			SubbandDecayCoeffs: []float64{0.99, 0.98, 0.97},
			SubbandAttackTimes: []float64{0.005, 0.005, 0.005},
		},
	}
}

func TestReverbParameterCalculatorRoutesActiveObject(t *testing.T) {
	c := newReverbParameterCalculator(t)
	c.PushObjects(objectmodel.Vector{reverbObject("a", 2)})

	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	entries := c.routingOutput.Cell.(*pml.Shared[pml.ChannelRoutingParameter]).Get().Entries
	if len(entries) != 1 || entries[0].Input != 2 {
		t.Fatalf("got routing %+v, want one entry from input channel 2", entries)
	}
	slot := entries[0].Output

	gains := c.reflGainOutput.Cell.(*pml.Shared[pml.MatrixParameter]).Get()
	if gains.At(slot, 0) != 0.5 {
		t.Fatalf("reflection gain = %v, want 0.5", gains.At(slot, 0))
	}

	queue := c.lateReverbOutput.Cell.(*pml.MessageQueue[pml.IndexedValue])
	if queue.Len() != 1 {
		t.Fatalf("expected one late-reverb message for new slot, got %d", queue.Len())
	}
}

func TestReverbParameterCalculatorDropsDuplicateChannel(t *testing.T) {
	c := newReverbParameterCalculator(t)
	var dropped []string
	c.diagnostic = func(msg string) { dropped = append(dropped, msg) }
	c.PushObjects(objectmodel.Vector{reverbObject("a", 0), reverbObject("b", 0)})

	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	entries := c.routingOutput.Cell.(*pml.Shared[pml.ChannelRoutingParameter]).Get().Entries
	if len(entries) != 1 {
		t.Fatalf("expected only one object to reach a slot, got %d entries", len(entries))
	}
	if len(dropped) != 1 {
		t.Fatalf("expected one diagnostic for the dropped duplicate, got %v", dropped)
	}
}

func TestReverbParameterCalculatorClearedSlotSendsSilentOnce(t *testing.T) {
	c := newReverbParameterCalculator(t)
	c.PushObjects(objectmodel.Vector{reverbObject("a", 0)})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	c.lateReverbOutput.Cell.(*pml.MessageQueue[pml.IndexedValue]).DrainAll()

	c.PushObjects(objectmodel.Vector{})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process (cleared): %v", err)
	}
	msgs := c.lateReverbOutput.Cell.(*pml.MessageQueue[pml.IndexedValue]).DrainAll()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one silent message on clear, got %d", len(msgs))
	}
	lr := msgs[0].Value.(objectmodel.LateReverb)
	if !reflect.DeepEqual(lr, objectmodel.Silent(3)) {
		t.Fatalf("expected silent descriptor, got %+v", lr)
	}

	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process (still clear): %v", err)
	}
	if got := c.lateReverbOutput.Cell.(*pml.MessageQueue[pml.IndexedValue]).Len(); got != 0 {
		t.Fatalf("expected no repeated silent message while slot stays free, got %d queued", got)
	}
}

// A descriptor whose components all change by less than the comparison
// tolerance must not re-trigger a synthesis message; one component moving
// past the tolerance triggers exactly one.
func TestReverbParameterCalculatorLateReverbChangeTolerance(t *testing.T) {
	c := newReverbParameterCalculator(t)
	obj := reverbObject("a", 0)
	c.PushObjects(objectmodel.Vector{obj})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	queue := c.lateReverbOutput.Cell.(*pml.MessageQueue[pml.IndexedValue])
	queue.DrainAll()

	within := obj
	within.LateReverbParams = obj.LateReverbParams
	within.LateReverbParams.SubbandLevels = append([]float64(nil), obj.LateReverbParams.SubbandLevels...)
	within.LateReverbParams.SubbandLevels[0] += 1e-8
	c.PushObjects(objectmodel.Vector{within})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process (within tolerance): %v", err)
	}
	if got := queue.Len(); got != 0 {
		t.Fatalf("sub-tolerance change triggered %d messages, want 0", got)
	}

	beyond := obj
	beyond.LateReverbParams.SubbandLevels = append([]float64(nil), obj.LateReverbParams.SubbandLevels...)
	beyond.LateReverbParams.SubbandLevels[0] += 0.1
	c.PushObjects(objectmodel.Vector{beyond})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process (beyond tolerance): %v", err)
	}
	if got := queue.Len(); got != 1 {
		t.Fatalf("super-tolerance change triggered %d messages, want exactly 1", got)
	}
}

func TestReverbParameterCalculatorDropsNonFiniteLateReverb(t *testing.T) {
	c := newReverbParameterCalculator(t)
	var dropped []string
	c.diagnostic = func(msg string) { dropped = append(dropped, msg) }

	obj := reverbObject("a", 0)
	obj.LateReverbParams.SubbandLevels = []float64{math.NaN(), 0.3, 0.1}
	c.PushObjects(objectmodel.Vector{obj})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := c.lateReverbOutput.Cell.(*pml.MessageQueue[pml.IndexedValue]).Len(); got != 0 {
		t.Fatalf("non-finite descriptor reached the synthesis queue (%d messages)", got)
	}
	if len(dropped) != 1 {
		t.Fatalf("expected one diagnostic for the dropped descriptor, got %v", dropped)
	}
}

func newLateReverbFilterCalculator(t *testing.T) *LateReverbFilterCalculator {
	t.Helper()
	biquads := make([]biquad.Coefficients, 3)
	for i := range biquads {
		biquads[i] = biquad.Identity()
	}
	c, err := NewLateReverbFilterCalculator("latereverb", LateReverbFilterCalculatorConfig{
		NumSubbands:         3,
		LateLengthSeconds:   0.01,
		MaxUpdatesPerPeriod: 1,
		AnalysisBiquads:     biquads,
	})
	if err != nil {
		t.Fatalf("NewLateReverbFilterCalculator: %v", err)
	}
	return c
}

func TestLateReverbFilterCalculatorSynthesizesImpulseResponse(t *testing.T) {
	c := newLateReverbFilterCalculator(t)
	c.PushLateReverb(0, objectmodel.LateReverb{
		OnsetDelay:         0.0,
		SubbandLevels:      []float64{1, 1, 1},
		SubbandDecayCoeffs: []float64{0.9, 0.9, 0.9},
		SubbandAttackTimes: []float64{0.0001, 0.0001, 0.0001},
	})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	updates := c.filterUpdateOutput.Cell.(*pml.MessageQueue[rcl.FilterUpdate]).DrainAll()
	if len(updates) != 1 {
		t.Fatalf("expected one filter update, got %d", len(updates))
	}
	ir := updates[0].Coefficients
	if len(ir) == 0 {
		t.Fatalf("expected non-empty impulse response")
	}
	var energy float64
	for _, v := range ir {
		energy += v * v
	}
	if energy == 0 {
		t.Fatalf("expected non-zero impulse response energy")
	}
}

func TestLateReverbFilterCalculatorBoundsUpdatesPerBlock(t *testing.T) {
	c := newLateReverbFilterCalculator(t)
	lr := objectmodel.LateReverb{
		SubbandLevels:      []float64{1, 1, 1},
		SubbandDecayCoeffs: []float64{0.9, 0.9, 0.9},
		SubbandAttackTimes: []float64{0.001, 0.001, 0.001},
	}
	c.PushLateReverb(0, lr)
	c.PushLateReverb(1, lr)

	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	updates := c.filterUpdateOutput.Cell.(*pml.MessageQueue[rcl.FilterUpdate]).DrainAll()
	if len(updates) != 1 {
		t.Fatalf("expected exactly one update processed this block, got %d", len(updates))
	}
	if remaining := c.lateReverbInput.Cell.(*pml.MessageQueue[pml.IndexedValue]).Len(); remaining != 1 {
		t.Fatalf("expected one message still queued, got %d", remaining)
	}
}
