package objectrender

import (
	"math"
	"testing"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/panning"
	"github.com/san-kum/dynrenderer/internal/pml"
)

func stereoArray() *panning.LoudspeakerArray {
	return panning.RegularPolygonArray([]float64{-math.Pi / 6, math.Pi / 6})
}

func ctx() *graph.SignalFlowContext {
	return &graph.SignalFlowContext{BlockSize: 4, SamplingFrequency: 48000, Alignment: 1}
}

func TestPanningCalculatorCenteredSourceSplitsEvenly(t *testing.T) {
	vbap, err := panning.NewVBAPCalculator(stereoArray())
	if err != nil {
		t.Fatalf("NewVBAPCalculator: %v", err)
	}
	c, err := NewPanningCalculator("pan", vbap, 1)
	if err != nil {
		t.Fatalf("NewPanningCalculator: %v", err)
	}
	c.PushObjects(objectmodel.Vector{{ID: "a", Kind: objectmodel.PointSource, ChannelIndex: 0, Level: 1, Position: objectmodel.FromSpherical(0, 0)}})

	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	gains := c.gainsOutput.Cell.(*pml.Shared[pml.MatrixParameter]).Get()
	g0, g1 := gains.At(0, 0), gains.At(1, 0)
	if math.Abs(g0-g1) > 1e-9 {
		t.Fatalf("expected equal gains for centered source, got %v %v", g0, g1)
	}
	if g0 <= 0 {
		t.Fatalf("expected positive gain, got %v", g0)
	}
}

func TestPanningCalculatorIgnoresChannelObject(t *testing.T) {
	vbap, err := panning.NewVBAPCalculator(stereoArray())
	if err != nil {
		t.Fatalf("NewVBAPCalculator: %v", err)
	}
	c, err := NewPanningCalculator("pan", vbap, 1)
	if err != nil {
		t.Fatalf("NewPanningCalculator: %v", err)
	}
	c.PushObjects(objectmodel.Vector{{ID: "a", Kind: objectmodel.ChannelObject, ChannelIndex: 0, Level: 1}})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	gains := c.gainsOutput.Cell.(*pml.Shared[pml.MatrixParameter]).Get()
	for s := 0; s < 2; s++ {
		if gains.At(s, 0) != 0 {
			t.Fatalf("expected zero panning gain for ChannelObject, got %v", gains.At(s, 0))
		}
	}
}

func TestObjectGainEqCalculatorUsesObjectLevel(t *testing.T) {
	c, err := NewObjectGainEqCalculator("geq", 2)
	if err != nil {
		t.Fatalf("NewObjectGainEqCalculator: %v", err)
	}
	c.PushObjects(objectmodel.Vector{
		{ID: "a", ChannelIndex: 0, Level: 0.5},
		{ID: "b", ChannelIndex: 1, Level: 0.25},
	})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	gains := c.gainOutput.Cell.(*pml.DoubleBuffered[pml.VectorParameter]).Front()
	if gains.Values[0] != 0.5 || gains.Values[1] != 0.25 {
		t.Fatalf("got %v, want [0.5 0.25]", gains.Values)
	}
}

func TestDiffusionGainCalculatorScalesByDiffuseness(t *testing.T) {
	c, err := NewDiffusionGainCalculator("diff", 2)
	if err != nil {
		t.Fatalf("NewDiffusionGainCalculator: %v", err)
	}
	c.PushObjects(objectmodel.Vector{
		{ID: "a", Kind: objectmodel.PointSourceWithDiffuseness, ChannelIndex: 0, Level: 1, Diffuseness: 0.5},
		{ID: "b", Kind: objectmodel.DiffuseSource, ChannelIndex: 1, Level: 0.3},
	})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	gains := c.gainsOutput.Cell.(*pml.Shared[pml.MatrixParameter]).Get()
	if gains.At(0, 0) != 0.5 {
		t.Fatalf("got %v, want 0.5", gains.At(0, 0))
	}
	if gains.At(0, 1) != 0.3 {
		t.Fatalf("got %v, want 0.3", gains.At(0, 1))
	}
}

func TestChannelObjectRoutingCalculatorRoutesOnlyChannelObjects(t *testing.T) {
	c, err := NewChannelObjectRoutingCalculator("route", 4, 6)
	if err != nil {
		t.Fatalf("NewChannelObjectRoutingCalculator: %v", err)
	}
	c.PushObjects(objectmodel.Vector{
		{ID: "a", Kind: objectmodel.ChannelObject, ChannelIndex: 0, OutputChannelIndex: 3},
		{ID: "b", Kind: objectmodel.PointSource, ChannelIndex: 1},
	})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	entries := c.routingOutput.Cell.(*pml.Shared[pml.ChannelRoutingParameter]).Get().Entries
	if len(entries) != 1 || entries[0].Input != 0 || entries[0].Output != 3 {
		t.Fatalf("got %+v, want [{0 3}]", entries)
	}
}

func TestListenerCompensationAtReferenceRadiusIsUnityNoDelay(t *testing.T) {
	c, err := NewListenerCompensation("lc", ListenerCompensationConfig{NumOutputChannels: 2, ReferenceRadius: 1.5})
	if err != nil {
		t.Fatalf("NewListenerCompensation: %v", err)
	}
	c.PushListener(pml.ListenerParameter{Position: objectmodel.Position{X: 1.5}})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	gains := c.gainOutput.Cell.(*pml.DoubleBuffered[pml.VectorParameter]).Front()
	delays := c.delayOutput.Cell.(*pml.DoubleBuffered[pml.VectorParameter]).Front()
	for i := range gains.Values {
		if math.Abs(gains.Values[i]-1) > 1e-9 {
			t.Fatalf("gain[%d] = %v, want 1", i, gains.Values[i])
		}
		if delays.Values[i] != 0 {
			t.Fatalf("delay[%d] = %v, want 0", i, delays.Values[i])
		}
	}
}

func TestListenerCompensationFartherListenerGetsDelayAndLowerGain(t *testing.T) {
	c, err := NewListenerCompensation("lc", ListenerCompensationConfig{NumOutputChannels: 1, ReferenceRadius: 1.0})
	if err != nil {
		t.Fatalf("NewListenerCompensation: %v", err)
	}
	c.PushListener(pml.ListenerParameter{Position: objectmodel.Position{X: 2.0}})
	if err := c.Process(ctx()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	gains := c.gainOutput.Cell.(*pml.DoubleBuffered[pml.VectorParameter]).Front()
	delays := c.delayOutput.Cell.(*pml.DoubleBuffered[pml.VectorParameter]).Front()
	if gains.Values[0] >= 1 {
		t.Fatalf("expected gain < 1 for a farther listener, got %v", gains.Values[0])
	}
	if delays.Values[0] <= 0 {
		t.Fatalf("expected positive delay for a farther listener, got %v", delays.Values[0])
	}
}
