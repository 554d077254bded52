package reverbobject

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/diagnostics"
	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/panning"
	"github.com/san-kum/dynrenderer/internal/pml"
	"github.com/san-kum/dynrenderer/internal/rbbl/biquad"
)

// ReverbParameterCalculatorConfig groups construction parameters;
// NumSubbands and NumDiscreteReflectionBiquads must agree with the sizes
// LateReverbFilterCalculator and the downstream biquad bank were built
// with. The constructor does not compare them.
type ReverbParameterCalculatorConfig struct {
	MaxReverbObjects              int
	MaxReflectionsPerSlot         int
	NumDiscreteReflectionBiquads  int
	NumSubbands                   int
	NumInputChannels              int
	LateReverbQueueCapacity       int
	CloseTolerance                float64
	Panner                        *panning.VBAPCalculator
	// Diagnostic, if non-nil, receives a human-readable message whenever a
	// per-block input error is dropped (overflow, duplicate channel).
	Diagnostic func(string)
	// Sink, if set and Diagnostic is nil, receives the same messages as
	// Warn-severity diagnostics.Event values instead of plain strings.
	Sink diagnostics.Sink
}

// ReverbParameterCalculator derives per-slot reverb parameters: it allocates PointSource-
// WithReverb objects onto persistent rendering slots and, per slot,
// derives the early-reflection signal routing/gain/delay/biquad/panning
// parameters plus the overall gain, onset delay, and (on change) a
// late-reverb synthesis message.
type ReverbParameterCalculator struct {
	graph.Base

	objectsInput *graph.ParameterPort // *pml.DoubleBuffered[pml.ObjectVectorParameter]

	routingOutput    *graph.ParameterPort // *pml.Shared[pml.ChannelRoutingParameter]
	reflGainOutput   *graph.ParameterPort // *pml.Shared[pml.MatrixParameter], maxSlots x maxReflections
	reflDelayOutput  *graph.ParameterPort // *pml.Shared[pml.MatrixParameter], maxSlots x maxReflections
	reflBiquadOutput *graph.ParameterPort // *pml.DoubleBuffered[pml.BiquadBankParameter]
	reflPanOutput    *graph.ParameterPort // *pml.Shared[pml.MatrixParameter], numSpeakers x (maxSlots*maxReflections)
	overallGainOutput *graph.ParameterPort // *pml.DoubleBuffered[pml.VectorParameter], maxSlots
	onsetDelayOutput  *graph.ParameterPort // *pml.DoubleBuffered[pml.VectorParameter], maxSlots
	lateReverbOutput  *graph.ParameterPort // *pml.MessageQueue[pml.IndexedValue] (Value is objectmodel.LateReverb)

	allocator *SlotAllocator
	panner    *panning.VBAPCalculator

	maxSlots       int
	maxReflections int
	numBiquads     int
	numSubbands    int
	numInputChans  int
	tolerance      float64
	diagnostic     func(string)

	lastLateReverb map[int]objectmodel.LateReverb
	silenced       []bool
}

// NewReverbParameterCalculator constructs the atom per cfg.
func NewReverbParameterCalculator(name string, cfg ReverbParameterCalculatorConfig) (*ReverbParameterCalculator, error) {
	if cfg.MaxReverbObjects <= 0 {
		return nil, fmt.Errorf("reverbobject: ReverbParameterCalculator: maxReverbObjects must be positive")
	}
	if cfg.MaxReflectionsPerSlot <= 0 {
		return nil, fmt.Errorf("reverbobject: ReverbParameterCalculator: maxReflectionsPerSlot must be positive")
	}
	if cfg.NumDiscreteReflectionBiquads <= 0 {
		return nil, fmt.Errorf("reverbobject: ReverbParameterCalculator: numDiscreteReflectionBiquads must be positive")
	}
	if cfg.Panner == nil {
		return nil, fmt.Errorf("reverbobject: ReverbParameterCalculator: Panner must be set")
	}
	if cfg.LateReverbQueueCapacity <= 0 {
		cfg.LateReverbQueueCapacity = cfg.MaxReverbObjects * 2
	}
	if cfg.CloseTolerance <= 0 {
		cfg.CloseTolerance = 1e-6
	}

	allocator, err := NewSlotAllocator(cfg.MaxReverbObjects)
	if err != nil {
		return nil, fmt.Errorf("reverbobject: ReverbParameterCalculator: %w", err)
	}

	diagnostic := cfg.Diagnostic
	if diagnostic == nil && cfg.Sink != nil {
		sink := cfg.Sink
		diagnostic = func(msg string) {
			sink.Report(diagnostics.Event{Component: name, Severity: diagnostics.Warn, Message: msg})
		}
	}

	c := &ReverbParameterCalculator{
		Base:           graph.NewBase(name),
		allocator:      allocator,
		panner:         cfg.Panner,
		maxSlots:       cfg.MaxReverbObjects,
		maxReflections: cfg.MaxReflectionsPerSlot,
		numBiquads:     cfg.NumDiscreteReflectionBiquads,
		numSubbands:    cfg.NumSubbands,
		numInputChans:  cfg.NumInputChannels,
		tolerance:      cfg.CloseTolerance,
		diagnostic:     diagnostic,
		lastLateReverb: make(map[int]objectmodel.LateReverb),
		silenced:       make([]bool, cfg.MaxReverbObjects),
	}
	// A slot that has never held an object is already implicitly silent
	// (its outputs were zero-initialised above); only a slot transitioning
	// from active to free needs the one-time silent message.
	for i := range c.silenced {
		c.silenced[i] = true
	}

	objCell := pml.NewDoubleBuffered(pml.ObjectVectorParameter{})
	c.objectsInput = c.AddParameterPort(graph.NewParameterPort(c, "objects", graph.Input, "objectVector", graph.DoubleBuffered, objCell))

	routingCell := pml.NewShared(pml.ChannelRoutingParameter{})
	c.routingOutput = c.AddParameterPort(graph.NewParameterPort(c, "routing", graph.Output, "channelRouting", graph.Shared, routingCell))

	numChannelSlots := cfg.MaxReverbObjects * cfg.MaxReflectionsPerSlot

	gainCell := pml.NewShared(pml.NewMatrixParameter(cfg.MaxReverbObjects, cfg.MaxReflectionsPerSlot))
	c.reflGainOutput = c.AddParameterPort(graph.NewParameterPort(c, "reflectionGains", graph.Output, "matrix", graph.Shared, gainCell))

	delayCell := pml.NewShared(pml.NewMatrixParameter(cfg.MaxReverbObjects, cfg.MaxReflectionsPerSlot))
	c.reflDelayOutput = c.AddParameterPort(graph.NewParameterPort(c, "reflectionDelays", graph.Output, "matrix", graph.Shared, delayCell))

	biquadCell := pml.NewDoubleBuffered(identityBiquadBank(numChannelSlots, cfg.NumDiscreteReflectionBiquads))
	c.reflBiquadOutput = c.AddParameterPort(graph.NewParameterPort(c, "reflectionBiquads", graph.Output, "biquadBank", graph.DoubleBuffered, biquadCell))

	panCell := pml.NewShared(pml.NewMatrixParameter(cfg.Panner.NumSpeakers(), numChannelSlots))
	c.reflPanOutput = c.AddParameterPort(graph.NewParameterPort(c, "reflectionPanning", graph.Output, "matrix", graph.Shared, panCell))

	overallGainCell := pml.NewDoubleBuffered(pml.NewVectorParameter(cfg.MaxReverbObjects))
	c.overallGainOutput = c.AddParameterPort(graph.NewParameterPort(c, "overallGain", graph.Output, "vector", graph.DoubleBuffered, overallGainCell))

	onsetDelayCell := pml.NewDoubleBuffered(pml.NewVectorParameter(cfg.MaxReverbObjects))
	c.onsetDelayOutput = c.AddParameterPort(graph.NewParameterPort(c, "onsetDelay", graph.Output, "vector", graph.DoubleBuffered, onsetDelayCell))

	queue, err := pml.NewMessageQueue[pml.IndexedValue](cfg.LateReverbQueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("reverbobject: ReverbParameterCalculator: %w", err)
	}
	c.lateReverbOutput = c.AddParameterPort(graph.NewParameterPort(c, "lateReverb", graph.Output, "indexedValue", graph.MessageQueue, queue))

	return c, nil
}

func identityBiquadBank(numChannels, numSections int) pml.BiquadBankParameter {
	sections := make([]biquad.Coefficients, numSections)
	for i := range sections {
		sections[i] = biquad.Identity()
	}
	channels := make([]pml.BiquadParameterList, numChannels)
	for i := range channels {
		cp := make([]biquad.Coefficients, numSections)
		copy(cp, sections)
		channels[i] = pml.BiquadParameterList{Sections: cp}
	}
	return pml.BiquadBankParameter{Channels: channels}
}

// ObjectsInput exposes the object-vector input port for wiring.
func (c *ReverbParameterCalculator) ObjectsInput() *graph.ParameterPort { return c.objectsInput }

// RoutingOutput, ReflectionGainOutput, ReflectionDelayOutput,
// ReflectionBiquadOutput, ReflectionPanningOutput, OverallGainOutput,
// OnsetDelayOutput, and LateReverbOutput expose the output ports.
func (c *ReverbParameterCalculator) RoutingOutput() *graph.ParameterPort    { return c.routingOutput }
func (c *ReverbParameterCalculator) ReflectionGainOutput() *graph.ParameterPort {
	return c.reflGainOutput
}
func (c *ReverbParameterCalculator) ReflectionDelayOutput() *graph.ParameterPort {
	return c.reflDelayOutput
}
func (c *ReverbParameterCalculator) ReflectionBiquadOutput() *graph.ParameterPort {
	return c.reflBiquadOutput
}
func (c *ReverbParameterCalculator) ReflectionPanningOutput() *graph.ParameterPort {
	return c.reflPanOutput
}
func (c *ReverbParameterCalculator) OverallGainOutput() *graph.ParameterPort { return c.overallGainOutput }
func (c *ReverbParameterCalculator) OnsetDelayOutput() *graph.ParameterPort  { return c.onsetDelayOutput }
func (c *ReverbParameterCalculator) LateReverbOutput() *graph.ParameterPort  { return c.lateReverbOutput }

// MaxSlots reports the allocator's slot pool size.
func (c *ReverbParameterCalculator) MaxSlots() int { return c.maxSlots }

// PushObjects is a direct-write convenience for callers driving this atom
// without an upstream producer component.
func (c *ReverbParameterCalculator) PushObjects(v objectmodel.Vector) {
	cell := c.objectsInput.Cell.(*pml.DoubleBuffered[pml.ObjectVectorParameter])
	cell.SetBack(pml.ObjectVectorParameter{Objects: v})
	cell.Publish()
}

func (c *ReverbParameterCalculator) report(msg string) {
	if c.diagnostic != nil {
		c.diagnostic(msg)
	}
}

func (c *ReverbParameterCalculator) Process(ctx *graph.SignalFlowContext) error {
	objectsCell := c.objectsInput.Cell.(*pml.DoubleBuffered[pml.ObjectVectorParameter])
	objects := objectsCell.Front().Objects

	var liveIDs []string
	channelOwner := make(map[int]string)
	reverbByID := make(map[string]objectmodel.Object)
	for _, obj := range objects {
		if obj.Kind != objectmodel.PointSourceWithReverb {
			continue
		}
		if owner, taken := channelOwner[obj.ChannelIndex]; taken {
			c.report(fmt.Sprintf("reverbobject: object %q dropped: channel %d already claimed by %q", obj.ID, obj.ChannelIndex, owner))
			continue
		}
		channelOwner[obj.ChannelIndex] = obj.ID
		reverbByID[obj.ID] = obj
		liveIDs = append(liveIDs, obj.ID)
	}

	assigned, cleared, overflow := c.allocator.Update(liveIDs)
	for _, id := range overflow {
		c.report(fmt.Sprintf("reverbobject: object %q dropped: reverb slot pool exhausted", id))
	}
	for _, slot := range cleared {
		delete(c.lastLateReverb, slot)
		c.silenced[slot] = false
	}

	var routingEntries []pml.ChannelRouteEntry
	gains := pml.NewMatrixParameter(c.maxSlots, c.maxReflections)
	delays := pml.NewMatrixParameter(c.maxSlots, c.maxReflections)
	panMatrix := pml.NewMatrixParameter(c.panner.NumSpeakers(), c.maxSlots*c.maxReflections)
	biquadBank := identityBiquadBank(c.maxSlots*c.maxReflections, c.numBiquads)
	overallGain := pml.NewVectorParameter(c.maxSlots)
	onsetDelay := pml.NewVectorParameter(c.maxSlots)

	// Walk liveIDs, not the assigned map: slot outputs land on disjoint
	// rows either way, but the late-reverb message order must not depend
	// on map iteration order or repeated runs would drain the synthesis
	// queue in different orders.
	activeSlots := make(map[int]bool, len(assigned))
	for _, id := range liveIDs {
		slot, ok := assigned[id]
		if !ok {
			continue
		}
		activeSlots[slot] = true
		obj := reverbByID[id]
		routingEntries = append(routingEntries, pml.ChannelRouteEntry{Input: obj.ChannelIndex, Output: slot})
		overallGain.Values[slot] = obj.Level
		// Delay targets downstream are in samples; the object model
		// carries seconds.
		onsetDelay.Values[slot] = obj.LateReverbParams.OnsetDelay * ctx.SamplingFrequency

		for r := 0; r < c.maxReflections && r < len(obj.DiscreteReflections); r++ {
			refl := obj.DiscreteReflections[r]
			gains.Set(slot, r, refl.Level)
			delays.Set(slot, r, refl.Delay*ctx.SamplingFrequency)

			channel := slot*c.maxReflections + r
			biquadBank.Channels[channel] = reflectionBiquads(refl, c.numBiquads)

			row := c.panner.CalculateGains(refl.Position)
			for speaker, g := range row {
				panMatrix.Set(speaker, channel, g)
			}
		}

		if !obj.LateReverbParams.IsFinite() {
			c.report(fmt.Sprintf("reverbobject: object %q: late-reverb descriptor has non-finite values, update dropped", obj.ID))
		} else {
			prev, ok := c.lastLateReverb[slot]
			if !ok || !obj.LateReverbParams.CloseTo(prev, c.tolerance) {
				c.lastLateReverb[slot] = obj.LateReverbParams
				c.pushLateReverb(slot, obj.LateReverbParams)
				c.silenced[slot] = false
			}
		}
	}

	for slot := 0; slot < c.maxSlots; slot++ {
		if activeSlots[slot] {
			continue
		}
		if !c.silenced[slot] {
			c.pushLateReverb(slot, objectmodel.Silent(c.numSubbands))
			c.silenced[slot] = true
		}
	}

	c.routingOutput.Cell.(*pml.Shared[pml.ChannelRoutingParameter]).Set(pml.ChannelRoutingParameter{Entries: routingEntries})
	c.reflGainOutput.Cell.(*pml.Shared[pml.MatrixParameter]).Set(gains)
	c.reflDelayOutput.Cell.(*pml.Shared[pml.MatrixParameter]).Set(delays)
	c.reflPanOutput.Cell.(*pml.Shared[pml.MatrixParameter]).Set(panMatrix)

	biquadCell := c.reflBiquadOutput.Cell.(*pml.DoubleBuffered[pml.BiquadBankParameter])
	biquadCell.SetBack(biquadBank)
	biquadCell.Publish()

	gainCell := c.overallGainOutput.Cell.(*pml.DoubleBuffered[pml.VectorParameter])
	gainCell.SetBack(overallGain)
	gainCell.Publish()

	delayCell := c.onsetDelayOutput.Cell.(*pml.DoubleBuffered[pml.VectorParameter])
	delayCell.SetBack(onsetDelay)
	delayCell.Publish()

	return nil
}

func (c *ReverbParameterCalculator) pushLateReverb(slot int, lr objectmodel.LateReverb) {
	queue := c.lateReverbOutput.Cell.(*pml.MessageQueue[pml.IndexedValue])
	queue.Push(pml.IndexedValue{Index: slot, Value: lr})
}

func reflectionBiquads(refl objectmodel.DiscreteReflection, numSections int) pml.BiquadParameterList {
	out := make([]biquad.Coefficients, numSections)
	for i := range out {
		if i < len(refl.Biquads) {
			b := refl.Biquads[i]
			out[i] = biquad.Coefficients{B0: b.B0, B1: b.B1, B2: b.B2, A1: b.A1, A2: b.A2}
		} else {
			out[i] = biquad.Identity()
		}
	}
	return pml.BiquadParameterList{Sections: out}
}
