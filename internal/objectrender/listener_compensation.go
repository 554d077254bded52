package objectrender

import (
	"fmt"
	"math"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/pml"
)

// ListenerCompensation derives the broadcast delay/gain trim that
// compensates for listener motion relative to the array's nominal
// sweet-spot radius (the renderer's optional listener-compensation
// stage): as the listener moves away from the reference radius, every
// output channel gets the same extra propagation delay and an inverse-
// distance gain trim, keeping perceived loudness and timing stable.
type ListenerCompensation struct {
	graph.Base

	listenerInput *graph.ParameterPort // *pml.DoubleBuffered[pml.ListenerParameter]
	gainOutput    *graph.ParameterPort // *pml.DoubleBuffered[pml.VectorParameter]
	delayOutput   *graph.ParameterPort // *pml.DoubleBuffered[pml.VectorParameter]

	numOutputChannels int
	referenceRadius   float64 // metres
	speedOfSound      float64 // metres/second
	minGain, maxGain  float64
}

// ListenerCompensationConfig groups construction parameters.
type ListenerCompensationConfig struct {
	NumOutputChannels int
	ReferenceRadius   float64
	SpeedOfSound      float64 // defaults to 343.0 if <= 0
	MinGain, MaxGain  float64 // defaults to 0.25, 4.0 if both zero
}

// NewListenerCompensation constructs the atom per cfg.
func NewListenerCompensation(name string, cfg ListenerCompensationConfig) (*ListenerCompensation, error) {
	if cfg.NumOutputChannels <= 0 {
		return nil, fmt.Errorf("objectrender: ListenerCompensation: numOutputChannels must be positive")
	}
	if cfg.SpeedOfSound <= 0 {
		cfg.SpeedOfSound = 343.0
	}
	if cfg.MinGain == 0 && cfg.MaxGain == 0 {
		cfg.MinGain, cfg.MaxGain = 0.25, 4.0
	}
	c := &ListenerCompensation{
		Base:              graph.NewBase(name),
		numOutputChannels: cfg.NumOutputChannels,
		referenceRadius:   cfg.ReferenceRadius,
		speedOfSound:      cfg.SpeedOfSound,
		minGain:           cfg.MinGain,
		maxGain:           cfg.MaxGain,
	}

	listenerCell := pml.NewDoubleBuffered(pml.ListenerParameter{})
	c.listenerInput = c.AddParameterPort(graph.NewParameterPort(c, "listener", graph.Input, "listener", graph.DoubleBuffered, listenerCell))

	gainCell := pml.NewDoubleBuffered(uniformVector(cfg.NumOutputChannels, 1))
	c.gainOutput = c.AddParameterPort(graph.NewParameterPort(c, "gain", graph.Output, "vector", graph.DoubleBuffered, gainCell))

	delayCell := pml.NewDoubleBuffered(pml.NewVectorParameter(cfg.NumOutputChannels))
	c.delayOutput = c.AddParameterPort(graph.NewParameterPort(c, "delay", graph.Output, "vector", graph.DoubleBuffered, delayCell))

	return c, nil
}

func uniformVector(size int, value float64) pml.VectorParameter {
	v := pml.NewVectorParameter(size)
	for i := range v.Values {
		v.Values[i] = value
	}
	return v
}

// ListenerInput, GainOutput, and DelayOutput expose the ports for wiring
// connections.
func (c *ListenerCompensation) ListenerInput() *graph.ParameterPort { return c.listenerInput }
func (c *ListenerCompensation) GainOutput() *graph.ParameterPort    { return c.gainOutput }
func (c *ListenerCompensation) DelayOutput() *graph.ParameterPort   { return c.delayOutput }

// PushListener is a direct-write convenience for callers driving this
// atom without an upstream producer component.
func (c *ListenerCompensation) PushListener(p pml.ListenerParameter) {
	cell := c.listenerInput.Cell.(*pml.DoubleBuffered[pml.ListenerParameter])
	cell.SetBack(p)
	cell.Publish()
}

func (c *ListenerCompensation) Process(ctx *graph.SignalFlowContext) error {
	listenerCell := c.listenerInput.Cell.(*pml.DoubleBuffered[pml.ListenerParameter])
	distance := listenerCell.Front().Position.Norm()

	gain := 1.0
	if distance > 1e-9 && c.referenceRadius > 0 {
		gain = c.referenceRadius / distance
	}
	if gain < c.minGain {
		gain = c.minGain
	}
	if gain > c.maxGain {
		gain = c.maxGain
	}

	delaySeconds := 0.0
	if distance > c.referenceRadius {
		delaySeconds = (distance - c.referenceRadius) / c.speedOfSound
	}
	delaySamples := delaySeconds * ctx.SamplingFrequency
	if math.IsNaN(delaySamples) || delaySamples < 0 {
		delaySamples = 0
	}

	gainCell := c.gainOutput.Cell.(*pml.DoubleBuffered[pml.VectorParameter])
	gainCell.SetBack(uniformVector(c.numOutputChannels, gain))
	gainCell.Publish()

	delayCell := c.delayOutput.Cell.(*pml.DoubleBuffered[pml.VectorParameter])
	delayCell.SetBack(uniformVector(c.numOutputChannels, delaySamples))
	delayCell.Publish()
	return nil
}
