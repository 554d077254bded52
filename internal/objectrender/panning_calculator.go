// Package objectrender implements the calculator atoms that turn the
// per-block scene-object vector into the parameter values the DSP atoms
// in rcl consume: panning gains, per-object gain/EQ, diffuse-send gains,
// channel-bed routing, and listener-motion compensation.
package objectrender

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/panning"
	"github.com/san-kum/dynrenderer/internal/pml"
)

// panner abstracts over the three gain-calculation algorithms (VBAP,
// AllRAD's underlying VBAP pass, CAP) behind the four methods
// PanningCalculator needs; it lets the atom stay agnostic to which
// variant was configured.
type panner interface {
	SetListenerPosition(objectmodel.Position)
	CalculateGains(objectmodel.Position) []float64
	CalculateGainsAtInfinity(objectmodel.Position) []float64
	NumSpeakers() int
}

// PanningCalculator is the object-rendering atom wrapping a
// VBAP/AllRAD/CAP panner: each block it reads the scene-object
// vector and the listener parameter, and publishes a loudspeaker x
// object-channel gain matrix for a GainMatrix atom to consume.
type PanningCalculator struct {
	graph.Base

	objectsInput  *graph.ParameterPort // *pml.DoubleBuffered[pml.ObjectVectorParameter]
	listenerInput *graph.ParameterPort // *pml.DoubleBuffered[pml.ListenerParameter]
	gainsOutput   *graph.ParameterPort // *pml.Shared[pml.MatrixParameter]

	panner      panner
	numChannels int
}

// NewPanningCalculator constructs the atom over the given panner
// implementation (a *panning.VBAPCalculator or *panning.CAPCalculator;
// AllRAD is wired separately as a static decode matrix).
// numChannels is the width of the object audio bus the gain matrix
// columns address.
func NewPanningCalculator(name string, p panner, numChannels int) (*PanningCalculator, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("objectrender: PanningCalculator: numChannels must be positive")
	}
	c := &PanningCalculator{Base: graph.NewBase(name), panner: p, numChannels: numChannels}

	objCell := pml.NewDoubleBuffered(pml.ObjectVectorParameter{})
	c.objectsInput = c.AddParameterPort(graph.NewParameterPort(c, "objects", graph.Input, "objectVector", graph.DoubleBuffered, objCell))

	listenerCell := pml.NewDoubleBuffered(pml.ListenerParameter{})
	c.listenerInput = c.AddParameterPort(graph.NewParameterPort(c, "listener", graph.Input, "listener", graph.DoubleBuffered, listenerCell))

	initial := pml.NewMatrixParameter(p.NumSpeakers(), numChannels)
	gainsCell := pml.NewShared(initial)
	c.gainsOutput = c.AddParameterPort(graph.NewParameterPort(c, "gains", graph.Output, "matrix", graph.Shared, gainsCell))

	return c, nil
}

// ObjectsInput, ListenerInput, and GainsOutput expose the ports for
// wiring connections.
func (c *PanningCalculator) ObjectsInput() *graph.ParameterPort  { return c.objectsInput }
func (c *PanningCalculator) ListenerInput() *graph.ParameterPort { return c.listenerInput }
func (c *PanningCalculator) GainsOutput() *graph.ParameterPort   { return c.gainsOutput }

// PushObjects is a direct-write convenience for callers (scene receivers,
// tests) that drive this atom without an upstream producer component.
func (c *PanningCalculator) PushObjects(v objectmodel.Vector) {
	cell := c.objectsInput.Cell.(*pml.DoubleBuffered[pml.ObjectVectorParameter])
	cell.SetBack(pml.ObjectVectorParameter{Objects: v})
	cell.Publish()
}

// PushListener is the direct-write convenience for listener tracking.
func (c *PanningCalculator) PushListener(p pml.ListenerParameter) {
	cell := c.listenerInput.Cell.(*pml.DoubleBuffered[pml.ListenerParameter])
	cell.SetBack(p)
	cell.Publish()
}

func (c *PanningCalculator) Process(ctx *graph.SignalFlowContext) error {
	listenerCell := c.listenerInput.Cell.(*pml.DoubleBuffered[pml.ListenerParameter])
	if listenerCell.Changed() {
		listener := listenerCell.Front()
		c.panner.SetListenerPosition(listener.Position)
		// Head orientation only matters to the compensated-amplitude
		// variant; the other panners have no aural-axis notion.
		if oriented, ok := c.panner.(interface {
			SetAuralAxis(objectmodel.Position)
		}); ok {
			oriented.SetAuralAxis(listener.AuralAxis)
		}
	}

	objectsCell := c.objectsInput.Cell.(*pml.DoubleBuffered[pml.ObjectVectorParameter])
	objects := objectsCell.Front().Objects

	numSpeakers := c.panner.NumSpeakers()
	out := pml.NewMatrixParameter(numSpeakers, c.numChannels)

	for _, obj := range objects {
		if obj.ChannelIndex < 0 || obj.ChannelIndex >= c.numChannels {
			continue
		}
		switch obj.Kind {
		case objectmodel.PointSource, objectmodel.PointSourceWithDiffuseness, objectmodel.PlaneWave:
			scale := obj.Level
			if obj.Kind == objectmodel.PointSourceWithDiffuseness {
				scale *= 1 - obj.Diffuseness
			}
			var gains []float64
			if obj.Kind == objectmodel.PlaneWave {
				gains = c.panner.CalculateGainsAtInfinity(obj.Direction())
			} else {
				gains = c.panner.CalculateGains(obj.Direction())
			}
			for speaker, g := range gains {
				out.Set(speaker, obj.ChannelIndex, out.At(speaker, obj.ChannelIndex)+g*scale)
			}
		default:
			// HoaSource, ChannelObject, DiffuseSource, PointSourceWithReverb:
			// no contribution from the panning path.
		}
	}

	c.gainsOutput.Cell.(*pml.Shared[pml.MatrixParameter]).Set(out)
	return nil
}

var _ panner = (*panning.VBAPCalculator)(nil)
var _ panner = (*panning.CAPCalculator)(nil)
