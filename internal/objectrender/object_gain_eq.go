package objectrender

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/pml"
	"github.com/san-kum/dynrenderer/internal/rbbl/biquad"
)

// ObjectGainEqCalculator derives the per-channel object gain that feeds
// the object-gain DelayVector stage: every
// block it reads the scene-object vector and republishes one linear gain
// per audio channel, taken from the most recently seen object mapped to
// that channel (Level is already linear).
//
// The scene-object model carries no per-object EQ descriptor, so the
// EQ stage downstream is configured once at construction from a fixed
// per-channel ParametricDescriptor list (e.g. a static room-correction
// curve) rather than driven block-by-block from the object stream.
type ObjectGainEqCalculator struct {
	graph.Base

	objectsInput *graph.ParameterPort // *pml.DoubleBuffered[pml.ObjectVectorParameter]
	gainOutput   *graph.ParameterPort // *pml.DoubleBuffered[pml.VectorParameter]

	numChannels int
}

// NewObjectGainEqCalculator constructs the atom for a bus of numChannels
// object audio channels.
func NewObjectGainEqCalculator(name string, numChannels int) (*ObjectGainEqCalculator, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("objectrender: ObjectGainEqCalculator: numChannels must be positive")
	}
	c := &ObjectGainEqCalculator{Base: graph.NewBase(name), numChannels: numChannels}

	objCell := pml.NewDoubleBuffered(pml.ObjectVectorParameter{})
	c.objectsInput = c.AddParameterPort(graph.NewParameterPort(c, "objects", graph.Input, "objectVector", graph.DoubleBuffered, objCell))

	gainCell := pml.NewDoubleBuffered(pml.NewVectorParameter(numChannels))
	c.gainOutput = c.AddParameterPort(graph.NewParameterPort(c, "gain", graph.Output, "vector", graph.DoubleBuffered, gainCell))

	return c, nil
}

// ObjectsInput and GainOutput expose the ports for wiring connections.
func (c *ObjectGainEqCalculator) ObjectsInput() *graph.ParameterPort { return c.objectsInput }
func (c *ObjectGainEqCalculator) GainOutput() *graph.ParameterPort   { return c.gainOutput }

// PushObjects is a direct-write convenience for callers driving this atom
// without an upstream producer component.
func (c *ObjectGainEqCalculator) PushObjects(v objectmodel.Vector) {
	cell := c.objectsInput.Cell.(*pml.DoubleBuffered[pml.ObjectVectorParameter])
	cell.SetBack(pml.ObjectVectorParameter{Objects: v})
	cell.Publish()
}

func (c *ObjectGainEqCalculator) Process(ctx *graph.SignalFlowContext) error {
	objectsCell := c.objectsInput.Cell.(*pml.DoubleBuffered[pml.ObjectVectorParameter])
	objects := objectsCell.Front().Objects

	gains := pml.NewVectorParameter(c.numChannels)
	for _, obj := range objects {
		if obj.ChannelIndex < 0 || obj.ChannelIndex >= c.numChannels {
			continue
		}
		gains.Values[obj.ChannelIndex] = obj.Level
	}

	gainCell := c.gainOutput.Cell.(*pml.DoubleBuffered[pml.VectorParameter])
	gainCell.SetBack(gains)
	gainCell.Publish()
	return nil
}

// IdentityEqSections returns numSections identity biquad sections, the
// EQ stage's default when no static correction curve is configured.
func IdentityEqSections(numSections int) []biquad.Coefficients {
	out := make([]biquad.Coefficients, numSections)
	for i := range out {
		out[i] = biquad.Identity()
	}
	return out
}
