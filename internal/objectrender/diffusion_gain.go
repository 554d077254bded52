package objectrender

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/pml"
)

// DiffusionGainCalculator derives the diffuse-send gain per object
// channel for the diffuse-signal summation matrix feeding
// SingleToMultichannelDiffusion (the diffuse path): PointSource-
// WithDiffuseness objects send Level*Diffuseness, DiffuseSource objects
// send their full Level, every other kind sends nothing.
type DiffusionGainCalculator struct {
	graph.Base

	objectsInput *graph.ParameterPort // *pml.DoubleBuffered[pml.ObjectVectorParameter]
	gainsOutput  *graph.ParameterPort // *pml.Shared[pml.MatrixParameter], 1 x numChannels

	numChannels int
}

// NewDiffusionGainCalculator constructs the atom for a bus of numChannels
// object audio channels.
func NewDiffusionGainCalculator(name string, numChannels int) (*DiffusionGainCalculator, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("objectrender: DiffusionGainCalculator: numChannels must be positive")
	}
	c := &DiffusionGainCalculator{Base: graph.NewBase(name), numChannels: numChannels}

	objCell := pml.NewDoubleBuffered(pml.ObjectVectorParameter{})
	c.objectsInput = c.AddParameterPort(graph.NewParameterPort(c, "objects", graph.Input, "objectVector", graph.DoubleBuffered, objCell))

	gainsCell := pml.NewShared(pml.NewMatrixParameter(1, numChannels))
	c.gainsOutput = c.AddParameterPort(graph.NewParameterPort(c, "gains", graph.Output, "matrix", graph.Shared, gainsCell))

	return c, nil
}

// ObjectsInput and GainsOutput expose the ports for wiring connections.
func (c *DiffusionGainCalculator) ObjectsInput() *graph.ParameterPort { return c.objectsInput }
func (c *DiffusionGainCalculator) GainsOutput() *graph.ParameterPort  { return c.gainsOutput }

// PushObjects is a direct-write convenience for callers driving this atom
// without an upstream producer component.
func (c *DiffusionGainCalculator) PushObjects(v objectmodel.Vector) {
	cell := c.objectsInput.Cell.(*pml.DoubleBuffered[pml.ObjectVectorParameter])
	cell.SetBack(pml.ObjectVectorParameter{Objects: v})
	cell.Publish()
}

func (c *DiffusionGainCalculator) Process(ctx *graph.SignalFlowContext) error {
	objectsCell := c.objectsInput.Cell.(*pml.DoubleBuffered[pml.ObjectVectorParameter])
	objects := objectsCell.Front().Objects

	out := pml.NewMatrixParameter(1, c.numChannels)
	for _, obj := range objects {
		if obj.ChannelIndex < 0 || obj.ChannelIndex >= c.numChannels {
			continue
		}
		switch obj.Kind {
		case objectmodel.PointSourceWithDiffuseness:
			out.Set(0, obj.ChannelIndex, obj.Level*obj.Diffuseness)
		case objectmodel.DiffuseSource:
			out.Set(0, obj.ChannelIndex, obj.Level)
		}
	}

	c.gainsOutput.Cell.(*pml.Shared[pml.MatrixParameter]).Set(out)
	return nil
}
