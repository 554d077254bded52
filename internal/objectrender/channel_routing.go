package objectrender

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/pml"
)

// ChannelObjectRoutingCalculator derives the direct channel-bed routing
// table from the scene-object vector's ChannelObject entries (the
// channel-bed path): each live ChannelObject routes
// its ChannelIndex straight to its OutputChannelIndex, bypassing panning
// entirely.
type ChannelObjectRoutingCalculator struct {
	graph.Base

	objectsInput *graph.ParameterPort // *pml.DoubleBuffered[pml.ObjectVectorParameter]
	routingOutput *graph.ParameterPort // *pml.Shared[pml.ChannelRoutingParameter]

	numInputChannels, numOutputChannels int
}

// NewChannelObjectRoutingCalculator constructs the atom.
func NewChannelObjectRoutingCalculator(name string, numInputChannels, numOutputChannels int) (*ChannelObjectRoutingCalculator, error) {
	if numInputChannels <= 0 || numOutputChannels <= 0 {
		return nil, fmt.Errorf("objectrender: ChannelObjectRoutingCalculator: channel counts must be positive")
	}
	c := &ChannelObjectRoutingCalculator{
		Base:              graph.NewBase(name),
		numInputChannels:  numInputChannels,
		numOutputChannels: numOutputChannels,
	}

	objCell := pml.NewDoubleBuffered(pml.ObjectVectorParameter{})
	c.objectsInput = c.AddParameterPort(graph.NewParameterPort(c, "objects", graph.Input, "objectVector", graph.DoubleBuffered, objCell))

	routingCell := pml.NewShared(pml.ChannelRoutingParameter{})
	c.routingOutput = c.AddParameterPort(graph.NewParameterPort(c, "routing", graph.Output, "channelRouting", graph.Shared, routingCell))

	return c, nil
}

// ObjectsInput and RoutingOutput expose the ports for wiring connections.
func (c *ChannelObjectRoutingCalculator) ObjectsInput() *graph.ParameterPort  { return c.objectsInput }
func (c *ChannelObjectRoutingCalculator) RoutingOutput() *graph.ParameterPort { return c.routingOutput }

// PushObjects is a direct-write convenience for callers driving this atom
// without an upstream producer component.
func (c *ChannelObjectRoutingCalculator) PushObjects(v objectmodel.Vector) {
	cell := c.objectsInput.Cell.(*pml.DoubleBuffered[pml.ObjectVectorParameter])
	cell.SetBack(pml.ObjectVectorParameter{Objects: v})
	cell.Publish()
}

func (c *ChannelObjectRoutingCalculator) Process(ctx *graph.SignalFlowContext) error {
	objectsCell := c.objectsInput.Cell.(*pml.DoubleBuffered[pml.ObjectVectorParameter])
	objects := objectsCell.Front().Objects

	var entries []pml.ChannelRouteEntry
	for _, obj := range objects {
		if obj.Kind != objectmodel.ChannelObject {
			continue
		}
		if obj.ChannelIndex < 0 || obj.ChannelIndex >= c.numInputChannels {
			continue
		}
		if obj.OutputChannelIndex < 0 || obj.OutputChannelIndex >= c.numOutputChannels {
			continue
		}
		entries = append(entries, pml.ChannelRouteEntry{Input: obj.ChannelIndex, Output: obj.OutputChannelIndex})
	}

	c.routingOutput.Cell.(*pml.Shared[pml.ChannelRoutingParameter]).Set(pml.ChannelRoutingParameter{Entries: entries})
	return nil
}
