package rcl

import (
	"github.com/san-kum/dynrenderer/internal/efl"
	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/pml"
)

// NullSource produces a silent (all-zero) output of a fixed width, used
// to fill physical output channels that no component routes audio into.
type NullSource struct {
	graph.Base
	out *graph.AudioPort
}

// NewNullSource constructs a silent source of the given width.
func NewNullSource(name string, width int) *NullSource {
	n := &NullSource{Base: graph.NewBase(name)}
	n.out = n.AddAudioPort(graph.NewAudioPort(n, "out", graph.Output, width))
	return n
}

// Output returns the silent output port.
func (n *NullSource) Output() *graph.AudioPort { return n.out }

func (n *NullSource) Process(ctx *graph.SignalFlowContext) error {
	align := ctx.KernelAlignment()
	for ch := 0; ch < n.out.Width; ch++ {
		efl.Zero(n.out.Channel(ch), align)
	}
	return nil
}

// ChannelRoute maps one input channel to one output channel.
type ChannelRoute struct {
	Input, Output int
}

// SignalRouting copies selected input channels to selected output
// channels per a routing table; output channels with no routing entry
// stay silent. Used for channel-bed (ChannelObject) routing and for
// final physical-output channel mapping.
type SignalRouting struct {
	graph.Base
	in, out *graph.AudioPort
	routing []ChannelRoute

	// routingInput is optional: SignalRouting instances wired as a
	// static physical-output map (no calculator upstream) never read it.
	routingInput *graph.ParameterPort // *pml.Shared[pml.ChannelRoutingParameter]
	lastFromPort []ChannelRoute
}

// NewSignalRouting constructs a routing atom with the given input and
// output widths and an initial routing table. The table can also be
// driven per-block through a Shared parameter input: call WithRoutingInput
// for atoms fed by a calculator such as ChannelObjectRoutingCalculator.
func NewSignalRouting(name string, inputWidth, outputWidth int, routing []ChannelRoute) *SignalRouting {
	s := &SignalRouting{Base: graph.NewBase(name)}
	s.in = s.AddAudioPort(graph.NewAudioPort(s, "in", graph.Input, inputWidth))
	s.out = s.AddAudioPort(graph.NewAudioPort(s, "out", graph.Output, outputWidth))
	s.routing = append([]ChannelRoute(nil), routing...)
	return s
}

// WithRoutingInput adds a Shared parameter input carrying a
// ChannelRoutingParameter; once added, the routing table is driven by
// that port's contents every block, on top of any table set via
// SetRouting (the parameter port wins whenever it differs from the table
// currently installed).
func (s *SignalRouting) WithRoutingInput() *SignalRouting {
	if s.routingInput != nil {
		return s
	}
	cell := pml.NewShared(pml.ChannelRoutingParameter{})
	s.routingInput = s.AddParameterPort(graph.NewParameterPort(s, "routing", graph.Input, "channelRouting", graph.Shared, cell))
	return s
}

// RoutingCell exposes the Shared routing-table cell for producers (a
// calculator, or a test) to write into. Valid only after WithRoutingInput.
func (s *SignalRouting) RoutingCell() *pml.Shared[pml.ChannelRoutingParameter] {
	return s.routingInput.Cell.(*pml.Shared[pml.ChannelRoutingParameter])
}

// RoutingPort exposes the routing parameter port itself, for composites
// that wire it to a calculator's output via a graph.ParameterConnection
// instead of writing the cell directly. Valid only after WithRoutingInput.
func (s *SignalRouting) RoutingPort() *graph.ParameterPort {
	return s.routingInput
}

// Input and Output expose the ports for wiring connections.
func (s *SignalRouting) Input() *graph.AudioPort  { return s.in }
func (s *SignalRouting) Output() *graph.AudioPort { return s.out }

// SetRouting replaces the routing table, effective from the next block.
func (s *SignalRouting) SetRouting(routing []ChannelRoute) {
	s.routing = append([]ChannelRoute(nil), routing...)
}

func (s *SignalRouting) applyRoutingInputIfChanged() {
	if s.routingInput == nil {
		return
	}
	entries := s.RoutingCell().Get().Entries
	if len(entries) == 0 && len(s.lastFromPort) == 0 {
		return
	}
	routes := make([]ChannelRoute, len(entries))
	for i, e := range entries {
		routes[i] = ChannelRoute{Input: e.Input, Output: e.Output}
	}
	s.routing = routes
	s.lastFromPort = routes
}

func (s *SignalRouting) Process(ctx *graph.SignalFlowContext) error {
	s.applyRoutingInputIfChanged()
	align := ctx.KernelAlignment()
	for ch := 0; ch < s.out.Width; ch++ {
		efl.Zero(s.out.Channel(ch), align)
	}
	for _, r := range s.routing {
		if r.Input < 0 || r.Input >= s.in.Width || r.Output < 0 || r.Output >= s.out.Width {
			continue
		}
		efl.Copy(s.out.Channel(r.Output), s.in.Channel(r.Input), align)
	}
	return nil
}
