package graph

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/diagnostics"
)

// Schedule is the frozen, topologically-ordered sequence of atomic
// components produced by Flatten. ProcessBlock runs every atom's
// Process() once, in that order.
type Schedule struct {
	order []AtomicComponent
	ctx   *SignalFlowContext
	sink  diagnostics.Sink
}

// Context returns the SignalFlowContext the schedule was built with.
func (s *Schedule) Context() *SignalFlowContext { return s.ctx }

// SetSink installs the diagnostics receiver ProcessBlock reports atom
// failures to. A nil sink drops the reports.
func (s *Schedule) SetSink(sink diagnostics.Sink) { s.sink = sink }

// Order returns the frozen execution order, for diagnostics/tests.
func (s *Schedule) Order() []AtomicComponent {
	out := make([]AtomicComponent, len(s.order))
	copy(out, s.order)
	return out
}

// ProcessBlock executes every atom in schedule order. An atom whose
// Process returns an error does not abort the block: the failure is
// reported through the schedule's sink, the atom's own output rows are
// zero-filled so downstream atoms read silence instead of the previous
// block's stale samples, and the remaining atoms still run. The graph
// stays usable for the next block.
func (s *Schedule) ProcessBlock() {
	for _, a := range s.order {
		if err := a.Process(s.ctx); err != nil {
			diagnostics.Reportf(s.sink, a.Name(), "", diagnostics.Error, "process failed, outputs zero-filled: %v", err)
			zeroOutputs(a)
		}
	}
}

// zeroOutputs silences every output row of a failed atom for the
// remainder of the block.
func zeroOutputs(a AtomicComponent) {
	for _, p := range a.AudioPorts() {
		if p.Direction != Output {
			continue
		}
		for ch := 0; ch < p.Width; ch++ {
			row := p.Channel(ch)
			for i := range row {
				row[i] = 0
			}
		}
	}
}

type collected struct {
	atomics    []AtomicComponent
	audioConns []AudioConnection
	paramConns []ParameterConnection
}

func collect(c Component, out *collected) {
	if composite, ok := c.(CompositeComponent); ok {
		for _, child := range composite.Children() {
			collect(child, out)
		}
		out.audioConns = append(out.audioConns, composite.AudioConnections()...)
		out.paramConns = append(out.paramConns, composite.ParameterConnections()...)
		return
	}
	if atomic, ok := c.(AtomicComponent); ok {
		out.atomics = append(out.atomics, atomic)
	}
}

func checkDuplicatePortNames(c Component) error {
	seen := map[string]bool{}
	for _, p := range c.AudioPorts() {
		if seen[p.Name] {
			return NewConfigError(c.Name(), p.Name, "duplicate audio port name")
		}
		seen[p.Name] = true
	}
	seenParam := map[string]bool{}
	for _, p := range c.ParameterPorts() {
		if seenParam[p.Name] {
			return NewConfigError(c.Name(), p.Name, "duplicate parameter port name")
		}
		seenParam[p.Name] = true
	}
	return nil
}

// Flatten inlines a composite tree into a flat execution schedule and a
// CommunicationArea realising every audio connection as pointer aliasing.
// It is the graph's one-time "initialise" step; the result is immutable
// from then until teardown.
func Flatten(root Component, blockSize int, samplingFrequency float64, alignment int) (*Schedule, *CommunicationArea, error) {
	if blockSize <= 0 {
		return nil, nil, NewConfigError(root.Name(), "", "block size must be positive")
	}

	var c collected
	collect(root, &c)

	if err := checkDuplicatePortNames(root); err != nil {
		return nil, nil, err
	}
	if composite, ok := root.(CompositeComponent); ok {
		for _, child := range walkAll(composite) {
			if err := checkDuplicatePortNames(child); err != nil {
				return nil, nil, err
			}
		}
	}

	index := make(map[AtomicComponent]int, len(c.atomics))
	for i, a := range c.atomics {
		index[a] = i
	}

	// Validate and index audio connections.
	for _, conn := range c.audioConns {
		prod := conn.Producer.resolve()
		cons := conn.Consumer.resolve()
		if prod.Direction != Output {
			return nil, nil, NewConfigError(prod.Owner.Name(), prod.Name, "audio connection producer is not an output port")
		}
		if cons.Direction != Input {
			return nil, nil, NewConfigError(cons.Owner.Name(), cons.Name, "audio connection consumer is not an input port")
		}
		if conn.ProducerOffset+conn.Width > prod.Width || conn.ConsumerOffset+conn.Width > cons.Width {
			return nil, nil, NewConfigError(cons.Owner.Name(), cons.Name, "audio connection channel range exceeds port width")
		}
	}

	// Validate parameter connections and alias the consumer's cell to the
	// producer's, so both sides read/write the same underlying
	// pml.Shared/DoubleBuffered/MessageQueue object from here on.
	for _, conn := range c.paramConns {
		prod := conn.Producer.resolve()
		cons := conn.Consumer.resolve()
		if prod.ParamType != cons.ParamType || prod.Protocol != cons.Protocol {
			return nil, nil, NewConfigError(cons.Owner.Name(), cons.Name, "parameter connection type/protocol mismatch")
		}
		cons.Cell = prod.Cell
	}

	// Build the dependency DAG: audio edges always order producer before
	// consumer; Shared-protocol parameter edges do too (same-block
	// visibility requires the producer to have already written).
	// DoubleBuffered/MessageQueue edges impose no ordering constraint, so
	// a cycle composed entirely of those protocols is permitted.
	adjacency := make([][]int, len(c.atomics))
	inDegree := make([]int, len(c.atomics))
	addEdge := func(from, to int) {
		adjacency[from] = append(adjacency[from], to)
		inDegree[to]++
	}
	for _, conn := range c.audioConns {
		prodAtom := conn.Producer.resolve().Owner
		consAtom := conn.Consumer.resolve().Owner
		pi, pok := index[atomicOf(prodAtom)]
		ci, cok := index[atomicOf(consAtom)]
		if pok && cok && pi != ci {
			addEdge(pi, ci)
		}
	}
	for _, conn := range c.paramConns {
		if conn.Producer.resolve().Protocol != Shared {
			continue
		}
		prodAtom := conn.Producer.resolve().Owner
		consAtom := conn.Consumer.resolve().Owner
		pi, pok := index[atomicOf(prodAtom)]
		ci, cok := index[atomicOf(consAtom)]
		if pok && cok && pi != ci {
			addEdge(pi, ci)
		}
	}

	order, err := topoSort(adjacency, inDegree)
	if err != nil {
		return nil, nil, NewConfigError(root.Name(), "", "cycle detected in audio/shared-parameter connection graph")
	}

	// Allocate the CommunicationArea: one row per atomic output channel.
	numRows := 0
	for _, a := range c.atomics {
		for _, p := range a.AudioPorts() {
			if p.Direction == Output {
				numRows += p.Width
			}
		}
	}
	area := newCommunicationArea(numRows, blockSize, alignment)
	rowCounter := 0
	for _, a := range c.atomics {
		for _, p := range a.AudioPorts() {
			if p.Direction == Output {
				p.rows = make([][]float64, p.Width)
				for ch := 0; ch < p.Width; ch++ {
					// Each row is blockSize samples long; the padding up to
					// the row stride stays in the slice capacity so the next
					// row starts on an alignment boundary.
					p.rows[ch] = area.row(rowCounter)[:blockSize]
					rowCounter++
				}
			}
		}
	}

	// Alias consumer input channels onto their producer's rows.
	for _, conn := range c.audioConns {
		prod := conn.Producer.resolve()
		cons := conn.Consumer.resolve()
		if cons.rows == nil {
			cons.rows = make([][]float64, cons.Width)
		}
		for ch := 0; ch < conn.Width; ch++ {
			cons.rows[conn.ConsumerOffset+ch] = prod.rows[conn.ProducerOffset+ch]
		}
	}

	// Every mandatory (i.e. declared) audio input must end up connected.
	for _, a := range c.atomics {
		for _, p := range a.AudioPorts() {
			if p.Direction == Input && p.Width > 0 {
				if p.rows == nil || hasNilRow(p.rows) {
					return nil, nil, NewConfigError(a.Name(), p.Name, "unconnected mandatory audio input")
				}
			}
		}
	}

	ctx := &SignalFlowContext{BlockSize: blockSize, SamplingFrequency: samplingFrequency, Alignment: alignment}
	scheduled := make([]AtomicComponent, len(order))
	for i, idx := range order {
		scheduled[i] = c.atomics[idx]
	}
	return &Schedule{order: scheduled, ctx: ctx}, area, nil
}

func hasNilRow(rows [][]float64) bool {
	for _, r := range rows {
		if r == nil {
			return true
		}
	}
	return false
}

// atomicOf returns its argument re-typed as AtomicComponent; the concrete
// types stored on ports are always owners already satisfying the
// interface since only atomic components create real (non-passthrough)
// ports.
func atomicOf(c Component) AtomicComponent {
	a, _ := c.(AtomicComponent)
	return a
}

func walkAll(c CompositeComponent) []Component {
	var out []Component
	for _, child := range c.Children() {
		out = append(out, child)
		if nested, ok := child.(CompositeComponent); ok {
			out = append(out, walkAll(nested)...)
		}
	}
	return out
}

// topoSort runs Kahn's algorithm, always picking the lowest-index ready
// node so repeated runs over the same declaration order produce the same
// schedule (ties broken by component insertion order).
func topoSort(adjacency [][]int, inDegree []int) ([]int, error) {
	n := len(adjacency)
	remaining := make([]int, n)
	copy(remaining, inDegree)

	var ready []int
	for i := 0; i < n; i++ {
		if remaining[i] == 0 {
			ready = append(ready, i)
		}
	}

	var order []int
	for len(ready) > 0 {
		// pick the smallest index among ready nodes
		minPos := 0
		for i := 1; i < len(ready); i++ {
			if ready[i] < ready[minPos] {
				minPos = i
			}
		}
		node := ready[minPos]
		ready = append(ready[:minPos], ready[minPos+1:]...)
		order = append(order, node)

		for _, next := range adjacency[node] {
			remaining[next]--
			if remaining[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(order) != n {
		return nil, fmt.Errorf("graph: cycle detected")
	}
	return order, nil
}
