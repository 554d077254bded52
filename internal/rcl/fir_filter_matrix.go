package rcl

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/pml"
	"github.com/san-kum/dynrenderer/internal/rbbl/convolver"
)

// FilterUpdate names a (filterIndex, coefficients) pair delivered through
// the filter-update message queue.
type FilterUpdate struct {
	FilterIndex int
	Coefficients []float64
}

// FirFilterMatrixConfig groups FirFilterMatrix construction parameters.
type FirFilterMatrixConfig struct {
	NumberOfInputs, NumberOfOutputs int
	BlockLength                    int
	MaxFilterLength                int
	MaxRoutingPoints               int
	MaxFilters                     int
	FFTProvider                    string
	InitialRouting                 []convolver.RoutingEntry
	// InitialFilters installs impulse responses at construction, indexed
	// by filter slot; nil entries leave the slot empty.
	InitialFilters                 [][]float64
	// CrossfadeSamples, when > 0, makes filter installs fade in over that
	// many samples instead of replacing the filter outright.
	CrossfadeSamples int
}

// FirFilterMatrix is the partitioned-convolution FIR atom: up to
// MaxFilters filters routed by an up-to-MaxRoutingPoints routing table,
// with new filters and routing tables arriving via parameter inputs and
// applied at block boundaries.
//
// In the crossfading variant (CrossfadeSamples > 0) a second convolution
// engine is allocated up front; it receives every input block alongside
// the active engine so both spectrum histories stay identical, filter
// installs land on it, and its output is faded in over the configured
// transition length before the engines swap roles.
type FirFilterMatrix struct {
	graph.Base
	in, out *graph.AudioPort

	filterUpdates *graph.ParameterPort // *pml.MessageQueue[FilterUpdate]
	routingInput  *graph.ParameterPort // *pml.Shared[pml.SignalRoutingParameter]

	active *convolver.Convolver
	spare  *convolver.Convolver // crossfading variant only
	fading bool
	fadePos, fadeLen int

	inScratch        [][]float64
	outScratch       [][]float64
	oldOut, newOut   [][]float64 // crossfade render scratch

	lastRouting []convolver.RoutingEntry
	cfg         FirFilterMatrixConfig
}

// NewFirFilterMatrix constructs the atom per cfg.
func NewFirFilterMatrix(name string, cfg FirFilterMatrixConfig) (*FirFilterMatrix, error) {
	active, err := convolver.New(cfg.NumberOfInputs, cfg.NumberOfOutputs, cfg.BlockLength, cfg.MaxFilterLength, cfg.MaxRoutingPoints, cfg.MaxFilters, providerOrDefault(cfg.FFTProvider))
	if err != nil {
		return nil, fmt.Errorf("rcl: FirFilterMatrix: %w", err)
	}
	if len(cfg.InitialRouting) > 0 {
		if err := active.SetRoutingTable(cfg.InitialRouting); err != nil {
			return nil, fmt.Errorf("rcl: FirFilterMatrix: %w", err)
		}
	}
	for i, ir := range cfg.InitialFilters {
		if ir == nil {
			continue
		}
		if err := active.SetFilter(i, ir); err != nil {
			return nil, fmt.Errorf("rcl: FirFilterMatrix: %w", err)
		}
	}

	f := &FirFilterMatrix{Base: graph.NewBase(name), active: active, cfg: cfg, lastRouting: cfg.InitialRouting}
	f.inScratch = make([][]float64, cfg.NumberOfInputs)
	f.outScratch = make([][]float64, cfg.NumberOfOutputs)
	if cfg.CrossfadeSamples > 0 {
		spare, err := convolver.New(cfg.NumberOfInputs, cfg.NumberOfOutputs, cfg.BlockLength, cfg.MaxFilterLength, cfg.MaxRoutingPoints, cfg.MaxFilters, providerOrDefault(cfg.FFTProvider))
		if err != nil {
			return nil, fmt.Errorf("rcl: FirFilterMatrix: %w", err)
		}
		if len(cfg.InitialRouting) > 0 {
			if err := spare.SetRoutingTable(cfg.InitialRouting); err != nil {
				return nil, fmt.Errorf("rcl: FirFilterMatrix: %w", err)
			}
		}
		f.spare = spare
		f.oldOut = make([][]float64, cfg.NumberOfOutputs)
		f.newOut = make([][]float64, cfg.NumberOfOutputs)
		for ch := range f.oldOut {
			f.oldOut[ch] = make([]float64, cfg.BlockLength)
			f.newOut[ch] = make([]float64, cfg.BlockLength)
		}
	}
	f.in = f.AddAudioPort(graph.NewAudioPort(f, "in", graph.Input, cfg.NumberOfInputs))
	f.out = f.AddAudioPort(graph.NewAudioPort(f, "out", graph.Output, cfg.NumberOfOutputs))

	queue, err := pml.NewMessageQueue[FilterUpdate](max(cfg.MaxFilters, 1) * 4)
	if err != nil {
		return nil, fmt.Errorf("rcl: FirFilterMatrix: %w", err)
	}
	f.filterUpdates = f.AddParameterPort(graph.NewParameterPort(f, "filterUpdates", graph.Input, "filterUpdate", graph.MessageQueue, queue))

	routingCell := pml.NewShared(pml.SignalRoutingParameter{Entries: cfg.InitialRouting})
	f.routingInput = f.AddParameterPort(graph.NewParameterPort(f, "routing", graph.Input, "signalRouting", graph.Shared, routingCell))

	return f, nil
}

func providerOrDefault(name string) string {
	if name == "" {
		return "default"
	}
	return name
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Input and Output expose the audio ports for wiring.
func (f *FirFilterMatrix) Input() *graph.AudioPort  { return f.in }
func (f *FirFilterMatrix) Output() *graph.AudioPort { return f.out }

// FilterUpdateQueue exposes the message queue for producers (a
// late-reverb filter calculator, or a test) to push updates into.
func (f *FirFilterMatrix) FilterUpdateQueue() *pml.MessageQueue[FilterUpdate] {
	return f.filterUpdates.Cell.(*pml.MessageQueue[FilterUpdate])
}

// FilterUpdatePort exposes the filter-update parameter port itself, for
// composites that wire it to a calculator's output via a
// graph.ParameterConnection instead of pushing into the queue directly.
func (f *FirFilterMatrix) FilterUpdatePort() *graph.ParameterPort { return f.filterUpdates }

// RoutingCell exposes the shared routing-table cell for direct updates.
func (f *FirFilterMatrix) RoutingCell() *pml.Shared[pml.SignalRoutingParameter] {
	return f.routingInput.Cell.(*pml.Shared[pml.SignalRoutingParameter])
}

func (f *FirFilterMatrix) applyRoutingIfChanged() error {
	routing := f.RoutingCell().Get().Entries
	if routingEqual(routing, f.lastRouting) {
		return nil
	}
	if err := f.active.SetRoutingTable(routing); err != nil {
		return err
	}
	if f.spare != nil {
		if err := f.spare.SetRoutingTable(routing); err != nil {
			return err
		}
	}
	f.lastRouting = routing
	return nil
}

func routingEqual(a, b []convolver.RoutingEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f *FirFilterMatrix) applyFilterUpdates() error {
	updates := f.FilterUpdateQueue().DrainAll()
	if len(updates) == 0 {
		return nil
	}
	for _, u := range updates {
		if f.spare != nil {
			if !f.fading {
				// Filters not touched by this update keep rendering through
				// the fade, so the spare engine must start from the active
				// engine's full filter bank.
				if err := f.spare.CopyFiltersFrom(f.active); err != nil {
					return err
				}
				f.fading = true
				f.fadePos = 0
				f.fadeLen = f.cfg.CrossfadeSamples
			}
			if err := f.spare.SetFilter(u.FilterIndex, u.Coefficients); err != nil {
				return err
			}
		} else {
			if err := f.active.SetFilter(u.FilterIndex, u.Coefficients); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *FirFilterMatrix) Process(ctx *graph.SignalFlowContext) error {
	if err := f.applyRoutingIfChanged(); err != nil {
		return fmt.Errorf("FirFilterMatrix: %w", err)
	}
	if err := f.applyFilterUpdates(); err != nil {
		return fmt.Errorf("FirFilterMatrix: %w", err)
	}

	in := f.inScratch
	for ch := 0; ch < f.in.Width; ch++ {
		in[ch] = f.in.Channel(ch)
	}
	out := f.outScratch
	for ch := 0; ch < f.out.Width; ch++ {
		out[ch] = f.out.Channel(ch)
	}

	if err := f.active.PushInput(in); err != nil {
		return fmt.Errorf("FirFilterMatrix: %w", err)
	}
	if f.spare != nil {
		// The spare engine's spectrum history must track the active one's
		// even while idle, or a later fade would convolve against stale
		// input.
		if err := f.spare.PushInput(in); err != nil {
			return fmt.Errorf("FirFilterMatrix: %w", err)
		}
	}

	if !f.fading {
		return f.active.RenderOutput(out)
	}

	if err := f.active.RenderOutput(f.oldOut); err != nil {
		return err
	}
	if err := f.spare.RenderOutput(f.newOut); err != nil {
		return err
	}
	for ch := 0; ch < f.out.Width; ch++ {
		for i := 0; i < ctx.BlockSize; i++ {
			pos := f.fadePos + i
			ratio := 1.0
			if f.fadeLen > 0 {
				ratio = float64(pos) / float64(f.fadeLen)
			}
			if ratio > 1 {
				ratio = 1
			}
			out[ch][i] = f.oldOut[ch][i]*(1-ratio) + f.newOut[ch][i]*ratio
		}
	}
	f.fadePos += ctx.BlockSize
	if f.fadePos >= f.fadeLen {
		f.active, f.spare = f.spare, f.active
		f.fading = false
		f.fadePos = 0
	}
	return nil
}
