package reverbobject

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/pml"
	"github.com/san-kum/dynrenderer/internal/rbbl/biquad"
	"github.com/san-kum/dynrenderer/internal/rcl"
)

// LateReverbFilterCalculatorConfig groups construction parameters.
type LateReverbFilterCalculatorConfig struct {
	NumSubbands         int // K; must match the LateReverb descriptors it receives
	LateLengthSeconds   float64
	MaxUpdatesPerPeriod int
	// AnalysisBiquads is the fixed bank of K subband filters every slot's
	// noise sequence is passed through; len must equal NumSubbands.
	AnalysisBiquads []biquad.Coefficients
	QueueCapacity   int
}

type noiseKey struct {
	slot, band int
}

// LateReverbFilterCalculator synthesises late-reverb tails: it drains (slot,
// LateReverb) messages and synthesises a late-tail impulse response per
// slot by summing K enveloped, filtered white-noise subbands, then
// forwards the result as a filter-update message for an rcl.FirFilterMatrix.
type LateReverbFilterCalculator struct {
	graph.Base

	lateReverbInput  *graph.ParameterPort // *pml.MessageQueue[pml.IndexedValue]
	filterUpdateOutput *graph.ParameterPort // *pml.MessageQueue[rcl.FilterUpdate]

	numSubbands         int
	lateLengthSeconds   float64
	maxUpdatesPerPeriod int
	analysisBiquads     []biquad.Coefficients

	noiseCache map[noiseKey][]float64
}

// NewLateReverbFilterCalculator constructs the atom per cfg.
func NewLateReverbFilterCalculator(name string, cfg LateReverbFilterCalculatorConfig) (*LateReverbFilterCalculator, error) {
	if cfg.NumSubbands <= 0 {
		return nil, fmt.Errorf("reverbobject: LateReverbFilterCalculator: numSubbands must be positive")
	}
	if len(cfg.AnalysisBiquads) != cfg.NumSubbands {
		return nil, fmt.Errorf("reverbobject: LateReverbFilterCalculator: analysisBiquads must have numSubbands entries")
	}
	if cfg.LateLengthSeconds <= 0 {
		return nil, fmt.Errorf("reverbobject: LateReverbFilterCalculator: lateLengthSeconds must be positive")
	}
	if cfg.MaxUpdatesPerPeriod <= 0 {
		cfg.MaxUpdatesPerPeriod = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 32
	}

	c := &LateReverbFilterCalculator{
		Base:                graph.NewBase(name),
		numSubbands:         cfg.NumSubbands,
		lateLengthSeconds:   cfg.LateLengthSeconds,
		maxUpdatesPerPeriod: cfg.MaxUpdatesPerPeriod,
		analysisBiquads:     cfg.AnalysisBiquads,
		noiseCache:          make(map[noiseKey][]float64),
	}

	inQueue, err := pml.NewMessageQueue[pml.IndexedValue](cfg.QueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("reverbobject: LateReverbFilterCalculator: %w", err)
	}
	c.lateReverbInput = c.AddParameterPort(graph.NewParameterPort(c, "lateReverb", graph.Input, "indexedValue", graph.MessageQueue, inQueue))

	outQueue, err := pml.NewMessageQueue[rcl.FilterUpdate](cfg.QueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("reverbobject: LateReverbFilterCalculator: %w", err)
	}
	c.filterUpdateOutput = c.AddParameterPort(graph.NewParameterPort(c, "filterUpdates", graph.Output, "filterUpdate", graph.MessageQueue, outQueue))

	return c, nil
}

// LateReverbInput and FilterUpdateOutput expose the ports for wiring.
func (c *LateReverbFilterCalculator) LateReverbInput() *graph.ParameterPort {
	return c.lateReverbInput
}
func (c *LateReverbFilterCalculator) FilterUpdateOutput() *graph.ParameterPort {
	return c.filterUpdateOutput
}

// PushLateReverb is a direct-write convenience for callers driving this
// atom without an upstream producer component.
func (c *LateReverbFilterCalculator) PushLateReverb(slot int, lr objectmodel.LateReverb) bool {
	queue := c.lateReverbInput.Cell.(*pml.MessageQueue[pml.IndexedValue])
	return queue.Push(pml.IndexedValue{Index: slot, Value: lr})
}

func (c *LateReverbFilterCalculator) Process(ctx *graph.SignalFlowContext) error {
	inQueue := c.lateReverbInput.Cell.(*pml.MessageQueue[pml.IndexedValue])
	outQueue := c.filterUpdateOutput.Cell.(*pml.MessageQueue[rcl.FilterUpdate])

	irLen := int(math.Ceil(c.lateLengthSeconds * ctx.SamplingFrequency))
	if irLen <= 0 {
		irLen = 1
	}

	for i := 0; i < c.maxUpdatesPerPeriod; i++ {
		msg, ok := inQueue.Pop()
		if !ok {
			break
		}
		lr, ok := msg.Value.(objectmodel.LateReverb)
		if !ok {
			continue
		}
		ir := c.synthesize(msg.Index, lr, irLen, ctx.SamplingFrequency)
		outQueue.Push(rcl.FilterUpdate{FilterIndex: msg.Index, Coefficients: ir})
	}
	return nil
}

func (c *LateReverbFilterCalculator) synthesize(slot int, lr objectmodel.LateReverb, irLen int, fs float64) []float64 {
	ir := make([]float64, irLen)
	numBands := c.numSubbands
	for _, s := range [][]float64{lr.SubbandLevels, lr.SubbandDecayCoeffs, lr.SubbandAttackTimes} {
		if len(s) < numBands {
			numBands = len(s)
		}
	}
	for band := 0; band < numBands; band++ {
		noise := c.noiseFor(slot, band, irLen)
		filtered := applyBiquad(noise, c.analysisBiquads[band])
		envelope := subbandEnvelope(lr.OnsetDelay, lr.SubbandLevels[band], lr.SubbandAttackTimes[band], lr.SubbandDecayCoeffs[band], irLen, fs)
		for i := 0; i < irLen; i++ {
			ir[i] += filtered[i] * envelope[i]
		}
	}
	return ir
}

func (c *LateReverbFilterCalculator) noiseFor(slot, band, length int) []float64 {
	key := noiseKey{slot, band}
	if cached, ok := c.noiseCache[key]; ok && len(cached) == length {
		return cached
	}
	src := rand.New(rand.NewSource(int64(slot)*1000003 + int64(band)*97 + 1))
	seq := make([]float64, length)
	for i := range seq {
		seq[i] = src.Float64()*2 - 1
	}
	c.noiseCache[key] = seq
	return seq
}

func subbandEnvelope(onsetDelay, level, attackTime, decayCoeff float64, irLen int, fs float64) []float64 {
	env := make([]float64, irLen)
	onsetSamples := int(math.Round(onsetDelay * fs))
	attackSamples := int(math.Round(attackTime * fs))
	if attackSamples < 1 {
		attackSamples = 1
	}
	for i := 0; i < irLen; i++ {
		switch {
		case i < onsetSamples:
			env[i] = 0
		case i < onsetSamples+attackSamples:
			progress := float64(i-onsetSamples) / float64(attackSamples)
			env[i] = level * progress
		default:
			decaySamples := i - onsetSamples - attackSamples
			env[i] = level * math.Pow(decayCoeff, float64(decaySamples))
		}
	}
	return env
}

// applyBiquad filters in through a single direct-form-II biquad
// section, independent of rbbl/biquad.Bank since the late-reverb
// synthesiser runs one section per subband on an offline noise buffer
// rather than a per-block audio channel.
func applyBiquad(in []float64, coeffs biquad.Coefficients) []float64 {
	out := make([]float64, len(in))
	var w1, w2 float64
	for i, x := range in {
		w := x - coeffs.A1*w1 - coeffs.A2*w2
		y := coeffs.B0*w + coeffs.B1*w1 + coeffs.B2*w2
		w2 = w1
		w1 = w
		out[i] = y
	}
	return out
}
