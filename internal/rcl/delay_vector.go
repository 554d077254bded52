package rcl

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/pml"
	"github.com/san-kum/dynrenderer/internal/rbbl/circularbuffer"
	"github.com/san-kum/dynrenderer/internal/rbbl/fracdelay"
)

// DelayVector is a per-channel gain-and-delay block: each of its N
// channels independently interpolates delay and gain from a current to
// a target value over a configured interpolation period, reading its
// delayed signal from a circular buffer through a fractional-delay
// interpolator.
type DelayVector struct {
	graph.Base
	in, out *graph.AudioPort

	gainInput  *graph.ParameterPort // *pml.DoubleBuffered[pml.VectorParameter], optional
	delayInput *graph.ParameterPort // *pml.DoubleBuffered[pml.VectorParameter], optional

	buffer       *circularbuffer.Buffer
	interpolator fracdelay.Interpolator
	maxDelay     float64 // samples

	blockSize           int
	interpolationPeriod int
	interpPeriods       int // interpolationPeriod / blockSize
	// ramp holds, for each sample position within an interpolation
	// period, the fraction of the current-to-target distance that
	// sample should have covered; positions past the period are pinned
	// at 1. Length (interpPeriods+1)*blockSize, mirroring
	// gainmatrix.GainMatrix's precomputed ramp table.
	ramp []float64

	gainCounter, delayCounter int // blocks elapsed in the current ramp, 0..interpPeriods

	currentGain, targetGain   []float64
	currentDelay, targetDelay []float64

	writeScratch [][]float64 // per-block channel views passed to the ring buffer
}

// DelayVectorConfig groups DelayVector construction parameters.
type DelayVectorConfig struct {
	NumChannels         int
	BlockSize           int
	MaxDelaySeconds     float64
	SamplingFrequency   float64
	InterpolationMethod string // "nearestSample", "linear", "lagrangeOrderN"
	InterpolationPeriod int    // samples, must be a multiple of BlockSize
	Alignment           int
	WithGainInput       bool
	WithDelayInput      bool
}

// NewDelayVector constructs a DelayVector per cfg.
func NewDelayVector(name string, cfg DelayVectorConfig) (*DelayVector, error) {
	if cfg.NumChannels <= 0 || cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("rcl: DelayVector: numChannels and blockSize must be positive")
	}
	if cfg.InterpolationPeriod%cfg.BlockSize != 0 {
		return nil, fmt.Errorf("rcl: DelayVector: interpolationPeriod must be an integral multiple of blockSize")
	}
	interp, err := fracdelay.New(cfg.InterpolationMethod)
	if err != nil {
		return nil, fmt.Errorf("rcl: DelayVector: %w", err)
	}
	maxDelaySamples := cfg.MaxDelaySeconds * cfg.SamplingFrequency
	bufferLength := int(maxDelaySamples) + cfg.BlockSize + int(interp.MethodDelay()) + 2
	buf, err := circularbuffer.New(cfg.NumChannels, bufferLength, cfg.Alignment)
	if err != nil {
		return nil, fmt.Errorf("rcl: DelayVector: %w", err)
	}

	interpPeriods := cfg.InterpolationPeriod / cfg.BlockSize
	if interpPeriods < 1 {
		interpPeriods = 1
	}

	d := &DelayVector{
		Base:                graph.NewBase(name),
		buffer:              buf,
		interpolator:        interp,
		maxDelay:            maxDelaySamples,
		blockSize:           cfg.BlockSize,
		interpolationPeriod: cfg.InterpolationPeriod,
		interpPeriods:       interpPeriods,
		ramp:                make([]float64, (interpPeriods+1)*cfg.BlockSize),
		gainCounter:         interpPeriods,
		delayCounter:        interpPeriods,
		currentGain:         make([]float64, cfg.NumChannels),
		targetGain:          make([]float64, cfg.NumChannels),
		currentDelay:        make([]float64, cfg.NumChannels),
		targetDelay:         make([]float64, cfg.NumChannels),
		writeScratch:        make([][]float64, cfg.NumChannels),
	}
	d.buildRamp()
	d.in = d.AddAudioPort(graph.NewAudioPort(d, "in", graph.Input, cfg.NumChannels))
	d.out = d.AddAudioPort(graph.NewAudioPort(d, "out", graph.Output, cfg.NumChannels))

	if cfg.WithGainInput {
		cell := pml.NewDoubleBuffered(pml.NewVectorParameter(cfg.NumChannels))
		d.gainInput = d.AddParameterPort(graph.NewParameterPort(d, "gain", graph.Input, "vector", graph.DoubleBuffered, cell))
	}
	if cfg.WithDelayInput {
		cell := pml.NewDoubleBuffered(pml.NewVectorParameter(cfg.NumChannels))
		d.delayInput = d.AddParameterPort(graph.NewParameterPort(d, "delay", graph.Input, "vector", graph.DoubleBuffered, cell))
	}
	return d, nil
}

// Input and Output expose the audio ports for wiring.
func (d *DelayVector) Input() *graph.AudioPort  { return d.in }
func (d *DelayVector) Output() *graph.AudioPort { return d.out }

// NumChannels reports the configured channel count.
func (d *DelayVector) NumChannels() int { return len(d.currentGain) }

// MethodDelay reports the configured interpolator's own latency in
// samples, the amount by which the effective minimum delay exceeds a
// requested delay shorter than the interpolator's reach.
func (d *DelayVector) MethodDelay() float64 { return d.interpolator.MethodDelay() }

// GainPort exposes the optional gain parameter port for wiring, or nil if
// the atom was constructed without WithGainInput.
func (d *DelayVector) GainPort() *graph.ParameterPort { return d.gainInput }

// DelayPort exposes the optional delay parameter port for wiring, or nil
// if the atom was constructed without WithDelayInput.
func (d *DelayVector) DelayPort() *graph.ParameterPort { return d.delayInput }

// SetGain overwrites the gain cell directly, for callers driving the
// atom without a producer component.
func (d *DelayVector) SetGain(v pml.VectorParameter) {
	d.gainInput.Cell.(*pml.DoubleBuffered[pml.VectorParameter]).SetBack(v)
	d.gainInput.Cell.(*pml.DoubleBuffered[pml.VectorParameter]).Publish()
}

// SetDelay overwrites the delay cell directly, for callers driving the
// atom without a producer component.
func (d *DelayVector) SetDelay(v pml.VectorParameter) {
	d.delayInput.Cell.(*pml.DoubleBuffered[pml.VectorParameter]).SetBack(v)
	d.delayInput.Cell.(*pml.DoubleBuffered[pml.VectorParameter]).Publish()
}

// buildRamp precomputes the per-sample interpolation fractions spanning
// one full interpolation period, the same table shape as
// gainmatrix.GainMatrix.buildRamp.
func (d *DelayVector) buildRamp() {
	n := d.interpPeriods * d.blockSize
	for i := 0; i < n; i++ {
		d.ramp[i] = float64(i+1) / float64(n)
	}
	for i := n; i < len(d.ramp); i++ {
		d.ramp[i] = 1
	}
}

func (d *DelayVector) clampDelay(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > d.maxDelay {
		return d.maxDelay
	}
	return v
}

// rebase folds the interpolated value reached so far under counter (out
// of interpPeriods elapsed blocks) into current, so a new target arriving
// mid-ramp continues smoothly instead of jumping. Once counter has
// reached interpPeriods the ramp is complete, so current simply takes
// the prior target.
func (d *DelayVector) rebase(current, target []float64, counter int) {
	if counter >= d.interpPeriods {
		copy(current, target)
		return
	}
	ratio := float64(counter) / float64(d.interpPeriods)
	for i := range current {
		current[i] += ratio * (target[i] - current[i])
	}
}

func (d *DelayVector) checkForNewTargets() {
	if d.gainInput != nil {
		cell := d.gainInput.Cell.(*pml.DoubleBuffered[pml.VectorParameter])
		if cell.Changed() {
			d.rebase(d.currentGain, d.targetGain, d.gainCounter)
			copy(d.targetGain, cell.Front().Values)
			d.gainCounter = 0
		}
	}
	if d.delayInput != nil {
		cell := d.delayInput.Cell.(*pml.DoubleBuffered[pml.VectorParameter])
		if cell.Changed() {
			d.rebase(d.currentDelay, d.targetDelay, d.delayCounter)
			for i, v := range cell.Front().Values {
				d.targetDelay[i] = d.clampDelay(v)
			}
			d.delayCounter = 0
		}
	}
}

func (d *DelayVector) Process(ctx *graph.SignalFlowContext) error {
	d.checkForNewTargets()

	n := ctx.BlockSize
	for ch := 0; ch < d.in.Width; ch++ {
		d.writeScratch[ch] = d.in.Channel(ch)
	}
	if err := d.buffer.Write(d.writeScratch); err != nil {
		return fmt.Errorf("DelayVector: %w", err)
	}

	gainRamp := d.ramp[d.blockSize*d.gainCounter : d.blockSize*(d.gainCounter+1)]
	delayRamp := d.ramp[d.blockSize*d.delayCounter : d.blockSize*(d.delayCounter+1)]

	for ch := 0; ch < d.in.Width; ch++ {
		out := d.out.Channel(ch)
		startGain := d.currentGain[ch]
		gainDiff := d.targetGain[ch] - startGain
		startDelay := d.currentDelay[ch]
		delayDiff := d.targetDelay[ch] - startDelay

		for i := 0; i < n; i++ {
			gain := startGain + gainDiff*gainRamp[i]
			delay := startDelay + delayDiff*delayRamp[i]

			sampleDelay := delay
			if sampleDelay < 0 {
				sampleDelay = 0
			}
			// delaySamplesAgo counts from the sample just written, i.e. a
			// delay of 0 reads the most recent sample. Sample i within the
			// block is (n-1-i) samples older than the block's last sample.
			// The interpolator receives the full fractional delay so a
			// Lagrange stencil can centre itself on it; the buffer holds a
			// MethodDelay margin beyond the configured maximum for the
			// taps reaching past it.
			delayFromBufferHead := sampleDelay + float64(n-1-i)
			history := func(k int) float64 {
				v, err := d.buffer.ReadSample(ch, k)
				if err != nil {
					return 0
				}
				return v
			}
			value := d.interpolator.Sample(history, delayFromBufferHead)
			out[i] = value * gain
		}
	}

	if d.gainCounter < d.interpPeriods {
		d.gainCounter++
	}
	if d.delayCounter < d.interpPeriods {
		d.delayCounter++
	}
	return nil
}
