package rcl

import (
	"math"
	"testing"

	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/pml"
)

func TestDelayVectorZeroDelayUnityGainPassesThroughAtSteadyState(t *testing.T) {
	const blockSize = 4
	d, err := NewDelayVector("dv", DelayVectorConfig{
		NumChannels:         1,
		BlockSize:           blockSize,
		MaxDelaySeconds:     0.01,
		SamplingFrequency:   48000,
		InterpolationMethod: "nearestSample",
		InterpolationPeriod: blockSize,
		Alignment:           1,
	})
	if err != nil {
		t.Fatalf("NewDelayVector: %v", err)
	}
	d.currentGain[0], d.targetGain[0] = 1, 1

	in := bindFlat(d.Input(), 1, blockSize)
	out := bindFlat(d.Output(), 1, blockSize)
	ctx := &graph.SignalFlowContext{BlockSize: blockSize, SamplingFrequency: 48000, Alignment: 1}

	for block := 0; block < 3; block++ {
		for i := range in[0] {
			in[0][i] = 5
		}
		if err := d.Process(ctx); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	for i, v := range out[0] {
		if v != 5 {
			t.Fatalf("steady-state out[%d] = %v, want 5", i, v)
		}
	}
}

func TestDelayVectorGainRampIsMonotone(t *testing.T) {
	const blockSize, period = 4, 16
	d, err := NewDelayVector("dv", DelayVectorConfig{
		NumChannels:         1,
		BlockSize:           blockSize,
		MaxDelaySeconds:     0.01,
		SamplingFrequency:   48000,
		InterpolationMethod: "nearestSample",
		InterpolationPeriod: period,
		Alignment:           1,
		WithGainInput:       true,
	})
	if err != nil {
		t.Fatalf("NewDelayVector: %v", err)
	}
	in := bindFlat(d.Input(), 1, blockSize)
	out := bindFlat(d.Output(), 1, blockSize)
	for i := range in[0] {
		in[0][i] = 1
	}

	gainCell := d.gainInput.Cell.(*pml.DoubleBuffered[pml.VectorParameter])
	target := pml.NewVectorParameter(1)
	target.Values[0] = 1
	gainCell.SetBack(target)
	gainCell.Publish()

	ctx := &graph.SignalFlowContext{BlockSize: blockSize, SamplingFrequency: 48000, Alignment: 1}
	var prev float64
	for block := 0; block < period/blockSize; block++ {
		if err := d.Process(ctx); err != nil {
			t.Fatalf("Process: %v", err)
		}
		for _, v := range out[0] {
			if v < prev-1e-9 {
				t.Fatalf("gain ramp not monotone: %v after %v", v, prev)
			}
			prev = v
		}
	}
	if prev < 0.99 {
		t.Fatalf("gain ramp did not reach target, last sample %v", prev)
	}
}

func TestDelayVectorLagrangeZeroDelayUsesMostRecentSample(t *testing.T) {
	const blockSize = 8
	d, err := NewDelayVector("dv", DelayVectorConfig{
		NumChannels:         1,
		BlockSize:           blockSize,
		MaxDelaySeconds:     0.01,
		SamplingFrequency:   48000,
		InterpolationMethod: "lagrangeOrder3",
		InterpolationPeriod: blockSize,
		Alignment:           1,
	})
	if err != nil {
		t.Fatalf("NewDelayVector: %v", err)
	}
	d.currentGain[0], d.targetGain[0] = 1, 1

	in := bindFlat(d.Input(), 1, blockSize)
	out := bindFlat(d.Output(), 1, blockSize)
	ctx := &graph.SignalFlowContext{BlockSize: blockSize, SamplingFrequency: 48000, Alignment: 1}

	for block := 0; block < 2; block++ {
		for i := range in[0] {
			in[0][i] = float64(block*blockSize + i + 1)
		}
		if err := d.Process(ctx); err != nil {
			t.Fatalf("Process: %v", err)
		}
		for i, v := range out[0] {
			if math.Abs(v-in[0][i]) > 1e-9 {
				t.Fatalf("block %d sample %d: got %v, want %v", block, i, v, in[0][i])
			}
		}
	}
}

func TestDelayVectorLagrangeFractionalDelayedSineRMS(t *testing.T) {
	const blockSize = 64
	const fs = 48000.0
	const freqOverFs = 1.0 / 8
	const delaySamples = 5.37

	for _, method := range []string{"lagrangeOrder3", "lagrangeOrder5"} {
		d, err := NewDelayVector("dv", DelayVectorConfig{
			NumChannels:         1,
			BlockSize:           blockSize,
			MaxDelaySeconds:     0.01,
			SamplingFrequency:   fs,
			InterpolationMethod: method,
			InterpolationPeriod: blockSize,
			Alignment:           1,
			WithDelayInput:      true,
		})
		if err != nil {
			t.Fatalf("NewDelayVector(%s): %v", method, err)
		}
		d.currentGain[0], d.targetGain[0] = 1, 1

		in := bindFlat(d.Input(), 1, blockSize)
		out := bindFlat(d.Output(), 1, blockSize)
		ctx := &graph.SignalFlowContext{BlockSize: blockSize, SamplingFrequency: fs, Alignment: 1}

		target := pml.NewVectorParameter(1)
		target.Values[0] = delaySamples
		d.SetDelay(target)

		// The delay ramps to its target across block 0 and the buffer
		// fills; blocks 2+ are steady state.
		var sumSq, sumErrSq float64
		for block := 0; block < 4; block++ {
			for i := range in[0] {
				g := float64(block*blockSize + i)
				in[0][i] = math.Sin(2 * math.Pi * freqOverFs * g)
			}
			if err := d.Process(ctx); err != nil {
				t.Fatalf("Process: %v", err)
			}
			if block < 2 {
				continue
			}
			for i, v := range out[0] {
				g := float64(block*blockSize + i)
				want := math.Sin(2 * math.Pi * freqOverFs * (g - delaySamples))
				sumSq += want * want
				diff := v - want
				sumErrSq += diff * diff
			}
		}
		if ratio := math.Sqrt(sumErrSq) / math.Sqrt(sumSq); ratio > 0.005 {
			t.Errorf("%s: RMS error ratio %v exceeds 0.5%%", method, ratio)
		}
	}
}
