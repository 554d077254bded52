package signalflows

import (
	"math"
	"strings"
	"testing"

	"github.com/san-kum/dynrenderer/internal/diagnostics"
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/panning"
	"github.com/san-kum/dynrenderer/internal/pml"
)

const blockSize = 64

func stereoArray() *panning.LoudspeakerArray {
	return panning.RegularPolygonArray([]float64{-math.Pi / 6, math.Pi / 6})
}

func baseConfig(array *panning.LoudspeakerArray, numObj int) CoreRendererConfig {
	return CoreRendererConfig{
		Array:             array,
		NumObjectChannels: numObj,
		BlockSize:         blockSize,
		SamplingFrequency: 48000,
		Alignment:         4,
		PanningMethod:     PanningVBAP,
	}
}

// runBlocks drives the renderer with a constant unit input on every
// object channel and returns the output of the final block, by which
// time every one-block interpolation ramp has settled.
func runBlocks(t *testing.T, r *CoreRenderer, numBlocks int) [][]float64 {
	t.Helper()
	in := make([][]float64, r.NumObjectChannels())
	for ch := range in {
		in[ch] = make([]float64, blockSize)
		for i := range in[ch] {
			in[ch][i] = 1
		}
	}
	out := make([][]float64, r.NumOutputChannels())
	for ch := range out {
		out[ch] = make([]float64, blockSize)
	}
	for b := 0; b < numBlocks; b++ {
		if err := r.ProcessBlock(in, out); err != nil {
			t.Fatalf("ProcessBlock %d: %v", b, err)
		}
	}
	return out
}

func TestCentredPointSourceOnStereoPair(t *testing.T) {
	r, err := NewCoreRenderer("renderer", baseConfig(stereoArray(), 1))
	if err != nil {
		t.Fatalf("NewCoreRenderer: %v", err)
	}
	r.PushObjects(objectmodel.Vector{{
		ID: "src", Kind: objectmodel.PointSource, ChannelIndex: 0, Level: 1,
		Position: objectmodel.FromSpherical(0, 0),
	}})

	out := runBlocks(t, r, 4)
	want := math.Sqrt2 / 2
	for ch := 0; ch < 2; ch++ {
		got := out[ch][blockSize-1]
		if math.Abs(got-want) > 1e-6 {
			t.Errorf("channel %d: got %.9f, want %.9f", ch, got, want)
		}
	}
	if math.Abs(out[0][blockSize-1]-out[1][blockSize-1]) > 1e-6 {
		t.Errorf("stereo gains differ: %v vs %v", out[0][blockSize-1], out[1][blockSize-1])
	}
}

func TestPlaneWaveLeftOfFiveChannelArray(t *testing.T) {
	// C, L, R, Ls, Rs at 0, +30, -30, +110, -110 degrees.
	array := panning.RegularPolygonArray([]float64{
		0, 30 * math.Pi / 180, -30 * math.Pi / 180, 110 * math.Pi / 180, -110 * math.Pi / 180,
	})
	r, err := NewCoreRenderer("renderer", baseConfig(array, 1))
	if err != nil {
		t.Fatalf("NewCoreRenderer: %v", err)
	}
	r.PushObjects(objectmodel.Vector{{
		ID: "pw", Kind: objectmodel.PlaneWave, ChannelIndex: 0, Level: 1,
		Azimuth: math.Pi / 2, Elevation: 0,
	}})

	out := runBlocks(t, r, 4)
	last := blockSize - 1
	if out[1][last] <= 0 || out[3][last] <= 0 {
		t.Errorf("expected positive gains on the left pair, got L=%v Ls=%v", out[1][last], out[3][last])
	}
	for _, ch := range []int{0, 2, 4} {
		if math.Abs(out[ch][last]) > 1e-9 {
			t.Errorf("expected silence on channel %d, got %v", ch, out[ch][last])
		}
	}
}

func TestSubwooferMixAndUnmappedChannelSilence(t *testing.T) {
	array := stereoArray()
	array.ChannelIndices = []int{0, 2}
	array.Subwoofers = []panning.Subwoofer{{ChannelIndex: 3, Weights: []float64{0.5, 0.5}}}
	r, err := NewCoreRenderer("renderer", baseConfig(array, 1))
	if err != nil {
		t.Fatalf("NewCoreRenderer: %v", err)
	}
	if r.NumOutputChannels() != 4 {
		t.Fatalf("NumOutputChannels: got %d, want 4", r.NumOutputChannels())
	}
	r.PushObjects(objectmodel.Vector{{
		ID: "src", Kind: objectmodel.PointSource, ChannelIndex: 0, Level: 1,
		Position: objectmodel.FromSpherical(0, 0),
	}})

	out := runBlocks(t, r, 4)
	last := blockSize - 1
	want := math.Sqrt2 / 2
	if math.Abs(out[0][last]-want) > 1e-6 || math.Abs(out[2][last]-want) > 1e-6 {
		t.Errorf("speaker channels: got %v / %v, want %v", out[0][last], out[2][last], want)
	}
	for i := 0; i < blockSize; i++ {
		if out[1][i] != 0 {
			t.Fatalf("unmapped channel 1 not silent at sample %d: %v", i, out[1][i])
		}
	}
	if math.Abs(out[3][last]-want) > 1e-6 {
		t.Errorf("subwoofer channel: got %v, want %v", out[3][last], want)
	}
}

func TestOutputTrimGainAndFrequencySplitPreserveLevel(t *testing.T) {
	array := stereoArray()
	array.GainAdjust = []float64{0.5, 0.5}
	cfg := baseConfig(array, 1)
	cfg.FrequencyDependentPanning = true
	cfg.PanningCrossoverFrequency = 700
	r, err := NewCoreRenderer("renderer", cfg)
	if err != nil {
		t.Fatalf("NewCoreRenderer: %v", err)
	}
	r.PushObjects(objectmodel.Vector{{
		ID: "src", Kind: objectmodel.PointSource, ChannelIndex: 0, Level: 1,
		Position: objectmodel.FromSpherical(0, 0),
	}})

	// A DC input passes the Linkwitz-Riley low band at unity and the
	// high band at zero; the recombined bus then carries the panning
	// gain scaled by the 0.5 output trim.
	out := runBlocks(t, r, 30)
	want := 0.5 * math.Sqrt2 / 2
	for ch := 0; ch < 2; ch++ {
		got := out[ch][blockSize-1]
		if math.Abs(got-want) > 1e-3 {
			t.Errorf("channel %d: got %.9f, want %.9f", ch, got, want)
		}
	}
}

func reverbTestObject(id string, channel int) objectmodel.Object {
	return objectmodel.Object{
		ID:           id,
		Kind:         objectmodel.PointSourceWithReverb,
		ChannelIndex: channel,
		Level:        0.8,
		Position:     objectmodel.FromSpherical(0, 0),
		DiscreteReflections: []objectmodel.DiscreteReflection{
			{Position: objectmodel.FromSpherical(0, 0), Delay: 0.001, Level: 0.5},
		},
		LateReverbParams: objectmodel.LateReverb{
			OnsetDelay:         0.002,
			SubbandLevels:      []float64{0.5, 0.3, 0.1},
			SubbandDecayCoeffs: []float64{0.99, 0.98, 0.97},
			SubbandAttackTimes: []float64{0.001, 0.001, 0.001},
		},
	}
}

func reverbConfig(sink diagnostics.Sink) CoreRendererConfig {
	cfg := baseConfig(stereoArray(), 2)
	cfg.MaxReverbObjects = 2
	cfg.MaxReflectionsPerSlot = 1
	cfg.NumDiscreteReflectionBiquads = 1
	cfg.NumReverbSubbands = 3
	cfg.LateReverbLengthSeconds = 0.02
	cfg.MaxReverbUpdatesPerPeriod = 1
	cfg.Sink = sink
	return cfg
}

func TestTwoReverbObjectsSharingChannelReportsDrop(t *testing.T) {
	var events []diagnostics.Event
	sink := diagnostics.SinkFunc(func(e diagnostics.Event) { events = append(events, e) })
	r, err := NewCoreRenderer("renderer", reverbConfig(sink))
	if err != nil {
		t.Fatalf("NewCoreRenderer: %v", err)
	}
	r.PushObjects(objectmodel.Vector{reverbTestObject("a", 0), reverbTestObject("b", 0)})
	runBlocks(t, r, 1)

	var dropMessages []string
	for _, e := range events {
		if strings.Contains(e.Message, "dropped") {
			dropMessages = append(dropMessages, e.Message)
		}
	}
	if len(dropMessages) != 1 {
		t.Fatalf("expected exactly one drop diagnostic, got %v", dropMessages)
	}
	if !strings.Contains(dropMessages[0], `"b"`) {
		t.Errorf("diagnostic does not name the dropped object: %q", dropMessages[0])
	}
}

func TestDeterministicAcrossRenderers(t *testing.T) {
	scene := objectmodel.Vector{
		{ID: "src", Kind: objectmodel.PointSource, ChannelIndex: 0, Level: 0.9, Position: objectmodel.FromSpherical(0.3, 0)},
		reverbTestObject("rev", 1),
	}
	render := func() [][]float64 {
		r, err := NewCoreRenderer("renderer", reverbConfig(nil))
		if err != nil {
			t.Fatalf("NewCoreRenderer: %v", err)
		}
		r.PushObjects(scene)
		in := make([][]float64, r.NumObjectChannels())
		for ch := range in {
			in[ch] = make([]float64, blockSize)
			for i := range in[ch] {
				in[ch][i] = math.Sin(2 * math.Pi * float64(ch*blockSize+i) / 37)
			}
		}
		out := make([][]float64, r.NumOutputChannels())
		accum := make([][]float64, r.NumOutputChannels())
		for ch := range out {
			out[ch] = make([]float64, blockSize)
		}
		for b := 0; b < 8; b++ {
			if err := r.ProcessBlock(in, out); err != nil {
				t.Fatalf("ProcessBlock %d: %v", b, err)
			}
			for ch := range out {
				accum[ch] = append(accum[ch], out[ch]...)
			}
		}
		return accum
	}

	first := render()
	second := render()
	for ch := range first {
		for i := range first[ch] {
			if math.Float64bits(first[ch][i]) != math.Float64bits(second[ch][i]) {
				t.Fatalf("outputs differ at channel %d sample %d: %v vs %v", ch, i, first[ch][i], second[ch][i])
			}
		}
	}
}

func TestVisrRendererDrainsSceneQueue(t *testing.T) {
	cfg := VisrRendererConfig{
		CoreRendererConfig: baseConfig(stereoArray(), 1),
		ListenerTracking:   true,
	}
	r, err := NewVisrRenderer("renderer", cfg)
	if err != nil {
		t.Fatalf("NewVisrRenderer: %v", err)
	}
	if !r.SceneReceiver().PushObjects(objectmodel.Vector{{
		ID: "src", Kind: objectmodel.PointSource, ChannelIndex: 0, Level: 1,
		Position: objectmodel.FromSpherical(0, 0),
	}}) {
		t.Fatal("scene queue rejected the update")
	}
	r.SceneReceiver().PushListener(pml.ListenerParameter{Position: objectmodel.Position{}})

	in := [][]float64{make([]float64, blockSize)}
	for i := range in[0] {
		in[0][i] = 1
	}
	out := make([][]float64, r.NumOutputChannels())
	for ch := range out {
		out[ch] = make([]float64, blockSize)
	}
	for b := 0; b < 3; b++ {
		if err := r.ProcessBlock(in, out); err != nil {
			t.Fatalf("ProcessBlock %d: %v", b, err)
		}
	}
	want := math.Sqrt2 / 2
	for ch := 0; ch < 2; ch++ {
		if math.Abs(out[ch][blockSize-1]-want) > 1e-6 {
			t.Errorf("channel %d: got %v, want %v", ch, out[ch][blockSize-1], want)
		}
	}
}
