package signalflows

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"github.com/san-kum/dynrenderer/internal/diagnostics"
	"github.com/san-kum/dynrenderer/internal/fft"
	"github.com/san-kum/dynrenderer/internal/graph"
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/objectrender"
	"github.com/san-kum/dynrenderer/internal/panning"
	"github.com/san-kum/dynrenderer/internal/pml"
	"github.com/san-kum/dynrenderer/internal/rbbl/biquad"
	"github.com/san-kum/dynrenderer/internal/rbbl/convolver"
	"github.com/san-kum/dynrenderer/internal/rcl"
	"github.com/san-kum/dynrenderer/internal/reverbobject"
)

// PanningMethod selects the algorithm CoreRenderer uses to derive
// point-source panning gains. AllRAD additionally enables a static
// higher-order-ambisonic decode path for HoaSource objects; it does not
// replace VBAP for point-source panning, since AllRAD decodes an
// already-encoded ambisonic signal rather than a single source
// position.
type PanningMethod string

const (
	PanningVBAP   PanningMethod = "vbap"
	PanningCAP    PanningMethod = "cap"
	PanningAllRAD PanningMethod = "allrad"
)

// CoreRendererConfig groups CoreRenderer construction parameters.
type CoreRendererConfig struct {
	Array             *panning.LoudspeakerArray
	NumObjectChannels int
	BlockSize         int
	SamplingFrequency float64
	Alignment         int

	PanningMethod PanningMethod
	GainCap       float64 // CAP only

	// DelayInterpolationMethod selects the fractional-delay interpolator
	// every DelayVector stage uses ("nearestSample", "linear",
	// "lagrangeOrderN"). Empty selects "linear".
	DelayInterpolationMethod string

	// FrequencyDependentPanning splits the panning path into a
	// Linkwitz-Riley low/high band pair, each panned through its own
	// gain matrix. PanningCrossoverFrequency defaults to 700 Hz.
	FrequencyDependentPanning bool
	PanningCrossoverFrequency float64

	// OutputEqCoefficients, if set, must have one biquad section list
	// per loudspeaker; it configures the static output equalisation
	// stage ahead of the per-output trim. Nil disables the stage.
	OutputEqCoefficients [][]biquad.Coefficients

	AllRADOrder              int // AllRAD HOA decode path; 0 disables it
	AllRADNumVirtualSpeakers int

	MaxReverbObjects             int // 0 disables the reverb subgraph
	MaxReflectionsPerSlot        int
	NumDiscreteReflectionBiquads int
	NumReverbSubbands            int
	LateReverbLengthSeconds      float64
	MaxReverbUpdatesPerPeriod    int

	// ObjectEqCoefficients, if set, must have NumObjectChannels entries;
	// each is applied once at construction to the static per-channel EQ
	// stage (see objectrender.ObjectGainEqCalculator's doc comment for
	// why the EQ curve is construction-time, not per-block). Nil means
	// identity (no coloration).
	ObjectEqCoefficients [][]biquad.Coefficients

	// DiffusionFilters, if set, must have Array.NumSpeakers() entries,
	// one decorrelation FIR per output channel (e.g. loaded from a
	// multichannel filter file). Nil synthesises random-phase allpass
	// filters of DefaultDecorrelationFilterLength taps.
	DiffusionFilters [][]float64

	// ListenerCompensation, if non-nil, enables the broadcast delay/gain
	// trim stage compensating off-centre listening positions.
	ListenerCompensation *objectrender.ListenerCompensationConfig

	Sink diagnostics.Sink
}

// CoreRenderer is the full object-to-loudspeaker signal flow: per
// object-audio block it applies gain/EQ, fans out to direct panning,
// diffuse, channel-bed, and reverb (early + late) paths, sums them, and
// optionally applies listener-motion compensation before the final
// loudspeaker bus.
type CoreRenderer struct {
	graph.Base
	children   []graph.Component
	audioConns []graph.AudioConnection
	paramConns []graph.ParameterConnection

	src *audioSource

	objectGainCalc   *objectrender.ObjectGainEqCalculator
	panningCalc      *objectrender.PanningCalculator
	diffusionCalc    *objectrender.DiffusionGainCalculator
	chRoutingCalc    *objectrender.ChannelObjectRoutingCalculator
	reverbCalc       *reverbobject.ReverbParameterCalculator
	listenerCompCalc *objectrender.ListenerCompensation

	finalOut *graph.AudioPort

	schedule *graph.Schedule
	area     *graph.CommunicationArea

	numObjectChannels int
	numSpeakers       int
	numOutputChannels int
}

func (r *CoreRenderer) Children() []graph.Component                       { return r.children }
func (r *CoreRenderer) AudioConnections() []graph.AudioConnection         { return r.audioConns }
func (r *CoreRenderer) ParameterConnections() []graph.ParameterConnection { return r.paramConns }

// DefaultDecorrelationFilterLength is the tap count of the synthesised
// random-phase allpass decorrelation filters used when no filter matrix
// is supplied.
const DefaultDecorrelationFilterLength = 512

// defaultDecorrelationFilters synthesises one random-phase allpass FIR
// per channel: a unit-magnitude spectrum with uniformly random phase
// (conjugate-symmetric so the impulse response is real), inverted to the
// time domain. Seeds are fixed per channel so repeated constructions of
// the same graph stay bit-identical.
func defaultDecorrelationFilters(numChannels, length int) ([][]float64, error) {
	provider, err := fft.Select("default", length)
	if err != nil {
		return nil, err
	}
	filters := make([][]float64, numChannels)
	for ch := 0; ch < numChannels; ch++ {
		rng := rand.New(rand.NewSource(int64(ch)*7919 + 1))
		spectrum := make([]complex128, length)
		spectrum[0] = 1
		if length%2 == 0 {
			spectrum[length/2] = 1
		}
		for k := 1; k < (length+1)/2; k++ {
			phase := rng.Float64() * 2 * math.Pi
			spectrum[k] = cmplx.Exp(complex(0, phase))
			spectrum[length-k] = cmplx.Conj(spectrum[k])
		}
		timeDomain := provider.Inverse(spectrum)
		taps := make([]float64, length)
		for i, v := range timeDomain {
			taps[i] = real(v)
		}
		filters[ch] = taps
	}
	return filters, nil
}

func identityBiquadList(numSections int) []biquad.Coefficients {
	sections := make([]biquad.Coefficients, numSections)
	for i := range sections {
		sections[i] = biquad.Identity()
	}
	return sections
}

// setStaticBiquads installs the same section list on every channel of a
// filter whose coefficients never change after construction.
func setStaticBiquads(f *rcl.BiquadIirFilter, numChannels int, sections []biquad.Coefficients) {
	for ch := 0; ch < numChannels; ch++ {
		cell := f.CoefficientPort(ch).Cell.(*pml.DoubleBuffered[pml.BiquadParameterList])
		cell.SetBack(pml.BiquadParameterList{Sections: sections})
		cell.Publish()
	}
}

// NewCoreRenderer builds and flattens the full rendering graph.
func NewCoreRenderer(name string, cfg CoreRendererConfig) (*CoreRenderer, error) {
	if cfg.Array == nil || cfg.Array.NumSpeakers() == 0 {
		return nil, fmt.Errorf("signalflows: CoreRenderer: Array must have at least one loudspeaker")
	}
	if cfg.NumObjectChannels <= 0 {
		return nil, fmt.Errorf("signalflows: CoreRenderer: NumObjectChannels must be positive")
	}
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("signalflows: CoreRenderer: BlockSize must be positive")
	}
	if cfg.SamplingFrequency <= 0 {
		return nil, fmt.Errorf("signalflows: CoreRenderer: SamplingFrequency must be positive")
	}
	if err := cfg.Array.Validate(); err != nil {
		return nil, fmt.Errorf("signalflows: CoreRenderer: %w", err)
	}
	if cfg.Alignment <= 0 {
		cfg.Alignment = 8
	}

	if cfg.DelayInterpolationMethod == "" {
		cfg.DelayInterpolationMethod = "linear"
	}
	numObj := cfg.NumObjectChannels
	numSpk := cfg.Array.NumSpeakers()
	numSub := cfg.Array.NumSubwoofers()
	numPhysical := cfg.Array.NumOutputChannels()
	interpSteps := cfg.BlockSize

	r := &CoreRenderer{
		Base:              graph.NewBase(name),
		numObjectChannels: numObj,
		numSpeakers:       numSpk,
		numOutputChannels: numPhysical,
	}
	add := func(c graph.Component) { r.children = append(r.children, c) }
	wireAudio := func(prod *graph.AudioPort, cons *graph.AudioPort) {
		r.audioConns = append(r.audioConns, graph.AudioConnection{Producer: prod, Consumer: cons, Width: prod.Width})
	}
	wireParam := func(prod, cons *graph.ParameterPort) {
		r.paramConns = append(r.paramConns, graph.ParameterConnection{Producer: prod, Consumer: cons})
	}

	r.src = newAudioSource("objectAudioIn", numObj)
	add(r.src)

	// --- object gain + static EQ ---
	objGainCalc, err := objectrender.NewObjectGainEqCalculator("objectGain", numObj)
	if err != nil {
		return nil, err
	}
	r.objectGainCalc = objGainCalc
	add(objGainCalc)

	objGainDV, err := rcl.NewDelayVector("objectGainDelay", rcl.DelayVectorConfig{
		NumChannels: numObj, BlockSize: cfg.BlockSize, MaxDelaySeconds: 0,
		SamplingFrequency: cfg.SamplingFrequency, InterpolationMethod: cfg.DelayInterpolationMethod,
		InterpolationPeriod: cfg.BlockSize, Alignment: cfg.Alignment, WithGainInput: true,
	})
	if err != nil {
		return nil, err
	}
	add(objGainDV)
	wireAudio(r.src.Output(), objGainDV.Input())
	wireParam(objGainCalc.GainOutput(), objGainDV.GainPort())

	numEqSections := 1
	if len(cfg.ObjectEqCoefficients) > 0 {
		numEqSections = len(cfg.ObjectEqCoefficients[0])
	}
	objEqBQ, err := rcl.NewBiquadIirFilter("objectEq", numObj, numEqSections)
	if err != nil {
		return nil, err
	}
	add(objEqBQ)
	wireAudio(objGainDV.Output(), objEqBQ.Input())
	for ch := 0; ch < numObj; ch++ {
		sections := identityBiquadList(numEqSections)
		if len(cfg.ObjectEqCoefficients) == numObj {
			sections = cfg.ObjectEqCoefficients[ch]
		}
		cell := objEqBQ.CoefficientPort(ch).Cell.(*pml.DoubleBuffered[pml.BiquadParameterList])
		cell.SetBack(pml.BiquadParameterList{Sections: sections})
		cell.Publish()
	}

	// --- channel-object direct routing path ---
	chRoutingCalc, err := objectrender.NewChannelObjectRoutingCalculator("channelRoutingCalc", numObj, numSpk)
	if err != nil {
		return nil, err
	}
	r.chRoutingCalc = chRoutingCalc
	add(chRoutingCalc)
	chRouting := rcl.NewSignalRouting("channelRouting", numObj, numSpk, nil).WithRoutingInput()
	add(chRouting)
	wireAudio(objEqBQ.Output(), chRouting.Input())
	wireParam(chRoutingCalc.RoutingOutput(), chRouting.RoutingPort())

	// --- direct panning path ---
	var panner interface {
		SetListenerPosition(objectmodel.Position)
		CalculateGains(objectmodel.Position) []float64
		CalculateGainsAtInfinity(objectmodel.Position) []float64
		NumSpeakers() int
	}
	switch cfg.PanningMethod {
	case PanningCAP:
		cap, err := panning.NewCAPCalculator(cfg.Array, cfg.GainCap)
		if err != nil {
			return nil, fmt.Errorf("signalflows: CoreRenderer: %w", err)
		}
		panner = cap
	default:
		vbap, err := panning.NewVBAPCalculator(cfg.Array)
		if err != nil {
			return nil, fmt.Errorf("signalflows: CoreRenderer: %w", err)
		}
		panner = vbap
	}
	panningCalc, err := objectrender.NewPanningCalculator("panningCalc", panner, numObj)
	if err != nil {
		return nil, err
	}
	r.panningCalc = panningCalc
	add(panningCalc)
	panMatrix, err := rcl.NewGainMatrix("panMatrix", numObj, numSpk, cfg.BlockSize, interpSteps, 0)
	if err != nil {
		return nil, err
	}
	add(panMatrix)
	wireParam(panningCalc.GainsOutput(), panMatrix.GainsPort())

	var lfPanMatrix *rcl.GainMatrix
	if cfg.FrequencyDependentPanning {
		crossover := cfg.PanningCrossoverFrequency
		if crossover <= 0 {
			crossover = 700
		}
		// Linkwitz-Riley fourth-order pair: two cascaded Butterworth
		// sections per band.
		lpSection, err := biquad.Derive(biquad.ParametricDescriptor{
			Type: biquad.Lowpass, CenterFrequency: crossover, Quality: math.Sqrt2 / 2,
		}, cfg.SamplingFrequency)
		if err != nil {
			return nil, fmt.Errorf("signalflows: CoreRenderer: %w", err)
		}
		hpSection, err := biquad.Derive(biquad.ParametricDescriptor{
			Type: biquad.Highpass, CenterFrequency: crossover, Quality: math.Sqrt2 / 2,
		}, cfg.SamplingFrequency)
		if err != nil {
			return nil, fmt.Errorf("signalflows: CoreRenderer: %w", err)
		}

		highBand, err := rcl.NewBiquadIirFilter("panHighBand", numObj, 2)
		if err != nil {
			return nil, err
		}
		add(highBand)
		wireAudio(objEqBQ.Output(), highBand.Input())
		setStaticBiquads(highBand, numObj, []biquad.Coefficients{hpSection, hpSection})
		wireAudio(highBand.Output(), panMatrix.Input())

		lowBand, err := rcl.NewBiquadIirFilter("panLowBand", numObj, 2)
		if err != nil {
			return nil, err
		}
		add(lowBand)
		wireAudio(objEqBQ.Output(), lowBand.Input())
		setStaticBiquads(lowBand, numObj, []biquad.Coefficients{lpSection, lpSection})

		lfPanMatrix, err = rcl.NewGainMatrix("lfPanMatrix", numObj, numSpk, cfg.BlockSize, interpSteps, 0)
		if err != nil {
			return nil, err
		}
		add(lfPanMatrix)
		wireAudio(lowBand.Output(), lfPanMatrix.Input())
		wireParam(panningCalc.GainsOutput(), lfPanMatrix.GainsPort())
	} else {
		wireAudio(objEqBQ.Output(), panMatrix.Input())
	}

	// --- diffuse path ---
	diffusionCalc, err := objectrender.NewDiffusionGainCalculator("diffusionCalc", numObj)
	if err != nil {
		return nil, err
	}
	r.diffusionCalc = diffusionCalc
	add(diffusionCalc)
	diffuseSum, err := rcl.NewGainMatrix("diffuseSum", numObj, 1, cfg.BlockSize, interpSteps, 0)
	if err != nil {
		return nil, err
	}
	add(diffuseSum)
	wireAudio(objEqBQ.Output(), diffuseSum.Input())
	wireParam(diffusionCalc.GainsOutput(), diffuseSum.GainsPort())

	diffusionFilters := cfg.DiffusionFilters
	if len(diffusionFilters) != numSpk {
		diffusionFilters, err = defaultDecorrelationFilters(numSpk, DefaultDecorrelationFilterLength)
		if err != nil {
			return nil, fmt.Errorf("signalflows: CoreRenderer: %w", err)
		}
	}
	diffuser, err := rcl.NewSingleToMultichannelDiffusion("diffuser", numSpk, diffusionFilters, 0)
	if err != nil {
		return nil, err
	}
	add(diffuser)
	wireAudio(diffuseSum.Output(), diffuser.Input())

	sumInputs := []*graph.AudioPort{chRouting.Output(), panMatrix.Output(), diffuser.Output()}
	if lfPanMatrix != nil {
		sumInputs = append(sumInputs, lfPanMatrix.Output())
	}

	// --- optional AllRAD HOA decode path ---
	if cfg.PanningMethod == PanningAllRAD && cfg.AllRADOrder > 0 {
		numHarmonics := (cfg.AllRADOrder + 1) * (cfg.AllRADOrder + 1)
		if numHarmonics <= numObj {
			decoder, err := panning.NewAllRADDecoder(cfg.Array, cfg.AllRADOrder, cfg.AllRADNumVirtualSpeakers)
			if err != nil {
				return nil, fmt.Errorf("signalflows: CoreRenderer: %w", err)
			}
			hoaRoute := make([]rcl.ChannelRoute, numHarmonics)
			for i := range hoaRoute {
				hoaRoute[i] = rcl.ChannelRoute{Input: i, Output: i}
			}
			hoaRouting := rcl.NewSignalRouting("hoaRouting", numObj, numHarmonics, hoaRoute)
			add(hoaRouting)
			wireAudio(objEqBQ.Output(), hoaRouting.Input())

			hoaDecode, err := rcl.NewGainMatrix("hoaDecode", numHarmonics, numSpk, cfg.BlockSize, interpSteps, 0)
			if err != nil {
				return nil, err
			}
			add(hoaDecode)
			wireAudio(hoaRouting.Output(), hoaDecode.Input())
			decodeMatrix := pml.NewMatrixParameter(numSpk, numHarmonics)
			for row := 0; row < numSpk; row++ {
				for col := 0; col < numHarmonics; col++ {
					decodeMatrix.Set(row, col, decoder.DecodeMatrix()[row][col])
				}
			}
			hoaDecode.SetGains(decodeMatrix)
			sumInputs = append(sumInputs, hoaDecode.Output())
		}
	}

	// --- reverb subgraph (early reflections + late reverb) ---
	if cfg.MaxReverbObjects > 0 {
		maxSlots := cfg.MaxReverbObjects
		maxRefl := cfg.MaxReflectionsPerSlot
		if maxRefl <= 0 {
			maxRefl = 1
		}
		numBiquads := cfg.NumDiscreteReflectionBiquads
		if numBiquads <= 0 {
			numBiquads = 1
		}
		numChannelSlots := maxSlots * maxRefl

		reverbPanner, err := panning.NewVBAPCalculator(cfg.Array)
		if err != nil {
			return nil, fmt.Errorf("signalflows: CoreRenderer: %w", err)
		}
		reverbCalc, err := reverbobject.NewReverbParameterCalculator("reverbParams", reverbobject.ReverbParameterCalculatorConfig{
			MaxReverbObjects: maxSlots, MaxReflectionsPerSlot: maxRefl,
			NumDiscreteReflectionBiquads: numBiquads, NumSubbands: cfg.NumReverbSubbands,
			NumInputChannels: numObj, Panner: reverbPanner, Sink: cfg.Sink,
		})
		if err != nil {
			return nil, err
		}
		r.reverbCalc = reverbCalc
		add(reverbCalc)

		reverbRouting := rcl.NewSignalRouting("reverbRouting", numObj, maxSlots, nil).WithRoutingInput()
		add(reverbRouting)
		wireAudio(objEqBQ.Output(), reverbRouting.Input())
		wireParam(reverbCalc.RoutingOutput(), reverbRouting.RoutingPort())

		overallDV, err := rcl.NewDelayVector("reverbOverallGainDelay", rcl.DelayVectorConfig{
			NumChannels: maxSlots, BlockSize: cfg.BlockSize, MaxDelaySeconds: 0.5,
			SamplingFrequency: cfg.SamplingFrequency, InterpolationMethod: cfg.DelayInterpolationMethod,
			InterpolationPeriod: cfg.BlockSize, Alignment: cfg.Alignment,
			WithGainInput: true, WithDelayInput: true,
		})
		if err != nil {
			return nil, err
		}
		add(overallDV)
		wireAudio(reverbRouting.Output(), overallDV.Input())
		wireParam(reverbCalc.OverallGainOutput(), overallDV.GainPort())
		wireParam(reverbCalc.OnsetDelayOutput(), overallDV.DelayPort())

		fanoutTable := make([]rcl.ChannelRoute, 0, numChannelSlots)
		for slot := 0; slot < maxSlots; slot++ {
			for ref := 0; ref < maxRefl; ref++ {
				fanoutTable = append(fanoutTable, rcl.ChannelRoute{Input: slot, Output: slot*maxRefl + ref})
			}
		}
		fanout := rcl.NewSignalRouting("reflFanout", maxSlots, numChannelSlots, fanoutTable)
		add(fanout)
		wireAudio(overallDV.Output(), fanout.Input())

		gainFlat := newMatrixVectorFlattener("reflGainFlatten", numChannelSlots)
		add(gainFlat)
		wireParam(reverbCalc.ReflectionGainOutput(), gainFlat.Input())
		delayFlat := newMatrixVectorFlattener("reflDelayFlatten", numChannelSlots)
		add(delayFlat)
		wireParam(reverbCalc.ReflectionDelayOutput(), delayFlat.Input())

		reflDV, err := rcl.NewDelayVector("reflDelays", rcl.DelayVectorConfig{
			NumChannels: numChannelSlots, BlockSize: cfg.BlockSize, MaxDelaySeconds: 0.5,
			SamplingFrequency: cfg.SamplingFrequency, InterpolationMethod: cfg.DelayInterpolationMethod,
			InterpolationPeriod: cfg.BlockSize, Alignment: cfg.Alignment,
			WithGainInput: true, WithDelayInput: true,
		})
		if err != nil {
			return nil, err
		}
		add(reflDV)
		wireAudio(fanout.Output(), reflDV.Input())
		wireParam(gainFlat.Output(), reflDV.GainPort())
		wireParam(delayFlat.Output(), reflDV.DelayPort())

		reflBQ, err := rcl.NewBiquadIirFilter("reflBiquad", numChannelSlots, numBiquads)
		if err != nil {
			return nil, err
		}
		add(reflBQ)
		wireAudio(reflDV.Output(), reflBQ.Input())
		splitter := newBiquadBankSplitter("reflBiquadSplit", numChannelSlots, numBiquads)
		add(splitter)
		wireParam(reverbCalc.ReflectionBiquadOutput(), splitter.Input())
		for ch := 0; ch < numChannelSlots; ch++ {
			wireParam(splitter.ChannelOutput(ch), reflBQ.CoefficientPort(ch))
		}

		reflPan, err := rcl.NewGainMatrix("reflPan", numChannelSlots, numSpk, cfg.BlockSize, interpSteps, 0)
		if err != nil {
			return nil, err
		}
		add(reflPan)
		wireAudio(reflBQ.Output(), reflPan.Input())
		wireParam(reverbCalc.ReflectionPanningOutput(), reflPan.GainsPort())
		sumInputs = append(sumInputs, reflPan.Output())

		// Late reverb: LateReverbFilterCalculator drains reverbCalc's
		// per-slot descriptor messages and synthesises filter-update
		// messages for the FIR matrix; both queues are aliased directly
		// by the parameter connections below, so no per-block glue code
		// is needed to move messages between them.
		maxFilterLen := int(cfg.LateReverbLengthSeconds*cfg.SamplingFrequency) + 1
		analysisBiquads := make([]biquad.Coefficients, cfg.NumReverbSubbands)
		for i := range analysisBiquads {
			analysisBiquads[i] = biquad.Identity()
		}
		lateCalc, err := reverbobject.NewLateReverbFilterCalculator("lateReverbCalc", reverbobject.LateReverbFilterCalculatorConfig{
			NumSubbands: cfg.NumReverbSubbands, LateLengthSeconds: cfg.LateReverbLengthSeconds,
			MaxUpdatesPerPeriod: cfg.MaxReverbUpdatesPerPeriod, AnalysisBiquads: analysisBiquads,
		})
		if err != nil {
			return nil, err
		}
		add(lateCalc)
		wireParam(reverbCalc.LateReverbOutput(), lateCalc.LateReverbInput())

		initialRouting := make([]convolver.RoutingEntry, maxSlots)
		for i := range initialRouting {
			initialRouting[i] = convolver.RoutingEntry{Input: i, Output: i % numSpk, Filter: i, Gain: 1.0}
		}
		lateFir, err := rcl.NewFirFilterMatrix("lateReverbFir", rcl.FirFilterMatrixConfig{
			NumberOfInputs: maxSlots, NumberOfOutputs: numSpk, BlockLength: cfg.BlockSize,
			MaxFilterLength: maxFilterLen, MaxRoutingPoints: maxSlots, MaxFilters: maxSlots,
			InitialRouting: initialRouting, CrossfadeSamples: cfg.BlockSize,
		})
		if err != nil {
			return nil, err
		}
		add(lateFir)
		wireAudio(overallDV.Output(), lateFir.Input())
		wireParam(lateCalc.FilterUpdateOutput(), lateFir.FilterUpdatePort())

		// Per-loudspeaker decorrelation over the late tail, sharing the
		// diffuse path's filter set: channel i convolves with filter i.
		maxDecorrLen := 1
		for _, f := range diffusionFilters {
			if len(f) > maxDecorrLen {
				maxDecorrLen = len(f)
			}
		}
		decorrRouting := make([]convolver.RoutingEntry, numSpk)
		for i := range decorrRouting {
			decorrRouting[i] = convolver.RoutingEntry{Input: i, Output: i, Filter: i, Gain: 1.0}
		}
		lateDecorr, err := rcl.NewFirFilterMatrix("lateReverbDecorrelation", rcl.FirFilterMatrixConfig{
			NumberOfInputs: numSpk, NumberOfOutputs: numSpk, BlockLength: cfg.BlockSize,
			MaxFilterLength: maxDecorrLen, MaxRoutingPoints: numSpk, MaxFilters: numSpk,
			InitialRouting: decorrRouting, InitialFilters: diffusionFilters,
		})
		if err != nil {
			return nil, err
		}
		add(lateDecorr)
		wireAudio(lateFir.Output(), lateDecorr.Input())
		sumInputs = append(sumInputs, lateDecorr.Output())
	}

	// --- sum every path ---
	summer := rcl.NewAdd("mix", numSpk, len(sumInputs))
	add(summer)
	for i, in := range sumInputs {
		wireAudio(in, summer.Input(i))
	}

	terminal := summer.Output()

	// --- optional listener compensation ---
	if cfg.ListenerCompensation != nil {
		lcCfg := *cfg.ListenerCompensation
		lcCfg.NumOutputChannels = numSpk
		listenerComp, err := objectrender.NewListenerCompensation("listenerComp", lcCfg)
		if err != nil {
			return nil, err
		}
		r.listenerCompCalc = listenerComp
		add(listenerComp)
		lcDV, err := rcl.NewDelayVector("listenerCompDelay", rcl.DelayVectorConfig{
			NumChannels: numSpk, BlockSize: cfg.BlockSize, MaxDelaySeconds: 0.5,
			SamplingFrequency: cfg.SamplingFrequency, InterpolationMethod: cfg.DelayInterpolationMethod,
			InterpolationPeriod: cfg.BlockSize, Alignment: cfg.Alignment,
			WithGainInput: true, WithDelayInput: true,
		})
		if err != nil {
			return nil, err
		}
		add(lcDV)
		wireAudio(terminal, lcDV.Input())
		wireParam(listenerComp.GainOutput(), lcDV.GainPort())
		wireParam(listenerComp.DelayOutput(), lcDV.DelayPort())
		terminal = lcDV.Output()
	}

	// --- subwoofer mixing (taps the summed loudspeaker bus) ---
	var subRoute *rcl.SignalRouting
	if numSub > 0 {
		subMix, err := rcl.NewGainMatrix("subwooferMix", numSpk, numSub, cfg.BlockSize, interpSteps, 0)
		if err != nil {
			return nil, err
		}
		add(subMix)
		wireAudio(terminal, subMix.Input())
		weights := pml.NewMatrixParameter(numSub, numSpk)
		for j, sub := range cfg.Array.Subwoofers {
			for i, w := range sub.Weights {
				weights.Set(j, i, w)
			}
		}
		subMix.SetGains(weights)

		subTable := make([]rcl.ChannelRoute, numSub)
		for j, sub := range cfg.Array.Subwoofers {
			subTable[j] = rcl.ChannelRoute{Input: j, Output: sub.ChannelIndex}
		}
		subRoute = rcl.NewSignalRouting("subwooferRouting", numSub, numPhysical, subTable)
		add(subRoute)
		wireAudio(subMix.Output(), subRoute.Input())
	}

	// --- optional output equalisation ---
	if cfg.OutputEqCoefficients != nil {
		if len(cfg.OutputEqCoefficients) != numSpk {
			return nil, fmt.Errorf("signalflows: CoreRenderer: OutputEqCoefficients must have %d entries, got %d", numSpk, len(cfg.OutputEqCoefficients))
		}
		numSections := len(cfg.OutputEqCoefficients[0])
		outEq, err := rcl.NewBiquadIirFilter("outputEq", numSpk, numSections)
		if err != nil {
			return nil, err
		}
		add(outEq)
		wireAudio(terminal, outEq.Input())
		for ch := 0; ch < numSpk; ch++ {
			cell := outEq.CoefficientPort(ch).Cell.(*pml.DoubleBuffered[pml.BiquadParameterList])
			cell.SetBack(pml.BiquadParameterList{Sections: cfg.OutputEqCoefficients[ch]})
			cell.Publish()
		}
		terminal = outEq.Output()
	}

	// --- per-output delay/gain trim ---
	maxTrimDelay := 0.0
	for i := 0; i < numSpk; i++ {
		if d := cfg.Array.Delay(i); d > maxTrimDelay {
			maxTrimDelay = d
		}
	}
	trimDV, err := rcl.NewDelayVector("outputTrim", rcl.DelayVectorConfig{
		NumChannels: numSpk, BlockSize: cfg.BlockSize, MaxDelaySeconds: maxTrimDelay,
		SamplingFrequency: cfg.SamplingFrequency, InterpolationMethod: cfg.DelayInterpolationMethod,
		InterpolationPeriod: cfg.BlockSize, Alignment: cfg.Alignment,
		WithGainInput: true, WithDelayInput: true,
	})
	if err != nil {
		return nil, err
	}
	add(trimDV)
	wireAudio(terminal, trimDV.Input())
	trimGains := pml.NewVectorParameter(numSpk)
	trimDelays := pml.NewVectorParameter(numSpk)
	for i := 0; i < numSpk; i++ {
		trimGains.Values[i] = cfg.Array.Gain(i)
		trimDelays.Values[i] = cfg.Array.Delay(i) * cfg.SamplingFrequency
	}
	trimDV.SetGain(trimGains)
	trimDV.SetDelay(trimDelays)

	// --- physical output channel routing ---
	mainTable := make([]rcl.ChannelRoute, numSpk)
	mapped := make([]bool, numPhysical)
	for i := 0; i < numSpk; i++ {
		ch := cfg.Array.OutputChannel(i)
		mainTable[i] = rcl.ChannelRoute{Input: i, Output: ch}
		mapped[ch] = true
	}
	mainRoute := rcl.NewSignalRouting("outputRouting", numSpk, numPhysical, mainTable)
	add(mainRoute)
	wireAudio(trimDV.Output(), mainRoute.Input())

	outputInputs := []*graph.AudioPort{mainRoute.Output()}
	if subRoute != nil {
		for _, sub := range cfg.Array.Subwoofers {
			mapped[sub.ChannelIndex] = true
		}
		outputInputs = append(outputInputs, subRoute.Output())
	}
	var nullTable []rcl.ChannelRoute
	for ch, ok := range mapped {
		if !ok {
			nullTable = append(nullTable, rcl.ChannelRoute{Input: 0, Output: ch})
		}
	}
	if nullTable != nil {
		nullSrc := rcl.NewNullSource("silence", 1)
		add(nullSrc)
		nullRoute := rcl.NewSignalRouting("silenceRouting", 1, numPhysical, nullTable)
		add(nullRoute)
		wireAudio(nullSrc.Output(), nullRoute.Input())
		outputInputs = append(outputInputs, nullRoute.Output())
	}
	outputBus := rcl.NewAdd("outputBus", numPhysical, len(outputInputs))
	add(outputBus)
	for i, in := range outputInputs {
		wireAudio(in, outputBus.Input(i))
	}

	r.finalOut = outputBus.Output()

	schedule, area, err := graph.Flatten(r, cfg.BlockSize, cfg.SamplingFrequency, cfg.Alignment)
	if err != nil {
		return nil, err
	}
	schedule.SetSink(cfg.Sink)
	r.schedule = schedule
	r.area = area
	return r, nil
}

// PushObjects fans the scene-object vector out to every calculator that
// consumes it.
func (r *CoreRenderer) PushObjects(v objectmodel.Vector) {
	r.objectGainCalc.PushObjects(v)
	r.panningCalc.PushObjects(v)
	r.diffusionCalc.PushObjects(v)
	r.chRoutingCalc.PushObjects(v)
	if r.reverbCalc != nil {
		r.reverbCalc.PushObjects(v)
	}
}

// PushListener fans the listener pose out to every calculator that
// consumes it.
func (r *CoreRenderer) PushListener(p pml.ListenerParameter) {
	r.panningCalc.PushListener(p)
	if r.listenerCompCalc != nil {
		r.listenerCompCalc.PushListener(p)
	}
}

// ProcessBlock copies in (one slice per object channel, each BlockSize
// samples) into the graph, runs one block, and copies the rendered
// physical output bus into out (one slice per output channel).
func (r *CoreRenderer) ProcessBlock(in, out [][]float64) error {
	if len(in) != r.numObjectChannels {
		return fmt.Errorf("signalflows: CoreRenderer.ProcessBlock: expected %d input channels, got %d", r.numObjectChannels, len(in))
	}
	if len(out) != r.numOutputChannels {
		return fmt.Errorf("signalflows: CoreRenderer.ProcessBlock: expected %d output channels, got %d", r.numOutputChannels, len(out))
	}
	srcRows := r.src.Channels()
	for ch, row := range in {
		copy(srcRows[ch], row)
	}
	r.schedule.ProcessBlock()
	for ch := range out {
		copy(out[ch], r.finalOut.Channel(ch))
	}
	return nil
}

// NumObjectChannels and NumOutputChannels report the bus widths
// ProcessBlock expects; NumSpeakers reports the regular loudspeaker
// count before subwoofer mixing and physical channel mapping.
func (r *CoreRenderer) NumObjectChannels() int { return r.numObjectChannels }
func (r *CoreRenderer) NumSpeakers() int       { return r.numSpeakers }
func (r *CoreRenderer) NumOutputChannels() int { return r.numOutputChannels }
