// Package renderconfig loads and validates the YAML configuration that
// drives signalflows.CoreRenderer and its loudspeaker array: a defaults
// base, preset registry, and Load/Save round trip.
package renderconfig

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/dynrenderer/internal/diagnostics"
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/panning"
	"github.com/san-kum/dynrenderer/internal/signalflows"
)

const (
	DefaultBlockSize                  = 256
	DefaultSamplingFrequency          = 48000.0
	DefaultMaxObjectChannels          = 32
	DefaultMaxReverbObjects           = 8
	DefaultMaxReflectionsPerSlot      = 4
	DefaultNumDiscreteReflectionBiquads = 2
	DefaultNumReverbSubbands          = 9
	DefaultLateReverbLengthSeconds    = 1.5
	DefaultMaxReverbUpdatesPerPeriod  = 2
	DefaultGainCap                    = 2.0
)

// LoudspeakerConfig describes one physical loudspeaker's placement and
// output trim.
type LoudspeakerConfig struct {
	Azimuth   float64 `yaml:"azimuth"`   // radians
	Elevation float64 `yaml:"elevation"` // radians
	Radius    float64 `yaml:"radius"`    // metres; 0 defaults to 1

	// Channel is the physical output channel; nil means the
	// loudspeaker's own index.
	Channel      *int    `yaml:"channel"`
	GainDb       float64 `yaml:"gain_db"`
	DelaySeconds float64 `yaml:"delay_seconds"`
}

// SubwooferConfig describes one subwoofer output: its physical channel
// and the per-loudspeaker mixing weights that derive its feed.
type SubwooferConfig struct {
	Channel int       `yaml:"channel"`
	Weights []float64 `yaml:"weights"`
}

// LoudspeakerArrayConfig describes the full array: a regular loudspeaker
// set (panned via VBAP/AllRAD/CAP), the facet list for 3D arrays, and
// optional subwoofers.
type LoudspeakerArrayConfig struct {
	Name         string              `yaml:"name"`
	Loudspeakers []LoudspeakerConfig `yaml:"loudspeakers"`
	Is2D         bool                `yaml:"is2d"`
	IsInfinite   bool                `yaml:"is_infinite"`

	// Triplets lists the triangulation facets of a 3D array by
	// loudspeaker index. Horizontal (is2d) arrays derive their pair
	// list from the azimuth ordering instead and ignore this field.
	Triplets [][3]int `yaml:"triplets"`

	Subwoofers []SubwooferConfig `yaml:"subwoofers"`
}

// ToLoudspeakerArray builds the panning-package array this config
// describes. Horizontal (is2d) arrays derive their segmentation from
// the azimuth ordering via panning.RegularPolygonArray; 3D arrays must
// declare their triangulation explicitly through Triplets.
func (a LoudspeakerArrayConfig) ToLoudspeakerArray() (*panning.LoudspeakerArray, error) {
	if len(a.Loudspeakers) == 0 {
		return nil, fmt.Errorf("renderconfig: array %q has no loudspeakers", a.Name)
	}
	var array *panning.LoudspeakerArray
	if a.Is2D {
		azimuths := make([]float64, len(a.Loudspeakers))
		for i, ls := range a.Loudspeakers {
			azimuths[i] = ls.Azimuth
		}
		array = panning.RegularPolygonArray(azimuths)
	} else {
		if len(a.Triplets) == 0 {
			return nil, fmt.Errorf("renderconfig: array %q: a 3D array must declare its triplets", a.Name)
		}
		array = &panning.LoudspeakerArray{
			Positions: make([]objectmodel.Position, len(a.Loudspeakers)),
			Triplets:  make([]panning.Triplet, len(a.Triplets)),
		}
		for i, tr := range a.Triplets {
			array.Triplets[i] = panning.Triplet(tr)
		}
	}
	array.IsInfinite = a.IsInfinite

	var anyTrim, anyChannel bool
	channels := make([]int, len(a.Loudspeakers))
	gains := make([]float64, len(a.Loudspeakers))
	delays := make([]float64, len(a.Loudspeakers))
	for i, ls := range a.Loudspeakers {
		radius := ls.Radius
		if radius == 0 {
			radius = 1
		}
		pos := objectmodel.FromSpherical(ls.Azimuth, ls.Elevation)
		array.Positions[i] = objectmodel.Position{X: pos.X * radius, Y: pos.Y * radius, Z: pos.Z * radius}

		channels[i] = i
		if ls.Channel != nil {
			channels[i] = *ls.Channel
			anyChannel = true
		}
		gains[i] = math.Pow(10, ls.GainDb/20)
		delays[i] = ls.DelaySeconds
		if ls.GainDb != 0 || ls.DelaySeconds != 0 {
			anyTrim = true
		}
	}
	if anyChannel {
		array.ChannelIndices = channels
	}
	if anyTrim {
		array.GainAdjust = gains
		array.DelayAdjust = delays
	}
	for _, sub := range a.Subwoofers {
		array.Subwoofers = append(array.Subwoofers, panning.Subwoofer{
			ChannelIndex: sub.Channel,
			Weights:      append([]float64(nil), sub.Weights...),
		})
	}
	if err := array.Validate(); err != nil {
		return nil, fmt.Errorf("renderconfig: array %q: %w", a.Name, err)
	}
	return array, nil
}

// PanningMethod names the gain calculator signalflows wires up.
type PanningMethod string

const (
	PanningVBAP   PanningMethod = "vbap"
	PanningAllRAD PanningMethod = "allrad"
	PanningCAP    PanningMethod = "cap"
)

// RendererConfig is the full set of construction parameters for a
// signalflows.CoreRenderer, loaded from YAML.
type RendererConfig struct {
	Array LoudspeakerArrayConfig `yaml:"array"`

	BlockSize         int     `yaml:"block_size"`
	SamplingFrequency float64 `yaml:"sampling_frequency"`

	MaxObjectChannels int `yaml:"max_object_channels"`

	PanningMethod string  `yaml:"panning_method"`
	GainCap       float64 `yaml:"gain_cap"` // CAP only

	DelayInterpolationMethod string `yaml:"delay_interpolation_method"`

	FrequencyDependentPanning bool    `yaml:"frequency_dependent_panning"`
	PanningCrossoverHz        float64 `yaml:"panning_crossover_hz"`

	ListenerTracking   bool `yaml:"listener_tracking"`
	SceneQueueCapacity int  `yaml:"scene_queue_capacity"`

	MaxReverbObjects             int     `yaml:"max_reverb_objects"`
	MaxReflectionsPerSlot        int     `yaml:"max_reflections_per_slot"`
	NumDiscreteReflectionBiquads int     `yaml:"num_discrete_reflection_biquads"`
	NumReverbSubbands            int     `yaml:"num_reverb_subbands"`
	LateReverbLengthSeconds      float64 `yaml:"late_reverb_length_seconds"`
	MaxReverbUpdatesPerPeriod    int     `yaml:"max_reverb_updates_per_period"`

	AllRADOrder               int `yaml:"allrad_order"`
	AllRADNumVirtualSpeakers  int `yaml:"allrad_num_virtual_speakers"`
}

// DefaultConfig returns a RendererConfig seeded with a bare stereo array
// and the package-level defaults, the base Load unmarshals onto.
func DefaultConfig() *RendererConfig {
	return &RendererConfig{
		Array: LoudspeakerArrayConfig{
			Name: "stereo",
			Is2D: true,
			Loudspeakers: []LoudspeakerConfig{
				{Azimuth: -0.5236, Radius: 1}, // -30 degrees
				{Azimuth: 0.5236, Radius: 1},  // +30 degrees
			},
		},
		BlockSize:                    DefaultBlockSize,
		SamplingFrequency:            DefaultSamplingFrequency,
		MaxObjectChannels:            DefaultMaxObjectChannels,
		PanningMethod:                string(PanningVBAP),
		GainCap:                      DefaultGainCap,
		MaxReverbObjects:             DefaultMaxReverbObjects,
		MaxReflectionsPerSlot:        DefaultMaxReflectionsPerSlot,
		NumDiscreteReflectionBiquads: DefaultNumDiscreteReflectionBiquads,
		NumReverbSubbands:            DefaultNumReverbSubbands,
		LateReverbLengthSeconds:      DefaultLateReverbLengthSeconds,
		MaxReverbUpdatesPerPeriod:    DefaultMaxReverbUpdatesPerPeriod,
		AllRADOrder:                  1,
		AllRADNumVirtualSpeakers:     240,
	}
}

// Validate checks the invariants signalflows.CoreRenderer's constructors
// enforce, so configuration errors surface before graph construction.
func (c *RendererConfig) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("renderconfig: block_size must be positive")
	}
	if c.SamplingFrequency <= 0 {
		return fmt.Errorf("renderconfig: sampling_frequency must be positive")
	}
	if c.MaxObjectChannels <= 0 {
		return fmt.Errorf("renderconfig: max_object_channels must be positive")
	}
	switch PanningMethod(c.PanningMethod) {
	case PanningVBAP, PanningAllRAD, PanningCAP:
	default:
		return fmt.Errorf("renderconfig: unsupported panning_method %q", c.PanningMethod)
	}
	if c.MaxReverbObjects <= 0 || c.MaxReflectionsPerSlot <= 0 || c.NumDiscreteReflectionBiquads <= 0 || c.NumReverbSubbands <= 0 {
		return fmt.Errorf("renderconfig: reverb dimensions must be positive")
	}
	if len(c.Array.Loudspeakers) == 0 {
		return fmt.Errorf("renderconfig: array %q has no loudspeakers", c.Array.Name)
	}
	return nil
}

// Load reads a RendererConfig from a YAML file, starting from
// DefaultConfig so a partial file only overrides what it sets.
func Load(path string) (*RendererConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToCoreRendererConfig builds the signalflows.CoreRendererConfig this
// configuration describes, resolving the YAML-level array description
// into a panning.LoudspeakerArray and the panning method name into its
// signalflows.PanningMethod constant. sink receives the renderer's
// non-fatal diagnostics; a nil sink is replaced by a no-op one so
// callers that don't care about diagnostics don't have to construct one.
func (c *RendererConfig) ToCoreRendererConfig(sink diagnostics.Sink) (signalflows.CoreRendererConfig, error) {
	if err := c.Validate(); err != nil {
		return signalflows.CoreRendererConfig{}, err
	}
	array, err := c.Array.ToLoudspeakerArray()
	if err != nil {
		return signalflows.CoreRendererConfig{}, err
	}
	if sink == nil {
		sink = diagnostics.SinkFunc(func(diagnostics.Event) {})
	}
	return signalflows.CoreRendererConfig{
		Array:                        array,
		NumObjectChannels:            c.MaxObjectChannels,
		BlockSize:                    c.BlockSize,
		SamplingFrequency:            c.SamplingFrequency,
		Alignment:                    8,
		PanningMethod:                signalflows.PanningMethod(c.PanningMethod),
		GainCap:                      c.GainCap,
		DelayInterpolationMethod:     c.DelayInterpolationMethod,
		FrequencyDependentPanning:    c.FrequencyDependentPanning,
		PanningCrossoverFrequency:    c.PanningCrossoverHz,
		AllRADOrder:                  c.AllRADOrder,
		AllRADNumVirtualSpeakers:     c.AllRADNumVirtualSpeakers,
		MaxReverbObjects:             c.MaxReverbObjects,
		MaxReflectionsPerSlot:        c.MaxReflectionsPerSlot,
		NumDiscreteReflectionBiquads: c.NumDiscreteReflectionBiquads,
		NumReverbSubbands:            c.NumReverbSubbands,
		LateReverbLengthSeconds:      c.LateReverbLengthSeconds,
		MaxReverbUpdatesPerPeriod:    c.MaxReverbUpdatesPerPeriod,
		Sink:                         sink,
	}, nil
}

// ToVisrRendererConfig wraps ToCoreRendererConfig with the outer
// renderer's queue and tracking options.
func (c *RendererConfig) ToVisrRendererConfig(sink diagnostics.Sink) (signalflows.VisrRendererConfig, error) {
	core, err := c.ToCoreRendererConfig(sink)
	if err != nil {
		return signalflows.VisrRendererConfig{}, err
	}
	return signalflows.VisrRendererConfig{
		CoreRendererConfig: core,
		SceneQueueCapacity: c.SceneQueueCapacity,
		ListenerTracking:   c.ListenerTracking,
	}, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *RendererConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
