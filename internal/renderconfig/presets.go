package renderconfig

var Presets = map[string]map[string]*RendererConfig{
	"stereo": {
		"default": {
			Array: LoudspeakerArrayConfig{
				Name: "stereo", Is2D: true,
				Loudspeakers: []LoudspeakerConfig{
					{Azimuth: -0.5236, Radius: 1},
					{Azimuth: 0.5236, Radius: 1},
				},
			},
			BlockSize: DefaultBlockSize, SamplingFrequency: DefaultSamplingFrequency,
			MaxObjectChannels: DefaultMaxObjectChannels,
			PanningMethod:     string(PanningVBAP), GainCap: DefaultGainCap,
			MaxReverbObjects: DefaultMaxReverbObjects, MaxReflectionsPerSlot: DefaultMaxReflectionsPerSlot,
			NumDiscreteReflectionBiquads: DefaultNumDiscreteReflectionBiquads,
			NumReverbSubbands:            DefaultNumReverbSubbands,
			LateReverbLengthSeconds:      DefaultLateReverbLengthSeconds,
			MaxReverbUpdatesPerPeriod:    DefaultMaxReverbUpdatesPerPeriod,
		},
		"cap_wide": {
			Array: LoudspeakerArrayConfig{
				Name: "stereo_wide", Is2D: true,
				Loudspeakers: []LoudspeakerConfig{
					{Azimuth: -1.0472, Radius: 1},
					{Azimuth: 1.0472, Radius: 1},
				},
			},
			BlockSize: DefaultBlockSize, SamplingFrequency: DefaultSamplingFrequency,
			MaxObjectChannels: DefaultMaxObjectChannels,
			PanningMethod:     string(PanningCAP), GainCap: 1.5,
			MaxReverbObjects: DefaultMaxReverbObjects, MaxReflectionsPerSlot: DefaultMaxReflectionsPerSlot,
			NumDiscreteReflectionBiquads: DefaultNumDiscreteReflectionBiquads,
			NumReverbSubbands:            DefaultNumReverbSubbands,
			LateReverbLengthSeconds:      DefaultLateReverbLengthSeconds,
			MaxReverbUpdatesPerPeriod:    DefaultMaxReverbUpdatesPerPeriod,
		},
	},
	"surround51": {
		"default": {
			Array: LoudspeakerArrayConfig{
				Name: "surround51", Is2D: true,
				Loudspeakers: []LoudspeakerConfig{
					{Azimuth: 0, Radius: 1},          // C
					{Azimuth: -0.5236, Radius: 1},    // R
					{Azimuth: 0.5236, Radius: 1},     // L
					{Azimuth: -2.0944, Radius: 1},    // Rs
					{Azimuth: 2.0944, Radius: 1},     // Ls
				},
			},
			BlockSize: DefaultBlockSize, SamplingFrequency: DefaultSamplingFrequency,
			MaxObjectChannels: DefaultMaxObjectChannels,
			PanningMethod:     string(PanningVBAP), GainCap: DefaultGainCap,
			MaxReverbObjects: DefaultMaxReverbObjects, MaxReflectionsPerSlot: DefaultMaxReflectionsPerSlot,
			NumDiscreteReflectionBiquads: DefaultNumDiscreteReflectionBiquads,
			NumReverbSubbands:            DefaultNumReverbSubbands,
			LateReverbLengthSeconds:      DefaultLateReverbLengthSeconds,
			MaxReverbUpdatesPerPeriod:    DefaultMaxReverbUpdatesPerPeriod,
		},
	},
	"surround714": {
		"default": {
			Array: LoudspeakerArrayConfig{
				Name: "surround714", Is2D: false,
				Loudspeakers: []LoudspeakerConfig{
					{Azimuth: 0, Elevation: 0, Radius: 1},
					{Azimuth: -0.5236, Elevation: 0, Radius: 1},
					{Azimuth: 0.5236, Elevation: 0, Radius: 1},
					{Azimuth: -1.5708, Elevation: 0, Radius: 1},
					{Azimuth: 1.5708, Elevation: 0, Radius: 1},
					{Azimuth: -2.6180, Elevation: 0, Radius: 1},
					{Azimuth: 2.6180, Elevation: 0, Radius: 1},
					{Azimuth: -0.7854, Elevation: 0.6109, Radius: 1},
					{Azimuth: 0.7854, Elevation: 0.6109, Radius: 1},
					{Azimuth: -2.3562, Elevation: 0.6109, Radius: 1},
					{Azimuth: 2.3562, Elevation: 0.6109, Radius: 1},
				},
				// Band facets between the horizontal ring and the height
				// ring, plus the top cap.
				Triplets: [][3]int{
					{5, 3, 9}, {3, 9, 7}, {3, 1, 7}, {1, 0, 7}, {0, 7, 8},
					{0, 2, 8}, {2, 4, 8}, {4, 8, 10}, {4, 6, 10}, {6, 5, 10},
					{5, 9, 10}, {9, 7, 8}, {9, 8, 10},
				},
			},
			BlockSize: DefaultBlockSize, SamplingFrequency: DefaultSamplingFrequency,
			MaxObjectChannels: DefaultMaxObjectChannels,
			PanningMethod:     string(PanningAllRAD), GainCap: DefaultGainCap,
			MaxReverbObjects: DefaultMaxReverbObjects, MaxReflectionsPerSlot: DefaultMaxReflectionsPerSlot,
			NumDiscreteReflectionBiquads: DefaultNumDiscreteReflectionBiquads,
			NumReverbSubbands:            DefaultNumReverbSubbands,
			LateReverbLengthSeconds:      DefaultLateReverbLengthSeconds,
			MaxReverbUpdatesPerPeriod:    DefaultMaxReverbUpdatesPerPeriod,
			AllRADOrder:                  1,
			AllRADNumVirtualSpeakers:     240,
		},
	},
}

// GetPreset looks up a preset by array name and preset name, returning nil
// if either is absent.
func GetPreset(array, preset string) *RendererConfig {
	arrayPresets, ok := Presets[array]
	if !ok {
		return nil
	}
	cfg, ok := arrayPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

// ListPresets returns the preset names registered for an array, or nil if
// the array is unknown.
func ListPresets(array string) []string {
	arrayPresets, ok := Presets[array]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(arrayPresets))
	for name := range arrayPresets {
		names = append(names, name)
	}
	return names
}
