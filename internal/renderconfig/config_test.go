package renderconfig

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Array.Name != "stereo" {
		t.Errorf("expected stereo array, got %s", cfg.Array.Name)
	}
	if cfg.BlockSize <= 0 {
		t.Error("block size should be positive")
	}
	if cfg.SamplingFrequency <= 0 {
		t.Error("sampling frequency should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadPanningMethod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PanningMethod = "not-a-method"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported panning method")
	}
}

func TestValidateRejectsEmptyArray(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Array.Loudspeakers = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty array")
	}
}

func TestToLoudspeakerArrayStereo(t *testing.T) {
	cfg := DefaultConfig()
	array, err := cfg.Array.ToLoudspeakerArray()
	if err != nil {
		t.Fatalf("ToLoudspeakerArray: %v", err)
	}
	if array.NumSpeakers() != 2 {
		t.Fatalf("expected 2 speakers, got %d", array.NumSpeakers())
	}
}

func TestToLoudspeakerArray3DUsesDeclaredTriplets(t *testing.T) {
	cfg := GetPreset("surround714", "default")
	if cfg == nil {
		t.Fatal("expected surround714/default preset")
	}
	array, err := cfg.Array.ToLoudspeakerArray()
	if err != nil {
		t.Fatalf("ToLoudspeakerArray: %v", err)
	}
	if array.Is2D {
		t.Error("expected a 3D array")
	}
	if len(array.Triplets) != len(cfg.Array.Triplets) {
		t.Errorf("expected %d triplets, got %d", len(cfg.Array.Triplets), len(array.Triplets))
	}
}

func TestToLoudspeakerArrayRejects3DWithoutTriplets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Array.Is2D = false
	if _, err := cfg.Array.ToLoudspeakerArray(); err == nil {
		t.Error("expected error for a 3D array with no declared triplets")
	}
}

func TestToLoudspeakerArrayOutputStage(t *testing.T) {
	cfg := DefaultConfig()
	left, right := 0, 2
	cfg.Array.Loudspeakers[0].Channel = &left
	cfg.Array.Loudspeakers[1].Channel = &right
	cfg.Array.Loudspeakers[0].GainDb = -6
	cfg.Array.Subwoofers = []SubwooferConfig{{Channel: 3, Weights: []float64{0.5, 0.5}}}

	array, err := cfg.Array.ToLoudspeakerArray()
	if err != nil {
		t.Fatalf("ToLoudspeakerArray: %v", err)
	}
	if got := array.NumOutputChannels(); got != 4 {
		t.Errorf("NumOutputChannels: got %d, want 4", got)
	}
	if got := array.OutputChannel(1); got != 2 {
		t.Errorf("OutputChannel(1): got %d, want 2", got)
	}
	wantGain := math.Pow(10, -6.0/20)
	if math.Abs(array.Gain(0)-wantGain) > 1e-12 {
		t.Errorf("Gain(0): got %v, want %v", array.Gain(0), wantGain)
	}
	if array.Gain(1) != 1 {
		t.Errorf("Gain(1): got %v, want 1", array.Gain(1))
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "renderer.yaml")

	cfg := DefaultConfig()
	cfg.GainCap = 3.5
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if math.Abs(loaded.GainCap-3.5) > 1e-9 {
		t.Errorf("expected gain cap 3.5, got %v", loaded.GainCap)
	}
	if loaded.Array.Name != cfg.Array.Name {
		t.Errorf("expected array name %q, got %q", cfg.Array.Name, loaded.Array.Name)
	}
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.yaml")
	if err := os.WriteFile(path, []byte("gain_cap: 9.0\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GainCap != 9.0 {
		t.Errorf("expected overridden gain cap 9.0, got %v", cfg.GainCap)
	}
	if cfg.BlockSize != DefaultBlockSize {
		t.Errorf("expected default block size to survive partial load, got %d", cfg.BlockSize)
	}
}

func TestToCoreRendererConfigBuildsArrayAndDefaults(t *testing.T) {
	cfg := DefaultConfig()
	coreCfg, err := cfg.ToCoreRendererConfig(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coreCfg.Array == nil || coreCfg.Array.NumSpeakers() != len(cfg.Array.Loudspeakers) {
		t.Fatalf("expected array with %d speakers, got %+v", len(cfg.Array.Loudspeakers), coreCfg.Array)
	}
	if coreCfg.BlockSize != cfg.BlockSize || coreCfg.SamplingFrequency != cfg.SamplingFrequency {
		t.Errorf("block size/sampling frequency not carried through: got %+v", coreCfg)
	}
	if coreCfg.Sink == nil {
		t.Error("expected ToCoreRendererConfig to substitute a no-op sink for nil")
	}
}

func TestToCoreRendererConfigRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockSize = 0
	if _, err := cfg.ToCoreRendererConfig(nil); err == nil {
		t.Fatal("expected error for invalid block size")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("stereo", "default")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.PanningMethod != string(PanningVBAP) {
		t.Errorf("expected vbap panning, got %s", cfg.PanningMethod)
	}
}

func TestGetPresetNotFound(t *testing.T) {
	if cfg := GetPreset("stereo", "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "default"); cfg != nil {
		t.Error("expected nil for nonexistent array")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("stereo")
	if len(presets) == 0 {
		t.Error("expected presets for stereo")
	}
	if presets := ListPresets("nonexistent"); presets != nil {
		t.Error("expected nil for nonexistent array")
	}
}
