// Command dynrenderer is the thin operator-facing CLI around the
// signalflows renderer: just enough argument handling and wiring to
// build a renderer from a config/preset, drive it against a live
// PortAudio stream, and validate a configuration file — intentionally
// light by design (full backend adapters, XML array/scene
// parsers, GUIs are all out of scope of the core this wraps).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/dynrenderer/internal/audiodriver"
	"github.com/san-kum/dynrenderer/internal/diagnostics"
	"github.com/san-kum/dynrenderer/internal/renderconfig"
	"github.com/san-kum/dynrenderer/internal/signalflows"
)

var (
	configFile string
	arrayName  string
	presetName string
	meter      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dynrenderer",
		Short: "real-time object-based spatial audio renderer",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "build a renderer from a config/preset and drive it against a live audio device",
		RunE:  runRenderer,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "renderer config file (yaml)")
	runCmd.Flags().StringVar(&arrayName, "array", "stereo", "loudspeaker array preset group")
	runCmd.Flags().StringVar(&presetName, "preset", "default", "preset name within the array group")
	runCmd.Flags().BoolVar(&meter, "meter", false, "render a live ASCII level meter while running (without it, run just waits for an interrupt)")

	validateCmd := &cobra.Command{
		Use:   "validate [config file]",
		Short: "validate a renderer config file without starting audio",
		Args:  cobra.ExactArgs(1),
		RunE:  validateConfig,
	}

	presetCmd := &cobra.Command{
		Use:   "preset",
		Short: "inspect built-in renderer presets",
	}
	presetListCmd := &cobra.Command{
		Use:   "list [array]",
		Short: "list preset names, optionally scoped to one array group",
		Args:  cobra.MaximumNArgs(1),
		RunE:  presetList,
	}
	presetCmd.AddCommand(presetListCmd)

	rootCmd.AddCommand(runCmd, validateCmd, presetCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*renderconfig.RendererConfig, error) {
	if configFile != "" {
		return renderconfig.Load(configFile)
	}
	cfg := renderconfig.GetPreset(arrayName, presetName)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset %s/%s (known arrays: %s)", arrayName, presetName, strings.Join(knownArrays(), ", "))
	}
	return cfg, nil
}

func knownArrays() []string {
	names := make([]string, 0, len(renderconfig.Presets))
	for name := range renderconfig.Presets {
		names = append(names, name)
	}
	return names
}

func runRenderer(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	counting := &diagnostics.CountingSink{Next: diagnostics.NewLogSink(os.Stderr)}
	visrCfg, err := cfg.ToVisrRendererConfig(counting)
	if err != nil {
		return fmt.Errorf("build renderer config: %w", err)
	}

	renderer, err := signalflows.NewVisrRenderer("dynrenderer", visrCfg)
	if err != nil {
		return fmt.Errorf("construct renderer graph: %w", err)
	}
	logger.Info("renderer constructed", "object_channels", renderer.NumObjectChannels(), "speakers", renderer.NumSpeakers(), "output_channels", renderer.NumOutputChannels())

	driver := audiodriver.NewDriver(renderer, cfg.BlockSize, counting)
	if err := driver.Start(cfg.SamplingFrequency); err != nil {
		return fmt.Errorf("start audio driver: %w", err)
	}
	defer driver.Stop()
	logger.Info("audio stream started", "sample_rate", cfg.SamplingFrequency, "block_size", cfg.BlockSize)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if !meter {
		<-sigCh
		logger.Info("stopping")
		return nil
	}
	return runMeter(renderer.NumOutputChannels(), driver, sigCh)
}

// runMeter polls the driver's per-channel RMS levels and redraws an
// asciigraph history plot for channel 0 (plus a textual bar for every
// channel) until interrupted, giving an operator a live VU meter without
// a GUI.
func runMeter(numSpeakers int, driver *audiodriver.Driver, sigCh chan os.Signal) error {
	const historyLen = 120
	history := make([]float64, 0, historyLen)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			return nil
		case <-ticker.C:
			levels := driver.Levels()
			if len(levels) == 0 {
				continue
			}
			history = append(history, levels[0])
			if len(history) > historyLen {
				history = history[len(history)-historyLen:]
			}
			fmt.Print("\033[H\033[2J")
			fmt.Println(asciigraph.Plot(history,
				asciigraph.Height(10), asciigraph.Width(80),
				asciigraph.Caption("output ch0 RMS")))
			for ch := 0; ch < numSpeakers; ch++ {
				bar := strings.Repeat("#", int(levels[ch]*40))
				fmt.Printf("ch%-2d %-40s %.4f\n", ch, bar, levels[ch])
			}
		}
	}
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := renderconfig.Load(args[0])
	if err != nil {
		return err
	}
	if _, err := cfg.ToCoreRendererConfig(nil); err != nil {
		return err
	}
	fmt.Printf("ok: %s (block_size=%d fs=%.0f speakers=%d)\n", args[0], cfg.BlockSize, cfg.SamplingFrequency, len(cfg.Array.Loudspeakers))
	return nil
}

func presetList(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		names := renderconfig.ListPresets(args[0])
		if len(names) == 0 {
			return fmt.Errorf("no presets for array %q", args[0])
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}
	for array, presets := range renderconfig.Presets {
		names := make([]string, 0, len(presets))
		for name := range presets {
			names = append(names, name)
		}
		fmt.Printf("%s: %s\n", array, strings.Join(names, ", "))
	}
	return nil
}
