// Package audiodriver wires a signalflows.CoreRenderer to a live
// PortAudio duplex stream. It carries only the callback plumbing between
// the hardware buffers and the renderer's block contract; scene and
// array handling live elsewhere.
package audiodriver

import (
	"fmt"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/san-kum/dynrenderer/internal/diagnostics"
)

// Renderer is the block-processing surface the driver feeds: a
// signalflows.CoreRenderer, BaselineRenderer, or VisrRenderer.
type Renderer interface {
	ProcessBlock(in, out [][]float64) error
	NumObjectChannels() int
	NumOutputChannels() int
}

// Driver owns a PortAudio duplex stream and feeds every callback through
// a renderer's ProcessBlock. Object input channels arrive from the
// audio interface's input channels (e.g. a multichannel soundcard or a
// loopback device carrying pre-rendered object stems); loudspeaker
// output channels are written to the interface's outputs.
type Driver struct {
	renderer Renderer
	stream   *portaudio.Stream
	sink     diagnostics.Sink

	blockSize int
	in        [][]float64
	out       [][]float64

	levelMu sync.Mutex
	levels  []float64 // per-output-channel RMS of the most recently rendered block
}

// NewDriver allocates the float64 staging buffers ProcessBlock expects,
// sized from the renderer's object-channel and output-channel counts.
// sink receives a diagnostic whenever a callback's block is abandoned;
// nil drops the reports.
func NewDriver(renderer Renderer, blockSize int, sink diagnostics.Sink) *Driver {
	d := &Driver{renderer: renderer, blockSize: blockSize, sink: sink}
	d.in = make([][]float64, renderer.NumObjectChannels())
	for i := range d.in {
		d.in[i] = make([]float64, blockSize)
	}
	d.out = make([][]float64, renderer.NumOutputChannels())
	for i := range d.out {
		d.out[i] = make([]float64, blockSize)
	}
	d.levels = make([]float64, renderer.NumOutputChannels())
	return d
}

// Levels returns the RMS of each output channel's most recently rendered
// block, for a CLI VU meter (cmd/dynrenderer run --meter). Safe to call
// from any goroutine; it never blocks the audio callback for long.
func (d *Driver) Levels() []float64 {
	d.levelMu.Lock()
	defer d.levelMu.Unlock()
	out := make([]float64, len(d.levels))
	copy(out, d.levels)
	return out
}

// Start opens the default PortAudio duplex stream and begins calling the
// renderer once per hardware block. sampleRate must match the renderer's
// configured sampling frequency; a mismatched rate is a configuration
// error the caller should catch before Start (PortAudio itself will
// happily resample and silently defeat the renderer's clock).
func (d *Driver) Start(sampleRate float64) error {
	portaudio.Initialize()
	stream, err := portaudio.OpenDefaultStream(
		len(d.in), len(d.out), sampleRate, d.blockSize, d.callback,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("audiodriver: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("audiodriver: start stream: %w", err)
	}
	d.stream = stream
	return nil
}

// Stop closes the stream and releases the PortAudio runtime.
func (d *Driver) Stop() error {
	if d.stream == nil {
		return nil
	}
	err := d.stream.Stop()
	d.stream.Close()
	portaudio.Terminate()
	d.stream = nil
	return err
}

// callback is the PortAudio real-time entry point: it converts the
// interleaved-by-channel float32 buffers PortAudio hands it into the
// renderer's float64 per-channel slices, drives one block, and converts
// back. No allocation occurs here — only the staging buffers allocated
// by NewDriver are touched; the real-time path must not allocate.
func (d *Driver) callback(in, out [][]float32) {
	for ch := range d.in {
		if ch >= len(in) {
			break
		}
		for i, v := range in[ch] {
			d.in[ch][i] = float64(v)
		}
	}
	// Atom-level failures inside the graph are absorbed and reported
	// there; an error here means the whole block could not run (e.g. a
	// bus-width mismatch), so report it and hand the hardware silence.
	if err := d.renderer.ProcessBlock(d.in, d.out); err != nil {
		diagnostics.Reportf(d.sink, "audiodriver", "", diagnostics.Error, "block abandoned: %v", err)
		for ch := range out {
			for i := range out[ch] {
				out[ch][i] = 0
			}
		}
		return
	}
	d.levelMu.Lock()
	for ch := range out {
		if ch >= len(d.out) {
			for i := range out[ch] {
				out[ch][i] = 0
			}
			continue
		}
		sumSq := 0.0
		for i, v := range d.out[ch] {
			out[ch][i] = float32(v)
			sumSq += v * v
		}
		if ch < len(d.levels) {
			d.levels[ch] = math.Sqrt(sumSq / float64(len(d.out[ch])))
		}
	}
	d.levelMu.Unlock()
}
