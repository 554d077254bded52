package signalflows

import (
	"github.com/san-kum/dynrenderer/internal/objectmodel"
	"github.com/san-kum/dynrenderer/internal/pml"
	"github.com/san-kum/dynrenderer/internal/sceneingest"
)

// BaselineRenderer couples a CoreRenderer with the cross-thread scene
// ingestion queue: a network or controller goroutine pushes scene
// updates through SceneReceiver() at any time, and ProcessBlock drains
// everything pending into the calculator atoms before running the
// graph, so updates always take effect at a block boundary.
type BaselineRenderer struct {
	core     *CoreRenderer
	receiver *sceneingest.Receiver
}

// DefaultSceneQueueCapacity bounds the number of scene updates that may
// be in flight between the receiving thread and the audio thread when
// the caller does not choose a capacity.
const DefaultSceneQueueCapacity = 64

// NewBaselineRenderer builds the full rendering graph plus the scene
// ingestion queue. queueCapacity <= 0 selects
// DefaultSceneQueueCapacity.
func NewBaselineRenderer(name string, cfg CoreRendererConfig, queueCapacity int) (*BaselineRenderer, error) {
	core, err := NewCoreRenderer(name, cfg)
	if err != nil {
		return nil, err
	}
	if queueCapacity <= 0 {
		queueCapacity = DefaultSceneQueueCapacity
	}
	return &BaselineRenderer{core: core, receiver: sceneingest.NewReceiver(queueCapacity)}, nil
}

// SceneReceiver returns the queue endpoint for the thread that receives
// scene updates. PushObjects/PushListener on it are safe to call
// concurrently with ProcessBlock.
func (r *BaselineRenderer) SceneReceiver() *sceneingest.Receiver { return r.receiver }

// Core exposes the underlying CoreRenderer, for callers that drive the
// calculators directly (tests, in-process scene generators).
func (r *BaselineRenderer) Core() *CoreRenderer { return r.core }

// ProcessBlock drains pending scene updates and runs one block.
func (r *BaselineRenderer) ProcessBlock(in, out [][]float64) error {
	r.receiver.Drain(r.core)
	return r.core.ProcessBlock(in, out)
}

// NumObjectChannels, NumSpeakers, and NumOutputChannels mirror the
// underlying CoreRenderer's bus widths.
func (r *BaselineRenderer) NumObjectChannels() int { return r.core.NumObjectChannels() }
func (r *BaselineRenderer) NumSpeakers() int       { return r.core.NumSpeakers() }
func (r *BaselineRenderer) NumOutputChannels() int { return r.core.NumOutputChannels() }

// VisrRendererConfig extends the core configuration with the outer
// renderer's own options.
type VisrRendererConfig struct {
	CoreRendererConfig

	// SceneQueueCapacity bounds the scene-update queue; <= 0 selects
	// DefaultSceneQueueCapacity.
	SceneQueueCapacity int

	// ListenerTracking enables the listener-position input; when false,
	// incoming listener updates are discarded and the renderer pans for
	// a centred, front-facing listener.
	ListenerTracking bool
}

// VisrRenderer is the outermost renderer: a BaselineRenderer plus the
// listener-tracking switch. It is the type the command-line runner and
// the audio driver hold.
type VisrRenderer struct {
	BaselineRenderer
	listenerTracking bool
}

// NewVisrRenderer builds the outer renderer per cfg.
func NewVisrRenderer(name string, cfg VisrRendererConfig) (*VisrRenderer, error) {
	base, err := NewBaselineRenderer(name, cfg.CoreRendererConfig, cfg.SceneQueueCapacity)
	if err != nil {
		return nil, err
	}
	return &VisrRenderer{BaselineRenderer: *base, listenerTracking: cfg.ListenerTracking}, nil
}

// PushObjects forwards a scene-object vector to the calculators,
// bypassing the queue; intended for same-thread callers.
func (r *VisrRenderer) PushObjects(v objectmodel.Vector) { r.core.PushObjects(v) }

// PushListener forwards a listener pose when tracking is enabled and
// silently discards it otherwise.
func (r *VisrRenderer) PushListener(p pml.ListenerParameter) {
	if !r.listenerTracking {
		return
	}
	r.core.PushListener(p)
}

// ProcessBlock drains pending scene updates through the listener-tracking
// switch above and runs one block.
func (r *VisrRenderer) ProcessBlock(in, out [][]float64) error {
	r.receiver.Drain(r)
	return r.core.ProcessBlock(in, out)
}

// ListenerTracking reports whether listener updates are honoured.
func (r *VisrRenderer) ListenerTracking() bool { return r.listenerTracking }
