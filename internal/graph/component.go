package graph

import "fmt"

// Component is the abstract node type: owns audio and parameter ports and
// has a name unique within its parent.
type Component interface {
	Name() string
	AudioPorts() []*AudioPort
	ParameterPorts() []*ParameterPort
}

// AtomicComponent additionally implements the per-block processing
// step: it reads its inputs and writes its outputs within one call.
type AtomicComponent interface {
	Component
	Process(ctx *SignalFlowContext) error
}

// CompositeComponent owns child components and declares the audio and
// parameter connections between its own ports and those of its children
// (or between two children).
type CompositeComponent interface {
	Component
	Children() []Component
	AudioConnections() []AudioConnection
	ParameterConnections() []ParameterConnection
}

// SignalFlowContext carries the process-wide constants every atom's
// Process call needs: block size, sampling frequency, and the alignment
// granularity the CommunicationArea was built with.
type SignalFlowContext struct {
	BlockSize         int
	SamplingFrequency float64
	Alignment         int
}

// KernelAlignment returns the alignment value atoms pass to the efl
// kernels for full-block rows. The kernels express alignment as a
// length-granularity requirement, so it only applies when the block
// size itself is a multiple of the granularity.
func (c *SignalFlowContext) KernelAlignment() int {
	if c.Alignment > 1 && c.BlockSize%c.Alignment == 0 {
		return c.Alignment
	}
	return 1
}

// Base is embedded by concrete atomic/composite components to satisfy
// the Component interface's bookkeeping without repeating it.
type Base struct {
	name      string
	audio     []*AudioPort
	parameter []*ParameterPort
}

// NewBase constructs a Base with the given component name.
func NewBase(name string) Base {
	return Base{name: name}
}

func (b *Base) Name() string                     { return b.name }
func (b *Base) AudioPorts() []*AudioPort          { return b.audio }
func (b *Base) ParameterPorts() []*ParameterPort  { return b.parameter }

// AddAudioPort registers a port created via NewAudioPort or
// NewPassthroughAudioPort with this component.
func (b *Base) AddAudioPort(p *AudioPort) *AudioPort {
	b.audio = append(b.audio, p)
	return p
}

// AddParameterPort registers a parameter port with this component.
func (b *Base) AddParameterPort(p *ParameterPort) *ParameterPort {
	b.parameter = append(b.parameter, p)
	return p
}

// ConfigError is a fatal, construction/initialise-time error naming the
// offending component and (optionally) port.
type ConfigError struct {
	Component string
	Port      string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("graph: component %q: %s", e.Component, e.Reason)
	}
	return fmt.Sprintf("graph: component %q port %q: %s", e.Component, e.Port, e.Reason)
}

// NewConfigError constructs a ConfigError.
func NewConfigError(component, port, reason string) *ConfigError {
	return &ConfigError{Component: component, Port: port, Reason: reason}
}
