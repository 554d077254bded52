// Package fft provides a small named-provider registry over complex FFT
// backends, so the convolver and late-reverb synthesiser can select an
// implementation by configuration string the same way the rest of the
// renderer's pluggable components (panning algorithm, interpolation
// method) are selected by name.
package fft

import (
	"fmt"
	"sync"

	godsp "github.com/mjibson/go-dsp/fft"
)

// Provider performs forward and inverse complex FFTs of a fixed size.
type Provider interface {
	// Name identifies the provider, matching its registration name.
	Name() string
	// Forward computes the complex DFT of in, which must have length Size().
	Forward(in []complex128) []complex128
	// Inverse computes the inverse complex DFT of in, which must have
	// length Size(), normalised so Inverse(Forward(x)) == x.
	Inverse(in []complex128) []complex128
	// Size is the transform length this provider was constructed for.
	Size() int
}

// Factory constructs a Provider for a given transform size.
type Factory func(size int) (Provider, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
	// preferredOrder lists provider names in registration order; "default"
	// resolves to its first entry, and no other entry is tried.
	preferredOrder []string
)

// Register installs a named FFT backend factory. Called from package
// init functions of concrete backends; registering the same name twice
// replaces the earlier factory but preserves its position in the
// preference order.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; !exists {
		preferredOrder = append(preferredOrder, name)
	}
	factories[name] = f
}

// Select constructs a provider of the given transform size using the
// backend registered under name. The name "default" selects the first
// backend that was registered (currently "go-dsp"); an unknown name
// is an error rather than a silent fallback.
func Select(name string, size int) (Provider, error) {
	if size <= 0 {
		return nil, fmt.Errorf("fft: size must be positive")
	}
	mu.RLock()
	defer mu.RUnlock()
	if name == "default" || name == "" {
		if len(preferredOrder) == 0 {
			return nil, fmt.Errorf("fft: no providers registered")
		}
		name = preferredOrder[0]
	}
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("fft: unknown provider %q", name)
	}
	return factory(size)
}

// Available lists the names of every registered provider, in preference
// order.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, len(preferredOrder))
	copy(out, preferredOrder)
	return out
}

func init() {
	Register("go-dsp", newGoDSPProvider)
}

type goDSPProvider struct {
	size int
}

func newGoDSPProvider(size int) (Provider, error) {
	if size <= 0 {
		return nil, fmt.Errorf("fft: size must be positive")
	}
	return &goDSPProvider{size: size}, nil
}

func (p *goDSPProvider) Name() string { return "go-dsp" }
func (p *goDSPProvider) Size() int    { return p.size }

func (p *goDSPProvider) Forward(in []complex128) []complex128 {
	return godsp.FFT(in)
}

func (p *goDSPProvider) Inverse(in []complex128) []complex128 {
	return godsp.IFFT(in)
}
