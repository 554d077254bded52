// Package convolver implements a partitioned uniform (overlap-save) FIR
// convolution engine driving an arbitrary many-to-many routing table: any
// number of (input, output, filter, gain) tuples can share filters and
// accumulate into the same output, matching the routing contract used by
// the reference multichannel convolver.
package convolver

import (
	"fmt"

	"github.com/san-kum/dynrenderer/internal/fft"
)

// RoutingEntry connects one input channel to one output channel through
// one stored filter, scaled by gain.
type RoutingEntry struct {
	Input, Output int
	Filter        int
	Gain          float64
}

// Convolver is a partitioned overlap-save FIR engine: numberOfInputs input
// channels and numberOfOutputs output channels, connected by a routing
// table through a bank of up to maxFilters filters of up to
// maxFilterLength taps each.
type Convolver struct {
	numInputs, numOutputs int
	blockLength           int
	fftLength             int
	maxFilterLength       int
	maxPartitions         int

	provider fft.Provider

	filters  [][]complex128 // [filterIdx][partition*fftLength] flattened per-partition spectra
	filterNP []int          // number of partitions actually populated per filter

	inputTime   [][]float64     // [input][fftLength] overlap-save window
	inputSpectra [][][]complex128 // [input][partitionHistorySlot][fftLength]
	historyLen  int             // ring depth, == maxPartitions

	accum        [][]complex128 // [output][fftLength] per-block MAC scratch
	windowScratch []complex128  // [fftLength] forward-FFT input scratch

	routing []RoutingEntry
}

// New constructs a convolver. It takes no alignment argument, and
// maxRoutingPoints is accepted but not enforced: SetRoutingTable takes a
// table of any length.
func New(numberOfInputs, numberOfOutputs, blockLength, maxFilterLength, maxRoutingPoints, maxFilters int, fftProviderName string) (*Convolver, error) {
	if numberOfInputs <= 0 || numberOfOutputs <= 0 || blockLength <= 0 || maxFilterLength <= 0 {
		return nil, fmt.Errorf("convolver: dimensions must be positive")
	}
	_ = maxRoutingPoints // not enforced; the routing table is a plain slice
	fftLength := 2 * blockLength
	provider, err := fft.Select(fftProviderName, fftLength)
	if err != nil {
		return nil, fmt.Errorf("convolver: %w", err)
	}
	maxPartitions := (maxFilterLength + blockLength - 1) / blockLength

	c := &Convolver{
		numInputs:       numberOfInputs,
		numOutputs:      numberOfOutputs,
		blockLength:     blockLength,
		fftLength:       fftLength,
		maxFilterLength: maxFilterLength,
		maxPartitions:   maxPartitions,
		provider:        provider,
		filters:         make([][]complex128, maxFilters),
		filterNP:        make([]int, maxFilters),
		inputTime:       make([][]float64, numberOfInputs),
		historyLen:      maxPartitions,
	}
	c.inputSpectra = make([][][]complex128, numberOfInputs)
	for i := 0; i < numberOfInputs; i++ {
		c.inputTime[i] = make([]float64, fftLength)
		c.inputSpectra[i] = make([][]complex128, maxPartitions)
		for p := range c.inputSpectra[i] {
			c.inputSpectra[i][p] = make([]complex128, fftLength)
		}
	}
	c.accum = make([][]complex128, numberOfOutputs)
	for o := range c.accum {
		c.accum[o] = make([]complex128, fftLength)
	}
	c.windowScratch = make([]complex128, fftLength)
	return c, nil
}

// SetFilter installs (or replaces) the impulse response stored at
// filterIndex, zero-padding it to a whole number of partitions and
// precomputing each partition's spectrum.
func (c *Convolver) SetFilter(filterIndex int, impulseResponse []float64) error {
	if filterIndex < 0 || filterIndex >= len(c.filters) {
		return fmt.Errorf("convolver: filter index %d out of range", filterIndex)
	}
	if len(impulseResponse) > c.maxFilterLength {
		return fmt.Errorf("convolver: filter length %d exceeds maxFilterLength %d", len(impulseResponse), c.maxFilterLength)
	}
	numPartitions := (len(impulseResponse) + c.blockLength - 1) / c.blockLength
	if numPartitions == 0 {
		numPartitions = 1
	}
	spectra := make([]complex128, numPartitions*c.fftLength)
	for p := 0; p < numPartitions; p++ {
		segment := make([]complex128, c.fftLength)
		start := p * c.blockLength
		end := start + c.blockLength
		if end > len(impulseResponse) {
			end = len(impulseResponse)
		}
		for i := start; i < end; i++ {
			segment[i-start] = complex(impulseResponse[i], 0)
		}
		spectrum := c.provider.Forward(segment)
		copy(spectra[p*c.fftLength:(p+1)*c.fftLength], spectrum)
	}
	c.filters[filterIndex] = spectra
	c.filterNP[filterIndex] = numPartitions
	return nil
}

// CopyFiltersFrom replaces this convolver's entire stored filter bank
// with other's, partition spectra included. Both convolvers must have
// been constructed with the same dimensions; rcl.FirFilterMatrix uses
// this to seed its fading engine before a partial filter update.
func (c *Convolver) CopyFiltersFrom(other *Convolver) error {
	if len(c.filters) != len(other.filters) || c.fftLength != other.fftLength {
		return fmt.Errorf("convolver: filter bank dimensions do not match")
	}
	for i, src := range other.filters {
		if src == nil {
			c.filters[i] = nil
			c.filterNP[i] = 0
			continue
		}
		if c.filters[i] == nil || len(c.filters[i]) != len(src) {
			c.filters[i] = make([]complex128, len(src))
		}
		copy(c.filters[i], src)
		c.filterNP[i] = other.filterNP[i]
	}
	return nil
}

// SetRoutingTable replaces the full set of (input, output, filter, gain)
// connections.
func (c *Convolver) SetRoutingTable(entries []RoutingEntry) error {
	for _, e := range entries {
		if e.Input < 0 || e.Input >= c.numInputs {
			return fmt.Errorf("convolver: routing input %d out of range", e.Input)
		}
		if e.Output < 0 || e.Output >= c.numOutputs {
			return fmt.Errorf("convolver: routing output %d out of range", e.Output)
		}
		if e.Filter < 0 || e.Filter >= len(c.filters) {
			return fmt.Errorf("convolver: routing filter %d out of range", e.Filter)
		}
	}
	routing := make([]RoutingEntry, len(entries))
	copy(routing, entries)
	c.routing = routing
	return nil
}

func (c *Convolver) filterPartition(filterIdx, partition int) []complex128 {
	return c.filters[filterIdx][partition*c.fftLength : (partition+1)*c.fftLength]
}

// PushInput slides each input's overlap-save window one block forward and
// refreshes its spectrum history (slot 0 is the newest partition), without
// rendering any output. Callers that keep a second filter set fading in
// (rcl.FirFilterMatrix) push the same block into both engines so their
// histories stay identical, then render each.
func (c *Convolver) PushInput(input [][]float64) error {
	if len(input) != c.numInputs {
		return fmt.Errorf("convolver: channel count mismatch")
	}
	for _, row := range input {
		if len(row) != c.blockLength {
			return fmt.Errorf("convolver: input block length mismatch")
		}
	}

	for in := 0; in < c.numInputs; in++ {
		copy(c.inputTime[in], c.inputTime[in][c.blockLength:])
		copy(c.inputTime[in][c.blockLength:], input[in])

		for i, v := range c.inputTime[in] {
			c.windowScratch[i] = complex(v, 0)
		}
		spectrum := c.provider.Forward(c.windowScratch)

		history := c.inputSpectra[in]
		for p := c.historyLen - 1; p > 0; p-- {
			copy(history[p], history[p-1])
		}
		copy(history[0], spectrum)
	}
	return nil
}

// RenderOutput runs the routing-table multiply-accumulate over the current
// spectrum history and writes one block per output channel.
func (c *Convolver) RenderOutput(output [][]float64) error {
	if len(output) != c.numOutputs {
		return fmt.Errorf("convolver: channel count mismatch")
	}

	for o := range c.accum {
		for k := range c.accum[o] {
			c.accum[o][k] = 0
		}
	}

	for _, r := range c.routing {
		np := c.filterNP[r.Filter]
		history := c.inputSpectra[r.Input]
		target := c.accum[r.Output]
		for p := 0; p < np && p < c.historyLen; p++ {
			filterSpec := c.filterPartition(r.Filter, p)
			inSpec := history[p]
			for k := 0; k < c.fftLength; k++ {
				target[k] += complex(r.Gain, 0) * filterSpec[k] * inSpec[k]
			}
		}
	}

	for o := 0; o < c.numOutputs; o++ {
		if len(output[o]) != c.blockLength {
			return fmt.Errorf("convolver: output block length mismatch")
		}
		timeDomain := c.provider.Inverse(c.accum[o])
		// Overlap-save: the first blockLength samples of the
		// fftLength-point circular convolution are contaminated by
		// wrap-around; only the second half is linear-convolution-correct.
		for i := 0; i < c.blockLength; i++ {
			output[o][i] = real(timeDomain[c.blockLength+i])
		}
	}
	return nil
}

// Process filters one block of blockLength samples per input channel into
// numberOfOutputs output channels, accumulating every routing entry that
// targets a given output.
func (c *Convolver) Process(input, output [][]float64) error {
	if err := c.PushInput(input); err != nil {
		return err
	}
	return c.RenderOutput(output)
}
