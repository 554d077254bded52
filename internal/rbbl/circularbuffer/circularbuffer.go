// Package circularbuffer implements the multichannel delay-line ring used
// by every atom that needs to look back into its own input history
// (DelayVector, the partitioned convolver's input history, the late-reverb
// onset delay). It keeps a shadow copy of every sample so that any
// contiguous run of up to Length() samples can be read with a single
// pointer, even across the wraparound boundary.
package circularbuffer

import "fmt"

// Buffer is a ring of numberOfChannels independent rows, each of length
// roundUp(length, alignment)*2 samples: the first half is the "live" ring,
// the second half is a shadow copy kept one alignedLength behind so a read
// of up to Length() consecutive samples never needs to wrap.
type Buffer struct {
	length         int
	allocatedLen   int
	numChannels    int
	rows           [][]float64
	writeHeadIndex int
}

func roundUp(n, alignment int) int {
	if alignment <= 1 {
		return n
	}
	if n%alignment == 0 {
		return n
	}
	return (n/alignment + 1) * alignment
}

// New allocates a buffer with numberOfChannels independent rows, each able
// to hold at least length consecutive samples of delay history.
func New(numberOfChannels, length, alignment int) (*Buffer, error) {
	if numberOfChannels <= 0 || length <= 0 {
		return nil, fmt.Errorf("circularbuffer: numberOfChannels and length must be positive")
	}
	allocated := roundUp(length, alignment)
	rows := make([][]float64, numberOfChannels)
	for i := range rows {
		rows[i] = make([]float64, 2*allocated)
	}
	return &Buffer{
		length:       length,
		allocatedLen: allocated,
		numChannels:  numberOfChannels,
		rows:         rows,
	}, nil
}

func (b *Buffer) NumberOfChannels() int { return b.numChannels }
func (b *Buffer) Length() int           { return b.length }

// Write appends numberOfSamples samples per channel at the current write
// head, updating both the live region and its shadow copy, then advances
// the write head.
func (b *Buffer) Write(data [][]float64) error {
	if len(data) != b.numChannels {
		return fmt.Errorf("circularbuffer: write: channel count mismatch: got %d want %d", len(data), b.numChannels)
	}
	var n int
	if len(data) > 0 {
		n = len(data[0])
	}
	if n > b.length {
		return fmt.Errorf("circularbuffer: write: %d samples exceeds buffer length %d", n, b.length)
	}
	for ch, chanData := range data {
		if len(chanData) != n {
			return fmt.Errorf("circularbuffer: write: ragged channel lengths")
		}
		row := b.rows[ch]
		copy(row[b.writeHeadIndex:], chanData)
		// Mirror into the shadow half so reads spanning the wrap stay contiguous.
		shadowStart := b.writeHeadIndex + b.allocatedLen
		if shadowStart >= len(row) {
			shadowStart -= len(row)
		}
		remaining := chanData
		pos := shadowStart
		for len(remaining) > 0 {
			space := len(row) - pos
			k := len(remaining)
			if k > space {
				k = space
			}
			copy(row[pos:pos+k], remaining[:k])
			remaining = remaining[k:]
			pos = 0
		}
	}
	b.advanceWriteHead(n)
	return nil
}

func (b *Buffer) advanceWriteHead(n int) {
	b.writeHeadIndex = (b.writeHeadIndex + n) % b.allocatedLen
}

// ReadPointer returns a slice view of length Length() ending at the sample
// that was written `delay` samples ago (delay==0 is the most recently
// written sample), contiguous even across the wrap boundary. The caller
// must not retain the slice past the next Write call.
func (b *Buffer) ReadPointer(channel, delay int) ([]float64, error) {
	if channel < 0 || channel >= b.numChannels {
		return nil, fmt.Errorf("circularbuffer: channel %d out of range", channel)
	}
	if delay < 0 || delay >= b.length {
		return nil, fmt.Errorf("circularbuffer: delay %d exceeds buffer length %d", delay, b.length)
	}
	row := b.rows[channel]
	// Index of the delayed sample relative to the shadow half: both copies
	// hold the same value for every ring position, so when the window's
	// start would fall before the row, the whole window shifts down one
	// copy and stays contiguous.
	last := b.allocatedLen + b.writeHeadIndex - 1 - delay
	start := last - (b.length - 1)
	if start < 0 {
		start += b.allocatedLen
		last += b.allocatedLen
	}
	return row[start : last+1], nil
}

// ReadSample returns a single delayed sample without allocating a slice.
func (b *Buffer) ReadSample(channel, delay int) (float64, error) {
	if channel < 0 || channel >= b.numChannels {
		return 0, fmt.Errorf("circularbuffer: channel %d out of range", channel)
	}
	if delay < 0 || delay >= b.length {
		return 0, fmt.Errorf("circularbuffer: delay %d exceeds buffer length %d", delay, b.length)
	}
	return b.rows[channel][b.allocatedLen+b.writeHeadIndex-1-delay], nil
}
