// Package arena owns the per-packet bump allocator.
//
// Ownership rule: every slice returned by Alloc belongs to the current
// processing cycle. Reset hands the same memory out again, so callers must
// copy anything they want to keep before the cycle ends.
package arena

import (
	"errors"
	"fmt"
)

// DefaultCapacity is the packet buffer size used by deployed nodes.
const DefaultCapacity = 1024

const alignment = 4

var (
	ErrExhausted   = errors.New("arena: capacity exhausted")
	ErrInvalidSize = errors.New("arena: invalid allocation size")
)

// Arena is a single-owner bump allocator over a fixed backing buffer.
// It is not safe for concurrent use.
type Arena struct {
	buf       []byte
	off       int
	highWater int
}

// New creates an arena with a fixed capacity. Non-positive capacities fall
// back to DefaultCapacity.
func New(capacity int) *Arena {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Arena{buf: make([]byte, capacity)}
}

// Alloc carves size bytes from the arena. The region starts on a 4-byte
// boundary, is zeroed, and has cap == len.
func (a *Arena) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	start := align(a.off)
	if start > len(a.buf) || size > len(a.buf)-start {
		return nil, fmt.Errorf("%w: need=%d used=%d cap=%d", ErrExhausted, size, a.off, len(a.buf))
	}
	end := start + size
	region := a.buf[start:end:end]
	clear(region)
	a.off = end
	if a.off > a.highWater {
		a.highWater = a.off
	}
	return region, nil
}

// Reset rewinds the cursor. It is the only way memory is returned.
func (a *Arena) Reset() {
	a.off = 0
}

// Cap returns the fixed capacity in bytes.
func (a *Arena) Cap() int { return len(a.buf) }

// Len returns the bytes consumed in the current cycle, padding included.
func (a *Arena) Len() int { return a.off }

// Remaining returns how many bytes an aligned allocation could still take.
func (a *Arena) Remaining() int {
	start := align(a.off)
	if start >= len(a.buf) {
		return 0
	}
	return len(a.buf) - start
}

// HighWater returns the largest cursor position seen since construction.
func (a *Arena) HighWater() int { return a.highWater }

func align(n int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}
