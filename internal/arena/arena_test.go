package arena

import (
	"errors"
	"testing"

	"github.com/danmuck/bece/internal/testutil/testlog"
)

func TestAllocAlignsToFourBytes(t *testing.T) {
	testlog.Start(t)
	a := New(64)
	if _, err := a.Alloc(3); err != nil {
		t.Fatalf("alloc 3: %v", err)
	}
	b, err := a.Alloc(4)
	if err != nil {
		t.Fatalf("alloc 4: %v", err)
	}
	if a.Len() != 8 {
		t.Fatalf("unexpected cursor: got=%d want=8", a.Len())
	}
	if len(b) != 4 || cap(b) != 4 {
		t.Fatalf("unexpected region shape len=%d cap=%d", len(b), cap(b))
	}
}

func TestAllocReturnsZeroedRegionAfterReset(t *testing.T) {
	testlog.Start(t)
	a := New(16)
	b, _ := a.Alloc(8)
	for i := range b {
		b[i] = 0xFF
	}
	a.Reset()
	b2, err := a.Alloc(8)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	for i, v := range b2 {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %x", i, v)
		}
	}
	// Same backing memory is handed out again after Reset.
	if &b[0] != &b2[0] {
		t.Fatalf("expected reused backing memory after reset")
	}
}

func TestResetIsIdempotent(t *testing.T) {
	testlog.Start(t)
	fresh := New(128)
	a := New(128)
	if _, err := a.Alloc(50); err != nil {
		t.Fatalf("alloc: %v", err)
	}
	a.Reset()
	a.Reset()
	if a.Len() != fresh.Len() || a.Remaining() != fresh.Remaining() || a.Cap() != fresh.Cap() {
		t.Fatalf("reset state differs from fresh: len=%d rem=%d", a.Len(), a.Remaining())
	}
}

func TestAllocBoundary(t *testing.T) {
	testlog.Start(t)
	a := New(DefaultCapacity)
	if _, err := a.Alloc(DefaultCapacity + 1); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	a.Reset()
	if _, err := a.Alloc(DefaultCapacity); err != nil {
		t.Fatalf("full-capacity alloc: %v", err)
	}
	if _, err := a.Alloc(DefaultCapacity); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected second full alloc to fail, got %v", err)
	}
	if _, err := a.Alloc(1); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected 1-byte alloc on full arena to fail, got %v", err)
	}
}

func TestSequentialAllocUntilExhausted(t *testing.T) {
	testlog.Start(t)
	a := New(1024)
	ok := 0
	for i := 0; i < 20; i++ {
		if _, err := a.Alloc(64); err == nil {
			ok++
		} else if !errors.Is(err, ErrExhausted) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 16 {
		t.Fatalf("unexpected successful allocations: got=%d want=16", ok)
	}
	a.Reset()
	if _, err := a.Alloc(64); err != nil {
		t.Fatalf("alloc after reset: %v", err)
	}
	if a.HighWater() != 1024 {
		t.Fatalf("unexpected high water: %d", a.HighWater())
	}
}

func TestAllocNegativeSize(t *testing.T) {
	testlog.Start(t)
	a := New(8)
	if _, err := a.Alloc(-1); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
}

func TestAllocZeroSize(t *testing.T) {
	testlog.Start(t)
	a := New(8)
	b, err := a.Alloc(0)
	if err != nil {
		t.Fatalf("alloc 0: %v", err)
	}
	if len(b) != 0 {
		t.Fatalf("expected empty region, got %d", len(b))
	}
}
