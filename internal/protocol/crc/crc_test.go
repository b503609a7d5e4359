package crc

import (
	"math/rand"
	"testing"
)

// bitwise is the direct shift-register form the table is derived from.
func bitwise(data []byte) uint16 {
	c := uint16(0xFFFF)
	for _, b := range data {
		c ^= uint16(b) << 8
		for j := 0; j < 8; j++ {
			if c&0x8000 != 0 {
				c = c<<1 ^ 0x1021
			} else {
				c <<= 1
			}
		}
	}
	return c
}

func TestChecksumCheckValue(t *testing.T) {
	if got := Checksum([]byte("123456789")); got != 0x29B1 {
		t.Fatalf("check value: got=%#04x want=0x29b1", got)
	}
	if got := Checksum(nil); got != Initial {
		t.Fatalf("empty span: got=%#04x want=%#04x", got, Initial)
	}
}

func TestChecksumMatchesBitwise(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		b := make([]byte, rng.Intn(300))
		rng.Read(b)
		if got, want := Checksum(b), bitwise(b); got != want {
			t.Fatalf("len=%d: table=%#04x bitwise=%#04x", len(b), got, want)
		}
	}
}

func TestChecksumDeterministic(t *testing.T) {
	b := []byte{0xCE, 0xBE, 0x00, 0xFF, 0xFF, 0x01, 0x02}
	first := Checksum(b)
	for i := 0; i < 10; i++ {
		if got := Checksum(b); got != first {
			t.Fatalf("call %d: got=%#04x want=%#04x", i, got, first)
		}
	}
}

func TestUpdateStreamsIdentically(t *testing.T) {
	a := []byte("header-bytes")
	b := []byte("payload-bytes")
	whole := Checksum(append(append([]byte{}, a...), b...))
	if got := Update(Update(Initial, a), b); got != whole {
		t.Fatalf("streamed=%#04x whole=%#04x", got, whole)
	}
}

func TestSingleBitFlipAlwaysDetected(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		b := make([]byte, 16+rng.Intn(64))
		rng.Read(b)
		orig := Checksum(b)
		bit := rng.Intn(len(b) * 8)
		b[bit/8] ^= 1 << (bit % 8)
		if Checksum(b) == orig {
			t.Fatalf("flip of bit %d in %d-byte span not detected", bit, len(b))
		}
	}
}
