// Package crc implements CRC-16/CCITT-FALSE, the packet integrity check.
//
// Parameters: width 16, poly 0x1021, init 0xFFFF, no reflection, xorout 0.
package crc

const (
	Polynomial uint16 = 0x1021
	Initial    uint16 = 0xFFFF
)

var table = makeTable(Polynomial)

func makeTable(poly uint16) [256]uint16 {
	var t [256]uint16
	for i := 0; i < 256; i++ {
		c := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if c&0x8000 != 0 {
				c = c<<1 ^ poly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}

// Checksum returns the CRC of the whole span.
func Checksum(b []byte) uint16 {
	return Update(Initial, b)
}

// Update folds b into a running register. Update(Initial, a‖b) equals
// Update(Update(Initial, a), b).
func Update(crc uint16, b []byte) uint16 {
	for _, v := range b {
		crc = crc<<8 ^ table[byte(crc>>8)^v]
	}
	return crc
}
