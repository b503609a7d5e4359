package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/bece/internal/arena"
	"github.com/danmuck/bece/internal/protocol"
	"github.com/danmuck/bece/internal/protocol/crc"
)

const (
	HeaderLen   = 16
	ChecksumLen = 2
	// MaxPayloadLen is bounded by the u16 payload_len field.
	MaxPayloadLen = 0xFFFF
)

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrShortPayload    = errors.New("frame: short payload")
	ErrBadMagic        = errors.New("frame: bad magic")
	ErrChecksum        = errors.New("frame: checksum mismatch")
	ErrPayloadLen      = errors.New("frame: payload length mismatch")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Header is the fixed 16-byte packet header.
type Header struct {
	Magic        uint16
	CommandSet   uint8
	Type         protocol.MessageType
	PacketID     uint32
	PacketNum    uint16
	TotalPackets uint16
	PayloadLen   uint16
	ArgCount     uint8
}

// CheckMagic reports ErrBadMagic when the header is not stream-aligned.
func (h Header) CheckMagic() error {
	if h.Magic != protocol.Magic {
		return fmt.Errorf("%w: got=%#04x want=%#04x", ErrBadMagic, h.Magic, protocol.Magic)
	}
	return nil
}

// PacketLen is the full on-wire size: header, payload and checksum.
func (h Header) PacketLen() int {
	return HeaderLen + int(h.PayloadLen) + ChecksumLen
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	PutHeader(buf, h)
	return buf
}

// PutHeader writes h into the first HeaderLen bytes of buf.
func PutHeader(buf []byte, h Header) {
	_ = buf[HeaderLen-1]
	binary.LittleEndian.PutUint16(buf[0:2], h.Magic)
	buf[2] = h.CommandSet
	binary.LittleEndian.PutUint16(buf[3:5], uint16(h.Type))
	binary.LittleEndian.PutUint32(buf[5:9], h.PacketID)
	binary.LittleEndian.PutUint16(buf[9:11], h.PacketNum)
	binary.LittleEndian.PutUint16(buf[11:13], h.TotalPackets)
	binary.LittleEndian.PutUint16(buf[13:15], h.PayloadLen)
	buf[15] = h.ArgCount
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("frame: invalid header length: %d", len(b))
	}
	return Header{
		Magic:        binary.LittleEndian.Uint16(b[0:2]),
		CommandSet:   b[2],
		Type:         protocol.MessageType(binary.LittleEndian.Uint16(b[3:5])),
		PacketID:     binary.LittleEndian.Uint32(b[5:9]),
		PacketNum:    binary.LittleEndian.Uint16(b[9:11]),
		TotalPackets: binary.LittleEndian.Uint16(b[11:13]),
		PayloadLen:   binary.LittleEndian.Uint16(b[13:15]),
		ArgCount:     b[15],
	}, nil
}

// Encode returns header‖payload‖crc. The checksum covers header‖payload.
func Encode(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(payload))
	}
	if int(h.PayloadLen) != len(payload) {
		return nil, fmt.Errorf("%w: header=%d payload=%d", ErrPayloadLen, h.PayloadLen, len(payload))
	}
	buf := make([]byte, h.PacketLen())
	PutHeader(buf, h)
	copy(buf[HeaderLen:], payload)
	sum := crc.Checksum(buf[:HeaderLen+len(payload)])
	binary.LittleEndian.PutUint16(buf[HeaderLen+len(payload):], sum)
	return buf, nil
}

// ReadHeader reads exactly one header. A short read means more data is
// needed and is not a parse error.
func ReadHeader(r io.Reader) (Header, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Header{}, ErrShortHeader
		}
		return Header{}, err
	}
	return DecodeHeader(fixed[:])
}

// ReadPacket allocates the full packet from a, copies h in, and reads the
// payload plus trailing checksum from r. The returned slice is owned by a.
func ReadPacket(r io.Reader, h Header, a *arena.Arena) ([]byte, error) {
	buf, err := a.Alloc(h.PacketLen())
	if err != nil {
		return nil, err
	}
	PutHeader(buf, h)
	want := len(buf) - HeaderLen
	n, err := io.ReadFull(r, buf[HeaderLen:])
	if err != nil {
		return nil, fmt.Errorf("%w: read %d of %d bytes: %w", ErrShortPayload, n, want, err)
	}
	return buf, nil
}

// Validate recomputes the checksum over everything but the trailing two
// bytes and compares it with them.
func Validate(packet []byte) bool {
	if len(packet) < HeaderLen+ChecksumLen {
		return false
	}
	body := packet[:len(packet)-ChecksumLen]
	got := binary.LittleEndian.Uint16(packet[len(packet)-ChecksumLen:])
	return crc.Checksum(body) == got
}

// Payload returns the payload region of a full packet.
func Payload(packet []byte) []byte {
	if len(packet) < HeaderLen+ChecksumLen {
		return nil
	}
	return packet[HeaderLen : len(packet)-ChecksumLen]
}
