package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/bece/internal/arena"
	"github.com/danmuck/bece/internal/protocol/args"
)

var ErrInvalidControl = errors.New("session: invalid control payload")

// EncodeResendRequest builds the RESEND payload: one UINT32-tagged packet id.
func EncodeResendRequest(packetID uint32) []byte {
	out, _ := args.Append(nil, args.Uint32(packetID))
	return out
}

// DecodeResendRequest is the controller-side inverse of EncodeResendRequest.
func DecodeResendRequest(payload []byte) (uint32, error) {
	v, err := decodeSingle(payload)
	if err != nil {
		return 0, err
	}
	id, err := v.Uint32()
	if err != nil {
		return 0, fmt.Errorf("%w: resend: %w", ErrInvalidControl, err)
	}
	return id, nil
}

// EncodeUDPAnnounce builds the ESTABLISH_UDP payload: one UINT16-tagged port.
func EncodeUDPAnnounce(port uint16) []byte {
	out, _ := args.Append(nil, args.Uint16(port))
	return out
}

func DecodeUDPAnnounce(payload []byte) (uint16, error) {
	v, err := decodeSingle(payload)
	if err != nil {
		return 0, err
	}
	port, err := v.Uint16()
	if err != nil {
		return 0, fmt.Errorf("%w: udp announce: %w", ErrInvalidControl, err)
	}
	return port, nil
}

func decodeSingle(payload []byte) (args.Value, error) {
	v, n, err := args.Decode(payload, arena.New(16))
	if err != nil {
		return args.Value{}, fmt.Errorf("%w: %w", ErrInvalidControl, err)
	}
	if n != len(payload) {
		return args.Value{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidControl, len(payload)-n)
	}
	return v, nil
}
