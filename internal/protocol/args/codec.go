package args

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/bece/internal/arena"
	"github.com/rs/zerolog/log"
)

const (
	tagLen    = 1
	strLenLen = 2
	// MaxStringLen is bounded by the u16 length prefix.
	MaxStringLen = 0xFFFF
	// SlotSize is the arena budget charged per decoded value.
	SlotSize = 8
)

// DecodeOptions tunes recovery behaviour.
type DecodeOptions struct {
	// SkipUnknownTags advances one byte past an unknown tag and keeps going,
	// matching deployed controllers. Later values may be misread.
	SkipUnknownTags bool
}

func width(t Type) int {
	switch t {
	case TypeBool, TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat:
		return 4
	case TypeColor:
		return 3
	default:
		return -1
	}
}

// Size returns the encoded size of v including its tag.
func Size(v Value) int {
	if v.typ == TypeString {
		return tagLen + strLenLen + len(v.str)
	}
	if w := width(v.typ); w >= 0 {
		return tagLen + w
	}
	return 0
}

// Append encodes v onto dst.
func Append(dst []byte, v Value) ([]byte, error) {
	switch v.typ {
	case TypeBool, TypeInt8, TypeUint8:
		return append(dst, byte(v.typ), byte(v.bits)), nil
	case TypeInt16, TypeUint16:
		dst = append(dst, byte(v.typ))
		return binary.LittleEndian.AppendUint16(dst, uint16(v.bits)), nil
	case TypeInt32, TypeUint32, TypeFloat:
		dst = append(dst, byte(v.typ))
		return binary.LittleEndian.AppendUint32(dst, v.bits), nil
	case TypeColor:
		return append(dst, byte(v.typ), v.color.R, v.color.G, v.color.B), nil
	case TypeString:
		if len(v.str) > MaxStringLen {
			return dst, fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(v.str))
		}
		dst = append(dst, byte(v.typ))
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(v.str)))
		return append(dst, v.str...), nil
	default:
		return dst, fmt.Errorf("%w: %d", ErrUnknownTag, uint8(v.typ))
	}
}

// Encode concatenates the encodings of vals in order.
func Encode(vals ...Value) ([]byte, error) {
	n := 0
	for _, v := range vals {
		n += Size(v)
	}
	out := make([]byte, 0, n)
	for i, v := range vals {
		var err error
		out, err = Append(out, v)
		if err != nil {
			return nil, fmt.Errorf("args: value %d: %w", i, err)
		}
	}
	return out, nil
}

// Decode reads one value from the front of payload and reports how many
// bytes it consumed. String bytes are copied into a, followed by a 0
// terminator that is not part of the value.
//
// On an unknown tag the returned count is 1 so callers that opt into
// best-effort recovery can step past it.
func Decode(payload []byte, a *arena.Arena) (Value, int, error) {
	if len(payload) < tagLen {
		return Value{}, 0, fmt.Errorf("%w: missing tag", ErrTruncated)
	}
	t := Type(payload[0])
	body := payload[tagLen:]
	switch t {
	case TypeBool, TypeInt8, TypeUint8:
		if len(body) < 1 {
			return Value{}, 0, truncated(t, 1, len(body))
		}
		return Value{typ: t, bits: uint32(body[0])}, tagLen + 1, nil
	case TypeInt16, TypeUint16:
		if len(body) < 2 {
			return Value{}, 0, truncated(t, 2, len(body))
		}
		return Value{typ: t, bits: uint32(binary.LittleEndian.Uint16(body))}, tagLen + 2, nil
	case TypeInt32, TypeUint32, TypeFloat:
		if len(body) < 4 {
			return Value{}, 0, truncated(t, 4, len(body))
		}
		return Value{typ: t, bits: binary.LittleEndian.Uint32(body)}, tagLen + 4, nil
	case TypeColor:
		if len(body) < 3 {
			return Value{}, 0, truncated(t, 3, len(body))
		}
		return Value{typ: t, color: Color{R: body[0], G: body[1], B: body[2]}}, tagLen + 3, nil
	case TypeString:
		if len(body) < strLenLen {
			return Value{}, 0, truncated(t, strLenLen, len(body))
		}
		n := int(binary.LittleEndian.Uint16(body))
		body = body[strLenLen:]
		if len(body) < n {
			return Value{}, 0, truncated(t, n, len(body))
		}
		consumed := tagLen + strLenLen + n
		buf, err := a.Alloc(n + 1)
		if err != nil {
			return Value{}, consumed, err
		}
		copy(buf, body[:n])
		buf[n] = 0
		return Value{typ: t, str: buf[:n]}, consumed, nil
	default:
		return invalid(), tagLen, fmt.Errorf("%w: %d", ErrUnknownTag, uint8(t))
	}
}

// DecodeAll decodes count values left to right into dst[:0] and returns them
// with the total bytes consumed. It charges the argument array to a before
// decoding so the per-packet memory bound covers it.
func DecodeAll(payload []byte, count int, a *arena.Arena, dst []Value, opts DecodeOptions) ([]Value, int, error) {
	if _, err := a.Alloc(count * SlotSize); err != nil {
		return nil, 0, err
	}
	out := dst[:0]
	off := 0
	for i := 0; i < count; i++ {
		v, n, err := Decode(payload[off:], a)
		if err != nil {
			if errors.Is(err, ErrUnknownTag) && opts.SkipUnknownTags {
				log.Warn().
					Int("index", i).
					Int("offset", off).
					Uint8("tag", payload[off]).
					Msg("args.DecodeAll skipping unknown tag")
				out = append(out, v)
				off += n
				continue
			}
			return nil, off, fmt.Errorf("args: value %d at offset %d: %w", i, off, err)
		}
		out = append(out, v)
		off += n
	}
	return out, off, nil
}

func truncated(t Type, need, have int) error {
	return fmt.Errorf("%w: %s needs %d bytes, have %d", ErrTruncated, t, need, have)
}
