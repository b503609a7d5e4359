// Package schema owns the UI-type contract for command descriptions: which
// extras each widget kind needs, and the description payload sent to the
// controller in reply to Send Commands.
package schema

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/bece/internal/arena"
	"github.com/danmuck/bece/internal/protocol/args"
	"github.com/rs/zerolog/log"
)

// UIType tells the controller which widget to render for a command.
type UIType uint8

const (
	Button       UIType = 0
	Switch       UIType = 1
	SliderUint8  UIType = 2
	Color        UIType = 3
	Dropdown     UIType = 4
	String       UIType = 5
	Hidden       UIType = 6
	StrongButton UIType = 7
)

func (k UIType) String() string {
	switch k {
	case Button:
		return "BUTTON"
	case Switch:
		return "SWITCH"
	case SliderUint8:
		return "SLIDER_UINT8"
	case Color:
		return "COLOR"
	case Dropdown:
		return "DROPDOWN"
	case String:
		return "STRING"
	case Hidden:
		return "HIDDEN"
	case StrongButton:
		return "STRONG_BUTTON"
	default:
		return fmt.Sprintf("UIType(%d)", uint8(k))
	}
}

func (k UIType) Valid() bool {
	return k <= StrongButton
}

type ValidationError struct {
	Kind   UIType
	Index  int
	Reason string
}

func (e ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("schema: kind=%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("schema: kind=%s extra=%d: %s", e.Kind, e.Index, e.Reason)
}

// ValidateExtras checks the fixed description arguments against the kind.
// SLIDER_UINT8 takes exactly a uint8 minimum and maximum, DROPDOWN one or
// more string options, everything else nothing.
func ValidateExtras(kind UIType, extras []args.Value) error {
	if !kind.Valid() {
		return ValidationError{Kind: kind, Index: -1, Reason: "unknown ui type"}
	}
	switch kind {
	case SliderUint8:
		if len(extras) != 2 {
			return ValidationError{Kind: kind, Index: -1, Reason: fmt.Sprintf("want 2 extras, got %d", len(extras))}
		}
		for i, v := range extras {
			if v.Type() != args.TypeUint8 {
				return ValidationError{Kind: kind, Index: i, Reason: "want uint8, got " + v.Type().String()}
			}
		}
	case Dropdown:
		if len(extras) == 0 {
			return ValidationError{Kind: kind, Index: -1, Reason: "want at least 1 option"}
		}
		for i, v := range extras {
			if v.Type() != args.TypeString {
				return ValidationError{Kind: kind, Index: i, Reason: "want string, got " + v.Type().String()}
			}
		}
	default:
		if len(extras) != 0 {
			return ValidationError{Kind: kind, Index: -1, Reason: fmt.Sprintf("want no extras, got %d", len(extras))}
		}
	}
	return nil
}

// Description is the self-describing metadata for one command.
type Description struct {
	Name   string
	ID     uint16
	Kind   UIType
	Extras []args.Value
}

// ArgCount is the header argument_number for the description: the name plus
// each extra. The id and kind are untagged and not counted.
func (d Description) ArgCount() uint8 {
	return uint8(1 + len(d.Extras))
}

// EncodeDescription lays out STRING name, u16 id, u8 kind, tagged extras.
func EncodeDescription(d Description) ([]byte, error) {
	if err := ValidateExtras(d.Kind, d.Extras); err != nil {
		log.Error().Err(err).Str("name", d.Name).Uint16("id", d.ID).Msg("schema.EncodeDescription rejected")
		return nil, err
	}
	if len(d.Extras) > 0xFE {
		return nil, ValidationError{Kind: d.Kind, Index: -1, Reason: "too many extras"}
	}
	out, err := args.Append(nil, args.String(d.Name))
	if err != nil {
		return nil, fmt.Errorf("schema: name: %w", err)
	}
	out = binary.LittleEndian.AppendUint16(out, d.ID)
	out = append(out, byte(d.Kind))
	for i, v := range d.Extras {
		out, err = args.Append(out, v)
		if err != nil {
			return nil, fmt.Errorf("schema: extra %d: %w", i, err)
		}
	}
	return out, nil
}

// DecodeDescription parses a description payload on the controller side.
// argc is the header argument_number. Decoded strings are copied out, so
// the result does not alias payload.
func DecodeDescription(payload []byte, argc uint8) (Description, error) {
	if argc == 0 {
		return Description{}, fmt.Errorf("%w: description needs a name", args.ErrTruncated)
	}
	scratch := arena.New(2*len(payload) + int(argc)*args.SlotSize + 16)
	nameVal, off, err := args.Decode(payload, scratch)
	if err != nil {
		return Description{}, fmt.Errorf("schema: name: %w", err)
	}
	name, err := nameVal.Str()
	if err != nil {
		return Description{}, fmt.Errorf("schema: name: %w", err)
	}
	if len(payload)-off < 3 {
		return Description{}, fmt.Errorf("%w: description id and kind", args.ErrTruncated)
	}
	d := Description{
		Name: name,
		ID:   binary.LittleEndian.Uint16(payload[off:]),
		Kind: UIType(payload[off+2]),
	}
	off += 3
	for i := 1; i < int(argc); i++ {
		v, n, err := args.Decode(payload[off:], scratch)
		if err != nil {
			return Description{}, fmt.Errorf("schema: extra %d: %w", i-1, err)
		}
		if s, serr := v.Str(); serr == nil {
			v = args.String(s)
		}
		d.Extras = append(d.Extras, v)
		off += n
	}
	if off != len(payload) {
		return Description{}, fmt.Errorf("schema: %d trailing bytes after description", len(payload)-off)
	}
	return d, nil
}
