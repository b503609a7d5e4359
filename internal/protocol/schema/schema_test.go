package schema

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/danmuck/bece/internal/protocol/args"
	"github.com/danmuck/bece/internal/testutil/testlog"
)

func TestValidateSliderRequiresTwoUint8(t *testing.T) {
	testlog.Start(t)
	if err := ValidateExtras(SliderUint8, []args.Value{args.Uint8(0), args.Uint8(100)}); err != nil {
		t.Fatalf("validate slider: %v", err)
	}
	err := ValidateExtras(SliderUint8, []args.Value{args.Uint8(0)})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Kind != SliderUint8 || ve.Index != -1 {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateSliderTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	err := ValidateExtras(SliderUint8, []args.Value{args.Uint8(0), args.Uint16(100)})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Index != 1 || ve.Reason != "want uint8, got uint16" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateDropdownRejectsEmpty(t *testing.T) {
	testlog.Start(t)
	err := ValidateExtras(Dropdown, nil)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Kind != Dropdown {
		t.Fatalf("unexpected kind: %s", ve.Kind)
	}
	if err := ValidateExtras(Dropdown, []args.Value{args.String("low"), args.String("high")}); err != nil {
		t.Fatalf("validate dropdown: %v", err)
	}
	if err := ValidateExtras(Dropdown, []args.Value{args.String("low"), args.Uint8(1)}); err == nil {
		t.Fatalf("expected non-string option to be rejected")
	}
}

func TestValidatePlainKindsRejectExtras(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []UIType{Button, Switch, Color, String, Hidden, StrongButton} {
		if err := ValidateExtras(kind, nil); err != nil {
			t.Fatalf("%s without extras: %v", kind, err)
		}
		if err := ValidateExtras(kind, []args.Value{args.Uint8(1)}); err == nil {
			t.Fatalf("%s with extras should be rejected", kind)
		}
	}
	if err := ValidateExtras(UIType(42), nil); err == nil {
		t.Fatalf("unknown ui type should be rejected")
	}
}

func TestEncodeDescriptionSliderLayout(t *testing.T) {
	testlog.Start(t)
	d := Description{Name: "dim", ID: 7, Kind: SliderUint8, Extras: []args.Value{args.Uint8(0), args.Uint8(100)}}
	wire, err := EncodeDescription(d)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{
		byte(args.TypeString), 3, 0, 'd', 'i', 'm',
		7, 0,
		byte(SliderUint8),
		byte(args.TypeUint8), 0,
		byte(args.TypeUint8), 100,
	}
	if string(wire) != string(want) {
		t.Fatalf("wire: got=% x want=% x", wire, want)
	}
	if d.ArgCount() != 3 {
		t.Fatalf("arg count: got=%d want=3", d.ArgCount())
	}
}

func TestDescriptionRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := Description{
		Name:   "mode",
		ID:     0x1234,
		Kind:   Dropdown,
		Extras: []args.Value{args.String("eco"), args.String("boost")},
	}
	wire, err := EncodeDescription(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := binary.LittleEndian.Uint16(wire[7:9]); got != in.ID {
		t.Fatalf("id bytes: got=%#x want=%#x", got, in.ID)
	}
	out, err := DecodeDescription(wire, in.ArgCount())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Name != in.Name || out.ID != in.ID || out.Kind != in.Kind || len(out.Extras) != len(in.Extras) {
		t.Fatalf("description mismatch: got=%+v want=%+v", out, in)
	}
	for i := range in.Extras {
		if !args.Equal(in.Extras[i], out.Extras[i]) {
			t.Fatalf("extra %d: got=%s want=%s", i, out.Extras[i], in.Extras[i])
		}
	}
}

func TestEncodeDescriptionRejectsInvalidExtras(t *testing.T) {
	testlog.Start(t)
	_, err := EncodeDescription(Description{Name: "x", ID: 1, Kind: Dropdown})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDecodeDescriptionTrailingBytes(t *testing.T) {
	testlog.Start(t)
	wire, err := EncodeDescription(Description{Name: "go", ID: 1, Kind: Button})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeDescription(append(wire, 0xAA), 1); err == nil {
		t.Fatalf("expected trailing bytes error")
	}
	if _, err := DecodeDescription(wire[:len(wire)-1], 1); !errors.Is(err, args.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}
