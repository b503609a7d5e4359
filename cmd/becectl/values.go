package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/bece/internal/protocol/args"
)

// parseValue reads "<type>:<value>" flags such as "u8:42", "bool:true",
// "color:ff8000" or "str:hello" into a tagged argument.
func parseValue(raw string) (args.Value, error) {
	kind, val, ok := strings.Cut(raw, ":")
	if !ok {
		return args.Value{}, fmt.Errorf("argument %q: want <type>:<value>", raw)
	}
	bad := func(err error) (args.Value, error) {
		return args.Value{}, fmt.Errorf("argument %q: %w", raw, err)
	}
	switch strings.ToLower(kind) {
	case "bool":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return bad(err)
		}
		return args.Bool(b), nil
	case "i8", "int8":
		n, err := strconv.ParseInt(val, 0, 8)
		if err != nil {
			return bad(err)
		}
		return args.Int8(int8(n)), nil
	case "i16", "int16":
		n, err := strconv.ParseInt(val, 0, 16)
		if err != nil {
			return bad(err)
		}
		return args.Int16(int16(n)), nil
	case "i32", "int32":
		n, err := strconv.ParseInt(val, 0, 32)
		if err != nil {
			return bad(err)
		}
		return args.Int32(int32(n)), nil
	case "u8", "uint8":
		n, err := strconv.ParseUint(val, 0, 8)
		if err != nil {
			return bad(err)
		}
		return args.Uint8(uint8(n)), nil
	case "u16", "uint16":
		n, err := strconv.ParseUint(val, 0, 16)
		if err != nil {
			return bad(err)
		}
		return args.Uint16(uint16(n)), nil
	case "u32", "uint32":
		n, err := strconv.ParseUint(val, 0, 32)
		if err != nil {
			return bad(err)
		}
		return args.Uint32(uint32(n)), nil
	case "f", "float":
		f, err := strconv.ParseFloat(val, 32)
		if err != nil {
			return bad(err)
		}
		return args.Float(float32(f)), nil
	case "color", "rgb":
		hex := strings.TrimPrefix(val, "#")
		if len(hex) != 6 {
			return bad(fmt.Errorf("want 6 hex digits"))
		}
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return bad(err)
		}
		return args.RGB(args.Color{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n)}), nil
	case "s", "str", "string":
		return args.String(val), nil
	default:
		return args.Value{}, fmt.Errorf("argument %q: unknown type %q", raw, kind)
	}
}

func parseValues(raw []string) ([]args.Value, error) {
	out := make([]args.Value, 0, len(raw))
	for _, r := range raw {
		v, err := parseValue(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
