// Package values is the Value Codec: it turns raw Modbus registers into
// typed scalars (and back), the way a numeric signal reader turns raw
// words into engineering units.
package values

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Type names a scalar encoding within one or more 16-bit registers. The
// _SWAP variants reverse register order within the value (word-swapped,
// a common quirk of slaves that present 32/64-bit values byte-correct but
// word-reversed).
type Type int

// Defined value types.
const (
	TypeBool Type = iota
	TypeInt8
	TypeUint8
	TypeUint16
	TypeInt16
	TypeUint32
	TypeUint32Swap
	TypeInt32
	TypeInt32Swap
	TypeUint64
	TypeUint64Swap
	TypeInt64
	TypeInt64Swap
	TypeFloat32
	TypeFloat32Swap
	TypeFloat64
	TypeFloat64Swap
	TypeBitN // a single bit within a register, see BitValue
)

// RegisterCount returns how many 16-bit registers one value of t occupies.
// For TypeInt8/TypeUint8, which pack two values per register, this is 1 —
// use valuesPerRegister to find how many values share that one register.
func (t Type) RegisterCount() int {
	switch t {
	case TypeUint32, TypeUint32Swap, TypeInt32, TypeInt32Swap, TypeFloat32, TypeFloat32Swap:
		return 2
	case TypeUint64, TypeUint64Swap, TypeInt64, TypeInt64Swap, TypeFloat64, TypeFloat64Swap:
		return 4
	default:
		return 1
	}
}

// valuesPerRegister reports how many of type t's values pack into a
// single 16-bit register. Sub-register indexing is only meaningful when
// this is greater than one, which holds exactly when t's bit width
// divides 16 evenly: 8-bit types pack two values per register.
func (t Type) valuesPerRegister() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 2
	default:
		return 1
	}
}

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt8:
		return "int8"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeInt16:
		return "int16"
	case TypeUint32:
		return "uint32"
	case TypeUint32Swap:
		return "uint32_swap"
	case TypeInt32:
		return "int32"
	case TypeInt32Swap:
		return "int32_swap"
	case TypeUint64:
		return "uint64"
	case TypeUint64Swap:
		return "uint64_swap"
	case TypeInt64:
		return "int64"
	case TypeInt64Swap:
		return "int64_swap"
	case TypeFloat32:
		return "float32"
	case TypeFloat32Swap:
		return "float32_swap"
	case TypeFloat64:
		return "float64"
	case TypeFloat64Swap:
		return "float64_swap"
	case TypeBitN:
		return "bit"
	default:
		return "unknown"
	}
}

// OutOfBoundsError reports that index, given t's width and packing, would
// read or write past the end of a register array of the given length.
type OutOfBoundsError struct {
	Type          Type
	Index         int
	RegisterCount int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("values: index %d of type %v needs more registers than the %d supplied", e.Index, e.Type, e.RegisterCount)
}

// DecodeOutOfBounds constructs an *OutOfBoundsError.
func DecodeOutOfBounds(t Type, index, registerCount int) error {
	return &OutOfBoundsError{Type: t, Index: index, RegisterCount: registerCount}
}

func swapWords(regs []uint16) []uint16 {
	out := make([]uint16, len(regs))
	for i, r := range regs {
		out[len(regs)-1-i] = r
	}
	return out
}

// wordsFor resolves index into the slice of regs (full registers, in big
// word order already if t is a _Swap variant) that back one value of t,
// or an *OutOfBoundsError if regs is too short. For TypeInt8/TypeUint8 it
// instead returns the single shared register plus which half (sub) of it
// index addresses.
func (t Type) wordsFor(regs []uint16, index int) (words []uint16, sub int, err error) {
	if index < 0 {
		return nil, 0, fmt.Errorf("values: index must be non-negative, got %d", index)
	}

	if perReg := t.valuesPerRegister(); perReg > 1 {
		regIdx, sub := index/perReg, index%perReg
		if regIdx >= len(regs) {
			return nil, 0, DecodeOutOfBounds(t, index, len(regs))
		}
		return regs[regIdx : regIdx+1], sub, nil
	}

	need := t.RegisterCount()
	offset := index * need
	if offset+need > len(regs) {
		return nil, 0, DecodeOutOfBounds(t, index, len(regs))
	}
	return regs[offset : offset+need], 0, nil
}

// ExtractFromRegisters decodes the index-th value of type t out of regs
// and applies scale as a multiplier, returning a decimal.Decimal for
// lossless downstream formatting — matching the scale-then-wrap pattern
// used to turn a raw register word into an engineering-unit decimal.
// index selects which value within regs: for TypeInt8/TypeUint8, which
// byte-sized sub-register element (two per register); for every other
// type, which RegisterCount()-wide value.
func ExtractFromRegisters(t Type, regs []uint16, index int, scale float64) (decimal.Decimal, error) {
	words, sub, err := t.wordsFor(regs, index)
	if err != nil {
		return decimal.Zero, err
	}
	if scale == 0 {
		scale = 1
	}
	scaleDec := decimal.NewFromFloat(scale)

	switch t {
	case TypeBool:
		if words[0] != 0 {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil

	case TypeUint8:
		return decimal.NewFromInt(int64(subByte(words[0], sub))).Mul(scaleDec), nil

	case TypeInt8:
		return decimal.NewFromInt(int64(int8(subByte(words[0], sub)))).Mul(scaleDec), nil

	case TypeUint16:
		return decimal.NewFromInt(int64(words[0])).Mul(scaleDec), nil

	case TypeInt16:
		return decimal.NewFromInt(int64(int16(words[0]))).Mul(scaleDec), nil

	case TypeUint32:
		return decimal.NewFromInt(int64(uint32From(words))).Mul(scaleDec), nil

	case TypeUint32Swap:
		return decimal.NewFromInt(int64(uint32From(swapWords(words)))).Mul(scaleDec), nil

	case TypeInt32:
		return decimal.NewFromInt(int64(int32(uint32From(words)))).Mul(scaleDec), nil

	case TypeInt32Swap:
		return decimal.NewFromInt(int64(int32(uint32From(swapWords(words))))).Mul(scaleDec), nil

	case TypeUint64:
		return decimal.NewFromBigInt(uint64ToBigInt(uint64From(words)), 0).Mul(scaleDec), nil

	case TypeUint64Swap:
		return decimal.NewFromBigInt(uint64ToBigInt(uint64From(swapWords(words))), 0).Mul(scaleDec), nil

	case TypeInt64:
		return decimal.NewFromInt(int64(uint64From(words))).Mul(scaleDec), nil

	case TypeInt64Swap:
		return decimal.NewFromInt(int64(uint64From(swapWords(words)))).Mul(scaleDec), nil

	case TypeFloat32:
		return decimal.NewFromFloat32(float32FromBits(uint32From(words))).Mul(scaleDec), nil

	case TypeFloat32Swap:
		return decimal.NewFromFloat32(float32FromBits(uint32From(swapWords(words)))).Mul(scaleDec), nil

	case TypeFloat64:
		return decimal.NewFromFloat(float64FromBits(uint64From(words))).Mul(scaleDec), nil

	case TypeFloat64Swap:
		return decimal.NewFromFloat(float64FromBits(uint64From(swapWords(words)))).Mul(scaleDec), nil

	default:
		return decimal.Zero, fmt.Errorf("values: unsupported type %v", t)
	}
}

func subByte(reg uint16, sub int) byte {
	if sub == 0 {
		return byte(reg)
	}
	return byte(reg >> 8)
}

func uint32From(words []uint16) uint32 {
	return uint32(words[0])<<16 | uint32(words[1])
}

func uint64From(words []uint16) uint64 {
	return uint64(words[0])<<48 | uint64(words[1])<<32 | uint64(words[2])<<16 | uint64(words[3])
}

// BitValue extracts a single bit (0-15, 0 is least significant) from a
// register, for types that pack several booleans into one holding
// register rather than a dedicated coil.
func BitValue(reg uint16, bitPosition uint) bool {
	return (reg>>bitPosition)&0x1 == 1
}

// CommandToRegisters encodes value (scaled by 1/scale to undo
// ExtractFromRegisters' scaling) as the register(s) for the index-th
// value of type t, ready to splice into the full register array at the
// offset t.RegisterCount()*index (or, for TypeInt8/TypeUint8, at register
// index/2). existing supplies the current contents of that shared
// register so the untouched byte is preserved when t is TypeInt8 or
// TypeUint8; it is ignored for every other type.
func CommandToRegisters(t Type, value decimal.Decimal, scale float64, index int, existing uint16) ([]uint16, error) {
	if index < 0 {
		return nil, fmt.Errorf("values: index must be non-negative, got %d", index)
	}
	if scale == 0 {
		scale = 1
	}
	unscaled := value.Div(decimal.NewFromFloat(scale))

	switch t {
	case TypeBool:
		if value.IsZero() {
			return []uint16{0}, nil
		}
		return []uint16{1}, nil

	case TypeUint8, TypeInt8:
		sub := index % t.valuesPerRegister()
		b := byte(unscaled.IntPart())
		reg := existing
		if sub == 0 {
			reg = (reg &^ 0x00FF) | uint16(b)
		} else {
			reg = (reg &^ 0xFF00) | uint16(b)<<8
		}
		return []uint16{reg}, nil

	case TypeUint16:
		return []uint16{uint16(unscaled.IntPart())}, nil

	case TypeInt16:
		return []uint16{uint16(int16(unscaled.IntPart()))}, nil

	case TypeUint32:
		return wordsFromUint32(uint32(unscaled.IntPart()), false), nil

	case TypeUint32Swap:
		return wordsFromUint32(uint32(unscaled.IntPart()), true), nil

	case TypeInt32:
		return wordsFromUint32(uint32(int32(unscaled.IntPart())), false), nil

	case TypeInt32Swap:
		return wordsFromUint32(uint32(int32(unscaled.IntPart())), true), nil

	case TypeUint64:
		return wordsFromUint64(bigIntToUint64(unscaled.BigInt()), false), nil

	case TypeUint64Swap:
		return wordsFromUint64(bigIntToUint64(unscaled.BigInt()), true), nil

	case TypeInt64:
		return wordsFromUint64(uint64(unscaled.IntPart()), false), nil

	case TypeInt64Swap:
		return wordsFromUint64(uint64(unscaled.IntPart()), true), nil

	case TypeFloat32:
		return wordsFromUint32(float32Bits(float32(unscaled.InexactFloat64())), false), nil

	case TypeFloat32Swap:
		return wordsFromUint32(float32Bits(float32(unscaled.InexactFloat64())), true), nil

	case TypeFloat64:
		return wordsFromUint64(float64Bits(unscaled.InexactFloat64()), false), nil

	case TypeFloat64Swap:
		return wordsFromUint64(float64Bits(unscaled.InexactFloat64()), true), nil

	default:
		return nil, fmt.Errorf("values: unsupported type %v", t)
	}
}

func wordsFromUint32(v uint32, swap bool) []uint16 {
	words := []uint16{uint16(v >> 16), uint16(v)}
	if swap {
		return swapWords(words)
	}
	return words
}

func wordsFromUint64(v uint64, swap bool) []uint16 {
	words := []uint16{uint16(v >> 48), uint16(v >> 32), uint16(v >> 16), uint16(v)}
	if swap {
		return swapWords(words)
	}
	return words
}

// CommandToBool interprets a user-facing command string as a boolean,
// accepting the common on/off vocabularies a supervisory system's
// operator screens tend to use.
func CommandToBool(cmd string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case "on", "open", "true", "1", "set":
		return true, nil
	case "off", "closed", "false", "0", "clear":
		return false, nil
	}
	if n, err := strconv.ParseFloat(cmd, 64); err == nil {
		return n != 0, nil
	}
	return false, fmt.Errorf("values: %q is not a recognized boolean command", cmd)
}
