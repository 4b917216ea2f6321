package wire

import "encoding/binary"

// PutUint16Array serializes a sequence of registers in big-endian (network)
// order, the byte order the Modbus wire uses within each 16-bit register.
func PutUint16Array(value ...uint16) []byte {
	data := make([]byte, 2*len(value))
	for i, v := range value {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	return data
}

// Uint16Array unpacks 16-bit registers from a buffer (big-endian).
func Uint16Array(data []byte) []uint16 {
	ret := make([]uint16, len(data)/2)
	for i := range ret {
		ret[i] = binary.BigEndian.Uint16(data[i*2 : i*2+2])
	}
	return ret
}

// HexDump renders data as a space-separated hex string, used by the
// debug-level wire logging hooks.
func HexDump(data []byte) string {
	const hextable = "0123456789abcdef"
	if len(data) == 0 {
		return ""
	}
	out := make([]byte, 0, len(data)*3-1)
	for i, b := range data {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hextable[b>>4], hextable[b&0x0f])
	}
	return string(out)
}
