package values

import (
	"math"
	"math/big"
)

func float32FromBits(bits uint32) float32 {
	return math.Float32frombits(bits)
}

func float32Bits(f float32) uint32 {
	return math.Float32bits(f)
}

func float64FromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}

func float64Bits(f float64) uint64 {
	return math.Float64bits(f)
}

func uint64ToBigInt(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func bigIntToUint64(v *big.Int) uint64 {
	return v.Uint64()
}
