package externalapi

import "math/big"

// blueWorkByteSize is the serialized width of a BlueWork value. GHOSTDAG
// blue work is specified as a 192-bit unsigned integer; Go has no native
// uint192, and no package in the retrieved example pack offers one (the
// pack's 256-bit types, e.g. holiman/uint256, are sized for EVM words, not
// this protocol's work accumulator), so BlueWork is carried as a
// standard-library *big.Int bounded to blueWorkByteSize bytes on the wire.
const blueWorkByteSize = 24

// BlueWork is a 192-bit unsigned cumulative-work accumulator.
type BlueWork struct {
	value *big.Int
}

// NewBlueWorkFromUint64 constructs a BlueWork from a small integer.
func NewBlueWorkFromUint64(v uint64) *BlueWork {
	return &BlueWork{value: new(big.Int).SetUint64(v)}
}

// ZeroBlueWork returns the zero value of BlueWork.
func ZeroBlueWork() *BlueWork {
	return NewBlueWorkFromUint64(0)
}

// Add returns a new BlueWork equal to bw + other.
func (bw *BlueWork) Add(other *BlueWork) *BlueWork {
	return &BlueWork{value: new(big.Int).Add(bw.value, other.value)}
}

// Cmp compares bw to other the same way big.Int.Cmp does.
func (bw *BlueWork) Cmp(other *BlueWork) int {
	return bw.value.Cmp(other.value)
}

// Bytes returns the big-endian byte representation, zero-padded to
// blueWorkByteSize bytes.
func (bw *BlueWork) Bytes() []byte {
	raw := bw.value.Bytes()
	out := make([]byte, blueWorkByteSize)
	copy(out[blueWorkByteSize-len(raw):], raw)
	return out
}

// BlueWorkFromBytes parses a big-endian byte representation back into a BlueWork.
func BlueWorkFromBytes(data []byte) *BlueWork {
	return &BlueWork{value: new(big.Int).SetBytes(data)}
}

// String renders the value in decimal.
func (bw *BlueWork) String() string {
	return bw.value.String()
}
