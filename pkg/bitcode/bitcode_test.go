package bitcode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTripUnsignedAllWidths(t *testing.T) {
	for bitLength := 1; bitLength <= 64; bitLength++ {
		var maxVal uint64
		if bitLength == 64 {
			maxVal = math.MaxUint64
		} else {
			maxVal = (uint64(1) << uint(bitLength)) - 1
		}
		for _, bitOffset := range []int{0, 3, 7, 8, 17, 31, 63} {
			buf := make([]byte, (bitOffset+bitLength)/8+2)
			EncodeUint(buf, bitOffset, bitLength, maxVal)
			got, n := DecodeUint(ByteSlice(buf), bitOffset, bitLength)
			assert.Equal(t, bitLength, n, "bitLength=%d bitOffset=%d", bitLength, bitOffset)
			assert.Equal(t, maxVal, got, "bitLength=%d bitOffset=%d", bitLength, bitOffset)
		}
	}
}

// TestEncodeMatchesCanardCFixture reproduces canard.c's own
// test_scalar_encoding.cpp ScalarEncode.Basic case byte-for-byte: four
// scalars packed in sequence into the same buffer, checked against the
// literal expected bytes from the C test, not just self-round-tripped.
func TestEncodeMatchesCanardCFixture(t *testing.T) {
	buf := make([]byte, 32)

	EncodeUint(buf, 0, 8, 123)
	assert.EqualValues(t, 123, buf[0])
	assert.EqualValues(t, 0, buf[1])

	EncodeUint(buf, 5, 4, 0b1111)
	assert.EqualValues(t, 0b01111111, buf[0])
	assert.EqualValues(t, 0b10000000, buf[1])

	EncodeInt(buf, 9, 15, -1)
	assert.EqualValues(t, 0b01111111, buf[0])
	assert.EqualValues(t, 0b11111111, buf[1])
	assert.EqualValues(t, 0b11111111, buf[2])
	assert.EqualValues(t, 0b00000000, buf[3])

	EncodeUint(buf, 16, 60, 0x123bc6789abcdef)
	want := []byte{0x7f, 0xff, 0xef, 0xcd, 0xab, 0x89, 0x67, 0xbc, 0x23, 0x10}
	assert.Equal(t, want, buf[:10])

	v, n := DecodeUint(ByteSlice(buf), 16, 60)
	assert.Equal(t, 60, n)
	assert.EqualValues(t, 0x123bc6789abcdef, v)
}

func TestRoundTripSignedExtension(t *testing.T) {
	buf := make([]byte, 8)
	EncodeInt(buf, 3, 9, -5)
	got, n := DecodeInt(ByteSlice(buf), 3, 9)
	assert.Equal(t, 9, n)
	assert.EqualValues(t, -5, got)
}

func TestBoolRoundTrip(t *testing.T) {
	buf := make([]byte, 2)
	EncodeBool(buf, 5, true)
	assert.True(t, DecodeBool(ByteSlice(buf), 5))
	EncodeBool(buf, 5, false)
	assert.False(t, DecodeBool(ByteSlice(buf), 5))
}

func TestDecodeOutOfRangeYieldsZero(t *testing.T) {
	buf := []byte{0xFF}
	v, n := DecodeUint(ByteSlice(buf), 100, 8)
	assert.Zero(t, v)
	assert.Zero(t, n)
}

func TestDecodeTruncatesAtPayloadEnd(t *testing.T) {
	buf := []byte{0xFF}
	_, n := DecodeUint(ByteSlice(buf), 4, 8)
	assert.Equal(t, 4, n, "only 4 bits remain after offset 4 in a 1-byte payload")
}

func TestScalarSpanningHeadAndMiddleBlocks(t *testing.T) {
	// Mirrors spec.md §8 scenario 6: a 64-bit field whose bytes come from a
	// head buffer, two middle blocks, and a tail buffer. The chunks are
	// concatenated into one ByteSlice, so this checks byte order across the
	// chunk boundaries, not a block-chain ScatteredPayload.
	head := []byte{0xA5, 0xA5}
	middle1 := []byte{0x5A}
	middle2 := []byte{0xCC}
	tail := []byte{0x11, 0x22, 0x33, 0x44}

	payload := concatPayload(head, middle1, middle2, tail)
	want := uint64(0)
	flat := append(append(append(append([]byte{}, head...), middle1...), middle2...), tail...)
	for i, b := range flat {
		want |= uint64(b) << uint(8*i)
	}

	v, n := DecodeUint(payload, 0, 64)
	assert.Equal(t, 64, n)
	assert.Equal(t, want, v)
}

func concatPayload(chunks ...[]byte) ScatteredPayload {
	var flat []byte
	for _, c := range chunks {
		flat = append(flat, c...)
	}
	return ByteSlice(flat)
}

func TestFloat16RoundTripCommonValues(t *testing.T) {
	cases := []float32{0, 1, -1, 0.5, -0.5, 3.14159, 65504, -65504, 1e-5}
	for _, v := range cases {
		h := NativeFloatToFloat16(v)
		back := Float16ToNativeFloat(h)
		assert.InDelta(t, float64(v), float64(back), 0.05, "value=%v", v)
	}
}

func TestFloat16SpecialValues(t *testing.T) {
	assert.True(t, math.IsInf(float64(Float16ToNativeFloat(NativeFloatToFloat16(float32(math.Inf(1))))), 1))
	assert.True(t, math.IsInf(float64(Float16ToNativeFloat(NativeFloatToFloat16(float32(math.Inf(-1))))), -1))
	assert.True(t, math.IsNaN(float64(Float16ToNativeFloat(NativeFloatToFloat16(float32(math.NaN()))))))
}

func TestFloat16ZeroPreservesSign(t *testing.T) {
	assert.Equal(t, uint16(0x8000), NativeFloatToFloat16(float32(math.Copysign(0, -1))))
	assert.Equal(t, uint16(0x0000), NativeFloatToFloat16(0))
}
