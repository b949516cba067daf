package canard

import "testing"

import "github.com/stretchr/testify/assert"

func TestMakeMessageIDMatchesOriginalArithmetic(t *testing.T) {
	// local id 42, data-type-id 123, priority 16: priority<<24 | dtid<<8 | source.
	// The distilled scenario text quotes 0x00007B2A for this case, but that
	// drops the priority nibble entirely; canard.c's own arithmetic (which
	// this function mirrors verbatim) produces 0x10007B2A. See DESIGN.md.
	got := makeMessageID(16, 123, 42)
	assert.Equal(t, uint32(0x10007B2A), got)
}

func TestExtractTransferTypeClassification(t *testing.T) {
	msgID := makeMessageID(1, 20, 1)
	assert.Equal(t, TransferKindBroadcast, extractTransferType(msgID))

	reqID := makeServiceID(1, 5, true, 2, 1)
	assert.Equal(t, TransferKindRequest, extractTransferType(reqID))

	respID := makeServiceID(1, 5, false, 2, 1)
	assert.Equal(t, TransferKindResponse, extractTransferType(respID))
}

func TestExtractDataTypeAnonymousMasking(t *testing.T) {
	// Non-anonymous broadcast: full 16-bit data-type id survives.
	id := makeMessageID(1, 0x1234, 7)
	assert.Equal(t, uint16(0x1234), extractDataType(id))

	// Anonymous broadcast (source node id 0): masked to 2 bits.
	anonID := makeAnonymousMessageID(1, 0x1234, 99)
	assert.Equal(t, uint16(0x1234&0x3), extractDataType(anonID))
}

func TestMakeAnonymousMessageIDPreservesDiscriminatorBit14(t *testing.T) {
	// canard.c masks the discriminator with 0x7FFE (clearing bit 0 only)
	// before shifting left by 9, so bit 14 of the CRC survives into id bit
	// 23. The largest discriminator transmit.go can derive (crc & 0x7FFE,
	// i.e. 0x7FFE) must not be truncated here.
	got := makeAnonymousMessageID(0, 0, 0x7FFE)
	assert.Equal(t, uint32(0xFFFC00), got)
}

func TestTailByteRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		sot, eot, toggle bool
		tid              uint8
	}{
		{true, true, false, 0},
		{true, false, false, 5},
		{false, false, true, 17},
		{false, true, true, 31},
	} {
		b := makeTailByte(tc.sot, tc.eot, tc.toggle, tc.tid)
		sot, eot, toggle, tid := parseTailByte(b)
		assert.Equal(t, tc.sot, sot)
		assert.Equal(t, tc.eot, eot)
		assert.Equal(t, tc.toggle, toggle)
		assert.Equal(t, tc.tid, tid)
	}
}

func TestDLCRoundingTable(t *testing.T) {
	assert.EqualValues(t, 8, dlcToDataLength(8))
	assert.EqualValues(t, 12, dlcToDataLength(9))
	assert.EqualValues(t, 64, dlcToDataLength(15))

	assert.EqualValues(t, 9, dataLengthToDlc(10))
	assert.EqualValues(t, 15, dataLengthToDlc(64))

	assert.Equal(t, 12, roundUpToLegalLength(9))
	assert.Equal(t, 8, roundUpToLegalLength(8))
	assert.Equal(t, 0, roundUpToLegalLength(0))
}

func TestIsPriorityHigherExtendedVsStandard(t *testing.T) {
	// Same top-11-bit arbitration field (5); the extended frame's field
	// occupies bits 18-28 of its 29-bit id.
	std := uint32(5)
	ext := uint32(5<<18) | canFrameEFF
	// isPriorityHigher(rhs, id) reports whether id outranks rhs. Tied on
	// the top 11 bits, the standard frame (IDE dominant) wins arbitration.
	assert.True(t, isPriorityHigher(ext, std))
	assert.False(t, isPriorityHigher(std, ext))
}

func TestIsPriorityHigherNumericTiebreak(t *testing.T) {
	lo := uint32(0x10) | canFrameEFF
	hi := uint32(0x20) | canFrameEFF
	assert.True(t, isPriorityHigher(hi, lo))
	assert.False(t, isPriorityHigher(lo, hi))
}

func TestIsPriorityHigherRTRLosesToData(t *testing.T) {
	data := uint32(0x55) | canFrameEFF
	rtr := uint32(0x55) | canFrameEFF | canFrameRTR
	assert.True(t, isPriorityHigher(rtr, data))
	assert.False(t, isPriorityHigher(data, rtr))
}
