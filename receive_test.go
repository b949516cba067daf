package canard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReceivingInstance(t *testing.T) (*Instance, *[]*RxTransfer) {
	t.Helper()
	var delivered []*RxTransfer
	ins := NewInstance(
		func(uint16, TransferKind, uint8) (bool, uint64) { return true, 0 },
		func(transfer *RxTransfer) { delivered = append(delivered, transfer) },
		nil,
		WithPoolCapacities(4, 4, 4),
	)
	require.NoError(t, ins.SetLocalNodeID(42))
	return ins, &delivered
}

func TestHandleRxFrameSingleFrameDelivers(t *testing.T) {
	ins, delivered := newReceivingInstance(t)

	id := makeMessageID(1, 20, 7)
	frame := Frame{ID: id | canFrameEFF, Data: []byte{0xAA, 0xBB, 0xC0}}

	require.NoError(t, ins.HandleRxFrame(frame, 1000))
	require.Len(t, *delivered, 1)
	got := (*delivered)[0]
	assert.Equal(t, []byte{0xAA, 0xBB}, got.Payload())
	assert.EqualValues(t, 0, got.TransferID)
	assert.Equal(t, uint8(7), got.SourceNodeID)
}

// Scenario 4 (spec.md §8): wrong toggle on the second frame of a two-frame
// transfer. The rx state is retained (not reset) and ErrRxWrongToggle is
// returned; no transfer is delivered.
func TestHandleRxFrameWrongToggle(t *testing.T) {
	ins, delivered := newReceivingInstance(t)

	id := makeMessageID(1, 20, 7)
	frame1 := Frame{ID: id | canFrameEFF, Data: []byte{0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x80}}
	require.NoError(t, ins.HandleRxFrame(frame1, 1000))
	assert.Empty(t, *delivered)

	// Second frame repeats toggle=0 instead of advancing to toggle=1.
	frame2 := Frame{ID: id | canFrameEFF, Data: []byte{0x06, 0x07, 0x00}}
	err := ins.HandleRxFrame(frame2, 1100)
	assert.ErrorIs(t, err, ErrRxWrongToggle)
	assert.Empty(t, *delivered)
}

// Scenario 5 (spec.md §8): corrupted declared CRC on an otherwise
// well-formed multi-frame transfer. receiveFn must never be invoked and
// ErrRxBadCRC must be returned from the final frame.
func TestHandleRxFrameBadCRC(t *testing.T) {
	ins, delivered := newReceivingInstance(t)

	id := makeMessageID(1, 20, 1)
	// Declared CRC deliberately wrong (0x0000 instead of the real value).
	frame1 := Frame{ID: id | canFrameEFF, Data: []byte{0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x80}}
	require.NoError(t, ins.HandleRxFrame(frame1, 1000))

	frame2 := Frame{ID: id | canFrameEFF, Data: []byte{0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x20}}
	require.NoError(t, ins.HandleRxFrame(frame2, 1100))

	frame3 := Frame{ID: id | canFrameEFF, Data: []byte{0x0D, 0x40}}
	err := ins.HandleRxFrame(frame3, 1200)
	assert.ErrorIs(t, err, ErrRxBadCRC)
	assert.Empty(t, *delivered)
}

// Full round trip: feed transmit.go's own fragmentation output for the
// corrected 3-frame scenario (see TestBroadcastMultiFrame) into a second
// Instance and confirm payload reconstruction and CRC gating succeed.
func TestHandleRxFrameMultiFrameRoundTrip(t *testing.T) {
	const signature = 0x0B2A812620A11D40

	tx := newTestInstance(4, 4, 4)
	require.NoError(t, tx.SetLocalNodeID(1))

	payload := make([]byte, 13)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	tid := uint8(0)
	n, err := tx.BroadcastTransfer(&TxTransfer{
		DataTypeSignature: signature,
		DataTypeID:        20,
		TransferID:        &tid,
		Priority:          1,
		Payload:           payload,
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	var frames []Frame
	for {
		frame, ok := tx.PeekTxQueue()
		if !ok {
			break
		}
		frames = append(frames, frame)
		tx.PopTxQueue()
	}
	require.Len(t, frames, 3)

	var delivered []*RxTransfer
	rx := NewInstance(
		func(uint16, TransferKind, uint8) (bool, uint64) { return true, signature },
		func(transfer *RxTransfer) { delivered = append(delivered, transfer) },
		nil,
		WithPoolCapacities(4, 4, 4),
	)
	require.NoError(t, rx.SetLocalNodeID(42))

	ts := time.Duration(0)
	for _, frame := range frames {
		ts += 100
		require.NoError(t, rx.HandleRxFrame(frame, ts))
	}

	require.Len(t, delivered, 1)
	assert.Equal(t, payload, delivered[0].Payload())
	assert.Equal(t, uint8(1), delivered[0].SourceNodeID)
}

func TestHandleRxFrameMissedStartReturnsError(t *testing.T) {
	ins, delivered := newReceivingInstance(t)

	id := makeMessageID(1, 20, 7)
	// A continuation frame (sot=0) with no prior state for this descriptor.
	frame := Frame{ID: id | canFrameEFF, Data: []byte{0x01, 0x02, 0x20}}
	err := ins.HandleRxFrame(frame, 1000)
	assert.ErrorIs(t, err, ErrRxMissedStart)
	assert.Empty(t, *delivered)
}

func TestHandleRxFrameRestartsOnTransferTimeout(t *testing.T) {
	ins, delivered := newReceivingInstance(t)

	id := makeMessageID(1, 20, 7)
	frame1 := Frame{ID: id | canFrameEFF, Data: []byte{0xAA, 0xC0}}
	require.NoError(t, ins.HandleRxFrame(frame1, 0))
	require.Len(t, *delivered, 1)

	// A fresh single-frame transfer long after the timeout still delivers
	// cleanly even though it reuses the same descriptor.
	frame2 := Frame{ID: id | canFrameEFF, Data: []byte{0xBB, 0xC0}}
	require.NoError(t, ins.HandleRxFrame(frame2, ins.config.TransferTimeout+time.Second))
	require.Len(t, *delivered, 2)
}
