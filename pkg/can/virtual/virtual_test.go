package virtual

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canardgo/canard"
)

// The tests below cover the wire format and local loopback only; none of
// them needs a broker server, and the TCP path to a broker is not tested
// here.

func TestWireFrameRoundTrip(t *testing.T) {
	frame := canard.Frame{
		ID:           0x1007B2A,
		Data:         []byte{0xAA, 0xBB, 0xC0},
		CANFD:        false,
		DeadlineUSec: 123456,
		IfaceMask:    0x03,
	}
	serialized, err := serializeFrame(frame)
	require.NoError(t, err)

	// Header is a 4-byte big-endian length prefix.
	length := uint32(serialized[0])<<24 | uint32(serialized[1])<<16 | uint32(serialized[2])<<8 | uint32(serialized[3])
	assert.EqualValues(t, len(serialized)-4, length)

	got, err := deserializeFrame(serialized[4:])
	require.NoError(t, err)
	assert.Equal(t, frame.ID, got.ID)
	assert.Equal(t, frame.Data, got.Data)
	assert.Equal(t, frame.CANFD, got.CANFD)
	assert.Equal(t, frame.DeadlineUSec, got.DeadlineUSec)
	assert.Equal(t, frame.IfaceMask, got.IfaceMask)
}

func TestWireFrameRoundTripCANFD(t *testing.T) {
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame := canard.Frame{ID: 0x42, Data: payload, CANFD: true}

	serialized, err := serializeFrame(frame)
	require.NoError(t, err)
	got, err := deserializeFrame(serialized[4:])
	require.NoError(t, err)
	assert.Equal(t, frame.Data, got.Data)
	assert.True(t, got.CANFD)
}

type frameRecorder struct {
	frames []canard.Frame
}

func (r *frameRecorder) Handle(frame canard.Frame) {
	r.frames = append(r.frames, frame)
}

func TestSendWithoutConnectionFails(t *testing.T) {
	b, err := NewBus("localhost:0")
	require.NoError(t, err)
	vb := b.(*Bus)

	err = vb.Send(canard.Frame{ID: 0x111, Data: []byte{1, 2, 3}})
	assert.Error(t, err, "sending with no connection and no loopback must fail")
}

func TestReceiveOwnLoopback(t *testing.T) {
	b, err := NewBus("localhost:0")
	require.NoError(t, err)
	vb := b.(*Bus)

	recorder := &frameRecorder{}
	require.NoError(t, vb.Subscribe(recorder))
	defer vb.Disconnect()

	frame := canard.Frame{ID: 0x111, Data: []byte{0, 1, 2, 3, 4, 5, 6, 7}}
	require.Error(t, vb.Send(frame), "no loopback and no connection")
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, recorder.frames, "loopback is off by default")

	vb.SetReceiveOwn(true)
	require.NoError(t, vb.Send(frame))
	require.Len(t, recorder.frames, 1)
	assert.Equal(t, frame.ID, recorder.frames[0].ID)
}
