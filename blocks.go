package canard

import (
	"time"

	"github.com/canardgo/canard/internal/crc"
	"github.com/canardgo/canard/internal/pool"
)

// headBufferSize is the in-place payload storage embedded in every rx
// state, big enough that short multi-frame prefixes need no block
// allocation (spec.md §4.1: "at least 5 bytes").
const headBufferSize = 8

// bufferBlockDataSize is the payload capacity of one middle block in an rx
// transfer's accumulation chain.
const bufferBlockDataSize = 16

// rxState is the transfer descriptor and accumulation state for one
// in-flight (or just-completed) multi-frame transfer, keyed by
// (dataTypeID, kind, sourceNodeID, destNodeID). One rxState lives per
// descriptor at a time; the janitor reclaims it after transferTimeout.
type rxState struct {
	next pool.Index

	dataTypeID   uint16
	kind         TransferKind
	sourceNodeID uint8
	destNodeID   uint8

	ifaceID uint8

	transferID uint8
	nextToggle bool

	head    [headBufferSize]byte
	headLen int

	bufferBlocksHead pool.Index
	bufferBlocksTail pool.Index
	payloadLen       int

	calculatedCRC crc.CRC16
	declaredCRC   uint16
	priority      uint8

	canFD bool

	lastFrameTime time.Duration // monotonic timestamp of the last accepted frame
}

func (s *rxState) descriptorMatches(dataTypeID uint16, kind TransferKind, source, dest uint8) bool {
	return s.dataTypeID == dataTypeID && s.kind == kind && s.sourceNodeID == source && s.destNodeID == dest
}

// resetForNextTransfer clears s for reuse on the next transfer from the same descriptor,
// preserving the descriptor fields and bumping transferID — the Go
// equivalent of canard.c's prepareForNextTransfer.
func (s *rxState) resetForNextTransfer() {
	s.transferID = (s.transferID + 1) % 32
	s.payloadLen = 0
	s.nextToggle = false
	s.headLen = 0
	s.bufferBlocksHead = pool.None
	s.bufferBlocksTail = pool.None
	s.calculatedCRC = 0
	s.declaredCRC = 0
}

// bufferBlock is one link in an rx transfer's middle-block chain.
type bufferBlock struct {
	next pool.Index
	data [bufferBlockDataSize]byte
}

// txQueueItem is one entry in the priority-ordered transmit queue.
type txQueueItem struct {
	next  pool.Index
	frame Frame
}

// RxTransfer is a completed, validated transfer handed to the application's
// ReceiveFunc. Head and Middle are copies owned by the transfer; the engine
// returns its buffer blocks to the pool when it handles the final frame, so
// ReleaseRxTransferPayload has nothing to free.
type RxTransfer struct {
	Timestamp    time.Duration
	DataTypeID   uint16
	Kind         TransferKind
	TransferID   uint8
	Priority     uint8
	SourceNodeID uint8
	CANFD        bool

	// Head is the payload bytes accumulated inline in the rx state.
	Head []byte
	// Middle is the flattened payload bytes accumulated across buffer
	// blocks, in order, excluding Head.
	Middle []byte

	// PayloadLen is the total payload length (len(Head)+len(Middle)).
	PayloadLen int

	released bool
}

// Payload returns the transfer's full payload as a single contiguous slice
// (Head followed by Middle). For single-frame transfers Middle is empty.
func (t *RxTransfer) Payload() []byte {
	if len(t.Middle) == 0 {
		return t.Head
	}
	out := make([]byte, 0, t.PayloadLen)
	out = append(out, t.Head...)
	out = append(out, t.Middle...)
	return out
}

// Len implements bitcode.ScatteredPayload.
func (t *RxTransfer) Len() int { return t.PayloadLen }

// At implements bitcode.ScatteredPayload.
func (t *RxTransfer) At(i int) byte {
	if i < len(t.Head) {
		return t.Head[i]
	}
	return t.Middle[i-len(t.Head)]
}
