package canard

import (
	"github.com/canardgo/canard/internal/crc"
	"github.com/canardgo/canard/internal/pool"
)

// MaxPriority is the lowest-ranked transmittable priority (spec.md §4.3:
// priority 0-31, lower numeric value wins arbitration).
const MaxPriority uint8 = 31

// TxTransfer is the object-call variant of Broadcast's arguments, grounded
// on canard.c's CanardTxTransfer / canardBroadcastObj (SPEC_FULL.md §6).
type TxTransfer struct {
	DataTypeSignature uint64
	DataTypeID        uint16
	TransferID        *uint8
	Priority          uint8
	Payload           []byte
	DeadlineUSec      uint64
	IfaceMask         uint8
	CANFD             bool
}

// RequestResponseTransfer is the object-call variant of
// RequestOrRespond's arguments.
type RequestResponseTransfer struct {
	TxTransfer
	DestinationNodeID uint8
	Kind              TransferKind // TransferKindRequest or TransferKindResponse
}

// Broadcast fragments and enqueues a message transfer. It returns the
// number of frames enqueued, 0 for a no-op, or an error. On success, for a
// non-anonymous transmitter *transferID is incremented modulo 32 (spec.md
// §4.3); anonymous broadcasts don't carry a meaningful transfer id beyond
// the discriminator and still receive the increment, matching
// canardBroadcastObj.
func (ins *Instance) Broadcast(signature uint64, dataTypeID uint16, transferID *uint8, priority uint8, payload []byte) (int, error) {
	return ins.BroadcastTransfer(&TxTransfer{
		DataTypeSignature: signature,
		DataTypeID:        dataTypeID,
		TransferID:        transferID,
		Priority:          priority,
		Payload:           payload,
		CANFD:             ins.config.CANFD,
	})
}

// BroadcastTransfer is the object-struct entry point for Broadcast.
func (ins *Instance) BroadcastTransfer(t *TxTransfer) (int, error) {
	if t.TransferID == nil {
		return 0, ErrInvalidArgument
	}
	if len(t.Payload) > 0 && t.Payload == nil {
		return 0, ErrInvalidArgument
	}
	if t.Priority > MaxPriority {
		return 0, ErrInvalidArgument
	}

	var canID uint32
	var transferCRC uint16 = crc.InitialValue

	if ins.GetLocalNodeID() == BroadcastNodeID {
		if len(t.Payload) > 7 {
			return 0, ErrNodeIDNotSet
		}
		const dtidMask = (1 << anonMsgDataTypeIDBits) - 1
		if t.DataTypeID&dtidMask != t.DataTypeID {
			return 0, ErrInvalidArgument
		}
		acc := crc.CRC16(crc.InitialValue)
		discriminator := uint16(acc.Add(t.Payload)) & 0x7FFE
		canID = makeAnonymousMessageID(t.Priority, t.DataTypeID, discriminator)
	} else {
		canID = makeMessageID(t.Priority, t.DataTypeID, ins.GetLocalNodeID())
		transferCRC = ins.calculateTransferCRC(t.DataTypeSignature, t.Payload, t.CANFD)
	}

	result, err := ins.enqueueTxFrames(canID, transferCRC, t.Payload, t.DeadlineUSec, t.IfaceMask, t.CANFD, t.TransferID)
	if err != nil {
		return 0, err
	}
	if result > 0 {
		incrementTransferID(t.TransferID)
	}
	return result, nil
}

// RequestOrRespond fragments and enqueues a service request or response.
// Responses do not advance *transferID (spec.md §4.3).
func (ins *Instance) RequestOrRespond(destinationNodeID uint8, signature uint64, serviceTypeID uint8, transferID *uint8, priority uint8, kind TransferKind, payload []byte) (int, error) {
	return ins.RequestOrRespondTransfer(&RequestResponseTransfer{
		TxTransfer: TxTransfer{
			DataTypeSignature: signature,
			DataTypeID:        uint16(serviceTypeID),
			TransferID:        transferID,
			Priority:          priority,
			Payload:           payload,
			CANFD:             ins.config.CANFD,
		},
		DestinationNodeID: destinationNodeID,
		Kind:              kind,
	})
}

// RequestOrRespondTransfer is the object-struct entry point for
// RequestOrRespond.
func (ins *Instance) RequestOrRespondTransfer(t *RequestResponseTransfer) (int, error) {
	if t.TransferID == nil {
		return 0, ErrInvalidArgument
	}
	if len(t.Payload) > 0 && t.Payload == nil {
		return 0, ErrInvalidArgument
	}
	if t.Priority > MaxPriority {
		return 0, ErrInvalidArgument
	}
	if ins.GetLocalNodeID() == BroadcastNodeID {
		return 0, ErrNodeIDNotSet
	}

	canID := makeServiceID(t.Priority, uint8(t.DataTypeID), t.Kind == TransferKindRequest, t.DestinationNodeID, ins.GetLocalNodeID())
	transferCRC := ins.calculateTransferCRC(t.DataTypeSignature, t.Payload, t.CANFD)

	result, err := ins.enqueueTxFrames(canID, transferCRC, t.Payload, t.DeadlineUSec, t.IfaceMask, t.CANFD, t.TransferID)
	if err != nil {
		return 0, err
	}
	if result > 0 && t.Kind == TransferKindRequest {
		incrementTransferID(t.TransferID)
	}
	return result, nil
}

func incrementTransferID(transferID *uint8) {
	*transferID++
	if *transferID >= 32 {
		*transferID = 0
	}
}

// calculateTransferCRC computes the running CRC over the data-type
// signature followed by the payload, grounded on canard.c's calculateCRC.
// Single-frame transfers don't carry a CRC at all (it is simply unused by
// enqueueTxFrames in that case); for CAN FD multi-frame transfers whose
// final frame is legally padded, the padding bytes are folded into the CRC
// here too, since the receiver will see those same zero bytes before the
// tail byte (SPEC_FULL.md §6).
func (ins *Instance) calculateTransferCRC(signature uint64, payload []byte, canfd bool) uint16 {
	frameMaxDataLen := DefaultMTU
	if canfd {
		frameMaxDataLen = DefaultCANFDMTU
	}
	if len(payload) < frameMaxDataLen {
		return crc.InitialValue
	}

	acc := crc.CRC16(crc.InitialValue)
	acc.AddSignature(signature)
	acc.Add(payload)

	if canfd && len(payload) > 63 {
		bytesPerFrame := frameMaxDataLen - 1
		remainder := (len(payload) + 2) % bytesPerFrame
		padding := int(dlcToDataLength(dataLengthToDlc(uint16(remainder+1)))) - 1 - remainder
		for i := 0; i < padding; i++ {
			acc.Single(0)
		}
	}
	return uint16(acc)
}

// enqueueTxFrames fragments payload into one or more frames tagged with
// canID and enqueues them, grounded on canard.c's enqueueTxFrames. For a
// multi-frame transfer it first checks that enough blocks are available
// for every frame before allocating any of them (spec.md §4.3's
// all-or-nothing guarantee).
func (ins *Instance) enqueueTxFrames(canID uint32, transferCRC uint16, payload []byte, deadlineUSec uint64, ifaceMask uint8, canfd bool, transferID *uint8) (int, error) {
	frameMaxDataLen := DefaultMTU
	if canfd {
		frameMaxDataLen = DefaultCANFDMTU
	}

	if len(payload) < frameMaxDataLen {
		return ins.enqueueSingleFrame(canID, payload, deadlineUSec, ifaceMask, canfd, *transferID)
	}
	return ins.enqueueMultiFrame(canID, transferCRC, payload, deadlineUSec, ifaceMask, canfd, frameMaxDataLen, *transferID)
}

func (ins *Instance) enqueueSingleFrame(canID uint32, payload []byte, deadlineUSec uint64, ifaceMask uint8, canfd bool, transferID uint8) (int, error) {
	idx, err := ins.txItems.Allocate()
	if err != nil {
		return 0, ErrOutOfMemory
	}
	item := ins.txItems.Get(idx)

	dataLen := int(dlcToDataLength(dataLengthToDlc(uint16(len(payload)+1)))) - 1
	data := make([]byte, dataLen+1)
	copy(data, payload)
	data[dataLen] = makeTailByte(true, true, false, transferID)

	item.frame = Frame{
		ID:           canID | canFrameEFF,
		Data:         data,
		CANFD:        canfd,
		DeadlineUSec: deadlineUSec,
		IfaceMask:    ifaceMask,
	}
	ins.pushTxQueue(idx)
	return 1, nil
}

func (ins *Instance) enqueueMultiFrame(canID uint32, transferCRC uint16, payload []byte, deadlineUSec uint64, ifaceMask uint8, canfd bool, frameMaxDataLen int, transferID uint8) (int, error) {
	totalBytes := len(payload) + 2
	bytesPerFrame := frameMaxDataLen - 1
	framesNeeded := (totalBytes + bytesPerFrame - 1) / bytesPerFrame

	txStats := ins.txItems.Stats()
	blocksAvailable := int(txStats.CapacityBlocks) - int(txStats.CurrentUsedBlocks)
	if blocksAvailable < framesNeeded {
		return 0, ErrOutOfMemory
	}

	dataIndex := 0
	toggle := false
	sotEot := byte(0x80)
	frameCount := 0

	for dataIndex != len(payload) {
		idx, err := ins.txItems.Allocate()
		if err != nil {
			return 0, ErrOutOfMemory
		}
		item := ins.txItems.Get(idx)

		buf := make([]byte, frameMaxDataLen)
		i := 0
		if dataIndex == 0 {
			buf[0] = byte(transferCRC)
			buf[1] = byte(transferCRC >> 8)
			i = 2
		}
		for i < frameMaxDataLen-1 && dataIndex < len(payload) {
			buf[i] = payload[dataIndex]
			i++
			dataIndex++
		}
		if dataIndex == len(payload) {
			sotEot = 0x40
		}

		dataLen := int(dlcToDataLength(dataLengthToDlc(uint16(i+1)))) - 1
		// buf was sized to frameMaxDataLen, which always covers the legal
		// padded length.
		buf[dataLen] = sotEot | boolByte(toggle)<<5 | (transferID & transferIDMask)

		item.frame = Frame{
			ID:           canID | canFrameEFF,
			Data:         append([]byte(nil), buf[:dataLen+1]...),
			CANFD:        canfd,
			DeadlineUSec: deadlineUSec,
			IfaceMask:    ifaceMask,
		}
		ins.pushTxQueue(idx)

		frameCount++
		toggle = !toggle
		sotEot = 0
	}
	return frameCount, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// pushTxQueue inserts idx into the priority-sorted transmit queue,
// grounded on canard.c's pushTxQueue: linear scan, FIFO among equal
// priority (spec.md §4.3).
func (ins *Instance) pushTxQueue(idx pool.Index) {
	ins.locker.Lock()
	defer ins.locker.Unlock()

	item := ins.txItems.Get(idx)
	if ins.txQueueHead == pool.None {
		ins.txQueueHead = idx
		return
	}

	queueIdx := ins.txQueueHead
	prevIdx := ins.txQueueHead
	for queueIdx != pool.None {
		queueItem := ins.txItems.Get(queueIdx)
		if isPriorityHigher(queueItem.frame.ID, item.frame.ID) {
			if queueIdx == ins.txQueueHead {
				item.next = queueIdx
				ins.txQueueHead = idx
			} else {
				ins.txItems.Get(prevIdx).next = idx
				item.next = queueIdx
			}
			return
		}
		if queueItem.next == pool.None {
			queueItem.next = idx
			return
		}
		prevIdx = queueIdx
		queueIdx = queueItem.next
	}
}

// PeekTxQueue returns the head frame of the transmit queue without
// removing it, and false if the queue is empty.
func (ins *Instance) PeekTxQueue() (Frame, bool) {
	ins.locker.Lock()
	defer ins.locker.Unlock()

	if ins.txQueueHead == pool.None {
		return Frame{}, false
	}
	return ins.txItems.Get(ins.txQueueHead).frame, true
}

// PopTxQueue removes and frees the head item of the transmit queue.
func (ins *Instance) PopTxQueue() {
	ins.locker.Lock()
	defer ins.locker.Unlock()

	if ins.txQueueHead == pool.None {
		return
	}
	head := ins.txQueueHead
	ins.txQueueHead = ins.txItems.Get(head).next
	ins.txItems.Free(head)
}
