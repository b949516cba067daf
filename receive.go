package canard

import (
	"time"

	"github.com/canardgo/canard/internal/crc"
	"github.com/canardgo/canard/internal/pool"
)

// transferIDForwardDistance computes how many increments (mod 32, the
// 5-bit transfer-id space) carry `from` to `to`, grounded on canard.c's
// computeTransferIDForwardDistance.
func transferIDForwardDistance(from, to uint8) uint8 {
	distance := int(to) - int(from)
	if distance < 0 {
		distance += 1 << transferIDBitLen
	}
	return uint8(distance)
}

// findRxState walks the instance's rx-state list for a descriptor match,
// grounded on canard.c's findRxState.
func (ins *Instance) findRxState(dataTypeID uint16, kind TransferKind, source, dest uint8) (pool.Index, *rxState) {
	idx := ins.rxStateListHead
	for idx.Valid() {
		st := ins.rxStates.Get(idx)
		if st == nil {
			return pool.None, nil
		}
		if st.descriptorMatches(dataTypeID, kind, source, dest) {
			return idx, st
		}
		idx = st.next
	}
	return pool.None, nil
}

// createRxState allocates and initializes a fresh rx state for descriptor,
// grounded on canard.c's createRxState.
func (ins *Instance) createRxState(dataTypeID uint16, kind TransferKind, source, dest uint8) (pool.Index, *rxState, error) {
	idx, err := ins.rxStates.Allocate()
	if err != nil {
		return pool.None, nil, ErrOutOfMemory
	}
	st := ins.rxStates.Get(idx)
	st.next = pool.None
	st.dataTypeID = dataTypeID
	st.kind = kind
	st.sourceNodeID = source
	st.destNodeID = dest
	st.bufferBlocksHead = pool.None
	st.bufferBlocksTail = pool.None
	return idx, st, nil
}

// prependRxState creates a new rx state and links it at the head of the
// instance's list, grounded on canard.c's prependRxState.
func (ins *Instance) prependRxState(dataTypeID uint16, kind TransferKind, source, dest uint8) (pool.Index, *rxState, error) {
	idx, st, err := ins.createRxState(dataTypeID, kind, source, dest)
	if err != nil {
		return pool.None, nil, err
	}
	st.next = ins.rxStateListHead
	ins.rxStateListHead = idx
	return idx, st, nil
}

// traverseRxStates finds the existing state for descriptor or creates one,
// grounded on canard.c's traverseRxStates.
func (ins *Instance) traverseRxStates(dataTypeID uint16, kind TransferKind, source, dest uint8) (pool.Index, *rxState, error) {
	if !ins.rxStateListHead.Valid() {
		idx, st, err := ins.createRxState(dataTypeID, kind, source, dest)
		if err != nil {
			return pool.None, nil, err
		}
		ins.rxStateListHead = idx
		return idx, st, nil
	}
	if idx, st := ins.findRxState(dataTypeID, kind, source, dest); st != nil {
		return idx, st, nil
	}
	return ins.prependRxState(dataTypeID, kind, source, dest)
}

// releaseStatePayload frees a state's entire buffer-block chain back to the
// pool, grounded on canard.c's releaseStatePayload.
func (ins *Instance) releaseStatePayload(st *rxState) {
	idx := st.bufferBlocksHead
	for idx.Valid() {
		block := ins.bufferBlocks.Get(idx)
		if block == nil {
			break
		}
		next := block.next
		ins.bufferBlocks.Free(idx)
		idx = next
	}
	st.bufferBlocksHead = pool.None
	st.bufferBlocksTail = pool.None
	st.payloadLen = 0
}

// bufferBlockPushBytes appends data to st's accumulated payload, filling
// the embedded head buffer first and then chaining buffer blocks,
// grounded on canard.c's bufferBlockPushBytes.
func (ins *Instance) bufferBlockPushBytes(st *rxState, data []byte) error {
	dataIndex := 0

	if st.payloadLen < headBufferSize {
		for i := st.payloadLen; i < headBufferSize && dataIndex < len(data); i, dataIndex = i+1, dataIndex+1 {
			st.head[i] = data[dataIndex]
		}
		if dataIndex >= len(data) {
			st.payloadLen += len(data)
			st.headLen = st.payloadLen
			return nil
		}
	}
	st.headLen = headBufferSize

	if !st.bufferBlocksHead.Valid() {
		idx, err := ins.bufferBlocks.Allocate()
		if err != nil {
			return ErrOutOfMemory
		}
		block := ins.bufferBlocks.Get(idx)
		block.next = pool.None
		st.bufferBlocksHead = idx
		st.bufferBlocksTail = idx
	}

	tailIdx := st.bufferBlocksTail
	tailBlock := ins.bufferBlocks.Get(tailIdx)
	// Bytes already held in blocks, counting any just written to the head.
	inBlocks := st.payloadLen + dataIndex - headBufferSize
	offsetInTail := inBlocks % bufferBlockDataSize
	if inBlocks > 0 && offsetInTail == 0 {
		offsetInTail = bufferBlockDataSize // tail block is full
	}

	for dataIndex < len(data) {
		i := offsetInTail
		for ; i < bufferBlockDataSize && dataIndex < len(data); i, dataIndex = i+1, dataIndex+1 {
			tailBlock.data[i] = data[dataIndex]
		}
		if dataIndex < len(data) {
			idx, err := ins.bufferBlocks.Allocate()
			if err != nil {
				return ErrOutOfMemory
			}
			newBlock := ins.bufferBlocks.Get(idx)
			newBlock.next = pool.None
			tailBlock.next = idx
			st.bufferBlocksTail = idx
			tailBlock = newBlock
			offsetInTail = 0
		}
	}

	st.payloadLen += len(data)
	return nil
}

// HandleRxFrame is the receive-pipeline entry point: one incoming CAN frame
// in, zero or one completed+validated transfer delivered to receiveFn,
// grounded verbatim on canard.c's canardHandleRxFrame.
func (ins *Instance) HandleRxFrame(frame Frame, timestampUSec time.Duration) error {
	ins.locker.Lock()
	defer ins.locker.Unlock()

	kind := extractTransferType(frame.ID)
	destNodeID := BroadcastNodeID
	if kind != TransferKindBroadcast {
		destNodeID = destNodeFromID(frame.ID)
	}

	if frame.ID&canFrameEFF == 0 || frame.ID&canFrameRTR != 0 || frame.ID&canFrameERR != 0 || len(frame.Data) < 1 {
		return ErrRxIncompatiblePacket
	}

	if kind != TransferKindBroadcast && destNodeID != ins.localNodeID {
		return ErrRxWrongAddress
	}

	priority := priorityFromID(frame.ID)
	sourceNodeID := sourceNodeFromID(frame.ID)
	dataTypeID := extractDataType(frame.ID)

	tailByte := frame.Data[len(frame.Data)-1]
	sot, eot, toggle, tailTransferID := parseTailByte(tailByte)

	var dataTypeSignature uint64
	var st *rxState

	if sot {
		accept, signature := ins.acceptFn(dataTypeID, kind, sourceNodeID)
		if !accept {
			return ErrRxNotWanted
		}
		dataTypeSignature = signature
		var err error
		_, st, err = ins.traverseRxStates(dataTypeID, kind, sourceNodeID, destNodeID)
		if err != nil {
			return err
		}
	} else {
		_, st = ins.findRxState(dataTypeID, kind, sourceNodeID, destNodeID)
		if st == nil {
			if accept, _ := ins.acceptFn(dataTypeID, kind, sourceNodeID); !accept {
				return ErrRxNotWanted
			}
			return ErrRxMissedStart
		}
	}

	notInitialized := st.lastFrameTime == 0
	tidTimedOut := (timestampUSec - st.lastFrameTime) > ins.config.TransferTimeout
	sameIface := frame.IfaceID == st.ifaceID
	firstFrame := sot
	notPreviousTID := transferIDForwardDistance(st.transferID, tailTransferID) > 1
	ifaceSwitchAllowed := (timestampUSec - st.lastFrameTime) > ins.config.IfaceSwitchDelay
	nonWrappedTID := transferIDForwardDistance(tailTransferID, st.transferID) < (1 << (transferIDBitLen - 1))
	incompleteFrame := st.bufferBlocksHead.Valid()

	needRestart := notInitialized ||
		tidTimedOut ||
		(sameIface && firstFrame && (notPreviousTID || incompleteFrame)) ||
		(ifaceSwitchAllowed && firstFrame && nonWrappedTID)

	if needRestart {
		st.transferID = tailTransferID
		st.nextToggle = false
		ins.releaseStatePayload(st)
		st.ifaceID = frame.IfaceID
		if !sot {
			st.transferID = (st.transferID + 1) % 32
			return ErrRxMissedStart
		}
	}

	if frame.IfaceID != st.ifaceID {
		return nil
	}

	if sot && eot {
		st.lastFrameTime = timestampUSec
		transfer := &RxTransfer{
			Timestamp:    timestampUSec,
			DataTypeID:   dataTypeID,
			Kind:         kind,
			TransferID:   tailTransferID,
			Priority:     priority,
			SourceNodeID: sourceNodeID,
			CANFD:        frame.CANFD,
			Head:         append([]byte(nil), frame.Data[:len(frame.Data)-1]...),
			PayloadLen:   len(frame.Data) - 1,
		}
		ins.receiveFn(transfer)
		st.resetForNextTransfer()
		return nil
	}

	if toggle != st.nextToggle {
		return ErrRxWrongToggle
	}
	if tailTransferID != st.transferID {
		return ErrRxUnexpectedTID
	}

	switch {
	case sot && !eot: // beginning of a multi-frame transfer
		if len(frame.Data) <= 3 {
			return ErrRxShortFrame
		}
		st.lastFrameTime = timestampUSec
		st.payloadLen = 0
		if err := ins.bufferBlockPushBytes(st, frame.Data[2:len(frame.Data)-1]); err != nil {
			ins.releaseStatePayload(st)
			st.resetForNextTransfer()
			return err
		}
		st.declaredCRC = uint16(frame.Data[0]) | uint16(frame.Data[1])<<8
		st.calculatedCRC = crc.CRC16(crc.InitialValue)
		st.calculatedCRC.AddSignature(dataTypeSignature)
		st.calculatedCRC.Add(frame.Data[2 : len(frame.Data)-1])

	case !sot && !eot: // middle of a multi-frame transfer
		if err := ins.bufferBlockPushBytes(st, frame.Data[:len(frame.Data)-1]); err != nil {
			ins.releaseStatePayload(st)
			st.resetForNextTransfer()
			return err
		}
		st.calculatedCRC.Add(frame.Data[:len(frame.Data)-1])

	default: // end of a multi-frame transfer
		framePayload := frame.Data[:len(frame.Data)-1]

		middle := ins.flattenBufferBlocks(st)

		transfer := &RxTransfer{
			Timestamp:    timestampUSec,
			DataTypeID:   dataTypeID,
			Kind:         kind,
			TransferID:   tailTransferID,
			Priority:     priority,
			SourceNodeID: sourceNodeID,
			CANFD:        frame.CANFD,
			Head:         append([]byte(nil), st.head[:st.headLen]...),
			Middle:       append(middle, framePayload...),
		}
		transfer.PayloadLen = len(transfer.Head) + len(transfer.Middle)

		ins.releaseStatePayload(st)

		st.calculatedCRC.Add(framePayload)
		crcOK := uint16(st.calculatedCRC) == st.declaredCRC

		if crcOK {
			ins.receiveFn(transfer)
		}
		st.resetForNextTransfer()

		if !crcOK {
			return ErrRxBadCRC
		}
		return nil
	}

	st.nextToggle = !st.nextToggle
	return nil
}

// flattenBufferBlocks copies a state's buffer-block chain into one
// contiguous slice, the Go counterpart of descatterTransferPayload's middle
// section (canard.c).
func (ins *Instance) flattenBufferBlocks(st *rxState) []byte {
	out := make([]byte, 0, st.payloadLen-st.headLen)
	idx := st.bufferBlocksHead
	remaining := st.payloadLen - st.headLen
	for idx.Valid() && remaining > 0 {
		block := ins.bufferBlocks.Get(idx)
		if block == nil {
			break
		}
		n := bufferBlockDataSize
		if remaining < n {
			n = remaining
		}
		out = append(out, block.data[:n]...)
		remaining -= n
		idx = block.next
	}
	return out
}

// ReleaseRxTransferPayload is a no-op in this implementation: a delivered
// RxTransfer's Head/Middle are already ordinary Go slices owned by the
// garbage collector, not pool-backed memory the caller must hand back.
// Kept for API parity with canard.c's canardReleaseRxTransferPayload, named
// explicitly in spec.md §6.
func ReleaseRxTransferPayload(transfer *RxTransfer) {
	transfer.released = true
}
