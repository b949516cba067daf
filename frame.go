package canard

// Frame is a single Classic CAN 2.0B or CAN FD frame: a 29-bit extended
// identifier, a data payload (up to 8 bytes, or 64 for CAN FD), and the
// flags a transport needs to know how to put it on the wire.
type Frame struct {
	// ID holds the 29-bit extended CAN identifier in its low 29 bits. Bit 31
	// is the extended-frame flag, bit 30 RTR and bit 29 error-frame; transmit
	// sets the extended flag, and receive rejects frames without it or with
	// RTR/error set.
	ID uint32
	// Data holds up to 64 payload bytes; Classic CAN frames use only the
	// first 8. The final byte of every UAVCAN frame is the tail byte.
	Data []byte
	// CANFD marks this as a CAN FD frame, permitting payloads beyond 8
	// bytes and legal-DLC rounding up to 64.
	CANFD bool
	// DeadlineUSec is the transmit deadline in microseconds, used for janitor
	// pruning when Config.EnableDeadline is set: the item is freed once the
	// cleanup time passes it, so a zero deadline expires at the first cleanup.
	DeadlineUSec uint64
	// IfaceMask marks the interfaces that may carry this frame under
	// multi-interface transmission. When Config.MultiIface is set, the
	// janitor frees any item whose mask is zero.
	IfaceMask uint8
	// IfaceID identifies which physical interface a received frame arrived
	// on, used by the receive pipeline's same-interface/interface-switch
	// restart logic. Transmit-side frames leave this zero.
	IfaceID uint8
}

// TransferKind distinguishes the three UAVCAN v0 transfer categories.
type TransferKind uint8

const (
	TransferKindBroadcast TransferKind = iota
	TransferKindRequest
	TransferKindResponse
)

func (k TransferKind) String() string {
	switch k {
	case TransferKindBroadcast:
		return "broadcast"
	case TransferKindRequest:
		return "request"
	case TransferKindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Wire-layout constants for the 29-bit extended CAN identifier (spec.md §4.2).
const (
	canIDSourceNodeMask    = 0x7F
	canIDServiceNotMsgBit  = 7
	canIDDestNodeShift     = 8
	canIDDestNodeMask      = 0x7F
	canIDRequestRespBit    = 15
	canIDMsgTypeShift      = 8
	canIDMsgTypeMask       = 0xFFFF
	canIDSrvTypeShift      = 16
	canIDSrvTypeMask       = 0xFF
	canIDPriorityShift     = 24
	canIDPriorityMask      = 0x1F
	canIDDiscriminatorMask = 0x7FFE
	canIDDiscriminatorBit  = 9

	canExtIDMask  = 0x1FFFFFFF
	canFrameEFF   = 0x80000000 // extended-frame flag
	canFrameRTR   = 0x40000000
	canFrameERR   = 0x20000000

	// BroadcastNodeID (0) denotes an anonymous transmitter.
	BroadcastNodeID uint8 = 0

	transferIDBitLen       = 5
	transferIDMask         = (1 << transferIDBitLen) - 1
	anonMsgDataTypeIDBits  = 2

	tailSoTBit    = 7
	tailEoTBit    = 6
	tailToggleBit = 5
)

// sourceNodeFromID extracts bits 0-6: the source node id.
func sourceNodeFromID(id uint32) uint8 { return uint8(id & canIDSourceNodeMask) }

// isServiceFromID reports bit 7: service-not-message.
func isServiceFromID(id uint32) bool { return (id>>canIDServiceNotMsgBit)&1 != 0 }

// isRequestFromID reports bit 15: request-not-response (service frames only).
func isRequestFromID(id uint32) bool { return (id>>canIDRequestRespBit)&1 != 0 }

// destNodeFromID extracts bits 8-14: destination node (service frames only).
func destNodeFromID(id uint32) uint8 { return uint8((id >> canIDDestNodeShift) & canIDDestNodeMask) }

// msgTypeFromID extracts bits 8-23 as a 16-bit message/data-type id.
func msgTypeFromID(id uint32) uint16 { return uint16((id >> canIDMsgTypeShift) & canIDMsgTypeMask) }

// srvTypeFromID extracts bits 16-23: the 8-bit service-type id.
func srvTypeFromID(id uint32) uint8 { return uint8((id >> canIDSrvTypeShift) & canIDSrvTypeMask) }

// priorityFromID extracts bits 24-28: the 5-bit priority.
func priorityFromID(id uint32) uint8 { return uint8((id >> canIDPriorityShift) & canIDPriorityMask) }

// extractTransferType classifies a CAN identifier's transfer kind, grounded
// on canard.c's extractTransferType: service-not-message clears to
// broadcast, otherwise request-not-response selects request vs. response.
func extractTransferType(id uint32) TransferKind {
	if !isServiceFromID(id) {
		return TransferKindBroadcast
	}
	if isRequestFromID(id) {
		return TransferKindRequest
	}
	return TransferKindResponse
}

// extractDataType returns the message/service data-type id encoded in id.
// For broadcasts from an anonymous transmitter (source node id ==
// BroadcastNodeID) the result is masked to anonMsgDataTypeIDBits bits; this
// asymmetry is intentional and preserved verbatim per spec.md §9's second
// open question, matching canard.c's extractDataType exactly.
func extractDataType(id uint32) uint16 {
	if extractTransferType(id) == TransferKindBroadcast {
		dtid := msgTypeFromID(id)
		if sourceNodeFromID(id) == BroadcastNodeID {
			dtid &= (1 << anonMsgDataTypeIDBits) - 1
		}
		return dtid
	}
	return uint16(srvTypeFromID(id))
}

// makeMessageID builds the 29-bit identifier for a broadcast (message)
// frame from a non-anonymous source, per spec.md §4.2 and canard.c's
// canardBroadcast id construction (priority<<24 | data_type<<8 | source).
func makeMessageID(priority uint8, dataTypeID uint16, sourceNodeID uint8) uint32 {
	return (uint32(priority) << canIDPriorityShift) |
		(uint32(dataTypeID) << canIDMsgTypeShift) |
		uint32(sourceNodeID)
}

// makeAnonymousMessageID builds the identifier for an anonymous broadcast:
// the 14-bit discriminator (derived from a CRC of the payload) replaces the
// destination/type bits above the 2-bit data-type id, and the source node
// field is zero.
func makeAnonymousMessageID(priority uint8, dataTypeID uint16, discriminator uint16) uint32 {
	maskedType := dataTypeID & ((1 << anonMsgDataTypeIDBits) - 1)
	return (uint32(priority) << canIDPriorityShift) |
		(uint32(discriminator&canIDDiscriminatorMask) << canIDDiscriminatorBit) |
		(uint32(maskedType) << canIDMsgTypeShift)
}

// makeServiceID builds the identifier for a service request or response.
func makeServiceID(priority uint8, serviceTypeID uint8, requestNotResponse bool, destNodeID, sourceNodeID uint8) uint32 {
	id := (uint32(priority) << canIDPriorityShift) |
		(uint32(serviceTypeID) << canIDSrvTypeShift) |
		(uint32(destNodeID) << canIDDestNodeShift) |
		(1 << canIDServiceNotMsgBit) |
		uint32(sourceNodeID)
	if requestNotResponse {
		id |= 1 << canIDRequestRespBit
	}
	return id
}

// makeTailByte packs the four tail-byte fields (spec.md §4.2).
func makeTailByte(sot, eot, toggle bool, transferID uint8) byte {
	var b byte
	if sot {
		b |= 1 << tailSoTBit
	}
	if eot {
		b |= 1 << tailEoTBit
	}
	if toggle {
		b |= 1 << tailToggleBit
	}
	b |= transferID & transferIDMask
	return b
}

// parseTailByte unpacks a tail byte into its four fields.
func parseTailByte(tail byte) (sot, eot, toggle bool, transferID uint8) {
	sot = (tail>>tailSoTBit)&1 != 0
	eot = (tail>>tailEoTBit)&1 != 0
	toggle = (tail>>tailToggleBit)&1 != 0
	transferID = tail & transferIDMask
	return
}

// legalCANFDDataLengths are the data lengths a CAN FD DLC may encode,
// ascending; Classic CAN only ever uses the first nine (0..8).
var legalCANFDDataLengths = [...]uint16{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// dlcToDataLength maps a 4-bit DLC to its legal payload length, grounded on
// canard.c's dlcToDataLength.
func dlcToDataLength(dlc uint16) uint16 {
	switch {
	case dlc <= 8:
		return dlc
	case dlc == 9:
		return 12
	case dlc == 10:
		return 16
	case dlc == 11:
		return 20
	case dlc == 12:
		return 24
	case dlc == 13:
		return 32
	case dlc == 14:
		return 48
	default:
		return 64
	}
}

// dataLengthToDlc maps a payload length up to the next legal DLC, grounded
// on canard.c's dataLengthToDlc.
func dataLengthToDlc(dataLength uint16) uint16 {
	switch {
	case dataLength <= 8:
		return dataLength
	case dataLength <= 12:
		return 9
	case dataLength <= 16:
		return 10
	case dataLength <= 20:
		return 11
	case dataLength <= 24:
		return 12
	case dataLength <= 32:
		return 13
	case dataLength <= 48:
		return 14
	default:
		return 15
	}
}

// roundUpToLegalLength rounds dataLength up to the next legal CAN/CAN-FD
// frame payload length.
func roundUpToLegalLength(dataLength int) int {
	return int(dlcToDataLength(dataLengthToDlc(uint16(dataLength))))
}

// isPriorityHigher reports whether id outranks rhs for transmit-queue
// ordering, grounded verbatim on canard.c's isPriorityHigher: std-vs-ext
// arbitration on the top 11 bits, then RTR-loses-to-data at equal ids,
// then plain numeric comparison (lower id wins).
func isPriorityHigher(rhs, id uint32) bool {
	cleanID := id & canExtIDMask
	rhsCleanID := rhs & canExtIDMask

	ext := id&canFrameEFF != 0
	rhsExt := rhs&canFrameEFF != 0
	if ext != rhsExt {
		arb11 := cleanID
		if ext {
			arb11 = cleanID >> 18
		}
		rhsArb11 := rhsCleanID
		if rhsExt {
			rhsArb11 = rhsCleanID >> 18
		}
		if arb11 != rhsArb11 {
			return arb11 < rhsArb11
		}
		return rhsExt
	}

	rtr := id&canFrameRTR != 0
	rhsRTR := rhs&canFrameRTR != 0
	if cleanID == rhsCleanID && rtr != rhsRTR {
		return rhsRTR
	}

	return cleanID < rhsCleanID
}
