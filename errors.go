package canard

import "errors"

// Programmer errors: indicate a contract violation by the caller. The
// engine still returns them as ordinary errors rather than panicking, but a
// caller hitting one has a bug.
var (
	ErrInvalidArgument = errors.New("canard: invalid argument")
	ErrInternal        = errors.New("canard: internal error")
)

// Resource errors: non-fatal, the caller may retry later.
var (
	ErrOutOfMemory  = errors.New("canard: pool exhausted")
	ErrNodeIDNotSet = errors.New("canard: local node id not set")
)

// Frame-level rejections: returned from HandleRxFrame for the single
// offending frame. Internal state remains consistent; subsequent frames are
// processed normally, and a restart will often recover the stream on the
// next start-of-transfer frame.
var (
	ErrRxIncompatiblePacket = errors.New("canard: incompatible frame")
	ErrRxWrongAddress       = errors.New("canard: frame not addressed to this node")
	ErrRxNotWanted          = errors.New("canard: transfer not accepted")
	ErrRxMissedStart        = errors.New("canard: missed start of transfer")
	ErrRxWrongToggle        = errors.New("canard: unexpected toggle bit")
	ErrRxUnexpectedTID      = errors.New("canard: unexpected transfer id")
	ErrRxShortFrame         = errors.New("canard: frame too short")
)

// Transfer-level rejection: surfaced after the final frame; the transfer is
// not delivered and the engine resets for the next transfer.
var ErrRxBadCRC = errors.New("canard: transfer CRC mismatch")
