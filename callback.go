package canard

// AcceptFunc is the accept-predicate capability (spec.md §9, "Callbacks as
// capabilities"): invoked on every start-of-transfer frame, and on a
// non-SoT frame for which no rx state exists (to tell ErrRxNotWanted from
// ErrRxMissedStart). It must report whether the transfer
// should be tracked at all and, if so, the data-type's 64-bit signature,
// needed to seed the running CRC of a multi-frame transfer.
type AcceptFunc func(dataTypeID uint16, kind TransferKind, sourceNodeID uint8) (accept bool, dataTypeSignature uint64)

// ReceiveFunc delivers a completed, CRC-validated transfer. The transfer's
// payload slices are copies that stay valid after the callback returns;
// ReleaseRxTransferPayload frees nothing.
type ReceiveFunc func(transfer *RxTransfer)
