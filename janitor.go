package canard

import "time"

// CleanupStaleTransfers walks the rx-state list and reclaims any state
// whose last accepted frame is older than the instance's transfer timeout,
// then (when the corresponding Config flags are set) prunes the tx queue
// of expired or unreachable items. Grounded on canard.c's
// canardCleanupStaleTransfers; the host must call this periodically
// (spec.md §5, "stale-transfer janitor").
func (ins *Instance) CleanupStaleTransfers(nowUSec time.Duration) {
	ins.locker.Lock()
	defer ins.locker.Unlock()

	ins.pruneRxStates(nowUSec)
	if ins.config.EnableDeadline || ins.config.MultiIface {
		ins.pruneTxQueue(nowUSec)
	}
}

func (ins *Instance) pruneRxStates(nowUSec time.Duration) {
	var prev *rxState
	idx := ins.rxStateListHead
	for idx.Valid() {
		st := ins.rxStates.Get(idx)
		if st == nil {
			return
		}
		next := st.next
		if (nowUSec - st.lastFrameTime) > ins.config.TransferTimeout {
			ins.releaseStatePayload(st)
			if prev == nil {
				ins.rxStateListHead = next
			} else {
				prev.next = next
			}
			ins.rxStates.Free(idx)
		} else {
			prev = st
		}
		idx = next
	}
}

func (ins *Instance) pruneTxQueue(nowUSec time.Duration) {
	var prev *txQueueItem
	idx := ins.txQueueHead
	for idx.Valid() {
		item := ins.txItems.Get(idx)
		if item == nil {
			return
		}
		next := item.next

		expired := false
		if ins.config.EnableDeadline && nowUSec > time.Duration(item.frame.DeadlineUSec)*time.Microsecond {
			expired = true
		}
		if ins.config.MultiIface && item.frame.IfaceMask == 0 {
			expired = true
		}

		if expired {
			if prev == nil {
				ins.txQueueHead = next
			} else {
				prev.next = next
			}
			ins.txItems.Free(idx)
		} else {
			prev = item
		}
		idx = next
	}
}
