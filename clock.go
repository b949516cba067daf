package canard

import "time"

// nowMicros returns the current time as a microsecond duration since the
// Unix epoch, the timestamp unit spec.md §5 and §6 use throughout
// (handle_rx_frame's timestamp_usec, cleanup_stale_transfers' now_usec).
func nowMicros() time.Duration {
	return time.Duration(time.Now().UnixMicro()) * time.Microsecond
}
