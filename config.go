package canard

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/canardgo/canard/internal/pool"
)

// Default timeout constants from spec.md §5. The original C implementation
// hard-codes these; here they are instance-level configuration with these
// values as defaults (spec.md §9, "Timeouts as constants").
const (
	DefaultTransferTimeout   = 2 * time.Second
	DefaultIfaceSwitchDelay  = 1 * time.Second
	DefaultMTU               = 8  // Classic CAN payload bytes
	DefaultCANFDMTU          = 64 // CAN FD payload bytes
	DefaultRxStatePoolShare  = 0.5
	DefaultBufferBlockShare  = 0.4
	DefaultTxQueuePoolShare  = 0.1
)

// Config carries the instance's build-time capability flags and runtime
// tunables. The original C implementation selects most of these at compile
// time via preprocessor guards (spec.md §6, "Build-time configuration");
// here they are ordinary fields defaulted by NewInstance and overridden with
// functional options, the way the teacher's configuration types are built
// up incrementally.
type Config struct {
	// Logger receives structured engine diagnostics. Nil defaults to
	// logrus.StandardLogger().
	Logger *logrus.Logger

	// TransferTimeout is how long an rx state may sit idle before the
	// janitor reclaims it.
	TransferTimeout time.Duration
	// IfaceSwitchDelay is the minimum idle time before an rx state may
	// restart on a different interface than the one it was tracking.
	IfaceSwitchDelay time.Duration

	// CANFD enables CAN FD frames (up to 64 data bytes, legal DLC rounding
	// beyond 8 bytes) instead of Classic CAN's fixed 8-byte frames.
	CANFD bool
	// TAODisabled turns off the tail-array-optimization DSDL encoding rule;
	// carried as an instance flag rather than compiled out.
	TAODisabled bool
	// EnableDeadline turns on deadline-usec tracking and pruning for tx
	// queue items.
	EnableDeadline bool
	// MultiIface turns on interface-mask tracking and pruning for tx queue
	// items.
	MultiIface bool
	// WordAddressing16 targets hosts where the arena is only addressable in
	// 16-bit words; it does not change any exported behavior here but is
	// threaded through for parity with the C capability surface.
	WordAddressing16 bool

	// RxStatePoolCapacity, BufferBlockPoolCapacity and TxQueuePoolCapacity
	// size the three typed arenas backing the engine (internal/pool.Pool
	// per spec.md §9's "typed arena per category"). When all three are zero
	// they are computed from PoolCapacity using the Default*Share constants;
	// otherwise each is used as given, zero included.
	RxStatePoolCapacity    int
	BufferBlockPoolCapacity int
	TxQueuePoolCapacity    int

	// PoolCapacity is the total number of blocks across all three arenas,
	// used to derive the per-category capacities above when they are left
	// at zero. Capped at pool.MaxCapacity per spec.md §4.1.
	PoolCapacity int

	// Locker, when set, is installed on all three arenas and taken around
	// instance-level list mutations (spec.md §5, "thread-safety contract").
	// Nil (the default) means the instance is not safe for concurrent use.
	Locker pool.Locker
}

// Option configures a Config constructed by NewInstance.
type Option func(*Config)

// WithLogger installs a structured logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithTransferTimeout overrides the rx-state staleness timeout.
func WithTransferTimeout(d time.Duration) Option {
	return func(c *Config) { c.TransferTimeout = d }
}

// WithIfaceSwitchDelay overrides the minimum idle time before an interface
// switch is honored.
func WithIfaceSwitchDelay(d time.Duration) Option {
	return func(c *Config) { c.IfaceSwitchDelay = d }
}

// WithCANFD enables CAN FD framing.
func WithCANFD(enabled bool) Option {
	return func(c *Config) { c.CANFD = enabled }
}

// WithTAODisabled turns off tail-array optimization.
func WithTAODisabled(disabled bool) Option {
	return func(c *Config) { c.TAODisabled = disabled }
}

// WithDeadlineTracking turns on tx queue deadline pruning.
func WithDeadlineTracking(enabled bool) Option {
	return func(c *Config) { c.EnableDeadline = enabled }
}

// WithMultiIface turns on tx queue interface-mask pruning.
func WithMultiIface(enabled bool) Option {
	return func(c *Config) { c.MultiIface = enabled }
}

// WithWordAddressing16 flags a 16-bit-word-addressable target.
func WithWordAddressing16(enabled bool) Option {
	return func(c *Config) { c.WordAddressing16 = enabled }
}

// WithPoolCapacity sets the total block count shared across the three
// typed arenas, apportioned by the Default*Share constants.
func WithPoolCapacity(blocks int) Option {
	return func(c *Config) { c.PoolCapacity = blocks }
}

// WithPoolCapacities sets each typed arena's capacity explicitly, bypassing
// the default apportionment.
func WithPoolCapacities(rxStates, bufferBlocks, txItems int) Option {
	return func(c *Config) {
		c.RxStatePoolCapacity = rxStates
		c.BufferBlockPoolCapacity = bufferBlocks
		c.TxQueuePoolCapacity = txItems
	}
}

// WithLocker installs a mutex hook shared by all three arenas and the
// instance's own list mutations, making the instance safe for concurrent
// use.
func WithLocker(locker pool.Locker) Option {
	return func(c *Config) { c.Locker = locker }
}

func defaultConfig() Config {
	return Config{
		TransferTimeout:  DefaultTransferTimeout,
		IfaceSwitchDelay: DefaultIfaceSwitchDelay,
		PoolCapacity:     256,
	}
}

func (c *Config) apportionPools() {
	if c.RxStatePoolCapacity == 0 && c.BufferBlockPoolCapacity == 0 && c.TxQueuePoolCapacity == 0 {
		total := c.PoolCapacity
		c.RxStatePoolCapacity = int(float64(total) * DefaultRxStatePoolShare)
		c.BufferBlockPoolCapacity = int(float64(total) * DefaultBufferBlockShare)
		c.TxQueuePoolCapacity = total - c.RxStatePoolCapacity - c.BufferBlockPoolCapacity
	}
}

func (c *Config) mtu() int {
	if c.CANFD {
		return DefaultCANFDMTU
	}
	return DefaultMTU
}

func (c *Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}
