package canard

import (
	"github.com/sirupsen/logrus"

	"github.com/canardgo/canard/internal/pool"
)

// Instance is the engine: one local node's view of the bus, owning the
// pool allocator, the rx-state list, and the tx queue. All mutable state
// is confined to the Instance the way spec.md §5 requires; the zero value
// is not usable — construct with NewInstance.
type Instance struct {
	config Config
	logger *logrus.Logger

	localNodeID uint8

	acceptFn  AcceptFunc
	receiveFn ReceiveFunc

	// UserData is the opaque reference spec.md §3 calls "opaque user
	// reference", stashed here rather than threaded through every call.
	UserData any

	rxStates     *pool.Pool[rxState]
	bufferBlocks *pool.Pool[bufferBlock]
	txItems      *pool.Pool[txQueueItem]

	rxStateListHead pool.Index
	txQueueHead     pool.Index

	locker pool.Locker
}

// NewInstance constructs an Instance. acceptFn and receiveFn are the two
// callbacks named in spec.md §6 ("Initialization"); userData is stashed
// as UserData. Options override the defaults set by defaultConfig.
func NewInstance(acceptFn AcceptFunc, receiveFn ReceiveFunc, userData any, opts ...Option) *Instance {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.apportionPools()

	locker := cfg.Locker
	if locker == nil {
		locker = noopInstanceLocker{}
	}

	inst := &Instance{
		config:      cfg,
		logger:      cfg.logger(),
		acceptFn:    acceptFn,
		receiveFn:   receiveFn,
		UserData:    userData,
		rxStates:    pool.New[rxState](cfg.RxStatePoolCapacity),
		bufferBlocks: pool.New[bufferBlock](cfg.BufferBlockPoolCapacity),
		txItems:     pool.New[txQueueItem](cfg.TxQueuePoolCapacity),
		locker:      locker,
	}
	if cfg.Locker != nil {
		inst.rxStates.SetLocker(cfg.Locker)
		inst.bufferBlocks.SetLocker(cfg.Locker)
		inst.txItems.SetLocker(cfg.Locker)
	}
	return inst
}

type noopInstanceLocker struct{}

func (noopInstanceLocker) Lock()   {}
func (noopInstanceLocker) Unlock() {}

// SetLocalNodeID is one-shot (spec.md §6): a valid id (1..127) is accepted
// only while the instance is still anonymous/broadcast.
func (ins *Instance) SetLocalNodeID(id uint8) error {
	ins.locker.Lock()
	defer ins.locker.Unlock()

	if id == BroadcastNodeID || id > 127 {
		return ErrInvalidArgument
	}
	if ins.localNodeID != BroadcastNodeID {
		return ErrInvalidArgument
	}
	ins.localNodeID = id
	return nil
}

// GetLocalNodeID returns the current node id, or BroadcastNodeID (0) if
// anonymous.
func (ins *Instance) GetLocalNodeID() uint8 {
	return ins.localNodeID
}

// ForgetLocalNodeID resets the instance back to anonymous/broadcast,
// recovered from original_source/canard.c's canardForgetLocalNodeID
// (spec.md's distillation dropped this operation; SPEC_FULL.md §6 restores
// it).
func (ins *Instance) ForgetLocalNodeID() {
	ins.locker.Lock()
	defer ins.locker.Unlock()
	ins.localNodeID = BroadcastNodeID
}

// Stats reports the combined pool statistics across all three arenas, the
// Go counterpart of canardGetPoolAllocatorStatistics generalized to three
// typed arenas (spec.md §9's "typed arena per category").
type Stats struct {
	RxStates     pool.Stats
	BufferBlocks pool.Stats
	TxItems      pool.Stats
}

// Stats returns a snapshot of the instance's allocator usage.
func (ins *Instance) Stats() Stats {
	return Stats{
		RxStates:     ins.rxStates.Stats(),
		BufferBlocks: ins.bufferBlocks.Stats(),
		TxItems:      ins.txItems.Stats(),
	}
}

// Handle implements FrameListener, so an Instance can be wired directly to
// a Bus via Subscribe. It stamps the frame with the current wall-clock
// time and logs (rather than returns) any rejection, since FrameListener
// has no error return.
func (ins *Instance) Handle(frame Frame) {
	if err := ins.HandleRxFrame(frame, nowMicros()); err != nil {
		ins.logger.WithError(err).WithField("id", frame.ID).Debug("frame rejected")
	}
}
