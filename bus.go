package canard

import "fmt"

// FrameListener receives frames off a Bus as they arrive. Instance
// implements FrameListener so it can be wired directly to a Bus via
// Subscribe.
type FrameListener interface {
	Handle(frame Frame)
}

// Bus abstracts a CAN transport: a physical adapter, a virtual/loopback
// bus for tests, or a bridge to some other process. The engine itself
// never depends on a concrete Bus implementation; callers wire one in.
type Bus interface {
	Connect(...any) error
	Disconnect() error
	Send(frame Frame) error
	Subscribe(listener FrameListener) error
}

// NewInterfaceFunc constructs a Bus for a named transport, given a
// transport-specific channel string (e.g. "can0", "vcan0",
// "localhost:18000").
type NewInterfaceFunc func(channel string) (Bus, error)

var interfaceRegistry = map[string]NewInterfaceFunc{}

// RegisterInterface makes a transport available to NewBus under name. Bus
// implementations call this from an init() function, the way
// pkg/can/virtual registers itself.
func RegisterInterface(name string, constructor NewInterfaceFunc) {
	interfaceRegistry[name] = constructor
}

// NewBus constructs a Bus for a registered transport name.
func NewBus(name string, channel string) (Bus, error) {
	constructor, ok := interfaceRegistry[name]
	if !ok {
		return nil, fmt.Errorf("canard: no interface registered under name %q", name)
	}
	return constructor(channel)
}
