package midi

import (
	"errors"
	"time"
)

// Errors returned by the device manager.
var (
	// ErrPortNotFound means the requested name was absent from the most
	// recent scan. The currently open port, if any, is left untouched.
	ErrPortNotFound = errors.New("midi: port not found")

	// ErrNoActiveOutput is returned by Send when no output port is open.
	ErrNoActiveOutput = errors.New("midi: no active output port")
)

// Event is one inbound MIDI message: raw bytes (status byte plus data bytes),
// opaque to this layer, with the driver-reported timestamp.
type Event struct {
	Data      []byte
	Timestamp time.Duration
}

// Observer receives inbound MIDI events. Registration uses the interface
// value as identity, so observers must be comparable (pointers are).
type Observer interface {
	OnMessage(Event)
}

// ObserverFunc adapts a function to the Observer interface. Note that each
// ObserverFunc value has its own identity; registering the same function
// twice through two ObserverFunc values counts as two observers.
type ObserverFunc func(Event)

func (f ObserverFunc) OnMessage(ev Event) { f(ev) }

// Driver is the platform MIDI binding. Two implementations exist: the rtmidi
// binding and a no-op fallback used when the native driver cannot be
// initialized. NewDriver picks one at construction; the Manager never
// branches on hardware presence itself.
type Driver interface {
	// Available reports whether a real driver backs this binding.
	Available() bool

	// InPorts and OutPorts enumerate ports fresh on every call. Indices are
	// not stable across calls; ports are identified by name.
	InPorts() ([]string, error)
	OutPorts() ([]string, error)

	// OpenIn opens the named input port and attaches recv as the hardware
	// callback. recv runs on a driver-owned thread.
	OpenIn(name string, recv func(data []byte, timestampMS int32)) (InPort, error)

	// OpenOut opens the named output port.
	OpenOut(name string) (OutPort, error)

	// Close releases the driver itself.
	Close() error
}

// InPort is an open input port. Close detaches the callback before releasing
// the OS handle; no callback is in flight once it returns.
type InPort interface {
	Name() string
	Close() error
}

// OutPort is an open output port.
type OutPort interface {
	Name() string
	Send(data []byte) error
	Close() error
}
