package midi

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager discovers MIDI ports, owns at most one open input and one open
// output handle, fans inbound messages out to registered observers and sends
// outbound messages on the active output. Construct one per application
// context and inject it; there is no process-wide instance.
type Manager struct {
	driver Driver
	log    zerolog.Logger

	// portMu guards the cached scan results.
	portMu  sync.Mutex
	inputs  []string
	outputs []string

	// inMu and outMu serialize open/close per direction. The directions are
	// independent and may be locked separately.
	inMu sync.Mutex
	in   InPort

	outMu sync.Mutex
	out   OutPort

	obsMu     sync.Mutex
	observers map[Observer]struct{}
}

// NewManager creates a device manager over the given driver.
func NewManager(driver Driver, log zerolog.Logger) *Manager {
	return &Manager{
		driver:    driver,
		log:       log,
		observers: make(map[Observer]struct{}),
	}
}

// Scan queries the driver for available ports and replaces the cached lists
// wholesale. Hardware absence is never an error: the lists come back empty
// and a degraded-mode notice is logged.
func (m *Manager) Scan() {
	ins, err := m.driver.InPorts()
	if err != nil {
		m.log.Warn().Err(err).Msg("MIDI input scan failed, continuing without inputs")
		ins = nil
	}
	outs, err := m.driver.OutPorts()
	if err != nil {
		m.log.Warn().Err(err).Msg("MIDI output scan failed, continuing without outputs")
		outs = nil
	}

	m.portMu.Lock()
	m.inputs = ins
	m.outputs = outs
	m.portMu.Unlock()

	m.log.Info().
		Int("inputs", len(ins)).
		Int("outputs", len(outs)).
		Msg("MIDI ports scanned")
}

// InputPorts returns the input port names from the most recent Scan.
func (m *Manager) InputPorts() []string {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	return append([]string(nil), m.inputs...)
}

// OutputPorts returns the output port names from the most recent Scan.
func (m *Manager) OutputPorts() []string {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	return append([]string(nil), m.outputs...)
}

// OpenInput opens the named input port and attaches the manager's dispatch
// routine as its callback. A name absent from the latest Scan fails with
// ErrPortNotFound and leaves any open port untouched. An already open input
// is closed first, so at most one input handle is ever active.
func (m *Manager) OpenInput(name string) error {
	m.inMu.Lock()
	defer m.inMu.Unlock()

	m.portMu.Lock()
	known := contains(m.inputs, name)
	m.portMu.Unlock()
	if !known {
		return fmt.Errorf("%w: input %q", ErrPortNotFound, name)
	}

	if m.in != nil {
		m.closeInputLocked()
	}

	port, err := m.driver.OpenIn(name, m.dispatch)
	if err != nil {
		return fmt.Errorf("failed to open input %q: %w", name, err)
	}
	m.in = port

	m.log.Info().Str("port", name).Msg("MIDI input opened")
	return nil
}

// OpenOutput opens the named output port. Same contract as OpenInput.
func (m *Manager) OpenOutput(name string) error {
	m.outMu.Lock()
	defer m.outMu.Unlock()

	m.portMu.Lock()
	known := contains(m.outputs, name)
	m.portMu.Unlock()
	if !known {
		return fmt.Errorf("%w: output %q", ErrPortNotFound, name)
	}

	if m.out != nil {
		m.closeOutputLocked()
	}

	port, err := m.driver.OpenOut(name)
	if err != nil {
		return fmt.Errorf("failed to open output %q: %w", name, err)
	}
	m.out = port

	m.log.Info().Str("port", name).Msg("MIDI output opened")
	return nil
}

// CloseInput closes the active input port. Returns false, without fault, when
// nothing is open; safe to call redundantly. The callback is detached before
// the handle is released, so no dispatch is in flight once it returns.
func (m *Manager) CloseInput() bool {
	m.inMu.Lock()
	defer m.inMu.Unlock()
	return m.closeInputLocked()
}

func (m *Manager) closeInputLocked() bool {
	if m.in == nil {
		return false
	}
	name := m.in.Name()
	if err := m.in.Close(); err != nil {
		m.log.Error().Err(err).Str("port", name).Msg("Failed to close MIDI input")
	}
	m.in = nil
	m.log.Info().Str("port", name).Msg("MIDI input closed")
	return true
}

// CloseOutput closes the active output port. Same contract as CloseInput.
func (m *Manager) CloseOutput() bool {
	m.outMu.Lock()
	defer m.outMu.Unlock()
	return m.closeOutputLocked()
}

func (m *Manager) closeOutputLocked() bool {
	if m.out == nil {
		return false
	}
	name := m.out.Name()
	if err := m.out.Close(); err != nil {
		m.log.Error().Err(err).Str("port", name).Msg("Failed to close MIDI output")
	}
	m.out = nil
	m.log.Info().Str("port", name).Msg("MIDI output closed")
	return true
}

// ActiveInput returns the name of the open input port, or "".
func (m *Manager) ActiveInput() string {
	m.inMu.Lock()
	defer m.inMu.Unlock()
	if m.in == nil {
		return ""
	}
	return m.in.Name()
}

// ActiveOutput returns the name of the open output port, or "".
func (m *Manager) ActiveOutput() string {
	m.outMu.Lock()
	defer m.outMu.Unlock()
	if m.out == nil {
		return ""
	}
	return m.out.Name()
}

// Send forwards a raw MIDI message to the active output port. It never
// buffers; pacing is the caller's responsibility. Fails with
// ErrNoActiveOutput when nothing is open.
func (m *Manager) Send(data []byte) error {
	m.outMu.Lock()
	defer m.outMu.Unlock()

	if m.out == nil {
		return ErrNoActiveOutput
	}
	if err := m.out.Send(data); err != nil {
		return fmt.Errorf("failed to send MIDI message: %w", err)
	}
	m.log.Debug().Hex("data", data).Msg("MIDI message sent")
	return nil
}

// Register adds an observer for inbound MIDI events. Registering the same
// observer twice is a no-op: each observer is invoked exactly once per event.
func (m *Manager) Register(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers[o] = struct{}{}
}

// Unregister removes an observer. Unknown observers are ignored.
func (m *Manager) Unregister(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	delete(m.observers, o)
}

// IsAvailable reports whether a real MIDI driver backs this manager. In
// degraded mode all scans return empty lists and all opens fail.
func (m *Manager) IsAvailable() bool {
	return m.driver.Available()
}

// dispatch runs on the driver's thread for every inbound message. Each
// observer is invoked exactly once; a panicking observer is logged and does
// not prevent the rest from running, nor does it unwind into driver code.
func (m *Manager) dispatch(data []byte, timestampMS int32) {
	m.obsMu.Lock()
	obs := make([]Observer, 0, len(m.observers))
	for o := range m.observers {
		obs = append(obs, o)
	}
	m.obsMu.Unlock()

	ev := Event{
		Data:      data,
		Timestamp: time.Duration(timestampMS) * time.Millisecond,
	}
	for _, o := range obs {
		m.notify(o, ev)
	}
}

func (m *Manager) notify(o Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("MIDI observer fault")
		}
	}()
	o.OnMessage(ev)
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
