package midi

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// TriggerKind distinguishes the MIDI message families a Mapping can bind.
type TriggerKind string

const (
	TriggerNote          TriggerKind = "note"
	TriggerControlChange TriggerKind = "cc"
	TriggerProgramChange TriggerKind = "pc"
)

// Trigger identifies one bindable MIDI control.
type Trigger struct {
	Kind    TriggerKind `json:"kind"`
	Channel uint8       `json:"channel"`
	Number  uint8       `json:"number"`
}

type mappingEntry struct {
	Trigger
	Action string `json:"action"`
}

// Mapping binds MIDI triggers to named application actions. It implements
// Observer, so it plugs directly into a Manager: a note-on, control change or
// program change matching an assigned trigger invokes the handler with the
// action name and the control value. Learn mode captures the next trigger for
// a pending action instead.
type Mapping struct {
	log zerolog.Logger

	mu      sync.Mutex
	actions map[Trigger]string
	learn   string // action awaiting a trigger, "" when idle
	handler func(action string, value uint8)
}

// NewMapping creates an empty mapping table.
func NewMapping(log zerolog.Logger) *Mapping {
	return &Mapping{
		log:     log,
		actions: make(map[Trigger]string),
	}
}

// SetHandler installs the function invoked when a bound trigger fires.
func (m *Mapping) SetHandler(fn func(action string, value uint8)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// Assign binds a trigger to an action, replacing any previous binding.
func (m *Mapping) Assign(t Trigger, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[t] = action
}

// Clear removes one binding.
func (m *Mapping) Clear(t Trigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actions, t)
}

// ClearAll removes every binding.
func (m *Mapping) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = make(map[Trigger]string)
}

// ActionFor looks up the action bound to a trigger.
func (m *Mapping) ActionFor(t Trigger) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	action, ok := m.actions[t]
	return action, ok
}

// StartLearn arms learn mode: the next decodable trigger is bound to action.
func (m *Mapping) StartLearn(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learn = action
}

// StopLearn disarms learn mode without binding anything.
func (m *Mapping) StopLearn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learn = ""
}

// Learning returns the action awaiting a trigger, or "".
func (m *Mapping) Learning() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.learn
}

// OnMessage decodes an inbound event and either completes a pending learn or
// fires the bound action. Unbound or undecodable messages are ignored.
func (m *Mapping) OnMessage(ev Event) {
	t, value, ok := decodeTrigger(ev.Data)
	if !ok {
		return
	}

	m.mu.Lock()
	if m.learn != "" {
		m.actions[t] = m.learn
		learned := m.learn
		m.learn = ""
		m.mu.Unlock()
		m.log.Info().
			Str("action", learned).
			Str("kind", string(t.Kind)).
			Uint8("number", t.Number).
			Msg("MIDI trigger learned")
		return
	}
	action, bound := m.actions[t]
	handler := m.handler
	m.mu.Unlock()

	if bound && handler != nil {
		handler(action, value)
	}
}

// decodeTrigger extracts the bindable trigger from a raw message. Note-on
// with velocity zero is a note-off in disguise and does not fire. Note-off
// itself does not fire either; bindings act on presses.
func decodeTrigger(data []byte) (Trigger, uint8, bool) {
	if len(data) < 2 {
		return Trigger{}, 0, false
	}
	status := data[0] & 0xF0
	channel := data[0] & 0x0F

	switch status {
	case 0x90: // note on
		if len(data) < 3 || data[2] == 0 {
			return Trigger{}, 0, false
		}
		return Trigger{Kind: TriggerNote, Channel: channel, Number: data[1]}, data[2], true
	case 0xB0: // control change
		if len(data) < 3 {
			return Trigger{}, 0, false
		}
		return Trigger{Kind: TriggerControlChange, Channel: channel, Number: data[1]}, data[2], true
	case 0xC0: // program change
		return Trigger{Kind: TriggerProgramChange, Channel: channel, Number: data[1]}, 0, true
	}
	return Trigger{}, 0, false
}

// Load replaces the table with the bindings stored at path. A missing file
// leaves the table empty and is not an error.
func (m *Mapping) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var entries []mappingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = make(map[Trigger]string, len(entries))
	for _, e := range entries {
		m.actions[e.Trigger] = e.Action
	}
	return nil
}

// Save writes the bindings to path as JSON.
func (m *Mapping) Save(path string) error {
	m.mu.Lock()
	entries := make([]mappingEntry, 0, len(m.actions))
	for t, action := range m.actions {
		entries = append(entries, mappingEntry{Trigger: t, Action: action})
	}
	m.mu.Unlock()

	// Stable order keeps the file diffable.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		if entries[i].Channel != entries[j].Channel {
			return entries[i].Channel < entries[j].Channel
		}
		return entries[i].Number < entries[j].Number
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
