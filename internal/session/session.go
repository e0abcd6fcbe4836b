package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicedesk/voicedesk/internal/audio"
	"github.com/voicedesk/voicedesk/internal/midi"
)

// Action names a Mapping can bind to session behavior.
const (
	ActionRecordToggle = "record:toggle"
	ActionRecordStart  = "record:start"
	ActionRecordStop   = "record:stop"
)

type Config struct {
	Recorder *audio.Recorder
	MIDI     *midi.Manager
	Mapping  *midi.Mapping // optional
	Logger   zerolog.Logger
}

// Session ties the capture engine and the MIDI device manager together: it
// tracks held notes from the open input port and lets mapped MIDI triggers
// drive recording. Mapped actions are applied on a worker goroutine, never on
// the driver's dispatch thread.
type Session struct {
	rec     *audio.Recorder
	midi    *midi.Manager
	mapping *midi.Mapping
	log     zerolog.Logger

	mu          sync.Mutex
	lastPath    string
	activeNotes map[uint8]struct{}

	actions   chan string
	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) *Session {
	s := &Session{
		rec:         cfg.Recorder,
		midi:        cfg.MIDI,
		mapping:     cfg.Mapping,
		log:         cfg.Logger,
		activeNotes: make(map[uint8]struct{}),
		actions:     make(chan string, 8),
		done:        make(chan struct{}),
	}

	s.midi.Register(s)
	if s.mapping != nil {
		s.mapping.SetHandler(s.onAction)
		s.midi.Register(s.mapping)
	}

	go s.run()
	return s
}

// onAction runs on the MIDI dispatch thread; it only hands the action off.
func (s *Session) onAction(action string, value uint8) {
	select {
	case s.actions <- action:
	case <-s.done:
	default:
		s.log.Warn().Str("action", action).Msg("Action queue full, dropping")
	}
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case action := <-s.actions:
			s.apply(action)
		}
	}
}

func (s *Session) apply(action string) {
	switch action {
	case ActionRecordToggle:
		if s.rec.IsRecording() {
			s.stopRecording()
		} else {
			s.startRecording()
		}
	case ActionRecordStart:
		s.startRecording()
	case ActionRecordStop:
		s.stopRecording()
	default:
		s.log.Debug().Str("action", action).Msg("Unhandled action")
	}
}

// StartRecording starts a capture session.
func (s *Session) StartRecording() error {
	if err := s.rec.Start(); err != nil {
		return err
	}
	return nil
}

// StopRecording stops the capture session and returns the recording path.
// Stopping an idle session returns "" with no error.
func (s *Session) StopRecording() (string, error) {
	path, err := s.rec.Stop()
	if err != nil {
		return "", err
	}
	if path != "" {
		s.mu.Lock()
		s.lastPath = path
		s.mu.Unlock()
	}
	return path, nil
}

func (s *Session) startRecording() {
	if err := s.StartRecording(); err != nil {
		s.log.Error().Err(err).Msg("MIDI-triggered start failed")
	}
}

func (s *Session) stopRecording() {
	if _, err := s.StopRecording(); err != nil {
		if errors.Is(err, audio.ErrEmptyCapture) {
			s.log.Warn().Msg("MIDI-triggered stop discarded an empty capture")
			return
		}
		s.log.Error().Err(err).Msg("MIDI-triggered stop failed")
	}
}

// OnMessage tracks held notes from inbound MIDI. A note-on with velocity zero
// counts as a note-off.
func (s *Session) OnMessage(ev midi.Event) {
	if len(ev.Data) < 3 {
		return
	}
	status := ev.Data[0] & 0xF0
	note := ev.Data[1]

	s.mu.Lock()
	defer s.mu.Unlock()
	switch status {
	case 0x90:
		if ev.Data[2] > 0 {
			s.activeNotes[note] = struct{}{}
		} else {
			delete(s.activeNotes, note)
		}
	case 0x80:
		delete(s.activeNotes, note)
	}
}

// ActiveNotes returns the currently held MIDI notes in ascending order.
func (s *Session) ActiveNotes() []uint8 {
	s.mu.Lock()
	notes := make([]uint8, 0, len(s.activeNotes))
	for n := range s.activeNotes {
		notes = append(notes, n)
	}
	s.mu.Unlock()

	sort.Slice(notes, func(i, j int) bool { return notes[i] < notes[j] })
	return notes
}

// IsRecording reports whether a capture session is live.
func (s *Session) IsRecording() bool {
	return s.rec.IsRecording()
}

// LastRecording returns the path of the most recently saved capture, or "".
func (s *Session) LastRecording() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPath
}

// Levels returns the meter readings for the live session: level, quality
// score and elapsed duration. All zero when idle.
func (s *Session) Levels() (level, quality float64, elapsed time.Duration) {
	return s.rec.CurrentLevel(), s.rec.QualityEstimate(), s.rec.ElapsedDuration()
}

// Close detaches from the MIDI manager, closes its ports and stops any live
// capture. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.midi.Unregister(s)
		if s.mapping != nil {
			s.midi.Unregister(s.mapping)
		}
		close(s.done)

		s.midi.CloseInput()
		s.midi.CloseOutput()

		if s.rec.IsRecording() {
			if _, err := s.rec.Stop(); err != nil && !errors.Is(err, audio.ErrEmptyCapture) {
				s.log.Error().Err(err).Msg("Failed to stop recording on close")
			}
		}
	})
	return nil
}
