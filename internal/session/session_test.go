package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicedesk/voicedesk/internal/audio"
	"github.com/voicedesk/voicedesk/internal/midi"
)

// Mock implementations for testing

type mockAudioStream struct{}

func (s *mockAudioStream) Close() error { return nil }

type mockAudioDriver struct {
	fn audio.BlockFunc
}

func (d *mockAudioDriver) Available() bool { return true }

func (d *mockAudioDriver) Devices() ([]audio.Device, error) {
	return []audio.Device{{Name: "Mock Input", Default: true}}, nil
}

func (d *mockAudioDriver) OpenStream(params audio.StreamParams, fn audio.BlockFunc) (audio.InputStream, error) {
	d.fn = fn
	return &mockAudioStream{}, nil
}

func (d *mockAudioDriver) Close() error { return nil }

type mockMIDIIn struct {
	name string
	recv func(data []byte, timestampMS int32)
}

func (p *mockMIDIIn) Name() string { return p.name }
func (p *mockMIDIIn) Close() error { return nil }

type mockMIDIOut struct {
	name string
}

func (p *mockMIDIOut) Name() string           { return p.name }
func (p *mockMIDIOut) Send(data []byte) error { return nil }
func (p *mockMIDIOut) Close() error           { return nil }

type mockMIDIDriver struct {
	ins  []string
	outs []string
	in   *mockMIDIIn
}

func (d *mockMIDIDriver) Available() bool             { return true }
func (d *mockMIDIDriver) InPorts() ([]string, error)  { return d.ins, nil }
func (d *mockMIDIDriver) OutPorts() ([]string, error) { return d.outs, nil }

func (d *mockMIDIDriver) OpenIn(name string, recv func(data []byte, timestampMS int32)) (midi.InPort, error) {
	d.in = &mockMIDIIn{name: name, recv: recv}
	return d.in, nil
}

func (d *mockMIDIDriver) OpenOut(name string) (midi.OutPort, error) {
	return &mockMIDIOut{name: name}, nil
}

func (d *mockMIDIDriver) Close() error { return nil }

// emit simulates an inbound message on the open input port
func (d *mockMIDIDriver) emit(data []byte) {
	d.in.recv(data, 0)
}

type fixture struct {
	audioDrv *mockAudioDriver
	midiDrv  *mockMIDIDriver
	rec      *audio.Recorder
	mgr      *midi.Manager
	mapping  *midi.Mapping
	sess     *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	audioDrv := &mockAudioDriver{}
	rec := audio.NewRecorder(audio.RecorderConfig{
		Driver: audioDrv,
		Params: audio.StreamParams{
			SampleRate:      22050,
			Channels:        1,
			FramesPerBuffer: 512,
		},
		OutputDir: t.TempDir(),
		Logger:    zerolog.Nop(),
	})

	midiDrv := &mockMIDIDriver{ins: []string{"Pad"}}
	mgr := midi.NewManager(midiDrv, zerolog.Nop())
	mgr.Scan()

	mapping := midi.NewMapping(zerolog.Nop())
	mapping.Assign(midi.Trigger{Kind: midi.TriggerNote, Channel: 0, Number: 36}, ActionRecordToggle)

	sess := New(Config{
		Recorder: rec,
		MIDI:     mgr,
		Mapping:  mapping,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(func() { sess.Close() })

	if err := mgr.OpenInput("Pad"); err != nil {
		t.Fatalf("OpenInput failed: %v", err)
	}

	return &fixture{
		audioDrv: audioDrv,
		midiDrv:  midiDrv,
		rec:      rec,
		mgr:      mgr,
		mapping:  mapping,
		sess:     sess,
	}
}

// waitFor polls until cond holds or a second passes
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestMIDITriggeredToggle(t *testing.T) {
	f := newFixture(t)

	// Mapped pad press starts recording
	f.midiDrv.emit([]byte{0x90, 36, 127})
	waitFor(t, f.sess.IsRecording, "session should be recording after mapped note-on")

	// Deliver audio so the stop produces a file
	f.audioDrv.fn([]float32{0.1, 0.2, 0.3})

	// Second press stops and saves
	f.midiDrv.emit([]byte{0x90, 36, 127})
	waitFor(t, func() bool { return !f.sess.IsRecording() }, "session should stop after second press")
	waitFor(t, func() bool { return f.sess.LastRecording() != "" }, "recording path should be saved")
}

func TestUnmappedNoteDoesNotToggle(t *testing.T) {
	f := newFixture(t)

	f.midiDrv.emit([]byte{0x90, 40, 127})

	// Give the worker a moment; state must not change
	time.Sleep(50 * time.Millisecond)
	if f.sess.IsRecording() {
		t.Error("unmapped note must not start recording")
	}
}

func TestActiveNoteTracking(t *testing.T) {
	f := newFixture(t)

	f.midiDrv.emit([]byte{0x90, 60, 100})
	f.midiDrv.emit([]byte{0x90, 64, 100})

	notes := f.sess.ActiveNotes()
	if len(notes) != 2 || notes[0] != 60 || notes[1] != 64 {
		t.Fatalf("expected [60 64], got %v", notes)
	}

	f.midiDrv.emit([]byte{0x80, 60, 0})
	notes = f.sess.ActiveNotes()
	if len(notes) != 1 || notes[0] != 64 {
		t.Fatalf("expected [64], got %v", notes)
	}

	// Note-on with velocity 0 is a release
	f.midiDrv.emit([]byte{0x90, 64, 0})
	if notes = f.sess.ActiveNotes(); len(notes) != 0 {
		t.Fatalf("expected no active notes, got %v", notes)
	}
}

func TestStartStopRoundTrip(t *testing.T) {
	f := newFixture(t)

	if err := f.sess.StartRecording(); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	f.audioDrv.fn([]float32{0.5})

	path, err := f.sess.StopRecording()
	if err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}
	if path == "" {
		t.Fatal("expected a recording path")
	}
	if f.sess.LastRecording() != path {
		t.Errorf("LastRecording should be %q, got %q", path, f.sess.LastRecording())
	}
}

func TestLevelsIdleAreZero(t *testing.T) {
	f := newFixture(t)

	level, quality, elapsed := f.sess.Levels()
	if level != 0 || quality != 0 || elapsed != 0 {
		t.Errorf("idle levels should be zero, got %f %f %s", level, quality, elapsed)
	}
}

func TestCloseTwice(t *testing.T) {
	f := newFixture(t)

	if err := f.sess.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.sess.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
