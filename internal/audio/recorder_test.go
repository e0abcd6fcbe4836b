package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// Mock implementations for testing
type mockStream struct {
	closed bool
}

func (s *mockStream) Close() error {
	s.closed = true
	return nil
}

type mockDriver struct {
	openErr error
	fn      BlockFunc
	streams []*mockStream
}

func (d *mockDriver) Available() bool { return true }

func (d *mockDriver) Devices() ([]Device, error) {
	return []Device{{Name: "Mock Input", MaxInputChannels: 1, Default: true}}, nil
}

func (d *mockDriver) OpenStream(params StreamParams, fn BlockFunc) (InputStream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.fn = fn
	s := &mockStream{}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *mockDriver) Close() error { return nil }

// deliver simulates a driver callback with one block
func (d *mockDriver) deliver(block []float32) {
	d.fn(block)
}

func newTestRecorder(t *testing.T, driver InputDriver) *Recorder {
	t.Helper()
	return NewRecorder(RecorderConfig{
		Driver: driver,
		Params: StreamParams{
			SampleRate:      22050,
			Channels:        1,
			FramesPerBuffer: 512,
		},
		OutputDir: t.TempDir(),
		Logger:    zerolog.Nop(),
	})
}

// readWAVSamples extracts the 32-bit PCM samples from the data chunk of a WAV file.
func readWAVSamples(t *testing.T, path string) []int32 {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}

	idx := bytes.Index(data, []byte("data"))
	if idx < 0 {
		t.Fatalf("no data chunk in %s", path)
	}
	size := binary.LittleEndian.Uint32(data[idx+4 : idx+8])
	raw := data[idx+8 : idx+8+int(size)]

	samples := make([]int32, len(raw)/4)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &samples); err != nil {
		t.Fatalf("failed to decode samples: %v", err)
	}
	return samples
}

func TestCapturePreservesBlockOrder(t *testing.T) {
	driver := &mockDriver{}
	rec := newTestRecorder(t, driver)

	if err := rec.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	blocks := [][]float32{
		{0.1, 0.2},
		{0.3},
		{0.4, 0.5, 0.6},
	}
	for _, b := range blocks {
		driver.deliver(b)
	}

	path, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	var want []int32
	for _, b := range blocks {
		for _, s := range b {
			want = append(want, int32(pcm32(s)))
		}
	}

	got := readWAVSamples(t, path)
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d mismatch: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestStopClosesStreamBeforeDrain(t *testing.T) {
	driver := &mockDriver{}
	rec := newTestRecorder(t, driver)

	if err := rec.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	driver.deliver([]float32{0.5})

	if _, err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if len(driver.streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(driver.streams))
	}
	if !driver.streams[0].closed {
		t.Error("stream should be closed after Stop")
	}
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	rec := newTestRecorder(t, &mockDriver{})

	path, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop without Start should not error, got %v", err)
	}
	if path != "" {
		t.Errorf("Stop without Start should not produce a file, got %q", path)
	}
}

func TestStopTwiceIsNoOp(t *testing.T) {
	driver := &mockDriver{}
	rec := newTestRecorder(t, driver)

	if err := rec.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	driver.deliver([]float32{0.5})

	if _, err := rec.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}

	path, err := rec.Stop()
	if err != nil {
		t.Fatalf("second Stop should be a no-op, got %v", err)
	}
	if path != "" {
		t.Errorf("second Stop should not produce a file, got %q", path)
	}
}

func TestStopEmptyCapture(t *testing.T) {
	driver := &mockDriver{}
	rec := newTestRecorder(t, driver)

	if err := rec.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	path, err := rec.Stop()
	if !errors.Is(err, ErrEmptyCapture) {
		t.Fatalf("expected ErrEmptyCapture, got %v", err)
	}
	if path != "" {
		t.Errorf("empty capture should not produce a file, got %q", path)
	}
}

func TestStartWhileRecording(t *testing.T) {
	driver := &mockDriver{}
	rec := newTestRecorder(t, driver)

	if err := rec.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := rec.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}

	// The live session must be untouched
	if !rec.IsRecording() {
		t.Error("recorder should still be recording")
	}
	if len(driver.streams) != 1 {
		t.Errorf("expected 1 stream, got %d", len(driver.streams))
	}
}

func TestStartDeviceUnavailable(t *testing.T) {
	driver := &mockDriver{openErr: errors.New("device busy")}
	rec := newTestRecorder(t, driver)

	if err := rec.Start(); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if rec.IsRecording() {
		t.Error("recorder should not be recording after failed Start")
	}
}

func TestFallbackDriver(t *testing.T) {
	driver := &noopDriver{log: zerolog.Nop()}
	rec := newTestRecorder(t, driver)

	if rec.Available() {
		t.Error("fallback-backed recorder should report unavailable")
	}

	devices, err := driver.Devices()
	if err != nil {
		t.Fatalf("fallback Devices should not error, got %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("fallback should report no devices, got %d", len(devices))
	}

	if err := rec.Start(); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestCurrentLevelLatestWins(t *testing.T) {
	driver := &mockDriver{}
	rec := newTestRecorder(t, driver)

	if rec.CurrentLevel() != 0 {
		t.Error("level should be 0 before recording")
	}

	if err := rec.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	driver.deliver([]float32{0.8, -0.8})
	driver.deliver([]float32{0.2, -0.2})

	want := (math.Abs(float64(float32(0.2))) + math.Abs(float64(float32(-0.2)))) / 2
	if got := rec.CurrentLevel(); got != want {
		t.Errorf("expected latest level %f, got %f", want, got)
	}

	if _, err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if rec.CurrentLevel() != 0 {
		t.Error("level should be 0 after stopping")
	}
}

func TestElapsedDuration(t *testing.T) {
	driver := &mockDriver{}
	rec := newTestRecorder(t, driver)

	if rec.ElapsedDuration() != 0 {
		t.Error("elapsed should be 0 before recording")
	}

	if err := rec.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	driver.deliver([]float32{0.5})

	if rec.ElapsedDuration() <= 0 {
		t.Error("elapsed should be positive while recording")
	}

	if _, err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if rec.ElapsedDuration() != 0 {
		t.Error("elapsed should be 0 after stopping")
	}
}

func TestQualityScore(t *testing.T) {
	const tolerance = 1e-9

	cases := []struct {
		level float64
		want  float64
	}{
		{0.0, 0.0},
		{0.05, 0.5},
		{0.1, 1.0},
		{0.5, 1.0},
		{0.9, 1.0},
		{0.95, 0.5},
		{1.0, 0.0},
		{-0.5, 0.0}, // clamped
		{1.5, 0.0},  // clamped
	}

	for _, tc := range cases {
		if got := qualityScore(tc.level); math.Abs(got-tc.want) > tolerance {
			t.Errorf("qualityScore(%f) = %f, want %f", tc.level, got, tc.want)
		}
	}
}

func TestQualityEstimateIdleIsZero(t *testing.T) {
	rec := newTestRecorder(t, &mockDriver{})
	if got := rec.QualityEstimate(); got != 0 {
		t.Errorf("idle quality should be 0, got %f", got)
	}
}
