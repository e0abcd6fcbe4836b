package audio

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// RecorderConfig carries the injected dependencies for a Recorder.
type RecorderConfig struct {
	Driver    InputDriver
	Params    StreamParams
	OutputDir string
	Logger    zerolog.Logger
}

// Recorder owns one input audio stream at a time. Blocks delivered by the
// driver callback are queued in arrival order; Stop drains the queue into a
// single WAV file. A single-slot level cell feeds the live meter.
type Recorder struct {
	driver InputDriver
	params StreamParams
	outDir string
	log    zerolog.Logger

	// mu serializes Start/Stop. The driver callback never takes it: the
	// stream close inside Stop waits for the callback to quiesce, and the
	// callback taking mu would deadlock against that.
	mu     sync.Mutex
	stream InputStream

	// qmu guards the frame queue only. Held briefly by the callback for the
	// append; Stop drains only after the stream is closed.
	qmu    sync.Mutex
	blocks [][]float32

	recording atomic.Bool
	startNano atomic.Int64
	level     atomic.Uint64 // float64 bits, latest block's mean absolute amplitude
}

// NewRecorder creates a capture engine over the given driver.
func NewRecorder(cfg RecorderConfig) *Recorder {
	return &Recorder{
		driver: cfg.Driver,
		params: cfg.Params,
		outDir: cfg.OutputDir,
		log:    cfg.Logger,
	}
}

// Start opens the input stream and begins queueing delivered blocks.
// Returns ErrAlreadyRecording while a session is live; a restart requires an
// explicit Stop first. Returns ErrDeviceUnavailable when no input device can
// be opened.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording.Load() {
		return ErrAlreadyRecording
	}

	r.qmu.Lock()
	r.blocks = nil
	r.qmu.Unlock()
	r.level.Store(0)

	stream, err := r.driver.OpenStream(r.params, r.deliver)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	r.stream = stream
	r.startNano.Store(time.Now().UnixNano())
	r.recording.Store(true)

	r.log.Info().
		Int("sample_rate", r.params.SampleRate).
		Int("channels", r.params.Channels).
		Msg("Recording started")
	return nil
}

// deliver is the driver callback. It runs on the driver's real-time thread:
// one copy, one short append, one atomic store. Panics are contained here so
// they never unwind into driver-owned code.
func (r *Recorder) deliver(block []float32) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("Audio callback fault")
		}
	}()

	if len(block) == 0 {
		return
	}

	buf := make([]float32, len(block))
	copy(buf, block)

	r.qmu.Lock()
	r.blocks = append(r.blocks, buf)
	r.qmu.Unlock()

	var sum float64
	for _, s := range buf {
		sum += math.Abs(float64(s))
	}
	r.level.Store(math.Float64bits(sum / float64(len(buf))))
}

// Stop halts the stream, drains the queue and persists the capture as a WAV
// file, returning its path. Calling Stop when not recording is a no-op.
// A session with zero delivered blocks fails with ErrEmptyCapture and writes
// no file.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording.Load() {
		return "", nil
	}

	r.recording.Store(false)
	r.level.Store(0)

	// Closing the stream blocks until no callback is in flight, so the drain
	// below sees the final, complete queue.
	if r.stream != nil {
		if err := r.stream.Close(); err != nil {
			r.log.Error().Err(err).Msg("Failed to close audio stream")
		}
		r.stream = nil
	}

	r.qmu.Lock()
	blocks := r.blocks
	r.blocks = nil
	r.qmu.Unlock()

	if len(blocks) == 0 {
		r.log.Warn().Msg("Recording stopped with no audio captured")
		return "", ErrEmptyCapture
	}

	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	samples := make([]float32, 0, total)
	for _, b := range blocks {
		samples = append(samples, b...)
	}

	path := filepath.Join(r.outDir,
		"recording_"+time.Now().Format("20060102_150405")+".wav")
	if err := writeWAV(path, samples, r.params.SampleRate, r.params.Channels); err != nil {
		return "", fmt.Errorf("failed to persist recording: %w", err)
	}

	r.log.Info().
		Str("path", path).
		Int("samples", total).
		Msg("Recording saved")
	return path, nil
}

// IsRecording reports whether a capture session is live.
func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

// Available reports whether a real audio driver backs this recorder.
func (r *Recorder) Available() bool {
	return r.driver.Available()
}

// CurrentLevel returns the latest block's mean absolute amplitude, or 0 when
// not recording. Lock-free; a slightly stale read is fine for a meter.
func (r *Recorder) CurrentLevel() float64 {
	if !r.recording.Load() {
		return 0
	}
	return math.Float64frombits(r.level.Load())
}

// ElapsedDuration returns wall-clock time since Start, 0 when not recording.
func (r *Recorder) ElapsedDuration() time.Duration {
	if !r.recording.Load() {
		return 0
	}
	return time.Duration(time.Now().UnixNano() - r.startNano.Load())
}

// QualityEstimate scores the current level in [0,1]. A signal is usable in a
// wide flat band; too quiet (under-driven mic) or too loud (clipping) both
// degrade the score linearly. Advisory only, never errors.
func (r *Recorder) QualityEstimate() float64 {
	if !r.recording.Load() {
		return 0
	}
	return qualityScore(r.CurrentLevel())
}

func qualityScore(level float64) float64 {
	var quality float64
	switch {
	case level < 0.1:
		quality = level * 10
	case level > 0.9:
		quality = 1.0 - (level-0.9)*10
	default:
		quality = 1.0
	}
	return math.Max(0.0, math.Min(1.0, quality))
}
