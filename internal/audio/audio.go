package audio

import "errors"

// Errors returned by the capture engine.
var (
	// ErrDeviceUnavailable means no input device could be acquired, either
	// because the requested device does not exist or because the audio
	// driver itself is missing.
	ErrDeviceUnavailable = errors.New("audio: no input device available")

	// ErrAlreadyRecording is returned by Start while a session is live.
	// The engine never stops a live stream implicitly; callers that want a
	// restart must Stop first.
	ErrAlreadyRecording = errors.New("audio: already recording")

	// ErrEmptyCapture is returned by Stop when no blocks were delivered.
	// Zero-duration recordings produce no file.
	ErrEmptyCapture = errors.New("audio: no audio captured")
)

// Device represents an audio input device
type Device struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
}

// StreamParams fixes the format of an input stream for its whole life.
type StreamParams struct {
	DeviceName      string // empty selects the system default input
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// BlockFunc receives one block of interleaved float32 samples per driver
// callback. The slice is only valid for the duration of the call; it runs on
// the driver's real-time thread and must not block or perform I/O.
type BlockFunc func(block []float32)

// InputDriver is the platform audio binding. Exactly two implementations
// exist: the PortAudio binding and a no-op fallback used when the native
// driver cannot be initialized. Callers never branch on hardware presence
// themselves; NewDriver picks the implementation once.
type InputDriver interface {
	// Available reports whether a real driver backs this binding.
	Available() bool

	// Devices lists input-capable devices. The fallback returns an empty list.
	Devices() ([]Device, error)

	// OpenStream opens and starts an input stream delivering blocks to fn.
	OpenStream(params StreamParams, fn BlockFunc) (InputStream, error)

	// Close releases the driver itself.
	Close() error
}

// InputStream is an open audio input stream. Close stops delivery and
// guarantees no callback is in flight once it returns.
type InputStream interface {
	Close() error
}
