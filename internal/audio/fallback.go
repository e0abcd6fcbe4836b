package audio

import "github.com/rs/zerolog"

// noopDriver stands in when PortAudio cannot be initialized. Enumeration
// reports no devices and opening a stream fails with ErrDeviceUnavailable,
// so the engine degrades instead of crashing.
type noopDriver struct {
	log zerolog.Logger
}

func (n *noopDriver) Available() bool { return false }

func (n *noopDriver) Devices() ([]Device, error) {
	n.log.Warn().Msg("Devices called without an audio driver")
	return []Device{}, nil
}

func (n *noopDriver) OpenStream(params StreamParams, fn BlockFunc) (InputStream, error) {
	n.log.Warn().Msg("OpenStream called without an audio driver")
	return nil, ErrDeviceUnavailable
}

func (n *noopDriver) Close() error { return nil }
