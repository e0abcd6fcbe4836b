package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

type portAudioDriver struct {
	log zerolog.Logger
}

// NewDriver creates the PortAudio-backed input driver, falling back to the
// no-op driver when PortAudio cannot be initialized (missing shared library,
// no audio subsystem). The returned driver must be Closed when done.
func NewDriver(log zerolog.Logger) InputDriver {
	if err := portaudio.Initialize(); err != nil {
		log.Warn().Err(err).Msg("PortAudio unavailable, audio capture disabled")
		return &noopDriver{log: log}
	}
	return &portAudioDriver{log: log}
}

func (p *portAudioDriver) Available() bool { return true }

func (p *portAudioDriver) Devices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				Name:              d.Name,
				MaxInputChannels:  d.MaxInputChannels,
				DefaultSampleRate: d.DefaultSampleRate,
				Default:           d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioDriver) OpenStream(params StreamParams, fn BlockFunc) (InputStream, error) {
	// Find device
	var device *portaudio.DeviceInfo
	if params.DeviceName == "" {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
	} else {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate devices: %w", err)
		}
		for _, d := range devices {
			if d.Name == params.DeviceName {
				device = d
				break
			}
		}
	}

	if device == nil {
		return nil, fmt.Errorf("device not found: %s", params.DeviceName)
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: params.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(params.SampleRate),
		FramesPerBuffer: params.FramesPerBuffer,
	}, func(in []float32) {
		fn(in)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	p.log.Debug().Str("device", device.Name).Int("sample_rate", params.SampleRate).Msg("Audio stream opened")
	return &portAudioStream{stream: stream}, nil
}

func (p *portAudioDriver) Close() error {
	portaudio.Terminate()
	return nil
}

type portAudioStream struct {
	stream *portaudio.Stream
}

// Close stops then closes the stream. PortAudio does not return from Close
// until the callback has quiesced, which is what makes Recorder.Stop safe to
// drain afterwards.
func (s *portAudioStream) Close() error {
	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		return fmt.Errorf("failed to stop audio stream: %w", err)
	}
	return s.stream.Close()
}
