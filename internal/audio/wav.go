package audio

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmBitDepth = 32

// pcm32 converts a float32 sample in [-1, 1] to a 32-bit PCM value, clamping
// out-of-range input.
func pcm32(s float32) int {
	v := float64(s)
	if v > 1.0 {
		v = 1.0
	} else if v < -1.0 {
		v = -1.0
	}
	return int(v * math.MaxInt32)
}

// writeWAV persists interleaved float32 samples as a 32-bit PCM WAV file.
func writeWAV(path string, samples []float32, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, pcmBitDepth, channels, 1)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: pcmBitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = pcm32(s)
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("failed to write samples: %w", err)
	}

	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return f.Close()
}
