package midi

import (
	"fmt"

	"github.com/rs/zerolog"
)

// noopDriver stands in when rtmidi cannot be initialized. Scans report no
// ports and opens fail, so every Manager operation degrades cleanly instead
// of crashing.
type noopDriver struct {
	log zerolog.Logger
}

func (n *noopDriver) Available() bool { return false }

func (n *noopDriver) InPorts() ([]string, error) {
	return []string{}, nil
}

func (n *noopDriver) OutPorts() ([]string, error) {
	return []string{}, nil
}

func (n *noopDriver) OpenIn(name string, recv func(data []byte, timestampMS int32)) (InPort, error) {
	n.log.Warn().Str("port", name).Msg("OpenIn called without a MIDI driver")
	return nil, fmt.Errorf("MIDI functionality is not available on this system")
}

func (n *noopDriver) OpenOut(name string) (OutPort, error) {
	n.log.Warn().Str("port", name).Msg("OpenOut called without a MIDI driver")
	return nil, fmt.Errorf("MIDI functionality is not available on this system")
}

func (n *noopDriver) Close() error { return nil }
