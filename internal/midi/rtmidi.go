package midi

import (
	"fmt"

	"github.com/rs/zerolog"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type rtmidiDriver struct {
	drv *rtmididrv.Driver
	log zerolog.Logger
}

// NewDriver creates the rtmidi-backed MIDI driver, falling back to the no-op
// driver when rtmidi cannot be initialized (missing shared library, no MIDI
// subsystem). The returned driver must be Closed when done.
func NewDriver(log zerolog.Logger) Driver {
	drv, err := rtmididrv.New()
	if err != nil {
		log.Warn().Err(err).Msg("rtmidi unavailable, MIDI disabled")
		return &noopDriver{log: log}
	}
	return &rtmidiDriver{drv: drv, log: log}
}

func (d *rtmidiDriver) Available() bool { return true }

func (d *rtmidiDriver) InPorts() ([]string, error) {
	ins, err := d.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("failed to list MIDI inputs: %w", err)
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names, nil
}

func (d *rtmidiDriver) OutPorts() ([]string, error) {
	outs, err := d.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("failed to list MIDI outputs: %w", err)
	}
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names, nil
}

func (d *rtmidiDriver) OpenIn(name string, recv func(data []byte, timestampMS int32)) (InPort, error) {
	ins, err := d.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("failed to list MIDI inputs: %w", err)
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("MIDI input %q not found", name)
	}

	if err := found.Open(); err != nil {
		return nil, fmt.Errorf("failed to open MIDI input %q: %w", name, err)
	}

	stop, err := gomidi.ListenTo(found, func(msg gomidi.Message, timestampms int32) {
		recv([]byte(msg), timestampms)
	}, gomidi.HandleError(func(listenErr error) {
		d.log.Warn().Err(listenErr).Str("port", name).Msg("MIDI listener error")
	}))
	if err != nil {
		found.Close()
		return nil, fmt.Errorf("failed to start MIDI listener on %q: %w", name, err)
	}

	return &rtmidiIn{name: name, port: found, stop: stop}, nil
}

func (d *rtmidiDriver) OpenOut(name string) (OutPort, error) {
	outs, err := d.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("failed to list MIDI outputs: %w", err)
	}
	var found drivers.Out
	for _, out := range outs {
		if out.String() == name {
			found = out
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("MIDI output %q not found", name)
	}

	if err := found.Open(); err != nil {
		return nil, fmt.Errorf("failed to open MIDI output %q: %w", name, err)
	}
	return &rtmidiOut{name: name, port: found}, nil
}

func (d *rtmidiDriver) Close() error {
	return d.drv.Close()
}

type rtmidiIn struct {
	name string
	port drivers.In
	stop func()
}

func (p *rtmidiIn) Name() string { return p.name }

// Close stops the listener before releasing the port, so no callback fires
// after it returns.
func (p *rtmidiIn) Close() error {
	p.stop()
	return p.port.Close()
}

type rtmidiOut struct {
	name string
	port drivers.Out
}

func (p *rtmidiOut) Name() string { return p.name }

func (p *rtmidiOut) Send(data []byte) error {
	return p.port.Send(data)
}

func (p *rtmidiOut) Close() error {
	return p.port.Close()
}
