package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/voicedesk/voicedesk/internal/audio"
	"github.com/voicedesk/voicedesk/internal/config"
	"github.com/voicedesk/voicedesk/internal/logging"
	"github.com/voicedesk/voicedesk/internal/midi"
	"github.com/voicedesk/voicedesk/internal/session"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	var log zerolog.Logger

	rootCmd := &cobra.Command{
		Use:          "voicedesk",
		Short:        "Voice capture and MIDI device tool",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = logging.NewWithLevel(cfg.LogLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfg.Audio.DeviceName, "device", cfg.Audio.DeviceName,
		"Input device name. Use 'devices' to see available devices.")
	rootCmd.PersistentFlags().IntVar(&cfg.Audio.SampleRate, "sample-rate", cfg.Audio.SampleRate,
		"Sample rate in Hz")
	rootCmd.PersistentFlags().IntVar(&cfg.Audio.Channels, "channels", cfg.Audio.Channels,
		"Number of channels to record (1=mono, 2=stereo)")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel,
		"Log level (debug, info, warn, error)")

	rootCmd.AddCommand(devicesCmd(cfg, &log))
	rootCmd.AddCommand(recordCmd(cfg, &log))
	rootCmd.AddCommand(midiCmd(cfg, &log))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func devicesCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			drv := audio.NewDriver(*log)
			defer drv.Close()

			if !drv.Available() {
				color.Yellow("Audio driver unavailable, running in degraded mode")
				return nil
			}

			devices, err := drv.Devices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				color.Yellow("No input devices found")
				return nil
			}

			fmt.Println("Available input devices:")
			for _, d := range devices {
				name := color.GreenString(d.Name)
				suffix := ""
				if d.Default {
					suffix = color.CyanString(" (default)")
				}
				fmt.Printf("  %s%s  %d ch, %.0f Hz\n",
					name, suffix, d.MaxInputChannels, d.DefaultSampleRate)
			}
			return nil
		},
	}
}

func recordCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var duration time.Duration
	var outDir string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the input device until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				var err error
				outDir, err = cfg.RecordingsDir()
				if err != nil {
					return err
				}
			}

			drv := audio.NewDriver(*log)
			defer drv.Close()

			rec := audio.NewRecorder(audio.RecorderConfig{
				Driver: drv,
				Params: audio.StreamParams{
					DeviceName:      cfg.Audio.DeviceName,
					SampleRate:      cfg.Audio.SampleRate,
					Channels:        cfg.Audio.Channels,
					FramesPerBuffer: cfg.Audio.FramesPerBuffer,
				},
				OutputDir: outDir,
				Logger:    *log,
			})

			if err := rec.Start(); err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			var timeout <-chan time.Time
			if duration > 0 {
				timeout = time.After(duration)
			}

			fmt.Println("Recording... press Ctrl+C to stop")
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()

		loop:
			for {
				select {
				case <-sigChan:
					break loop
				case <-timeout:
					break loop
				case <-ticker.C:
					printMeter(rec)
				}
			}
			fmt.Println()

			path, err := rec.Stop()
			if err != nil {
				return err
			}
			fmt.Printf("Saved %s\n", color.GreenString(path))
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop automatically after this long (0 = until interrupted)")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Output directory (default: platform recordings dir)")
	return cmd
}

func printMeter(rec *audio.Recorder) {
	level := rec.CurrentLevel()
	quality := rec.QualityEstimate()
	elapsed := rec.ElapsedDuration().Truncate(time.Second)

	width := 30
	filled := int(level * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	fmt.Printf("\r[%s] level %.3f quality %.2f %s ", bar, level, quality, elapsed)
}

func midiCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "midi",
		Short: "MIDI port management",
	}
	cmd.AddCommand(midiPortsCmd(cfg, log))
	cmd.AddCommand(midiMonitorCmd(cfg, log))
	cmd.AddCommand(midiSendCmd(cfg, log))
	return cmd
}

func midiPortsCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List available MIDI ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			drv := midi.NewDriver(*log)
			defer drv.Close()

			mgr := midi.NewManager(drv, *log)
			mgr.Scan()

			if !mgr.IsAvailable() {
				color.Yellow("MIDI driver unavailable, running in degraded mode")
			}

			fmt.Println("Inputs:")
			for _, name := range mgr.InputPorts() {
				fmt.Printf("  %s\n", color.GreenString(name))
			}
			fmt.Println("Outputs:")
			for _, name := range mgr.OutputPorts() {
				fmt.Printf("  %s\n", color.GreenString(name))
			}
			return nil
		},
	}
}

func midiMonitorCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var portName string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print inbound MIDI messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			drv := midi.NewDriver(*log)
			defer drv.Close()

			mgr := midi.NewManager(drv, *log)
			mgr.Scan()

			if portName == "" {
				portName = cfg.MIDI.InputPort
			}
			if portName == "" {
				inputs := mgr.InputPorts()
				if len(inputs) == 0 {
					return fmt.Errorf("no MIDI input ports found")
				}
				portName = inputs[0]
			}

			if err := mgr.OpenInput(portName); err != nil {
				return err
			}
			defer mgr.CloseInput()

			mapping := midi.NewMapping(*log)
			if err := mapping.Load(cfg.MappingPath()); err != nil {
				log.Warn().Err(err).Msg("Failed to load MIDI mapping")
			}

			audioDrv := audio.NewDriver(*log)
			defer audioDrv.Close()

			outDir, err := cfg.RecordingsDir()
			if err != nil {
				return err
			}

			rec := audio.NewRecorder(audio.RecorderConfig{
				Driver: audioDrv,
				Params: audio.StreamParams{
					DeviceName:      cfg.Audio.DeviceName,
					SampleRate:      cfg.Audio.SampleRate,
					Channels:        cfg.Audio.Channels,
					FramesPerBuffer: cfg.Audio.FramesPerBuffer,
				},
				OutputDir: outDir,
				Logger:    *log,
			})

			sess := session.New(session.Config{
				Recorder: rec,
				MIDI:     mgr,
				Mapping:  mapping,
				Logger:   *log,
			})
			defer sess.Close()

			mgr.Register(midi.ObserverFunc(func(ev midi.Event) {
				fmt.Printf("% X  (+%s)\n", ev.Data, ev.Timestamp)
			}))

			fmt.Printf("Monitoring %s... press Ctrl+C to stop\n", color.GreenString(portName))

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan
			return nil
		},
	}

	cmd.Flags().StringVar(&portName, "in", "", "Input port name (default: configured or first scanned)")
	return cmd
}

func midiSendCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var portName string

	cmd := &cobra.Command{
		Use:   "send BYTE...",
		Short: "Send one raw MIDI message to an output port",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := make([]byte, 0, len(args))
			for _, arg := range args {
				v, err := strconv.ParseUint(strings.TrimPrefix(arg, "0x"), 16, 8)
				if err != nil {
					return fmt.Errorf("invalid byte %q: %w", arg, err)
				}
				data = append(data, byte(v))
			}

			drv := midi.NewDriver(*log)
			defer drv.Close()

			mgr := midi.NewManager(drv, *log)
			mgr.Scan()

			if portName == "" {
				portName = cfg.MIDI.OutputPort
			}
			if portName == "" {
				outputs := mgr.OutputPorts()
				if len(outputs) == 0 {
					return fmt.Errorf("no MIDI output ports found")
				}
				portName = outputs[0]
			}

			if err := mgr.OpenOutput(portName); err != nil {
				return err
			}
			defer mgr.CloseOutput()

			if err := mgr.Send(data); err != nil {
				return err
			}
			fmt.Printf("Sent % X to %s\n", data, color.GreenString(portName))
			return nil
		},
	}

	cmd.Flags().StringVar(&portName, "out", "", "Output port name (default: configured or first scanned)")
	return cmd
}
