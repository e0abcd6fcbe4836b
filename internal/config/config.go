package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

type Config struct {
	LogLevel  string          `json:"log_level"` // "debug", "info", "warn", "error"
	Audio     AudioConfig     `json:"audio"`
	MIDI      MIDIConfig      `json:"midi"`
	Recording RecordingConfig `json:"recording"`
}

type AudioConfig struct {
	DeviceName      string `json:"device_name"` // empty means system default input
	SampleRate      int    `json:"sample_rate"`
	Channels        int    `json:"channels"`
	FramesPerBuffer int    `json:"frames_per_buffer"`
}

type MIDIConfig struct {
	InputPort   string `json:"input_port"`  // opened on startup when present in a scan
	OutputPort  string `json:"output_port"`
	MappingPath string `json:"mapping_path"` // trigger-to-action table, empty for default
}

type RecordingConfig struct {
	OutputDir string `json:"output_dir"` // empty means platform data dir
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	return loadFrom(configPath())
}

func loadFrom(path string) (*Config, error) {
	cfg := Default()

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			DeviceName:      "",
			SampleRate:      22050,
			Channels:        1,
			FramesPerBuffer: 512,
		},
		MIDI: MIDIConfig{
			InputPort:   "",
			OutputPort:  "",
			MappingPath: "",
		},
		Recording: RecordingConfig{
			OutputDir: "",
		},
	}
}

// Save writes the config to disk
func (c *Config) Save() error {
	return c.saveTo(configPath())
}

func (c *Config) saveTo(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// RecordingsDir returns the directory recordings are written to, creating it
// if necessary.
func (c *Config) RecordingsDir() (string, error) {
	dir := c.Recording.OutputDir
	if dir == "" {
		dir = filepath.Join(dataPath(), "recordings")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// MappingPath returns the path of the MIDI mapping file.
func (c *Config) MappingPath() string {
	if c.MIDI.MappingPath != "" {
		return c.MIDI.MappingPath
	}
	return filepath.Join(dataPath(), "midi_mapping.json")
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "voicedesk", "config.json")
}

// dataPath returns the platform-specific data directory path
func dataPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, "voicedesk")
}
