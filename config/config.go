// Package config loads voxkey's YAML configuration. A file only needs the
// keys it changes: everything else keeps its default, and word_mappings
// merge key by key.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrConfig = errors.New("configuration error")

type Config struct {
	Hotkey        string            `yaml:"hotkey"`
	Audio         Audio             `yaml:"audio"`
	VAD           VAD               `yaml:"vad"`
	Transcription Transcription     `yaml:"transcription"`
	Mode          Mode              `yaml:"mode"`
	Agent         Agent             `yaml:"agent"`
	Output        Output            `yaml:"output"`
	WordMappings  map[string]string `yaml:"word_mappings"`
	Sounds        Sounds            `yaml:"sounds"`
}

type Audio struct {
	Device        string        `yaml:"device"`
	RingFrames    int           `yaml:"ring_frames"`
	DrainInterval time.Duration `yaml:"drain_interval"`
}

type VAD struct {
	FastAggressiveness     int           `yaml:"fast_aggressiveness"`
	AccurateAggressiveness int           `yaml:"accurate_aggressiveness"`
	ConfirmWindow          time.Duration `yaml:"confirm_window"`
	ConfirmRatio           float64       `yaml:"confirm_ratio"`
	ConfirmGrace           time.Duration `yaml:"confirm_grace"`
	Hangover               time.Duration `yaml:"hangover"`
	MinUtterance           time.Duration `yaml:"min_utterance"`
	MaxUtterance           time.Duration `yaml:"max_utterance"`
	PreRoll                time.Duration `yaml:"pre_roll"`
	EnergyFloor            float64       `yaml:"energy_floor"`
}

type Pass struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type Transcription struct {
	Preview         Pass          `yaml:"preview"`
	Final           Pass          `yaml:"final"`
	PreviewInterval time.Duration `yaml:"preview_interval"`
	Timeout         time.Duration `yaml:"timeout"`
	Language        string        `yaml:"language"`
	Command         string        `yaml:"command"`
}

type Mode struct {
	DoubleTap time.Duration `yaml:"double_tap"`
	Initial   string        `yaml:"initial"`
}

type Agent struct {
	Template       string        `yaml:"template"`
	BufferTimeout  time.Duration `yaml:"buffer_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

type Output struct {
	TypingDelay    time.Duration `yaml:"typing_delay"`
	KeyHold        time.Duration `yaml:"key_hold"`
	TypePreviews   bool          `yaml:"type_previews"`
	DiscardPhrases []string      `yaml:"discard_phrases"`
}

type Sounds struct {
	Enabled bool `yaml:"enabled"`
}

func Default() *Config {
	return &Config{
		Hotkey: "ctrl+shift+space",
		Audio: Audio{
			RingFrames:    500,
			DrainInterval: 20 * time.Millisecond,
		},
		VAD: VAD{
			FastAggressiveness:     2,
			AccurateAggressiveness: 3,
			ConfirmWindow:          200 * time.Millisecond,
			ConfirmRatio:           0.6,
			ConfirmGrace:           300 * time.Millisecond,
			Hangover:               600 * time.Millisecond,
			MinUtterance:           500 * time.Millisecond,
			MaxUtterance:           30 * time.Second,
			PreRoll:                300 * time.Millisecond,
			EnergyFloor:            0.004,
		},
		Transcription: Transcription{
			Preview:         Pass{Provider: "groq", Model: "whisper-large-v3-turbo"},
			Final:           Pass{Provider: "groq", Model: "whisper-large-v3"},
			PreviewInterval: 400 * time.Millisecond,
			Timeout:         15 * time.Second,
			Language:        "en",
		},
		Mode: Mode{
			DoubleTap: 500 * time.Millisecond,
			Initial:   "listen",
		},
		Agent: Agent{
			BufferTimeout: 2 * time.Second,
		},
		Output: Output{
			TypingDelay:    20 * time.Millisecond,
			KeyHold:        20 * time.Millisecond,
			DiscardPhrases: []string{"thank you", "thanks", "you"},
		},
		WordMappings: map[string]string{
			"new line":          "\n",
			"insert bullet":     "- ",
			"completion":        "\t",
			"end of sentence":   ".",
			"dot":               ".",
			"comma":             ",",
			"question mark":     "?",
			"exclamation point": "!",
			"colon":             ":",
			"semicolon":         ";",
			"now undo":          "ctrl+z",
			"now redo":          "ctrl+y",
			"now copy":          "ctrl+c",
			"now paste":         "ctrl+v",
			"now cut":           "ctrl+x",
			"now save":          "ctrl+s",
		},
		Sounds: Sounds{Enabled: true},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/voxkey/config.yaml or the OS equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "voxkey.yaml"
	}
	return filepath.Join(dir, "voxkey", "config.yaml")
}

// Load decodes path over the defaults. A missing file yields the defaults.
// The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrConfig, path, err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfig, path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return err
	}
	// an empty replacement removes a default mapping
	for k, v := range c.WordMappings {
		if v == "" {
			delete(c.WordMappings, k)
		}
	}
	return nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
