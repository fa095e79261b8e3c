package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"voxkey/agent"
	"voxkey/hotkey"
	"voxkey/keyboard"
	"voxkey/mode"
)

// ValidationError lists every invalid field.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfig, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrConfig }

var providers = map[string]bool{"groq": true, "openai": true, "deepgram": true, "command": true, "fake": true}

// Validate checks the whole config and reports all problems at once.
func (c *Config) Validate() error {
	var p []string
	add := func(format string, args ...any) { p = append(p, fmt.Sprintf(format, args...)) }
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			add("%s must be positive, got %s", name, d)
		}
	}

	if _, err := hotkey.ParseCombo(c.Hotkey); err != nil {
		add("hotkey: %v", err)
	}

	if c.Audio.RingFrames < 10 {
		add("audio.ring_frames must be at least 10, got %d", c.Audio.RingFrames)
	}
	positive("audio.drain_interval", c.Audio.DrainInterval)

	v := c.VAD
	for name, a := range map[string]int{"vad.fast_aggressiveness": v.FastAggressiveness, "vad.accurate_aggressiveness": v.AccurateAggressiveness} {
		if a < 0 || a > 3 {
			add("%s must be 0-3, got %d", name, a)
		}
	}
	positive("vad.confirm_window", v.ConfirmWindow)
	positive("vad.hangover", v.Hangover)
	if v.ConfirmGrace < v.ConfirmWindow {
		add("vad.confirm_grace (%s) must be at least vad.confirm_window (%s)", v.ConfirmGrace, v.ConfirmWindow)
	}
	if v.ConfirmRatio <= 0 || v.ConfirmRatio > 1 {
		add("vad.confirm_ratio must be in (0, 1], got %g", v.ConfirmRatio)
	}
	if v.MinUtterance < 0 {
		add("vad.min_utterance must not be negative")
	}
	if v.MaxUtterance != 0 && v.MaxUtterance <= v.MinUtterance {
		add("vad.max_utterance (%s) must exceed vad.min_utterance (%s)", v.MaxUtterance, v.MinUtterance)
	}
	if v.PreRoll < 0 {
		add("vad.pre_roll must not be negative")
	}
	if v.EnergyFloor < 0 || v.EnergyFloor >= 1 {
		add("vad.energy_floor must be in [0, 1), got %g", v.EnergyFloor)
	}

	t := c.Transcription
	for name, pass := range map[string]Pass{"transcription.preview": t.Preview, "transcription.final": t.Final} {
		prov := strings.ToLower(pass.Provider)
		if name == "transcription.preview" && (prov == "" || prov == "none") {
			continue
		}
		if !providers[prov] {
			add("%s.provider %q is not one of groq, openai, deepgram, command, fake", name, pass.Provider)
		}
		if prov == "command" && !strings.Contains(t.Command, "$FILE") {
			add("%s uses the command provider but transcription.command has no $FILE", name)
		}
	}
	positive("transcription.preview_interval", t.PreviewInterval)
	if t.Timeout < 0 {
		add("transcription.timeout must not be negative")
	}

	positive("mode.double_tap", c.Mode.DoubleTap)
	if _, err := mode.ParseMode(c.Mode.Initial); err != nil {
		add("mode.initial: %v", err)
	}

	if c.Agent.Template != "" {
		if err := agent.ValidateTemplate(c.Agent.Template); err != nil {
			add("agent.template: %v", err)
		}
	}
	positive("agent.buffer_timeout", c.Agent.BufferTimeout)
	if c.Agent.CommandTimeout < 0 {
		add("agent.command_timeout must not be negative")
	}

	if c.Output.TypingDelay < 0 || c.Output.KeyHold < 0 {
		add("output delays must not be negative")
	}
	if _, err := keyboard.ParseWordMap(c.WordMappings); err != nil {
		add("word_mappings: %v", err)
	}

	if len(p) > 0 {
		slices.Sort(p)
		return &ValidationError{Problems: p}
	}
	return nil
}

// PreviewEnabled reports whether a PREVIEW pass is configured.
func (c *Config) PreviewEnabled() bool {
	p := strings.ToLower(c.Transcription.Preview.Provider)
	return p != "" && p != "none"
}
