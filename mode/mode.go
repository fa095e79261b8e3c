// Package mode holds the listening state and the single-hotkey state
// machine: one press toggles listening, two presses inside the double-tap
// window rotate between LISTEN and AGENT without toggling.
package mode

import (
	"fmt"
	"strings"
	"time"
)

type Mode int

const (
	Listen Mode = iota
	Agent
)

func (m Mode) String() string {
	switch m {
	case Listen:
		return "listen"
	case Agent:
		return "agent"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Next rotates to the following mode.
func (m Mode) Next() Mode {
	if m == Agent {
		return Listen
	}
	return Agent
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "listen", "":
		return Listen, nil
	case "agent":
		return Agent, nil
	}
	return Listen, fmt.Errorf("unknown mode %q (want listen or agent)", s)
}

// State is the operator-controlled listening state.
type State struct {
	Active     bool
	Mode       Mode
	LastToggle time.Time
}

// String renders the projected state: INACTIVE, LISTEN_ACTIVE or AGENT_ACTIVE.
func (s State) String() string {
	if !s.Active {
		return "INACTIVE"
	}
	return strings.ToUpper(s.Mode.String()) + "_ACTIVE"
}

type TransitionKind int

const (
	Toggle TransitionKind = iota
	ModeSwitch
)

func (k TransitionKind) String() string {
	if k == ModeSwitch {
		return "mode_switch"
	}
	return "toggle"
}

type Transition struct {
	Kind TransitionKind
	From State
	To   State
	At   time.Time
}

// LeavesActive reports whether an active mode ends with this transition,
// either by going inactive or by switching mode while active.
func (t Transition) LeavesActive() bool {
	return t.From.Active && (!t.To.Active || t.From.Mode != t.To.Mode)
}

// Machine is the pure hotkey state machine. It holds no timers; the caller
// commits a pending press by calling Expire at or after Deadline.
type Machine struct {
	state   State
	window  time.Duration
	pending bool
	first   time.Time
}

func NewMachine(initial Mode, doubleTap time.Duration) *Machine {
	return &Machine{state: State{Mode: initial}, window: doubleTap}
}

func (m *Machine) State() State { return m.state }

// Press records a hotkey press at the given time. A second press inside the
// window of a pending one rotates the mode; otherwise the press becomes
// pending. A stale pending press is committed first and returned.
func (m *Machine) Press(at time.Time) (Transition, bool) {
	if m.pending && at.Sub(m.first) < m.window {
		m.pending = false
		from := m.state
		m.state.Mode = m.state.Mode.Next()
		return Transition{Kind: ModeSwitch, From: from, To: m.state, At: at}, true
	}
	tr, committed := m.Expire(at)
	m.pending = true
	m.first = at
	return tr, committed
}

// Expire commits a pending press whose window has passed as a toggle.
func (m *Machine) Expire(now time.Time) (Transition, bool) {
	if !m.pending || now.Sub(m.first) < m.window {
		return Transition{}, false
	}
	m.pending = false
	from := m.state
	m.state.Active = !m.state.Active
	m.state.LastToggle = m.first
	return Transition{Kind: Toggle, From: from, To: m.state, At: m.first}, true
}

// Deadline returns when the pending press commits.
func (m *Machine) Deadline() (time.Time, bool) {
	if !m.pending {
		return time.Time{}, false
	}
	return m.first.Add(m.window), true
}

// Reset drops any pending press and goes inactive, keeping the mode.
func (m *Machine) Reset() {
	m.pending = false
	m.state.Active = false
}
