package main

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voxkey/mode"
)

// TUI message types
type StateMsg struct{ State mode.State }
type AudioLevelMsg struct{ Level float64 }
type UtteranceMsg struct {
	ID   uint64
	Kind string // open, confirm, close, discard
}
type PreviewMsg struct {
	ID   uint64
	Text string
}
type FinalMsg struct {
	ID        uint64
	Text      string
	Discarded bool // matched a discard phrase, nothing typed
}
type BufferMsg struct{ Tokens []string }
type AgentStartMsg struct{ Agent, Line string }
type AgentOutputMsg struct{ Agent, Line string }
type AgentDoneMsg struct {
	Agent    string
	ExitCode int
	Err      error
}
type DroppedMsg struct{ Total uint64 }
type WarningMsg struct{ Text string }
type ModeLineMsg struct{ Text string }   // providers and language
type DeviceLineMsg struct{ Text string } // microphone device name
type tickMsg time.Time

// agentLines is how many lines of command output stay on screen.
const agentLines = 12

type tuiModel struct {
	state      mode.State
	hotkey     string
	frame      int
	audioLevel float64
	speaking   bool
	width      int
	height     int
	modeLine   string
	deviceLine string
	dropped    uint64
	warning    string

	preview    string
	lastFinal  string
	finalCount int
	discarded  bool
	copied     bool
	tokens     []string
	agentCmd   string
	agentOut   []string
	agentErr   string
	agentBusy  bool
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

type eyePalette struct {
	styles [16]lipgloss.Style
	bg     [16][16]lipgloss.Style
}

func newPalette(colors []string) *eyePalette {
	p := &eyePalette{}
	for i, c := range colors {
		if c != "" {
			p.styles[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
		}
	}
	for i, fg := range colors {
		for j, bg := range colors {
			if fg != "" && bg != "" {
				p.bg[i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Background(lipgloss.Color(bg))
			}
		}
	}
	return p
}

// Pre-computed pixel styles to avoid allocations in render loop
var (
	paletteListen = newPalette([]string{"", "226", "220", "214", "208", "196", "160", "124", "88", "52", "236", "236", "236", "236", "255", "249"})
	paletteAgent  = newPalette([]string{"", "195", "159", "123", "87", "45", "39", "33", "26", "19", "236", "236", "236", "236", "255", "249"})
	paletteIdle   = newPalette([]string{"", "231", "224", "217", "210", "160", "124", "88", "52", "236", "236", "236", "236", "236", "255", "249"})
)

func NewTUIProgram(hotkeyName string, initial mode.State) *tea.Program {
	m := tuiModel{hotkey: hotkeyName, state: initial}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiSend(msg any) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			if m.lastFinal != "" {
				m.copied = clipboard.WriteAll(m.lastFinal) == nil
			}
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case StateMsg:
		m.state = msg.State
		m.audioLevel = 0
		m.speaking = false
		if !msg.State.Active {
			m.preview = ""
		}

	case AudioLevelMsg:
		if m.state.Active {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
		}

	case UtteranceMsg:
		switch msg.Kind {
		case "open", "confirm":
			m.speaking = true
		default:
			m.speaking = false
		}

	case PreviewMsg:
		m.preview = msg.Text

	case FinalMsg:
		m.preview = ""
		m.finalCount++
		m.lastFinal = msg.Text
		m.discarded = msg.Discarded
		m.copied = false

	case BufferMsg:
		m.tokens = msg.Tokens

	case AgentStartMsg:
		m.agentBusy = true
		m.agentCmd = msg.Line
		m.agentOut = nil
		m.agentErr = ""

	case AgentOutputMsg:
		m.agentOut = append(m.agentOut, msg.Line)
		if len(m.agentOut) > agentLines {
			m.agentOut = m.agentOut[len(m.agentOut)-agentLines:]
		}

	case AgentDoneMsg:
		m.agentBusy = false
		if msg.Err != nil {
			m.agentErr = msg.Err.Error()
		}

	case DroppedMsg:
		m.dropped = msg.Total

	case WarningMsg:
		m.warning = msg.Text

	case ModeLineMsg:
		m.modeLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text
	}
	return m, nil
}

func (m tuiModel) statusLine() string {
	if !m.state.Active {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render(fmt.Sprintf("○ STANDBY (%s)", strings.ToUpper(m.state.Mode.String())))
	}
	color := "196"
	if m.state.Mode == mode.Agent {
		color = "39"
	}
	label := "● " + strings.ToUpper(m.state.Mode.String())
	if m.speaking {
		label += " ~ speech"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render(label)
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const eyeWidth = 45
	level := m.audioLevel
	if !m.state.Active {
		level = 0
	}

	palette := paletteIdle
	if m.state.Active {
		palette = paletteListen
		if m.state.Mode == mode.Agent {
			palette = paletteAgent
		}
	}
	eye := renderEye(m.frame, level, m.state.Active, palette)

	gray := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	orange := lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	infoLines := []string{m.statusLine()}
	if m.modeLine != "" {
		infoLines = append(infoLines, lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render(m.modeLine))
	}
	if m.deviceLine != "" {
		infoLines = append(infoLines, gray.Render(m.deviceLine))
	}
	if m.dropped > 0 {
		infoLines = append(infoLines, orange.Render(fmt.Sprintf("⚠ %d frames dropped", m.dropped)))
	}
	if m.warning != "" {
		infoLines = append(infoLines, orange.Render("⚠ "+m.warning))
	}

	// Empty line for spacing
	infoLines = append(infoLines, "")

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	infoLines = append(infoLines,
		boldStyle.Render(m.hotkey)+helpStyle.Render(" to toggle"),
		helpStyle.Render("double-tap to switch mode"),
		boldStyle.Render("c")+helpStyle.Render(" copy last  ")+boldStyle.Render("q")+helpStyle.Render(" quit"),
		helpStyle.Render("voxkey "+version),
	)

	for _, line := range infoLines {
		eye += line + "\n"
	}
	eyeLines := strings.Split(eye, "\n")

	logWidth := max(m.width-eyeWidth-1, 20)
	wrapWidth := max(logWidth-2, 10)

	var right strings.Builder
	title := lipgloss.NewStyle().Foreground(lipgloss.Color("246"))

	if m.preview != "" {
		right.WriteString(title.Render("Hearing") + "\n")
		previewStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
		for _, line := range wrapText(m.preview, wrapWidth) {
			right.WriteString(previewStyle.Render(line) + "\n")
		}
		right.WriteString("\n")
	}

	if m.lastFinal != "" {
		right.WriteString(title.Render(fmt.Sprintf("Last transcription (#%d)", m.finalCount)) + "\n\n")
		textStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
		if m.discarded {
			textStyle = orange
		}
		lines := wrapText(m.lastFinal, wrapWidth)
		for i, line := range lines {
			right.WriteString(textStyle.Render(line))
			if i == len(lines)-1 {
				switch {
				case m.discarded:
					right.WriteString(" " + gray.Render("[discarded]"))
				case m.copied:
					right.WriteString(" " + lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("[✓ copied]"))
				}
			}
			right.WriteString("\n")
		}
	} else {
		right.WriteString(gray.Render("No transcriptions yet") + "\n")
	}

	if len(m.tokens) > 0 {
		right.WriteString("\n" + title.Render("Agent buffer") + "\n")
		right.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Render(strings.Join(m.tokens, " ")) + "\n")
	}

	if m.agentCmd != "" {
		head := "Agent command"
		if m.agentBusy {
			head += " (running)"
		}
		right.WriteString("\n" + title.Render(head) + "\n")
		right.WriteString(gray.Render("$ "+m.agentCmd) + "\n")
		outStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
		for _, line := range m.agentOut {
			for _, w := range wrapText(line, wrapWidth) {
				right.WriteString(outStyle.Render(w) + "\n")
			}
		}
		if m.agentErr != "" {
			right.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(m.agentErr) + "\n")
		}
	}

	logPanel := lipgloss.NewStyle().
		Width(logWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(right.String())

	// Pad eye panel to full height (eye at top)
	eyePadded := make([]string, m.height)
	for i := range eyePadded {
		if i < len(eyeLines) {
			eyePadded[i] = eyeLines[i]
		} else {
			eyePadded[i] = strings.Repeat(" ", eyeWidth-1)
		}
	}

	eyePanel := lipgloss.NewStyle().
		Width(eyeWidth - 1).
		Height(m.height).
		Render(strings.Join(eyePadded, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, eyePanel, logPanel)
}

func renderEye(frame int, level float64, active bool, palette *eyePalette) string {
	const charsW = 44
	const charsH = 15
	const pixW = charsW
	const pixH = charsH * 2

	centerX := float64(pixW) / 2
	centerY := float64(pixH) / 2

	// Voice-reactive breathing
	var breathe float64
	if active {
		breathe = math.Sin(float64(frame)*0.10)*0.03 + level*10.0 - 0.05
	} else {
		breathe = math.Sin(float64(frame)*0.08)*0.02 - 0.05
	}

	pixels := make([][]int, pixH)
	for i := range pixels {
		pixels[i] = make([]int, pixW)
	}

	type ring struct {
		radius     float64
		breatheAmt float64
		colorIdx   int
	}

	rings := []ring{
		{0.6, 0.10, 1},
		{1.3, 0.12, 2},
		{2.0, 0.15, 3},
		{2.8, 0.35, 4}, // outer rings react most
		{3.5, 0.40, 5},
		{4.2, 0.38, 6},
		{5.0, 0.30, 7},
		{5.8, 0.15, 8},
		{6.5, 0.03, 9},
		{7.2, 0.0, 10},
		{8.0, 0.0, 11},
		{10.0, 0.0, 12},
		{12.0, 0.0, 13},
	}

	for y := 0; y < pixH; y++ {
		for x := 0; x < pixW; x++ {
			dx := float64(x) - centerX
			dy := float64(y) - centerY
			dist := math.Sqrt(dx*dx + dy*dy)
			for _, r := range rings {
				radius := min(r.radius+breathe*r.breatheAmt*20, 10.0)
				if dist < radius {
					pixels[y][x] = r.colorIdx
					break
				}
			}
		}
	}

	// Glass reflections
	type spot struct {
		ox, oy float64
		radius float64
		color  int
	}
	dSide, dSide2 := 9.0, 7.2
	dTop, dTop2 := 10.0, 8.2
	spots := []spot{
		{-dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{-dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -dTop, 0.8, 14},
		{0, -dTop2, 0.6, 15},
		{dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -2.0, 0.6, 14},
	}
	for y := 0; y < pixH; y++ {
		for x := 0; x < pixW; x++ {
			px := float64(x) - centerX
			py := float64(y) - centerY
			for _, s := range spots {
				dx := px - s.ox
				dy := py - s.oy
				rLen := math.Sqrt(s.ox*s.ox + s.oy*s.oy)
				if rLen < 0.001 {
					rLen = 1
				}
				tx, ty := -s.oy/rLen, s.ox/rLen
				dt := dx*tx + dy*ty
				dn := dx*(-ty) + dy*tx
				if (dt*dt)/9.0+dn*dn < s.radius*s.radius {
					pixels[y][x] = s.color
				}
			}
		}
	}

	var result strings.Builder
	for cy := 0; cy < charsH; cy++ {
		for cx := 0; cx < charsW; cx++ {
			top := pixels[cy*2][cx]
			bot := pixels[cy*2+1][cx]
			switch {
			case top == 0 && bot == 0:
				result.WriteString(" ")
			case top == bot:
				result.WriteString(palette.styles[top].Render("█"))
			case bot == 0:
				result.WriteString(palette.styles[top].Render("▀"))
			case top == 0:
				result.WriteString(palette.styles[bot].Render("▄"))
			default:
				result.WriteString(palette.bg[top][bot].Render("▀"))
			}
		}
		result.WriteString("\n")
	}
	return result.String()
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
