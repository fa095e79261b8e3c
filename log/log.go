package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	diagName       = "diagnostics_log.txt"
	transcriptName = "transcript_log.txt"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcriptFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
	sessionID      string
)

// Metrics is one transcription call as logged.
type Metrics struct {
	AudioLengthS float64
	EncodeTimeMs float64
	DNSTimeMs    float64
	TLSTimeMs    float64
	TTFBMs       float64
	TotalTimeMs  float64
	ConnReused   bool
	TLSProto     string
	RateLimit    string
	NoSpeechProb float64
	Confidence   float64
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: VOXKEY_LOG_PATH environment variable
	if envPath := os.Getenv("VOXKEY_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagFile, err = os.OpenFile(filepath.Join(dir, diagName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcriptFile, err = os.OpenFile(filepath.Join(dir, transcriptName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcriptFile != nil {
		transcriptFile.Close()
		transcriptFile = nil
	}
	logReady = false
	sessionID = ""
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// SessionStart tags every following diagnostics line with a fresh session
// id and returns it.
func SessionStart(preview, final, mode string) string {
	id := uuid.NewString()
	if !logReady {
		return id
	}
	logMu.Lock()
	sessionID = id
	diagLog = diagLog.With().Str("session", id[:8]).Logger()
	logMu.Unlock()
	diagLog.Info().
		Str("session_id", id).
		Str("preview", preview).
		Str("final", final).
		Str("mode", mode).
		Msg("session_start")
	return id
}

func SessionEnd(finals, commands int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("finals", finals).
		Int("commands", commands).
		Msg("session_end")
}

// Session returns the current session id, empty before SessionStart.
func Session() string {
	logMu.Lock()
	defer logMu.Unlock()
	return sessionID
}

func Transition(kind, from, to string) {
	if !logReady {
		return
	}
	diagLog.Info().Str("kind", kind).Str("from", from).Str("to", to).Msg("transition")
}

// Utterance logs a segmenter decision: open, confirm, close or discard.
func Utterance(id uint64, kind, reason string, length, voiced time.Duration) {
	if !logReady {
		return
	}
	ev := diagLog.Debug()
	if kind == "close" || kind == "discard" {
		ev = diagLog.Info()
	}
	ev.Uint64("utterance", id).
		Str("kind", kind).
		Str("reason", reason).
		Dur("length_ms", length).
		Dur("voiced_ms", voiced).
		Msg("utterance")
}

func Transcription(id uint64, pass, provider string, emitted bool, reason string, m Metrics) {
	if !logReady {
		return
	}
	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}
	ev := diagLog.Info().
		Uint64("utterance", id).
		Str("pass", pass).
		Str("provider", provider).
		Bool("emitted", emitted).
		Str("conn", connStatus)
	if reason != "" {
		ev = ev.Str("reason", reason)
	}
	if m.TLSProto != "" {
		ev = ev.Str("tls_proto", m.TLSProto)
	}
	if m.RateLimit != "" {
		ev = ev.Str("rate_limit", m.RateLimit)
	}
	if m.Confidence > 0 {
		ev = ev.Float64("confidence", m.Confidence)
	}
	ev.Float64("audio_s", m.AudioLengthS).
		Float64("encode_ms", m.EncodeTimeMs).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Float64("no_speech_prob", m.NoSpeechProb).
		Msg("transcription")
}

func TranscriptionFailure(id uint64, pass, provider string, err error) {
	if !logReady {
		return
	}
	diagLog.Warn().
		Uint64("utterance", id).
		Str("pass", pass).
		Str("provider", provider).
		Err(err).
		Msg("transcription_failure")
}

func AgentRun(agent string, exitCode int, elapsed time.Duration, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if err != nil {
		ev = diagLog.Warn().Err(err)
	}
	ev.Str("agent", agent).
		Int("exit_code", exitCode).
		Dur("elapsed_ms", elapsed).
		Msg("agent_run")
}

// Dropped logs ring overflow. total is cumulative for the session.
func Dropped(total uint64) {
	if !logReady {
		return
	}
	diagLog.Warn().Uint64("dropped_frames", total).Msg("ring_overflow")
}

// TranscriptText appends one line to transcript_log.txt.
func TranscriptText(kind, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, kind, text)
	transcriptFile.WriteString(line)
}
