package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

var (
	ErrCommand   = errors.New("agent command failure")
	ErrQueueFull = errors.New("agent queue full")
	ErrClosed    = errors.New("agent runner closed")
)

// QueueSize bounds how many flushed commands may wait behind a running one.
const QueueSize = 8

// stderrTail is how much trailing stderr is kept for error reports.
const stderrTail = 2048

// waitDelay bounds how long output pipes may stay open after the command
// is killed, e.g. by a grandchild that inherited them.
const waitDelay = time.Second

// CommandError reports a command that failed to start or exited non-zero.
type CommandError struct {
	Line     string
	ExitCode int // -1 when the command never ran to an exit status
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: exit %d", ErrCommand, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() []error { return []error{ErrCommand, e.Err} }

// Run describes one finished command.
type Run struct {
	Command  Command
	Line     string
	ExitCode int
	Elapsed  time.Duration
	Err      error
}

// OutputFunc receives each stdout line as the command prints it.
type OutputFunc func(cmd Command, line string)

// Runner executes commands one at a time in submission order.
type Runner struct {
	template string
	timeout  time.Duration
	output   OutputFunc

	// OnStart and OnDone are called from the worker goroutine.
	OnStart func(cmd Command, line string)
	OnDone  func(Run)

	queue  chan Command
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	busy   bool
}

// NewRunner validates template and starts the worker. A zero timeout lets
// commands run until they exit.
func NewRunner(template string, timeout time.Duration, output OutputFunc) (*Runner, error) {
	if err := ValidateTemplate(template); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		template: template,
		timeout:  timeout,
		output:   output,
		queue:    make(chan Command, QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	r.wg.Add(1)
	go r.work()
	return r, nil
}

// Submit queues cmd behind any running command.
func (r *Runner) Submit(cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	select {
	case r.queue <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Busy reports whether a command is running or waiting.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy || len(r.queue) > 0
}

// Close kills the running command, drops queued ones and waits for the
// worker to exit.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func (r *Runner) work() {
	defer r.wg.Done()
	for cmd := range r.queue {
		if r.ctx.Err() != nil {
			continue
		}
		r.setBusy(true)
		run := r.run(cmd)
		r.setBusy(false)
		if r.OnDone != nil {
			r.OnDone(run)
		}
	}
}

func (r *Runner) setBusy(b bool) {
	r.mu.Lock()
	r.busy = b
	r.mu.Unlock()
}

func (r *Runner) run(cmd Command) Run {
	line := Expand(r.template, cmd)
	if r.OnStart != nil {
		r.OnStart(cmd, line)
	}
	ctx := r.ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	res := Run{Command: cmd, Line: line, ExitCode: -1}

	c := shellCommand(ctx, line)
	c.WaitDelay = waitDelay
	stderr := &tailBuffer{max: stderrTail}
	stdout := &lineWriter{emit: func(l string) {
		if r.output != nil {
			r.output(cmd, l)
		}
	}}
	c.Stdout = stdout
	c.Stderr = stderr
	if err := c.Start(); err != nil {
		res.Err = &CommandError{Line: line, ExitCode: -1, Err: err}
		return res
	}

	err := c.Wait()
	stdout.flush()
	res.Elapsed = time.Since(start)
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
		res.Err = &CommandError{Line: line, ExitCode: res.ExitCode, Stderr: stderr.String(), Err: err}
	}
	return res
}

func shellCommand(ctx context.Context, line string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", line)
	}
	return exec.CommandContext(ctx, "sh", "-c", line)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return strings.TrimSpace(string(t.buf)) }

// lineWriter calls emit for every complete line written to it.
type lineWriter struct {
	emit    func(string)
	partial []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	n := len(p)
	for {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			break
		}
		w.partial = append(w.partial, p[:i]...)
		w.emit(strings.TrimSuffix(string(w.partial), "\r"))
		w.partial = w.partial[:0]
		p = p[i+1:]
	}
	w.partial = append(w.partial, p...)
	return n, nil
}

func (w *lineWriter) flush() {
	if len(w.partial) > 0 {
		w.emit(string(w.partial))
		w.partial = nil
	}
}
