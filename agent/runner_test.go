package agent

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"
)

func skipWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
	runs  chan Run
}

func newCollector() *collector { return &collector{runs: make(chan Run, 16)} }

func (c *collector) output(_ Command, line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *collector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *collector) wait(t *testing.T) Run {
	t.Helper()
	select {
	case r := <-c.runs:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command")
	}
	return Run{}
}

func TestRunnerStreamsStdout(t *testing.T) {
	skipWindows(t)
	col := newCollector()
	r, err := NewRunner(`printf '%s\n' $AGENT; printf '%s\n' $PROMPT; printf 'no newline'`, 0, col.output)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	r.OnDone = func(run Run) { col.runs <- run }

	if err := r.Submit(Command{Agent: "home", Prompt: "turn on; the lights"}); err != nil {
		t.Fatal(err)
	}
	run := col.wait(t)
	if run.Err != nil || run.ExitCode != 0 {
		t.Fatalf("run = %+v", run)
	}
	want := []string{"home", "turn on; the lights", "no newline"}
	got := col.Lines()
	if len(got) != len(want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunnerOutputArrivesBeforeExit(t *testing.T) {
	skipWindows(t)
	first := make(chan time.Time, 1)
	r, err := NewRunner(`echo $PROMPT; sleep 0.3`, 0, func(Command, string) {
		select {
		case first <- time.Now():
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	done := make(chan time.Time, 1)
	r.OnDone = func(Run) { done <- time.Now() }

	r.Submit(Command{Agent: "a", Prompt: "hi"})
	var at, end time.Time
	select {
	case at = <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("no output")
	}
	select {
	case end = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("command did not finish")
	}
	if end.Sub(at) < 200*time.Millisecond {
		t.Errorf("output delivered %v before exit, want streaming", end.Sub(at))
	}
}

func TestRunnerFailure(t *testing.T) {
	skipWindows(t)
	col := newCollector()
	r, err := NewRunner(`echo broken $PROMPT >&2; exit 4`, 0, col.output)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	r.OnDone = func(run Run) { col.runs <- run }

	r.Submit(Command{Agent: "a", Prompt: "pipe"})
	run := col.wait(t)
	if !errors.Is(run.Err, ErrCommand) {
		t.Fatalf("err = %v, want ErrCommand", run.Err)
	}
	var ce *CommandError
	if !errors.As(run.Err, &ce) {
		t.Fatalf("err %T is not a CommandError", run.Err)
	}
	if ce.ExitCode != 4 || ce.Stderr != "broken pipe" {
		t.Errorf("CommandError = %+v", ce)
	}

	// the runner keeps working after a failure
	r.Submit(Command{Agent: "a", Prompt: "again"})
	if run := col.wait(t); run.Command.Prompt != "again" {
		t.Errorf("second run = %+v", run)
	}
}

func TestRunnerSerializesCommands(t *testing.T) {
	skipWindows(t)
	var mu sync.Mutex
	running, maxRunning := 0, 0
	r, err := NewRunner(`sleep 0.05; echo $PROMPT`, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	done := make(chan Run, 8)
	var order []string
	r.OnStart = func(Command, string) {
		mu.Lock()
		running++
		maxRunning = max(maxRunning, running)
		mu.Unlock()
	}
	r.OnDone = func(run Run) {
		mu.Lock()
		running--
		order = append(order, run.Command.Prompt)
		mu.Unlock()
		done <- run
	}

	for _, p := range []string{"1", "2", "3"} {
		if err := r.Submit(Command{Agent: "a", Prompt: p}); err != nil {
			t.Fatal(err)
		}
	}
	for range 3 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if maxRunning != 1 {
		t.Errorf("max concurrent commands = %d, want 1", maxRunning)
	}
	if len(order) != 3 || order[0] != "1" || order[1] != "2" || order[2] != "3" {
		t.Errorf("order = %v", order)
	}
}

func TestRunnerTimeout(t *testing.T) {
	skipWindows(t)
	col := newCollector()
	r, err := NewRunner(`sleep 5 # $PROMPT`, 100*time.Millisecond, col.output)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	r.OnDone = func(run Run) { col.runs <- run }

	start := time.Now()
	r.Submit(Command{Agent: "a", Prompt: "p"})
	run := col.wait(t)
	if !errors.Is(run.Err, ErrCommand) {
		t.Errorf("err = %v", run.Err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("timeout not enforced: took %v", time.Since(start))
	}
}

func TestRunnerQueueFull(t *testing.T) {
	skipWindows(t)
	r, err := NewRunner(`sleep 5 # $PROMPT`, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	accepted := 0
	var last error
	for range QueueSize + 2 {
		last = r.Submit(Command{Agent: "a", Prompt: "p"})
		if last == nil {
			accepted++
		}
	}
	if !errors.Is(last, ErrQueueFull) {
		t.Errorf("last Submit = %v, want ErrQueueFull", last)
	}
	// the worker may already hold the first command
	if accepted < QueueSize || accepted > QueueSize+1 {
		t.Errorf("accepted %d commands", accepted)
	}
}

func TestRunnerClosed(t *testing.T) {
	r, err := NewRunner(`echo $PROMPT`, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
	r.Close()
	if err := r.Submit(Command{Agent: "a"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v", err)
	}
}

func TestNewRunnerRejectsTemplate(t *testing.T) {
	if _, err := NewRunner("agent $AGENT", 0, nil); !errors.Is(err, ErrTemplate) {
		t.Errorf("err = %v", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 4}
	tb.Write([]byte("abc"))
	tb.Write([]byte("defg"))
	if got := tb.String(); got != "defg" {
		t.Errorf("tail = %q", got)
	}
}
