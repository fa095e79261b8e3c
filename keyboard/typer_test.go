package keyboard

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTyperFinal(t *testing.T) {
	out := NewFake()
	ty := NewTyper(out, 0)
	ty.Final(1, []Action{Text("hello "), ComboAction("ctrl+z"), Text("world")})
	ty.Close()

	if got := out.Screen(); got != "hello world " {
		t.Errorf("screen = %q", got)
	}
	want := "type:hello |combo:ctrl+z|type:world|type: "
	if got := out.String(); got != want {
		t.Errorf("log = %q, want %q", got, want)
	}
}

func TestTyperPreviewReplacedByFinal(t *testing.T) {
	out := NewFake()
	out.Type("before ")
	ty := NewTyper(out, 0)
	ty.Preview(1, "turn of")
	ty.Preview(1, "turn on the")
	ty.Final(1, []Action{Text("Turn on the lights")})
	ty.Close()

	if got := out.Screen(); got != "before Turn on the lights " {
		t.Errorf("screen = %q", got)
	}
	log := out.String()
	// the second preview only retypes what changed after "turn o"
	if !strings.Contains(log, "backspace:1|type:n the") {
		t.Errorf("preview not edited in place: %s", log)
	}
	if !strings.Contains(log, "backspace:11|type:Turn on the lights") {
		t.Errorf("final did not erase preview: %s", log)
	}
}

func TestTyperPreviewsPerUtterance(t *testing.T) {
	out := NewFake()
	ty := NewTyper(out, 0)
	ty.Preview(1, "one")
	ty.Final(1, []Action{Text("one")})
	ty.Final(2, []Action{Text("two")})
	ty.Close()

	if got := out.Screen(); got != "one two " {
		t.Errorf("screen = %q", got)
	}
}

func TestTyperChunkDelay(t *testing.T) {
	out := NewFake()
	ty := NewTyper(out, 10*time.Millisecond)
	start := time.Now()
	ty.Final(1, []Action{Text("a b c d")})
	ty.Close()

	if time.Since(start) < 30*time.Millisecond {
		t.Errorf("typed too fast: %v", time.Since(start))
	}
	if got := out.Screen(); got != "a b c d " {
		t.Errorf("screen = %q", got)
	}
}

func TestTyperReportsErrors(t *testing.T) {
	out := NewFake()
	out.Err = errors.New("no display")
	ty := NewTyper(out, 0)
	errs := make(chan error, 4)
	ty.OnError = func(err error) { errs <- err }
	ty.Final(1, []Action{Text("x")})
	ty.Close()

	select {
	case err := <-errs:
		if !errors.Is(err, out.Err) {
			t.Errorf("err = %v", err)
		}
	default:
		t.Error("error not reported")
	}
	if err := ty.Final(2, nil); err == nil {
		t.Error("enqueue after Close succeeded")
	}
}

func TestChunks(t *testing.T) {
	got := chunks("ab  cd\nef")
	want := []string{"ab  ", "cd\n", "ef"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("chunks = %q", got)
	}
}

func TestCommonPrefix(t *testing.T) {
	if n := commonPrefix("héllo", "hélp"); n != len("hél") {
		t.Errorf("commonPrefix = %d", n)
	}
}
