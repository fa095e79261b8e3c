package agent

import (
	"testing"
	"time"
)

var t0 = time.Unix(1000, 0)

func TestFlushSplitsAgentAndPrompt(t *testing.T) {
	b := NewBuffer(2 * time.Second)
	b.Append("Home", t0)
	b.Append("turn on", t0.Add(time.Second))
	b.Append("the lights", t0.Add(2*time.Second))

	if b.Due(t0.Add(3 * time.Second)) {
		t.Fatal("due before timeout since last append")
	}
	if !b.Due(t0.Add(4 * time.Second)) {
		t.Fatal("not due after timeout")
	}
	cmd, ok := b.Flush()
	if !ok {
		t.Fatal("flush produced no command")
	}
	if cmd.Agent != "home" || cmd.Prompt != "turn on the lights" {
		t.Errorf("command = %+v", cmd)
	}
	if b.Len() != 0 || b.Due(t0.Add(time.Hour)) {
		t.Error("buffer not reset after flush")
	}
}

func TestDiscardRunsNothing(t *testing.T) {
	b := NewBuffer(2 * time.Second)
	b.Append("home turn on the lights", t0)
	b.Discard()
	if b.Len() != 0 {
		t.Errorf("Len = %d after discard", b.Len())
	}
	if b.Due(t0.Add(time.Hour)) {
		t.Error("discarded buffer is due")
	}
	if _, ok := b.Flush(); ok {
		t.Error("flush after discard produced a command")
	}
}

func TestAppendWhitespaceDoesNotArm(t *testing.T) {
	b := NewBuffer(0)
	b.Append("  \n ", t0)
	if b.Due(t0) {
		t.Error("empty append armed the buffer")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		tokens []string
		want   Command
		ok     bool
	}{
		{[]string{"Home,", "turn", "on"}, Command{"home", "turn on"}, true},
		{[]string{"Claude."}, Command{"claude", ""}, true},
		{[]string{"Git-Hub!", "status"}, Command{"github", "status"}, true},
		{[]string{"...", "hello"}, Command{}, false},
		{nil, Command{}, false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.tokens)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Parse(%q) = %+v, %v; want %+v, %v", tt.tokens, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExpandQuotes(t *testing.T) {
	got := Expand("run-$AGENT --prompt $PROMPT", Command{Agent: "home", Prompt: "it's on; rm -rf /"})
	want := `run-home --prompt 'it'"'"'s on; rm -rf /'`
	if got != want {
		t.Errorf("Expand = %s, want %s", got, want)
	}
	if got := Expand("x $PROMPT", Command{Agent: "a"}); got != "x ''" {
		t.Errorf("empty prompt = %s", got)
	}
}

func TestValidateTemplate(t *testing.T) {
	if err := ValidateTemplate("agent $AGENT"); err == nil {
		t.Error("template without $PROMPT accepted")
	}
	if err := ValidateTemplate("echo $PROMPT"); err != nil {
		t.Error(err)
	}
}
