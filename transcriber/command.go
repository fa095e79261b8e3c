package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/alessio/shellescape"

	"voxkey/encoder"
)

// Command runs a local speech-to-text program on a temporary WAV file.
// The template's $FILE placeholder is replaced with the quoted path and the
// program's stdout is the transcript, e.g.
//
//	whisper-cli -m ggml-base.en.bin -nt -np -f $FILE
type Command struct {
	template string
	tmpDir   string
}

func NewCommand(template string) (*Command, error) {
	if !strings.Contains(template, "$FILE") {
		return nil, fmt.Errorf("command transcriber: template must contain $FILE")
	}
	return &Command{template: template}, nil
}

func (c *Command) Name() string { return "command" }

func (c *Command) Transcribe(ctx context.Context, pcm []int16) (*Result, error) {
	start := time.Now()
	f, err := os.CreateTemp(c.tmpDir, "voxkey-*.wav")
	if err != nil {
		return nil, wrapErr(c.Name(), err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := encoder.WriteWAV(path, pcm); err != nil {
		return nil, wrapErr(c.Name(), err)
	}
	encodeTime := time.Since(start)

	line := strings.ReplaceAll(c.template, "$FILE", shellescape.Quote(filepath.Clean(path)))
	var stdout, stderr bytes.Buffer
	cmd := shellCommand(ctx, line)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrapErr(c.Name(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())))
	}

	return &Result{
		Text:       strings.Join(strings.Fields(stdout.String()), " "),
		AudioS:     audioSeconds(pcm),
		EncodeTime: encodeTime,
		Elapsed:    time.Since(start),
	}, nil
}

func shellCommand(ctx context.Context, line string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", line)
	}
	return exec.CommandContext(ctx, "sh", "-c", line)
}
