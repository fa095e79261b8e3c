package agent

import (
	"errors"
	"strings"

	"github.com/alessio/shellescape"
)

var ErrTemplate = errors.New("agent template must contain $PROMPT")

// ValidateTemplate checks a command template before any command runs.
func ValidateTemplate(template string) error {
	if !strings.Contains(template, "$PROMPT") {
		return ErrTemplate
	}
	return nil
}

// Expand substitutes $AGENT and $PROMPT with shell-quoted values, so
// dictated text is always a single word to the shell.
func Expand(template string, cmd Command) string {
	r := strings.NewReplacer(
		"$AGENT", shellescape.Quote(cmd.Agent),
		"$PROMPT", shellescape.Quote(cmd.Prompt),
	)
	return r.Replace(template)
}
