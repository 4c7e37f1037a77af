package helpers

import (
	"context"
	"strings"

	prompt "github.com/segmentio/go-prompt"
)

// ConsolePrompter asks questions on the process terminal. Answers are read
// from standard input one word at a time.
type ConsolePrompter struct{}

func NewConsolePrompter() *ConsolePrompter {
	return &ConsolePrompter{}
}

func (p *ConsolePrompter) Ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(prompt.String("%s", question)), nil
}

// Confirm keeps asking until the operator answers yes or no
func (p *ConsolePrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return prompt.Confirm("%s", question), nil
}
