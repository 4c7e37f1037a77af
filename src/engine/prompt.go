package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Prompter asks the operator a question and returns the raw answer
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Confirmer is implemented by prompters with their own yes/no dialog
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Policy is the operator's standing answer to duplicate data
type Policy string

const (
	// PolicyAsk leaves every conflict to the operator
	PolicyAsk Policy = ""
	// PolicyConserve keeps what is already stored
	PolicyConserve Policy = "conserve"
	// PolicyOverwrite replaces what is stored with the incoming data
	PolicyOverwrite Policy = "overwrite"
)

// ParsePolicy converts a command line value into a Policy
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "ask":
		return PolicyAsk, nil
	case "conserve", "c":
		return PolicyConserve, nil
	case "overwrite", "o":
		return PolicyOverwrite, nil
	}
	return PolicyAsk, Error.New("unknown conflict policy %q", value)
}

// Action is the outcome of a conflict decision
type Action int

const (
	ActionPrompt Action = iota
	ActionConserve
	ActionOverwrite
)

func (a Action) String() string {
	switch a {
	case ActionConserve:
		return "conserve"
	case ActionOverwrite:
		return "overwrite"
	}
	return "prompt"
}

// ResolveConflict maps a policy to an action without talking to anyone
func ResolveConflict(policy Policy) Action {
	switch policy {
	case PolicyConserve:
		return ActionConserve
	case PolicyOverwrite:
		return ActionOverwrite
	}
	return ActionPrompt
}

// askUntil repeats the question until parse accepts the answer
func askUntil(ctx context.Context, prompter Prompter, question string, parse func(string) bool) error {
	if prompter == nil {
		return Conflict.New("operator input required: %s", question)
	}
	for {
		answer, err := prompter.Ask(ctx, question)
		if err != nil {
			return err
		}
		if parse(strings.TrimSpace(answer)) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Confirm asks a yes/no question
func Confirm(ctx context.Context, prompter Prompter, question string) (bool, error) {
	if confirmer, ok := prompter.(Confirmer); ok {
		return confirmer.Confirm(ctx, question)
	}

	var yes bool
	err := askUntil(ctx, prompter, question+" (y/n)", func(answer string) bool {
		switch strings.ToLower(answer) {
		case "y", "yes":
			yes = true
			return true
		case "n", "no":
			return true
		}
		return false
	})
	return yes, err
}

// askConserveOverwrite asks the operator to settle one conflict
func askConserveOverwrite(ctx context.Context, prompter Prompter, question string) (Action, error) {
	action := ActionPrompt
	err := askUntil(ctx, prompter, question+" (C)onserve / (O)verwrite", func(answer string) bool {
		switch strings.ToLower(answer) {
		case "c", "conserve":
			action = ActionConserve
			return true
		case "o", "overwrite":
			action = ActionOverwrite
			return true
		}
		return false
	})
	return action, err
}

// chooseIndex asks the operator to pick one of the valid indexes
func chooseIndex(ctx context.Context, prompter Prompter, question string, valid []int) (int, error) {
	options := make([]string, len(valid))
	for i, v := range valid {
		options[i] = strconv.Itoa(v)
	}
	chosen := -1
	err := askUntil(ctx, prompter, fmt.Sprintf("%s [%s]", question, strings.Join(options, ", ")), func(answer string) bool {
		n, err := strconv.Atoi(answer)
		if err != nil {
			return false
		}
		for _, v := range valid {
			if v == n {
				chosen = n
				return true
			}
		}
		return false
	})
	return chosen, err
}
