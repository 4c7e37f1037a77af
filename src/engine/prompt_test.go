package engine_test

import (
	"context"
	"testing"

	"mddb/src/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialogPrompter answers yes/no questions itself and fails on anything else
type dialogPrompter struct {
	yes       bool
	confirmed []string
}

func (p *dialogPrompter) Ask(ctx context.Context, question string) (string, error) {
	return "", engine.Error.New("unexpected question %q", question)
}

func (p *dialogPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	p.confirmed = append(p.confirmed, question)
	return p.yes, nil
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("reprompts until the answer is yes or no", func(t *testing.T) {
		prompter := newScriptedPrompter("maybe", "YES")
		yes, err := engine.Confirm(ctx, prompter, "Delete them?")
		require.NoError(t, err)
		assert.True(t, yes)
		assert.Equal(t, 2, prompter.asked())
	})

	t.Run("uses the prompter dialog when it has one", func(t *testing.T) {
		prompter := &dialogPrompter{yes: true}
		yes, err := engine.Confirm(ctx, prompter, "Delete them?")
		require.NoError(t, err)
		assert.True(t, yes)
		assert.Equal(t, []string{"Delete them?"}, prompter.confirmed)
	})

	t.Run("no prompter", func(t *testing.T) {
		_, err := engine.Confirm(ctx, nil, "Delete them?")
		assert.True(t, engine.Conflict.Has(err))
	})
}

func TestParsePolicy(t *testing.T) {
	for value, expected := range map[string]engine.Policy{
		"":          engine.PolicyAsk,
		"Ask":       engine.PolicyAsk,
		"conserve":  engine.PolicyConserve,
		" o ":       engine.PolicyOverwrite,
		"OVERWRITE": engine.PolicyOverwrite,
	} {
		policy, err := engine.ParsePolicy(value)
		require.NoError(t, err, value)
		assert.Equal(t, expected, policy, value)
	}

	_, err := engine.ParsePolicy("merge")
	assert.Error(t, err)
}
