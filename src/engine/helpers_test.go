package engine_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"mddb/src/engine"
	"mddb/src/memstore"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedPrompter answers questions from a fixed script
type scriptedPrompter struct {
	mu        sync.Mutex
	answers   []string
	questions []string
}

func newScriptedPrompter(answers ...string) *scriptedPrompter {
	return &scriptedPrompter{answers: answers}
}

func (p *scriptedPrompter) Ask(ctx context.Context, question string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.questions = append(p.questions, question)
	if len(p.answers) == 0 {
		return "", errors.New("no scripted answer left")
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

func (p *scriptedPrompter) asked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.questions)
}

func newTestDatabase(t *testing.T, prompter engine.Prompter) (*engine.Database, *memstore.Store) {
	t.Helper()

	store := memstore.New(16)
	db := engine.NewDatabase(store, engine.NewJournal("test", ""), prompter, zaptest.NewLogger(t).Sugar())
	require.NoError(t, db.Bootstrap(context.Background()))
	return db, store
}

func newTestProject(t *testing.T, db *engine.Database) *engine.Project {
	t.Helper()

	project, err := db.CreateProject(context.Background(), "")
	require.NoError(t, err)
	return project
}

func addFile(t *testing.T, project *engine.Project, name, content string, mdIndex int) {
	t.Helper()

	_, err := project.AddFile(context.Background(), name, bytes.NewBufferString(content), mdIndex)
	require.NoError(t, err)
}

func addAnalysis(t *testing.T, project *engine.Project, name string, mdIndex int) {
	t.Helper()

	_, err := project.AddAnalysis(context.Background(), name, map[string]interface{}{"step": 1}, mdIndex)
	require.NoError(t, err)
}

// frameList yields fixed frames
type frameList struct {
	frames [][]byte
	err    error
}

func (f *frameList) Next() ([]byte, error) {
	if len(f.frames) == 0 {
		if f.err != nil {
			return nil, f.err
		}
		return nil, io.EOF
	}
	frame := f.frames[0]
	f.frames = f.frames[1:]
	return frame, nil
}
