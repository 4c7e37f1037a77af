package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"mddb/src/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestJournalMirror(t *testing.T) {
	dir := t.TempDir()
	journal := engine.NewJournal("run-42", dir)
	assert.Empty(t, journal.FilePath())

	first := primitive.NewObjectID()
	second := primitive.NewObjectID()
	require.NoError(t, journal.SetIssuedAccession("A0007"))
	require.NoError(t, journal.AddEntry("project", engine.ProjectsKey, first))
	require.NoError(t, journal.AddEntry("file", engine.FilesKey, second))
	require.NoError(t, journal.Close())

	loaded, err := engine.LoadJournal(journal.FilePath())
	require.NoError(t, err)
	assert.Equal(t, "A0007", loaded.IssuedAccession())
	entries := loaded.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0].ID)
	assert.Equal(t, engine.ProjectsKey, entries[0].Collection)
	assert.Equal(t, second, entries[1].ID)
	assert.Equal(t, "file", entries[1].Label)

	require.NoError(t, loaded.Discard())
	_, err = os.Stat(journal.FilePath())
	assert.True(t, os.IsNotExist(err))
	assert.True(t, loaded.Empty())
}

func TestJournalInMemory(t *testing.T) {
	journal := engine.NewJournal("run", "")
	require.NoError(t, journal.AddEntry("analysis", engine.AnalysesKey, primitive.NewObjectID()))
	assert.Equal(t, 1, journal.Len())
	assert.Empty(t, journal.FilePath())
	require.NoError(t, journal.Discard())
	assert.True(t, journal.Empty())
}

func TestLoadJournalMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.journal")
	require.NoError(t, os.WriteFile(path, []byte("2026-01-02T15:04:05Z | project | projects\n"), 0600))

	_, err := engine.LoadJournal(path)
	assert.Error(t, err)

	_, err = engine.LoadJournal(filepath.Join(t.TempDir(), "missing.journal"))
	assert.Error(t, err)
}
