package directors_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"mddb/src/directors"
	"mddb/src/engine"
	"mddb/src/memstore"
	"mddb/src/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type scriptedPrompter struct {
	mu      sync.Mutex
	answers []string
}

func (p *scriptedPrompter) Ask(ctx context.Context, question string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.answers) == 0 {
		return "", errors.New("no scripted answer left")
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

type fixture struct {
	db         *engine.Database
	store      *memstore.Store
	args       *settings.Arguments
	service    *directors.ProjectService
	cleanup    *directors.CleanupService
	journalDir string
	dataDir    string
}

func newFixture(t *testing.T, prompter engine.Prompter) *fixture {
	t.Helper()

	f := &fixture{
		store:      memstore.New(16),
		args:       settings.Defaults(),
		journalDir: t.TempDir(),
		dataDir:    t.TempDir(),
	}
	logger := zaptest.NewLogger(t).Sugar()
	f.db = engine.NewDatabase(f.store, engine.NewJournal("test", f.journalDir), prompter, logger)
	require.NoError(t, f.db.Bootstrap(context.Background()))
	f.service = directors.NewProjectService(f.db, f.args, logger)
	f.cleanup = directors.NewCleanupService(f.db, f.args, logger)

	f.write(t, "structure.pdb", "ATOM      1  N   LYS A   1")
	f.write(t, "data/trajectory.bin", "0123456789012345678901234567890123456789")
	f.write(t, "pca.pdb", "MODEL 1")
	f.write(t, "rmsd.json", `{"data": [0.1, 0.2, 0.3]}`)
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()

	path := filepath.Join(f.dataDir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (f *fixture) manifest(t *testing.T, content string) *directors.Manifest {
	t.Helper()

	path := filepath.Join(f.dataDir, "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	manifest, err := directors.LoadManifest(path)
	require.NoError(t, err)
	return manifest
}

func journalFiles(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.args.Policy = "ask"

	project, err := f.service.Load(ctx, f.manifest(t, sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "A0001", project.Accession())
	assert.Equal(t, []int{0, 1}, project.ActiveMDs())
	assert.NotNil(t, project.FindFile("structure.pdb", engine.ProjectScope))
	assert.NotNil(t, project.FindFile("trajectory.bin", 0))
	assert.NotNil(t, project.FindFile("pca.pdb", 0))
	assert.NotNil(t, project.FindAnalysis("summary", engine.ProjectScope))
	assert.NotNil(t, project.FindAnalysis("rmsd", 0))
	assert.Equal(t, "Lysozyme in water", project.Metadata()["NAME"])

	topology, err := project.GetTopology(ctx)
	require.NoError(t, err)
	assert.NotNil(t, topology)

	assert.Equal(t, 3, f.store.Raw("fs.files").Len())
	assert.Equal(t, 2, f.store.Raw("analyses").Len())
	assert.Equal(t, 1, f.store.Raw("ligands").Len())

	// A finished load leaves nothing to revert
	assert.True(t, f.db.Journal().Empty())
	assert.Equal(t, 0, journalFiles(t, f.journalDir))
}

func TestLoadIntoExistingProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	first, err := f.service.Load(ctx, f.manifest(t, sampleManifest))
	require.NoError(t, err)
	structureID := first.FindFile("structure.pdb", engine.ProjectScope).ID

	t.Run("unchanged content is kept without asking", func(t *testing.T) {
		f.args.Policy = "conserve"
		manifest := f.manifest(t, sampleManifest)
		manifest.Project = "A0001"

		project, err := f.service.Load(ctx, manifest)
		require.NoError(t, err)
		assert.Equal(t, first.ID(), project.ID())
		assert.Equal(t, structureID, project.FindFile("structure.pdb", engine.ProjectScope).ID)
		assert.Equal(t, []int{0, 1}, project.ActiveMDs())
		assert.Equal(t, 3, f.store.Raw("fs.files").Len())
		assert.Equal(t, 2, f.store.Raw("analyses").Len())
	})

	t.Run("changed content is replaced when overwriting", func(t *testing.T) {
		f.args.Policy = "overwrite"
		f.write(t, "structure.pdb", "ATOM      1  CA  LYS A   1")
		manifest := f.manifest(t, sampleManifest)
		manifest.Project = "A0001"

		project, err := f.service.Load(ctx, manifest)
		require.NoError(t, err)
		ref := project.FindFile("structure.pdb", engine.ProjectScope)
		require.NotNil(t, ref)
		assert.NotEqual(t, structureID, ref.ID)
		assert.Equal(t, 3, f.store.Raw("fs.files").Len())
	})

	t.Run("unknown project", func(t *testing.T) {
		manifest := f.manifest(t, "project: Z9999\n")
		_, err := f.service.Load(ctx, manifest)
		assert.True(t, engine.NotFound.Has(err))
	})
}

func TestLoadFailureReverts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.args.Force = true

	broken := sampleManifest + "  - name: replica 3\n    files:\n      - path: missing.bin\n"
	_, err := f.service.Load(ctx, f.manifest(t, broken))
	require.Error(t, err)
	assert.True(t, engine.NotFound.Has(err))

	project, err := f.db.FindProject(ctx, "A0001")
	require.NoError(t, err)
	assert.Nil(t, project)

	last, err := f.db.GetLastAccession(ctx)
	require.NoError(t, err)
	assert.Empty(t, last)

	for _, name := range []string{"fs.files", "fs.chunks", "analyses", "topologies", "ligands"} {
		assert.Equal(t, 0, f.store.Raw(name).Len(), name)
	}
	assert.Equal(t, 0, journalFiles(t, f.journalDir))
}

func TestLoadAborted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.args.Force = true

	calls := 0
	f.db.SetAbortPredicate(func() bool {
		calls++
		return calls > 3
	})

	_, err := f.service.Load(ctx, f.manifest(t, sampleManifest))
	assert.True(t, engine.Aborted.Has(err))

	f.db.SetAbortPredicate(nil)
	projects, err := f.db.ListProjects(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.Equal(t, 0, f.store.Raw("fs.files").Len())
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.service.Load(ctx, f.manifest(t, "metadata:\n  NAME: empty\n"))
	require.NoError(t, err)

	require.NoError(t, f.service.Publish(ctx, "A0001", true))
	project, err := f.db.SyncProject(ctx, "A0001")
	require.NoError(t, err)
	assert.True(t, project.Published())

	require.NoError(t, f.service.Publish(ctx, "A0001", false))
	project, err = f.db.SyncProject(ctx, "A0001")
	require.NoError(t, err)
	assert.False(t, project.Published())

	assert.True(t, engine.NotFound.Has(f.service.Publish(ctx, "Z9999", true)))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	prompter := &scriptedPrompter{answers: []string{"n", "y"}}
	f := newFixture(t, prompter)
	_, err := f.service.Load(ctx, f.manifest(t, sampleManifest))
	require.NoError(t, err)

	deleted, err := f.service.Delete(ctx, "A0001")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = f.service.Delete(ctx, "A0001")
	require.NoError(t, err)
	assert.True(t, deleted)

	project, err := f.db.FindProject(ctx, "A0001")
	require.NoError(t, err)
	assert.Nil(t, project)
	for _, name := range []string{"projects", "fs.files", "fs.chunks", "analyses", "topologies", "ligands"} {
		assert.Equal(t, 0, f.store.Raw(name).Len(), name)
	}
}

func TestRenameAndFind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	project, err := f.service.Load(ctx, f.manifest(t, sampleManifest))
	require.NoError(t, err)
	fileID := project.FindFile("trajectory.bin", 0).ID

	require.NoError(t, f.service.RenameFile(ctx, "A0001", "trajectory.bin", "md.trajectory.bin", 0))

	document, key, err := f.service.Find(ctx, fileID.Hex())
	require.NoError(t, err)
	assert.Equal(t, engine.FilesKey, key)
	assert.Equal(t, "md.trajectory.bin", document["filename"])

	document, key, err = f.service.Find(ctx, "a0001")
	require.NoError(t, err)
	assert.Equal(t, engine.ProjectsKey, key)
	assert.Equal(t, project.ID(), document["_id"])

	document, _, err = f.service.Find(ctx, "Z9999")
	require.NoError(t, err)
	assert.Nil(t, document)

	reports, err := f.service.Inconsistencies(ctx, "A0001")
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestRevertJournalFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.args.Force = true

	// A run that died after creating its project
	journal := engine.NewJournal("crashed", f.journalDir)
	crashed := engine.NewDatabase(f.store, journal, nil, zaptest.NewLogger(t).Sugar())
	_, err := crashed.CreateProject(ctx, "")
	require.NoError(t, err)
	require.NoError(t, journal.Close())
	path := journal.FilePath()
	require.NotEmpty(t, path)

	require.NoError(t, f.service.Revert(ctx, path))

	project, err := f.db.FindProject(ctx, "A0001")
	require.NoError(t, err)
	assert.Nil(t, project)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
