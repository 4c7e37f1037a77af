package engine_test

import (
	"bytes"
	"context"
	"testing"

	"mddb/src/engine"
	"mddb/src/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupLabels(t *testing.T) {
	assert.Equal(t, "clusters", engine.AnalysisGroupLabel("clusters"))
	assert.Equal(t, "clusters", engine.AnalysisGroupLabel("clusters-01"))
	assert.Equal(t, "pca", engine.AnalysisGroupLabel("pca-2"))
	assert.Empty(t, engine.AnalysisGroupLabel("rmsd"))
	assert.Empty(t, engine.AnalysisGroupLabel("rmsd-1"))
	assert.Empty(t, engine.AnalysisGroupLabel("clusters-x"))

	assert.Equal(t, "clusters", engine.FileGroupLabel("clusters.pdb"))
	assert.Equal(t, "clusters", engine.FileGroupLabel("clusters_01.pdb"))
	assert.Equal(t, "pca", engine.FileGroupLabel("pca.trajectory_01.bin"))
	assert.Equal(t, "markov", engine.FileGroupLabel("markov_states.pdb"))
	assert.Empty(t, engine.FileGroupLabel("structure.pdb"))
}

func TestDeleteAssociatedGroup(t *testing.T) {
	ctx := context.Background()
	db, store := newTestDatabase(t, nil)
	project := newTestProject(t, db)
	md, err := project.AddMDirectory(ctx, "replica 1", nil)
	require.NoError(t, err)

	addAnalysis(t, project, "clusters", md)
	addAnalysis(t, project, "clusters-01", md)
	addFile(t, project, "clusters.pdb", "MODEL", md)
	addAnalysis(t, project, "rmsd", md)

	members := project.FindAssociatedData("clusters", md)
	assert.ElementsMatch(t, []engine.AssociatedMember{
		{Name: "clusters"},
		{Name: "clusters-01"},
		{Name: "clusters.pdb", IsFile: true},
	}, members)

	require.NoError(t, project.DeleteAnalysis(ctx, "clusters-01", md, true))

	assert.Empty(t, project.FindAssociatedData("clusters", md))
	assert.NotNil(t, project.FindAnalysis("rmsd", md))
	assert.Equal(t, 1, store.Raw("analyses").Len())
	assert.Equal(t, 0, store.Raw("fs.files").Len())

	stored, err := db.SyncProject(ctx, project.Accession())
	require.NoError(t, err)
	assert.Empty(t, stored.FindAssociatedData("clusters", md))
}

func TestDeleteSingleGroupMember(t *testing.T) {
	ctx := context.Background()
	db, store := newTestDatabase(t, nil)
	project := newTestProject(t, db)

	addAnalysis(t, project, "pca", engine.ProjectScope)
	addAnalysis(t, project, "pca-1", engine.ProjectScope)

	// Without group handling only the named member goes
	require.NoError(t, project.DeleteAnalysis(ctx, "pca", engine.ProjectScope, false))
	assert.NotNil(t, project.FindAnalysis("pca-1", engine.ProjectScope))
	assert.Equal(t, 1, store.Raw("analyses").Len())
}

func TestForestallAnalysisLoad(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		db, _ := newTestDatabase(t, nil)
		project := newTestProject(t, db)

		load, err := project.ForestallAnalysisLoad(context.Background(), "rmsd", engine.ProjectScope, engine.PolicyAsk)
		require.NoError(t, err)
		assert.True(t, load)
	})

	t.Run("GroupDecisionIsCached", func(t *testing.T) {
		ctx := context.Background()
		prompter := newScriptedPrompter("o")
		db, store := newTestDatabase(t, prompter)
		project := newTestProject(t, db)
		addAnalysis(t, project, "clusters", engine.ProjectScope)
		addAnalysis(t, project, "clusters-01", engine.ProjectScope)
		addFile(t, project, "clusters.pdb", "MODEL", engine.ProjectScope)

		for _, name := range []string{"clusters", "clusters-01"} {
			load, err := project.ForestallAnalysisLoad(ctx, name, engine.ProjectScope, engine.PolicyAsk)
			require.NoError(t, err)
			assert.True(t, load, name)
		}
		load, err := project.ForestallFileLoad(ctx, "clusters.pdb", engine.ProjectScope, engine.PolicyAsk, "")
		require.NoError(t, err)
		assert.True(t, load)

		assert.Equal(t, 1, prompter.asked())
		assert.Equal(t, 0, store.Raw("analyses").Len())
		assert.Equal(t, 0, store.Raw("fs.files").Len())
	})

	t.Run("ConservePolicy", func(t *testing.T) {
		ctx := context.Background()
		db, _ := newTestDatabase(t, nil)
		project := newTestProject(t, db)
		addAnalysis(t, project, "rmsd", engine.ProjectScope)

		load, err := project.ForestallAnalysisLoad(ctx, "rmsd", engine.ProjectScope, engine.PolicyConserve)
		require.NoError(t, err)
		assert.False(t, load)
		assert.NotNil(t, project.FindAnalysis("rmsd", engine.ProjectScope))
	})

	t.Run("NoOperator", func(t *testing.T) {
		ctx := context.Background()
		db, _ := newTestDatabase(t, nil)
		project := newTestProject(t, db)
		addAnalysis(t, project, "rmsd", engine.ProjectScope)

		_, err := project.ForestallAnalysisLoad(ctx, "rmsd", engine.ProjectScope, engine.PolicyAsk)
		assert.True(t, engine.Conflict.Has(err))
	})
}

func TestForestallFileLoadSameContent(t *testing.T) {
	ctx := context.Background()
	prompter := newScriptedPrompter()
	db, _ := newTestDatabase(t, prompter)
	project := newTestProject(t, db)
	addFile(t, project, "structure.pdb", "ATOM 1 CA", engine.ProjectScope)

	same := helpers.NewDigestReader(bytes.NewBufferString("ATOM 1 CA"))
	_, err := same.Read(make([]byte, 32))
	require.NoError(t, err)

	load, err := project.ForestallFileLoad(ctx, "structure.pdb", engine.ProjectScope, engine.PolicyOverwrite, same.Sum())
	require.NoError(t, err)
	assert.False(t, load)
	assert.Equal(t, 0, prompter.asked())

	load, err = project.ForestallFileLoad(ctx, "structure.pdb", engine.ProjectScope, engine.PolicyOverwrite, "different")
	require.NoError(t, err)
	assert.True(t, load)
	assert.Nil(t, project.FindFile("structure.pdb", engine.ProjectScope))
}
