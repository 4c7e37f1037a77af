package directors_test

import (
	"context"
	"testing"

	"mddb/src/directors"
	"mddb/src/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	prompter := &scriptedPrompter{answers: []string{"y", "n"}}
	f := newFixture(t, prompter)
	_, err := f.service.Load(ctx, f.manifest(t, sampleManifest))
	require.NoError(t, err)

	// An analysis of a project that never existed
	require.NoError(t, f.store.Raw("analyses").InsertOne(ctx, bson.M{
		"name":    "rmsd",
		"project": primitive.NewObjectID(),
		"md":      nil,
	}))

	orphans, err := f.cleanup.FindOrphans(ctx, directors.AllOrphans)
	require.NoError(t, err)
	assert.Len(t, orphans, len(engine.OrphanKeys()))
	assert.Len(t, orphans["analyses"], 1)
	assert.Empty(t, orphans["files"])

	orphans, err = f.cleanup.FindOrphans(ctx, "analyses")
	require.NoError(t, err)
	assert.Len(t, orphans, 1)
	assert.Len(t, orphans["analyses"], 1)

	_, err = f.cleanup.FindOrphans(ctx, "projects")
	assert.Error(t, err)
	_, err = f.cleanup.DeleteOrphans(ctx, "projects")
	assert.Error(t, err)

	// The second confirmation is refused
	deleted, err := f.cleanup.DeleteOrphans(ctx, "analyses")
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Equal(t, 3, f.store.Raw("analyses").Len())

	f.args.Force = true
	deleted, err = f.cleanup.DeleteOrphans(ctx, directors.AllOrphans)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, 2, f.store.Raw("analyses").Len())
}
