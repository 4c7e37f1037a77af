package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MDDB_MONGO_URI", "mongodb://db.example:27017")
	t.Setenv("MDDB_CHUNK_SIZE", "2048")
	t.Setenv("MDDB_DEBUG", "true")
	t.Setenv("MDDB_FORCE", "1")

	args := Defaults()
	require.NoError(t, Load(args))
	assert.Equal(t, "mongodb://db.example:27017", args.MongoURI)
	assert.Equal(t, 2048, args.ChunkSize)
	assert.True(t, args.Debug)
	assert.True(t, args.Force)
	assert.Equal(t, "mddb", args.Database)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mddb.env")
	require.NoError(t, os.WriteFile(path, []byte("MDDB_DATABASE=staging\nMDDB_POLICY=conserve\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("MDDB_DATABASE")
		os.Unsetenv("MDDB_POLICY")
	})

	args := Defaults()
	args.EnvFile = path
	require.NoError(t, Load(args))
	assert.Equal(t, "staging", args.Database)
	assert.Equal(t, "conserve", args.Policy)

	args.EnvFile = filepath.Join(t.TempDir(), "missing.env")
	assert.Error(t, Load(args))
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("MDDB_CHUNK_SIZE", "big")
	assert.Error(t, Load(Defaults()))
}

func TestValidate(t *testing.T) {
	args := Defaults()
	args.JournalDir = filepath.Join(t.TempDir(), "journals")
	require.NoError(t, Validate(args))
	info, err := os.Stat(args.JournalDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	cases := map[string]func(*Arguments){
		"uri":        func(a *Arguments) { a.MongoURI = "http://localhost" },
		"database":   func(a *Arguments) { a.Database = "" },
		"chunk size": func(a *Arguments) { a.ChunkSize = 10 },
		"policy":     func(a *Arguments) { a.Policy = "merge" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			args := Defaults()
			args.JournalDir = ""
			mutate(args)
			assert.Error(t, Validate(args))
		})
	}
}

// Every value the loader understands passes validation
func TestValidateAcceptsPolicies(t *testing.T) {
	for _, policy := range []string{"", "ask", "ASK", "conserve", "c", "Overwrite", "o"} {
		args := Defaults()
		args.JournalDir = ""
		args.Policy = policy
		assert.NoError(t, Validate(args), policy)
	}
}

func TestGetSettingsIsShared(t *testing.T) {
	assert.Same(t, GetSettings(), GetSettings())
}
