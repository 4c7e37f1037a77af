package directors_test

import (
	"os"
	"path/filepath"
	"testing"

	"mddb/src/directors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
metadata:
  NAME: Lysozyme in water
  LIGANDS: [2244]
topology:
  atom_names: [N, CA, C]
references:
  - kind: ligands
    record:
      pubchem: 2244
      name: aspirin
files:
  - path: structure.pdb
analyses:
  - name: summary
    value:
      frames: 3
mds:
  - name: replica 1
    metadata:
      temperature: 300
    files:
      - path: data/trajectory.bin
        name: trajectory.bin
      - path: pca.pdb
    analyses:
      - name: rmsd
        path: rmsd.json
  - name: replica 2
`

func TestParseManifest(t *testing.T) {
	manifest, err := directors.ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "Lysozyme in water", manifest.Metadata["NAME"])
	require.Len(t, manifest.References, 1)
	assert.Equal(t, "ligands", manifest.References[0].Kind)
	require.Len(t, manifest.Files, 1)
	assert.Equal(t, "structure.pdb", manifest.Files[0].FileName())
	require.Len(t, manifest.MDs, 2)
	assert.Equal(t, "trajectory.bin", manifest.MDs[0].Files[0].FileName())
	assert.Equal(t, "rmsd.json", manifest.MDs[0].Analyses[0].Path)
	assert.Empty(t, manifest.MDs[1].Files)
}

func TestParseManifestRejects(t *testing.T) {
	cases := map[string]string{
		"both project and accession": "project: A0001\naccession: B0001\n",
		"unnamed md":                 "mds:\n  - metadata: {a: 1}\n",
		"duplicated md":              "mds:\n  - name: one\n  - name: one\n",
		"file without path":          "files:\n  - name: x.pdb\n",
		"duplicated file":            "files:\n  - path: a/x.pdb\n  - path: b/x.pdb\n",
		"analysis without content":   "analyses:\n  - name: rmsd\n",
		"reference without record":   "references:\n  - kind: ligands\n",
		"invalid yaml":               "files: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := directors.ParseManifest([]byte(content))
			assert.Error(t, err)
		})
	}
}

func TestLoadManifestResolvesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0644))

	manifest, err := directors.LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, dir, manifest.Dir)

	_, err = directors.LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
