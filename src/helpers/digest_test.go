package helpers

import (
	"bytes"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func TestDigestReader(t *testing.T) {
	content := []byte("MODEL        1\nATOM      1  N   LYS A   1\n")
	want := blake2b.Sum256(content)

	reader := NewDigestReader(bytes.NewReader(content))
	copied, err := io.Copy(io.Discard, reader)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), copied)
	assert.Equal(t, int64(len(content)), reader.Size())
	assert.Equal(t, hex.EncodeToString(want[:]), reader.Sum())

	path := filepath.Join(t.TempDir(), "structure.pdb")
	require.NoError(t, os.WriteFile(path, content, 0644))
	digest, err := DigestFile(path)
	require.NoError(t, err)
	assert.Equal(t, reader.Sum(), digest)

	_, err = DigestFile(filepath.Join(t.TempDir(), "missing.pdb"))
	assert.Error(t, err)
}
