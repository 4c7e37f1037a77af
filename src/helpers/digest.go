package helpers

import (
	"encoding/hex"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

// DigestReader hashes everything read through it
type DigestReader struct {
	source io.Reader
	hash   hash.Hash
	size   int64
}

// NewDigestReader wraps source with a BLAKE2b-256 hash
func NewDigestReader(source io.Reader) *DigestReader {
	h, _ := blake2b.New256(nil) // Only fails for keys over 64 bytes
	return &DigestReader{source: source, hash: h}
}

func (r *DigestReader) Read(p []byte) (int, error) {
	n, err := r.source.Read(p)
	if n > 0 {
		r.hash.Write(p[:n])
		r.size += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of what was read so far
func (r *DigestReader) Sum() string {
	return hex.EncodeToString(r.hash.Sum(nil))
}

// Size returns the number of bytes read so far
func (r *DigestReader) Size() int64 {
	return r.size
}

// DigestFile returns the hex BLAKE2b-256 digest of a file on disk
func DigestFile(path string) (string, error) {
	file, err := OpenDataFile("", path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	reader := NewDigestReader(file)
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	return reader.Sum(), nil
}
