// Package blob writes uploaded bytes to the local uploads directory and
// computes their content digest in the same pass.
package blob

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// WriteResult describes a blob the sink has durably stored.
type WriteResult struct {
	// StoredName is the generated on-disk name, <unix-millis>-<original-name>.
	StoredName string
	// StoragePath is the full path the bytes were written to.
	StoragePath string
	// SizeBytes is the number of bytes written.
	SizeBytes int64
	// ContentDigest is the hex BLAKE3 digest of the written bytes.
	ContentDigest string
}

// DiskSink stores uploaded blobs under a single directory. Writes go to a
// temp file first and are renamed into place on success, so an aborted
// upload never leaves a partially written blob at an addressable name.
type DiskSink struct {
	dir string
}

// NewDiskSink creates the uploads directory if needed and returns a sink
// rooted there.
func NewDiskSink(dir string) (*DiskSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("uploads directory is required")
	}
	cleanDir := filepath.Clean(dir)
	if err := os.MkdirAll(cleanDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir %s: %w", cleanDir, err)
	}
	return &DiskSink{dir: cleanDir}, nil
}

// Dir returns the directory blobs are stored under.
func (s *DiskSink) Dir() string {
	return s.dir
}

// Write stores the reader's bytes under a generated name derived from
// originalName and returns the write result, including the content digest
// computed while copying. Any leading path components in originalName are
// stripped.
func (s *DiskSink) Write(r io.Reader, originalName string) (WriteResult, error) {
	base := filepath.Base(filepath.FromSlash(originalName))
	storedName := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), base)
	finalPath := filepath.Join(s.dir, storedName)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return WriteResult{}, fmt.Errorf("write blob %s: %w", storedName, err)
	}

	hasher := blake3.New()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err == nil {
		err = tmp.Close()
	} else {
		_ = tmp.Close()
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return WriteResult{}, fmt.Errorf("write blob %s: %w", storedName, err)
	}

	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		_ = os.Remove(tmp.Name())
		return WriteResult{}, fmt.Errorf("write blob %s: %w", storedName, err)
	}

	return WriteResult{
		StoredName:    storedName,
		StoragePath:   finalPath,
		SizeBytes:     n,
		ContentDigest: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}
