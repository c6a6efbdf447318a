package artifact

import (
	"path"
	"time"
)

// Artifact is the persisted metadata record for one uniquely identified
// shared file. Records are write-once: they are created by the Coordinator
// on first sight of an identifier and never mutated afterwards.
//
// Zero values:
//   - Identifier: "" (invalid, required; the deduplication key)
//   - DisplayName: "" (invalid, required; the uploader's original filename)
//   - StoredName: "" (invalid, required; the generated on-disk name)
//   - StoragePath: "" (where the blob sink wrote the bytes)
//   - SizeBytes: 0 (empty files are allowed)
//   - CreatedAt: zero time (assigned on first successful persistence)
type Artifact struct {
	Identifier  string
	DisplayName string
	StoredName  string
	StoragePath string
	SizeBytes   int64
	CreatedAt   time.Time
}

// PublicView is the wire shape shared by the upload response and the
// file-shared broadcast event. Path is resolvable against the static
// uploads route, so receiving clients can fetch the blob directly.
type PublicView struct {
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	UploadDate time.Time `json:"uploadDate"`
}

// View returns the client-facing projection of the artifact.
func (a Artifact) View() PublicView {
	return PublicView{
		Filename:   a.StoredName,
		Path:       path.Join("/uploads", a.StoredName),
		Size:       a.SizeBytes,
		UploadDate: a.CreatedAt,
	}
}

// ValidateFilename checks that a display name is safe to store and to embed
// in a generated on-disk name. Returns ErrInvalidFilename on failure.
//
// Rules:
//   - must not be empty
//   - must not exceed 255 characters
//   - must not contain path separators or null bytes
//   - must not be "." or ".."
func ValidateFilename(name string) error {
	if name == "" {
		return ErrInvalidFilename
	}
	if len(name) > 255 {
		return ErrInvalidFilename
	}
	for _, c := range name {
		if c == '/' || c == '\\' || c == '\x00' {
			return ErrInvalidFilename
		}
	}
	if name == "." || name == ".." {
		return ErrInvalidFilename
	}
	return nil
}
