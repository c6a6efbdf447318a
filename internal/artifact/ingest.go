// Package artifact defines the shared-file metadata record and the ingestion
// coordinator that decides whether an upload is new or a duplicate, persists
// it at most once per identifier, and notifies every live connection.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BlobMeta describes a blob the sink has already written to disk. All fields
// are required; Identifier is the deduplication key chosen by a Deriver.
type BlobMeta struct {
	DisplayName string
	StoredName  string
	StoragePath string
	SizeBytes   int64
	Identifier  string
}

// Store is the persistence boundary for artifact records. Implementations
// must enforce a uniqueness constraint on the identifier and report
// violations as ErrDuplicateIdentifier.
type Store interface {
	GetByIdentifier(ctx context.Context, identifier string) (Artifact, error)
	Insert(ctx context.Context, a Artifact) error
}

// Broadcaster receives the single file-shared event the coordinator emits
// per successful ingestion.
type Broadcaster interface {
	BroadcastArtifact(view PublicView)
}

// Coordinator serializes ingestion per identifier and guarantees that at
// most one artifact record is persisted per unique identifier, while every
// successful Ingest call emits exactly one broadcast event.
type Coordinator struct {
	store       Store
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]*identifierLock
}

type identifierLock struct {
	mu   sync.Mutex
	refs int
}

// NewCoordinator creates a Coordinator. A nil logger falls back to
// slog.Default.
func NewCoordinator(store Store, broadcaster Broadcaster, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
		inflight:    make(map[string]*identifierLock),
	}
}

// Ingest looks up the blob's identifier, persists a new record when none
// exists, and emits one file-shared broadcast describing the resulting
// artifact. It returns the artifact together with whether this call created
// it. On a store failure nothing is broadcast.
//
// Calls for the same identifier are serialized; calls for distinct
// identifiers proceed concurrently. If a concurrent racer wins the insert
// despite the lock (for example through a second process sharing the
// store), the unique-constraint violation is resolved by re-reading the
// winner's record and reporting it as a duplicate.
func (c *Coordinator) Ingest(ctx context.Context, meta BlobMeta) (Artifact, bool, error) {
	if meta.Identifier == "" {
		return Artifact{}, false, ErrEmptyIdentifier
	}
	if err := ValidateFilename(meta.DisplayName); err != nil {
		return Artifact{}, false, err
	}

	unlock := c.lockIdentifier(meta.Identifier)
	defer unlock()

	existing, err := c.store.GetByIdentifier(ctx, meta.Identifier)
	if err == nil {
		c.logger.Info("file already exists",
			"identifier", meta.Identifier,
			"filename", existing.StoredName)
		c.broadcaster.BroadcastArtifact(existing.View())
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Artifact{}, false, fmt.Errorf("ingest %s: %w", meta.Identifier, err)
	}

	a := Artifact{
		Identifier:  meta.Identifier,
		DisplayName: meta.DisplayName,
		StoredName:  meta.StoredName,
		StoragePath: meta.StoragePath,
		SizeBytes:   meta.SizeBytes,
		CreatedAt:   c.now().UTC(),
	}
	err = c.store.Insert(ctx, a)
	if errors.Is(err, ErrDuplicateIdentifier) {
		winner, getErr := c.store.GetByIdentifier(ctx, meta.Identifier)
		if getErr != nil {
			return Artifact{}, false, fmt.Errorf("ingest %s: %w", meta.Identifier, getErr)
		}
		c.broadcaster.BroadcastArtifact(winner.View())
		return winner, false, nil
	}
	if err != nil {
		return Artifact{}, false, fmt.Errorf("ingest %s: %w", meta.Identifier, err)
	}

	c.logger.Info("file information saved",
		"identifier", a.Identifier,
		"filename", a.StoredName,
		"size", a.SizeBytes)
	c.broadcaster.BroadcastArtifact(a.View())
	return a, true, nil
}

// lockIdentifier acquires the per-identifier mutex, creating it on first
// use and dropping it once no caller holds or waits on it.
func (c *Coordinator) lockIdentifier(identifier string) func() {
	c.mu.Lock()
	l := c.inflight[identifier]
	if l == nil {
		l = &identifierLock{}
		c.inflight[identifier] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.inflight, identifier)
		}
		c.mu.Unlock()
	}
}
