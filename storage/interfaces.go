package storage

import (
	"context"

	"github.com/poiesic/codeindex/core"
)

// EmbeddingFilter narrows a project scan. Zero-value fields do not filter.
type EmbeddingFilter struct {
	// FileId restricts the scan to one file's chunks.
	FileId string

	// ContentType restricts the scan to one metadata content type.
	ContentType string
}

// EmbeddingRepository provides quota-bounded persistence for embedding records.
// Implementations must be thread-safe and support concurrent access; writes
// for one project are serialized with respect to quota accounting.
type EmbeddingRepository interface {
	// StoreEmbedding inserts or updates a record, charging its marginal byte
	// cost against the project and global quotas atomically with the row
	// write. An update with an existing id adjusts usage by the size delta,
	// not the full new size; CreatedAt is preserved and UpdatedAt changes
	// only when the content hash changed. Returns *QuotaExceededError when
	// committing would push either quota past its limit, leaving prior state
	// untouched.
	StoreEmbedding(ctx context.Context, record *core.EmbeddingRecord) error

	// GetEmbedding retrieves a single record.
	// Returns ErrNotFound if the record doesn't exist.
	GetEmbedding(ctx context.Context, projectId string, id core.ID) (*core.EmbeddingRecord, error)

	// GetProjectEmbeddings retrieves all records for a project, optionally
	// narrowed by filter. A nil filter returns everything.
	GetProjectEmbeddings(ctx context.Context, projectId string, filter *EmbeddingFilter) ([]*core.EmbeddingRecord, error)

	// DeleteEmbedding removes a record and credits its bytes back to the
	// usage counters in the same transaction.
	// Returns ErrNotFound if the record doesn't exist.
	DeleteEmbedding(ctx context.Context, projectId string, id core.ID) error

	// DeleteProjectEmbeddings removes every record of a project and resets
	// its usage counters. Returns the number of records removed.
	DeleteProjectEmbeddings(ctx context.Context, projectId string) (int64, error)

	// GetProjectStorageUsage reports the latest committed accounting state
	// for a project.
	GetProjectStorageUsage(ctx context.Context, projectId string) (*core.StorageUsage, error)

	// SetProjectQuota sets an explicit byte quota for a project. A project
	// without an explicit quota inherits the global quota.
	SetProjectQuota(ctx context.Context, projectId string, limitBytes int64) error

	// IsQuotasEnabled reports whether quota enforcement is active.
	IsQuotasEnabled() bool

	// GlobalQuota returns the deployment-wide byte limit.
	GlobalQuota() int64

	// Close flushes and releases the backing datastore handle. Idempotent.
	Close() error
}
