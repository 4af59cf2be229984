package ports

import (
	"context"
	"time"

	"sheetlens/domain/core"
	"sheetlens/domain/upload"
)

// UploadRepository defines the storage operations for upload records.
// Terminal updates are conditional: they only apply while the record is
// still processing and return core.ErrNotProcessing otherwise.
type UploadRepository interface {
	// Core CRUD operations
	Create(ctx context.Context, rec *upload.Record) error
	GetByID(ctx context.Context, id core.ID) (*upload.Record, error)
	ListByOwner(ctx context.Context, owner core.OwnerID, limit, offset int) ([]*upload.Record, error)
	CountByOwner(ctx context.Context, owner core.OwnerID) (int, error)
	Delete(ctx context.Context, id core.ID) error

	// Lifecycle transitions
	MarkProcessed(ctx context.Context, id core.ID, result *upload.Result, completedAt time.Time) error
	MarkFailed(ctx context.Context, id core.ID, message string, completedAt time.Time) error
	UpdateInsight(ctx context.Context, id core.ID, insight *upload.Insight) error

	// Special queries
	StatsByOwner(ctx context.Context, owner core.OwnerID) (*upload.OwnerStats, error)
	ListByStatus(ctx context.Context, status upload.Status) ([]*upload.Record, error)
}
