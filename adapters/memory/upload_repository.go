// Package memory provides an in-process UploadRepository used when no
// database is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sheetlens/domain/core"
	"sheetlens/domain/upload"
	"sheetlens/ports"
)

var _ ports.UploadRepository = (*UploadRepository)(nil)

// UploadRepository keeps upload records in a mutex-guarded map
type UploadRepository struct {
	mu      sync.RWMutex
	records map[core.ID]*upload.Record
}

// NewUploadRepository creates an empty repository
func NewUploadRepository() *UploadRepository {
	return &UploadRepository{records: make(map[core.ID]*upload.Record)}
}

func clone(rec *upload.Record) *upload.Record {
	cp := *rec
	if rec.Result != nil {
		res := *rec.Result
		cp.Result = &res
	}
	if rec.ProcessingCompletedAt != nil {
		t := *rec.ProcessingCompletedAt
		cp.ProcessingCompletedAt = &t
	}
	return &cp
}

// Create stores a new record
func (r *UploadRepository) Create(ctx context.Context, rec *upload.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ID]; exists {
		return fmt.Errorf("upload %s already exists", rec.ID)
	}
	r.records[rec.ID] = clone(rec)
	return nil
}

// GetByID returns a copy of the record
func (r *UploadRepository) GetByID(ctx context.Context, id core.ID) (*upload.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, core.ErrUploadNotFound
	}
	return clone(rec), nil
}

// ListByOwner returns the owner's records newest first, without full data
func (r *UploadRepository) ListByOwner(ctx context.Context, owner core.OwnerID, limit, offset int) ([]*upload.Record, error) {
	r.mu.RLock()
	var owned []*upload.Record
	for _, rec := range r.records {
		if rec.OwnerID == owner {
			owned = append(owned, rec.WithoutFullData())
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	if offset >= len(owned) {
		return []*upload.Record{}, nil
	}
	end := len(owned)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return owned[offset:end], nil
}

// CountByOwner returns how many records the owner has
func (r *UploadRepository) CountByOwner(ctx context.Context, owner core.OwnerID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, rec := range r.records {
		if rec.OwnerID == owner {
			count++
		}
	}
	return count, nil
}

// Delete removes a record that is no longer processing
func (r *UploadRepository) Delete(ctx context.Context, id core.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return core.ErrUploadNotFound
	}
	if rec.Status == upload.StatusProcessing {
		return core.ErrStillProcessing
	}
	delete(r.records, id)
	return nil
}

// transition applies fn to a record still in processing
func (r *UploadRepository) transition(id core.ID, fn func(rec *upload.Record)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return core.ErrUploadNotFound
	}
	if rec.Status != upload.StatusProcessing {
		return core.ErrNotProcessing
	}
	fn(rec)
	return nil
}

// MarkProcessed writes every result field and the processed status at once
func (r *UploadRepository) MarkProcessed(ctx context.Context, id core.ID, result *upload.Result, completedAt time.Time) error {
	return r.transition(id, func(rec *upload.Record) {
		res := *result
		rec.Result = &res
		rec.Status = upload.StatusProcessed
		rec.ErrorMessage = ""
		rec.ProcessingCompletedAt = &completedAt
		rec.UpdatedAt = completedAt
	})
}

// MarkFailed moves a processing record to error
func (r *UploadRepository) MarkFailed(ctx context.Context, id core.ID, message string, completedAt time.Time) error {
	return r.transition(id, func(rec *upload.Record) {
		rec.Result = nil
		rec.Status = upload.StatusError
		rec.ErrorMessage = message
		rec.ProcessingCompletedAt = &completedAt
		rec.UpdatedAt = completedAt
	})
}

// UpdateInsight replaces the insight of a processed record
func (r *UploadRepository) UpdateInsight(ctx context.Context, id core.ID, insight *upload.Insight) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return core.ErrUploadNotFound
	}
	if !rec.IsProcessed() {
		return core.ErrNotProcessedYet
	}
	res := *rec.Result
	res.Insight = insight
	rec.Result = &res
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// StatsByOwner aggregates the owner's records
func (r *UploadRepository) StatsByOwner(ctx context.Context, owner core.OwnerID) (*upload.OwnerStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &upload.OwnerStats{}
	for _, rec := range r.records {
		if rec.OwnerID != owner {
			continue
		}
		stats.TotalFiles++
		stats.TotalSize += rec.Size
		switch rec.Status {
		case upload.StatusProcessed:
			stats.ProcessedFiles++
			if rec.Result != nil {
				stats.TotalRows += int64(rec.RowCount)
			}
		case upload.StatusError:
			stats.ErrorFiles++
		default:
			stats.PendingFiles++
		}
	}
	return stats, nil
}

// ListByStatus returns every record in the given status, oldest first
func (r *UploadRepository) ListByStatus(ctx context.Context, status upload.Status) ([]*upload.Record, error) {
	r.mu.RLock()
	var out []*upload.Record
	for _, rec := range r.records {
		if rec.Status == status {
			out = append(out, rec.WithoutFullData())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
