package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"sheetlens/domain/core"
	"sheetlens/domain/table"
	"sheetlens/domain/upload"
	"sheetlens/ports"
)

const uploadColumns = `
	id, owner_id, original_filename, stored_filename, COALESCE(mime_type, '') AS mime_type,
	file_size, COALESCE(content_hash, '') AS content_hash, status,
	processing_started_at, processing_completed_at, COALESCE(error_message, '') AS error_message,
	row_count, column_count, column_schema, sample_rows, data_statistics, insight,
	created_at, updated_at`

// uploadRow is the uploads table as sqlx sees it
type uploadRow struct {
	ID                    string        `db:"id"`
	OwnerID               string        `db:"owner_id"`
	OriginalFilename      string        `db:"original_filename"`
	StoredFilename        string        `db:"stored_filename"`
	MimeType              string        `db:"mime_type"`
	FileSize              int64         `db:"file_size"`
	ContentHash           string        `db:"content_hash"`
	Status                string        `db:"status"`
	ProcessingStartedAt   time.Time     `db:"processing_started_at"`
	ProcessingCompletedAt sql.NullTime  `db:"processing_completed_at"`
	ErrorMessage          string        `db:"error_message"`
	RowCount              sql.NullInt64 `db:"row_count"`
	ColumnCount           sql.NullInt64 `db:"column_count"`
	ColumnSchema          jsonColumn    `db:"column_schema"`
	SampleRows            []byte        `db:"sample_rows"`
	DataStatistics        jsonColumn    `db:"data_statistics"`
	FullData              []byte        `db:"full_data"`
	Insight               jsonColumn    `db:"insight"`
	CreatedAt             time.Time     `db:"created_at"`
	UpdatedAt             time.Time     `db:"updated_at"`
}

// jsonColumn carries JSONB as text so lib/pq does not send it as bytea
type jsonColumn []byte

// Value implements driver.Valuer
func (j jsonColumn) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner
func (j *jsonColumn) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = jsonColumn(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", src)
	}
	return nil
}

// uploadRepository implements the UploadRepository interface
type uploadRepository struct {
	db *sqlx.DB
}

// NewUploadRepository creates a new upload repository
func NewUploadRepository(db *sqlx.DB) ports.UploadRepository {
	return &uploadRepository{db: db}
}

// Create inserts a new upload record
func (r *uploadRepository) Create(ctx context.Context, rec *upload.Record) error {
	row, err := fromRecord(rec)
	if err != nil {
		return err
	}

	query := `INSERT INTO uploads (
		id, owner_id, original_filename, stored_filename, mime_type, file_size, content_hash,
		status, processing_started_at, processing_completed_at, error_message,
		row_count, column_count, column_schema, sample_rows, data_statistics, full_data, insight,
		created_at, updated_at
	) VALUES (
		:id, :owner_id, :original_filename, :stored_filename, :mime_type, :file_size, :content_hash,
		:status, :processing_started_at, :processing_completed_at, NULLIF(:error_message, ''),
		:row_count, :column_count, :column_schema, :sample_rows, :data_statistics, :full_data, :insight,
		:created_at, :updated_at
	)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

// GetByID retrieves an upload including its full data
func (r *uploadRepository) GetByID(ctx context.Context, id core.ID) (*upload.Record, error) {
	query := `SELECT ` + uploadColumns + `, full_data FROM uploads WHERE id = $1`

	var row uploadRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrUploadNotFound
		}
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return row.toRecord()
}

// ListByOwner retrieves an owner's uploads newest first, without full data
func (r *uploadRepository) ListByOwner(ctx context.Context, owner core.OwnerID, limit, offset int) ([]*upload.Record, error) {
	query := `SELECT ` + uploadColumns + `, NULL::bytea AS full_data
	FROM uploads
	WHERE owner_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2 OFFSET $3`

	var rows []uploadRow
	if err := r.db.SelectContext(ctx, &rows, query, owner, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	return toRecords(rows)
}

// CountByOwner counts an owner's uploads
func (r *uploadRepository) CountByOwner(ctx context.Context, owner core.OwnerID) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM uploads WHERE owner_id = $1`, owner); err != nil {
		return 0, fmt.Errorf("failed to count uploads: %w", err)
	}
	return count, nil
}

// Delete removes an upload that is not processing
func (r *uploadRepository) Delete(ctx context.Context, id core.ID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = $1 AND status <> 'processing'`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return r.checkAffected(ctx, result, id, core.ErrStillProcessing)
}

// MarkProcessed writes every result field and the processed status in one statement
func (r *uploadRepository) MarkProcessed(ctx context.Context, id core.ID, res *upload.Result, completedAt time.Time) error {
	schema, stats, sample, fullData, insight, err := encodeResult(res)
	if err != nil {
		return err
	}

	query := `UPDATE uploads SET
		status = 'processed', error_message = NULL,
		row_count = $2, column_count = $3, column_schema = $4, sample_rows = $5,
		data_statistics = $6, full_data = $7, insight = $8,
		processing_completed_at = $9, updated_at = $9
	WHERE id = $1 AND status = 'processing'`

	result, err := r.db.ExecContext(ctx, query, id,
		res.RowCount, res.ColumnCount, schema, sample, stats, fullData, insight, completedAt)
	if err != nil {
		return fmt.Errorf("failed to mark upload processed: %w", err)
	}
	return r.checkAffected(ctx, result, id, core.ErrNotProcessing)
}

// MarkFailed moves a processing upload to error and clears any result fields
func (r *uploadRepository) MarkFailed(ctx context.Context, id core.ID, message string, completedAt time.Time) error {
	query := `UPDATE uploads SET
		status = 'error', error_message = $2,
		row_count = NULL, column_count = NULL, column_schema = NULL, sample_rows = NULL,
		data_statistics = NULL, full_data = NULL, insight = NULL,
		processing_completed_at = $3, updated_at = $3
	WHERE id = $1 AND status = 'processing'`

	result, err := r.db.ExecContext(ctx, query, id, message, completedAt)
	if err != nil {
		return fmt.Errorf("failed to mark upload failed: %w", err)
	}
	return r.checkAffected(ctx, result, id, core.ErrNotProcessing)
}

// UpdateInsight replaces only the insight of a processed upload
func (r *uploadRepository) UpdateInsight(ctx context.Context, id core.ID, insight *upload.Insight) error {
	insightJSON, err := json.Marshal(insight)
	if err != nil {
		return fmt.Errorf("failed to marshal insight: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE uploads SET insight = $2, updated_at = NOW() WHERE id = $1 AND status = 'processed'`,
		id, jsonColumn(insightJSON))
	if err != nil {
		return fmt.Errorf("failed to update insight: %w", err)
	}
	return r.checkAffected(ctx, result, id, core.ErrNotProcessedYet)
}

// StatsByOwner aggregates an owner's uploads
func (r *uploadRepository) StatsByOwner(ctx context.Context, owner core.OwnerID) (*upload.OwnerStats, error) {
	query := `SELECT
		COUNT(*) AS total_files,
		COUNT(*) FILTER (WHERE status = 'processed') AS processed_files,
		COUNT(*) FILTER (WHERE status = 'error') AS error_files,
		COUNT(*) FILTER (WHERE status = 'processing') AS pending_files,
		COALESCE(SUM(file_size), 0) AS total_size,
		COALESCE(SUM(row_count) FILTER (WHERE status = 'processed'), 0) AS total_rows
	FROM uploads WHERE owner_id = $1`

	var stats struct {
		TotalFiles     int   `db:"total_files"`
		ProcessedFiles int   `db:"processed_files"`
		ErrorFiles     int   `db:"error_files"`
		PendingFiles   int   `db:"pending_files"`
		TotalSize      int64 `db:"total_size"`
		TotalRows      int64 `db:"total_rows"`
	}
	if err := r.db.GetContext(ctx, &stats, query, owner); err != nil {
		return nil, fmt.Errorf("failed to compute upload stats: %w", err)
	}

	return &upload.OwnerStats{
		TotalFiles:     stats.TotalFiles,
		ProcessedFiles: stats.ProcessedFiles,
		ErrorFiles:     stats.ErrorFiles,
		PendingFiles:   stats.PendingFiles,
		TotalSize:      stats.TotalSize,
		TotalRows:      stats.TotalRows,
	}, nil
}

// ListByStatus retrieves uploads by processing status, oldest first
func (r *uploadRepository) ListByStatus(ctx context.Context, status upload.Status) ([]*upload.Record, error) {
	query := `SELECT ` + uploadColumns + `, NULL::bytea AS full_data
	FROM uploads WHERE status = $1 ORDER BY created_at ASC`

	var rows []uploadRow
	if err := r.db.SelectContext(ctx, &rows, query, status); err != nil {
		return nil, fmt.Errorf("failed to query uploads by status: %w", err)
	}
	return toRecords(rows)
}

// checkAffected turns a conditional write that matched nothing into the right
// sentinel: not found when the row is gone, otherwise guardErr.
func (r *uploadRepository) checkAffected(ctx context.Context, result sql.Result, id core.ID, guardErr error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM uploads WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("failed to check upload existence: %w", err)
	}
	if !exists {
		return core.ErrUploadNotFound
	}
	return guardErr
}

func fromRecord(rec *upload.Record) (*uploadRow, error) {
	row := &uploadRow{
		ID:                  rec.ID.String(),
		OwnerID:             rec.OwnerID.String(),
		OriginalFilename:    rec.OriginalFilename,
		StoredFilename:      rec.StoredFilename,
		MimeType:            rec.MimeType,
		FileSize:            rec.Size,
		ContentHash:         rec.ContentHash.String(),
		Status:              string(rec.Status),
		ProcessingStartedAt: rec.ProcessingStartedAt,
		ErrorMessage:        rec.ErrorMessage,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}
	if rec.ProcessingCompletedAt != nil {
		row.ProcessingCompletedAt = sql.NullTime{Time: *rec.ProcessingCompletedAt, Valid: true}
	}

	if rec.Result != nil {
		schema, stats, sample, fullData, insight, err := encodeResult(rec.Result)
		if err != nil {
			return nil, err
		}
		row.RowCount = sql.NullInt64{Int64: int64(rec.RowCount), Valid: true}
		row.ColumnCount = sql.NullInt64{Int64: int64(rec.ColumnCount), Valid: true}
		row.ColumnSchema, row.DataStatistics, row.SampleRows = schema, stats, sample
		row.FullData, row.Insight = fullData, insight
	}
	return row, nil
}

// encodeResult serialises result fields: JSONB for schema, statistics and insight,
// msgpack for record lists so column order survives
func encodeResult(res *upload.Result) (schema, stats jsonColumn, sample, fullData []byte, insight jsonColumn, err error) {
	if schema, err = json.Marshal(res.ColumnSchema); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to marshal column schema: %w", err)
	}
	if stats, err = json.Marshal(res.DataStatistics); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to marshal statistics: %w", err)
	}
	sampleRows := res.SampleRows
	if sampleRows == nil {
		sampleRows = []table.Record{}
	}
	if sample, err = table.EncodeRecords(sampleRows); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to encode sample rows: %w", err)
	}
	if fullData, err = table.EncodeRecords(res.FullData); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to encode full data: %w", err)
	}
	if res.Insight != nil {
		if insight, err = json.Marshal(res.Insight); err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("failed to marshal insight: %w", err)
		}
	}
	return schema, stats, sample, fullData, insight, nil
}

func (row *uploadRow) toRecord() (*upload.Record, error) {
	rec := &upload.Record{
		ID:                  core.ID(row.ID),
		OwnerID:             core.OwnerID(row.OwnerID),
		OriginalFilename:    row.OriginalFilename,
		StoredFilename:      row.StoredFilename,
		MimeType:            row.MimeType,
		Size:                row.FileSize,
		ContentHash:         core.Hash(row.ContentHash),
		Status:              upload.Status(row.Status),
		ProcessingStartedAt: row.ProcessingStartedAt,
		ErrorMessage:        row.ErrorMessage,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
	if row.ProcessingCompletedAt.Valid {
		completed := row.ProcessingCompletedAt.Time
		rec.ProcessingCompletedAt = &completed
	}

	if rec.Status != upload.StatusProcessed || !row.RowCount.Valid {
		return rec, nil
	}

	res := &upload.Result{
		RowCount:    int(row.RowCount.Int64),
		ColumnCount: int(row.ColumnCount.Int64),
	}
	if err := unmarshalJSON(row.ColumnSchema, &res.ColumnSchema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal column schema: %w", err)
	}
	if err := unmarshalJSON(row.DataStatistics, &res.DataStatistics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal statistics: %w", err)
	}
	sampleRows, err := decodeSampleRows(row.SampleRows)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sample rows: %w", err)
	}
	res.SampleRows = sampleRows
	if len(row.Insight) > 0 {
		res.Insight = &upload.Insight{}
		if err := json.Unmarshal(row.Insight, res.Insight); err != nil {
			return nil, fmt.Errorf("failed to unmarshal insight: %w", err)
		}
	}
	fullData, err := table.DecodeRecords(row.FullData)
	if err != nil {
		return nil, err
	}
	res.FullData = fullData

	rec.Result = res
	return rec, nil
}

// decodeSampleRows reads msgpack, or the JSON text left by schema 1.1.0
func decodeSampleRows(data []byte) ([]table.Record, error) {
	if len(data) > 0 && data[0] == '[' {
		var rows []table.Record
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	return table.DecodeRecords(data)
}

func toRecords(rows []uploadRow) ([]*upload.Record, error) {
	records := make([]*upload.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func unmarshalJSON(data []byte, dst interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
