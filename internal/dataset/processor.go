// Package dataset runs the ingestion pipeline for uploaded spreadsheets.
//
// Accept validates and stages an upload, creates its record in processing and
// hands the heavy work to a TaskRunner. The pipeline then parses, profiles and
// optionally asks the insight provider for an analysis before writing one
// terminal update. Staged bytes never outlive the pipeline.
package dataset

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"sheetlens/ai"
	"sheetlens/domain/core"
	"sheetlens/domain/table"
	"sheetlens/domain/upload"
	"sheetlens/internal"
	"sheetlens/internal/errors"
	"sheetlens/internal/profiling"
	"sheetlens/ports"
)

const (
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeXLS  = "application/vnd.ms-excel"

	DefaultPageSize = 10
	MaxPageSize     = 100

	// terminal writes get their own deadline so shutdown cannot strand a record
	terminalWriteTimeout = 10 * time.Second
)

// TableParser turns workbook bytes into a table
type TableParser interface {
	Parse(data []byte) (*table.Table, error)
}

// InsightGenerator produces an insight from a bounded dataset summary
type InsightGenerator interface {
	Generate(ctx context.Context, summary ai.DatasetSummary) (*upload.Insight, error)
}

// EventPublisher receives record changes for live clients
type EventPublisher interface {
	Publish(event upload.Event)
}

// PipelineJob identifies the record and staged bytes a pipeline run works on
type PipelineJob struct {
	ID         core.ID
	OwnerID    core.OwnerID
	StoredName string
}

// ProcessorConfig holds upload limits and result sizing
type ProcessorConfig struct {
	MaxFileSize       int64    // Maximum file size in bytes
	AllowedTypes      []string // Allowed MIME types
	AllowedExtensions []string // Allowed extensions, lower case with dot
	SampleRows        int      // Rows kept in sample_rows
}

// DefaultProcessorConfig returns sensible defaults
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		MaxFileSize:       10 * 1024 * 1024, // 10MB
		AllowedTypes:      []string{MimeXLSX, MimeXLS},
		AllowedExtensions: []string{".xlsx", ".xls"},
		SampleRows:        10,
	}
}

// Processor handles upload acceptance and the per-record pipeline
type Processor struct {
	repository  ports.UploadRepository
	fileStorage FileStorage
	parser      TableParser
	profiler    *profiling.DataProfiler
	analyzer    InsightGenerator
	tasks       *TaskRunner
	events      EventPublisher
	config      *ProcessorConfig
	logger      *internal.Logger
	now         func() time.Time
}

// NewProcessor creates a new processor. A nil analyzer disables insights.
func NewProcessor(repository ports.UploadRepository, fileStorage FileStorage, parser TableParser, analyzer InsightGenerator, tasks *TaskRunner, config *ProcessorConfig, logger *internal.Logger) *Processor {
	if config == nil {
		config = DefaultProcessorConfig()
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Processor{
		repository:  repository,
		fileStorage: fileStorage,
		parser:      parser,
		profiler:    profiling.NewDataProfiler(),
		analyzer:    analyzer,
		tasks:       tasks,
		config:      config,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetEventPublisher attaches a publisher notified after terminal writes
func (p *Processor) SetEventPublisher(events EventPublisher) {
	p.events = events
}

func (p *Processor) publish(eventType string, job PipelineJob, status upload.Status, errorMessage string, hasInsight bool) {
	if p.events == nil {
		return
	}
	p.events.Publish(upload.Event{
		Type:         eventType,
		FileID:       job.ID,
		OwnerID:      job.OwnerID,
		Status:       status,
		ErrorMessage: errorMessage,
		HasInsight:   hasInsight,
		Timestamp:    p.now(),
	})
}

// Accept validates an upload, stages its bytes, creates the record in
// processing and schedules the pipeline. It returns without waiting for it.
func (p *Processor) Accept(ctx context.Context, up *upload.Upload) (*upload.Record, error) {
	if err := p.validateUpload(up); err != nil {
		return nil, err
	}

	filename := filepath.Base(strings.TrimSpace(up.OriginalFilename))
	p.logger.Info("[DatasetProcessor] Accepting upload %s (%d bytes) for owner %s", filename, len(up.Data), up.OwnerID)

	storedName, err := p.fileStorage.Store(ctx, up.Data, filename)
	if err != nil {
		return nil, errors.StorageError("failed to store uploaded file", err)
	}

	rec := upload.NewRecord(up.OwnerID, filename, storedName, up.MimeType, int64(len(up.Data)))
	rec.ContentHash = core.NewHash(up.Data)

	if err := p.repository.Create(ctx, rec); err != nil {
		p.discardStaged(storedName)
		return nil, errors.StorageError("failed to create upload record", err)
	}

	job := PipelineJob{ID: rec.ID, OwnerID: rec.OwnerID, StoredName: storedName}
	if _, err := p.tasks.Submit(job.ID.String(), func(taskCtx context.Context) error {
		return p.RunPipeline(taskCtx, job)
	}); err != nil {
		p.logger.Error("[DatasetProcessor] Could not schedule pipeline for %s: %v", job.ID, err)
		p.markFailed(ctx, job, "processing could not be scheduled: service is shutting down")
		p.discardStaged(storedName)
		return nil, errors.Wrap(err, "failed to schedule processing")
	}

	p.logger.Debug("[DatasetProcessor] Pipeline scheduled for %s (%d pending)", job.ID, p.tasks.Pending())
	return rec, nil
}

// validateUpload performs upload validation before anything is stored
func (p *Processor) validateUpload(up *upload.Upload) error {
	if up == nil {
		return errors.ValidationError("no file provided")
	}
	if up.OwnerID == "" {
		return errors.ValidationError("upload has no owner")
	}
	if strings.TrimSpace(up.OriginalFilename) == "" {
		return errors.ValidationError("no filename provided")
	}

	size := int64(len(up.Data))
	if size == 0 {
		return errors.ValidationError("file is empty")
	}
	if size > p.config.MaxFileSize {
		return errors.Newf(errors.CodeValidationError, "file size %d bytes exceeds maximum allowed size %d bytes", size, p.config.MaxFileSize)
	}

	if !p.isAllowedMimeType(up.MimeType) && !p.isAllowedExtension(up.OriginalFilename) {
		return errors.Newf(errors.CodeValidationError, "only Excel files (.xlsx, .xls) are allowed, got %q", up.OriginalFilename)
	}
	return nil
}

// isAllowedMimeType checks the declared type against the configured set
func (p *Processor) isAllowedMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return slices.Contains(p.config.AllowedTypes, mimeType)
}

func (p *Processor) isAllowedExtension(filename string) bool {
	return slices.Contains(p.config.AllowedExtensions, strings.ToLower(filepath.Ext(filename)))
}

// RunPipeline processes one accepted record to a terminal state. Errors are
// recorded on the record; the returned error only reports what happened.
func (p *Processor) RunPipeline(ctx context.Context, job PipelineJob) (err error) {
	start := time.Now()
	id := job.ID

	defer p.discardStaged(job.StoredName)
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("[DatasetProcessor] Pipeline for %s panicked: %v", id, rec)
			p.markFailed(ctx, job, "internal error while processing file")
			err = fmt.Errorf("pipeline for %s panicked: %v", id, rec)
		}
	}()

	data, err := p.readStaged(ctx, job.StoredName)
	if err != nil {
		storageErr := errors.StorageError("failed to read uploaded file", err)
		p.markFailed(ctx, job, storageErr.Error())
		return storageErr
	}

	tbl, err := p.parser.Parse(data)
	if err != nil {
		p.logger.Warn("[DatasetProcessor] Parse failed for %s: %v", id, err)
		p.markFailed(ctx, job, err.Error())
		return err
	}

	profile := p.profiler.ProfileDataset(tbl)
	records := tbl.Records()

	sampleSize := min(p.config.SampleRows, len(records))
	result := &upload.Result{
		RowCount:       tbl.RowCount(),
		ColumnCount:    tbl.ColumnCount(),
		ColumnSchema:   profile.Schema,
		SampleRows:     records[:sampleSize],
		DataStatistics: profile.Statistics,
		FullData:       records,
	}

	// Insight is best-effort; failures leave it absent
	if p.analyzer != nil {
		insight, insightErr := p.analyzer.Generate(ctx, ai.DatasetSummary{
			Schema:     profile.Schema,
			Statistics: profile.Statistics,
			Records:    records,
		})
		if insightErr != nil {
			p.logger.Warn("[DatasetProcessor] Insight skipped for %s (%s): %v", id, errors.GetCode(insightErr), insightErr)
		} else {
			result.Insight = insight
		}
	}

	writeCtx, cancel := terminalContext(ctx)
	defer cancel()
	if err := p.repository.MarkProcessed(writeCtx, id, result, p.now()); err != nil {
		if isGone(err) {
			p.logger.Info("[DatasetProcessor] Record %s no longer processing, skipping result write", id)
			return nil
		}
		p.logger.Error("[DatasetProcessor] Failed to save results for %s: %v", id, err)
		p.markFailed(ctx, job, "failed to save processing results")
		return errors.StorageError("failed to save processing results", err)
	}
	p.publish(upload.EventStatusChanged, job, upload.StatusProcessed, "", result.Insight != nil)

	p.logger.Info("[DatasetProcessor] Processed %s: %d rows, %d columns in %s (insight: %t)",
		id, result.RowCount, result.ColumnCount, time.Since(start).Round(time.Millisecond), result.Insight != nil)
	return nil
}

func (p *Processor) readStaged(ctx context.Context, storedName string) ([]byte, error) {
	reader, err := p.fileStorage.GetReader(ctx, storedName)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// markFailed moves a record to error; records that already left processing are skipped
func (p *Processor) markFailed(ctx context.Context, job PipelineJob, message string) {
	writeCtx, cancel := terminalContext(ctx)
	defer cancel()
	if err := p.repository.MarkFailed(writeCtx, job.ID, message, p.now()); err != nil {
		if isGone(err) {
			p.logger.Info("[DatasetProcessor] Record %s no longer processing, skipping failure write", job.ID)
			return
		}
		p.logger.Error("[DatasetProcessor] Failed to record error for %s: %v", job.ID, err)
		return
	}
	p.publish(upload.EventStatusChanged, job, upload.StatusError, message, false)
}

// discardStaged removes transient bytes; failures are logged only
func (p *Processor) discardStaged(storedName string) {
	if err := p.fileStorage.Delete(context.Background(), storedName); err != nil {
		p.logger.Warn("[DatasetProcessor] Failed to delete staged file %s: %v", storedName, err)
	}
}

func terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}

func isGone(err error) bool {
	return stderrors.Is(err, core.ErrNotProcessing) || core.IsNotFoundError(err)
}

// RegenerateInsight re-runs insight generation for a processed record and
// replaces only its insight. Provider errors are returned to the caller.
func (p *Processor) RegenerateInsight(ctx context.Context, id core.ID) (*upload.Insight, error) {
	rec, err := p.repository.GetByID(ctx, id)
	if err != nil {
		return nil, p.lookupError(err)
	}
	if !rec.IsProcessed() {
		return nil, errors.NotProcessedYet("file must be processed before insights can be generated")
	}
	if p.analyzer == nil {
		return nil, errors.NoProviderConfigured()
	}

	insight, err := p.analyzer.Generate(ctx, ai.DatasetSummary{
		Schema:     rec.ColumnSchema,
		Statistics: rec.DataStatistics,
		Records:    rec.FullData,
	})
	if err != nil {
		p.logger.Warn("[DatasetProcessor] Insight regeneration failed for %s (%s): %v", id, errors.GetCode(err), err)
		return nil, err
	}

	if err := p.repository.UpdateInsight(ctx, id, insight); err != nil {
		if stderrors.Is(err, core.ErrNotProcessedYet) {
			return nil, errors.NotProcessedYet("file must be processed before insights can be generated")
		}
		return nil, p.lookupError(err)
	}

	p.publish(upload.EventInsightGenerated, PipelineJob{ID: id, OwnerID: rec.OwnerID}, upload.StatusProcessed, "", true)
	p.logger.Info("[DatasetProcessor] Regenerated insight for %s via %s/%s", id, insight.GeneratedBy, insight.Model)
	return insight, nil
}

// Get returns the full record when the actor may see it
func (p *Processor) Get(ctx context.Context, id core.ID, actor upload.Actor) (*upload.Record, error) {
	rec, err := p.repository.GetByID(ctx, id)
	if err != nil {
		return nil, p.lookupError(err)
	}
	if !actor.CanAccess(rec) {
		return nil, errors.NotFound("file")
	}
	return rec, nil
}

// Page is one page of an owner's records, without full data
type Page struct {
	Records    []*upload.Record `json:"files"`
	Page       int              `json:"page"`
	PageSize   int              `json:"limit"`
	Total      int              `json:"total"`
	TotalPages int              `json:"total_pages"`
}

// List returns an owner's records newest first
func (p *Processor) List(ctx context.Context, owner core.OwnerID, page, pageSize int) (*Page, error) {
	page, pageSize = normalizePage(page, pageSize)

	total, err := p.repository.CountByOwner(ctx, owner)
	if err != nil {
		return nil, errors.StorageError("failed to count files", err)
	}
	records, err := p.repository.ListByOwner(ctx, owner, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, errors.StorageError("failed to list files", err)
	}
	if records == nil {
		records = []*upload.Record{}
	}

	return &Page{
		Records:    records,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// DataPage is a window over a processed record's full data
type DataPage struct {
	Headers    []string       `json:"headers"`
	Rows       []table.Record `json:"data"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int            `json:"total_rows"`
	TotalPages int            `json:"total_pages"`
}

// GetData pages through the parsed rows of a processed record
func (p *Processor) GetData(ctx context.Context, id core.ID, actor upload.Actor, page, limit int) (*DataPage, error) {
	rec, err := p.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !rec.IsProcessed() {
		return nil, errors.NotProcessedYet("file is not processed yet")
	}

	page, limit = normalizePage(page, limit)
	total := len(rec.FullData)
	from := min((page-1)*limit, total)
	to := min(from+limit, total)

	return &DataPage{
		Headers:    rec.Headers(),
		Rows:       rec.FullData[from:to],
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages(total, limit),
	}, nil
}

// OwnerStats summarises an owner's uploads
func (p *Processor) OwnerStats(ctx context.Context, owner core.OwnerID) (*upload.OwnerStats, error) {
	stats, err := p.repository.StatsByOwner(ctx, owner)
	if err != nil {
		return nil, errors.StorageError("failed to compute file statistics", err)
	}
	return stats, nil
}

// Delete removes a record the actor owns. Records still processing are refused.
func (p *Processor) Delete(ctx context.Context, id core.ID, actor upload.Actor) error {
	rec, err := p.Get(ctx, id, actor)
	if err != nil {
		return err
	}
	if rec.Status == upload.StatusProcessing {
		return errors.Conflict("file is still being processed")
	}

	if err := p.repository.Delete(ctx, id); err != nil {
		if stderrors.Is(err, core.ErrStillProcessing) {
			return errors.Conflict("file is still being processed")
		}
		return p.lookupError(err)
	}

	// Normally already gone once the pipeline finished
	p.discardStaged(rec.StoredFilename)
	p.logger.Info("[DatasetProcessor] Deleted %s (%s)", id, rec.OriginalFilename)
	return nil
}

// InFlight reports pipelines currently executing
func (p *Processor) InFlight() int {
	return p.tasks.InFlight()
}

func (p *Processor) lookupError(err error) error {
	if core.IsNotFoundError(err) {
		return errors.NotFound("file")
	}
	return errors.StorageError("failed to load file", err)
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func totalPages(total, size int) int {
	if total == 0 {
		return 0
	}
	return (total + size - 1) / size
}
