// Package upload models one uploaded spreadsheet and the analysis derived from it.
package upload

import (
	"time"

	"sheetlens/domain/core"
	"sheetlens/domain/table"
)

// Status represents the processing state of an upload
type Status string

const (
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusError      Status = "error"
)

// IsTerminal reports whether no further transitions are allowed
func (s Status) IsTerminal() bool {
	return s == StatusProcessed || s == StatusError
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusProcessing || s == StatusProcessed || s == StatusError
}

// ColumnType is the inferred dominant type of a column
type ColumnType string

const (
	TypeNumber  ColumnType = "number"
	TypeDate    ColumnType = "date"
	TypeBoolean ColumnType = "boolean"
	TypeText    ColumnType = "text"
	TypeEmpty   ColumnType = "empty"
)

// Column describes one header of the parsed sheet
type Column struct {
	Name  string     `json:"name"`
	Type  ColumnType `json:"type"`
	Index int        `json:"index"`
}

// NumericSummary holds descriptive statistics for a number column
type NumericSummary struct {
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	StdDev   float64 `json:"std_dev"`
	Skewness float64 `json:"skewness"`
	Outliers int     `json:"outliers"`
}

// DataStatistics summarises the whole parsed table
type DataStatistics struct {
	TotalRows        int                       `json:"total_rows"`
	TotalColumns     int                       `json:"total_columns"`
	EmptyRows        int                       `json:"empty_rows"`
	DuplicateRows    int                       `json:"duplicate_rows"`
	DataTypes        map[string]ColumnType     `json:"data_types"`
	NumericSummaries map[string]NumericSummary `json:"numeric_summaries,omitempty"`
}

// DataQuality scores are fractions in [0,1]
type DataQuality struct {
	Completeness float64 `json:"completeness"`
	Consistency  float64 `json:"consistency"`
	Accuracy     float64 `json:"accuracy"`
}

// Insight is the AI-generated narrative analysis of a dataset
type Insight struct {
	Summary         string      `json:"summary"`
	SummaryHTML     string      `json:"summary_html,omitempty"`
	KeyFindings     []string    `json:"key_findings"`
	Recommendations []string    `json:"recommendations"`
	DataQuality     DataQuality `json:"data_quality"`
	GeneratedBy     string      `json:"generated_by"`
	Model           string      `json:"model,omitempty"`
	GeneratedAt     time.Time   `json:"generated_at"`
}

// Result carries every field written when processing succeeds
type Result struct {
	RowCount       int            `json:"row_count"`
	ColumnCount    int            `json:"column_count"`
	ColumnSchema   []Column       `json:"column_schema"`
	SampleRows     []table.Record `json:"sample_rows"`
	DataStatistics DataStatistics `json:"data_statistics"`
	FullData       []table.Record `json:"full_data,omitempty"`
	Insight        *Insight       `json:"insight,omitempty"`
}

// Record is one uploaded file and its derived analysis
type Record struct {
	ID               core.ID      `json:"id"`
	OwnerID          core.OwnerID `json:"owner_id"`
	OriginalFilename string       `json:"original_filename"`
	StoredFilename   string       `json:"stored_filename"`
	MimeType         string       `json:"mime_type"`
	Size             int64        `json:"size"`
	ContentHash      core.Hash    `json:"content_hash,omitempty"`

	Status                Status     `json:"status"`
	ProcessingStartedAt   time.Time  `json:"processing_started_at"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty"`

	// Populated only when Status is processed
	*Result

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Upload is what the transport hands to the orchestrator
type Upload struct {
	OwnerID          core.OwnerID
	OriginalFilename string
	MimeType         string
	Size             int64
	Data             []byte
}

// OwnerStats aggregates one owner's uploads
type OwnerStats struct {
	TotalFiles     int   `json:"total_files"`
	ProcessedFiles int   `json:"processed_files"`
	ErrorFiles     int   `json:"error_files"`
	PendingFiles   int   `json:"pending_files"`
	TotalSize      int64 `json:"total_size"`
	TotalRows      int64 `json:"total_rows"`
}

// NewRecord creates a record in the processing state
func NewRecord(owner core.OwnerID, originalFilename, storedFilename, mimeType string, size int64) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:                  core.NewID(),
		OwnerID:             owner,
		OriginalFilename:    originalFilename,
		StoredFilename:      storedFilename,
		MimeType:            mimeType,
		Size:                size,
		Status:              StatusProcessing,
		ProcessingStartedAt: now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// IsProcessed returns true once the result fields are available
func (r *Record) IsProcessed() bool {
	return r.Status == StatusProcessed && r.Result != nil
}

// HasInsight reports whether an insight is attached
func (r *Record) HasInsight() bool {
	return r.Result != nil && r.Result.Insight != nil
}

// Headers returns the column names in schema order
func (r *Record) Headers() []string {
	if r.Result == nil {
		return nil
	}
	headers := make([]string, len(r.ColumnSchema))
	for i, c := range r.ColumnSchema {
		headers[i] = c.Name
	}
	return headers
}

// WithoutFullData returns a shallow copy safe for list views
func (r *Record) WithoutFullData() *Record {
	cp := *r
	if r.Result != nil {
		res := *r.Result
		res.FullData = nil
		cp.Result = &res
	}
	return &cp
}

// Actor is the caller of an owner-scoped operation
type Actor struct {
	OwnerID core.OwnerID
	Admin   bool
}

// CanAccess reports whether the actor may read or delete rec
func (a Actor) CanAccess(rec *Record) bool {
	return a.Admin || (a.OwnerID != "" && a.OwnerID == rec.OwnerID)
}

// Event types published as a record changes
const (
	EventStatusChanged    = "status_changed"
	EventInsightGenerated = "insight_generated"
)

// Event announces a record change to the record's owner
type Event struct {
	Type         string       `json:"event_type"`
	FileID       core.ID      `json:"file_id"`
	OwnerID      core.OwnerID `json:"-"`
	Status       Status       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	HasInsight   bool         `json:"has_insight"`
	Timestamp    time.Time    `json:"timestamp"`
}
