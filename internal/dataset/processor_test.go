package dataset

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sheetlens/adapters/excel"
	"sheetlens/adapters/memory"
	"sheetlens/ai"
	"sheetlens/domain/core"
	"sheetlens/domain/table"
	"sheetlens/domain/upload"
	"sheetlens/internal/errors"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, summary ai.DatasetSummary) (*upload.Insight, error) {
	args := m.Called(summary)
	if insight, ok := args.Get(0).(*upload.Insight); ok {
		return insight, args.Error(1)
	}
	return nil, args.Error(1)
}

type panicParser struct{}

func (panicParser) Parse(data []byte) (*table.Table, error) { panic("boom") }

type testEnv struct {
	processor *Processor
	repo      *memory.UploadRepository
	storage   *LocalFileStorage
	tasks     *TaskRunner
}

func newTestEnv(t *testing.T, parser TableParser, analyzer InsightGenerator) *testEnv {
	t.Helper()
	repo := memory.NewUploadRepository()
	storage := NewLocalFileStorage(t.TempDir())
	tasks := NewTaskRunner(2, nil)
	if parser == nil {
		parser = excel.NewParser(nil)
	}
	t.Cleanup(func() { _ = tasks.Shutdown(context.Background()) })
	return &testEnv{
		processor: NewProcessor(repo, storage, parser, analyzer, tasks, nil, nil),
		repo:      repo,
		storage:   storage,
		tasks:     tasks,
	}
}

// workbook builds an in-memory xlsx whose first sheet holds rows; nil cells
// become styled blanks so the row is still present in the sheet
func workbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	blank, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Italic: true}})
	require.NoError(t, err)
	for r, row := range rows {
		for c, v := range row {
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			if v == nil {
				require.NoError(t, f.SetCellStyle(sheet, axis, axis, blank))
				continue
			}
			require.NoError(t, f.SetCellValue(sheet, axis, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// peopleWorkbook has a mixed Age column and a trailing blank row
func peopleWorkbook(t *testing.T) []byte {
	return workbook(t, [][]interface{}{
		{"Name", "Age"},
		{"Ann", "30"},
		{"Bob", "x"},
		{nil, nil},
	})
}

func xlsxUpload(owner core.OwnerID, data []byte) *upload.Upload {
	return &upload.Upload{
		OwnerID:          owner,
		OriginalFilename: "people.xlsx",
		MimeType:         MimeXLSX,
		Size:             int64(len(data)),
		Data:             data,
	}
}

func (e *testEnv) acceptAndWait(t *testing.T, up *upload.Upload) *upload.Record {
	t.Helper()
	rec, err := e.processor.Accept(context.Background(), up)
	require.NoError(t, err)
	assert.Equal(t, upload.StatusProcessing, rec.Status)

	e.tasks.Wait()

	stored, err := e.repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	return stored
}

func (e *testEnv) assertStagedGone(t *testing.T, storedName string) {
	t.Helper()
	exists, err := e.storage.Exists(context.Background(), storedName)
	require.NoError(t, err)
	assert.False(t, exists, "staged bytes must be removed after the pipeline")
}

func TestPipelineProcessesWorkbook(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.acceptAndWait(t, xlsxUpload("owner-1", peopleWorkbook(t)))

	require.Equal(t, upload.StatusProcessed, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Empty(t, rec.ErrorMessage)
	assert.NotNil(t, rec.ProcessingCompletedAt)
	assert.False(t, rec.ContentHash.IsEmpty())
	assert.Equal(t, 3, rec.RowCount)
	assert.Equal(t, 2, rec.ColumnCount)
	assert.Len(t, rec.ColumnSchema, rec.ColumnCount)
	assert.Len(t, rec.FullData, rec.RowCount)
	assert.Len(t, rec.SampleRows, 3)
	assert.Equal(t, upload.TypeText, rec.ColumnSchema[0].Type)
	assert.Equal(t, upload.TypeNumber, rec.ColumnSchema[1].Type)
	assert.Equal(t, 1, rec.DataStatistics.EmptyRows)
	assert.Equal(t, 0, rec.DataStatistics.DuplicateRows)
	assert.Nil(t, rec.Insight)

	env.assertStagedGone(t, rec.StoredFilename)
}

func TestPipelineWithoutProviderStillProcesses(t *testing.T) {
	analyzer := ai.NewInsightAnalyzer(nil, nil, 20, nil)
	env := newTestEnv(t, nil, analyzer)

	rec := env.acceptAndWait(t, xlsxUpload("owner-1", peopleWorkbook(t)))

	assert.Equal(t, upload.StatusProcessed, rec.Status)
	assert.False(t, rec.HasInsight())
}

func TestPipelineAttachesInsight(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.MatchedBy(func(s ai.DatasetSummary) bool {
		return len(s.Records) == 3 && len(s.Schema) == 2
	})).Return(&upload.Insight{Summary: "ok", GeneratedBy: "openai", Model: "m1"}, nil)

	env := newTestEnv(t, nil, gen)
	rec := env.acceptAndWait(t, xlsxUpload("owner-1", peopleWorkbook(t)))

	require.Equal(t, upload.StatusProcessed, rec.Status)
	require.True(t, rec.HasInsight())
	assert.Equal(t, "ok", rec.Insight.Summary)
	gen.AssertExpectations(t)
}

func TestPipelineSwallowsInsightErrors(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(nil, errors.ProviderError(errors.CodeQuotaExceeded, "openai", fmt.Errorf("429")))

	env := newTestEnv(t, nil, gen)
	rec := env.acceptAndWait(t, xlsxUpload("owner-1", peopleWorkbook(t)))

	assert.Equal(t, upload.StatusProcessed, rec.Status)
	assert.Empty(t, rec.ErrorMessage)
	assert.False(t, rec.HasInsight())
}

func TestPipelineRecordsParseFailure(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		message string
	}{
		{"corrupt bytes", []byte("definitely not a spreadsheet"), "not a readable Excel workbook"},
		{"empty sheet", workbook(t, nil), "empty file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)

			rec := env.acceptAndWait(t, xlsxUpload("owner-1", tt.data))

			assert.Equal(t, upload.StatusError, rec.Status)
			assert.Contains(t, rec.ErrorMessage, tt.message)
			assert.Nil(t, rec.Result)
			assert.NotNil(t, rec.ProcessingCompletedAt)
			env.assertStagedGone(t, rec.StoredFilename)
		})
	}
}

func TestPipelineRecoversFromPanic(t *testing.T) {
	env := newTestEnv(t, panicParser{}, nil)

	rec := env.acceptAndWait(t, xlsxUpload("owner-1", peopleWorkbook(t)))

	assert.Equal(t, upload.StatusError, rec.Status)
	assert.Equal(t, "internal error while processing file", rec.ErrorMessage)
	env.assertStagedGone(t, rec.StoredFilename)
}

func TestPipelineSkipsRecordThatLeftProcessing(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	storedName, err := env.storage.Store(ctx, peopleWorkbook(t), "people.xlsx")
	require.NoError(t, err)
	rec := upload.NewRecord("owner-1", "people.xlsx", storedName, MimeXLSX, 10)
	require.NoError(t, env.repo.Create(ctx, rec))
	require.NoError(t, env.repo.MarkFailed(ctx, rec.ID, "cancelled", rec.CreatedAt))

	require.NoError(t, env.processor.RunPipeline(ctx, PipelineJob{ID: rec.ID, OwnerID: rec.OwnerID, StoredName: storedName}))

	stored, err := env.repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, upload.StatusError, stored.Status)
	assert.Equal(t, "cancelled", stored.ErrorMessage)
	env.assertStagedGone(t, storedName)
}

func TestAcceptValidation(t *testing.T) {
	data := peopleWorkbook(t)
	big := make([]byte, DefaultProcessorConfig().MaxFileSize+1)

	tests := []struct {
		name   string
		upload *upload.Upload
		ok     bool
	}{
		{"xlsx mime", xlsxUpload("o", data), true},
		{"extension only", &upload.Upload{OwnerID: "o", OriginalFilename: "a.XLSX", MimeType: "application/octet-stream", Data: data}, true},
		{"mime with params", &upload.Upload{OwnerID: "o", OriginalFilename: "blob", MimeType: MimeXLS + "; charset=binary", Data: data}, true},
		{"wrong type", &upload.Upload{OwnerID: "o", OriginalFilename: "notes.txt", MimeType: "text/plain", Data: data}, false},
		{"csv", &upload.Upload{OwnerID: "o", OriginalFilename: "data.csv", MimeType: "text/csv", Data: data}, false},
		{"empty", &upload.Upload{OwnerID: "o", OriginalFilename: "a.xlsx", MimeType: MimeXLSX}, false},
		{"too large", &upload.Upload{OwnerID: "o", OriginalFilename: "a.xlsx", MimeType: MimeXLSX, Data: big}, false},
		{"no filename", &upload.Upload{OwnerID: "o", OriginalFilename: "  ", MimeType: MimeXLSX, Data: data}, false},
		{"no owner", &upload.Upload{OriginalFilename: "a.xlsx", MimeType: MimeXLSX, Data: data}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			rec, err := env.processor.Accept(context.Background(), tt.upload)
			env.tasks.Wait()

			if tt.ok {
				require.NoError(t, err)
				assert.NotEmpty(t, rec.ID)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
			count, _ := env.repo.CountByOwner(context.Background(), "o")
			assert.Zero(t, count)
		})
	}
}

func TestAcceptStripsClientPath(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	up := xlsxUpload("owner-1", peopleWorkbook(t))
	up.OriginalFilename = "../../etc/people.xlsx"

	rec := env.acceptAndWait(t, up)
	assert.Equal(t, "people.xlsx", rec.OriginalFilename)
	assert.Regexp(t, `^excel-\d+-[0-9a-f]{8}\.xlsx$`, rec.StoredFilename)
}

func TestAcceptAfterShutdown(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	require.NoError(t, env.tasks.Shutdown(context.Background()))

	_, err := env.processor.Accept(context.Background(), xlsxUpload("owner-1", peopleWorkbook(t)))
	require.Error(t, err)

	stats, err := env.repo.StatsByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ErrorFiles)
}

func TestRegenerateInsight(t *testing.T) {
	gen := &mockGenerator{}
	env := newTestEnv(t, nil, gen)
	ctx := context.Background()

	gen.On("Generate", mock.Anything).Return(nil, errors.NoProviderConfigured()).Once()
	rec := env.acceptAndWait(t, xlsxUpload("owner-1", peopleWorkbook(t)))
	require.False(t, rec.HasInsight())

	gen.On("Generate", mock.Anything).Return(&upload.Insight{Summary: "fresh", GeneratedBy: "gemini"}, nil).Once()
	insight, err := env.processor.RegenerateInsight(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", insight.Summary)

	stored, err := env.repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, upload.StatusProcessed, stored.Status)
	assert.Equal(t, "fresh", stored.Insight.Summary)
	assert.Equal(t, rec.RowCount, stored.RowCount)

	gen.On("Generate", mock.Anything).Return(nil, errors.ProviderError(errors.CodeAuthError, "gemini", fmt.Errorf("401"))).Once()
	_, err = env.processor.RegenerateInsight(ctx, rec.ID)
	assert.Equal(t, errors.CodeAuthError, errors.GetCode(err))

	stored, err = env.repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.Insight.Summary, "failed regeneration keeps the previous insight")
}

func TestRegenerateInsightRequiresProcessed(t *testing.T) {
	env := newTestEnv(t, nil, &mockGenerator{})
	ctx := context.Background()

	rec := upload.NewRecord("owner-1", "a.xlsx", "excel-1-abcdef01.xlsx", MimeXLSX, 10)
	require.NoError(t, env.repo.Create(ctx, rec))

	_, err := env.processor.RegenerateInsight(ctx, rec.ID)
	assert.Equal(t, errors.CodeNotProcessedYet, errors.GetCode(err))

	_, err = env.processor.RegenerateInsight(ctx, core.NewID())
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestDeleteRules(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	owner := upload.Actor{OwnerID: "owner-1"}

	processing := upload.NewRecord("owner-1", "a.xlsx", "excel-1-abcdef01.xlsx", MimeXLSX, 10)
	require.NoError(t, env.repo.Create(ctx, processing))
	err := env.processor.Delete(ctx, processing.ID, owner)
	assert.Equal(t, errors.CodeConflict, errors.GetCode(err))

	done := env.acceptAndWait(t, xlsxUpload("owner-1", peopleWorkbook(t)))

	err = env.processor.Delete(ctx, done.ID, upload.Actor{OwnerID: "someone-else"})
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	require.NoError(t, env.processor.Delete(ctx, done.ID, owner))
	_, err = env.processor.Get(ctx, done.ID, owner)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	other := env.acceptAndWait(t, xlsxUpload("owner-2", peopleWorkbook(t)))
	require.NoError(t, env.processor.Delete(ctx, other.ID, upload.Actor{Admin: true}))
}

func TestListAndData(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	actor := upload.Actor{OwnerID: "owner-1"}

	var last *upload.Record
	for i := 0; i < 3; i++ {
		last = env.acceptAndWait(t, xlsxUpload("owner-1", peopleWorkbook(t)))
	}

	page, err := env.processor.List(ctx, "owner-1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Records, 2)
	for _, r := range page.Records {
		assert.Nil(t, r.FullData, "list views never carry full data")
	}

	page, err = env.processor.List(ctx, "owner-1", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, MaxPageSize, page.PageSize)

	data, err := env.processor.GetData(ctx, last.ID, actor, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Age"}, data.Headers)
	assert.Equal(t, 3, data.Total)
	assert.Equal(t, 2, data.TotalPages)
	require.Len(t, data.Rows, 1)
	assert.True(t, data.Rows[0].Get("Name").IsNull(), "trailing blank row is paged like any other")

	data, err = env.processor.GetData(ctx, last.ID, actor, 1, 2)
	require.NoError(t, err)
	require.Len(t, data.Rows, 2)
	assert.Equal(t, table.String("Bob"), data.Rows[1].Get("Name"))

	data, err = env.processor.GetData(ctx, last.ID, actor, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, data.Rows)

	stats, err := env.processor.OwnerStats(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ProcessedFiles)
	assert.Equal(t, int64(9), stats.TotalRows)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []upload.Event
}

func (r *recordingPublisher) Publish(event upload.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestPipelinePublishesTerminalStatus(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	events := &recordingPublisher{}
	env.processor.SetEventPublisher(events)

	ok := env.acceptAndWait(t, xlsxUpload("owner-1", peopleWorkbook(t)))
	bad := env.acceptAndWait(t, xlsxUpload("owner-1", []byte("junk")))

	require.Len(t, events.events, 2)
	assert.Equal(t, upload.EventStatusChanged, events.events[0].Type)
	assert.Equal(t, ok.ID, events.events[0].FileID)
	assert.Equal(t, core.OwnerID("owner-1"), events.events[0].OwnerID)
	assert.Equal(t, upload.StatusProcessed, events.events[0].Status)
	assert.Equal(t, bad.ID, events.events[1].FileID)
	assert.Equal(t, upload.StatusError, events.events[1].Status)
	assert.NotEmpty(t, events.events[1].ErrorMessage)
}
