package profiling

import (
	"sheetlens/domain/table"
	"sheetlens/domain/upload"
)

// DatasetProfile is the schema and statistics derived from one table
type DatasetProfile struct {
	Schema     []upload.Column
	Statistics upload.DataStatistics
}

// DataProfiler computes column types and dataset statistics
type DataProfiler struct{}

// NewDataProfiler creates a new data profiler
func NewDataProfiler() *DataProfiler {
	return &DataProfiler{}
}

// ProfileColumn infers the type of one column and, for number columns,
// summarises its numeric values.
func (dp *DataProfiler) ProfileColumn(values []table.Value, name string, index int) (upload.Column, *upload.NumericSummary) {
	column := upload.Column{Name: name, Type: InferColumnType(values), Index: index}
	if column.Type != upload.TypeNumber {
		return column, nil
	}

	summary, err := SummarizeNumeric(NumericValues(values))
	if err != nil {
		return column, nil
	}
	return column, &summary
}

// ProfileDataset analyzes every column and row of the table
func (dp *DataProfiler) ProfileDataset(tbl *table.Table) *DatasetProfile {
	stats := upload.DataStatistics{
		TotalRows:    tbl.RowCount(),
		TotalColumns: tbl.ColumnCount(),
		DataTypes:    make(map[string]upload.ColumnType, tbl.ColumnCount()),
	}
	schema := make([]upload.Column, 0, tbl.ColumnCount())

	for i, name := range tbl.Headers {
		column, summary := dp.ProfileColumn(tbl.Column(i), name, i)
		schema = append(schema, column)
		stats.DataTypes[name] = column.Type
		if summary != nil {
			if stats.NumericSummaries == nil {
				stats.NumericSummaries = make(map[string]upload.NumericSummary)
			}
			stats.NumericSummaries[name] = *summary
		}
	}

	stats.EmptyRows = CountEmptyRows(tbl.Rows)
	stats.DuplicateRows = CountDuplicateRows(tbl.Records())

	return &DatasetProfile{Schema: schema, Statistics: stats}
}

// Profile is a convenience wrapper around DataProfiler.ProfileDataset
func Profile(tbl *table.Table) *DatasetProfile {
	return NewDataProfiler().ProfileDataset(tbl)
}

// CountEmptyRows counts rows whose cells are all null or blank text.
// A row with no cells at all is empty.
func CountEmptyRows(rows [][]table.Value) int {
	count := 0
	for _, row := range rows {
		empty := true
		for _, cell := range row {
			if !cell.IsBlank() {
				empty = false
				break
			}
		}
		if empty {
			count++
		}
	}
	return count
}

// CountDuplicateRows counts records already seen earlier in the list; the
// first occurrence of each distinct record is not counted.
func CountDuplicateRows(records []table.Record) int {
	seen := make(map[string]struct{}, len(records))
	duplicates := 0
	for _, rec := range records {
		key := rec.Canonical()
		if _, ok := seen[key]; ok {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
	}
	return duplicates
}
