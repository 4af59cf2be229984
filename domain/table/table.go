package table

// Table is the first sheet of a workbook: a header row plus ordered data rows
type Table struct {
	Headers []string  `json:"headers"`
	Rows    [][]Value `json:"rows"`
}

// RowCount returns the number of data rows
func (t *Table) RowCount() int { return len(t.Rows) }

// ColumnCount returns the number of header cells
func (t *Table) ColumnCount() int { return len(t.Headers) }

// Records derives the keyed view of every row
func (t *Table) Records() []Record {
	records := make([]Record, len(t.Rows))
	for i, row := range t.Rows {
		records[i] = NewRecord(t.Headers, row)
	}
	return records
}

// Column returns the cells of one column across all rows; short rows yield Null
func (t *Table) Column(index int) []Value {
	values := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		if index < len(row) {
			values[i] = row[index]
		}
	}
	return values
}

// FromRecords rebuilds a table from stored records and the header order
func FromRecords(headers []string, records []Record) *Table {
	rows := make([][]Value, len(records))
	for i, rec := range records {
		row := make([]Value, len(headers))
		for j, h := range headers {
			row[j] = rec.Get(h)
		}
		rows[i] = row
	}
	return &Table{Headers: headers, Rows: rows}
}
