package excel

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"sheetlens/domain/table"
	"sheetlens/internal"
	"sheetlens/internal/errors"
)

// oleSignature prefixes legacy BIFF (.xls) and encrypted workbooks
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Parser turns workbook bytes into a header/rows table. Only the first sheet is read.
type Parser struct {
	logger *internal.Logger
}

// NewParser creates a parser
func NewParser(logger *internal.Logger) *Parser {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Parser{logger: logger}
}

// Parse reads the first sheet of an OOXML workbook
func (p *Parser) Parse(data []byte) (*table.Table, error) {
	startTime := time.Now()

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		if bytes.HasPrefix(data, oleSignature) {
			return nil, errors.ParseError("legacy .xls or encrypted workbooks are not supported; save the file as .xlsx", err)
		}
		return nil, errors.ParseError("file is not a readable Excel workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ParseError("workbook has no sheets", nil)
	}
	sheet := sheets[0]

	formatted, err := sheetRows(f, sheet)
	if err != nil {
		return nil, errors.ParseError(fmt.Sprintf("failed to read sheet %q", sheet), err)
	}
	if len(formatted) == 0 {
		return nil, errors.ParseError("empty file", nil)
	}
	raw, err := sheetRows(f, sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.ParseError(fmt.Sprintf("failed to read sheet %q", sheet), err)
	}

	headers := normalizeHeaders(formatted[0])
	rows := make([][]table.Value, 0, len(formatted)-1)
	for r := 1; r < len(formatted); r++ {
		var rawRow []string
		if r < len(raw) {
			rawRow = raw[r]
		}
		rows = append(rows, p.convertRow(f, sheet, r, formatted[r], rawRow))
	}

	p.logger.Debug("[Parser] sheet %q parsed in %.2fms (%d columns, %d rows)",
		sheet, float64(time.Since(startTime).Nanoseconds())/1e6, len(headers), len(rows))

	return &table.Table{Headers: headers, Rows: rows}, nil
}

// sheetRows returns every row up to the last row element in the sheet.
// Unlike GetRows, trailing rows whose cells are all blank are kept.
func sheetRows(f *excelize.File, sheet string, opts ...excelize.Options) ([][]string, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, err
	}
	var out [][]string
	for rows.Next() {
		cols, err := rows.Columns(opts...)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, cols)
	}
	if err := rows.Error(); err != nil {
		rows.Close()
		return nil, err
	}
	return out, rows.Close()
}

// convertRow types each cell of one sheet row. r is the 0-based sheet row.
func (p *Parser) convertRow(f *excelize.File, sheet string, r int, formatted, raw []string) []table.Value {
	values := make([]table.Value, len(formatted))
	for c, text := range formatted {
		rawText := text
		if c < len(raw) {
			rawText = raw[c]
		}
		if text == "" && rawText == "" {
			continue
		}

		cellType := excelize.CellTypeUnset
		if axis, err := excelize.CoordinatesToCellName(c+1, r+1); err == nil {
			if ct, err := f.GetCellType(sheet, axis); err == nil {
				cellType = ct
			}
		}
		values[c] = convertCell(cellType, text, rawText)
	}
	return values
}

// convertCell maps one cell to a table value
func convertCell(cellType excelize.CellType, formatted, raw string) table.Value {
	switch cellType {
	case excelize.CellTypeBool:
		b := raw == "1" || strings.EqualFold(raw, "true")
		return table.Bool(b)
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if f, ok := finiteFloat(raw); ok {
			if _, ok := finiteFloat(formatted); ok {
				return table.Number(f)
			}
		}
	}
	return table.String(formatted)
}

func finiteFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// normalizeHeaders trims header text and replaces blank or repeated names
// with Column_<1-based index>, keeping every name unique.
func normalizeHeaders(cells []string) []string {
	headers := make([]string, len(cells))
	used := make(map[string]bool, len(cells))
	for i, cell := range cells {
		name := strings.TrimSpace(cell)
		if name == "" || used[name] {
			name = fmt.Sprintf("Column_%d", i+1)
			for n := 2; used[name]; n++ {
				name = fmt.Sprintf("Column_%d_%d", i+1, n)
			}
		}
		used[name] = true
		headers[i] = name
	}
	return headers
}
