package profiling

import (
	"math"
	"strconv"
	"strings"
	"time"

	"sheetlens/domain/table"
	"sheetlens/domain/upload"
)

// dateLayouts are the textual date forms recognised by the inferencer
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-06",
	"01-02-2006",
	"02-Jan-2006",
	"2-Jan-06",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	time.RFC1123,
	time.RFC1123Z,
}

var booleanTokens = map[string]bool{
	"true": true, "false": true, "yes": true, "no": true, "1": true, "0": true,
}

// typePriority breaks ties between equally frequent types
var typePriority = []upload.ColumnType{
	upload.TypeNumber,
	upload.TypeDate,
	upload.TypeBoolean,
	upload.TypeText,
}

// InferColumnType returns the dominant type of a column's values. Null and
// blank cells are ignored; a column with nothing left is empty.
func InferColumnType(values []table.Value) upload.ColumnType {
	var counts [4]int
	tallied := false

	for _, v := range values {
		if v.IsBlank() {
			continue
		}
		counts[classifyValue(v)]++
		tallied = true
	}

	if !tallied {
		return upload.TypeEmpty
	}

	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}
	return typePriority[best]
}

// classifyValue returns the index into typePriority for one non-blank value
func classifyValue(v table.Value) int {
	switch v.Kind() {
	case table.KindNumber:
		return 0
	case table.KindBool:
		return 2
	}

	text := strings.TrimSpace(v.Text())
	if _, ok := parseNumericText(text); ok {
		return 0
	}
	if isDateText(text) {
		return 1
	}
	if booleanTokens[strings.ToLower(text)] {
		return 2
	}
	return 3
}

func parseNumericText(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func isDateText(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
