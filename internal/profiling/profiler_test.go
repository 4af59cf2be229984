package profiling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetlens/domain/table"
	"sheetlens/domain/upload"
)

func TestInferColumnType(t *testing.T) {
	tests := []struct {
		name   string
		values []table.Value
		want   upload.ColumnType
	}{
		{"numbers", []table.Value{table.Number(1), table.String("2.5"), table.String(" -3 ")}, upload.TypeNumber},
		{"tie goes to number", []table.Value{table.String("30"), table.String("x"), table.Null()}, upload.TypeNumber},
		{"tie date over text", []table.Value{table.String("2024-01-15"), table.String("hello")}, upload.TypeDate},
		{"tie boolean over text", []table.Value{table.String("yes"), table.String("maybe")}, upload.TypeBoolean},
		{"tie number over date", []table.Value{table.Number(4), table.String("Jan 2, 2006")}, upload.TypeNumber},
		{"majority text", []table.Value{table.String("a"), table.String("b"), table.Number(1)}, upload.TypeText},
		{"bool cells", []table.Value{table.Bool(true), table.Bool(false), table.String("No")}, upload.TypeBoolean},
		{"numeric tokens count as numbers", []table.Value{table.String("1"), table.String("0")}, upload.TypeNumber},
		{"dates", []table.Value{table.String("01/15/2024"), table.String("2024-02-01T10:00:00Z")}, upload.TypeDate},
		{"nan is text", []table.Value{table.String("NaN")}, upload.TypeText},
		{"all null", []table.Value{table.Null(), table.Null()}, upload.TypeEmpty},
		{"blank strings are ignored", []table.Value{table.String(""), table.String("   ")}, upload.TypeEmpty},
		{"no values", nil, upload.TypeEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferColumnType(tt.values))
		})
	}
}

func TestInferColumnTypeIsDeterministic(t *testing.T) {
	values := []table.Value{table.String("true"), table.String("2024-01-01"), table.Number(3), table.String("z")}
	first := InferColumnType(values)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, InferColumnType(values))
	}
}

// Three data rows, one of them fully empty; Age ties number vs text
func TestProfileCountsEmptyRowsAndNumberColumn(t *testing.T) {
	tbl := &table.Table{
		Headers: []string{"Name", "Age"},
		Rows: [][]table.Value{
			{table.String("Ann"), table.String("30")},
			{table.String("Bob"), table.String("x")},
			{table.Null(), table.Null()},
		},
	}

	profile := Profile(tbl)
	st := profile.Statistics

	assert.Equal(t, 3, st.TotalRows)
	assert.Equal(t, 2, st.TotalColumns)
	assert.Equal(t, 1, st.EmptyRows)
	assert.Equal(t, 0, st.DuplicateRows)
	assert.Equal(t, upload.TypeText, st.DataTypes["Name"])
	assert.Equal(t, upload.TypeNumber, st.DataTypes["Age"])
	assert.Equal(t, []upload.Column{
		{Name: "Name", Type: upload.TypeText, Index: 0},
		{Name: "Age", Type: upload.TypeNumber, Index: 1},
	}, profile.Schema)

	require.Contains(t, st.NumericSummaries, "Age")
	assert.Equal(t, 1, st.NumericSummaries["Age"].Count)
	assert.Equal(t, 30.0, st.NumericSummaries["Age"].Mean)
}

func TestProfileCountsDuplicateRows(t *testing.T) {
	tbl := &table.Table{
		Headers: []string{"A", "B"},
		Rows: [][]table.Value{
			{table.String("x"), table.Number(1)},
			{table.String("y"), table.Number(2)},
			{table.String("x"), table.Number(1)},
		},
	}

	assert.Equal(t, 1, Profile(tbl).Statistics.DuplicateRows)
}

func TestDuplicateRowsAreTypeAware(t *testing.T) {
	tbl := &table.Table{
		Headers: []string{"A"},
		Rows: [][]table.Value{
			{table.Number(1)},
			{table.String("1")},
			{table.Number(1)},
			{table.Number(1)},
		},
	}

	assert.Equal(t, 2, CountDuplicateRows(tbl.Records()))
}

func TestCountEmptyRows(t *testing.T) {
	rows := [][]table.Value{
		{},
		{table.String(" "), table.Null()},
		{table.Number(0)},
		{table.Bool(false), table.Null()},
	}
	assert.Equal(t, 2, CountEmptyRows(rows))
}

func TestProfileIsIdempotent(t *testing.T) {
	tbl := &table.Table{
		Headers: []string{"Score", "Flag"},
		Rows: [][]table.Value{
			{table.Number(10), table.Bool(true)},
			{table.Number(20), table.Bool(false)},
			{table.Number(45), table.Null()},
		},
	}

	assert.Equal(t, Profile(tbl), Profile(tbl))
}

func TestProfileEmptyColumn(t *testing.T) {
	tbl := &table.Table{
		Headers: []string{"Name", "Notes"},
		Rows: [][]table.Value{
			{table.String("a"), table.Null()},
			{table.String("b"), table.String("")},
		},
	}

	profile := Profile(tbl)
	assert.Equal(t, upload.TypeEmpty, profile.Statistics.DataTypes["Notes"])
	assert.Nil(t, profile.Statistics.NumericSummaries)
}

func TestSummarizeNumeric(t *testing.T) {
	summary, err := SummarizeNumeric([]float64{1, 2, 3, 4, 100})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Count)
	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 100.0, summary.Max)
	assert.Equal(t, 22.0, summary.Mean)
	assert.Equal(t, 3.0, summary.Median)
	assert.Greater(t, summary.StdDev, 0.0)
	assert.Greater(t, summary.Skewness, 0.0, "long right tail")
	assert.Equal(t, 1, summary.Outliers)
}

func TestSummarizeNumericSingleValue(t *testing.T) {
	summary, err := SummarizeNumeric([]float64{7})
	require.NoError(t, err)
	assert.Equal(t, 0.0, summary.StdDev)
	assert.Equal(t, 0.0, summary.Skewness)
}

func TestSummarizeNumericEmpty(t *testing.T) {
	_, err := SummarizeNumeric(nil)
	assert.Error(t, err)
}
