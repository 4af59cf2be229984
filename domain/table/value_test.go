package table

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestValueKinds(t *testing.T) {
	assert.True(t, Null().IsNull())
	assert.True(t, Value{}.IsNull(), "zero value is null")
	assert.True(t, Number(math.NaN()).IsNull())
	assert.True(t, Number(math.Inf(1)).IsNull())

	f, ok := Number(30).Float()
	assert.True(t, ok)
	assert.Equal(t, 30.0, f)
	assert.Equal(t, "30", Number(30).Text())
	assert.Equal(t, "2.5", Number(2.5).Text())
	assert.Equal(t, "true", Bool(true).Text())
	assert.Equal(t, "", Null().Text())
	assert.Equal(t, "null", Null().String())
}

func TestValueIsBlank(t *testing.T) {
	assert.True(t, Null().IsBlank())
	assert.True(t, String("   ").IsBlank())
	assert.False(t, String(" a ").IsBlank())
	assert.False(t, Number(0).IsBlank())
	assert.False(t, Bool(false).IsBlank())
}

func TestValueJSON(t *testing.T) {
	cells := []Value{Null(), Number(42), Number(-0.125), String("Ann"), String(""), Bool(false)}
	data, err := json.Marshal(cells)
	require.NoError(t, err)
	assert.JSONEq(t, `[null,42,-0.125,"Ann","",false]`, string(data))

	var back []Value
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cells, back)
}

func TestValueJSONRejectsComposites(t *testing.T) {
	var v Value
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &v))
}

func TestValueMsgpack(t *testing.T) {
	cells := []Value{Null(), Number(7), String("x"), Bool(true)}
	data, err := msgpack.Marshal(cells)
	require.NoError(t, err)

	var back []Value
	require.NoError(t, msgpack.Unmarshal(data, &back))
	assert.Equal(t, cells, back)
}

func TestRecordKeepsColumnOrder(t *testing.T) {
	rec := NewRecord([]string{"Zeta", "Alpha"}, []Value{String("z"), Number(1)})
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"Zeta":"z","Alpha":1}`, string(data))
	assert.Equal(t, string(data), rec.Canonical())
}

func TestNewRecordPadsAndTruncates(t *testing.T) {
	headers := []string{"A", "B"}

	short := NewRecord(headers, []Value{String("a")})
	assert.True(t, short.Get("B").IsNull())

	long := NewRecord(headers, []Value{String("a"), String("b"), String("c")})
	assert.Equal(t, 2, long.Len())
	assert.True(t, long.Get("C").IsNull())
}

// Records written by either codec read back identically
func TestRecordsRoundTrip(t *testing.T) {
	tbl := &Table{
		Headers: []string{"Name", "Age", "Active"},
		Rows: [][]Value{
			{String("Ann"), Number(30), Bool(true)},
			{String("Bob"), String("x")},
			{Null(), Null(), Null()},
		},
	}
	records := tbl.Records()

	jsonData, err := json.Marshal(records)
	require.NoError(t, err)
	var fromJSON []Record
	require.NoError(t, json.Unmarshal(jsonData, &fromJSON))
	assert.Equal(t, records, fromJSON)

	packed, err := EncodeRecords(records)
	require.NoError(t, err)
	fromPack, err := DecodeRecords(packed)
	require.NoError(t, err)
	assert.Equal(t, records, fromPack)
}

func TestFromRecords(t *testing.T) {
	tbl := &Table{
		Headers: []string{"A", "B"},
		Rows:    [][]Value{{Number(1), String("b")}, {Null(), Null()}},
	}
	rebuilt := FromRecords(tbl.Headers, tbl.Records())
	assert.Equal(t, tbl.Rows, rebuilt.Rows)
	assert.Equal(t, []Value{String("b"), Null()}, rebuilt.Column(1))
}
