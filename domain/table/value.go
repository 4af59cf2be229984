// Package table holds the parsed spreadsheet model: typed cell values, ordered
// records and the header/rows table produced by the tabular parser.
package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind tags the scalar held by a Value
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a nullable scalar cell: Null | Number | String | Bool.
// The zero Value is Null.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

// Null returns the empty cell value
func Null() Value { return Value{} }

// Number wraps a finite float. NaN and infinities collapse to Null.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindNumber, num: f}
}

// String wraps a text cell
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool wraps a boolean cell
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the tag of the value
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the cell is empty
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsBlank reports whether the cell is null or whitespace-only text
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.str) == ""
	default:
		return false
	}
}

// Float returns the numeric payload
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// BoolValue returns the boolean payload
func (v Value) BoolValue() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Text returns the cell rendered as text; Null renders as "".
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return v.Text()
}

// MarshalJSON encodes the value as a bare JSON scalar
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return []byte(strconv.FormatFloat(v.num, 'g', -1, 64)), nil
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar; objects and arrays are rejected
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty cell value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '{', '[':
		return fmt.Errorf("cell value must be a scalar, got %s", string(data[:1]))
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("invalid numeric cell %q: %w", string(data), err)
		}
		*v = Number(f)
		return nil
	}
}

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodeMsgpack writes the value as a native msgpack scalar
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case KindNumber:
		return enc.EncodeFloat64(v.num)
	case KindString:
		return enc.EncodeString(v.str)
	case KindBool:
		return enc.EncodeBool(v.b)
	default:
		return enc.EncodeNil()
	}
}

// DecodeMsgpack reads a msgpack scalar back into a Value
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Null()
	case bool:
		*v = Bool(x)
	case string:
		*v = String(x)
	case float64:
		*v = Number(x)
	case float32:
		*v = Number(float64(x))
	case int8:
		*v = Number(float64(x))
	case int16:
		*v = Number(float64(x))
	case int32:
		*v = Number(float64(x))
	case int64:
		*v = Number(float64(x))
	case uint8:
		*v = Number(float64(x))
	case uint16:
		*v = Number(float64(x))
	case uint32:
		*v = Number(float64(x))
	case uint64:
		*v = Number(float64(x))
	default:
		return fmt.Errorf("unsupported msgpack cell type %T", raw)
	}
	return nil
}
