package table

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Record is one data row keyed by column name. Keys keep header order so the
// serialized form is canonical.
type Record struct {
	keys   []string
	values []Value
}

// NewRecord zips a row with the header list. Cells beyond the header are
// dropped and missing cells become Null.
func NewRecord(headers []string, row []Value) Record {
	values := make([]Value, len(headers))
	for i := range headers {
		if i < len(row) {
			values[i] = row[i]
		}
	}
	return Record{keys: headers, values: values}
}

// Len returns the number of columns in the record
func (r Record) Len() int { return len(r.keys) }

// Keys returns the column names in order
func (r Record) Keys() []string { return r.keys }

// Values returns the cells in column order
func (r Record) Values() []Value { return r.values }

// Get returns the cell for a column, Null when absent
func (r Record) Get(column string) Value {
	for i, k := range r.keys {
		if k == column {
			return r.values[i]
		}
	}
	return Null()
}

// Canonical returns the stable serialization used for row identity
func (r Record) Canonical() string {
	data, err := r.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

// MarshalJSON writes the record as an object with keys in column order
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.values[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object back, preserving key order
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object")
	}

	r.keys = r.keys[:0]
	r.values = r.values[:0]
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("record key must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		r.keys = append(r.keys, key)
		r.values = append(r.values, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// EncodeMsgpack writes the record as a msgpack map in column order
func (r Record) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(r.keys)); err != nil {
		return err
	}
	for i, k := range r.keys {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := r.values[i].EncodeMsgpack(enc); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads a msgpack map, preserving key order
func (r *Record) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	if n < 0 {
		r.keys, r.values = nil, nil
		return nil
	}
	r.keys = make([]string, 0, n)
	r.values = make([]Value, 0, n)
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		var v Value
		if err := v.DecodeMsgpack(dec); err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		r.keys = append(r.keys, key)
		r.values = append(r.values, v)
	}
	return nil
}

// EncodeRecords packs a record list for compact storage
func EncodeRecords(records []Record) ([]byte, error) {
	return msgpack.Marshal(records)
}

// DecodeRecords unpacks a list written by EncodeRecords
func DecodeRecords(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []Record
	if err := msgpack.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}
