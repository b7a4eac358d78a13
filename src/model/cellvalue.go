// Package model defines the engine's data model: cell values, bulk and
// table column values, doc actions, and query descriptions.
package model

import "encoding/json"

// CellValue is a sum type: null, bool, int64, float64, string, or a typed
// structured value ([code, ...payload]). It is represented as a bare
// interface{} holding one of: nil, bool, int64, float64, string, or
// *Typed, matching the JSON encoding the wire Codec uses.
type CellValue = interface{}

// Typed represents a typed structured cell value: [code, ...payload].
type Typed struct {
	Code    string
	Payload []interface{}
}

// MarshalJSON encodes Typed as a JSON array [code, ...payload].
func (t Typed) MarshalJSON() ([]byte, error) {
	arr := make([]interface{}, 0, len(t.Payload)+1)
	arr = append(arr, t.Code)
	arr = append(arr, t.Payload...)
	return json.Marshal(arr)
}

// UnmarshalJSON decodes a JSON array [code, ...payload] into Typed.
func (t *Typed) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) == 0 {
		t.Code = ""
		t.Payload = nil
		return nil
	}
	code, _ := arr[0].(string)
	t.Code = code
	t.Payload = arr[1:]
	return nil
}

// ColumnValues maps a column identifier to an ordered sequence of cell
// values. Every sequence in one ColumnValues shares the same length (the
// row count), an invariant enforced by producers, not this type.
type ColumnValues map[string][]CellValue

// RowCount returns the shared length of the column sequences, or 0 if
// ColumnValues is empty.
func (c ColumnValues) RowCount() int {
	for _, vals := range c {
		return len(vals)
	}
	return 0
}

// TableColumnValues is ColumnValues that includes a mandatory "id" column
// of integers.
type TableColumnValues struct {
	Columns ColumnValues
}

// IDs returns the mandatory id column as a slice of int64.
func (t TableColumnValues) IDs() []int64 {
	raw, ok := t.Columns["id"]
	if !ok {
		return nil
	}
	ids := make([]int64, len(raw))
	for i, v := range raw {
		ids[i] = toInt64(v)
	}
	return ids
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
