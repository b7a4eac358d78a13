package model

import "strings"

// StoreType is the concrete SQLite column type a logical type maps to.
type StoreType struct {
	SQLType      string
	StoreDefault string // literal SQL used as the column DEFAULT
	NeutralValue CellValue
}

// typeMapping implements the logical-to-store column type mapping.
var typeMapping = map[string]StoreType{
	"Any":            {SQLType: "BLOB", StoreDefault: "NULL", NeutralValue: nil},
	"Attachments":    {SQLType: "TEXT", StoreDefault: "NULL", NeutralValue: nil},
	"Blob":           {SQLType: "BLOB", StoreDefault: "NULL", NeutralValue: nil},
	"Bool":           {SQLType: "BOOLEAN", StoreDefault: "0", NeutralValue: false},
	"Choice":         {SQLType: "TEXT", StoreDefault: "''", NeutralValue: ""},
	"ChoiceList":     {SQLType: "TEXT", StoreDefault: "NULL", NeutralValue: nil},
	"Date":           {SQLType: "DATE", StoreDefault: "NULL", NeutralValue: nil},
	"DateTime":       {SQLType: "DATETIME", StoreDefault: "NULL", NeutralValue: nil},
	"Id":             {SQLType: "INTEGER", StoreDefault: "0", NeutralValue: int64(0)},
	"Int":            {SQLType: "INTEGER", StoreDefault: "0", NeutralValue: int64(0)},
	"ManualSortPos":  {SQLType: "NUMERIC", StoreDefault: "1e999", NeutralValue: "+Inf"},
	"Numeric":        {SQLType: "NUMERIC", StoreDefault: "0", NeutralValue: float64(0)},
	"PositionNumber": {SQLType: "NUMERIC", StoreDefault: "1e999", NeutralValue: "+Inf"},
	"Ref":            {SQLType: "INTEGER", StoreDefault: "0", NeutralValue: int64(0)},
	"RefList":        {SQLType: "TEXT", StoreDefault: "NULL", NeutralValue: nil},
	"Text":           {SQLType: "TEXT", StoreDefault: "''", NeutralValue: ""},
}

// LookupStoreType resolves a logical type (possibly qualified, e.g.
// "Ref:Table1") to its store type. Only the head before ':' is used;
// unknown heads fall back to Any.
func LookupStoreType(logicalType string) StoreType {
	head := logicalType
	if idx := strings.IndexByte(logicalType, ':'); idx >= 0 {
		head = logicalType[:idx]
	}
	if st, ok := typeMapping[head]; ok {
		return st
	}
	return typeMapping["Any"]
}
