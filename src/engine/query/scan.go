package query

import (
	"github.com/gristlabs/gristmux/src/model"
)

// rowsScanner is the subset of *sql.Rows the scan/pump helpers need,
// letting tests exercise them without going through database/sql.
type rowsScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanRow reads one row into a slice of CellValue, positionally aligned
// with cols. database/sql hands TEXT columns back as either string or
// []byte depending on the driver's internal buffering; normalizeCell
// collapses that to the string the wire codec expects.
func scanRow(rows rowsScanner, numCols int) ([]model.CellValue, error) {
	raw := make([]interface{}, numCols)
	ptrs := make([]interface{}, numCols)
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range raw {
		raw[i] = normalizeCell(v)
	}
	return raw, nil
}

func normalizeCell(v interface{}) model.CellValue {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// appendColumnar appends one scanned row to an in-progress ColumnValues
// accumulator, keyed by cols (rows.Columns() order).
func appendColumnar(acc model.ColumnValues, cols []string, row []model.CellValue) {
	for i, c := range cols {
		acc[c] = append(acc[c], row[i])
	}
}
