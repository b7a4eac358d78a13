package model

// CursorKind selects which side of a sort position the cursor predicate
// bounds.
type CursorKind string

const (
	CursorAfter  CursorKind = "after"
	CursorBefore CursorKind = "before"
)

// Cursor bounds a query to rows strictly after (or before) a sort
// position. len(Values) must equal len(Sort) on the owning Query.
type Cursor struct {
	Kind   CursorKind
	Values []CellValue
}

// SortSpec is one column of an ORDER BY, optionally descending.
type SortSpec struct {
	ColID      string
	Descending bool
}

// ParseSort parses the "-colId for descending" shorthand into
// SortSpec values.
func ParseSort(cols []string) []SortSpec {
	specs := make([]SortSpec, len(cols))
	for i, c := range cols {
		if len(c) > 0 && c[0] == '-' {
			specs[i] = SortSpec{ColID: c[1:], Descending: true}
		} else {
			specs[i] = SortSpec{ColID: c}
		}
	}
	return specs
}

// Query describes a structured read against one table.
type Query struct {
	TableID string

	// Filters is the recursive filter expression tree; the zero
	// FilterExpr (empty Op) means no filter.
	Filters FilterExpr

	// Sort is an ordered list of columns, "-col" for descending.
	Sort []string

	// Limit bounds the number of returned rows; 0 means unbounded.
	Limit int

	// Cursor paginates relative to a prior sort position.
	Cursor *Cursor

	// Columns selects which columns to project; nil means all (or
	// store-declared order).
	Columns []string

	// RowIDs restricts the result to the given row ids.
	RowIDs []int64

	// IncludePrevious asks the builder to project the id of the row
	// immediately preceding each result row, in the current order/filter.
	IncludePrevious bool
}

// QueryResult is the plain (non-streaming) result of fetchQuery.
type QueryResult struct {
	TableID   string
	ActionNum int64
	TableData TableColumnValues
}

// QueryResultValue is the initial value frame of a streaming query result.
type QueryResultValue struct {
	TableID   string
	ActionNum int64
	ColIDs    []string
}

// RowChunk is one positionally-aligned batch of rows, aligned with the
// ColIDs of the owning QueryResultValue. Each inner slice is one column's
// values for this chunk, in QueryResultValue.ColIDs order.
type RowChunk struct {
	Columns [][]CellValue
}

// Len returns the number of rows in the chunk.
func (r RowChunk) Len() int {
	if len(r.Columns) == 0 {
		return 0
	}
	return len(r.Columns[0])
}

// StreamingOptions configures fetchQueryStreaming.
type StreamingOptions struct {
	// TimeoutMs bounds how long the read may run before being cancelled.
	TimeoutMs int
	// ChunkRows bounds how many rows each yielded chunk may contain.
	ChunkRows int
}
