package sqlbuild

import (
	"strings"

	"github.com/gristlabs/gristmux/src/model"
)

// Statement is a compiled, parameterized SQL statement ready to hand to
// database/sql. ColIDs, when non-empty, is the declared projected column
// order (QueryResultValue.ColIDs).
type Statement struct {
	SQL    string
	Args   []interface{}
	ColIDs []string
}

// builder accumulates bind parameters for one compiled statement, the way
// cypher.Query accumulates named parameters while clauses
// are built (src/cypher/query.go), generalized from `$pN` named params to
// SQL's positional `?` placeholders.
type builder struct {
	tableID string
	args    []interface{}
}

func newBuilder(tableID string) *builder {
	return &builder{tableID: tableID}
}

// bind appends v as the next positional parameter and returns its
// placeholder.
func (b *builder) bind(v model.CellValue) string {
	b.args = append(b.args, v)
	return "?"
}

func (b *builder) column(colID string, prefix bool) (string, error) {
	quoted, err := quoteIdent(colID)
	if err != nil {
		return "", err
	}
	if !prefix {
		return quoted, nil
	}
	table, err := quoteIdent(b.tableID)
	if err != nil {
		return "", err
	}
	return table + "." + quoted, nil
}

func (b *builder) tableAliasColumn(alias, colID string) (string, error) {
	quoted, err := quoteIdent(colID)
	if err != nil {
		return "", err
	}
	aliasQuoted, err := quoteIdent(alias)
	if err != nil {
		return "", err
	}
	return aliasQuoted + "." + quoted, nil
}

// CompileSelect compiles q into a SELECT Statement.
func CompileSelect(q model.Query) (Statement, error) {
	b := newBuilder(q.TableID)

	table, err := quoteIdent(q.TableID)
	if err != nil {
		return Statement{}, err
	}

	projection, colIDs, err := b.buildProjection(q)
	if err != nil {
		return Statement{}, err
	}

	var previousExpr string
	if q.IncludePrevious {
		previousExpr, err = b.buildIncludePrevious(q)
		if err != nil {
			return Statement{}, err
		}
		projection = append(projection, previousExpr)
		colIDs = append(colIDs, previousColumnName)
	}

	var whereParts []string
	if q.Filters.Op != "" {
		filterSQL, err := b.compileFilter(q.Filters, true)
		if err != nil {
			return Statement{}, err
		}
		whereParts = append(whereParts, "("+filterSQL+")")
	}

	if len(q.RowIDs) > 0 {
		rowIDsSQL, err := b.buildRowIDsPredicate(q.RowIDs, true)
		if err != nil {
			return Statement{}, err
		}
		whereParts = append(whereParts, rowIDsSQL)
	}

	sortCols := effectiveSortColumns(q.Sort)
	if q.Cursor != nil {
		cursorSQL, err := b.buildCursorPredicate(sortCols, q.Cursor, true)
		if err != nil {
			return Statement{}, err
		}
		whereParts = append(whereParts, cursorSQL)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(projection, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table)
	if len(whereParts) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(whereParts, " AND "))
	}

	orderBy, err := b.buildOrderBy(sortCols, false)
	if err != nil {
		return Statement{}, err
	}
	sb.WriteString(" ")
	sb.WriteString(orderBy)

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.bindLimit(q.Limit))
	}

	return Statement{SQL: sb.String(), Args: b.args, ColIDs: colIDs}, nil
}

// bindLimit mirrors bind but for a value that is always a plain int,
// kept as a separate helper for readability at call sites.
func (b *builder) bindLimit(limit int) string {
	return b.bind(int64(limit))
}

func (b *builder) buildProjection(q model.Query) ([]string, []string, error) {
	if len(q.Columns) > 0 {
		cols := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted, err := b.column(c, true)
			if err != nil {
				return nil, nil, err
			}
			cols[i] = quoted
		}
		return cols, append([]string(nil), q.Columns...), nil
	}
	table, err := quoteIdent(b.tableID)
	if err != nil {
		return nil, nil, err
	}
	return []string{table + ".*"}, nil, nil
}

func (b *builder) buildRowIDsPredicate(rowIDs []int64, prefix bool) (string, error) {
	idCol, err := b.column("id", prefix)
	if err != nil {
		return "", err
	}
	placeholders := make([]string, len(rowIDs))
	for i, id := range rowIDs {
		placeholders[i] = b.bind(id)
	}
	return idCol + " IN (" + strings.Join(placeholders, ", ") + ")", nil
}
