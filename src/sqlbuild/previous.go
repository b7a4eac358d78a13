package sqlbuild

import (
	"strings"

	"github.com/gristlabs/gristmux/src/model"
)

const previousColumnName = "_grist_Previous"

const previousAlias = "grist_prev"

// buildIncludePrevious compiles the synthetic "_grist_Previous" column:
// for each outer row, the id of the row immediately before it in the
// current order/filter, or NULL if it is first. Conceptually this is a
// correlated LEFT JOIN; SQLite has no LATERAL join, so this
// compiles to the equivalent correlated scalar subquery, same result,
// same "ordered in reverse and limited to one" shape.
func (b *builder) buildIncludePrevious(q model.Query) (string, error) {
	sortCols := effectiveSortColumns(q.Sort)

	innerTable, err := quoteIdent(q.TableID)
	if err != nil {
		return "", err
	}
	aliasQuoted, err := quoteIdent(previousAlias)
	if err != nil {
		return "", err
	}

	// The predecessor test uses the same id tie-breaker as ORDER BY, so
	// rows with equal sort keys still have a well-defined predecessor.
	tieBroken := sortCols
	if !isSyntheticSpecs(sortCols) {
		tieBroken = append(append([]model.SortSpec(nil), sortCols...), model.SortSpec{ColID: "id"})
	}

	var conjuncts []string
	for i, spec := range tieBroken {
		outerCol, err := b.column(spec.ColID, true)
		if err != nil {
			return "", err
		}
		innerCol, err := b.tableAliasColumn(previousAlias, spec.ColID)
		if err != nil {
			return "", err
		}

		var prefix []string
		for j := 0; j < i; j++ {
			oc, err := b.column(tieBroken[j].ColID, true)
			if err != nil {
				return "", err
			}
			ic, err := b.tableAliasColumn(previousAlias, tieBroken[j].ColID)
			if err != nil {
				return "", err
			}
			prefix = append(prefix, oc+" = "+ic)
		}

		strictOp := strictComparator(spec.Descending, false) // "strictly less than" the outer row
		prefix = append(prefix, innerCol+" "+strictOp+" "+outerCol)
		conjuncts = append(conjuncts, "("+strings.Join(prefix, " AND ")+")")
	}
	precedesOuter := strings.Join(conjuncts, " OR ")

	var innerWhere []string
	if q.Filters.Op != "" {
		innerFilter, err := b.compileFilterAliased(q.Filters, previousAlias)
		if err != nil {
			return "", err
		}
		innerWhere = append(innerWhere, "("+innerFilter+")")
	}
	innerWhere = append(innerWhere, "("+precedesOuter+")")

	innerOrderBy, err := b.buildOrderByAliased(sortCols, previousAlias)
	if err != nil {
		return "", err
	}

	prevIDCol, err := b.tableAliasColumn(previousAlias, "id")
	if err != nil {
		return "", err
	}

	subquery := "(SELECT " + prevIDCol + " FROM " + innerTable + " AS " + aliasQuoted +
		" WHERE " + strings.Join(innerWhere, " AND ") +
		" " + innerOrderBy + " LIMIT 1)"

	return subquery + " AS " + quoteAlias(previousColumnName), nil
}

func quoteAlias(name string) string {
	return `"` + name + `"`
}

// compileFilterAliased compiles a filter tree against alias instead of
// the query's own table, for use inside the includePrevious subquery.
func (b *builder) compileFilterAliased(expr model.FilterExpr, alias string) (string, error) {
	aliased := newBuilder(alias)
	aliased.args = b.args
	sql, err := aliased.compileFilter(expr, true)
	b.args = aliased.args
	return sql, err
}

func (b *builder) buildOrderByAliased(specs []model.SortSpec, alias string) (string, error) {
	aliased := newBuilder(alias)
	orderBy, err := aliased.buildOrderBy(specs, true)
	return orderBy, err
}
