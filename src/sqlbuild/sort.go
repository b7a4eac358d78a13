package sqlbuild

import (
	"strings"

	"github.com/gristlabs/gristmux/src/model"
)

// effectiveSortColumns returns the sort columns a cursor predicate binds
// against. When the query specifies no explicit sort, "id" stands in as
// the sole ordering key: id is always appended as the final tie-breaker
// so ordering stays total, and when no sort was given it becomes the
// whole ordering.
func effectiveSortColumns(sort []string) []model.SortSpec {
	specs := model.ParseSort(sort)
	if len(specs) == 0 {
		return []model.SortSpec{{ColID: "id"}}
	}
	return specs
}

func (b *builder) orderDirection(desc, reverse bool) string {
	if desc != reverse {
		return "DESC NULLS FIRST"
	}
	return "ASC NULLS LAST"
}

func (b *builder) buildOrderBy(specs []model.SortSpec, reverse bool) (string, error) {
	var parts []string
	for _, s := range specs {
		col, err := b.column(s.ColID, true)
		if err != nil {
			return "", err
		}
		parts = append(parts, col+" "+b.orderDirection(s.Descending, reverse))
	}
	if !isSyntheticSpecs(specs) {
		idCol, err := b.column("id", true)
		if err != nil {
			return "", err
		}
		parts = append(parts, idCol+" "+b.orderDirection(false, reverse))
	}
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

// isSyntheticSpecs reports whether specs is exactly the degenerate
// {id}-only sort produced by effectiveSortColumns for an unsorted query.
func isSyntheticSpecs(specs []model.SortSpec) bool {
	return len(specs) == 1 && specs[0].ColID == "id" && !specs[0].Descending
}
