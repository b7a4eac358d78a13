package sqlbuild

import (
	"strings"

	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/model"
)

// buildCursorPredicate compiles the lexicographic "strictly after" (or,
// symmetrically, "strictly before") predicate over sortCols against
// cursor.Values (with `before` resolved
// to a mirror-image predicate rather than rejected, see SPEC_FULL.md).
// Equal prefixes recurse into the next column; a descending column
// flips the strict comparator.
func (b *builder) buildCursorPredicate(sortCols []model.SortSpec, cursor *model.Cursor, prefix bool) (string, error) {
	if len(cursor.Values) != len(sortCols) {
		return "", enginerr.NewBuilderError("cursor value count must match sort column count")
	}

	after := cursor.Kind == model.CursorAfter
	if !after && cursor.Kind != model.CursorBefore {
		return "", enginerr.NewBuilderError("unknown cursor kind: " + string(cursor.Kind))
	}

	var disjuncts []string
	for i, spec := range sortCols {
		col, err := b.column(spec.ColID, prefix)
		if err != nil {
			return "", err
		}

		var conjuncts []string
		for j := 0; j < i; j++ {
			eqCol, err := b.column(sortCols[j].ColID, prefix)
			if err != nil {
				return "", err
			}
			conjuncts = append(conjuncts, eqCol+" = "+b.bind(cursor.Values[j]))
		}

		strictOp := strictComparator(spec.Descending, after)
		conjuncts = append(conjuncts, col+" "+strictOp+" "+b.bind(cursor.Values[i]))
		disjuncts = append(disjuncts, "("+strings.Join(conjuncts, " AND ")+")")
	}

	return strings.Join(disjuncts, " OR "), nil
}

// strictComparator picks the strict comparison operator for one column
// of the cursor tuple: ascending+after and descending+before both want
// ">"; the other two combinations want "<".
func strictComparator(descending, after bool) string {
	if descending != after {
		return ">"
	}
	return "<"
}
