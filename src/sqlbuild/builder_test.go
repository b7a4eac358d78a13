package sqlbuild

import (
	"strings"
	"testing"

	"github.com/gristlabs/gristmux/src/model"
)

func TestCompileSelectDefaultProjection(t *testing.T) {
	stmt, err := CompileSelect(model.Query{TableID: "Table1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stmt.SQL, `"Table1".*`) {
		t.Fatalf("expected wildcard projection, got %q", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, `ORDER BY "Table1"."id" ASC NULLS LAST`) {
		t.Fatalf("expected id-only total order, got %q", stmt.SQL)
	}
}

func TestCompileSelectExplicitColumnsWinOverWildcard(t *testing.T) {
	stmt, err := CompileSelect(model.Query{TableID: "Table1", Columns: []string{"A", "B"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stmt.SQL, `"Table1"."A", "Table1"."B"`) {
		t.Fatalf("expected explicit column projection, got %q", stmt.SQL)
	}
	if stmt.ColIDs[0] != "A" || stmt.ColIDs[1] != "B" {
		t.Fatalf("expected declared ColIDs [A B], got %v", stmt.ColIDs)
	}
}

func TestCompileSelectRejectsBadIdentifier(t *testing.T) {
	_, err := CompileSelect(model.Query{TableID: "Table1; DROP", Columns: []string{"A"}})
	if err == nil {
		t.Fatal("expected a builder error for an invalid identifier")
	}
}

func TestCompileSelectFilterAndArgsOrder(t *testing.T) {
	q := model.Query{
		TableID: "Table1",
		Filters: model.And(
			model.Binary(model.OpGt, model.Name("Age"), model.Const(int64(18))),
			model.Binary(model.OpEq, model.Name("Active"), model.Const(true)),
		),
	}
	stmt, err := CompileSelect(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stmt.SQL, `"Table1"."Age" > ?`) || !strings.Contains(stmt.SQL, `"Table1"."Active" = ?`) {
		t.Fatalf("expected both comparisons compiled, got %q", stmt.SQL)
	}
	if len(stmt.Args) != 2 || stmt.Args[0] != int64(18) || stmt.Args[1] != true {
		t.Fatalf("expected args [18 true] in source order, got %v", stmt.Args)
	}
}

func TestCompileSelectInList(t *testing.T) {
	q := model.Query{
		TableID: "Table1",
		Filters: model.Binary(model.OpIn, model.Name("Status"), model.List(
			model.Const("open"), model.Const("pending"),
		)),
	}
	stmt, err := CompileSelect(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stmt.SQL, `"Table1"."Status" IN (?, ?)`) {
		t.Fatalf("expected IN list compiled, got %q", stmt.SQL)
	}
}

func TestCompileSelectInvalidArityFails(t *testing.T) {
	bad := model.FilterExpr{Op: model.OpEq, Args: []model.FilterExpr{model.Name("A")}}
	_, err := CompileSelect(model.Query{TableID: "Table1", Filters: bad})
	if err == nil {
		t.Fatal("expected an arity error")
	}
}

func TestCompileSelectRowIDs(t *testing.T) {
	stmt, err := CompileSelect(model.Query{TableID: "Table1", RowIDs: []int64{3, 7, 9}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stmt.SQL, `"Table1"."id" IN (?, ?, ?)`) {
		t.Fatalf("expected rowIds predicate, got %q", stmt.SQL)
	}
	if len(stmt.Args) != 3 {
		t.Fatalf("expected 3 bound args, got %d", len(stmt.Args))
	}
}

func TestCompileSelectSortDescendingOrder(t *testing.T) {
	stmt, err := CompileSelect(model.Query{TableID: "Table1", Sort: []string{"-Age", "Name"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `ORDER BY "Table1"."Age" DESC NULLS FIRST, "Table1"."Name" ASC NULLS LAST, "Table1"."id" ASC NULLS LAST`
	if !strings.Contains(stmt.SQL, want) {
		t.Fatalf("expected %q, got %q", want, stmt.SQL)
	}
}

func TestCompileSelectCursorAfter(t *testing.T) {
	q := model.Query{
		TableID: "Table1",
		Sort:    []string{"Age"},
		Cursor:  &model.Cursor{Kind: model.CursorAfter, Values: []model.CellValue{int64(30)}},
	}
	stmt, err := CompileSelect(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stmt.SQL, `"Table1"."Age" > ?`) {
		t.Fatalf("expected strict-after predicate, got %q", stmt.SQL)
	}
}

func TestCompileSelectCursorBeforeMirrorsAfter(t *testing.T) {
	q := model.Query{
		TableID: "Table1",
		Sort:    []string{"-Age"},
		Cursor:  &model.Cursor{Kind: model.CursorBefore, Values: []model.CellValue{int64(30)}},
	}
	stmt, err := CompileSelect(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Descending column + before-cursor mirrors to a strict ">" per
	// strictComparator's truth table.
	if !strings.Contains(stmt.SQL, `"Table1"."Age" > ?`) {
		t.Fatalf("expected mirrored predicate, got %q", stmt.SQL)
	}
}

func TestCompileSelectCursorValueCountMismatch(t *testing.T) {
	q := model.Query{
		TableID: "Table1",
		Sort:    []string{"Age", "Name"},
		Cursor:  &model.Cursor{Kind: model.CursorAfter, Values: []model.CellValue{int64(30)}},
	}
	_, err := CompileSelect(q)
	if err == nil {
		t.Fatal("expected a builder error for mismatched cursor value count")
	}
}

func TestCompileSelectIncludePrevious(t *testing.T) {
	q := model.Query{TableID: "Table1", Sort: []string{"Age"}, IncludePrevious: true}
	stmt, err := CompileSelect(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stmt.SQL, `AS "_grist_Previous"`) {
		t.Fatalf("expected synthetic previous column, got %q", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, `"grist_prev"`) {
		t.Fatalf("expected aliased self-reference, got %q", stmt.SQL)
	}
	if stmt.ColIDs[len(stmt.ColIDs)-1] != "_grist_Previous" {
		t.Fatalf("expected _grist_Previous to be the last declared column, got %v", stmt.ColIDs)
	}
}

func TestCompileSelectLimit(t *testing.T) {
	stmt, err := CompileSelect(model.Query{TableID: "Table1", Limit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stmt.SQL, "LIMIT ?") {
		t.Fatalf("expected a LIMIT clause, got %q", stmt.SQL)
	}
	if stmt.Args[len(stmt.Args)-1] != int64(50) {
		t.Fatalf("expected limit bound as last arg, got %v", stmt.Args)
	}
}
