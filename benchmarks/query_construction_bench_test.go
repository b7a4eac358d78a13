package benchmarks

import (
	"testing"

	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/sqlbuild"
)

func BenchmarkSimpleQueryConstruction(b *testing.B) {
	q := model.Query{TableID: "Table1", Sort: []string{"id"}}
	for i := 0; i < b.N; i++ {
		if _, err := sqlbuild.CompileSelect(q); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkComplexQueryConstruction(b *testing.B) {
	q := model.Query{
		TableID: "Table1",
		Filters: model.And(
			model.Binary(model.OpEq, model.Name("name"), model.Const("foo")),
			model.Binary(model.OpLt, model.Name("since"), model.Const(int64(2020))),
		),
		Sort:            []string{"-since"},
		Limit:           10,
		IncludePrevious: true,
	}
	for i := 0; i < b.N; i++ {
		if _, err := sqlbuild.CompileSelect(q); err != nil {
			b.Fatal(err)
		}
	}
}
