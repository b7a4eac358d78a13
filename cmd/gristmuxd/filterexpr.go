package main

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/gristlabs/gristmux/src/model"
)

// filterLexer tokenizes the diagnostic CLI's debug filter grammar:
// "Age >= 20 AND Name = \"Bob\"". Grounded on the parser
// (src/parser/grammar.go, src/parser/parser.go): a participle.SimpleRule
// lexer plus a small recursive-descent grammar, narrowed from the full
// Cypher clause set to one boolean expression of comparisons.
var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Number", Pattern: `-?\d+(\.\d+)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Operators", Pattern: `>=|<=|!=|==|=|>|<`},
	{Name: "Punct", Pattern: `[()]`},
	{Name: "whitespace", Pattern: `\s+`},
})

type filterExprAST struct {
	Left  *andExprAST   `@@`
	Right []*andExprAST `("OR" @@)*`
}

type andExprAST struct {
	Left  *comparisonAST   `@@`
	Right []*comparisonAST `("AND" @@)*`
}

type comparisonAST struct {
	Ident string      `@Ident`
	Op    string      `@Operators`
	Value *literalAST `@@`
}

type literalAST struct {
	Str *string  `  @String`
	Num *float64 `| @Number`
}

func newFilterParser() (*participle.Parser[filterExprAST], error) {
	parser, err := participle.Build[filterExprAST](
		participle.Lexer(filterLexer),
		participle.Unquote("String"),
		participle.CaseInsensitive("AND", "OR"),
	)
	if err != nil {
		return nil, fmt.Errorf("building filter grammar: %w", err)
	}
	return parser, nil
}

// parseFilterExpr parses expr and compiles it into the engine's recursive
// FilterExpr tree. An empty expr is not valid here; callers should skip
// parsing entirely when no --filter flag was given.
func parseFilterExpr(expr string) (model.FilterExpr, error) {
	parser, err := newFilterParser()
	if err != nil {
		return model.FilterExpr{}, err
	}

	ast, err := parser.ParseString("", expr)
	if err != nil {
		return model.FilterExpr{}, usageErrorf(2, "invalid --filter expression: %v", err)
	}
	return orExprToFilter(ast), nil
}

func orExprToFilter(ast *filterExprAST) model.FilterExpr {
	terms := make([]model.FilterExpr, 0, len(ast.Right)+1)
	terms = append(terms, andExprToFilter(ast.Left))
	for _, r := range ast.Right {
		terms = append(terms, andExprToFilter(r))
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return model.Or(terms...)
}

func andExprToFilter(ast *andExprAST) model.FilterExpr {
	terms := make([]model.FilterExpr, 0, len(ast.Right)+1)
	terms = append(terms, comparisonToFilter(ast.Left))
	for _, r := range ast.Right {
		terms = append(terms, comparisonToFilter(r))
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return model.And(terms...)
}

func comparisonToFilter(ast *comparisonAST) model.FilterExpr {
	op := operatorToFilterOp(ast.Op)
	lhs := model.Name(ast.Ident)
	rhs := model.Const(literalValue(ast.Value))
	return model.Binary(op, lhs, rhs)
}

func operatorToFilterOp(op string) model.FilterOp {
	switch op {
	case "=", "==":
		return model.OpEq
	case "!=":
		return model.OpNotEq
	case "<":
		return model.OpLt
	case "<=":
		return model.OpLtE
	case ">":
		return model.OpGt
	case ">=":
		return model.OpGtE
	default:
		return model.OpEq
	}
}

func literalValue(lit *literalAST) model.CellValue {
	if lit.Str != nil {
		return *lit.Str
	}
	if lit.Num != nil {
		if *lit.Num == float64(int64(*lit.Num)) {
			return int64(*lit.Num)
		}
		return *lit.Num
	}
	return nil
}
