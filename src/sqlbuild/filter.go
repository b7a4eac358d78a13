package sqlbuild

import (
	"strings"

	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/model"
)

var binaryOpSymbols = map[model.FilterOp]string{
	model.OpAdd:   "+",
	model.OpSub:   "-",
	model.OpMult:  "*",
	model.OpDiv:   "/",
	model.OpMod:   "%",
	model.OpEq:    "=",
	model.OpNotEq: "<>",
	model.OpLt:    "<",
	model.OpLtE:   "<=",
	model.OpGt:    ">",
	model.OpGtE:   ">=",
	model.OpIs:    "IS",
	model.OpIsNot: "IS NOT",
}

// compileFilter compiles a model.FilterExpr tree into a SQL boolean
// expression, mirroring the dispatch-by-node-type shape of
// cypher.Expression.BuildCypher (src/cypher/expression.go) retargeted
// from Cypher operators to SQL ones.
func (b *builder) compileFilter(expr model.FilterExpr, prefix bool) (string, error) {
	if err := expr.ValidateArity(); err != nil {
		return "", err
	}

	switch expr.Op {
	case model.OpConst:
		return b.bind(expr.Value), nil
	case model.OpName:
		return b.column(expr.ColID, prefix)
	case model.OpComment:
		return b.compileFilter(expr.Args[0], prefix)
	case model.OpNot:
		inner, err := b.compileFilter(expr.Args[0], prefix)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case model.OpAnd:
		return b.compileVariadic(expr.Args, " AND ", prefix)
	case model.OpOr:
		return b.compileVariadic(expr.Args, " OR ", prefix)
	case model.OpList:
		return b.compileList(expr.Args, prefix)
	case model.OpIn, model.OpNotIn:
		return b.compileMembership(expr, prefix)
	default:
		sym, ok := binaryOpSymbols[expr.Op]
		if !ok {
			return "", enginerr.NewBuilderError("unsupported filter op: " + string(expr.Op))
		}
		lhs, err := b.compileFilter(expr.Args[0], prefix)
		if err != nil {
			return "", err
		}
		rhs, err := b.compileFilter(expr.Args[1], prefix)
		if err != nil {
			return "", err
		}
		return lhs + " " + sym + " " + rhs, nil
	}
}

func (b *builder) compileVariadic(args []model.FilterExpr, joiner string, prefix bool) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		part, err := b.compileFilter(a, prefix)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + part + ")"
	}
	return strings.Join(parts, joiner), nil
}

func (b *builder) compileList(args []model.FilterExpr, prefix bool) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		part, err := b.compileFilter(a, prefix)
		if err != nil {
			return "", err
		}
		parts[i] = part
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

func (b *builder) compileMembership(expr model.FilterExpr, prefix bool) (string, error) {
	lhs, err := b.compileFilter(expr.Args[0], prefix)
	if err != nil {
		return "", err
	}

	var rhs string
	if expr.Args[1].Op == model.OpList {
		rhs, err = b.compileList(expr.Args[1].Args, prefix)
	} else {
		var inner string
		inner, err = b.compileFilter(expr.Args[1], prefix)
		rhs = "(" + inner + ")"
	}
	if err != nil {
		return "", err
	}

	word := "IN"
	if expr.Op == model.OpNotIn {
		word = "NOT IN"
	}
	return lhs + " " + word + " " + rhs, nil
}
