// Package sqlbuild compiles a structured model.Query into parameterized
// SQL. It is the most directly grounded-on package in the
// tree: its shape mirrors src/cypher's Query/Expression/
// clause AST, retargeted from Cypher's `$`-style named parameters and
// MATCH/WHERE/RETURN clauses to SQL's positional `?` binds and a single
// SELECT statement.
package sqlbuild

import (
	"regexp"

	"github.com/gristlabs/gristmux/src/enginerr"
)

var identifierPattern = regexp.MustCompile(`^[\w.]+$`)

// quoteIdent validates and quotes a bare identifier. Matches
// habit (src/cypher/node.go helpers) of rejecting malformed identifiers
// before any SQL text is emitted, rather than escaping them.
func quoteIdent(ident string) (string, error) {
	if !identifierPattern.MatchString(ident) {
		return "", enginerr.NewBuilderError("invalid identifier: " + ident)
	}
	return `"` + ident + `"`, nil
}

// QuoteIdent exports quoteIdent for the Action Applier, which builds its
// own (non-query-shaped) DDL/DML statements but still needs the same
// identifier validation discipline.
func QuoteIdent(ident string) (string, error) {
	return quoteIdent(ident)
}
