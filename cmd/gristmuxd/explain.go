package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/sqlbuild"
)

// explainCommand compiles a query description to SQL without touching a
// store, for debugging the builder and the --filter
// grammar in isolation.
func explainCommand(args []string) error {
	fs := flag.NewFlagSet("explain", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	tableFlag := fs.String("table", "", "Table to query (required)")
	filterFlag := fs.String("filter", "", "Filter expression, e.g. 'Age >= 20 AND Name = \"Bob\"'")
	sortFlag := fs.String("sort", "", "Comma-separated sort columns, \"-col\" for descending")
	limitFlag := fs.Int("limit", 0, "Limit the number of rows (0 = unbounded)")
	includePreviousFlag := fs.Bool("include-previous", false, "Project the previous row's id in the current order")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return &exitError{code: 0}
		}
		return usageErrorf(2, "%v", err)
	}

	if *tableFlag == "" {
		return usageErrorf(2, "Missing --table")
	}

	q := model.Query{TableID: *tableFlag, Limit: *limitFlag, IncludePrevious: *includePreviousFlag}
	if *sortFlag != "" {
		q.Sort = strings.Split(*sortFlag, ",")
	}
	if *filterFlag != "" {
		expr, err := parseFilterExpr(*filterFlag)
		if err != nil {
			return err
		}
		q.Filters = expr
	}

	stmt, err := sqlbuild.CompileSelect(q)
	if err != nil {
		return err
	}

	fmt.Println(stmt.SQL)
	fmt.Printf("columns: %s\n", strings.Join(stmt.ColIDs, ", "))
	if len(stmt.Args) > 0 {
		fmt.Println("args:")
		for i, a := range stmt.Args {
			fmt.Printf("  $%d = %v\n", i+1, a)
		}
	}
	return nil
}
