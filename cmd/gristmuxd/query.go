package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/pool"
)

// queryCommand runs a structured query directly against an embedded
// store, bypassing the RPC/facade layer entirely, mirroring how the
// "cyq run" command talks straight to a driver.Driver rather
// than through a separate network server process (cmd/cyq/run.go).
func queryCommand(args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	flags := addStoreFlags(fs)

	tableFlag := fs.String("table", "", "Table to query (required)")
	filterFlag := fs.String("filter", "", "Filter expression, e.g. 'Age >= 20 AND Name = \"Bob\"'")
	sortFlag := fs.String("sort", "", "Comma-separated sort columns, \"-col\" for descending")
	limitFlag := fs.Int("limit", 0, "Limit the number of rows (0 = unbounded)")
	formatFlag := fs.String("format", "table", "Output format: table|json|jsonl")
	streamFlag := fs.Bool("stream", false, "Use fetchQueryStreaming instead of fetchQuery")
	chunkRowsFlag := fs.Int("chunk-rows", 100, "Rows per chunk when --stream is set")
	timeoutFlag := fs.Duration("timeout", 0, "Optional context timeout (e.g. 10s). 0 disables.")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return &exitError{code: 0}
		}
		return usageErrorf(2, "%v", err)
	}

	if *tableFlag == "" {
		return usageErrorf(2, "Missing --table")
	}

	q := model.Query{TableID: *tableFlag, Limit: *limitFlag}
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

	ctx := context.Background()
	if *timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeoutFlag)
		defer cancel()
	}

	p, closeDB, err := openPool(*flags.db, *flags.verbose)
	if err != nil {
		return err
	}
	defer closeDB()

	start := time.Now()
	var rows int64
	if *streamFlag {
		rows, err = runQueryStreaming(ctx, p, q, *chunkRowsFlag, *formatFlag)
	} else {
		rows, err = runQueryPlain(ctx, p, q, *formatFlag)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "rows=%d time=%s\n", rows, time.Since(start).Truncate(time.Microsecond))
	return nil
}

func runQueryPlain(ctx context.Context, p *pool.Pool, q model.Query, format string) (int64, error) {
	var result model.QueryResult
	err := p.WithHandle(ctx, func(h *pool.Handle) error {
		r, err := h.FetchQuery(ctx, q)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return 0, err
	}

	switch format {
	case "table":
		return writeTableResult(os.Stdout, result)
	case "json":
		return writeJSONResult(os.Stdout, result)
	case "jsonl":
		return writeJSONLinesResult(os.Stdout, result)
	default:
		return 0, usageErrorf(2, "Unknown --format %q (expected table|json|jsonl)", format)
	}
}

func runQueryStreaming(ctx context.Context, p *pool.Pool, q model.Query, chunkRows int, format string) (int64, error) {
	h, err := p.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer h.Release()

	value, it, err := h.FetchQueryStreaming(ctx, q, model.StreamingOptions{ChunkRows: chunkRows}, nil)
	if err != nil {
		return 0, err
	}
	return writeStreamingResult(os.Stdout, format, value, it)
}
