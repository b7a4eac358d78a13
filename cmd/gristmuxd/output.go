package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/wire/stream"
)

// writeTableResult renders a plain (non-streaming) QueryResult as an
// aligned table. Grounded on writeTable (cmd/cyq/output.go),
// generalized from a driver.Result record cursor to an already-materialized
// columnar TableColumnValues.
func writeTableResult(w io.Writer, result model.QueryResult) (int64, error) {
	colIDs := sortedColumnIDs(result.TableData.Columns)
	return writeTableRows(w, colIDs, result.TableData.Columns)
}

func writeTableRows(w io.Writer, colIDs []string, cols model.ColumnValues) (int64, error) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()

	if len(colIDs) > 0 {
		_, _ = fmt.Fprintln(tw, strings.Join(colIDs, "\t"))
	}

	rows := int64(cols.RowCount())
	for i := 0; i < int(rows); i++ {
		line := make([]string, 0, len(colIDs))
		for _, col := range colIDs {
			line = append(line, stringifyValue(cols[col][i]))
		}
		_, _ = fmt.Fprintln(tw, strings.Join(line, "\t"))
	}
	return rows, nil
}

// sortedColumnIDs puts "id" first, then every other key in map order (Go
// map iteration is unspecified, but acceptable for a debug CLI's table
// format).
func sortedColumnIDs(cols model.ColumnValues) []string {
	ids := make([]string, 0, len(cols))
	ids = append(ids, "id")
	for k := range cols {
		if k == "id" {
			continue
		}
		ids = append(ids, k)
	}
	return ids
}

func writeJSONResult(w io.Writer, result model.QueryResult) (int64, error) {
	colIDs := sortedColumnIDs(result.TableData.Columns)
	rows := result.TableData.Columns.RowCount()

	records := make([]map[string]model.CellValue, rows)
	for i := 0; i < rows; i++ {
		rec := make(map[string]model.CellValue, len(colIDs))
		for _, col := range colIDs {
			rec[col] = result.TableData.Columns[col][i]
		}
		records[i] = rec
	}

	b, err := json.Marshal(records)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return 0, err
	}
	return int64(rows), nil
}

func writeJSONLinesResult(w io.Writer, result model.QueryResult) (int64, error) {
	colIDs := sortedColumnIDs(result.TableData.Columns)
	rows := result.TableData.Columns.RowCount()

	enc := json.NewEncoder(w)
	for i := 0; i < rows; i++ {
		rec := make(map[string]model.CellValue, len(colIDs))
		for _, col := range colIDs {
			rec[col] = result.TableData.Columns[col][i]
		}
		if err := enc.Encode(rec); err != nil {
			return int64(i), err
		}
	}
	return int64(rows), nil
}

// writeStreamingResult drains it, rendering each arriving RowChunk against
// value.ColIDs as it is produced rather than waiting for the whole result.
func writeStreamingResult(w io.Writer, format string, value model.QueryResultValue, it *stream.Iterator[model.RowChunk]) (int64, error) {
	switch format {
	case "table":
		return writeStreamingTable(w, value.ColIDs, it)
	case "json":
		return writeStreamingJSONArray(w, value.ColIDs, it)
	case "jsonl":
		return writeStreamingJSONLines(w, value.ColIDs, it)
	default:
		return 0, usageErrorf(2, "Unknown --format %q (expected table|json|jsonl)", format)
	}
}

func writeStreamingTable(w io.Writer, colIDs []string, it *stream.Iterator[model.RowChunk]) (int64, error) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()
	if len(colIDs) > 0 {
		_, _ = fmt.Fprintln(tw, strings.Join(colIDs, "\t"))
	}

	var rows int64
	for {
		res := it.Next()
		if res.Done {
			return rows, res.Err
		}
		n := res.Chunk.Len()
		for i := 0; i < n; i++ {
			line := make([]string, len(colIDs))
			for c := range colIDs {
				line[c] = stringifyValue(res.Chunk.Columns[c][i])
			}
			_, _ = fmt.Fprintln(tw, strings.Join(line, "\t"))
		}
		rows += int64(n)
	}
}

func writeStreamingJSONLines(w io.Writer, colIDs []string, it *stream.Iterator[model.RowChunk]) (int64, error) {
	enc := json.NewEncoder(w)
	var rows int64
	for {
		res := it.Next()
		if res.Done {
			return rows, res.Err
		}
		n := res.Chunk.Len()
		for i := 0; i < n; i++ {
			rec := make(map[string]model.CellValue, len(colIDs))
			for c, col := range colIDs {
				rec[col] = res.Chunk.Columns[c][i]
			}
			if err := enc.Encode(rec); err != nil {
				return rows, err
			}
			rows++
		}
	}
}

func writeStreamingJSONArray(w io.Writer, colIDs []string, it *stream.Iterator[model.RowChunk]) (int64, error) {
	var rows int64
	first := true
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, err
	}

	for {
		res := it.Next()
		if res.Done {
			if _, err := io.WriteString(w, "]\n"); err != nil {
				return rows, err
			}
			return rows, res.Err
		}
		n := res.Chunk.Len()
		for i := 0; i < n; i++ {
			if !first {
				if _, err := io.WriteString(w, ","); err != nil {
					return rows, err
				}
			}
			first = false

			rec := make(map[string]model.CellValue, len(colIDs))
			for c, col := range colIDs {
				rec[col] = res.Chunk.Columns[c][i]
			}
			b, err := json.Marshal(rec)
			if err != nil {
				return rows, err
			}
			if _, err := w.Write(b); err != nil {
				return rows, err
			}
			rows++
		}
	}
}

func stringifyValue(v interface{}) string {
	if v == nil {
		return "null"
	}
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(v)
		if err == nil {
			return string(b)
		}
		return fmt.Sprint(v)
	}
}
