package query

import (
	"context"
	"sync"
	"time"

	"github.com/gristlabs/gristmux/src/engine/apply"
	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/rpc"
	"github.com/gristlabs/gristmux/src/sqlbuild"
	"github.com/gristlabs/gristmux/src/wire/stream"
)

// FetchQueryStreaming runs query lazily, yielding rows in chunks of at
// most options.ChunkRows over the returned Iterator. callerCancel, if
// non-nil, is combined with a timeout signal derived from
// options.TimeoutMs; whichever fires first aborts the
// stream. Exactly one streaming read may be open on a given Engine at a
// time; a second concurrent call fails with enginerr.ErrStoreBusy
// at a time.
//
// Grounded on streamingConnectionWrapper.PullNext
// (src/driver/streaming_connection.go): a lazy pull loop feeding a
// bounded buffer, and on src/driver/retry.go's ctx-aware cancellation
// check before each unit of work.
func (e *Engine) FetchQueryStreaming(ctx context.Context, q model.Query, options model.StreamingOptions, callerCancel *rpc.Signal) (model.QueryResultValue, *stream.Iterator[model.RowChunk], error) {
	if !e.tryAcquireStream() {
		return model.QueryResultValue{}, nil, enginerr.ErrStoreBusy
	}

	chunkRows := options.ChunkRows
	if chunkRows <= 0 {
		chunkRows = 1
	}

	stmt, err := sqlbuild.CompileSelect(q)
	if err != nil {
		e.releaseStream()
		return model.QueryResultValue{}, nil, err
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		e.releaseStream()
		return model.QueryResultValue{}, nil, err
	}

	queryCtx := ctx
	var stopTimeout context.CancelFunc
	if options.TimeoutMs > 0 {
		queryCtx, stopTimeout = context.WithTimeout(ctx, time.Duration(options.TimeoutMs)*time.Millisecond)
	}

	fail := func(err error) (model.QueryResultValue, *stream.Iterator[model.RowChunk], error) {
		if stopTimeout != nil {
			stopTimeout()
		}
		conn.ExecContext(context.Background(), "ROLLBACK")
		conn.Close()
		e.releaseStream()
		return model.QueryResultValue{}, nil, err
	}

	if _, err := conn.ExecContext(queryCtx, "BEGIN"); err != nil {
		return fail(err)
	}

	actionNum, err := apply.ReadActionNum(queryCtx, conn)
	if err != nil {
		return fail(err)
	}

	rows, err := conn.QueryContext(queryCtx, stmt.SQL, stmt.Args...)
	if err != nil {
		return fail(err)
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return fail(err)
	}

	timeoutSignal := rpc.NewSignal()
	if queryCtx != ctx {
		go func() {
			<-queryCtx.Done()
			if queryCtx.Err() != nil {
				timeoutSignal.Fire(enginerr.NewAbortedError(queryCtx.Err().Error()))
			}
		}()
	}
	cancel := rpc.Combine(callerCancel, timeoutSignal)

	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			rows.Close()
			conn.ExecContext(context.Background(), "ROLLBACK")
			conn.Close()
			if stopTimeout != nil {
				stopTimeout()
			}
			e.releaseStream()
			// Bounds the lifetime of Combine's per-source watcher goroutine
			// for timeoutSignal when the stream ends before any timeout fires.
			timeoutSignal.Fire(nil)
		})
	}

	it := stream.New[model.RowChunk](cleanup)
	go pumpRows(rows, cols, chunkRows, cancel, it)

	return model.QueryResultValue{
		TableID:   q.TableID,
		ActionNum: actionNum,
		ColIDs:    cols,
	}, it, nil
}

// pumpRows is the sole producer for it: it reads rows in batches of up to
// chunkRows, supplying each full batch, until the cursor is exhausted, an
// error occurs, or cancel fires.
func pumpRows(rows rowsScanner, cols []string, chunkRows int, cancel *rpc.Signal, it *stream.Iterator[model.RowChunk]) {
	batch := make([][]model.CellValue, 0, chunkRows)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		columns := make([][]model.CellValue, len(cols))
		for c := range cols {
			vals := make([]model.CellValue, len(batch))
			for r, row := range batch {
				vals[r] = row[c]
			}
			columns[c] = vals
		}
		it.SupplyChunk(model.RowChunk{Columns: columns})
		batch = batch[:0]
	}

	for rows.Next() {
		if cancel.Fired() {
			it.SupplyError(cancel.Reason())
			return
		}
		row, err := scanRow(rows, len(cols))
		if err != nil {
			it.SupplyError(err)
			return
		}
		batch = append(batch, row)
		if len(batch) >= chunkRows {
			flush()
		}
	}
	if err := rows.Err(); err != nil {
		it.SupplyError(err)
		return
	}
	flush()
	it.FinishOk()
}
