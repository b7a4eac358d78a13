package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/gristlabs/gristmux/src/engine/apply"
	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/rpc"
)

func newTestEngine(t *testing.T) (*Engine, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	a := apply.NewApplier(apply.DefaultMaxSmallActionRowIDs)
	e := NewEngine(db, a, NewBroadcaster())
	return e, db
}

func seedTable(t *testing.T, e *Engine, ctx context.Context) {
	t.Helper()
	_, err := e.ApplyActions(ctx, model.ActionSet{Actions: []model.DocAction{
		{Type: model.ActionAddTable, TableID: "Table1", ColInfos: []model.ColInfo{
			{ColID: "Name", Type: "Text"},
			{ColID: "Age", Type: "Int"},
		}},
		{Type: model.ActionBulkAddRecord, TableID: "Table1", RowIDs: []int64{1, 2, 3}, Cols: model.ColumnValues{
			"Name": {"A", "B", "C"},
			"Age":  {int64(10), int64(20), int64(30)},
		}},
	}})
	require.NoError(t, err)
}

func TestFetchQueryReturnsColumnarTableData(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	seedTable(t, e, ctx)

	result, err := e.FetchQuery(ctx, model.Query{TableID: "Table1", Sort: []string{"id"}})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.ActionNum)
	require.Equal(t, []int64{1, 2, 3}, result.TableData.IDs())
	require.Equal(t, []model.CellValue{"A", "B", "C"}, result.TableData.Columns["Name"])
}

func TestFetchQueryFilterAndSort(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	seedTable(t, e, ctx)

	q := model.Query{
		TableID: "Table1",
		Filters: model.FilterExpr{Op: model.OpGtE, Args: []model.FilterExpr{
			{Op: model.OpName, ColID: "Age"},
			{Op: model.OpConst, Value: int64(20)},
		}},
		Sort: []string{"-Age"},
	}
	result, err := e.FetchQuery(ctx, q)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2}, result.TableData.IDs())
}

func TestApplyActionsNotifiesListeners(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	var got model.ActionSet
	received := make(chan struct{})
	e.AddActionListener(nil, func(a model.ActionSet) {
		got = a
		close(received)
	})

	_, err := e.ApplyActions(ctx, model.ActionSet{Actions: []model.DocAction{
		{Type: model.ActionAddTable, TableID: "T", ColInfos: []model.ColInfo{{ColID: "X", Type: "Int"}}},
	}})
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("listener was not notified")
	}
	require.Len(t, got.Actions, 1)
}

func TestAddActionListenerDisposesOnDisconnect(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	disconnect := rpc.NewSignal()
	calls := 0
	e.AddActionListener(disconnect, func(model.ActionSet) { calls++ })
	disconnect.Fire(nil)
	time.Sleep(20 * time.Millisecond) // let the deregistration goroutine run

	_, err := e.ApplyActions(ctx, model.ActionSet{Actions: []model.DocAction{
		{Type: model.ActionAddTable, TableID: "T", ColInfos: []model.ColInfo{{ColID: "X", Type: "Int"}}},
	}})
	require.NoError(t, err)
	require.Equal(t, 0, calls)
}

func TestBroadcasterNotifiesAcrossEngines(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	a := apply.NewApplier(apply.DefaultMaxSmallActionRowIDs)
	b := NewBroadcaster()
	e1 := NewEngine(db, a, b)
	e2 := NewEngine(db, a, b)

	received := make(chan model.ActionSet, 1)
	e1.AddActionListener(nil, func(set model.ActionSet) { received <- set })

	_, err = e2.ApplyActions(ctx, model.ActionSet{Actions: []model.DocAction{
		{Type: model.ActionAddTable, TableID: "T", ColInfos: []model.ColInfo{{ColID: "X", Type: "Int"}}},
	}})
	require.NoError(t, err)

	select {
	case got := <-received:
		require.Len(t, got.Actions, 1)
	case <-time.After(time.Second):
		t.Fatal("listener registered on one handle was not notified of an action applied via another")
	}
}

func TestFetchQueryStreamingYieldsChunksAndFinishes(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	seedTable(t, e, ctx)

	value, it, err := e.FetchQueryStreaming(ctx, model.Query{TableID: "Table1", Sort: []string{"id"}},
		model.StreamingOptions{TimeoutMs: 5000, ChunkRows: 2}, nil)
	require.NoError(t, err)
	require.Equal(t, "Table1", value.TableID)

	var totalRows int
	for {
		res := it.Next()
		if res.Done {
			require.NoError(t, res.Err)
			break
		}
		require.LessOrEqual(t, res.Chunk.Len(), 2)
		totalRows += res.Chunk.Len()
	}
	require.Equal(t, 3, totalRows)
}

func TestFetchQueryStreamingBusyGuard(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	seedTable(t, e, ctx)

	_, it, err := e.FetchQueryStreaming(ctx, model.Query{TableID: "Table1"}, model.StreamingOptions{ChunkRows: 1}, nil)
	require.NoError(t, err)

	_, _, err = e.FetchQueryStreaming(ctx, model.Query{TableID: "Table1"}, model.StreamingOptions{ChunkRows: 1}, nil)
	require.ErrorIs(t, err, enginerr.ErrStoreBusy)

	// Draining the first stream to completion releases the busy slot.
	for {
		if it.Next().Done {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)

	_, it2, err := e.FetchQueryStreaming(ctx, model.Query{TableID: "Table1"}, model.StreamingOptions{ChunkRows: 1}, nil)
	require.NoError(t, err)
	it2.Close()
}

func TestFetchQueryStreamingCancelViaCallerSignal(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	// Seed enough rows that the cancel signal has a chance to land before
	// the cursor exhausts on its own.
	rowIDs := make([]int64, 500)
	names := make([]model.CellValue, 500)
	for i := range rowIDs {
		rowIDs[i] = int64(i + 1)
		names[i] = "x"
	}
	_, err := e.ApplyActions(ctx, model.ActionSet{Actions: []model.DocAction{
		{Type: model.ActionAddTable, TableID: "Big", ColInfos: []model.ColInfo{{ColID: "Name", Type: "Text"}}},
		{Type: model.ActionBulkAddRecord, TableID: "Big", RowIDs: rowIDs, Cols: model.ColumnValues{"Name": names}},
	}})
	require.NoError(t, err)

	// Fire the cancel signal before the stream even opens, so the producer
	// observes it on its very first iteration regardless of goroutine
	// scheduling, deterministic rather than racing a live cancellation.
	cancel := rpc.NewSignal()
	cancel.Fire(enginerr.NewAbortedError("client went away"))
	_, it, err := e.FetchQueryStreaming(ctx, model.Query{TableID: "Big", Sort: []string{"id"}},
		model.StreamingOptions{ChunkRows: 1}, cancel)
	require.NoError(t, err)

	var sawErr bool
	for {
		res := it.Next()
		if res.Done {
			sawErr = res.Err != nil
			break
		}
	}
	require.True(t, sawErr)
}
