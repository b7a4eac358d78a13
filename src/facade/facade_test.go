package facade

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/gristlabs/gristmux/src/engine/apply"
	"github.com/gristlabs/gristmux/src/engine/query"
	"github.com/gristlabs/gristmux/src/engineconfig"
	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/pool"
	"github.com/gristlabs/gristmux/src/rpc"
	"github.com/gristlabs/gristmux/src/rpc/pipetransport"
	"github.com/gristlabs/gristmux/src/wire/frame"
)

// newTestServerPool builds a Pool over a fresh shared in-memory store, so
// tests can check cross-handle broadcast wiring as well as plain calls.
func newTestServerPool(t *testing.T) *pool.Pool {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { db.Close() })

	applier := apply.NewApplier(apply.DefaultMaxSmallActionRowIDs)
	broadcaster := query.NewBroadcaster()
	factory := func() *query.Engine { return query.NewEngine(db, applier, broadcaster) }
	return pool.New(factory, &engineconfig.PoolConfig{MaxConnections: 4, AcquisitionTimeout: time.Second}, nil, nil, nil)
}

// dial wires a client/server pair over an in-process pipe, returning the
// Client and a func to tear the connection down.
func dial(t *testing.T, p *pool.Pool) (*Client, func()) {
	t.Helper()
	serverEnd, clientEnd := pipetransport.New(0)

	server := NewServer(p, nil, nil)
	serverCore := rpc.NewCore(serverEnd, rpc.WithCallHandler(server.HandleCall))
	require.NoError(t, server.Attach(serverCore, serverEnd.Disconnect()))

	// Core's constructor needs the signal handler up front, but the
	// handler is a method on Client and Client needs its Core to make
	// calls: wire the struct directly instead of going through NewClient.
	client := &Client{codec: frame.DefaultPayloadCodec, listeners: make(map[int64]func(model.ActionSet))}
	client.core = rpc.NewCore(clientEnd, rpc.WithSignalHandler(client.HandleSignal))

	return client, func() {
		serverEnd.Close(nil)
		clientEnd.Close(nil)
	}
}

func TestClientFetchQueryRoundTrip(t *testing.T) {
	p := newTestServerPool(t)
	client, teardown := dial(t, p)
	defer teardown()
	ctx := context.Background()

	_, err := client.ApplyActions(ctx, model.ActionSet{Actions: []model.DocAction{
		{Type: model.ActionAddTable, TableID: "Table1", ColInfos: []model.ColInfo{
			{ColID: "Name", Type: "Text"},
		}},
		{Type: model.ActionBulkAddRecord, TableID: "Table1", RowIDs: []int64{1, 2}, Cols: model.ColumnValues{
			"Name": {"A", "B"},
		}},
	}})
	require.NoError(t, err)

	result, err := client.FetchQuery(ctx, model.Query{TableID: "Table1", Sort: []string{"id"}})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, result.TableData.IDs())
	require.Equal(t, []model.CellValue{"A", "B"}, result.TableData.Columns["Name"])
}

func TestClientFetchQueryStreamingRoundTrip(t *testing.T) {
	p := newTestServerPool(t)
	client, teardown := dial(t, p)
	defer teardown()
	ctx := context.Background()

	_, err := client.ApplyActions(ctx, model.ActionSet{Actions: []model.DocAction{
		{Type: model.ActionAddTable, TableID: "Table1", ColInfos: []model.ColInfo{{ColID: "Name", Type: "Text"}}},
		{Type: model.ActionBulkAddRecord, TableID: "Table1", RowIDs: []int64{1, 2, 3}, Cols: model.ColumnValues{
			"Name": {"A", "B", "C"},
		}},
	}})
	require.NoError(t, err)

	value, it, err := client.FetchQueryStreaming(ctx, model.Query{TableID: "Table1", Sort: []string{"id"}},
		model.StreamingOptions{ChunkRows: 2, TimeoutMs: 5000}, nil)
	require.NoError(t, err)
	require.Equal(t, "Table1", value.TableID)

	var total int
	for {
		res := it.Next()
		if res.Done {
			require.NoError(t, res.Err)
			break
		}
		total += res.Chunk.Len()
	}
	require.Equal(t, 3, total)
}

func TestClientReceivesActionSignals(t *testing.T) {
	p := newTestServerPool(t)
	client, teardown := dial(t, p)
	defer teardown()
	ctx := context.Background()

	received := make(chan model.ActionSet, 1)
	client.OnAction(nil, func(a model.ActionSet) { received <- a })

	_, err := client.ApplyActions(ctx, model.ActionSet{Actions: []model.DocAction{
		{Type: model.ActionAddTable, TableID: "T", ColInfos: []model.ColInfo{{ColID: "X", Type: "Int"}}},
	}})
	require.NoError(t, err)

	select {
	case got := <-received:
		require.Len(t, got.Actions, 1)
	case <-time.After(time.Second):
		t.Fatal("client was not pushed an action signal for its own committed action")
	}
}

func TestUnknownMethodFails(t *testing.T) {
	p := newTestServerPool(t)
	client, teardown := dial(t, p)
	defer teardown()
	ctx := context.Background()

	payload, err := encodeCall(client.codec, "notAMethod", struct{}{})
	require.NoError(t, err)
	_, err = client.core.MakeCall(ctx, rpc.StreamingData{Value: payload}, nil)
	require.Error(t, err)
}
