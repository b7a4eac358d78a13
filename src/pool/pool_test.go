package pool

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
	"github.com/gristlabs/gristmux/src/enginerr"
)

func newTestFactory(t *testing.T) func() *query.Engine {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	applier := apply.NewApplier(apply.DefaultMaxSmallActionRowIDs)
	broadcaster := query.NewBroadcaster()
	return func() *query.Engine { return query.NewEngine(db, applier, broadcaster) }
}

func TestAcquireCreatesUpToMax(t *testing.T) {
	p := New(newTestFactory(t), &engineconfig.PoolConfig{MaxConnections: 2}, nil, nil, nil)
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	require.NoError(t, err)
	h2, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NotEqual(t, h1.ID(), h2.ID())
	require.Equal(t, Stats{Total: 2, Idle: 0, InUse: 2}, p.Stats())

	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, enginerr.ErrPoolExhausted)

	h1.Release()
	require.Equal(t, Stats{Total: 2, Idle: 1, InUse: 1}, p.Stats())
}

func TestReleaseReusesHandle(t *testing.T) {
	p := New(newTestFactory(t), &engineconfig.PoolConfig{MaxConnections: 1}, nil, nil, nil)
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	require.NoError(t, err)
	h1.Release()

	h2, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, h1.ID(), h2.ID())
	require.Equal(t, Stats{Total: 1, Idle: 0, InUse: 1}, p.Stats())
}

func TestAcquireWaitsWithinTimeout(t *testing.T) {
	p := New(newTestFactory(t), &engineconfig.PoolConfig{
		MaxConnections:     1,
		AcquisitionTimeout: 200 * time.Millisecond,
	}, nil, nil, nil)
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		h1.Release()
	}()

	h2, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, h1.ID(), h2.ID())
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	p := New(newTestFactory(t), &engineconfig.PoolConfig{
		MaxConnections:     1,
		AcquisitionTimeout: 30 * time.Millisecond,
	}, nil, nil, nil)
	ctx := context.Background()

	_, err := p.Acquire(ctx)
	require.NoError(t, err)

	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, enginerr.ErrPoolExhausted)
}

func TestWithHandleReleasesOnError(t *testing.T) {
	p := New(newTestFactory(t), &engineconfig.PoolConfig{MaxConnections: 1}, nil, nil, nil)
	ctx := context.Background()

	err := p.WithHandle(ctx, func(h *Handle) error {
		return enginerr.NewHandlerError("boom")
	})
	require.Error(t, err)
	require.Equal(t, Stats{Total: 1, Idle: 1, InUse: 0}, p.Stats())
}
