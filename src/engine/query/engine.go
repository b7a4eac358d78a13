// Package query implements the Query Engine: fetchQuery,
// fetchQueryStreaming, applyActions, and addActionListener, layered over
// the SQL Builder and Action Applier against a single *sql.DB. Grounded on
// streamingConnectionWrapper (src/driver/streaming_connection.go)
// and its context-aware Retry/RetryVoid (src/driver/retry.go), generalized
// from a Bolt PULL loop to a database/sql row cursor.
package query

import (
	"context"
	"database/sql"
	"sync"

	"github.com/gristlabs/gristmux/src/engine/apply"
	"github.com/gristlabs/gristmux/src/enginelog"
	"github.com/gristlabs/gristmux/src/model"
	"github.com/gristlabs/gristmux/src/rpc"
)

// Broadcaster fans out every committed ActionSet to every registered
// listener, independent of which store handle committed it. One
// Broadcaster is shared by every Engine a Pool hands out for the same
// underlying store, since a connection listening via one handle must
// still hear about actions committed through another.
type Broadcaster struct {
	mu             sync.Mutex
	listeners      map[int64]func(model.ActionSet)
	nextListenerID int64
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[int64]func(model.ActionSet))}
}

// Add registers callback to receive every subsequent broadcast. It
// deregisters itself once disconnect fires.
func (b *Broadcaster) Add(disconnect *rpc.Signal, callback func(model.ActionSet)) {
	b.mu.Lock()
	id := b.nextListenerID
	b.nextListenerID++
	b.listeners[id] = callback
	b.mu.Unlock()

	if disconnect == nil {
		return
	}
	go func() {
		<-disconnect.Done()
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}()
}

func (b *Broadcaster) notify(actionSet model.ActionSet) {
	b.mu.Lock()
	callbacks := make([]func(model.ActionSet), 0, len(b.listeners))
	for _, cb := range b.listeners {
		callbacks = append(callbacks, cb)
	}
	b.mu.Unlock()
	for _, cb := range callbacks {
		cb(actionSet)
	}
}

// Engine is one store handle: a database connection paired with an
// Applier for tracking the monotonic action number and a Broadcaster
// shared across every handle of the same store. A single Engine must not
// be used concurrently by more than one streaming read at a time
// (enforced by the busy-guard in FetchQueryStreaming); the owning
// connection pool is responsible for not handing the same Engine to two
// callers simultaneously.
type Engine struct {
	db          *sql.DB
	applier     *apply.Applier
	broadcaster *Broadcaster
	logger      enginelog.Logger

	mu         sync.Mutex
	streamOpen bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the engine's logger (default: no-op).
func WithLogger(logger enginelog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an Engine over db, sharing applier's action-number
// counter and broadcaster's listener set with every other handle of the
// same store.
func NewEngine(db *sql.DB, applier *apply.Applier, broadcaster *Broadcaster, opts ...Option) *Engine {
	e := &Engine{
		db:          db,
		applier:     applier,
		broadcaster: broadcaster,
		logger:      &enginelog.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyActions delegates actionSet to the Action Applier inside an
// immediate transaction, then notifies every registered action listener
// with the (possibly stripped) broadcast-ready ActionSet on commit
//
func (e *Engine) ApplyActions(ctx context.Context, actionSet model.ActionSet) (model.ApplyResultSet, error) {
	result, broadcast, err := e.applier.Apply(ctx, e.db, actionSet)
	if err != nil {
		return model.ApplyResultSet{}, err
	}
	e.broadcaster.notify(broadcast)
	return result, nil
}

// AddActionListener registers callback on this Engine's Broadcaster; see
// Broadcaster.Add.
func (e *Engine) AddActionListener(disconnect *rpc.Signal, callback func(model.ActionSet)) {
	e.broadcaster.Add(disconnect, callback)
}

// tryAcquireStream claims the single streaming-read slot, or reports
// false (a handle serves at most one streaming
// read at a time). Grounded on pooledConn's single-owner discipline
// (src/driver/pooled_conn.go).
func (e *Engine) tryAcquireStream() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.streamOpen {
		return false
	}
	e.streamOpen = true
	return true
}

func (e *Engine) releaseStream() {
	e.mu.Lock()
	e.streamOpen = false
	e.mu.Unlock()
}
