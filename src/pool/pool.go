// Package pool implements the Connection Pool: a bounded
// stack of store handles, acquired and released around each RPC call.
// Grounded on src/driver/driver.go's netpool.New(dialFn)
// wiring (a stack-of-handles-with-factory) and engineconfig.PoolConfig,
// but reimplemented over database/sql rather than imported from
// yudhasubki/netpool: that package pools net.Conns, while this pool hands
// out *query.Engine store handles backed by a single shared *sql.DB, see
// DESIGN.md for why netpool itself isn't a fit.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gristlabs/gristmux/src/engineconfig"
	"github.com/gristlabs/gristmux/src/enginelog"
	"github.com/gristlabs/gristmux/src/engineobs"
	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/engine/query"
)

// Handle is one store handle on loan from the Pool: a query.Engine plus
// the identity and bookkeeping the pool needs to take it back.
type Handle struct {
	*query.Engine

	id         string
	pool       *Pool
	createdAt  time.Time
	lastUsedAt time.Time
	released   bool
}

// ID is the handle's pool-assigned identifier, for logging/metrics.
func (h *Handle) ID() string { return h.id }

// Release returns the handle to its owning Pool. Safe to call exactly
// once per Acquire; a second call is a no-op.
func (h *Handle) Release() {
	h.pool.release(h)
}

// Pool hands out a bounded number of store handles (with the
// Open Question #4 resolution: an upper bound rather than an unbounded
// stack).
type Pool struct {
	mu      sync.Mutex
	idle    []*Handle
	waiters []chan *Handle
	total   int

	factory            func() *query.Engine
	maxConnections     int
	acquisitionTimeout time.Duration

	logger enginelog.Logger
	obs    *engineobs.Instruments
	obsCfg *engineobs.Config

	closed bool
}

// New creates a Pool that manufactures handles via factory, bounded by
// cfg.MaxConnections. factory is called at most MaxConnections times over
// the Pool's lifetime (handles are reused, never discarded, once created).
func New(factory func() *query.Engine, cfg *engineconfig.PoolConfig, logger enginelog.Logger, obs *engineobs.Instruments, obsCfg *engineobs.Config) *Pool {
	if cfg == nil {
		cfg = &engineconfig.PoolConfig{MaxConnections: 100}
	}
	if logger == nil {
		logger = &enginelog.NoOpLogger{}
	}
	return &Pool{
		factory:            factory,
		maxConnections:     cfg.MaxConnections,
		acquisitionTimeout: cfg.AcquisitionTimeout,
		logger:             logger,
		obs:                obs,
		obsCfg:             obsCfg,
	}
}

// Acquire claims a handle, creating one if the pool hasn't reached
// maxConnections, reusing an idle one, or waiting up to
// AcquisitionTimeout for one to free up. It fails fast with
// enginerr.ErrPoolExhausted once the timeout (zero meaning "don't wait at
// all") elapses.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, enginerr.NewAbortedError("pool closed")
	}

	if n := len(p.idle); n > 0 {
		h := p.idle[n-1]
		p.idle = p.idle[:n-1]
		h.released = false
		p.mu.Unlock()
		h.lastUsedAt = time.Now()
		p.recordEvent("acquire")
		return h, nil
	}

	if p.total < p.maxConnections {
		p.total++
		p.mu.Unlock()
		h := &Handle{
			Engine:    p.factory(),
			id:        uuid.NewString(),
			pool:      p,
			createdAt: time.Now(),
		}
		p.logger.Debug("created store handle", "handle_id", h.id, "total", p.total)
		p.recordEvent("create")
		p.recordEvent("acquire")
		return h, nil
	}

	if p.acquisitionTimeout <= 0 {
		p.mu.Unlock()
		return nil, enginerr.ErrPoolExhausted
	}

	waiter := make(chan *Handle, 1)
	p.waiters = append(p.waiters, waiter)
	p.mu.Unlock()

	timer := time.NewTimer(p.acquisitionTimeout)
	defer timer.Stop()

	select {
	case h := <-waiter:
		return h, nil
	case <-timer.C:
		p.removeWaiter(waiter)
		return nil, enginerr.ErrPoolExhausted
	case <-ctx.Done():
		p.removeWaiter(waiter)
		return nil, ctx.Err()
	}
}

func (p *Pool) removeWaiter(waiter chan *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == waiter {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// release returns h to the pool: handed directly to a waiting Acquire if
// one is queued, otherwise pushed onto the idle stack.
func (p *Pool) release(h *Handle) {
	p.mu.Lock()
	if h.released {
		p.mu.Unlock()
		return
	}
	h.released = true
	if len(p.waiters) > 0 {
		waiter := p.waiters[0]
		p.waiters = p.waiters[1:]
		h.released = false
		p.mu.Unlock()
		p.recordEvent("release")
		p.recordEvent("acquire")
		waiter <- h
		return
	}
	p.idle = append(p.idle, h)
	p.mu.Unlock()
	p.recordEvent("release")
}

// WithHandle acquires a handle, runs fn, and releases it, regardless of
// whether fn returns an error: the synchronous acquire/release pattern
// every façade method uses.
func (p *Pool) WithHandle(ctx context.Context, fn func(*Handle) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h)
}

// Stats reports the pool's current size for diagnostics.
type Stats struct {
	Total int
	Idle  int
	InUse int
}

// Stats snapshots the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Total: p.total, Idle: len(p.idle), InUse: p.total - len(p.idle)}
}

// Close marks the pool closed; outstanding handles may still be released
// but no further Acquire calls will succeed.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Pool) recordEvent(event string) {
	if p.obs != nil {
		p.obs.RecordPoolEvent(p.obsCfg, event)
	}
}
