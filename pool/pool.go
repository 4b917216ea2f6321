// Package pool implements the per-endpoint connection pool: one
// physical link per endpoint.Key.PoolKey(), borrowed and returned under
// a FIFO-fair lock so concurrent requests against the same link queue in
// submission order rather than racing, with inter-transaction pacing and
// an age-based reconnect policy.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/simpleiot/modbusmgr/endpoint"
	"github.com/simpleiot/modbusmgr/mberrors"
)

// Pool owns zero or more live Connections, one per distinct
// endpoint.Key.PoolKey(), and the FIFO-fair lock guarding each.
type Pool struct {
	mu      sync.Mutex
	slots   map[endpoint.Key]*slot
	configs map[endpoint.Key]endpoint.PoolConfig
	log     zerolog.Logger
}

type slot struct {
	lock         *fifoMutex
	conn         *Connection
	lastTxFinish time.Time

	wmMu      sync.Mutex
	watermark time.Time // non-zero: disconnect on next Return if conn predates this
}

// New creates an empty Pool. log is used for connect/reconnect/borrow
// trace events.
func New(log zerolog.Logger) *Pool {
	return &Pool{
		slots:   make(map[endpoint.Key]*slot),
		configs: make(map[endpoint.Key]endpoint.PoolConfig),
		log:     log,
	}
}

// SetEndpointPoolConfiguration installs cfg for every key sharing
// key.PoolKey(), taking effect on the next borrow (it never disturbs a
// connection already on loan).
func (p *Pool) SetEndpointPoolConfiguration(key endpoint.Key, cfg endpoint.PoolConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[key.PoolKey()] = cfg
}

// GetEndpointPoolConfiguration returns the configuration in effect for
// key, falling back to endpoint.DefaultPoolConfig for its transport if
// none was set explicitly.
func (p *Pool) GetEndpointPoolConfiguration(key endpoint.Key) endpoint.PoolConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg, ok := p.configs[key.PoolKey()]; ok {
		return cfg
	}
	return endpoint.DefaultPoolConfig(key.Transport)
}

func (p *Pool) slotFor(key endpoint.Key) *slot {
	poolKey := key.PoolKey()
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[poolKey]
	if !ok {
		s = &slot{lock: newFifoMutex()}
		p.slots[poolKey] = s
	}
	return s
}

// Lease is a borrowed Connection plus the pacing/disconnect bookkeeping
// Return needs; callers must always call Return exactly once.
type Lease struct {
	Conn *Connection
	pool *Pool
	slot *slot
	key  endpoint.Key
}

// Borrow acquires the FIFO-fair slot for key, applies
// MinTransactionInterval pacing, reconnects if the existing connection
// has aged past ReconnectAfterAge or does not yet exist, and returns a
// Lease the caller must Return.
func (p *Pool) Borrow(ctx context.Context, key endpoint.Key) (*Lease, error) {
	s := p.slotFor(key)

	if !s.lock.Lock(ctx.Done()) {
		return nil, ctx.Err()
	}

	cfg := p.GetEndpointPoolConfiguration(key)

	if wait := cfg.MinTransactionInterval - time.Since(s.lastTxFinish); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.lock.Unlock()
			return nil, ctx.Err()
		}
	}

	if s.conn != nil && cfg.ReconnectAfterAge > 0 && s.conn.Age() > cfg.ReconnectAfterAge {
		p.log.Debug().Str("endpoint", key.String()).Msg("connection exceeded max age, reconnecting")
		_ = s.conn.Close()
		s.conn = nil
	}

	if s.conn == nil {
		conn, err := dial(key, cfg, p.log)
		if err != nil {
			s.lock.Unlock()
			return nil, err
		}
		s.conn = conn
	}

	return &Lease{Conn: s.conn, pool: p, slot: s, key: key}, nil
}

// Return releases the Lease. If txErr indicates the connection itself is
// unhealthy (per DisconnectOnError) the connection is closed and torn
// down so the next Borrow dials fresh. A slave exception never triggers
// this: the slave replied, so the link itself is fine.
func (l *Lease) Return(txErr error) {
	l.slot.lastTxFinish = time.Now()

	cfg := l.pool.GetEndpointPoolConfiguration(l.key)
	if txErr != nil && cfg.DisconnectOnError && mberrors.DisconnectsConnection(txErr) {
		l.pool.log.Debug().Str("endpoint", l.key.String()).Err(txErr).Msg("disconnecting endpoint after error")
		_ = l.slot.conn.Close()
		l.slot.conn = nil
	}

	if l.slot.conn != nil {
		l.slot.wmMu.Lock()
		wm := l.slot.watermark
		l.slot.wmMu.Unlock()
		if !wm.IsZero() && !l.slot.conn.Opened.After(wm) {
			l.pool.log.Debug().Str("endpoint", l.key.String()).Msg("disconnecting endpoint: connection predates disconnect watermark")
			_ = l.slot.conn.Close()
			l.slot.conn = nil
		}
	}

	l.slot.lock.Unlock()
}

// Invalidate forces the connection behind key to be closed and redialed
// on the next Borrow, regardless of error policy — used when a caller
// has independent evidence the link is bad (e.g. a transaction id
// mismatch that suggests stale buffered data).
func (p *Pool) Invalidate(key endpoint.Key) {
	s := p.slotFor(key)
	s.lock.Lock(nil) // nil done channel: blocks until acquired, never cancels
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.lock.Unlock()
}

// DisconnectOnReturn marks key's slot so that the next Lease.Return on a
// connection opened at or before watermark closes and drops it, instead
// of tearing the connection down immediately — a transaction may be
// in flight right now on that very connection, and yanking it out from
// under the executor would fail a request that would otherwise have
// succeeded. Used when a poll is unregistered: the connection it was
// using should go away, but only once it is safely idle.
func (p *Pool) DisconnectOnReturn(key endpoint.Key, watermark time.Time) {
	s := p.slotFor(key)
	s.wmMu.Lock()
	s.watermark = watermark
	s.wmMu.Unlock()
}

// ClearIdle closes key's connection if its slot is idle right now,
// without waiting for an in-flight transaction — TryLock simply skips
// the slot if it is currently borrowed, since DisconnectOnReturn already
// guarantees the connection is torn down once that transaction returns.
func (p *Pool) ClearIdle(key endpoint.Key) {
	s := p.slotFor(key)
	if !s.lock.TryLock() {
		return
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.lock.Unlock()
}

// Clear closes every open connection and drops all slots, returning the
// pool to its initial empty state. Existing EndpointPoolConfiguration
// entries are preserved.
func (p *Pool) Clear() {
	p.mu.Lock()
	slots := p.slots
	p.slots = make(map[endpoint.Key]*slot)
	p.mu.Unlock()

	for _, s := range slots {
		s.lock.Lock(nil)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	}
}
