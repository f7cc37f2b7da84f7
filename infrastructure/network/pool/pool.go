package pool

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nordicnode/swarm/application"
	"github.com/nordicnode/swarm/infrastructure/network/peerconn"
	"github.com/nordicnode/swarm/settings"
)

// Dialer opens one fresh transport connection to the peer this pool
// serves. Supplied by the caller so the pool stays agnostic to address
// resolution and TLS/proxy concerns.
type Dialer func(ctx context.Context) (net.Conn, error)

type entry struct {
	pc *peerconn.PeerConnection
}

// Pool is a bounded, self-healing set of PeerConnections to one peer.
// Connections are created lazily, retried with backoff on failure, swept
// for liveness on every acquisition, and reused by callers that TryLock
// them rather than torn down between uses.
//
// mu is the admission mutex: it guards the connection list and the
// capacity bookkeeping. It is never held across a dial or a handshake, so
// one slow connection attempt can't stall the whole pool. Each
// PeerConnection additionally carries its own per-connection lock, giving
// the pool a two-tier locking discipline.
type Pool struct {
	mu       chanMutex
	conns    []*entry
	pending  int
	capacity int
	disposed bool

	dial         Dialer
	handshake    application.Handshake
	localPeerID  string
	deviceName   string
	connSettings settings.ConnectionSettings
	logger       application.Logger
}

// chanMutex is a plain mutual-exclusion lock; named distinctly from the
// per-connection lease so the two are never confused when read together.
type chanMutex struct{ ch chan struct{} }

func newChanMutex() chanMutex {
	m := chanMutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

func (m chanMutex) Lock()   { <-m.ch }
func (m chanMutex) Unlock() { m.ch <- struct{}{} }

// New builds a Pool bounded to capacity connections, dialing with dial and
// authenticating each new connection with handshake as localPeerID.
func New(
	capacity int,
	dial Dialer,
	handshake application.Handshake,
	localPeerID, deviceName string,
	connSettings settings.ConnectionSettings,
	logger application.Logger,
) *Pool {
	return &Pool{
		mu:           newChanMutex(),
		capacity:     capacity,
		dial:         dial,
		handshake:    handshake,
		localPeerID:  localPeerID,
		deviceName:   deviceName,
		connSettings: connSettings,
		logger:       logger,
	}
}

// Acquire returns a leased, healthy connection: an existing idle one if
// one can be locked without blocking, a newly dialed one if the pool has
// room, or it waits, polling at settings.PoolPollInterval, until either
// becomes possible or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (application.ConnectionLease, error) {
	for {
		if lease, ok := p.tryAcquireExisting(); ok {
			return lease, nil
		}

		lease, created, err := p.tryCreate(ctx)
		if err != nil {
			return nil, err
		}
		if created {
			return lease, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(settings.PoolPollInterval):
		}
	}
}

// GetPrimary returns the pool's first connection, creating one if none
// exists yet. Unlike Acquire it blocks on that single connection's lock
// rather than falling back to a new one, since callers that want "the"
// primary connection need a stable identity across calls.
func (p *Pool) GetPrimary(ctx context.Context) (application.ConnectionLease, error) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil, ErrPoolDisposed
	}
	p.sweepUnhealthyLocked()
	var candidate *peerconn.PeerConnection
	if len(p.conns) > 0 {
		candidate = p.conns[0].pc
	}
	p.mu.Unlock()

	if candidate != nil {
		if err := candidate.Lock(ctx); err != nil {
			return nil, err
		}
		return &lease{pc: candidate}, nil
	}

	pc, err := p.dialAndHandshake(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		_ = pc.Close()
		return nil, ErrPoolDisposed
	}
	p.conns = append(p.conns, &entry{pc: pc})
	p.mu.Unlock()

	if !pc.TryLock() {
		if err := pc.Lock(ctx); err != nil {
			return nil, err
		}
	}
	return &lease{pc: pc}, nil
}

// Dispose closes every connection the pool holds concurrently, returning
// the first error encountered. Idempotent: calling it more than once is a
// no-op after the first.
func (p *Pool) Dispose() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.disposed = true
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()

	var g errgroup.Group
	for _, e := range conns {
		e := e
		g.Go(e.pc.Close)
	}
	return g.Wait()
}

// Stats is a point-in-time snapshot of pool occupancy: how many
// connections currently exist, how many of those are leased out, and how
// many are being dialed. It takes the admission mutex only long enough to
// count, and probes each per-connection lock with a non-blocking TryLock
// (released at once when it succeeds), so it never waits on a lease holder.
type Stats struct {
	Live   int
	InUse  int
	Pending int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	inUse := 0
	for _, e := range p.conns {
		if !e.pc.TryLock() {
			inUse++
			continue
		}
		e.pc.Unlock()
	}
	return Stats{Live: len(p.conns), InUse: inUse, Pending: p.pending}
}

func (p *Pool) tryAcquireExisting() (application.ConnectionLease, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return nil, false
	}
	p.sweepUnhealthyLocked()
	for _, e := range p.conns {
		if e.pc.TryLock() {
			return &lease{pc: e.pc}, true
		}
	}
	return nil, false
}

func (p *Pool) sweepUnhealthyLocked() {
	kept := p.conns[:0]
	for _, e := range p.conns {
		if e.pc.IsHealthy() {
			kept = append(kept, e)
		} else {
			_ = e.pc.Close()
		}
	}
	p.conns = kept
}

// tryCreate reserves a capacity slot, dials and hands off that slot to a
// new entry. The slot is reserved and released without holding mu across
// the dial, so a slow or hanging dial never blocks other Acquire callers
// from using the pool's existing connections.
func (p *Pool) tryCreate(ctx context.Context) (application.ConnectionLease, bool, error) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil, false, ErrPoolDisposed
	}
	if len(p.conns)+p.pending >= p.capacity {
		p.mu.Unlock()
		return nil, false, nil
	}
	p.pending++
	p.mu.Unlock()

	pc, err := p.dialAndHandshake(ctx)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.mu.Unlock()
		return nil, false, err
	}
	if p.disposed {
		p.mu.Unlock()
		_ = pc.Close()
		return nil, false, ErrPoolDisposed
	}
	pc.TryLock()
	p.conns = append(p.conns, &entry{pc: pc})
	p.mu.Unlock()

	return &lease{pc: pc}, true, nil
}

// dialAndHandshake opens one transport connection and authenticates it,
// retrying with exponential backoff up to connSettings.MaxRetryAttempts
// before giving up.
func (p *Pool) dialAndHandshake(ctx context.Context) (*peerconn.PeerConnection, error) {
	backoff := p.connSettings.RetryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= p.connSettings.MaxRetryAttempts; attempt++ {
		pc, err := p.attemptOnce(ctx)
		if err == nil {
			return pc, nil
		}
		lastErr = err
		if p.logger != nil {
			p.logger.Printf("pool: connection attempt %d/%d failed: %v", attempt, p.connSettings.MaxRetryAttempts, err)
		}

		if attempt == p.connSettings.MaxRetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("pool: exceeded maximum connection attempts (%d): %w", p.connSettings.MaxRetryAttempts, lastErr)
}

// attemptOnce dials one connection and runs the handshake on it, under the
// same linked timeout the dial used, so a hung peer can't stall a
// handshake past CONNECTION_TIMEOUT_MS and cancelling ctx aborts it
// immediately. Only a dial failure is reported as an error worth
// retrying: a handshake failure is logged and the connection is still
// handed back, left on the plain overlay, matching the contract that a
// rejected or failed handshake doesn't by itself make a connection
// unusable.
//
// The handshake's wall-clock round trip is used as the connection's
// initial RTT measurement (spec.md §4.4's "measure RTT, best-effort,
// ignore errors"): it is the first full request/response exchange this
// connection performs, so it is as good an estimate as a dedicated probe
// without needing one.
func (p *Pool) attemptOnce(ctx context.Context) (*peerconn.PeerConnection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.connSettings.ConnectionTimeout)
	defer cancel()

	conn, err := p.dial(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("pool: dial: %w", err)
	}

	pc := peerconn.New(conn, false)

	handshakeStart := time.Now()
	result, err := p.handshake.ClientSideHandshake(dialCtx, conn, p.localPeerID, p.deviceName)
	pc.SetRTTMillis(clampRTTMillis(time.Since(handshakeStart)))

	if err != nil {
		if p.logger != nil {
			p.logger.Printf("pool: handshake failed, connection stays unencrypted: %v", err)
		}
		return pc, nil
	}

	if err := pc.EnableEncryption(result.SessionKey); err != nil && p.logger != nil {
		p.logger.Printf("pool: enable encryption failed, connection stays unencrypted: %v", err)
	}
	return pc, nil
}

// clampRTTMillis converts d to the int32 millisecond count PeerConnection
// stores, clamping rather than overflowing on an implausibly long
// duration (e.g. a handshake that raced a cancellation).
func clampRTTMillis(d time.Duration) int32 {
	ms := d.Milliseconds()
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	if ms < 0 {
		return 0
	}
	return int32(ms)
}

type lease struct {
	pc *peerconn.PeerConnection
}

func (l *lease) Conn() application.PeerConnection { return l.pc }

func (l *lease) Close() error {
	l.pc.Unlock()
	return nil
}

var (
	_ application.ConnectionPool  = (*Pool)(nil)
	_ application.ConnectionLease = (*lease)(nil)
)
