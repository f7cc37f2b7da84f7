package peerconn

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/nordicnode/swarm/application"
	"github.com/nordicnode/swarm/infrastructure/network/overlay"
	"github.com/nordicnode/swarm/settings"
)

// PeerConnection wraps one connected TCP stream to a peer. It starts on
// the Plain overlay and may be upgraded, once, to the Encrypted overlay
// after a successful handshake.
type PeerConnection struct {
	conn     net.Conn
	isServer bool

	overlay   atomic.Pointer[overlayState]
	leaseCh   chan struct{}
	lastActiv atomic.Int64 // unix nanoseconds
	rttMs     atomic.Int32
}

type overlayState struct {
	ov        overlay.Overlay
	encrypted bool
}

// New wraps conn, configuring TCP keep-alive/no-delay/timeouts for
// sustained peer traffic, then returns a plaintext connection ready for a
// handshake. isServer selects the encrypted overlay's directional
// sub-keys once EnableEncryption is called.
func New(conn net.Conn, isServer bool) *PeerConnection {
	configureSocket(conn)

	pc := &PeerConnection{
		conn:     conn,
		isServer: isServer,
		leaseCh:  make(chan struct{}, 1),
	}
	pc.leaseCh <- struct{}{}
	pc.overlay.Store(&overlayState{ov: overlay.NewPlain(conn)})
	pc.rttMs.Store(-1)
	pc.touch()
	return pc
}

// configureSocket applies spec.md §4.2's socket options at creation:
// keep-alive on, Nagle off, send/recv timeouts equal to the connection
// timeout. Go's net.Conn has no per-call socket timeout option, so the
// deadline set here is renewed on every Read/Write (renewIODeadline)
// rather than cleared, emulating a timeout that applies to each
// operation instead of a single absolute point in time.
func configureSocket(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tcp.SetNoDelay(true)
	_ = tcp.SetKeepAlive(true)
	_ = tcp.SetKeepAlivePeriod(settings.ConnectionTimeout)
	renewIODeadline(conn)
}

func renewIODeadline(conn net.Conn) {
	deadline := time.Now().Add(settings.ConnectionTimeout)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)
}

func (p *PeerConnection) touch() {
	p.lastActiv.Store(time.Now().UnixNano())
}

func (p *PeerConnection) Read(buf []byte) (int, error) {
	renewIODeadline(p.conn)
	n, err := p.overlay.Load().ov.Read(buf)
	if err == nil {
		p.touch()
	}
	return n, err
}

func (p *PeerConnection) Write(buf []byte) (int, error) {
	renewIODeadline(p.conn)
	n, err := p.overlay.Load().ov.Write(buf)
	if err == nil {
		p.touch()
	}
	return n, err
}

// EnableEncryption upgrades the connection to the authenticated-encryption
// overlay. Irreversible: once IsEncrypted reports true, subsequent calls
// are no-ops.
func (p *PeerConnection) EnableEncryption(sessionKey []byte) error {
	if p.IsEncrypted() {
		return nil
	}
	enc, err := overlay.NewEncrypted(p.conn, sessionKey, p.isServer)
	if err != nil {
		return err
	}
	p.overlay.Store(&overlayState{ov: enc, encrypted: true})
	return nil
}

func (p *PeerConnection) IsEncrypted() bool {
	return p.overlay.Load().encrypted
}

func (p *PeerConnection) IsHealthy() bool {
	return probeHealthy(p.conn)
}

// OptimalBufferSize maps the last measured RTT to a buffer size class:
// links faster than FastLANRTTMillis get the largest buffer, links slower than
// SlowLinkRTTMillis get the smallest, everything else gets the default.
func (p *PeerConnection) OptimalBufferSize() int {
	return bufferSizeForClass(p.bufferSizeClass())
}

func (p *PeerConnection) bufferSizeClass() application.BufferSizeClass {
	rtt := p.rttMs.Load()
	switch {
	case rtt < 0:
		return application.BufferDefault
	case rtt < settings.FastLANRTTMillis:
		return application.BufferMax
	case rtt > settings.SlowLinkRTTMillis:
		return application.BufferMin
	default:
		return application.BufferDefault
	}
}

func bufferSizeForClass(class application.BufferSizeClass) int {
	switch class {
	case application.BufferMax:
		return settings.MaxBufferSize
	case application.BufferMin:
		return settings.MinBufferSize
	default:
		return settings.DefaultBufferSize
	}
}

func (p *PeerConnection) TryLock() bool {
	select {
	case <-p.leaseCh:
		return true
	default:
		return false
	}
}

func (p *PeerConnection) Lock(ctx context.Context) error {
	select {
	case <-p.leaseCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PeerConnection) Unlock() {
	select {
	case p.leaseCh <- struct{}{}:
	default:
	}
}

func (p *PeerConnection) LastActivity() time.Time {
	return time.Unix(0, p.lastActiv.Load())
}

func (p *PeerConnection) RTTMillis() int32 {
	return p.rttMs.Load()
}

func (p *PeerConnection) SetRTTMillis(ms int32) {
	p.rttMs.Store(ms)
}

func (p *PeerConnection) Close() error {
	return p.conn.Close()
}

var _ application.PeerConnection = (*PeerConnection)(nil)
