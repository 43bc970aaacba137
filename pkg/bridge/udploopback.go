package bridge

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/systerel/S2OPC-sub031/pkg/logx"
	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

// udpSession is one session's loopback UDP socket pair.
type udpSession struct {
	conn *net.UDPConn
	peer *net.UDPAddr
}

// UDPLoopback is the one reference Transport implementation spec.md
// §4.5 calls for: "reference implementation over loopback UDP". It
// never blocks the caller past readTimeout/writeTimeout — both calls
// set then clear a deadline on the underlying *net.UDPConn, the same
// SetReadDeadline/SetWriteDeadline-then-reset-to-zero-value idiom the
// teacher module's brokerCxn.readConn/writeConn use around their own
// socket calls.
type UDPLoopback struct {
	logger logx.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration

	mu       sync.Mutex
	sessions map[SessionHandle]*udpSession
}

// UDPOpt configures a UDPLoopback at construction.
type UDPOpt func(*UDPLoopback)

// WithUDPLogger attaches a logger to a UDPLoopback.
func WithUDPLogger(l logx.Logger) UDPOpt {
	return func(u *UDPLoopback) { u.logger = l }
}

// WithUDPTimeouts overrides the default 10ms non-blocking deadline
// used for both Send and Receive.
func WithUDPTimeouts(read, write time.Duration) UDPOpt {
	return func(u *UDPLoopback) { u.readTimeout, u.writeTimeout = read, write }
}

// NewUDPLoopback constructs an unbound UDPLoopback transport. Sessions
// are bound with Initialize.
func NewUDPLoopback(opts ...UDPOpt) *UDPLoopback {
	u := &UDPLoopback{
		logger:       logx.Nop{},
		readTimeout:  10 * time.Millisecond,
		writeTimeout: 10 * time.Millisecond,
		sessions:     make(map[SessionHandle]*udpSession),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// BindLoopback opens a UDP socket on localAddr for session and
// records peerAddr as the destination for subsequent Sends. Two
// sessions pointed at each other's local address form a loopback
// pair; this is the setup step spec.md's Initialize doesn't itself
// parameterize (the peer address is out-of-band configuration, like
// the rest of peer discovery — spec.md §1 Non-goals).
func (u *UDPLoopback) BindLoopback(session SessionHandle, localAddr, peerAddr string) error {
	lAddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return uas.Wrap(uas.KindInvalidParameter, err, "resolve local addr %q", localAddr)
	}
	pAddr, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return uas.Wrap(uas.KindInvalidParameter, err, "resolve peer addr %q", peerAddr)
	}
	conn, err := net.ListenUDP("udp", lAddr)
	if err != nil {
		return uas.Wrap(uas.KindInvalidState, err, "listen on %q", localAddr)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.sessions[session] = &udpSession{conn: conn, peer: pAddr}
	return nil
}

// Initialize satisfies Transport. A session bound only via Initialize
// (no BindLoopback call) is a no-op transport that always reports "no
// data" — useful for tests that only exercise the cache/codec/safety
// layers and never actually send bytes.
func (u *UDPLoopback) Initialize(session SessionHandle) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.sessions[session]; ok {
		return nil
	}
	u.sessions[session] = nil
	return nil
}

// LocalAddr reports the ephemeral address a session bound via
// BindLoopback is actually listening on, so a second session can be
// pointed at it without the caller pre-choosing a port.
func (u *UDPLoopback) LocalAddr(session SessionHandle) (*net.UDPAddr, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s, ok := u.sessions[session]
	if !ok || s == nil || s.conn == nil {
		return nil, false
	}
	return s.conn.LocalAddr().(*net.UDPAddr), true
}

func (u *UDPLoopback) session(session SessionHandle) (*udpSession, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s, ok := u.sessions[session]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Send writes payload to the session's bound peer, non-blocking past
// writeTimeout. A session with no socket (Initialize-only) silently
// drops the send, matching "non-blocking, best-effort" (spec.md §4.5).
func (u *UDPLoopback) Send(session SessionHandle, payload []byte) error {
	s, err := u.session(session)
	if err != nil {
		return err
	}
	if s == nil || s.conn == nil {
		return nil
	}

	s.conn.SetWriteDeadline(time.Now().Add(u.writeTimeout))
	defer s.conn.SetWriteDeadline(time.Time{})

	if _, err := s.conn.WriteToUDP(payload, s.peer); err != nil {
		u.logger.Log(logx.LevelWarn, "udp send failed", "session", session, "err", err)
		return nil
	}
	return nil
}

// Receive reads at most one datagram, non-blocking past readTimeout.
// It returns (nil, nil) — not an error — when nothing arrived in
// time, since a timed-out read is the expected steady state of a
// non-blocking transport, not a failure.
func (u *UDPLoopback) Receive(session SessionHandle) ([]byte, error) {
	s, err := u.session(session)
	if err != nil {
		return nil, err
	}
	if s == nil || s.conn == nil {
		return nil, nil
	}

	s.conn.SetReadDeadline(time.Now().Add(u.readTimeout))
	defer s.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 65536)
	n, _, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, nil
	}
	return buf[:n], nil
}

// Clear closes session's socket, if any, and forgets the session.
func (u *UDPLoopback) Clear(session SessionHandle) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	s, ok := u.sessions[session]
	if !ok {
		return nil
	}
	delete(u.sessions, session)
	if s != nil && s.conn != nil {
		if err := s.conn.Close(); err != nil {
			return uas.Wrap(uas.KindInvalidState, err, "close session %v", session)
		}
	}
	return nil
}

var _ Transport = (*UDPLoopback)(nil)

func (s SessionHandle) String() string { return fmt.Sprintf("session#%d", uint32(s)) }
