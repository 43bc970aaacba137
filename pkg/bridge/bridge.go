// Package bridge implements the C5 NS<->S boundary of spec.md §4.5: a
// transport-neutral interface that crosses the safe/non-safe
// partition, plus one reference implementation over loopback UDP.
// Every operation here is non-blocking and best-effort — the safety
// core (pkg/safety, pkg/uam) never waits on a Transport call, per
// spec.md §5's "the state machines never block".
package bridge

import (
	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

// SessionHandle identifies one UAM session's transport binding
// (spec.md §3, "UAM session"). Opaque, like the other handle types in
// pkg/uas.
type SessionHandle uint32

// Transport is the four-operation NS<->S interface of spec.md §4.5.
// Implementations MUST preserve message boundaries (one Send is one
// Receive, never coalesced or split) and MUST NOT reorder datagrams
// within a single session; out-of-order delivery across calls is
// tolerated by the consumer state machine's MNR check, not by this
// interface.
type Transport interface {
	// Initialize is called once per session before first use.
	Initialize(session SessionHandle) error
	// Send is non-blocking, best-effort transfer of an opaque SPDU
	// payload to the peer partition. A transport that cannot send
	// immediately drops the datagram rather than blocking the cycle.
	Send(session SessionHandle, payload []byte) error
	// Receive is non-blocking; it returns a nil slice (never blocks)
	// if nothing is available this call.
	Receive(session SessionHandle) ([]byte, error)
	// Clear releases any transport resources held for session.
	Clear(session SessionHandle) error
}

// ErrNoSession is returned by a Transport when asked to operate on a
// SessionHandle it was never Initialize'd for.
var ErrNoSession = uas.New(uas.KindInvalidParameter, "session not initialized")
