// Package bridgetest provides an in-memory bridge.Transport plus a
// fault-injecting decorator, used to reproduce spec.md §8's S1-S6
// end-to-end scenarios deterministically without a real socket.
package bridgetest

import (
	"sync"

	"github.com/systerel/S2OPC-sub031/pkg/bridge"
)

// Memory is a bridge.Transport backed by per-session in-memory
// mailboxes instead of a socket — the same "preserves message
// boundaries, no reorder within a session" contract as
// bridge.UDPLoopback, but synchronous and socket-free for tests.
// Wire(a, b) connects two sessions so that Send on one becomes
// available to Receive on the other.
type Memory struct {
	mu    sync.Mutex
	peers map[bridge.SessionHandle]bridge.SessionHandle
	boxes map[bridge.SessionHandle][][]byte
}

// NewMemory constructs an empty Memory transport.
func NewMemory() *Memory {
	return &Memory{
		peers: make(map[bridge.SessionHandle]bridge.SessionHandle),
		boxes: make(map[bridge.SessionHandle][][]byte),
	}
}

// Wire connects a and b as each other's peer, both directions.
func (m *Memory) Wire(a, b bridge.SessionHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[a] = b
	m.peers[b] = a
}

func (m *Memory) Initialize(session bridge.SessionHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.boxes[session]; !ok {
		m.boxes[session] = nil
	}
	return nil
}

func (m *Memory) Send(session bridge.SessionHandle, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	peer, ok := m.peers[session]
	if !ok {
		return nil
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.boxes[peer] = append(m.boxes[peer], cp)
	return nil
}

func (m *Memory) Receive(session bridge.SessionHandle) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	box := m.boxes[session]
	if len(box) == 0 {
		return nil, nil
	}
	next := box[0]
	m.boxes[session] = box[1:]
	return next, nil
}

func (m *Memory) Clear(session bridge.SessionHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.boxes, session)
	delete(m.peers, session)
	return nil
}

// DeliverTo pushes payload directly into target's mailbox, bypassing
// the normal peer wiring — used by Faulty's FaultMisroute to land a
// datagram on a session other than the sender's configured peer
// (spec.md §8 S5: "provider A's response goes to consumer B").
func (m *Memory) DeliverTo(target bridge.SessionHandle, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.boxes[target] = append(m.boxes[target], cp)
	return nil
}

var _ bridge.Transport = (*Memory)(nil)

// Fault is one deterministic transport fault applied to one datagram a
// Faulty decorator Sends.
type Fault uint8

const (
	// FaultNone passes the datagram through unmodified.
	FaultNone Fault = iota
	// FaultCorrupt inverts every bit of the payload's first byte (spec.md §8 S2:
	// "corrupt one byte of the transported response in flight").
	FaultCorrupt
	// FaultDrop silently discards the datagram (spec.md §8 S3).
	FaultDrop
	// FaultMisroute delivers the datagram into the mailbox of the session
	// set with SetMisrouteTarget instead of the sender's peer, when the
	// wrapped transport has a DeliverTo method; otherwise it is sent
	// normally (spec.md §8 S5).
	FaultMisroute
)

// Faulty decorates a bridge.Transport, injecting a scripted sequence
// of Faults on Send so tests can reproduce spec.md §8's S1-S6
// scenarios byte-for-byte. Faults are consumed one per Send call;
// once the script is exhausted, every further Send passes through.
type Faulty struct {
	inner bridge.Transport

	mu       sync.Mutex
	script   []Fault
	replay   [][]byte
	misroute bridge.SessionHandle
}

// NewFaulty wraps inner, whose Sends will apply script in order.
func NewFaulty(inner bridge.Transport, script ...Fault) *Faulty {
	return &Faulty{inner: inner, script: append([]Fault(nil), script...)}
}

// SetMisrouteTarget sets the session a FaultMisroute entry redirects
// to — used for spec.md §8 S5 ("provider A's response goes to
// consumer B").
func (f *Faulty) SetMisrouteTarget(session bridge.SessionHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.misroute = session
}

// QueueReplay schedules payload to be delivered verbatim on the next
// Send call regardless of the script, reproducing spec.md §8 S4
// ("replay the response from cycle 3 during cycle 6").
func (f *Faulty) QueueReplay(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.replay = append(f.replay, cp)
}

func (f *Faulty) Initialize(session bridge.SessionHandle) error {
	return f.inner.Initialize(session)
}

func (f *Faulty) Send(session bridge.SessionHandle, payload []byte) error {
	f.mu.Lock()
	var replay []byte
	if len(f.replay) > 0 {
		replay, f.replay = f.replay[0], f.replay[1:]
	}
	var fault Fault
	if len(f.script) > 0 {
		fault, f.script = f.script[0], f.script[1:]
	}
	misrouteTo := f.misroute
	f.mu.Unlock()

	if replay != nil {
		return f.inner.Send(session, replay)
	}

	switch fault {
	case FaultDrop:
		return nil
	case FaultCorrupt:
		cp := make([]byte, len(payload))
		copy(cp, payload)
		if len(cp) > 0 {
			cp[0] ^= 0xFF
		}
		return f.inner.Send(session, cp)
	case FaultMisroute:
		if d, ok := f.inner.(interface {
			DeliverTo(target bridge.SessionHandle, payload []byte) error
		}); ok {
			return d.DeliverTo(misrouteTo, payload)
		}
		return f.inner.Send(session, payload)
	default:
		return f.inner.Send(session, payload)
	}
}

func (f *Faulty) Receive(session bridge.SessionHandle) ([]byte, error) {
	return f.inner.Receive(session)
}

func (f *Faulty) Clear(session bridge.SessionHandle) error {
	return f.inner.Clear(session)
}

var _ bridge.Transport = (*Faulty)(nil)
