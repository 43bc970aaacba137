package spdu

import (
	"sync"

	"github.com/systerel/S2OPC-sub031/pkg/cache"
	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

// requestSlot pairs a registered RequestSPDU numeric id with the
// cache NodeId it is stored under.
type requestSlot struct {
	node uas.NodeId
}

// responseSlot additionally records the configured (N_s, N_ns)
// lengths a ResponseSPDU for this id must carry (spec.md §3 invariant
// 2).
type responseSlot struct {
	node uas.NodeId
	ns   int
	nns  int
}

// Registry is the C2 codec: a process-singleton-by-construction
// registry of RequestSPDU/ResponseSPDU slots, each backed by an
// ExtensionObject-typed entry in a *cache.Cache (spec.md §4.2: "Codec
// instances are process-singletons identified by the NodeId numeric
// identifier"). It never holds a decoded SPDU itself across calls —
// see SPEC_FULL.md §3's "cache/codec split" — every operation
// encodes/decodes through to the cache under the cache's own lock.
type Registry struct {
	cache *cache.Cache

	mu        sync.Mutex
	requests  map[uint32]*requestSlot
	responses map[uint32]*responseSlot
}

// NewRegistry constructs a Registry bound to c. The Registry does not
// own the Cache's lifecycle; Clear only removes this Registry's own
// bookkeeping, not the cache entries themselves.
func NewRegistry(c *cache.Cache) *Registry {
	return &Registry{
		cache:     c,
		requests:  make(map[uint32]*requestSlot),
		responses: make(map[uint32]*responseSlot),
	}
}

const (
	// RequestTypeId and ResponseTypeId are the extension-object type
	// tags distinguishing request from response on the wire (spec.md
	// §6, "agreed between peers out-of-band").
	RequestTypeId  uint32 = 1
	ResponseTypeId uint32 = 2
)

// CreateRequest registers a RequestSPDU slot for numericId, seeding
// the backing cache entry with an empty RequestSPDU. Re-creating an
// existing id fails with not-supported (spec.md §4.2).
func (r *Registry) CreateRequest(numericId uint32, node uas.NodeId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.requests[numericId]; exists {
		return uas.New(uas.KindNotSupported, "request id %d already registered", numericId)
	}
	r.requests[numericId] = &requestSlot{node: node}
	body := RequestSPDU{}.Encode()
	return r.cache.Set(node, uas.ExtensionObjectValue(RequestTypeId, body))
}

// CreateResponse registers a ResponseSPDU slot for numericId with the
// given fixed safe/non-safe data lengths, seeding the backing cache
// entry with a zeroed ResponseSPDU of those lengths.
func (r *Registry) CreateResponse(numericId uint32, node uas.NodeId, ns, nns int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.responses[numericId]; exists {
		return uas.New(uas.KindNotSupported, "response id %d already registered", numericId)
	}
	r.responses[numericId] = &responseSlot{node: node, ns: ns, nns: nns}
	body := ResponseSPDU{SafeData: make([]byte, ns), NonSafeData: make([]byte, nns)}.Encode()
	return r.cache.Set(node, uas.ExtensionObjectValue(ResponseTypeId, body))
}

// HasRequest reports whether a request slot is already registered for
// numericId, letting two independently-configured instances that
// agree on a numeric id out-of-band (spec.md §6) share one slot: the
// first to register creates it, the second attaches.
func (r *Registry) HasRequest(numericId uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.requests[numericId]
	return ok
}

// HasResponse is HasRequest for the response side.
func (r *Registry) HasResponse(numericId uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.responses[numericId]
	return ok
}

// GetRequest reads the current RequestSPDU for numericId under the
// cache lock.
func (r *Registry) GetRequest(numericId uint32) (RequestSPDU, error) {
	r.mu.Lock()
	slot, ok := r.requests[numericId]
	r.mu.Unlock()
	if !ok {
		return RequestSPDU{}, uas.New(uas.KindInvalidParameter, "request id %d not registered", numericId)
	}

	r.cache.Lock()
	defer r.cache.Unlock()
	v, err := r.cache.GetLocked(slot.node)
	if err != nil {
		return RequestSPDU{}, err
	}
	if v.Kind != uas.ValueExtensionObject {
		return RequestSPDU{}, uas.New(uas.KindLengthError, "node %s does not hold an extension object", slot.node)
	}
	return DecodeRequestSPDU(v.ExtObject.Body)
}

// SetRequest writes req for numericId under the cache lock.
func (r *Registry) SetRequest(numericId uint32, req RequestSPDU) error {
	r.mu.Lock()
	slot, ok := r.requests[numericId]
	r.mu.Unlock()
	if !ok {
		return uas.New(uas.KindInvalidParameter, "request id %d not registered", numericId)
	}

	r.cache.Lock()
	defer r.cache.Unlock()
	return r.cache.SetLocked(slot.node, uas.ExtensionObjectValue(RequestTypeId, req.Encode()))
}

// GetResponse reads the current ResponseSPDU for numericId, failing
// with a length-error if the stored bytestring lengths don't match
// the configured (N_s, N_ns) (spec.md §4.2).
func (r *Registry) GetResponse(numericId uint32) (ResponseSPDU, error) {
	r.mu.Lock()
	slot, ok := r.responses[numericId]
	r.mu.Unlock()
	if !ok {
		return ResponseSPDU{}, uas.New(uas.KindInvalidParameter, "response id %d not registered", numericId)
	}

	r.cache.Lock()
	defer r.cache.Unlock()
	v, err := r.cache.GetLocked(slot.node)
	if err != nil {
		return ResponseSPDU{}, err
	}
	if v.Kind != uas.ValueExtensionObject {
		return ResponseSPDU{}, uas.New(uas.KindLengthError, "node %s does not hold an extension object", slot.node)
	}
	return DecodeResponseSPDU(v.ExtObject.Body, slot.ns, slot.nns)
}

// SetResponse copies resp.SafeData/NonSafeData into freshly-sized
// bytestrings and stores the record. It does not truncate or
// zero-pad: a caller supplying lengths other than the configured
// (N_s, N_ns) gets a length-error from SetResponse itself and nothing
// is stored.
func (r *Registry) SetResponse(numericId uint32, resp ResponseSPDU) error {
	r.mu.Lock()
	slot, ok := r.responses[numericId]
	r.mu.Unlock()
	if !ok {
		return uas.New(uas.KindInvalidParameter, "response id %d not registered", numericId)
	}
	if len(resp.SafeData) != slot.ns || len(resp.NonSafeData) != slot.nns {
		return uas.New(uas.KindLengthError, "response data lengths do not match configured (%d,%d)", slot.ns, slot.nns)
	}

	safe := make([]byte, len(resp.SafeData))
	copy(safe, resp.SafeData)
	nonSafe := make([]byte, len(resp.NonSafeData))
	copy(nonSafe, resp.NonSafeData)
	resp.SafeData = safe
	resp.NonSafeData = nonSafe

	r.cache.Lock()
	defer r.cache.Unlock()
	return r.cache.SetLocked(slot.node, uas.ExtensionObjectValue(ResponseTypeId, resp.Encode()))
}

// Clear removes both types from the codec registry. It does not touch
// the underlying cache entries.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = make(map[uint32]*requestSlot)
	r.responses = make(map[uint32]*responseSlot)
}
