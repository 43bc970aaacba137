package bridge

import (
	"bytes"
	"io"
	"sync"

	"github.com/pierrec/lz4"

	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

// slot is one recycled ring-buffer entry: the datagram, compressed,
// plus its original length (LZ4 needs no length hint to decompress,
// but callers asking "how big was this" without decompressing want
// it).
type slot struct {
	compressed []byte
	rawLen     int
}

// Capture is a fixed-size ring buffer of the last N raw datagrams a
// Transport has sent, each compressed with LZ4 as its slot is
// recycled (spec.md §8 scenario S4 needs byte-for-byte replay of an
// earlier response; Capture is what makes that reproducible in tests
// and forensics without re-deriving the original bytes). It never
// holds live safeData uncompressed longer than one Record call — the
// only bytes Capture stores long-term are the non-safe wire encoding,
// which is exactly what crossed the partition anyway.
type Capture struct {
	mu   sync.Mutex
	buf  []slot
	next int
	size int
}

// NewCapture constructs a Capture holding at most capacity datagrams.
func NewCapture(capacity int) *Capture {
	return &Capture{buf: make([]slot, capacity)}
}

// Record compresses and stores payload in the next ring slot,
// overwriting the oldest entry once the buffer is full.
func (c *Capture) Record(payload []byte) error {
	var out bytes.Buffer
	w := lz4.NewWriter(&out)
	if _, err := w.Write(payload); err != nil {
		return uas.Wrap(uas.KindInvalidState, err, "lz4 compress capture slot")
	}
	if err := w.Close(); err != nil {
		return uas.Wrap(uas.KindInvalidState, err, "lz4 flush capture slot")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return nil
	}
	c.buf[c.next] = slot{compressed: out.Bytes(), rawLen: len(payload)}
	c.next = (c.next + 1) % len(c.buf)
	if c.size < len(c.buf) {
		c.size++
	}
	return nil
}

// Len reports how many datagrams are currently held.
func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// At decompresses and returns the i-th most recently recorded
// datagram (0 is the most recent). Returns uas.ErrNotFound if i is
// out of range.
func (c *Capture) At(i int) ([]byte, error) {
	c.mu.Lock()
	if i < 0 || i >= c.size {
		c.mu.Unlock()
		return nil, uas.New(uas.KindNotFound, "capture index %d out of range (have %d)", i, c.size)
	}
	idx := (c.next - 1 - i + len(c.buf)*2) % len(c.buf)
	s := c.buf[idx]
	c.mu.Unlock()

	r := lz4.NewReader(bytes.NewReader(s.compressed))
	out := make([]byte, s.rawLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, uas.Wrap(uas.KindInvalidState, err, "lz4 decompress capture slot %d", i)
	}
	return out, nil
}
