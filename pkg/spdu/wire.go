// Package spdu implements the SPDU codec (C2 in spec.md §4.2): the
// RequestSPDU and ResponseSPDU extension-object wire types, their
// field-by-field encode/decode functions, and the process-singleton
// Registry that bridges decoded SPDU values to cache (C1) entries.
package spdu

import "github.com/systerel/S2OPC-sub031/pkg/uas"

// reader is a slice-backed binary cursor modeled on the kbin.Reader
// idiom visible at pkg/kgo/broker.go's readResponse call sites
// (kbin.Reader{Src: buf}, then b.Complete() once done): decode errors
// accumulate in a sticky field instead of being threaded through every
// call, and Complete() surfaces the first one, if any.
type reader struct {
	src []byte
	err error
}

func newReader(b []byte) *reader { return &reader{src: b} }

func (r *reader) fail(kind uas.ErrorKind, detail string) {
	if r.err == nil {
		r.err = uas.New(kind, "%s", detail)
	}
}

// Complete returns the first error encountered during decoding, or
// nil if the reader consumed its input cleanly.
func (r *reader) Complete() error { return r.err }

func (r *reader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	if len(r.src) < 1 {
		r.fail(uas.KindLengthError, "unexpected end of buffer reading u8")
		return 0
	}
	v := r.src[0]
	r.src = r.src[1:]
	return v
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.src) < 4 {
		r.fail(uas.KindLengthError, "unexpected end of buffer reading u32")
		return 0
	}
	v := uint32(r.src[0]) | uint32(r.src[1])<<8 | uint32(r.src[2])<<16 | uint32(r.src[3])<<24
	r.src = r.src[4:]
	return v
}

// bytestring reads a u32 length prefix followed by that many bytes,
// failing with a length-error if the declared length exceeds what
// remains in the buffer (spec.md §4.2: "Decode validates that each
// bytestring's declared length never exceeds what remains").
func (r *reader) bytestring() []byte {
	if r.err != nil {
		return nil
	}
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(len(r.src)) {
		r.fail(uas.KindLengthError, "bytestring declares more bytes than remain in buffer")
		return nil
	}
	v := make([]byte, n)
	copy(v, r.src[:n])
	r.src = r.src[n:]
	return v
}

// fixedBytestring reads a bytestring and additionally checks its
// decoded length against want, the configured (N_s, N_ns) contract
// (spec.md §3 invariant 2, "Length contracts").
func (r *reader) fixedBytestring(want int) []byte {
	v := r.bytestring()
	if r.err != nil {
		return nil
	}
	if len(v) != want {
		r.fail(uas.KindLengthError, "bytestring length does not match configured length")
		return nil
	}
	return v
}

// writer is the encode-side counterpart of reader.
type writer struct {
	buf []byte
}

func newWriter(capHint int) *writer { return &writer{buf: make([]byte, 0, capHint)} }

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) putU8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) putU32(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// putBytestring writes the u32 length prefix (always, even when len(v)
// is 0 — spec.md §8 boundary behaviour) followed by v.
func (w *writer) putBytestring(v []byte) {
	w.putU32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}
