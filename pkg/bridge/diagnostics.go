package bridge

import (
	"encoding/gob"
	"errors"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/systerel/S2OPC-sub031/pkg/cache"
	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

// DiagnosticDump is the Go-native stand-in for the interactive demo's
// console dump of current SPDU state (samples/safety_demo/src/
// interactive.c in original_source/ — out of scope here per spec.md
// §1, but the underlying need, inspecting the last known-good cache
// state after a consumer fault, is not). It snapshots a *cache.Cache
// into a zstd-compressed blob, written programmatically rather than
// interactively.
type DiagnosticDump struct {
	w   *zstd.Encoder
	enc *gob.Encoder
}

// NewDiagnosticDump wraps dst with a zstd encoder and returns a
// DiagnosticDump ready to receive snapshots via WriteSnapshot.
func NewDiagnosticDump(dst io.Writer) (*DiagnosticDump, error) {
	zw, err := zstd.NewWriter(dst)
	if err != nil {
		return nil, uas.Wrap(uas.KindInvalidState, err, "construct zstd encoder")
	}
	return &DiagnosticDump{w: zw, enc: gob.NewEncoder(zw)}, nil
}

// WriteSnapshot gob-encodes c's current contents and writes them
// through the zstd encoder as one record. Call Close when done
// writing records to flush the compressor.
func (d *DiagnosticDump) WriteSnapshot(c *cache.Cache) error {
	if err := d.enc.Encode(c.Snapshot()); err != nil {
		return uas.Wrap(uas.KindInvalidState, err, "encode cache snapshot")
	}
	return nil
}

// Close flushes and closes the underlying zstd encoder.
func (d *DiagnosticDump) Close() error {
	return d.w.Close()
}

// ReadDiagnosticDump decompresses and gob-decodes every snapshot
// record previously written by WriteSnapshot, for postmortem
// inspection.
func ReadDiagnosticDump(src io.Reader) ([]map[uas.NodeId]uas.DataValue, error) {
	zr, err := zstd.NewReader(src)
	if err != nil {
		return nil, uas.Wrap(uas.KindInvalidState, err, "construct zstd decoder")
	}
	// zstd.Decoder.Close releases background goroutines; it does not
	// return an error.
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var out []map[uas.NodeId]uas.DataValue
	for {
		var snap map[uas.NodeId]uas.DataValue
		if err := dec.Decode(&snap); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out, uas.Wrap(uas.KindInvalidState, err, "decode cache snapshot")
		}
		out = append(out, snap)
	}
	return out, nil
}
