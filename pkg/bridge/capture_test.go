package bridge_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/systerel/S2OPC-sub031/pkg/bridge"
	"github.com/systerel/S2OPC-sub031/pkg/cache"
	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

func TestCaptureRoundTripsMostRecentFirst(t *testing.T) {
	c := bridge.NewCapture(2)
	if err := c.Record([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := c.Record([]byte{4, 5, 6}); err != nil {
		t.Fatal(err)
	}

	if c.Len() != 2 {
		t.Fatalf("want len 2, got %d", c.Len())
	}
	got0, err := c.At(0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{4, 5, 6}, got0); diff != "" {
		t.Errorf("most recent slot mismatch (-want +got):\n%s", diff)
	}
	got1, err := c.At(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3}, got1); diff != "" {
		t.Errorf("prior slot mismatch (-want +got):\n%s", diff)
	}
}

func TestCaptureEvictsOldestPastCapacity(t *testing.T) {
	c := bridge.NewCapture(2)
	c.Record([]byte{1})
	c.Record([]byte{2})
	c.Record([]byte{3})

	if c.Len() != 2 {
		t.Fatalf("want len 2, got %d", c.Len())
	}
	got, err := c.At(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{2}, got); diff != "" {
		t.Errorf("oldest surviving slot should be {2} (-want +got):\n%s", diff)
	}
}

func TestCaptureAtOutOfRangeIsNotFound(t *testing.T) {
	c := bridge.NewCapture(1)
	_, err := c.At(0)
	kind, ok := uas.KindOf(err)
	if !ok || kind != uas.KindNotFound {
		t.Fatalf("want not-found, got %v", err)
	}
}

func TestDiagnosticDumpRoundTripsSnapshot(t *testing.T) {
	ca := cache.New()
	id := uas.NewNumericNodeId(1, 7)
	if err := ca.Set(id, uas.BytestringValue([]byte{0xAA, 0xBB})); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	dump, err := bridge.NewDiagnosticDump(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := dump.WriteSnapshot(ca); err != nil {
		t.Fatal(err)
	}
	if err := dump.Close(); err != nil {
		t.Fatal(err)
	}

	snaps, err := bridge.ReadDiagnosticDump(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Fatalf("want 1 snapshot, got %d", len(snaps))
	}
	got, ok := snaps[0][id]
	if !ok {
		t.Fatalf("snapshot missing node %s", id)
	}
	if diff := cmp.Diff([]byte{0xAA, 0xBB}, got.Bytes); diff != "" {
		t.Errorf("snapshot value mismatch (-want +got):\n%s", diff)
	}
}
