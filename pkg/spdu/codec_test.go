package spdu

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/systerel/S2OPC-sub031/pkg/cache"
	"github.com/systerel/S2OPC-sub031/pkg/uas"
)

func TestRequestSPDURoundTrips(t *testing.T) {
	want := RequestSPDU{SafetyConsumerId: 0x2000_1222, MonitoringNumber: 0xFFFFFFFE, Flags: 0x05}
	got, err := DecodeRequestSPDU(want.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestResponseSPDURoundTrips(t *testing.T) {
	want := ResponseSPDU{
		SafeData:         make([]byte, 27),
		NonSafeData:      make([]byte, 30),
		Flags:            0x01,
		SpduId:           uas.SpduId{Part1: 0x11111111, Part2: 0x22222222, Part3: 0x33333333},
		SafetyConsumerId: 0x20001222,
		MonitoringNumber: 7,
		CRC:              0xDEADBEEF,
	}
	for i := range want.SafeData {
		want.SafeData[i] = byte(i + 1)
	}
	got, err := DecodeResponseSPDU(want.Encode(), 27, 30)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestResponseSPDUZeroLengthNonSafeDataIsLegal(t *testing.T) {
	want := ResponseSPDU{SafeData: []byte{1, 2, 3}, NonSafeData: []byte{}}
	encoded := want.Encode()
	// the u32 length prefix for NonSafeData must still be present and zero
	got, err := DecodeResponseSPDU(encoded, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.NonSafeData) != 0 {
		t.Fatalf("want empty non-safe data, got %v", got.NonSafeData)
	}
}

func TestDecodeResponseSPDULengthMismatchFails(t *testing.T) {
	resp := ResponseSPDU{SafeData: make([]byte, 27), NonSafeData: make([]byte, 30)}
	_, err := DecodeResponseSPDU(resp.Encode(), 28, 30)
	kind, ok := uas.KindOf(err)
	if !ok || kind != uas.KindLengthError {
		t.Fatalf("want length-error, got %v", err)
	}
}

func TestFieldDescriptorsMatchWireOrder(t *testing.T) {
	if len(requestFields) != 3 {
		t.Fatalf("RequestSPDU should have 3 fields, got %d", len(requestFields))
	}
	if requestFields[0].kind != kindU32 || requestFields[1].kind != kindU32 || requestFields[2].kind != kindU8 {
		t.Fatalf("unexpected RequestSPDU field kinds: %+v", requestFields)
	}
	if len(responseFields) != 9 {
		t.Fatalf("ResponseSPDU should have 9 fields, got %d", len(responseFields))
	}
	if responseFields[0].kind != kindBytestring || responseFields[1].kind != kindBytestring {
		t.Fatalf("ResponseSPDU should lead with two bytestrings, got %+v", responseFields[:2])
	}
}

func TestRegistryCreateRequestRejectsDuplicate(t *testing.T) {
	c := cache.New()
	reg := NewRegistry(c)
	node := uas.NewNumericNodeId(1, 100)
	if err := reg.CreateRequest(100, node); err != nil {
		t.Fatal(err)
	}
	err := reg.CreateRequest(100, node)
	kind, ok := uas.KindOf(err)
	if !ok || kind != uas.KindNotSupported {
		t.Fatalf("want not-supported, got %v", err)
	}
}

func TestRegistryRequestRoundTrips(t *testing.T) {
	c := cache.New()
	reg := NewRegistry(c)
	node := uas.NewNumericNodeId(1, 1)
	if err := reg.CreateRequest(1, node); err != nil {
		t.Fatal(err)
	}
	want := RequestSPDU{SafetyConsumerId: 9, MonitoringNumber: 10, Flags: 1}
	if err := reg.SetRequest(1, want); err != nil {
		t.Fatal(err)
	}
	got, err := reg.GetRequest(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryResponseLengthContract(t *testing.T) {
	c := cache.New()
	reg := NewRegistry(c)
	node := uas.NewNumericNodeId(1, 2)
	if err := reg.CreateResponse(2, node, 4, 2); err != nil {
		t.Fatal(err)
	}
	err := reg.SetResponse(2, ResponseSPDU{SafeData: []byte{1, 2, 3}, NonSafeData: []byte{1, 2}})
	kind, ok := uas.KindOf(err)
	if !ok || kind != uas.KindLengthError {
		t.Fatalf("want length-error, got %v", err)
	}
}

func TestRegistryClearRemovesSlotsNotCacheEntries(t *testing.T) {
	c := cache.New()
	reg := NewRegistry(c)
	node := uas.NewNumericNodeId(1, 3)
	if err := reg.CreateResponse(3, node, 1, 1); err != nil {
		t.Fatal(err)
	}
	reg.Clear()
	_, err := reg.GetResponse(3)
	kind, ok := uas.KindOf(err)
	if !ok || kind != uas.KindInvalidParameter {
		t.Fatalf("want invalid-parameter after Clear, got %v", err)
	}
	if _, err := c.Get(node); err != nil {
		t.Fatalf("Clear must not remove cache entries: %v", err)
	}
}
