package spdu

import "github.com/systerel/S2OPC-sub031/pkg/uas"

// ResponseSPDU is built by a provider each cycle from application
// outputs plus the echoed request fields, and consumed by a consumer
// (spec.md §3, §4.2). Wire layout, in order:
// serializedSafetyData:bytestring(N_s), serializedNonSafetyData:bytestring(N_ns),
// flags:u8, spduIdPart1:u32, spduIdPart2:u32, spduIdPart3:u32,
// safetyConsumerId:u32, monitoringNumber:u32, crc:u32.
type ResponseSPDU struct {
	SafeData         []byte
	NonSafeData      []byte
	Flags            uint8
	SpduId           uas.SpduId
	SafetyConsumerId uint32
	MonitoringNumber uint32
	CRC              uint32
}

// Encode serialises r in the exact field order spec.md §4.2 specifies.
// It does not validate SafeData/NonSafeData lengths against any
// configured contract — that check belongs to the Registry
// (get_response/set_response), which knows the configured (N_s, N_ns)
// for a given numeric id.
func (r ResponseSPDU) Encode() []byte {
	w := newWriter(4 + len(r.SafeData) + 4 + len(r.NonSafeData) + 1 + 4*5 + 4)
	w.putBytestring(r.SafeData)
	w.putBytestring(r.NonSafeData)
	w.putU8(r.Flags)
	w.putU32(r.SpduId.Part1)
	w.putU32(r.SpduId.Part2)
	w.putU32(r.SpduId.Part3)
	w.putU32(r.SafetyConsumerId)
	w.putU32(r.MonitoringNumber)
	w.putU32(r.CRC)
	return w.bytes()
}

// DecodeResponseSPDU parses a ResponseSPDU from its wire encoding,
// checking the safe/non-safe bytestring lengths against the (ns, nns)
// contract configured for this SpduId (spec.md §3 invariant 2).
func DecodeResponseSPDU(b []byte, ns, nns int) (ResponseSPDU, error) {
	r := newReader(b)
	resp := ResponseSPDU{}
	resp.SafeData = r.fixedBytestring(ns)
	resp.NonSafeData = r.fixedBytestring(nns)
	resp.Flags = r.u8()
	resp.SpduId.Part1 = r.u32()
	resp.SpduId.Part2 = r.u32()
	resp.SpduId.Part3 = r.u32()
	resp.SafetyConsumerId = r.u32()
	resp.MonitoringNumber = r.u32()
	resp.CRC = r.u32()
	if err := r.Complete(); err != nil {
		return ResponseSPDU{}, err
	}
	return resp, nil
}
