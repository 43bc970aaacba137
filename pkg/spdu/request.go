package spdu

// RequestSPDU is built by a consumer each cycle and consumed by a
// provider (spec.md §3, §4.2). Wire layout, in order:
// safetyConsumerId:u32, monitoringNumber:u32, flags:u8.
type RequestSPDU struct {
	SafetyConsumerId uint32
	MonitoringNumber uint32
	Flags            uint8
}

// Encode serialises r in the exact field order spec.md §4.2 specifies.
func (r RequestSPDU) Encode() []byte {
	w := newWriter(4 + 4 + 1)
	w.putU32(r.SafetyConsumerId)
	w.putU32(r.MonitoringNumber)
	w.putU8(r.Flags)
	return w.bytes()
}

// DecodeRequestSPDU parses a RequestSPDU from its wire encoding.
func DecodeRequestSPDU(b []byte) (RequestSPDU, error) {
	r := newReader(b)
	req := RequestSPDU{
		SafetyConsumerId: r.u32(),
		MonitoringNumber: r.u32(),
		Flags:            r.u8(),
	}
	if err := r.Complete(); err != nil {
		return RequestSPDU{}, err
	}
	return req, nil
}
