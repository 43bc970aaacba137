package spdu

// fieldKind is the wire type tag of one SPDU field.
type fieldKind uint8

const (
	kindU8 fieldKind = iota
	kindU32
	kindBytestring
)

// fieldDesc records one SPDU field's name, wire kind and fixed length.
// The tables below list the fields in wire order. Encode and the
// DecodeXxx functions are written out field by field in that same
// order; they do not read these tables, and no generic walker drives
// encoding or decoding from them.
type fieldDesc struct {
	name string
	kind fieldKind
	n    int // fixed length, only meaningful for kindBytestring
}

// requestFields is the RequestSPDU field list in wire order.
var requestFields = []fieldDesc{
	{name: "safetyConsumerId", kind: kindU32},
	{name: "monitoringNumber", kind: kindU32},
	{name: "flags", kind: kindU8},
}

// responseFields is the ResponseSPDU field list in wire order. The two
// bytestring entries carry n=-1 as a placeholder; the actual (ns, nns)
// lengths are only known per-SpduId and are passed to
// DecodeResponseSPDU as arguments.
var responseFields = []fieldDesc{
	{name: "serializedSafetyData", kind: kindBytestring, n: -1},
	{name: "serializedNonSafetyData", kind: kindBytestring, n: -1},
	{name: "flags", kind: kindU8},
	{name: "spduIdPart1", kind: kindU32},
	{name: "spduIdPart2", kind: kindU32},
	{name: "spduIdPart3", kind: kindU32},
	{name: "safetyConsumerId", kind: kindU32},
	{name: "monitoringNumber", kind: kindU32},
	{name: "crc", kind: kindU32},
}
