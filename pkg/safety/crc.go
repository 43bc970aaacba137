package safety

import "github.com/systerel/S2OPC-sub031/pkg/uas"

// CRC32Func is the injected CRC primitive (spec.md §9 Open Question:
// "do not guess" the polynomial). Both Provider and Consumer take one
// at construction and must be configured with the same function for a
// given SpduId, or every response will fault with a crc-error.
type CRC32Func func([]byte) uint32

// canonicalCRCInput builds the fixed concatenation spec.md §4.3.2
// specifies, byte for byte:
//
//	safeData || nonSafeData
//	       || spduIdPart1 || spduIdPart2 || spduIdPart3
//	       || safetyConsumerId
//	       || monitoringNumber
//	       || flags
//	       || safetyProviderLevel
//
// All multi-byte integers little-endian.
func canonicalCRCInput(safeData, nonSafeData []byte, spduId uas.SpduId, consumerId, mnr uint32, flags, providerLevel uint8) []byte {
	out := make([]byte, 0, len(safeData)+len(nonSafeData)+4*5+1+1)
	out = append(out, safeData...)
	out = append(out, nonSafeData...)
	out = appendU32(out, spduId.Part1)
	out = appendU32(out, spduId.Part2)
	out = appendU32(out, spduId.Part3)
	out = appendU32(out, consumerId)
	out = appendU32(out, mnr)
	out = append(out, flags)
	out = append(out, providerLevel)
	return out
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
