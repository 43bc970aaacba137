package uas

import "fmt"

// IdentifierKind is the discriminant of a NodeId's identifier part,
// mirroring the four identifier encodings of an OPC UA NodeId.
type IdentifierKind uint8

const (
	IdentifierNumeric IdentifierKind = iota
	IdentifierString
	IdentifierGUID
	IdentifierBytestring
)

// GUID is a 16-byte globally unique identifier, stored as a fixed
// array so NodeId stays comparable (usable as a plain Go map key).
type GUID [16]byte

// NodeId is the structural key used by the cache (C1) and the SPDU
// codec (C2): a namespace plus one of {numeric, string, GUID,
// bytestring} identifier. Only one of the identifier fields is valid,
// selected by Kind; the type is a plain comparable struct (no
// pointers, no slices) so it can be used directly as a map key.
type NodeId struct {
	Namespace uint16
	Kind      IdentifierKind
	Numeric   uint32
	Str       string // also backs the Bytestring kind (Go strings are comparable, []byte is not)
	GUIDValue GUID
}

// NewNumericNodeId builds a NodeId with a numeric identifier, the kind
// used throughout pkg/spdu's Registry (SPDUs are registered by a
// numeric NodeId identifier, per spec.md §4.2).
func NewNumericNodeId(namespace uint16, id uint32) NodeId {
	return NodeId{Namespace: namespace, Kind: IdentifierNumeric, Numeric: id}
}

// NewStringNodeId builds a NodeId with a string identifier.
func NewStringNodeId(namespace uint16, id string) NodeId {
	return NodeId{Namespace: namespace, Kind: IdentifierString, Str: id}
}

// NewGUIDNodeId builds a NodeId with a GUID identifier.
func NewGUIDNodeId(namespace uint16, id GUID) NodeId {
	return NodeId{Namespace: namespace, Kind: IdentifierGUID, GUIDValue: id}
}

// NewBytestringNodeId builds a NodeId with a bytestring identifier.
func NewBytestringNodeId(namespace uint16, id []byte) NodeId {
	return NodeId{Namespace: namespace, Kind: IdentifierBytestring, Str: string(id)}
}

func (n NodeId) String() string {
	switch n.Kind {
	case IdentifierNumeric:
		return fmt.Sprintf("ns=%d;i=%d", n.Namespace, n.Numeric)
	case IdentifierString:
		return fmt.Sprintf("ns=%d;s=%s", n.Namespace, n.Str)
	case IdentifierGUID:
		return fmt.Sprintf("ns=%d;g=%x", n.Namespace, n.GUIDValue)
	case IdentifierBytestring:
		return fmt.Sprintf("ns=%d;b=%x", n.Namespace, n.Str)
	default:
		return fmt.Sprintf("ns=%d;?", n.Namespace)
	}
}
