package safety

// Buffers holds one instance's safe/non-safe data across both
// directions. Provider stores its application-facing inputs and its
// published outputs here; Consumer stores the safe data it has
// extracted from the last accepted response. The slices start empty,
// grow on the first cycle that fills them and are reused cycle to
// cycle — Clear truncates them to zero length rather than releasing
// them, since Go's allocator has no use for an explicit free here.
type Buffers struct {
	InputSafe     []byte
	InputNonSafe  []byte
	OutputSafe    []byte
	OutputNonSafe []byte
}

// Clear zeroes every buffer's length without releasing its backing
// array, so the next cycle's append(dst[:0], src...) reuses it.
func (b *Buffers) Clear() {
	b.InputSafe = b.InputSafe[:0]
	b.InputNonSafe = b.InputNonSafe[:0]
	b.OutputSafe = b.OutputSafe[:0]
	b.OutputNonSafe = b.OutputNonSafe[:0]
}
