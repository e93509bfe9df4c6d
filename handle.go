package svo

import "math"

// Handle addresses a single arena slot. The low bits hold the slot index
// within a chunk, the remaining high bits hold the chunk index. How many low
// bits are used depends on the number of slots per chunk and is fixed by the
// owning Arena.
type Handle uint32

// None is the reserved handle value that never refers to a real slot.
const None = Handle(math.MaxUint32)

// MakeHandle packs a chunk and slot index into a Handle.
func MakeHandle(chunk, slot uint32, slotBits uint) Handle {
	return Handle(chunk<<slotBits | slot&(1<<slotBits-1))
}

// Split decomposes the handle into its chunk and slot index.
func (h Handle) Split(slotBits uint) (chunk, slot uint32) {
	return uint32(h) >> slotBits, uint32(h) & (1<<slotBits - 1)
}

// IsNone returns true for the None handle.
func (h Handle) IsNone() bool { return h == None }

// Offset returns the handle n slots further along in the same chunk. The
// caller must make sure the result stays within the chunk.
func (h Handle) Offset(n uint32) Handle { return h + Handle(n) }
