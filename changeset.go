package svo

import "slices"

type slotRange struct {
	start, end uint32 // half-open, end == 0 means clean
}

// ChangeSet tracks, per chunk, the bounding range of slots written since the
// last Reset. Marking slots in a clean chunk starts a new range, marking
// slots in a dirty chunk widens the existing one, so a tracked range may
// cover slots that were never written.
type ChangeSet struct {
	slotBits uint
	ranges   []slotRange // indexed by chunk
	dirty    []uint32    // dirty chunk indices
}

// NewChangeSet creates a change set for handles packed with slotBits.
func NewChangeSet(slotBits uint) *ChangeSet {
	return &ChangeSet{slotBits: slotBits}
}

// AddChunk starts tracking a new chunk and returns its index. It must be
// called exactly once for every chunk the arena acquires.
func (c *ChangeSet) AddChunk() uint32 {
	c.ranges = append(c.ranges, slotRange{})
	return uint32(len(c.ranges) - 1)
}

// NumChunks returns the number of tracked chunks.
func (c *ChangeSet) NumChunks() int { return len(c.ranges) }

// MarkChanged marks a single slot as dirty.
func (c *ChangeSet) MarkChanged(h Handle) { c.MarkChangedRange(h, 1) }

// MarkChangedRange marks n consecutive slots starting at h as dirty.
func (c *ChangeSet) MarkChangedRange(h Handle, n uint32) {
	if n == 0 {
		return
	}

	chunk, slot := h.Split(c.slotBits)
	if int(chunk) >= len(c.ranges) {
		panic("svo: change set is out of lock-step with arena chunks")
	}

	r := &c.ranges[chunk]
	if r.end == 0 {
		r.start, r.end = slot, slot+n
		c.dirty = append(c.dirty, chunk)
		return
	}
	if slot < r.start {
		r.start = slot
	}
	if end := slot + n; end > r.end {
		r.end = end
	}
}

// Range returns the dirty slot range of a chunk. ok is false for clean
// chunks.
func (c *ChangeSet) Range(chunk uint32) (start, end uint32, ok bool) {
	if int(chunk) >= len(c.ranges) {
		return 0, 0, false
	}
	r := c.ranges[chunk]
	return r.start, r.end, r.end != 0
}

// Len returns the number of dirty chunks.
func (c *ChangeSet) Len() int { return len(c.dirty) }

// Each calls fn for every dirty chunk in ascending chunk order.
func (c *ChangeSet) Each(fn func(chunk, start, end uint32)) {
	slices.Sort(c.dirty)
	for _, chunk := range c.dirty {
		r := c.ranges[chunk]
		fn(chunk, r.start, r.end)
	}
}

// Reset marks every chunk clean.
func (c *ChangeSet) Reset() {
	for _, chunk := range c.dirty {
		c.ranges[chunk] = slotRange{}
	}
	c.dirty = c.dirty[:0]
}
