package svo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"time"
)

// ArenaOptions define arena specific options.
type ArenaOptions struct {
	// Logger receives debug events. Default: discard.
	Logger *slog.Logger

	// Metrics receives arena events. Default: nil (disabled).
	Metrics ArenaMetrics
}

func (o *ArenaOptions) norm() *ArenaOptions {
	var oo ArenaOptions
	if o != nil {
		oo = *o
	}

	if oo.Logger == nil {
		oo.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &oo
}

// Arena carves fixed-size chunks obtained from a BlockAllocator into
// equally sized slots and addresses them by Handle. Freed slots are kept on
// a free list which is threaded through the freed slots themselves. Chunks
// are never moved or returned before Close.
//
// An Arena is not safe for concurrent use.
type Arena struct {
	alloc BlockAllocator
	o     *ArenaOptions

	slotSize      int
	slotBits      uint
	slotsPerChunk uint32
	maxChunks     uint32

	chunks  []Block
	changes *ChangeSet

	carveChunk uint32 // next never-used slot
	carveSlot  uint32

	free    Handle // free list head
	numFree int
	live    int

	closed bool
}

// NewArena creates an arena of slotSize byte slots on top of alloc. The slot
// size is rounded up to a power of two and must fit within a block.
func NewArena(alloc BlockAllocator, slotSize int, o *ArenaOptions) (*Arena, error) {
	blockSize := alloc.BlockSize()
	if blockSize < 1 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("svo: block size %d is not a power of two", blockSize)
	}
	if slotSize < 4 {
		slotSize = 4 // room for a free list link
	}
	slotSize = ceilPow2(slotSize)
	if slotSize > blockSize {
		return nil, fmt.Errorf("svo: slot size %d exceeds block size %d", slotSize, blockSize)
	}

	slotsPerChunk := uint32(blockSize / slotSize)
	slotBits := uint(bits.TrailingZeros32(slotsPerChunk))
	if slotBits >= 32 {
		return nil, fmt.Errorf("svo: %d slots per chunk cannot be addressed", slotsPerChunk)
	}

	return &Arena{
		alloc:         alloc,
		o:             o.norm(),
		slotSize:      slotSize,
		slotBits:      slotBits,
		slotsPerChunk: slotsPerChunk,
		maxChunks:     uint32(1<<(32-slotBits) - 1), // the last chunk would contain None
		changes:       NewChangeSet(slotBits),
		free:          None,
	}, nil
}

// SlotSize returns the size of a slot in bytes.
func (a *Arena) SlotSize() int { return a.slotSize }

// SlotBits returns the number of low handle bits used for the slot index.
func (a *Arena) SlotBits() uint { return a.slotBits }

// SlotsPerChunk returns the number of slots in each chunk.
func (a *Arena) SlotsPerChunk() uint32 { return a.slotsPerChunk }

// NumChunks returns the number of chunks acquired so far.
func (a *Arena) NumChunks() int { return len(a.chunks) }

// Live returns the number of allocated slots.
func (a *Arena) Live() int { return a.live }

// Changes exposes the change set.
func (a *Arena) Changes() *ChangeSet { return a.changes }

// Alloc returns a handle to an unused slot. The slot contents are
// undefined.
func (a *Arena) Alloc() (Handle, error) {
	if a.closed {
		return None, ErrClosed
	}

	if h := a.free; h != None {
		a.free = a.link(h)
		a.numFree--
		a.live++
		a.observeLive()
		return h, nil
	}

	if a.uncarved() == 0 {
		if err := a.grow(); err != nil {
			return None, err
		}
	}

	h := MakeHandle(a.carveChunk, a.carveSlot, a.slotBits)
	if a.carveSlot++; a.carveSlot == a.slotsPerChunk {
		a.carveChunk++
		a.carveSlot = 0
	}
	a.live++
	a.observeLive()
	return h, nil
}

// Free returns a slot to the free list. The handle and every copy of it
// become invalid; the slot may be handed out again by Alloc.
func (a *Arena) Free(h Handle) {
	a.setLink(h, a.free)
	a.free = h
	a.numFree++
	a.live--
	a.observeLive()
}

// Reserve makes sure the next n calls to Alloc succeed without consulting
// the allocator. Chunks acquired before a failure stay with the arena.
func (a *Arena) Reserve(n int) error {
	if a.closed {
		return ErrClosed
	}
	for a.numFree+a.uncarved() < n {
		if err := a.grow(); err != nil {
			return err
		}
	}
	return nil
}

// Slot returns the memory of the slot h. Writes must be followed by
// Changed to be picked up by the next Flush. Behaviour is undefined for
// freed or foreign handles.
func (a *Arena) Slot(h Handle) []byte {
	chunk, slot := h.Split(a.slotBits)
	off := int(slot) * a.slotSize
	return a.chunks[chunk].Data[off : off+a.slotSize : off+a.slotSize]
}

// Changed marks the slot h dirty.
func (a *Arena) Changed(h Handle) { a.changes.MarkChanged(h) }

// ChangedRange marks n consecutive slots starting at h dirty.
func (a *Arena) ChangedRange(h Handle, n uint32) { a.changes.MarkChangedRange(h, n) }

// Flush hands the dirty byte ranges of all chunks to the allocator and
// resets the change set on success.
func (a *Arena) Flush(ctx context.Context) error {
	if a.closed {
		return ErrClosed
	}
	if a.changes.Len() == 0 {
		return nil
	}

	start := time.Now()
	ranges := make([]FlushRange, 0, a.changes.Len())
	size := 0
	a.changes.Each(func(chunk, first, last uint32) {
		r := FlushRange{
			Block: a.chunks[chunk],
			Start: int(first) * a.slotSize,
			End:   int(last) * a.slotSize,
		}
		size += r.Len()
		ranges = append(ranges, r)
	})

	if err := a.alloc.Flush(ctx, ranges); err != nil {
		a.o.Logger.Warn("svo: flush failed", keyChunks, len(ranges), keyError, err)
		return err
	}
	a.changes.Reset()

	a.o.Logger.Debug("svo: flushed", keyChunks, len(ranges), keyBytes, size)
	if a.o.Metrics != nil {
		a.o.Metrics.ObserveFlush(len(ranges), size, time.Since(start))
	}
	return nil
}

// Close returns all chunks to the allocator.
func (a *Arena) Close() error {
	if a.closed {
		return ErrClosed
	}
	for _, b := range a.chunks {
		a.alloc.DeallocateBlock(b)
	}
	a.chunks = nil
	a.free = None
	a.closed = true
	return nil
}

// Stats returns arena usage counters.
func (a *Arena) Stats() ArenaStats {
	return ArenaStats{
		Chunks:        len(a.chunks),
		SlotSize:      a.slotSize,
		SlotsPerChunk: int(a.slotsPerChunk),
		Live:          a.live,
		Free:          a.numFree,
		Uncarved:      a.uncarved(),
		Dirty:         a.changes.Len(),
	}
}

// ArenaStats describe arena usage.
type ArenaStats struct {
	Chunks        int // chunks acquired
	SlotSize      int // bytes per slot
	SlotsPerChunk int
	Live          int // allocated slots
	Free          int // slots on the free list
	Uncarved      int // slots never handed out
	Dirty         int // dirty chunks
}

// --------------------------------------------------------------------

func (a *Arena) uncarved() int {
	total := len(a.chunks) * int(a.slotsPerChunk)
	return total - int(a.carveChunk)*int(a.slotsPerChunk) - int(a.carveSlot)
}

func (a *Arena) grow() error {
	idx := uint32(len(a.chunks))
	if idx >= a.maxChunks {
		return a.allocFailed(idx, ErrTooManyObjects)
	}

	b, err := a.alloc.AllocateBlock()
	if err != nil {
		return a.allocFailed(idx, err)
	}
	if len(b.Data) != a.alloc.BlockSize() {
		a.alloc.DeallocateBlock(b)
		return a.allocFailed(idx, ErrMappingFailed)
	}

	a.chunks = append(a.chunks, b)
	if n := a.changes.AddChunk(); n != idx {
		panic("svo: change set is out of lock-step with arena chunks")
	}

	a.o.Logger.Debug("svo: chunk allocated", keyChunk, idx, keyOffset, b.Offset)
	if a.o.Metrics != nil {
		a.o.Metrics.ObserveChunkAllocated(len(b.Data))
	}
	return nil
}

func (a *Arena) allocFailed(idx uint32, err error) error {
	a.o.Logger.Warn("svo: chunk allocation failed", keyChunk, idx, keyError, err)
	if a.o.Metrics != nil {
		a.o.Metrics.ObserveAllocFailure(err)
	}
	return fmt.Errorf("svo: allocate chunk %d: %w", idx, err)
}

func (a *Arena) observeLive() {
	if a.o.Metrics != nil {
		a.o.Metrics.ObserveLiveSlots(a.live)
	}
}

// link reads the free list pointer stored in a freed slot. Together with
// setLink this is the only place slot memory is treated as anything but a
// node.
func (a *Arena) link(h Handle) Handle {
	return Handle(byteOrder.Uint32(a.Slot(h)))
}

func (a *Arena) setLink(h, next Handle) {
	byteOrder.PutUint32(a.Slot(h), uint32(next))
}
