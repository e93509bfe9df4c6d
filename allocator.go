package svo

import "context"

// DefaultBlockSize is the default chunk size handed out by allocators (64KiB).
const DefaultBlockSize = 1 << 16

// Block is a fixed-size chunk of memory obtained from a BlockAllocator.
type Block struct {
	// Data is the host-accessible chunk memory. Its length is always the
	// allocator's BlockSize.
	Data []byte
	// Offset is the byte position of the chunk within the allocator's
	// backing store (e.g. a device buffer). Host allocators report
	// sequential offsets.
	Offset int64
}

// FlushRange identifies a dirty byte range [Start, End) within a block.
type FlushRange struct {
	Block Block
	Start int
	End   int
}

// Len returns the number of bytes in the range.
func (r FlushRange) Len() int { return r.End - r.Start }

// BlockAllocator supplies fixed-size chunks to an Arena. Implementations
// decide where the memory lives; the Arena never assumes an allocation
// succeeds.
type BlockAllocator interface {
	// BlockSize returns the size of every block in bytes. It must be a
	// power of two.
	BlockSize() int
	// AllocateBlock returns a new block or one of ErrOutOfHostMemory,
	// ErrOutOfDeviceMemory, ErrMappingFailed or ErrTooManyObjects.
	AllocateBlock() (Block, error)
	// DeallocateBlock releases a block previously returned by AllocateBlock.
	DeallocateBlock(Block)
	// Flush makes host writes within the given ranges visible to the
	// backing store.
	Flush(ctx context.Context, ranges []FlushRange) error
}
