package svo

import (
	"context"
	"os"
	"strconv"
)

// HostAllocatorOptions configure a HostAllocator.
type HostAllocatorOptions struct {
	// BlockSize is the size of each block. Must be a power of two.
	// Default: env SVO_CHUNK_SIZE or 64KiB.
	BlockSize int

	// MaxBlocks limits the number of live blocks, exceeding it yields
	// ErrTooManyObjects. Default: 0 (unlimited).
	MaxBlocks int

	// MaxBytes limits the total number of live bytes, exceeding it yields
	// ErrOutOfHostMemory. Default: 0 (unlimited).
	MaxBytes int64
}

func (o *HostAllocatorOptions) norm() *HostAllocatorOptions {
	var oo HostAllocatorOptions
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = envBlockSize()
	}
	oo.BlockSize = ceilPow2(oo.BlockSize)
	return &oo
}

// HostAllocator hands out blocks from ordinary system memory. Flush is a
// no-op since there is no remote copy.
type HostAllocator struct {
	o *HostAllocatorOptions

	live   int
	offset int64
	free   []int64 // offsets of released blocks
}

// NewHostAllocator creates a new host memory allocator.
func NewHostAllocator(o *HostAllocatorOptions) *HostAllocator {
	return &HostAllocator{o: o.norm()}
}

// BlockSize implements BlockAllocator.
func (a *HostAllocator) BlockSize() int { return a.o.BlockSize }

// AllocateBlock implements BlockAllocator.
func (a *HostAllocator) AllocateBlock() (Block, error) {
	if a.o.MaxBlocks > 0 && a.live >= a.o.MaxBlocks {
		return Block{}, ErrTooManyObjects
	}
	if a.o.MaxBytes > 0 && int64(a.live+1)*int64(a.o.BlockSize) > a.o.MaxBytes {
		return Block{}, ErrOutOfHostMemory
	}

	off := a.offset
	if n := len(a.free); n != 0 {
		off = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.offset += int64(a.o.BlockSize)
	}

	a.live++
	return Block{Data: make([]byte, a.o.BlockSize), Offset: off}, nil
}

// DeallocateBlock implements BlockAllocator.
func (a *HostAllocator) DeallocateBlock(b Block) {
	if b.Data == nil {
		return
	}
	a.live--
	a.free = append(a.free, b.Offset)
}

// Flush implements BlockAllocator.
func (a *HostAllocator) Flush(ctx context.Context, _ []FlushRange) error {
	return ctx.Err()
}

// Live returns the number of blocks currently allocated.
func (a *HostAllocator) Live() int { return a.live }

// --------------------------------------------------------------------

func envBlockSize() int {
	if env := os.Getenv("SVO_CHUNK_SIZE"); env != "" {
		if val, err := strconv.Atoi(env); err == nil && val > 0 {
			return val
		}
	}
	return DefaultBlockSize
}

func ceilPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
