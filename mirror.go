package svo

import (
	"context"
	"fmt"
	"io"
)

// MirrorAllocatorOptions configure a MirrorAllocator.
type MirrorAllocatorOptions struct {
	// BlockSize is the size of each block. Must be a power of two.
	// Default: env SVO_CHUNK_SIZE or 64KiB.
	BlockSize int

	// Capacity is the size of the remote buffer in bytes. Allocations
	// beyond it fail with ErrOutOfDeviceMemory. Default: 0 (unlimited).
	Capacity int64

	// MaxBlocks limits the number of live blocks, exceeding it yields
	// ErrTooManyObjects. Default: 0 (unlimited).
	MaxBlocks int

	// Map returns host-visible memory for the block at the given remote
	// offset. A failure is reported as ErrMappingFailed. Default: plain
	// host memory used as a staging copy.
	Map func(offset int64, size int) ([]byte, error)
}

func (o *MirrorAllocatorOptions) norm() *MirrorAllocatorOptions {
	var oo MirrorAllocatorOptions
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = envBlockSize()
	}
	oo.BlockSize = ceilPow2(oo.BlockSize)
	if oo.Map == nil {
		oo.Map = func(_ int64, size int) ([]byte, error) {
			return make([]byte, size), nil
		}
	}
	return &oo
}

// MirrorAllocator hands out host staging blocks that each own a fixed
// region of a remote buffer, such as a device-resident storage buffer.
// Flush copies the dirty byte ranges from the staging blocks to the
// remote.
type MirrorAllocator struct {
	remote io.WriterAt
	o      *MirrorAllocatorOptions

	live   int
	offset int64
	free   []int64
}

// NewMirrorAllocator creates an allocator mirroring blocks into remote.
func NewMirrorAllocator(remote io.WriterAt, o *MirrorAllocatorOptions) *MirrorAllocator {
	return &MirrorAllocator{remote: remote, o: o.norm()}
}

// BlockSize implements BlockAllocator.
func (a *MirrorAllocator) BlockSize() int { return a.o.BlockSize }

// AllocateBlock implements BlockAllocator.
func (a *MirrorAllocator) AllocateBlock() (Block, error) {
	if a.o.MaxBlocks > 0 && a.live >= a.o.MaxBlocks {
		return Block{}, ErrTooManyObjects
	}

	off, reused := a.offset, false
	if n := len(a.free); n != 0 {
		off, reused = a.free[n-1], true
	} else if a.o.Capacity > 0 && off+int64(a.o.BlockSize) > a.o.Capacity {
		return Block{}, ErrOutOfDeviceMemory
	}

	data, err := a.o.Map(off, a.o.BlockSize)
	if err != nil {
		return Block{}, fmt.Errorf("%w: %v", ErrMappingFailed, err)
	}
	if len(data) != a.o.BlockSize {
		return Block{}, fmt.Errorf("%w: mapped %d bytes, expected %d", ErrMappingFailed, len(data), a.o.BlockSize)
	}

	if reused {
		a.free = a.free[:len(a.free)-1]
	} else {
		a.offset += int64(a.o.BlockSize)
	}
	a.live++
	return Block{Data: data, Offset: off}, nil
}

// DeallocateBlock implements BlockAllocator.
func (a *MirrorAllocator) DeallocateBlock(b Block) {
	if b.Data == nil {
		return
	}
	a.live--
	a.free = append(a.free, b.Offset)
}

// Flush implements BlockAllocator.
func (a *MirrorAllocator) Flush(ctx context.Context, ranges []FlushRange) error {
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.Len() <= 0 {
			continue
		}
		if _, err := a.remote.WriteAt(r.Block.Data[r.Start:r.End], r.Block.Offset+int64(r.Start)); err != nil {
			return fmt.Errorf("svo: mirror write at %d: %w", r.Block.Offset+int64(r.Start), err)
		}
	}
	return nil
}

// Live returns the number of blocks currently allocated.
func (a *MirrorAllocator) Live() int { return a.live }
