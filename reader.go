package svo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
)

// Reader reads chunk frames from a snapshot.
type Reader struct {
	r io.ReaderAt

	header    snapshotHeader
	index     []int64 // frame offsets
	maxOffset int64
}

// NewReader opens a snapshot reader.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	if size < 2*int64(len(magic)) {
		return nil, errBadMagic
	}
	tmp := make([]byte, 16+binary.MaxVarintLen64)

	// read footer
	footerOffset := size - 16
	if _, err := r.ReadAt(tmp[:16], footerOffset); err != nil {
		return nil, err
	}
	if !bytes.Equal(tmp[8:16], magic) {
		return nil, errBadMagic
	}
	indexOffset := int64(binary.LittleEndian.Uint64(tmp[:8]))
	if indexOffset < 0 || indexOffset > footerOffset {
		return nil, errBadHeader
	}

	// read index
	var index []int64
	var off int64
	for pos := indexOffset; pos < footerOffset; {
		tmp = tmp[:binary.MaxVarintLen64]
		if x := footerOffset - pos; x < int64(len(tmp)) {
			tmp = tmp[:int(x)]
		}
		if _, err := r.ReadAt(tmp, pos); err != nil {
			return nil, err
		}

		u, n := binary.Uvarint(tmp)
		if n <= 0 {
			return nil, errBadHeader
		}
		pos += int64(n)
		off += int64(u)
		index = append(index, off)
	}

	header, err := readHeader(r, indexOffset)
	if err != nil {
		return nil, err
	}
	if int(header.Chunks) != len(index) {
		return nil, fmt.Errorf("%w: %d chunks, %d frames", errBadHeader, header.Chunks, len(index))
	}

	return &Reader{
		r:         r,
		header:    *header,
		index:     index,
		maxOffset: indexOffset,
	}, nil
}

func readHeader(r io.ReaderAt, limit int64) (*snapshotHeader, error) {
	prefix := int64(len(magic) + 1 + binary.MaxVarintLen64)
	if limit < prefix {
		prefix = limit
	}
	buf := make([]byte, prefix)
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	if len(buf) < len(magic)+1 || !bytes.Equal(buf[:len(magic)], magic) {
		return nil, errBadMagic
	}
	if buf[len(magic)] != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errBadHeader, buf[len(magic)])
	}

	size, n := binary.Uvarint(buf[len(magic)+1:])
	if n <= 0 {
		return nil, errBadHeader
	}
	offset := int64(len(magic) + 1 + n)
	if size > uint64(limit-offset) {
		return nil, fmt.Errorf("%w: header of %d bytes exceeds snapshot", errBadHeader, size)
	}

	buf = make([]byte, size)
	if _, err := r.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, err
	}

	var fields [12]uint32
	for i := range fields {
		u, n := binary.Uvarint(buf)
		if n <= 0 || u > 1<<32-1 {
			return nil, errBadHeader
		}
		fields[i] = uint32(u)
		buf = buf[n:]
	}

	h := &snapshotHeader{
		VoxelSize:  fields[0],
		GridSize:   fields[1],
		SlotSize:   fields[2],
		BlockSize:  fields[3],
		Root:       Handle(fields[4]),
		RootOcc:    uint8(fields[5]),
		Free:       Handle(fields[6]),
		NumFree:    fields[7],
		Live:       fields[8],
		CarveChunk: fields[9],
		CarveSlot:  fields[10],
		Chunks:     fields[11],
	}
	if int(h.VoxelSize) != len(buf) {
		return nil, errBadHeader
	}
	h.RootValue = append([]byte(nil), buf...)
	return h, nil
}

// validate checks the arena state against the chunk layout, so that no
// restored handle points outside the carved slots.
func (h *snapshotHeader) validate(slotBits uint, slotsPerChunk uint32) error {
	if h.CarveSlot >= slotsPerChunk || h.CarveChunk > h.Chunks || (h.CarveChunk == h.Chunks && h.CarveSlot != 0) {
		return fmt.Errorf("%w: carve cursor %d/%d beyond %d chunks", errBadHeader, h.CarveChunk, h.CarveSlot, h.Chunks)
	}

	carved := uint64(h.CarveChunk)*uint64(slotsPerChunk) + uint64(h.CarveSlot)
	if uint64(h.Live)+uint64(h.NumFree) > carved {
		return fmt.Errorf("%w: %d live and %d free slots of %d carved", errBadHeader, h.Live, h.NumFree, carved)
	}

	for _, x := range []Handle{h.Root, h.Free} {
		if x.IsNone() {
			continue
		}
		chunk, slot := x.Split(slotBits)
		if chunk >= h.Chunks || uint64(chunk)*uint64(slotsPerChunk)+uint64(slot) >= carved {
			return fmt.Errorf("%w: handle %d outside carved slots", errBadHeader, x)
		}
	}
	if h.Free.IsNone() != (h.NumFree == 0) {
		return fmt.Errorf("%w: inconsistent free list", errBadHeader)
	}
	return nil
}

// NumChunks returns the number of stored chunks.
func (r *Reader) NumChunks() int { return len(r.index) }

// BlockSize returns the chunk size the snapshot was taken with.
func (r *Reader) BlockSize() int { return int(r.header.BlockSize) }

// GridSize returns the grid size of the stored tree.
func (r *Reader) GridSize() uint32 { return r.header.GridSize }

// VoxelSize returns the encoded value size of the stored tree.
func (r *Reader) VoxelSize() int { return int(r.header.VoxelSize) }

// ReadChunk decodes the n-th chunk into dst, which must be exactly
// BlockSize bytes long.
func (r *Reader) ReadChunk(n int, dst []byte) error {
	if n < 0 || n >= len(r.index) {
		return fmt.Errorf("svo: chunk %d out of range", n)
	}
	if len(dst) != int(r.header.BlockSize) {
		return fmt.Errorf("svo: chunk buffer of %d bytes, expected %d", len(dst), r.header.BlockSize)
	}

	min := r.index[n]
	max := r.maxOffset
	if next := n + 1; next < len(r.index) {
		max = r.index[next]
	}
	if max <= min {
		return errBadHeader
	}

	raw := fetchBuffer(int(max - min))
	defer releaseBuffer(raw)

	if _, err := r.r.ReadAt(raw, min); err != nil {
		return err
	}

	var frame []byte
	switch cBitPos := len(raw) - 1; raw[cBitPos] {
	case frameNoCompression:
		frame = raw[:cBitPos]
	case frameSnappyCompression:
		sz, err := snappy.DecodedLen(raw[:cBitPos])
		if err != nil {
			return err
		}
		if sz != len(dst) {
			return fmt.Errorf("%w: chunk %d decodes to %d bytes", errBadHeader, n, sz)
		}
		if frame, err = snappy.Decode(dst, raw[:cBitPos]); err != nil {
			return err
		}
	default:
		return errBadCompression
	}

	if len(frame) != len(dst) {
		return fmt.Errorf("%w: chunk %d has %d bytes", errBadHeader, n, len(frame))
	}
	copy(dst, frame)
	return nil
}

// --------------------------------------------------------------------

// Restore rebuilds a tree from a snapshot over a fresh arena backed by
// alloc. Every restored chunk is marked dirty, so the next Flush mirrors
// the whole tree. Only Logger and Metrics are taken from o, the grid size
// is that of the snapshot.
func Restore[T comparable](r *Reader, alloc BlockAllocator, vt VoxelType[T], o *Options) (*Octree[T], error) {
	h := r.header
	if int(h.VoxelSize) != vt.Size() {
		return nil, fmt.Errorf("svo: snapshot voxel size %d, expected %d", h.VoxelSize, vt.Size())
	}
	if int(h.BlockSize) != alloc.BlockSize() {
		return nil, fmt.Errorf("svo: snapshot block size %d, allocator uses %d", h.BlockSize, alloc.BlockSize())
	}

	var oo Options
	if o != nil {
		oo = *o
	}
	oo.GridSize = h.GridSize
	norm := oo.norm()
	if norm.GridSize != h.GridSize {
		return nil, fmt.Errorf("%w: grid size %d", errBadHeader, h.GridSize)
	}

	t, err := New(alloc, vt, norm)
	if err != nil {
		return nil, err
	}
	a := t.arena
	if a.slotSize != int(h.SlotSize) {
		_ = t.Close()
		return nil, fmt.Errorf("svo: snapshot slot size %d, expected %d", h.SlotSize, a.slotSize)
	}
	if err := h.validate(a.slotBits, a.slotsPerChunk); err != nil {
		_ = t.Close()
		return nil, err
	}

	for i := 0; i < r.NumChunks(); i++ {
		if err := a.grow(); err != nil {
			_ = t.Close()
			return nil, err
		}
		if err := r.ReadChunk(i, a.chunks[i].Data); err != nil {
			_ = t.Close()
			return nil, err
		}
		a.ChangedRange(MakeHandle(uint32(i), 0, a.slotBits), a.slotsPerChunk)
	}

	a.free, a.numFree, a.live = h.Free, int(h.NumFree), int(h.Live)
	a.carveChunk, a.carveSlot = h.CarveChunk, h.CarveSlot
	t.root, t.rootOcc, t.rootValue = h.Root, h.RootOcc, vt.Decode(h.RootValue)
	return t, nil
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}
