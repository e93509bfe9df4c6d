package svo

import (
	"encoding/binary"
	"io"

	"github.com/golang/snappy"
)

// WriterOptions define snapshot writer specific options.
type WriterOptions struct {
	// The compression codec to use for chunk frames.
	// Default: SnappyCompression.
	Compression Compression
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}
	return &oo
}

// snapshotHeader captures the tree and arena state next to the chunk data.
type snapshotHeader struct {
	VoxelSize uint32
	GridSize  uint32
	SlotSize  uint32
	BlockSize uint32

	Root      Handle
	RootOcc   uint8
	RootValue []byte

	Free       Handle
	NumFree    uint32
	Live       uint32
	CarveChunk uint32
	CarveSlot  uint32
	Chunks     uint32
}

// Writer writes a snapshot: a header, one frame per arena chunk, a frame
// index and a footer.
type Writer struct {
	w io.Writer
	o *WriterOptions

	offset int64   // bytes written so far
	index  []int64 // frame offsets

	snp []byte // snappy buffer
	tmp []byte // scratch buffer
}

// NewWriter wraps a writer and returns a Writer.
func NewWriter(w io.Writer, o *WriterOptions) *Writer {
	return &Writer{
		w:   w,
		o:   o.norm(),
		tmp: make([]byte, 2*binary.MaxVarintLen64),
	}
}

func (w *Writer) writeHeader(h *snapshotHeader) error {
	body := make([]byte, 0, 12*binary.MaxVarintLen32+len(h.RootValue))
	for _, v := range []uint32{
		h.VoxelSize, h.GridSize, h.SlotSize, h.BlockSize,
		uint32(h.Root), uint32(h.RootOcc),
		uint32(h.Free), h.NumFree, h.Live, h.CarveChunk, h.CarveSlot, h.Chunks,
	} {
		body = binary.AppendUvarint(body, uint64(v))
	}
	body = append(body, h.RootValue...)

	buf := append(make([]byte, 0, len(magic)+1+binary.MaxVarintLen64+len(body)), magic...)
	buf = append(buf, snapshotVersion)
	buf = binary.AppendUvarint(buf, uint64(len(body)))
	buf = append(buf, body...)
	return w.writeRaw(buf)
}

// Append writes a chunk frame.
func (w *Writer) Append(chunk []byte) error {
	if w.tmp == nil {
		return ErrClosed
	}

	frame := chunk
	codec := byte(frameNoCompression)
	if w.o.Compression == SnappyCompression {
		w.snp = snappy.Encode(w.snp[:cap(w.snp)], chunk)
		if len(w.snp) < len(chunk)-len(chunk)/4 {
			frame, codec = w.snp, frameSnappyCompression
		}
	}

	w.index = append(w.index, w.offset)
	if err := w.writeRaw(frame); err != nil {
		return err
	}
	w.tmp[0] = codec
	return w.writeRaw(w.tmp[:1])
}

// Close writes the frame index and footer.
func (w *Writer) Close() error {
	if w.tmp == nil {
		return ErrClosed
	}

	indexOffset := w.offset
	if err := w.writeIndex(); err != nil {
		return err
	}
	if err := w.writeFooter(indexOffset); err != nil {
		return err
	}
	w.tmp = nil
	return nil
}

func (w *Writer) writeIndex() error {
	var prev int64
	for _, off := range w.index {
		n := binary.PutUvarint(w.tmp, uint64(off-prev))
		prev = off

		if err := w.writeRaw(w.tmp[:n]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeFooter(indexOffset int64) error {
	binary.LittleEndian.PutUint64(w.tmp[0:], uint64(indexOffset))
	if err := w.writeRaw(w.tmp[:8]); err != nil {
		return err
	}
	return w.writeRaw(magic)
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.offset += int64(n)
	return err
}

// --------------------------------------------------------------------

// Snapshot writes the complete tree, including its arena layout, to w. It
// does not flush or reset the change set.
func (t *Octree[T]) Snapshot(w io.Writer, o *WriterOptions) error {
	if t.closed {
		return ErrClosed
	}

	sw := NewWriter(w, o)
	if err := sw.writeHeader(t.snapshotHeader()); err != nil {
		return err
	}

	for _, b := range t.arena.chunks {
		if err := sw.Append(b.Data); err != nil {
			return err
		}
	}
	return sw.Close()
}

func (t *Octree[T]) snapshotHeader() *snapshotHeader {
	a := t.arena
	rootValue := make([]byte, t.vt.Size())
	t.vt.Encode(rootValue, t.rootValue)

	return &snapshotHeader{
		VoxelSize:  uint32(t.vt.Size()),
		GridSize:   t.o.GridSize,
		SlotSize:   uint32(a.slotSize),
		BlockSize:  uint32(a.alloc.BlockSize()),
		Root:       t.root,
		RootOcc:    t.rootOcc,
		RootValue:  rootValue,
		Free:       a.free,
		NumFree:    uint32(a.numFree),
		Live:       uint32(a.live),
		CarveChunk: a.carveChunk,
		CarveSlot:  a.carveSlot,
		Chunks:     uint32(len(a.chunks)),
	}
}
