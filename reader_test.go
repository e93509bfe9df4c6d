package svo_test

import (
	"bytes"
	"math/rand"

	"github.com/bsm/svo"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	var source *svo.Octree[uint16]
	var subject *svo.Reader
	var snapshot []byte

	hostAlloc := func() *svo.HostAllocator {
		return svo.NewHostAllocator(&svo.HostAllocatorOptions{BlockSize: 4096})
	}

	BeforeEach(func() {
		var err error
		source, snapshot, err = seedSnapshot(hostAlloc(), 32, 3000, nil)
		Expect(err).NotTo(HaveOccurred())

		subject, err = svo.NewReader(bytes.NewReader(snapshot), int64(len(snapshot)))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should init", func() {
		Expect(subject.NumChunks()).To(Equal(source.Arena().NumChunks()))
		Expect(subject.NumChunks()).To(BeNumerically(">", 1))
		Expect(subject.BlockSize()).To(Equal(4096))
		Expect(subject.GridSize()).To(Equal(uint32(32)))
	})

	It("should read chunks", func() {
		dst := make([]byte, 4096)
		Expect(subject.ReadChunk(0, dst)).To(Succeed())

		root := source.Root().Handle()
		chunk, slot := root.Split(source.Arena().SlotBits())
		if chunk == 0 {
			off := int(slot) * source.Arena().SlotSize()
			Expect(dst[off : off+source.Arena().SlotSize()]).To(Equal(source.Arena().Slot(root)))
		}

		Expect(subject.ReadChunk(subject.NumChunks(), dst)).To(MatchError(ContainSubstring("out of range")))
		Expect(subject.ReadChunk(0, dst[:100])).To(MatchError(ContainSubstring("expected 4096")))
	})

	It("should restore", func() {
		tree, err := svo.Restore(subject, hostAlloc(), svo.Uint16, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(tree.GridSize()).To(Equal(uint32(32)))
		Expect(tree.Stats().Nodes).To(Equal(source.Stats().Nodes))
		Expect(tree.Arena().Stats().Live).To(Equal(source.Arena().Live()))
		Expect(tree.Root().Value()).To(Equal(source.Root().Value()))
		Expect(tree.Arena().Changes().Len()).To(Equal(tree.Arena().NumChunks()))

		for x := uint32(0); x < 32; x++ {
			for y := uint32(0); y < 32; y++ {
				for z := uint32(0); z < 32; z++ {
					Expect(tree.Get(x, y, z)).To(Equal(source.Get(x, y, z)), "at %d,%d,%d", x, y, z)
				}
			}
		}
	})

	It("should continue where the snapshot left off", func() {
		tree, err := svo.Restore(subject, hostAlloc(), svo.Uint16, nil)
		Expect(err).NotTo(HaveOccurred())

		rnd := rand.New(rand.NewSource(5))
		for i := 0; i < 500; i++ {
			x, y, z := uint32(rnd.Intn(32)), uint32(rnd.Intn(32)), uint32(rnd.Intn(32))
			v := uint16(rnd.Intn(3))
			Expect(source.Set(x, y, z, v)).To(Succeed())
			Expect(tree.Set(x, y, z, v)).To(Succeed())
		}
		Expect(tree.Stats().Nodes).To(Equal(tree.Arena().Live()))
		Expect(tree.Stats().Nodes).To(Equal(source.Stats().Nodes))
		Expect(tree.Arena().NumChunks()).To(Equal(source.Arena().NumChunks()))
	})

	It("should restore empty trees", func() {
		tree, err := svo.New(hostAlloc(), svo.Uint16, &svo.Options{GridSize: 8})
		Expect(err).NotTo(HaveOccurred())
		Expect(tree.Mut().Fill(4)).To(Succeed())

		buf := new(bytes.Buffer)
		Expect(tree.Snapshot(buf, nil)).To(Succeed())

		r, err := svo.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.NumChunks()).To(Equal(0))

		restored, err := svo.Restore(r, hostAlloc(), svo.Uint16, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(restored.Root().IsVirtual()).To(BeTrue())
		Expect(restored.Get(7, 7, 7)).To(Equal(uint16(4)))
		Expect(restored.IsOccupied(0, 0, 0)).To(BeTrue())
	})

	It("should restore uncompressed snapshots", func() {
		_, raw, err := seedSnapshot(hostAlloc(), 32, 3000, &svo.WriterOptions{Compression: svo.NoCompression})
		Expect(err).NotTo(HaveOccurred())
		Expect(len(raw)).To(BeNumerically(">", len(snapshot)))

		r, err := svo.NewReader(bytes.NewReader(raw), int64(len(raw)))
		Expect(err).NotTo(HaveOccurred())
		tree, err := svo.Restore(r, hostAlloc(), svo.Uint16, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(tree.Stats().Nodes).To(Equal(source.Stats().Nodes))
	})

	It("should reject mismatching allocators and types", func() {
		_, err := svo.Restore(subject, svo.NewHostAllocator(&svo.HostAllocatorOptions{BlockSize: 8192}), svo.Uint16, nil)
		Expect(err).To(MatchError("svo: snapshot block size 4096, allocator uses 8192"))

		_, err = svo.Restore(subject, hostAlloc(), svo.Uint8, nil)
		Expect(err).To(MatchError("svo: snapshot voxel size 2, expected 1"))
	})

	It("should restore wide voxel types", func() {
		alloc := hostAlloc()
		tree, err := svo.New[wideVoxel](alloc, wideVoxelType{}, &svo.Options{GridSize: 8})
		Expect(err).NotTo(HaveOccurred())
		Expect(tree.Mut().Fill(wideVoxel{7})).To(Succeed())
		Expect(tree.Set(1, 1, 1, wideVoxel{1, 2, 3})).To(Succeed())
		Expect(tree.Set(6, 2, 5, wideVoxel{159: 9})).To(Succeed())

		buf := new(bytes.Buffer)
		Expect(tree.Snapshot(buf, nil)).To(Succeed())

		r, err := svo.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.VoxelSize()).To(Equal(160))

		restored, err := svo.Restore[wideVoxel](r, hostAlloc(), wideVoxelType{}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(restored.Root().Value()).To(Equal(tree.Root().Value()))
		Expect(restored.Stats().Nodes).To(Equal(tree.Stats().Nodes))
		Expect(restored.Get(1, 1, 1)).To(Equal(wideVoxel{1, 2, 3}))
		Expect(restored.Get(6, 2, 5)).To(Equal(wideVoxel{159: 9}))
		Expect(restored.Get(4, 4, 4)).To(Equal(wideVoxel{7}))
	})

	DescribeTable("should reject out-of-range header state",
		func(fn func(*svo.SnapshotHeader)) {
			buf := new(bytes.Buffer)
			Expect(svo.SnapshotWithHeader(source, buf, fn)).To(Succeed())

			r, err := svo.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			Expect(err).NotTo(HaveOccurred())

			_, err = svo.Restore(r, hostAlloc(), svo.Uint16, nil)
			Expect(err).To(MatchError(ContainSubstring("bad snapshot header")))
		},
		Entry("root beyond chunks", func(h *svo.SnapshotHeader) {
			h.Root = svo.MakeHandle(h.Chunks+3, 0, source.Arena().SlotBits())
		}),
		Entry("root beyond carve cursor", func(h *svo.SnapshotHeader) {
			h.Root = svo.MakeHandle(h.CarveChunk, h.CarveSlot, source.Arena().SlotBits())
		}),
		Entry("free beyond chunks", func(h *svo.SnapshotHeader) {
			h.Free = svo.MakeHandle(h.Chunks, 1, source.Arena().SlotBits())
			h.NumFree = 1
		}),
		Entry("carve slot beyond chunk", func(h *svo.SnapshotHeader) {
			h.CarveSlot = source.Arena().SlotsPerChunk()
		}),
		Entry("carve chunk beyond chunks", func(h *svo.SnapshotHeader) {
			h.CarveChunk = h.Chunks + 1
		}),
		Entry("more live slots than carved", func(h *svo.SnapshotHeader) {
			h.Live = h.Chunks*source.Arena().SlotsPerChunk() + 1
		}),
	)

	It("should reject truncated headers", func() {
		tree, err := svo.New(hostAlloc(), svo.Uint16, &svo.Options{GridSize: 8})
		Expect(err).NotTo(HaveOccurred())

		buf := new(bytes.Buffer)
		Expect(tree.Snapshot(buf, nil)).To(Succeed())
		data := buf.Bytes()

		// claim a header body longer than the snapshot
		data[9] = 0x7f
		_, err = svo.NewReader(bytes.NewReader(data), int64(len(data)))
		Expect(err).To(MatchError(ContainSubstring("bad snapshot header")))
	})

	It("should reject bad input", func() {
		junk := bytes.Repeat([]byte("not a snapshot"), 8)
		_, err := svo.NewReader(bytes.NewReader(junk), int64(len(junk)))
		Expect(err).To(MatchError("svo: bad magic byte sequence"))

		_, err = svo.NewReader(bytes.NewReader(snapshot[:10]), 10)
		Expect(err).To(MatchError("svo: bad magic byte sequence"))
	})
})

// seedSnapshot populates a grid with n random voxels and returns the tree
// along with its snapshot.
func seedSnapshot(alloc svo.BlockAllocator, gridSize uint32, n int, o *svo.WriterOptions) (*svo.Octree[uint16], []byte, error) {
	tree, err := svo.New(alloc, svo.Uint16, &svo.Options{GridSize: gridSize})
	if err != nil {
		return nil, nil, err
	}

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < n; i++ {
		x, y, z := uint32(rnd.Intn(int(gridSize))), uint32(rnd.Intn(int(gridSize))), uint32(rnd.Intn(int(gridSize)))
		if err := tree.Set(x, y, z, uint16(rnd.Intn(4))); err != nil {
			return nil, nil, err
		}
	}

	buf := new(bytes.Buffer)
	if err := tree.Snapshot(buf, o); err != nil {
		return nil, nil, err
	}
	return tree, buf.Bytes(), nil
}

// wideVoxel is wider than any fixed header buffer.
type wideVoxel [160]byte

type wideVoxelType struct{}

func (wideVoxelType) Size() int        { return 160 }
func (wideVoxelType) Empty() wideVoxel { return wideVoxel{} }
func (wideVoxelType) Avg(values [8]wideVoxel) wideVoxel {
	for _, v := range values {
		if v != (wideVoxel{}) {
			return v
		}
	}
	return wideVoxel{}
}
func (wideVoxelType) Encode(dst []byte, v wideVoxel) { copy(dst, v[:]) }
func (wideVoxelType) Decode(src []byte) wideVoxel {
	var v wideVoxel
	copy(v[:], src)
	return v
}
