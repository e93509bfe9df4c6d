package svo_test

import (
	"context"
	"errors"

	"github.com/bsm/svo"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Arena", func() {
	var subject *svo.Arena
	var alloc *svo.HostAllocator
	var ctx = context.Background()

	h := func(chunk, slot uint32) svo.Handle { return svo.MakeHandle(chunk, slot, 2) }

	BeforeEach(func() {
		var err error
		alloc = svo.NewHostAllocator(&svo.HostAllocatorOptions{BlockSize: 256})
		subject, err = svo.NewArena(alloc, 50, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should init", func() {
		Expect(subject.SlotSize()).To(Equal(64))
		Expect(subject.SlotsPerChunk()).To(Equal(uint32(4)))
		Expect(subject.SlotBits()).To(Equal(uint(2)))
		Expect(subject.NumChunks()).To(Equal(0))
	})

	It("should reject oversized slots", func() {
		_, err := svo.NewArena(alloc, 257, nil)
		Expect(err).To(MatchError("svo: slot size 512 exceeds block size 256"))
	})

	It("should carve slots in order", func() {
		for i := uint32(0); i < 5; i++ {
			Expect(subject.Alloc()).To(Equal(h(i/4, i%4)))
		}
		Expect(subject.NumChunks()).To(Equal(2))
		Expect(subject.Live()).To(Equal(5))
		Expect(alloc.Live()).To(Equal(2))
	})

	It("should reuse freed slots", func() {
		for i := 0; i < 4; i++ {
			_, err := subject.Alloc()
			Expect(err).NotTo(HaveOccurred())
		}
		subject.Free(h(0, 1))
		subject.Free(h(0, 2))
		Expect(subject.Live()).To(Equal(2))

		Expect(subject.Alloc()).To(Equal(h(0, 2)))
		Expect(subject.Alloc()).To(Equal(h(0, 1)))
		Expect(subject.Alloc()).To(Equal(h(1, 0)))
		Expect(subject.NumChunks()).To(Equal(2))
	})

	It("should expose slot memory", func() {
		a, _ := subject.Alloc()
		b, _ := subject.Alloc()
		Expect(subject.Slot(a)).To(HaveLen(64))

		copy(subject.Slot(a), "alpha")
		copy(subject.Slot(b), "beta")
		Expect(string(subject.Slot(a)[:5])).To(Equal("alpha"))
		Expect(string(subject.Slot(b)[:4])).To(Equal("beta"))
	})

	It("should reserve", func() {
		Expect(subject.Reserve(9)).To(Succeed())
		Expect(subject.NumChunks()).To(Equal(3))
		Expect(subject.Stats().Uncarved).To(Equal(12))

		for i := 0; i < 9; i++ {
			_, err := subject.Alloc()
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(subject.NumChunks()).To(Equal(3))

		Expect(subject.Reserve(3)).To(Succeed())
		Expect(subject.NumChunks()).To(Equal(3))
	})

	It("should count free slots towards reservations", func() {
		for i := 0; i < 4; i++ {
			_, err := subject.Alloc()
			Expect(err).NotTo(HaveOccurred())
		}
		subject.Free(h(0, 0))
		subject.Free(h(0, 3))

		Expect(subject.Reserve(2)).To(Succeed())
		Expect(subject.NumChunks()).To(Equal(1))
	})

	It("should report stats", func() {
		for i := 0; i < 3; i++ {
			_, err := subject.Alloc()
			Expect(err).NotTo(HaveOccurred())
		}
		subject.Free(h(0, 1))
		subject.Changed(h(0, 2))

		Expect(subject.Stats()).To(Equal(svo.ArenaStats{
			Chunks:        1,
			SlotSize:      64,
			SlotsPerChunk: 4,
			Live:          2,
			Free:          1,
			Uncarved:      1,
			Dirty:         1,
		}))
	})

	It("should wrap allocator errors", func() {
		alloc = svo.NewHostAllocator(&svo.HostAllocatorOptions{BlockSize: 256, MaxBlocks: 1})
		subject, _ = svo.NewArena(alloc, 64, nil)
		for i := 0; i < 4; i++ {
			_, err := subject.Alloc()
			Expect(err).NotTo(HaveOccurred())
		}

		_, err := subject.Alloc()
		Expect(errors.Is(err, svo.ErrTooManyObjects)).To(BeTrue())
		Expect(err).To(MatchError("svo: allocate chunk 1: svo: too many objects"))
		Expect(subject.Live()).To(Equal(4))
		Expect(subject.NumChunks()).To(Equal(1))
	})

	It("should keep chunks acquired before a failed reservation", func() {
		alloc = svo.NewHostAllocator(&svo.HostAllocatorOptions{BlockSize: 256, MaxBytes: 512})
		subject, _ = svo.NewArena(alloc, 64, nil)

		err := subject.Reserve(9)
		Expect(errors.Is(err, svo.ErrOutOfHostMemory)).To(BeTrue())
		Expect(subject.NumChunks()).To(Equal(2))
		Expect(subject.Live()).To(Equal(0))
	})

	It("should mark changes", func() {
		a, _ := subject.Alloc()
		b, _ := subject.Alloc()
		subject.Changed(b)
		subject.ChangedRange(a, 2)

		start, end, ok := subject.Changes().Range(0)
		Expect(ok).To(BeTrue())
		Expect([]uint32{start, end}).To(Equal([]uint32{0, 2}))
	})

	It("should flush dirty ranges", func() {
		remote := new(remoteBuffer)
		subject, _ = svo.NewArena(svo.NewMirrorAllocator(remote, &svo.MirrorAllocatorOptions{BlockSize: 256}), 64, nil)

		for i := 0; i < 6; i++ {
			_, err := subject.Alloc()
			Expect(err).NotTo(HaveOccurred())
		}
		copy(subject.Slot(h(0, 1)), "one")
		subject.Changed(h(0, 1))
		copy(subject.Slot(h(1, 1)), "five")
		subject.Changed(h(1, 1))

		Expect(subject.Flush(ctx)).To(Succeed())
		Expect(remote.writes).To(Equal([]remoteWrite{
			{Offset: 64, Len: 64},
			{Offset: 320, Len: 64},
		}))
		Expect(string(remote.data[64:67])).To(Equal("one"))
		Expect(string(remote.data[320:324])).To(Equal("five"))
		Expect(subject.Changes().Len()).To(Equal(0))

		// nothing left to flush
		Expect(subject.Flush(ctx)).To(Succeed())
		Expect(remote.writes).To(HaveLen(2))
	})

	It("should retain changes when flush fails", func() {
		remote := &remoteBuffer{err: errRemote}
		subject, _ = svo.NewArena(svo.NewMirrorAllocator(remote, &svo.MirrorAllocatorOptions{BlockSize: 256}), 64, nil)

		a, _ := subject.Alloc()
		subject.Changed(a)

		err := subject.Flush(ctx)
		Expect(errors.Is(err, errRemote)).To(BeTrue())
		Expect(subject.Changes().Len()).To(Equal(1))

		remote.err = nil
		Expect(subject.Flush(ctx)).To(Succeed())
		Expect(subject.Changes().Len()).To(Equal(0))
	})

	It("should close", func() {
		_, err := subject.Alloc()
		Expect(err).NotTo(HaveOccurred())
		Expect(alloc.Live()).To(Equal(1))

		Expect(subject.Close()).To(Succeed())
		Expect(alloc.Live()).To(Equal(0))
		Expect(subject.Close()).To(MatchError(svo.ErrClosed))

		_, err = subject.Alloc()
		Expect(err).To(MatchError(svo.ErrClosed))
		Expect(subject.Flush(ctx)).To(MatchError(svo.ErrClosed))
	})
})
