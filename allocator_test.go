package svo_test

import (
	"context"
	"errors"

	"github.com/bsm/svo"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("HostAllocator", func() {
	var subject *svo.HostAllocator

	BeforeEach(func() {
		subject = svo.NewHostAllocator(&svo.HostAllocatorOptions{BlockSize: 1000, MaxBlocks: 2})
	})

	It("should round block sizes", func() {
		Expect(subject.BlockSize()).To(Equal(1024))
		Expect(svo.NewHostAllocator(nil).BlockSize()).To(Equal(svo.DefaultBlockSize))
	})

	It("should allocate and recycle offsets", func() {
		b1, err := subject.AllocateBlock()
		Expect(err).NotTo(HaveOccurred())
		Expect(b1.Data).To(HaveLen(1024))
		Expect(b1.Offset).To(Equal(int64(0)))

		b2, err := subject.AllocateBlock()
		Expect(err).NotTo(HaveOccurred())
		Expect(b2.Offset).To(Equal(int64(1024)))

		_, err = subject.AllocateBlock()
		Expect(err).To(MatchError(svo.ErrTooManyObjects))

		subject.DeallocateBlock(b1)
		Expect(subject.Live()).To(Equal(1))

		b3, err := subject.AllocateBlock()
		Expect(err).NotTo(HaveOccurred())
		Expect(b3.Offset).To(Equal(int64(0)))
	})

	It("should enforce memory limits", func() {
		subject = svo.NewHostAllocator(&svo.HostAllocatorOptions{BlockSize: 1024, MaxBytes: 1500})
		_, err := subject.AllocateBlock()
		Expect(err).NotTo(HaveOccurred())
		_, err = subject.AllocateBlock()
		Expect(err).To(MatchError(svo.ErrOutOfHostMemory))
	})

	It("should flush", func() {
		Expect(subject.Flush(context.Background(), nil)).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(subject.Flush(ctx, nil)).To(MatchError(context.Canceled))
	})
})

var _ = Describe("MirrorAllocator", func() {
	var subject *svo.MirrorAllocator
	var remote *remoteBuffer

	BeforeEach(func() {
		remote = new(remoteBuffer)
		subject = svo.NewMirrorAllocator(remote, &svo.MirrorAllocatorOptions{BlockSize: 128, Capacity: 256})
	})

	It("should allocate within capacity", func() {
		b1, err := subject.AllocateBlock()
		Expect(err).NotTo(HaveOccurred())
		b2, err := subject.AllocateBlock()
		Expect(err).NotTo(HaveOccurred())
		Expect([]int64{b1.Offset, b2.Offset}).To(Equal([]int64{0, 128}))

		_, err = subject.AllocateBlock()
		Expect(err).To(MatchError(svo.ErrOutOfDeviceMemory))

		subject.DeallocateBlock(b2)
		b3, err := subject.AllocateBlock()
		Expect(err).NotTo(HaveOccurred())
		Expect(b3.Offset).To(Equal(int64(128)))
		Expect(subject.Live()).To(Equal(2))
	})

	It("should report mapping failures", func() {
		errMap := errors.New("map failed")
		subject = svo.NewMirrorAllocator(remote, &svo.MirrorAllocatorOptions{
			BlockSize: 128,
			Map:       func(int64, int) ([]byte, error) { return nil, errMap },
		})
		_, err := subject.AllocateBlock()
		Expect(errors.Is(err, svo.ErrMappingFailed)).To(BeTrue())
		Expect(err).To(MatchError("svo: block mapping failed: map failed"))

		subject = svo.NewMirrorAllocator(remote, &svo.MirrorAllocatorOptions{
			BlockSize: 128,
			Map:       func(int64, int) ([]byte, error) { return make([]byte, 64), nil },
		})
		_, err = subject.AllocateBlock()
		Expect(errors.Is(err, svo.ErrMappingFailed)).To(BeTrue())
		Expect(subject.Live()).To(Equal(0))
	})

	It("should write only the given ranges", func() {
		b1, _ := subject.AllocateBlock()
		b2, _ := subject.AllocateBlock()
		copy(b1.Data[16:], "foo")
		copy(b2.Data[32:], "bar")

		Expect(subject.Flush(context.Background(), []svo.FlushRange{
			{Block: b1, Start: 16, End: 32},
			{Block: b2, Start: 32, End: 32},
			{Block: b2, Start: 32, End: 48},
		})).To(Succeed())
		Expect(remote.writes).To(Equal([]remoteWrite{
			{Offset: 16, Len: 16},
			{Offset: 160, Len: 16},
		}))
		Expect(string(remote.data[16:19])).To(Equal("foo"))
		Expect(string(remote.data[160:163])).To(Equal("bar"))
	})
})
