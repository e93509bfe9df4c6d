package svo

import "time"

// ArenaMetrics receives arena events. A nil ArenaMetrics disables
// collection entirely. See the metrics/prometheus package for an
// implementation.
type ArenaMetrics interface {
	// ObserveChunkAllocated records a chunk acquired from the allocator.
	ObserveChunkAllocated(bytes int)
	// ObserveAllocFailure records a failed chunk acquisition.
	ObserveAllocFailure(err error)
	// ObserveLiveSlots records the current number of live slots.
	ObserveLiveSlots(n int)
	// ObserveFlush records a completed flush.
	ObserveFlush(chunks, bytes int, d time.Duration)
}
