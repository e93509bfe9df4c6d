package svo

import "math/bits"

// MaxPathDepth is the maximum number of corners an IndexPath can hold.
const MaxPathDepth = 21

// IndexPath is a stack of 3-bit corner codes describing a walk from the root
// to a node. A leading sentinel bit marks the top of the stack, so the empty
// path is 1 and a valid path is never 0.
type IndexPath uint64

// EmptyPath is the path to the root.
const EmptyPath IndexPath = 1

// IsEmpty returns true for the root path.
func (p IndexPath) IsEmpty() bool { return p <= EmptyPath }

// Len returns the number of corners on the path.
func (p IndexPath) Len() int {
	if p == 0 {
		return 0
	}
	return (bits.Len64(uint64(p)) - 1) / 3
}

// Count returns the number of nodes along the path, including the root.
func (p IndexPath) Count() int { return p.Len() + 1 }

// Push appends a corner. It panics when the path is already MaxPathDepth
// corners deep.
func (p IndexPath) Push(corner uint8) IndexPath {
	if p == 0 {
		p = EmptyPath
	}
	if p.Len() >= MaxPathDepth {
		panic("svo: index path overflow")
	}
	return p<<3 | IndexPath(corner&7)
}

// Pop removes the last corner. Popping the empty path returns the empty
// path.
func (p IndexPath) Pop() IndexPath {
	if p.IsEmpty() {
		return EmptyPath
	}
	return p >> 3
}

// Peek returns the last corner. The result is meaningless for the empty
// path.
func (p IndexPath) Peek() uint8 {
	if p.IsEmpty() {
		return 0
	}
	return uint8(p & 7)
}

// Corners returns the corners root first.
func (p IndexPath) Corners() []uint8 {
	n := p.Len()
	corners := make([]uint8, n)
	for i := 0; i < n; i++ {
		corners[i] = uint8(p>>(3*(n-1-i))) & 7
	}
	return corners
}

// Bounds replays the path from the root bounds.
func (p IndexPath) Bounds() Bounds {
	b := RootBounds()
	for _, c := range p.Corners() {
		b = b.Half(c)
	}
	return b
}
