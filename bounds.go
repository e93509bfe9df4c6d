package svo

import "math/bits"

// MaxWidth is the width of the root cube in fixed-point units.
const MaxWidth uint32 = 1 << 31

// Corner bits select the upper half of an axis.
const (
	cornerX = 1 << iota
	cornerY
	cornerZ
)

// Relation describes how two Bounds relate to each other.
type Relation uint8

// Possible relations.
const (
	Disjoint Relation = iota
	Contain
	Intersect
)

func (r Relation) String() string {
	switch r {
	case Disjoint:
		return "disjoint"
	case Contain:
		return "contain"
	case Intersect:
		return "intersect"
	}
	return "unknown"
}

// Bounds is an axis-aligned cube in fixed-point unit space, where the root
// spans [0, MaxWidth) on every axis.
type Bounds struct {
	X, Y, Z uint32
	Width   uint32
}

// RootBounds returns the bounds of the whole tree.
func RootBounds() Bounds { return Bounds{Width: MaxWidth} }

// Half returns the octant of b selected by corner.
func (b Bounds) Half(corner uint8) Bounds {
	w := b.Width / 2
	h := Bounds{X: b.X, Y: b.Y, Z: b.Z, Width: w}
	if corner&cornerX != 0 {
		h.X += w
	}
	if corner&cornerY != 0 {
		h.Y += w
	}
	if corner&cornerZ != 0 {
		h.Z += w
	}
	return h
}

// Depth returns the tree depth the bounds correspond to.
func (b Bounds) Depth() int {
	return bits.TrailingZeros32(MaxWidth) - bits.TrailingZeros32(b.Width)
}

// Volume returns the cube volume in fixed-point units. Widths are powers of
// two, so the result is exact.
func (b Bounds) Volume() float64 {
	w := float64(b.Width)
	return w * w * w
}

// Contains returns true if the fixed-point point lies within b.
func (b Bounds) Contains(x, y, z uint32) bool {
	return within(x, b.X, b.Width) && within(y, b.Y, b.Width) && within(z, b.Z, b.Width)
}

// Intersects tests o against b. It returns Contain when o lies entirely
// within b, Intersect on partial overlap and Disjoint otherwise.
func (b Bounds) Intersects(o Bounds) Relation {
	contained := true
	for _, ax := range [3][2]uint32{{b.X, o.X}, {b.Y, o.Y}, {b.Z, o.Z}} {
		bmin, omin := uint64(ax[0]), uint64(ax[1])
		bmax, omax := bmin+uint64(b.Width), omin+uint64(o.Width)
		if omin >= bmax || bmin >= omax {
			return Disjoint
		}
		if omin < bmin || omax > bmax {
			contained = false
		}
	}
	if contained {
		return Contain
	}
	return Intersect
}

// Grid converts b to integer coordinates of a grid with gridSize cells per
// axis. Bounds smaller than a grid cell report a zero width.
func (b Bounds) Grid(gridSize uint32) (x, y, z, width uint32) {
	shift := uint(bits.TrailingZeros32(MaxWidth) - bits.TrailingZeros32(gridSize))
	return b.X >> shift, b.Y >> shift, b.Z >> shift, b.Width >> shift
}

func within(v, min, width uint32) bool {
	return uint64(v) >= uint64(min) && uint64(v) < uint64(min)+uint64(width)
}
