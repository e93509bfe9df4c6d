package svo

import "encoding/binary"

var byteOrder = binary.LittleEndian

// Node slot layout:
//
//	+-----------------------+----------+-----------+--------------------+----------------------+
//	| children (8x4 bytes)  | freemask | occupancy | extended (8 bytes) | values (8 x size(T)) |
//	+-----------------------+----------+-----------+--------------------+----------------------+
//
// The first four bytes double as the free list link once a slot is freed.
const (
	nodeChildrenOff  = 0
	nodeFreemaskOff  = 32
	nodeOccupancyOff = 33
	nodeExtendedOff  = 34
	nodeValuesOff    = 42
)

func nodeSize(valueSize int) int { return nodeValuesOff + 8*valueSize }

// node is the decoded form of a node slot.
type node[T comparable] struct {
	children  [8]Handle // valid where freemask is set
	freemask  uint8     // corners with an allocated child
	occupancy uint8     // corners that are not empty
	extended  [8]uint8  // occupancy of each corner's child
	values    [8]T      // aggregate value per corner
}

// uniformNode returns a node without children where every corner holds v.
func uniformNode[T comparable](v, empty T) node[T] {
	mask := uniformMask(v != empty)
	n := node[T]{occupancy: mask}
	for c := range n.children {
		n.children[c] = None
		n.extended[c] = mask
		n.values[c] = v
	}
	return n
}

func (n *node[T]) hasChild(c uint8) bool { return n.freemask&(1<<c) != 0 }

func (n *node[T]) isUniform(v T) bool {
	if n.freemask != 0 {
		return false
	}
	for _, w := range n.values {
		if w != v {
			return false
		}
	}
	return true
}

func uniformMask(occupied bool) uint8 {
	if occupied {
		return 0xff
	}
	return 0
}

func setBit(mask *uint8, c uint8, on bool) {
	if on {
		*mask |= 1 << c
	} else {
		*mask &^= 1 << c
	}
}

// --------------------------------------------------------------------

// nodeCodec reads and writes nodes in arena slots.
type nodeCodec[T comparable] struct {
	arena *Arena
	vt    VoxelType[T]
	size  int
}

func (nc nodeCodec[T]) load(h Handle) node[T] {
	slot := nc.arena.Slot(h)

	var n node[T]
	for c := 0; c < 8; c++ {
		n.children[c] = Handle(byteOrder.Uint32(slot[nodeChildrenOff+4*c:]))
		n.values[c] = nc.vt.Decode(slot[nodeValuesOff+nc.size*c:])
	}
	n.freemask = slot[nodeFreemaskOff]
	n.occupancy = slot[nodeOccupancyOff]
	copy(n.extended[:], slot[nodeExtendedOff:nodeExtendedOff+8])
	return n
}

// store writes n into the slot h and marks it changed.
func (nc nodeCodec[T]) store(h Handle, n *node[T]) {
	slot := nc.arena.Slot(h)
	for c := 0; c < 8; c++ {
		byteOrder.PutUint32(slot[nodeChildrenOff+4*c:], uint32(n.children[c]))
		nc.vt.Encode(slot[nodeValuesOff+nc.size*c:], n.values[c])
	}
	slot[nodeFreemaskOff] = n.freemask
	slot[nodeOccupancyOff] = n.occupancy
	copy(slot[nodeExtendedOff:nodeExtendedOff+8], n.extended[:])
	nc.arena.Changed(h)
}

func (nc nodeCodec[T]) freemask(h Handle) uint8 {
	return nc.arena.Slot(h)[nodeFreemaskOff]
}

func (nc nodeCodec[T]) occupancy(h Handle) uint8 {
	return nc.arena.Slot(h)[nodeOccupancyOff]
}

func (nc nodeCodec[T]) child(h Handle, c uint8) Handle {
	return Handle(byteOrder.Uint32(nc.arena.Slot(h)[nodeChildrenOff+4*int(c):]))
}

func (nc nodeCodec[T]) value(h Handle, c uint8) T {
	return nc.vt.Decode(nc.arena.Slot(h)[nodeValuesOff+nc.size*int(c):])
}
