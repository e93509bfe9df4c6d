package svo

// Accessor is a read-only cursor on a node or virtual region of an Octree.
// Accessors are invalidated by any mutation of the tree.
type Accessor[T comparable] struct {
	t         *Octree[T]
	h         Handle
	bounds    Bounds
	path      IndexPath
	occupancy uint8
	value     T
}

// Root returns an accessor for the root of the tree.
func (t *Octree[T]) Root() Accessor[T] {
	return Accessor[T]{
		t:         t,
		h:         t.root,
		bounds:    RootBounds(),
		path:      EmptyPath,
		occupancy: t.rootOcc,
		value:     t.rootValue,
	}
}

// At returns an accessor for the region addressed by path.
func (t *Octree[T]) At(path IndexPath) Accessor[T] {
	a := t.Root()
	for _, c := range path.Corners() {
		a = a.Child(c)
	}
	return a
}

// Child returns an accessor for the octant selected by corner. Children of
// a virtual accessor are virtual and carry the same value.
func (a Accessor[T]) Child(corner uint8) Accessor[T] {
	corner &= 7
	child := Accessor[T]{
		t:      a.t,
		h:      None,
		bounds: a.bounds.Half(corner),
		path:   a.path.Push(corner),
	}

	if a.h.IsNone() {
		child.value = a.value
		child.occupancy = uniformMask(a.value != a.t.vt.Empty())
		return child
	}

	nodes := a.t.nodes
	child.value = nodes.value(a.h, corner)
	if nodes.freemask(a.h)&(1<<corner) != 0 {
		child.h = nodes.child(a.h, corner)
		child.occupancy = nodes.arena.Slot(a.h)[nodeExtendedOff+int(corner)]
	} else {
		child.occupancy = uniformMask(nodes.occupancy(a.h)&(1<<corner) != 0)
	}
	return child
}

// IsVirtual returns true if the region has no node of its own and holds a
// single value.
func (a Accessor[T]) IsVirtual() bool { return a.h.IsNone() }

// IsVoxel returns true if the accessor addresses a single voxel.
func (a Accessor[T]) IsVoxel() bool { return a.path.Len() >= a.t.depth }

// Occupied returns true if any part of the region is not empty.
func (a Accessor[T]) Occupied() bool { return a.occupancy != 0 }

// Occupancy returns the per-corner occupancy mask of the region.
func (a Accessor[T]) Occupancy() uint8 { return a.occupancy }

// Value returns the region's value, the aggregate for non-virtual regions.
func (a Accessor[T]) Value() T { return a.value }

// Bounds returns the region's bounds in fixed-point unit space.
func (a Accessor[T]) Bounds() Bounds { return a.bounds }

// Path returns the region's index path.
func (a Accessor[T]) Path() IndexPath { return a.path }

// Handle returns the node handle, None for virtual regions.
func (a Accessor[T]) Handle() Handle { return a.h }

// Freemask returns the corners of the region that have their own node.
func (a Accessor[T]) Freemask() uint8 {
	if a.h.IsNone() {
		return 0
	}
	return a.t.nodes.freemask(a.h)
}

// --------------------------------------------------------------------

// MutAccessor addresses a region of an Octree by path for mutation. Unlike
// Accessor it stays valid across mutations.
type MutAccessor[T comparable] struct {
	t    *Octree[T]
	path IndexPath
}

// Mut returns a mutable accessor for the root of the tree.
func (t *Octree[T]) Mut() MutAccessor[T] {
	return MutAccessor[T]{t: t, path: EmptyPath}
}

// Child returns a mutable accessor for the octant selected by corner.
func (m MutAccessor[T]) Child(corner uint8) MutAccessor[T] {
	return MutAccessor[T]{t: m.t, path: m.path.Push(corner)}
}

// Path returns the addressed path.
func (m MutAccessor[T]) Path() IndexPath { return m.path }

// Get resolves the current state of the region.
func (m MutAccessor[T]) Get() Accessor[T] { return m.t.At(m.path) }

// Fill sets the whole region to v.
func (m MutAccessor[T]) Fill(v T) error { return m.t.Fill(m.path, v) }
