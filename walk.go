package svo

// Walk visits the uniform regions of the tree in depth-first corner order.
// Regions below maxDepth are reported by their aggregate instead of being
// descended into, which yields a level-of-detail view of the tree. A
// negative maxDepth walks down to the voxels. Returning false from fn stops
// the walk.
func (t *Octree[T]) Walk(maxDepth int, fn func(Accessor[T]) bool) {
	if maxDepth < 0 || maxDepth > t.depth {
		maxDepth = t.depth
	}
	t.walk(t.Root(), maxDepth, fn)
}

func (t *Octree[T]) walk(a Accessor[T], maxDepth int, fn func(Accessor[T]) bool) bool {
	if a.IsVirtual() || a.path.Len() >= maxDepth {
		return fn(a)
	}
	for c := uint8(0); c < 8; c++ {
		if !t.walk(a.Child(c), maxDepth, fn) {
			return false
		}
	}
	return true
}

// Stats describe the shape of a tree.
type Stats struct {
	GridSize uint32
	Depth    int
	Nodes    int   // allocated nodes
	PerDepth []int // allocated nodes per depth
	Arena    ArenaStats
}

// Stats walks all nodes and returns tree statistics.
func (t *Octree[T]) Stats() *Stats {
	s := &Stats{
		GridSize: t.o.GridSize,
		Depth:    t.depth,
		PerDepth: make([]int, t.depth),
		Arena:    t.arena.Stats(),
	}
	if !t.root.IsNone() {
		t.countNodes(t.root, 0, s)
	}
	return s
}

func (t *Octree[T]) countNodes(h Handle, depth int, s *Stats) {
	s.Nodes++
	s.PerDepth[depth]++

	fm := t.nodes.freemask(h)
	for c := uint8(0); c < 8; c++ {
		if fm&(1<<c) != 0 {
			t.countNodes(t.nodes.child(h, c), depth+1, s)
		}
	}
}
