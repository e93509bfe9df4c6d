package svo

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"strconv"
)

// DefaultGridSize is the default number of voxels per axis.
const DefaultGridSize = 512

// Options define octree specific options.
type Options struct {
	// GridSize is the number of voxels along each axis. It is rounded up
	// to a power of two between 2 and 2^21.
	// Default: env SVO_GRID_SIZE or 512.
	GridSize uint32

	// Logger receives debug events. Default: discard.
	Logger *slog.Logger

	// Metrics receives arena events. Default: nil (disabled).
	Metrics ArenaMetrics
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.GridSize < 1 {
		oo.GridSize = DefaultGridSize
		if env := os.Getenv("SVO_GRID_SIZE"); env != "" {
			if val, err := strconv.ParseUint(env, 10, 32); err == nil && val > 0 {
				oo.GridSize = uint32(val)
			}
		}
	}
	if oo.GridSize < 2 {
		oo.GridSize = 2
	}
	if oo.GridSize > 1<<MaxPathDepth {
		oo.GridSize = 1 << MaxPathDepth
	}
	oo.GridSize = uint32(ceilPow2(int(oo.GridSize)))
	return &oo
}

// Octree is a sparse voxel octree mapping integer coordinates within a cube
// of GridSize voxels per axis to values of T. Regions holding a single
// value are stored as virtual corners of their parent and cost no storage
// of their own; nodes are only materialised where detail is written and are
// released again as soon as their region becomes uniform.
//
// Nodes live in an Arena whose change set records every slot written, so
// that a mirror of the arena can be kept in sync with Flush.
//
// An Octree is not safe for concurrent use. Read-only methods may run
// concurrently with each other, never with Set or Fill.
type Octree[T comparable] struct {
	arena *Arena
	nodes nodeCodec[T]
	vt    VoxelType[T]
	o     *Options

	depth int // levels of nodes, log2(GridSize)

	root      Handle // None while the whole tree is uniform
	rootOcc   uint8  // occupancy mask of the root
	rootValue T      // aggregate value of the root

	closed bool
}

// New creates an empty octree over a fresh arena backed by alloc.
func New[T comparable](alloc BlockAllocator, vt VoxelType[T], o *Options) (*Octree[T], error) {
	o = o.norm()

	arena, err := NewArena(alloc, nodeSize(vt.Size()), &ArenaOptions{
		Logger:  o.Logger,
		Metrics: o.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return newOctree(arena, vt, o), nil
}

func newOctree[T comparable](arena *Arena, vt VoxelType[T], o *Options) *Octree[T] {
	return &Octree[T]{
		arena:     arena,
		nodes:     nodeCodec[T]{arena: arena, vt: vt, size: vt.Size()},
		vt:        vt,
		o:         o,
		depth:     bits.TrailingZeros32(o.GridSize),
		root:      None,
		rootValue: vt.Empty(),
	}
}

// GridSize returns the number of voxels per axis.
func (t *Octree[T]) GridSize() uint32 { return t.o.GridSize }

// Depth returns the number of node levels, the path length of a voxel.
func (t *Octree[T]) Depth() int { return t.depth }

// Arena exposes the underlying arena.
func (t *Octree[T]) Arena() *Arena { return t.arena }

// VoxelType returns the value type descriptor.
func (t *Octree[T]) VoxelType() VoxelType[T] { return t.vt }

// Get returns the value at the given coordinates. Coordinates outside the
// grid read as empty.
func (t *Octree[T]) Get(x, y, z uint32) T {
	if !t.inBounds(x, y, z) {
		return t.vt.Empty()
	}

	h, size := t.root, t.o.GridSize
	for !h.IsNone() {
		size /= 2
		c := cornerOf(&x, &y, &z, size)
		if t.nodes.freemask(h)&(1<<c) == 0 {
			return t.nodes.value(h, c)
		}
		h = t.nodes.child(h, c)
	}
	return t.rootValue
}

// IsOccupied returns true if the voxel at the given coordinates is not
// empty.
func (t *Octree[T]) IsOccupied(x, y, z uint32) bool {
	if !t.inBounds(x, y, z) {
		return false
	}

	h, size := t.root, t.o.GridSize
	for !h.IsNone() {
		size /= 2
		c := cornerOf(&x, &y, &z, size)
		if t.nodes.freemask(h)&(1<<c) == 0 {
			return t.nodes.occupancy(h)&(1<<c) != 0
		}
		h = t.nodes.child(h, c)
	}
	return t.rootOcc != 0
}

// Set stores v at the given coordinates. Writing a value into a region that
// already holds it uniformly changes nothing. On allocation failure the
// tree is left untouched.
func (t *Octree[T]) Set(x, y, z uint32, v T) error {
	if t.closed {
		return ErrClosed
	}
	if !t.inBounds(x, y, z) {
		return fmt.Errorf("%w: (%d,%d,%d) in grid of %d", ErrOutOfBounds, x, y, z, t.o.GridSize)
	}

	var buf [MaxPathDepth]uint8
	corners := buf[:t.depth]
	size := t.o.GridSize
	for i := range corners {
		size /= 2
		corners[i] = cornerOf(&x, &y, &z, size)
	}
	return t.write(corners, v)
}

// PathOf returns the index path of the voxel at the given coordinates.
func (t *Octree[T]) PathOf(x, y, z uint32) IndexPath {
	p, size := EmptyPath, t.o.GridSize
	for i := 0; i < t.depth; i++ {
		size /= 2
		p = p.Push(cornerOf(&x, &y, &z, size))
	}
	return p
}

// Fill sets the whole region addressed by path to v, releasing any detail
// stored below it.
func (t *Octree[T]) Fill(path IndexPath, v T) error {
	if t.closed {
		return ErrClosed
	}
	if path.Len() > t.depth {
		return fmt.Errorf("%w: path of depth %d in tree of depth %d", ErrOutOfBounds, path.Len(), t.depth)
	}

	if path.IsEmpty() {
		if !t.root.IsNone() {
			t.freeSubtree(t.root)
			t.root = None
		}
		t.rootValue, t.rootOcc = v, uniformMask(v != t.vt.Empty())
		return nil
	}
	return t.write(path.Corners(), v)
}

// Flush synchronises all nodes written since the last flush through the
// arena's allocator.
func (t *Octree[T]) Flush(ctx context.Context) error {
	if t.closed {
		return ErrClosed
	}
	return t.arena.Flush(ctx)
}

// Close releases all storage.
func (t *Octree[T]) Close() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	t.root, t.rootOcc, t.rootValue = None, 0, t.vt.Empty()
	return t.arena.Close()
}

// --------------------------------------------------------------------

// setResult reports the state of a node after a write below it.
type setResult[T comparable] struct {
	occupancy uint8 // the node's occupancy mask
	value     T     // the node's aggregate value
	collapsed bool  // the node became uniform and can be released
}

// write sets the region at the end of corners to v.
func (t *Octree[T]) write(corners []uint8, v T) error {
	need, noop := t.required(corners, v)
	if noop {
		return nil
	}
	if err := t.arena.Reserve(need); err != nil {
		return err
	}

	if t.root.IsNone() {
		t.root = t.alloc(t.rootValue)
	}

	res := t.set(t.root, corners, v)
	t.rootOcc, t.rootValue = res.occupancy, res.value
	if res.collapsed {
		t.arena.Free(t.root)
		t.root = None
		t.o.Logger.Debug("svo: root collapsed", keyNodes, t.arena.Live())
	}
	return nil
}

// required returns the number of nodes a write of v along corners
// allocates. noop is true if the target region already holds v.
func (t *Octree[T]) required(corners []uint8, v T) (need int, noop bool) {
	if t.root.IsNone() {
		return len(corners), t.rootValue == v
	}

	h, last := t.root, len(corners)-1
	for i, c := range corners {
		if t.nodes.freemask(h)&(1<<c) != 0 {
			if i == last {
				return 0, false
			}
			h = t.nodes.child(h, c)
			continue
		}
		if t.nodes.value(h, c) == v {
			return 0, true
		}
		return last - i, false
	}
	return 0, false
}

func (t *Octree[T]) set(h Handle, corners []uint8, v T) setResult[T] {
	c := corners[0]
	n := t.nodes.load(h)

	if len(corners) == 1 {
		if n.hasChild(c) {
			t.freeSubtree(n.children[c])
			n.children[c] = None
			n.freemask &^= 1 << c
		}
		occupied := v != t.vt.Empty()
		n.values[c] = v
		n.extended[c] = uniformMask(occupied)
		setBit(&n.occupancy, c, occupied)
	} else {
		if !n.hasChild(c) {
			n.children[c] = t.alloc(n.values[c])
			n.freemask |= 1 << c
		}

		res := t.set(n.children[c], corners[1:], v)
		n.values[c] = res.value
		n.extended[c] = res.occupancy
		setBit(&n.occupancy, c, res.occupancy != 0)
		if res.collapsed {
			t.arena.Free(n.children[c])
			n.children[c] = None
			n.freemask &^= 1 << c
		}
	}

	t.nodes.store(h, &n)
	return setResult[T]{
		occupancy: n.occupancy,
		value:     t.vt.Avg(n.values),
		collapsed: n.isUniform(v),
	}
}

// alloc takes a reserved slot and initialises it as a uniform node.
func (t *Octree[T]) alloc(v T) Handle {
	h, err := t.arena.Alloc()
	if err != nil {
		panic("svo: reserved allocation failed: " + err.Error())
	}
	n := uniformNode(v, t.vt.Empty())
	t.nodes.store(h, &n)
	return h
}

func (t *Octree[T]) freeSubtree(h Handle) {
	fm := t.nodes.freemask(h)
	for c := uint8(0); c < 8; c++ {
		if fm&(1<<c) != 0 {
			t.freeSubtree(t.nodes.child(h, c))
		}
	}
	t.arena.Free(h)
}

func (t *Octree[T]) inBounds(x, y, z uint32) bool {
	return x < t.o.GridSize && y < t.o.GridSize && z < t.o.GridSize
}

// cornerOf selects the octant of a point relative to half, and makes the
// coordinates relative to that octant.
func cornerOf(x, y, z *uint32, half uint32) uint8 {
	var c uint8
	if *x >= half {
		c |= cornerX
		*x -= half
	}
	if *y >= half {
		c |= cornerY
		*y -= half
	}
	if *z >= half {
		c |= cornerZ
		*z -= half
	}
	return c
}
