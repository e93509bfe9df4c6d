package svo

import "context"

// Region identifies a tree-sized cube of a larger world.
type Region struct {
	X, Y, Z int32
}

// Loader supplies pre-built trees for regions of a world as they come into
// range, and takes them back once they leave it.
type Loader[T comparable] interface {
	// Load returns a tree for region at the given level of detail. It
	// returns nil, nil to decline, in which case the caller starts with an
	// empty tree.
	Load(ctx context.Context, region Region, lod int) (*Octree[T], error)
	// Unload takes ownership of a tree whose region went out of range.
	Unload(ctx context.Context, region Region, tree *Octree[T]) error
}
