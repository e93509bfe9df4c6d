package svo

import "cmp"

// VoxelType describes a payload type that can be stored in an Octree.
type VoxelType[T comparable] interface {
	// Size returns the encoded size of a value in bytes.
	Size() int
	// Empty returns the value of unoccupied space.
	Empty() T
	// Avg reduces the values of 8 octants to a single representative
	// value. It must return Empty only if all values are Empty.
	Avg(values [8]T) T
	// Encode writes v into dst[:Size()].
	Encode(dst []byte, v T)
	// Decode reads a value from src[:Size()].
	Decode(src []byte) T
}

// Built-in voxel types. Their Avg is a majority vote over the non-empty
// values where ties go to the lowest value.
var (
	Bool   VoxelType[bool]   = boolVoxel{}
	Uint8  VoxelType[uint8]  = uintVoxel[uint8]{size: 1}
	Uint16 VoxelType[uint16] = uintVoxel[uint16]{size: 2}
	Uint32 VoxelType[uint32] = uintVoxel[uint32]{size: 4}
)

// Majority returns the most frequent value among values that are not
// empty. Ties are resolved in favour of the lowest value. It returns empty
// only if every value is empty.
func Majority[T cmp.Ordered](values [8]T, empty T) T {
	best, bestN := empty, 0
	for i, v := range values {
		if v == empty {
			continue
		}

		n := 1
		for _, w := range values[i+1:] {
			if w == v {
				n++
			}
		}
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

// --------------------------------------------------------------------

type boolVoxel struct{}

func (boolVoxel) Size() int   { return 1 }
func (boolVoxel) Empty() bool { return false }

func (boolVoxel) Avg(values [8]bool) bool {
	for _, v := range values {
		if v {
			return true
		}
	}
	return false
}

func (boolVoxel) Encode(dst []byte, v bool) {
	dst[0] = 0
	if v {
		dst[0] = 1
	}
}

func (boolVoxel) Decode(src []byte) bool { return src[0] != 0 }

type uintValue interface {
	~uint8 | ~uint16 | ~uint32
}

type uintVoxel[T uintValue] struct {
	size int
}

func (t uintVoxel[T]) Size() int       { return t.size }
func (uintVoxel[T]) Empty() T          { return 0 }
func (uintVoxel[T]) Avg(values [8]T) T { return Majority(values, 0) }

func (t uintVoxel[T]) Encode(dst []byte, v T) {
	switch t.size {
	case 1:
		dst[0] = byte(v)
	case 2:
		byteOrder.PutUint16(dst, uint16(v))
	default:
		byteOrder.PutUint32(dst, uint32(v))
	}
}

func (t uintVoxel[T]) Decode(src []byte) T {
	switch t.size {
	case 1:
		return T(src[0])
	case 2:
		return T(byteOrder.Uint16(src))
	default:
		return T(byteOrder.Uint32(src))
	}
}
