package svo

import "errors"

var magic = []byte{83, 86, 79, 190, 31, 122, 101, 219}

const snapshotVersion = 1

const (
	frameNoCompression     = 0
	frameSnappyCompression = 1
)

// Errors returned by a BlockAllocator. The Arena wraps them, so test with
// errors.Is.
var (
	ErrOutOfHostMemory   = errors.New("svo: out of host memory")
	ErrOutOfDeviceMemory = errors.New("svo: out of device memory")
	ErrMappingFailed     = errors.New("svo: block mapping failed")
	ErrTooManyObjects    = errors.New("svo: too many objects")
)

var (
	// ErrOutOfBounds is returned when coordinates fall outside the grid.
	ErrOutOfBounds = errors.New("svo: coordinates out of bounds")
	// ErrClosed is returned when using a closed arena or tree.
	ErrClosed = errors.New("svo: is closed")
)

var (
	errBadMagic       = errors.New("svo: bad magic byte sequence")
	errBadCompression = errors.New("svo: bad compression codec")
	errBadHeader      = errors.New("svo: bad snapshot header")
)

// structured log keys
const (
	keyChunk  = "chunk"
	keyChunks = "chunks"
	keyOffset = "offset"
	keyBytes  = "bytes"
	keyNodes  = "nodes"
	keyError  = "error"
)

// --------------------------------------------------------------------

// Compression is the snapshot compression codec.
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

// Supported compression codecs.
const (
	SnappyCompression Compression = iota
	NoCompression
	unknownCompression
)
