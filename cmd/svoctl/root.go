package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/bsm/svo"
	"github.com/spf13/cobra"
)

var (
	// Global flags.
	asBool  bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "svoctl",
	Short: "Inspect sparse voxel octree snapshots",
	Long: `svoctl reads octree snapshots and reports on their structure and
contents.

Use "svoctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&asBool, "bool", false, "Decode single byte voxels as booleans")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug events to stderr")

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(lodCmd)
}

// region is a uniform region as reported by a tree view.
type region struct {
	Path     svo.IndexPath
	Bounds   svo.Bounds
	Occupied bool
	Value    string
}

// view is the voxel type independent subset of *svo.Octree the commands
// work with.
type view interface {
	GridSize() uint32
	Stats() *svo.Stats
	ValueAt(x, y, z uint32) string
	Regions(maxDepth int, fn func(region) bool)
	Close() error
}

type treeView[T comparable] struct {
	*svo.Octree[T]
}

func (v treeView[T]) ValueAt(x, y, z uint32) string {
	return fmt.Sprint(v.Get(x, y, z))
}

func (v treeView[T]) Regions(maxDepth int, fn func(region) bool) {
	v.Walk(maxDepth, func(a svo.Accessor[T]) bool {
		return fn(region{
			Path:     a.Path(),
			Bounds:   a.Bounds(),
			Occupied: a.Occupied(),
			Value:    fmt.Sprint(a.Value()),
		})
	})
}

// openSnapshot restores the snapshot at path into host memory.
func openSnapshot(path string) (view, *svo.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	fs, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}

	r, err := svo.NewReader(f, fs.Size())
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	alloc := svo.NewHostAllocator(&svo.HostAllocatorOptions{BlockSize: r.BlockSize()})
	o := &svo.Options{Logger: logger()}

	var v view
	switch size := r.VoxelSize(); {
	case size == 1 && asBool:
		v, err = restore(r, alloc, svo.Bool, o)
	case size == 1:
		v, err = restore(r, alloc, svo.Uint8, o)
	case size == 2:
		v, err = restore(r, alloc, svo.Uint16, o)
	case size == 4:
		v, err = restore(r, alloc, svo.Uint32, o)
	default:
		err = fmt.Errorf("unsupported voxel size %d", size)
	}
	if err != nil {
		return nil, nil, err
	}
	return v, r, nil
}

func restore[T comparable](r *svo.Reader, alloc svo.BlockAllocator, vt svo.VoxelType[T], o *svo.Options) (view, error) {
	tree, err := svo.Restore(r, alloc, vt, o)
	if err != nil {
		return nil, err
	}
	return treeView[T]{Octree: tree}, nil
}

func logger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseCoord(s string, gridSize uint32) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}
	if uint32(n) >= gridSize {
		return 0, fmt.Errorf("coordinate %d outside grid of %d", n, gridSize)
	}
	return uint32(n), nil
}
