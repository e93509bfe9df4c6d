// Package regionstore persists octree snapshots per world region in badger
// and serves them back as a streaming svo.Loader.
package regionstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bsm/svo"
	badgerdb "github.com/dgraph-io/badger/v4"
)

const keyPrefix = "region/"

// Options configure a Store.
type Options struct {
	// MaxLOD is the coarsest level of detail served. Requests above it are
	// declined so the caller can build a cheaper tree. Default: 0.
	MaxLOD int

	// Allocator returns the block allocator for a restored tree.
	// Default: a new svo.HostAllocator per tree.
	Allocator func(region svo.Region) svo.BlockAllocator

	// Compression is used for stored snapshots.
	// Default: svo.SnappyCompression.
	Compression svo.Compression

	// Logger receives debug events. Default: discard.
	Logger *slog.Logger
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.MaxLOD < 0 {
		oo.MaxLOD = 0
	}
	if oo.Allocator == nil {
		oo.Allocator = func(svo.Region) svo.BlockAllocator { return svo.NewHostAllocator(nil) }
	}
	if oo.Logger == nil {
		oo.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &oo
}

// Store keeps one snapshot per region. It implements svo.Loader.
type Store[T comparable] struct {
	db    *badgerdb.DB
	vt    svo.VoxelType[T]
	o     *Options
	owned bool
}

var _ svo.Loader[bool] = (*Store[bool])(nil)

// Open opens (or creates) a store in dir. An empty dir keeps all data in
// memory.
func Open[T comparable](dir string, vt svo.VoxelType[T], o *Options) (*Store[T], error) {
	o = o.norm()

	bo := badgerdb.DefaultOptions(dir).WithLogger(badgerLogger{o.Logger})
	if dir == "" {
		bo = bo.WithInMemory(true)
	}

	db, err := badgerdb.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("regionstore: open %q: %w", dir, err)
	}

	s := New(db, vt, o)
	s.owned = true
	return s, nil
}

// New wraps an existing database. The caller remains responsible for
// closing db.
func New[T comparable](db *badgerdb.DB, vt svo.VoxelType[T], o *Options) *Store[T] {
	return &Store[T]{db: db, vt: vt, o: o.norm()}
}

// Load implements svo.Loader. It declines regions that were never stored
// and levels of detail above MaxLOD.
func (s *Store[T]) Load(ctx context.Context, region svo.Region, lod int) (*svo.Octree[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lod > s.o.MaxLOD {
		return nil, nil
	}

	var tree *svo.Octree[T]
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(regionKey(region))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			r, err := svo.NewReader(bytes.NewReader(val), int64(len(val)))
			if err != nil {
				return err
			}
			tree, err = svo.Restore(r, s.o.Allocator(region), s.vt, &svo.Options{Logger: s.o.Logger})
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("regionstore: load %s: %w", regionKey(region), err)
	}

	if tree != nil {
		s.o.Logger.Debug("regionstore: loaded", "region", string(regionKey(region)), "nodes", tree.Arena().Live())
	}
	return tree, nil
}

// Unload implements svo.Loader. It stores the tree and closes it.
func (s *Store[T]) Unload(ctx context.Context, region svo.Region, tree *svo.Octree[T]) error {
	if err := s.Save(ctx, region, tree); err != nil {
		return err
	}
	return tree.Close()
}

// Save stores a snapshot of the tree, replacing any previous one.
func (s *Store[T]) Save(ctx context.Context, region svo.Region, tree *svo.Octree[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tree.Snapshot(&buf, &svo.WriterOptions{Compression: s.o.Compression}); err != nil {
		return fmt.Errorf("regionstore: snapshot %s: %w", regionKey(region), err)
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(regionKey(region), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("regionstore: save %s: %w", regionKey(region), err)
	}

	s.o.Logger.Debug("regionstore: saved", "region", string(regionKey(region)), "bytes", buf.Len())
	return nil
}

// Delete removes a region. Deleting an unknown region is not an error.
func (s *Store[T]) Delete(ctx context.Context, region svo.Region) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(regionKey(region)); err != nil && err != badgerdb.ErrKeyNotFound {
			return err
		}
		return nil
	})
}

// Regions returns all stored regions in key order.
func (s *Store[T]) Regions(ctx context.Context) ([]svo.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var regions []svo.Region
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			region, err := parseRegionKey(it.Item().Key())
			if err != nil {
				return err
			}
			regions = append(regions, region)
		}
		return nil
	})
	return regions, err
}

// Close closes the underlying database if it was opened by Open.
func (s *Store[T]) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// --------------------------------------------------------------------

func regionKey(r svo.Region) []byte {
	return []byte(fmt.Sprintf("%s%d/%d/%d", keyPrefix, r.X, r.Y, r.Z))
}

func parseRegionKey(key []byte) (svo.Region, error) {
	var r svo.Region
	if _, err := fmt.Sscanf(string(key), keyPrefix+"%d/%d/%d", &r.X, &r.Y, &r.Z); err != nil {
		return r, fmt.Errorf("regionstore: bad key %q: %w", key, err)
	}
	return r, nil
}

// badgerLogger forwards badger's log output to slog.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.l.Error(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warn(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.l.Debug(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.l.Debug(fmt.Sprintf(f, v...)) }
