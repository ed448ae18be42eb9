package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/shirou/gopsutil/disk"

	"eris/internal/eris"
	"eris/internal/identity"
)

// ErrNoSpace is returned for puts refused because the volume holding
// the store is below its configured free-space floor.
var ErrNoSpace = errors.New("insufficient free space")

// freeCheckEvery is the number of puts between free-space rechecks.
const freeCheckEvery = 4096

// Badger is a persistent block store on a badger key-value database.
// Keys are raw 32-byte references, values the ciphertext blocks.
type Badger struct {
	db      *badger.DB
	dir     string
	id      string
	minFree uint64
	puts    atomic.Uint64
	full    atomic.Bool
}

type BadgerOptions struct {
	Dir        string
	SyncWrites bool
	// MinFreeBytes refuses puts when the volume holding Dir has less
	// free space; 0 disables the guard.
	MinFreeBytes uint64
}

var (
	_ eris.Store        = (*Badger)(nil)
	_ Lister            = (*Badger)(nil)
	_ identity.Provider = (*Badger)(nil)
)

func NewBadger(opts BadgerOptions) (*Badger, error) {
	bopts := badger.DefaultOptions(opts.Dir).
		WithLogger(nil).
		WithSyncWrites(opts.SyncWrites)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open block store at %s: %w", opts.Dir, err)
	}
	id, err := identity.Load(filepath.Join(opts.Dir, "id"))
	if err != nil {
		db.Close()
		return nil, err
	}
	b := &Badger{db: db, dir: opts.Dir, id: id, minFree: opts.MinFreeBytes}
	b.checkFreeSpace()
	return b, nil
}

// ID returns the persistent identity of this store.
func (b *Badger) ID() string { return b.id }

func (b *Badger) checkFreeSpace() {
	if b.minFree == 0 {
		return
	}
	usage, err := disk.Usage(b.dir)
	if err != nil {
		return
	}
	b.full.Store(usage.Free < b.minFree)
}

func (b *Badger) Get(ctx context.Context, ref eris.Reference) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var block []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ref[:])
		if err != nil {
			return err
		}
		block, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", ref, eris.ErrBlockNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", ref, err)
	}
	return block, nil
}

func (b *Badger) Put(ctx context.Context, ref eris.Reference, block []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.puts.Add(1)%freeCheckEvery == 0 {
		b.checkFreeSpace()
	}
	if b.full.Load() {
		return fmt.Errorf("store at %s: %w", b.dir, ErrNoSpace)
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(ref[:], block)
	})
	if err != nil {
		return fmt.Errorf("put block %s: %w", ref, err)
	}
	return nil
}

func (b *Badger) List(ctx context.Context, fn func(ref eris.Reference, block []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.Key()
			if len(key) != eris.ReferenceSize {
				continue
			}
			block, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(eris.Reference(key), block); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunGC performs one round of value-log garbage collection, reporting
// whether a log file was rewritten. Long-running daemons call this
// periodically.
func (b *Badger) RunGC() (bool, error) {
	err := b.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *Badger) Close() error { return b.db.Close() }
