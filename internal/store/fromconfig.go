package store

import (
	"context"
	"fmt"

	"eris/internal/config"
	"eris/internal/eris"
)

// FromConfig builds the configured block store backend, wrapping it in
// a read-through cache when one is requested.
func FromConfig(ctx context.Context, cfg config.StoreConfig) (eris.Store, error) {
	var (
		st  eris.Store
		err error
	)
	switch cfg.Kind {
	case "memory":
		st = NewMemory()
	case "", "badger":
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger store requires a path")
		}
		st, err = NewBadger(BadgerOptions{
			Dir:          cfg.Path,
			SyncWrites:   cfg.SyncWrites,
			MinFreeBytes: cfg.MinFreeBytes,
		})
	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("s3 store requires a bucket")
		}
		st, err = NewS3(ctx, S3Options{
			Bucket:   cfg.S3.Bucket,
			Prefix:   cfg.S3.Prefix,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
		})
	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("http store requires a url")
		}
		st = NewClient(cfg.URL, nil)
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheBlocks > 0 {
		return NewCache(st, cfg.CacheBlocks)
	}
	return st, nil
}
