// Package store provides block store backends for the ERIS encoder and
// reader: an in-memory map, a badger-backed store on disk, an S3
// bucket, and an HTTP client speaking the erisd wire protocol, plus a
// read-through verified-block cache that can wrap any of them.
package store

import (
	"context"

	"eris/internal/eris"
)

// Lister is implemented by stores that can enumerate every block they
// hold. Enumeration order is unspecified. It is used by archive export
// and replication tooling.
type Lister interface {
	List(ctx context.Context, fn func(ref eris.Reference, block []byte) error) error
}
