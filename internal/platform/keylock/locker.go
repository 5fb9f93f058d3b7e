// Package keylock serializes work per string key.
package keylock

import (
	"context"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// ErrEmptyKey is returned when a lock is requested without a key.
var ErrEmptyKey = errors.New("keylock: empty key")

// Locker acquires an exclusive lock for a key. The returned unlock func must be
// called exactly once; it never fails from the caller's point of view.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// HashKey maps a key to a stable signed 64-bit value, suitable for
// Postgres advisory locks.
func HashKey(key string) int64 {
	return int64(xxhash.Sum64String(key))
}
