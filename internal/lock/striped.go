// Package lock implements the per-key half of a two-level locking
// discipline: a fixed array of striped per-key mutexes. The pool-wide
// reader/writer lock is a sync.RWMutex held by the pool data store itself.
//
// The stripes are process-local; cross-process coordination is a separate,
// narrower concern layered on top (see internal/segment's writer flock).
package lock

import (
	"hash/fnv"
	"sync"
)

// DefaultStripes is the default number of stripes.
const DefaultStripes = 64

// Striped is an array of mutexes selected by hashing a record key.
//
// Acquisition order is fixed by callers, not enforced here: stripe locks
// must be acquired before the pool lock within the same operation to avoid
// deadlock.
type Striped struct {
	mus []sync.Mutex
}

// NewStriped builds a Striped lock with n stripes. n <= 0 defaults to
// [DefaultStripes].
func NewStriped(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}

	return &Striped{mus: make([]sync.Mutex, n)}
}

// stripe returns the index of the mutex guarding key.
func (s *Striped) stripe(key string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))

	return int(h.Sum64() % uint64(len(s.mus)))
}

// Lock acquires the mutex for key and returns a release function.
//
// Usage:
//
//	unlock := striped.Lock(key)
//	defer unlock()
func (s *Striped) Lock(key string) (unlock func()) {
	mu := &s.mus[s.stripe(key)]
	mu.Lock()

	return mu.Unlock
}
