package l0pool

import "time"

// DefaultShmDir is where segment files are created when CreateOptions.ShmDir
// and ConnectOptions.ShmDir are left empty. /dev/shm is tmpfs on Linux, the
// closest stand-in for POSIX named shared memory available without cgo.
const DefaultShmDir = "/dev/shm/l0pool"

// CreateOptions configures Manager.Create.
type CreateOptions struct {
	// ShmDir overrides [DefaultShmDir].
	ShmDir string

	// InitialCapacity overrides the segment's starting capacity
	// (segment.InitialSize if zero).
	InitialCapacity uint64

	// FailIfExists makes Create return ErrPoolAlreadyExists instead of
	// attaching when a segment already exists under the requested name.
	FailIfExists bool

	// AuthKey, if non-empty, turns on transparent encryption: every stored
	// value is sealed with this key before it reaches the segment and
	// opened with it on read.
	AuthKey []byte

	// CompressThreshold overrides wire.DefaultCompressThreshold. Pass
	// wire.DisableCompression to turn compression off entirely.
	CompressThreshold int

	// LockTimeout is stored but not read by any operation: acquiring the
	// stripe, pool and interprocess writer locks always blocks until the
	// lock is free, whatever its value.
	LockTimeout time.Duration
}

// ConnectOptions configures Manager.Connect.
type ConnectOptions struct {
	// ShmDir overrides [DefaultShmDir].
	ShmDir string

	// AuthKey must match the key the pool was created with, if any.
	AuthKey []byte

	// CompressThreshold overrides wire.DefaultCompressThreshold.
	CompressThreshold int

	// LockTimeout is stored but not read by any operation: lock
	// acquisition always blocks until the lock is free.
	LockTimeout time.Duration

	// ReadOnly rejects all mutating operations with ErrReadOnly without
	// touching the segment.
	ReadOnly bool
}

func (o CreateOptions) shmDir() string {
	if o.ShmDir != "" {
		return o.ShmDir
	}

	return DefaultShmDir
}

func (o ConnectOptions) shmDir() string {
	if o.ShmDir != "" {
		return o.ShmDir
	}

	return DefaultShmDir
}
