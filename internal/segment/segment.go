// Package segment implements a named, OS-backed shared memory region
// holding a fixed 16-byte header followed by a single serialized payload,
// with read/overwrite/expand-by-migration operations.
//
// Go has no standard-library POSIX shm_open/mmap binding, so a "named OS
// shared-memory segment" is represented the way POSIX shared memory is
// itself usually implemented on Linux: a file under a tmpfs-backed
// directory (/dev/shm by default), mmap'd MAP_SHARED via
// golang.org/x/sys/unix.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Layout constants for the segment header and capacity bounds.
const (
	HeaderSize  = 16
	InitialSize = 1 << 20         // 1 MiB
	MaxSize     = 100 * (1 << 20) // 100 MiB
)

// Sentinel errors. Mirrored as public errors at the package root (see
// errors.go there); kept separate here so this package has no dependency on
// its importer.
var (
	// ErrUnavailable indicates the OS refused to attach/create/map the
	// segment for reasons other than the segment simply not existing yet.
	ErrUnavailable = errors.New("segment: unavailable")

	// ErrCapacityExceeded indicates expansion would exceed [MaxSize].
	ErrCapacityExceeded = errors.New("segment: capacity exceeded")

	// ErrBusy indicates the writer flock is held by another process.
	ErrBusy = errors.New("segment: busy")
)

// NamePrefix is prepended to a pool name to form its OS segment name
// (pool "orders" maps to OS segment name "l0p_orders").
const NamePrefix = "l0p_"

// Segment owns one named, file-backed shared memory region.
//
// Not safe for concurrent use by multiple goroutines without external
// synchronization — callers (the pool data store) serialize access via
// internal/lock before touching a Segment.
type Segment struct {
	shmDir    string
	name      string // current OS segment name (changes across expansions)
	fd        int
	data      []byte // mmap'd region, length == capacity
	creator   bool
	expandSeq atomic.Uint64
}

// OpenOrCreate attaches to the named segment under shmDir, creating it with
// initialCapacity if absent.
//
// Returns [ErrUnavailable] if the OS refuses both attach and create for
// reasons other than the segment not existing (e.g. permission errors).
func OpenOrCreate(shmDir, name string, initialCapacity uint64) (*Segment, error) {
	if initialCapacity < HeaderSize {
		initialCapacity = InitialSize
	}

	if err := os.MkdirAll(shmDir, 0o770); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", ErrUnavailable, shmDir, err) //nolint:errorlint // wrapping sentinel by design
	}

	path := filepath.Join(shmDir, name)

	// Attempt create first with O_EXCL: if we win the race, we are the
	// creator. If another process wins it, fall back to plain attach.
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o660)
	if err == nil {
		if ftErr := unix.Ftruncate(fd, int64(initialCapacity)); ftErr != nil {
			_ = unix.Close(fd)

			return nil, fmt.Errorf("%w: ftruncate: %v", ErrUnavailable, ftErr) //nolint:errorlint // wrapping sentinel by design
		}

		seg, mmapErr := mmapSegment(fd, shmDir, name, initialCapacity, true)
		if mmapErr != nil {
			return nil, mmapErr
		}

		if writeErr := seg.writeHeader(0, initialCapacity); writeErr != nil {
			_ = seg.Close()

			return nil, writeErr
		}

		return seg, nil
	}

	if !errors.Is(err, unix.EEXIST) {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err) //nolint:errorlint // wrapping sentinel by design
	}

	// Lost the creation race (or segment already existed): attach only.
	fd, err = unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: attach %s: %v", ErrUnavailable, path, err) //nolint:errorlint // wrapping sentinel by design
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("%w: fstat: %v", ErrUnavailable, err) //nolint:errorlint // wrapping sentinel by design
	}

	return mmapSegment(fd, shmDir, name, uint64(st.Size), false)
}

// mmapSegment mmaps fd (already sized to capacity bytes) and wraps it.
func mmapSegment(fd int, shmDir, name string, capacity uint64, creator bool) (*Segment, error) {
	data, err := unix.Mmap(fd, 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("%w: mmap: %v", ErrUnavailable, err) //nolint:errorlint // wrapping sentinel by design
	}

	return &Segment{
		shmDir:  shmDir,
		name:    name,
		fd:      fd,
		data:    data,
		creator: creator,
	}, nil
}

// writeHeader stores L and C directly, bypassing ReadPayload/WritePayload.
// Used only during initial creation, where there is no prior payload.
func (s *Segment) writeHeader(length, capacity uint64) error {
	binary.LittleEndian.PutUint64(s.data[0:8], length)
	binary.LittleEndian.PutUint64(s.data[8:16], capacity)

	return nil
}

// Name reports the segment's current OS name (changes across expansions).
func (s *Segment) Name() string { return s.name }

// IsCreator reports whether this process created the current backing file.
func (s *Segment) IsCreator() bool { return s.creator }

// Capacity returns C, the declared capacity.
func (s *Segment) Capacity() uint64 {
	return binary.LittleEndian.Uint64(s.data[8:16])
}

// Used returns L, the current payload length.
func (s *Segment) Used() uint64 {
	return binary.LittleEndian.Uint64(s.data[0:8])
}

// ReadPayload returns the bytes at [16 .. 16+L].
//
// Defensive by design: any structurally impossible header (L==0, or 16+L
// beyond the mapped region — which can happen if a reader observes a torn
// write from another process) yields an empty slice rather than an error.
// Real decode failures of the payload itself are the wire codec's concern,
// handled by the store's retry-once policy.
func (s *Segment) ReadPayload() []byte {
	length := binary.LittleEndian.Uint64(s.data[0:8])
	if length == 0 {
		return nil
	}

	end := HeaderSize + length
	if end > uint64(len(s.data)) {
		return nil
	}

	out := make([]byte, length)
	copy(out, s.data[HeaderSize:end])

	return out
}

// WritePayload stores payload as the segment's new content, expanding first
// if it does not fit in the current capacity.
//
// Acquires the interprocess writer flock (see writer_lock.go) for the
// duration of the write, including any expansion it triggers.
func (s *Segment) WritePayload(payload []byte) error {
	unlock, err := s.lockWriter()
	if err != nil {
		return err
	}
	defer unlock()

	needed := uint64(len(payload)) + HeaderSize
	if needed > s.Capacity() {
		if err := s.expandLocked(needed); err != nil {
			return err
		}
	}

	copy(s.data[HeaderSize:HeaderSize+uint64(len(payload))], payload)
	binary.LittleEndian.PutUint64(s.data[0:8], uint64(len(payload)))

	return nil
}

// Expand is exported for tests that want to force expansion directly
// without going through WritePayload's capacity check.
func (s *Segment) Expand(needed uint64) error {
	unlock, err := s.lockWriter()
	if err != nil {
		return err
	}
	defer unlock()

	return s.expandLocked(needed)
}

// expandLocked performs the create-new-segment-and-migrate protocol.
// Caller must hold the writer flock.
func (s *Segment) expandLocked(needed uint64) error {
	if needed > MaxSize {
		return ErrCapacityExceeded
	}

	newCapacity := s.Capacity()
	if newCapacity < InitialSize {
		newCapacity = InitialSize
	}

	for newCapacity < needed {
		newCapacity *= 2

		if newCapacity > MaxSize {
			newCapacity = MaxSize

			break
		}
	}

	if newCapacity < needed {
		return ErrCapacityExceeded
	}

	seq := s.expandSeq.Add(1)
	newName := fmt.Sprintf("%s_exp_%d_%s", s.name, seq, uuid.New().String()[:8])
	newPath := filepath.Join(s.shmDir, newName)

	fd, err := unix.Open(newPath, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o660)
	if err != nil {
		return fmt.Errorf("%w: create expansion segment: %v", ErrUnavailable, err) //nolint:errorlint // wrapping sentinel by design
	}

	if err := unix.Ftruncate(fd, int64(newCapacity)); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(newPath)

		return fmt.Errorf("%w: ftruncate expansion segment: %v", ErrUnavailable, err) //nolint:errorlint // wrapping sentinel by design
	}

	newData, err := unix.Mmap(fd, 0, int(newCapacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(newPath)

		return fmt.Errorf("%w: mmap expansion segment: %v", ErrUnavailable, err) //nolint:errorlint // wrapping sentinel by design
	}

	used := s.Used()
	copy(newData[:HeaderSize+used], s.data[:HeaderSize+used])
	binary.LittleEndian.PutUint64(newData[8:16], newCapacity)

	oldFd, oldData, oldName, wasCreator := s.fd, s.data, s.name, s.creator

	s.fd = fd
	s.data = newData
	s.name = newName
	s.creator = true // we created the replacement segment

	_ = unix.Munmap(oldData)
	_ = unix.Close(oldFd)

	if wasCreator {
		_ = os.Remove(filepath.Join(s.shmDir, oldName))
	}

	return nil
}

// Destroy unmaps the segment and unlinks its backing file unconditionally,
// regardless of whether this handle happened to be the creator. Used by
// pool destruction, where "remove this pool" must succeed no matter which
// process created it.
func (s *Segment) Destroy() error {
	s.creator = true

	return s.Close()
}

// Close unmaps the segment and, if this process is the creator, unlinks the
// backing file.
func (s *Segment) Close() error {
	if s.data == nil {
		return nil
	}

	err := unix.Munmap(s.data)
	s.data = nil

	closeErr := unix.Close(s.fd)

	if s.creator {
		_ = os.Remove(filepath.Join(s.shmDir, s.name))
	}

	if err != nil {
		return fmt.Errorf("%w: munmap: %v", ErrUnavailable, err) //nolint:errorlint // wrapping sentinel by design
	}

	if closeErr != nil {
		return fmt.Errorf("%w: close: %v", ErrUnavailable, closeErr) //nolint:errorlint // wrapping sentinel by design
	}

	return nil
}
