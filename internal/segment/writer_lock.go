package segment

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockWriter acquires an advisory, interprocess, exclusive flock on a
// dedicated companion file (path + ".lock") for the duration of a write.
//
// Readers tolerate torn writes by design, so this isn't required for
// correctness; it's an additive safety measure that narrows the torn-write
// window between processes without changing any behavior a caller can
// observe.
func (s *Segment) lockWriter() (unlock func(), err error) {
	lockPath := filepath.Join(s.shmDir, s.name+".lock")

	fd, err := unix.Open(lockPath, unix.O_RDWR|unix.O_CREAT, 0o660)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock file: %v", ErrUnavailable, err) //nolint:errorlint // wrapping sentinel by design
	}

	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		_ = unix.Close(fd)

		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return nil, ErrBusy
		}

		return nil, fmt.Errorf("%w: flock: %v", ErrUnavailable, err) //nolint:errorlint // wrapping sentinel by design
	}

	return func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = unix.Close(fd)
	}, nil
}
