package l0pool

import "errors"

// Sentinel errors returned by this package. Callers compare with
// errors.Is, following a flat package-level-sentinel style rather than
// custom error types.
var (
	// ErrPoolNotFound is returned by Connect when no segment exists under
	// the requested name.
	ErrPoolNotFound = errors.New("l0pool: pool not found")

	// ErrPoolAlreadyExists is returned by Create when a segment already
	// exists under the requested name and CreateOptions.FailIfExists is set.
	ErrPoolAlreadyExists = errors.New("l0pool: pool already exists")

	// ErrAuthenticationFailed is returned by Connect when the pool's current
	// contents cannot be decrypted with the supplied auth key. Decryption
	// failures on later operations are treated as torn reads (an empty pool),
	// not reported with this error.
	ErrAuthenticationFailed = errors.New("l0pool: authentication failed")

	// ErrReadOnly is returned by mutating operations on a pool connected
	// with ConnectOptions.ReadOnly set.
	ErrReadOnly = errors.New("l0pool: pool is read-only")

	// ErrCapacityExceeded is returned when a write would grow a segment
	// beyond its maximum capacity.
	ErrCapacityExceeded = errors.New("l0pool: capacity exceeded")

	// ErrSegmentUnavailable is returned when the backing OS segment cannot
	// be created, attached, or mapped.
	ErrSegmentUnavailable = errors.New("l0pool: segment unavailable")

	// ErrTypeMismatch is returned by atomic operations (Increment,
	// Decrement, Append, Update) when the stored value is not of the
	// required kind.
	ErrTypeMismatch = errors.New("l0pool: type mismatch")

	// ErrBusy is returned when taking the interprocess writer lock fails
	// with EWOULDBLOCK or EAGAIN. The lock is requested in blocking mode, so
	// a lock held by another process makes the call wait rather than fail.
	ErrBusy = errors.New("l0pool: busy")

	// ErrInvalidInput is returned for malformed arguments, such as an empty
	// key or a negative TTL.
	ErrInvalidInput = errors.New("l0pool: invalid input")

	// ErrKeyNotFound is returned by Append and Update when the key does not
	// exist or has expired. Increment and Decrement treat such a key as 0.
	ErrKeyNotFound = errors.New("l0pool: key not found")
)
