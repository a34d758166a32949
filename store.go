package l0pool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calvinalkan/l0pool/internal/crypt"
	"github.com/calvinalkan/l0pool/internal/lock"
	"github.com/calvinalkan/l0pool/internal/segment"
	"github.com/calvinalkan/l0pool/internal/wire"
)

// record is the on-the-wire shape of one pool entry: the stored value plus
// an optional absolute expiry. ExpiresAtUnixNano == 0 means no TTL.
type record struct {
	Value             any   `json:"v"`
	ExpiresAtUnixNano int64 `json:"e,omitempty"` //nolint:tagliatelle // wire format, not user-facing config
}

func (r record) expired(now time.Time) bool {
	return r.ExpiresAtUnixNano != 0 && now.UnixNano() >= r.ExpiresAtUnixNano
}

// store is the pool data store: it owns the segment, the codec, the
// optional encryption key, and the two-level lock, and presents a map-like
// interface over the single serialized blob living in shared memory.
//
// A store is safe for concurrent use by multiple goroutines in this
// process; cross-process safety comes from the segment's own write
// serialization (internal/segment's writer flock) plus this format's
// tolerance for torn reads.
type store struct {
	seg      *segment.Segment
	codec    *wire.Codec
	authKey  []byte
	readOnly bool

	poolMu  sync.RWMutex
	striped *lock.Striped
}

func newStore(seg *segment.Segment, compressThreshold int, authKey []byte, readOnly bool) *store {
	return &store{
		seg:      seg,
		codec:    wire.NewCodec(compressThreshold),
		authKey:  authKey,
		readOnly: readOnly,
		striped:  lock.NewStriped(lock.DefaultStripes),
	}
}

// load decodes the segment's current payload into a key->record map.
//
// Tolerates torn reads: a decode failure is retried once (the writer may
// have been mid-write), and if it fails again the pool is treated as empty
// rather than surfacing an error to the caller.
func (s *store) load() map[string]record {
	raw := s.seg.ReadPayload()

	m, ok := s.tryDecode(raw)
	if ok {
		return m
	}

	raw = s.seg.ReadPayload()

	m, ok = s.tryDecode(raw)
	if ok {
		return m
	}

	return map[string]record{}
}

// checkAuthKey verifies that s.authKey (if set) actually opens the
// segment's current payload, returning ErrAuthenticationFailed if it
// doesn't. Called once by Manager.Connect, before handing out a Client —
// unlike tryDecode's ongoing torn-read tolerance, a failed decrypt here is
// a definite key mismatch, not something to silently paper over as an
// empty pool.
//
// A pool with nothing written to it yet has no ciphertext to check the key
// against, so an empty payload always passes.
func (s *store) checkAuthKey() error {
	if len(s.authKey) == 0 {
		return nil
	}

	raw := s.seg.ReadPayload()
	if len(raw) == 0 {
		return nil
	}

	if _, err := crypt.Decrypt(raw, s.authKey); err != nil {
		return fmt.Errorf("%w", ErrAuthenticationFailed)
	}

	return nil
}

func (s *store) tryDecode(raw []byte) (map[string]record, bool) {
	if len(raw) == 0 {
		return map[string]record{}, true
	}

	if len(s.authKey) > 0 {
		plain, err := crypt.Decrypt(raw, s.authKey)
		if err != nil {
			return nil, false
		}

		raw = plain
	}

	decoded, err := s.codec.Deserialize(raw)
	if err != nil {
		return nil, false
	}

	asMap, ok := decoded.(map[string]any)
	if !ok {
		if decoded == nil {
			return map[string]record{}, true
		}

		return nil, false
	}

	out := make(map[string]record, len(asMap))

	for k, v := range asMap {
		rec, ok := toRecord(v)
		if !ok {
			return nil, false
		}

		out[k] = rec
	}

	return out, true
}

func toRecord(v any) (record, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return record{}, false
	}

	rec := record{Value: m["v"]}

	if e, ok := m["e"]; ok && e != nil {
		switch n := e.(type) {
		case int64:
			rec.ExpiresAtUnixNano = n
		case float64:
			rec.ExpiresAtUnixNano = int64(n)
		}
	}

	return rec, true
}

func fromRecords(m map[string]record) map[string]any {
	out := make(map[string]any, len(m))

	for k, rec := range m {
		entry := map[string]any{"v": rec.Value}
		if rec.ExpiresAtUnixNano != 0 {
			entry["e"] = rec.ExpiresAtUnixNano
		}

		out[k] = entry
	}

	return out
}

// save serializes m and writes it back to the segment, expanding the
// segment first if necessary.
func (s *store) save(m map[string]record) error {
	raw, err := s.codec.Serialize(fromRecords(m))
	if err != nil {
		return fmt.Errorf("l0pool: encode pool contents: %w", err)
	}

	if len(s.authKey) > 0 {
		raw, err = crypt.Encrypt(raw, s.authKey)
		if err != nil {
			return fmt.Errorf("l0pool: encrypt pool contents: %w", err)
		}
	}

	if err := s.seg.WritePayload(raw); err != nil {
		return translateSegmentErr(err)
	}

	return nil
}

func translateSegmentErr(err error) error {
	switch {
	case errors.Is(err, segment.ErrCapacityExceeded):
		return fmt.Errorf("%w", ErrCapacityExceeded)
	case errors.Is(err, segment.ErrBusy):
		return fmt.Errorf("%w", ErrBusy)
	case errors.Is(err, segment.ErrUnavailable):
		return fmt.Errorf("%w", ErrSegmentUnavailable)
	default:
		return err
	}
}

func requireNonEmptyKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key must not be empty", ErrInvalidInput)
	}

	return nil
}

// get returns the value stored at key, honoring TTL.
func (s *store) get(key string) (any, bool, error) {
	if err := requireNonEmptyKey(key); err != nil {
		return nil, false, err
	}

	s.poolMu.RLock()
	defer s.poolMu.RUnlock()

	m := s.load()

	rec, ok := m[key]
	if !ok || rec.expired(time.Now()) {
		return nil, false, nil
	}

	return rec.Value, true, nil
}

// set stores value at key with an optional TTL (0 means no expiry).
func (s *store) set(key string, value any, ttl time.Duration) error {
	if err := requireNonEmptyKey(key); err != nil {
		return err
	}

	if s.readOnly {
		return ErrReadOnly
	}

	if ttl < 0 {
		return fmt.Errorf("%w: ttl must not be negative", ErrInvalidInput)
	}

	unlock := s.striped.Lock(key)
	defer unlock()

	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	m := s.load()

	rec := record{Value: value}
	if ttl > 0 {
		rec.ExpiresAtUnixNano = time.Now().Add(ttl).UnixNano()
	}

	m[key] = rec

	return s.save(m)
}

// delete removes key, reporting whether it was present (and unexpired).
func (s *store) delete(key string) (bool, error) {
	if err := requireNonEmptyKey(key); err != nil {
		return false, err
	}

	if s.readOnly {
		return false, ErrReadOnly
	}

	unlock := s.striped.Lock(key)
	defer unlock()

	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	m := s.load()

	rec, existed := m[key]
	if !existed {
		return false, nil
	}

	delete(m, key)

	if err := s.save(m); err != nil {
		return false, err
	}

	return !rec.expired(time.Now()), nil
}

// exists reports whether key is present and unexpired.
func (s *store) exists(key string) (bool, error) {
	_, ok, err := s.get(key)

	return ok, err
}

// keys returns all unexpired keys in the pool.
func (s *store) keys() ([]string, error) {
	s.poolMu.RLock()
	defer s.poolMu.RUnlock()

	m := s.load()
	now := time.Now()

	out := make([]string, 0, len(m))

	for k, rec := range m {
		if !rec.expired(now) {
			out = append(out, k)
		}
	}

	return out, nil
}

// keysWithPrefix returns all unexpired keys beginning with prefix, honoring
// the colon-delimited namespace convention transparently (the prefix is
// matched byte-for-byte, so callers pass "ns:" to list a namespace).
func (s *store) keysWithPrefix(prefix string) ([]string, error) {
	all, err := s.keys()
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(all))

	for _, k := range all {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}

	return out, nil
}

// size returns the number of unexpired keys.
func (s *store) size() (int, error) {
	keys, err := s.keys()

	return len(keys), err
}

// cleanupExpired removes every expired entry and returns how many were
// removed. Safe to call opportunistically; does nothing if nothing has
// expired.
func (s *store) cleanupExpired() (int, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}

	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	m := s.load()
	now := time.Now()

	removed := 0

	for k, rec := range m {
		if rec.expired(now) {
			delete(m, k)

			removed++
		}
	}

	if removed == 0 {
		return 0, nil
	}

	if err := s.save(m); err != nil {
		return 0, err
	}

	return removed, nil
}

// memoryUsage returns the segment's current capacity and used bytes.
func (s *store) memoryUsage() (capacity, used uint64) {
	return s.seg.Capacity(), s.seg.Used()
}

func (s *store) close() error {
	return s.seg.Close()
}
