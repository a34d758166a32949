package l0pool

import (
	"fmt"
	"time"
)

// increment adds delta to the int64 stored at key and returns the new
// value. A missing or expired key is treated as 0 before adding delta.
// Fails with ErrTypeMismatch if a present value is not an integer.
func (s *store) increment(key string, delta int64) (int64, error) {
	return s.addDelta(key, delta)
}

// decrement subtracts delta from the int64 stored at key and returns the
// new value. A missing or expired key is treated as 0 before subtracting.
func (s *store) decrement(key string, delta int64) (int64, error) {
	return s.addDelta(key, -delta)
}

func (s *store) addDelta(key string, delta int64) (int64, error) {
	if err := requireNonEmptyKey(key); err != nil {
		return 0, err
	}

	if s.readOnly {
		return 0, ErrReadOnly
	}

	unlock := s.striped.Lock(key)
	defer unlock()

	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	m := s.load()

	var current int64

	rec, ok := m[key]
	if ok && !rec.expired(time.Now()) {
		current, ok = asInt64(rec.Value)
		if !ok {
			return 0, fmt.Errorf("%w: %s is not an integer", ErrTypeMismatch, key)
		}
	}

	next := current + delta
	m[key] = record{Value: next}

	if err := s.save(m); err != nil {
		return 0, err
	}

	return next, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}

		return 0, false
	default:
		return 0, false
	}
}

// appendValue requires the value stored at key to be a sequence, appends
// item to it, and returns the sequence's new length. Fails with
// ErrKeyNotFound if key is absent or expired, and ErrTypeMismatch if the
// stored value is not a sequence.
func (s *store) appendValue(key string, item any) (int, error) {
	if err := requireNonEmptyKey(key); err != nil {
		return 0, err
	}

	if s.readOnly {
		return 0, ErrReadOnly
	}

	unlock := s.striped.Lock(key)
	defer unlock()

	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	m := s.load()

	rec, ok := m[key]
	if !ok || rec.expired(time.Now()) {
		return 0, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	seq, ok := rec.Value.([]any)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a sequence", ErrTypeMismatch, key)
	}

	seq = append(seq, item)
	rec.Value = seq
	m[key] = rec

	if err := s.save(m); err != nil {
		return 0, err
	}

	return len(seq), nil
}

// update requires the value stored at key to be a mapping, merges patch
// into it (patch wins per overlapping key), and returns the merged
// mapping. Fails with ErrKeyNotFound if key is absent or expired, and
// ErrTypeMismatch if the stored value is not a mapping.
func (s *store) update(key string, patch map[string]any) (map[string]any, error) {
	if err := requireNonEmptyKey(key); err != nil {
		return nil, err
	}

	if s.readOnly {
		return nil, ErrReadOnly
	}

	unlock := s.striped.Lock(key)
	defer unlock()

	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	m := s.load()

	rec, ok := m[key]
	if !ok || rec.expired(time.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	current, ok := rec.Value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a mapping", ErrTypeMismatch, key)
	}

	merged := make(map[string]any, len(current)+len(patch))

	for k, v := range current {
		merged[k] = v
	}

	for k, v := range patch {
		merged[k] = v
	}

	rec.Value = merged
	m[key] = rec

	if err := s.save(m); err != nil {
		return nil, err
	}

	return merged, nil
}

// mset stores every key/value pair in a single read-modify-write cycle.
func (s *store) mset(values map[string]any) error {
	if s.readOnly {
		return ErrReadOnly
	}

	for k := range values {
		if err := requireNonEmptyKey(k); err != nil {
			return err
		}
	}

	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	m := s.load()

	for k, v := range values {
		m[k] = record{Value: v}
	}

	return s.save(m)
}

// mget returns every present, unexpired value among keys.
func (s *store) mget(keys []string) (map[string]any, error) {
	s.poolMu.RLock()
	defer s.poolMu.RUnlock()

	m := s.load()
	now := time.Now()

	out := make(map[string]any, len(keys))

	for _, k := range keys {
		rec, ok := m[k]
		if ok && !rec.expired(now) {
			out[k] = rec.Value
		}
	}

	return out, nil
}

// deleteMany removes every key in keys and returns how many were actually
// present.
func (s *store) deleteMany(keys []string) (int, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}

	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	m := s.load()

	removed := 0

	for _, k := range keys {
		if _, ok := m[k]; ok {
			delete(m, k)

			removed++
		}
	}

	if removed == 0 {
		return 0, nil
	}

	return removed, s.save(m)
}
