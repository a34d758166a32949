package l0pool

import "time"

// Client is the public handle to a connected pool, returned by
// Manager.Create and Manager.Connect. The zero Client is not usable; obtain
// one from a Manager.
//
// A Client is safe for concurrent use by multiple goroutines.
type Client struct {
	name  string
	store *store
}

// Name returns the pool name this client is connected to.
func (c *Client) Name() string { return c.name }

// Get returns the value stored at key and whether it was present and
// unexpired.
func (c *Client) Get(key string) (any, bool, error) {
	return c.store.get(key)
}

// Set stores value at key. ttl == 0 means the entry never expires.
func (c *Client) Set(key string, value any, ttl time.Duration) error {
	return c.store.set(key, value, ttl)
}

// Delete removes key, reporting whether it was present and unexpired.
func (c *Client) Delete(key string) (bool, error) {
	return c.store.delete(key)
}

// Exists reports whether key is present and unexpired.
func (c *Client) Exists(key string) (bool, error) {
	return c.store.exists(key)
}

// Keys returns every unexpired key currently in the pool.
func (c *Client) Keys() ([]string, error) {
	return c.store.keys()
}

// KeysWithPrefix returns every unexpired key that begins with prefix,
// compared byte for byte; pass "ns:" to list the keys of namespace "ns".
func (c *Client) KeysWithPrefix(prefix string) ([]string, error) {
	return c.store.keysWithPrefix(prefix)
}

// Size returns the number of unexpired keys in the pool.
func (c *Client) Size() (int, error) {
	return c.store.size()
}

// CleanupExpired removes every expired entry and returns how many were
// removed.
func (c *Client) CleanupExpired() (int, error) {
	return c.store.cleanupExpired()
}

// MemoryUsage returns the segment's current declared capacity and the bytes
// currently in use by the serialized payload.
func (c *Client) MemoryUsage() (capacity, used uint64) {
	return c.store.memoryUsage()
}

// Increment adds delta to the integer stored at key and returns the new
// value.
func (c *Client) Increment(key string, delta int64) (int64, error) {
	return c.store.increment(key, delta)
}

// Decrement subtracts delta from the integer stored at key and returns the
// new value.
func (c *Client) Decrement(key string, delta int64) (int64, error) {
	return c.store.decrement(key, delta)
}

// Append requires the value stored at key to be a sequence, appends item
// to it, and returns the sequence's new length.
func (c *Client) Append(key string, item any) (int, error) {
	return c.store.appendValue(key, item)
}

// Update requires the value stored at key to be a mapping, merges patch
// into it (patch wins per overlapping key), and returns the merged
// mapping.
func (c *Client) Update(key string, patch map[string]any) (map[string]any, error) {
	return c.store.update(key, patch)
}

// Mset stores every key/value pair in values in a single operation.
func (c *Client) Mset(values map[string]any) error {
	return c.store.mset(values)
}

// Mget returns every present, unexpired value among keys.
func (c *Client) Mget(keys []string) (map[string]any, error) {
	return c.store.mget(keys)
}

// DeleteMany removes every key in keys and returns how many were present.
func (c *Client) DeleteMany(keys []string) (int, error) {
	return c.store.deleteMany(keys)
}

// Close releases this client's handle to the underlying segment. If this
// process created the segment, Close also unlinks its backing file, so the
// pool does not outlive its creator's Close. Manager.Destroy removes a
// pool regardless of which process created it.
func (c *Client) Close() error {
	return c.store.close()
}
