package l0pool_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/l0pool"
)

func tmpShmDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "l0pool-*")
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	return dir
}

func TestCreateConnectBasicRoundTrip(t *testing.T) {
	dir := tmpShmDir(t)

	mgrA := l0pool.NewManager(dir)

	writer, err := mgrA.Create("orders", l0pool.CreateOptions{})
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.Set("order:1", map[string]any{"qty": int64(3)}, 0))

	// Simulate a second process attaching to the same pool.
	mgrB := l0pool.NewManager(dir)

	reader, err := mgrB.Connect("orders", l0pool.ConnectOptions{})
	require.NoError(t, err)
	defer reader.Close()

	got, ok, err := reader.Get("order:1")
	require.NoError(t, err)
	require.True(t, ok)

	if diff := cmp.Diff(map[string]any{"qty": int64(3)}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectToMissingPoolFails(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	_, err := mgr.Connect("nope", l0pool.ConnectOptions{})
	if !errors.Is(err, l0pool.ErrPoolNotFound) {
		t.Fatalf("want ErrPoolNotFound, got %v", err)
	}
}

func TestCreateFailIfExists(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	c1, err := mgr.Create("p", l0pool.CreateOptions{})
	require.NoError(t, err)
	defer c1.Close()

	_, err = mgr.Create("p", l0pool.CreateOptions{FailIfExists: true})
	if !errors.Is(err, l0pool.ErrPoolAlreadyExists) {
		t.Fatalf("want ErrPoolAlreadyExists, got %v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	c, err := mgr.Create("ttl-pool", l0pool.CreateOptions{})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("k", "v", 10*time.Millisecond))

	_, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	_, ok, err = c.Get("k")
	require.NoError(t, err)
	require.False(t, ok, "expired key must not be returned")

	n, err := c.CleanupExpired()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestEncryptionRoundTripDoesNotLeakPlaintext(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	c, err := mgr.Create("secrets", l0pool.CreateOptions{AuthKey: []byte("correct horse battery staple")})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("token", "hunter2-super-secret", 0))

	got, ok, err := c.Get("token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hunter2-super-secret", got)

	// Read the raw segment bytes directly: the plaintext must not appear.
	raw, err := os.ReadFile(dir + "/l0p_secrets")
	require.NoError(t, err)

	if bytes.Contains(raw, []byte("hunter2-super-secret")) {
		t.Fatal("plaintext leaked into shared memory segment")
	}
}

func TestWrongAuthKeyFailsAtConnect(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	writer, err := mgr.Create("secrets2", l0pool.CreateOptions{AuthKey: []byte("right-key")})
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.Set("k", "v", 0))

	_, err = mgr.Connect("secrets2", l0pool.ConnectOptions{AuthKey: []byte("wrong-key")})
	if !errors.Is(err, l0pool.ErrAuthenticationFailed) {
		t.Fatalf("want ErrAuthenticationFailed, got %v", err)
	}
}

func TestReadOnlyRejectsMutation(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	writer, err := mgr.Create("ro-pool", l0pool.CreateOptions{})
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.Set("k", "v", 0))

	reader, err := mgr.Connect("ro-pool", l0pool.ConnectOptions{ReadOnly: true})
	require.NoError(t, err)
	defer reader.Close()

	_, ok, err := reader.Get("k")
	require.NoError(t, err)
	require.True(t, ok)

	err = reader.Set("k", "v2", 0)
	if !errors.Is(err, l0pool.ErrReadOnly) {
		t.Fatalf("want ErrReadOnly, got %v", err)
	}

	_, err = reader.Delete("k")
	if !errors.Is(err, l0pool.ErrReadOnly) {
		t.Fatalf("want ErrReadOnly, got %v", err)
	}
}

func TestConcurrentIncrementIsLinearizable(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	c, err := mgr.Create("counters", l0pool.CreateOptions{})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("hits", int64(0), 0))

	const (
		goroutines = 8
		perGoroutine = 50
	)

	var wg sync.WaitGroup

	for range goroutines {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range perGoroutine {
				if _, err := c.Increment("hits", 1); err != nil {
					t.Error(err)
				}
			}
		}()
	}

	wg.Wait()

	got, ok, err := c.Get("hits")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(goroutines*perGoroutine), got)
}

func TestIncrementTypeMismatch(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	c, err := mgr.Create("p", l0pool.CreateOptions{})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("k", "not a number", 0))

	_, err = c.Increment("k", 1)
	if !errors.Is(err, l0pool.ErrTypeMismatch) {
		t.Fatalf("want ErrTypeMismatch, got %v", err)
	}
}

func TestIncrementMissingKeyTreatsAbsentAsZero(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	c, err := mgr.Create("p", l0pool.CreateOptions{})
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Increment("missing", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), got)

	val, ok, err := c.Get("missing")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), val)
}

func TestAppendRequiresSequence(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	c, err := mgr.Create("p", l0pool.CreateOptions{})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("tags", []any{"a", "b"}, 0))

	n, err := c.Append("tags", "c")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	got, ok, err := c.Get("tags")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []any{"a", "b", "c"}, got)

	require.NoError(t, c.Set("notaseq", "hello", 0))

	_, err = c.Append("notaseq", "x")
	if !errors.Is(err, l0pool.ErrTypeMismatch) {
		t.Fatalf("want ErrTypeMismatch, got %v", err)
	}
}

func TestUpdateRequiresMapping(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	c, err := mgr.Create("p", l0pool.CreateOptions{})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("profile", map[string]any{"name": "alice", "age": int64(30)}, 0))

	merged, err := c.Update("profile", map[string]any{"age": int64(31), "city": "nyc"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"name": "alice", "age": int64(31), "city": "nyc"}, merged)

	require.NoError(t, c.Set("notamap", "hello", 0))

	_, err = c.Update("notamap", map[string]any{"x": int64(1)})
	if !errors.Is(err, l0pool.ErrTypeMismatch) {
		t.Fatalf("want ErrTypeMismatch, got %v", err)
	}
}

func TestNamespacePrefixListing(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	c, err := mgr.Create("p", l0pool.CreateOptions{})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("sessions:1", "a", 0))
	require.NoError(t, c.Set("sessions:2", "b", 0))
	require.NoError(t, c.Set("orders:1", "c", 0))

	keys, err := c.KeysWithPrefix("sessions:")
	require.NoError(t, err)
	require.Len(t, keys, 2)
}

func TestManagerListPoolsAndDestroy(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	c, err := mgr.Create("to-destroy", l0pool.CreateOptions{})
	require.NoError(t, err)

	pools, err := mgr.ListPools()
	require.NoError(t, err)
	require.Contains(t, pools, "to-destroy")

	// Destroy before the creator's Close: Close by the creator unlinks the
	// segment itself, after which Destroy reports ErrPoolNotFound.
	require.NoError(t, mgr.Destroy("to-destroy"))

	require.NoError(t, c.Close())

	exists, err := mgr.Exists("to-destroy")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestExpansionAcrossCapacityBoundary(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	// Compression is off: the repeating byte pattern below would otherwise
	// deflate to far less than 1 MiB and never force an expansion.
	c, err := mgr.Create("growing", l0pool.CreateOptions{InitialCapacity: 1 << 20, CompressThreshold: -1})
	require.NoError(t, err)
	defer c.Close()

	big := make([]byte, 2<<20)
	for i := range big {
		big[i] = byte(i)
	}

	require.NoError(t, c.Set("blob", big, 0))

	capacity, _ := c.MemoryUsage()
	require.Greater(t, capacity, uint64(1<<20))

	got, ok, err := c.Get("blob")
	require.NoError(t, err)
	require.True(t, ok)

	gotBytes, ok := got.([]byte)
	require.True(t, ok)

	if !bytes.Equal(gotBytes, big) {
		t.Fatal("large value not preserved across segment expansion")
	}
}

func TestMsetMgetDeleteMany(t *testing.T) {
	dir := tmpShmDir(t)

	mgr := l0pool.NewManager(dir)

	c, err := mgr.Create("batch", l0pool.CreateOptions{})
	require.NoError(t, err)
	defer c.Close()

	values := map[string]any{}
	for i := range 5 {
		values[fmt.Sprintf("k%d", i)] = i
	}

	require.NoError(t, c.Mset(values))

	got, err := c.Mget([]string{"k0", "k2", "k4", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	removed, err := c.DeleteMany([]string{"k0", "k1", "missing"})
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	size, err := c.Size()
	require.NoError(t, err)
	require.Equal(t, 3, size)
}
