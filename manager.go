package l0pool

import (
	"fmt"

	"github.com/calvinalkan/l0pool/internal/segment"
	"github.com/calvinalkan/l0pool/internal/wire"
)

// Manager is the entry point for pool lifecycle operations: creating,
// connecting to, inspecting, and destroying pools. A Manager holds no
// per-pool state of its own beyond ShmDir bookkeeping, so a single Manager
// can service any number of pools and Clients concurrently.
type Manager struct {
	shmDir string
	reg    *registry
}

// NewManager returns a Manager rooted at shmDir. An empty shmDir defaults
// to [DefaultShmDir].
func NewManager(shmDir string) *Manager {
	if shmDir == "" {
		shmDir = DefaultShmDir
	}

	return &Manager{shmDir: shmDir, reg: newRegistry(shmDir)}
}

// Create creates a new pool named name, or attaches to it if it already
// exists (unless opts.FailIfExists is set).
func (m *Manager) Create(name string, opts CreateOptions) (*Client, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: pool name must not be empty", ErrInvalidInput)
	}

	shmDir := opts.ShmDir
	if shmDir == "" {
		shmDir = m.shmDir
	}

	initial := opts.InitialCapacity
	if initial == 0 {
		initial = segment.InitialSize
	}

	seg, err := segment.OpenOrCreate(shmDir, segment.NamePrefix+name, initial)
	if err != nil {
		return nil, translateSegmentErr(err)
	}

	if opts.FailIfExists && !seg.IsCreator() {
		_ = seg.Close()

		return nil, fmt.Errorf("%w: %s", ErrPoolAlreadyExists, name)
	}

	if seg.IsCreator() {
		newRegistry(shmDir).recordCreated(name)
	}

	compressThreshold := opts.CompressThreshold
	if compressThreshold == 0 {
		compressThreshold = wire.DefaultCompressThreshold
	}

	return &Client{
		name:  name,
		store: newStore(seg, compressThreshold, opts.AuthKey, false),
	}, nil
}

// Connect attaches to an existing pool named name.
//
// Returns ErrPoolNotFound if no segment exists under that name.
func (m *Manager) Connect(name string, opts ConnectOptions) (*Client, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: pool name must not be empty", ErrInvalidInput)
	}

	shmDir := opts.ShmDir
	if shmDir == "" {
		shmDir = m.shmDir
	}

	exists, err := m.existsIn(shmDir, name)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, name)
	}

	seg, err := segment.OpenOrCreate(shmDir, segment.NamePrefix+name, segment.InitialSize)
	if err != nil {
		return nil, translateSegmentErr(err)
	}

	compressThreshold := opts.CompressThreshold
	if compressThreshold == 0 {
		compressThreshold = wire.DefaultCompressThreshold
	}

	st := newStore(seg, compressThreshold, opts.AuthKey, opts.ReadOnly)

	if err := st.checkAuthKey(); err != nil {
		_ = seg.Close()

		return nil, err
	}

	return &Client{name: name, store: st}, nil
}

// Exists reports whether a pool named name currently has a backing
// segment under m's configured ShmDir.
func (m *Manager) Exists(name string) (bool, error) {
	return m.existsIn(m.shmDir, name)
}

func (m *Manager) existsIn(shmDir, name string) (bool, error) {
	names, err := scanLivePools(shmDir)
	if err != nil {
		return false, err
	}

	for _, n := range names {
		if n == name {
			return true, nil
		}
	}

	return false, nil
}

// Destroy removes a pool's backing segment entirely. Any process still
// holding a Client for this pool will see its mmap become invalid once the
// underlying file is unlinked and its last reference dropped; callers are
// responsible for coordinating shutdown before calling Destroy.
func (m *Manager) Destroy(name string) error {
	exists, err := m.Exists(name)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, name)
	}

	seg, err := segment.OpenOrCreate(m.shmDir, segment.NamePrefix+name, segment.InitialSize)
	if err != nil {
		return translateSegmentErr(err)
	}

	if err := seg.Destroy(); err != nil {
		return translateSegmentErr(err)
	}

	m.reg.forget(name)

	return nil
}

// ListPools returns the names of every pool currently backed by a segment
// under m's ShmDir. The names come from a live directory scan; the sidecar
// registry is not consulted.
func (m *Manager) ListPools() ([]string, error) {
	return scanLivePools(m.shmDir)
}

// PoolStats describes a pool's current resource usage.
type PoolStats struct {
	Name         string
	Capacity     uint64
	Used         uint64
	SegmentCount int
}

// Stats reports capacity/usage for a single pool by attaching to it
// (without becoming its creator) and reading its header.
func (m *Manager) Stats(name string) (PoolStats, error) {
	c, err := m.Connect(name, ConnectOptions{ReadOnly: true})
	if err != nil {
		return PoolStats{}, err
	}
	defer func() { _ = c.Close() }()

	capacity, used := c.MemoryUsage()

	return PoolStats{
		Name:     name,
		Capacity: capacity,
		Used:     used,
	}, nil
}
