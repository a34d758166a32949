package l0pool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	atomicfile "github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/l0pool/internal/segment"
)

// registryFileName is the sidecar metadata file kept alongside segment
// files in ShmDir.
const registryFileName = ".l0pool-registry.jwcc"

// registryEntry is metadata about a pool that isn't recoverable by
// inspecting its segment alone (when it was created).
type registryEntry struct {
	CreatedAt time.Time `json:"created_at"` //nolint:tagliatelle // wire format
}

// registry is a best-effort record of pools ever created under a ShmDir.
// It is read as JWCC (comments and trailing commas are accepted) but
// written back as plain JSON, so comments do not survive a rewrite.
//
// It holds only information a segment's own header has no room for
// (creation time). No Manager operation reads it back: Stats and ListPools
// do not consult it, and whether a pool exists always comes from a live
// scan of ShmDir (scanLivePools).
type registry struct {
	path string
}

func newRegistry(shmDir string) *registry {
	return &registry{path: filepath.Join(shmDir, registryFileName)}
}

func (r *registry) load() (map[string]registryEntry, error) {
	data, err := os.ReadFile(r.path) //nolint:gosec // path is derived from configured ShmDir
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]registryEntry{}, nil
		}

		return nil, fmt.Errorf("l0pool: read registry: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		// A corrupt registry degrades to "no metadata", never to an error
		// that would block Create/Connect/ListPools.
		return map[string]registryEntry{}, nil
	}

	var entries map[string]registryEntry
	if err := json.Unmarshal(standardized, &entries); err != nil {
		return map[string]registryEntry{}, nil
	}

	return entries, nil
}

func (r *registry) recordCreated(name string) {
	entries, err := r.load()
	if err != nil {
		return
	}

	entries[name] = registryEntry{CreatedAt: time.Now()}

	r.writeBestEffort(entries)
}

func (r *registry) forget(name string) {
	entries, err := r.load()
	if err != nil {
		return
	}

	delete(entries, name)

	r.writeBestEffort(entries)
}

// writeBestEffort persists entries, swallowing errors: registry
// maintenance never blocks a pool operation that otherwise succeeded.
func (r *registry) writeBestEffort(entries map[string]registryEntry) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return
	}

	_ = atomicfile.WriteFile(r.path, strings.NewReader(string(data)))
}

// scanLivePools lists every segment present in shmDir by its pool name
// (the segment's OS name with the "l0p_" prefix stripped), ignoring
// expansion-generation files and the writer-lock companion files — this is
// the ground truth ListPools and Exists ultimately trust.
func scanLivePools(shmDir string) ([]string, error) {
	entries, err := os.ReadDir(shmDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("l0pool: scan %s: %w", shmDir, err)
	}

	seen := map[string]struct{}{}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		base := e.Name()

		if !strings.HasPrefix(base, segment.NamePrefix) {
			continue
		}

		if strings.HasSuffix(base, ".lock") {
			continue
		}

		if idx := strings.Index(base, "_exp_"); idx != -1 {
			base = base[:idx]
		}

		seen[strings.TrimPrefix(base, segment.NamePrefix)] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}
