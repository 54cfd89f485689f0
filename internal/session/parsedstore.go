package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/olx-analyzer/backend/internal/diffstore"
)

// shortID safely truncates an ID for logging
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// PersistentStores keeps the record stores of unfiltered streamed diffs on
// disk keyed by file ID, so reopening a large diff skips the stream.
type PersistentStores struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]string // fileID -> dbPath
}

// NewPersistentStores creates the registry and scans dir for earlier stores.
func NewPersistentStores(dir string) *PersistentStores {
	os.MkdirAll(dir, 0755)
	ps := &PersistentStores{dir: dir, cache: make(map[string]string)}
	ps.scanExisting()
	return ps
}

func (ps *PersistentStores) scanExisting() {
	entries, err := os.ReadDir(ps.dir)
	if err != nil {
		glog.Warningf("[ParsedStore] failed to scan %s: %v", ps.dir, err)
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "file_") || filepath.Ext(name) != ".duckdb" {
			continue
		}
		fileID := strings.TrimSuffix(strings.TrimPrefix(name, "file_"), ".duckdb")
		ps.cache[fileID] = filepath.Join(ps.dir, name)
	}
	glog.V(1).Infof("[ParsedStore] found %d stored diffs", len(ps.cache))
}

// DBPath is where the store of fileID lives.
func (ps *PersistentStores) DBPath(fileID string) string {
	return filepath.Join(ps.dir, fmt.Sprintf("file_%s.duckdb", fileID))
}

// Has reports whether a completed store exists for fileID.
func (ps *PersistentStores) Has(fileID string) bool {
	ps.mu.RLock()
	path, ok := ps.cache[fileID]
	ps.mu.RUnlock()
	if !ok {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		ps.mu.Lock()
		delete(ps.cache, fileID)
		ps.mu.Unlock()
		return false
	}
	return true
}

// Open opens the stored records of fileID read-only, or returns nil when
// there are none.
func (ps *PersistentStores) Open(fileID string) (*diffstore.Store, error) {
	if !ps.Has(fileID) {
		return nil, nil
	}
	glog.V(1).Infof("[ParsedStore] reopening stored diff %s", shortID(fileID))
	store, err := diffstore.OpenReadOnly(ps.DBPath(fileID))
	if err != nil {
		return nil, fmt.Errorf("failed to open stored diff: %w", err)
	}
	return store, nil
}

// Create starts a fresh store for fileID that outlives Close.
func (ps *PersistentStores) Create(fileID string) (*diffstore.Store, error) {
	path := ps.DBPath(fileID)
	os.Remove(path)
	store, err := diffstore.NewAtPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create stored diff: %w", err)
	}
	store.Keep()
	return store, nil
}

// MarkComplete makes a created store available to Open.
func (ps *PersistentStores) MarkComplete(fileID string) {
	ps.mu.Lock()
	ps.cache[fileID] = ps.DBPath(fileID)
	ps.mu.Unlock()
}

// Delete removes the store of fileID.
func (ps *PersistentStores) Delete(fileID string) error {
	ps.mu.Lock()
	delete(ps.cache, fileID)
	ps.mu.Unlock()

	if err := os.Remove(ps.DBPath(fileID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete stored diff: %w", err)
	}
	return nil
}

// CleanupOrphaned removes stores whose file is no longer uploaded.
func (ps *PersistentStores) CleanupOrphaned(fileIDs []string) int {
	valid := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		valid[id] = true
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	removed := 0
	for id, path := range ps.cache {
		if valid[id] {
			continue
		}
		os.Remove(path)
		delete(ps.cache, id)
		removed++
		glog.V(1).Infof("[ParsedStore] removed orphaned store %s", shortID(id))
	}
	return removed
}
