// Package registry is the durable record of installed games, one list per backend.
//
// Mutations read the backend's full list, change one entry and write the
// full list back. The in-memory index answers lookups and is rebuilt by
// [Registry.RefreshInstalled], which must run at startup and after any
// mutation made outside this Registry.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/desertthunder/gamekeep/internal/kv"
	"github.com/desertthunder/gamekeep/internal/models"
)

// Namespace is the kv namespace holding the installed lists.
const Namespace = "installed"

// Registry indexes [models.InstalledInfo] by identity.
type Registry struct {
	bucket kv.Bucket
	mu     sync.RWMutex
	index  map[models.Backend]map[string]models.InstalledInfo
}

// New creates a registry over bucket. The index is empty until [Registry.RefreshInstalled] runs.
func New(bucket kv.Bucket) *Registry {
	return &Registry{bucket: bucket, index: make(map[models.Backend]map[string]models.InstalledInfo)}
}

// Open creates a registry and loads its index.
func Open(bucket kv.Bucket) (*Registry, error) {
	r := New(bucket)
	if err := r.RefreshInstalled(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load(backend models.Backend) ([]models.InstalledInfo, error) {
	var list []models.InstalledInfo
	if _, err := r.bucket.Get(string(backend), &list); err != nil {
		return nil, fmt.Errorf("failed to read installed list for %s: %w", backend, err)
	}
	return list, nil
}

func indexOf(list []models.InstalledInfo) map[string]models.InstalledInfo {
	idx := make(map[string]models.InstalledInfo, len(list))
	for _, info := range list {
		idx[info.AppName] = info
	}
	return idx
}

// RefreshInstalled rebuilds the index from the durable lists.
func (r *Registry) RefreshInstalled() error {
	index := make(map[models.Backend]map[string]models.InstalledInfo)
	for _, backend := range models.AllBackends() {
		list, err := r.load(backend)
		if err != nil {
			return err
		}
		index[backend] = indexOf(list)
	}

	r.mu.Lock()
	r.index = index
	r.mu.Unlock()
	return nil
}

// Get returns the installed record for id.
func (r *Registry) Get(id models.GameIdentity) (models.InstalledInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.index[id.Backend][id.AppName]
	return info, ok
}

func (r *Registry) IsInstalled(id models.GameIdentity) bool {
	_, ok := r.Get(id)
	return ok
}

// List returns a backend's installed games sorted by app name.
func (r *Registry) List(backend models.Backend) []models.InstalledInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]models.InstalledInfo, 0, len(r.index[backend]))
	for _, info := range r.index[backend] {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AppName < list[j].AppName })
	return list
}

// Put inserts or overwrites the record for id. No history is kept.
func (r *Registry) Put(id models.GameIdentity, info models.InstalledInfo) error {
	if err := id.Validate(); err != nil {
		return err
	}
	info.AppName = id.AppName

	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.load(id.Backend)
	if err != nil {
		return err
	}

	replaced := false
	for i := range list {
		if list[i].AppName == id.AppName {
			list[i] = info
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, info)
	}

	if err := r.bucket.Set(string(id.Backend), list); err != nil {
		return fmt.Errorf("failed to write installed list for %s: %w", id.Backend, err)
	}
	r.index[id.Backend] = indexOf(list)
	return nil
}

// Remove deletes the record for id and reports whether one existed.
func (r *Registry) Remove(id models.GameIdentity) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.load(id.Backend)
	if err != nil {
		return false, err
	}

	kept := list[:0]
	removed := false
	for _, info := range list {
		if info.AppName == id.AppName {
			removed = true
			continue
		}
		kept = append(kept, info)
	}
	if !removed {
		return false, nil
	}

	if err := r.bucket.Set(string(id.Backend), kept); err != nil {
		return false, fmt.Errorf("failed to write installed list for %s: %w", id.Backend, err)
	}
	r.index[id.Backend] = indexOf(kept)
	return true, nil
}
