// Package kv is the durable key-value store behind the registry, caches,
// settings, credentials and offline queues.
//
// Each logical concern gets its own namespace (a bbolt bucket). Values are
// stored as JSON. A [Store] opened with an empty path keeps everything in
// memory, which is what tests use.
package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket is the namespaced key-value contract consumed by the rest of the core.
type Bucket interface {
	// Get decodes the value at key into dest and reports whether it existed.
	Get(key string, dest any) (bool, error)
	Set(key string, value any) error
	Delete(key string) error
	Has(key string) (bool, error)
	Keys() ([]string, error)
	Clear() error
}

// Store owns the bbolt database file, or an in-memory map in memory-only mode.
type Store struct {
	db  *bolt.DB
	mu  sync.RWMutex
	mem map[string]map[string][]byte
}

// Open opens (creating if needed) the bbolt file at path. An empty path selects memory-only mode.
func Open(path string) (*Store, error) {
	if path == "" {
		return &Store{mem: make(map[string]map[string][]byte)}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	return &Store{db: db}, nil
}

// Memory returns a memory-only store.
func Memory() *Store {
	s, _ := Open("")
	return s
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Namespace returns the bucket for name. Buckets are created on first write.
func (s *Store) Namespace(name string) *Namespace {
	return &Namespace{store: s, name: []byte(name)}
}

// Namespaces lists every namespace that holds data.
func (s *Store) Namespaces() ([]string, error) {
	var names []string
	if s.db == nil {
		s.mu.RLock()
		for name, m := range s.mem {
			if len(m) > 0 {
				names = append(names, name)
			}
		}
		s.mu.RUnlock()
		sort.Strings(names)
		return names, nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// Namespace is one named bucket within a [Store].
type Namespace struct {
	store *Store
	name  []byte
}

var _ Bucket = (*Namespace)(nil)

func (n *Namespace) Name() string { return string(n.name) }

func (n *Namespace) read(key string) ([]byte, error) {
	s := n.store
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.mem[string(n.name)][key], nil
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(n.name)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	return data, err
}

func (n *Namespace) Get(key string, dest any) (bool, error) {
	data, err := n.read(key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s/%s: %w", n.name, key, err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s/%s: %w", n.name, key, err)
	}
	return true, nil
}

func (n *Namespace) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", n.name, key, err)
	}

	s := n.store
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		m, ok := s.mem[string(n.name)]
		if !ok {
			m = make(map[string][]byte)
			s.mem[string(n.name)] = m
		}
		m[key] = data
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(n.name)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (n *Namespace) Delete(key string) error {
	s := n.store
	if s.db == nil {
		s.mu.Lock()
		delete(s.mem[string(n.name)], key)
		s.mu.Unlock()
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(n.name)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (n *Namespace) Has(key string) (bool, error) {
	data, err := n.read(key)
	return data != nil, err
}

// Keys returns every key in the namespace in byte order.
func (n *Namespace) Keys() ([]string, error) {
	s := n.store
	var keys []string
	if s.db == nil {
		s.mu.RLock()
		for k := range s.mem[string(n.name)] {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
		sort.Strings(keys)
		return keys, nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(n.name)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Clear drops every key in the namespace.
func (n *Namespace) Clear() error {
	s := n.store
	if s.db == nil {
		s.mu.Lock()
		delete(s.mem, string(n.name))
		s.mu.Unlock()
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(n.name) == nil {
			return nil
		}
		return tx.DeleteBucket(n.name)
	})
}
