package store

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
)

type memCollection struct {
	keys []string
	docs map[string]map[string]any
}

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

// deepCopy returns a deep copy of a document by round-tripping through JSON.
func deepCopy(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	b, _ := json.Marshal(src)
	var dst map[string]any
	_ = json.Unmarshal(b, &dst)
	return dst
}

func (m *MemoryStore) CreateCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		m.collections[collection] = &memCollection{docs: make(map[string]map[string]any)}
	}
	return nil
}

func (m *MemoryStore) GetAll(_ context.Context, collection string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[collection]
	if !ok {
		return nil, ErrNoCollection
	}
	result := make([]Entry, 0, len(coll.keys))
	for _, k := range coll.keys {
		result = append(result, Entry{Key: k, Data: deepCopy(coll.docs[k])})
	}
	return result, nil
}

func (m *MemoryStore) Get(_ context.Context, collection, key string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[collection]
	if !ok {
		return nil, ErrNoCollection
	}
	doc, ok := coll.docs[key]
	if !ok {
		return nil, nil
	}
	return deepCopy(doc), nil
}

func (m *MemoryStore) Put(_ context.Context, collection, key string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return ErrNoCollection
	}
	coll.put(key, deepCopy(data))
	return nil
}

func (m *MemoryStore) PutAll(_ context.Context, collection string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return ErrNoCollection
	}
	for _, e := range entries {
		coll.put(e.Key, deepCopy(e.Data))
	}
	return nil
}

func (c *memCollection) put(key string, doc map[string]any) {
	if _, exists := c.docs[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.docs[key] = doc
}

func (m *MemoryStore) Delete(_ context.Context, collection, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return false, ErrNoCollection
	}
	if _, exists := coll.docs[key]; !exists {
		return false, nil
	}
	delete(coll.docs, key)
	coll.keys = slices.DeleteFunc(coll.keys, func(k string) bool { return k == key })
	return true, nil
}

func (m *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[collection]
	if !ok {
		return 0, ErrNoCollection
	}
	return len(coll.keys), nil
}

func (m *MemoryStore) Close() error { return nil }
