package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// JsonFileStore stores each collection as a separate JSON file on disk.
//
// Layout:
//
//	data_dir/
//	  goals.json      # "goals" collection
//	  stocks.json     # "stocks" collection
//
// Each file holds an array of {"key": ..., "data": ...} objects in
// insertion order. Files are replaced atomically via rename.
type JsonFileStore struct {
	mu  sync.RWMutex
	dir string
}

type fileEntry struct {
	Key  string         `json:"key"`
	Data map[string]any `json:"data"`
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JsonFileStore{dir: dir}, nil
}

func (s *JsonFileStore) collectionPath(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// loadCollection reads a collection file. It returns ErrNoCollection when
// the file does not exist.
func (s *JsonFileStore) loadCollection(collection string) ([]fileEntry, error) {
	data, err := os.ReadFile(s.collectionPath(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCollection
		}
		return nil, err
	}
	var entries []fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return entries, nil
}

func (s *JsonFileStore) saveCollection(collection string, entries []fileEntry) error {
	if entries == nil {
		entries = []fileEntry{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	path := s.collectionPath(collection)
	tmp, err := os.CreateTemp(s.dir, "."+collection+"-*.tmp")
	if err != nil {
		return classifyFileErr(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return classifyFileErr(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return classifyFileErr(err)
	}
	if err := tmp.Close(); err != nil {
		return classifyFileErr(err)
	}
	return classifyFileErr(os.Rename(tmp.Name(), path))
}

func classifyFileErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return fmt.Errorf("%w: %v", ErrFull, err)
	}
	return err
}

func upsertEntry(entries []fileEntry, key string, data map[string]any) []fileEntry {
	for i := range entries {
		if entries[i].Key == key {
			entries[i].Data = data
			return entries
		}
	}
	return append(entries, fileEntry{Key: key, Data: data})
}

func (s *JsonFileStore) CreateCollection(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.collectionPath(collection)); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return s.saveCollection(collection, nil)
}

func (s *JsonFileStore) GetAll(_ context.Context, collection string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return nil, err
	}
	result := make([]Entry, 0, len(coll))
	for _, e := range coll {
		result = append(result, Entry{Key: e.Key, Data: e.Data})
	}
	return result, nil
}

func (s *JsonFileStore) Get(_ context.Context, collection, key string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return nil, err
	}
	for _, e := range coll {
		if e.Key == key {
			return e.Data, nil
		}
	}
	return nil, nil
}

func (s *JsonFileStore) Put(_ context.Context, collection, key string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return err
	}
	return s.saveCollection(collection, upsertEntry(coll, key, data))
}

func (s *JsonFileStore) PutAll(_ context.Context, collection string, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return err
	}
	for _, e := range entries {
		coll = upsertEntry(coll, e.Key, e.Data)
	}
	return s.saveCollection(collection, coll)
}

func (s *JsonFileStore) Delete(_ context.Context, collection, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return false, err
	}
	for i, e := range coll {
		if e.Key == key {
			coll = append(coll[:i], coll[i+1:]...)
			return true, s.saveCollection(collection, coll)
		}
	}
	return false, nil
}

func (s *JsonFileStore) Count(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return 0, err
	}
	return len(coll), nil
}

func (s *JsonFileStore) Close() error { return nil }
