package blob

import (
	"context"
	"os"
	"path/filepath"
)

// FSStore keeps each blob in <dir>/<id>.json. Writes go through a
// temporary file and a rename, so readers never see a partial blob.
type FSStore struct {
	dir string
}

// NewFSStore creates dir if needed. An empty dir means ./blobdata.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		dir = "./blobdata"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{dir: dir}, nil
}

func (f *FSStore) Driver() Driver { return DriverFilesystem }

func (f *FSStore) path(id string) string {
	return filepath.Join(f.dir, id+".json")
}

func (f *FSStore) Put(_ context.Context, id string, data []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, "."+id+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(id))
}

func (f *FSStore) Get(_ context.Context, id string) ([]byte, error) {
	if !ValidID(id) {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(f.path(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return b, err
}

func (f *FSStore) Stat(_ context.Context, id string) (Info, error) {
	if !ValidID(id) {
		return Info{}, ErrNotFound
	}
	fi, err := os.Stat(f.path(id))
	if os.IsNotExist(err) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, err
	}
	return Info{ID: id, Size: fi.Size(), Modified: fi.ModTime().UTC()}, nil
}
