package docstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps one JSON document per collection under a base directory.
// Writes go to a temp file in the same directory followed by an atomic
// rename, so a crash mid-write leaves the previous document intact.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the base directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, unavailable("create data dir", err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *FileStore) lock(collection string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		s.locks[collection] = l
	}
	return l
}

func (s *FileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

func (s *FileStore) Update(ctx context.Context, collection string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()

	raw, err := s.read(collection)
	if err != nil {
		return err
	}
	out, changed, err := fn(raw)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.write(collection, out)
}

func (s *FileStore) Load(ctx context.Context, collection string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()
	return s.read(collection)
}

func (s *FileStore) read(collection string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(collection))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("read "+collection, err)
	}
	return raw, nil
}

func (s *FileStore) write(collection string, out []byte) error {
	tmp, err := os.CreateTemp(s.dir, collection+"-*.tmp")
	if err != nil {
		return unavailable("create temp for "+collection, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return unavailable("write "+collection, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return unavailable("sync "+collection, err)
	}
	if err := tmp.Close(); err != nil {
		return unavailable("close "+collection, err)
	}
	if err := os.Rename(tmp.Name(), s.path(collection)); err != nil {
		return unavailable("rename "+collection, err)
	}
	return nil
}
