package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/scrim-lobby/internal/domain"
)

// ErrInvalidCollection is returned for collection names that could escape the data directory
var ErrInvalidCollection = errors.New("invalid collection name")

// Backend reads and replaces whole collections
type Backend interface {
	Read(collection string, dst any) error
	Write(collection string, items any) error
}

// FileStore keeps one JSON array file per collection under a data directory.
// Reads of a collection run concurrently; writes are exclusive and atomic.
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex

	rename func(oldpath, newpath string) error
}

// NewFileStore creates a file store rooted at dir, creating the directory if needed
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.RWMutex),
		rename: os.Rename,
	}, nil
}

// Dir returns the data directory
func (s *FileStore) Dir() string {
	return s.dir
}

// Init creates every missing collection file as an empty array
func (s *FileStore) Init(collections ...string) error {
	for _, name := range collections {
		path, err := s.path(name)
		if err != nil {
			return err
		}

		created, err := s.ensure(name, path)
		if err != nil {
			return fmt.Errorf("%w: initializing collection %s: %v", domain.ErrIO, name, err)
		}
		if created {
			s.logger.Info("created collection file", "collection", name, "path", path)
		}
	}
	return nil
}

func (s *FileStore) ensure(collection, path string) (bool, error) {
	lock := s.lock(collection)
	lock.Lock()
	defer lock.Unlock()

	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := s.replace(path, []byte("[]")); err != nil {
		return false, err
	}
	return true, nil
}

// Read decodes the collection into dst, which must be a pointer to a slice.
// A missing, empty or corrupt file leaves dst as the zero value.
func (s *FileStore) Read(collection string, dst any) error {
	path, err := s.path(collection)
	if err != nil {
		return err
	}

	lock := s.lock(collection)
	lock.RLock()
	defer lock.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: reading %s: %v", domain.ErrIO, collection, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Error("corrupt collection file, treating as empty",
			"collection", collection,
			"path", path,
			"error", err,
		)
		resetValue(dst)
	}
	return nil
}

// Write replaces the collection with items. The new content is staged in a
// temporary file and renamed into place; the previous version is kept as
// <name>.json.bak.
func (s *FileStore) Write(collection string, items any) error {
	path, err := s.path(collection)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", domain.ErrIO, collection, err)
	}

	lock := s.lock(collection)
	lock.Lock()
	defer lock.Unlock()

	if err := s.replace(path, data); err != nil {
		s.logger.Error("failed to write collection", "collection", collection, "error", err)
		return fmt.Errorf("%w: writing %s: %v", domain.ErrIO, collection, err)
	}
	return nil
}

// replace performs the staged swap. Callers hold the collection's write lock.
func (s *FileStore) replace(path string, data []byte) error {
	tmp := path + ".tmp"
	bak := path + ".bak"

	if err := writeSynced(tmp, data); err != nil {
		os.Remove(tmp)
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.rename(path, bak); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("moving current file to backup: %w", err)
		}
	}

	if err := s.rename(tmp, path); err != nil {
		os.Remove(tmp)
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			if restoreErr := s.rename(bak, path); restoreErr != nil && !errors.Is(restoreErr, os.ErrNotExist) {
				s.logger.Error("failed to restore backup", "path", path, "error", restoreErr)
			}
		}
		return fmt.Errorf("moving staged file into place: %w", err)
	}
	return nil
}

// lock returns the lock guarding a collection, creating it on first use
func (s *FileStore) lock(collection string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[collection]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[collection] = l
	}
	return l
}

// path maps a collection name to its file, rejecting names that could traverse directories
func (s *FileStore) path(collection string) (string, error) {
	name := strings.TrimSuffix(collection, ".json")
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating staged file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing staged file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing staged file: %w", err)
	}
	return f.Close()
}

// resetValue sets *dst back to its zero value after a partial decode
func resetValue(dst any) {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	v.Elem().Set(reflect.Zero(v.Elem().Type()))
}

// ReadAll loads every record of a collection
func ReadAll[T any](b Backend, collection string) ([]T, error) {
	var items []T
	if err := b.Read(collection, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// WriteAll replaces a collection with items
func WriteAll[T any](b Backend, collection string, items []T) error {
	if items == nil {
		items = []T{}
	}
	return b.Write(collection, items)
}
