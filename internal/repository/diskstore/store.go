// Package diskstore keeps the local copy of every tenant index.
package diskstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

const (
	indexPrefix = "index_"
	metaPrefix  = "meta_"
	tmpPrefix   = ".tmp-"
)

// Store reads and writes index_<tenant> and meta_<tenant> files under a directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// New creates the directory if missing and returns a Store rooted at it.
func New(fsys afero.Fs, dir string) (*Store, error) {
	if err := fsys.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create index dir %s: %w", dir, err)
	}
	return &Store{fs: fsys, dir: dir}, nil
}

// NewOS returns a Store on the real filesystem.
func NewOS(dir string) (*Store, error) {
	return New(afero.NewOsFs(), dir)
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// ValidateTenant rejects ids that cannot be used as a file name suffix.
func ValidateTenant(tenant string) error {
	switch {
	case tenant == "", tenant == ".", tenant == "..":
		return fmt.Errorf("tenant id %q: %w", tenant, domain.ErrInvalidInput)
	case strings.ContainsAny(tenant, `/\`+"\x00"):
		return fmt.Errorf("tenant id %q contains a path separator: %w", tenant, domain.ErrInvalidInput)
	}
	return nil
}

// IndexPath returns the local path of the tenant's serialized index.
func (s *Store) IndexPath(tenant string) string {
	return filepath.Join(s.dir, indexPrefix+tenant)
}

// MetaPath returns the local path of the tenant's chunk records.
func (s *Store) MetaPath(tenant string) string {
	return filepath.Join(s.dir, metaPrefix+tenant)
}

// Write replaces both files. Each file is written to a temp name and renamed,
// so a reader sees either the old or the new content.
func (s *Store) Write(tenant string, index, meta []byte) error {
	if err := ValidateTenant(tenant); err != nil {
		return err
	}
	if err := s.writeAtomic(s.IndexPath(tenant), index); err != nil {
		return err
	}
	return s.writeAtomic(s.MetaPath(tenant), meta)
}

func (s *Store) writeAtomic(path string, data []byte) error {
	f, err := afero.TempFile(s.fs, s.dir, tmpPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return domain.NewStorageError("create temp", path, err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return domain.NewStorageError("write", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return domain.NewStorageError("sync", path, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return domain.NewStorageError("close", path, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return domain.NewStorageError("rename", path, err)
	}
	return nil
}

// Read returns both files. A missing file yields domain.ErrNotFound.
func (s *Store) Read(tenant string) (index, meta []byte, err error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, nil, err
	}
	index, err = s.readFile(s.IndexPath(tenant))
	if err != nil {
		return nil, nil, err
	}
	meta, err = s.readFile(s.MetaPath(tenant))
	if err != nil {
		return nil, nil, err
	}
	return index, meta, nil
}

func (s *Store) readFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
		}
		return nil, domain.NewStorageError("read", path, err)
	}
	return data, nil
}

// Exists reports whether both files are present.
func (s *Store) Exists(tenant string) bool {
	if ValidateTenant(tenant) != nil {
		return false
	}
	for _, p := range []string{s.IndexPath(tenant), s.MetaPath(tenant)} {
		ok, err := afero.Exists(s.fs, p)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Delete removes both files. Missing files are ignored.
func (s *Store) Delete(tenant string) error {
	if err := ValidateTenant(tenant); err != nil {
		return err
	}
	var firstErr error
	for _, p := range []string{s.IndexPath(tenant), s.MetaPath(tenant)} {
		if err := s.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = domain.NewStorageError("remove", p, err)
			}
		}
	}
	return firstErr
}

// Tenants lists tenants with both files on disk, sorted.
func (s *Store) Tenants() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, domain.NewStorageError("list", s.dir, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, indexPrefix) {
			continue
		}
		tenant := strings.TrimPrefix(name, indexPrefix)
		if s.Exists(tenant) {
			out = append(out, tenant)
		}
	}
	sort.Strings(out)
	return out, nil
}
