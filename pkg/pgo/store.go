package pgo

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStore persists a profile in a single file. Writes go to a temporary
// file that is renamed over the target, so readers never see a torn file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load reads the stored profile. A missing file yields an empty profile.
func (s *FileStore) Load() (*Profile, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewProfile(), nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading profile %q", s.path)
	}
	return p, nil
}

// Save replaces the stored profile with p.
func (s *FileStore) Save(p *Profile) (retErr error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if retErr != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err := Encode(f, p); err != nil {
		return errors.Wrapf(err, "encoding profile %q", s.path)
	}
	if err := f.Sync(); err != nil {
		return errors.WithStack(err)
	}
	if err := f.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(f.Name(), s.path))
}

// Merge loads the stored profile, unions p into it and saves the result.
func (s *FileStore) Merge(p *Profile) (*Profile, error) {
	stored, err := s.Load()
	if err != nil {
		return nil, err
	}
	stored.Merge(p)
	if err := s.Save(stored); err != nil {
		return nil, err
	}
	return stored, nil
}
