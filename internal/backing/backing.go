// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package backing is the thin adapter between the operation interceptor
// and the host filesystem: an afero.Fs rooted at either a real directory
// or an in-memory synthetic tree, plus xattr passthrough for names outside
// the bf.* control plane.
package backing

import (
	"os"
	"sync"

	"github.com/pkg/xattr"
	"github.com/spf13/afero"
)

// Store forwards filesystem operations to a backing afero.Fs.
type Store struct {
	Fs       afero.Fs
	inMemory bool

	// memXattrs holds non-bf.* xattrs for the in-memory backend, which has
	// no real inode to carry them.
	mu        sync.Mutex
	memXattrs map[string]map[string][]byte
}

// NewOsBacking roots the store at a real directory (--backing <dir>).
func NewOsBacking(dir string) *Store {
	return &Store{Fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}
}

// NewMemBacking creates the default in-memory synthetic backing store.
func NewMemBacking() *Store {
	return &Store{
		Fs:        afero.NewMemMapFs(),
		inMemory:  true,
		memXattrs: make(map[string]map[string][]byte),
	}
}

func (s *Store) Open(path string) (afero.File, error) { return s.Fs.Open(path) }

func (s *Store) OpenFile(path string, flag int, perm os.FileMode) (afero.File, error) {
	return s.Fs.OpenFile(path, flag, perm)
}

func (s *Store) Mkdir(path string, perm os.FileMode) error { return s.Fs.Mkdir(path, perm) }

func (s *Store) Remove(path string) error { return s.Fs.Remove(path) }

func (s *Store) Rename(oldpath, newpath string) error {
	if err := s.Fs.Rename(oldpath, newpath); err != nil {
		return err
	}
	if s.inMemory {
		s.mu.Lock()
		defer s.mu.Unlock()
		if attrs, ok := s.memXattrs[oldpath]; ok {
			s.memXattrs[newpath] = attrs
			delete(s.memXattrs, oldpath)
		}
	}
	return nil
}

func (s *Store) Stat(path string) (os.FileInfo, error) { return s.Fs.Stat(path) }

func (s *Store) ReadDir(path string) ([]os.FileInfo, error) {
	return afero.ReadDir(s.Fs, path)
}

func (s *Store) Truncate(path string, size int64) error {
	f, err := s.Fs.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

// SizeOf reports the byte size of the file at path, for MaxSize's lazy
// subtree-size seed.
func (s *Store) SizeOf(path string) (uint64, error) {
	fi, err := s.Fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()), nil
}

// RealPath returns the absolute host path backing path, valid only when the
// store is OS-backed; used to call pkg/xattr, which operates on real paths.
func (s *Store) RealPath(path string) (string, bool) {
	basePathFs, ok := s.Fs.(*afero.BasePathFs)
	if !ok {
		return "", false
	}
	real, err := basePathFs.RealPath(path)
	if err != nil {
		return "", false
	}
	return real, true
}

// GetXattr, SetXattr, RemoveXattr and ListXattr implement passthrough for
// xattr names outside the bf.* namespace: real syscalls via
// github.com/pkg/xattr against an OS-backed store, an in-process map
// against the in-memory synthetic one.

func (s *Store) GetXattr(path, name string) ([]byte, error) {
	if real, ok := s.RealPath(path); ok {
		return xattr.Get(real, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, ok := s.memXattrs[path]
	if !ok {
		return nil, xattr.ENOATTR
	}
	v, ok := attrs[name]
	if !ok {
		return nil, xattr.ENOATTR
	}
	return v, nil
}

func (s *Store) SetXattr(path, name string, value []byte) error {
	if real, ok := s.RealPath(path); ok {
		return xattr.Set(real, name, value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, ok := s.memXattrs[path]
	if !ok {
		attrs = make(map[string][]byte)
		s.memXattrs[path] = attrs
	}
	attrs[name] = value
	return nil
}

func (s *Store) RemoveXattr(path, name string) error {
	if real, ok := s.RealPath(path); ok {
		return xattr.Remove(real, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, ok := s.memXattrs[path]
	if !ok {
		return xattr.ENOATTR
	}
	if _, ok := attrs[name]; !ok {
		return xattr.ENOATTR
	}
	delete(attrs, name)
	return nil
}

func (s *Store) ListXattr(path string) ([]string, error) {
	if real, ok := s.RealPath(path); ok {
		return xattr.List(real)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs := s.memXattrs[path]
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	return names, nil
}
