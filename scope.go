// Copyright 2015 Google Inc. All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cachecc

import (
	"sync"
)

// TempFile reserves a unique candidate path under dir, of the form
// "<dir>/<random-id><ext>" (spec.md §6's "Filesystem layout of scoped temp
// entries"). Construction does not create anything on disk; it only
// reserves a name. Release removes whatever ended up at Path, file or
// directory, recursively, if anything is there.
type TempFile struct {
	Path     string
	released bool
	mu       sync.Mutex
}

// NewTempFile constructs a scoped temp-file/dir resource under dir with
// the given extension (which may be empty). Two concurrently-constructed
// TempFiles under the same dir always yield distinct paths, because the
// id comes from GetUniqueID.
func NewTempFile(dir, ext string) (*TempFile, error) {
	id, err := GetUniqueID()
	if err != nil {
		return nil, err
	}
	return &TempFile{Path: AppendPath(dir, id+ext)}, nil
}

// Release removes Path if it exists (unlinking a file, recursively
// removing a directory) and is a no-op if nothing was ever created there.
// It is idempotent and safe to call multiple times, e.g. from both a
// defer and an explicit early-success path.
func (t *TempFile) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return nil
	}
	t.released = true

	if !FileExists(t.Path) {
		return nil
	}
	if err := FS.RemoveAll(t.Path); err != nil {
		return &IOError{Op: "remove", Path: t.Path, Err: err}
	}
	return nil
}

// ScopedWorkDir represents "current working directory is newCwd until
// this resource is released"; Release restores the prior CWD even when
// the caller is unwinding on an error path.
type ScopedWorkDir struct {
	prev     string
	released bool
}

// NewScopedWorkDir remembers the current CWD and chdirs to newCwd.
func NewScopedWorkDir(newCwd string) (*ScopedWorkDir, error) {
	prev, err := Getwd()
	if err != nil {
		return nil, err
	}
	if err := Setwd(newCwd); err != nil {
		return nil, err
	}
	return &ScopedWorkDir{prev: prev}, nil
}

// Release restores the CWD captured at construction time.
func (s *ScopedWorkDir) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	return Setwd(s.prev)
}

// WithScopedWorkDir runs fn with the CWD set to dir, always restoring the
// prior CWD afterward, including when fn panics or returns an error. This
// is the idiomatic call site for ScopedWorkDir: the guard's lifetime is
// exactly fn's stack frame.
func WithScopedWorkDir(dir string, fn func() error) (err error) {
	s, err := NewScopedWorkDir(dir)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := s.Release(); err == nil {
			err = rerr
		}
	}()
	return fn()
}

// WithTempFile reserves a scoped temp path under dir with the given
// extension, passes it to fn, and guarantees removal afterward regardless
// of how fn returns.
func WithTempFile(dir, ext string, fn func(path string) error) (err error) {
	t, err := NewTempFile(dir, ext)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := t.Release(); err == nil {
			err = rerr
		}
	}()
	return fn(t.Path)
}

// WithTempDir is WithTempFile specialized to create the directory itself
// before invoking fn, since most temp-dir callers need it to already
// exist.
func WithTempDir(parent string, fn func(dir string) error) (err error) {
	t, err := NewTempFile(parent, "")
	if err != nil {
		return err
	}
	if err := FS.MkdirAll(t.Path, 0755); err != nil {
		return &IOError{Op: "mkdir", Path: t.Path, Err: err}
	}
	defer func() {
		if rerr := t.Release(); err == nil {
			err = rerr
		}
	}()
	return fn(t.Path)
}
