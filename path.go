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

// Package cachecc implements a transparent, content-addressed cache for
// deterministic compiler invocations: it decides whether a command line is
// cacheable, derives a stable fingerprint from its semantically relevant
// inputs, and binds that fingerprint to the set of artifacts the real tool
// would have produced.
package cachecc

import (
	"strings"

	"github.com/avfs/avfs"
	"github.com/google/uuid"
)

// FS is the filesystem every path/file operation in this package goes
// through. It is an avfs.VFS rather than bare os/path-filepath calls so the
// same code drives a real disk in production (avfs/vfs/osfs) and an
// in-memory filesystem in tests (avfs/vfs/memfs), per SPEC_FULL.md's
// Domain Stack.
var FS avfs.VFS

// AppendPath concatenates a directory and a file component. It never
// touches the filesystem or canonicalizes; see spec.md §3's invariant.
// A dir that already ends in the path separator (as DirPart returns for
// a root-anchored path, e.g. "/") is concatenated directly rather than
// gaining a second separator, so AppendPath(DirPart(p), FilePart(p))
// reconstructs p for those paths too.
func AppendPath(dir, file string) string {
	if dir == "" {
		return file
	}
	if file == "" {
		return dir
	}
	if dir[len(dir)-1] == FS.PathSeparator() {
		return dir + file
	}
	return dir + string(FS.PathSeparator()) + file
}

// DirPart returns everything before the last path separator in p, or ""
// if p has none. When that separator is p's first character ("/",
// "/a.c"), the separator itself is returned as the root directory.
func DirPart(p string) string {
	dir, _ := splitLast(p)
	return dir
}

// FilePart returns everything after the last path separator in p, or p
// itself if p has none.
func FilePart(p string) string {
	_, file := splitLast(p)
	return file
}

// splitLast is a separator-aware split that drops the trailing separator
// from dir so AppendPath(DirPart(p), FilePart(p)) reconstructs p (spec.md
// §3's invariant) — except when the separator sits at index 0, i.e. p is
// root-anchored with no intermediate directory component ("/", "/a.c").
// There, dropping it would discard the root itself with no way for
// AppendPath to put it back, so dir keeps the separator (the way
// filepath.Split keeps a leading "/" with its dir half) and file is
// everything after it, possibly empty for p == "/" itself.
func splitLast(p string) (dir, file string) {
	sep := FS.PathSeparator()
	i := strings.LastIndexByte(p, sep)
	if i < 0 {
		return "", p
	}
	if i == 0 {
		return p[:1], p[1:]
	}
	return p[:i], p[i+1:]
}

// Extension returns the suffix of FilePart(p) starting at the last '.',
// or "" if the file part contains no '.'.
func Extension(p string) string {
	file := FilePart(p)
	i := strings.LastIndexByte(file, '.')
	if i < 0 {
		return ""
	}
	return file[i:]
}

// CanonicalizePath performs lexical, lstat-free normalization: it resolves
// "." and "..", collapses repeated separators, normalizes the separator to
// the platform's native one, uppercases a Windows drive letter, and strips
// any trailing separator except at the filesystem root. It does not
// dereference symlinks.
func CanonicalizePath(p string) string {
	clean := FS.Clean(p)

	vol := volumeName(clean)
	rest := clean[len(vol):]

	if vol != "" {
		vol = strings.ToUpper(vol[:1]) + vol[1:]
	}

	sep := FS.PathSeparator()
	if len(rest) > 1 && rest[len(rest)-1] == sep {
		rest = rest[:len(rest)-1]
	}
	if rest == "" && vol != "" {
		rest = string(sep)
	}
	return vol + rest
}

// volumeName returns a Windows-style drive prefix ("C:") if p has one, or
// "" on platforms/paths without volume names.
func volumeName(p string) string {
	if len(p) >= 2 && p[1] == ':' {
		c := p[0]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return p[:2]
		}
	}
	return ""
}

// FileExists reports whether p names an existing file (or directory,
// socket, etc.) Predicate queries never fail: any stat error is "false".
func FileExists(p string) bool {
	_, err := FS.Stat(p)
	return err == nil
}

// DirExists reports whether p names an existing directory. Bare Windows
// drive letters ("C:") report as existing directories, matching the
// platform convention observed in the teacher's own path tests
// (spec.md §8).
func DirExists(p string) bool {
	if volumeName(p) == p && p != "" {
		return true
	}
	fi, err := FS.Stat(p)
	if err != nil {
		return false
	}
	return fi.IsDir()
}

// Getwd returns the process's current working directory.
func Getwd() (string, error) {
	wd, err := FS.Getwd()
	if err != nil {
		return "", &IOError{Op: "getwd", Path: "", Err: err}
	}
	return wd, nil
}

// Setwd sets the process's current working directory.
func Setwd(dir string) error {
	if err := FS.Chdir(dir); err != nil {
		return &IOError{Op: "chdir", Path: dir, Err: err}
	}
	return nil
}

// SystemTempDir returns the OS-provided temp root.
func SystemTempDir() string {
	return FS.TempDir()
}

// WriteAtomic produces data at path such that any concurrent reader sees
// either the old contents or the new contents, never a torn write: it
// writes to a sibling temp file in the same directory and renames it into
// place, relying on the filesystem's atomic-rename guarantee (spec.md §5's
// locking discipline).
func WriteAtomic(data []byte, path string) error {
	dir := DirPart(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := FS.CreateTemp(dir, FilePart(path)+".tmp-*")
	if err != nil {
		return &IOError{Op: "createtemp", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil {
		FS.Remove(tmpName)
		return &IOError{Op: "write", Path: tmpName, Err: werr}
	}
	if cerr != nil {
		FS.Remove(tmpName)
		return &IOError{Op: "close", Path: tmpName, Err: cerr}
	}
	if err := FS.Rename(tmpName, path); err != nil {
		FS.Remove(tmpName)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// GetUniqueID returns a fresh opaque identifier, collision-free across
// concurrent processes and hosts. google/uuid's NewRandom is RFC 4122 v4
// backed by crypto/rand, which is exactly the "cryptographically
// indistinguishable uniqueness across hosts and time" spec.md §3 asks for
// (mutagen uses the same call for session/connection identifiers).
func GetUniqueID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", &IOError{Op: "uuid", Path: "", Err: err}
	}
	return id.String(), nil
}
