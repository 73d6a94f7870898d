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
	"testing"

	"github.com/avfs/avfs/vfs/memfs"
)

func init() {
	FS = memfs.New()
}

func TestAppendPathDirFile(t *testing.T) {
	for _, tc := range []struct {
		dir, file, want string
	}{
		{"a", "b", "a/b"},
		{"", "b", "b"},
		{"a", "", "a"},
		{"", "", ""},
	} {
		got := AppendPath(tc.dir, tc.file)
		if got != tc.want {
			t.Errorf("AppendPath(%q, %q)=%q, want %q", tc.dir, tc.file, got, tc.want)
		}
	}
}

func TestDirPartFilePartRoundTrip(t *testing.T) {
	for _, p := range []string{"a/b/c.o", "c.o", "/a/b", "/", "/a.c"} {
		dir := DirPart(p)
		file := FilePart(p)
		if got := AppendPath(dir, file); got != p {
			t.Errorf("AppendPath(DirPart(%q), FilePart(%q))=%q, want %q", p, p, got, p)
		}
	}
}

func TestExtension(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"a.c", ".c"},
		{"a.tar.gz", ".gz"},
		{"noext", ""},
		{"dir/a.o", ".o"},
		{".hidden", ".hidden"},
	} {
		if got := Extension(tc.in); got != tc.want {
			t.Errorf("Extension(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalizePath(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"a/./b", "a/b"},
		{"a/../b", "b"},
		{"a//b", "a/b"},
		{"a/b/", "a/b"},
		{"/", "/"},
		{"/foo/././bar/.", "/foo/bar"},
		{"/foo/./../bar/.", "/bar"},
		{"/foo/.///../bar/..", "/"},
	} {
		if got := CanonicalizePath(tc.in); got != tc.want {
			t.Errorf("CanonicalizePath(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFileExistsDirExists(t *testing.T) {
	if err := FS.MkdirAll("/tdir", 0755); err != nil {
		t.Fatal(err)
	}
	if err := FS.WriteFile("/tdir/f", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists("/tdir/f") {
		t.Error("FileExists(/tdir/f) = false, want true")
	}
	if FileExists("/tdir/nope") {
		t.Error("FileExists(/tdir/nope) = true, want false")
	}
	if !DirExists("/tdir") {
		t.Error("DirExists(/tdir) = false, want true")
	}
	if DirExists("/tdir/f") {
		t.Error("DirExists(/tdir/f) = true, want false (it's a file)")
	}
	// A bare Windows drive letter reports as an existing directory
	// regardless of the backing filesystem (spec.md §8): volumeName
	// recognizes it from the string alone, before any Stat.
	if !DirExists("c:") {
		t.Error(`DirExists("c:") = false, want true`)
	}
}

func TestWriteAtomic(t *testing.T) {
	if err := FS.MkdirAll("/wa", 0755); err != nil {
		t.Fatal(err)
	}
	path := "/wa/out.txt"
	if err := WriteAtomic([]byte("hello"), path); err != nil {
		t.Fatal(err)
	}
	data, err := FS.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("ReadFile(%q)=%q, want %q", path, data, "hello")
	}
	// Overwrite, verifying no leftover temp files are left dangling.
	if err := WriteAtomic([]byte("world"), path); err != nil {
		t.Fatal(err)
	}
	data, _ = FS.ReadFile(path)
	if string(data) != "world" {
		t.Errorf("after overwrite: ReadFile(%q)=%q, want %q", path, data, "world")
	}
}

func TestGetUniqueIDDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GetUniqueID()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("GetUniqueID produced a duplicate: %s", id)
		}
		seen[id] = true
	}
}
