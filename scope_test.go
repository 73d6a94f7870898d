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
	"errors"
	"testing"
)

func TestNewTempFileDistinctPaths(t *testing.T) {
	FS.MkdirAll("/scope", 0755)
	a, err := NewTempFile("/scope", ".tmp")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewTempFile("/scope", ".tmp")
	if err != nil {
		t.Fatal(err)
	}
	if a.Path == b.Path {
		t.Fatalf("two NewTempFile calls returned the same path: %s", a.Path)
	}
}

func TestTempFileReleaseRemovesContent(t *testing.T) {
	FS.MkdirAll("/scope2", 0755)
	tf, err := NewTempFile("/scope2", ".tmp")
	if err != nil {
		t.Fatal(err)
	}
	if err := FS.WriteFile(tf.Path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := tf.Release(); err != nil {
		t.Fatal(err)
	}
	if FileExists(tf.Path) {
		t.Errorf("Release did not remove %s", tf.Path)
	}
	// Idempotent: releasing twice is not an error.
	if err := tf.Release(); err != nil {
		t.Errorf("second Release returned %v, want nil", err)
	}
}

func TestTempFileReleaseNeverCreated(t *testing.T) {
	FS.MkdirAll("/scope3", 0755)
	tf, err := NewTempFile("/scope3", ".tmp")
	if err != nil {
		t.Fatal(err)
	}
	if err := tf.Release(); err != nil {
		t.Errorf("Release on a never-created temp path returned %v, want nil", err)
	}
}

func TestWithScopedWorkDirRestoresOnError(t *testing.T) {
	FS.MkdirAll("/wd/a", 0755)
	FS.MkdirAll("/wd/b", 0755)
	FS.Chdir("/wd/a")

	sentinel := errors.New("boom")
	err := WithScopedWorkDir("/wd/b", func() error {
		wd, _ := Getwd()
		if wd != "/wd/b" {
			t.Errorf("inside WithScopedWorkDir: Getwd()=%q, want /wd/b", wd)
		}
		return sentinel
	})
	if err != sentinel {
		t.Errorf("WithScopedWorkDir returned %v, want sentinel", err)
	}
	if wd, _ := Getwd(); wd != "/wd/a" {
		t.Errorf("after WithScopedWorkDir: Getwd()=%q, want /wd/a (restored)", wd)
	}
}

func TestWithTempDirCreatesAndRemoves(t *testing.T) {
	FS.MkdirAll("/td", 0755)
	var captured string
	err := WithTempDir("/td", func(dir string) error {
		captured = dir
		if !DirExists(dir) {
			t.Errorf("inside WithTempDir: %s does not exist", dir)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if FileExists(captured) {
		t.Errorf("WithTempDir left %s behind after return", captured)
	}
}
