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

package localstore

import (
	"errors"
	"testing"

	"github.com/avfs/avfs/vfs/memfs"

	"github.com/google/cachecc"
)

func init() {
	cachecc.FS = memfs.New()
}

func fp(b byte) cachecc.Fingerprint {
	var f cachecc.Fingerprint
	f[0] = b
	return f
}

func TestStoreLookupMiss(t *testing.T) {
	s, err := New("/cache", cachecc.DefaultMaxSize)
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Lookup(fp(1))
	if !errors.Is(err, cachecc.ErrCacheMiss) {
		t.Errorf("Lookup on an empty store returned err=%v, want ErrCacheMiss", err)
	}
}

func TestStoreInsertThenLookup(t *testing.T) {
	s, err := New("/cache2", cachecc.DefaultMaxSize)
	if err != nil {
		t.Fatal(err)
	}
	set := cachecc.ArtifactSet{
		Artifacts: map[string]cachecc.Artifact{
			cachecc.RoleObject: {Content: []byte("OBJ")},
		},
		ExitCode: 0,
		Stdout:   []byte("out"),
		Stderr:   []byte("err"),
	}
	if err := s.Insert(fp(2), set); err != nil {
		t.Fatal(err)
	}

	got, err := s.Lookup(fp(2))
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Artifacts[cachecc.RoleObject].Content) != "OBJ" {
		t.Errorf("Artifacts[object]=%q, want OBJ", got.Artifacts[cachecc.RoleObject].Content)
	}
	if string(got.Stdout) != "out" || string(got.Stderr) != "err" {
		t.Errorf("Stdout/Stderr=%q/%q, want out/err", got.Stdout, got.Stderr)
	}
}

func TestStoreDistinctFingerprintsDistinctEntries(t *testing.T) {
	s, err := New("/cache3", cachecc.DefaultMaxSize)
	if err != nil {
		t.Fatal(err)
	}
	setA := cachecc.ArtifactSet{Artifacts: map[string]cachecc.Artifact{cachecc.RoleObject: {Content: []byte("A")}}}
	setB := cachecc.ArtifactSet{Artifacts: map[string]cachecc.Artifact{cachecc.RoleObject: {Content: []byte("B")}}}
	s.Insert(fp(3), setA)
	s.Insert(fp(4), setB)

	gotA, _ := s.Lookup(fp(3))
	gotB, _ := s.Lookup(fp(4))
	if string(gotA.Artifacts[cachecc.RoleObject].Content) != "A" {
		t.Errorf("fp(3) artifact=%q, want A", gotA.Artifacts[cachecc.RoleObject].Content)
	}
	if string(gotB.Artifacts[cachecc.RoleObject].Content) != "B" {
		t.Errorf("fp(4) artifact=%q, want B", gotB.Artifacts[cachecc.RoleObject].Content)
	}
}

func TestStoreEvictsUnderByteBudget(t *testing.T) {
	// A tiny budget forces every insert past the first to trigger
	// eviction; the store must never grow unbounded.
	s, err := New("/cache4", 64)
	if err != nil {
		t.Fatal(err)
	}
	payload := make([]byte, 40)
	for i := 0; i < 10; i++ {
		set := cachecc.ArtifactSet{Artifacts: map[string]cachecc.Artifact{cachecc.RoleObject: {Content: payload}}}
		if err := s.Insert(fp(byte(i)), set); err != nil {
			t.Fatal(err)
		}
	}
	if s.size > int64(2*64) {
		t.Errorf("store size=%d after eviction, want roughly within budget (64)", s.size)
	}
}
