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

// Artifact is one stored output: the bytes produced at a BuildFiles role.
// The exit code and streams needed to replay a hit byte-for-byte
// (spec.md §6) are kept on the enclosing ArtifactSet, not here.
type Artifact struct {
	Content []byte
}

// ArtifactSet binds every BuildFiles role produced by a cacheable
// invocation to its stored content, plus the captured exit code and
// streams needed to replay the invocation verbatim on a hit.
type ArtifactSet struct {
	Artifacts map[string]Artifact
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
}

// Cache is the façade component F delegates to: a fingerprint keyed
// store. Per spec.md §1/§4.5 this is deliberately external to the core —
// the local on-disk LRU store, remote backends, eviction policy, and the
// hash primitive underneath the store's own bookkeeping are all
// collaborator concerns. The core only ever calls Lookup and Insert.
type Cache interface {
	// Lookup is side-effect free. It returns (set, nil) on a hit,
	// (ArtifactSet{}, ErrCacheMiss) on a clean miss, and any other
	// non-nil error only when the store itself is unusable (e.g.
	// CACHE_DIR unwritable) — which the orchestrator treats the same as
	// a miss, since a broken store must never fail an otherwise-
	// successful invocation (spec.md §7).
	Lookup(fp Fingerprint) (ArtifactSet, error)

	// Insert is atomic per fingerprint: concurrent inserts for the same
	// fingerprint from independent wrapper processes must be tolerated,
	// with last-writer-wins or equivalent semantics owned by the store
	// (spec.md §5).
	Insert(fp Fingerprint, set ArtifactSet) error
}
