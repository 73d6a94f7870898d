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

// Package localstore implements cachecc.Cache on local disk: a directory
// per fingerprint, sharded two levels deep so no single directory holds
// more entries than a filesystem comfortably lists, with sampled-LRU
// eviction under a byte budget.
package localstore

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fastrand"

	"github.com/google/cachecc"
)

// entryMeta is the on-disk sidecar recording everything needed to
// reconstruct an ArtifactSet without re-deriving role names from the
// filesystem layout. Serialized with encoding/json, the same primitive
// the teacher's own serialize.go reaches for alongside gob.
type entryMeta struct {
	ExitCode int             `json:"exit_code"`
	Roles    []string        `json:"roles"`
	Size     int64           `json:"size"`
}

// Store is a local, on-disk Cache. Zero value is not usable; construct
// with New.
type Store struct {
	dir     string
	maxSize uint64

	mu   sync.Mutex
	size int64
}

// totalSizeFile holds the store's running byte total as decimal text. A
// sidecar file rather than an in-memory field: spec.md §5 runs each
// wrapper invocation as its own one-shot process, so anything held only
// in memory would reset to zero on every invocation and eviction would
// never trigger. Concurrent writers racing this file is tolerated the
// same way spec.md §5 tolerates racing Inserts: last-writer-wins, and
// being off by one entry's worth of bytes never corrupts an entry, it
// only delays or advances when the next eviction sweep runs.
const totalSizeFile = ".totalsize"

// New opens a local store rooted at dir, evicting down to maxSize
// whenever Insert would otherwise exceed it. The running byte total is
// read back from totalSizeFile so the budget survives across the
// separate processes that take turns owning this Store.
func New(dir string, maxSize uint64) (*Store, error) {
	if err := cachecc.FS.MkdirAll(dir, 0755); err != nil {
		return nil, &cachecc.IOError{Op: "mkdir", Path: dir, Err: err}
	}
	s := &Store{dir: dir, maxSize: maxSize}
	s.size = s.readTotalSize()
	return s, nil
}

func (s *Store) readTotalSize() int64 {
	raw, err := cachecc.FS.ReadFile(cachecc.AppendPath(s.dir, totalSizeFile))
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// writeTotalSize persists the current size total. Best-effort: a failed
// write only means the next process re-derives a stale (but safe) total
// from whatever was last durably recorded.
func (s *Store) writeTotalSize(n int64) {
	cachecc.WriteAtomic([]byte(strconv.FormatInt(n, 10)), cachecc.AppendPath(s.dir, totalSizeFile))
}

func (s *Store) entryDir(fp cachecc.Fingerprint) string {
	hexFP := hex.EncodeToString(fp[:])
	shard1 := hexFP[0:2]
	shard2 := hexFP[2:4]
	return cachecc.AppendPath(cachecc.AppendPath(cachecc.AppendPath(s.dir, shard1), shard2), hexFP)
}

// Lookup implements cachecc.Cache. A half-written or concurrently-evicted
// entry reports cachecc.ErrCacheMiss, the same sentinel as a fingerprint
// that was never inserted at all: spec.md §7 degrades the same way on any
// Cache error, so there is no separate "corrupt entry" signal to give the
// orchestrator.
func (s *Store) Lookup(fp cachecc.Fingerprint) (cachecc.ArtifactSet, error) {
	dir := s.entryDir(fp)
	if !cachecc.DirExists(dir) {
		return cachecc.ArtifactSet{}, cachecc.ErrCacheMiss
	}

	metaPath := cachecc.AppendPath(dir, "meta.json")
	raw, err := cachecc.FS.ReadFile(metaPath)
	if err != nil {
		return cachecc.ArtifactSet{}, cachecc.ErrCacheMiss
	}
	var meta entryMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return cachecc.ArtifactSet{}, cachecc.ErrCacheMiss
	}

	set := cachecc.ArtifactSet{
		Artifacts: make(map[string]cachecc.Artifact, len(meta.Roles)),
		ExitCode:  meta.ExitCode,
	}
	for _, role := range meta.Roles {
		content, err := cachecc.FS.ReadFile(cachecc.AppendPath(dir, "role-"+role))
		if err != nil {
			return cachecc.ArtifactSet{}, cachecc.ErrCacheMiss
		}
		set.Artifacts[role] = cachecc.Artifact{Content: content}
	}
	if stdout, err := cachecc.FS.ReadFile(cachecc.AppendPath(dir, "stdout")); err == nil {
		set.Stdout = stdout
	}
	if stderr, err := cachecc.FS.ReadFile(cachecc.AppendPath(dir, "stderr")); err == nil {
		set.Stderr = stderr
	}

	s.touch(dir)
	return set, nil
}

// Insert implements cachecc.Cache. Writes are atomic per file
// (cachecc.WriteAtomic); a concurrent Insert of the same fingerprint from
// another process racing this one is tolerated as last-writer-wins, since
// both writers are, by definition, storing byte-identical content for the
// fingerprint's inputs.
func (s *Store) Insert(fp cachecc.Fingerprint, set cachecc.ArtifactSet) error {
	dir := s.entryDir(fp)
	if err := cachecc.FS.MkdirAll(dir, 0755); err != nil {
		return &cachecc.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	roles := make([]string, 0, len(set.Artifacts))
	var total int64
	for role, art := range set.Artifacts {
		roles = append(roles, role)
		total += int64(len(art.Content))
		if err := cachecc.WriteAtomic(art.Content, cachecc.AppendPath(dir, "role-"+role)); err != nil {
			return err
		}
	}
	sort.Strings(roles)
	if err := cachecc.WriteAtomic(set.Stdout, cachecc.AppendPath(dir, "stdout")); err != nil {
		return err
	}
	if err := cachecc.WriteAtomic(set.Stderr, cachecc.AppendPath(dir, "stderr")); err != nil {
		return err
	}
	total += int64(len(set.Stdout)) + int64(len(set.Stderr))

	meta := entryMeta{ExitCode: set.ExitCode, Roles: roles, Size: total}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return &cachecc.IOError{Op: "marshal meta", Path: dir, Err: err}
	}
	if err := cachecc.WriteAtomic(encoded, cachecc.AppendPath(dir, "meta.json")); err != nil {
		return err
	}

	s.recordInsert(total)
	return nil
}

// touch marks dir as recently used for the sampled-LRU eviction policy by
// rewriting its atime-equivalent marker file. A best-effort operation:
// failure to touch never fails a Lookup.
func (s *Store) touch(dir string) {
	cachecc.WriteAtomic([]byte{}, cachecc.AppendPath(dir, ".touched"))
}

func (s *Store) recordInsert(n int64) {
	s.mu.Lock()
	s.size += n
	size := s.size
	budget := s.maxSize
	s.mu.Unlock()
	s.writeTotalSize(size)

	if uint64(size) > budget {
		s.evictSampled(budget)
	}
}

// evictSampled implements sccache/ccache-style approximate LRU: rather
// than maintaining a globally-ordered recency index (which would need a
// lock held across every Lookup), it samples a handful of candidate
// entries via fastrand and evicts the least-recently-touched of the
// sample, repeating until back under budget. fastrand is already a
// transitive dependency of avfs; this is the only place this store reads
// the "reads" signal, so full accuracy isn't worth a global lock.
func (s *Store) evictSampled(budget uint64) {
	const sampleSize = 8
	const maxRounds = 64

	for round := 0; round < maxRounds; round++ {
		s.mu.Lock()
		over := uint64(s.size) > budget
		s.mu.Unlock()
		if !over {
			return
		}

		shards, err := cachecc.FS.ReadDir(s.dir)
		if err != nil || len(shards) == 0 {
			return
		}
		shardNames := make([]string, len(shards))
		for i, e := range shards {
			shardNames[i] = e.Name()
		}
		candidate := s.sampleEntry(shardNames, sampleSize)
		if candidate == "" {
			return
		}

		freed := s.entrySize(candidate)
		if err := cachecc.FS.RemoveAll(candidate); err != nil {
			continue
		}
		s.mu.Lock()
		s.size -= freed
		size := s.size
		s.mu.Unlock()
		s.writeTotalSize(size)
		cachecc.DiagLogf("localstore: evicted %s (%s freed)", candidate, humanize.Bytes(uint64(freed)))
	}
}

func (s *Store) sampleEntry(shards []string, n int) string {
	var oldest string
	var oldestTime int64 = -1
	tries := n
	for tries > 0 && len(shards) > 0 {
		tries--
		idx := int(fastrand.Uint32n(uint32(len(shards))))
		shard1 := cachecc.AppendPath(s.dir, shards[idx])
		subshardEntries, err := cachecc.FS.ReadDir(shard1)
		if err != nil || len(subshardEntries) == 0 {
			continue
		}
		sidx := int(fastrand.Uint32n(uint32(len(subshardEntries))))
		shard2 := cachecc.AppendPath(shard1, subshardEntries[sidx].Name())
		entries, err := cachecc.FS.ReadDir(shard2)
		if err != nil || len(entries) == 0 {
			continue
		}
		eidx := int(fastrand.Uint32n(uint32(len(entries))))
		entryDir := cachecc.AppendPath(shard2, entries[eidx].Name())

		t := s.entryTouchTime(entryDir)
		if oldestTime < 0 || t < oldestTime {
			oldestTime = t
			oldest = entryDir
		}
	}
	return oldest
}

func (s *Store) entryTouchTime(dir string) int64 {
	fi, err := cachecc.FS.Stat(cachecc.AppendPath(dir, ".touched"))
	if err != nil {
		fi, err = cachecc.FS.Stat(cachecc.AppendPath(dir, "meta.json"))
		if err != nil {
			return 0
		}
	}
	return fi.ModTime().UnixNano()
}

func (s *Store) entrySize(dir string) int64 {
	raw, err := cachecc.FS.ReadFile(cachecc.AppendPath(dir, "meta.json"))
	if err != nil {
		return 0
	}
	var meta entryMeta
	if json.Unmarshal(raw, &meta) != nil {
		return 0
	}
	return meta.Size
}
