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
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"sort"
)

// Fingerprint is the opaque digest identifying a cacheable invocation
// (spec.md §3). Its stability across cachecc versions is not guaranteed;
// FingerprintFormatVersion is mixed into the first labeled segment so a
// format change always changes the digest rather than silently colliding
// with an incompatible cache entry.
type Fingerprint [32]byte

// FingerprintFormatVersion is bumped whenever the set or order of folded
// segments changes.
const FingerprintFormatVersion = 1

// Fingerprinter is the hasher façade from spec.md §4.3: a streaming
// accumulator that ingests byte slices in label+length-prefixed segments
// so two distinct inputs can never alias under concatenation (a relevant
// arg "ab" followed by "c" must not hash the same as "a" followed by
// "bc"). The underlying primitive is a pluggable hash.Hash — spec.md §4.3
// calls the concrete algorithm "a choice of the store layer, not the
// wrapper" — defaulting to crypto/sha256, truncated/accepted at 32 bytes.
type Fingerprinter struct {
	h hash.Hash
}

// NewFingerprinter constructs a Fingerprinter over h, or crypto/sha256 if
// h is nil.
func NewFingerprinter(h hash.Hash) *Fingerprinter {
	if h == nil {
		h = sha256.New()
	}
	fp := &Fingerprinter{h: h}
	fp.writeSegment("format", []byte{byte(FingerprintFormatVersion)})
	return fp
}

// writeSegment folds label+len(content)+content into the accumulator.
func (fp *Fingerprinter) writeSegment(label string, content []byte) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(label)))
	fp.h.Write(lenBuf[:])
	fp.h.Write([]byte(label))
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(content)))
	fp.h.Write(lenBuf[:])
	fp.h.Write(content)
}

// Sum returns the folded Fingerprint. It does not mutate the
// Fingerprinter; segments may keep being added afterward.
func (fp *Fingerprinter) Sum() Fingerprint {
	var out Fingerprint
	sum := fp.h.Sum(nil)
	n := copy(out[:], sum)
	// A hash.Hash with a digest shorter than 32 bytes (unusual, but the
	// primitive is pluggable) pads with zero rather than panicking;
	// longer digests are truncated. Either way Sum is total.
	_ = n
	return out
}

// FingerprintInputs is the full set of segments spec.md §3 folds, in the
// fixed order it prescribes.
type FingerprintInputs struct {
	ProgramID          string
	CompatibleMode      string
	Capabilities       []string // folded sorted
	RelevantArgs       ArgList  // folded order-preserving
	RelevantEnv        map[string]string // folded with keys sorted
	ExplicitInputHashes [][32]byte // content hashes of explicit input files, in input order
	ImplicitInputHashes [][32]byte // content hashes of implicit input files, in discovery order
	PreprocessedSource  []byte     // only in preprocess mode; nil otherwise
}

// ComputeFingerprint folds in the order spec.md §3 fixes: program id,
// compatible-mode tag, sorted capability tags, the relevant-argument
// sequence, the relevant-env mapping (keys sorted), explicit input
// hashes, implicit input hashes, and — in preprocess mode only — the
// preprocessed source hash.
func ComputeFingerprint(in FingerprintInputs) Fingerprint {
	fp := NewFingerprinter(nil)

	fp.writeSegment("program", []byte(in.ProgramID))
	fp.writeSegment("mode", []byte(in.CompatibleMode))

	caps := append([]string(nil), in.Capabilities...)
	sort.Strings(caps)
	for _, c := range caps {
		fp.writeSegment("cap", []byte(c))
	}

	for _, a := range in.RelevantArgs {
		fp.writeSegment("arg", []byte(a))
	}

	keys := make([]string, 0, len(in.RelevantEnv))
	for k := range in.RelevantEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fp.writeSegment("env:"+k, []byte(in.RelevantEnv[k]))
	}

	for _, h := range in.ExplicitInputHashes {
		fp.writeSegment("input", h[:])
	}
	for _, h := range in.ImplicitInputHashes {
		fp.writeSegment("implicit", h[:])
	}

	if in.PreprocessedSource != nil {
		fp.writeSegment("preprocessed", in.PreprocessedSource)
	}

	return fp.Sum()
}

// HashFileContents returns the content hash of the file at path, in the
// same 32-byte space as Fingerprint so ExplicitInputHashes/
// ImplicitInputHashes can be folded directly.
func HashFileContents(path string) ([32]byte, error) {
	data, err := FS.ReadFile(path)
	if err != nil {
		return [32]byte{}, &IOError{Op: "read", Path: path, Err: err}
	}
	return sha256.Sum256(data), nil
}
