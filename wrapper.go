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

import "context"

// Capability is a tag a Wrapper declares to tell the orchestrator which
// optimizations are legal for a given invocation (spec.md §3).
type Capability string

const (
	// CapHardLinks permits hard-linking a cache hit's artifacts into
	// place instead of copying them.
	CapHardLinks Capability = "hard_links"
	// CapDirectMode permits fingerprinting from declared inputs alone,
	// without preprocessing.
	CapDirectMode Capability = "direct_mode"
	// CapDepfile permits recovering implicit inputs from a compiler-
	// emitted dependency file instead of preprocessor stderr.
	CapDepfile Capability = "depfile"
)

// CapabilitySet is an unordered collection of Capability tags.
type CapabilitySet map[Capability]bool

// Has reports whether the set declares cap.
func (s CapabilitySet) Has(cap Capability) bool { return s[cap] }

// NewCapabilitySet builds a CapabilitySet from a list of tags.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = true
	}
	return s
}

// BuildFiles maps a logical output role ("object", "dep",
// "coverage-notes", ...) to the filesystem path the real tool would write
// that artifact to. All paths derive from parsed arguments (e.g. -o's
// target) or defaults (the first input's stem).
type BuildFiles map[string]string

// Role constants for the common GCC/Clang-family outputs; adapters for
// other compiler families may use their own role strings.
const (
	RoleObject        = "object"
	RoleDep           = "dep"
	RoleCoverageNotes = "coverage-notes"
)

// Wrapper is the polymorphic contract every compiler-family adapter
// implements (spec.md §4.4). The orchestrator calls its operations in a
// fixed order: CanHandleCommand, ResolveArgs, GetCapabilities,
// GetBuildFiles, GetProgramID, GetInputFiles, SetPreprocessMode, then
// PreprocessSource (preprocess mode only), and finally
// GetImplicitInputFiles (in either mode), GetRelevantArguments and
// GetRelevantEnvVars.
type Wrapper interface {
	// CanHandleCommand inspects the executable path and argv[0] to
	// decide if this wrapper owns the invocation. Pure; never fails.
	CanHandleCommand() bool

	// ResolveArgs expands response files, normalizes fused/split flags,
	// and applies compatible-mode rules. After this the wrapper's
	// subsequent queries operate on the canonical argument sequence.
	// Returns an *UnparseableError on failure, which the orchestrator
	// treats as non-cacheable (transparent execution).
	ResolveArgs() error

	// GetCapabilities returns the capability tags applicable to this
	// invocation.
	GetCapabilities() CapabilitySet

	// GetProgramID returns a stable identifier for the underlying tool
	// binary, typically a hash of the executable plus its version
	// string. Implementations should cache this per executable path
	// within a process.
	GetProgramID() (string, error)

	// GetRelevantArguments returns the filtered argument sequence: only
	// flags that semantically affect a cacheable run's output. -o,
	// diagnostic-color flags, and dep-file controls are elided
	// unconditionally; -D is elided only when UsesDefinesInPreprocess
	// is true and the invocation is running in preprocess mode.
	GetRelevantArguments() ArgList

	// GetRelevantEnvVars returns the selected environment variables the
	// tool reads (locale, SOURCE_DATE_EPOCH, ...).
	GetRelevantEnvVars() map[string]string

	// GetInputFiles returns the explicit input source files named in
	// the argument list.
	GetInputFiles() []string

	// UsesDefinesInPreprocess reports whether, for this wrapper and
	// mode, -D's effect is already reflected in the preprocessed
	// source (so it's safe to elide from GetRelevantArguments in
	// preprocess mode). See SPEC_FULL.md's Open Question decision.
	UsesDefinesInPreprocess() bool

	// SetPreprocessMode tells the wrapper whether the orchestrator is
	// operating in preprocess mode for this invocation, so that
	// GetRelevantArguments can apply the -D elision rule correctly
	// (spec.md §4.4: "-D is elided only if uses_defines_in_preprocess()
	// is true and we are in preprocess mode").
	SetPreprocessMode(bool)

	// PreprocessSource invokes the underlying tool, in preprocess
	// mode, with a wrapper-chosen command line to produce a
	// deterministic textual representation of the translation unit.
	PreprocessSource(ctx context.Context, r Runner) ([]byte, error)

	// GetImplicitInputFiles returns headers (and similar) pulled in
	// transitively: parsed from a depfile in direct mode, or recovered
	// as a side effect of PreprocessSource in preprocess mode. May be
	// empty; never fails.
	GetImplicitInputFiles() []string

	// GetBuildFiles maps logical output roles to the paths the real
	// invocation will produce. Returns a *NonCacheableError for a legal
	// command line this wrapper simply declines to cache (a link step,
	// --help, -E to stdout), or an *UnparseableError if the output paths
	// can't be determined from the resolved arguments at all.
	GetBuildFiles() (BuildFiles, error)
}
