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
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// WrapperFactory constructs a candidate Wrapper for one invocation. The
// orchestrator asks each registered factory, in order, whether it claims
// the command.
type WrapperFactory func(ctx context.Context, exePath string, args ArgList, env map[string]string, runner Runner) Wrapper

// DefaultWrapperFactories is the dispatch table spec.md §9 describes:
// "dispatch is by the first can_handle_command() that returns true."
// Only the GCC/Clang family adapter ships in this package; additional
// compiler families register their own factories the same way.
var DefaultWrapperFactories = []WrapperFactory{NewGCCWrapper}

// Orchestrator binds components A-F (spec.md §2's component G): it
// detects cacheability, computes a fingerprint, tries a cache lookup,
// and falls back to real execution on a miss.
type Orchestrator struct {
	Factories []WrapperFactory
	Cache     Cache
	Runner    Runner
	Config    Config
	Stats     *Stats

	// lastRelevantArgs remembers the last relevant-argument sequence
	// seen per program id, purely for explainMiss's diagnostic diff
	// (SPEC_FULL.md's Domain Stack use of go-diff).
	lastRelevantArgs map[string]ArgList
}

// NewOrchestrator wires an Orchestrator with the default wrapper
// dispatch table.
func NewOrchestrator(cache Cache, runner Runner, cfg Config) *Orchestrator {
	return &Orchestrator{
		Factories:        DefaultWrapperFactories,
		Cache:            cache,
		Runner:           runner,
		Config:           cfg,
		Stats:            &Stats{},
		lastRelevantArgs: make(map[string]ArgList),
	}
}

// Run executes one shim invocation: <shim> exePath args... with env. args
// conventionally has args[0] == the tool name (os/exec's Cmd.Args
// convention); args[1:] are the tool's own flags.
func (o *Orchestrator) Run(ctx context.Context, exePath string, args ArgList, env map[string]string) (Result, error) {
	if o.Config.Disable {
		atomic.AddInt64(&o.Stats.Transparent, 1)
		return o.runTransparent(ctx, exePath, args, env)
	}

	w := o.selectWrapper(ctx, exePath, args, env)
	if w == nil {
		diag.Logf("no wrapper claims %s, running transparently", exePath)
		atomic.AddInt64(&o.Stats.Transparent, 1)
		return o.runTransparent(ctx, exePath, args, env)
	}

	if err := w.ResolveArgs(); err != nil {
		diag.Warn("resolve_args", err)
		atomic.AddInt64(&o.Stats.Errors, 1)
		atomic.AddInt64(&o.Stats.Transparent, 1)
		return o.runTransparent(ctx, exePath, args, env)
	}

	res, cacheable, err := o.tryCached(ctx, exePath, args, env, w)
	if !cacheable {
		var nc *NonCacheableError
		if errors.As(err, &nc) {
			diag.Logf("%v, running transparently", err)
		} else if err != nil {
			diag.Warn("cacheability", err)
			atomic.AddInt64(&o.Stats.Errors, 1)
		}
		atomic.AddInt64(&o.Stats.Transparent, 1)
		return o.runTransparent(ctx, exePath, args, env)
	}
	return res, err
}

func (o *Orchestrator) selectWrapper(ctx context.Context, exePath string, args ArgList, env map[string]string) Wrapper {
	for _, f := range o.Factories {
		w := f(ctx, exePath, args, env, o.Runner)
		if w.CanHandleCommand() {
			return w
		}
	}
	return nil
}

// tryCached attempts the full cache-aware path. cacheable is false when
// the invocation should instead run transparently (non-cacheable
// classification, or an internal error the spec requires us to degrade
// from).
func (o *Orchestrator) tryCached(ctx context.Context, exePath string, args ArgList, env map[string]string, w Wrapper) (res Result, cacheable bool, err error) {
	caps := w.GetCapabilities()
	direct := o.Config.DirectMode && caps.Has(CapDirectMode)

	buildFiles, err := w.GetBuildFiles()
	if err != nil {
		return Result{}, false, err
	}

	programID, err := w.GetProgramID()
	if err != nil {
		return Result{}, false, err
	}

	inputFiles := w.GetInputFiles()
	explicitHashes, err := hashAll(inputFiles)
	if err != nil {
		return Result{}, false, err
	}

	if direct {
		if depPath, ok := buildFiles[RoleDep]; ok && FileExists(depPath) {
			if dw, ok := w.(*gccWrapper); ok {
				if err := dw.LoadImplicitInputsFromDepfile(depPath); err != nil {
					direct = false
				}
			} else {
				direct = false
			}
		} else {
			direct = false
		}
	}
	w.SetPreprocessMode(!direct)

	var preprocessed []byte
	if !direct {
		preprocessed, err = w.PreprocessSource(ctx, o.Runner)
		if err != nil {
			// A failing preprocess run (spec.md §7's tool_failed) means
			// we cannot classify cacheability, not that the real
			// invocation must fail: degrade to transparent execution.
			return Result{}, false, err
		}
	}

	implicitFiles := w.GetImplicitInputFiles()
	implicitHashes, err := hashAll(implicitFiles)
	if err != nil {
		return Result{}, false, err
	}

	relevantArgs := w.GetRelevantArguments()
	relevantEnv := w.GetRelevantEnvVars()

	fp := ComputeFingerprint(FingerprintInputs{
		ProgramID:           programID,
		CompatibleMode:      string(fingerprintMode(w)),
		Capabilities:        capsSlice(caps),
		RelevantArgs:        relevantArgs,
		RelevantEnv:         relevantEnv,
		ExplicitInputHashes: explicitHashes,
		ImplicitInputHashes: implicitHashes,
		PreprocessedSource:  preprocessed,
	})

	o.explainMiss(programID, relevantArgs)

	set, lerr := o.Cache.Lookup(fp)
	if lerr == nil {
		if err := o.materialize(buildFiles, set, caps); err != nil {
			diag.Warn("materialize", err)
			// A corrupt or partially-evicted hit must not be handed to
			// the caller as if it succeeded; fall through to a real run.
		} else {
			atomic.AddInt64(&o.Stats.Hits, 1)
			return Result{Stdout: set.Stdout, Stderr: set.Stderr, ExitCode: set.ExitCode}, true, nil
		}
	} else if lerr != ErrCacheMiss {
		// A genuine store failure, not a clean miss: worth a diagnostic,
		// but still falls through to a real run per spec.md §7.
		diag.Warn("cache_lookup", lerr)
	}

	res, runErr := o.Runner.Run(ctx, exePath, []string(args[1:]), envSlice(env), nil)
	if runErr != nil {
		return Result{}, true, runErr
	}
	atomic.AddInt64(&o.Stats.Misses, 1)

	if res.ExitCode == 0 {
		set, rerr := o.readBackArtifacts(buildFiles, res)
		if rerr != nil {
			diag.Warn("read_back", rerr)
		} else if ierr := o.Cache.Insert(fp, set); ierr != nil {
			diag.Warn("insert", ierr)
		}
	}
	return res, true, nil
}

// fingerprintMode reports the compatible mode for fingerprint folding;
// only the GCC-family adapter currently exposes one.
func fingerprintMode(w Wrapper) CompatibleMode {
	if g, ok := w.(*gccWrapper); ok {
		return g.mode
	}
	return ModeUnspecified
}

func capsSlice(caps CapabilitySet) []string {
	out := make([]string, 0, len(caps))
	for c := range caps {
		out = append(out, string(c))
	}
	return out
}

func hashAll(paths []string) ([][32]byte, error) {
	out := make([][32]byte, 0, len(paths))
	for _, p := range paths {
		h, err := HashFileContents(p)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func envSlice(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// materialize places a cache hit's artifacts at the paths GetBuildFiles
// named: hard-linked when the capability set and config both allow it,
// copied (via WriteAtomic) otherwise.
func (o *Orchestrator) materialize(files BuildFiles, set ArtifactSet, caps CapabilitySet) error {
	for role, path := range files {
		art, ok := set.Artifacts[role]
		if !ok {
			continue
		}
		if o.Config.HardLinks && caps.Has(CapHardLinks) {
			if err := o.hardLinkFromBytes(path, art.Content); err == nil {
				continue
			}
			// fall through to a plain copy if hard-linking didn't pan out
		}
		if err := WriteAtomic(art.Content, path); err != nil {
			return err
		}
	}
	return nil
}

// hardLinkFromBytes writes content to a scoped temp file in path's own
// directory and hard-links that file into place at path; the temp name is
// removed afterward, leaving path as the only link. The bytes are written
// anew on every hit: no inode is shared with the store or across hits.
func (o *Orchestrator) hardLinkFromBytes(path string, content []byte) error {
	return WithTempFile(DirPart(path), ".staged", func(staged string) error {
		if err := WriteAtomic(content, staged); err != nil {
			return err
		}
		FS.Remove(path)
		return FS.Link(staged, path)
	})
}

func (o *Orchestrator) readBackArtifacts(files BuildFiles, res Result) (ArtifactSet, error) {
	set := ArtifactSet{
		Artifacts: make(map[string]Artifact, len(files)),
		ExitCode:  res.ExitCode,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
	}
	for role, path := range files {
		data, err := FS.ReadFile(path)
		if err != nil {
			return ArtifactSet{}, &IOError{Op: "read artifact", Path: path, Err: err}
		}
		set.Artifacts[role] = Artifact{Content: data}
	}
	return set, nil
}

// runTransparent runs the real tool unchanged and forwards its result,
// bypassing the cache entirely (spec.md §6's CLI surface guarantee:
// "Behavior is identical to invoking <tool-name> <args...> directly").
func (o *Orchestrator) runTransparent(ctx context.Context, exePath string, args ArgList, env map[string]string) (Result, error) {
	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}
	return o.Runner.Run(ctx, exePath, rest, envSlice(env), nil)
}

// explainMiss logs, at -v=1 or higher (or with -cachecc_verbose), a
// line-level diff between this program id's
// last-seen relevant-argument sequence and the current one, so a
// developer staring at an unexpected miss can see which flag changed.
// This is the Domain Stack's non-test use of go-diff (SPEC_FULL.md §3).
func (o *Orchestrator) explainMiss(programID string, relevantArgs ArgList) {
	prev, ok := o.lastRelevantArgs[programID]
	o.lastRelevantArgs[programID] = append(ArgList(nil), relevantArgs...)
	if !ok {
		return
	}
	if joinArgs(prev) == joinArgs(relevantArgs) {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(joinArgs(prev), joinArgs(relevantArgs), false)
	diag.Logf("relevant args changed for %s:\n%s", programID, dmp.DiffPrettyText(diffs))
}

func joinArgs(a ArgList) string {
	return strings.Join(a, "\n")
}
