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
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// CompatibleMode distinguishes the three GCC/Clang command-line dialects
// spec.md §4.4 names.
type CompatibleMode string

const (
	ModeUnspecified CompatibleMode = "unspecified"
	ModeGCCLike     CompatibleMode = "gcc-like"
	ModeClangLike   CompatibleMode = "clang-like"
)

// gccWrapper is the GCC-family adapter (component E): the concrete
// realization of Wrapper for GCC/Clang-compatible command lines.
type gccWrapper struct {
	ctx     context.Context
	exePath string
	runner  Runner
	env     map[string]string

	rawArgs      ArgList
	resolvedArgs ArgList
	mode         CompatibleMode
	preprocessMode bool

	implicitInputs []string
}

// SetPreprocessMode records whether the orchestrator is running this
// invocation in preprocess mode, gating the -D elision rule.
func (w *gccWrapper) SetPreprocessMode(v bool) { w.preprocessMode = v }

// NewGCCWrapper constructs the adapter for a single invocation. args[0]
// is conventionally the tool name, matching os/exec's Cmd.Args
// convention; args[1:] are the compiler's own flags.
func NewGCCWrapper(ctx context.Context, exePath string, args ArgList, env map[string]string, runner Runner) Wrapper {
	return &gccWrapper{
		ctx:     ctx,
		exePath: exePath,
		runner:  runner,
		env:     env,
		rawArgs: args,
	}
}

var gccLikeName = regexp.MustCompile(`(?i)(^|[-/])(gcc|g\+\+|cc|c\+\+|cpp)(-[0-9.]+)?(\.exe)?$`)

func inferCompatibleMode(exePath string) CompatibleMode {
	base := strings.ToLower(FilePart(exePath))
	switch {
	case strings.Contains(base, "clang"):
		return ModeClangLike
	case gccLikeName.MatchString(base):
		return ModeGCCLike
	default:
		return ModeUnspecified
	}
}

// CanHandleCommand inspects exePath (and, failing that, args[0]) for a
// recognized GCC/Clang-family basename. Pure; never fails.
func (w *gccWrapper) CanHandleCommand() bool {
	if inferCompatibleMode(w.exePath) != ModeUnspecified {
		return true
	}
	if len(w.rawArgs) > 0 && inferCompatibleMode(w.rawArgs[0]) != ModeUnspecified {
		return true
	}
	return false
}

// ResolveArgs expands response files and infers the compatible mode.
// After this, resolvedArgs is the canonical sequence every other query
// operates on.
func (w *gccWrapper) ResolveArgs() error {
	if len(w.rawArgs) == 0 {
		return &UnparseableError{Reason: "empty argument vector"}
	}
	expanded, err := ExpandResponseFiles(w.rawArgs[1:])
	if err != nil {
		return err
	}
	w.resolvedArgs = expanded

	w.mode = inferCompatibleMode(w.exePath)
	if w.mode == ModeUnspecified {
		w.mode = inferCompatibleMode(w.rawArgs[0])
	}
	glog.V(1).Infof("cachecc: gcc adapter resolved %d args, mode=%s", len(w.resolvedArgs), w.mode)
	return nil
}

// GetCapabilities reports hard-linking support unconditionally (it's a
// property of the filesystem, gated later by CACHE_HARD_LINKS) and
// depfile/direct-mode support when the resolved args already ask the
// compiler to emit a dependency file.
func (w *gccWrapper) GetCapabilities() CapabilitySet {
	caps := []Capability{CapHardLinks}
	if w.hasDepfileFlags() {
		caps = append(caps, CapDepfile, CapDirectMode)
	}
	return NewCapabilitySet(caps...)
}

func (w *gccWrapper) hasDepfileFlags() bool {
	for _, a := range w.resolvedArgs {
		if a == "-MD" || a == "-MMD" {
			return true
		}
	}
	return false
}

var programIDCache sync.Map // exePath -> programIDEntry

type programIDEntry struct {
	id  string
	err error
}

// GetProgramID returns a stable identifier for the underlying tool binary:
// a hash of the executable's content plus its reported version string,
// cached per executable path within the process (spec.md §4.4).
func (w *gccWrapper) GetProgramID() (string, error) {
	if v, ok := programIDCache.Load(w.exePath); ok {
		e := v.(programIDEntry)
		return e.id, e.err
	}

	id, err := w.computeProgramID()
	programIDCache.Store(w.exePath, programIDEntry{id: id, err: err})
	return id, err
}

func (w *gccWrapper) computeProgramID() (string, error) {
	exeHash, err := HashFileContents(w.exePath)
	if err != nil {
		return "", err
	}

	res, err := w.runner.Run(w.ctx, w.exePath, []string{"--version"}, nil, nil)
	if err != nil {
		return "", &IOError{Op: "exec --version", Path: w.exePath, Err: err}
	}

	h := sha256.New()
	h.Write(exeHash[:])
	h.Write(res.Stdout)
	return hex.EncodeToString(h.Sum(nil)), nil
}
