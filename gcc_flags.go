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

import "strings"

// sourceExtensions are the file extensions recognized as explicit
// compilation inputs.
var sourceExtensions = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cxx": true, ".c++": true,
	".m": true, ".mm": true, ".C": true, ".i": true, ".ii": true,
}

// splitValueFlags take their value as the next token ("-o out.o"); the
// bool records whether the flag (and its value) affect a cacheable run's
// output, and is false for all of them. classify does not read this
// table: it elides each of these flags, and their values, through its
// own switch cases, and it also accepts the fused form "-oout.o".
var splitValueFlags = map[string]bool{
	"-o": false, "-MF": false, "-MT": false, "-MQ": false,
}

// booleanIrrelevantFlags never change the relevant-argument sequence:
// they affect diagnostics, dependency-file side channels, or build
// tooling, never the bytes of a cacheable output.
var booleanIrrelevantFlags = map[string]bool{
	"-MD": true, "-MMD": true, "-MP": true, "-MG": true,
	"-Wall": true, "-Wextra": true, "-w": true, "-pedantic": true,
	"-v": true, "--verbose": true,
	"-fcolor-diagnostics": true, "-fno-color-diagnostics": true,
	"-fdiagnostics-color": true, "-fno-diagnostics-color": true,
	"-pipe": true,
}

// diagColorPrefixes matches "-fdiagnostics-color=WHEN" fused forms.
var diagColorPrefixes = []string{"-fdiagnostics-color="}

// actionFlags select what the compiler does (compile-only, preprocess,
// assemble). -c and -S produce different artifact bytes for the same
// source and otherwise-identical flags (object code vs. assembly text),
// so unlike -o or the diagnostic flags, an action flag stays in the
// relevant-argument set: eliding it would let a -S invocation hit on a
// -c invocation's cached object file under the same fingerprint.
var actionFlags = map[string]bool{
	"-c": true, "-S": true,
}

func isDiagColorFlag(arg string) bool {
	for _, p := range diagColorPrefixes {
		if strings.HasPrefix(arg, p) {
			return true
		}
	}
	return false
}

// classifiedArgs walks resolvedArgs once and returns, in order: the
// relevant arguments, the explicit input files, and (if -o/-MF were
// present) their values.
type classifiedArgs struct {
	relevant ArgList
	inputs   []string
	output   string
	hasOutput bool
	depfile  string
	hasLink  bool
	hasHelp  bool
	hasE     bool
}

func (w *gccWrapper) classify() classifiedArgs {
	var c classifiedArgs

	args := w.resolvedArgs
	for i := 0; i < len(args); i++ {
		a := args[i]

		switch {
		case a == "--help" || a == "--target-help":
			c.hasHelp = true
			continue
		case a == "-E":
			c.hasE = true
			continue
		case a == "-o":
			if i+1 < len(args) {
				c.output = args[i+1]
				c.hasOutput = true
				i++
			}
			continue
		case strings.HasPrefix(a, "-o") && len(a) > 2:
			c.output = a[2:]
			c.hasOutput = true
			continue
		case a == "-MF":
			if i+1 < len(args) {
				c.depfile = args[i+1]
				i++
			}
			continue
		case a == "-MT" || a == "-MQ":
			if i+1 < len(args) {
				i++
			}
			continue
		case actionFlags[a]:
			c.relevant = append(c.relevant, a)
		case booleanIrrelevantFlags[a] || isDiagColorFlag(a):
			continue
		case strings.HasPrefix(a, "-D"):
			if w.preprocessMode && w.UsesDefinesInPreprocess() {
				// elided only when the effect is already captured by
				// the preprocessed source (preprocess mode); see
				// Wrapper.UsesDefinesInPreprocess.
				continue
			}
			c.relevant = append(c.relevant, a)
		case !strings.HasPrefix(a, "-"):
			if sourceExtensions[Extension(a)] {
				c.inputs = append(c.inputs, a)
			}
			c.relevant = append(c.relevant, a)
		default:
			c.relevant = append(c.relevant, a)
		}
	}

	if !c.hasOutput && len(c.inputs) > 0 {
		stem := c.inputs[0]
		if ext := Extension(stem); ext != "" {
			stem = stem[:len(stem)-len(ext)]
		}
		c.output = stem + ".o"
	}

	// Any invocation without an explicit action flag (-c, -S or -E),
	// whatever its number of inputs, is a link step: nothing names it
	// cacheable under this adapter.
	hasAction := false
	for _, a := range args {
		if actionFlags[a] || a == "-E" {
			hasAction = true
			break
		}
	}
	c.hasLink = !hasAction

	return c
}

// GetRelevantArguments returns the filtered argument sequence: only
// flags that semantically affect a cacheable run's output.
func (w *gccWrapper) GetRelevantArguments() ArgList {
	return w.classify().relevant
}

// GetInputFiles returns the explicit input source files named in the
// argument list, in their original order.
func (w *gccWrapper) GetInputFiles() []string {
	return w.classify().inputs
}

// GetRelevantEnvVars returns the subset of the invocation's environment
// the tool actually reads: locale selection and SOURCE_DATE_EPOCH.
func (w *gccWrapper) GetRelevantEnvVars() map[string]string {
	names := []string{"LANG", "LC_ALL", "LC_CTYPE", "LC_MESSAGES", "SOURCE_DATE_EPOCH"}
	out := make(map[string]string)
	for _, n := range names {
		if v, ok := w.env[n]; ok {
			out[n] = v
		}
	}
	return out
}

// GetBuildFiles maps logical output roles to concrete paths. A link step
// or a bare --help/--target-help invocation is a legal command line this
// wrapper simply declines to cache (spec.md §7's non_cacheable kind,
// distinct from unparseable), matching spec.md §8 scenario 5. An
// invocation with no recognizable input file, by contrast, can't even be
// classified, so it's unparseable.
func (w *gccWrapper) GetBuildFiles() (BuildFiles, error) {
	c := w.classify()

	if c.hasHelp {
		return nil, &NonCacheableError{Reason: "--help invocation"}
	}
	if c.hasLink {
		return nil, &NonCacheableError{Reason: "link step"}
	}
	if c.hasE && !c.hasOutput {
		return nil, &NonCacheableError{Reason: "-E to stdout"}
	}
	if len(c.inputs) == 0 {
		return nil, &UnparseableError{Reason: "no input files"}
	}

	files := BuildFiles{RoleObject: c.output}
	if c.depfile != "" {
		files[RoleDep] = c.depfile
	} else if w.hasDepfileFlags() {
		stem := c.output
		if ext := Extension(stem); ext != "" {
			stem = stem[:len(stem)-len(ext)]
		}
		files[RoleDep] = stem + ".d"
	}
	return files, nil
}
