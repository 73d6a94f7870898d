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

// Command cachecc is the shim: invoked in place of a compiler, it either
// replays a cached result or runs the real tool and remembers the
// outcome. Usage: cachecc <tool-path> <tool-args...>.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/avfs/avfs/vfs/osfs"
	"github.com/golang/glog"

	"github.com/google/cachecc"
	"github.com/google/cachecc/localstore"
)

var (
	showStats  bool
	verbose    bool
)

func parseFlags() []string {
	flag.BoolVar(&showStats, "cachecc_stats", false, "print a hit/miss summary to stderr on exit")
	flag.BoolVar(&verbose, "cachecc_verbose", false, "verbose diagnostic logging regardless of CACHE_LOG_FILE")
	flag.Parse()
	return flag.Args()
}

func main() {
	cachecc.FS = osfs.New()

	rest := parseFlags()
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: cachecc <tool-path> <tool-args...>")
		os.Exit(2)
	}

	cfg := cachecc.LoadConfig()
	if err := cachecc.ConfigureLogging(cfg.LogFile, verbose); err != nil {
		glog.Warningf("cachecc: could not open CACHE_LOG_FILE %q: %v", cfg.LogFile, err)
	}

	store, err := localstore.New(cfg.Dir, cfg.MaxSize)
	if err != nil {
		glog.Warningf("cachecc: local store unavailable, running transparently: %v", err)
		os.Exit(runTransparentOnly(rest))
	}

	orch := cachecc.NewOrchestrator(store, cachecc.NewExecRunner(), cfg)

	exePath := rest[0]
	args := cachecc.ArgList(rest)
	env := environMap()

	res, err := orch.Run(context.Background(), exePath, args, env)
	if showStats {
		fmt.Fprintln(os.Stderr, orch.Stats.String())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cachecc: %v\n", err)
		os.Exit(1)
	}

	os.Stdout.Write(res.Stdout)
	os.Stderr.Write(res.Stderr)
	os.Exit(res.ExitCode)
}

// runTransparentOnly is the last-resort path when even the local store
// can't be opened (e.g. CACHE_DIR unwritable): run the real tool directly
// with no wrapper involvement at all, since a broken cache must never
// block a build.
func runTransparentOnly(rest []string) int {
	runner := cachecc.NewExecRunner()
	var args []string
	if len(rest) > 1 {
		args = rest[1:]
	}
	res, err := runner.Run(context.Background(), rest[0], args, os.Environ(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cachecc: %v\n", err)
		return 1
	}
	os.Stdout.Write(res.Stdout)
	os.Stderr.Write(res.Stderr)
	return res.ExitCode
}

func environMap() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}
