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
	"os"

	"github.com/dustin/go-humanize"
)

// Config is the environment-driven configuration spec.md §6 names. The
// shim binary populates one of these from os.Environ() the way the
// teacher's cmd/kati main populates its flag.*Var block from argv; here
// the source is the environment rather than flags, per spec.md's own
// choice of CACHE_* env vars as the external interface.
type Config struct {
	// Dir is the root of the local store (CACHE_DIR).
	Dir string
	// MaxSize is the eviction byte budget (CACHE_MAX_SIZE), parsed with
	// go-humanize the same way mutagen parses
	// Synchronization.MaximumStagingFileSize.
	MaxSize uint64
	// Disable, when true, makes the wrapper always run transparently
	// (CACHE_DISABLE).
	Disable bool
	// DirectMode enables direct-mode lookup, skipping preprocessing
	// (CACHE_DIRECT_MODE).
	DirectMode bool
	// HardLinks permits hard-linking hits into place instead of
	// copying (CACHE_HARD_LINKS).
	HardLinks bool
	// LogFile is the diagnostic log sink (CACHE_LOG_FILE).
	LogFile string
}

// DefaultMaxSize is used when CACHE_MAX_SIZE is unset or unparseable.
const DefaultMaxSize = 5 << 30 // 5GiB

// LoadConfig reads Config from the process environment.
func LoadConfig() Config {
	cfg := Config{
		Dir:        os.Getenv("CACHE_DIR"),
		MaxSize:    DefaultMaxSize,
		Disable:    os.Getenv("CACHE_DISABLE") != "",
		DirectMode: envBool("CACHE_DIRECT_MODE"),
		HardLinks:  envBool("CACHE_HARD_LINKS"),
		LogFile:    os.Getenv("CACHE_LOG_FILE"),
	}
	if raw := os.Getenv("CACHE_MAX_SIZE"); raw != "" {
		if n, err := humanize.ParseBytes(raw); err == nil {
			cfg.MaxSize = n
		} else {
			diag.Warn("config", &UnparseableError{Reason: "CACHE_MAX_SIZE=" + raw + ": " + err.Error()})
		}
	}
	if cfg.Dir == "" {
		cfg.Dir = AppendPath(FS.TempDir(), "cachecc")
	}
	return cfg
}

func envBool(name string) bool {
	return os.Getenv(name) != ""
}

// String renders the config the way a startup log line would, using
// humanize.Bytes for MaxSize the way mutagen's `list`/`monitor` commands
// render transfer sizes.
func (c Config) String() string {
	return "dir=" + c.Dir +
		" max_size=" + humanize.Bytes(c.MaxSize) +
		" disable=" + boolStr(c.Disable) +
		" direct_mode=" + boolStr(c.DirectMode) +
		" hard_links=" + boolStr(c.HardLinks)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
