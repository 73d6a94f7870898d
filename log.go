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
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
)

// diagLogger is the CACHE_LOG_FILE sink from spec.md §6. Wrapper-internal
// errors degrade to transparent execution (§7); this is the one place
// that degradation stays observable, independent of whatever glog's own
// -log_dir is pointed at, and independent of whether the build system
// swallows the shim's stderr.
//
// It mirrors the teacher's LogAlways/Logf/LogStats split (kati's log.go):
// LogAlways always writes, Logf is gated by verbosity.
type diagLogger struct {
	mu   sync.Mutex
	f    *os.File
	verb bool
}

var diag = &diagLogger{}

// ConfigureLogging points the diagnostic sink at path (CACHE_LOG_FILE).
// An empty path disables the sink; diag.LogAlways calls still reach glog.
func ConfigureLogging(path string, verbose bool) error {
	diag.mu.Lock()
	defer diag.mu.Unlock()
	if diag.f != nil {
		diag.f.Close()
		diag.f = nil
	}
	diag.verb = verbose
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	diag.f = f
	return nil
}

func (l *diagLogger) LogAlways(f string, a ...interface{}) {
	var buf bytes.Buffer
	buf.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	buf.WriteString(" cachecc: ")
	fmt.Fprintf(&buf, f, a...)
	buf.WriteByte('\n')

	glog.InfoDepth(1, buf.String())

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		l.f.Write(buf.Bytes())
	}
}

func (l *diagLogger) Logf(f string, a ...interface{}) {
	l.mu.Lock()
	verb := l.verb
	l.mu.Unlock()
	if !verb && !bool(glog.V(1)) {
		return
	}
	l.LogAlways(f, a...)
}

// Warn records a wrapper-internal error that is about to be swallowed by
// transparent execution (spec.md §7: "the wrapper NEVER fails an
// invocation that would otherwise have succeeded").
func (l *diagLogger) Warn(op string, err error) {
	glog.Warningf("cachecc: %s: %v (degrading to transparent execution)", op, err)
	l.LogAlways("%s: %v (degrading to transparent execution)", op, err)
}

// DiagLogf logs a diagnostic line through the package's CACHE_LOG_FILE
// sink, for collaborators outside this package (e.g. localstore's
// eviction log) that need the same sink as the core's own diagnostics.
func DiagLogf(format string, a ...interface{}) {
	diag.Logf(format, a...)
}
