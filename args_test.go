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
	"reflect"
	"testing"
)

func TestExpandResponseFilesNoResponseFiles(t *testing.T) {
	in := ArgList{"-c", "foo.c", "-o", "foo.o"}
	got, err := ExpandResponseFiles(in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("ExpandResponseFiles(%q)=%q, want unchanged", in, got)
	}
}

func TestExpandResponseFilesBasic(t *testing.T) {
	FS.MkdirAll("/rsp", 0755)
	FS.WriteFile("/rsp/args.rsp", []byte("-DFOO=1 -DBAR=\"two words\""), 0644)

	got, err := ExpandResponseFiles(ArgList{"-c", "@/rsp/args.rsp", "foo.c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("ExpandResponseFiles got %q, want 4 tokens", got)
	}
	if got[0] != "-c" || got[3] != "foo.c" {
		t.Errorf("ExpandResponseFiles(%q) = %q, boundary tokens wrong", got, got)
	}
}

func TestExpandResponseFilesNested(t *testing.T) {
	FS.MkdirAll("/rsp2", 0755)
	FS.WriteFile("/rsp2/inner.rsp", []byte("-DINNER"), 0644)
	FS.WriteFile("/rsp2/outer.rsp", []byte("-DOUTER @/rsp2/inner.rsp"), 0644)

	got, err := ExpandResponseFiles(ArgList{"@/rsp2/outer.rsp"})
	if err != nil {
		t.Fatal(err)
	}
	want := ArgList{"-DOUTER", "-DINNER"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandResponseFiles(nested)=%q, want %q", got, want)
	}
}

func TestExpandResponseFilesCycle(t *testing.T) {
	FS.MkdirAll("/rsp3", 0755)
	FS.WriteFile("/rsp3/a.rsp", []byte("@/rsp3/b.rsp"), 0644)
	FS.WriteFile("/rsp3/b.rsp", []byte("@/rsp3/a.rsp"), 0644)

	_, err := ExpandResponseFiles(ArgList{"@/rsp3/a.rsp"})
	if err == nil {
		t.Fatal("ExpandResponseFiles(cyclic) returned nil error, want cycle detected")
	}
	if _, ok := err.(*UnparseableError); !ok {
		t.Errorf("ExpandResponseFiles(cyclic) error type = %T, want *UnparseableError", err)
	}
}

func TestExpandResponseFilesUnreadable(t *testing.T) {
	_, err := ExpandResponseFiles(ArgList{"@/does/not/exist.rsp"})
	if err == nil {
		t.Fatal("ExpandResponseFiles(missing file) returned nil error, want failure")
	}
}

func TestTokenizeResponseFile(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want ArgList
	}{
		{"-DA -DB", ArgList{"-DA", "-DB"}},
		{"  -DA   -DB  ", ArgList{"-DA", "-DB"}},
		{`"-DA B"`, ArgList{"-DA B"}},
		{`'-DA B'`, ArgList{"-DA B"}},
		{`-DA\ B`, ArgList{"-DA B"}},
		{"", nil},
	} {
		got, err := tokenizeResponseFile(tc.in)
		if err != nil {
			t.Errorf("tokenizeResponseFile(%q) error: %v", tc.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenizeResponseFile(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTokenizeResponseFileUnterminatedQuote(t *testing.T) {
	_, err := tokenizeResponseFile(`"-DA`)
	if err == nil {
		t.Fatal("tokenizeResponseFile(unterminated quote) returned nil error, want failure")
	}
}

func TestSplitFlagValue(t *testing.T) {
	for _, tc := range []struct {
		arg, prefix, want string
		wantOK            bool
	}{
		{"-DFOO=1", "-D", "FOO=1", true},
		{"-D", "-D", "", false},
		{"-O2", "-D", "", false},
	} {
		got, ok := SplitFlagValue(tc.arg, tc.prefix)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("SplitFlagValue(%q, %q)=(%q, %v), want (%q, %v)", tc.arg, tc.prefix, got, ok, tc.want, tc.wantOK)
		}
	}
}
