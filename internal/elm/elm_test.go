// Copyright 2023 Upbound Inc
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

package elm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestModuleFromPath(t *testing.T) {
	cases := map[string]struct {
		reason string
		root   string
		path   string
		want   string
		err    bool
	}{
		"TopLevel": {
			reason: "A file directly under the source root maps to a single segment name.",
			root:   "/ws/src",
			path:   "/ws/src/Main.elm",
			want:   "Main",
		},
		"Nested": {
			reason: "Nested directories become dot-separated segments.",
			root:   "/ws/src",
			path:   "/ws/src/Foo/Bar.elm",
			want:   "Foo.Bar",
		},
		"NotElm": {
			reason: "Non-Elm files are rejected.",
			root:   "/ws/src",
			path:   "/ws/src/Main.txt",
			err:    true,
		},
		"OutsideRoot": {
			reason: "Files outside the source root are rejected.",
			root:   "/ws/src",
			path:   "/ws/tests/Main.elm",
			err:    true,
		},
		"LowercaseSegment": {
			reason: "Path segments must be capitalized identifiers.",
			root:   "/ws/src",
			path:   "/ws/src/foo/Bar.elm",
			err:    true,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ModuleFromPath(tc.root, tc.path)
			if tc.err != (err != nil) {
				t.Fatalf("\n%s\nModuleFromPath(...): want err: %t, got: %v", tc.reason, tc.err, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("\n%s\nModuleFromPath(...): -want, +got:\n%s", tc.reason, diff)
			}
		})
	}
}

func TestPathFromModule(t *testing.T) {
	cases := map[string]struct {
		reason string
		root   string
		name   string
		want   string
		err    bool
	}{
		"Single": {
			reason: "A single segment maps directly under the root.",
			root:   "/ws/src",
			name:   "Main",
			want:   "/ws/src/Main.elm",
		},
		"Nested": {
			reason: "Dot-separated segments become directories.",
			root:   "/ws/src",
			name:   "Foo.Bar",
			want:   "/ws/src/Foo/Bar.elm",
		},
		"Invalid": {
			reason: "Lowercase segments are rejected.",
			root:   "/ws/src",
			name:   "Foo.bar",
			err:    true,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := PathFromModule(tc.root, tc.name)
			if tc.err != (err != nil) {
				t.Fatalf("\n%s\nPathFromModule(...): want err: %t, got: %v", tc.reason, tc.err, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("\n%s\nPathFromModule(...): -want, +got:\n%s", tc.reason, diff)
			}
		})
	}
}

func TestIdentValidation(t *testing.T) {
	if !IsUpperIdent("Color") || IsUpperIdent("color") || IsUpperIdent("") {
		t.Error("IsUpperIdent misclassified an identifier")
	}
	if !IsLowerIdent("toString") || IsLowerIdent("ToString") || IsLowerIdent("to-string") {
		t.Error("IsLowerIdent misclassified an identifier")
	}
	if !IsValidModuleName("Json.Decode") || IsValidModuleName("Json.decode") {
		t.Error("IsValidModuleName misclassified a module name")
	}
}

func TestSplitQualified(t *testing.T) {
	q, n := SplitQualified("Json.Decode.map")
	if q != "Json.Decode" || n != "map" {
		t.Errorf("SplitQualified: got (%q, %q)", q, n)
	}
	q, n = SplitQualified("map")
	if q != "" || n != "map" {
		t.Errorf("SplitQualified: got (%q, %q)", q, n)
	}
}
