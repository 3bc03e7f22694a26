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

package workspace

import (
	"context"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/upbound/elm-ls/internal/elm/module"
)

const manifest = `{"type": "application", "source-directories": ["src"]}`

func testFS(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/ws/elm.json": manifest,
		"/ws/src/Color.elm": `module Color exposing (Color(..), toHex)


type Color
    = Red
    | Green


toHex : Color -> String
toHex c =
    case c of
        Red ->
            "#f00"

        Green ->
            "#0f0"
`,
		"/ws/src/Page/Home.elm": `module Page.Home exposing (view)

import Color exposing (Color(..), toHex)


view : Color -> String
view c =
    toHex Red
`,
	}
	for p, body := range files {
		if err := afero.WriteFile(fs, p, []byte(body), os.ModePerm); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func scanned(t *testing.T) *Workspace {
	t.Helper()
	w, err := New("/ws/src", WithFS(testFS(t)))
	if err != nil {
		t.Fatalf("New(...): %v", err)
	}
	if err := w.Scan(context.Background()); err != nil {
		t.Fatalf("Scan(...): %v", err)
	}
	return w
}

func TestNew(t *testing.T) {
	cases := map[string]struct {
		reason string
		fs     afero.Fs
		dir    string
		root   string
		err    bool
	}{
		"FoundAtParent": {
			reason: "The manifest is discovered by walking upward from a source directory.",
			fs:     testFS(t),
			dir:    "/ws/src/Page",
			root:   "/ws",
		},
		"NotInWorkspace": {
			reason: "A directory with no enclosing manifest is rejected.",
			fs:     afero.NewMemMapFs(),
			dir:    "/elsewhere",
			err:    true,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w, err := New(tc.dir, WithFS(tc.fs))
			if tc.err != (err != nil) {
				t.Fatalf("\n%s\nNew(...): want err: %t, got: %v", tc.reason, tc.err, err)
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff(tc.root, w.Root()); diff != "" {
				t.Errorf("\n%s\nNew(...): -want root, +got root:\n%s", tc.reason, diff)
			}
		})
	}
}

func TestScanQueries(t *testing.T) {
	w := scanned(t)

	d, _, err := w.LookupDecl("Color", "toHex")
	if err != nil {
		t.Fatalf("LookupDecl(Color, toHex): %v", err)
	}
	if d.Kind != module.KindValue {
		t.Errorf("LookupDecl(Color, toHex): want value declaration, got kind %d", d.Kind)
	}

	owners := w.CtorOwners("Red")
	if len(owners) != 1 || owners[0] != (CtorOwner{Module: "Color", Type: "Color", Index: 0}) {
		t.Errorf("CtorOwners(Red): got %+v", owners)
	}

	if diff := cmp.Diff([]string{"/ws/src/Page/Home.elm"}, w.Importers("Color")); diff != "" {
		t.Errorf("Importers(Color): -want, +got:\n%s", diff)
	}

	if _, err := w.ModuleFile("Page.Home"); err != nil {
		t.Errorf("ModuleFile(Page.Home): %v", err)
	}
}

func TestUpdateFile(t *testing.T) {
	w := scanned(t)

	// Renaming the variant in the source text must move the reverse map
	// entry and bump the revision.
	next := `module Color exposing (Color(..), toHex)


type Color
    = Crimson
    | Green


toHex : Color -> String
toHex c =
    "#f00"
`
	if err := w.UpdateFile(context.Background(), "/ws/src/Color.elm", []byte(next)); err != nil {
		t.Fatalf("UpdateFile(...): %v", err)
	}

	if owners := w.CtorOwners("Red"); len(owners) != 0 {
		t.Errorf("CtorOwners(Red): want none after update, got %+v", owners)
	}
	if owners := w.CtorOwners("Crimson"); len(owners) != 1 {
		t.Errorf("CtorOwners(Crimson): want one owner, got %+v", owners)
	}

	f, err := w.FileAt("/ws/src/Color.elm")
	if err != nil {
		t.Fatal(err)
	}
	if f.Revision != 2 {
		t.Errorf("FileAt(...): want revision 2, got %d", f.Revision)
	}
}

func TestRenameAndDelete(t *testing.T) {
	w := scanned(t)

	// The caller moves the file on disk, then notifies.
	fs := w.fs
	b, _ := afero.ReadFile(fs, "/ws/src/Color.elm")
	_ = afero.WriteFile(fs, "/ws/src/Paint.elm", b, os.ModePerm)
	_ = fs.Remove("/ws/src/Color.elm")

	if err := w.RenameFile(context.Background(), "/ws/src/Color.elm", "/ws/src/Paint.elm"); err != nil {
		t.Fatalf("RenameFile(...): %v", err)
	}
	if _, err := w.FileAt("/ws/src/Color.elm"); err == nil {
		t.Error("FileAt(old): want error after rename")
	}
	if _, err := w.FileAt("/ws/src/Paint.elm"); err != nil {
		t.Errorf("FileAt(new): %v", err)
	}

	w.DeleteFile("/ws/src/Paint.elm")
	if owners := w.CtorOwners("Red"); len(owners) != 0 {
		t.Errorf("CtorOwners(Red): want none after delete, got %+v", owners)
	}
}
