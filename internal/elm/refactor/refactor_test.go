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

package refactor

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/classify"
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

const manifest = `{"type": "application", "source-directories": ["src"]}`

// buildWS scans an in-memory workspace from the given files.
func buildWS(t *testing.T, files map[string]string) *workspace.Workspace {
	t.Helper()
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/ws/elm.json", []byte(manifest), os.ModePerm)
	for p, body := range files {
		if err := afero.WriteFile(fs, p, []byte(body), os.ModePerm); err != nil {
			t.Fatal(err)
		}
	}
	ws, err := workspace.New("/ws/src", workspace.WithFS(fs))
	if err != nil {
		t.Fatalf("workspace.New(...): %v", err)
	}
	if err := ws.Scan(context.Background()); err != nil {
		t.Fatalf("Scan(...): %v", err)
	}
	return ws
}

// pointOf locates the nth occurrence of needle in the file and returns its
// position.
func pointOf(t *testing.T, ws *workspace.Workspace, path, needle string, nth int) elm.Point {
	t.Helper()
	f, err := ws.FileAt(path)
	if err != nil {
		t.Fatal(err)
	}
	src := string(f.Source)
	off := -1
	for i := 0; i <= nth; i++ {
		next := strings.Index(src[off+1:], needle)
		if next < 0 {
			t.Fatalf("pointOf: %q occurrence %d not found in %s", needle, nth, path)
		}
		off += 1 + next
	}
	p := elm.Point{}
	for _, b := range []byte(src[:off]) {
		if b == '\n' {
			p = elm.Point{Row: p.Row + 1}
			continue
		}
		p.Column++
	}
	return p
}

func classifyAt(t *testing.T, ws *workspace.Workspace, path, needle string, nth int) *classify.Definition {
	t.Helper()
	def, err := classify.At(ws, path, pointOf(t, ws, path, needle, nth))
	if err != nil {
		t.Fatalf("classify.At(...): %v", err)
	}
	return def
}

// applied runs the workspace edit over the in-memory sources and returns
// the new text per path.
func applied(t *testing.T, ws *workspace.Workspace, changes WorkspaceEdit) map[string]string {
	t.Helper()
	out := map[string]string{}
	for path, edits := range changes {
		f, err := ws.FileAt(path)
		if err != nil {
			t.Fatalf("applied: %v", err)
		}
		out[path] = string(Apply(f.Source, edits))
	}
	return out
}

func valueFixture() map[string]string {
	return map[string]string{
		"/ws/src/A.elm": `module A exposing (Color(..), foo)


type Color
    = Red
    | Green
    | Blue


foo : Int
foo =
    1
`,
		"/ws/src/B.elm": `module B exposing (useFoo)

import A exposing (foo)


useFoo : Int
useFoo =
    foo + 1
`,
		"/ws/src/C.elm": `module C exposing (c)

import A


c : Int
c =
    A.foo
`,
	}
}

func TestRenameValueAcrossFiles(t *testing.T) {
	ws := buildWS(t, valueFixture())
	def := classifyAt(t, ws, "/ws/src/A.elm", "foo =", 0)
	if def.Kind != classify.KindValue || def.Module != "A" {
		t.Fatalf("classify: got %+v", def)
	}

	res, err := Rename(context.Background(), ws, def, "foo", "bar")
	if err != nil {
		t.Fatalf("Rename(...): %v", err)
	}
	got := applied(t, ws, res.Changes)

	if !strings.Contains(got["/ws/src/A.elm"], "exposing (Color(..), bar)") {
		t.Errorf("Rename(...): A header not updated:\n%s", got["/ws/src/A.elm"])
	}
	if !strings.Contains(got["/ws/src/A.elm"], "bar : Int\nbar =") {
		t.Errorf("Rename(...): A declaration not updated:\n%s", got["/ws/src/A.elm"])
	}
	if !strings.Contains(got["/ws/src/B.elm"], "import A exposing (bar)") ||
		!strings.Contains(got["/ws/src/B.elm"], "bar + 1") {
		t.Errorf("Rename(...): B not updated:\n%s", got["/ws/src/B.elm"])
	}
	if !strings.Contains(got["/ws/src/C.elm"], "A.bar") {
		t.Errorf("Rename(...): C qualified use not updated:\n%s", got["/ws/src/C.elm"])
	}
	for p, body := range got {
		if strings.Contains(body, "foo") {
			t.Errorf("Rename(...): residue of old name in %s:\n%s", p, body)
		}
	}
}

func TestRenameRoundTrip(t *testing.T) {
	ws := buildWS(t, valueFixture())
	before := map[string]string{}
	for _, f := range ws.Files() {
		before[f.Path] = string(f.Source)
	}

	def := classifyAt(t, ws, "/ws/src/A.elm", "foo =", 0)
	res, err := Rename(context.Background(), ws, def, "foo", "bar")
	if err != nil {
		t.Fatal(err)
	}
	for p, body := range applied(t, ws, res.Changes) {
		if err := ws.UpdateFile(context.Background(), p, []byte(body)); err != nil {
			t.Fatal(err)
		}
	}

	def = classifyAt(t, ws, "/ws/src/A.elm", "bar =", 0)
	res, err = Rename(context.Background(), ws, def, "bar", "foo")
	if err != nil {
		t.Fatal(err)
	}
	after := applied(t, ws, res.Changes)
	for p, want := range before {
		got, ok := after[p]
		if !ok {
			// Untouched on the way back means untouched both ways.
			continue
		}
		if got != want {
			t.Errorf("round trip: %s differs:\nwant:\n%s\ngot:\n%s", p, want, got)
		}
	}
}

func TestRenameStaleCursor(t *testing.T) {
	ws := buildWS(t, valueFixture())
	def := classifyAt(t, ws, "/ws/src/A.elm", "foo =", 0)
	if _, err := Rename(context.Background(), ws, def, "fop", "bar"); err == nil {
		t.Error("Rename(...): want stale-cursor error")
	}
}

func removeFixture() map[string]string {
	return map[string]string{
		"/ws/src/Color.elm": `module Color exposing (Color(..), f, default)


type Color
    = Red
    | Green
    | Blue


f : Color -> Int
f c =
    case c of
        Red ->
            1

        Green ->
            2

        Blue ->
            3


default : Color
default =
    Blue
`,
	}
}

func TestRemoveVariant(t *testing.T) {
	ws := buildWS(t, removeFixture())
	def := classifyAt(t, ws, "/ws/src/Color.elm", "Blue", 0)
	if def.Kind != classify.KindVariant || def.TypeName != "Color" {
		t.Fatalf("classify: got %+v", def)
	}
	res, err := RemoveVariant(context.Background(), ws, def)
	if err != nil {
		t.Fatalf("RemoveVariant(...): %v", err)
	}
	got := applied(t, ws, res.Changes)["/ws/src/Color.elm"]

	if strings.Contains(got, "| Blue") {
		t.Errorf("RemoveVariant(...): declaration retains variant:\n%s", got)
	}
	if strings.Contains(got, "Blue ->") {
		t.Errorf("RemoveVariant(...): pattern branch survives:\n%s", got)
	}
	if !strings.Contains(got, "Red ->") || !strings.Contains(got, "Green ->") {
		t.Errorf("RemoveVariant(...): other branches must survive:\n%s", got)
	}
	if !strings.Contains(got, `default =
    (Debug.todo "Color.Blue removed")`) {
		t.Errorf("RemoveVariant(...): constructor use not rewritten to hole:\n%s", got)
	}

	if len(res.Plan.PatternUses) != 1 || len(res.Plan.CtorUses) != 1 {
		t.Errorf("RemoveVariant(...): plan: got %d pattern, %d constructor uses",
			len(res.Plan.PatternUses), len(res.Plan.CtorUses))
	}
}

func TestRemoveVariantPrunesWildcard(t *testing.T) {
	ws := buildWS(t, map[string]string{
		"/ws/src/Toggle.elm": `module Toggle exposing (Toggle(..), toString)


type Toggle
    = On
    | Off


toString : Toggle -> String
toString t =
    case t of
        On ->
            "on"

        _ ->
            "off"
`,
	})
	def := classifyAt(t, ws, "/ws/src/Toggle.elm", "Off", 0)
	res, err := RemoveVariant(context.Background(), ws, def)
	if err != nil {
		t.Fatalf("RemoveVariant(...): %v", err)
	}
	got := applied(t, ws, res.Changes)["/ws/src/Toggle.elm"]

	if strings.Contains(got, "| Off") {
		t.Errorf("RemoveVariant(...): declaration retains variant:\n%s", got)
	}
	if strings.Contains(got, `_ ->`) {
		t.Errorf("RemoveVariant(...): useless wildcard survives:\n%s", got)
	}
	if !strings.Contains(got, `On ->`) {
		t.Errorf("RemoveVariant(...): explicit branch must survive:\n%s", got)
	}
}

func TestRemoveOnlyVariant(t *testing.T) {
	ws := buildWS(t, map[string]string{
		"/ws/src/Single.elm": `module Single exposing (Single(..))


type Single
    = OnlyOne
`,
	})
	def := classifyAt(t, ws, "/ws/src/Single.elm", "OnlyOne", 0)
	_, err := RemoveVariant(context.Background(), ws, def)
	if err == nil || !strings.Contains(err.Error(), "only variant") {
		t.Errorf("RemoveVariant(...): want only-variant error, got %v", err)
	}
}

func moveFixture() map[string]string {
	return map[string]string{
		"/ws/src/Util.elm": `module Util exposing (helper, other)


helper : Int -> Int
helper n =
    n + 1


other : Int
other =
    2
`,
		"/ws/src/Helpers.elm": `module Helpers exposing (noop)


noop : Int
noop =
    0
`,
		"/ws/src/Main.elm": `module Main exposing (main)

import Util exposing (helper)


main : Int
main =
    helper 41
`,
		"/ws/src/Lib.elm": `module Lib exposing (lib)

import Util exposing (helper, other)


lib : Int
lib =
    helper other
`,
	}
}

func TestMoveFunction(t *testing.T) {
	ws := buildWS(t, moveFixture())
	res, err := MoveFunction(context.Background(), ws, "/ws/src/Util.elm", "helper", "/ws/src/Helpers.elm")
	if err != nil {
		t.Fatalf("MoveFunction(...): %v", err)
	}
	got := applied(t, ws, res.Changes)

	util := got["/ws/src/Util.elm"]
	if strings.Contains(util, "helper n =") {
		t.Errorf("MoveFunction(...): declaration still in source:\n%s", util)
	}
	if !strings.Contains(util, "exposing (other)") {
		t.Errorf("MoveFunction(...): source exposing not updated:\n%s", util)
	}

	helpers := got["/ws/src/Helpers.elm"]
	if !strings.Contains(helpers, "helper : Int -> Int\nhelper n =\n    n + 1") {
		t.Errorf("MoveFunction(...): declaration not spliced into target:\n%s", helpers)
	}
	if !strings.Contains(helpers, "exposing (noop, helper)") {
		t.Errorf("MoveFunction(...): target exposing not updated:\n%s", helpers)
	}

	main := got["/ws/src/Main.elm"]
	if !strings.Contains(main, "import Helpers exposing (helper)") {
		t.Errorf("MoveFunction(...): Main import not rewired:\n%s", main)
	}
	if strings.Contains(main, "import Util exposing (helper)") {
		t.Errorf("MoveFunction(...): Main still imports helper from Util:\n%s", main)
	}

	lib := got["/ws/src/Lib.elm"]
	if !strings.Contains(lib, "import Util exposing (other)") {
		t.Errorf("MoveFunction(...): Lib should keep importing other from Util:\n%s", lib)
	}
	if !strings.Contains(lib, "import Helpers exposing (helper)") {
		t.Errorf("MoveFunction(...): Lib import not rewired:\n%s", lib)
	}
}

func TestMoveFunctionUnknownName(t *testing.T) {
	ws := buildWS(t, moveFixture())
	if _, err := MoveFunction(context.Background(), ws, "/ws/src/Util.elm", "missing", "/ws/src/Helpers.elm"); err == nil {
		t.Error("MoveFunction(...): want error for unknown function")
	}
}

func TestMoveFile(t *testing.T) {
	ws := buildWS(t, map[string]string{
		"/ws/src/Link.elm": `module Link exposing (url)


url : String
url =
    "https://example.com"
`,
		"/ws/src/Page.elm": `module Page exposing (view)

import Link


view : String
view =
    Link.url
`,
	})
	res, err := MoveFile(context.Background(), ws, "/ws/src/Link.elm", "/ws/src/WebLink.elm")
	if err != nil {
		t.Fatalf("MoveFile(...): %v", err)
	}
	if res.NewModule != "WebLink" {
		t.Fatalf("MoveFile(...): want new module WebLink, got %s", res.NewModule)
	}
	got := applied(t, ws, res.Changes)

	if !strings.Contains(got["/ws/src/Link.elm"], "module WebLink exposing (url)") {
		t.Errorf("MoveFile(...): header not rewritten:\n%s", got["/ws/src/Link.elm"])
	}
	page := got["/ws/src/Page.elm"]
	if !strings.Contains(page, "import WebLink") || !strings.Contains(page, "WebLink.url") {
		t.Errorf("MoveFile(...): importer not rewritten:\n%s", page)
	}
	if strings.Contains(page, "Link.url") && !strings.Contains(page, "WebLink.url") {
		t.Errorf("MoveFile(...): qualified use survives:\n%s", page)
	}
}

func TestMoveFileRejectsNonElm(t *testing.T) {
	ws := buildWS(t, map[string]string{
		"/ws/src/Link.elm": "module Link exposing (url)\n\n\nurl : String\nurl =\n    \"x\"\n",
	})
	if _, err := MoveFile(context.Background(), ws, "/ws/src/Link.elm", "/ws/src/Link.txt"); err == nil {
		t.Error("MoveFile(...): want error for non-elm target")
	}
}
