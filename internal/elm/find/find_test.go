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

package find

import (
	"context"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/classify"
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

const manifest = `{"type": "application", "source-directories": ["src"]}`

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
		t.Fatal(err)
	}
	if err := ws.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	return ws
}

func pointOf(t *testing.T, ws *workspace.Workspace, path, needle string) elm.Point {
	t.Helper()
	f, err := ws.FileAt(path)
	if err != nil {
		t.Fatal(err)
	}
	off := strings.Index(string(f.Source), needle)
	if off < 0 {
		t.Fatalf("pointOf: %q not found in %s", needle, path)
	}
	p := elm.Point{}
	for _, b := range f.Source[:off] {
		if b == '\n' {
			p = elm.Point{Row: p.Row + 1}
			continue
		}
		p.Column++
	}
	return p
}

func perFileCounts(locs []Location) map[string]int {
	out := map[string]int{}
	for _, l := range locs {
		out[l.Path]++
	}
	return out
}

func fixture() map[string]string {
	return map[string]string{
		"/ws/src/A.elm": `module A exposing (Color(..), foo)


type Color
    = Red
    | Green


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
		"/ws/src/D.elm": `module D exposing (d)

import A exposing (foo)


d : Int
d =
    let
        foo =
            10
    in
    foo
`,
	}
}

func TestValueReferences(t *testing.T) {
	ws := buildWS(t, fixture())
	def, err := classify.At(ws, "/ws/src/A.elm", pointOf(t, ws, "/ws/src/A.elm", "foo =\n"))
	if err != nil {
		t.Fatal(err)
	}

	res, err := References(context.Background(), ws, def)
	if err != nil {
		t.Fatalf("References(...): %v", err)
	}

	counts := perFileCounts(res.Locations)
	// A: exposing entry, annotation name, declaration name.
	if counts["/ws/src/A.elm"] != 3 {
		t.Errorf("References(...): want 3 in A, got %d", counts["/ws/src/A.elm"])
	}
	// B: import exposing entry plus body use.
	if counts["/ws/src/B.elm"] != 2 {
		t.Errorf("References(...): want 2 in B, got %d", counts["/ws/src/B.elm"])
	}
	// C: the qualified use.
	if counts["/ws/src/C.elm"] != 1 {
		t.Errorf("References(...): want 1 in C, got %d", counts["/ws/src/C.elm"])
	}
	// D: only the import exposing entry; the let binding shadows the body
	// use.
	if counts["/ws/src/D.elm"] != 1 {
		t.Errorf("References(...): want 1 in D, got %d", counts["/ws/src/D.elm"])
	}

	if !sort.SliceIsSorted(res.Locations, func(i, j int) bool {
		if res.Locations[i].Path != res.Locations[j].Path {
			return res.Locations[i].Path < res.Locations[j].Path
		}
		return res.Locations[i].Span.Start < res.Locations[j].Span.Start
	}) {
		t.Error("References(...): locations must be ordered by (path, offset)")
	}
}

func TestVariantReferences(t *testing.T) {
	ws := buildWS(t, map[string]string{
		"/ws/src/A.elm": fixture()["/ws/src/A.elm"],
		"/ws/src/E.elm": `module E exposing (e)

import A exposing (Color(..))


e : Color -> Int
e c =
    case c of
        Red ->
            1

        Green ->
            2


r : Color
r =
    Red
`,
	})
	def, err := classify.At(ws, "/ws/src/A.elm", pointOf(t, ws, "/ws/src/A.elm", "Red"))
	if err != nil {
		t.Fatal(err)
	}
	if def.Kind != classify.KindVariant {
		t.Fatalf("classify: got %+v", def)
	}

	res, err := References(context.Background(), ws, def)
	if err != nil {
		t.Fatal(err)
	}
	counts := perFileCounts(res.Locations)
	// Declaration site in A; pattern use and constructor use in E.
	if counts["/ws/src/A.elm"] != 1 || counts["/ws/src/E.elm"] != 2 {
		t.Errorf("References(...): want 1 in A and 2 in E, got %+v", counts)
	}
}

func TestAliasReferences(t *testing.T) {
	ws := buildWS(t, map[string]string{
		"/ws/src/A.elm": fixture()["/ws/src/A.elm"],
		"/ws/src/F.elm": `module F exposing (f)

import A as Alpha


f : Int
f =
    Alpha.foo + Alpha.foo
`,
	})
	def, err := classify.At(ws, "/ws/src/F.elm", pointOf(t, ws, "/ws/src/F.elm", "Alpha.foo"))
	if err != nil {
		t.Fatal(err)
	}
	if def.Kind != classify.KindModuleAlias || def.Target != "A" {
		t.Fatalf("classify: got %+v", def)
	}

	res, err := References(context.Background(), ws, def)
	if err != nil {
		t.Fatal(err)
	}
	// The as-clause introduction plus two qualifier uses, all in F.
	if len(res.Locations) != 3 {
		t.Errorf("References(...): want 3 locations, got %+v", res.Locations)
	}
	for _, l := range res.Locations {
		if l.Path != "/ws/src/F.elm" {
			t.Errorf("References(...): alias references must stay in the introducing file, got %s", l.Path)
		}
	}
}

func TestLocalReferences(t *testing.T) {
	ws := buildWS(t, fixture())
	def, err := classify.At(ws, "/ws/src/D.elm", pointOf(t, ws, "/ws/src/D.elm", "foo =\n            10"))
	if err != nil {
		t.Fatal(err)
	}
	if def.Kind != classify.KindLocal {
		t.Fatalf("classify: got %+v", def)
	}

	res, err := References(context.Background(), ws, def)
	if err != nil {
		t.Fatal(err)
	}
	// The binder and the in-expression use.
	if len(res.Locations) != 2 {
		t.Errorf("References(...): want 2 locations, got %+v", res.Locations)
	}
}
