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

package classify

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

const manifest = `{"type": "application", "source-directories": ["src"]}`

func buildWS(t *testing.T) *workspace.Workspace {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/ws/elm.json": manifest,
		"/ws/src/Shape.elm": `module Shape exposing (Shape(..), Point, area)


type Shape
    = Circle Float
    | Square Float


type alias Point =
    { x : Float
    , y : Float
    }


area : Shape -> Float
area shape =
    case shape of
        Circle r ->
            3.14 * r * r

        Square s ->
            s * s
`,
		"/ws/src/Draw.elm": `module Draw exposing (draw, shift)

import Shape as S exposing (Shape(..), Point, area)


draw : Shape -> Float
draw s =
    area s


shift : Point -> Point
shift p =
    { p | x = p.x + 1 }


unit : Shape
unit =
    S.Circle 1
`,
	}
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

func TestAt(t *testing.T) {
	ws := buildWS(t)

	cases := map[string]struct {
		reason string
		path   string
		needle string
		nth    int
		want   Definition
	}{
		"ValueDefinition": {
			reason: "A lowercase token on the left of = at top level is the value's definition.",
			path:   "/ws/src/Shape.elm",
			needle: "area shape",
			want:   Definition{Kind: KindValue, Module: "Shape", Name: "area"},
		},
		"TypeDefinition": {
			reason: "The name in a type declaration header is a type.",
			path:   "/ws/src/Shape.elm",
			needle: "Shape\n    = Circle",
			want:   Definition{Kind: KindType, Module: "Shape", Name: "Shape"},
		},
		"VariantDeclaration": {
			reason: "A variant name in a declaration resolves to its owning type.",
			path:   "/ws/src/Shape.elm",
			needle: "Circle Float",
			want:   Definition{Kind: KindVariant, Module: "Shape", Name: "Circle", TypeName: "Shape"},
		},
		"VariantInPattern": {
			reason: "A constructor in pattern position is a variant reference.",
			path:   "/ws/src/Shape.elm",
			needle: "Circle r ->",
			want:   Definition{Kind: KindVariant, Module: "Shape", Name: "Circle", TypeName: "Shape"},
		},
		"TypeInAnnotation": {
			reason: "A capitalized token in a type position is a type even when a variant shares the spelling.",
			path:   "/ws/src/Draw.elm",
			needle: "Shape -> Float",
			want:   Definition{Kind: KindType, Module: "Shape", Name: "Shape"},
		},
		"ImportedValueUse": {
			reason: "An unqualified use of an imported value resolves through the exposing list.",
			path:   "/ws/src/Draw.elm",
			needle: "area s",
			want:   Definition{Kind: KindValue, Module: "Shape", Name: "area"},
		},
		"QualifiedVariantUse": {
			reason: "A constructor qualified through an alias resolves to the aliased module.",
			path:   "/ws/src/Draw.elm",
			needle: "Circle 1",
			want:   Definition{Kind: KindVariant, Module: "Shape", Name: "Circle", TypeName: "Shape"},
		},
		"AliasQualifier": {
			reason: "The qualifier segment of a qualified reference is a module alias.",
			path:   "/ws/src/Draw.elm",
			needle: "S.Circle",
			want:   Definition{Kind: KindModuleAlias, Alias: "S", Target: "Shape"},
		},
		"ImportModuleName": {
			reason: "The module name in an import statement resolves to the module, under its in-file alias.",
			path:   "/ws/src/Draw.elm",
			needle: "Shape as S",
			want:   Definition{Kind: KindModuleAlias, Alias: "S", Target: "Shape"},
		},
		"FieldAccess": {
			reason: "The token after a record-access dot is a field.",
			path:   "/ws/src/Draw.elm",
			needle: "x + 1",
			want:   Definition{Kind: KindField, Name: "x"},
		},
		"FieldInAliasDecl": {
			reason: "A field name in a record alias declaration is a field of that alias.",
			path:   "/ws/src/Shape.elm",
			needle: "x : Float",
			want:   Definition{Kind: KindField, Name: "x"},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := At(ws, tc.path, pointOf(t, ws, tc.path, tc.needle, tc.nth))
			if err != nil {
				t.Fatalf("\n%s\nAt(...): %v", tc.reason, err)
			}
			if got.Kind != tc.want.Kind {
				t.Fatalf("\n%s\nAt(...): want kind %v, got %v (%+v)", tc.reason, tc.want.Kind, got.Kind, got)
			}
			if tc.want.Name != "" && got.Name != tc.want.Name {
				t.Errorf("\n%s\nAt(...): want name %q, got %q", tc.reason, tc.want.Name, got.Name)
			}
			if tc.want.Module != "" && got.Module != tc.want.Module {
				t.Errorf("\n%s\nAt(...): want module %q, got %q", tc.reason, tc.want.Module, got.Module)
			}
			if tc.want.TypeName != "" && got.TypeName != tc.want.TypeName {
				t.Errorf("\n%s\nAt(...): want type %q, got %q", tc.reason, tc.want.TypeName, got.TypeName)
			}
			if tc.want.Alias != "" && (got.Alias != tc.want.Alias || got.Target != tc.want.Target) {
				t.Errorf("\n%s\nAt(...): want alias %q->%q, got %q->%q",
					tc.reason, tc.want.Alias, tc.want.Target, got.Alias, got.Target)
			}
		})
	}
}

func TestAtLocal(t *testing.T) {
	ws := buildWS(t)

	// The case pattern variable r is a local binding; its use resolves to
	// the binder, not to any module-level definition.
	got, err := At(ws, "/ws/src/Shape.elm", pointOf(t, ws, "/ws/src/Shape.elm", "r * r", 0))
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindLocal || got.Binding == nil {
		t.Fatalf("At(...): want local binding, got %+v", got)
	}

	// Field candidates on shift's record update point at Point.
	fdef, err := At(ws, "/ws/src/Draw.elm", pointOf(t, ws, "/ws/src/Draw.elm", "x = p.x", 0))
	if err != nil {
		t.Fatal(err)
	}
	if fdef.Kind != KindField {
		t.Fatalf("At(...): want field, got %+v", fdef)
	}
	foundPoint := false
	for _, c := range fdef.Candidates {
		if c == (workspace.TypeRef{Module: "Shape", Type: "Point"}) {
			foundPoint = true
		}
	}
	if !foundPoint {
		t.Errorf("At(...): want Shape.Point among candidates, got %+v", fdef.Candidates)
	}
}
