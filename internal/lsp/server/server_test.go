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

package server

import (
	"context"
	"os"
	"strings"
	"testing"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/spf13/afero"

	"github.com/upbound/elm-ls/internal/elm/workspace"
)

const manifest = `{"type": "application", "source-directories": ["src"]}`

func testServer(t *testing.T, files map[string]string) *Server {
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
	s, err := New(WithFS(fs))
	if err != nil {
		t.Fatal(err)
	}
	s.ws = ws
	s.root = "/ws"
	return s
}

func fixture() map[string]string {
	return map[string]string{
		"/ws/src/Color.elm": `module Color exposing (Color(..), toHex)


type Color
    = Red
    | Green
    | Blue


toHex : Color -> String
toHex c =
    case c of
        Red ->
            "#f00"

        Green ->
            "#0f0"

        Blue ->
            "#00f"
`,
		"/ws/src/Main.elm": `module Main exposing (main)

import Color exposing (Color(..), toHex)


main : String
main =
    toHex Red
`,
	}
}

func TestDocumentSymbol(t *testing.T) {
	s := testServer(t, fixture())
	syms, err := s.DocumentSymbol(context.Background(), &lsp.DocumentSymbolParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: pathToURI("/ws/src/Color.elm")},
	})
	if err != nil {
		t.Fatalf("DocumentSymbol(...): %v", err)
	}
	names := map[string]lsp.SymbolKind{}
	for _, sym := range syms {
		names[sym.Name] = sym.Kind
	}
	if names["Color"] != lsp.SKEnum || names["Red"] != lsp.SKConstructor || names["toHex"] != lsp.SKFunction {
		t.Errorf("DocumentSymbol(...): got %+v", names)
	}
}

func TestDefinitionAcrossFiles(t *testing.T) {
	s := testServer(t, fixture())
	// Cursor on the toHex call in Main.
	loc, err := s.Definition(context.Background(), &lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: pathToURI("/ws/src/Main.elm")},
		Position:     lsp.Position{Line: 7, Character: 5},
	})
	if err != nil {
		t.Fatalf("Definition(...): %v", err)
	}
	if loc == nil || !strings.HasSuffix(string(loc.URI), "Color.elm") {
		t.Fatalf("Definition(...): got %+v", loc)
	}
}

func TestExecuteRenameFunction(t *testing.T) {
	s := testServer(t, fixture())
	env, err := s.ExecuteCommand(context.Background(), &lsp.ExecuteCommandParams{
		Command: cmdRenameFunction,
		Arguments: []interface{}{map[string]interface{}{
			"file":         "/ws/src/Color.elm",
			"line":         10,
			"character":    0,
			"expectedName": "toHex",
			"newName":      "toHexString",
		}},
	})
	if err != nil {
		t.Fatalf("ExecuteCommand(...): %v", err)
	}
	if !env.Success {
		t.Fatalf("ExecuteCommand(...): envelope failure: %s", env.Error)
	}
	if env.FileCount != 2 {
		t.Errorf("ExecuteCommand(...): want edits in 2 files, got %d", env.FileCount)
	}
}

func TestExecuteRenameStale(t *testing.T) {
	s := testServer(t, fixture())
	env, err := s.ExecuteCommand(context.Background(), &lsp.ExecuteCommandParams{
		Command: cmdRenameFunction,
		Arguments: []interface{}{map[string]interface{}{
			"file":         "/ws/src/Color.elm",
			"line":         10,
			"character":    0,
			"expectedName": "somethingElse",
			"newName":      "toHexString",
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if env.Success || !strings.Contains(env.Error, "shifted") {
		t.Errorf("ExecuteCommand(...): want stale-cursor failure, got %+v", env)
	}
}

func TestExecutePrepareRemoveVariant(t *testing.T) {
	s := testServer(t, fixture())
	env, err := s.ExecuteCommand(context.Background(), &lsp.ExecuteCommandParams{
		Command: cmdPrepareRemoveVariant,
		Arguments: []interface{}{map[string]interface{}{
			"file":      "/ws/src/Color.elm",
			"line":      5,
			"character": 6,
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !env.Success || env.Plan == nil {
		t.Fatalf("ExecuteCommand(...): want plan, got %+v", env)
	}
	if env.Plan.Variant != "Green" {
		t.Errorf("ExecuteCommand(...): want variant Green, got %s", env.Plan.Variant)
	}
	if env.Changes != nil {
		t.Error("ExecuteCommand(...): prepare must not emit edits")
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	s := testServer(t, fixture())
	env, err := s.ExecuteCommand(context.Background(), &lsp.ExecuteCommandParams{Command: "elm.bogus"})
	if err != nil {
		t.Fatal(err)
	}
	if env.Success {
		t.Error("ExecuteCommand(...): want failure for unknown command")
	}
}

func TestApplyContentChanges(t *testing.T) {
	src := []byte("hello\nworld\n")
	r := &lsp.Range{
		Start: lsp.Position{Line: 1, Character: 0},
		End:   lsp.Position{Line: 1, Character: 5},
	}
	got := applyContentChanges(src, []lsp.TextDocumentContentChangeEvent{{Range: r, Text: "there"}})
	if string(got) != "hello\nthere\n" {
		t.Errorf("applyContentChanges(...): got %q", got)
	}

	got = applyContentChanges(src, []lsp.TextDocumentContentChangeEvent{{Text: "replaced"}})
	if string(got) != "replaced" {
		t.Errorf("applyContentChanges(...): full replace got %q", got)
	}
}
