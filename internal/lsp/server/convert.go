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
	"golang.org/x/tools/span"
	lsp "github.com/sourcegraph/go-lsp"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/find"
	"github.com/upbound/elm-ls/internal/elm/refactor"
)

// uriToPath converts an LSP document URI to a filesystem path.
func uriToPath(uri lsp.DocumentURI) string {
	return span.URIFromURI(string(uri)).Filename()
}

// pathToURI converts a filesystem path to an LSP document URI.
func pathToURI(path string) lsp.DocumentURI {
	return lsp.DocumentURI(span.URIFromPath(path))
}

func toPoint(p lsp.Position) elm.Point {
	return elm.Point{Row: uint32(p.Line), Column: uint32(p.Character)}
}

func toRange(s elm.Span) lsp.Range {
	return lsp.Range{
		Start: lsp.Position{Line: int(s.StartPoint.Row), Character: int(s.StartPoint.Column)},
		End:   lsp.Position{Line: int(s.EndPoint.Row), Character: int(s.EndPoint.Column)},
	}
}

func toLocation(l find.Location) lsp.Location {
	return lsp.Location{URI: pathToURI(l.Path), Range: toRange(l.Span)}
}

func toLocations(ls []find.Location) []lsp.Location {
	out := make([]lsp.Location, 0, len(ls))
	for _, l := range ls {
		out = append(out, toLocation(l))
	}
	return out
}

// toWorkspaceEdit converts the engine's edit model to the wire shape,
// keyed by document URI.
func toWorkspaceEdit(we refactor.WorkspaceEdit) map[string][]lsp.TextEdit {
	out := make(map[string][]lsp.TextEdit, len(we))
	for path, edits := range we {
		uri := string(pathToURI(path))
		for _, e := range edits {
			out[uri] = append(out[uri], lsp.TextEdit{Range: toRange(e.Span), NewText: e.NewText})
		}
	}
	return out
}

// offsetAt converts a position to a byte offset within source.
func offsetAt(src []byte, p lsp.Position) uint32 {
	line, col := 0, 0
	for i := range src {
		if line == p.Line && col == p.Character {
			return uint32(i)
		}
		if src[i] == '\n' {
			if line == p.Line {
				// Position past the end of the line clamps to it.
				return uint32(i)
			}
			line++
			col = 0
			continue
		}
		col++
	}
	return uint32(len(src))
}

// applyContentChanges folds LSP content changes into the source buffer. A
// change without a range replaces the whole document.
func applyContentChanges(src []byte, changes []lsp.TextDocumentContentChangeEvent) []byte {
	for _, c := range changes {
		if c.Range == nil {
			src = []byte(c.Text)
			continue
		}
		start := offsetAt(src, c.Range.Start)
		end := offsetAt(src, c.Range.End)
		if end < start {
			continue
		}
		next := make([]byte, 0, len(src)-int(end-start)+len(c.Text))
		next = append(next, src[:start]...)
		next = append(next, c.Text...)
		next = append(next, src[end:]...)
		src = next
	}
	return src
}
