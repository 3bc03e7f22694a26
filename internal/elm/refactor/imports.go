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
	"fmt"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/module"
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

// exposing-list and import-statement surgery shared by move-function and the
// file refactors.

// removeExposedName deletes name from an explicit exposing list, taking one
// adjacent comma with it. When the list would become empty, onEmpty is
// called instead of editing the list.
func removeExposedName(changes WorkspaceEdit, path string, exp *module.Exposing, name string, onEmpty func()) {
	if exp == nil || exp.Open {
		return
	}
	idx := -1
	for i, it := range exp.Items {
		if it.Name == name {
			idx = i
		}
	}
	if idx < 0 {
		return
	}
	if len(exp.Items) == 1 {
		if onEmpty != nil {
			onEmpty()
		}
		return
	}
	var span elm.Span
	switch {
	case idx < len(exp.Items)-1:
		next := exp.Items[idx+1].Span
		span = elm.Span{
			Start: exp.Items[idx].Span.Start, End: next.Start,
			StartPoint: exp.Items[idx].Span.StartPoint, EndPoint: next.StartPoint,
		}
	default:
		prev := exp.Items[idx-1].Span
		span = elm.Span{
			Start: prev.End, End: exp.Items[idx].Span.End,
			StartPoint: prev.EndPoint, EndPoint: exp.Items[idx].Span.EndPoint,
		}
	}
	changes.Add(path, Edit{Span: span})
}

// addExposedName appends name to an explicit exposing list. Open lists
// already expose everything.
func addExposedName(changes WorkspaceEdit, path string, exp *module.Exposing, name string) {
	if exp == nil || exp.Open || exp.Exposes(name) {
		return
	}
	insert := ", " + name
	if len(exp.Items) == 0 {
		insert = name
	}
	at := exp.ListSpan.End - 1
	p := exp.ListSpan.EndPoint
	if p.Column > 0 {
		p = elm.Point{Row: p.Row, Column: p.Column - 1}
	}
	changes.Add(path, Edit{Span: pointSpan(at, p), NewText: insert})
}

// dropExposingClause removes an import's whole exposing clause, including
// the separating space.
func dropExposingClause(changes WorkspaceEdit, path string, exp *module.Exposing) {
	span := exp.Span
	if span.Start > 0 {
		span.Start--
		if span.StartPoint.Column > 0 {
			span.StartPoint.Column--
		}
	}
	changes.Add(path, Edit{Span: span})
}

// insertImport adds a new import statement at the file's canonical import
// position: before the first existing import, or two lines below the module
// header.
func insertImport(changes WorkspaceEdit, f *workspace.File, stmt string) {
	ix := f.Index
	if len(ix.Imports) > 0 {
		first := ix.Imports[0].Span
		changes.Add(f.Path, Edit{
			Span:    pointSpan(first.Start, first.StartPoint),
			NewText: stmt + "\n",
		})
		return
	}
	after := ix.HeaderSpan
	changes.Add(f.Path, Edit{
		Span:    pointSpan(after.End, after.EndPoint),
		NewText: "\n\n" + stmt,
	})
}

// importExposing builds an import statement exposing one name.
func importExposing(mod, name string) string {
	return fmt.Sprintf("import %s exposing (%s)", mod, name)
}

// ensureImportExposing makes name reachable unqualified from mod within f:
// extending an existing import's list, or inserting a fresh import.
func ensureImportExposing(changes WorkspaceEdit, f *workspace.File, mod, name string) {
	imp := f.Index.ImportOf(mod)
	if imp == nil {
		insertImport(changes, f, importExposing(mod, name))
		return
	}
	if imp.Exposing == nil {
		at := imp.Span.End
		changes.Add(f.Path, Edit{
			Span:    pointSpan(at, imp.Span.EndPoint),
			NewText: fmt.Sprintf(" exposing (%s)", name),
		})
		return
	}
	addExposedName(changes, f.Path, imp.Exposing, name)
}

// extendThroughWhitespace widens a span's end through any following run of
// whitespace, tracking row/column so the span stays convertible to editor
// positions.
func extendThroughWhitespace(src []byte, span elm.Span) elm.Span {
	end := span.End
	p := span.EndPoint
	for end < uint32(len(src)) {
		switch src[end] {
		case '\n':
			p = elm.Point{Row: p.Row + 1, Column: 0}
		case ' ', '\t', '\r':
			p.Column++
		default:
			span.End, span.EndPoint = end, p
			return span
		}
		end++
	}
	span.End, span.EndPoint = end, p
	return span
}

// endOf returns the offset and point just past the last byte of src.
func endOf(src []byte) (uint32, elm.Point) {
	p := elm.Point{}
	for _, b := range src {
		if b == '\n' {
			p = elm.Point{Row: p.Row + 1, Column: 0}
			continue
		}
		p.Column++
	}
	return uint32(len(src)), p
}
