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

// Package refactor computes workspace edits for the mechanical refactorings:
// renames, remove-variant, move-function and file renames. The engine never
// writes files; callers apply the returned edits and re-sync the index.
package refactor

import (
	"sort"
	"strings"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/find"
)

// An Edit replaces one span of a file with new text.
type Edit struct {
	Span    elm.Span
	NewText string
}

// A WorkspaceEdit maps file paths to their replacement lists. Edits within a
// file are non-overlapping.
type WorkspaceEdit map[string][]Edit

// Add records an edit for a path.
func (we WorkspaceEdit) Add(path string, e Edit) {
	we[path] = append(we[path], e)
}

// Merge folds other into the receiver.
func (we WorkspaceEdit) Merge(other WorkspaceEdit) {
	for p, es := range other {
		we[p] = append(we[p], es...)
	}
}

// EditCount returns the total number of replacements.
func (we WorkspaceEdit) EditCount() int {
	n := 0
	for _, es := range we {
		n += len(es)
	}
	return n
}

// FileCount returns the number of files touched.
func (we WorkspaceEdit) FileCount() int {
	return len(we)
}

// Apply rewrites source with the given edits, applying them in descending
// start order so earlier offsets stay valid.
func Apply(src []byte, edits []Edit) []byte {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Span.Start > sorted[j].Span.Start })

	out := src
	for _, e := range sorted {
		if e.Span.End > uint32(len(out)) {
			continue
		}
		var b strings.Builder
		b.Write(out[:e.Span.Start])
		b.WriteString(e.NewText)
		b.Write(out[e.Span.End:])
		out = []byte(b.String())
	}
	return out
}

// replaceAll emits one substitution per location.
func replaceAll(we WorkspaceEdit, locs []find.Location, newText string) {
	for _, l := range locs {
		we.Add(l.Path, Edit{Span: l.Span, NewText: newText})
	}
}

// lineAt extracts the source line containing the given offset, trimmed of
// surrounding whitespace, for one-line use summaries.
func lineAt(src []byte, off uint32) string {
	if off > uint32(len(src)) {
		return ""
	}
	start := int(off)
	for start > 0 && src[start-1] != '\n' {
		start--
	}
	end := int(off)
	for end < len(src) && src[end] != '\n' {
		end++
	}
	return strings.TrimSpace(string(src[start:end]))
}

// pointSpan builds a zero-length span at a byte offset, for insertions.
func pointSpan(off uint32, p elm.Point) elm.Span {
	return elm.Span{Start: off, End: off, StartPoint: p, EndPoint: p}
}
