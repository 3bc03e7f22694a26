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

// Package find enumerates the scope-correct references of a definition
// across the workspace. Files are swept in parallel; results are
// deduplicated and ordered by (path, offset) for determinism.
package find

import (
	"context"
	"runtime"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/classify"
	"github.com/upbound/elm-ls/internal/elm/module"
	"github.com/upbound/elm-ls/internal/elm/parser"
	"github.com/upbound/elm-ls/internal/elm/scope"
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

const (
	nodeValueQID     = "value_qid"
	nodeLowerPattern = "lower_pattern"

	errUnsupportedKind = "references are not supported for this definition kind"
)

// A Location is one occurrence of a definition.
type Location struct {
	Path string
	Span elm.Span
}

// A Result is the outcome of a reference sweep. Skipped holds field
// occurrences whose receiver type could not be attributed; callers surface
// them instead of editing them.
type Result struct {
	Locations []Location
	Skipped   []Location
}

// References enumerates every occurrence of the given definition, the
// definition site included.
func References(ctx context.Context, ws *workspace.Workspace, def *classify.Definition) (*Result, error) {
	switch def.Kind {
	case classify.KindValue:
		return sweep(ctx, ws, func(f *workspace.File) ([]Location, []Location) {
			return valueRefs(f, def.Module, def.Name), nil
		})
	case classify.KindType:
		return sweep(ctx, ws, func(f *workspace.File) ([]Location, []Location) {
			return typeRefs(ws, f, def.Module, def.Name), nil
		})
	case classify.KindVariant:
		return sweep(ctx, ws, func(f *workspace.File) ([]Location, []Location) {
			return variantRefs(f, def.Module, def.TypeName, def.Name), nil
		})
	case classify.KindField:
		return sweep(ctx, ws, func(f *workspace.File) ([]Location, []Location) {
			return fieldRefs(f, def.Name, def.Candidates)
		})
	case classify.KindModuleAlias:
		f, err := fileOf(ws, def)
		if err != nil {
			return nil, err
		}
		return finish(aliasRefs(f, def.Alias), nil)
	case classify.KindLocal:
		f, err := fileOf(ws, def)
		if err != nil {
			return nil, err
		}
		return finish(localRefs(f, def.Binding), nil)
	default:
		return nil, errors.New(errUnsupportedKind)
	}
}

// fileOf locates the file a file-scoped definition belongs to; the
// classifier only produces alias and local definitions for the file under
// the cursor.
func fileOf(ws *workspace.Workspace, def *classify.Definition) (*workspace.File, error) {
	return ws.FileAt(def.Path)
}

// sweep fans the per-file enumeration out over the workspace.
func sweep(ctx context.Context, ws *workspace.Workspace, perFile func(*workspace.File) ([]Location, []Location)) (*Result, error) {
	files := ws.Files()
	found := make([][]Location, len(files))
	skipped := make([][]Location, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			found[i], skipped[i] = perFile(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all, sk []Location
	for i := range files {
		all = append(all, found[i]...)
		sk = append(sk, skipped[i]...)
	}
	r, _ := finish(all, nil)
	r.Skipped = dedupe(sk)
	return r, nil
}

func finish(locs []Location, _ error) (*Result, error) {
	return &Result{Locations: dedupe(locs)}, nil
}

func dedupe(locs []Location) []Location {
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].Path != locs[j].Path {
			return locs[i].Path < locs[j].Path
		}
		return locs[i].Span.Start < locs[j].Span.Start
	})
	out := locs[:0]
	for i, l := range locs {
		if i > 0 && l.Path == locs[i-1].Path && l.Span.Start == locs[i-1].Span.Start && l.Span.End == locs[i-1].Span.End {
			continue
		}
		out = append(out, l)
	}
	return out
}

// valueRefs enumerates references to module-level value def.Module.def.Name
// within one file: declaration and annotation names, exposing list entries,
// and qualified and unqualified uses that resolve to the definition.
func valueRefs(f *workspace.File, mod, name string) []Location { //nolint:gocyclo // each occurrence form is a short case
	var out []Location
	ix := f.Index
	own := ix.Name == mod

	if own {
		if d := ix.Decl(name); d != nil {
			out = append(out, Location{Path: f.Path, Span: d.NameSpan})
			if d.SigNameSpan != nil {
				out = append(out, Location{Path: f.Path, Span: *d.SigNameSpan})
			}
		}
		if ix.Exposing != nil && !ix.Exposing.Open {
			for _, it := range ix.Exposing.Items {
				if it.Name == name {
					out = append(out, Location{Path: f.Path, Span: nameSpanOfItem(it)})
				}
			}
		}
	}

	imported := false
	for i := range ix.Imports {
		imp := &ix.Imports[i]
		if imp.Module != mod {
			continue
		}
		if imp.Exposing.Exposes(name) {
			imported = true
		}
		if imp.Exposing != nil && !imp.Exposing.Open {
			for _, it := range imp.Exposing.Items {
				if it.Name == name {
					out = append(out, Location{Path: f.Path, Span: nameSpanOfItem(it)})
				}
			}
		}
	}

	parser.Walk(f.Tree.Root(), func(n *sitter.Node) bool {
		if n.Type() != nodeValueQID {
			return true
		}
		q, last := elm.SplitQualified(f.Tree.Content(n))
		if last != name {
			return false
		}
		switch {
		case q != "":
			if target, ok := ix.ResolveQualifier(q); ok && target == mod {
				out = append(out, Location{Path: f.Path, Span: finalSegmentSpan(n)})
			}
		case own || imported:
			if !scope.Shadowed(f.Source, n, name) {
				out = append(out, Location{Path: f.Path, Span: finalSegmentSpan(n)})
			}
		}
		return false
	})
	return out
}

// typeRefs enumerates references to type def.Module.def.Name within one
// file. Capitalized tokens in expression position count only when no
// constructor of the same spelling resolves there, covering record alias
// constructors.
func typeRefs(ws *workspace.Workspace, f *workspace.File, mod, name string) []Location { //nolint:gocyclo // each occurrence form is a short case
	var out []Location
	ix := f.Index
	own := ix.Name == mod

	if own {
		if d := ix.Decl(name); d != nil && d.Kind != module.KindValue {
			out = append(out, Location{Path: f.Path, Span: d.NameSpan})
		}
		if ix.Exposing != nil && !ix.Exposing.Open {
			for _, it := range ix.Exposing.Items {
				if it.Name == name {
					out = append(out, Location{Path: f.Path, Span: nameSpanOfItem(it)})
				}
			}
		}
	}

	imported := own
	for i := range ix.Imports {
		imp := &ix.Imports[i]
		if imp.Module != mod {
			continue
		}
		if imp.Exposing.Exposes(name) {
			imported = true
		}
		if imp.Exposing != nil && !imp.Exposing.Open {
			for _, it := range imp.Exposing.Items {
				if it.Name == name {
					out = append(out, Location{Path: f.Path, Span: nameSpanOfItem(it)})
				}
			}
		}
	}

	hasCtor := false
	for _, o := range ws.CtorOwners(name) {
		if o.Module == mod {
			hasCtor = true
		}
	}

	for _, r := range ix.UpperRefs {
		if r.Name != name {
			continue
		}
		if r.Ctx == module.CtxExpr && hasCtor {
			// A same-named constructor wins in expression position.
			continue
		}
		if r.Ctx == module.CtxPattern {
			continue
		}
		if !resolvesTo(ix, r.Qualifier, mod, imported) {
			continue
		}
		out = append(out, Location{Path: f.Path, Span: r.NameSpan})
	}
	return out
}

// variantRefs enumerates constructor uses and pattern uses of variant
// def.Name of type (mod, typeName) within one file.
func variantRefs(f *workspace.File, mod, typeName, name string) []Location {
	var out []Location
	ix := f.Index
	own := ix.Name == mod

	if own {
		if d := ix.Decl(typeName); d != nil {
			for _, v := range d.Variants {
				if v.Name == name {
					out = append(out, Location{Path: f.Path, Span: v.NameSpan})
				}
			}
		}
	}

	imported := own
	for i := range ix.Imports {
		imp := &ix.Imports[i]
		if imp.Module == mod && imp.Exposing.ExposesCtorsOf(typeName) {
			imported = true
		}
	}

	for _, r := range ix.UpperRefs {
		if r.Name != name || r.Ctx == module.CtxType {
			continue
		}
		if !resolvesTo(ix, r.Qualifier, mod, imported) {
			continue
		}
		out = append(out, Location{Path: f.Path, Span: r.NameSpan})
	}
	return out
}

// resolvesTo reports whether an occurrence with the given qualifier refers
// to the target module, given whether the unqualified name is visible.
func resolvesTo(ix *module.Index, qualifier, mod string, visible bool) bool {
	if qualifier == "" {
		return visible
	}
	target, ok := ix.ResolveQualifier(qualifier)
	return ok && target == mod
}

// fieldRefs partitions the file's occurrences of a field name into
// attributed references and ambiguous sites.
func fieldRefs(f *workspace.File, name string, candidates []workspace.TypeRef) (found, skipped []Location) {
	ix := f.Index
	inCandidates := func(tr workspace.TypeRef) bool {
		for _, c := range candidates {
			if c == tr {
				return true
			}
		}
		return false
	}

	for _, fd := range ix.Fields {
		if fd.Name == name && inCandidates(workspace.TypeRef{Module: ix.Name, Type: fd.Type}) {
			found = append(found, Location{Path: f.Path, Span: fd.NameSpan})
		}
	}

	for _, r := range ix.FieldRefs {
		if r.Name != name || r.Kind == module.FieldDecl {
			continue
		}
		tr, ok := attributeField(ix, r)
		switch {
		case ok && inCandidates(tr):
			found = append(found, Location{Path: f.Path, Span: r.NameSpan})
		case ok:
			// Attributed to a type outside the candidate set; not a
			// reference to this field.
		default:
			skipped = append(skipped, Location{Path: f.Path, Span: r.NameSpan})
		}
	}
	return found, skipped
}

// attributeField applies the receiver heuristic: a receiver that is a
// parameter with an annotated record type, or a record literal in a
// declaration whose annotation names its record type, is attributed; every
// other occurrence is ambiguous.
func attributeField(ix *module.Index, r module.FieldRef) (workspace.TypeRef, bool) {
	d := ix.Decl(r.Func)
	if d == nil || len(d.SigArgTypes) == 0 {
		return workspace.TypeRef{}, false
	}
	var typeName string
	switch {
	case r.Receiver != "":
		for i, p := range d.Params {
			if p == r.Receiver && i < len(d.SigArgTypes) {
				typeName = d.SigArgTypes[i]
			}
		}
	case r.Kind == module.FieldLiteral:
		// A record construction takes the declaration's return type.
		typeName = d.SigArgTypes[len(d.SigArgTypes)-1]
	}
	if typeName == "" {
		return workspace.TypeRef{}, false
	}
	q, bare := elm.SplitQualified(typeName)
	if q != "" {
		if mod, ok := ix.ResolveQualifier(q); ok {
			return workspace.TypeRef{Module: mod, Type: bare}, true
		}
		return workspace.TypeRef{}, false
	}
	if ix.Decl(bare) != nil {
		return workspace.TypeRef{Module: ix.Name, Type: bare}, true
	}
	for i := range ix.Imports {
		if ix.Imports[i].Exposing.Exposes(bare) {
			return workspace.TypeRef{Module: ix.Imports[i].Module, Type: bare}, true
		}
	}
	return workspace.TypeRef{}, false
}

// aliasRefs enumerates uses of a module alias, bounded to the file that
// introduces it: the introduction site plus every qualified reference.
func aliasRefs(f *workspace.File, alias string) []Location {
	var out []Location
	ix := f.Index
	for i := range ix.Imports {
		imp := &ix.Imports[i]
		switch {
		case imp.Alias == alias:
			out = append(out, Location{Path: f.Path, Span: imp.AliasSpan})
		case imp.Alias == "" && imp.Module == alias:
			out = append(out, Location{Path: f.Path, Span: imp.ModuleSpan})
		}
	}
	for _, r := range ix.UpperRefs {
		if r.Qualifier == alias && !r.QualifierSpan.Empty() {
			out = append(out, Location{Path: f.Path, Span: r.QualifierSpan})
		}
	}
	for _, r := range ix.LowerRefs {
		if r.Qualifier == alias && !r.QualifierSpan.Empty() {
			out = append(out, Location{Path: f.Path, Span: r.QualifierSpan})
		}
	}
	return out
}

// localRefs enumerates uses of a local binding within its lexical scope.
func localRefs(f *workspace.File, b *scope.Binding) []Location {
	if b == nil {
		return nil
	}
	name := b.Ident.Content(f.Source)
	out := []Location{{Path: f.Path, Span: b.Span()}}

	parser.Walk(b.Scope, func(n *sitter.Node) bool {
		switch n.Type() {
		case nodeValueQID:
			q, last := elm.SplitQualified(f.Tree.Content(n))
			if q != "" || last != name {
				return false
			}
			if res := scope.Lookup(f.Source, n, name); res != nil && res.Span() == b.Span() {
				out = append(out, Location{Path: f.Path, Span: finalSegmentSpan(n)})
			}
			return false
		case nodeLowerPattern:
			if f.Tree.Content(n) == name {
				if res := scope.Lookup(f.Source, n.Parent(), name); res != nil && res.Span() == b.Span() {
					out = append(out, Location{Path: f.Path, Span: parser.Span(n)})
				}
			}
			return false
		}
		return true
	})
	return out
}

// finalSegmentSpan returns the span of a qid's last segment.
func finalSegmentSpan(qid *sitter.Node) elm.Span {
	count := int(qid.ChildCount())
	if count == 0 {
		return parser.Span(qid)
	}
	return parser.Span(qid.Child(count - 1))
}

// nameSpanOfItem narrows an exposing item's span to the identifier itself,
// excluding a trailing (..) constructor marker.
func nameSpanOfItem(it module.ExposedItem) elm.Span {
	s := it.Span
	n := uint32(len(it.Name))
	if s.Len() <= n {
		return s
	}
	return elm.Span{
		Start:      s.Start,
		End:        s.Start + n,
		StartPoint: s.StartPoint,
		EndPoint:   elm.Point{Row: s.StartPoint.Row, Column: s.StartPoint.Column + n},
	}
}
