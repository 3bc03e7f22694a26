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

package module

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/parser"
)

const (
	nodeFile              = "file"
	nodeModuleDecl        = "module_declaration"
	nodeImportClause      = "import_clause"
	nodeAsClause          = "as_clause"
	nodeExposingList      = "exposing_list"
	nodeExposedValue      = "exposed_value"
	nodeExposedType       = "exposed_type"
	nodeExposedCtors      = "exposed_union_constructors"
	nodeDoubleDot         = "double_dot"
	nodeValueDecl         = "value_declaration"
	nodeFuncDeclLeft      = "function_declaration_left"
	nodeTypeAnnotation    = "type_annotation"
	nodePortAnnotation    = "port_annotation"
	nodeTypeDecl          = "type_declaration"
	nodeTypeAliasDecl     = "type_alias_declaration"
	nodeUnionVariant      = "union_variant"
	nodeRecordType        = "record_type"
	nodeFieldType         = "field_type"
	nodeCaseOfExpr        = "case_of_expr"
	nodeCaseOfBranch      = "case_of_branch"
	nodePattern           = "pattern"
	nodeUnionPattern      = "union_pattern"
	nodeAnythingPattern   = "anything_pattern"
	nodeLowerPattern      = "lower_pattern"
	nodeRecordPattern     = "record_pattern"
	nodeValueExpr         = "value_expr"
	nodeValueQID          = "value_qid"
	nodeUpperCaseQID      = "upper_case_qid"
	nodeUpperIdent        = "upper_case_identifier"
	nodeLowerIdent        = "lower_case_identifier"
	nodeFieldAccessExpr   = "field_access_expr"
	nodeFieldAccessorFn   = "field_accessor_function_expr"
	nodeRecordExpr        = "record_expr"
	nodeRecordBaseIdent   = "record_base_identifier"
	nodeField             = "field"
	nodeTypeRef           = "type_ref"
	nodeLineComment       = "line_comment"
	nodeBlockComment      = "block_comment"

	warnParseErrors = "file contains parse errors; the summary is best-effort"
	warnSkippedDecl = "skipped unclassifiable declaration at line %d"
)

// Build extracts the semantic summary for one parsed file in a single
// traversal of its concrete syntax tree.
func Build(path string, src []byte, t *parser.Tree) *Index {
	b := &builder{
		src: src,
		ix: &Index{
			Path:   path,
			byName: map[string]int{},
		},
	}

	root := t.Root()
	if root.HasError() {
		b.ix.Warnings = append(b.ix.Warnings, warnParseErrors)
	}

	b.topLevel(root)
	for i := range b.ix.Decls {
		b.walk(b.declNode[i], b.ix.Decls[i].Name)
	}
	return b.ix
}

type builder struct {
	src []byte
	ix  *Index
	// declNode maps declaration index to its value/type node for the
	// reference walk.
	declNode []*sitter.Node
}

func (b *builder) text(n *sitter.Node) string {
	return n.Content(b.src)
}

// topLevel collects the header, imports and declarations from the file's
// direct children, pairing type annotations with the value declaration that
// follows them.
func (b *builder) topLevel(root *sitter.Node) { //nolint:gocyclo // a switch per declaration form
	var pendingSig *sitter.Node
	var pendingSigName string

	for i := 0; i < int(root.ChildCount()); i++ {
		n := root.Child(i)
		if n == nil {
			continue
		}
		switch n.Type() {
		case nodeLineComment, nodeBlockComment:
			continue
		case nodeModuleDecl:
			b.moduleHeader(n)
		case nodeImportClause:
			b.importClause(n)
		case nodeTypeAnnotation:
			if name := parser.ChildOfType(n, nodeLowerIdent); name != nil {
				pendingSig, pendingSigName = n, b.text(name)
				// Type and record-field references in the annotation
				// belong to the value it annotates.
				b.walk(n, pendingSigName)
			}
			continue
		case nodePortAnnotation:
			b.portDecl(n)
		case nodeValueDecl:
			b.valueDecl(n, pendingSig, pendingSigName)
		case nodeTypeDecl:
			b.typeDecl(n)
		case nodeTypeAliasDecl:
			b.typeAliasDecl(n)
		default:
			if n.IsNamed() && n.Type() != "ERROR" {
				continue
			}
			b.ix.Warnings = append(b.ix.Warnings, fmt.Sprintf(warnSkippedDecl, n.StartPoint().Row+1))
		}
		pendingSig, pendingSigName = nil, ""
	}
}

func (b *builder) moduleHeader(n *sitter.Node) {
	b.ix.HeaderSpan = parser.Span(n)
	if qid := parser.ChildOfType(n, nodeUpperCaseQID); qid != nil {
		b.ix.Name = b.text(qid)
		b.ix.NameSpan = parser.Span(qid)
	}
	if el := parser.ChildOfType(n, nodeExposingList); el != nil {
		b.ix.Exposing = b.exposing(el)
	}
}

func (b *builder) importClause(n *sitter.Node) {
	imp := Import{Span: parser.Span(n)}
	if qid := parser.ChildOfType(n, nodeUpperCaseQID); qid != nil {
		imp.Module = b.text(qid)
		imp.ModuleSpan = parser.Span(qid)
	}
	if as := parser.ChildOfType(n, nodeAsClause); as != nil {
		if id := parser.ChildOfType(as, nodeUpperIdent); id != nil {
			imp.Alias = b.text(id)
			imp.AliasSpan = parser.Span(id)
		}
	}
	if el := parser.ChildOfType(n, nodeExposingList); el != nil {
		imp.Exposing = b.exposing(el)
	}
	b.ix.Imports = append(b.ix.Imports, imp)
}

func (b *builder) exposing(n *sitter.Node) *Exposing {
	e := &Exposing{Span: parser.Span(n)}
	listStart, listEnd := parser.Span(n), parser.Span(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "(":
			listStart = parser.Span(c)
		case ")":
			listEnd = parser.Span(c)
		case nodeDoubleDot:
			e.Open = true
		case nodeExposedValue:
			e.Items = append(e.Items, ExposedItem{Name: b.text(c), Span: parser.Span(c)})
		case nodeExposedType:
			it := ExposedItem{Span: parser.Span(c)}
			if id := parser.ChildOfType(c, nodeUpperIdent); id != nil {
				it.Name = b.text(id)
			}
			it.WithCtors = parser.ChildOfType(c, nodeExposedCtors) != nil
			e.Items = append(e.Items, it)
		}
	}
	e.ListSpan = elm.Span{
		Start: listStart.Start, End: listEnd.End,
		StartPoint: listStart.StartPoint, EndPoint: listEnd.EndPoint,
	}
	return e
}

func (b *builder) addDecl(d Decl, n *sitter.Node) {
	if _, dup := b.ix.byName[d.Name]; dup || d.Name == "" {
		return
	}
	b.ix.byName[d.Name] = len(b.ix.Decls)
	b.ix.Decls = append(b.ix.Decls, d)
	b.declNode = append(b.declNode, n)
}

func (b *builder) portDecl(n *sitter.Node) {
	name := parser.ChildOfType(n, nodeLowerIdent)
	if name == nil {
		return
	}
	b.addDecl(Decl{
		Kind:     KindPort,
		Name:     b.text(name),
		NameSpan: parser.Span(name),
		BodySpan: parser.Span(n),
		FullSpan: parser.Span(n),
	}, n)
}

func (b *builder) valueDecl(n, sig *sitter.Node, sigName string) {
	left := parser.ChildOfType(n, nodeFuncDeclLeft)
	if left == nil {
		return
	}
	name := parser.ChildOfType(left, nodeLowerIdent)
	if name == nil {
		// Top-level pattern destructuring; nothing to index by name.
		return
	}
	d := Decl{
		Kind:     KindValue,
		Name:     b.text(name),
		NameSpan: parser.Span(name),
		BodySpan: parser.Span(n),
		FullSpan: parser.Span(n),
	}
	for i := 1; i < int(left.ChildCount()); i++ {
		c := left.Child(i)
		if c == nil || !c.IsNamed() {
			continue
		}
		param := ""
		switch c.Type() {
		case nodeLowerPattern, nodeLowerIdent:
			param = b.text(c)
		}
		d.Params = append(d.Params, param)
	}
	if sig != nil && sigName == d.Name {
		s := parser.Span(sig)
		d.SigSpan = &s
		if id := parser.ChildOfType(sig, nodeLowerIdent); id != nil {
			ns := parser.Span(id)
			d.SigNameSpan = &ns
		}
		d.SigArgTypes = b.sigSegments(sig)
		d.FullSpan = elm.Span{
			Start: s.Start, End: d.BodySpan.End,
			StartPoint: s.StartPoint, EndPoint: d.BodySpan.EndPoint,
		}
	}
	b.addDecl(d, n)
}

// sigSegments splits an annotation's type expression on its top-level
// arrows and returns the head type name of each segment, empty for segments
// with no leading named type such as anonymous records and type variables.
func (b *builder) sigSegments(sig *sitter.Node) []string {
	expr := parser.ChildOfType(sig, "type_expression")
	if expr == nil {
		return nil
	}
	var out []string
	segHead := ""
	seen := false
	flush := func() {
		if seen {
			out = append(out, segHead)
		}
		segHead, seen = "", false
	}
	for i := 0; i < int(expr.ChildCount()); i++ {
		c := expr.Child(i)
		if c == nil {
			continue
		}
		if c.Type() == "arrow" || b.text(c) == "->" {
			flush()
			continue
		}
		if !seen {
			seen = true
			var qid *sitter.Node
			parser.Walk(c, func(d *sitter.Node) bool {
				if qid != nil {
					return false
				}
				if d.Type() == nodeUpperCaseQID {
					qid = d
					return false
				}
				return true
			})
			if qid != nil {
				segHead = b.text(qid)
			}
		}
	}
	flush()
	return out
}

func (b *builder) typeDecl(n *sitter.Node) {
	name := parser.ChildOfType(n, nodeUpperIdent)
	if name == nil {
		return
	}
	d := Decl{
		Kind:     KindCustomType,
		Name:     b.text(name),
		NameSpan: parser.Span(name),
		BodySpan: parser.Span(n),
		FullSpan: parser.Span(n),
	}

	var lastSep elm.Span
	idx := 0
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "=", "eq", "|":
			lastSep = parser.Span(c)
		case nodeUnionVariant:
			v := Variant{Index: idx, CtorSpan: parser.Span(c), SepSpan: lastSep}
			if id := parser.ChildOfType(c, nodeUpperIdent); id != nil {
				v.Name = b.text(id)
				v.NameSpan = parser.Span(id)
			}
			for j := 0; j < int(c.ChildCount()); j++ {
				arg := c.Child(j)
				if arg == nil || !arg.IsNamed() || arg.Type() == nodeUpperIdent {
					continue
				}
				v.ArgSpans = append(v.ArgSpans, parser.Span(arg))
			}
			d.Variants = append(d.Variants, v)
			idx++
		}
	}
	b.addDecl(d, n)
}

func (b *builder) typeAliasDecl(n *sitter.Node) {
	name := parser.ChildOfType(n, nodeUpperIdent)
	if name == nil {
		return
	}
	d := Decl{
		Kind:     KindTypeAlias,
		Name:     b.text(name),
		NameSpan: parser.Span(name),
		BodySpan: parser.Span(n),
		FullSpan: parser.Span(n),
	}

	// A record alias contributes its fields to the workspace field catalog.
	var record *sitter.Node
	parser.Walk(n, func(c *sitter.Node) bool {
		if record != nil {
			return false
		}
		if c.Type() == nodeRecordType {
			record = c
			return false
		}
		return true
	})
	if record != nil {
		d.RecordAlias = true
		for _, ft := range parser.ChildrenOfType(record, nodeFieldType) {
			id := parser.ChildOfType(ft, nodeLowerIdent)
			if id == nil {
				continue
			}
			fd := FieldDef{
				Type:         d.Name,
				Name:         b.text(id),
				NameSpan:     parser.Span(id),
				TypeExprSpan: parser.Span(ft),
			}
			b.ix.Fields = append(b.ix.Fields, fd)
		}
	}
	b.addDecl(d, n)
}

// walk collects case branches and identifier references below one top-level
// declaration.
func (b *builder) walk(n *sitter.Node, fn string) { //nolint:gocyclo // a case per reference form
	if n == nil {
		return
	}
	switch n.Type() {
	case nodeCaseOfExpr:
		b.caseOf(n, fn)
	case nodeUpperCaseQID:
		b.upperRef(n, fn)
	case nodeValueQID:
		b.lowerRef(n, fn)
	case nodeFieldAccessExpr:
		// The accessed field is the trailing lower identifier; the target
		// expression is walked normally.
		if id := lastChildOfType(n, nodeLowerIdent); id != nil {
			b.ix.FieldRefs = append(b.ix.FieldRefs, FieldRef{
				Name:     b.text(id),
				NameSpan: parser.Span(id),
				Kind:     FieldAccess,
				Receiver: b.receiverName(n),
				Func:     fn,
			})
		}
	case nodeFieldAccessorFn:
		if id := parser.ChildOfType(n, nodeLowerIdent); id != nil {
			b.ix.FieldRefs = append(b.ix.FieldRefs, FieldRef{
				Name:     b.text(id),
				NameSpan: parser.Span(id),
				Kind:     FieldAccessor,
				Func:     fn,
			})
		}
	case nodeRecordExpr:
		b.recordExpr(n, fn)
	case nodeRecordPattern:
		for _, lp := range parser.ChildrenOfType(n, nodeLowerPattern) {
			b.ix.FieldRefs = append(b.ix.FieldRefs, FieldRef{
				Name:     b.text(lp),
				NameSpan: parser.Span(lp),
				Kind:     FieldPattern,
				Func:     fn,
			})
		}
	case nodeRecordType:
		// Record types inside annotations; alias declaration bodies are
		// catalogued separately.
		if parser.AncestorOfType(n, nodeTypeAliasDecl) == nil {
			for _, ft := range parser.ChildrenOfType(n, nodeFieldType) {
				if id := parser.ChildOfType(ft, nodeLowerIdent); id != nil {
					b.ix.FieldRefs = append(b.ix.FieldRefs, FieldRef{
						Name:     b.text(id),
						NameSpan: parser.Span(id),
						Kind:     FieldSig,
						Func:     fn,
					})
				}
			}
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		b.walk(n.Child(i), fn)
	}
}

func (b *builder) caseOf(n *sitter.Node, fn string) {
	caseSpan := parser.Span(n)
	branches := parser.ChildrenOfType(n, nodeCaseOfBranch)
	for i, br := range branches {
		cb := CaseBranch{
			CaseSpan:   caseSpan,
			Func:       fn,
			Index:      i,
			BranchSpan: parser.Span(br),
		}
		if i+1 < len(branches) {
			next := parser.Span(branches[i+1])
			cb.BranchSpan.End = next.Start
			cb.BranchSpan.EndPoint = next.StartPoint
		} else {
			cb.BranchSpan.End = caseSpan.End
			cb.BranchSpan.EndPoint = caseSpan.EndPoint
		}
		if pat := parser.ChildOfType(br, nodePattern); pat != nil {
			cb.PatternSpan = parser.Span(pat)
			b.classifyPattern(pat, &cb)
		}
		b.ix.Branches = append(b.ix.Branches, cb)
	}
}

func (b *builder) classifyPattern(pat *sitter.Node, cb *CaseBranch) {
	inner := pat
	if pat.NamedChildCount() > 0 {
		inner = pat.NamedChild(0)
	}
	switch inner.Type() {
	case nodeUnionPattern:
		if qid := parser.ChildOfType(inner, nodeUpperCaseQID); qid != nil {
			full := b.text(qid)
			cb.Qualifier, cb.Ctor = elm.SplitQualified(full)
		}
	case nodeAnythingPattern:
		cb.Wildcard = true
		cb.CatchAll = true
	case nodeLowerPattern:
		cb.CatchAll = true
	case nodeUpperCaseQID:
		// Nullary constructor patterns parse as a bare qid in some grammar
		// versions.
		cb.Qualifier, cb.Ctor = elm.SplitQualified(b.text(inner))
	}
}

func (b *builder) recordExpr(n *sitter.Node, fn string) {
	receiver := ""
	if base := parser.ChildOfType(n, nodeRecordBaseIdent); base != nil {
		receiver = b.text(base)
	}
	for _, f := range parser.ChildrenOfType(n, nodeField) {
		if id := parser.ChildOfType(f, nodeLowerIdent); id != nil {
			b.ix.FieldRefs = append(b.ix.FieldRefs, FieldRef{
				Name:     b.text(id),
				NameSpan: parser.Span(id),
				Kind:     FieldLiteral,
				Receiver: receiver,
				Func:     fn,
			})
		}
	}
}

// receiverName returns the receiver variable of a field access when the
// target is a simple identifier, e.g. r in r.name.
func (b *builder) receiverName(access *sitter.Node) string {
	target := access.Child(0)
	if target == nil {
		return ""
	}
	if target.Type() == nodeValueExpr {
		if qid := parser.ChildOfType(target, nodeValueQID); qid != nil {
			q, name := elm.SplitQualified(b.text(qid))
			if q == "" {
				return name
			}
		}
	}
	return ""
}

func (b *builder) upperRef(qid *sitter.Node, fn string) {
	// Header and import qids are grammar roles, not references.
	if parser.AncestorOfType(qid, nodeModuleDecl) != nil || parser.AncestorOfType(qid, nodeImportClause) != nil {
		return
	}
	ref := UpperRef{Span: parser.Span(qid), Func: fn}
	ref.Qualifier, ref.Name = elm.SplitQualified(b.text(qid))
	b.qidSegmentSpans(qid, &ref.NameSpan, &ref.QualifierSpan)

	switch {
	case parser.AncestorOfType(qid, nodeUnionPattern) != nil || parser.AncestorOfType(qid, nodePattern) != nil:
		ref.Ctx = CtxPattern
	case inTypePosition(qid):
		ref.Ctx = CtxType
	default:
		ref.Ctx = CtxExpr
	}
	b.ix.UpperRefs = append(b.ix.UpperRefs, ref)
}

func (b *builder) lowerRef(qid *sitter.Node, fn string) {
	ref := LowerRef{Span: parser.Span(qid), Func: fn}
	ref.Qualifier, ref.Name = elm.SplitQualified(b.text(qid))
	b.qidSegmentSpans(qid, &ref.NameSpan, &ref.QualifierSpan)
	b.ix.LowerRefs = append(b.ix.LowerRefs, ref)
}

// qidSegmentSpans splits a qualified identifier node into the span of its
// final segment and the span of its module qualifier, when one is present.
func (b *builder) qidSegmentSpans(qid *sitter.Node, name, qualifier *elm.Span) {
	*name = parser.Span(qid)
	count := int(qid.ChildCount())
	if count == 0 {
		return
	}
	last := qid.Child(count - 1)
	*name = parser.Span(last)
	if count >= 3 {
		// Children run segment, dot, ..., final segment; the qualifier is
		// everything before the final dot.
		first := parser.Span(qid.Child(0))
		lastSeg := parser.Span(qid.Child(count - 3))
		*qualifier = elm.Span{
			Start: first.Start, End: lastSeg.End,
			StartPoint: first.StartPoint, EndPoint: lastSeg.EndPoint,
		}
	}
}

func inTypePosition(n *sitter.Node) bool {
	for _, t := range []string{nodeTypeRef, nodeTypeAnnotation, nodePortAnnotation, nodeTypeAliasDecl, nodeTypeDecl} {
		if parser.AncestorOfType(n, t) != nil {
			return true
		}
	}
	return false
}

func lastChildOfType(n *sitter.Node, typ string) *sitter.Node {
	var out *sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.Type() == typ {
			out = c
		}
	}
	return out
}
