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

// Package classify decides what the cursor points at: given a file position
// it returns the semantic kind of the token plus its definition site and
// canonical name. Grammar role wins over spelling; spelling decides only
// where the grammar is ambiguous.
package classify

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/module"
	"github.com/upbound/elm-ls/internal/elm/parser"
	"github.com/upbound/elm-ls/internal/elm/scope"
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

// Kind is the semantic kind of the token under the cursor.
type Kind int

// Definition kinds.
const (
	KindUnknown Kind = iota
	KindValue
	KindType
	KindVariant
	KindField
	KindModuleAlias
	KindLocal
)

// String returns the kind's user-facing name.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "function"
	case KindType:
		return "type"
	case KindVariant:
		return "variant"
	case KindField:
		return "field"
	case KindModuleAlias:
		return "module"
	case KindLocal:
		return "local binding"
	default:
		return "unknown"
	}
}

// A Definition identifies what the cursor resolved to.
type Definition struct {
	Kind Kind
	// Module and Name identify the definition for values, types and
	// variants; TypeName carries the owning type for variants.
	Module   string
	Name     string
	TypeName string
	// VariantIndex is the variant's position within its type declaration.
	VariantIndex int
	// Candidates holds the record types that may own a field.
	Candidates []workspace.TypeRef
	// Alias and Target describe a module alias reference.
	Alias  string
	Target string
	// Binding describes a local binding's identifier and visibility.
	Binding *scope.Binding
	// TokenSpan is the span of the identifier segment under the cursor.
	TokenSpan elm.Span
	// Token is the identifier's spelling.
	Token string
	// Path is the file the cursor was in.
	Path string
}

const (
	nodeModuleDecl      = "module_declaration"
	nodeImportClause    = "import_clause"
	nodeAsClause        = "as_clause"
	nodeExposedValue    = "exposed_value"
	nodeExposedType     = "exposed_type"
	nodeUpperCaseQID    = "upper_case_qid"
	nodeValueQID        = "value_qid"
	nodeUpperIdent      = "upper_case_identifier"
	nodeLowerIdent      = "lower_case_identifier"
	nodeTypeDecl        = "type_declaration"
	nodeTypeAliasDecl   = "type_alias_declaration"
	nodeUnionVariant    = "union_variant"
	nodeTypeRef         = "type_ref"
	nodeTypeAnnotation  = "type_annotation"
	nodePortAnnotation  = "port_annotation"
	nodeFuncDeclLeft    = "function_declaration_left"
	nodeValueDecl       = "value_declaration"
	nodeFieldAccessExpr = "field_access_expr"
	nodeFieldAccessorFn = "field_accessor_function_expr"
	nodeField           = "field"
	nodeFieldType       = "field_type"
	nodeRecordPattern   = "record_pattern"
	nodeLowerPattern    = "lower_pattern"
	nodeFile            = "file"

	errNoFile  = "file is not part of the workspace"
	errNoToken = "no identifier at the given position"
)

// At classifies the token at the given position.
func At(ws *workspace.Workspace, path string, pos elm.Point) (*Definition, error) {
	f, err := ws.FileAt(path)
	if err != nil {
		return nil, errors.Wrap(err, errNoFile)
	}
	n := f.Tree.NodeAt(pos)
	if n == nil {
		return nil, errors.New(errNoToken)
	}
	c := &classifier{ws: ws, f: f, pos: pos}
	d := c.classify(n)
	d.Path = path
	return d, nil
}

type classifier struct {
	ws  *workspace.Workspace
	f   *workspace.File
	pos elm.Point
}

func (c *classifier) text(n *sitter.Node) string {
	return n.Content(c.f.Source)
}

// sameNode reports whether two nodes cover the same source extent.
func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

func (c *classifier) classify(n *sitter.Node) *Definition { //nolint:gocyclo // the disambiguation rules are inherently a decision tree
	d := &Definition{Kind: KindUnknown, TokenSpan: parser.Span(n), Token: c.text(n)}

	// Grammar role first: module headers and import statements.
	if parser.AncestorOfType(n, nodeModuleDecl) != nil {
		return c.inHeader(n, d)
	}
	if parser.AncestorOfType(n, nodeImportClause) != nil {
		return c.inImport(n, d)
	}

	switch n.Type() {
	case nodeUpperIdent:
		return c.upperIdent(n, d)
	case nodeLowerIdent, nodeLowerPattern:
		return c.lowerIdent(n, d)
	case nodeUpperCaseQID:
		// The cursor sits on the qid but between segments; use the last.
		if n.ChildCount() > 0 {
			return c.classify(n.Child(int(n.ChildCount()) - 1))
		}
	}
	return d
}

// inHeader classifies tokens within the module declaration line.
func (c *classifier) inHeader(n *sitter.Node, d *Definition) *Definition {
	ix := c.f.Index
	switch {
	case parser.AncestorOfType(n, nodeExposedValue) != nil:
		d.Kind, d.Module, d.Name = KindValue, ix.Name, c.text(n)
	case parser.AncestorOfType(n, nodeExposedType) != nil:
		d.Kind, d.Module, d.Name = KindType, ix.Name, c.text(n)
	case parser.AncestorOfType(n, nodeUpperCaseQID) != nil:
		d.Kind, d.Alias, d.Target = KindModuleAlias, ix.Name, ix.Name
	}
	return d
}

// inImport classifies tokens within an import statement.
func (c *classifier) inImport(n *sitter.Node, d *Definition) *Definition {
	imp := c.importAt(n)
	if imp == nil {
		return d
	}
	switch {
	case parser.AncestorOfType(n, nodeExposedValue) != nil:
		d.Kind, d.Module, d.Name = KindValue, imp.Module, c.text(n)
	case parser.AncestorOfType(n, nodeExposedType) != nil:
		// Type(..) exposes constructors too, but the name names the type.
		d.Kind, d.Module, d.Name = KindType, imp.Module, c.text(n)
	case parser.AncestorOfType(n, nodeAsClause) != nil:
		d.Kind, d.Alias, d.Target = KindModuleAlias, c.text(n), imp.Module
	default:
		alias := imp.Module
		if imp.Alias != "" {
			alias = imp.Alias
		}
		d.Kind, d.Alias, d.Target = KindModuleAlias, alias, imp.Module
	}
	return d
}

func (c *classifier) importAt(n *sitter.Node) *module.Import {
	clause := parser.AncestorOfType(n, nodeImportClause)
	if clause == nil {
		return nil
	}
	span := parser.Span(clause)
	for i := range c.f.Index.Imports {
		if c.f.Index.Imports[i].Span.Start == span.Start {
			return &c.f.Index.Imports[i]
		}
	}
	return nil
}

// upperIdent classifies a capitalized identifier outside headers and
// imports.
func (c *classifier) upperIdent(n *sitter.Node, d *Definition) *Definition { //nolint:gocyclo // rules 2-4 of the decision tree
	name := c.text(n)
	ix := c.f.Index

	// Declaration sites.
	if p := n.Parent(); p != nil {
		switch p.Type() {
		case nodeTypeDecl, nodeTypeAliasDecl:
			d.Kind, d.Module, d.Name = KindType, ix.Name, name
			return d
		case nodeUnionVariant:
			d.Kind, d.Module, d.Name = KindVariant, ix.Name, name
			if td := parser.AncestorOfType(p, nodeTypeDecl); td != nil {
				if id := parser.ChildOfType(td, nodeUpperIdent); id != nil {
					d.TypeName = c.text(id)
				}
			}
			if decl := ix.Decl(d.TypeName); decl != nil {
				for _, v := range decl.Variants {
					if v.Name == name {
						d.VariantIndex = v.Index
					}
				}
			}
			return d
		}
	}

	// Qualifier segments of a qualified value reference are module
	// references.
	if qid := parser.AncestorOfType(n, nodeValueQID); qid != nil {
		qualifier, _ := elm.SplitQualified(c.text(qid))
		if target, ok := ix.ResolveQualifier(qualifier); ok {
			d.Kind, d.Alias, d.Target = KindModuleAlias, qualifier, target
			return d
		}
		d.Kind, d.Alias, d.Target = KindModuleAlias, qualifier, qualifier
		return d
	}

	// A non-final segment of a qualified reference is a module reference.
	if qid := parser.AncestorOfType(n, nodeUpperCaseQID); qid != nil {
		last := qid.Child(int(qid.ChildCount()) - 1)
		if last != nil && !sameNode(last, n) {
			qualifier, _ := elm.SplitQualified(c.text(qid))
			if target, ok := ix.ResolveQualifier(qualifier); ok {
				d.Kind, d.Alias, d.Target = KindModuleAlias, qualifier, target
				return d
			}
			// An unresolvable qualifier may itself be a module name.
			d.Kind, d.Alias, d.Target = KindModuleAlias, qualifier, qualifier
			return d
		}
	}

	qualifier := ""
	if qid := parser.AncestorOfType(n, nodeUpperCaseQID); qid != nil {
		qualifier, _ = elm.SplitQualified(c.text(qid))
	}

	// Type position wins over spelling.
	if c.inTypePosition(n) {
		d.Kind, d.Name = KindType, name
		d.Module = c.resolveUpper(qualifier, name)
		return d
	}

	// Elsewhere a capitalized token is a variant when a known constructor
	// matches, otherwise a type.
	mod := c.resolveUpper(qualifier, name)
	for _, o := range c.ws.CtorOwners(name) {
		if o.Module == mod || mod == "" {
			d.Kind, d.Module, d.Name = KindVariant, o.Module, name
			d.TypeName, d.VariantIndex = o.Type, o.Index
			return d
		}
	}
	d.Kind, d.Module, d.Name = KindType, mod, name
	return d
}

func (c *classifier) inTypePosition(n *sitter.Node) bool {
	for _, t := range []string{nodeTypeRef, nodeTypeAnnotation, nodePortAnnotation} {
		if parser.AncestorOfType(n, t) != nil {
			return true
		}
	}
	return false
}

// resolveUpper resolves the defining module of a capitalized name seen with
// the given qualifier in this file.
func (c *classifier) resolveUpper(qualifier, name string) string {
	ix := c.f.Index
	if qualifier != "" {
		if mod, ok := ix.ResolveQualifier(qualifier); ok {
			return mod
		}
		return qualifier
	}
	if ix.Decl(name) != nil {
		return ix.Name
	}
	for i := range ix.Imports {
		imp := &ix.Imports[i]
		if imp.Exposing.Exposes(name) {
			return imp.Module
		}
	}
	// Constructors arrive through Type(..) exposure.
	for _, o := range c.ws.CtorOwners(name) {
		if imp := ix.ImportOf(o.Module); imp != nil && imp.Exposing.ExposesCtorsOf(o.Type) {
			return o.Module
		}
	}
	return ""
}

// lowerIdent classifies a lowercase identifier.
func (c *classifier) lowerIdent(n *sitter.Node, d *Definition) *Definition { //nolint:gocyclo // rules 5-8 of the decision tree
	name := c.text(n)
	ix := c.f.Index

	// Definition site of a top-level value, or a let binding.
	if p := n.Parent(); p != nil && p.Type() == nodeFuncDeclLeft && p.Child(0) != nil && sameNode(p.Child(0), n) {
		decl := parser.AncestorOfType(n, nodeValueDecl)
		if decl != nil && decl.Parent() != nil && decl.Parent().Type() == nodeFile {
			d.Kind, d.Module, d.Name = KindValue, ix.Name, name
			return d
		}
		if b := scope.Lookup(c.f.Source, n, name); b != nil {
			d.Kind, d.Binding = KindLocal, b
			return d
		}
	}

	// Annotation names at top level belong to the value they annotate.
	if p := n.Parent(); p != nil && (p.Type() == nodeTypeAnnotation || p.Type() == nodePortAnnotation) {
		if p.Parent() != nil && p.Parent().Type() == nodeFile {
			d.Kind, d.Module, d.Name = KindValue, ix.Name, name
			return d
		}
	}

	// Record field positions.
	if kind, ok := c.fieldPosition(n); ok {
		d.Kind, d.Name = KindField, name
		d.Candidates = c.fieldCandidates(n, name, kind)
		return d
	}

	// Qualified value references name the module's definition.
	if qid := parser.AncestorOfType(n, nodeValueQID); qid != nil {
		qualifier, _ := elm.SplitQualified(c.text(qid))
		if qualifier != "" {
			if mod, ok := ix.ResolveQualifier(qualifier); ok {
				d.Kind, d.Module, d.Name = KindValue, mod, name
				return d
			}
			return d
		}
	}

	// Local bindings shadow module-level definitions.
	if b := scope.Lookup(c.f.Source, n, name); b != nil {
		d.Kind, d.Binding = KindLocal, b
		return d
	}

	if ix.Decl(name) != nil {
		d.Kind, d.Module, d.Name = KindValue, ix.Name, name
		return d
	}
	for i := range ix.Imports {
		if ix.Imports[i].Exposing.Exposes(name) {
			d.Kind, d.Module, d.Name = KindValue, ix.Imports[i].Module, name
			return d
		}
	}
	return d
}

// fieldPosition reports whether n occupies a record-field grammar role.
func (c *classifier) fieldPosition(n *sitter.Node) (module.FieldRefKind, bool) {
	p := n.Parent()
	if p == nil {
		return 0, false
	}
	switch p.Type() {
	case nodeFieldAccessExpr:
		// Only the trailing identifier is the field; the receiver is an
		// ordinary expression.
		if last := p.Child(int(p.ChildCount()) - 1); last != nil && sameNode(last, n) {
			return module.FieldAccess, true
		}
	case nodeFieldAccessorFn:
		return module.FieldAccessor, true
	case nodeField:
		if p.Child(0) != nil && sameNode(p.Child(0), n) {
			return module.FieldLiteral, true
		}
	case nodeFieldType:
		return module.FieldDecl, true
	case nodeRecordPattern:
		return module.FieldPattern, true
	case nodeLowerPattern:
		if pp := p.Parent(); pp != nil && pp.Type() == nodeRecordPattern {
			return module.FieldPattern, true
		}
	}
	return 0, false
}

// fieldCandidates narrows the record types that may own the field. A
// declaration site names exactly its alias; other sites fall back to the
// workspace field catalog.
func (c *classifier) fieldCandidates(n *sitter.Node, name string, kind module.FieldRefKind) []workspace.TypeRef {
	if kind == module.FieldDecl {
		if alias := parser.AncestorOfType(n, nodeTypeAliasDecl); alias != nil {
			if id := parser.ChildOfType(alias, nodeUpperIdent); id != nil {
				return []workspace.TypeRef{{Module: c.f.Index.Name, Type: c.text(id)}}
			}
		}
	}
	return c.ws.TypesWithField(name)
}
