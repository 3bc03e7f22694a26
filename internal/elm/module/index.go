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

// Package module builds the per-file semantic summary of an Elm source file:
// module header, imports, top-level declarations, variant constructors,
// record fields, case branches and identifier references.
package module

import (
	"github.com/upbound/elm-ls/internal/elm"
)

// DeclKind enumerates the top-level declaration forms.
type DeclKind int

// Top-level declaration kinds.
const (
	KindValue DeclKind = iota
	KindTypeAlias
	KindCustomType
	KindPort
)

// A Decl is a top-level declaration. NameSpan covers the identifier only;
// FullSpan covers the type signature (when present) and the body, and is the
// unit carved out by move-function.
type Decl struct {
	Kind     DeclKind
	Name     string
	NameSpan elm.Span
	// SigSpan covers the type annotation line when one precedes a value
	// declaration; SigNameSpan covers the identifier within it.
	SigSpan     *elm.Span
	SigNameSpan *elm.Span
	BodySpan    elm.Span
	FullSpan    elm.Span
	// Params holds the declaration's positional parameter names, empty
	// strings standing in for destructuring patterns.
	Params []string
	// SigArgTypes holds the head type name of each arrow segment of the
	// annotation, the final entry being the return type.
	SigArgTypes []string
	// Variants is populated for custom types, in declaration order.
	Variants []Variant
	// RecordAlias marks a type alias whose body is a record type.
	RecordAlias bool
}

// A Variant is one alternative of a custom type declaration.
type Variant struct {
	Name     string
	NameSpan elm.Span
	// CtorSpan covers the `Name arg1 arg2` portion of the declaration.
	CtorSpan elm.Span
	ArgSpans []elm.Span
	Index    int
	// SepSpan covers the preceding `=` or `|` token.
	SepSpan elm.Span
}

// An ExposedItem is one entry of an explicit exposing list.
type ExposedItem struct {
	Name string
	// WithCtors marks a type exposed with its constructors, Type(..).
	WithCtors bool
	Span      elm.Span
}

// An Exposing describes a module header's or import's exposing clause.
type Exposing struct {
	// Open is true for exposing (..).
	Open  bool
	Items []ExposedItem
	// Span covers the whole clause including the exposing keyword.
	Span elm.Span
	// ListSpan covers the parenthesized list, parens included.
	ListSpan elm.Span
}

// Exposes reports whether the clause exposes the given name.
func (e *Exposing) Exposes(name string) bool {
	if e == nil {
		return false
	}
	if e.Open {
		return true
	}
	for _, it := range e.Items {
		if it.Name == name {
			return true
		}
	}
	return false
}

// ExposesCtorsOf reports whether the clause exposes the constructors of the
// given type, either via (..) or Type(..).
func (e *Exposing) ExposesCtorsOf(typeName string) bool {
	if e == nil {
		return false
	}
	if e.Open {
		return true
	}
	for _, it := range e.Items {
		if it.Name == typeName && it.WithCtors {
			return true
		}
	}
	return false
}

// An Import is one import statement.
type Import struct {
	Module     string
	ModuleSpan elm.Span
	Alias      string
	AliasSpan  elm.Span
	Exposing   *Exposing
	// Span covers the whole import line.
	Span elm.Span
}

// FieldDef records one field of a record type alias.
type FieldDef struct {
	// Type is the containing alias name.
	Type         string
	Name         string
	NameSpan     elm.Span
	TypeExprSpan elm.Span
}

// A CaseBranch is one `pattern -> body` arm of a case expression. BranchSpan
// runs from the branch's first token to the start of the next branch, or to
// the end of the case expression for the last branch.
type CaseBranch struct {
	// Ctor is the leading constructor name of the pattern, empty for
	// wildcard and variable patterns.
	Ctor      string
	Qualifier string
	// Wildcard marks a literal `_` pattern.
	Wildcard bool
	// CatchAll marks patterns that match anything: `_` or a bare variable.
	CatchAll    bool
	PatternSpan elm.Span
	BranchSpan  elm.Span
	// CaseSpan identifies the enclosing case expression; branches of the
	// same case share it.
	CaseSpan elm.Span
	// Func is the enclosing top-level declaration name.
	Func string
	// Index is the branch's position within its case expression.
	Index int
}

// RefCtx describes the grammatical position of a reference.
type RefCtx int

// Reference contexts.
const (
	CtxExpr RefCtx = iota
	CtxType
	CtxPattern
)

// An UpperRef is an occurrence of a capitalized, possibly qualified,
// identifier outside the module header and import statements: a constructor
// use, a type reference, or a pattern constructor.
type UpperRef struct {
	Qualifier string
	Name      string
	// Span covers the full qualified token; NameSpan the final segment;
	// QualifierSpan the leading module path, empty when unqualified.
	Span          elm.Span
	NameSpan      elm.Span
	QualifierSpan elm.Span
	Ctx           RefCtx
	// Func is the enclosing top-level declaration name, when any.
	Func string
}

// A LowerRef is an occurrence of a lowercase, possibly qualified, value
// identifier in expression position.
type LowerRef struct {
	Qualifier     string
	Name          string
	Span          elm.Span
	NameSpan      elm.Span
	QualifierSpan elm.Span
	Func          string
}

// FieldRefKind describes where a record field name occurred.
type FieldRefKind int

// Field reference kinds.
const (
	FieldAccess FieldRefKind = iota // r.name
	FieldLiteral                    // { name = v } and { r | name = v }
	FieldPattern                    // { name } destructuring
	FieldAccessor                   // .name
	FieldDecl                       // alias declaration site
	FieldSig                        // record type inside an annotation
)

// A FieldRef is an occurrence of a record field name.
type FieldRef struct {
	Name     string
	NameSpan elm.Span
	Kind     FieldRefKind
	// Receiver is the receiver variable name for accesses and record
	// updates with a simple variable receiver, empty otherwise.
	Receiver string
	// Func is the enclosing top-level declaration name.
	Func string
}

// An Index is the semantic summary of one parsed Elm file.
type Index struct {
	Path string
	// Name is the canonical module name from the header; empty when the
	// header could not be parsed.
	Name     string
	NameSpan elm.Span
	// HeaderSpan covers the whole module declaration line.
	HeaderSpan elm.Span
	Exposing   *Exposing
	Imports    []Import
	Decls      []Decl
	Fields     []FieldDef
	Branches   []CaseBranch
	UpperRefs  []UpperRef
	LowerRefs  []LowerRef
	FieldRefs  []FieldRef
	// Warnings records file-scoped parse problems; the summary is
	// best-effort when non-empty.
	Warnings []string

	byName map[string]int
}

// Decl returns the declaration with the given name, or nil. At most one
// declaration exists per name per module.
func (ix *Index) Decl(name string) *Decl {
	i, ok := ix.byName[name]
	if !ok {
		return nil
	}
	return &ix.Decls[i]
}

// ImportOf returns the import statement for the given module name, or nil.
func (ix *Index) ImportOf(mod string) *Import {
	for i := range ix.Imports {
		if ix.Imports[i].Module == mod {
			return &ix.Imports[i]
		}
	}
	return nil
}

// ResolveQualifier maps an in-file module qualifier, which may be an alias,
// to the canonical module name it refers to. The module's own name resolves
// to itself.
func (ix *Index) ResolveQualifier(q string) (string, bool) {
	if q == "" {
		return "", false
	}
	if q == ix.Name {
		return q, true
	}
	for i := range ix.Imports {
		imp := &ix.Imports[i]
		if imp.Alias == q || (imp.Alias == "" && imp.Module == q) {
			return imp.Module, true
		}
	}
	return "", false
}

// QualifierFor returns the qualifier under which the given module is visible
// in this file: its alias when one is declared, otherwise the module name
// itself. ok is false when the module is not imported and is not this file's
// own module.
func (ix *Index) QualifierFor(mod string) (string, bool) {
	if mod == ix.Name {
		return mod, true
	}
	imp := ix.ImportOf(mod)
	if imp == nil {
		return "", false
	}
	if imp.Alias != "" {
		return imp.Alias, true
	}
	return mod, true
}

// Exposed reports whether the module's header exposes the given name.
func (ix *Index) Exposed(name string) bool {
	return ix.Exposing.Exposes(name)
}
