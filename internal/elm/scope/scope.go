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

// Package scope resolves lexical bindings in Elm concrete syntax trees:
// let declarations, function parameters, lambda parameters and case pattern
// variables. It answers the two questions the classifier and reference
// finder share: what binds this name here, and does a local binding shadow a
// top-level definition at this point.
package scope

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/parser"
)

const (
	nodeValueDecl    = "value_declaration"
	nodeFuncDeclLeft = "function_declaration_left"
	nodeLetInExpr    = "let_in_expr"
	nodeLambdaExpr   = "anonymous_function_expr"
	nodeCaseBranch   = "case_of_branch"
	nodePattern      = "pattern"
	nodeLowerPattern = "lower_pattern"
	nodeLowerIdent   = "lower_case_identifier"
	nodeFile         = "file"
)

// A Binding is a local name introduction and the region it is visible in.
type Binding struct {
	// Ident is the binding's identifier node.
	Ident *sitter.Node
	// Scope is the subtree within which the binding is visible.
	Scope *sitter.Node
}

// Span returns the identifier span of the binding.
func (b Binding) Span() elm.Span {
	return parser.Span(b.Ident)
}

// ScopeSpan returns the span of the binding's visibility region.
func (b Binding) ScopeSpan() elm.Span {
	return parser.Span(b.Scope)
}

// Lookup walks outward from n and returns the nearest binding of name, or
// nil when no local binding is in scope and the name resolves at module
// level.
func Lookup(src []byte, n *sitter.Node, name string) *Binding {
	for cur := n; cur != nil; cur = cur.Parent() {
		for _, b := range introducedBy(src, cur) {
			if b.Ident.Content(src) == name {
				b := b
				return &b
			}
		}
	}
	return nil
}

// Shadowed reports whether a local binding of name is in scope at n, hiding
// any module-level definition of the same name.
func Shadowed(src []byte, n *sitter.Node, name string) bool {
	return Lookup(src, n, name) != nil
}

// introducedBy returns the bindings a node introduces for the benefit of
// nodes beneath it.
func introducedBy(src []byte, n *sitter.Node) []Binding { //nolint:gocyclo // one case per binder form
	switch n.Type() {
	case nodeValueDecl:
		// The declaration's parameters bind within its body; the name
		// itself binds too, covering recursive references. Top-level
		// declaration names are module-scope, not local bindings.
		var out []Binding
		left := parser.ChildOfType(n, nodeFuncDeclLeft)
		if left == nil {
			return nil
		}
		topLevel := n.Parent() != nil && n.Parent().Type() == nodeFile
		for i := 0; i < int(left.ChildCount()); i++ {
			c := left.Child(i)
			if c == nil {
				continue
			}
			if c.Type() == nodeLowerIdent && i == 0 {
				if !topLevel {
					out = append(out, Binding{Ident: c, Scope: scopeOfLet(n)})
				}
				continue
			}
			out = append(out, patternBindings(c, n)...)
		}
		return out
	case nodeLetInExpr:
		// Every declaration in the let binds throughout the whole
		// expression, including sibling declarations.
		var out []Binding
		for _, d := range parser.ChildrenOfType(n, nodeValueDecl) {
			left := parser.ChildOfType(d, nodeFuncDeclLeft)
			if left == nil {
				continue
			}
			if id := parser.ChildOfType(left, nodeLowerIdent); id != nil {
				out = append(out, Binding{Ident: id, Scope: n})
			}
		}
		return out
	case nodeLambdaExpr:
		var out []Binding
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c != nil && c.Type() == nodePattern {
				out = append(out, patternBindings(c, n)...)
			}
		}
		return out
	case nodeCaseBranch:
		var out []Binding
		if pat := parser.ChildOfType(n, nodePattern); pat != nil {
			out = append(out, patternBindings(pat, n)...)
		}
		return out
	}
	return nil
}

// scopeOfLet widens a let-bound declaration's name scope to the whole
// let..in expression when one encloses it.
func scopeOfLet(n *sitter.Node) *sitter.Node {
	if p := parser.AncestorOfType(n, nodeLetInExpr); p != nil {
		return p
	}
	return n
}

// patternBindings collects the variables a pattern introduces, visible in
// the given scope node.
func patternBindings(pat *sitter.Node, scope *sitter.Node) []Binding {
	var out []Binding
	parser.Walk(pat, func(c *sitter.Node) bool {
		switch c.Type() {
		case nodeLowerPattern:
			out = append(out, Binding{Ident: c, Scope: scope})
			return false
		case nodeLowerIdent:
			out = append(out, Binding{Ident: c, Scope: scope})
			return false
		}
		return true
	})
	return out
}
