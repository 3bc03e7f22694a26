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

// Package parser adapts the tree-sitter Elm grammar to the language core. It
// produces concrete syntax trees with byte offsets and row/column points for
// every node, and tolerates malformed sources by surfacing error nodes.
package parser

import (
	"context"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	elmsitter "github.com/smacker/go-tree-sitter/elm"

	"github.com/upbound/elm-ls/internal/elm"
)

// A Parser turns Elm source buffers into concrete syntax trees. A Parser owns
// opaque parser state; an internal lock serializes its parses, so goroutines
// sharing one Parser run one parse at a time. New is cheap enough to call per
// worker.
type Parser struct {
	mu sync.Mutex
	p  *sitter.Parser
}

// New returns a Parser configured for the Elm grammar.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(elmsitter.GetLanguage())
	return &Parser{p: p}
}

// Parse parses the supplied source into a fresh tree.
func (p *Parser) Parse(ctx context.Context, src []byte) (*Tree, error) {
	return p.parse(ctx, nil, src)
}

// Reparse parses the supplied source reusing the old tree's state where the
// grammar permits. Correctness does not depend on reuse; a nil old tree
// degrades to a full parse.
func (p *Parser) Reparse(ctx context.Context, old *Tree, src []byte) (*Tree, error) {
	if old == nil {
		return p.Parse(ctx, src)
	}
	return p.parse(ctx, old.tree, src)
}

func (p *Parser) parse(ctx context.Context, old *sitter.Tree, src []byte) (*Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.p.ParseCtx(ctx, old, src)
	if err != nil {
		return nil, err
	}
	return &Tree{tree: t, src: src}, nil
}

// A Tree is a parsed Elm source buffer.
type Tree struct {
	tree *sitter.Tree
	src  []byte
}

// Root returns the tree's root node.
func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// Source returns the buffer the tree was parsed from.
func (t *Tree) Source() []byte {
	return t.src
}

// HasErrors reports whether the parse produced any error nodes.
func (t *Tree) HasErrors() bool {
	return t.tree.RootNode().HasError()
}

// NodeAt returns the smallest named node containing the given point, or nil
// when the point is outside the tree.
func (t *Tree) NodeAt(p elm.Point) *sitter.Node {
	pt := sitter.Point{Row: p.Row, Column: p.Column}
	return t.tree.RootNode().NamedDescendantForPointRange(pt, pt)
}

// Content returns the source text covered by the node.
func (t *Tree) Content(n *sitter.Node) string {
	return n.Content(t.src)
}

// Span returns the node's span in core coordinates.
func Span(n *sitter.Node) elm.Span {
	return elm.Span{
		Start:      n.StartByte(),
		End:        n.EndByte(),
		StartPoint: elm.Point{Row: n.StartPoint().Row, Column: n.StartPoint().Column},
		EndPoint:   elm.Point{Row: n.EndPoint().Row, Column: n.EndPoint().Column},
	}
}

// Walk visits every node in the tree in document order, pruning a subtree
// when the callback returns false for its root.
func Walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		Walk(n.Child(i), visit)
	}
}

// ChildOfType returns the first direct child with the given type, or nil.
func ChildOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.Type() == typ {
			return c
		}
	}
	return nil
}

// ChildrenOfType returns all direct children with the given type.
func ChildrenOfType(n *sitter.Node, typ string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.Type() == typ {
			out = append(out, c)
		}
	}
	return out
}

// AncestorOfType returns the nearest ancestor (including n itself) with the
// given type, or nil.
func AncestorOfType(n *sitter.Node, typ string) *sitter.Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur.Type() == typ {
			return cur
		}
	}
	return nil
}
