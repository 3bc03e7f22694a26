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
	"context"
	"fmt"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/classify"
	"github.com/upbound/elm-ls/internal/elm/module"
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

const (
	errNotVariant  = "cursor is not on a variant of a custom type"
	errOnlyVariant = "%s is the only variant of %s; removing it would leave the type uninhabited"

	holeFmt = `(Debug.todo "%s.%s removed")`
)

// A VariantUse describes one occurrence of the variant for the caller's
// review: where it is, the line it sits on, and a bounded call chain from
// the enclosing function toward an entry point.
type VariantUse struct {
	Module    string   `json:"module"`
	Func      string   `json:"function"`
	Line      uint32   `json:"line"`
	Context   string   `json:"context"`
	CallChain []string `json:"callChain,omitempty"`
}

// A RemoveVariantPlan classifies every use of the variant without emitting
// edits. Pattern uses are auto-rewritable; constructor uses are replaced by
// holes and reported for review.
type RemoveVariantPlan struct {
	Module        string       `json:"module"`
	Type          string       `json:"type"`
	Variant       string       `json:"variant"`
	OtherVariants []string     `json:"otherVariants"`
	PatternUses   []VariantUse `json:"patternUses"`
	CtorUses      []VariantUse `json:"constructorUses"`
	CanRemove     bool         `json:"canRemove"`
	Reason        string       `json:"reason,omitempty"`
}

// A RemoveVariantResult is a plan plus its workspace edit.
type RemoveVariantResult struct {
	Plan    *RemoveVariantPlan
	Changes WorkspaceEdit
	Message string
}

// PrepareRemoveVariant classifies the removal without computing edits.
func PrepareRemoveVariant(ctx context.Context, ws *workspace.Workspace, def *classify.Definition) (*RemoveVariantPlan, error) {
	plan, _, err := removePlan(ctx, ws, def, false)
	return plan, err
}

// RemoveVariant computes the workspace edit removing the variant at the
// cursor: the declaration entry, every pattern branch on it, now-useless
// wildcards, and a hole for every constructor use.
func RemoveVariant(ctx context.Context, ws *workspace.Workspace, def *classify.Definition) (*RemoveVariantResult, error) {
	plan, changes, err := removePlan(ctx, ws, def, true)
	if err != nil {
		return nil, err
	}
	return &RemoveVariantResult{
		Plan:    plan,
		Changes: changes,
		Message: fmt.Sprintf("removed %s.%s: %d edit(s) in %d file(s), %d constructor use(s) replaced by holes",
			plan.Type, plan.Variant, changes.EditCount(), changes.FileCount(), len(plan.CtorUses)),
	}, nil
}

func removePlan(ctx context.Context, ws *workspace.Workspace, def *classify.Definition, wantEdits bool) (*RemoveVariantPlan, WorkspaceEdit, error) { //nolint:gocyclo // the algorithm's phases are inherently sequential
	if def.Kind != classify.KindVariant {
		return nil, nil, errors.New(errNotVariant)
	}
	decl, owner, err := ws.LookupDecl(def.Module, def.TypeName)
	if err != nil {
		return nil, nil, err
	}
	if decl.Kind != module.KindCustomType {
		return nil, nil, errors.New(errNotVariant)
	}
	if len(decl.Variants) < 2 {
		return nil, nil, errors.Errorf(errOnlyVariant, def.Name, def.TypeName)
	}

	plan := &RemoveVariantPlan{
		Module:  def.Module,
		Type:    def.TypeName,
		Variant: def.Name,
	}
	allVariants := map[string]bool{}
	for _, v := range decl.Variants {
		allVariants[v.Name] = true
		if v.Name != def.Name {
			plan.OtherVariants = append(plan.OtherVariants, v.Name)
		}
	}

	changes := WorkspaceEdit{}
	hole := fmt.Sprintf(holeFmt, def.TypeName, def.Name)

	for _, f := range ws.Files() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		ix := f.Index
		visible := ctorsVisible(ix, def.Module, def.TypeName)

		// Branches to delete: any branch whose pattern mentions the
		// variant can no longer match.
		deleted := map[int]bool{}
		for bi := range ix.Branches {
			b := &ix.Branches[bi]
			if b.Ctor == def.Name && resolvesToModule(ix, b.Qualifier, def.Module, visible) {
				deleted[bi] = true
				continue
			}
			for _, r := range ix.UpperRefs {
				if r.Ctx != module.CtxPattern || r.Name != def.Name {
					continue
				}
				if !resolvesToModule(ix, r.Qualifier, def.Module, visible) {
					continue
				}
				if b.PatternSpan.Contains(r.Span.Start) {
					deleted[bi] = true
				}
			}
		}

		for bi := range ix.Branches {
			if !deleted[bi] {
				continue
			}
			b := &ix.Branches[bi]
			plan.PatternUses = append(plan.PatternUses, useAt(ws, f, b.Func, b.PatternSpan))
			if wantEdits {
				changes.Add(f.Path, Edit{Span: b.BranchSpan})
			}
		}

		// Wildcards whose only remaining purpose was the removed variant.
		if wantEdits {
			pruneWildcards(changes, f, def, allVariants, deleted, visible)
		}

		// Constructor uses become holes.
		for _, r := range ix.UpperRefs {
			if r.Ctx != module.CtxExpr || r.Name != def.Name {
				continue
			}
			if !resolvesToModule(ix, r.Qualifier, def.Module, visible) {
				continue
			}
			plan.CtorUses = append(plan.CtorUses, useAt(ws, f, r.Func, r.Span))
			if wantEdits {
				changes.Add(f.Path, Edit{Span: r.Span, NewText: hole})
			}
		}
	}

	if wantEdits {
		removeDeclEntry(changes, owner, decl, def.Name)
	}

	plan.CanRemove = true
	return plan, changes, nil
}

// ctorsVisible reports whether the type's constructors are usable
// unqualified in the file.
func ctorsVisible(ix *module.Index, mod, typeName string) bool {
	if ix.Name == mod {
		return true
	}
	imp := ix.ImportOf(mod)
	return imp != nil && imp.Exposing.ExposesCtorsOf(typeName)
}

func resolvesToModule(ix *module.Index, qualifier, mod string, visible bool) bool {
	if qualifier == "" {
		return visible
	}
	target, ok := ix.ResolveQualifier(qualifier)
	return ok && target == mod
}

// pruneWildcards deletes a case's wildcard branch when the explicit
// branches cover every variant surviving the removal: the wildcard was
// reachable only through the removed variant.
func pruneWildcards(changes WorkspaceEdit, f *workspace.File, def *classify.Definition, allVariants map[string]bool, deleted map[int]bool, visible bool) {
	ix := f.Index

	type caseInfo struct {
		explicit  map[string]bool
		wildcards []int
		onType    bool
	}
	cases := map[elm.Span]*caseInfo{}
	for bi := range ix.Branches {
		b := &ix.Branches[bi]
		ci, ok := cases[b.CaseSpan]
		if !ok {
			ci = &caseInfo{explicit: map[string]bool{}}
			cases[b.CaseSpan] = ci
		}
		switch {
		case deleted[bi]:
			ci.onType = true
		case b.Wildcard:
			ci.wildcards = append(ci.wildcards, bi)
		case b.Ctor != "" && allVariants[b.Ctor] && resolvesToModule(ix, b.Qualifier, def.Module, visible):
			ci.explicit[b.Ctor] = true
			ci.onType = true
		}
	}

	for _, ci := range cases {
		if !ci.onType || len(ci.wildcards) == 0 {
			continue
		}
		uncovered := 0
		onlyRemoved := true
		for v := range allVariants {
			if ci.explicit[v] {
				continue
			}
			uncovered++
			if v != def.Name {
				onlyRemoved = false
			}
		}
		if uncovered == 1 && onlyRemoved {
			for _, bi := range ci.wildcards {
				changes.Add(f.Path, Edit{Span: ix.Branches[bi].BranchSpan})
			}
		}
	}
}

// removeDeclEntry deletes the variant from its type declaration. A leading
// variant keeps the = token and hands it to its successor; later variants
// take their preceding | with them.
func removeDeclEntry(changes WorkspaceEdit, owner *workspace.File, decl *module.Decl, variant string) {
	for i, v := range decl.Variants {
		if v.Name != variant {
			continue
		}
		if v.Index == 0 && len(decl.Variants) > 1 {
			next := decl.Variants[i+1]
			changes.Add(owner.Path, Edit{Span: elm.Span{
				Start: v.CtorSpan.Start, End: next.CtorSpan.Start,
				StartPoint: v.CtorSpan.StartPoint, EndPoint: next.CtorSpan.StartPoint,
			}})
			return
		}
		changes.Add(owner.Path, Edit{Span: elm.Span{
			Start: v.SepSpan.Start, End: v.CtorSpan.End,
			StartPoint: v.SepSpan.StartPoint, EndPoint: v.CtorSpan.EndPoint,
		}})
		return
	}
}

// useAt builds the user-facing description of one use site.
func useAt(ws *workspace.Workspace, f *workspace.File, fn string, span elm.Span) VariantUse {
	return VariantUse{
		Module:    f.Index.Name,
		Func:      fn,
		Line:      span.StartPoint.Row + 1,
		Context:   lineAt(f.Source, span.Start),
		CallChain: callChain(ws, f.Index.Name, fn, 8),
	}
}
