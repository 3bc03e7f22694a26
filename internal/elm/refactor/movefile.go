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
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

const (
	errNotElmTarget  = "new path does not name an Elm module"
	errTargetOutside = "new path is not under any source root of the workspace"
	errSameModule    = "new path maps to the same module name"
	errModuleExists  = "a module named %s already exists"
)

// A MoveFileResult is the workspace edit for a file rename or move. The
// caller applies the edits, performs the physical move, and then notifies
// the server so the index re-syncs under the new module name.
type MoveFileResult struct {
	Changes   WorkspaceEdit
	OldModule string
	NewModule string
	Message   string
}

// MoveFile computes the edits renaming the module at oldPath to the module
// its new path dictates: the module header, every import of it, and every
// qualified reference through it. Renaming and moving a file are the same
// operation; only the path changes differently.
func MoveFile(ctx context.Context, ws *workspace.Workspace, oldPath, newPath string) (*MoveFileResult, error) { //nolint:gocyclo // the algorithm's steps are inherently sequential
	f, err := ws.FileAt(oldPath)
	if err != nil {
		return nil, err
	}
	root, ok := ws.SourceRootFor(newPath)
	if !ok {
		return nil, errors.New(errTargetOutside)
	}
	newMod, err := elm.ModuleFromPath(root, newPath)
	if err != nil {
		return nil, errors.Wrap(err, errNotElmTarget)
	}
	oldMod := f.Index.Name
	if newMod == oldMod {
		return nil, errors.New(errSameModule)
	}
	if _, err := ws.ModuleFile(newMod); err == nil {
		return nil, errors.Errorf(errModuleExists, newMod)
	}

	changes := WorkspaceEdit{}

	// The header takes the new name.
	changes.Add(oldPath, Edit{Span: f.Index.NameSpan, NewText: newMod})

	for _, path := range ws.Importers(oldMod) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		imp, err := ws.FileAt(path)
		if err != nil {
			continue
		}
		rewriteImporterModule(changes, imp, oldMod, newMod)
	}

	return &MoveFileResult{
		Changes:   changes,
		OldModule: oldMod,
		NewModule: newMod,
		Message: fmt.Sprintf("renamed module %s to %s: %d edit(s) in %d file(s)",
			oldMod, newMod, changes.EditCount(), changes.FileCount()),
	}, nil
}

// rewriteImporterModule updates one importing file: the import statement
// itself, and every qualified reference that spells the old module name.
// References through an alias keep the alias, which keeps pointing at the
// renamed module.
func rewriteImporterModule(changes WorkspaceEdit, f *workspace.File, oldMod, newMod string) {
	ix := f.Index
	imp := ix.ImportOf(oldMod)
	if imp == nil {
		return
	}
	changes.Add(f.Path, Edit{Span: imp.ModuleSpan, NewText: newMod})

	if imp.Alias != "" {
		return
	}
	// The spelling must both be the old name and resolve to it; an alias
	// of another module shadowing the name wins over the import.
	refersToOld := func(q string) bool {
		if q != oldMod {
			return false
		}
		target, ok := ix.ResolveQualifier(q)
		return ok && target == oldMod
	}
	for _, r := range ix.UpperRefs {
		if refersToOld(r.Qualifier) && !r.QualifierSpan.Empty() {
			changes.Add(f.Path, Edit{Span: r.QualifierSpan, NewText: newMod})
		}
	}
	for _, r := range ix.LowerRefs {
		if refersToOld(r.Qualifier) && !r.QualifierSpan.Empty() {
			changes.Add(f.Path, Edit{Span: r.QualifierSpan, NewText: newMod})
		}
	}
}
