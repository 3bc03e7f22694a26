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
	"github.com/upbound/elm-ls/internal/elm/find"
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

const (
	errStaleCursor      = "identifier at the cursor is %q, expected %q; line numbers may have shifted"
	errSameName         = "new name is identical to the old name"
	errInvalidUpperName = "new name must be a capitalized Elm identifier"
	errInvalidLowerName = "new name must be a lowercase Elm identifier"
	errRenameKind       = "renaming is not supported for this definition kind"

	warnCollisionFmt = "%s is already bound in module %s; the rename may shadow it"
	noteSkippedFmt   = "%d field occurrence(s) had an unknown receiver type and were not renamed"
)

// A RenameResult carries the computed workspace edit plus the notes a caller
// surfaces to the user.
type RenameResult struct {
	Changes WorkspaceEdit
	// Skipped lists field occurrences left untouched because their
	// receiver type is unknown.
	Skipped []find.Location
	// Warnings carries soft precondition findings, such as a name
	// collision in the target scope.
	Warnings []string
	// Message summarizes the rename for the user.
	Message string
}

// Rename computes the workspace edit renaming the definition at the cursor.
// expectedOld guards against stale cursors: the identifier at the cursor
// must still spell it.
func Rename(ctx context.Context, ws *workspace.Workspace, def *classify.Definition, expectedOld, newName string) (*RenameResult, error) {
	if def.Token != expectedOld {
		return nil, errors.Errorf(errStaleCursor, def.Token, expectedOld)
	}
	if newName == expectedOld {
		return nil, errors.New(errSameName)
	}
	if err := validateCase(def.Kind, newName); err != nil {
		return nil, err
	}

	res := &RenameResult{Changes: WorkspaceEdit{}}

	// Collisions are reported, not refused.
	if def.Kind == classify.KindValue || def.Kind == classify.KindType {
		if f, err := ws.ModuleFile(def.Module); err == nil && f.Index.Decl(newName) != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf(warnCollisionFmt, newName, def.Module))
		}
	}

	refs, err := find.References(ctx, ws, def)
	if err != nil {
		return nil, err
	}
	replaceAll(res.Changes, refs.Locations, newName)
	res.Skipped = refs.Skipped
	if len(refs.Skipped) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(noteSkippedFmt, len(refs.Skipped)))
	}

	res.Message = fmt.Sprintf("renamed %s %s to %s: %d edit(s) in %d file(s)",
		def.Kind, expectedOld, newName, res.Changes.EditCount(), res.Changes.FileCount())
	return res, nil
}

func validateCase(kind classify.Kind, name string) error {
	switch kind {
	case classify.KindType, classify.KindVariant:
		if !elm.IsUpperIdent(name) {
			return errors.New(errInvalidUpperName)
		}
	case classify.KindValue, classify.KindField, classify.KindLocal:
		if !elm.IsLowerIdent(name) {
			return errors.New(errInvalidLowerName)
		}
	default:
		return errors.New(errRenameKind)
	}
	return nil
}
