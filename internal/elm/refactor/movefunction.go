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
	"strings"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/upbound/elm-ls/internal/elm/module"
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

const (
	errNoSuchFunction = "no function named %s in %s"
	errNotValueDecl   = "%s is not a value declaration"
	errSameFile       = "source and target are the same file"
)

// A MoveFunctionResult is the workspace edit moving a function between
// modules.
type MoveFunctionResult struct {
	Changes WorkspaceEdit
	Message string
}

// MoveFunction carves functionName's declaration out of srcPath and splices
// it into targetPath, updating both exposing lists, the import statements of
// every affected file, and qualified call sites. functionName is mandatory:
// the declaration is selected by name alone, never by a cursor position.
func MoveFunction(ctx context.Context, ws *workspace.Workspace, srcPath, functionName, targetPath string) (*MoveFunctionResult, error) { //nolint:gocyclo // the algorithm's steps are inherently sequential
	if srcPath == targetPath {
		return nil, errors.New(errSameFile)
	}
	src, err := ws.FileAt(srcPath)
	if err != nil {
		return nil, err
	}
	target, err := ws.FileAt(targetPath)
	if err != nil {
		return nil, err
	}
	decl := src.Index.Decl(functionName)
	if decl == nil {
		return nil, errors.Errorf(errNoSuchFunction, functionName, src.Index.Name)
	}
	if decl.Kind != module.KindValue {
		return nil, errors.Errorf(errNotValueDecl, functionName)
	}

	srcMod, targetMod := src.Index.Name, target.Index.Name
	changes := WorkspaceEdit{}

	// Carve the declaration out, collapsing the blank-line run it leaves.
	body := string(src.Source[decl.FullSpan.Start:decl.FullSpan.End])
	changes.Add(srcPath, Edit{Span: extendThroughWhitespace(src.Source, decl.FullSpan)})

	// Splice into the target behind two blank lines.
	at, atPoint := endOf(target.Source)
	sep := "\n\n\n"
	if strings.HasSuffix(string(target.Source), "\n") {
		sep = "\n\n"
	}
	changes.Add(targetPath, Edit{Span: pointSpan(at, atPoint), NewText: sep + body + "\n"})

	// The target exports the function; the source no longer does.
	addExposedName(changes, targetPath, target.Index.Exposing, functionName)
	removeExposedName(changes, srcPath, src.Index.Exposing, functionName, func() {
		// The moved function was the only export; expose everything so
		// the header stays valid.
		changes.Add(srcPath, Edit{Span: src.Index.Exposing.ListSpan, NewText: "(..)"})
	})

	// A source that still calls the function needs it back via import.
	if stillReferenced(src, decl, functionName) {
		ensureImportExposing(changes, src, targetMod, functionName)
	}

	// Rewire every importer.
	for _, path := range ws.Importers(srcMod) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if path == srcPath || path == targetPath {
			continue
		}
		f, err := ws.FileAt(path)
		if err != nil {
			continue
		}
		rewireImporter(changes, f, srcMod, targetMod, functionName)
	}

	// The target file itself may have been calling the function
	// qualified; those sites now live beside it.
	rewriteQualifiedUses(changes, target, srcMod, targetMod, functionName, true)

	return &MoveFunctionResult{
		Changes: changes,
		Message: fmt.Sprintf("moved %s from %s to %s: %d edit(s) in %d file(s)",
			functionName, srcMod, targetMod, changes.EditCount(), changes.FileCount()),
	}, nil
}

// stillReferenced reports whether the source file references the function
// outside the moved declaration itself.
func stillReferenced(src *workspace.File, decl *module.Decl, name string) bool {
	for _, r := range src.Index.LowerRefs {
		if r.Name != name || r.Qualifier != "" {
			continue
		}
		if decl.FullSpan.Contains(r.Span.Start) {
			continue
		}
		return true
	}
	return false
}

// rewireImporter updates one importing file: the name leaves the source
// module's exposing clause and arrives through the target's, and qualified
// call sites follow the move.
func rewireImporter(changes WorkspaceEdit, f *workspace.File, srcMod, targetMod, name string) {
	ix := f.Index
	imp := ix.ImportOf(srcMod)
	if imp == nil {
		return
	}

	usesUnqualified := false
	for _, r := range ix.LowerRefs {
		if r.Name == name && r.Qualifier == "" {
			usesUnqualified = true
		}
	}

	if imp.Exposing != nil && !imp.Exposing.Open && imp.Exposing.Exposes(name) {
		removeExposedName(changes, f.Path, imp.Exposing, name, func() {
			dropExposingClause(changes, f.Path, imp.Exposing)
		})
		if usesUnqualified {
			ensureImportExposing(changes, f, targetMod, name)
		}
	} else if imp.Exposing != nil && imp.Exposing.Open && usesUnqualified {
		// An open import stops providing the name once it moves.
		ensureImportExposing(changes, f, targetMod, name)
	}

	rewriteQualifiedUses(changes, f, srcMod, targetMod, name, false)
}

// rewriteQualifiedUses redirects SrcModule.name call sites to the target
// module, inserting an import of the target when the file lacks one.
func rewriteQualifiedUses(changes WorkspaceEdit, f *workspace.File, srcMod, targetMod, name string, inTarget bool) {
	ix := f.Index
	qualifier, imported := ix.QualifierFor(targetMod)
	addedImport := false

	for _, r := range ix.LowerRefs {
		if r.Name != name || r.Qualifier == "" || r.QualifierSpan.Empty() {
			continue
		}
		target, ok := ix.ResolveQualifier(r.Qualifier)
		if !ok || target != srcMod {
			continue
		}
		if inTarget {
			// Inside the target module the name is now local; drop the
			// qualifier and its dot.
			span := r.Span
			span.End = r.NameSpan.Start
			span.EndPoint = r.NameSpan.StartPoint
			changes.Add(f.Path, Edit{Span: span})
			continue
		}
		if !imported && !addedImport {
			insertImport(changes, f, "import "+targetMod)
			qualifier = targetMod
			addedImport = true
		}
		changes.Add(f.Path, Edit{Span: r.QualifierSpan, NewText: qualifier})
	}
}
