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

// Package server answers LSP requests against the workspace index: document
// sync, navigation, symbols, rename, completion, and the custom refactor
// commands.
package server

import (
	"context"
	"sync"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"
	"github.com/spf13/afero"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/classify"
	"github.com/upbound/elm-ls/internal/elm/find"
	"github.com/upbound/elm-ls/internal/elm/module"
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

var kind = lsp.TDSKFull

const (
	errNotInitialized     = "workspace is not initialized"
	errParseWorkspace     = "failed to parse workspace"
	errPublishDiagnostics = "failed to publish diagnostics"

	diagnosticSource = "elm-ls"
)

// Server services incoming LSP requests for one workspace.
type Server struct {
	conn *jsonrpc2.Conn

	fs  afero.Fs
	log logging.Logger
	mu  sync.RWMutex

	root string
	ws   *workspace.Workspace
}

// New returns a new Server.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		fs:  afero.NewOsFs(),
		log: logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Option overrides default behavior of the Server.
type Option func(*Server)

// WithLogger overrides the default logging.Logger for the Server.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithFS overrides the filesystem the workspace is read from.
func WithFS(fs afero.Fs) Option {
	return func(s *Server) {
		s.fs = fs
	}
}

// Workspace returns the server's workspace index; nil before initialize.
func (s *Server) Workspace() *workspace.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ws
}

// Initialize handles calls to Initialize.
func (s *Server) Initialize(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, params *lsp.InitializeParams) {
	s.conn = conn
	s.root = params.RootPath
	if params.RootURI != "" {
		s.root = uriToPath(lsp.DocumentURI(params.RootURI))
	}

	ws, err := workspace.New(s.root, workspace.WithFS(s.fs), workspace.WithLogger(s.log))
	if err == nil {
		err = ws.Scan(ctx)
	}
	if err != nil {
		s.log.Info(errParseWorkspace, "root", s.root, "error", err)
		if rerr := conn.ReplyWithError(ctx, id, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeInvalidParams,
			Message: err.Error(),
		}); rerr != nil {
			s.log.Debug("failed to reply to initialize", "error", rerr)
		}
		return
	}

	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()

	reply := &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync: &lsp.TextDocumentSyncOptionsOrKind{
				Kind: &kind,
			},
			DefinitionProvider:     true,
			ReferencesProvider:     true,
			DocumentSymbolProvider: true,
			RenameProvider:         true,
			CodeActionProvider:     true,
			CompletionProvider:     &lsp.CompletionOptions{TriggerCharacters: []string{"."}},
			ExecuteCommandProvider: &lsp.ExecuteCommandOptions{Commands: commandIDs()},
		},
	}
	if err := conn.Reply(ctx, id, reply); err != nil {
		// If we fail to reply to initialize we won't receive future
		// messages, so we panic and try again on restart.
		panic(err)
	}
}

// workspaceReady returns the index or an error before initialization.
func (s *Server) workspaceReady() (*workspace.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ws == nil {
		return nil, errors.New(errNotInitialized)
	}
	return s.ws, nil
}

// DidOpen handles calls to DidOpen.
func (s *Server) DidOpen(ctx context.Context, params *lsp.DidOpenTextDocumentParams) {
	ws, err := s.workspaceReady()
	if err != nil {
		s.log.Debug(err.Error())
		return
	}
	path := uriToPath(params.TextDocument.URI)
	if err := ws.UpdateFile(ctx, path, []byte(params.TextDocument.Text)); err != nil {
		s.log.Debug("failed to index opened file", "path", path, "error", err)
		return
	}
	s.publishParseDiagnostics(ctx, params.TextDocument.URI, path)
}

// DidChange handles calls to DidChange.
func (s *Server) DidChange(ctx context.Context, params *lsp.DidChangeTextDocumentParams) {
	ws, err := s.workspaceReady()
	if err != nil {
		s.log.Debug(err.Error())
		return
	}
	path := uriToPath(params.TextDocument.URI)
	f, err := ws.FileAt(path)
	if err != nil {
		s.log.Debug("change for unknown file", "path", path)
		return
	}
	next := applyContentChanges(f.Source, params.ContentChanges)
	if err := ws.UpdateFile(ctx, path, next); err != nil {
		s.log.Debug("failed to re-index changed file", "path", path, "error", err)
		return
	}
	s.publishParseDiagnostics(ctx, params.TextDocument.URI, path)
}

// DidChangeWatchedFiles handles calls to DidChangeWatchedFiles.
func (s *Server) DidChangeWatchedFiles(ctx context.Context, params *lsp.DidChangeWatchedFilesParams) {
	ws, err := s.workspaceReady()
	if err != nil {
		s.log.Debug(err.Error())
		return
	}
	for _, c := range params.Changes {
		path := uriToPath(c.URI)
		switch c.Type {
		case lsp.Deleted:
			ws.DeleteFile(path)
		default:
			if err := ws.SyncFile(ctx, path); err != nil {
				s.log.Debug("failed to sync watched file", "path", path, "error", err)
			}
		}
	}
}

// publishParseDiagnostics reports a file-scoped warning when the summary is
// best-effort due to parse errors, and clears it otherwise.
func (s *Server) publishParseDiagnostics(ctx context.Context, uri lsp.DocumentURI, path string) {
	ws, err := s.workspaceReady()
	if err != nil || s.conn == nil {
		return
	}
	f, err := ws.FileAt(path)
	if err != nil {
		return
	}
	diags := make([]lsp.Diagnostic, 0, len(f.Index.Warnings))
	for _, w := range f.Index.Warnings {
		diags = append(diags, lsp.Diagnostic{
			Range:    toRange(f.Index.HeaderSpan),
			Severity: lsp.Warning,
			Source:   diagnosticSource,
			Message:  w,
		})
	}
	if err := s.conn.Notify(ctx, "textDocument/publishDiagnostics", &lsp.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diags,
	}); err != nil {
		s.log.Debug(errPublishDiagnostics, "error", err)
	}
}

// Definition handles calls to Definition.
func (s *Server) Definition(ctx context.Context, params *lsp.TextDocumentPositionParams) (*lsp.Location, error) {
	ws, err := s.workspaceReady()
	if err != nil {
		return nil, err
	}
	def, err := classify.At(ws, uriToPath(params.TextDocument.URI), toPoint(params.Position))
	if err != nil {
		return nil, err
	}
	loc := definitionSite(ws, def)
	if loc == nil {
		return nil, nil
	}
	l := toLocation(*loc)
	return &l, nil
}

// definitionSite resolves a classified definition to its declaration
// location.
func definitionSite(ws *workspace.Workspace, def *classify.Definition) *find.Location { //nolint:gocyclo // a case per definition kind
	switch def.Kind {
	case classify.KindValue, classify.KindType:
		d, f, err := ws.LookupDecl(def.Module, def.Name)
		if err != nil {
			return nil
		}
		return &find.Location{Path: f.Path, Span: d.NameSpan}
	case classify.KindVariant:
		d, f, err := ws.LookupDecl(def.Module, def.TypeName)
		if err != nil {
			return nil
		}
		for _, v := range d.Variants {
			if v.Name == def.Name {
				return &find.Location{Path: f.Path, Span: v.NameSpan}
			}
		}
	case classify.KindField:
		for _, c := range def.Candidates {
			f, err := ws.ModuleFile(c.Module)
			if err != nil {
				continue
			}
			for _, fd := range f.Index.Fields {
				if fd.Type == c.Type && fd.Name == def.Name {
					return &find.Location{Path: f.Path, Span: fd.NameSpan}
				}
			}
		}
	case classify.KindModuleAlias:
		f, err := ws.ModuleFile(def.Target)
		if err != nil {
			return nil
		}
		return &find.Location{Path: f.Path, Span: f.Index.NameSpan}
	case classify.KindLocal:
		if def.Binding != nil {
			return &find.Location{Path: def.Path, Span: def.Binding.Span()}
		}
	}
	return nil
}

// References handles calls to References.
func (s *Server) References(ctx context.Context, params *lsp.ReferenceParams) ([]lsp.Location, error) {
	ws, err := s.workspaceReady()
	if err != nil {
		return nil, err
	}
	def, err := classify.At(ws, uriToPath(params.TextDocument.URI), toPoint(params.Position))
	if err != nil {
		return nil, err
	}
	refs, err := find.References(ctx, ws, def)
	if err != nil {
		return nil, err
	}
	locs := refs.Locations
	if !params.Context.IncludeDeclaration {
		if site := definitionSite(ws, def); site != nil {
			kept := locs[:0]
			for _, l := range locs {
				if l.Path == site.Path && l.Span == site.Span {
					continue
				}
				kept = append(kept, l)
			}
			locs = kept
		}
	}
	return toLocations(locs), nil
}

// DocumentSymbol handles calls to DocumentSymbol.
func (s *Server) DocumentSymbol(ctx context.Context, params *lsp.DocumentSymbolParams) ([]lsp.SymbolInformation, error) {
	ws, err := s.workspaceReady()
	if err != nil {
		return nil, err
	}
	f, err := ws.FileAt(uriToPath(params.TextDocument.URI))
	if err != nil {
		return nil, err
	}
	var out []lsp.SymbolInformation
	for _, d := range f.Index.Decls {
		out = append(out, lsp.SymbolInformation{
			Name:     d.Name,
			Kind:     symbolKind(d.Kind),
			Location: lsp.Location{URI: params.TextDocument.URI, Range: toRange(d.NameSpan)},
		})
		for _, v := range d.Variants {
			out = append(out, lsp.SymbolInformation{
				Name:          v.Name,
				Kind:          lsp.SKConstructor,
				ContainerName: d.Name,
				Location:      lsp.Location{URI: params.TextDocument.URI, Range: toRange(v.NameSpan)},
			})
		}
	}
	return out, nil
}

func symbolKind(k module.DeclKind) lsp.SymbolKind {
	switch k {
	case module.KindCustomType:
		return lsp.SKEnum
	case module.KindTypeAlias:
		return lsp.SKClass
	case module.KindPort:
		return lsp.SKInterface
	default:
		return lsp.SKFunction
	}
}

// PrepareRenameResult is the range/placeholder reply of prepareRename.
type PrepareRenameResult struct {
	Range       lsp.Range `json:"range"`
	Placeholder string    `json:"placeholder"`
}

// PrepareRename handles calls to PrepareRename.
func (s *Server) PrepareRename(ctx context.Context, params *lsp.TextDocumentPositionParams) (*PrepareRenameResult, error) {
	ws, err := s.workspaceReady()
	if err != nil {
		return nil, err
	}
	def, err := classify.At(ws, uriToPath(params.TextDocument.URI), toPoint(params.Position))
	if err != nil || def.Kind == classify.KindUnknown {
		return nil, nil //nolint:nilerr // an unclassifiable cursor means "nothing to rename", not a failure
	}
	return &PrepareRenameResult{Range: toRange(def.TokenSpan), Placeholder: def.Token}, nil
}

// Rename handles calls to Rename.
func (s *Server) Rename(ctx context.Context, params *lsp.RenameParams) (*lsp.WorkspaceEdit, error) {
	env := s.rename(ctx, renameArgs{
		File:         uriToPath(params.TextDocument.URI),
		Line:         params.Position.Line,
		Character:    params.Position.Character,
		NewName:      params.NewName,
		expectCursor: true,
	})
	if !env.Success {
		return nil, errors.New(env.Error)
	}
	return &lsp.WorkspaceEdit{Changes: env.Changes}, nil
}

// Completion handles calls to Completion: workspace-visible symbols filtered
// by the current file's imports, unranked.
func (s *Server) Completion(ctx context.Context, params *lsp.TextDocumentPositionParams) (*lsp.CompletionList, error) {
	ws, err := s.workspaceReady()
	if err != nil {
		return nil, err
	}
	f, err := ws.FileAt(uriToPath(params.TextDocument.URI))
	if err != nil {
		return nil, err
	}

	list := &lsp.CompletionList{IsIncomplete: false}
	add := func(label string, kind lsp.CompletionItemKind, detail string) {
		list.Items = append(list.Items, lsp.CompletionItem{Label: label, Kind: kind, Detail: detail})
	}

	for _, d := range f.Index.Decls {
		add(d.Name, completionKind(d.Kind), f.Index.Name)
		for _, v := range d.Variants {
			add(v.Name, lsp.CIKConstructor, f.Index.Name+"."+d.Name)
		}
	}
	for _, imp := range f.Index.Imports {
		qualifier := imp.Module
		if imp.Alias != "" {
			qualifier = imp.Alias
		}
		add(qualifier, lsp.CIKModule, imp.Module)

		target, err := ws.ModuleFile(imp.Module)
		if err != nil {
			continue
		}
		for _, d := range target.Index.Decls {
			if !target.Index.Exposed(d.Name) {
				continue
			}
			if imp.Exposing.Exposes(d.Name) {
				add(d.Name, completionKind(d.Kind), imp.Module)
			} else {
				add(qualifier+"."+d.Name, completionKind(d.Kind), imp.Module)
			}
		}
	}
	return list, nil
}

func completionKind(k module.DeclKind) lsp.CompletionItemKind {
	switch k {
	case module.KindCustomType:
		return lsp.CIKEnum
	case module.KindTypeAlias:
		return lsp.CIKClass
	default:
		return lsp.CIKFunction
	}
}

// CodeAction handles calls to CodeAction, offering the refactor commands
// applicable at the cursor.
func (s *Server) CodeAction(ctx context.Context, params *lsp.CodeActionParams) ([]lsp.Command, error) {
	ws, err := s.workspaceReady()
	if err != nil {
		return nil, err
	}
	path := uriToPath(params.TextDocument.URI)
	def, err := classify.At(ws, path, toPoint(params.Range.Start))
	if err != nil {
		return nil, nil //nolint:nilerr // no action is available, not a failure
	}

	arg := map[string]interface{}{
		"file":         path,
		"line":         params.Range.Start.Line,
		"character":    params.Range.Start.Character,
		"expectedName": def.Token,
	}
	var out []lsp.Command
	switch def.Kind {
	case classify.KindValue:
		out = append(out, lsp.Command{Title: "Rename function " + def.Token, Command: cmdRenameFunction, Arguments: []interface{}{arg}})
	case classify.KindType:
		out = append(out, lsp.Command{Title: "Rename type " + def.Token, Command: cmdRenameType, Arguments: []interface{}{arg}})
	case classify.KindVariant:
		out = append(out,
			lsp.Command{Title: "Rename variant " + def.Token, Command: cmdRenameVariant, Arguments: []interface{}{arg}},
			lsp.Command{Title: "Remove variant " + def.Token, Command: cmdRemoveVariant, Arguments: []interface{}{arg}},
		)
	}
	return out, nil
}

// position assembles an elm.Point from envelope coordinates.
func position(line, character int) elm.Point {
	return elm.Point{Row: uint32(line), Column: uint32(character)}
}
