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

// Package dispatcher routes JSONRPC request events to the appropriate
// server method.
package dispatcher

import (
	"context"
	"encoding/json"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/upbound/elm-ls/internal/lsp/server"
)

const (
	errParseParameters = "failed to parse parameters"
	errReply           = "failed to reply"
)

// Server defines the set of LSP methods we currently support.
type Server interface {
	Initialize(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.InitializeParams)
	DidOpen(context.Context, *lsp.DidOpenTextDocumentParams)
	DidChange(context.Context, *lsp.DidChangeTextDocumentParams)
	DidChangeWatchedFiles(context.Context, *lsp.DidChangeWatchedFilesParams)
	Definition(context.Context, *lsp.TextDocumentPositionParams) (*lsp.Location, error)
	References(context.Context, *lsp.ReferenceParams) ([]lsp.Location, error)
	DocumentSymbol(context.Context, *lsp.DocumentSymbolParams) ([]lsp.SymbolInformation, error)
	PrepareRename(context.Context, *lsp.TextDocumentPositionParams) (*server.PrepareRenameResult, error)
	Rename(context.Context, *lsp.RenameParams) (*lsp.WorkspaceEdit, error)
	Completion(context.Context, *lsp.TextDocumentPositionParams) (*lsp.CompletionList, error)
	CodeAction(context.Context, *lsp.CodeActionParams) ([]lsp.Command, error)
	ExecuteCommand(context.Context, *lsp.ExecuteCommandParams) (*server.Envelope, error)
}

// Dispatcher is responsible for routing JSONRPC request events to the
// appropriate place.
type Dispatcher struct {
	log logging.Logger
}

// New returns a new Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log: logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Option provides a way to override default behavior of the Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the default logging.Logger for the Dispatcher.
func WithLogger(l logging.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// Dispatch dispatches the given JSONRPC request to the appropriate server
// function.
func (d *Dispatcher) Dispatch(ctx context.Context, server Server, conn *jsonrpc2.Conn, r *jsonrpc2.Request) { //nolint:gocyclo // a case per protocol method
	switch r.Method {
	case "initialize":
		var params lsp.InitializeParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			// If we can't understand the initialization parameters panic
			// because future operations will not work.
			panic(err)
		}
		server.Initialize(ctx, conn, r.ID, &params)
	case "initialized":
		// No response required when the client reports initialized.
	case "shutdown":
		d.reply(ctx, conn, r.ID, nil, nil)
	case "exit":
		// The transport owner tears the process down.
	case "textDocument/didOpen":
		var params lsp.DidOpenTextDocumentParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			d.log.Debug(errParseParameters, "method", r.Method, "error", err)
			return
		}
		server.DidOpen(ctx, &params)
	case "textDocument/didChange":
		var params lsp.DidChangeTextDocumentParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			d.log.Debug(errParseParameters, "method", r.Method, "error", err)
			return
		}
		server.DidChange(ctx, &params)
	case "workspace/didChangeWatchedFiles":
		var params lsp.DidChangeWatchedFilesParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			d.log.Debug(errParseParameters, "method", r.Method, "error", err)
			return
		}
		server.DidChangeWatchedFiles(ctx, &params)
	case "textDocument/definition":
		var params lsp.TextDocumentPositionParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			d.replyParseError(ctx, conn, r, err)
			return
		}
		res, err := server.Definition(ctx, &params)
		d.reply(ctx, conn, r.ID, res, err)
	case "textDocument/references":
		var params lsp.ReferenceParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			d.replyParseError(ctx, conn, r, err)
			return
		}
		res, err := server.References(ctx, &params)
		d.reply(ctx, conn, r.ID, res, err)
	case "textDocument/documentSymbol":
		var params lsp.DocumentSymbolParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			d.replyParseError(ctx, conn, r, err)
			return
		}
		res, err := server.DocumentSymbol(ctx, &params)
		d.reply(ctx, conn, r.ID, res, err)
	case "textDocument/prepareRename":
		var params lsp.TextDocumentPositionParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			d.replyParseError(ctx, conn, r, err)
			return
		}
		res, err := server.PrepareRename(ctx, &params)
		d.reply(ctx, conn, r.ID, res, err)
	case "textDocument/rename":
		var params lsp.RenameParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			d.replyParseError(ctx, conn, r, err)
			return
		}
		res, err := server.Rename(ctx, &params)
		d.reply(ctx, conn, r.ID, res, err)
	case "textDocument/completion":
		var params lsp.TextDocumentPositionParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			d.replyParseError(ctx, conn, r, err)
			return
		}
		res, err := server.Completion(ctx, &params)
		d.reply(ctx, conn, r.ID, res, err)
	case "textDocument/codeAction":
		var params lsp.CodeActionParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			d.replyParseError(ctx, conn, r, err)
			return
		}
		res, err := server.CodeAction(ctx, &params)
		d.reply(ctx, conn, r.ID, res, err)
	case "workspace/executeCommand":
		var params lsp.ExecuteCommandParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			d.replyParseError(ctx, conn, r, err)
			return
		}
		res, err := server.ExecuteCommand(ctx, &params)
		d.reply(ctx, conn, r.ID, res, err)
	}
}

func (d *Dispatcher) reply(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, result interface{}, err error) {
	if err != nil {
		if rerr := conn.ReplyWithError(ctx, id, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeInternalError,
			Message: err.Error(),
		}); rerr != nil {
			d.log.Debug(errReply, "error", rerr)
		}
		return
	}
	if rerr := conn.Reply(ctx, id, result); rerr != nil {
		d.log.Debug(errReply, "error", rerr)
	}
}

func (d *Dispatcher) replyParseError(ctx context.Context, conn *jsonrpc2.Conn, r *jsonrpc2.Request, err error) {
	d.log.Debug(errParseParameters, "method", r.Method, "error", err)
	if rerr := conn.ReplyWithError(ctx, r.ID, &jsonrpc2.Error{
		Code:    jsonrpc2.CodeInvalidParams,
		Message: err.Error(),
	}); rerr != nil {
		d.log.Debug(errReply, "error", rerr)
	}
}
