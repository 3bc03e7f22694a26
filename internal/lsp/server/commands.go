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

package server

import (
	"context"
	"encoding/json"
	"fmt"

	lsp "github.com/sourcegraph/go-lsp"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/upbound/elm-ls/internal/elm/classify"
	"github.com/upbound/elm-ls/internal/elm/refactor"
)

// Custom workspace commands exposed through workspace/executeCommand.
const (
	cmdRenameVariant        = "elm.renameVariant"
	cmdRenameType           = "elm.renameType"
	cmdRenameFunction       = "elm.renameFunction"
	cmdPrepareRemoveVariant = "elm.prepareRemoveVariant"
	cmdRemoveVariant        = "elm.removeVariant"
	cmdRenameFile           = "elm.renameFile"
	cmdMoveFile             = "elm.moveFile"
	cmdMoveFunction         = "elm.moveFunction"
	cmdNotifyFileRenamed    = "elm.notifyFileRenamed"
	cmdDiagnostics          = "elm.diagnostics"
)

const (
	errUnknownCommand = "unknown command %s"
	errMissingArgs    = "command %s requires an arguments object"
	errWrongKindFmt   = "no %s found at line %d"

	msgDiagnosticsDelegated = "diagnostics are delegated to the external Elm compiler; the server does not compute them"
)

func commandIDs() []string {
	return []string{
		cmdRenameVariant,
		cmdRenameType,
		cmdRenameFunction,
		cmdPrepareRemoveVariant,
		cmdRemoveVariant,
		cmdRenameFile,
		cmdMoveFile,
		cmdMoveFunction,
		cmdNotifyFileRenamed,
		cmdDiagnostics,
	}
}

// An Envelope is the uniform reply shape of every refactor command.
type Envelope struct {
	Success   bool                        `json:"success"`
	Error     string                      `json:"error,omitempty"`
	Message   string                      `json:"message,omitempty"`
	Changes   map[string][]lsp.TextEdit   `json:"changes,omitempty"`
	Warnings  []string                    `json:"warnings,omitempty"`
	Skipped   []lsp.Location              `json:"skippedOccurrences,omitempty"`
	Plan      *refactor.RemoveVariantPlan `json:"plan,omitempty"`
	OldModule string                      `json:"oldModule,omitempty"`
	NewModule string                      `json:"newModule,omitempty"`
	EditCount int                         `json:"editCount,omitempty"`
	FileCount int                         `json:"fileCount,omitempty"`
}

func failure(err error) *Envelope {
	return &Envelope{Success: false, Error: err.Error()}
}

type renameArgs struct {
	File         string `json:"file"`
	Line         int    `json:"line"`
	Character    int    `json:"character"`
	ExpectedName string `json:"expectedName"`
	NewName      string `json:"newName"`

	// kind restricts what the cursor must classify as; expectCursor takes
	// the safety name from the cursor itself for the generic LSP rename.
	kind         classify.Kind
	expectCursor bool
}

type cursorArgs struct {
	File         string `json:"file"`
	Line         int    `json:"line"`
	Character    int    `json:"character"`
	ExpectedName string `json:"expectedName"`
}

type moveFunctionArgs struct {
	SourceFile   string `json:"sourceFile"`
	FunctionName string `json:"functionName"`
	TargetFile   string `json:"targetFile"`
}

type moveFileArgs struct {
	File    string `json:"file"`
	NewPath string `json:"newPath"`
}

type notifyFileRenamedArgs struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

// ExecuteCommand handles calls to ExecuteCommand, routing the custom
// refactor commands. Errors never cross the request boundary; they are
// folded into the envelope.
func (s *Server) ExecuteCommand(ctx context.Context, params *lsp.ExecuteCommandParams) (*Envelope, error) { //nolint:gocyclo // a case per command
	switch params.Command {
	case cmdRenameVariant:
		var args renameArgs
		if err := decodeArgs(params, &args); err != nil {
			return failure(err), nil
		}
		args.kind = classify.KindVariant
		return s.rename(ctx, args), nil
	case cmdRenameType:
		var args renameArgs
		if err := decodeArgs(params, &args); err != nil {
			return failure(err), nil
		}
		args.kind = classify.KindType
		return s.rename(ctx, args), nil
	case cmdRenameFunction:
		var args renameArgs
		if err := decodeArgs(params, &args); err != nil {
			return failure(err), nil
		}
		args.kind = classify.KindValue
		return s.rename(ctx, args), nil
	case cmdPrepareRemoveVariant:
		var args cursorArgs
		if err := decodeArgs(params, &args); err != nil {
			return failure(err), nil
		}
		return s.prepareRemoveVariant(ctx, args), nil
	case cmdRemoveVariant:
		var args cursorArgs
		if err := decodeArgs(params, &args); err != nil {
			return failure(err), nil
		}
		return s.removeVariant(ctx, args), nil
	case cmdRenameFile, cmdMoveFile:
		var args moveFileArgs
		if err := decodeArgs(params, &args); err != nil {
			return failure(err), nil
		}
		return s.moveFile(ctx, args), nil
	case cmdMoveFunction:
		var args moveFunctionArgs
		if err := decodeArgs(params, &args); err != nil {
			return failure(err), nil
		}
		return s.moveFunction(ctx, args), nil
	case cmdNotifyFileRenamed:
		var args notifyFileRenamedArgs
		if err := decodeArgs(params, &args); err != nil {
			return failure(err), nil
		}
		return s.notifyFileRenamed(ctx, args), nil
	case cmdDiagnostics:
		return &Envelope{Success: true, Message: msgDiagnosticsDelegated}, nil
	}
	return failure(errors.Errorf(errUnknownCommand, params.Command)), nil
}

// decodeArgs unpacks the first element of the command's argument list into
// the supplied struct.
func decodeArgs(params *lsp.ExecuteCommandParams, into interface{}) error {
	if len(params.Arguments) == 0 {
		return errors.Errorf(errMissingArgs, params.Command)
	}
	b, err := json.Marshal(params.Arguments[0])
	if err != nil {
		return err
	}
	return json.Unmarshal(b, into)
}

func (s *Server) rename(ctx context.Context, args renameArgs) *Envelope {
	ws, err := s.workspaceReady()
	if err != nil {
		return failure(err)
	}
	def, err := classify.At(ws, args.File, position(args.Line, args.Character))
	if err != nil {
		return failure(err)
	}
	if args.kind != classify.KindUnknown && def.Kind != args.kind {
		return failure(errors.Errorf(errWrongKindFmt, args.kind, args.Line+1))
	}
	expected := args.ExpectedName
	if args.expectCursor {
		expected = def.Token
	}

	res, err := refactor.Rename(ctx, ws, def, expected, args.NewName)
	if err != nil {
		return failure(err)
	}
	return &Envelope{
		Success:   true,
		Message:   res.Message,
		Changes:   toWorkspaceEdit(res.Changes),
		Warnings:  res.Warnings,
		Skipped:   toLocations(res.Skipped),
		EditCount: res.Changes.EditCount(),
		FileCount: res.Changes.FileCount(),
	}
}

// variantAt classifies the cursor for the remove-variant commands, checking
// the caller-supplied safety name.
func (s *Server) variantAt(args cursorArgs) (*classify.Definition, *Envelope) {
	ws, err := s.workspaceReady()
	if err != nil {
		return nil, failure(err)
	}
	def, err := classify.At(ws, args.File, position(args.Line, args.Character))
	if err != nil {
		return nil, failure(err)
	}
	if def.Kind != classify.KindVariant {
		return nil, failure(errors.Errorf(errWrongKindFmt, classify.KindVariant, args.Line+1))
	}
	if args.ExpectedName != "" && args.ExpectedName != def.Token {
		return nil, failure(errors.Errorf(
			"identifier at the cursor is %q, expected %q; line numbers may have shifted", def.Token, args.ExpectedName))
	}
	return def, nil
}

func (s *Server) prepareRemoveVariant(ctx context.Context, args cursorArgs) *Envelope {
	def, env := s.variantAt(args)
	if env != nil {
		return env
	}
	ws, _ := s.workspaceReady()
	plan, err := refactor.PrepareRemoveVariant(ctx, ws, def)
	if err != nil {
		return failure(err)
	}
	return &Envelope{
		Success: true,
		Plan:    plan,
		Message: fmt.Sprintf("%s.%s: %d pattern use(s), %d constructor use(s)",
			plan.Type, plan.Variant, len(plan.PatternUses), len(plan.CtorUses)),
	}
}

func (s *Server) removeVariant(ctx context.Context, args cursorArgs) *Envelope {
	def, env := s.variantAt(args)
	if env != nil {
		return env
	}
	ws, _ := s.workspaceReady()
	res, err := refactor.RemoveVariant(ctx, ws, def)
	if err != nil {
		return failure(err)
	}
	return &Envelope{
		Success:   true,
		Message:   res.Message,
		Changes:   toWorkspaceEdit(res.Changes),
		Plan:      res.Plan,
		EditCount: res.Changes.EditCount(),
		FileCount: res.Changes.FileCount(),
	}
}

func (s *Server) moveFunction(ctx context.Context, args moveFunctionArgs) *Envelope {
	ws, err := s.workspaceReady()
	if err != nil {
		return failure(err)
	}
	res, err := refactor.MoveFunction(ctx, ws, args.SourceFile, args.FunctionName, args.TargetFile)
	if err != nil {
		return failure(err)
	}
	return &Envelope{
		Success:   true,
		Message:   res.Message,
		Changes:   toWorkspaceEdit(res.Changes),
		EditCount: res.Changes.EditCount(),
		FileCount: res.Changes.FileCount(),
	}
}

func (s *Server) moveFile(ctx context.Context, args moveFileArgs) *Envelope {
	ws, err := s.workspaceReady()
	if err != nil {
		return failure(err)
	}
	res, err := refactor.MoveFile(ctx, ws, args.File, args.NewPath)
	if err != nil {
		return failure(err)
	}
	return &Envelope{
		Success:   true,
		Message:   res.Message,
		Changes:   toWorkspaceEdit(res.Changes),
		OldModule: res.OldModule,
		NewModule: res.NewModule,
		EditCount: res.Changes.EditCount(),
		FileCount: res.Changes.FileCount(),
	}
}

// notifyFileRenamed re-keys the index entry after the caller has applied
// the edits and physically moved the file.
func (s *Server) notifyFileRenamed(ctx context.Context, args notifyFileRenamedArgs) *Envelope {
	ws, err := s.workspaceReady()
	if err != nil {
		return failure(err)
	}
	if err := ws.RenameFile(ctx, args.OldPath, args.NewPath); err != nil {
		return failure(err)
	}
	return &Envelope{Success: true, Message: fmt.Sprintf("re-indexed %s", args.NewPath)}
}
