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

package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/radovskyb/watcher"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/workspace"
	"github.com/upbound/elm-ls/internal/lsp/server"
)

const (
	watchInterval = 500 * time.Millisecond
	readyInterval = 250 * time.Millisecond
)

// watchWorkspace polls the source roots for .elm changes and feeds them into
// the same change pipeline the client's watched-files notifications use.
// It waits for the client's initialize to populate the workspace first.
func watchWorkspace(ctx context.Context, s *server.Server, log logging.Logger) {
	var ws = s.Workspace()
	for ws == nil {
		select {
		case <-ctx.Done():
			return
		case <-time.After(readyInterval):
			ws = s.Workspace()
		}
	}

	w := watcher.New()
	w.FilterOps(watcher.Create, watcher.Write, watcher.Remove, watcher.Rename, watcher.Move)
	for _, root := range ws.SourceRoots() {
		if err := w.AddRecursive(root); err != nil {
			log.Debug("failed to watch source root", "root", root, "error", err)
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				w.Close()
				return
			case e := <-w.Event:
				handleEvent(ctx, ws, log, e)
			case err := <-w.Error:
				log.Debug("watcher error", "error", err)
			case <-w.Closed:
				return
			}
		}
	}()

	if err := w.Start(watchInterval); err != nil {
		log.Debug("failed to start watcher", "error", err)
	}
}

func handleEvent(ctx context.Context, ws *workspace.Workspace, log logging.Logger, e watcher.Event) {
	if filepath.Ext(e.Path) != elm.Ext {
		return
	}
	switch e.Op {
	case watcher.Remove:
		ws.DeleteFile(e.Path)
	case watcher.Rename, watcher.Move:
		if err := ws.RenameFile(ctx, e.OldPath, e.Path); err != nil {
			log.Debug("failed to re-index renamed file", "path", e.Path, "error", err)
		}
	default:
		if err := ws.SyncFile(ctx, e.Path); err != nil {
			log.Debug("failed to re-index changed file", "path", e.Path, "error", err)
		}
	}
}
