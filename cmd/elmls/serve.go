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
	"os"

	"github.com/sourcegraph/jsonrpc2"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/upbound/elm-ls/internal/lsp/handler"
	"github.com/upbound/elm-ls/internal/lsp/server"
)

type serveCmd struct {
	Verbose bool `help:"Run with verbose logging on stderr."`
	Watch   bool `help:"Poll the workspace for file changes the client does not report."`
}

// Run starts the language server on stdio and blocks until the client
// disconnects.
func (c *serveCmd) Run() error {
	ctx := context.Background()

	// Logs go to stderr; stdout carries the protocol.
	log := logging.NewLogrLogger(zap.New(zap.UseDevMode(c.Verbose), zap.WriteTo(os.Stderr)))

	s, err := server.New(server.WithLogger(log))
	if err != nil {
		return err
	}
	h, err := handler.New(handler.WithLogger(log), handler.WithServer(s))
	if err != nil {
		return err
	}

	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(stdrwc{}, jsonrpc2.VSCodeObjectCodec{}),
		h,
	)
	log.Debug("elm-ls is listening on stdio")

	if c.Watch {
		go watchWorkspace(ctx, s, log)
	}

	<-conn.DisconnectNotify()
	return nil
}

// stdrwc adapts stdin/stdout to the ReadWriteCloser the stream codec wants.
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
