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
	"sort"

	"github.com/upbound/elm-ls/internal/elm/module"
	"github.com/upbound/elm-ls/internal/elm/workspace"
)

// entryPoints are the conventional roots of an Elm application's call
// graph; chains stop when they reach one.
var entryPoints = map[string]bool{
	"main":          true,
	"init":          true,
	"update":        true,
	"subscriptions": true,
	"view":          true,
}

// callChain walks the caller graph upward from (mod, fn) and returns one
// bounded chain of Module.function entries ending at an entry point, a
// port, or the depth limit. The first caller in Module.function order is
// followed at each step, keeping the result deterministic.
func callChain(ws *workspace.Workspace, mod, fn string, limit int) []string {
	if fn == "" {
		return nil
	}
	chain := []string{mod + "." + fn}
	seen := map[string]bool{chain[0]: true}

	curMod, curFn := mod, fn
	for len(chain) < limit {
		if entryPoints[curFn] || isPort(ws, curMod, curFn) {
			break
		}
		callers := callersOf(ws, curMod, curFn)
		next := ""
		var nextMod, nextFn string
		for _, c := range callers {
			if !seen[c.key] {
				next, nextMod, nextFn = c.key, c.mod, c.fn
				break
			}
		}
		if next == "" {
			break
		}
		seen[next] = true
		chain = append(chain, next)
		curMod, curFn = nextMod, nextFn
	}
	return chain
}

type caller struct {
	key string
	mod string
	fn  string
}

// callersOf returns every function referencing (mod, fn), sorted for
// determinism.
func callersOf(ws *workspace.Workspace, mod, fn string) []caller {
	set := map[string]caller{}
	for _, f := range ws.Files() {
		ix := f.Index
		visible := ix.Name == mod || func() bool {
			imp := ix.ImportOf(mod)
			return imp != nil && imp.Exposing.Exposes(fn)
		}()
		for _, r := range ix.LowerRefs {
			if r.Name != fn || r.Func == "" || (ix.Name == mod && r.Func == fn) {
				continue
			}
			if !resolvesToModule(ix, r.Qualifier, mod, visible) {
				continue
			}
			c := caller{key: ix.Name + "." + r.Func, mod: ix.Name, fn: r.Func}
			set[c.key] = c
		}
	}
	out := make([]caller, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func isPort(ws *workspace.Workspace, mod, fn string) bool {
	d, _, err := ws.LookupDecl(mod, fn)
	return err == nil && d.Kind == module.KindPort
}
