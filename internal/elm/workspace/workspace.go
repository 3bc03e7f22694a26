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

// Package workspace maintains the aggregate index of an Elm workspace: one
// file entry per source path, keyed lookups by canonical module name, and the
// reverse maps refactors depend on. Mutations run under a single
// readers-writer lock; queries take the read side.
package workspace

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"
	"github.com/spf13/afero"

	"github.com/upbound/elm-ls/internal/elm"
	"github.com/upbound/elm-ls/internal/elm/module"
	"github.com/upbound/elm-ls/internal/elm/parser"
)

const (
	errFileNotKnown   = "file is not part of the workspace"
	errModuleNotKnown = "module is not part of the workspace"
	errReadFile       = "failed to read source file"
)

// A File is one source file entry. Entries are created on scan or open,
// mutated only via the change pipeline, and destroyed on deletion. The parse
// tree and index are owned exclusively by the entry.
type File struct {
	Path     string
	Source   []byte
	Tree     *parser.Tree
	Index    *module.Index
	Revision int
}

// Module returns the file's canonical module name.
func (f *File) Module() string {
	return f.Index.Name
}

// A CtorOwner identifies the custom type owning a constructor name. Variant
// names may be declared by more than one type; lookups return every owner and
// refactors disambiguate by the containing type at the cursor.
type CtorOwner struct {
	Module string
	Type   string
	Index  int
}

// A TypeRef names a type by (module, name), the only way cross-file
// references are expressed in the index.
type TypeRef struct {
	Module string
	Type   string
}

// A Workspace is the process-wide aggregate index for one Elm project.
type Workspace struct {
	fs     afero.Fs
	log    logging.Logger
	parser *parser.Parser

	mu       sync.RWMutex
	root     string
	srcRoots []string

	files      map[string]*File
	byModule   map[string]*File
	importers  map[string]map[string]struct{}
	ctorOwners map[string][]CtorOwner
	fieldTypes map[string]map[TypeRef]struct{}
}

// New creates a Workspace rooted at the nearest enclosing elm.json manifest
// of the supplied directory.
func New(dir string, opts ...Option) (*Workspace, error) {
	w := &Workspace{
		fs:         afero.NewOsFs(),
		log:        logging.NewNopLogger(),
		parser:     parser.New(),
		files:      make(map[string]*File),
		byModule:   make(map[string]*File),
		importers:  make(map[string]map[string]struct{}),
		ctorOwners: make(map[string][]CtorOwner),
		fieldTypes: make(map[string]map[TypeRef]struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	root, err := FindRoot(w.fs, dir)
	if err != nil {
		return nil, err
	}
	m, err := LoadManifest(w.fs, root)
	if err != nil {
		return nil, err
	}
	w.root = root
	w.srcRoots = m.SourceRoots(root)
	return w, nil
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithFS overrides the workspace filesystem.
func WithFS(fs afero.Fs) Option {
	return func(w *Workspace) {
		w.fs = fs
	}
}

// WithLogger overrides the default logger.
func WithLogger(l logging.Logger) Option {
	return func(w *Workspace) {
		w.log = l
	}
}

// Root returns the workspace root, the directory holding elm.json.
func (w *Workspace) Root() string {
	return w.root
}

// SourceRoots returns the resolved source directories.
func (w *Workspace) SourceRoots() []string {
	return w.srcRoots
}

// Scan populates the index from every .elm file under the source roots.
// Unreadable files are logged and skipped; files with parse errors are
// indexed best-effort, with the problems recorded as warnings on the entry.
func (w *Workspace) Scan(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, root := range w.srcRoots {
		err := afero.Walk(w.fs, root, func(p string, info fs.FileInfo, err error) error {
			if err != nil {
				// A missing source root is not an error; elm.json may
				// list directories that do not exist yet.
				return nil //nolint:nilerr
			}
			if info.IsDir() || filepath.Ext(p) != elm.Ext {
				return nil
			}
			b, err := afero.ReadFile(w.fs, p)
			if err != nil {
				w.log.Debug(errReadFile, "path", p, "error", err)
				return nil
			}
			if err := w.setFile(ctx, p, b); err != nil {
				w.log.Debug("failed to index file", "path", p, "error", err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateFile replaces the content of the entry at path, creating it when it
// is new, and rebuilds the affected reverse-map entries.
func (w *Workspace) UpdateFile(ctx context.Context, path string, content []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setFile(ctx, path, content)
}

// SyncFile re-reads the file at path from the filesystem.
func (w *Workspace) SyncFile(ctx context.Context, path string) error {
	b, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return errors.Wrap(err, errReadFile)
	}
	return w.UpdateFile(ctx, path, b)
}

// RenameFile moves the entry at old to new and re-indexes it from the file
// now at new, or from the old entry's source when new cannot be read. As for
// any entry, the module name comes from the file's header; the new path
// supplies it only when the header cannot be parsed. The caller has already
// performed the physical move.
func (w *Workspace) RenameFile(ctx context.Context, old, new string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files[old]
	var content []byte
	if ok {
		content = f.Source
		w.dropLocked(old)
	}
	if b, err := afero.ReadFile(w.fs, new); err == nil {
		content = b
	}
	if content == nil {
		return errors.New(errFileNotKnown)
	}
	return w.setFile(ctx, new, content)
}

// DeleteFile destroys the entry at path.
func (w *Workspace) DeleteFile(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dropLocked(path)
}

// setFile (re)indexes one file under the write lock.
func (w *Workspace) setFile(ctx context.Context, path string, content []byte) error {
	rev := 1
	if prev, ok := w.files[path]; ok {
		rev = prev.Revision + 1
		w.dropLocked(path)
	}

	tree, err := w.parser.Parse(ctx, content)
	if err != nil {
		return err
	}
	ix := module.Build(path, content, tree)
	if ix.Name == "" {
		// Derive the name from the path so a file with a broken header is
		// still addressable.
		if root, ok := w.sourceRootFor(path); ok {
			if name, err := elm.ModuleFromPath(root, path); err == nil {
				ix.Name = name
			}
		}
	}

	f := &File{Path: path, Source: content, Tree: tree, Index: ix, Revision: rev}
	w.files[path] = f
	if ix.Name != "" {
		w.byModule[ix.Name] = f
	}
	w.link(f)
	return nil
}

// dropLocked removes a file entry and its reverse-map contributions.
func (w *Workspace) dropLocked(path string) {
	f, ok := w.files[path]
	if !ok {
		return
	}
	delete(w.files, path)
	if cur, ok := w.byModule[f.Index.Name]; ok && cur == f {
		delete(w.byModule, f.Index.Name)
	}
	w.unlink(f)
}

// link adds the file's contributions to the reverse maps. Only entries keyed
// by names defined or imported in this file are touched.
func (w *Workspace) link(f *File) {
	for _, imp := range f.Index.Imports {
		set, ok := w.importers[imp.Module]
		if !ok {
			set = make(map[string]struct{})
			w.importers[imp.Module] = set
		}
		set[f.Path] = struct{}{}
	}
	for _, d := range f.Index.Decls {
		if d.Kind != module.KindCustomType {
			continue
		}
		for _, v := range d.Variants {
			w.ctorOwners[v.Name] = append(w.ctorOwners[v.Name], CtorOwner{
				Module: f.Index.Name, Type: d.Name, Index: v.Index,
			})
		}
	}
	for _, fd := range f.Index.Fields {
		set, ok := w.fieldTypes[fd.Name]
		if !ok {
			set = make(map[TypeRef]struct{})
			w.fieldTypes[fd.Name] = set
		}
		set[TypeRef{Module: f.Index.Name, Type: fd.Type}] = struct{}{}
	}
}

func (w *Workspace) unlink(f *File) {
	for _, imp := range f.Index.Imports {
		if set, ok := w.importers[imp.Module]; ok {
			delete(set, f.Path)
			if len(set) == 0 {
				delete(w.importers, imp.Module)
			}
		}
	}
	for _, d := range f.Index.Decls {
		if d.Kind != module.KindCustomType {
			continue
		}
		for _, v := range d.Variants {
			owners := w.ctorOwners[v.Name]
			keep := owners[:0]
			for _, o := range owners {
				if o.Module != f.Index.Name || o.Type != d.Name {
					keep = append(keep, o)
				}
			}
			if len(keep) == 0 {
				delete(w.ctorOwners, v.Name)
				continue
			}
			w.ctorOwners[v.Name] = keep
		}
	}
	for _, fd := range f.Index.Fields {
		if set, ok := w.fieldTypes[fd.Name]; ok {
			delete(set, TypeRef{Module: f.Index.Name, Type: fd.Type})
			if len(set) == 0 {
				delete(w.fieldTypes, fd.Name)
			}
		}
	}
}

// FileAt returns the entry for the given path.
func (w *Workspace) FileAt(path string) (*File, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	f, ok := w.files[path]
	if !ok {
		return nil, errors.New(errFileNotKnown)
	}
	return f, nil
}

// ModuleFile returns the entry for the given canonical module name.
func (w *Workspace) ModuleFile(name string) (*File, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	f, ok := w.byModule[name]
	if !ok {
		return nil, errors.New(errModuleNotKnown)
	}
	return f, nil
}

// LookupDecl returns the declaration with the given name in the given
// module.
func (w *Workspace) LookupDecl(mod, name string) (*module.Decl, *File, error) {
	f, err := w.ModuleFile(mod)
	if err != nil {
		return nil, nil, err
	}
	d := f.Index.Decl(name)
	if d == nil {
		return nil, nil, errors.Errorf("no declaration %s in module %s", name, mod)
	}
	return d, f, nil
}

// Importers returns the paths of every file importing the given module,
// sorted for determinism.
func (w *Workspace) Importers(mod string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	set := w.importers[mod]
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CtorOwners returns every custom type declaring a variant with the given
// name.
func (w *Workspace) CtorOwners(name string) []CtorOwner {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]CtorOwner, len(w.ctorOwners[name]))
	copy(out, w.ctorOwners[name])
	return out
}

// TypesWithField returns every record alias containing a field with the
// given name, sorted for determinism.
func (w *Workspace) TypesWithField(name string) []TypeRef {
	w.mu.RLock()
	defer w.mu.RUnlock()
	set := w.fieldTypes[name]
	out := make([]TypeRef, 0, len(set))
	for tr := range set {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Files returns every file entry sorted by path.
func (w *Workspace) Files() []*File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*File, 0, len(w.files))
	for _, f := range w.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// SourceRootFor returns the source root containing the given path.
func (w *Workspace) SourceRootFor(path string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sourceRootFor(path)
}

func (w *Workspace) sourceRootFor(path string) (string, bool) {
	for _, root := range w.srcRoots {
		rel, err := filepath.Rel(root, path)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return root, true
		}
	}
	return "", false
}
