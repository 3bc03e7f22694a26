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

package workspace

import (
	"encoding/json"
	"path/filepath"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/spf13/afero"
)

const (
	// ManifestFile is the Elm project manifest marking a workspace root.
	ManifestFile = "elm.json"

	errNotInWorkspace = "no elm.json manifest found in any parent directory"
	errReadManifest   = "failed to read elm.json"
	errDecodeManifest = "failed to decode elm.json"
)

// A Manifest is the subset of elm.json the index needs: the project kind and
// its source directories.
type Manifest struct {
	Type       string   `json:"type"`
	SourceDirs []string `json:"source-directories"`
}

// FindRoot walks upward from start looking for the directory containing an
// elm.json manifest. It returns errNotInWorkspace when no parent carries one.
func FindRoot(fs afero.Fs, start string) (string, error) {
	dir := filepath.Clean(start)
	for {
		ok, err := afero.Exists(fs, filepath.Join(dir, ManifestFile))
		if err != nil {
			return "", err
		}
		if ok {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errNotInWorkspace)
		}
		dir = parent
	}
}

// LoadManifest reads and decodes the manifest in the given workspace root.
func LoadManifest(fs afero.Fs, root string) (*Manifest, error) {
	b, err := afero.ReadFile(fs, filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, errors.Wrap(err, errReadManifest)
	}
	m := &Manifest{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, errors.Wrap(err, errDecodeManifest)
	}
	return m, nil
}

// SourceRoots resolves the manifest's source directories against the
// workspace root. Package projects and manifests without the field default
// to src.
func (m *Manifest) SourceRoots(root string) []string {
	dirs := m.SourceDirs
	if len(dirs) == 0 {
		dirs = []string{"src"}
	}
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if filepath.IsAbs(d) {
			out = append(out, filepath.Clean(d))
			continue
		}
		out = append(out, filepath.Join(root, d))
	}
	return out
}
