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

// Package elm holds the scalar types shared by the Elm language core: spans,
// module names and identifier classification.
package elm

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
)

const (
	// Ext is the Elm source file extension.
	Ext = ".elm"

	errNotElmFile      = "path does not have the .elm extension"
	errNotUnderSrcRoot = "path is not under any source root"
	errEmptyModuleName = "module name has no segments"
	errSegmentNotUpper = "module name segment is not capitalized"
)

// A Point is a zero-based row/column position within a source buffer. Column
// counts bytes on the row, matching the concrete syntax tree's coordinates.
type Point struct {
	Row    uint32
	Column uint32
}

// Before reports whether p is strictly before o.
func (p Point) Before(o Point) bool {
	return p.Row < o.Row || (p.Row == o.Row && p.Column < o.Column)
}

// A Span is a half-open byte interval [Start, End) within a single source
// buffer, carrying the equivalent row/column points for position mapping.
type Span struct {
	Start      uint32
	End        uint32
	StartPoint Point
	EndPoint   Point
}

// Contains reports whether the byte offset lies within the span.
func (s Span) Contains(off uint32) bool {
	return off >= s.Start && off < s.End
}

// ContainsPoint reports whether the point lies within the span.
func (s Span) ContainsPoint(p Point) bool {
	if p.Before(s.StartPoint) {
		return false
	}
	return p.Before(s.EndPoint)
}

// Len returns the span's length in bytes.
func (s Span) Len() uint32 {
	return s.End - s.Start
}

// Empty reports whether the span covers no bytes.
func (s Span) Empty() bool {
	return s.End <= s.Start
}

// ModuleFromPath derives the canonical module name for an Elm source file
// relative to the given source root, e.g. src/Foo/Bar.elm -> Foo.Bar.
func ModuleFromPath(root, path string) (string, error) {
	if filepath.Ext(path) != Ext {
		return "", errors.New(errNotElmFile)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.New(errNotUnderSrcRoot)
	}
	rel = strings.TrimSuffix(rel, Ext)
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for _, s := range segments {
		if !IsUpperIdent(s) {
			return "", errors.New(errSegmentNotUpper)
		}
	}
	return strings.Join(segments, "."), nil
}

// PathFromModule is the inverse of ModuleFromPath: it maps a canonical module
// name to the file path it must live at under the given source root.
func PathFromModule(root, name string) (string, error) {
	segments := strings.Split(name, ".")
	if len(segments) == 0 || segments[0] == "" {
		return "", errors.New(errEmptyModuleName)
	}
	for _, s := range segments {
		if !IsUpperIdent(s) {
			return "", errors.New(errSegmentNotUpper)
		}
	}
	return filepath.Join(append([]string{root}, segments...)...) + Ext, nil
}

// IsUpperIdent reports whether s is a valid capitalized Elm identifier, the
// form required of type, variant and module name segments.
func IsUpperIdent(s string) bool {
	return isIdent(s, unicode.IsUpper)
}

// IsLowerIdent reports whether s is a valid lowercase Elm identifier, the
// form required of value and record field names.
func IsLowerIdent(s string) bool {
	return isIdent(s, unicode.IsLower)
}

func isIdent(s string, first func(rune) bool) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !first(r) {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// IsValidModuleName reports whether s is a dot-separated sequence of
// capitalized identifiers.
func IsValidModuleName(s string) bool {
	segments := strings.Split(s, ".")
	for _, seg := range segments {
		if !IsUpperIdent(seg) {
			return false
		}
	}
	return len(segments) > 0
}

// SplitQualified splits a possibly-qualified reference such as Json.Decode.map
// into its module qualifier and final identifier. References without a
// qualifier return an empty qualifier.
func SplitQualified(s string) (qualifier, name string) {
	i := strings.LastIndex(s, ".")
	if i < 0 {
		return "", s
	}
	return s[:i], s[i+1:]
}
