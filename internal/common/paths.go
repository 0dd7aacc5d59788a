// Copyright 2025 PageFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"path"
	"strings"
)

// Root is the virtual root directory.
const Root = "/"

// NormalizePath converts a virtual path to absolute, cleaned form.
// Virtual paths are always /-separated regardless of host OS, so this
// uses package path, not path/filepath.
func NormalizePath(name string) string {
	if name == "" {
		return Root
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return path.Clean(name)
}

// ParentPath returns the parent directory of a virtual path.
// The parent of the root is the root.
func ParentPath(name string) string {
	return path.Dir(NormalizePath(name))
}

// IsRoot reports whether the path is the virtual root.
func IsRoot(name string) bool {
	return NormalizePath(name) == Root
}

// BaseName returns the last element of a virtual path.
func BaseName(name string) string {
	return path.Base(NormalizePath(name))
}

// SplitPath splits a virtual path into its components.
func SplitPath(name string) []string {
	name = strings.TrimPrefix(NormalizePath(name), "/")
	if name == "" {
		return nil
	}
	return strings.Split(name, "/")
}
