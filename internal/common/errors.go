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

import "errors"

var (
	ErrNoFiles          = errors.New("no backing files")
	ErrTooManyFiles     = errors.New("too many backing files")
	ErrRootNotDirectory = errors.New("root is not a directory")
	ErrRootDoesNotExist = errors.New("root does not exist")
	ErrFileExists       = errors.New("file already exists")
	ErrDirExists        = errors.New("directory already exists")
	ErrFileRead         = errors.New("file reading error")
	ErrFileWrite        = errors.New("file writing error")
)
