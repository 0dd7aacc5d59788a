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

package storage

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"pagefs/internal/util"
)

// BackingFile is one host file holding virtual entries as pages. It owns
// the host file handle exclusively and tracks the current size so append
// offsets stay consistent under concurrency.
//
// Two locks with distinct roles:
//   - the internal op lock serializes individual ReadAt/WriteAt calls and
//     the size they observe;
//   - the chain lock (Lock/Unlock) is held by callers across multi-step
//     page mutations (record append, chained writes) so the chain and the
//     size cannot move under them. It is always acquired before any op,
//     never the other way around.
type BackingFile struct {
	path string
	f    *os.File
	lk   *flock.Flock

	mu   sync.Mutex // op lock
	size int64

	chainMu sync.Mutex
}

// OpenBackingFile opens (creating if absent) a backing file and takes an
// advisory cross-process lock on it. Acquisition is retried briefly; a
// peer process holding the lock fails the open.
func OpenBackingFile(path string) (*BackingFile, error) {
	ctx := context.Background()

	f, err := util.RetryWithResult(func() (*os.File, error) {
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	}, util.OpenRetryOptions(ctx)...)
	if err != nil {
		return nil, fmt.Errorf("open backing file %s: %w", path, err)
	}

	lk := flock.New(path + ".lock")
	err = util.Retry(func() error {
		ok, err := lk.TryLock()
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrLockHeld
		}
		return nil
	}, util.LockRetryOptions(ctx)...)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("lock backing file %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		lk.Unlock()
		f.Close()
		return nil, fmt.Errorf("stat backing file %s: %w", path, err)
	}

	log.Debugf("[Backing] opened %s size=%d", path, info.Size())
	return &BackingFile{path: path, f: f, lk: lk, size: info.Size()}, nil
}

// ReadAt reads up to len(p) bytes at off. Reads past the current size
// return 0; reads crossing it are clamped.
func (b *BackingFile) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if off >= b.size {
		return 0, nil
	}
	n := int64(len(p))
	if off+n > b.size {
		n = b.size - off
	}
	read, err := b.f.ReadAt(p[:n], off)
	if err != nil {
		return read, fmt.Errorf("read %s at %d: %w", b.path, off, err)
	}
	return read, nil
}

// WriteAt writes len(p) bytes at off, extending the file when the write
// crosses the current end. Writes starting past the end return 0: pages
// are only ever appended contiguously.
func (b *BackingFile) WriteAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if off > b.size {
		return 0, nil
	}
	n, err := b.f.WriteAt(p, off)
	if off+int64(n) > b.size {
		b.size = off + int64(n)
	}
	if err != nil {
		return n, fmt.Errorf("write %s at %d: %w", b.path, off, err)
	}
	return n, nil
}

// Append writes p at the current end of the file.
func (b *BackingFile) Append(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n, err := b.f.WriteAt(p, b.size)
	b.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("append to %s: %w", b.path, err)
	}
	return n, nil
}

// Size returns the current size of the backing file.
func (b *BackingFile) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Path returns the host path of the backing file.
func (b *BackingFile) Path() string {
	return b.path
}

// Lock acquires the chain lock for a multi-step page mutation.
func (b *BackingFile) Lock() {
	b.chainMu.Lock()
}

// Unlock releases the chain lock.
func (b *BackingFile) Unlock() {
	b.chainMu.Unlock()
}

// Close releases the advisory lock and closes the host file.
func (b *BackingFile) Close() error {
	if err := b.lk.Unlock(); err != nil {
		log.Warnf("[Backing] unlock %s: %v", b.path, err)
	}
	return b.f.Close()
}
