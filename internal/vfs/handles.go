package vfs

import (
	"fmt"
	"sync"
	"sync/atomic"

	"pagefs/internal/common"
)

// Status is the open mode of a virtual file handle.
type Status int32

const (
	// StatusClosed marks a handle no longer usable.
	StatusClosed Status = iota
	// StatusRead marks a handle opened for reading; many may coexist.
	StatusRead
	// StatusWrite marks the single writer handle for a path.
	StatusWrite
)

// File is the in-memory handle for an open virtual file. Handles are
// shared: every Open of the same path returns the same *File with its
// reader count bumped. Callers must not use a handle after Close.
type File struct {
	backing string // host path of the backing file
	name    string // absolute virtual path
	page    uint64 // first content page
	dataLen uint64 // cached byte count; mutated only under the chain lock

	status  atomic.Int32
	readers atomic.Int64
}

func newFile(backing, name string, page uint64) *File {
	return &File{backing: backing, name: name, page: page}
}

// Path returns the absolute virtual path of the handle.
func (f *File) Path() string {
	return f.name
}

// Len returns the current byte count of the virtual file.
func (f *File) Len() uint64 {
	return f.dataLen
}

// Readers returns the current reader count.
func (f *File) Readers() int64 {
	return f.readers.Load()
}

// Status returns the handle's open mode.
func (f *File) Status() Status {
	return Status(f.status.Load())
}

func (f *File) setStatus(s Status) {
	f.status.Store(int32(s))
}

// dirEntry locates a virtual directory: the backing file that holds it
// and its first directory page. Entries are insert-only and live for the
// lifetime of the VFS.
type dirEntry struct {
	backing string
	page    uint64
}

// index holds the in-memory mappings from virtual paths to open file
// handles and known directories. Each map has its own lock; the global
// edit lock makes lookup+insert sequences atomic for callers.
type index struct {
	filesMu sync.Mutex
	files   map[string]*File

	dirsMu sync.Mutex
	dirs   map[string]dirEntry
}

func newIndex() *index {
	return &index{
		files: make(map[string]*File),
		dirs:  make(map[string]dirEntry),
	}
}

func (ix *index) file(name string) (*File, bool) {
	ix.filesMu.Lock()
	defer ix.filesMu.Unlock()
	f, ok := ix.files[name]
	return f, ok
}

// insertFile registers an open handle. A second insert of the same path
// fails: at most one handle object exists per path.
func (ix *index) insertFile(f *File) error {
	ix.filesMu.Lock()
	defer ix.filesMu.Unlock()
	if _, ok := ix.files[f.name]; ok {
		return fmt.Errorf("open handle for %s: %w", f.name, common.ErrFileExists)
	}
	ix.files[f.name] = f
	return nil
}

func (ix *index) removeFile(name string) {
	ix.filesMu.Lock()
	defer ix.filesMu.Unlock()
	delete(ix.files, name)
}

func (ix *index) dir(name string) (dirEntry, bool) {
	ix.dirsMu.Lock()
	defer ix.dirsMu.Unlock()
	de, ok := ix.dirs[name]
	return de, ok
}

// insertDir registers a directory location. Directory names are unique
// across all backing files; a duplicate insert fails.
func (ix *index) insertDir(name string, page uint64, backing string) error {
	ix.dirsMu.Lock()
	defer ix.dirsMu.Unlock()
	if _, ok := ix.dirs[name]; ok {
		return fmt.Errorf("directory %s: %w", name, common.ErrDirExists)
	}
	ix.dirs[name] = dirEntry{backing: backing, page: page}
	return nil
}
