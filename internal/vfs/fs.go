// Package vfs implements a virtual filesystem packed into a bounded set
// of host backing files. Virtual paths resolve through page-chained
// directory records; file content lives in chained content pages. One
// writer or many readers may hold a handle to a given virtual file.
package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pagefs/internal/common"
	"pagefs/internal/storage"
)

// MaxBackingFiles is the maximum number of host files a VFS may be
// bound to.
const MaxBackingFiles = 5

// FS is the virtual filesystem capability.
//
// Open and Create return (nil, nil) when the path cannot be opened in
// the requested mode (missing file, writer in progress, existing
// handle); a non-nil error means host I/O failed mid-operation. Read
// and Write return (0, nil) on contract violations (nil handle, wrong
// mode, empty buffer) and an error only on host I/O failure.
type FS interface {
	Open(name string) (*File, error)
	Create(name string) (*File, error)
	Read(f *File, p []byte) (int, error)
	Write(f *File, p []byte) (int, error)
	Close(f *File)
}

// VFS implements FS over up to MaxBackingFiles backing files.
//
// Lock hierarchy, outermost first: the global edit lock (whole body of
// Open/Create/Close), a backing file's chain lock (multi-step page
// mutations in Create and Write), then the index map locks.
type VFS struct {
	log *log.Entry

	editMu   sync.Mutex
	backings map[string]*storage.BackingFile
	order    []string // deterministic placement among equal-sized files
	idx      *index

	numFiles atomic.Uint64
}

var _ FS = (*VFS)(nil)

// BackingInfo describes one backing file for introspection.
type BackingInfo struct {
	Path string
	Size int64
}

// New builds a VFS over the given host file paths, resolved under root
// when relative. Root is created if absent. Empty backing files are laid
// out with a zero file header and an empty root directory page; existing
// ones are bootstrapped in parallel, loading the directory records of
// their root directory chain (the top-level directories) into the index.
// Deeper directories and file records are discovered lazily at
// Open/Create.
func New(files []string, root string) (*VFS, error) {
	if len(files) == 0 {
		return nil, common.ErrNoFiles
	}
	if len(files) > MaxBackingFiles {
		return nil, common.ErrTooManyFiles
	}

	if info, err := os.Stat(root); os.IsNotExist(err) {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("create root %s: %w", root, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat root %s: %w", root, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root %s: %w", root, common.ErrRootNotDirectory)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	v := &VFS{
		log:      log.WithField("vfs", uuid.NewString()[:8]),
		backings: make(map[string]*storage.BackingFile, len(files)),
		idx:      newIndex(),
	}

	for _, file := range files {
		hostPath := file
		if !filepath.IsAbs(hostPath) {
			hostPath = filepath.Join(absRoot, hostPath)
		}
		if _, dup := v.backings[hostPath]; dup {
			v.closeBackings()
			return nil, fmt.Errorf("backing file %s: %w", hostPath, common.ErrFileExists)
		}
		if err := os.MkdirAll(filepath.Dir(hostPath), 0755); err != nil {
			v.closeBackings()
			return nil, fmt.Errorf("create parent of %s: %w", hostPath, err)
		}

		b, err := storage.OpenBackingFile(hostPath)
		if err != nil {
			v.closeBackings()
			return nil, err
		}
		if b.Size() == 0 {
			if err := storage.InitEmpty(b); err != nil {
				b.Close()
				v.closeBackings()
				return nil, err
			}
		}
		v.backings[hostPath] = b
		v.order = append(v.order, hostPath)
	}

	// Each backing file has its own descriptor and op lock, so the
	// bootstrap walks run in parallel; they meet only in insertDir.
	var g errgroup.Group
	for _, hostPath := range v.order {
		b := v.backings[hostPath]
		g.Go(func() error { return v.bootstrap(b) })
	}
	if err := g.Wait(); err != nil {
		v.closeBackings()
		return nil, err
	}

	v.log.Debugf("[VFS] constructed: backings=%d files=%d dirs=%d",
		len(v.order), v.numFiles.Load(), len(v.idx.dirs))
	return v, nil
}

// bootstrap loads the directory records of one backing file into the
// index by walking the root directory chain from page 0. File records
// are skipped here and resolved lazily.
func (v *VFS) bootstrap(b *storage.BackingFile) error {
	count, err := storage.ReadFileCount(b)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	v.numFiles.Add(count)

	page := uint64(0)
	for {
		buf, err := storage.ReadPage(b, page)
		if err != nil {
			return err
		}

		pos := 0
		for pos < storage.PageSize-storage.Word {
			rec, next := storage.DecodeRecord(buf, pos)
			if rec.Kind == 0 {
				break
			}
			if rec.Kind == storage.KindDir {
				if err := v.idx.insertDir(rec.Name, rec.Page, b.Path()); err != nil {
					return err
				}
			}
			pos = next
		}

		page = storage.NextPage(buf)
		if page == 0 {
			return nil
		}
	}
}

// Open opens a virtual file for reading. Returns (nil, nil) when the
// path does not exist, lies directly under the root, or a writer holds
// it. Every successful Open bumps the shared handle's reader count.
func (v *VFS) Open(name string) (*File, error) {
	p := common.NormalizePath(name)
	if common.IsRoot(p) || common.IsRoot(common.ParentPath(p)) {
		return nil, nil
	}

	v.editMu.Lock()
	defer v.editMu.Unlock()

	if f, ok := v.idx.file(p); ok {
		if f.Status() != StatusRead {
			v.log.Debugf("[VFS] Open %q: writer in progress", p)
			return nil, nil
		}
		f.readers.Add(1)
		v.log.Debugf("[VFS] Open %q: readers=%d", p, f.Readers())
		return f, nil
	}

	parent := common.ParentPath(p)
	missing, err := v.resolveDirs(parent)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, nil
	}

	de, ok := v.idx.dir(parent)
	if !ok {
		return nil, nil
	}
	b := v.backings[de.backing]

	page, found, err := storage.NewWalker(b).Resolve(de.page, p, storage.KindFile)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	buf, err := storage.ReadPage(b, page)
	if err != nil {
		return nil, err
	}

	f := newFile(de.backing, p, page)
	f.dataLen = storage.DataLength(buf)
	f.setStatus(StatusRead)
	f.readers.Store(1)
	if err := v.idx.insertFile(f); err != nil {
		return nil, err
	}
	v.log.Debugf("[VFS] Open %q: page=%d len=%d", p, page, f.dataLen)
	return f, nil
}

// Create opens a virtual file for writing, creating it and any missing
// intermediate directories. Returns (nil, nil) when any handle for the
// path is already open or the path lies directly under the root.
func (v *VFS) Create(name string) (*File, error) {
	p := common.NormalizePath(name)
	if common.IsRoot(p) || common.IsRoot(common.ParentPath(p)) {
		return nil, nil
	}

	v.editMu.Lock()
	defer v.editMu.Unlock()

	if _, ok := v.idx.file(p); ok {
		v.log.Debugf("[VFS] Create %q: handle already open", p)
		return nil, nil
	}

	parent := common.ParentPath(p)
	missing, err := v.resolveDirs(parent)
	if err != nil {
		return nil, err
	}

	// Placement: a path hanging off the root goes to the smallest
	// backing file; otherwise it stays with its deepest existing
	// ancestor.
	var bPath string
	if len(missing) > 0 && common.IsRoot(common.ParentPath(missing[len(missing)-1])) {
		bPath = v.smallestBacking()
	} else {
		anchor := parent
		if len(missing) > 0 {
			anchor = common.ParentPath(missing[len(missing)-1])
		}
		de, ok := v.idx.dir(anchor)
		if !ok {
			return nil, nil
		}
		bPath = de.backing
	}
	b := v.backings[bPath]
	w := storage.NewWalker(b)

	// An earlier writer may have persisted the file and closed; pick
	// its record back up instead of creating a duplicate.
	var page uint64
	fileFound := false
	if len(missing) == 0 {
		de, _ := v.idx.dir(parent)
		page, fileFound, err = w.Resolve(de.page, p, storage.KindFile)
		if err != nil {
			return nil, err
		}
	}

	b.Lock()
	defer b.Unlock()

	// shallowest-first so each directory's parent exists when its
	// record is appended
	for i := len(missing) - 1; i >= 0; i-- {
		dir := missing[i]
		parentPage := uint64(0)
		if dp := common.ParentPath(dir); !common.IsRoot(dp) {
			de, ok := v.idx.dir(dp)
			if !ok {
				return nil, fmt.Errorf("lost parent of %s: %w", dir, common.ErrFileRead)
			}
			parentPage = de.page
		}
		created, err := w.AppendRecord(parentPage, storage.KindDir, dir)
		if err != nil {
			return nil, err
		}
		if err := v.idx.insertDir(dir, created, bPath); err != nil {
			return nil, err
		}
		v.log.Debugf("[VFS] Create: dir %q page=%d backing=%s", dir, created, bPath)
	}

	f := newFile(bPath, p, 0)
	if fileFound {
		buf, err := storage.ReadPage(b, page)
		if err != nil {
			return nil, err
		}
		f.page = page
		f.dataLen = storage.DataLength(buf)
	} else {
		de, ok := v.idx.dir(parent)
		if !ok {
			return nil, fmt.Errorf("lost parent of %s: %w", p, common.ErrFileRead)
		}
		created, err := w.AppendRecord(de.page, storage.KindFile, p)
		if err != nil {
			return nil, err
		}
		if err := storage.IncrementFileCount(b); err != nil {
			return nil, err
		}
		v.numFiles.Add(1)
		f.page = created
	}

	f.setStatus(StatusWrite)
	if err := v.idx.insertFile(f); err != nil {
		return nil, err
	}
	v.log.Debugf("[VFS] Create %q: page=%d len=%d backing=%s", p, f.page, f.dataLen, bPath)
	return f, nil
}

// Close releases a handle. Read handles decrement the shared reader
// count and the entry is dropped when it reaches zero; a write handle
// has no readers and is dropped by its single Close. Unknown handles
// are ignored. On-disk state is untouched: writes land as they happen.
func (v *VFS) Close(f *File) {
	if f == nil {
		return
	}

	v.editMu.Lock()
	defer v.editMu.Unlock()

	if _, ok := v.idx.file(f.name); !ok {
		return
	}
	if f.readers.Load() > 0 {
		if f.readers.Add(-1) > 0 {
			return
		}
	}
	f.setStatus(StatusClosed)
	v.idx.removeFile(f.name)
	v.log.Debugf("[VFS] Close %q", f.name)
}

// resolveDirs walks parent's ancestry through the directory index,
// resolving unknown components from disk where an ancestor is known.
// Returns the still-missing components, deepest first. Top-level
// directories are all loaded at bootstrap, so nothing is resolvable
// from the root itself.
func (v *VFS) resolveDirs(parent string) ([]string, error) {
	var missing []string
	p := parent
	for !common.IsRoot(p) {
		if _, ok := v.idx.dir(p); ok {
			break
		}
		missing = append(missing, p)
		p = common.ParentPath(p)
	}
	if len(missing) == 0 || common.IsRoot(p) {
		return missing, nil
	}

	de, _ := v.idx.dir(p)
	w := storage.NewWalker(v.backings[de.backing])
	page := de.page
	for len(missing) > 0 {
		name := missing[len(missing)-1]
		child, found, err := w.Resolve(page, name, storage.KindDir)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		if err := v.idx.insertDir(name, child, de.backing); err != nil {
			return nil, err
		}
		missing = missing[:len(missing)-1]
		page = child
	}
	return missing, nil
}

// smallestBacking picks the backing file with the smallest host size.
func (v *VFS) smallestBacking() string {
	best := v.order[0]
	bestSize := v.backings[best].Size()
	for _, p := range v.order[1:] {
		if s := v.backings[p].Size(); s < bestSize {
			best, bestSize = p, s
		}
	}
	return best
}

// NumFiles returns the total number of virtual files across all backing
// files.
func (v *VFS) NumFiles() uint64 {
	return v.numFiles.Load()
}

// BackingFiles returns the bound host files and their current sizes, in
// construction order.
func (v *VFS) BackingFiles() []BackingInfo {
	infos := make([]BackingInfo, 0, len(v.order))
	for _, p := range v.order {
		infos = append(infos, BackingInfo{Path: p, Size: v.backings[p].Size()})
	}
	return infos
}

// Shutdown releases the backing files. Outstanding handles become
// invalid; callers are responsible for closing them first.
func (v *VFS) Shutdown() error {
	v.editMu.Lock()
	defer v.editMu.Unlock()
	return v.closeBackings()
}

func (v *VFS) closeBackings() error {
	var firstErr error
	for _, p := range v.order {
		if err := v.backings[p].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
