package vfs

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagefs/internal/common"
	"pagefs/internal/storage"
)

var testBackingNames = []string{"1.vfs", "2.vfs", "3.vfs", "4.vfs", "5.vfs"}

// testVFS constructs a VFS over five backing files in a temp root.
func testVFS(t *testing.T) *VFS {
	t.Helper()
	v, err := New(testBackingNames, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { v.Shutdown() })
	return v
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("no files", func(t *testing.T) {
		t.Parallel()
		_, err := New(nil, t.TempDir())
		assert.ErrorIs(t, err, common.ErrNoFiles)
	})

	t.Run("too many files", func(t *testing.T) {
		t.Parallel()
		files := []string{"1.vfs", "2.vfs", "3.vfs", "4.vfs", "5.vfs", "6.vfs"}
		_, err := New(files, t.TempDir())
		assert.ErrorIs(t, err, common.ErrTooManyFiles)
	})

	t.Run("duplicate host path", func(t *testing.T) {
		t.Parallel()
		_, err := New([]string{"a.vfs", "a.vfs"}, t.TempDir())
		assert.ErrorIs(t, err, common.ErrFileExists)
	})

	t.Run("root is a regular file", func(t *testing.T) {
		t.Parallel()
		root := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(root, []byte("x"), 0644))

		_, err := New([]string{"a.vfs"}, root)
		assert.ErrorIs(t, err, common.ErrRootNotDirectory)
	})

	t.Run("creates missing root and lays out empty files", func(t *testing.T) {
		t.Parallel()
		root := filepath.Join(t.TempDir(), "deep", "root")

		v, err := New(testBackingNames, root)
		require.NoError(t, err)
		defer v.Shutdown()

		for _, info := range v.BackingFiles() {
			// header plus the empty root directory page
			assert.Equal(t, int64(storage.Word+storage.PageSize), info.Size)
		}
		assert.Equal(t, uint64(0), v.NumFiles())
	})
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	f, err := v.Create("/new_dir/new_file")
	require.NoError(t, err)
	require.NotNil(t, f)

	n, err := v.Write(f, []byte("Hello world!"))
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	v.Close(f)

	f, err = v.Open("/new_dir/new_file")
	require.NoError(t, err)
	require.NotNil(t, f)
	defer v.Close(f)

	out := make([]byte, 12)
	n, err = v.Read(f, out)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, "Hello world!", string(out))
}

func TestCreateRejectsSecondHandle(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	f, err := v.Create("/x/y")
	require.NoError(t, err)
	require.NotNil(t, f)
	defer v.Close(f)

	second, err := v.Create("/x/y")
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestWriterExcludesReaders(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	w, err := v.Create("/w/file")
	require.NoError(t, err)
	require.NotNil(t, w)

	r, err := v.Open("/w/file")
	require.NoError(t, err)
	assert.Nil(t, r)

	v.Close(w)

	r, err = v.Open("/w/file")
	require.NoError(t, err)
	require.NotNil(t, r)
	v.Close(r)
}

func TestReaderExcludesWriter(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	w, err := v.Create("/r/file")
	require.NoError(t, err)
	_, err = v.Write(w, []byte("data"))
	require.NoError(t, err)
	v.Close(w)

	r, err := v.Open("/r/file")
	require.NoError(t, err)
	require.NotNil(t, r)
	defer v.Close(r)

	blocked, err := v.Create("/r/file")
	require.NoError(t, err)
	assert.Nil(t, blocked)
}

func TestMultipleReaders(t *testing.T) {
	t.Parallel()

	v := testVFS(t)
	data := []byte("shared content")

	w, err := v.Create("/shared/f")
	require.NoError(t, err)
	_, err = v.Write(w, data)
	require.NoError(t, err)
	v.Close(w)

	r1, err := v.Open("/shared/f")
	require.NoError(t, err)
	require.NotNil(t, r1)
	r2, err := v.Open("/shared/f")
	require.NoError(t, err)
	require.NotNil(t, r2)

	// readers share one handle
	assert.Same(t, r1, r2)
	assert.Equal(t, int64(2), r1.Readers())

	for _, r := range []*File{r1, r2} {
		out := make([]byte, len(data))
		n, err := v.Read(r, out)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
		assert.Equal(t, data, out)
	}

	v.Close(r1)
	// still open for the second reader
	_, ok := v.idx.file("/shared/f")
	assert.True(t, ok)

	v.Close(r2)
	_, ok = v.idx.file("/shared/f")
	assert.False(t, ok)
}

func TestRootPathsRejected(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	for _, name := range []string{"/", "", "/toplevel"} {
		f, err := v.Create(name)
		require.NoError(t, err)
		assert.Nil(t, f, "Create(%q) must be rejected", name)

		f, err = v.Open(name)
		require.NoError(t, err)
		assert.Nil(t, f, "Open(%q) must be rejected", name)
	}
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	f, err := v.Open("/no/such/file")
	require.NoError(t, err)
	assert.Nil(t, f)

	// existing dir, missing file
	w, err := v.Create("/d/present")
	require.NoError(t, err)
	v.Close(w)

	f, err = v.Open("/d/absent")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestRelativePathsAreRooted(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	w, err := v.Create("rel/file")
	require.NoError(t, err)
	require.NotNil(t, w)
	_, err = v.Write(w, []byte("abc"))
	require.NoError(t, err)
	v.Close(w)

	r, err := v.Open("/rel/file")
	require.NoError(t, err)
	require.NotNil(t, r)
	v.Close(r)
}

func TestExactlyOnePagePayload(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	f, err := v.Create("/d1/f")
	require.NoError(t, err)
	require.NotNil(t, f)

	var sizeAfterCreate int64
	for _, info := range v.BackingFiles() {
		sizeAfterCreate += info.Size
	}

	payload := make([]byte, storage.FirstPagePayload)
	n, err := v.Write(f, payload)
	require.NoError(t, err)
	assert.Equal(t, storage.FirstPagePayload, n)
	v.Close(f)

	// the write fit the already-allocated first page
	var sizeAfterWrite int64
	for _, info := range v.BackingFiles() {
		sizeAfterWrite += info.Size
	}
	assert.Equal(t, sizeAfterCreate, sizeAfterWrite)
}

func TestOneByteOverOnePage(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	data := make([]byte, storage.FirstPagePayload+1)
	for i := range data {
		data[i] = byte(i % 251)
	}

	f, err := v.Create("/d1/g")
	require.NoError(t, err)

	var sizeBefore int64
	for _, info := range v.BackingFiles() {
		sizeBefore += info.Size
	}

	n, err := v.Write(f, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	v.Close(f)

	// the overflow byte chained a second page
	var sizeAfter int64
	for _, info := range v.BackingFiles() {
		sizeAfter += info.Size
	}
	assert.Equal(t, sizeBefore+storage.PageSize, sizeAfter)

	r, err := v.Open("/d1/g")
	require.NoError(t, err)
	require.NotNil(t, r)
	defer v.Close(r)

	out := make([]byte, len(data))
	n, err = v.Read(r, out)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.True(t, bytes.Equal(data, out))
}

func TestManyPagesStayOrdered(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	data := make([]byte, 5*storage.PageSize)
	for i := range data {
		data[i] = byte(i * 7 % 256)
	}

	f, err := v.Create("/big/blob")
	require.NoError(t, err)

	// several writes, uneven sizes, crossing page boundaries
	sizes := []int{100, storage.FirstPagePayload, 1, storage.PagePayload * 2}
	prev := 0
	for _, size := range sizes {
		n, err := v.Write(f, data[prev:prev+size])
		require.NoError(t, err)
		require.Equal(t, size, n)
		prev += size
	}
	n, err := v.Write(f, data[prev:])
	require.NoError(t, err)
	require.Equal(t, len(data)-prev, n)
	v.Close(f)

	r, err := v.Open("/big/blob")
	require.NoError(t, err)
	require.NotNil(t, r)
	defer v.Close(r)
	assert.Equal(t, uint64(len(data)), r.Len())

	out := make([]byte, len(data))
	n, err = v.Read(r, out)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	assert.True(t, bytes.Equal(data, out))
}

func TestReadClampsToLength(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	w, err := v.Create("/c/f")
	require.NoError(t, err)
	_, err = v.Write(w, []byte("short"))
	require.NoError(t, err)
	v.Close(w)

	r, err := v.Open("/c/f")
	require.NoError(t, err)
	defer v.Close(r)

	out := make([]byte, 100)
	n, err := v.Read(r, out)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "short", string(out[:5]))
}

func TestContractViolationsReturnZero(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	n, err := v.Read(nil, make([]byte, 8))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = v.Write(nil, []byte("x"))
	require.NoError(t, err)
	assert.Zero(t, n)

	w, err := v.Create("/v/f")
	require.NoError(t, err)

	// wrong mode
	n, err = v.Read(w, make([]byte, 8))
	require.NoError(t, err)
	assert.Zero(t, n)

	// empty buffer
	n, err = v.Write(w, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	v.Close(w)

	r, err := v.Open("/v/f")
	require.NoError(t, err)
	n, err = v.Write(r, []byte("x"))
	require.NoError(t, err)
	assert.Zero(t, n)
	v.Close(r)

	// closing an unknown or nil handle is silent
	v.Close(nil)
	v.Close(r)
}

func TestAppendAcrossHandleGenerations(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	w, err := v.Create("/gen/log")
	require.NoError(t, err)
	_, err = v.Write(w, []byte("first,"))
	require.NoError(t, err)
	v.Close(w)

	// a later Create picks the record back up and appends
	w, err = v.Create("/gen/log")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, uint64(6), w.Len())
	_, err = v.Write(w, []byte("second"))
	require.NoError(t, err)
	v.Close(w)

	r, err := v.Open("/gen/log")
	require.NoError(t, err)
	defer v.Close(r)

	out := make([]byte, 12)
	n, err := v.Read(r, out)
	require.NoError(t, err)
	assert.Equal(t, "first,second", string(out[:n]))
}

func TestPlacementBalancesTopLevelDirs(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	// grow one backing file well past the others
	w, err := v.Create("/heavy/blob")
	require.NoError(t, err)
	_, err = v.Write(w, make([]byte, 3*storage.PageSize))
	require.NoError(t, err)
	v.Close(w)

	light, err := v.Create("/light/f")
	require.NoError(t, err)
	defer v.Close(light)

	assert.NotEqual(t, w.backing, light.backing,
		"a new top-level directory must land on a smaller backing file")

	// descendants stay with their directory's backing file
	sibling, err := v.Create("/heavy/other")
	require.NoError(t, err)
	defer v.Close(sibling)
	assert.Equal(t, w.backing, sibling.backing)
}

func TestDeepPathsCreateIntermediateDirs(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	w, err := v.Create("/a/b/c/d/leaf")
	require.NoError(t, err)
	require.NotNil(t, w)
	_, err = v.Write(w, []byte("deep"))
	require.NoError(t, err)
	v.Close(w)

	for _, dir := range []string{"/a", "/a/b", "/a/b/c", "/a/b/c/d"} {
		_, ok := v.idx.dir(dir)
		assert.True(t, ok, "directory %q should be indexed", dir)
	}

	// a sibling under an existing intermediate dir
	s, err := v.Create("/a/b/side")
	require.NoError(t, err)
	require.NotNil(t, s)
	v.Close(s)

	r, err := v.Open("/a/b/c/d/leaf")
	require.NoError(t, err)
	require.NotNil(t, r)
	v.Close(r)
}

func TestBootstrapReload(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	data := []byte("persisted across instances")

	v, err := New(testBackingNames, root)
	require.NoError(t, err)

	w, err := v.Create("/p/q/file")
	require.NoError(t, err)
	_, err = v.Write(w, data)
	require.NoError(t, err)
	v.Close(w)
	require.NoError(t, v.Shutdown())

	// a fresh instance over the same host files
	v2, err := New(testBackingNames, root)
	require.NoError(t, err)
	defer v2.Shutdown()

	assert.Equal(t, uint64(1), v2.NumFiles())

	// top-level dirs are loaded eagerly, the rest lazily
	_, ok := v2.idx.dir("/p")
	assert.True(t, ok)
	_, ok = v2.idx.dir("/p/q")
	assert.False(t, ok)

	r, err := v2.Open("/p/q/file")
	require.NoError(t, err)
	require.NotNil(t, r)
	defer v2.Close(r)

	out := make([]byte, len(data))
	n, err := v2.Read(r, out)
	require.NoError(t, err)
	assert.Equal(t, data, out[:n])
}

func TestFileHeaderCountsFilesOnly(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	v, err := New(testBackingNames, root)
	require.NoError(t, err)

	// two files and several dirs inside one top-level tree
	for _, name := range []string{"/t/one", "/t/sub/two"} {
		w, err := v.Create(name)
		require.NoError(t, err)
		v.Close(w)
	}
	backing := func() string {
		de, ok := v.idx.dir("/t")
		require.True(t, ok)
		return de.backing
	}()
	require.NoError(t, v.Shutdown())

	b, err := storage.OpenBackingFile(backing)
	require.NoError(t, err)
	defer b.Close()

	count, err := storage.ReadFileCount(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	// invariant: size minus header is whole pages
	assert.Zero(t, (b.Size()-storage.Word)%storage.PageSize)
}

func TestDuplicateDirAcrossBackingFilesFailsBootstrap(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	for _, name := range []string{"one.vfs", "two.vfs"} {
		b, err := storage.OpenBackingFile(filepath.Join(root, name))
		require.NoError(t, err)
		require.NoError(t, storage.InitEmpty(b))
		_, err = storage.NewWalker(b).AppendRecord(0, storage.KindDir, "/dup")
		require.NoError(t, err)
		require.NoError(t, storage.IncrementFileCount(b))
		require.NoError(t, b.Close())
	}

	_, err := New([]string{"one.vfs", "two.vfs"}, root)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDirExists)
}

func TestConcurrentCreateAndRead(t *testing.T) {
	t.Parallel()

	v := testVFS(t)

	const workers = 8
	payload := bytes.Repeat([]byte("0123456789"), 600) // > one page

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "/conc/file" + string(rune('a'+i))
			w, err := v.Create(name)
			if err != nil || w == nil {
				errs[i] = err
				return
			}
			if _, err := v.Write(w, payload); err != nil {
				errs[i] = err
				return
			}
			v.Close(w)

			r, err := v.Open(name)
			if err != nil || r == nil {
				errs[i] = err
				return
			}
			defer v.Close(r)
			out := make([]byte, len(payload))
			n, err := v.Read(r, out)
			if err != nil {
				errs[i] = err
				return
			}
			if n != len(payload) || !bytes.Equal(payload, out) {
				errs[i] = common.ErrFileRead
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "worker %d", i)
	}
	assert.Equal(t, uint64(workers), v.NumFiles())
}
