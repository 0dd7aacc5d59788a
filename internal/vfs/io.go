package vfs

import (
	"fmt"

	"pagefs/internal/common"
	"pagefs/internal/storage"
)

// Read copies up to len(p) bytes of the virtual file into p, starting at
// the beginning and following the content page chain. The request is
// clamped to the file's length. Returns (0, nil) for a nil handle, an
// empty buffer, or a handle not open for reading.
func (v *VFS) Read(f *File, p []byte) (int, error) {
	if f == nil || len(p) == 0 || f.Status() != StatusRead {
		return 0, nil
	}

	b := v.backings[f.backing]

	want := len(p)
	if uint64(want) > f.dataLen {
		want = int(f.dataLen)
	}
	if want == 0 {
		return 0, nil
	}

	// first page: payload sits after the data-length prefix
	n := want
	if n > storage.FirstPagePayload {
		n = storage.FirstPagePayload
	}
	read, err := b.ReadAt(p[:n], storage.PageOffset(f.page)+storage.Word)
	if err != nil {
		return read, err
	}

	page := f.page
	for read < want {
		next, err := storage.ReadNextPage(b, page)
		if err != nil {
			return read, err
		}
		if next == 0 {
			break
		}
		page = next

		n = want - read
		if n > storage.PagePayload {
			n = storage.PagePayload
		}
		m, err := b.ReadAt(p[read:read+n], storage.PageOffset(page))
		read += m
		if err != nil {
			return read, err
		}
	}

	return read, nil
}

// Write appends p to the virtual file's current tail, allocating and
// chaining fresh pages as needed, then persists the updated length on
// the first page. Returns (0, nil) for a nil handle, an empty buffer,
// or a handle not open for writing.
func (v *VFS) Write(f *File, p []byte) (int, error) {
	if f == nil || len(p) == 0 || f.Status() != StatusWrite {
		return 0, nil
	}

	b := v.backings[f.backing]
	b.Lock()
	defer b.Unlock()

	page, pos, err := v.writePosition(b, f)
	if err != nil {
		return 0, err
	}

	written := 0
	for written < len(p) {
		space := storage.PageSize - storage.Word - pos
		if space == 0 {
			next, err := storage.AllocatePage(b)
			if err != nil {
				return written, err
			}
			if err := storage.WriteNextPage(b, page, next); err != nil {
				return written, err
			}
			page, pos = next, 0
			continue
		}

		n := len(p) - written
		if n > space {
			n = space
		}
		m, err := b.WriteAt(p[written:written+n], storage.PageOffset(page)+int64(pos))
		written += m
		pos += m
		if err != nil {
			return written, err
		}
		if m != n {
			return written, fmt.Errorf("short write to page %d of %s: %w", page, b.Path(), common.ErrFileWrite)
		}
	}

	f.dataLen += uint64(written)
	if err := storage.WriteDataLength(b, f.page, f.dataLen); err != nil {
		return written, err
	}
	return written, nil
}

// writePosition locates the file's tail: the chain page holding the byte
// at dataLen and the in-page offset where the next byte lands. The first
// page carries the length prefix, so its payload is Word bytes shorter
// than the rest of the chain's.
func (v *VFS) writePosition(b *storage.BackingFile, f *File) (uint64, int, error) {
	if f.dataLen <= storage.FirstPagePayload {
		return f.page, storage.Word + int(f.dataLen), nil
	}

	rem := f.dataLen - storage.FirstPagePayload
	page := f.page
	for {
		next, err := storage.ReadNextPage(b, page)
		if err != nil {
			return 0, 0, err
		}
		if next == 0 {
			return 0, 0, fmt.Errorf("chain of %s ends before offset %d: %w", f.name, f.dataLen, common.ErrFileRead)
		}
		page = next
		if rem <= storage.PagePayload {
			return page, int(rem), nil
		}
		rem -= storage.PagePayload
	}
}
