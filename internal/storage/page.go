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

// Package storage implements the on-disk layer of pagefs: byte-addressable
// backing files, the fixed-size page format with chained pages, and the
// directory-record codec.
//
// Layout of one backing file:
//
//	[file count : 8][page 0][page 1]...
//
// Every page is exactly PageSize bytes; its last Word bytes hold the index
// of the next page in the chain (0 = end of chain). Page 0 is the root
// directory. All integers are uint64 little-endian.
package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"pagefs/internal/common"
)

const (
	// PageSize is the size of one page in bytes.
	PageSize = 4096

	// Word is the width of on-disk counts, lengths and page indexes.
	Word = 8

	// headerSize is the backing file header: the count of virtual files
	// stored in the file. Pages start right after it.
	headerSize = Word

	// FirstPagePayload is the usable payload of a virtual file's first
	// page (it carries the data-length prefix and the next-page link).
	FirstPagePayload = PageSize - 2*Word

	// PagePayload is the usable payload of every later content page.
	PagePayload = PageSize - Word
)

// Record kinds stored in the type byte of a directory record.
const (
	KindDir  byte = 0b00000111
	KindFile byte = 0b01110000
)

// Record is a decoded directory metadata record:
// [kind:1][name_len:8][name][page:8]. Name is the full absolute virtual
// path of the entry, stored verbatim. Page is the index of the entry's
// first page. A zero Kind is the end-of-records sentinel.
type Record struct {
	Kind byte
	Name string
	Page uint64
}

// recordSize returns the encoded size of a record with the given name.
func recordSize(name string) int {
	return 1 + Word + len(name) + Word
}

// PageOffset returns the absolute offset of page idx within a backing file.
func PageOffset(idx uint64) int64 {
	return headerSize + int64(idx)*PageSize
}

// NextPage reads the chain link from a page buffer.
func NextPage(page []byte) uint64 {
	return binary.LittleEndian.Uint64(page[PageSize-Word:])
}

// DataLength reads the data-length prefix from a content page buffer.
func DataLength(page []byte) uint64 {
	return binary.LittleEndian.Uint64(page[:Word])
}

// DecodeRecord decodes the record starting at pos. For the zero-kind
// sentinel it returns a zero Record and next position 0. A record whose
// stated extent runs past the page is treated as the sentinel: records
// never straddle pages.
func DecodeRecord(page []byte, pos int) (Record, int) {
	kind := page[pos]
	if kind == 0 || pos+1+Word > len(page) {
		return Record{}, 0
	}
	nameLen := int(binary.LittleEndian.Uint64(page[pos+1:]))
	nameStart := pos + 1 + Word
	if nameLen < 0 || nameStart+nameLen+Word > len(page) {
		return Record{}, 0
	}
	name := string(page[nameStart : nameStart+nameLen])
	pageIdx := binary.LittleEndian.Uint64(page[nameStart+nameLen:])
	return Record{Kind: kind, Name: name, Page: pageIdx}, nameStart + nameLen + Word
}

// EncodeRecord packs a metadata record.
func EncodeRecord(kind byte, name string, pageIdx uint64) []byte {
	rec := make([]byte, recordSize(name))
	rec[0] = kind
	binary.LittleEndian.PutUint64(rec[1:], uint64(len(name)))
	copy(rec[1+Word:], name)
	binary.LittleEndian.PutUint64(rec[1+Word+len(name):], pageIdx)
	return rec
}

// FindRecord scans a page buffer for an exact [kind][name_len][name]
// prefix and returns its position, or -1 if the page holds no such record.
func FindRecord(page []byte, name string, kind byte) int {
	prefix := make([]byte, 1+Word+len(name))
	prefix[0] = kind
	binary.LittleEndian.PutUint64(prefix[1:], uint64(len(name)))
	copy(prefix[1+Word:], name)
	return bytes.Index(page, prefix)
}

// RecordEnd returns the first position at which a new record may be
// appended: the position of the first zero type byte, bounded by the
// start of the next-page link.
func RecordEnd(page []byte) int {
	pos := 0
	for pos < PageSize-Word && page[pos] != 0 {
		if pos+1+Word > len(page) {
			return PageSize - Word
		}
		nameLen := int(binary.LittleEndian.Uint64(page[pos+1:]))
		pos += 1 + Word + nameLen + Word
	}
	if pos > PageSize-Word {
		return PageSize - Word
	}
	return pos
}

// ReadPage reads page idx from a backing file in full.
func ReadPage(b *BackingFile, idx uint64) ([]byte, error) {
	buf := make([]byte, PageSize)
	n, err := b.ReadAt(buf, PageOffset(idx))
	if err != nil {
		return nil, err
	}
	if n != PageSize {
		return nil, fmt.Errorf("short read of page %d in %s: %w", idx, b.Path(), common.ErrFileRead)
	}
	return buf, nil
}

// WriteNextPage sets the chain link of page idx.
func WriteNextPage(b *BackingFile, idx, next uint64) error {
	var buf [Word]byte
	binary.LittleEndian.PutUint64(buf[:], next)
	return writeExact(b, buf[:], PageOffset(idx)+PageSize-Word)
}

// ReadNextPage reads the chain link of page idx without loading the page.
func ReadNextPage(b *BackingFile, idx uint64) (uint64, error) {
	var buf [Word]byte
	n, err := b.ReadAt(buf[:], PageOffset(idx)+PageSize-Word)
	if err != nil {
		return 0, err
	}
	if n != Word {
		return 0, fmt.Errorf("short read of page %d link in %s: %w", idx, b.Path(), common.ErrFileRead)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteDataLength sets the data-length prefix of content page idx.
func WriteDataLength(b *BackingFile, idx, length uint64) error {
	var buf [Word]byte
	binary.LittleEndian.PutUint64(buf[:], length)
	return writeExact(b, buf[:], PageOffset(idx))
}

// ReadFileCount reads the backing file header: the number of virtual
// files stored in it.
func ReadFileCount(b *BackingFile) (uint64, error) {
	var buf [Word]byte
	n, err := b.ReadAt(buf[:], 0)
	if err != nil {
		return 0, err
	}
	if n != Word {
		return 0, fmt.Errorf("short read of file header in %s: %w", b.Path(), common.ErrFileRead)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// IncrementFileCount bumps the backing file header by one.
func IncrementFileCount(b *BackingFile) error {
	count, err := ReadFileCount(b)
	if err != nil {
		return err
	}
	var buf [Word]byte
	binary.LittleEndian.PutUint64(buf[:], count+1)
	return writeExact(b, buf[:], 0)
}

func writeExact(b *BackingFile, p []byte, off int64) error {
	n, err := b.WriteAt(p, off)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("short write at %d in %s: %w", off, b.Path(), common.ErrFileWrite)
	}
	return nil
}
