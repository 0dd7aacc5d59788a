package storage

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"pagefs/internal/common"
)

// Walker traverses and extends directory page chains inside one backing
// file. It is a thin stateless view; concurrent use follows the backing
// file's locking rules (Resolve needs no chain lock, AppendRecord does).
type Walker struct {
	b *BackingFile
}

// NewWalker returns a walker over b.
func NewWalker(b *BackingFile) Walker {
	return Walker{b: b}
}

// Resolve searches the chain starting at page start for a metadata record
// with the given full-path name and kind. Returns the entry's first page
// index and whether it was found.
func (w Walker) Resolve(start uint64, name string, kind byte) (uint64, bool, error) {
	page := start
	for {
		buf, err := ReadPage(w.b, page)
		if err != nil {
			return 0, false, err
		}
		if pos := FindRecord(buf, name, kind); pos >= 0 {
			rec, _ := DecodeRecord(buf, pos)
			log.Tracef("[Walker] resolve %q kind=%#x in %s: page=%d", name, kind, w.b.Path(), rec.Page)
			return rec.Page, true, nil
		}
		next := NextPage(buf)
		if next == 0 {
			return 0, false, nil
		}
		page = next
	}
}

// Tail follows the chain starting at start to its last page and returns
// that page's index and contents.
func (w Walker) Tail(start uint64) (uint64, []byte, error) {
	page := start
	for {
		buf, err := ReadPage(w.b, page)
		if err != nil {
			return 0, nil, err
		}
		next := NextPage(buf)
		if next == 0 {
			return page, buf, nil
		}
		page = next
	}
}

// AppendRecord allocates the first page for a new entry and appends its
// metadata record to the directory chain rooted at dirPage. If the record
// does not fit before the tail page's link, a fresh directory page is
// chained and the record starts there. Returns the new entry's page index.
//
// The caller must hold the backing file's chain lock.
func (w Walker) AppendRecord(dirPage uint64, kind byte, name string) (uint64, error) {
	if recordSize(name) > PageSize-Word {
		return 0, fmt.Errorf("record for %q exceeds one page: %w", name, common.ErrFileWrite)
	}

	target, err := AllocatePage(w.b)
	if err != nil {
		return 0, err
	}

	tail, buf, err := w.Tail(dirPage)
	if err != nil {
		return 0, err
	}

	rec := EncodeRecord(kind, name, target)
	end := RecordEnd(buf)

	if len(rec) <= PageSize-end-Word {
		if err := writeExact(w.b, rec, PageOffset(tail)+int64(end)); err != nil {
			return 0, err
		}
		log.Tracef("[Walker] append %q kind=%#x at page=%d pos=%d target=%d", name, kind, tail, end, target)
		return target, nil
	}

	chained, err := AllocatePage(w.b)
	if err != nil {
		return 0, err
	}
	if err := WriteNextPage(w.b, tail, chained); err != nil {
		return 0, err
	}
	if err := writeExact(w.b, rec, PageOffset(chained)); err != nil {
		return 0, err
	}
	log.Tracef("[Walker] append %q kind=%#x chained page=%d target=%d", name, kind, chained, target)
	return target, nil
}
