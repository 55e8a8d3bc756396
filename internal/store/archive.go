package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"
)

// ErrNoSnippet means the archive holds nothing for that unit and slot.
var ErrNoSnippet = errors.New("store: snippet not archived")

// Archive keeps raw per-spike snippets in a badger database so individual
// spikes can be pulled back later without re-reading the recording. Values
// are the as-read samples, channel rows in order, little-endian int16,
// behind a four-byte shape header.
type Archive struct {
	db *badger.DB
}

// OpenArchive opens (or creates) the snippet database under dir.
func OpenArchive(dir string) (*Archive, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open snippet archive: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error { return a.db.Close() }

func snippetKey(unit int32, slot int) []byte {
	return []byte(fmt.Sprintf("snip/%08d/%04d", unit, slot))
}

func unitPrefix(unit int32) []byte {
	return []byte(fmt.Sprintf("snip/%08d/", unit))
}

func encodeSnippet(win [][]int16) []byte {
	channels := len(win)
	width := 0
	if channels > 0 {
		width = len(win[0])
	}
	buf := make([]byte, 4+channels*width*2)
	binary.LittleEndian.PutUint16(buf[0:], uint16(channels))
	binary.LittleEndian.PutUint16(buf[2:], uint16(width))
	off := 4
	for _, row := range win {
		for _, v := range row {
			binary.LittleEndian.PutUint16(buf[off:], uint16(v))
			off += 2
		}
	}
	return buf
}

func decodeSnippet(buf []byte) ([][]int16, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("snippet value truncated: %d bytes", len(buf))
	}
	channels := int(binary.LittleEndian.Uint16(buf[0:]))
	width := int(binary.LittleEndian.Uint16(buf[2:]))
	if len(buf) != 4+channels*width*2 {
		return nil, fmt.Errorf("snippet value is %d bytes, want %d", len(buf), 4+channels*width*2)
	}
	win := make([][]int16, channels)
	off := 4
	for c := range win {
		win[c] = make([]int16, width)
		for t := range win[c] {
			win[c][t] = int16(binary.LittleEndian.Uint16(buf[off:]))
			off += 2
		}
	}
	return win, nil
}

// Batch accumulates snippet writes and lands them in one flush.
type Batch struct {
	wb *badger.WriteBatch
}

func (a *Archive) NewBatch() *Batch {
	return &Batch{wb: a.db.NewWriteBatch()}
}

func (b *Batch) Put(unit int32, slot int, win [][]int16) error {
	return b.wb.Set(snippetKey(unit, slot), encodeSnippet(win))
}

func (b *Batch) Flush() error { return b.wb.Flush() }

func (b *Batch) Cancel() { b.wb.Cancel() }

// Snippet reads one archived snippet back.
func (a *Archive) Snippet(unit int32, slot int) ([][]int16, error) {
	var win [][]int16
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snippetKey(unit, slot))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			win, err = decodeSnippet(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoSnippet
	}
	if err != nil {
		return nil, err
	}
	return win, nil
}

// UnitSnippets counts the archived snippets for one unit.
func (a *Archive) UnitSnippets(unit int32) (int, error) {
	n := 0
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = unitPrefix(unit)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
