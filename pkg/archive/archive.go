package archive

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zip"
)

var ErrClosed = errors.New("archive already finalized")

// Builder accumulates thumbnails into one in-memory zip archive. Entries keep
// the order they were added in; repeated names are written again rather than
// replaced.
type Builder struct {
	buf     bytes.Buffer
	zw      *zip.Writer
	entries int
	closed  bool
}

func NewBuilder() *Builder {
	b := &Builder{}
	b.zw = zip.NewWriter(&b.buf)
	return b
}

// Add writes data as a deflated entry called name.
func (b *Builder) Add(name string, data []byte) error {
	if b.closed {
		return ErrClosed
	}

	w, err := b.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}

	b.entries++
	return nil
}

// Entries returns the number of entries written so far.
func (b *Builder) Entries() int {
	return b.entries
}

// Close finalizes the archive and returns its bytes.
func (b *Builder) Close() ([]byte, error) {
	if b.closed {
		return nil, ErrClosed
	}
	b.closed = true

	if err := b.zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return b.buf.Bytes(), nil
}
