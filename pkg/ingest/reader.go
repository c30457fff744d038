package ingest

import (
	"bufio"
	"bytes"
	"io"
)

const headerPeekSize = 64 * 1024

// headerReader wraps an input stream with enough buffering to sniff the
// first line without consuming it, so the real parser still sees the whole
// stream from byte zero.
type headerReader struct {
	*bufio.Reader
}

func newHeaderReader(r io.Reader) *headerReader {
	return &headerReader{bufio.NewReaderSize(r, headerPeekSize)}
}

// peekLine returns the first line (without consuming it).  Inputs smaller
// than one line are returned whole.
func (h *headerReader) peekLine() (string, error) {
	peek, err := h.Peek(headerPeekSize)
	if len(peek) == 0 {
		if err == nil || err == io.EOF {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	return string(bytes.TrimRight(peek, "\r")), nil
}
