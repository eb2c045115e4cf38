package gps

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// LineSource yields raw receiver lines without blocking.
type LineSource interface {
	// Poll returns the next pending line, or false when none is available now.
	Poll() ([]byte, bool)
	// Close releases the underlying device.
	Close() error
}

// ReaderSource splits a byte stream into lines on a background goroutine
// and hands them out through Poll.
type ReaderSource struct {
	r     io.ReadCloser
	lines chan []byte

	closeOnce sync.Once
}

// Compile-time check that ReaderSource implements LineSource.
var _ LineSource = (*ReaderSource)(nil)

// NewReaderSource starts reading lines from r. When buffer lines are already
// pending, new lines are dropped until the loop catches up.
func NewReaderSource(r io.ReadCloser, buffer int) *ReaderSource {
	if buffer <= 0 {
		buffer = 32
	}
	s := &ReaderSource{r: r, lines: make(chan []byte, buffer)}
	go s.readLoop()
	return s
}

func (s *ReaderSource) readLoop() {
	defer close(s.lines)
	br := bufio.NewReader(s.r)
	for {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimRight(line, "\r\n"); len(line) > 0 {
			select {
			case s.lines <- line:
			default:
				slog.Warn("[GPS] line buffer full, dropping sentence")
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				slog.Error("[GPS] read error", "error", err)
			}
			return
		}
	}
}

func (s *ReaderSource) Poll() ([]byte, bool) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			return nil, false
		}
		return line, true
	default:
		return nil, false
	}
}

func (s *ReaderSource) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.r.Close() })
	return err
}
