// Package trace records the frames exchanged with a receiver as a
// line-oriented text log and reads such logs back.
package trace

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Log format: line-oriented text.
//
// - Blank lines and lines starting with '#' are ignored.
// - Line "START" marks the origin of a capture; times after it restart at 0.
// - Data lines are: <t_ns>,<dir>,<hex>
//   where dir is "tx" (host to receiver) or "rx" (receiver to host).

type Direction uint8

const (
	TX Direction = iota + 1
	RX
)

func (d Direction) String() string {
	switch d {
	case TX:
		return "tx"
	case RX:
		return "rx"
	default:
		return "?"
	}
}

func parseDirection(s string) (Direction, bool) {
	switch s {
	case "tx":
		return TX, true
	case "rx":
		return RX, true
	}
	return 0, false
}

// Record is one logged frame. A Record with a nil Frame is a START marker.
type Record struct {
	At    time.Duration
	Dir   Direction
	Frame []byte
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	// Flash blocks and ALPSRV replies are well under this.
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var recs []Record
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{})
			continue
		}

		fields := strings.SplitN(line, ",", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid trace line (want 3 fields): %q", line)
		}
		tsStr := strings.TrimSpace(fields[0])
		dirStr := strings.TrimSpace(fields[1])
		hexStr := strings.ReplaceAll(strings.TrimSpace(fields[2]), " ", "")
		if tsStr == "" || hexStr == "" {
			return nil, fmt.Errorf("invalid trace line (empty field): %q", line)
		}

		tsNs, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid trace timestamp %q: %w", tsStr, err)
		}
		if tsNs < 0 {
			return nil, fmt.Errorf("invalid trace timestamp (negative): %d", tsNs)
		}
		dir, ok := parseDirection(dirStr)
		if !ok {
			return nil, fmt.Errorf("invalid trace direction %q", dirStr)
		}
		b, err := hex.DecodeString(hexStr)
		if err != nil {
			return nil, fmt.Errorf("invalid trace hex payload: %w", err)
		}

		recs = append(recs, Record{At: time.Duration(tsNs), Dir: dir, Frame: b})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// Writer appends records. It is safe for concurrent use, since the link
// reader and the engine write from different goroutines.
type Writer struct {
	mu     sync.Mutex
	c      io.Closer
	w      *bufio.Writer
	start  time.Time
	closed bool
}

// Create truncates path and starts a new capture in it.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	ww, err := NewWriter(f, time.Now())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	ww.c = f
	return ww, nil
}

// NewWriter starts a capture on w with its origin at start.
func NewWriter(w io.Writer, start time.Time) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		return nil, err
	}
	return &Writer{w: bw, start: start}, nil
}

func (ww *Writer) WriteFrame(now time.Time, dir Direction, frame []byte) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("trace writer is closed")
	}
	if len(frame) == 0 {
		return errors.New("frame is empty")
	}
	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s,%s\n", d.Nanoseconds(), dir, hex.EncodeToString(frame))
	return err
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	err := ww.w.Flush()
	if ww.c != nil {
		if cerr := ww.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
