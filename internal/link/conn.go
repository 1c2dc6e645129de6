package link

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"assistnow/internal/trace"
)

// ErrClosed is returned by Conn operations after Close.
var ErrClosed = errors.New("link: closed")

// Conn wraps the port. WriteToLink is the engine's write primitive; every
// frame in either direction is copied to the trace when one is attached.
type Conn struct {
	rw    io.ReadWriteCloser
	trace *trace.Writer
	log   *slog.Logger
	now   func() time.Time

	mu     sync.Mutex
	closed bool
}

type ConnOptions struct {
	Trace  *trace.Writer
	Logger *slog.Logger
	Now    func() time.Time
}

func NewConn(rw io.ReadWriteCloser, opts ConnOptions) *Conn {
	c := &Conn{rw: rw, trace: opts.Trace, log: opts.Logger, now: opts.Now}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// WriteToLink writes b in full.
func (c *Conn) WriteToLink(b []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	for off := 0; off < len(b); {
		n, err := c.rw.Write(b[off:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		off += n
	}
	c.record(trace.TX, b)
	return nil
}

func (c *Conn) Read(p []byte) (int, error) {
	return c.rw.Read(p)
}

// Received records one inbound frame in the trace.
func (c *Conn) Received(frame []byte) {
	c.record(trace.RX, frame)
}

func (c *Conn) record(dir trace.Direction, frame []byte) {
	if c.trace == nil {
		return
	}
	if err := c.trace.WriteFrame(c.now(), dir, frame); err != nil {
		c.log.Warn("link trace write failed", "dir", dir.String(), "err", err)
	}
}

// Close closes the port, which also unblocks a pending Read.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.rw.Close()
}
