package link

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"assistnow/internal/mga"
	"assistnow/internal/trace"
	"assistnow/internal/ubx"
)

// fakePort is a receiver that answers each host write immediately.
type fakePort struct {
	respond func(frame []byte) [][]byte
	readErr error

	in   chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakePort(respond func([]byte) [][]byte) *fakePort {
	return &fakePort{respond: respond, in: make(chan []byte, 1024), done: make(chan struct{})}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.written = append(p.written, bytes.Clone(b))
	p.mu.Unlock()
	if p.respond != nil {
		for _, r := range p.respond(b) {
			p.in <- r
		}
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	select {
	case d := <-p.in:
		return copy(b, d), nil
	case <-p.done:
		return 0, io.ErrClosedPipe
	}
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

type events struct {
	mu  sync.Mutex
	evs []mga.Event
}

func (e *events) add(ev mga.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evs = append(e.evs, ev)
}

func (e *events) last() mga.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.evs) == 0 {
		return mga.Event{}
	}
	return e.evs[len(e.evs)-1]
}

func ackMGA(frame []byte) [][]byte {
	if _, ok := ubx.KindOf(frame); !ok {
		return nil
	}
	return [][]byte{ubx.MgaAck(true, 0, ubx.KeyOf(frame))}
}

func testBlob(n int) []byte {
	parts := [][]byte{ubx.IniTimeUTC(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), 18, time.Second)}
	for i := 0; i < n; i++ {
		p := make([]byte, 68)
		p[0] = 0x01
		p[2] = byte(i + 1)
		parts = append(parts, ubx.Encode(ubx.ClassMGA, ubx.IDMgaGPS, p))
	}
	return bytes.Join(parts, nil)
}

func setup(t *testing.T, port *fakePort, opts mga.Options, tw *trace.Writer) (*Runner, *mga.Engine, *events) {
	t.Helper()
	conn := NewConn(port, ConnOptions{Trace: tw})
	evs := &events{}
	eng := mga.NewEngine(mga.HostFuncs{Write: conn.WriteToLink, Progress: evs.add}, opts)
	return &Runner{Conn: conn, Engine: eng, Tick: 5 * time.Millisecond}, eng, evs
}

func runWithTimeout(t *testing.T, ctx context.Context, r *Runner) error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return")
		return nil
	}
}

func TestRunner_CompletesTransfer(t *testing.T) {
	// The receiver also emits NMEA chatter, which must be skipped.
	port := newFakePort(func(frame []byte) [][]byte {
		return append([][]byte{[]byte("$GNGGA,,,,,,0,00,99.99,,,,,,*56\r\n")}, ackMGA(frame)...)
	})
	var tbuf bytes.Buffer
	tw, err := trace.NewWriter(&tbuf, time.Now())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	r, eng, evs := setup(t, port, mga.Options{}, tw)

	if err := eng.SendOnline(testBlob(4), mga.SendOptions{Flow: mga.FlowSimple}); err != nil {
		t.Fatalf("SendOnline: %v", err)
	}
	if err := runWithTimeout(t, context.Background(), r); err != nil {
		t.Fatalf("Run: %v", err)
	}
	fin := evs.last()
	if fin.Kind != mga.EventFinish || fin.Acked != 5 || fin.Failed != 0 {
		t.Fatalf("last event=%+v", fin)
	}
	if len(port.written) != 5 {
		t.Fatalf("writes=%d want 5", len(port.written))
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("trace Close: %v", err)
	}
	recs, err := trace.NewReader(&tbuf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	var tx, rx int
	for _, rec := range recs {
		switch rec.Dir {
		case trace.TX:
			tx++
		case trace.RX:
			rx++
		}
	}
	if tx != 5 || rx != 5 {
		t.Fatalf("trace tx=%d rx=%d", tx, rx)
	}
}

func TestRunner_TimeoutsDriveTheEngine(t *testing.T) {
	port := newFakePort(nil)
	r, eng, evs := setup(t, port, mga.Options{AckTimeout: 10 * time.Millisecond, MaxRetries: 1}, nil)

	if err := eng.SendFlash(make([]byte, 100)); err != nil {
		t.Fatalf("SendFlash: %v", err)
	}
	if err := runWithTimeout(t, context.Background(), r); err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := evs.last()
	if last.Kind != mga.EventTerminated || last.Reason != mga.ReasonTooManyRetries {
		t.Fatalf("last event=%+v", last)
	}
	// Block, then the nudge byte.
	if len(port.written) != 2 || !bytes.Equal(port.written[1], []byte{0x00}) {
		t.Fatalf("writes=%v", port.written)
	}
}

func TestRunner_CancelStopsEngine(t *testing.T) {
	port := newFakePort(nil)
	r, eng, evs := setup(t, port, mga.Options{AckTimeout: time.Hour}, nil)
	if err := eng.SendOnline(testBlob(1), mga.SendOptions{Flow: mga.FlowSimple}); err != nil {
		t.Fatalf("SendOnline: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	if err := runWithTimeout(t, ctx, r); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err=%v", err)
	}
	if eng.Active() {
		t.Fatalf("engine still active")
	}
	if last := evs.last(); last.Kind != mga.EventTerminated || last.Reason != mga.ReasonHostCancel {
		t.Fatalf("last event=%+v", last)
	}
}

func TestRunner_ReadErrorStopsEngine(t *testing.T) {
	port := newFakePort(nil)
	port.readErr = io.ErrUnexpectedEOF
	r, eng, _ := setup(t, port, mga.Options{AckTimeout: time.Hour}, nil)
	if err := eng.SendOnline(testBlob(1), mga.SendOptions{Flow: mga.FlowSimple}); err != nil {
		t.Fatalf("SendOnline: %v", err)
	}
	err := runWithTimeout(t, context.Background(), r)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Run err=%v", err)
	}
	if eng.Active() {
		t.Fatalf("engine still active")
	}
}

func TestRunner_RequiresConnAndEngine(t *testing.T) {
	if err := (&Runner{}).Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

// trickleWriter accepts one byte per call.
type trickleWriter struct {
	bytes.Buffer
}

func (w *trickleWriter) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	return w.Buffer.Write(b[:1])
}

func (w *trickleWriter) Close() error { return nil }

func TestConn_WritesInFull(t *testing.T) {
	w := &trickleWriter{}
	c := NewConn(w, ConnOptions{})
	frame := ubx.Encode(ubx.ClassMGA, ubx.IDMgaGPS, []byte{1, 2, 3})
	if err := c.WriteToLink(frame); err != nil {
		t.Fatalf("WriteToLink: %v", err)
	}
	if !bytes.Equal(w.Bytes(), frame) {
		t.Fatalf("wrote % x", w.Bytes())
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.WriteToLink(frame); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close err=%v", err)
	}
}
