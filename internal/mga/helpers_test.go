package mga

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"assistnow/internal/ubx"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// recorder is a Host that keeps every write and event.
type recorder struct {
	writes   [][]byte
	events   []Event
	handled  int
	writeErr error
}

func (r *recorder) WriteToLink(b []byte) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	r.writes = append(r.writes, bytes.Clone(b))
	return nil
}

func (r *recorder) OnProgress(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) ofKind(kind EventKind) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) last() Event {
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

// next returns the oldest write the simulated receiver has not seen yet.
func (r *recorder) next() ([]byte, bool) {
	if r.handled >= len(r.writes) {
		return nil, false
	}
	w := r.writes[r.handled]
	r.handled++
	return w, true
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *recorder, *fakeClock) {
	t.Helper()
	r := &recorder{}
	c := newFakeClock()
	opts.Now = c.Now
	return NewEngine(r, opts), r, c
}

// drive feeds every write to respond and hands the answers back to the
// engine until the receiver has nothing left to say.
func drive(t *testing.T, e *Engine, r *recorder, respond func(frame []byte) [][]byte) {
	t.Helper()
	for i := 0; i < 100000; i++ {
		w, ok := r.next()
		if !ok {
			return
		}
		for _, resp := range respond(w) {
			if err := e.OnInbound(resp); err != nil && !errors.Is(err, ErrAlreadyIdle) {
				t.Fatalf("OnInbound: %v", err)
			}
		}
	}
	t.Fatalf("drive did not settle")
}

// ackAll answers every assistance frame the way a receiver with
// ackAiding enabled does.
func ackAll(frame []byte) [][]byte {
	k, ok := ubx.KindOf(frame)
	if !ok {
		return nil
	}
	if k.Family() == ubx.FamilyAID {
		return [][]byte{ubx.GenericAck(true, ubx.Class(frame), ubx.ID(frame))}
	}
	return [][]byte{ubx.MgaAck(true, 0, ubx.KeyOf(frame))}
}

func ephFrame(sv byte) []byte {
	p := make([]byte, 68)
	p[0] = 0x01
	p[2] = sv
	p[8] = 0xEE
	return ubx.Encode(ubx.ClassMGA, ubx.IDMgaGPS, p)
}

func iniTimeFrame() []byte {
	return ubx.IniTimeUTC(time.Date(2024, 3, 10, 11, 59, 0, 0, time.UTC), 18, 2*time.Second)
}

// onlineBlob is an INI-TIME followed by n ephemerides.
func onlineBlob(n int) []byte {
	parts := [][]byte{iniTimeFrame()}
	for i := 0; i < n; i++ {
		parts = append(parts, ephFrame(byte(i+1)))
	}
	return bytes.Join(parts, nil)
}
