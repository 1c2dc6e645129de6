package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

START
0, tx, b562 1340
10, rx, 0a 0b
`)

	recs, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Frame != nil {
		t.Fatalf("expected START marker (nil frame), got %v", recs[0].Frame)
	}
	if recs[1].Dir != TX || !reflect.DeepEqual(recs[1].Frame, []byte{0xb5, 0x62, 0x13, 0x40}) {
		t.Fatalf("unexpected record 1: %+v", recs[1])
	}
	if recs[2].At != 10*time.Nanosecond || recs[2].Dir != RX {
		t.Fatalf("unexpected record 2: %+v", recs[2])
	}
}

func TestReaderReadAll_InvalidLines(t *testing.T) {
	for _, line := range []string{
		"not-a-valid-line",
		"1,tx",
		"x,tx,00",
		"-1,tx,00",
		"1,up,00",
		"1,rx,zz",
		"1,rx,",
	} {
		if _, err := NewReader(strings.NewReader(line + "\n")).ReadAll(); err == nil {
			t.Fatalf("%q: expected error", line)
		}
	}
}

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	base := w.start
	if err := w.WriteFrame(base.Add(5*time.Millisecond), TX, []byte{0xB5, 0x62}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := w.WriteFrame(base.Add(7*time.Millisecond), RX, []byte{0x01}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := w.WriteFrame(base.Add(-time.Second), RX, []byte{0x02}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.WriteFrame(base, TX, []byte{1}); err == nil {
		t.Fatalf("expected error after Close")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	recs, err := NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := []Record{
		{},
		{At: 5 * time.Millisecond, Dir: TX, Frame: []byte{0xB5, 0x62}},
		{At: 7 * time.Millisecond, Dir: RX, Frame: []byte{0x01}},
		{At: 0, Dir: RX, Frame: []byte{0x02}},
	}
	if !reflect.DeepEqual(recs, want) {
		t.Fatalf("records=%+v", recs)
	}
}

func TestWriterRejectsEmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteFrame(time.Unix(0, 0), TX, nil); err == nil {
		t.Fatalf("expected error")
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if buf.String() != "START\n" {
		t.Fatalf("buf=%q", buf.String())
	}
}
