package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"assistnow/internal/trace"
	"assistnow/internal/ubx"
)

type traceSummary struct {
	Segments    int
	TX          int
	RX          int
	Invalid     int
	MaxDuration time.Duration
	// Counts is keyed by "dir class/id".
	Counts map[string]int
}

func summarizeTrace(records []trace.Record) traceSummary {
	s := traceSummary{Counts: map[string]int{}}
	origin := time.Duration(0)
	hasFrames := false

	for _, r := range records {
		if r.Frame == nil {
			s.Segments++
			origin = r.At
			continue
		}
		hasFrames = true

		switch r.Dir {
		case trace.TX:
			s.TX++
		case trace.RX:
			s.RX++
		}
		at := r.At - origin
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		name, ok := frameName(r.Frame)
		if !ok {
			s.Invalid++
			continue
		}
		s.Counts[r.Dir.String()+" "+name]++
	}
	if s.Segments == 0 && hasFrames {
		s.Segments = 1
	}
	return s
}

// frameName labels a frame by kind when known, else by class and id. The
// single 0x00 flash nudge byte is not a frame.
func frameName(frame []byte) (string, bool) {
	if len(frame) == 1 && frame[0] == 0x00 {
		return "nudge", true
	}
	if !ubx.Validate(frame) {
		return "", false
	}
	if k, ok := ubx.KindOf(frame); ok {
		return k.String(), true
	}
	return fmt.Sprintf("0x%02X/0x%02X", ubx.Class(frame), ubx.ID(frame)), true
}

func printTraceSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := trace.NewReader(f).ReadAll()
	if err != nil {
		return err
	}
	s := summarizeTrace(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "tx_frames: %d\n", s.TX)
	fmt.Fprintf(w, "rx_frames: %d\n", s.RX)
	fmt.Fprintf(w, "invalid_frames: %d\n", s.Invalid)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)

	keys := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "frame_counts:\n")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, s.Counts[k])
	}
	return nil
}
