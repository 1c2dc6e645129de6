package ubx

import "bytes"

// DefaultMaxFrame bounds the declared length accepted by a Splitter. Real
// receiver output never comes close; a larger length means we synced on
// noise.
const DefaultMaxFrame = 8 * 1024

// Splitter reassembles frames from a byte stream that may also carry NMEA
// text and line noise. It is not safe for concurrent use.
type Splitter struct {
	// MaxFrame overrides DefaultMaxFrame when > 0.
	MaxFrame int

	buf []byte
}

// Feed appends p and returns every complete, checksum-valid frame now
// available. Returned frames do not alias the internal buffer.
func (s *Splitter) Feed(p []byte) [][]byte {
	s.buf = append(s.buf, p...)
	limit := s.MaxFrame
	if limit <= 0 {
		limit = DefaultMaxFrame
	}

	var out [][]byte
	for {
		i := bytes.IndexByte(s.buf, Sync1)
		if i < 0 {
			s.buf = s.buf[:0]
			break
		}
		s.buf = s.buf[i:]
		if len(s.buf) < 2 {
			break
		}
		if s.buf[1] != Sync2 {
			s.buf = s.buf[1:]
			continue
		}
		if len(s.buf) < HeaderLen {
			break
		}
		n := FrameSize(s.buf)
		if n > limit {
			s.buf = s.buf[1:]
			continue
		}
		if len(s.buf) < n {
			break
		}
		if !Validate(s.buf[:n]) {
			s.buf = s.buf[1:]
			continue
		}
		frame := make([]byte, n)
		copy(frame, s.buf[:n])
		out = append(out, frame)
		s.buf = s.buf[n:]
	}

	// Keep the buffer from pinning a large backing array forever.
	if len(s.buf) == 0 && cap(s.buf) > 4*limit {
		s.buf = nil
	}
	return out
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (s *Splitter) Buffered() int { return len(s.buf) }
