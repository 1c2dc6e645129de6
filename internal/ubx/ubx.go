package ubx

import (
	"encoding/binary"
	"errors"
)

const (
	Sync1 = 0xB5
	Sync2 = 0x62

	// HeaderLen is sync + class/id + length.
	HeaderLen = 6
	// Overhead is HeaderLen plus the two checksum bytes.
	Overhead = HeaderLen + 2
	// MaxPayload is the largest payload the 16-bit length field can carry.
	MaxPayload = 0xFFFF
)

// Message classes.
const (
	ClassACK = 0x05
	ClassAID = 0x0B
	ClassMGA = 0x13
)

// ACK class ids.
const (
	IDAckNak = 0x00
	IDAckAck = 0x01
)

// ErrBadData is returned when a buffer contains something that is not a
// frame at all (bad sync bytes or a truncated frame).
var ErrBadData = errors.New("ubx: bad data")

// Checksum computes the two running-sum checksum bytes over data.
func Checksum(data []byte) (ckA, ckB byte) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// Encode builds a complete frame for class/id around payload. A payload
// longer than MaxPayload is cut to MaxPayload so the frame stays valid.
func Encode(class, id byte, payload []byte) []byte {
	if len(payload) > MaxPayload {
		payload = payload[:MaxPayload]
	}
	buf := make([]byte, 0, Overhead+len(payload))
	buf = append(buf, Sync1, Sync2, class, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	ckA, ckB := Checksum(buf[2:])
	return append(buf, ckA, ckB)
}

// FrameSize returns payload length + 8 as read from the header. The caller
// must ensure the header is present.
func FrameSize(frame []byte) int {
	return int(binary.LittleEndian.Uint16(frame[4:6])) + Overhead
}

// HasSync reports whether b starts with the two sync bytes.
func HasSync(b []byte) bool {
	return len(b) >= 2 && b[0] == Sync1 && b[1] == Sync2
}

// Validate recomputes the checksum of a complete frame and compares it to
// the trailing two bytes. Anything shorter than a header or whose declared
// length disagrees with len(frame) is invalid.
func Validate(frame []byte) bool {
	if len(frame) < Overhead || !HasSync(frame) {
		return false
	}
	if FrameSize(frame) != len(frame) {
		return false
	}
	ckA, ckB := Checksum(frame[2 : len(frame)-2])
	return frame[len(frame)-2] == ckA && frame[len(frame)-1] == ckB
}

// Class returns the class byte of a frame.
func Class(frame []byte) byte { return frame[2] }

// ID returns the id byte of a frame.
func ID(frame []byte) byte { return frame[3] }

// Payload returns the payload slice of a complete frame.
func Payload(frame []byte) []byte {
	return frame[HeaderLen : len(frame)-2]
}

// Walk visits every frame in buf in order. valid reports the checksum
// result; frames with a bad checksum are still visited so the caller can
// decide to skip them. Bad sync bytes or a frame running past the end of
// buf stop the walk with ErrBadData.
func Walk(buf []byte, fn func(frame []byte, valid bool)) error {
	for off := 0; off < len(buf); {
		rest := buf[off:]
		if !HasSync(rest) || len(rest) < HeaderLen {
			return ErrBadData
		}
		n := FrameSize(rest)
		if n > len(rest) {
			return ErrBadData
		}
		frame := rest[:n]
		fn(frame, Validate(frame))
		off += n
	}
	return nil
}

// CountFramesOfInterest counts the allow-listed, checksum-valid frames in buf.
func CountFramesOfInterest(buf []byte) (int, error) {
	count := 0
	err := Walk(buf, func(frame []byte, valid bool) {
		if !valid {
			return
		}
		if _, ok := KindOf(frame); ok {
			count++
		}
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
