package ubx

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	iniTimeLen = 24
	iniPosLen  = 20
)

// LeapUnknown is the leap second value meaning "use the receiver's own".
const LeapUnknown int8 = -128

// IniTimeUTC builds an MGA-INI-TIME_UTC frame for t. acc is the time
// accuracy the receiver should assume.
func IniTimeUTC(t time.Time, leapSecs int8, acc time.Duration) []byte {
	t = t.UTC()
	p := make([]byte, iniTimeLen)
	p[0] = IniTypeTimeUTC
	p[3] = byte(leapSecs)
	binary.LittleEndian.PutUint16(p[4:], uint16(t.Year()))
	p[6] = byte(t.Month())
	p[7] = byte(t.Day())
	p[8] = byte(t.Hour())
	p[9] = byte(t.Minute())
	p[10] = byte(t.Second())
	binary.LittleEndian.PutUint32(p[12:], uint32(t.Nanosecond()))
	if acc < 0 {
		acc = 0
	}
	secs := acc / time.Second
	if secs > math.MaxUint16 {
		secs = math.MaxUint16
	}
	binary.LittleEndian.PutUint16(p[16:], uint16(secs))
	binary.LittleEndian.PutUint32(p[20:], uint32(acc%time.Second))
	return Encode(ClassMGA, IDMgaINI, p)
}

// ParseIniTimeUTC extracts the time carried by an MGA-INI-TIME_UTC frame.
func ParseIniTimeUTC(frame []byte) (time.Time, bool) {
	if len(frame) < Overhead || Class(frame) != ClassMGA || ID(frame) != IDMgaINI {
		return time.Time{}, false
	}
	p := Payload(frame)
	if len(p) < iniTimeLen || p[0] != IniTypeTimeUTC {
		return time.Time{}, false
	}
	t := time.Date(
		int(binary.LittleEndian.Uint16(p[4:6])),
		time.Month(p[6]), int(p[7]), int(p[8]), int(p[9]), int(p[10]),
		int(binary.LittleEndian.Uint32(p[12:16])),
		time.UTC,
	)
	return t, true
}

// IniTimeLeapSecs returns the leap second field of an MGA-INI-TIME_UTC frame.
func IniTimeLeapSecs(frame []byte) int8 {
	p := Payload(frame)
	if len(p) < iniTimeLen {
		return LeapUnknown
	}
	return int8(p[3])
}

// IniTimeAccuracy returns the accuracy field of an MGA-INI-TIME_UTC frame.
func IniTimeAccuracy(frame []byte) time.Duration {
	p := Payload(frame)
	if len(p) < iniTimeLen {
		return 0
	}
	return time.Duration(binary.LittleEndian.Uint16(p[16:18]))*time.Second +
		time.Duration(binary.LittleEndian.Uint32(p[20:24]))
}

// IniPosLLH builds an MGA-INI-POS_LLH frame. Altitude and accuracy are in
// metres.
func IniPosLLH(latDeg, lonDeg, altM, accM float64) []byte {
	p := make([]byte, iniPosLen)
	p[0] = IniTypePosLLH
	binary.LittleEndian.PutUint32(p[4:], uint32(int32(math.Round(latDeg*1e7))))
	binary.LittleEndian.PutUint32(p[8:], uint32(int32(math.Round(lonDeg*1e7))))
	binary.LittleEndian.PutUint32(p[12:], uint32(int32(math.Round(altM*100))))
	if accM < 0 {
		accM = 0
	}
	binary.LittleEndian.PutUint32(p[16:], uint32(math.Round(accM*100)))
	return Encode(ClassMGA, IDMgaINI, p)
}

// AnoDate returns the date an MGA-ANO frame is valid for.
func AnoDate(frame []byte) (year int, month time.Month, day int, ok bool) {
	if len(frame) < Overhead || Class(frame) != ClassMGA || ID(frame) != IDMgaANO {
		return 0, 0, 0, false
	}
	p := Payload(frame)
	if len(p) < 7 {
		return 0, 0, 0, false
	}
	return 2000 + int(p[4]), time.Month(p[5]), int(p[6]), true
}
