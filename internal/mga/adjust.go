package mga

import (
	"bytes"
	"time"

	"assistnow/internal/ubx"
)

// TimeAdjustMode selects how the host's notion of time is injected.
type TimeAdjustMode uint8

const (
	AdjustNone TimeAdjustMode = iota
	// AdjustAbsolute replaces the INI-TIME message with Time.
	AdjustAbsolute
	// AdjustRelative shifts the time in the INI-TIME message by Offset.
	AdjustRelative
)

// TimeAdjust describes the time injected ahead of assistance data.
type TimeAdjust struct {
	Mode     TimeAdjustMode
	Time     time.Time
	Offset   time.Duration
	Accuracy time.Duration
	// LeapSeconds defaults to ubx.LeapUnknown when zero for absolute mode.
	LeapSeconds int8
}

// PosAdjust is a coarse position injected right after the INI-TIME message.
type PosAdjust struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
	AccM   float64
}

// applyTimeAdjust rewrites the leading MGA-INI-TIME_UTC block. Other init
// flavours (TIME_GNSS, AID-INI) are left as they are.
func applyTimeAdjust(blocks []*MessageBlock, ta *TimeAdjust) bool {
	if ta == nil || ta.Mode == AdjustNone || len(blocks) == 0 {
		return false
	}
	first := blocks[0]
	orig, ok := ubx.ParseIniTimeUTC(first.Payload)
	if !ok {
		return false
	}

	var frame []byte
	switch ta.Mode {
	case AdjustAbsolute:
		leap := ta.LeapSeconds
		if leap == 0 {
			leap = ubx.LeapUnknown
		}
		frame = ubx.IniTimeUTC(ta.Time, leap, ta.Accuracy)
	case AdjustRelative:
		acc := ubx.IniTimeAccuracy(first.Payload) + ta.Accuracy
		frame = ubx.IniTimeUTC(orig.Add(ta.Offset), ubx.IniTimeLeapSecs(first.Payload), acc)
	default:
		return false
	}
	blocks[0] = newFrameBlock(frame, 0)
	return true
}

// insertPosition puts an MGA-INI-POS_LLH block after the first block.
func insertPosition(blocks []*MessageBlock, pa *PosAdjust) []*MessageBlock {
	if pa == nil || len(blocks) == 0 {
		return blocks
	}
	pos := newFrameBlock(ubx.IniPosLLH(pa.LatDeg, pa.LonDeg, pa.AltM, pa.AccM), 1)
	out := make([]*MessageBlock, 0, len(blocks)+1)
	out = append(out, blocks[0], pos)
	out = append(out, blocks[1:]...)
	renumber(out)
	return out
}

// offlineTime resolves the date used to pick MGA-ANO frames.
func offlineTime(ta *TimeAdjust, now time.Time) (time.Time, bool) {
	if ta == nil {
		return time.Time{}, false
	}
	switch ta.Mode {
	case AdjustAbsolute:
		return ta.Time.UTC(), true
	case AdjustRelative:
		return now.Add(ta.Offset).UTC(), true
	default:
		return time.Time{}, false
	}
}

// buildOfflineCatalog keeps the MGA-ANO frames valid on t's date plus every
// other allow-listed frame except stale INI messages, and prepends an
// INI-TIME built from t.
func buildOfflineCatalog(buf []byte, t time.Time, ta *TimeAdjust) ([]*MessageBlock, error) {
	if _, err := ubx.CountFramesOfInterest(buf); err != nil {
		return nil, err
	}
	owned := bytes.Clone(buf)

	leap := ta.LeapSeconds
	if leap == 0 {
		leap = ubx.LeapUnknown
	}
	blocks := []*MessageBlock{newFrameBlock(ubx.IniTimeUTC(t, leap, ta.Accuracy), 0)}

	y, m, d := t.Date()
	err := ubx.Walk(owned, func(frame []byte, valid bool) {
		if !valid {
			return
		}
		k, ok := ubx.KindOf(frame)
		if !ok {
			return
		}
		switch k {
		case ubx.KindMgaANO:
			ay, am, ad, ok := ubx.AnoDate(frame)
			if !ok || ay != y || am != m || ad != d {
				return
			}
		case ubx.KindMgaINI, ubx.KindAidINI:
			return
		}
		blocks = append(blocks, newFrameBlock(frame, len(blocks)))
	})
	if err != nil {
		return nil, err
	}
	if len(blocks) == 1 {
		return nil, ErrNoDataToSend
	}
	return blocks, nil
}
