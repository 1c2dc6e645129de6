package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	onlinePath  = "GetOnlineData.ashx"
	offlinePath = "GetOfflineData.ashx"
)

// Position is the optional coarse position sent with online requests.
type Position struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
	AccM   float64
}

// Request describes one AssistNow download. Online requests use GNSS,
// DataTypes, Pos, FilterOnPos, Latency and TimeAcc; offline requests use
// GNSS, Almanac, Days, Period and Resolution. Legacy selects the AID format
// for both.
type Request struct {
	Token     string
	GNSS      []string // gps, glo, qzss, bds, gal
	DataTypes []string // eph, alm, aux, pos

	Pos         *Position
	FilterOnPos bool
	Latency     time.Duration
	TimeAcc     time.Duration

	Legacy bool

	Almanac    []string
	Days       int
	Period     int // weeks
	Resolution int // days
}

func (r Request) onlineQuery() url.Values {
	q := url.Values{}
	q.Set("token", r.Token)
	if len(r.GNSS) > 0 {
		q.Set("gnss", strings.Join(r.GNSS, ","))
	}
	if len(r.DataTypes) > 0 {
		q.Set("datatype", strings.Join(r.DataTypes, ","))
	}
	if r.Pos != nil {
		q.Set("lat", formatFloat(r.Pos.LatDeg))
		q.Set("lon", formatFloat(r.Pos.LonDeg))
		q.Set("alt", formatFloat(r.Pos.AltM))
		q.Set("pacc", formatFloat(r.Pos.AccM))
		if r.FilterOnPos {
			q.Set("filteronpos", "")
		}
	}
	if r.Latency > 0 {
		q.Set("latency", formatFloat(r.Latency.Seconds()))
	}
	if r.TimeAcc > 0 {
		q.Set("tacc", formatFloat(r.TimeAcc.Seconds()))
	}
	if r.Legacy {
		q.Set("format", "aid")
	}
	return q
}

func (r Request) offlineQuery() url.Values {
	q := url.Values{}
	q.Set("token", r.Token)
	if len(r.GNSS) > 0 {
		q.Set("gnss", strings.Join(r.GNSS, ","))
	}
	if len(r.Almanac) > 0 {
		q.Set("alm", strings.Join(r.Almanac, ","))
	}
	if r.Legacy {
		q.Set("format", "aid")
		if r.Days > 0 {
			q.Set("days", strconv.Itoa(r.Days))
		}
	} else {
		if r.Period > 0 {
			q.Set("period", strconv.Itoa(r.Period))
		}
		if r.Resolution > 0 {
			q.Set("resolution", strconv.Itoa(r.Resolution))
		}
	}
	return q
}

// CacheKey identifies the bundle r would download. The token is hashed in
// with the rest so it is never stored in clear.
func (r Request) CacheKey(offline bool) string {
	q, endpoint := r.onlineQuery(), onlinePath
	if offline {
		q, endpoint = r.offlineQuery(), offlinePath
	}
	sum := sha256.Sum256([]byte(endpoint + "?" + q.Encode()))
	return hex.EncodeToString(sum[:])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
