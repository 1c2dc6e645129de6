package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"assistnow/internal/mga"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func cannedClient(status int, ctype string, length int64, body []byte) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		h := http.Header{}
		if ctype != "" {
			h.Set("Content-Type", ctype)
		}
		return &http.Response{
			StatusCode:    status,
			Status:        strconv.Itoa(status) + " " + http.StatusText(status),
			Header:        h,
			ContentLength: length,
			Body:          io.NopCloser(bytes.NewReader(body)),
			Request:       r,
		}, nil
	})}
}

func ubxHandler(t *testing.T, body []byte, got *url.Values) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			*got = r.URL.Query()
		}
		w.Header().Set("Content-Type", ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}
}

func TestOnline_QueryParameters(t *testing.T) {
	var q url.Values
	var path string
	body := []byte{0xB5, 0x62, 0x13, 0x40, 0x00, 0x00, 0x53, 0xE8}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		ubxHandler(t, body, &q)(w, r)
	}))
	defer srv.Close()

	f := &Fetcher{Servers: []string{srv.URL}}
	data, err := f.Online(context.Background(), Request{
		Token:       "abc",
		GNSS:        []string{"gps", "glo"},
		DataTypes:   []string{"eph", "alm"},
		Pos:         &Position{LatDeg: 47.25, LonDeg: 8.5, AltM: 400, AccM: 1000},
		FilterOnPos: true,
		Latency:     2 * time.Second,
		TimeAcc:     500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Online: %v", err)
	}
	if !bytes.Equal(data, body) {
		t.Fatalf("data=% x", data)
	}
	if path != "/"+onlinePath {
		t.Fatalf("path=%q", path)
	}
	want := map[string]string{
		"token":    "abc",
		"gnss":     "gps,glo",
		"datatype": "eph,alm",
		"lat":      "47.25",
		"lon":      "8.5",
		"alt":      "400",
		"pacc":     "1000",
		"latency":  "2",
		"tacc":     "0.5",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Fatalf("%s=%q want %q", k, got, v)
		}
	}
	if !q.Has("filteronpos") {
		t.Fatalf("filteronpos missing")
	}
	if q.Has("format") {
		t.Fatalf("format set on MGA request")
	}
}

func TestOffline_QueryParameters(t *testing.T) {
	cases := []struct {
		name    string
		req     Request
		want    map[string]string
		missing []string
	}{
		{
			name:    "MGA",
			req:     Request{Token: "t", GNSS: []string{"gps"}, Almanac: []string{"gps", "glo"}, Period: 4, Resolution: 1, Days: 9},
			want:    map[string]string{"gnss": "gps", "alm": "gps,glo", "period": "4", "resolution": "1"},
			missing: []string{"format", "days"},
		},
		{
			name:    "Legacy",
			req:     Request{Token: "t", GNSS: []string{"gps"}, Legacy: true, Days: 14, Period: 4},
			want:    map[string]string{"format": "aid", "days": "14"},
			missing: []string{"period", "resolution"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var q url.Values
			var path string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				ubxHandler(t, []byte{1}, &q)(w, r)
			}))
			defer srv.Close()

			f := &Fetcher{Servers: []string{srv.URL}}
			if _, err := f.Offline(context.Background(), tc.req); err != nil {
				t.Fatalf("Offline: %v", err)
			}
			if path != "/"+offlinePath {
				t.Fatalf("path=%q", path)
			}
			for k, v := range tc.want {
				if got := q.Get(k); got != v {
					t.Fatalf("%s=%q want %q", k, got, v)
				}
			}
			for _, k := range tc.missing {
				if q.Has(k) {
					t.Fatalf("%s unexpectedly set", k)
				}
			}
		})
	}
}

func TestFetch_FallsBackToSecondary(t *testing.T) {
	// Grab a free address, then close it so the primary refuses.
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	live := httptest.NewServer(ubxHandler(t, []byte{9, 9, 9}, nil))
	defer live.Close()

	var kinds []mga.EventKind
	f := &Fetcher{
		Servers:  []string{deadURL, live.URL},
		Progress: func(ev mga.Event) { kinds = append(kinds, ev.Kind) },
	}
	data, err := f.Online(context.Background(), Request{Token: "t"})
	if err != nil {
		t.Fatalf("Online: %v", err)
	}
	if len(data) != 3 {
		t.Fatalf("len=%d", len(data))
	}
	want := []mga.EventKind{
		mga.EventServerConnecting, mga.EventServiceError,
		mga.EventServerConnecting, mga.EventServerConnected, mga.EventRequestHeader, mga.EventRetrieveData,
	}
	if len(kinds) != len(want) {
		t.Fatalf("events=%v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events=%v", kinds)
		}
	}
}

func TestFetch_AllServersFail(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer bad.Close()

	f := &Fetcher{Servers: []string{deadURL, bad.URL}}
	_, err := f.Online(context.Background(), Request{Token: "t"})
	if !errors.Is(err, ErrCannotConnect) {
		t.Fatalf("err=%v, want ErrCannotConnect in chain", err)
	}
	var serr *ServiceError
	if !errors.As(err, &serr) || serr.Kind != BadStatus {
		t.Fatalf("err=%v, want BadStatus", err)
	}
}

func TestFetch_ResponseEnvelope(t *testing.T) {
	cases := []struct {
		name   string
		client *http.Client
		kind   ServiceErrorKind
	}{
		{"BadStatus", cannedClient(http.StatusInternalServerError, ContentType, 3, []byte{1, 2, 3}), BadStatus},
		{"WrongType", cannedClient(http.StatusOK, "text/html", 3, []byte{1, 2, 3}), WrongType},
		{"MissingType", cannedClient(http.StatusOK, "", 3, []byte{1, 2, 3}), WrongType},
		{"NoLength", cannedClient(http.StatusOK, ContentType, -1, []byte{1, 2, 3}), NoLength},
		{"ZeroLength", cannedClient(http.StatusOK, ContentType, 0, nil), ZeroLength},
		{"Short", cannedClient(http.StatusOK, ContentType, 10, []byte{1, 2, 3}), PartialContent},
		{"Long", cannedClient(http.StatusOK, ContentType, 2, []byte{1, 2, 3}), PartialContent},
		{"TooLarge", cannedClient(http.StatusOK, ContentType, 1<<30, []byte{1}), TooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &Fetcher{Client: tc.client, Servers: []string{"example.invalid"}}
			_, err := f.Online(context.Background(), Request{Token: "t"})
			var serr *ServiceError
			if !errors.As(err, &serr) {
				t.Fatalf("err=%v, want *ServiceError", err)
			}
			if serr.Kind != tc.kind {
				t.Fatalf("kind=%v want %v", serr.Kind, tc.kind)
			}
			if serr.Server != "example.invalid" {
				t.Fatalf("server=%q", serr.Server)
			}
		})
	}
}

func TestFetch_ContentTypeParameters(t *testing.T) {
	f := &Fetcher{
		Client:  cannedClient(http.StatusOK, "application/ubx; charset=binary", 2, []byte{7, 8}),
		Servers: []string{"example.invalid"},
	}
	data, err := f.Online(context.Background(), Request{Token: "t"})
	if err != nil || len(data) != 2 {
		t.Fatalf("data=%v err=%v", data, err)
	}
}

func TestFetch_UnknownServers(t *testing.T) {
	var unknown int
	f := &Fetcher{
		Servers:  []string{"", "ftp://example.com"},
		Progress: func(ev mga.Event) {
			if ev.Kind == mga.EventUnknownServer {
				unknown++
			}
		},
	}
	_, err := f.Online(context.Background(), Request{Token: "t"})
	if !errors.Is(err, ErrNoServers) {
		t.Fatalf("err=%v", err)
	}
	if unknown != 2 {
		t.Fatalf("unknown=%d", unknown)
	}
}

func TestServerURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"online-live1.services.u-blox.com", "https://online-live1.services.u-blox.com", true},
		{"http://127.0.0.1:8080", "http://127.0.0.1:8080", true},
		{"  ", "", false},
		{"ftp://x", "", false},
	}
	for _, tc := range cases {
		u, ok := serverURL(tc.in)
		if ok != tc.ok {
			t.Fatalf("%q ok=%v", tc.in, ok)
		}
		if ok && u.String() != tc.want {
			t.Fatalf("%q -> %q want %q", tc.in, u.String(), tc.want)
		}
	}
}

func TestRequest_CacheKey(t *testing.T) {
	a := Request{Token: "t", GNSS: []string{"gps"}}
	b := Request{Token: "t", GNSS: []string{"gps", "glo"}}
	if a.CacheKey(false) == b.CacheKey(false) {
		t.Fatalf("different requests share a key")
	}
	if a.CacheKey(false) == a.CacheKey(true) {
		t.Fatalf("online and offline share a key")
	}
	if a.CacheKey(true) != a.CacheKey(true) {
		t.Fatalf("key not stable")
	}
}
