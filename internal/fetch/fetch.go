// Package fetch downloads AssistNow online and offline bundles over HTTP(S).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"assistnow/internal/mga"
)

const (
	ContentType = "application/ubx"

	// DefaultMaxContentLength matches the engine's transfer limit.
	DefaultMaxContentLength = mga.DefaultMaxTransferBytes
)

// Fetcher downloads bundles, trying Servers in order until one delivers.
type Fetcher struct {
	// Client to use for HTTP requests. Nil selects http.DefaultClient.
	Client *http.Client

	// Servers are base URLs (scheme optional, https assumed), primary first.
	Servers []string

	// MaxContentLength defaults to DefaultMaxContentLength.
	MaxContentLength int64

	// Progress, when set, receives fetch events.
	Progress func(mga.Event)

	Logger *slog.Logger
}

// Online downloads the data for an online (current ephemeris) transfer.
func (f *Fetcher) Online(ctx context.Context, req Request) ([]byte, error) {
	return f.get(ctx, onlinePath, req.onlineQuery())
}

// Offline downloads a multi-day offline bundle.
func (f *Fetcher) Offline(ctx context.Context, req Request) ([]byte, error) {
	return f.get(ctx, offlinePath, req.offlineQuery())
}

func (f *Fetcher) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	var errs []error
	for _, server := range f.Servers {
		base, ok := serverURL(server)
		if !ok {
			f.report(mga.Event{Kind: mga.EventUnknownServer, Server: server})
			f.logger().Warn("fetch skipping unusable server", "server", server)
			continue
		}
		data, err := f.fetchOne(ctx, base, endpoint, q)
		if err == nil {
			return data, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		f.logger().Warn("fetch failed, trying next server", "server", base.Host, "err", err)
	}
	if len(errs) == 0 {
		return nil, ErrNoServers
	}
	return nil, errors.Join(errs...)
}

func (f *Fetcher) fetchOne(ctx context.Context, base *url.URL, endpoint string, q url.Values) ([]byte, error) {
	host := base.Host
	u := base.JoinPath(endpoint)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request for %s: %w", host, err)
	}
	req.Header.Set("Accept", ContentType)

	f.report(mga.Event{Kind: mga.EventServerConnecting, Server: host})
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		f.report(mga.Event{Kind: mga.EventServiceError, Server: host, Err: err})
		return nil, fmt.Errorf("%w: %s: %w", ErrCannotConnect, host, err)
	}
	defer func() { _ = resp.Body.Close() }()
	f.report(mga.Event{Kind: mga.EventServerConnected, Server: host})

	if err := f.checkHeader(host, resp); err != nil {
		f.report(mga.Event{Kind: mga.EventServiceError, Server: host, Err: err})
		return nil, err
	}
	f.report(mga.Event{Kind: mga.EventRequestHeader, Server: host, Size: int(resp.ContentLength)})

	// One extra byte exposes a body longer than declared.
	data, err := io.ReadAll(io.LimitReader(resp.Body, resp.ContentLength+1))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.report(mga.Event{Kind: mga.EventServiceError, Server: host, Err: err})
		return nil, fmt.Errorf("%w: %s: %w", ErrCannotGetData, host, err)
	}
	if int64(len(data)) != resp.ContentLength {
		serr := &ServiceError{Server: host, Kind: PartialContent, Want: resp.ContentLength, Got: int64(len(data))}
		f.report(mga.Event{Kind: mga.EventServiceError, Server: host, Err: serr})
		return nil, serr
	}
	f.report(mga.Event{Kind: mga.EventRetrieveData, Server: host, Size: len(data)})
	f.logger().Info("fetch complete", "server", host, "bytes", len(data))
	return data, nil
}

func (f *Fetcher) checkHeader(host string, resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		return &ServiceError{Server: host, Kind: BadStatus, Status: resp.Status}
	}
	ct := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != ContentType {
		return &ServiceError{Server: host, Kind: WrongType, Type: ct}
	}
	if resp.ContentLength < 0 {
		return &ServiceError{Server: host, Kind: NoLength}
	}
	if resp.ContentLength == 0 {
		return &ServiceError{Server: host, Kind: ZeroLength}
	}
	maxSize := f.MaxContentLength
	if maxSize <= 0 {
		maxSize = DefaultMaxContentLength
	}
	if resp.ContentLength > maxSize {
		return &ServiceError{Server: host, Kind: TooLarge, Want: resp.ContentLength, Got: maxSize}
	}
	return nil
}

func (f *Fetcher) report(ev mga.Event) {
	if f.Progress == nil {
		return
	}
	ev.Seq = -1
	ev.At = time.Now()
	f.Progress(ev)
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// serverURL accepts "host", "host:port" or a full http(s) URL.
func serverURL(s string) (*url.URL, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, false
	}
	return u, true
}
