package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"assistnow/internal/bundlecache"
	"assistnow/internal/config"
	"assistnow/internal/fetch"
	"assistnow/internal/mga"
)

func fetchRequest(cfg config.Config) fetch.Request {
	req := fetch.Request{
		Token:       cfg.Fetch.Token,
		GNSS:        cfg.Fetch.GNSS,
		DataTypes:   cfg.Fetch.DataTypes,
		FilterOnPos: cfg.Fetch.FilterOnPos,
		Latency:     cfg.Fetch.Latency,
		TimeAcc:     cfg.Fetch.TimeAcc,
		Legacy:      cfg.Fetch.Legacy,
		Almanac:     cfg.Fetch.Almanac,
		Days:        cfg.Fetch.Days,
		Period:      cfg.Fetch.Period,
		Resolution:  cfg.Fetch.Resolution,
	}
	if cfg.Position.Enable {
		req.Pos = &fetch.Position{
			LatDeg: cfg.Position.LatDeg,
			LonDeg: cfg.Position.LonDeg,
			AltM:   cfg.Position.AltM,
			AccM:   cfg.Position.AccM,
		}
	}
	return req
}

// offlineData reports whether the mode needs an offline bundle.
func offlineData(cfg config.Config) bool {
	return cfg.Transfer.Mode != config.ModeOnline
}

func cacheKey(cfg config.Config) string {
	return fetchRequest(cfg).CacheKey(offlineData(cfg))
}

// loadBundle returns the assistance data to send: from fetch.input, the
// cache, or the service, in that order. client may be nil.
func loadBundle(ctx context.Context, cfg config.Config, client *http.Client) ([]byte, error) {
	if cfg.Fetch.Input != "" {
		b, err := os.ReadFile(cfg.Fetch.Input)
		if err != nil {
			return nil, fmt.Errorf("reading fetch.input: %w", err)
		}
		slog.Info("bundle loaded from file", "path", cfg.Fetch.Input, "bytes", len(b))
		return b, nil
	}

	key := cacheKey(cfg)
	var cache *bundlecache.Cache
	if cfg.Cache.Enable {
		c, err := bundlecache.Open(cfg.Cache.Path, bundlecache.Options{MaxAge: cfg.Cache.MaxAge})
		if err != nil {
			// The cache is an optimisation; run without it.
			slog.Warn("bundle cache unavailable", "path", cfg.Cache.Path, "err", err)
		} else {
			cache = c
			defer cache.Close()
			if n, err := cache.Prune(); err == nil && n > 0 {
				slog.Debug("bundle cache pruned", "entries", n)
			}
			e, err := cache.Get(key)
			switch {
			case err == nil:
				slog.Info("bundle loaded from cache", "fetched_at", e.FetchedAt, "bytes", len(e.Data))
				return e.Data, nil
			case !errors.Is(err, bundlecache.ErrNotFound):
				slog.Warn("bundle cache read failed", "err", err)
			}
		}
	}

	if client == nil {
		client = &http.Client{Timeout: cfg.Fetch.Timeout}
	}
	f := &fetch.Fetcher{
		Client:   client,
		Progress: reportFetch,
	}
	req := fetchRequest(cfg)

	var (
		data []byte
		err  error
	)
	if offlineData(cfg) {
		f.Servers = cfg.Fetch.OfflineServers
		data, err = f.Offline(ctx, req)
	} else {
		f.Servers = cfg.Fetch.Servers
		data, err = f.Online(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if err := cache.Put(key, data); err != nil {
			slog.Warn("bundle cache write failed", "err", err)
		}
	}
	return data, nil
}

// storeBundle replaces the cached bundle for cfg with data.
func storeBundle(cfg config.Config, data []byte) error {
	c, err := bundlecache.Open(cfg.Cache.Path, bundlecache.Options{MaxAge: cfg.Cache.MaxAge})
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Put(cacheKey(cfg), data)
}

func reportFetch(ev mga.Event) {
	switch ev.Kind {
	case mga.EventServiceError, mga.EventUnknownServer:
		slog.Warn("fetch "+ev.Kind.String(), "server", ev.Server, "err", ev.Err)
	case mga.EventRetrieveData:
		slog.Info("fetch "+ev.Kind.String(), "server", ev.Server, "bytes", ev.Size)
	default:
		slog.Debug("fetch "+ev.Kind.String(), "server", ev.Server)
	}
}
