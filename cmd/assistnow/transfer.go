package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"assistnow/internal/config"
	"assistnow/internal/link"
	"assistnow/internal/mga"
	"assistnow/internal/trace"
)

// result is what the progress events said about one transfer.
type result struct {
	Total   int
	Acked   int
	Failed  int
	Retries int
	Served  int
	Updated int
	Final   mga.Event
	// Data is the legacy blob as it stood at the end of the transfer.
	Data []byte
}

// progress turns engine events into log lines and a result. It runs with
// the engine lock held, so it only records and logs.
func (r *result) progress(ev mga.Event) {
	switch ev.Kind {
	case mga.EventStart:
		r.Total = ev.Total
		slog.Info("transfer started", "variant", ev.Variant, "blocks", ev.Total)
	case mga.EventMsgSent:
		slog.Debug("block sent", "seq", ev.Seq, "bytes", ev.Size)
	case mga.EventMsgRetry:
		r.Retries++
		slog.Debug("block resent", "seq", ev.Seq, "retries", ev.Retries)
	case mga.EventMsgAcked:
		slog.Debug("block acknowledged", "seq", ev.Seq)
	case mga.EventMsgFailed:
		slog.Warn("block failed", "seq", ev.Seq, "reason", ev.Reason.String(), "info_code", ev.InfoCode)
	case mga.EventProtocolError:
		slog.Debug("unexpected acknowledgement", "seq", ev.Seq)
	case mga.EventWriteError:
		slog.Error("link write failed", "err", ev.Err)
	case mga.EventLegacyPhase:
		slog.Debug("legacy phase", "phase", ev.Phase.String())
	case mga.EventServerRequestCompleted:
		r.Served++
		slog.Debug("receiver read served", "bytes", ev.Size)
	case mga.EventServerUpdated:
		r.Updated++
		slog.Debug("receiver update applied", "bytes", ev.Size)
	case mga.EventServerIDMismatch:
		slog.Warn("receiver update for another file ignored")
	case mga.EventFinish:
		r.Final = ev
		r.Acked, r.Failed = ev.Acked, ev.Failed
		r.Data = ev.Data
		slog.Info("transfer finished", "variant", ev.Variant, "acked", ev.Acked, "failed", ev.Failed, "total", ev.Total)
	case mga.EventTerminated:
		r.Final = ev
		slog.Error("transfer terminated", "variant", ev.Variant, "reason", ev.Reason.String())
	}
}

func openLink(cfg config.Config) (io.ReadWriteCloser, string, error) {
	return link.Open(link.Config{Device: cfg.Link.Device, Baud: cfg.Link.Baud})
}

func engineOptions(cfg config.Config) mga.Options {
	return mga.Options{
		AckTimeout:  cfg.Transfer.AckTimeout,
		MaxRetries:  cfg.Transfer.MaxRetries,
		SmartBudget: cfg.Transfer.SmartBudget,
		Logger:      slog.Default(),
	}
}

func sendOptions(cfg config.Config, now time.Time) (mga.SendOptions, error) {
	flow, err := mga.ParseFlowMode(cfg.Transfer.Flow)
	if err != nil {
		return mga.SendOptions{}, err
	}
	so := mga.SendOptions{Flow: flow}
	if cfg.Transfer.Mode == config.ModeOffline || cfg.Transfer.TimeAdjust == "host" {
		so.Time = &mga.TimeAdjust{Mode: mga.AdjustAbsolute, Time: now.UTC(), Accuracy: cfg.Transfer.TimeAccuracy}
	}
	if cfg.Position.Enable {
		so.Pos = &mga.PosAdjust{
			LatDeg: cfg.Position.LatDeg,
			LonDeg: cfg.Position.LonDeg,
			AltM:   cfg.Position.AltM,
			AccM:   cfg.Position.AccM,
		}
	}
	return so, nil
}

// transfer sends data over port according to cfg.Transfer and waits for
// the engine to finish. port is closed on return.
func transfer(ctx context.Context, cfg config.Config, port io.ReadWriteCloser, data []byte) (*result, error) {
	var tw *trace.Writer
	if cfg.Trace.Enable {
		w, err := trace.Create(cfg.Trace.Path)
		if err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("trace create failed: %w", err)
		}
		tw = w
		defer func() {
			if err := tw.Close(); err != nil {
				slog.Warn("trace close failed", "err", err)
			}
		}()
	}

	conn := link.NewConn(port, link.ConnOptions{Trace: tw})
	res := &result{}
	eng := mga.NewEngine(mga.HostFuncs{Write: conn.WriteToLink, Progress: res.progress}, engineOptions(cfg))

	if err := start(eng, cfg, data); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s transfer: %w", cfg.Transfer.Mode, err)
	}

	r := &link.Runner{Conn: conn, Engine: eng, Tick: cfg.Transfer.Tick}
	if err := r.Run(ctx); err != nil {
		return res, err
	}
	if res.Final.Kind == mga.EventTerminated {
		return res, fmt.Errorf("%s transfer: %w", cfg.Transfer.Mode, res.Final.Err)
	}
	return res, nil
}

func start(eng *mga.Engine, cfg config.Config, data []byte) error {
	switch cfg.Transfer.Mode {
	case config.ModeFlash:
		return eng.SendFlash(data)
	case config.ModeLegacy:
		return eng.SendLegacy(data)
	}
	so, err := sendOptions(cfg, time.Now())
	if err != nil {
		return err
	}
	if cfg.Transfer.Mode == config.ModeOffline {
		return eng.SendOffline(data, so)
	}
	return eng.SendOnline(data, so)
}
