package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"assistnow/internal/mga"
	"assistnow/internal/ubx"
)

const DefaultTick = 100 * time.Millisecond

// Engine is the part of *mga.Engine the runner drives.
type Engine interface {
	OnInbound(frame []byte) error
	OnTimeoutTick() error
	Active() bool
	Stop() error
}

// Runner pumps one transfer: it must be started after the engine's Send
// call. Run closes the Conn when it returns.
type Runner struct {
	Conn   *Conn
	Engine Engine

	// Tick is the timeout check cadence. Defaults to DefaultTick.
	Tick time.Duration
	// MaxFrame bounds inbound frames. Defaults to ubx.DefaultMaxFrame.
	MaxFrame int

	Logger *slog.Logger
}

// errTransferDone stops the group once the engine goes idle.
var errTransferDone = errors.New("transfer done")

// Run blocks until the engine goes idle, ctx is cancelled, or the link
// fails. A cancelled or failed run stops the engine first.
func (r *Runner) Run(ctx context.Context) error {
	if r.Conn == nil || r.Engine == nil {
		return fmt.Errorf("link runner: conn and engine are required")
	}
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	tick := r.Tick
	if tick <= 0 {
		tick = DefaultTick
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sp := ubx.Splitter{MaxFrame: r.MaxFrame}
		buf := make([]byte, 4096)
		for {
			n, err := r.Conn.Read(buf)
			for _, frame := range sp.Feed(buf[:n]) {
				r.Conn.Received(frame)
				if err := r.Engine.OnInbound(frame); err != nil && !errors.Is(err, mga.ErrAlreadyIdle) {
					log.Debug("link inbound frame rejected", "err", err)
				}
			}
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("link read: %w", err)
			}
		}
	})

	g.Go(func() error {
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			if !r.Engine.Active() {
				// Idle because the closer stopped it: not a finished transfer.
				if gctx.Err() != nil {
					return nil
				}
				return errTransferDone
			}
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
			}
			if err := r.Engine.OnTimeoutTick(); err != nil && !errors.Is(err, mga.ErrAlreadyIdle) {
				return err
			}
		}
	})

	// The engine is stopped before the port closes, so a cancelled session
	// ends at once even while the reader is still parked. Closing the port
	// then unblocks the reader.
	g.Go(func() error {
		<-gctx.Done()
		if r.Engine.Stop() == nil {
			log.Warn("link runner stopped an active transfer")
		}
		return r.Conn.Close()
	})

	err := g.Wait()
	if errors.Is(err, errTransferDone) {
		return nil
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}
