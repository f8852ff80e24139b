package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/tphummel/rackops/internal/sim"
)

// maxFrame bounds the wall-clock delta of one frame so a stalled process
// does not fast-forward the game when it resumes.
const maxFrame = time.Second

// frameSeconds is the real time to feed the engine for a frame.
func frameSeconds(last, now time.Time) float64 {
	return min(now.Sub(last), maxFrame).Seconds()
}

// runLoop is the frame loop: it ticks the engine with the wall-clock time
// elapsed since the previous frame and autosaves on its own interval. It
// returns when ctx is cancelled.
func runLoop(ctx context.Context, engine *sim.Engine, store sim.Store, cfg config, logger *slog.Logger) {
	frames := time.NewTicker(cfg.TickInterval)
	defer frames.Stop()

	var autosave <-chan time.Time
	if cfg.AutosaveInterval > 0 {
		t := time.NewTicker(cfg.AutosaveInterval)
		defer t.Stop()
		autosave = t.C
	}

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-frames.C:
			rep := engine.Tick(ctx, frameSeconds(last, now))
			last = now
			if rep.Settled > 0 {
				logger.Info("month settled", "months", rep.Settled)
			}
		case <-autosave:
			if err := engine.Save(ctx, store, cfg.Session); err != nil {
				logger.Error("autosave failed", "session", cfg.Session, "error", err)
				continue
			}
			logger.Debug("autosaved", "session", cfg.Session)
		}
	}
}
