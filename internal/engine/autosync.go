package engine

import (
	"context"
	"time"

	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/syncerr"

	"go.uber.org/zap"
)

// EnableAutoSync runs a bidirectional sync of projectID every interval,
// replacing any schedule already active for it. A zero interval uses the
// configured one.
func (e *Engine) EnableAutoSync(projectID string, interval time.Duration) error {
	if err := e.ready(); err != nil {
		return err
	}

	if projectID == "" {
		return syncerr.New(syncerr.KindInvalidArgument, "project id is required")
	}

	if interval <= 0 {
		interval = e.cfg.SyncInterval()
	}

	if !e.track() {
		return syncerr.ErrNotInitialized
	}

	ctx, cancel := context.WithCancel(e.ctx)
	e.project(projectID).schedule(cancel, interval)

	go e.autoSync(ctx, projectID, interval)

	logger.Log.Info("auto-sync enabled",
		zap.String("project", projectID),
		zap.Duration("interval", interval))

	return nil
}

// DisableAutoSync cancels the project's schedule. A sync already running
// completes.
func (e *Engine) DisableAutoSync(projectID string) bool {
	e.mu.Lock()
	s, ok := e.projects[projectID]
	e.mu.Unlock()

	if !ok || !s.unschedule() {
		return false
	}

	logger.Log.Info("auto-sync disabled",
		zap.String("project", projectID))

	return true
}

func (e *Engine) autoSync(ctx context.Context, projectID string, interval time.Duration) {
	defer e.wg.Done()

	e.timers.Add(1)
	defer e.timers.Add(-1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			_, err := e.SyncProject(context.WithoutCancel(ctx), projectID, model.DirectionBidirectional)
			if err != nil {
				logger.Log.Warn("scheduled sync failed",
					zap.String("project", projectID),
					zap.Error(err))
			}
		}
	}
}
