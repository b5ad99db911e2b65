package engine

import (
	"context"
	"time"

	"modsync/internal/backend"
	"modsync/internal/logger"
	"modsync/internal/model"

	"go.uber.org/zap"
)

// followRemote polls the backend change feed of projectID. Only changes
// stored after the first poll are delivered.
func (e *Engine) followRemote(projectID string) {
	feed, ok := e.backend.(backend.ChangeFeed)
	interval := e.cfg.FeedInterval()
	if !ok || interval <= 0 {
		return
	}

	e.mu.Lock()
	if _, ok := e.feeds[projectID]; ok || e.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.feeds[projectID] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	go e.pollFeed(ctx, feed, projectID, interval)
}

func (e *Engine) unfollowRemote(projectID string) {
	e.mu.Lock()
	cancel, ok := e.feeds[projectID]
	delete(e.feeds, projectID)
	e.mu.Unlock()

	if ok {
		cancel()
	}
}

func (e *Engine) pollFeed(ctx context.Context, feed backend.ChangeFeed, projectID string, interval time.Duration) {
	defer e.wg.Done()

	_, cursor, err := feed.ChangesSince(ctx, projectID, "")
	if err != nil {
		logger.Log.Warn("change feed unavailable",
			zap.String("project", projectID),
			zap.Error(err))
	}

	logger.Log.Debug("following remote changes",
		zap.String("project", projectID),
		zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			changes, next, err := feed.ChangesSince(ctx, projectID, cursor)
			if err != nil {
				logger.Log.Warn("change feed poll failed",
					zap.String("project", projectID),
					zap.Error(err))
				continue
			}
			cursor = next

			e.deliverRemote(changes)
		}
	}
}

// deliverRemote hands collaborators' changes to local subscribers. Changes
// authored here were delivered when they were broadcast.
func (e *Engine) deliverRemote(changes []model.ProjectChange) {
	for _, change := range changes {
		if change.Author == e.cfg.Author {
			continue
		}

		e.touchSession(change)
		n := e.bus.Deliver(change)

		logger.Log.Debug("remote change delivered",
			zap.String("project", change.ProjectID),
			zap.String("path", change.Path),
			zap.String("author", change.Author),
			zap.Int("subscribers", n))
	}
}
