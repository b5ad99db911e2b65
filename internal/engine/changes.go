package engine

import (
	"context"
	"slices"
	"time"

	"modsync/internal/changebus"
	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/syncerr"
	"modsync/internal/workspace"

	"go.uber.org/zap"
)

const maxActiveFiles = 50

func (e *Engine) Subscribe(projectID string, filters *model.ChangeFilters) (*changebus.Subscription, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	return e.bus.Subscribe(projectID, filters)
}

func (e *Engine) Subscription(id string) (*changebus.Subscription, bool) {
	return e.bus.Get(id)
}

func (e *Engine) Unsubscribe(id string) error {
	return e.bus.Unsubscribe(id)
}

// Broadcast fans change out to live subscribers and persists it on the
// backend. It returns how many subscribers received it.
func (e *Engine) Broadcast(ctx context.Context, change model.ProjectChange) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	if change.ProjectID == "" || change.Path == "" {
		return 0, syncerr.New(syncerr.KindInvalidArgument, "change needs a project id and a path")
	}

	if change.ChangeType == "" {
		change.ChangeType = model.ChangeModified
	}
	if change.Author == "" {
		change.Author = e.cfg.Author
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}

	e.touchSession(change)

	return e.bus.Broadcast(ctx, change), nil
}

func (e *Engine) touchSession(change model.ProjectChange) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[change.ProjectID]
	if !ok {
		return
	}

	s.LastActivity = change.Timestamp
	if !slices.Contains(s.Participants, change.Author) {
		s.Participants = append(s.Participants, change.Author)
	}

	s.ActiveFiles = slices.DeleteFunc(s.ActiveFiles, func(p string) bool { return p == change.Path })
	if change.ChangeType != model.ChangeDeleted {
		s.ActiveFiles = append(s.ActiveFiles, change.Path)
	}
	if len(s.ActiveFiles) > maxActiveFiles {
		s.ActiveFiles = s.ActiveFiles[len(s.ActiveFiles)-maxActiveFiles:]
	}
}

// Watch broadcasts local edits to projectID as they settle, and delivers
// changes collaborators persisted on the backend to local subscribers.
// Watching an already watched project is a no-op.
func (e *Engine) Watch(projectID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	ws, err := e.workspace(projectID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		return syncerr.ErrNotInitialized
	}
	if _, ok := e.watchers[projectID]; ok {
		e.mu.Unlock()
		return nil
	}

	w, err := workspace.NewWatcher(ws, e.cfg.BufferSize)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	changes, err := w.Start(e.cfg.Author)
	if err != nil {
		e.mu.Unlock()
		w.Stop()
		return err
	}
	e.watchers[projectID] = w
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()

		for change := range changes {
			if _, err := e.Broadcast(e.ctx, change); err != nil {
				logger.Log.Warn("failed to broadcast local change",
					zap.String("project", projectID),
					zap.String("path", change.Path),
					zap.Error(err))
			}
		}
	}()

	e.followRemote(projectID)
	return nil
}

func (e *Engine) stopWatch(projectID string) {
	e.mu.Lock()
	w, ok := e.watchers[projectID]
	delete(e.watchers, projectID)
	e.mu.Unlock()

	if ok {
		w.Stop()
	}

	e.unfollowRemote(projectID)
}
