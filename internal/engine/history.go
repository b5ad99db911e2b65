package engine

import (
	"context"

	"modsync/internal/model"
	"modsync/internal/syncerr"
)

func (e *Engine) GetProjectHistory(ctx context.Context, projectID string) ([]model.ProjectSnapshot, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	if projectID == "" {
		return nil, syncerr.New(syncerr.KindInvalidArgument, "project id is required")
	}

	return e.snapshots.History(ctx, projectID)
}

// RestoreSnapshot rewrites the local workspace to the snapshot's state. Run a
// sync afterwards to reconcile the backend.
func (e *Engine) RestoreSnapshot(ctx context.Context, snapshotID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	snap, err := e.snapshots.Get(snapshotID)
	if err != nil {
		return err
	}

	ws, err := e.workspace(snap.ProjectID)
	if err != nil {
		return err
	}

	state := e.project(snap.ProjectID)
	if !state.syncLock.TryLock() {
		return syncerr.Wrap(syncerr.KindSyncInProgress, syncerr.ErrSyncInProgress, "project %s", snap.ProjectID)
	}
	defer state.syncLock.Unlock()

	if _, err := e.unlock(ws); err != nil {
		return err
	}

	return e.snapshots.Restore(ctx, ws, snap, e.executor)
}

// Resolutions lists the project's most recent applied resolutions.
func (e *Engine) Resolutions(projectID string, n int) ([]model.ResolutionRecord, error) {
	return e.resolutions.ListByProject(projectID, n)
}
