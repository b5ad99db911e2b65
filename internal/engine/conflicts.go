package engine

import (
	"context"
	"slices"

	"modsync/internal/conflict"
	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/syncerr"
	"modsync/internal/transfer"

	"go.uber.org/zap"
)

// DetectConflicts compares the local workspace with the backend without
// changing either.
func (e *Engine) DetectConflicts(ctx context.Context, projectID string) ([]model.Conflict, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	ws, err := e.workspace(projectID)
	if err != nil {
		return nil, err
	}

	local, err := ws.Scan(ctx)
	if err != nil {
		return nil, err
	}

	remote, err := e.backend.GetState(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return conflict.Detect(local, remote), nil
}

// ResolveConflict applies res to c outside of a sync and transfers exactly
// what the resolution implies.
func (e *Engine) ResolveConflict(ctx context.Context, c model.Conflict, res model.ConflictResolution) error {
	if err := e.ready(); err != nil {
		return err
	}

	if c.ID == "" || c.ProjectID == "" {
		return syncerr.New(syncerr.KindInvalidArgument, "conflict is missing its id or project")
	}

	if res.Strategy == "" {
		return syncerr.New(syncerr.KindInvalidArgument, "resolution strategy is required")
	}

	if res.ResolvedBy == "" {
		res.ResolvedBy = e.cfg.Author
	}

	ws, err := e.workspace(c.ProjectID)
	if err != nil {
		return err
	}

	state := e.project(c.ProjectID)
	if !state.syncLock.TryLock() {
		return syncerr.Wrap(syncerr.KindSyncInProgress, syncerr.ErrSyncInProgress, "project %s", c.ProjectID)
	}
	defer state.syncLock.Unlock()

	if _, err := e.unlock(ws); err != nil {
		return err
	}

	local, err := ws.Scan(ctx)
	if err != nil {
		return err
	}

	remote, err := e.backend.GetState(ctx, c.ProjectID)
	if err != nil {
		return err
	}

	// only a resolution whose conflict is gone is already applied
	if slices.ContainsFunc(conflict.Detect(local, remote), func(d model.Conflict) bool { return d.ID == c.ID }) {
		e.resolver.Forget(c.ID)
	}

	plan := transfer.NewPlan(c.ProjectID)
	if err := e.resolver.Resolve(ctx, transfer.NewPlanApplier(plan, e.executor, ws), c, res); err != nil {
		return err
	}

	local, err = ws.Scan(ctx)
	if err != nil {
		e.resolver.Forget(c.ID)
		return err
	}

	remote, err = e.backend.GetState(ctx, c.ProjectID)
	if err != nil {
		e.resolver.Forget(c.ID)
		return err
	}

	plan.Finalize(local, remote, "")
	if plan.Empty() {
		return nil
	}

	out, err := e.executor.Execute(ctx, ws, plan, local, remote, nil)
	if out != nil && out.Local != nil {
		if serr := e.saveManifest(ws, out.Local); serr != nil {
			logger.Log.Warn("failed to save manifest",
				zap.String("project", c.ProjectID),
				zap.Error(serr))
		}
	}
	if err == nil && out != nil && len(out.Failures) > 0 {
		f := out.Failures[0]
		err = syncerr.New(syncerr.Kind(f.Kind), "%s", f.Error)
	}
	if err != nil {
		e.resolver.Forget(c.ID)
		return err
	}

	return nil
}
