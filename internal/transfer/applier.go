package transfer

import (
	"bytes"
	"context"
	"time"

	"modsync/internal/model"
	"modsync/internal/workspace"
)

// PlanApplier lets the conflict resolver record decisions on a plan while
// reading and writing content directly.
type PlanApplier struct {
	plan *Plan
	exec *Executor
	ws   *workspace.Workspace
}

func NewPlanApplier(plan *Plan, exec *Executor, ws *workspace.Workspace) *PlanApplier {
	return &PlanApplier{plan: plan, exec: exec, ws: ws}
}

func (a *PlanApplier) Push(_ context.Context, path string) error {
	a.plan.Push(path)
	return nil
}

func (a *PlanApplier) Pull(_ context.Context, path string, remote model.FileRecord) error {
	a.plan.Pull(path, remote)
	return nil
}

func (a *PlanApplier) DeleteRemote(_ context.Context, path string) error {
	a.plan.DeleteRemote(path)
	return nil
}

func (a *PlanApplier) ReadLocal(_ context.Context, path string) ([]byte, error) {
	return a.ws.ReadFile(path)
}

func (a *PlanApplier) ReadRemote(ctx context.Context, _ string, remote model.FileRecord) ([]byte, error) {
	return a.exec.Fetch(ctx, a.plan.ProjectID, remote)
}

func (a *PlanApplier) WriteLocal(_ context.Context, path string, data []byte) error {
	return a.ws.WriteFile(path, bytes.NewReader(data), time.Time{})
}
