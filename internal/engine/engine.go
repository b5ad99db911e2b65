// Package engine coordinates project syncs: it owns per-project status, the
// auto-sync timers, the change bus and the snapshot history, and sequences
// detection, resolution, transfer and snapshotting for every sync.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"modsync/internal/asset"
	"modsync/internal/backend"
	"modsync/internal/changebus"
	"modsync/internal/config"
	"modsync/internal/conflict"
	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/repository"
	"modsync/internal/snapshot"
	"modsync/internal/syncerr"
	"modsync/internal/transfer"
	"modsync/internal/workspace"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Engine struct {
	cfg     *config.Config
	backend backend.Adapter

	pipeline    *asset.Pipeline
	executor    *transfer.Executor
	resolver    *conflict.Resolver
	snapshots   *snapshot.Store
	bus         *changebus.Bus
	assets      *repository.AssetRepository
	resolutions *repository.ResolutionRepository

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	timers atomic.Int32

	initialized atomic.Bool

	keyMu    sync.Mutex
	mu       sync.Mutex
	projects map[string]*projectState
	sessions map[string]*model.CollaborationSession
	watchers map[string]*workspace.Watcher
	feeds    map[string]context.CancelFunc
}

// New builds an engine over adapter, keeping its local records in conn. The
// engine is unusable until Initialize succeeds.
func New(cfg *config.Config, adapter backend.Adapter, conn *gorm.DB) (*Engine, error) {
	p, err := asset.New(asset.Options{
		Compress:   cfg.CompressionEnabled,
		Encrypt:    cfg.EncryptionEnabled,
		Passphrase: cfg.EncryptionKey,
		MaxSize:    cfg.MaxUploadSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create asset pipeline: %w", err)
	}

	resolutions := repository.NewResolutionRepository(conn)
	executor := transfer.NewExecutor(adapter, p, transfer.Options{
		AssetThreshold: cfg.AssetThreshold,
		IncludeAssets:  cfg.IncludeAssets,
		Concurrency:    cfg.Concurrency(),
		Author:         cfg.Author,
	})
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:         cfg,
		backend:     adapter,
		pipeline:    p,
		executor:    executor,
		resolver:    conflict.NewResolver(resolutions),
		snapshots:   snapshot.New(repository.NewSnapshotRepository(conn), adapter),
		bus:         changebus.New(adapter, cfg.BufferSize),
		assets:      repository.NewAssetRepository(conn),
		resolutions: resolutions,
		ctx:         ctx,
		cancel:      cancel,
		projects:    make(map[string]*projectState),
		sessions:    make(map[string]*model.CollaborationSession),
		watchers:    make(map[string]*workspace.Watcher),
		feeds:       make(map[string]context.CancelFunc),
	}

	return e, nil
}

// Initialize connects the backend. Until it succeeds every operation fails
// with NotInitialized.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.backend.Connect(ctx); err != nil {
		return syncerr.Wrap(syncerr.KindNotInitialized, err, "failed to connect %s backend", e.backend.Name())
	}

	e.initialized.Store(true)

	logger.Log.Info("sync engine initialized",
		zap.String("backend", e.backend.Name()),
		zap.String("mode", string(e.cfg.ConflictResolutionMode)))

	return nil
}

func (e *Engine) ready() error {
	if !e.initialized.Load() {
		return syncerr.ErrNotInitialized
	}

	return nil
}

func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Resolver exposes the conflict resolver so callers can register mergers.
func (e *Engine) Resolver() *conflict.Resolver {
	return e.resolver
}

func (e *Engine) project(projectID string) *projectState {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.projects[projectID]
	if !ok {
		s = newProjectState(projectID)
		e.projects[projectID] = s
	}

	return s
}

func (e *Engine) workspace(projectID string) (*workspace.Workspace, error) {
	return workspace.New(e.cfg.WorkspaceDir, projectID, e.cfg.Author, e.cfg.IgnoreList)
}

// GetStatus returns the project's live status. ok is false for a project the
// engine has never seen.
func (e *Engine) GetStatus(projectID string) (model.SyncStatus, bool) {
	e.mu.Lock()
	s, ok := e.projects[projectID]
	e.mu.Unlock()

	if !ok {
		return model.SyncStatus{}, false
	}

	return s.Snapshot(), true
}

// TeardownProject stops everything the engine runs on behalf of projectID.
func (e *Engine) TeardownProject(projectID string) {
	e.DisableAutoSync(projectID)
	e.stopWatch(projectID)
	e.bus.UnsubscribeProject(projectID)

	e.mu.Lock()
	delete(e.sessions, projectID)
	e.mu.Unlock()

	logger.Log.Info("project torn down",
		zap.String("project", projectID))
}

// track adds a background goroutine to the wait group, refusing once Close
// has started.
func (e *Engine) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx.Err() != nil {
		return false
	}

	e.wg.Add(1)
	return true
}

func (e *Engine) Close() error {
	e.initialized.Store(false)

	e.mu.Lock()
	e.cancel()
	for id := range e.projects {
		e.projects[id].unschedule()
	}
	for id, w := range e.watchers {
		w.Stop()
		delete(e.watchers, id)
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.bus.Close()
	e.pipeline.Close()

	return e.backend.Close()
}

// SyncProject reconciles the local workspace with the backend. Files already
// transferred when a later step fails stay transferred; running the sync
// again converges.
func (e *Engine) SyncProject(ctx context.Context, projectID string, dir model.Direction) (model.SyncResult, error) {
	if dir == "" {
		dir = model.DirectionBidirectional
	}

	start := time.Now()
	result := model.SyncResult{
		ProjectID: projectID,
		Direction: dir,
		Timestamp: start,
	}

	fail := func(err error) (model.SyncResult, error) {
		result.Success = false
		result.Error = err.Error()
		result.ErrorKind = string(syncerr.KindOf(err))
		result.Duration = time.Since(start)
		return result, err
	}

	if err := e.ready(); err != nil {
		return fail(err)
	}

	if !dir.Valid() {
		return fail(syncerr.New(syncerr.KindInvalidArgument, "invalid direction %q", dir))
	}

	ws, err := e.workspace(projectID)
	if err != nil {
		return fail(err)
	}

	state := e.project(projectID)
	if !state.syncLock.TryLock() {
		return fail(syncerr.Wrap(syncerr.KindSyncInProgress, syncerr.ErrSyncInProgress, "project %s", projectID))
	}
	defer state.syncLock.Unlock()

	state.begin()

	logger.Log.Info("sync started",
		zap.String("project", projectID),
		zap.String("direction", string(dir)))

	err = e.runSync(ctx, ws, dir, state, &result)
	state.finish(err, time.Now())

	result.Duration = time.Since(start)
	if err != nil {
		logger.Log.Warn("sync failed",
			zap.String("project", projectID),
			zap.Int("files", result.FilesSync),
			zap.Error(err))
		return fail(err)
	}

	result.Success = true

	logger.Log.Info("sync finished",
		zap.String("project", projectID),
		zap.String("direction", string(dir)),
		zap.Int("files", result.FilesSync),
		zap.Int64("bytes", result.BytesSync),
		zap.Int("conflicts", result.ConflictsDetected),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (e *Engine) runSync(ctx context.Context, ws *workspace.Workspace, dir model.Direction, state *projectState, result *model.SyncResult) error {
	projectID := ws.ProjectID()

	if _, err := e.unlock(ws); err != nil {
		return err
	}

	state.progress(20, "fetching state")
	local, err := ws.Scan(ctx)
	if err != nil {
		return err
	}

	remote, err := e.backend.GetState(ctx, projectID)
	if err != nil {
		return err
	}

	state.progress(40, "detecting conflicts")
	conflicts := conflict.Detect(local, remote)
	result.ConflictsDetected = len(conflicts)

	plan := transfer.NewPlan(projectID)
	app := transfer.NewPlanApplier(plan, e.executor, ws)

	// anything detected now has diverged again since it was last resolved
	for _, c := range conflicts {
		e.resolver.Forget(c.ID)
	}

	var resolved []string
	for _, c := range conflicts {
		if e.cfg.ConflictResolutionMode == config.ModeManual {
			plan.Hold(c.FilePath)
			result.Conflicts = append(result.Conflicts, c)
			continue
		}

		res := model.ConflictResolution{
			ConflictID: c.ID,
			Strategy:   c.SuggestedStrategy,
			ResolvedBy: e.cfg.Author,
		}
		if err := e.resolver.Resolve(ctx, app, c, res); err != nil {
			e.resolver.Forget(resolved...)
			return err
		}
		resolved = append(resolved, c.ID)
	}
	result.ConflictsResolved = len(resolved)

	state.progress(60, "transferring")
	plan.Finalize(local, remote, dir)

	out, err := e.executor.Execute(ctx, ws, plan, local, remote, func(done, total int) {
		state.progress(60+30*done/total, "transferring")
	})
	if out != nil {
		result.FilesSync = out.Files
		result.BytesSync = out.Bytes
		result.Failures = out.Failures
	}
	if out != nil && out.Local != nil {
		if serr := e.saveManifest(ws, out.Local); serr != nil {
			err = errors.Join(err, serr)
		}
	}
	if err != nil {
		e.resolver.Forget(resolved...)
		return err
	}

	state.progress(90, "recording snapshot")
	snap, err := e.snapshots.Create(ctx, out.Local, e.cfg.Author, "Auto-sync: "+string(dir))
	if err != nil {
		return err
	}
	result.SnapshotID = snap.ID

	return nil
}

func (e *Engine) saveManifest(ws *workspace.Workspace, local *model.ProjectState) error {
	m, err := ws.LoadManifest()
	if err != nil {
		return err
	}

	m.Files = local.Files
	m.Version = local.Version
	m.LastSyncTime = time.Now().UTC()

	return ws.SaveManifest(m)
}
