package conflict

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/syncerr"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	resolvedCacheSize = 4096
	resolvedCacheTTL  = 24 * time.Hour
)

// Applier performs the file operations a resolution implies. During a sync
// it records them on the transfer plan; outside a sync it runs them directly.
type Applier interface {
	Push(ctx context.Context, path string) error
	Pull(ctx context.Context, path string, remote model.FileRecord) error
	DeleteRemote(ctx context.Context, path string) error
	ReadLocal(ctx context.Context, path string) ([]byte, error)
	ReadRemote(ctx context.Context, path string, remote model.FileRecord) ([]byte, error)
	WriteLocal(ctx context.Context, path string, data []byte) error
}

type AuditLog interface {
	Add(rec *model.ResolutionRecord) error
}

type Resolver struct {
	mu       sync.RWMutex
	mergers  map[string]MergeFunc
	resolved *expirable.LRU[string, model.Strategy]
	audit    AuditLog
}

// NewResolver returns a resolver with TextMerge registered for TextExtensions.
// audit may be nil.
func NewResolver(audit AuditLog) *Resolver {
	r := &Resolver{
		mergers:  make(map[string]MergeFunc),
		resolved: expirable.NewLRU[string, model.Strategy](resolvedCacheSize, nil, resolvedCacheTTL),
		audit:    audit,
	}

	for _, ext := range TextExtensions {
		r.RegisterMerger(ext, TextMerge)
	}

	return r
}

// RegisterMerger installs fn for files with the given extension. A nil fn
// removes the registration.
func (r *Resolver) RegisterMerger(ext string, fn MergeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ext = strings.ToLower(ext)
	if fn == nil {
		delete(r.mergers, ext)
		return
	}

	r.mergers[ext] = fn
}

func (r *Resolver) merger(path string) (MergeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.mergers[strings.ToLower(filepath.Ext(path))]
	return fn, ok
}

// IsResolved reports whether conflictID was resolved recently.
func (r *Resolver) IsResolved(conflictID string) bool {
	return r.resolved.Contains(conflictID)
}

// Forget clears resolved markers so the conflicts are resolved again next
// time, used when the sync that applied them failed.
func (r *Resolver) Forget(conflictIDs ...string) {
	for _, id := range conflictIDs {
		r.resolved.Remove(id)
	}
}

// Resolve applies res to c through app. Applying a resolution to an already
// resolved conflict is a no-op.
func (r *Resolver) Resolve(ctx context.Context, app Applier, c model.Conflict, res model.ConflictResolution) error {
	if res.ConflictID != "" && res.ConflictID != c.ID {
		return syncerr.New(syncerr.KindInvalidArgument, "resolution %s does not match conflict %s", res.ConflictID, c.ID)
	}

	if c.FilePath == "" {
		return syncerr.New(syncerr.KindInvalidArgument, "conflict %s has no file path", c.ID)
	}

	if r.IsResolved(c.ID) {
		logger.Log.Debug("conflict already resolved",
			zap.String("conflict_id", c.ID),
			zap.String("path", c.FilePath))
		return nil
	}

	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}

	var err error
	switch res.Strategy {
	case model.StrategyKeepLocal:
		err = r.keepLocal(ctx, app, c)
	case model.StrategyKeepRemote:
		err = app.Pull(ctx, c.FilePath, c.RemoteVersion)
	case model.StrategyMerge:
		err = r.merge(ctx, app, c)
	case model.StrategyCustom:
		err = r.custom(ctx, app, c, res)
	default:
		err = syncerr.New(syncerr.KindInvalidArgument, "unknown resolution strategy %q", res.Strategy)
	}
	if err != nil {
		logger.Log.Warn("conflict resolution failed",
			zap.String("path", c.FilePath),
			zap.String("strategy", string(res.Strategy)),
			zap.Error(err))
		return err
	}

	r.resolved.Add(c.ID, res.Strategy)

	logger.Log.Info("conflict resolved",
		zap.String("path", c.FilePath),
		zap.String("strategy", string(res.Strategy)),
		zap.String("resolved_by", res.ResolvedBy),
		zap.Time("timestamp", res.Timestamp))

	if r.audit != nil {
		rec := &model.ResolutionRecord{
			ConflictID: c.ID,
			ProjectID:  c.ProjectID,
			FilePath:   c.FilePath,
			Strategy:   res.Strategy,
			ResolvedBy: res.ResolvedBy,
			ResolvedAt: res.Timestamp,
		}
		if err := r.audit.Add(rec); err != nil {
			logger.Log.Warn("failed to record resolution",
				zap.String("conflict_id", c.ID),
				zap.Error(err))
		}
	}

	return nil
}

func (r *Resolver) keepLocal(ctx context.Context, app Applier, c model.Conflict) error {
	if c.ConflictType == model.ConflictDeletion {
		return app.DeleteRemote(ctx, c.FilePath)
	}

	return app.Push(ctx, c.FilePath)
}

func (r *Resolver) merge(ctx context.Context, app Applier, c model.Conflict) error {
	if c.ConflictType == model.ConflictDeletion {
		return syncerr.Wrap(syncerr.KindMergeUnsupported, syncerr.ErrMergeUnsupported, "cannot merge deleted file %s", c.FilePath)
	}

	fn, ok := r.merger(c.FilePath)
	if !ok {
		return syncerr.Wrap(syncerr.KindMergeUnsupported, syncerr.ErrMergeUnsupported, "no merge function for %s", c.FilePath)
	}

	local, err := app.ReadLocal(ctx, c.FilePath)
	if err != nil {
		return err
	}

	remote, err := app.ReadRemote(ctx, c.FilePath, c.RemoteVersion)
	if err != nil {
		return err
	}

	merged, err := fn(c.FilePath, local, remote)
	if err != nil {
		return err
	}

	if err := app.WriteLocal(ctx, c.FilePath, merged); err != nil {
		return err
	}

	return app.Push(ctx, c.FilePath)
}

// custom writes the caller's content to both replicas verbatim.
func (r *Resolver) custom(ctx context.Context, app Applier, c model.Conflict, res model.ConflictResolution) error {
	if res.CustomData == nil {
		return syncerr.New(syncerr.KindInvalidArgument, "custom resolution for %s has no data", c.FilePath)
	}

	if err := app.WriteLocal(ctx, c.FilePath, res.CustomData); err != nil {
		return err
	}

	return app.Push(ctx, c.FilePath)
}
