package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"modsync/internal/asset"
	"modsync/internal/backend"
	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/syncerr"
	"modsync/internal/util"
	"modsync/internal/workspace"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Files larger than AssetThreshold go through the asset pipeline.
	AssetThreshold int64
	IncludeAssets  bool
	Concurrency    int
	Author         string
}

// Outcome is what a plan actually committed. Local and Remote are the
// replica states after the run, Remote carrying the stored version.
type Outcome struct {
	Files    int
	Bytes    int64
	Failures []model.FileFailure
	Local    *model.ProjectState
	Remote   *model.ProjectState
}

type Executor struct {
	opts     Options
	backend  backend.Adapter
	pipeline *asset.Pipeline
}

func NewExecutor(b backend.Adapter, p *asset.Pipeline, opts Options) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	return &Executor{opts: opts, backend: b, pipeline: p}
}

// Fetch downloads and verifies the content behind a remote record.
func (e *Executor) Fetch(ctx context.Context, projectID string, rec model.FileRecord) ([]byte, error) {
	if rec.BlobKey == "" {
		return nil, syncerr.New(syncerr.KindNotFound, "remote record %s has no blob", rec.Checksum)
	}

	return e.pipeline.Download(ctx, e.backend, projectID, rec.BlobKey)
}

// Execute runs plan against ws and the backend. Per-file AssetTooLarge and
// AssetsDisabled failures are recorded and skipped; any other error stops the
// run. Whatever was committed before an error is still written to the remote
// state, and the error is returned alongside the partial outcome.
func (e *Executor) Execute(ctx context.Context, ws *workspace.Workspace, plan *Plan, local, remote *model.ProjectState, progress func(done, total int)) (*Outcome, error) {
	var (
		mu     sync.Mutex
		out    = &Outcome{}
		pushed = make(map[string]model.FileRecord)
		pulled = make(map[string]model.FileRecord)
		done   int
		total  = len(plan.Uploads) + len(plan.Downloads)
	)

	step := func() {
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	fail := func(path string, err error) bool {
		switch syncerr.KindOf(err) {
		case syncerr.KindAssetTooLarge, syncerr.KindAssetsDisabled, syncerr.KindNotFound:
		default:
			return false
		}

		logger.Log.Warn("file skipped",
			zap.String("project", plan.ProjectID),
			zap.String("path", path),
			zap.Error(err))

		out.Failures = append(out.Failures, model.FileFailure{
			Path:  path,
			Kind:  string(syncerr.KindOf(err)),
			Error: err.Error(),
		})
		return true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for _, path := range plan.Uploads {
		g.Go(func() error {
			rec, err := e.upload(gctx, ws, plan.ProjectID, path, local.Files[path])

			mu.Lock()
			defer mu.Unlock()
			defer step()

			if err != nil {
				if fail(path, err) {
					return nil
				}
				return fmt.Errorf("failed to push %s: %w", path, err)
			}

			pushed[path] = rec
			out.Files++
			out.Bytes += rec.Size
			return nil
		})
	}

	for _, d := range plan.Downloads {
		g.Go(func() error {
			err := e.download(gctx, ws, plan.ProjectID, d)

			mu.Lock()
			defer mu.Unlock()
			defer step()

			if err != nil {
				if fail(d.Path, err) {
					return nil
				}
				return fmt.Errorf("failed to pull %s: %w", d.Path, err)
			}

			pulled[d.Path] = d.Record
			out.Files++
			out.Bytes += d.Record.Size
			return nil
		})
	}

	runErr := g.Wait()

	out.Remote = remote.Clone()
	for path, rec := range pushed {
		out.Remote.Files[path] = rec
	}
	if runErr == nil {
		for _, path := range plan.Deletes {
			delete(out.Remote.Files, path)
			out.Files++
		}
	}

	if len(pushed) > 0 || (runErr == nil && len(plan.Deletes) > 0) {
		version, err := e.backend.PutState(ctx, out.Remote)
		if err != nil {
			return out, errors.Join(runErr, err)
		}
		out.Remote.Version = version
	}

	out.Local = local.Clone()
	for path, rec := range pushed {
		out.Local.Files[path] = rec
	}
	for path, rec := range pulled {
		out.Local.Files[path] = rec
	}
	out.Local.Version = out.Remote.Version

	return out, runErr
}

func (e *Executor) upload(ctx context.Context, ws *workspace.Workspace, projectID, path string, known model.FileRecord) (model.FileRecord, error) {
	abs, err := ws.Abs(path)
	if err != nil {
		return model.FileRecord{}, err
	}

	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return model.FileRecord{}, syncerr.Wrap(syncerr.KindNotFound, err, "%s disappeared before upload", path)
	}
	if err != nil {
		return model.FileRecord{}, err
	}

	asAsset := info.Size() > e.opts.AssetThreshold
	if asAsset {
		if !e.opts.IncludeAssets {
			return model.FileRecord{}, syncerr.Wrap(syncerr.KindAssetsDisabled, syncerr.ErrAssetsDisabled, "%s is an asset", path)
		}
		if err := e.pipeline.CheckSize(path, info.Size()); err != nil {
			return model.FileRecord{}, err
		}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return model.FileRecord{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var key string
	if asAsset {
		key, err = e.pipeline.Upload(ctx, e.backend, projectID, data)
	} else {
		key, err = e.pipeline.UploadRaw(ctx, e.backend, projectID, data)
	}
	if err != nil {
		return model.FileRecord{}, err
	}

	rec := model.FileRecord{
		Checksum:  util.HashBytes(data),
		Timestamp: info.ModTime().UTC(),
		Author:    e.opts.Author,
		Size:      int64(len(data)),
		BlobKey:   key,
	}
	if known.Checksum == rec.Checksum && known.Author != "" {
		rec.Author = known.Author
	}

	logger.Log.Debug("pushed",
		zap.String("project", projectID),
		zap.String("path", path),
		zap.String("key", key))

	return rec, nil
}

func (e *Executor) download(ctx context.Context, ws *workspace.Workspace, projectID string, d Download) error {
	data, err := e.Fetch(ctx, projectID, d.Record)
	if err != nil {
		return err
	}

	ts := d.Record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	if err := ws.WriteFile(d.Path, bytes.NewReader(data), ts); err != nil {
		return err
	}

	logger.Log.Debug("pulled",
		zap.String("project", projectID),
		zap.String("path", d.Path),
		zap.String("key", d.Record.BlobKey))

	return nil
}
