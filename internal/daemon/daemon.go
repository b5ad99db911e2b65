// Package daemon assembles the long-running sync process: backend, engine and
// the host bridge, plus the automation resumed for existing projects.
package daemon

import (
	"context"
	"fmt"
	"net/http"

	"modsync/internal/backend"
	"modsync/internal/bridge"
	"modsync/internal/config"
	"modsync/internal/engine"
	"modsync/internal/logger"
	"modsync/internal/workspace"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Daemon struct {
	cfg    *config.Config
	engine *engine.Engine
	server *bridge.Server
}

// New wires an engine over the configured backend. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, conn *gorm.DB, nodeID string) (*Daemon, error) {
	adapter, err := NewBackend(ctx, cfg, nodeID)
	if err != nil {
		return nil, err
	}

	return NewWithAdapter(cfg, conn, adapter)
}

func NewWithAdapter(cfg *config.Config, conn *gorm.DB, adapter backend.Adapter) (*Daemon, error) {
	eng, err := engine.New(cfg, adapter, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return &Daemon{
		cfg:    cfg,
		engine: eng,
		server: bridge.NewServer(eng, cfg.DaemonPort),
	}, nil
}

func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

func (d *Daemon) Handler() http.Handler {
	return d.server.Handler()
}

// Start connects the engine and resumes projects when cloud sync is enabled,
// then serves the bridge on 127.0.0.1. A disabled daemon still serves the
// bridge; every engine call answers NotInitialized.
func (d *Daemon) Start(ctx context.Context) error {
	if d.cfg.Enabled {
		if err := d.engine.Initialize(ctx); err != nil {
			return err
		}
		d.resume()
	} else {
		logger.Log.Warn("cloud sync disabled, engine not initialized",
			zap.String("backend", string(d.cfg.Backend)))
	}

	d.server.Start()
	return nil
}

// resume restarts auto-sync and watching for every project already in the
// workspace.
func (d *Daemon) resume() {
	ids, err := workspace.Projects(d.cfg.WorkspaceDir)
	if err != nil {
		logger.Log.Warn("failed to list projects", zap.Error(err))
		return
	}

	for _, id := range ids {
		if d.cfg.AutoSync {
			if err := d.engine.EnableAutoSync(id, 0); err != nil {
				logger.Log.Warn("failed to enable auto-sync",
					zap.String("project", id),
					zap.Error(err))
			}
		}

		if d.cfg.Watch {
			if err := d.engine.Watch(id); err != nil {
				logger.Log.Warn("failed to watch project",
					zap.String("project", id),
					zap.Error(err))
			}
		}
	}

	logger.Log.Info("projects resumed",
		zap.Int("count", len(ids)),
		zap.Bool("auto_sync", d.cfg.AutoSync),
		zap.Bool("watch", d.cfg.Watch))
}

// StopCh fires when a client asks the daemon to stop.
func (d *Daemon) StopCh() <-chan struct{} {
	return d.server.StopCh()
}

func (d *Daemon) Stop(ctx context.Context) error {
	if err := d.server.Stop(ctx); err != nil {
		logger.Log.Warn("bridge shutdown failed", zap.Error(err))
	}

	return d.engine.Close()
}
