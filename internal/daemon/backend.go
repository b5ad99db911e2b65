package daemon

import (
	"context"
	"fmt"

	"modsync/internal/auth"
	"modsync/internal/backend"
	"modsync/internal/backend/dropbox"
	"modsync/internal/backend/gdrive"
	"modsync/internal/backend/hub"
	"modsync/internal/backend/localfs"
	"modsync/internal/backend/peer"
	"modsync/internal/backend/s3"
	"modsync/internal/config"
)

// NewBackend builds the adapter selected by cfg.Backend. nodeID identifies
// this machine to p2p peers.
func NewBackend(ctx context.Context, cfg *config.Config, nodeID string) (backend.Adapter, error) {
	store, err := newStore(ctx, cfg, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Backend, err)
	}

	return backend.NewObjectAdapter(string(cfg.Backend), store), nil
}

func newStore(ctx context.Context, cfg *config.Config, nodeID string) (backend.ObjectStore, error) {
	switch cfg.Backend {
	case config.BackendFS:
		return localfs.New(cfg.FS.Dir)

	case config.BackendSelfHosted:
		return hub.NewClient(cfg.SelfHosted.URL, cfg.SelfHosted.Token), nil

	case config.BackendAWS:
		return s3.New(ctx, cfg.S3)

	case config.BackendSupabase:
		return s3.New(ctx, cfg.Supabase)

	case config.BackendFirebase:
		svc, err := auth.GDrive.NewService(ctx)
		if err != nil {
			return nil, err
		}
		return gdrive.New(svc, cfg.GDrive.Folder), nil

	case config.BackendDropbox:
		client, err := auth.Dropbox.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		return dropbox.New(client, cfg.Dropbox.Folder), nil

	case config.BackendP2P:
		return peer.NewClient(cfg.Peer.Addr, nodeID), nil

	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}
