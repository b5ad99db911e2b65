package daemon

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"modsync/internal/backend"
	"modsync/internal/backend/hub"
	"modsync/internal/backend/localfs"
	"modsync/internal/bridge"
	"modsync/internal/config"
	"modsync/internal/db"
	"modsync/internal/model"
	"modsync/internal/syncerr"
	"modsync/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default
	cfg.Enabled = true
	cfg.Author = "alice"
	cfg.EncryptionKey = "test-key"
	cfg.WorkspaceDir = filepath.Join(t.TempDir(), "projects")
	cfg.FS.Dir = filepath.Join(t.TempDir(), "remote")
	return &cfg
}

func newDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "modsync.db"))
	require.NoError(t, err)

	store, err := localfs.New(cfg.FS.Dir)
	require.NoError(t, err)

	d, err := NewWithAdapter(cfg, conn, backend.NewObjectAdapter("fs", store))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Engine().Close() })
	return d
}

func TestNewBackendFS(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend = config.BackendFS

	adapter, err := NewBackend(context.Background(), cfg, "node-1")
	require.NoError(t, err)
	assert.Equal(t, "fs", adapter.Name())
	require.NoError(t, adapter.Connect(context.Background()))
	assert.DirExists(t, cfg.FS.Dir)
}

func TestNewBackendSelfHosted(t *testing.T) {
	srv, err := hub.NewServer(t.TempDir(), "", "secret")
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := testConfig(t)
	cfg.Backend = config.BackendSelfHosted
	cfg.SelfHosted = config.SelfHostedConfig{URL: ts.URL, Token: "secret"}

	adapter, err := NewBackend(context.Background(), cfg, "node-1")
	require.NoError(t, err)
	assert.Equal(t, "self-hosted", adapter.Name())

	ctx := context.Background()
	require.NoError(t, adapter.Connect(ctx))

	state := model.NewProjectState("p1")
	state.Files["a.esp"] = model.FileRecord{Checksum: "1", Author: "alice"}
	v, err := adapter.PutState(ctx, state)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
}

func TestNewBackendUnknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend = "carrier-pigeon"

	_, err := NewBackend(context.Background(), cfg, "node-1")
	assert.Error(t, err)
}

func TestResumeSchedulesExistingProjects(t *testing.T) {
	cfg := testConfig(t)
	for _, id := range []string{"p1", "p2"} {
		ws, err := workspace.New(cfg.WorkspaceDir, id, cfg.Author, nil)
		require.NoError(t, err)
		require.NoError(t, ws.Ensure())
	}

	d := newDaemon(t, cfg)
	require.NoError(t, d.Engine().Initialize(context.Background()))
	d.resume()

	for _, id := range []string{"p1", "p2"} {
		status, ok := d.Engine().GetStatus(id)
		require.True(t, ok, id)
		assert.False(t, status.NextSyncTime.IsZero(), id)
	}

	assert.True(t, d.Engine().DisableAutoSync("p1"))
}

func TestDisabledDaemonAnswersNotInitialized(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enabled = false

	d := newDaemon(t, cfg)
	ts := httptest.NewServer(d.Handler())
	t.Cleanup(ts.Close)

	client := bridge.NewClient(ts.URL)
	_, err := client.SyncProject(context.Background(), "p1", model.DirectionPush)
	assert.Equal(t, syncerr.KindNotInitialized, syncerr.KindOf(err))
}
