package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"modsync/internal/backend"
	"modsync/internal/backend/localfs"
	"modsync/internal/config"
	"modsync/internal/db"
	"modsync/internal/model"
	"modsync/internal/syncerr"
	"modsync/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, author string) *config.Config {
	t.Helper()

	cfg := config.Default
	cfg.Author = author
	cfg.WorkspaceDir = filepath.Join(t.TempDir(), "projects")
	cfg.EncryptionKey = "test-key"
	cfg.AssetThreshold = 16
	cfg.MaxUploadSize = 1 << 20
	cfg.IgnoreList = []string{"**/*.tmp"}
	return &cfg
}

func sharedBackend(t *testing.T) *backend.ObjectAdapter {
	t.Helper()

	store, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	return backend.NewObjectAdapter("fs", store)
}

func newEngine(t *testing.T, cfg *config.Config, b backend.Adapter) *Engine {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "modsync.db"))
	require.NoError(t, err)

	e, err := New(cfg, b, conn)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func projectWorkspace(t *testing.T, e *Engine, projectID string) *workspace.Workspace {
	t.Helper()

	ws, err := e.workspace(projectID)
	require.NoError(t, err)
	require.NoError(t, ws.Ensure())
	return ws
}

func write(t *testing.T, ws *workspace.Workspace, path, content string, ts time.Time) {
	t.Helper()
	require.NoError(t, ws.WriteFile(path, strings.NewReader(content), ts))
}

func read(t *testing.T, ws *workspace.Workspace, path string) string {
	t.Helper()
	data, err := ws.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

type brokenAdapter struct {
	backend.Adapter
}

func (brokenAdapter) Connect(context.Context) error {
	return errors.New("connection refused")
}

func TestNotInitialized(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "modsync.db"))
	require.NoError(t, err)

	e, err := New(testConfig(t, "alice"), brokenAdapter{sharedBackend(t)}, conn)
	require.NoError(t, err)

	err = e.Initialize(context.Background())
	assert.Equal(t, syncerr.KindNotInitialized, syncerr.KindOf(err))

	result, err := e.SyncProject(context.Background(), "p1", model.DirectionPush)
	assert.ErrorIs(t, err, syncerr.ErrNotInitialized)
	assert.False(t, result.Success)
	assert.Equal(t, string(syncerr.KindNotInitialized), result.ErrorKind)

	assert.ErrorIs(t, e.EnableAutoSync("p1", time.Second), syncerr.ErrNotInitialized)
	_, err = e.UploadAsset(context.Background(), "p1", "x")
	assert.ErrorIs(t, err, syncerr.ErrNotInitialized)
}

func TestPushWithNoChanges(t *testing.T) {
	e := newEngine(t, testConfig(t, "alice"), sharedBackend(t))
	projectWorkspace(t, e, "p1")

	result, err := e.SyncProject(context.Background(), "p1", model.DirectionPush)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Zero(t, result.FilesSync)
	assert.Zero(t, result.ConflictsDetected)
	assert.NotEmpty(t, result.SnapshotID)

	status, ok := e.GetStatus("p1")
	require.True(t, ok)
	assert.False(t, status.IsSyncing)
	assert.Equal(t, 100, status.SyncProgress)
	assert.False(t, status.LastSyncTime.IsZero())
	assert.True(t, status.NextSyncTime.IsZero())

	_, ok = e.GetStatus("unknown")
	assert.False(t, ok)
}

func TestSyncMissingProject(t *testing.T) {
	e := newEngine(t, testConfig(t, "alice"), sharedBackend(t))

	result, err := e.SyncProject(context.Background(), "ghost", model.DirectionPull)
	assert.Equal(t, syncerr.KindProjectNotFound, syncerr.KindOf(err))
	assert.False(t, result.Success)

	status, ok := e.GetStatus("ghost")
	require.True(t, ok)
	assert.False(t, status.IsSyncing)
	assert.Zero(t, status.SyncProgress)
	assert.NotEmpty(t, status.Error)

	_, err = e.SyncProject(context.Background(), "p1", "sideways")
	assert.Equal(t, syncerr.KindInvalidArgument, syncerr.KindOf(err))
}

func TestOverlappingSyncFails(t *testing.T) {
	e := newEngine(t, testConfig(t, "alice"), sharedBackend(t))
	projectWorkspace(t, e, "p1")

	state := e.project("p1")
	state.syncLock.Lock()

	_, err := e.SyncProject(context.Background(), "p1", model.DirectionBidirectional)
	assert.ErrorIs(t, err, syncerr.ErrSyncInProgress)

	// other projects are not blocked
	projectWorkspace(t, e, "p2")
	_, err = e.SyncProject(context.Background(), "p2", model.DirectionBidirectional)
	assert.NoError(t, err)

	state.syncLock.Unlock()
	_, err = e.SyncProject(context.Background(), "p1", model.DirectionBidirectional)
	assert.NoError(t, err)
}

func TestShareJoinAndPull(t *testing.T) {
	ctx := context.Background()
	b := sharedBackend(t)
	alice := newEngine(t, testConfig(t, "alice"), b)
	bob := newEngine(t, testConfig(t, "bob"), b)

	aws := projectWorkspace(t, alice, "p1")
	write(t, aws, "plugin.esp", "TES4", time.Time{})
	write(t, aws, "Meshes/armor.nif", strings.Repeat("nif", 100), time.Time{})
	write(t, aws, "scratch.tmp", "ignored", time.Time{})

	pushed, err := alice.SyncProject(ctx, "p1", model.DirectionPush)
	require.NoError(t, err)
	assert.Equal(t, 2, pushed.FilesSync)

	share, err := alice.ShareProject(ctx, "p1", []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, share.SharedWith)
	assert.WithinDuration(t, time.Now().Add(InviteTTL), share.ExpiresAt, time.Minute)

	joined, err := bob.JoinProject(ctx, share.InviteCode)
	require.NoError(t, err)
	assert.Equal(t, "p1", joined.ProjectID)
	assert.Equal(t, JoinedRole, joined.Role)
	assert.Equal(t, model.DefaultPermissions, joined.Permissions)

	pulled, err := bob.SyncProject(ctx, "p1", model.DirectionPull)
	require.NoError(t, err)
	assert.Equal(t, 2, pulled.ConflictsDetected)
	assert.Equal(t, 2, pulled.ConflictsResolved)
	assert.Equal(t, 2, pulled.FilesSync)

	bws := projectWorkspace(t, bob, "p1")
	assert.Equal(t, "TES4", read(t, bws, "plugin.esp"))
	assert.Equal(t, strings.Repeat("nif", 100), read(t, bws, "Meshes/armor.nif"))

	again, err := bob.SyncProject(ctx, "p1", model.DirectionBidirectional)
	require.NoError(t, err)
	assert.Zero(t, again.FilesSync)
	assert.Zero(t, again.ConflictsDetected)

	session, ok := bob.GetCollaborationSession("p1")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"alice", "bob"}, session.Participants)
	assert.Equal(t, model.SessionActive, session.Status)
}

func TestJoinRejectsBadInvites(t *testing.T) {
	ctx := context.Background()
	b := sharedBackend(t)
	e := newEngine(t, testConfig(t, "bob"), b)

	_, err := e.JoinProject(ctx, "no-such-code")
	assert.Equal(t, syncerr.KindNotFound, syncerr.KindOf(err))

	require.NoError(t, b.PutInvite(ctx, model.Invite{
		Code:      "old",
		ProjectID: "p1",
		ExpiresAt: time.Now().Add(-time.Hour),
	}))
	_, err = e.JoinProject(ctx, "old")
	assert.ErrorIs(t, err, syncerr.ErrInviteExpired)
}

func TestManualModeHoldsConflicts(t *testing.T) {
	ctx := context.Background()
	b := sharedBackend(t)
	alice := newEngine(t, testConfig(t, "alice"), b)

	cfg := testConfig(t, "bob")
	cfg.ConflictResolutionMode = config.ModeManual
	bob := newEngine(t, cfg, b)

	aws := projectWorkspace(t, alice, "p1")
	write(t, aws, "a.esp", "alice", time.Time{})
	_, err := alice.SyncProject(ctx, "p1", model.DirectionPush)
	require.NoError(t, err)

	bws := projectWorkspace(t, bob, "p1")
	write(t, bws, "a.esp", "bob", time.Now().Add(-time.Hour))

	result, err := bob.SyncProject(ctx, "p1", model.DirectionBidirectional)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Zero(t, result.ConflictsResolved)
	assert.Zero(t, result.FilesSync)
	assert.Equal(t, "bob", read(t, bws, "a.esp"))

	detected, err := bob.DetectConflicts(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, detected, 1)
	assert.Equal(t, result.Conflicts[0].ID, detected[0].ID)

	c := detected[0]
	require.NoError(t, bob.ResolveConflict(ctx, c, model.ConflictResolution{ConflictID: c.ID, Strategy: model.StrategyKeepRemote}))
	assert.Equal(t, "alice", read(t, bws, "a.esp"))

	// applying it again changes nothing
	require.NoError(t, bob.ResolveConflict(ctx, c, model.ConflictResolution{ConflictID: c.ID, Strategy: model.StrategyKeepRemote}))

	recs, err := bob.Resolutions("p1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "bob", recs[0].ResolvedBy)

	detected, err = bob.DetectConflicts(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, detected)
}

func TestRecurringConflictIsResolvedAgain(t *testing.T) {
	ctx := context.Background()
	b := sharedBackend(t)
	alice := newEngine(t, testConfig(t, "alice"), b)

	cfg := testConfig(t, "bob")
	cfg.ConflictResolutionMode = config.ModeManual
	bob := newEngine(t, cfg, b)

	aws := projectWorkspace(t, alice, "p1")
	write(t, aws, "a.esp", "alice", time.Time{})
	_, err := alice.SyncProject(ctx, "p1", model.DirectionPush)
	require.NoError(t, err)

	bws := projectWorkspace(t, bob, "p1")
	write(t, bws, "a.esp", "bob", time.Now().Add(-time.Hour))

	first, err := bob.DetectConflicts(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NoError(t, bob.ResolveConflict(ctx, first[0], model.ConflictResolution{Strategy: model.StrategyKeepRemote}))
	assert.Equal(t, "alice", read(t, bws, "a.esp"))

	// the same contents diverge again
	write(t, bws, "a.esp", "bob", time.Now().Add(-30*time.Minute))

	second, err := bob.DetectConflicts(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)

	require.NoError(t, bob.ResolveConflict(ctx, second[0], model.ConflictResolution{Strategy: model.StrategyKeepLocal}))

	left, err := bob.DetectConflicts(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, left)

	remote, err := b.GetState(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "bob", remote.Files["a.esp"].Author)

	recs, err := bob.Resolutions("p1", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRecurringDeletionIsResolvedAgain(t *testing.T) {
	ctx := context.Background()
	b := sharedBackend(t)
	alice := newEngine(t, testConfig(t, "alice"), b)

	cfg := testConfig(t, "bob")
	cfg.ConflictResolutionMode = config.ModeManual
	bob := newEngine(t, cfg, b)

	aws := projectWorkspace(t, alice, "p1")
	write(t, aws, "a.esp", "alice", time.Time{})
	_, err := alice.SyncProject(ctx, "p1", model.DirectionPush)
	require.NoError(t, err)

	bws := projectWorkspace(t, bob, "p1")

	first, err := bob.DetectConflicts(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, model.ConflictDeletion, first[0].ConflictType)
	require.NoError(t, bob.ResolveConflict(ctx, first[0], model.ConflictResolution{Strategy: model.StrategyKeepRemote}))
	assert.Equal(t, "alice", read(t, bws, "a.esp"))

	require.NoError(t, bws.Remove("a.esp"))

	// a deletion carries no local timestamp, so the id repeats
	second, err := bob.DetectConflicts(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)

	require.NoError(t, bob.ResolveConflict(ctx, second[0], model.ConflictResolution{Strategy: model.StrategyKeepLocal}))

	remote, err := b.GetState(ctx, "p1")
	require.NoError(t, err)
	assert.NotContains(t, remote.Files, "a.esp")

	left, err := bob.DetectConflicts(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestJoinAdoptsProjectKey(t *testing.T) {
	ctx := context.Background()
	b := sharedBackend(t)

	aliceCfg := testConfig(t, "alice")
	aliceCfg.EncryptionKey = "alice-generated"
	alice := newEngine(t, aliceCfg, b)

	bobCfg := testConfig(t, "bob")
	bobCfg.EncryptionKey = "bob-generated"
	bob := newEngine(t, bobCfg, b)

	big := strings.Repeat("BSA\x00", 16)
	aws := projectWorkspace(t, alice, "p1")
	write(t, aws, "big.ba2", big, time.Time{})
	write(t, aws, "small.esp", "TES4", time.Time{})

	pushed, err := alice.SyncProject(ctx, "p1", model.DirectionPush)
	require.NoError(t, err)
	assert.Equal(t, 2, pushed.FilesSync)

	share, err := alice.ShareProject(ctx, "p1", []string{"bob"})
	require.NoError(t, err)

	_, err = bob.JoinProject(ctx, share.InviteCode)
	require.NoError(t, err)

	am, err := aws.LoadManifest()
	require.NoError(t, err)
	bws := projectWorkspace(t, bob, "p1")
	bm, err := bws.LoadManifest()
	require.NoError(t, err)
	require.NotEmpty(t, am.Key)
	assert.Equal(t, am.Key, bm.Key)

	pulled, err := bob.SyncProject(ctx, "p1", model.DirectionPull)
	require.NoError(t, err)
	assert.True(t, pulled.Success)
	assert.Equal(t, 2, pulled.FilesSync)
	assert.Equal(t, big, read(t, bws, "big.ba2"))
	assert.Equal(t, "TES4", read(t, bws, "small.esp"))

	// and back the other way
	bigger := strings.Repeat("BSA\x01", 32)
	write(t, bws, "bob.ba2", bigger, time.Time{})
	_, err = bob.SyncProject(ctx, "p1", model.DirectionPush)
	require.NoError(t, err)

	_, err = alice.SyncProject(ctx, "p1", model.DirectionPull)
	require.NoError(t, err)
	assert.Equal(t, bigger, read(t, aws, "bob.ba2"))
}

func TestAutomaticModeKeepsLocal(t *testing.T) {
	ctx := context.Background()
	b := sharedBackend(t)
	alice := newEngine(t, testConfig(t, "alice"), b)
	bob := newEngine(t, testConfig(t, "bob"), b)

	aws := projectWorkspace(t, alice, "p1")
	write(t, aws, "a.esp", "alice", time.Time{})
	_, err := alice.SyncProject(ctx, "p1", model.DirectionPush)
	require.NoError(t, err)

	bws := projectWorkspace(t, bob, "p1")
	write(t, bws, "a.esp", "bob", time.Now().Add(-time.Hour))

	result, err := bob.SyncProject(ctx, "p1", model.DirectionBidirectional)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ConflictsDetected)
	assert.Equal(t, 1, result.ConflictsResolved)
	assert.Equal(t, 1, result.FilesSync)

	remote, err := b.GetState(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "bob", remote.Files["a.esp"].Author)
}

func TestAutoSyncReplacesTimer(t *testing.T) {
	e := newEngine(t, testConfig(t, "alice"), sharedBackend(t))
	projectWorkspace(t, e, "p1")

	require.NoError(t, e.EnableAutoSync("p1", 20*time.Millisecond))
	require.NoError(t, e.EnableAutoSync("p1", 20*time.Millisecond))

	assert.Eventually(t, func() bool {
		status, _ := e.GetStatus("p1")
		return e.timers.Load() == 1 && !status.LastSyncTime.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	status, _ := e.GetStatus("p1")
	assert.False(t, status.NextSyncTime.IsZero())

	assert.True(t, e.DisableAutoSync("p1"))
	assert.False(t, e.DisableAutoSync("p1"))
	assert.Eventually(t, func() bool { return e.timers.Load() == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.EnableAutoSync("p1", time.Hour))
	e.TeardownProject("p1")
	assert.Eventually(t, func() bool { return e.timers.Load() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseRefusesNewWork(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "modsync.db"))
	require.NoError(t, err)

	e, err := New(testConfig(t, "alice"), sharedBackend(t), conn)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	projectWorkspace(t, e, "p1")

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.EnableAutoSync(fmt.Sprintf("p%d", i), time.Hour)
		}()
	}

	require.NoError(t, e.Close())
	wg.Wait()

	assert.False(t, e.track())
	assert.ErrorIs(t, e.EnableAutoSync("p1", time.Hour), syncerr.ErrNotInitialized)
	assert.ErrorIs(t, e.Watch("p1"), syncerr.ErrNotInitialized)
}

func TestScheduledFailureKeepsSchedule(t *testing.T) {
	e := newEngine(t, testConfig(t, "alice"), sharedBackend(t))

	// no workspace, so every run fails
	require.NoError(t, e.EnableAutoSync("ghost", 10*time.Millisecond))

	assert.Eventually(t, func() bool {
		status, ok := e.GetStatus("ghost")
		return ok && status.Error != ""
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, e.timers.Load())
}

func TestHistoryAndRestore(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, testConfig(t, "alice"), sharedBackend(t))
	ws := projectWorkspace(t, e, "p1")

	write(t, ws, "a.esp", "first", time.Time{})
	first, err := e.SyncProject(ctx, "p1", model.DirectionPush)
	require.NoError(t, err)

	write(t, ws, "a.esp", "second", time.Now().Add(time.Minute))
	write(t, ws, "b.esp", "extra", time.Time{})
	second, err := e.SyncProject(ctx, "p1", model.DirectionPush)
	require.NoError(t, err)

	history, err := e.GetProjectHistory(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.SnapshotID, history[0].ID)
	assert.Equal(t, first.SnapshotID, history[1].ID)
	assert.GreaterOrEqual(t, history[0].Version, history[1].Version)
	assert.Equal(t, "Auto-sync: push", history[0].Message)

	require.NoError(t, e.RestoreSnapshot(ctx, first.SnapshotID))
	assert.Equal(t, "first", read(t, ws, "a.esp"))
	_, err = os.Stat(filepath.Join(ws.Root(), "b.esp"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, e.RestoreSnapshot(ctx, "missing"), syncerr.ErrNotFound)
}

func TestAssets(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "alice")
	cfg.MaxUploadSize = 64
	e := newEngine(t, cfg, sharedBackend(t))

	dir := t.TempDir()
	small := filepath.Join(dir, "icon.dds")
	require.NoError(t, os.WriteFile(small, []byte("DDS texture payload"), 0644))
	big := filepath.Join(dir, "huge.bsa")
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat("x", 65)), 0644))

	handle, err := e.UploadAsset(ctx, "p1", big)
	assert.ErrorIs(t, err, syncerr.ErrAssetTooLarge)
	assert.Empty(t, handle.URL)

	handle, err = e.UploadAsset(ctx, "p1", small)
	require.NoError(t, err)
	assert.NotEmpty(t, handle.URL)
	assert.EqualValues(t, 19, handle.Size)

	out := filepath.Join(dir, "copy.dds")
	require.NoError(t, e.DownloadAsset(ctx, handle.URL, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "DDS texture payload", string(data))

	recs, err := e.Assets("p1")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	expired := recs[0]
	expired.ID = 0
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, e.assets.Upsert(&expired))
	err = e.DownloadAsset(ctx, handle.URL, out)
	assert.Equal(t, syncerr.KindNotFound, syncerr.KindOf(err))
}

func TestAssetsDisabled(t *testing.T) {
	cfg := testConfig(t, "alice")
	cfg.IncludeAssets = false
	e := newEngine(t, cfg, sharedBackend(t))

	_, err := e.UploadAsset(context.Background(), "p1", "whatever")
	assert.ErrorIs(t, err, syncerr.ErrAssetsDisabled)
}

func TestBroadcastUpdatesSession(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, testConfig(t, "alice"), sharedBackend(t))
	projectWorkspace(t, e, "p1")

	_, err := e.ShareProject(ctx, "p1", []string{"bob"})
	require.NoError(t, err)

	scripts, err := e.Subscribe("p1", &model.ChangeFilters{Paths: []string{"Scripts/"}})
	require.NoError(t, err)
	all, err := e.Subscribe("p1", nil)
	require.NoError(t, err)

	n, err := e.Broadcast(ctx, model.ProjectChange{ProjectID: "p1", Path: "Scripts/q.psc", Author: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.Broadcast(ctx, model.ProjectChange{ProjectID: "p1", Path: "Meshes/a.nif"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := <-scripts.Changes()
	assert.Equal(t, "Scripts/q.psc", got.Path)
	assert.Len(t, all.Changes(), 2)

	session, ok := e.GetCollaborationSession("p1")
	require.True(t, ok)
	assert.Equal(t, []string{"Scripts/q.psc", "Meshes/a.nif"}, session.ActiveFiles)

	_, err = e.Broadcast(ctx, model.ProjectChange{ProjectID: "p1"})
	assert.Equal(t, syncerr.KindInvalidArgument, syncerr.KindOf(err))

	require.NoError(t, e.Unsubscribe(all.ID))
	e.TeardownProject("p1")
	_, ok = e.GetCollaborationSession("p1")
	assert.False(t, ok)
}

func TestRemoteChangesReachLocalSubscribers(t *testing.T) {
	ctx := context.Background()
	b := sharedBackend(t)

	aliceCfg := testConfig(t, "alice")
	aliceCfg.PollInterval = 20
	alice := newEngine(t, aliceCfg, b)
	bob := newEngine(t, testConfig(t, "bob"), b)
	projectWorkspace(t, alice, "p1")

	sub, err := alice.Subscribe("p1", nil)
	require.NoError(t, err)
	require.NoError(t, alice.Watch("p1"))

	require.Eventually(t, func() bool {
		if _, err := bob.Broadcast(ctx, model.ProjectChange{ProjectID: "p1", Path: "Scripts/q.psc"}); err != nil {
			return false
		}

		select {
		case got := <-sub.Changes():
			return got.Author == "bob" && got.Path == "Scripts/q.psc"
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}

func TestDeliverRemoteSkipsOwnChanges(t *testing.T) {
	ctx := context.Background()
	b := sharedBackend(t)
	alice := newEngine(t, testConfig(t, "alice"), b)

	_, cursor, err := b.ChangesSince(ctx, "p1", "")
	require.NoError(t, err)

	sub, err := alice.Subscribe("p1", nil)
	require.NoError(t, err)

	_, err = alice.Broadcast(ctx, model.ProjectChange{ProjectID: "p1", Path: "mine.esp"})
	require.NoError(t, err)
	require.NoError(t, b.PersistChange(ctx, model.ProjectChange{
		ProjectID: "p1", Path: "theirs.esp", Author: "bob", Timestamp: time.Now(),
	}))
	<-sub.Changes()

	changes, _, err := b.ChangesSince(ctx, "p1", cursor)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	alice.deliverRemote(changes)
	got := <-sub.Changes()
	assert.Equal(t, "theirs.esp", got.Path)
	assert.Empty(t, sub.Changes())
}
