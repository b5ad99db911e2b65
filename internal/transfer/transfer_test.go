package transfer

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"modsync/internal/asset"
	"modsync/internal/backend"
	"modsync/internal/backend/localfs"
	"modsync/internal/model"
	"modsync/internal/syncerr"
	"modsync/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func st(files map[string]string) *model.ProjectState {
	s := model.NewProjectState("p1")
	for path, sum := range files {
		s.Files[path] = model.FileRecord{Checksum: sum}
	}
	return s
}

func TestFinalizeDirections(t *testing.T) {
	local := st(map[string]string{"a": "1", "b": "2", "same": "x"})
	remote := st(map[string]string{"b": "3", "c": "4", "same": "x"})

	push := NewPlan("p1")
	push.Finalize(local, remote, model.DirectionPush)
	assert.Equal(t, []string{"a", "b"}, push.Uploads)
	assert.Empty(t, push.Downloads)

	pull := NewPlan("p1")
	pull.Finalize(local, remote, model.DirectionPull)
	assert.Empty(t, pull.Uploads)
	require.Len(t, pull.Downloads, 2)
	assert.Equal(t, "b", pull.Downloads[0].Path)
	assert.Equal(t, "c", pull.Downloads[1].Path)

	both := NewPlan("p1")
	both.Finalize(local, remote, model.DirectionBidirectional)
	assert.Equal(t, []string{"a", "b"}, both.Uploads)
	require.Len(t, both.Downloads, 1)
	assert.Equal(t, "c", both.Downloads[0].Path)
}

func TestFinalizeRespectsDecisions(t *testing.T) {
	local := st(map[string]string{"a": "1", "b": "2"})
	remote := st(map[string]string{"a": "9", "b": "8", "gone": "7"})

	p := NewPlan("p1")
	p.Pull("a", remote.Files["a"])
	p.Hold("b")
	p.DeleteRemote("gone")
	p.Finalize(local, remote, model.DirectionBidirectional)

	assert.Empty(t, p.Uploads)
	require.Len(t, p.Downloads, 1)
	assert.Equal(t, "a", p.Downloads[0].Path)
	assert.Equal(t, []string{"gone"}, p.Deletes)
	assert.Equal(t, []string{"b"}, p.Held)

	// decisions run even without a direction
	only := NewPlan("p1")
	only.Push("b")
	only.Finalize(local, remote, "")
	assert.Equal(t, []string{"b"}, only.Uploads)
	assert.Empty(t, only.Downloads)
}

type fixture struct {
	ws      *workspace.Workspace
	backend *backend.ObjectAdapter
	exec    *Executor
}

func newFixture(t *testing.T, opts Options, maxSize int64) *fixture {
	t.Helper()

	ws, err := workspace.New(t.TempDir(), "p1", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, ws.Ensure())

	store, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	b := backend.NewObjectAdapter("fs", store)

	p, err := asset.New(asset.Options{Compress: true, Encrypt: true, Passphrase: "k", MaxSize: maxSize})
	require.NoError(t, err)
	t.Cleanup(p.Close)

	return &fixture{ws: ws, backend: b, exec: NewExecutor(b, p, opts)}
}

func (f *fixture) write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, f.ws.WriteFile(path, strings.NewReader(content), time.Time{}))
}

func TestPushThenPull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AssetThreshold: 8, IncludeAssets: true, Concurrency: 2, Author: "alice"}, 1<<20)

	f.write(t, "small.ini", "a=1")
	f.write(t, "Meshes/big.nif", strings.Repeat("mesh", 64))

	local, err := f.ws.Scan(ctx)
	require.NoError(t, err)
	remote, err := f.backend.GetState(ctx, "p1")
	require.NoError(t, err)

	plan := NewPlan("p1")
	plan.Finalize(local, remote, model.DirectionPush)

	var calls int
	out, err := f.exec.Execute(ctx, f.ws, plan, local, remote, func(done, total int) {
		calls++
		assert.Equal(t, 2, total)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, out.Files)
	assert.EqualValues(t, 1, out.Remote.Version)
	assert.True(t, strings.HasSuffix(out.Remote.Files["Meshes/big.nif"].BlobKey, ".ze"))
	assert.Equal(t, out.Remote.Files["small.ini"].Checksum, out.Remote.Files["small.ini"].BlobKey)

	stored, err := f.backend.GetState(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, out.Remote.Paths(), stored.Paths())
	assert.Equal(t, out.Remote.Files["Meshes/big.nif"].BlobKey, stored.Files["Meshes/big.nif"].BlobKey)

	// a second workspace pulls everything back
	other, err := workspace.New(t.TempDir(), "p1", "bob", nil)
	require.NoError(t, err)
	require.NoError(t, other.Ensure())

	empty, err := other.Scan(ctx)
	require.NoError(t, err)

	pull := NewPlan("p1")
	pull.Finalize(empty, stored, model.DirectionPull)
	out, err = f.exec.Execute(ctx, other, pull, empty, stored, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Files)

	got, err := other.ReadFile("Meshes/big.nif")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("mesh", 64), string(got))

	rescanned, err := other.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored.Files["small.ini"].Checksum, rescanned.Files["small.ini"].Checksum)
	assert.True(t, stored.Files["small.ini"].Timestamp.Equal(rescanned.Files["small.ini"].Timestamp))
}

func TestOversizedAssetDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AssetThreshold: 4, IncludeAssets: true}, 16)

	f.write(t, "ok.txt", "tiny")
	f.write(t, "huge.bsa", strings.Repeat("x", 32))

	local, err := f.ws.Scan(ctx)
	require.NoError(t, err)
	remote := model.NewProjectState("p1")

	plan := NewPlan("p1")
	plan.Finalize(local, remote, model.DirectionPush)
	out, err := f.exec.Execute(ctx, f.ws, plan, local, remote, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Files)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "huge.bsa", out.Failures[0].Path)
	assert.Equal(t, string(syncerr.KindAssetTooLarge), out.Failures[0].Kind)
	assert.Contains(t, out.Remote.Files, "ok.txt")
	assert.NotContains(t, out.Remote.Files, "huge.bsa")
}

func TestAssetsDisabledSkipsLargeFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AssetThreshold: 4}, 1<<20)

	f.write(t, "big.dds", "0123456789")

	local, err := f.ws.Scan(ctx)
	require.NoError(t, err)
	remote := model.NewProjectState("p1")

	plan := NewPlan("p1")
	plan.Finalize(local, remote, model.DirectionPush)
	out, err := f.exec.Execute(ctx, f.ws, plan, local, remote, nil)
	require.NoError(t, err)
	assert.Zero(t, out.Files)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, string(syncerr.KindAssetsDisabled), out.Failures[0].Kind)
}

func TestStaleRemoteFailsAfterUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AssetThreshold: 1 << 20}, 1<<20)

	f.write(t, "a.esp", "plugin")
	local, err := f.ws.Scan(ctx)
	require.NoError(t, err)

	remote, err := f.backend.GetState(ctx, "p1")
	require.NoError(t, err)

	// someone else commits first
	_, err = f.backend.PutState(ctx, remote.Clone())
	require.NoError(t, err)

	plan := NewPlan("p1")
	plan.Finalize(local, remote, model.DirectionPush)
	_, err = f.exec.Execute(ctx, f.ws, plan, local, remote, nil)
	assert.ErrorIs(t, err, syncerr.ErrStaleState)
}

func TestApplierWritesAndFetches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AssetThreshold: 1 << 20}, 1<<20)

	key, err := f.exec.pipeline.UploadRaw(ctx, f.backend, "p1", []byte("remote body"))
	require.NoError(t, err)

	plan := NewPlan("p1")
	app := NewPlanApplier(plan, f.exec, f.ws)

	data, err := app.ReadRemote(ctx, "x.txt", model.FileRecord{BlobKey: key})
	require.NoError(t, err)
	assert.Equal(t, "remote body", string(data))

	require.NoError(t, app.WriteLocal(ctx, "x.txt", []byte("merged")))
	local, err := app.ReadLocal(ctx, "x.txt")
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("merged"), local))

	require.NoError(t, app.Push(ctx, "x.txt"))
	plan.Finalize(model.NewProjectState("p1"), model.NewProjectState("p1"), "")
	assert.Equal(t, []string{"x.txt"}, plan.Uploads)
}
