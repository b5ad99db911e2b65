package backend_test

import (
	"context"
	"testing"
	"time"

	"modsync/internal/backend"
	"modsync/internal/backend/localfs"
	"modsync/internal/model"
	"modsync/internal/syncerr"
	"modsync/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapter(t *testing.T) *backend.ObjectAdapter {
	t.Helper()

	store, err := localfs.New(t.TempDir())
	require.NoError(t, err)

	a := backend.NewObjectAdapter("fs", store)
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestUnknownProjectHasEmptyState(t *testing.T) {
	a := newAdapter(t)

	state, err := a.GetState(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", state.ProjectID)
	assert.Zero(t, state.Version)
	assert.Empty(t, state.Files)
}

func TestPutStateIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	s := model.NewProjectState("p1")
	s.Files["a.esp"] = model.FileRecord{Checksum: "1", Author: "alice"}

	v, err := a.PutState(ctx, s)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	got, err := a.GetState(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Version)
	assert.Equal(t, "1", got.Files["a.esp"].Checksum)

	// s still claims version 0
	_, err = a.PutState(ctx, s)
	assert.ErrorIs(t, err, syncerr.ErrStaleState)

	v, err = a.PutState(ctx, got)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestBlobURLRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	require.NoError(t, a.UploadBlob(ctx, "p1", "abc.z", []byte("data")))

	url := a.BlobURL("p1", "abc.z")
	pid, key, err := a.ParseBlobURL(url)
	require.NoError(t, err)
	assert.Equal(t, "p1", pid)
	assert.Equal(t, "abc.z", key)

	data, err := a.DownloadBlob(ctx, pid, key)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	_, err = a.DownloadBlob(ctx, "p1", "missing")
	assert.ErrorIs(t, err, syncerr.ErrNotFound)

	_, _, err = a.ParseBlobURL("https://elsewhere/x")
	assert.Error(t, err)
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	base := time.Now().UTC()

	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, a.RecordSnapshot(ctx, model.ProjectSnapshot{
			ID:        id,
			ProjectID: "p1",
			Version:   int64(i + 1),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Files:     map[string]model.FileRecord{"a": {Checksum: "x"}},
		}))
	}

	history, err := a.FetchHistory(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "s3", history[0].ID)
	assert.Equal(t, "s1", history[2].ID)
	assert.Nil(t, history[0].Files)

	empty, err := a.FetchHistory(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInvites(t *testing.T) {
	ctx := context.Background()
	store, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	a := backend.NewObjectAdapter("fs", store)
	require.NoError(t, a.Connect(ctx))

	inv := model.Invite{Code: "c1", ProjectID: "p1", Owner: "alice", SealedKey: "sealed", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, a.PutInvite(ctx, inv))

	got, err := a.GetInvite(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, "c1", got.Code)
	assert.Equal(t, "sealed", got.SealedKey)

	// the backend never sees the code itself
	keys, err := store.List(ctx, "invites/")
	require.NoError(t, err)
	assert.Equal(t, []string{"invites/" + util.HashBytes([]byte("c1")) + ".json"}, keys)
	raw, err := store.Get(ctx, keys[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"c1"`)

	assert.Error(t, a.PutInvite(ctx, model.Invite{ProjectID: "p1"}))

	_, err = a.GetInvite(ctx, "nope")
	assert.Equal(t, syncerr.KindNotFound, syncerr.KindOf(err))

	_, err = a.GetInvite(ctx, "../x")
	assert.Equal(t, syncerr.KindInvalidArgument, syncerr.KindOf(err))
}

func TestPersistChange(t *testing.T) {
	ctx := context.Background()
	store, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	a := backend.NewObjectAdapter("fs", store)

	require.NoError(t, a.PersistChange(ctx, model.ProjectChange{ProjectID: "p1", Path: "a.esp", Timestamp: time.Now()}))
	require.NoError(t, a.PersistChange(ctx, model.ProjectChange{ProjectID: "p1", Path: "b.esp", Timestamp: time.Now()}))

	keys, err := store.List(ctx, "projects/p1/changes/")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestChangesSince(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	base := time.UnixMilli(1_700_000_000_000)

	_, cursor, err := a.ChangesSince(ctx, "p1", "")
	require.NoError(t, err)
	require.NotEmpty(t, cursor)

	require.NoError(t, a.PersistChange(ctx, model.ProjectChange{ProjectID: "p1", Path: "b.esp", Timestamp: base.Add(2 * time.Second)}))
	require.NoError(t, a.PersistChange(ctx, model.ProjectChange{ProjectID: "p1", Path: "a.esp", Timestamp: base.Add(time.Second)}))
	require.NoError(t, a.PersistChange(ctx, model.ProjectChange{ProjectID: "p2", Path: "x.esp", Timestamp: base}))

	changes, cursor, err := a.ChangesSince(ctx, "p1", cursor)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "a.esp", changes[0].Path)
	assert.Equal(t, "b.esp", changes[1].Path)

	changes, next, err := a.ChangesSince(ctx, "p1", cursor)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, cursor, next)

	// an empty cursor starts after everything already stored
	changes, _, err = a.ChangesSince(ctx, "p1", "")
	require.NoError(t, err)
	assert.Empty(t, changes)
}
