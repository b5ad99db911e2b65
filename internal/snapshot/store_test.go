package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"modsync/internal/db"
	"modsync/internal/model"
	"modsync/internal/repository"
	"modsync/internal/syncerr"
	"modsync/internal/util"
	"modsync/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	snaps []model.ProjectSnapshot
	err   error
}

func (f *fakeRemote) RecordSnapshot(_ context.Context, snap model.ProjectSnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.snaps = append(f.snaps, snap)
	return nil
}

func (f *fakeRemote) FetchHistory(_ context.Context, projectID string) ([]model.ProjectSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.ProjectSnapshot
	for _, s := range f.snaps {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	return out, nil
}

type blobs map[string][]byte

func (b blobs) Fetch(_ context.Context, _ string, rec model.FileRecord) ([]byte, error) {
	data, ok := b[rec.Checksum]
	if !ok {
		return nil, syncerr.ErrNotFound
	}
	return data, nil
}

func newStore(t *testing.T, remote Remote) *Store {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return New(repository.NewSnapshotRepository(conn), remote)
}

func stateOf(version int64, files map[string]string) *model.ProjectState {
	s := model.NewProjectState("p1")
	s.Version = version
	for path, content := range files {
		s.Files[path] = model.FileRecord{
			Checksum: util.HashBytes([]byte(content)),
			Size:     int64(len(content)),
			BlobKey:  util.HashBytes([]byte(content)),
		}
	}
	return s
}

func TestChecksumIgnoresOrder(t *testing.T) {
	a := stateOf(1, map[string]string{"a.esp": "1", "b.esp": "2"})
	b := stateOf(1, map[string]string{"b.esp": "2", "a.esp": "1"})
	assert.Equal(t, Checksum(a.Files), Checksum(b.Files))

	c := stateOf(1, map[string]string{"a.esp": "1", "b.esp": "3"})
	assert.NotEqual(t, Checksum(a.Files), Checksum(c.Files))
}

func TestCreateIsMonotonic(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	s := newStore(t, remote)

	fixed := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return fixed }

	first, err := s.Create(ctx, stateOf(5, map[string]string{"a.esp": "a"}), "alice", "Auto-sync: push")
	require.NoError(t, err)
	second, err := s.Create(ctx, stateOf(2, map[string]string{"a.esp": "a", "b.esp": "bb"}), "alice", "Auto-sync: pull")
	require.NoError(t, err)

	assert.EqualValues(t, 5, first.Version)
	assert.EqualValues(t, 5, second.Version)
	assert.True(t, second.Timestamp.After(first.Timestamp))
	assert.Equal(t, 2, second.FileCount)
	assert.EqualValues(t, 3, second.TotalSize)
	assert.Len(t, remote.snaps, 2)

	history, err := s.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Nil(t, history[0].Files)
}

func TestHistoryMergesRemote(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	s := newStore(t, remote)

	local, err := s.Create(ctx, stateOf(1, nil), "alice", "local")
	require.NoError(t, err)

	remote.snaps = append(remote.snaps, model.ProjectSnapshot{
		ID:        "from-bob",
		ProjectID: "p1",
		Version:   2,
		Timestamp: local.Timestamp.Add(time.Hour),
		Author:    "bob",
	})

	history, err := s.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "from-bob", history[0].ID)
	assert.Equal(t, local.ID, history[1].ID)

	remote.err = errors.New("offline")
	history, err = s.History(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRemoteFailureDoesNotFailCreate(t *testing.T) {
	s := newStore(t, &fakeRemote{err: errors.New("offline")})
	_, err := s.Create(context.Background(), stateOf(1, nil), "alice", "x")
	assert.NoError(t, err)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)

	ws, err := workspace.New(t.TempDir(), "p1", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, ws.Ensure())

	require.NoError(t, ws.WriteFile("a.esp", strings.NewReader("old"), time.Time{}))
	require.NoError(t, ws.WriteFile("Scripts/q.psc", strings.NewReader("quest"), time.Time{}))

	state, err := ws.Scan(ctx)
	require.NoError(t, err)
	snap, err := s.Create(ctx, state, "alice", "before edits")
	require.NoError(t, err)

	require.NoError(t, ws.WriteFile("a.esp", strings.NewReader("new"), time.Time{}))
	require.NoError(t, ws.WriteFile("extra.esp", strings.NewReader("extra"), time.Time{}))

	stored, err := s.Get(snap.ID)
	require.NoError(t, err)

	fetch := blobs{util.HashBytes([]byte("old")): []byte("old")}
	require.NoError(t, s.Restore(ctx, ws, stored, fetch))

	data, err := ws.ReadFile("a.esp")
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	_, err = os.Stat(filepath.Join(ws.Root(), "extra.esp"))
	assert.True(t, os.IsNotExist(err))

	after, err := ws.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Checksum, Checksum(after.Files))
}

func TestRestoreReportsMissingContent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)

	ws, err := workspace.New(t.TempDir(), "p1", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, ws.Ensure())

	snap, err := s.Create(ctx, stateOf(1, map[string]string{"gone.esp": "gone"}), "alice", "x")
	require.NoError(t, err)

	err = s.Restore(ctx, ws, snap, blobs{})
	assert.Equal(t, syncerr.KindNotFound, syncerr.KindOf(err))

	other := snap
	other.ProjectID = "p2"
	err = s.Restore(ctx, ws, other, blobs{})
	assert.Equal(t, syncerr.KindInvalidArgument, syncerr.KindOf(err))
}
