package backend

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/syncerr"
	"modsync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ObjectAdapter lays projects out in an ObjectStore:
//
//	projects/<id>/state.json
//	projects/<id>/blobs/<key>
//	projects/<id>/changes/<unixnano>-<uuid>.json
//	projects/<id>/snapshots/<snapshotId>.json
//	invites/<sha256 of code>.json
type ObjectAdapter struct {
	name  string
	store ObjectStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewObjectAdapter(name string, store ObjectStore) *ObjectAdapter {
	return &ObjectAdapter{
		name:  name,
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

func (a *ObjectAdapter) Name() string {
	return a.name
}

func (a *ObjectAdapter) Connect(ctx context.Context) error {
	if c, ok := a.store.(Connector); ok {
		if err := c.Connect(ctx); err != nil {
			return syncerr.Wrap(syncerr.KindNotInitialized, err, "failed to connect to %s backend", a.name)
		}
	}

	logger.Log.Info("backend connected",
		zap.String("backend", a.name))
	return nil
}

func (a *ObjectAdapter) Close() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

func projectKey(projectID string, parts ...string) string {
	return path.Join(append([]string{"projects", projectID}, parts...)...)
}

func (a *ObjectAdapter) projectLock(projectID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[projectID] = l
	}

	return l
}

func (a *ObjectAdapter) getJSON(ctx context.Context, key string, v any) error {
	data, err := a.store.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}

	return nil
}

func (a *ObjectAdapter) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return a.store.Put(ctx, key, data)
}

func (a *ObjectAdapter) GetState(ctx context.Context, projectID string) (*model.ProjectState, error) {
	state := model.NewProjectState(projectID)

	err := a.getJSON(ctx, projectKey(projectID, "state.json"), state)
	if syncerr.KindOf(err) == syncerr.KindNotFound {
		return model.NewProjectState(projectID), nil
	}
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindBackend, err, "failed to fetch state of %s", projectID)
	}

	if state.Files == nil {
		state.Files = make(map[string]model.FileRecord)
	}

	return state, nil
}

func (a *ObjectAdapter) PutState(ctx context.Context, state *model.ProjectState) (int64, error) {
	l := a.projectLock(state.ProjectID)
	l.Lock()
	defer l.Unlock()

	current, err := a.GetState(ctx, state.ProjectID)
	if err != nil {
		return 0, err
	}

	if current.Version != state.Version {
		return 0, syncerr.Wrap(syncerr.KindStaleState, syncerr.ErrStaleState,
			"project %s is at version %d, update was based on %d", state.ProjectID, current.Version, state.Version)
	}

	next := state.Clone()
	next.Version = current.Version + 1

	if err := a.putJSON(ctx, projectKey(state.ProjectID, "state.json"), next); err != nil {
		if syncerr.KindOf(err) == syncerr.KindStaleState {
			return 0, err
		}
		return 0, syncerr.Wrap(syncerr.KindBackend, err, "failed to store state of %s", state.ProjectID)
	}

	return next.Version, nil
}

func (a *ObjectAdapter) UploadBlob(ctx context.Context, projectID, key string, data []byte) error {
	return a.store.Put(ctx, projectKey(projectID, "blobs", key), data)
}

func (a *ObjectAdapter) DownloadBlob(ctx context.Context, projectID, key string) ([]byte, error) {
	return a.store.Get(ctx, projectKey(projectID, "blobs", key))
}

func (a *ObjectAdapter) BlobURL(projectID, key string) string {
	return a.store.URL(projectKey(projectID, "blobs", key))
}

func (a *ObjectAdapter) ParseBlobURL(url string) (string, string, error) {
	key, err := a.store.ParseURL(url)
	if err != nil {
		return "", "", syncerr.Wrap(syncerr.KindInvalidArgument, err, "unrecognised asset url %s", url)
	}

	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "blobs" {
		return "", "", syncerr.New(syncerr.KindInvalidArgument, "%s is not a blob url", url)
	}

	return parts[1], parts[3], nil
}

func (a *ObjectAdapter) PersistChange(ctx context.Context, change model.ProjectChange) error {
	name := fmt.Sprintf("%019d-%s.json", change.Timestamp.UnixNano(), uuid.NewString())
	return a.putJSON(ctx, projectKey(change.ProjectID, "changes", name), change)
}

// ChangesSince returns the changes stored after cursor in key order. Keys
// lead with the change timestamp, so a change stamped before the cursor by a
// skewed clock is never returned.
func (a *ObjectAdapter) ChangesSince(ctx context.Context, projectID, cursor string) ([]model.ProjectChange, string, error) {
	prefix := projectKey(projectID, "changes") + "/"

	keys, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, cursor, syncerr.Wrap(syncerr.KindBackend, err, "failed to list changes of %s", projectID)
	}
	slices.Sort(keys)

	if cursor == "" {
		if len(keys) == 0 {
			return nil, prefix, nil
		}
		return nil, keys[len(keys)-1], nil
	}

	start, found := slices.BinarySearch(keys, cursor)
	if found {
		start++
	}

	var changes []model.ProjectChange
	for _, key := range keys[start:] {
		cursor = key

		var change model.ProjectChange
		if err := a.getJSON(ctx, key, &change); err != nil {
			logger.Log.Warn("skipping unreadable change",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		changes = append(changes, change)
	}

	return changes, cursor, nil
}

func (a *ObjectAdapter) RecordSnapshot(ctx context.Context, snap model.ProjectSnapshot) error {
	return a.putJSON(ctx, projectKey(snap.ProjectID, "snapshots", snap.ID+".json"), snap)
}

// FetchHistory returns snapshot metadata newest first. File lists are omitted.
func (a *ObjectAdapter) FetchHistory(ctx context.Context, projectID string) ([]model.ProjectSnapshot, error) {
	keys, err := a.store.List(ctx, projectKey(projectID, "snapshots")+"/")
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindBackend, err, "failed to list snapshots of %s", projectID)
	}

	snaps := make([]model.ProjectSnapshot, 0, len(keys))
	for _, key := range keys {
		var snap model.ProjectSnapshot
		if err := a.getJSON(ctx, key, &snap); err != nil {
			logger.Log.Warn("skipping unreadable snapshot",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		snap.Files = nil
		snaps = append(snaps, snap)
	}

	slices.SortFunc(snaps, func(x, y model.ProjectSnapshot) int {
		if c := y.Timestamp.Compare(x.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(y.Version, x.Version)
	})

	return snaps, nil
}

func inviteKey(code string) string {
	return path.Join("invites", util.HashBytes([]byte(code))+".json")
}

func (a *ObjectAdapter) PutInvite(ctx context.Context, invite model.Invite) error {
	if invite.Code == "" {
		return syncerr.New(syncerr.KindInvalidArgument, "invite has no code")
	}

	return a.putJSON(ctx, inviteKey(invite.Code), invite)
}

func (a *ObjectAdapter) GetInvite(ctx context.Context, code string) (model.Invite, error) {
	var invite model.Invite
	if code == "" || strings.ContainsAny(code, "/\\") {
		return invite, syncerr.New(syncerr.KindInvalidArgument, "invalid invite code")
	}

	err := a.getJSON(ctx, inviteKey(code), &invite)
	if syncerr.KindOf(err) == syncerr.KindNotFound {
		return invite, syncerr.Wrap(syncerr.KindNotFound, err, "invite %s not found", code)
	}
	invite.Code = code

	return invite, err
}
