// Package snapshot keeps the per-project history of synced states.
package snapshot

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/repository"
	"modsync/internal/syncerr"
	"modsync/internal/util"
	"modsync/internal/workspace"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Remote is the part of a backend that mirrors snapshot history.
type Remote interface {
	RecordSnapshot(ctx context.Context, snap model.ProjectSnapshot) error
	FetchHistory(ctx context.Context, projectID string) ([]model.ProjectSnapshot, error)
}

// Fetcher returns the content behind a file record.
type Fetcher interface {
	Fetch(ctx context.Context, projectID string, rec model.FileRecord) ([]byte, error)
}

type Store struct {
	mu     sync.Mutex
	repo   *repository.SnapshotRepository
	remote Remote
	now    func() time.Time
}

// New returns a store. remote may be nil.
func New(repo *repository.SnapshotRepository, remote Remote) *Store {
	return &Store{repo: repo, remote: remote, now: time.Now}
}

// Checksum fingerprints a file set independent of map order.
func Checksum(files map[string]model.FileRecord) string {
	var buf bytes.Buffer
	for _, path := range sortedPaths(files) {
		fmt.Fprintf(&buf, "%s:%s\n", path, files[path].Checksum)
	}

	return util.HashBytes(buf.Bytes())
}

func sortedPaths(files map[string]model.FileRecord) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Create records state as a new snapshot. Versions never go backwards and
// timestamps strictly increase within a project.
func (s *Store) Create(ctx context.Context, state *model.ProjectState, author, message string) (model.ProjectSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, ok, err := s.repo.Latest(state.ProjectID)
	if err != nil {
		return model.ProjectSnapshot{}, fmt.Errorf("failed to read snapshot history: %w", err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	version := state.Version
	if ok {
		version = max(version, latest.Version)
		if !now.After(latest.Timestamp) {
			now = latest.Timestamp.Add(time.Millisecond)
		}
	}

	snap := model.ProjectSnapshot{
		ID:        uuid.NewString(),
		ProjectID: state.ProjectID,
		Version:   version,
		Timestamp: now,
		Author:    author,
		Message:   message,
		FileCount: len(state.Files),
		TotalSize: state.TotalSize(),
		Checksum:  Checksum(state.Files),
		Files:     state.Clone().Files,
	}

	if err := s.repo.Add(&snap); err != nil {
		return model.ProjectSnapshot{}, fmt.Errorf("failed to save snapshot: %w", err)
	}

	if s.remote != nil {
		if err := s.remote.RecordSnapshot(ctx, snap); err != nil {
			logger.Log.Warn("failed to record snapshot remotely",
				zap.String("project", snap.ProjectID),
				zap.String("snapshot_id", snap.ID),
				zap.Error(err))
		}
	}

	logger.Log.Info("snapshot created",
		zap.String("project", snap.ProjectID),
		zap.String("snapshot_id", snap.ID),
		zap.Int64("version", snap.Version),
		zap.Int("files", snap.FileCount))

	return snap, nil
}

func (s *Store) Get(id string) (model.ProjectSnapshot, error) {
	return s.repo.GetByID(id)
}

// History merges local and remote snapshots, newest first. Remote failures
// degrade to local history. File lists are left out.
func (s *Store) History(ctx context.Context, projectID string) ([]model.ProjectSnapshot, error) {
	local, err := s.repo.ListByProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	seen := make(map[string]bool, len(local))
	history := make([]model.ProjectSnapshot, 0, len(local))
	for _, snap := range local {
		snap.Files = nil
		seen[snap.ID] = true
		history = append(history, snap)
	}

	if s.remote != nil {
		remote, err := s.remote.FetchHistory(ctx, projectID)
		if err != nil {
			logger.Log.Warn("failed to fetch remote history",
				zap.String("project", projectID),
				zap.Error(err))
		}

		for _, snap := range remote {
			if seen[snap.ID] {
				continue
			}
			snap.Files = nil
			seen[snap.ID] = true
			history = append(history, snap)
		}
	}

	slices.SortStableFunc(history, func(a, b model.ProjectSnapshot) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.Version, a.Version)
	})

	return history, nil
}

// Restore rewrites the local workspace to match the snapshot. The remote is
// untouched; the next sync reconciles it.
func (s *Store) Restore(ctx context.Context, ws *workspace.Workspace, snap model.ProjectSnapshot, fetch Fetcher) error {
	if snap.ProjectID != ws.ProjectID() {
		return syncerr.New(syncerr.KindInvalidArgument, "snapshot %s belongs to project %s", snap.ID, snap.ProjectID)
	}

	if err := ws.Ensure(); err != nil {
		return err
	}

	local, err := ws.Scan(ctx)
	if err != nil {
		return err
	}

	var missing []string
	for _, path := range sortedPaths(snap.Files) {
		rec := snap.Files[path]
		if cur, ok := local.Files[path]; ok && cur.Checksum == rec.Checksum {
			continue
		}

		data, err := fetch.Fetch(ctx, snap.ProjectID, rec)
		if syncerr.KindOf(err) == syncerr.KindNotFound {
			missing = append(missing, path)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", path, err)
		}

		if err := ws.WriteFile(path, bytes.NewReader(data), rec.Timestamp); err != nil {
			return err
		}
	}

	for path := range local.Files {
		if _, ok := snap.Files[path]; ok {
			continue
		}
		if err := ws.Remove(path); err != nil {
			return err
		}
	}

	m, err := ws.LoadManifest()
	if err != nil {
		return err
	}
	m.Files = snap.Files
	if err := ws.SaveManifest(m); err != nil {
		return err
	}

	logger.Log.Info("snapshot restored",
		zap.String("project", snap.ProjectID),
		zap.String("snapshot_id", snap.ID),
		zap.Int("missing", len(missing)))

	if len(missing) > 0 {
		return syncerr.New(syncerr.KindNotFound, "snapshot %s: no stored content for %v", snap.ID, missing)
	}

	return nil
}
