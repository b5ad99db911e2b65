package engine

import (
	"context"
	"sync"
	"time"

	"modsync/internal/model"
)

// projectState is the engine's live view of one project. syncLock is held
// for the whole of a sync, resolve or restore; mu guards the rest.
type projectState struct {
	syncLock sync.Mutex

	mu       sync.RWMutex
	status   model.SyncStatus
	cancel   context.CancelFunc
	interval time.Duration
	since    time.Time
}

func newProjectState(projectID string) *projectState {
	return &projectState{
		status: model.SyncStatus{
			ProjectID:        projectID,
			CurrentOperation: "idle",
		},
	}
}

func (s *projectState) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.IsSyncing = true
	s.status.SyncProgress = 0
	s.status.CurrentOperation = "starting"
	s.status.Error = ""
}

func (s *projectState) progress(pct int, op string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.SyncProgress = pct
	s.status.CurrentOperation = op
}

// finish is the only way out of a sync: isSyncing is always cleared and the
// progress ends at 0 or 100.
func (s *projectState) finish(err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.IsSyncing = false
	if err != nil {
		s.status.SyncProgress = 0
		s.status.CurrentOperation = "failed"
		s.status.Error = err.Error()
		return
	}

	s.status.SyncProgress = 100
	s.status.CurrentOperation = "idle"
	s.status.LastSyncTime = at
}

func (s *projectState) schedule(cancel context.CancelFunc, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.interval = interval
	s.since = time.Now()
}

// unschedule cancels the auto-sync timer and reports whether one was active.
func (s *projectState) unschedule() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	s.interval = 0
	return true
}

func (s *projectState) Snapshot() model.SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.status
	if s.cancel != nil {
		base := status.LastSyncTime
		if base.Before(s.since) {
			base = s.since
		}
		status.NextSyncTime = base.Add(s.interval)
	}

	return status
}
