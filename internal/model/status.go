package model

import "time"

type Direction string

const (
	DirectionPush          Direction = "push"
	DirectionPull          Direction = "pull"
	DirectionBidirectional Direction = "bidirectional"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionPush, DirectionPull, DirectionBidirectional:
		return true
	}

	return false
}

func (d Direction) Pushes() bool {
	return d == DirectionPush || d == DirectionBidirectional
}

func (d Direction) Pulls() bool {
	return d == DirectionPull || d == DirectionBidirectional
}

type SyncStatus struct {
	ProjectID        string    `json:"projectId"`
	IsSyncing        bool      `json:"isSyncing"`
	LastSyncTime     time.Time `json:"lastSyncTime,omitzero"`
	NextSyncTime     time.Time `json:"nextSyncTime,omitzero"`
	SyncProgress     int       `json:"syncProgress"`
	CurrentOperation string    `json:"currentOperation"`
	Error            string    `json:"error,omitempty"`
}

// FileFailure records a single file that could not be transferred while the
// rest of the sync carried on.
type FileFailure struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type SyncResult struct {
	Success           bool          `json:"success"`
	ProjectID         string        `json:"projectId"`
	Direction         Direction     `json:"direction"`
	FilesSync         int           `json:"filesSync"`
	BytesSync         int64         `json:"bytesSync"`
	ConflictsDetected int           `json:"conflictsDetected"`
	ConflictsResolved int           `json:"conflictsResolved"`
	Conflicts         []Conflict    `json:"conflicts,omitempty"`
	Failures          []FileFailure `json:"failures,omitempty"`
	SnapshotID        string        `json:"snapshotId,omitempty"`
	Duration          time.Duration `json:"duration"`
	Timestamp         time.Time     `json:"timestamp"`
	Error             string        `json:"error,omitempty"`
	ErrorKind         string        `json:"errorKind,omitempty"`
}
