// Package bridge exposes the engine to a host UI process: one JSON POST
// route per channel and a websocket carrying change-received events.
package bridge

import (
	"encoding/json"
	"time"

	"modsync/internal/model"
)

const (
	ChannelSyncProject             = "sync-project"
	ChannelEnableAutoSync          = "enable-auto-sync"
	ChannelDisableAutoSync         = "disable-auto-sync"
	ChannelShareProject            = "share-project"
	ChannelJoinProject             = "join-project"
	ChannelBroadcastChange         = "broadcast-change"
	ChannelSubscribeToChanges      = "subscribe-to-changes"
	ChannelUnsubscribeFromChanges  = "unsubscribe-from-changes"
	ChannelDetectConflicts         = "detect-conflicts"
	ChannelResolveConflict         = "resolve-conflict"
	ChannelGetProjectHistory       = "get-project-history"
	ChannelRestoreSnapshot         = "restore-snapshot"
	ChannelUploadAsset             = "upload-asset"
	ChannelDownloadAsset           = "download-asset"
	ChannelGetStatus               = "get-status"
	ChannelGetCollaborationSession = "get-collaboration-session"
	ChannelWatchProject            = "watch-project"

	EventChangeReceived = "change-received"

	pathAPI    = "/api"
	pathEvents = "/api/events"
	pathStop   = "/stop"
)

// Envelope wraps every response. Failures carry the message and its kind.
type Envelope struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data,omitempty"`
	Error          string          `json:"error,omitempty"`
	Kind           string          `json:"kind,omitempty"`
	SubscriptionID string          `json:"subscriptionId,omitempty"`
}

type ChangeEvent struct {
	Type           string              `json:"type"`
	SubscriptionID string              `json:"subscriptionId"`
	Change         model.ProjectChange `json:"change"`
}

type projectRequest struct {
	ProjectID string `json:"projectId"`
}

type syncRequest struct {
	ProjectID string          `json:"projectId"`
	Direction model.Direction `json:"direction,omitempty"`
}

type autoSyncRequest struct {
	ProjectID string `json:"projectId"`
	// Interval is in milliseconds; zero uses the configured interval.
	Interval int64 `json:"interval,omitempty"`
}

type shareRequest struct {
	ProjectID     string   `json:"projectId"`
	Collaborators []string `json:"collaborators"`
}

type joinRequest struct {
	InviteCode string `json:"inviteCode"`
}

type subscribeRequest struct {
	ProjectID string               `json:"projectId"`
	Filters   *model.ChangeFilters `json:"filters,omitempty"`
}

type unsubscribeRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

type resolveRequest struct {
	Conflict   model.Conflict           `json:"conflict"`
	Resolution model.ConflictResolution `json:"resolution"`
}

type restoreRequest struct {
	SnapshotID string `json:"snapshotId"`
}

type uploadRequest struct {
	AssetPath string `json:"assetPath"`
	ProjectID string `json:"projectId"`
}

type downloadRequest struct {
	CDNURL    string `json:"cdnUrl"`
	LocalPath string `json:"localPath"`
}

type ConflictReport struct {
	Conflicts []model.Conflict `json:"conflicts"`
	Timestamp time.Time        `json:"timestamp"`
}
