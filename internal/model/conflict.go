package model

import "time"

type ConflictType string

const (
	ConflictModification ConflictType = "modification"
	ConflictDeletion     ConflictType = "deletion"
)

type Strategy string

const (
	StrategyKeepLocal  Strategy = "keep_local"
	StrategyKeepRemote Strategy = "keep_remote"
	StrategyMerge      Strategy = "merge"
	StrategyManual     Strategy = "manual"
	StrategyCustom     Strategy = "custom"
)

// DeletedChecksum marks the local side of a deletion conflict.
const DeletedChecksum = "deleted"

type Conflict struct {
	ID                string       `json:"id"`
	ProjectID         string       `json:"projectId"`
	FilePath          string       `json:"filePath"`
	ConflictType      ConflictType `json:"conflictType"`
	LocalVersion      FileRecord   `json:"localVersion"`
	RemoteVersion     FileRecord   `json:"remoteVersion"`
	SuggestedStrategy Strategy     `json:"suggestedStrategy"`
}

type ConflictResolution struct {
	ConflictID string    `json:"conflictId"`
	Strategy   Strategy  `json:"strategy"`
	CustomData []byte    `json:"customData,omitempty"`
	ResolvedBy string    `json:"resolvedBy"`
	Timestamp  time.Time `json:"timestamp"`
}

// ResolutionRecord is the audit trail entry written for every applied resolution.
type ResolutionRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ConflictID string    `gorm:"uniqueIndex;not null" json:"conflictId"`
	ProjectID  string    `gorm:"index;not null" json:"projectId"`
	FilePath   string    `gorm:"not null" json:"filePath"`
	Strategy   Strategy  `gorm:"not null" json:"strategy"`
	ResolvedBy string    `json:"resolvedBy"`
	ResolvedAt time.Time `json:"resolvedAt"`
}
