package model

import "time"

// ProjectSnapshot is immutable once created. Files holds the recorded state
// so the snapshot can be restored.
type ProjectSnapshot struct {
	ID        string                `gorm:"primaryKey" json:"id"`
	ProjectID string                `gorm:"index;not null" json:"projectId"`
	Version   int64                 `gorm:"not null" json:"version"`
	Timestamp time.Time             `gorm:"index;not null" json:"timestamp"`
	Author    string                `json:"author"`
	Message   string                `json:"message"`
	FileCount int                   `json:"fileCount"`
	TotalSize int64                 `json:"totalSize"`
	Checksum  string                `json:"checksum"`
	Files     map[string]FileRecord `gorm:"serializer:json" json:"files,omitempty"`
}
