package model

import "time"

type AssetMetadata struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Checksum string `json:"checksum"`
}

// CDNHandle references an uploaded asset.
type CDNHandle struct {
	URL        string        `json:"url"`
	ProjectID  string        `json:"projectId"`
	Key        string        `json:"key"`
	Checksum   string        `json:"checksum"`
	Size       int64         `json:"size"`
	MimeType   string        `json:"mimeType"`
	UploadedAt time.Time     `json:"uploadedAt"`
	ExpiresAt  time.Time     `json:"expiresAt"`
	Metadata   AssetMetadata `json:"metadata"`
}

// AssetRecord is the local registry row for an uploaded asset.
type AssetRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	URL        string    `gorm:"uniqueIndex;not null" json:"url"`
	ProjectID  string    `gorm:"index;not null" json:"projectId"`
	Key        string    `gorm:"not null" json:"key"`
	Path       string    `json:"path"`
	Checksum   string    `gorm:"not null" json:"checksum"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	UploadedAt time.Time `json:"uploadedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
