package model

import (
	"maps"
	"slices"
	"time"
)

type FileRecord struct {
	Checksum  string    `json:"checksum"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
	Size      int64     `json:"size"`
	BlobKey   string    `json:"blobKey,omitempty"`
}

// ProjectState is one replica's view of a project's tracked files.
type ProjectState struct {
	ProjectID    string                `json:"projectId"`
	Version      int64                 `json:"version"`
	Files        map[string]FileRecord `json:"files"`
	Settings     map[string]any        `json:"settings,omitempty"`
	Metadata     map[string]any        `json:"metadata,omitempty"`
	LastSyncTime time.Time             `json:"lastSyncTime,omitzero"`
}

func NewProjectState(projectID string) *ProjectState {
	return &ProjectState{
		ProjectID: projectID,
		Files:     make(map[string]FileRecord),
	}
}

// Paths returns the tracked paths in lexical order.
func (s *ProjectState) Paths() []string {
	return slices.Sorted(maps.Keys(s.Files))
}

func (s *ProjectState) TotalSize() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Size
	}

	return total
}

func (s *ProjectState) Clone() *ProjectState {
	c := *s
	c.Files = maps.Clone(s.Files)
	if c.Files == nil {
		c.Files = make(map[string]FileRecord)
	}
	c.Settings = maps.Clone(s.Settings)
	c.Metadata = maps.Clone(s.Metadata)
	return &c
}
