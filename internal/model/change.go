package model

import (
	"slices"
	"strings"
	"time"
)

type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

type ProjectChange struct {
	ProjectID   string     `json:"projectId"`
	Path        string     `json:"path"`
	ChangeType  ChangeType `json:"changeType"`
	Author      string     `json:"author"`
	Timestamp   time.Time  `json:"timestamp"`
	Checksum    string     `json:"checksum,omitempty"`
	Description string     `json:"description,omitempty"`
}

// ChangeFilters narrows a subscription. A nil field matches everything.
type ChangeFilters struct {
	ChangeTypes []ChangeType `json:"changeTypes,omitempty"`
	Paths       []string     `json:"paths,omitempty"`
	Authors     []string     `json:"authors,omitempty"`
}

func (f *ChangeFilters) Match(c ProjectChange) bool {
	if f == nil {
		return true
	}

	if f.ChangeTypes != nil && !slices.Contains(f.ChangeTypes, c.ChangeType) {
		return false
	}

	if f.Paths != nil && !slices.ContainsFunc(f.Paths, func(p string) bool {
		return strings.HasPrefix(c.Path, p)
	}) {
		return false
	}

	if f.Authors != nil && !slices.Contains(f.Authors, c.Author) {
		return false
	}

	return true
}
